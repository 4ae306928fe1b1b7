package store

import (
	"github.com/hetianyi/gotftp/common"
	"github.com/hetianyi/gox/file"
	"github.com/hetianyi/gox/logger"
	"github.com/hetianyi/gox/uuid"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileStore serves files from the local filesystem.
//
// A confined store resolves every name below its root directory and refuses
// names that escape it. An unconfined store resolves names as given, relative
// to the working directory, which is what the client side needs.
type FileStore struct {
	root     string
	confined bool
}

// NewFileStore returns a store confined to root.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: filepath.Clean(root), confined: true}
}

// NewLocalStore returns an unconfined store.
func NewLocalStore() *FileStore {
	return &FileStore{}
}

// Resolve maps a requested name to a filesystem path.
func (s *FileStore) Resolve(name string) (string, error) {
	if !s.confined {
		if name == "" {
			return "", common.AccessViolationErr
		}
		return filepath.Clean(name), nil
	}
	rel := path.Clean(strings.TrimLeft(strings.ReplaceAll(name, "\\", "/"), "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", common.AccessViolationErr
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	return full, nil
}

func (s *FileStore) OpenForRead(name string) (Reader, int64, error) {
	target, err := s.Resolve(name)
	if err != nil {
		return nil, 0, err
	}
	if !file.Exists(target) {
		return nil, 0, common.FileNotFoundErr
	}
	fi, err := file.GetFile(target)
	if err != nil {
		if os.IsPermission(err) {
			return nil, 0, common.AccessViolationErr
		}
		return nil, 0, ioErr(err)
	}
	info, err := fi.Stat()
	if err != nil {
		fi.Close()
		return nil, 0, ioErr(err)
	}
	if info.IsDir() {
		fi.Close()
		return nil, 0, common.AccessViolationErr
	}
	return &fileReader{f: fi}, info.Size(), nil
}

func (s *FileStore) OpenForWrite(name string) (Writer, error) {
	target, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}
	if file.Exists(target) {
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			return nil, common.AccessViolationErr
		}
	}
	dir := filepath.Dir(target)
	if !file.Exists(dir) {
		if err := file.CreateDirs(dir); err != nil {
			return nil, ioErr(err)
		}
	}
	// the temp file sits next to the target so the final move is a rename
	tmp := filepath.Join(dir, "."+filepath.Base(target)+"."+uuid.UUID()+".tmp")
	out, err := file.CreateFile(tmp)
	if err != nil {
		if os.IsPermission(err) {
			return nil, common.AccessViolationErr
		}
		return nil, ioErr(err)
	}
	return &fileWriter{f: out, tmp: tmp, target: target}, nil
}

type fileReader struct {
	f *os.File
}

func (r *fileReader) ReadNext(p []byte) (int, error) {
	return readFull(r.f, p)
}

func (r *fileReader) Close() error {
	return r.f.Close()
}

type fileWriter struct {
	f      *os.File
	tmp    string
	target string
	size   int64
	closed bool
}

func (w *fileWriter) Append(p []byte) error {
	if w.closed {
		return ioErr(os.ErrClosed)
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	if err != nil {
		return ioErr(err)
	}
	return nil
}

func (w *fileWriter) Commit() error {
	if w.closed {
		return ioErr(os.ErrClosed)
	}
	w.closed = true
	if err := w.f.Close(); err != nil {
		file.Delete(w.tmp)
		return ioErr(err)
	}
	if file.Exists(w.target) {
		file.Delete(w.target)
	}
	if err := file.MoveFile(w.tmp, w.target); err != nil {
		file.Delete(w.tmp)
		return ioErr(err)
	}
	logger.Debug("stored ", w.size, " bytes to ", w.target)
	return nil
}

func (w *fileWriter) Discard() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.f.Close()
	file.Delete(w.tmp)
	return nil
}

func (w *fileWriter) Size() int64 {
	return w.size
}
