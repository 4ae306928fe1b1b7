package store

import (
	"bytes"
	"github.com/hetianyi/gotftp/common"
	"sync"
)

// MemoryStore keeps files in memory.
type MemoryStore struct {
	mu     sync.Mutex
	files  map[string][]byte
	errors map[string]error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:  make(map[string][]byte),
		errors: make(map[string]error),
	}
}

func (s *MemoryStore) Put(name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = append([]byte(nil), content...)
}

func (s *MemoryStore) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[name]
	return b, ok
}

// Fail makes every later open of name return err.
func (s *MemoryStore) Fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[name] = err
}

func (s *MemoryStore) OpenForRead(name string) (Reader, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errors[name]; err != nil {
		return nil, 0, err
	}
	b, ok := s.files[name]
	if !ok {
		return nil, 0, common.FileNotFoundErr
	}
	return &memoryReader{r: bytes.NewReader(b)}, int64(len(b)), nil
}

func (s *MemoryStore) OpenForWrite(name string) (Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errors[name]; err != nil {
		return nil, err
	}
	return &memoryWriter{store: s, name: name}, nil
}

type memoryReader struct {
	r *bytes.Reader
}

func (r *memoryReader) ReadNext(p []byte) (int, error) {
	return readFull(r.r, p)
}

func (r *memoryReader) Close() error {
	return nil
}

type memoryWriter struct {
	store *MemoryStore
	name  string
	buf   bytes.Buffer
}

func (w *memoryWriter) Append(p []byte) error {
	w.buf.Write(p)
	return nil
}

func (w *memoryWriter) Commit() error {
	w.store.Put(w.name, w.buf.Bytes())
	return nil
}

func (w *memoryWriter) Discard() error {
	w.buf.Reset()
	return nil
}

func (w *memoryWriter) Size() int64 {
	return int64(w.buf.Len())
}
