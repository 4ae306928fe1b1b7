// Package store provides the byte stores transfers read from and write to.
package store

import (
	"errors"
	"fmt"
	"github.com/hetianyi/gotftp/common"
	"io"
	"syscall"
)

// ByteStore opens named files for a transfer. Handles returned by a store
// belong to a single transfer and are never shared.
type ByteStore interface {
	// OpenForRead returns a reader for name and its length in bytes.
	// It fails with common.FileNotFoundErr, common.AccessViolationErr
	// or an error wrapping common.FileIOErr.
	OpenForRead(name string) (Reader, int64, error)
	// OpenForWrite returns a sink for name. Nothing is visible
	// under name until Commit succeeds.
	OpenForWrite(name string) (Writer, error)
}

type Reader interface {
	// ReadNext fills p from the current position. A short count
	// with a nil error means the end of the file was reached.
	ReadNext(p []byte) (int, error)
	Close() error
}

type Writer interface {
	Append(p []byte) error
	// Commit publishes everything appended so far under the target name.
	Commit() error
	// Discard drops the partial content.
	Discard() error
	// Size returns the number of bytes appended.
	Size() int64
}

// readFull reads into p until it is full or r is exhausted.
func readFull(r io.Reader, p []byte) (int, error) {
	n, err := io.ReadFull(r, p)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return n, nil
	}
	if err != nil {
		return n, ioErr(err)
	}
	return n, nil
}

func ioErr(err error) error {
	if errors.Is(err, common.FileIOErr) || errors.Is(err, common.DiskFullErr) {
		return err
	}
	if errors.Is(err, syscall.ENOSPC) {
		return fmt.Errorf("%w: %v", common.DiskFullErr, err)
	}
	return fmt.Errorf("%w: %v", common.FileIOErr, err)
}
