package engine

import (
	"bufio"
	"os"
	"sync"
)

// store wraps a single generation's log file, tracking the write
// position so callers never need to ask the OS for it inside the hot
// append/replay loop.
type store struct {
	*os.File
	mu   sync.Mutex
	buf  *bufio.Writer
	size uint64
}

// newStore opens a store around file, using the file's current size as
// the store's starting size. It returns an error if the file cannot be
// stat'd.
func newStore(file *os.File) (*store, error) {
	fi, err := os.Stat(file.Name())
	if err != nil {
		return nil, err
	}

	return &store{
		File: file,
		size: uint64(fi.Size()),
		buf:  bufio.NewWriter(file),
	}, nil
}

// Append writes p to the end of the store and returns the number of
// bytes written and the offset at which they start.
func (s *store) Append(p []byte) (n uint64, pos uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos = s.size

	w, err := s.buf.Write(p)
	if err != nil {
		return 0, 0, err
	}

	s.size += uint64(w)

	return uint64(w), pos, nil
}

// Flush pushes any buffered writes out to the underlying file without
// closing it.
func (s *store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf.Flush()
}

// ReadAt reads len(p) bytes from the store starting at off, flushing
// any buffered writes first so a read can never miss data this store
// itself just wrote.
func (s *store) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.buf.Flush(); err != nil {
		return 0, err
	}

	return s.File.ReadAt(p, off)
}

// Size returns the store's current logical length, including any
// buffered-but-unflushed writes.
func (s *store) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

// Close flushes the buffer and closes the underlying file. A second
// call returns the file's already-closed error.
func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.File.Close()
}
