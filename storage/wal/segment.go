package wal

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func newSegment(id uint64, dir string) *segment {
	return &segment{
		id:   id,
		path: filepath.Join(dir, fmt.Sprintf("wal_%016x.log", id)),
	}
}

// open opens the segment file in append-only mode, picking up its
// existing size if it already has records from a prior process.
func (s *segment) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return nil
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("wal: open segment %s: %w", s.path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("wal: stat segment %s: %w", s.path, err)
	}

	s.file = f
	s.size = stat.Size()
	return nil
}

// append writes data to the segment. O_APPEND makes the write atomic
// at the OS level; no fsync here, so durability is not yet guaranteed.
func (s *segment) append(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("wal: segment %d not open", s.id)
	}
	n, err := s.file.Write(data)
	if err != nil {
		return fmt.Errorf("wal: write segment %d: %w", s.id, err)
	}
	s.size += int64(n)
	return nil
}

// sync forces the segment's writes to durable storage via fsync.
func (s *segment) sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("wal: segment %d not open", s.id)
	}
	return unix.Fsync(int(s.file.Fd()))
}

func (s *segment) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *segment) isFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size >= segmentSize
}
