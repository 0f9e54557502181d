// Package mmap provides a read-only memory-mapped view of a file.
package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type MmapStore struct {
	file *os.File
	data []byte
}

// NewMmapStore opens the file and maps it into memory.
// It handles the edge case where the file is empty (0 bytes).
func NewMmapStore(path string) (*MmapStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	m := &MmapStore{file: f}
	if err := m.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

// Sync remaps the file when its size changed since the last mapping.
// Call it before reading after the file was written through another handle.
func (m *MmapStore) Sync() error {
	stat, err := m.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	currentSize := stat.Size()
	if currentSize == int64(len(m.data)) {
		return nil
	}

	if len(m.data) > 0 {
		if err := unix.Munmap(m.data); err != nil {
			return fmt.Errorf("munmap failed: %w", err)
		}
		m.data = nil
	}

	// unix.Mmap returns EINVAL for a zero length, so an empty file stays unmapped.
	if currentSize == 0 {
		return nil
	}

	// MAP_SHARED: writes made through the writer's handle are visible here.
	data, err := unix.Mmap(int(m.file.Fd()), 0, int(currentSize), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("remap failed: %w", err)
	}
	m.data = data

	return nil
}

// Close unmaps the memory and closes the file handle.
func (m *MmapStore) Close() error {
	if len(m.data) > 0 {
		if err := unix.Munmap(m.data); err != nil {
			m.file.Close()
			return fmt.Errorf("munmap failed: %w", err)
		}
		m.data = nil
	}

	return m.file.Close()
}

// ReadAt returns a view of length bytes at offset. The slice aliases the
// mapping and is only valid until the next Sync or Close.
func (m *MmapStore) ReadAt(offset int64, length int) ([]byte, error) {
	if m.data == nil {
		return nil, fmt.Errorf("storage is empty/closed")
	}

	if offset < 0 || length < 0 || offset > int64(len(m.data))-int64(length) {
		return nil, fmt.Errorf("out of bounds: len=%d, req_off=%d, req_len=%d", len(m.data), offset, length)
	}

	return m.data[offset : offset+int64(length)], nil
}

func (m *MmapStore) Size() int64 {
	return int64(len(m.data))
}
