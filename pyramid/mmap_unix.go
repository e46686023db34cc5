//go:build !windows

package pyramid

import (
	"os"
	"syscall"
)

// mappedFile is a file mapped read-write into memory. Writes to data reach
// the file through the shared mapping.
type mappedFile struct {
	data []byte
	file *os.File
}

// mapFile grows f to size bytes and maps it.
func mapFile(f *os.File, size int64) (*mappedFile, error) {
	if err := f.Truncate(size); err != nil {
		return nil, err
	}
	if size == 0 {
		return &mappedFile{file: f}, nil
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &mappedFile{data: data, file: f}, nil
}

// Close unmaps the data and closes the file.
func (m *mappedFile) Close() error {
	if m.data != nil {
		if err := syscall.Munmap(m.data); err != nil {
			return err
		}
		m.data = nil
	}
	if m.file != nil {
		err := m.file.Close()
		m.file = nil
		return err
	}
	return nil
}
