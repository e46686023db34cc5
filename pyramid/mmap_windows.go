//go:build windows

package pyramid

import (
	"os"
	"syscall"
	"unsafe"
)

// mappedFile is a file mapped read-write into memory. Writes to data reach
// the file through the shared mapping.
type mappedFile struct {
	data   []byte
	file   *os.File
	handle syscall.Handle
}

// mapFile grows f to size bytes and maps it.
func mapFile(f *os.File, size int64) (*mappedFile, error) {
	if err := f.Truncate(size); err != nil {
		return nil, err
	}
	if size == 0 {
		return &mappedFile{file: f}, nil
	}

	handle, err := syscall.CreateFileMapping(syscall.Handle(f.Fd()), nil, syscall.PAGE_READWRITE,
		uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, err
	}
	ptr, err := syscall.MapViewOfFile(handle, syscall.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		syscall.CloseHandle(handle)
		return nil, err
	}

	data := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size)
	return &mappedFile{data: data, file: f, handle: handle}, nil
}

// Close unmaps the data and closes the file.
func (m *mappedFile) Close() error {
	if m.data != nil {
		syscall.UnmapViewOfFile(uintptr(unsafe.Pointer(&m.data[0])))
		m.data = nil
	}
	if m.handle != 0 {
		syscall.CloseHandle(m.handle)
		m.handle = 0
	}
	if m.file != nil {
		err := m.file.Close()
		m.file = nil
		return err
	}
	return nil
}
