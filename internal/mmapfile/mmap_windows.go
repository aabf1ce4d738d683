//go:build windows

package mmapfile

import (
	"io"
	"os"
)

// Map falls back to a full read on Windows to avoid the extra unsafe
// pointer arithmetic a real MapViewOfFile wrapper would need.
func Map(f *os.File) ([]byte, error) {
	return io.ReadAll(f)
}

// Unmap is a no-op for the ReadAll fallback.
func Unmap(data []byte) error {
	return nil
}
