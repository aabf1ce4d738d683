//go:build !windows

// Package mmapfile memory-maps files read-only. Its one caller in this
// module is bloomfilter.LoadMmap, which reads a filter sidecar file
// straight from the mapping.
package mmapfile

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Map memory-maps f read-only for its full size. The returned slice is
// valid until Unmap is called; f may be closed immediately afterward.
func Map(f *os.File) ([]byte, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("mmapfile: stat: %w", err)
	}
	size := st.Size()
	if size == 0 {
		return []byte{}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: mmap: %w", err)
	}
	return data, nil
}

// Unmap releases memory obtained from Map. Safe to call with nil/empty data.
func Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}
