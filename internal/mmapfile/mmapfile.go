package mmapfile

import "os"

// Open maps path read-only and returns the mapped bytes alongside a
// closer that unmaps (where supported) and closes the file descriptor.
// It is the convenience path for callers that don't need to keep the
// *os.File around, such as a bloom filter sidecar load.
func Open(path string) (data []byte, closer func() error, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	data, err = Map(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return data, func() error {
		uerr := Unmap(data)
		cerr := f.Close()
		if uerr != nil {
			return uerr
		}
		return cerr
	}, nil
}
