// Package sink implements the target file abstraction the Write phase
// writes through: "create" truncates (or creates) the output file, "modify"
// opens an existing file read-write without truncation so a ROM image can be
// patched at arbitrary origins.
package sink

import "os"

// Sink is the open target file the Write phase writes into.
type Sink struct {
	f *os.File
}

// Open opens filename. When create is true the file is truncated (or
// created if absent); when false the file must already exist and is opened
// read-write in place.
func Open(filename string, create bool) (*Sink, error) {
	if create {
		f, err := os.Create(filename)
		if err != nil {
			return nil, err
		}
		return &Sink{f: f}, nil
	}
	f, err := os.OpenFile(filename, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &Sink{f: f}, nil
}

// WriteAt writes b at the given absolute offset, matching os.File.WriteAt
// (and its sparse-file zero-fill-on-extend behavior past the current EOF).
func (s *Sink) WriteAt(b []byte, offset int64) error {
	_, err := s.f.WriteAt(b, offset)
	return err
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	return s.f.Close()
}
