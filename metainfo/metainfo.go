package metainfo

import (
	"bufio"
	"io"
	"os"

	"github.com/anacrolix/torrent/bencode"
)

// Load a Definition from an io.Reader. The definition is validated, so a non-nil return is safe to
// use.
func Load(r io.Reader) (*Definition, error) {
	var d Definition
	err := bencode.NewDecoder(r).Decode(&d)
	if err != nil {
		return nil, err
	}
	err = d.Validate()
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Convenience function for loading a Definition from a file.
func LoadFromFile(filename string) (*Definition, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var buf bufio.Reader
	buf.Reset(f)
	return Load(&buf)
}

func (d *Definition) Write(w io.Writer) error {
	return bencode.NewEncoder(w).Encode(d)
}
