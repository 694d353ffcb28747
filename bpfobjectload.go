package main

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
)

var errNoBPFObject = errors.New("no BPF object available")

// BPFObjectLoader is an interface which describes objects which return a
// BPF ELF-format object as a byte slice.
type bpfObjectLoader interface {
	load() ([]byte, error)
}

// FileBPFObjectLoader reads the compiled probe (see the Makefile) from disk.
type fileBPFObjectLoader struct {
	fs   afero.Fs
	path string
}

func newFileBPFObjectLoader(fs afero.Fs, path string) *fileBPFObjectLoader {
	return &fileBPFObjectLoader{fs, path}
}

func (l *fileBPFObjectLoader) load() ([]byte, error) {
	bpfObj, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", l.path, err)
	}

	// Guard against a truncated install
	if len(bpfObj) == 0 {
		return nil, fmt.Errorf("%s: %w", l.path, errNoBPFObject)
	}

	return bpfObj, nil
}
