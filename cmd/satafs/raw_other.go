//go:build !linux

package main

import (
	"errors"
	"io"
)

type rawDevice interface {
	ReadSectors(port int, lba uint64, count uint32, buf []byte) error
	WriteSectors(port int, lba uint64, count uint32, buf []byte) error
	io.Closer
}

func openRaw(path string, readOnly bool) (rawDevice, error) {
	return nil, errors.New("raw block devices are only supported on Linux")
}
