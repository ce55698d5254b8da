package satafs

import (
	"errors"
	"fmt"
	"os"
)

// These errors are returned by the filesystem, usually wrapped by a checkpoint.
// Device errors (see package blockdev) are passed through, so both can be checked with errors.Is.
var (
	ErrNotFound          = fmt.Errorf("not found: %w", os.ErrNotExist)
	ErrAlreadyExists     = fmt.Errorf("entry already exists: %w", os.ErrExist)
	ErrDirectoryNotEmpty = errors.New("directory not empty")
	ErrNoFreeSpace       = errors.New("no free space")
	ErrInvalidVolume     = errors.New("not a supported FAT32 volume")
	ErrInvalidPath       = errors.New("invalid path")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidCluster    = errors.New("invalid cluster")
	ErrNotDirectory      = errors.New("not a directory")
	ErrNotSupported      = errors.New("operation not supported")
)
