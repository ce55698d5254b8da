//go:build linux

package main

import "github.com/tinykern/satafs/blockdev"

func openRaw(path string, readOnly bool) (*blockdev.Raw, error) {
	return blockdev.OpenRaw(path, readOnly)
}
