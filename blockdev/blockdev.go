// Package blockdev defines the sector addressed block device boundary used by the
// filesystem engine, together with the errors a device may report.
package blockdev

import (
	"errors"

	"github.com/tinykern/satafs/checkpoint"
)

// SectorSize is the only sector size supported by the devices and the filesystem.
const SectorSize = 512

// These errors are reported by devices. They are usually wrapped, so check them with errors.Is.
var (
	// ErrTimeout means the device did not complete a command within its poll budget.
	ErrTimeout = errors.New("device i/o timeout")
	// ErrFault means the device completed a command with its error bit set.
	ErrFault = errors.New("device i/o fault")
	// ErrInvalidPort means the port index is out of range or has no usable device.
	ErrInvalidPort = errors.New("invalid device port")
	// ErrBufferSize means the buffer does not match count*SectorSize.
	ErrBufferSize = errors.New("buffer size does not match sector count")
)

// Device moves whole sectors between a disk attached to a port and memory.
// Implementations block until the transfer completed or failed.
type Device interface {
	ReadSectors(port int, lba uint64, count uint32, buf []byte) error
	WriteSectors(port int, lba uint64, count uint32, buf []byte) error
}

// CheckBuffer validates the buffer contract shared by all devices.
func CheckBuffer(count uint32, buf []byte) error {
	if uint64(len(buf)) != uint64(count)*SectorSize {
		return checkpoint.New(ErrBufferSize, "%d sectors need %d bytes, got %d", count, uint64(count)*SectorSize, len(buf))
	}
	return nil
}
