//go:build linux

package blockdev

import (
	"github.com/tinykern/satafs/checkpoint"
	"golang.org/x/sys/unix"
)

// Raw is a Device backed by a Linux block device node (or any file), opened as port 0.
type Raw struct {
	fd       int
	readOnly bool
}

// OpenRaw opens the block device at path.
func OpenRaw(path string, readOnly bool) (*Raw, error) {
	flag := unix.O_RDWR
	if readOnly {
		flag = unix.O_RDONLY
	}
	fd, err := unix.Open(path, flag|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, checkpoint.Wrapf(err, nil, "open %s", path)
	}
	return &Raw{fd: fd, readOnly: readOnly}, nil
}

func (d *Raw) check(port int, count uint32, buf []byte) error {
	if port != 0 {
		return checkpoint.New(ErrInvalidPort, "%d, raw devices only have port 0", port)
	}
	return CheckBuffer(count, buf)
}

func (d *Raw) ReadSectors(port int, lba uint64, count uint32, buf []byte) error {
	if err := d.check(port, count, buf); err != nil {
		return err
	}
	for done := 0; done < len(buf); {
		n, err := unix.Pread(d.fd, buf[done:], int64(lba*SectorSize)+int64(done))
		if err != nil {
			return checkpoint.Wrapf(err, ErrFault, "read lba %d", lba)
		}
		if n == 0 {
			return checkpoint.New(ErrFault, "read lba %d: short read", lba)
		}
		done += n
	}
	return nil
}

func (d *Raw) WriteSectors(port int, lba uint64, count uint32, buf []byte) error {
	if err := d.check(port, count, buf); err != nil {
		return err
	}
	if d.readOnly {
		return checkpoint.New(ErrFault, "write lba %d: device opened read-only", lba)
	}
	for done := 0; done < len(buf); {
		n, err := unix.Pwrite(d.fd, buf[done:], int64(lba*SectorSize)+int64(done))
		if err != nil {
			return checkpoint.Wrapf(err, ErrFault, "write lba %d", lba)
		}
		if n == 0 {
			return checkpoint.New(ErrFault, "write lba %d: short write", lba)
		}
		done += n
	}
	return checkpoint.Wrapf(unix.Fsync(d.fd), ErrFault, "sync after writing lba %d", lba)
}

// Close closes the device node.
func (d *Raw) Close() error {
	return unix.Close(d.fd)
}
