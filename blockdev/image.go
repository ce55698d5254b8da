package blockdev

import (
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/tinykern/satafs/checkpoint"
)

// Image is a Device backed by disk image files, one file per port.
type Image struct {
	disks    []afero.File
	readOnly bool
}

// NewImage uses the given files as the disks of port 0, 1, ...
func NewImage(disks ...afero.File) *Image {
	return &Image{disks: disks}
}

// OpenImage opens the image at path on fs as the disk of port 0.
func OpenImage(fs afero.Fs, path string, readOnly bool) (*Image, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := fs.OpenFile(path, flag, 0)
	if err != nil {
		return nil, checkpoint.Wrapf(err, nil, "open image %s", path)
	}
	return &Image{disks: []afero.File{f}, readOnly: readOnly}, nil
}

// CreateImage creates (or truncates) an image of the given number of sectors on fs.
func CreateImage(fs afero.Fs, path string, sectors uint64) (*Image, error) {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, checkpoint.Wrapf(err, nil, "create image %s", path)
	}
	if err := f.Truncate(int64(sectors * SectorSize)); err != nil {
		f.Close()
		return nil, checkpoint.Wrapf(err, nil, "size image %s", path)
	}
	return &Image{disks: []afero.File{f}}, nil
}

func (d *Image) disk(port int) (afero.File, error) {
	if port < 0 || port >= len(d.disks) || d.disks[port] == nil {
		return nil, checkpoint.New(ErrInvalidPort, "%d, the image has %d disks", port, len(d.disks))
	}
	return d.disks[port], nil
}

// Sectors returns the size of the disk at port in whole sectors.
func (d *Image) Sectors(port int) (uint64, error) {
	f, err := d.disk(port)
	if err != nil {
		return 0, err
	}
	st, err := f.Stat()
	if err != nil {
		return 0, checkpoint.From(err)
	}
	return uint64(st.Size()) / SectorSize, nil
}

func (d *Image) ReadSectors(port int, lba uint64, count uint32, buf []byte) error {
	if err := CheckBuffer(count, buf); err != nil {
		return err
	}
	f, err := d.disk(port)
	if err != nil {
		return err
	}
	n, err := f.ReadAt(buf, int64(lba*SectorSize))
	if n == len(buf) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return checkpoint.Wrapf(err, ErrFault, "read lba %d", lba)
}

func (d *Image) WriteSectors(port int, lba uint64, count uint32, buf []byte) error {
	if err := CheckBuffer(count, buf); err != nil {
		return err
	}
	f, err := d.disk(port)
	if err != nil {
		return err
	}
	if d.readOnly {
		return checkpoint.New(ErrFault, "write lba %d: image is read-only", lba)
	}
	if _, err := f.WriteAt(buf, int64(lba*SectorSize)); err != nil {
		return checkpoint.Wrapf(err, ErrFault, "write lba %d", lba)
	}
	return nil
}

// Close closes all image files.
func (d *Image) Close() error {
	var first error
	for _, f := range d.disks {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
