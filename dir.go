package satafs

import (
	"io"

	"github.com/tinykern/satafs/checkpoint"
)

type dirState int

const (
	dirOpen dirState = iota
	dirIterating
	dirEnd
)

// Dir iterates over the entries of a directory, following its cluster chain.
// It holds one sector in memory and is owned by the caller.
type Dir struct {
	fs *Fs

	cluster     uint32
	sectorIndex uint32
	entryIndex  int
	state       dirState
	hops        uint32

	buf []byte
	lfn lfnBuilder
}

// OpenDir starts iterating the directory at cluster by loading its first sector.
func (fs *Fs) OpenDir(cluster uint32) (*Dir, error) {
	if !fs.vol.validCluster(cluster) {
		return nil, checkpoint.New(ErrInvalidCluster, "directory cluster %d", cluster)
	}
	d := &Dir{
		fs:      fs,
		cluster: cluster,
		state:   dirOpen,
		buf:     make([]byte, SectorSize),
	}
	if err := d.load(); err != nil {
		return nil, err
	}
	d.state = dirIterating
	return d, nil
}

func (d *Dir) sector() uint64 {
	return d.fs.vol.ClusterToSector(d.cluster) + uint64(d.sectorIndex)
}

func (d *Dir) load() error {
	return checkpoint.Wrapf(d.fs.readSectors(d.sector(), 1, d.buf), nil, "reading directory sector %d", d.sector())
}

// advance moves to the next sector, crossing into the next cluster of the chain if needed.
func (d *Dir) advance() error {
	d.entryIndex = 0
	d.sectorIndex++
	if d.sectorIndex >= uint32(d.fs.vol.SectorsPerCluster) {
		next, ok, err := d.fs.nextCluster(d.cluster)
		if err != nil {
			return err
		}
		if !ok {
			return io.EOF
		}
		d.hops++
		if d.hops >= d.fs.vol.ClusterCount() {
			return checkpoint.New(ErrInvalidCluster, "directory chain loops at cluster %d", next)
		}
		d.cluster = next
		d.sectorIndex = 0
	}
	return d.load()
}

// Next returns the next short entry together with its long name.
// Deleted entries and long name fragments not belonging to the following short entry are skipped.
// It returns io.EOF after the last entry.
func (d *Dir) Next() (ExtendedEntryHeader, error) {
	for d.state == dirIterating {
		if d.entryIndex*EntrySize >= SectorSize {
			if err := d.advance(); err != nil {
				d.state = dirEnd
				return ExtendedEntryHeader{}, err
			}
			continue
		}

		at := slot{sector: d.sector(), index: d.entryIndex}
		raw := d.buf[d.entryIndex*EntrySize : (d.entryIndex+1)*EntrySize]
		d.entryIndex++

		switch {
		case raw[0] == entryEnd:
			d.state = dirEnd
		case raw[0] == entryDeleted:
			d.lfn.reset()
		case isLongName(raw):
			d.lfn.add(DecodeLongFilenameEntry(raw), at)
		default:
			entry := ExtendedEntryHeader{EntryHeader: DecodeEntryHeader(raw)}
			entry.ExtendedName, entry.slots = d.lfn.takeFor(entry.Name)
			entry.slots = append(entry.slots, at)
			return entry, nil
		}
	}
	return ExtendedEntryHeader{}, io.EOF
}

// Close ends the iteration. Next returns io.EOF afterwards.
func (d *Dir) Close() error {
	d.state = dirEnd
	return nil
}

// entries returns all entries of the directory at cluster, without "." and ".." and volume labels.
func (fs *Fs) entries(cluster uint32) ([]ExtendedEntryHeader, error) {
	d, err := fs.OpenDir(cluster)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	var entries []ExtendedEntryHeader
	for {
		entry, err := d.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		if isDotEntry(entry) || entry.IsVolumeLabel() {
			continue
		}
		entries = append(entries, entry)
	}
}

func isDotEntry(e ExtendedEntryHeader) bool {
	return e.ExtendedName == "" && (e.Name == dotName || e.Name == dotDotName)
}

var (
	dotName    = [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dotDotName = [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
)
