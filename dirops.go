package satafs

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/tinykern/satafs/checkpoint"
)

// ListDirectory returns the entries of the directory at path, without "." and "..".
func (fs *Fs) ListDirectory(path string) ([]os.FileInfo, error) {
	cluster, err := fs.Resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := fs.entries(cluster)
	if err != nil {
		return nil, checkpoint.Wrapf(err, nil, "listing %q", path)
	}
	infos := make([]os.FileInfo, len(entries))
	for i := range entries {
		infos[i] = entries[i].FileInfo()
	}
	return infos, nil
}

// PathExists reports whether path names a directory. Device errors count as "does not exist".
func (fs *Fs) PathExists(path string) bool {
	_, err := fs.Resolve(path)
	return err == nil
}

// CreateDirectory creates the directory at path. Its parent has to exist.
func (fs *Fs) CreateDirectory(path string) error {
	segments := splitPath(path)
	if len(segments) == 0 {
		return checkpoint.New(ErrAlreadyExists, "the root directory always exists")
	}
	leaf := segments[len(segments)-1]
	if err := validateName(leaf); err != nil {
		return err
	}

	parent, err := fs.resolve(segments[:len(segments)-1])
	if err != nil {
		return checkpoint.Wrapf(err, nil, "resolving parent of %q", path)
	}

	taken, err := fs.shortNames(parent, leaf)
	if err != nil {
		return checkpoint.Wrapf(err, nil, "creating %q", path)
	}

	short, ntres, fits := shortNameOf(leaf)
	var long []LongFilenameEntry
	if !fits || taken[short] {
		ntres = 0
		if short, err = aliasFor(leaf, func(n [11]byte) bool { return taken[n] }); err != nil {
			return err
		}
		if long, err = longNameEntries(leaf, short); err != nil {
			return err
		}
	}

	slots, end, err := fs.freeSlots(parent, len(long)+1)
	if err != nil {
		return checkpoint.Wrapf(err, nil, "creating %q", path)
	}

	cluster, err := fs.FindFreeCluster()
	if err != nil {
		return checkpoint.Wrapf(err, nil, "creating %q", path)
	}

	entry := fs.stampedEntry(short, AttrDirectory)
	entry.NTReserved = ntres
	entry.SetCluster(cluster)

	if err := fs.initDirectory(cluster, parent, entry); err != nil {
		fs.release(cluster)
		return checkpoint.Wrapf(err, nil, "initializing %q", path)
	}

	if end != nil {
		slots = append(slots, *end)
	}
	err = fs.updateSlots(slots, func(i int, raw []byte) {
		switch {
		case i < len(long):
			long[i].Encode(raw)
		case i == len(long):
			entry.Encode(raw)
		default:
			// Hides whatever was left behind the old end marker.
			copy(raw, make([]byte, EntrySize))
		}
	})
	if err != nil {
		fs.release(cluster)
		return checkpoint.Wrapf(err, nil, "writing entry of %q", path)
	}

	fs.log.WithFields(logrus.Fields{
		"path":    path,
		"cluster": cluster,
		"short":   entry.ShortName(),
		"lfn":     len(long),
	}).Debug("created directory")
	return nil
}

// DeleteDirectory removes the empty directory at path and frees its clusters.
func (fs *Fs) DeleteDirectory(path string) error {
	segments := splitPath(path)
	if len(segments) == 0 {
		return checkpoint.New(ErrInvalidPath, "the root directory cannot be deleted")
	}
	leaf := segments[len(segments)-1]
	if leaf == "." || leaf == ".." {
		return checkpoint.New(ErrInvalidPath, "%q", path)
	}

	parent, err := fs.resolve(segments[:len(segments)-1])
	if err != nil {
		return checkpoint.Wrapf(err, nil, "resolving parent of %q", path)
	}
	entry, err := fs.lookup(parent, leaf)
	if err != nil {
		return checkpoint.Wrapf(err, nil, "deleting %q", path)
	}
	if !entry.IsDir() {
		return checkpoint.New(ErrNotDirectory, "%q", path)
	}
	target := entry.Cluster()
	if !fs.vol.validCluster(target) {
		return checkpoint.New(ErrInvalidCluster, "%q points to cluster %d", path, target)
	}

	children, err := fs.entries(target)
	if err != nil {
		return checkpoint.Wrapf(err, nil, "deleting %q", path)
	}
	if len(children) > 0 {
		return checkpoint.New(ErrDirectoryNotEmpty, "%q has %d entries", path, len(children))
	}

	err = fs.updateSlots(entry.slots, func(_ int, raw []byte) {
		raw[0] = entryDeleted
	})
	if err != nil {
		return checkpoint.Wrapf(err, nil, "deleting entry of %q", path)
	}
	if err := fs.freeChain(target); err != nil {
		return checkpoint.Wrapf(err, nil, "freeing clusters of %q", path)
	}

	fs.log.WithFields(logrus.Fields{
		"path":    path,
		"cluster": target,
	}).Debug("deleted directory")
	return nil
}

// shortNames returns the short names used in the directory at cluster. It fails with
// ErrAlreadyExists if an entry called name is found.
func (fs *Fs) shortNames(cluster uint32, name string) (map[[11]byte]bool, error) {
	d, err := fs.OpenDir(cluster)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	taken := make(map[[11]byte]bool)
	for {
		entry, err := d.Next()
		if err == io.EOF {
			return taken, nil
		}
		if err != nil {
			return nil, err
		}
		taken[entry.Name] = true
		if !entry.IsVolumeLabel() && entry.DisplayName() == name {
			return nil, checkpoint.New(ErrAlreadyExists, "%q", name)
		}
	}
}

// walkSlots calls fn for every slot of the directory at cluster until fn returns false.
func (fs *Fs) walkSlots(cluster uint32, fn func(at slot, raw []byte) bool) error {
	chain, err := fs.Chain(cluster)
	if err != nil {
		return err
	}
	buf := make([]byte, SectorSize)
	for _, c := range chain {
		first := fs.vol.ClusterToSector(c)
		for s := uint64(0); s < uint64(fs.vol.SectorsPerCluster); s++ {
			if err := fs.readSectors(first+s, 1, buf); err != nil {
				return err
			}
			for i := 0; i < SectorSize/EntrySize; i++ {
				if !fn(slot{sector: first + s, index: i}, buf[i*EntrySize:(i+1)*EntrySize]) {
					return nil
				}
			}
		}
	}
	return nil
}

// freeSlots finds n consecutive unused slots in the directory at cluster. Every slot from the
// end marker on is unused. If the run reaches that area, end is the slot following the run,
// which becomes the new end marker. It is nil if the run fills the directory up.
func (fs *Fs) freeSlots(cluster uint32, n int) (run []slot, end *slot, err error) {
	pastEnd := false
	err = fs.walkSlots(cluster, func(at slot, raw []byte) bool {
		if len(run) == n {
			end = &at
			return false
		}
		if raw[0] == entryEnd {
			pastEnd = true
		}
		if !pastEnd && raw[0] != entryDeleted {
			run = run[:0]
			return true
		}
		run = append(run, at)
		return len(run) < n || pastEnd
	})
	if err != nil {
		return nil, nil, err
	}
	if len(run) < n {
		return nil, nil, checkpoint.New(ErrNoFreeSpace, "no %d free entries in directory cluster %d", n, cluster)
	}
	return run, end, nil
}

// updateSlots loads the sectors holding slots, lets fn change the i-th slot and writes them back.
// Slots have to be ordered by sector.
func (fs *Fs) updateSlots(slots []slot, fn func(i int, raw []byte)) error {
	buf := make([]byte, SectorSize)
	for i := 0; i < len(slots); {
		sector := slots[i].sector
		if err := fs.readSectors(sector, 1, buf); err != nil {
			return err
		}
		for ; i < len(slots) && slots[i].sector == sector; i++ {
			index := slots[i].index
			fn(i, buf[index*EntrySize:(index+1)*EntrySize])
		}
		if err := fs.writeSectors(sector, 1, buf); err != nil {
			return err
		}
	}
	return nil
}

// initDirectory zeroes all sectors of cluster and writes the "." and ".." entries.
func (fs *Fs) initDirectory(cluster, parent uint32, self EntryHeader) error {
	spc := uint32(fs.vol.SectorsPerCluster)
	buf := make([]byte, spc*SectorSize)

	dot := self
	dot.Name = dotName
	dot.NTReserved = 0
	dot.SetCluster(cluster)
	dot.Encode(buf[0:EntrySize])

	if parent == fs.vol.RootCluster {
		parent = 0
	}
	dotDot := dot
	dotDot.Name = dotDotName
	dotDot.SetCluster(parent)
	dotDot.Encode(buf[EntrySize : 2*EntrySize])

	return fs.writeSectors(fs.vol.ClusterToSector(cluster), spc, buf)
}

// release frees a cluster claimed by an operation that failed afterwards.
func (fs *Fs) release(cluster uint32) {
	if err := fs.SetFATEntry(cluster, fatFree); err != nil {
		fs.log.WithError(err).WithField("cluster", cluster).Warn("could not release cluster, it stays allocated")
	}
}

// stampedEntry returns a short entry called name with all timestamps set to now.
func (fs *Fs) stampedEntry(name [11]byte, attr byte) EntryHeader {
	ts := newTimestamp(fs.now())
	return EntryHeader{
		Name:            name,
		Attribute:       attr,
		CreateTimeTenth: ts.tenth,
		CreateTime:      ts.time,
		CreateDate:      ts.date,
		LastAccessDate:  ts.date,
		WriteTime:       ts.time,
		WriteDate:       ts.date,
	}
}
