package satafs

import (
	"io"
	"strings"

	"github.com/tinykern/satafs/checkpoint"
)

// splitPath splits path at '/' and '\' and drops empty segments, so "/", "" and "//"
// all name the root directory.
func splitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
}

// dirCluster returns the cluster a directory entry points to. ".." entries of
// directories below the root store 0 for the root.
func (fs *Fs) dirCluster(e EntryHeader) uint32 {
	if c := e.Cluster(); c != 0 {
		return c
	}
	return fs.vol.RootCluster
}

// Resolve returns the first cluster of the directory at path.
// The root is resolved without any device access.
func (fs *Fs) Resolve(path string) (uint32, error) {
	cluster, err := fs.resolve(splitPath(path))
	return cluster, checkpoint.Wrapf(err, nil, "resolving %q", path)
}

func (fs *Fs) resolve(segments []string) (uint32, error) {
	cluster := fs.vol.RootCluster
	for _, name := range segments {
		entry, err := fs.lookup(cluster, name)
		if err != nil {
			return 0, err
		}
		if !entry.IsDir() {
			return 0, checkpoint.New(ErrNotFound, "%q is not a directory", name)
		}
		cluster = fs.dirCluster(entry.EntryHeader)
	}
	return cluster, nil
}

// lookup finds the entry called name in the directory at cluster. Directories
// are preferred over other entries of the same name.
func (fs *Fs) lookup(cluster uint32, name string) (ExtendedEntryHeader, error) {
	d, err := fs.OpenDir(cluster)
	if err != nil {
		return ExtendedEntryHeader{}, err
	}
	defer d.Close()

	var other *ExtendedEntryHeader
	for {
		entry, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ExtendedEntryHeader{}, err
		}
		if entry.IsVolumeLabel() || entry.DisplayName() != name {
			continue
		}
		if entry.IsDir() {
			return entry, nil
		}
		if other == nil {
			other = &entry
		}
	}
	if other != nil {
		return *other, nil
	}
	return ExtendedEntryHeader{}, checkpoint.New(ErrNotFound, "%q", name)
}

// stat returns the entry at path. The root has no entry of its own, so a synthetic one is returned.
func (fs *Fs) stat(path string) (ExtendedEntryHeader, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return fs.rootEntry(), nil
	}
	parent, err := fs.resolve(segments[:len(segments)-1])
	if err != nil {
		return ExtendedEntryHeader{}, err
	}
	return fs.lookup(parent, segments[len(segments)-1])
}

func (fs *Fs) rootEntry() ExtendedEntryHeader {
	e := ExtendedEntryHeader{ExtendedName: "/"}
	e.Attribute = AttrDirectory
	e.SetCluster(fs.vol.RootCluster)
	return e
}
