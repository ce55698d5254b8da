package satafs

import (
	"io/fs"
	"sort"
)

// GoDirEntry adapts os.FileInfo to fs.DirEntry.
type GoDirEntry struct {
	fs.FileInfo
}

func (g GoDirEntry) Type() fs.FileMode {
	return g.FileInfo.Mode().Type()
}

func (g GoDirEntry) Info() (fs.FileInfo, error) {
	return g.FileInfo, nil
}

// GoFile adapts File to fs.ReadDirFile.
type GoFile struct {
	*File
}

func (g GoFile) ReadDir(n int) ([]fs.DirEntry, error) {
	entries, err := g.File.Readdir(n)

	goEntries := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		goEntries[i] = GoDirEntry{e}
	}
	return goEntries, err
}

// GoFs exposes a mounted volume as fs.FS, so it can be used with fs.WalkDir and fs.ReadDir.
type GoFs struct {
	*Fs
}

// Open opens name, which has to satisfy fs.ValidPath. "." is the root directory.
func (g GoFs) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		name = "/"
	}
	f, err := g.Fs.open(name)
	if err != nil {
		return nil, err
	}
	return GoFile{f}, nil
}

// Stat implements fs.StatFS with the same path rules as Open.
func (g GoFs) Stat(name string) (fs.FileInfo, error) {
	f, err := g.Open(name)
	if err != nil {
		return nil, err
	}
	return f.Stat()
}

// ReadDir implements fs.ReadDirFS. Entries are sorted by name.
func (g GoFs) ReadDir(name string) ([]fs.DirEntry, error) {
	f, err := g.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.(GoFile).ReadDir(-1)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}
