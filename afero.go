package satafs

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/tinykern/satafs/checkpoint"
)

var _ afero.Fs = (*Fs)(nil)

func (fs *Fs) Name() string {
	return "satafs"
}

func (fs *Fs) Open(name string) (afero.File, error) {
	f, err := fs.open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (fs *Fs) open(name string) (*File, error) {
	entry, err := fs.stat(name)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	cluster := entry.Cluster()
	if entry.IsDir() {
		cluster = fs.dirCluster(entry.EntryHeader)
	}
	return newFile(fs, name, entry, cluster), nil
}

// OpenFile opens name read only. Any flag asking for write access fails with ErrNotSupported.
func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, notSupported("open", name)
	}
	return fs.Open(name)
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	entry, err := fs.stat(name)
	if err != nil {
		return nil, &os.PathError{Op: "stat", Path: name, Err: err}
	}
	return entry.FileInfo(), nil
}

// Mkdir creates a directory. The permissions are ignored as FAT has none.
func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	if err := fs.CreateDirectory(name); err != nil {
		return &os.PathError{Op: "mkdir", Path: name, Err: err}
	}
	return nil
}

// MkdirAll creates the directory name and all missing parents.
func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	segments := splitPath(path)
	for i := range segments {
		current := "/" + strings.Join(segments[:i+1], "/")
		err := fs.CreateDirectory(current)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrAlreadyExists) {
			return &os.PathError{Op: "mkdir", Path: current, Err: err}
		}
		entry, err := fs.stat(current)
		if err != nil {
			return &os.PathError{Op: "mkdir", Path: current, Err: err}
		}
		if !entry.IsDir() {
			return &os.PathError{Op: "mkdir", Path: current, Err: checkpoint.New(ErrNotDirectory, "%q", current)}
		}
	}
	return nil
}

// Remove deletes an empty directory. Removing files is not supported.
func (fs *Fs) Remove(name string) error {
	entry, err := fs.stat(name)
	if err != nil {
		return &os.PathError{Op: "remove", Path: name, Err: err}
	}
	if !entry.IsDir() {
		return notSupported("remove", name)
	}
	if err := fs.DeleteDirectory(name); err != nil {
		return &os.PathError{Op: "remove", Path: name, Err: err}
	}
	return nil
}

// RemoveAll deletes the directory tree at path, bottom up. It fails on the first
// regular file, as files cannot be removed.
func (fs *Fs) RemoveAll(path string) error {
	entry, err := fs.stat(path)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return &os.PathError{Op: "removeall", Path: path, Err: err}
	}
	if !entry.IsDir() {
		return notSupported("removeall", path)
	}

	children, err := fs.entries(fs.dirCluster(entry.EntryHeader))
	if err != nil {
		return &os.PathError{Op: "removeall", Path: path, Err: err}
	}
	for _, child := range children {
		if err := fs.RemoveAll(strings.Join(append(splitPath(path), child.DisplayName()), "/")); err != nil {
			return err
		}
	}
	return fs.Remove(path)
}

func (fs *Fs) Create(name string) (afero.File, error) {
	return nil, notSupported("create", name)
}

func (fs *Fs) Rename(oldname, newname string) error {
	return notSupported("rename", oldname)
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	return notSupported("chmod", name)
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return notSupported("chown", name)
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return notSupported("chtimes", name)
}

func notSupported(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: checkpoint.New(ErrNotSupported, "%s", op)}
}
