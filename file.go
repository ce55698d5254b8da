package satafs

import (
	"io"
	"os"
	"syscall"

	"github.com/tinykern/satafs/checkpoint"
)

// fatFileFs provides all methods needed from a fat filesystem for File.
// It mainly exists to be able to mock the Fs in tests.
// Generated mock using mockgen:
//  mockgen -source=file.go -destination=file_mock_test.go -package satafs
type fatFileFs interface {
	entries(cluster uint32) ([]ExtendedEntryHeader, error)
}

// File is an opened directory entry. Only directories can be read, by Readdir and Readdirnames.
type File struct {
	fs   fatFileFs
	path string

	isDirectory bool
	isReadOnly  bool

	firstCluster uint32
	stat         os.FileInfo
	offset       int
}

func newFile(fs fatFileFs, path string, entry ExtendedEntryHeader, cluster uint32) *File {
	return &File{
		fs:           fs,
		path:         path,
		isDirectory:  entry.IsDir(),
		isReadOnly:   entry.Attribute&AttrReadOnly != 0,
		firstCluster: cluster,
		stat:         entry.FileInfo(),
	}
}

func (f *File) Close() error {
	*f = File{}
	return nil
}

func (f *File) Read(p []byte) (n int, err error) {
	return 0, f.readError("read")
}

func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	return 0, f.readError("read")
}

func (f *File) readError(op string) error {
	if f.isDirectory {
		return &os.PathError{Op: op, Path: f.path, Err: syscall.EISDIR}
	}
	return &os.PathError{Op: op, Path: f.path, Err: checkpoint.New(ErrNotSupported, "file content")}
}

// Seek only supports rewinding a directory to its first entry.
// It returns a syscall.EINVAL error for everything else.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if !f.isDirectory || offset != 0 || whence != io.SeekStart {
		return 0, &os.PathError{Op: "seek", Path: f.path, Err: syscall.EINVAL}
	}
	f.offset = 0
	return 0, nil
}

func (f *File) Write(p []byte) (n int, err error) {
	return 0, f.writeError("write")
}

func (f *File) WriteAt(p []byte, off int64) (n int, err error) {
	return 0, f.writeError("write")
}

func (f *File) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}

func (f *File) Truncate(size int64) error {
	return f.writeError("truncate")
}

// writeError reports syscall.EPERM for entries carrying the read-only attribute.
func (f *File) writeError(op string) error {
	if f.isReadOnly {
		return &os.PathError{Op: op, Path: f.path, Err: syscall.EPERM}
	}
	return &os.PathError{Op: op, Path: f.path, Err: checkpoint.New(ErrNotSupported, "volume is mounted without file write support")}
}

// Sync does nothing as every change is written through to the device.
func (f *File) Sync() error {
	return nil
}

func (f *File) Name() string {
	return f.stat.Name()
}

// Readdir reads the contents of a directory, without "." and "..".
// With count > 0 at most count entries are returned and io.EOF once all entries were read.
// With count <= 0 all remaining entries are returned.
// May return syscall.ENOTDIR if the current File is no directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if !f.isDirectory {
		return nil, &os.PathError{Op: "readdir", Path: f.path, Err: syscall.ENOTDIR}
	}

	content, err := f.fs.entries(f.firstCluster)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: f.path, Err: err}
	}

	if f.offset > len(content) {
		f.offset = len(content)
	}
	end := len(content)
	if count > 0 {
		if f.offset == end {
			return nil, io.EOF
		}
		if f.offset+count < end {
			end = f.offset + count
		}
	}

	result := make([]os.FileInfo, 0, end-f.offset)
	for i := f.offset; i < end; i++ {
		result = append(result, content[i].FileInfo())
	}
	f.offset = end
	return result, nil
}

func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}
	return names, nil
}

func (f *File) Stat() (os.FileInfo, error) {
	return f.stat, nil
}
