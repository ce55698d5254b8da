package satafs

import (
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"reflect"
	"syscall"
	"testing"

	"github.com/spf13/afero"
)

// aferoTree builds /a/b/c and /a/d and /Long Name on a fresh volume.
func aferoTree(t *testing.T) *Fs {
	t.Helper()
	fs, _ := testingMount(t, FormatOptions{})
	if err := fs.MkdirAll("/a/b/c", 0755); err != nil {
		t.Fatalf("Fs.MkdirAll() error = %v", err)
	}
	if err := fs.Mkdir("/a/d", 0755); err != nil {
		t.Fatalf("Fs.Mkdir() error = %v", err)
	}
	if err := fs.Mkdir("/Long Name", 0755); err != nil {
		t.Fatalf("Fs.Mkdir() error = %v", err)
	}
	return fs
}

func TestFs_Afero_Walk(t *testing.T) {
	fs := aferoTree(t)

	var got []string
	err := afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			t.Errorf("%s is no directory", path)
		}
		got = append(got, filepath.ToSlash(path))
		return nil
	})
	if err != nil {
		t.Fatalf("afero.Walk() error = %v", err)
	}
	want := []string{"/", "/Long Name", "/a", "/a/b", "/a/b/c", "/a/d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("afero.Walk() visited %v, want %v", got, want)
	}
}

func TestFs_Afero_ReadDir(t *testing.T) {
	fs := aferoTree(t)

	infos, err := afero.ReadDir(fs, "/a")
	if err != nil {
		t.Fatalf("afero.ReadDir() error = %v", err)
	}
	var got []string
	for _, info := range infos {
		got = append(got, info.Name())
	}
	if !reflect.DeepEqual(got, []string{"b", "d"}) {
		t.Errorf("afero.ReadDir() = %v, want [b d]", got)
	}

	exists, err := afero.DirExists(fs, "/a/b/c")
	if err != nil || !exists {
		t.Errorf("afero.DirExists() = %v, %v, want true", exists, err)
	}
}

func TestFs_Stat(t *testing.T) {
	fs := aferoTree(t)

	tests := []struct {
		name     string
		path     string
		wantName string
		wantErr  error
	}{
		{name: "root", path: "/", wantName: "/"},
		{name: "nested", path: "/a/b", wantName: "b"},
		{name: "backslashes", path: `\a\b\c`, wantName: "c"},
		{name: "long name", path: "/Long Name", wantName: "Long Name"},
		{name: "missing", path: "/a/x", wantErr: os.ErrNotExist},
		{name: "missing parent", path: "/x/b", wantErr: os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := fs.Stat(tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Fs.Stat() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Fs.Stat() error = %v", err)
			}
			if info.Name() != tt.wantName || !info.IsDir() || info.Mode() != os.ModeDir|0777 {
				t.Errorf("Fs.Stat() = %v %v, want directory %v", info.Name(), info.Mode(), tt.wantName)
			}
		})
	}
}

func TestFs_Open(t *testing.T) {
	fs := aferoTree(t)

	f, err := fs.Open("/a")
	if err != nil {
		t.Fatalf("Fs.Open() error = %v", err)
	}
	defer f.Close()
	if f.Name() != "a" {
		t.Errorf("File.Name() = %v, want a", f.Name())
	}
	if _, err := f.Read(make([]byte, 1)); !errors.Is(err, syscall.EISDIR) {
		t.Errorf("File.Read() error = %v, want EISDIR", err)
	}
	names, err := f.Readdirnames(0)
	if err != nil || len(names) != 2 {
		t.Errorf("File.Readdirnames() = %v, %v", names, err)
	}

	if _, err := fs.Open("/missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Fs.Open() of a missing path error = %v, want ErrNotExist", err)
	}
	if f, err := fs.OpenFile("/a", os.O_RDONLY, 0); err != nil {
		t.Errorf("Fs.OpenFile() read only error = %v", err)
	} else {
		f.Close()
	}
	for _, flag := range []int{os.O_WRONLY, os.O_RDWR, os.O_CREATE, os.O_RDONLY | os.O_TRUNC, os.O_APPEND} {
		if _, err := fs.OpenFile("/a", flag, 0); !errors.Is(err, ErrNotSupported) {
			t.Errorf("Fs.OpenFile() with flags %x error = %v, want ErrNotSupported", flag, err)
		}
	}
}

func TestFs_MkdirAll(t *testing.T) {
	fs := aferoTree(t)

	if err := fs.MkdirAll("/a/b/c", 0755); err != nil {
		t.Errorf("Fs.MkdirAll() of an existing tree error = %v", err)
	}
	if err := fs.MkdirAll("/a/b/e/f", 0755); err != nil {
		t.Errorf("Fs.MkdirAll() error = %v", err)
	}
	if !fs.PathExists("/a/b/e/f") {
		t.Errorf("Fs.MkdirAll() did not create /a/b/e/f")
	}
	if err := fs.MkdirAll("/", 0755); err != nil {
		t.Errorf("Fs.MkdirAll(/) error = %v", err)
	}
	if err := fs.Mkdir("/a", 0755); !errors.Is(err, os.ErrExist) {
		t.Errorf("Fs.Mkdir() of an existing directory error = %v, want ErrExist", err)
	}
	if err := fs.Mkdir("/a/bad?name", 0755); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Fs.Mkdir() with an invalid name error = %v, want ErrInvalidName", err)
	}
}

func TestFs_MkdirAll_ThroughFile(t *testing.T) {
	fs, _ := testingMount(t, FormatOptions{})
	writeRoot(t, fs, shortSlot("FILE    TXT", AttrArchive))

	if err := fs.MkdirAll("/FILE.TXT/sub", 0755); !errors.Is(err, ErrNotDirectory) {
		t.Errorf("Fs.MkdirAll() through a file error = %v, want ErrNotDirectory", err)
	}
	if err := fs.Remove("/FILE.TXT"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Fs.Remove() of a file error = %v, want ErrNotSupported", err)
	}
	if err := fs.RemoveAll("/"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Fs.RemoveAll() of a tree with a file error = %v, want ErrNotSupported", err)
	}
}

func TestFs_Remove(t *testing.T) {
	fs := aferoTree(t)

	if err := fs.Remove("/a"); !errors.Is(err, ErrDirectoryNotEmpty) {
		t.Errorf("Fs.Remove() of a full directory error = %v, want ErrDirectoryNotEmpty", err)
	}
	if err := fs.Remove("/a/d"); err != nil {
		t.Errorf("Fs.Remove() error = %v", err)
	}
	if fs.PathExists("/a/d") {
		t.Errorf("/a/d still exists")
	}
	if err := fs.Remove("/a/d"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Fs.Remove() of a missing directory error = %v, want ErrNotExist", err)
	}
}

func TestFs_RemoveAll(t *testing.T) {
	fs := aferoTree(t)

	if err := fs.RemoveAll("/a"); err != nil {
		t.Fatalf("Fs.RemoveAll() error = %v", err)
	}
	if fs.PathExists("/a") {
		t.Errorf("/a still exists")
	}
	if got := names(t, fs, "/"); !equalNames(got, []string{"Long Name"}) {
		t.Errorf("root after Fs.RemoveAll() = %v, want [Long Name]", got)
	}
	if err := fs.RemoveAll("/a"); err != nil {
		t.Errorf("Fs.RemoveAll() of a missing path error = %v", err)
	}

	// /a, /a/b, /a/b/c and /a/d used clusters 3 to 6, /Long Name uses 7.
	for cluster := uint32(3); cluster <= 7; cluster++ {
		entry, err := fs.FATEntry(cluster)
		if err != nil {
			t.Fatal(err)
		}
		if free := entry == 0; free != (cluster != 7) {
			t.Errorf("FAT entry of cluster %d = 0x%x after Fs.RemoveAll()", cluster, entry)
		}
	}
}

func TestFs_NotSupported(t *testing.T) {
	fs := aferoTree(t)

	_, createErr := fs.Create("/a/file")
	errs := map[string]error{
		"Create":  createErr,
		"Rename":  fs.Rename("/a", "/b"),
		"Chmod":   fs.Chmod("/a", 0700),
		"Chown":   fs.Chown("/a", 1, 1),
		"Chtimes": fs.Chtimes("/a", testTime, testTime),
	}
	for op, err := range errs {
		if !errors.Is(err, ErrNotSupported) {
			t.Errorf("Fs.%s() error = %v, want ErrNotSupported", op, err)
		}
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			t.Errorf("Fs.%s() error = %v, want an os.PathError", op, err)
		}
	}
	if fs.Name() != "satafs" {
		t.Errorf("Fs.Name() = %v", fs.Name())
	}
}

func TestGoFs(t *testing.T) {
	fs := aferoTree(t)
	g := GoFs{fs}

	var got []string
	err := iofs.WalkDir(g, ".", func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || d.Type() != iofs.ModeDir {
			t.Errorf("%s is no directory", path)
		}
		got = append(got, path)
		return nil
	})
	if err != nil {
		t.Fatalf("fs.WalkDir() error = %v", err)
	}
	want := []string{".", "Long Name", "a", "a/b", "a/b/c", "a/d"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fs.WalkDir() visited %v, want %v", got, want)
	}

	entries, err := iofs.ReadDir(g, "a/b")
	if err != nil {
		t.Fatalf("fs.ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "c" {
		t.Errorf("fs.ReadDir() = %v, want [c]", entries)
	}
	if info, err := entries[0].Info(); err != nil || !info.IsDir() {
		t.Errorf("DirEntry.Info() = %v, %v", info, err)
	}

	if info, err := iofs.Stat(g, "."); err != nil || !info.IsDir() {
		t.Errorf("fs.Stat(.) = %v, %v", info, err)
	}
	for _, name := range []string{"/a", "a/", "a/../a", ""} {
		if _, err := g.Open(name); !errors.Is(err, iofs.ErrInvalid) {
			t.Errorf("GoFs.Open(%q) error = %v, want ErrInvalid", name, err)
		}
	}
	if _, err := g.Open("a/x"); !errors.Is(err, iofs.ErrNotExist) {
		t.Errorf("GoFs.Open() of a missing path error = %v, want ErrNotExist", err)
	}
}

func TestGoFs_ReadDir(t *testing.T) {
	var g iofs.ReadDirFS = GoFs{aferoTree(t)}

	tests := []struct {
		name    string
		dir     string
		want    []string
		wantErr error
	}{
		{name: "root", dir: ".", want: []string{"Long Name", "a"}},
		{name: "subdirectory", dir: "a", want: []string{"b", "d"}},
		{name: "empty", dir: "a/d", want: []string{}},
		{name: "missing", dir: "a/x", wantErr: iofs.ErrNotExist},
		{name: "invalid path", dir: "/a", wantErr: iofs.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := g.ReadDir(tt.dir)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("GoFs.ReadDir() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GoFs.ReadDir() error = %v", err)
			}
			got := make([]string, len(entries))
			for i, e := range entries {
				got[i] = e.Name()
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("GoFs.ReadDir() = %v, want %v", got, tt.want)
			}
		})
	}
}
