package satafs

import (
	"os"
	"time"
)

// FileInfo describes the entry as os.FileInfo. Sys returns the ExtendedEntryHeader.
func (h *ExtendedEntryHeader) FileInfo() os.FileInfo {
	return entryHeaderFileInfo{*h}
}

type entryHeaderFileInfo struct {
	entry ExtendedEntryHeader
}

func (e entryHeaderFileInfo) Name() string {
	return e.entry.DisplayName()
}

func (e entryHeaderFileInfo) Size() int64 {
	return int64(e.entry.FileSize)
}

func (e entryHeaderFileInfo) Mode() os.FileMode {
	mode := os.FileMode(0666)
	if e.IsDir() {
		mode = os.ModeDir | 0777
	}
	if e.entry.Attribute&AttrReadOnly != 0 {
		mode &^= 0222
	}
	return mode
}

// ModTime returns the last write time, or time.Time{} if the stored date is invalid.
func (e entryHeaderFileInfo) ModTime() time.Time {
	return timestamp{date: e.entry.WriteDate, time: e.entry.WriteTime}.Time()
}

func (e entryHeaderFileInfo) IsDir() bool {
	return e.entry.IsDir()
}

func (e entryHeaderFileInfo) Sys() interface{} {
	return e.entry
}
