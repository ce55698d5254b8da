package satafs

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestExtendedEntryHeader_FileInfo(t *testing.T) {
	h := &ExtendedEntryHeader{
		EntryHeader: EntryHeader{
			Name:            shortRaw("HELLO   TXT"),
			Attribute:       AttrDirectory,
			CreateTimeTenth: 1,
			CreateTime:      2,
			CreateDate:      3,
			LastAccessDate:  4,
			FirstClusterHI:  5,
			WriteTime:       6,
			WriteDate:       7,
			FirstClusterLO:  8,
			FileSize:        9,
		},
		ExtendedName: "huhu",
	}
	want := entryHeaderFileInfo{entry: *h}
	if got := h.FileInfo(); !reflect.DeepEqual(got, want) {
		t.Errorf("ExtendedEntryHeader.FileInfo() = %v, want %v", got, want)
	}
	if got := h.FileInfo().Sys(); !reflect.DeepEqual(got, *h) {
		t.Errorf("FileInfo().Sys() = %v, want the entry", got)
	}
}

func Test_entryHeaderFileInfo_Name(t *testing.T) {
	tests := []struct {
		name  string
		entry ExtendedEntryHeader
		want  string
	}{
		{
			name:  "only 8.3 filename",
			entry: ExtendedEntryHeader{EntryHeader: EntryHeader{Name: shortRaw("HELLO   TXT")}},
			want:  "HELLO.TXT",
		},
		{
			name:  "only 8.3 short extension",
			entry: ExtendedEntryHeader{EntryHeader: EntryHeader{Name: shortRaw("HELLO   C  ")}},
			want:  "HELLO.C",
		},
		{
			name:  "only 8.3 no extension",
			entry: ExtendedEntryHeader{EntryHeader: EntryHeader{Name: shortRaw("HELLO      ")}},
			want:  "HELLO",
		},
		{
			name:  "8.3 in lower case",
			entry: ExtendedEntryHeader{EntryHeader: EntryHeader{Name: shortRaw("HELLO      "), NTReserved: ntLowerBase}},
			want:  "hello",
		},
		{
			name:  "with extended filename",
			entry: ExtendedEntryHeader{EntryHeader: EntryHeader{Name: shortRaw("HELLOW~1TXT")}, ExtendedName: "Hello World.txt"},
			want:  "Hello World.txt",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.FileInfo().Name(); got != tt.want {
				t.Errorf("entryHeaderFileInfo.Name() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_entryHeaderFileInfo_Size(t *testing.T) {
	e := entryHeaderFileInfo{entry: ExtendedEntryHeader{EntryHeader: EntryHeader{FileSize: 1234}}}
	if got := e.Size(); got != 1234 {
		t.Errorf("entryHeaderFileInfo.Size() = %v, want 1234", got)
	}
}

func Test_entryHeaderFileInfo_Mode(t *testing.T) {
	tests := []struct {
		name      string
		attribute byte
		want      os.FileMode
	}{
		{name: "No directory", attribute: AttrArchive, want: 0666},
		{name: "Directory", attribute: AttrDirectory, want: os.ModeDir | 0777},
		{name: "read only file", attribute: AttrReadOnly, want: 0444},
		{name: "read only directory", attribute: AttrDirectory | AttrReadOnly, want: os.ModeDir | 0555},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entryHeaderFileInfo{entry: ExtendedEntryHeader{EntryHeader: EntryHeader{Attribute: tt.attribute}}}
			if got := e.Mode(); got != tt.want {
				t.Errorf("entryHeaderFileInfo.Mode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_entryHeaderFileInfo_ModTime(t *testing.T) {
	const may17 = 40<<9 | 5<<5 | 17
	tests := []struct {
		name      string
		writeDate uint16
		writeTime uint16
		want      time.Time
	}{
		{
			name:      "a normal write time and date",
			writeDate: may17,
			writeTime: 13<<11 | 45<<5 | 15,
			want:      time.Date(2020, 5, 17, 13, 45, 30, 0, time.UTC),
		},
		{
			name: "a zero write time and date results in time.Time.IsZero() == true",
			want: time.Time{},
		},
		{
			name:      "a zero write time results in 00:00:00",
			writeDate: may17,
			want:      time.Date(2020, 5, 17, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "a zero write day is invalid",
			writeDate: 40<<9 | 5<<5,
			writeTime: 13<<11 | 45<<5 | 15,
			want:      time.Time{},
		},
		{
			name:      "a zero write month is invalid",
			writeDate: 40<<9 | 17,
			want:      time.Time{},
		},
		{
			name:      "a month > 12 increases the year",
			writeDate: 40<<9 | 13<<5 | 1,
			want:      time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "a second > 59 increases the minutes",
			writeDate: may17,
			writeTime: 30,
			want:      time.Date(2020, 5, 17, 0, 1, 0, 0, time.UTC),
		},
		{
			name:      "a minute > 59 increases the hours",
			writeDate: may17,
			writeTime: 60 << 5,
			want:      time.Date(2020, 5, 17, 1, 0, 0, 0, time.UTC),
		},
		{
			name:      "a time > 23:59:59 gets limited to 23:59:59",
			writeDate: may17,
			writeTime: 24 << 11,
			want:      time.Date(2020, 5, 17, 23, 59, 59, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entryHeaderFileInfo{entry: ExtendedEntryHeader{EntryHeader: EntryHeader{WriteDate: tt.writeDate, WriteTime: tt.writeTime}}}
			if got := e.ModTime(); !got.Equal(tt.want) {
				t.Errorf("entryHeaderFileInfo.ModTime() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_entryHeaderFileInfo_IsDir(t *testing.T) {
	tests := []struct {
		name      string
		attribute byte
		want      bool
	}{
		{name: "No directory", attribute: AttrArchive, want: false},
		{name: "Directory", attribute: AttrDirectory, want: true},
		{name: "hidden system directory", attribute: AttrDirectory | AttrHidden | AttrSystem, want: true},
		{name: "volume label", attribute: AttrVolumeID, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entryHeaderFileInfo{entry: ExtendedEntryHeader{EntryHeader: EntryHeader{Attribute: tt.attribute}}}
			if got := e.IsDir(); got != tt.want {
				t.Errorf("entryHeaderFileInfo.IsDir() = %v, want %v", got, tt.want)
			}
		})
	}
}
