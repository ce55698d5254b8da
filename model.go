// File model contains the on-disk structures of a FAT32 volume together with their
// little endian encoding. Nothing in here relies on the in-memory layout of a struct.

package satafs

import (
	"encoding/binary"
)

// Directory entry attributes.
const (
	AttrReadOnly  = 0x01
	AttrHidden    = 0x02
	AttrSystem    = 0x04
	AttrVolumeID  = 0x08
	AttrDirectory = 0x10
	AttrArchive   = 0x20
	AttrLongName  = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID
)

const (
	// EntrySize is the size of every directory entry, short or long.
	EntrySize = 32

	entryEnd     = 0x00
	entryDeleted = 0xE5
	// entryKanji in the first name byte stands for a real 0xE5.
	entryKanji = 0x05

	// NTRes flags telling that the base name or extension are to be shown in lower case.
	ntLowerBase = 0x08
	ntLowerExt  = 0x10

	lfnLast      = 0x40
	lfnOrderMask = 0x1F
	lfnChars     = 13
	// maxLFNEntries fragments hold the 255 characters allowed in a long name.
	maxLFNEntries = 20
)

// Byte offsets inside the boot sector.
const (
	bsJmpBoot     = 0
	bsOEMName     = 3
	bpbBytsPerSec = 11
	bpbSecPerClus = 13
	bpbRsvdSecCnt = 14
	bpbNumFATs    = 16
	bpbRootEntCnt = 17
	bpbTotSec16   = 19
	bpbMedia      = 21
	bpbFATSz16    = 22
	bpbSecPerTrk  = 24
	bpbNumHeads   = 26
	bpbHiddSec    = 28
	bpbTotSec32   = 32
	bpbFATSz32    = 36
	bpbExtFlags   = 40
	bpbFSVer      = 42
	bpbRootClus   = 44
	bpbFSInfo     = 48
	bpbBkBootSec  = 50
	bsDrvNum      = 64
	bsBootSig     = 66
	bsVolID       = 67
	bsVolLab      = 71
	bsFilSysType  = 82
	bsSignature   = 510
)

// BPB is the FAT32 BIOS parameter block together with the extended boot record.
type BPB struct {
	JumpBoot            [3]byte
	OEMName             [8]byte
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	NumFATs             uint8
	RootEntryCount      uint16
	TotalSectors16      uint16
	Media               byte
	FATSize16           uint16
	SectorsPerTrack     uint16
	NumberOfHeads       uint16
	HiddenSectors       uint32
	TotalSectors32      uint32

	FATSize32        uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfo           uint16
	BackupBootSector uint16
	DriveNumber      byte
	BootSignature    byte
	VolumeID         uint32
	VolumeLabel      [11]byte
	FileSystemType   [8]byte
}

// DecodeBPB reads the parameter block from a boot sector.
func DecodeBPB(b []byte) BPB {
	var p BPB
	copy(p.JumpBoot[:], b[bsJmpBoot:])
	copy(p.OEMName[:], b[bsOEMName:])
	p.BytesPerSector = binary.LittleEndian.Uint16(b[bpbBytsPerSec:])
	p.SectorsPerCluster = b[bpbSecPerClus]
	p.ReservedSectorCount = binary.LittleEndian.Uint16(b[bpbRsvdSecCnt:])
	p.NumFATs = b[bpbNumFATs]
	p.RootEntryCount = binary.LittleEndian.Uint16(b[bpbRootEntCnt:])
	p.TotalSectors16 = binary.LittleEndian.Uint16(b[bpbTotSec16:])
	p.Media = b[bpbMedia]
	p.FATSize16 = binary.LittleEndian.Uint16(b[bpbFATSz16:])
	p.SectorsPerTrack = binary.LittleEndian.Uint16(b[bpbSecPerTrk:])
	p.NumberOfHeads = binary.LittleEndian.Uint16(b[bpbNumHeads:])
	p.HiddenSectors = binary.LittleEndian.Uint32(b[bpbHiddSec:])
	p.TotalSectors32 = binary.LittleEndian.Uint32(b[bpbTotSec32:])

	p.FATSize32 = binary.LittleEndian.Uint32(b[bpbFATSz32:])
	p.ExtFlags = binary.LittleEndian.Uint16(b[bpbExtFlags:])
	p.FSVersion = binary.LittleEndian.Uint16(b[bpbFSVer:])
	p.RootCluster = binary.LittleEndian.Uint32(b[bpbRootClus:])
	p.FSInfo = binary.LittleEndian.Uint16(b[bpbFSInfo:])
	p.BackupBootSector = binary.LittleEndian.Uint16(b[bpbBkBootSec:])
	p.DriveNumber = b[bsDrvNum]
	p.BootSignature = b[bsBootSig]
	p.VolumeID = binary.LittleEndian.Uint32(b[bsVolID:])
	copy(p.VolumeLabel[:], b[bsVolLab:])
	copy(p.FileSystemType[:], b[bsFilSysType:])
	return p
}

// Encode writes the parameter block into the boot sector b, including the 0x55AA signature.
func (p BPB) Encode(b []byte) {
	copy(b[bsJmpBoot:], p.JumpBoot[:])
	copy(b[bsOEMName:], p.OEMName[:])
	binary.LittleEndian.PutUint16(b[bpbBytsPerSec:], p.BytesPerSector)
	b[bpbSecPerClus] = p.SectorsPerCluster
	binary.LittleEndian.PutUint16(b[bpbRsvdSecCnt:], p.ReservedSectorCount)
	b[bpbNumFATs] = p.NumFATs
	binary.LittleEndian.PutUint16(b[bpbRootEntCnt:], p.RootEntryCount)
	binary.LittleEndian.PutUint16(b[bpbTotSec16:], p.TotalSectors16)
	b[bpbMedia] = p.Media
	binary.LittleEndian.PutUint16(b[bpbFATSz16:], p.FATSize16)
	binary.LittleEndian.PutUint16(b[bpbSecPerTrk:], p.SectorsPerTrack)
	binary.LittleEndian.PutUint16(b[bpbNumHeads:], p.NumberOfHeads)
	binary.LittleEndian.PutUint32(b[bpbHiddSec:], p.HiddenSectors)
	binary.LittleEndian.PutUint32(b[bpbTotSec32:], p.TotalSectors32)

	binary.LittleEndian.PutUint32(b[bpbFATSz32:], p.FATSize32)
	binary.LittleEndian.PutUint16(b[bpbExtFlags:], p.ExtFlags)
	binary.LittleEndian.PutUint16(b[bpbFSVer:], p.FSVersion)
	binary.LittleEndian.PutUint32(b[bpbRootClus:], p.RootCluster)
	binary.LittleEndian.PutUint16(b[bpbFSInfo:], p.FSInfo)
	binary.LittleEndian.PutUint16(b[bpbBkBootSec:], p.BackupBootSector)
	b[bsDrvNum] = p.DriveNumber
	b[bsBootSig] = p.BootSignature
	binary.LittleEndian.PutUint32(b[bsVolID:], p.VolumeID)
	copy(b[bsVolLab:], p.VolumeLabel[:])
	copy(b[bsFilSysType:], p.FileSystemType[:])
	b[bsSignature] = 0x55
	b[bsSignature+1] = 0xAA
}

// EntryHeader is a short (8.3) directory entry.
type EntryHeader struct {
	Name            [11]byte
	Attribute       byte
	NTReserved      byte
	CreateTimeTenth byte
	CreateTime      uint16
	CreateDate      uint16
	LastAccessDate  uint16
	FirstClusterHI  uint16
	WriteTime       uint16
	WriteDate       uint16
	FirstClusterLO  uint16
	FileSize        uint32
}

// DecodeEntryHeader reads a 32 byte short directory entry.
func DecodeEntryHeader(b []byte) EntryHeader {
	var e EntryHeader
	copy(e.Name[:], b[0:11])
	e.Attribute = b[11]
	e.NTReserved = b[12]
	e.CreateTimeTenth = b[13]
	e.CreateTime = binary.LittleEndian.Uint16(b[14:])
	e.CreateDate = binary.LittleEndian.Uint16(b[16:])
	e.LastAccessDate = binary.LittleEndian.Uint16(b[18:])
	e.FirstClusterHI = binary.LittleEndian.Uint16(b[20:])
	e.WriteTime = binary.LittleEndian.Uint16(b[22:])
	e.WriteDate = binary.LittleEndian.Uint16(b[24:])
	e.FirstClusterLO = binary.LittleEndian.Uint16(b[26:])
	e.FileSize = binary.LittleEndian.Uint32(b[28:])
	return e
}

// Encode writes the entry into the 32 byte slot b.
func (e EntryHeader) Encode(b []byte) {
	copy(b[0:11], e.Name[:])
	b[11] = e.Attribute
	b[12] = e.NTReserved
	b[13] = e.CreateTimeTenth
	binary.LittleEndian.PutUint16(b[14:], e.CreateTime)
	binary.LittleEndian.PutUint16(b[16:], e.CreateDate)
	binary.LittleEndian.PutUint16(b[18:], e.LastAccessDate)
	binary.LittleEndian.PutUint16(b[20:], e.FirstClusterHI)
	binary.LittleEndian.PutUint16(b[22:], e.WriteTime)
	binary.LittleEndian.PutUint16(b[24:], e.WriteDate)
	binary.LittleEndian.PutUint16(b[26:], e.FirstClusterLO)
	binary.LittleEndian.PutUint32(b[28:], e.FileSize)
}

// Cluster combines both halves of the first cluster number.
func (e EntryHeader) Cluster() uint32 {
	return uint32(e.FirstClusterHI)<<16 | uint32(e.FirstClusterLO)
}

// SetCluster splits cluster into the two halves stored on disk.
func (e *EntryHeader) SetCluster(cluster uint32) {
	e.FirstClusterHI = uint16(cluster >> 16)
	e.FirstClusterLO = uint16(cluster)
}

func (e EntryHeader) IsDir() bool {
	return e.Attribute&AttrDirectory != 0
}

func (e EntryHeader) IsVolumeLabel() bool {
	return e.Attribute&(AttrVolumeID|AttrDirectory) == AttrVolumeID
}

// isLongName reports whether the raw slot b is a long file name fragment.
func isLongName(b []byte) bool {
	return b[11]&AttrLongName == AttrLongName
}

// LongFilenameEntry is one fragment of a long file name.
type LongFilenameEntry struct {
	Sequence     byte
	First        [5]uint16
	Attribute    byte
	EntryType    byte
	Checksum     byte
	Second       [6]uint16
	FirstCluster uint16
	Third        [2]uint16
}

// DecodeLongFilenameEntry reads a 32 byte long file name fragment.
func DecodeLongFilenameEntry(b []byte) LongFilenameEntry {
	var l LongFilenameEntry
	l.Sequence = b[0]
	for i := range l.First {
		l.First[i] = binary.LittleEndian.Uint16(b[1+2*i:])
	}
	l.Attribute = b[11]
	l.EntryType = b[12]
	l.Checksum = b[13]
	for i := range l.Second {
		l.Second[i] = binary.LittleEndian.Uint16(b[14+2*i:])
	}
	l.FirstCluster = binary.LittleEndian.Uint16(b[26:])
	for i := range l.Third {
		l.Third[i] = binary.LittleEndian.Uint16(b[28+2*i:])
	}
	return l
}

// Encode writes the fragment into the 32 byte slot b.
func (l LongFilenameEntry) Encode(b []byte) {
	b[0] = l.Sequence
	for i, u := range l.First {
		binary.LittleEndian.PutUint16(b[1+2*i:], u)
	}
	b[11] = l.Attribute
	b[12] = l.EntryType
	b[13] = l.Checksum
	for i, u := range l.Second {
		binary.LittleEndian.PutUint16(b[14+2*i:], u)
	}
	binary.LittleEndian.PutUint16(b[26:], l.FirstCluster)
	for i, u := range l.Third {
		binary.LittleEndian.PutUint16(b[28+2*i:], u)
	}
}

// Units returns the 13 UTF-16 code units of the fragment in name order.
func (l LongFilenameEntry) Units() [lfnChars]uint16 {
	var u [lfnChars]uint16
	copy(u[0:5], l.First[:])
	copy(u[5:11], l.Second[:])
	copy(u[11:13], l.Third[:])
	return u
}

// SetUnits distributes 13 UTF-16 code units over the three name groups.
func (l *LongFilenameEntry) SetUnits(u [lfnChars]uint16) {
	copy(l.First[:], u[0:5])
	copy(l.Second[:], u[5:11])
	copy(l.Third[:], u[11:13])
}

// ExtendedEntryHeader is a short entry together with the long name reconstructed
// from the fragments preceding it.
type ExtendedEntryHeader struct {
	EntryHeader
	ExtendedName string

	// slots lists where the fragments and the short entry live on disk, short entry last.
	slots []slot
}

// slot locates one 32 byte directory entry: a volume relative sector and an index inside it.
type slot struct {
	sector uint64
	index  int
}
