package satafs

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/rekby/mbr"
	"github.com/tinykern/satafs/blockdev"
	"github.com/tinykern/satafs/checkpoint"
)

// Defaults used by Format for zero FormatOptions fields.
const (
	DefaultReservedSectors = 32
	DefaultNumFATs         = 2
	DefaultPartitionStart  = 2048
	DefaultLabel           = "NO NAME"

	partitionTypeFAT32LBA = 0x0C
	fsInfoSector          = 1
	backupBootSector      = 6
	rootCluster           = 2
	media                 = 0xF8
	zeroChunk             = 64
)

// FormatOptions describes the volume Format writes.
type FormatOptions struct {
	// TotalSectors is the size of the disk area to use, including the partition table if any.
	TotalSectors uint64
	// SectorsPerCluster defaults to 1 and has to be a power of two.
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	Label             string
	VolumeID          uint32

	// Partitioned puts an MBR with a single FAT32 partition in front of the volume.
	Partitioned bool
	// PartitionStart is the LBA of that partition, DefaultPartitionStart if 0.
	PartitionStart uint32
}

func (o *FormatOptions) defaults() {
	if o.SectorsPerCluster == 0 {
		o.SectorsPerCluster = 1
	}
	if o.ReservedSectors == 0 {
		o.ReservedSectors = DefaultReservedSectors
	}
	if o.NumFATs == 0 {
		o.NumFATs = DefaultNumFATs
	}
	if o.Label == "" {
		o.Label = DefaultLabel
	}
	if o.Partitioned && o.PartitionStart == 0 {
		o.PartitionStart = DefaultPartitionStart
	}
}

// fatSize returns the smallest FAT size in sectors covering all clusters of a volume with the given number of sectors.
func fatSize(sectors uint64, reserved uint16, numFATs, spc uint8) uint32 {
	size := uint64(1)
	for {
		data := sectors - uint64(reserved) - uint64(numFATs)*size
		clusters := data / uint64(spc)
		need := ((clusters+2)*4 + SectorSize - 1) / SectorSize
		if need <= size {
			return uint32(size)
		}
		size = need
	}
}

// Format writes an empty FAT32 volume to the disk on port. Existing data is lost.
func Format(dev blockdev.Device, port int, opts FormatOptions) error {
	opts.defaults()
	if opts.SectorsPerCluster&(opts.SectorsPerCluster-1) != 0 {
		return checkpoint.New(ErrInvalidVolume, "%d sectors per cluster", opts.SectorsPerCluster)
	}

	var start uint64
	if opts.Partitioned {
		start = uint64(opts.PartitionStart)
	}
	if opts.TotalSectors <= start {
		return checkpoint.New(ErrInvalidVolume, "%d sectors leave no room for a partition at %d", opts.TotalSectors, start)
	}
	sectors := opts.TotalSectors - start
	if sectors > 0xFFFFFFFF {
		return checkpoint.New(ErrInvalidVolume, "%d sectors do not fit a FAT32 volume", sectors)
	}
	// Room for the reserved area, the FATs and at least the root and one more cluster.
	if sectors < uint64(opts.ReservedSectors)+uint64(opts.NumFATs)+2*uint64(opts.SectorsPerCluster) {
		return checkpoint.New(ErrInvalidVolume, "%d sectors are too small for a volume", sectors)
	}

	fat := fatSize(sectors, opts.ReservedSectors, opts.NumFATs, opts.SectorsPerCluster)
	bpb := BPB{
		JumpBoot:            [3]byte{0xEB, 0x58, 0x90},
		BytesPerSector:      SectorSize,
		SectorsPerCluster:   opts.SectorsPerCluster,
		ReservedSectorCount: opts.ReservedSectors,
		NumFATs:             opts.NumFATs,
		Media:               media,
		SectorsPerTrack:     63,
		NumberOfHeads:       255,
		HiddenSectors:       uint32(start),
		TotalSectors32:      uint32(sectors),
		FATSize32:           fat,
		RootCluster:         rootCluster,
		FSInfo:              fsInfoSector,
		BackupBootSector:    backupBootSector,
		DriveNumber:         0x80,
		BootSignature:       0x29,
		VolumeID:            opts.VolumeID,
	}
	copy(bpb.OEMName[:], "SATAFS  ")
	copy(bpb.VolumeLabel[:], padded(opts.Label, 11))
	copy(bpb.FileSystemType[:], "FAT32   ")

	w := formatWriter{dev: dev, port: port, start: start}

	// Reserved area: boot sector and FSInfo, each followed by their backup.
	w.zero(0, uint64(opts.ReservedSectors))
	boot := make([]byte, SectorSize)
	bpb.Encode(boot)
	w.write(0, boot)
	w.write(backupBootSector, boot)
	info := fsInfo()
	w.write(fsInfoSector, info)
	w.write(backupBootSector+fsInfoSector, info)

	// FATs with the media descriptor, the reserved entry and the root directory's chain.
	first := make([]byte, SectorSize)
	binary.LittleEndian.PutUint32(first[0:], 0x0FFFFF00|media)
	binary.LittleEndian.PutUint32(first[4:], EndOfChain)
	binary.LittleEndian.PutUint32(first[8:], EndOfChain)
	for i := uint64(0); i < uint64(opts.NumFATs); i++ {
		base := uint64(opts.ReservedSectors) + i*uint64(fat)
		w.zero(base, uint64(fat))
		w.write(base, first)
	}

	root := uint64(opts.ReservedSectors) + uint64(opts.NumFATs)*uint64(fat)
	w.zero(root, uint64(opts.SectorsPerCluster))

	if opts.Partitioned {
		w.partitionTable(sectors)
	}
	return w.err
}

func padded(s string, n int) string {
	s = strings.ToUpper(s)
	if len(s) > n {
		s = s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}

// fsInfo returns an FSInfo sector with unknown free count and next free hints.
func fsInfo() []byte {
	b := make([]byte, SectorSize)
	binary.LittleEndian.PutUint32(b[0:], 0x41615252)
	binary.LittleEndian.PutUint32(b[484:], 0x61417272)
	binary.LittleEndian.PutUint32(b[488:], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(b[492:], 0xFFFFFFFF)
	binary.LittleEndian.PutUint32(b[508:], 0xAA550000)
	return b
}

// formatWriter writes volume relative sectors and keeps the first error.
type formatWriter struct {
	dev   blockdev.Device
	port  int
	start uint64
	err   error
}

func (w *formatWriter) write(sector uint64, buf []byte) {
	if w.err != nil {
		return
	}
	count := uint32(len(buf) / SectorSize)
	w.err = checkpoint.Wrapf(w.dev.WriteSectors(w.port, w.start+sector, count, buf), nil, "formatting sector %d", sector)
}

func (w *formatWriter) zero(sector, count uint64) {
	buf := make([]byte, zeroChunk*SectorSize)
	for count > 0 {
		n := count
		if n > zeroChunk {
			n = zeroChunk
		}
		w.write(sector, buf[:n*SectorSize])
		sector += n
		count -= n
	}
}

// partitionTable writes an MBR with a single FAT32 (LBA) partition covering sectors sectors.
func (w *formatWriter) partitionTable(sectors uint64) {
	b := make([]byte, SectorSize)
	entry := b[446:462]
	copy(entry[1:4], []byte{0xFE, 0xFF, 0xFF})
	entry[4] = partitionTypeFAT32LBA
	copy(entry[5:8], []byte{0xFE, 0xFF, 0xFF})
	binary.LittleEndian.PutUint32(entry[8:], uint32(w.start))
	binary.LittleEndian.PutUint32(entry[12:], uint32(sectors))
	b[510] = 0x55
	b[511] = 0xAA

	if _, err := mbr.Read(bytes.NewReader(b)); err != nil && w.err == nil {
		w.err = checkpoint.Wrapf(err, ErrInvalidVolume, "generated partition table")
		return
	}
	w.start = 0
	w.write(0, b)
}
