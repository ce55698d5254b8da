// Package satafs implements a FAT32 directory engine on top of a sector addressed
// block device, such as the AHCI driver in package ahci.
//
// It understands the volume geometry, walks cluster chains and directories, resolves
// paths (including long file names) and creates or deletes directories.
// Regular file content is not handled. Fs also implements afero.Fs so a volume can be
// browsed with the afero helpers.
package satafs

import (
	"bytes"
	"time"

	"github.com/rekby/mbr"
	"github.com/sirupsen/logrus"
	"github.com/tinykern/satafs/blockdev"
	"github.com/tinykern/satafs/checkpoint"
)

// SectorSize is the only supported number of bytes per sector.
const SectorSize = blockdev.SectorSize

// Partitioning selects how Mount locates the volume on the disk.
type Partitioning int

const (
	// PartitionAuto uses sector 0 as volume boot sector if it looks like one,
	// otherwise the first partition of the MBR.
	PartitionAuto Partitioning = iota
	// PartitionNone always uses sector 0 as volume boot sector.
	PartitionNone
	// PartitionFirst always reads sector 0 as MBR and mounts its first partition.
	PartitionFirst
)

// Volume describes the geometry of a mounted FAT32 volume. Sector numbers are
// relative to the start of the volume, PartitionStart is its absolute LBA.
type Volume struct {
	BytesPerSector      uint16
	SectorsPerCluster   uint8
	ReservedSectorCount uint16
	NumFATs             uint8
	FATSize32           uint32
	RootCluster         uint32
	TotalSectors        uint32
	Label               string
	PartitionStart      uint64
}

// FATStartSector is the first sector of the first FAT.
func (v Volume) FATStartSector() uint64 {
	return uint64(v.ReservedSectorCount)
}

// FirstDataSector is the first sector of cluster 2.
func (v Volume) FirstDataSector() uint64 {
	return uint64(v.ReservedSectorCount) + uint64(v.NumFATs)*uint64(v.FATSize32)
}

// ClusterToSector returns the first sector of cluster. Clusters below 2 do not exist,
// callers have to reject them.
func (v Volume) ClusterToSector(cluster uint32) uint64 {
	return v.FirstDataSector() + uint64(cluster-2)*uint64(v.SectorsPerCluster)
}

// ClusterCount is the number of data clusters of the volume.
func (v Volume) ClusterCount() uint32 {
	data := uint64(v.TotalSectors)
	if data <= v.FirstDataSector() {
		return 0
	}
	return uint32((data - v.FirstDataSector()) / uint64(v.SectorsPerCluster))
}

// MaxCluster is the highest cluster number that is both covered by the FAT and backed by data sectors.
func (v Volume) MaxCluster() uint32 {
	max := uint64(v.FATSize32)*SectorSize/4 - 1
	if clusters := uint64(v.ClusterCount()) + 1; clusters < max {
		max = clusters
	}
	return uint32(max)
}

func (v Volume) validCluster(cluster uint32) bool {
	return cluster >= 2 && cluster <= v.MaxCluster()
}

// Fs is a mounted FAT32 volume. It is not safe for concurrent use.
type Fs struct {
	dev  blockdev.Device
	port int
	vol  Volume

	partitioning Partitioning
	log          logrus.FieldLogger
	now          func() time.Time
}

// Option configures Mount.
type Option func(*Fs)

// WithPartitioning sets how the volume is located, PartitionAuto by default.
func WithPartitioning(p Partitioning) Option {
	return func(fs *Fs) { fs.partitioning = p }
}

// WithLogger sets the logger, the logrus standard logger by default.
func WithLogger(log logrus.FieldLogger) Option {
	return func(fs *Fs) { fs.log = log }
}

// WithClock sets the clock used for directory timestamps.
func WithClock(now func() time.Time) Option {
	return func(fs *Fs) { fs.now = now }
}

// Mount reads the boot sector of the disk on port and returns the volume on it.
func Mount(dev blockdev.Device, port int, opts ...Option) (*Fs, error) {
	fs := &Fs{
		dev:  dev,
		port: port,
		log:  logrus.StandardLogger(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(fs)
	}

	sector := make([]byte, SectorSize)
	if err := dev.ReadSectors(port, 0, 1, sector); err != nil {
		return nil, checkpoint.Wrapf(err, nil, "reading sector 0 of port %d", port)
	}

	var start uint64
	switch fs.partitioning {
	case PartitionNone:
	case PartitionFirst:
		var err error
		if start, err = firstPartition(sector); err != nil {
			return nil, err
		}
	default:
		if !looksLikeBootSector(sector) {
			var err error
			if start, err = firstPartition(sector); err != nil {
				return nil, err
			}
		}
	}

	if start != 0 {
		if err := dev.ReadSectors(port, start, 1, sector); err != nil {
			return nil, checkpoint.Wrapf(err, nil, "reading volume boot sector at lba %d", start)
		}
	}

	vol, err := volumeFrom(DecodeBPB(sector), start)
	if err != nil {
		return nil, err
	}
	fs.vol = vol

	fs.log.WithFields(logrus.Fields{
		"port":      port,
		"start":     start,
		"label":     vol.Label,
		"cluster":   int(vol.SectorsPerCluster) * SectorSize,
		"clusters":  vol.ClusterCount(),
		"root":      vol.RootCluster,
		"fatSize":   vol.FATSize32,
		"fatCopies": vol.NumFATs,
	}).Debug("mounted FAT32 volume")
	return fs, nil
}

// looksLikeBootSector checks the jump instruction and the parts of the BPB that an MBR
// would not plausibly contain.
func looksLikeBootSector(b []byte) bool {
	if !(b[0] == 0xEB && b[2] == 0x90) && b[0] != 0xE9 {
		return false
	}
	p := DecodeBPB(b)
	switch p.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return false
	}
	spc := p.SectorsPerCluster
	return spc != 0 && spc&(spc-1) == 0 &&
		p.ReservedSectorCount != 0 &&
		p.NumFATs != 0 &&
		p.FATSize16 == 0 && p.FATSize32 != 0
}

func firstPartition(sector []byte) (uint64, error) {
	table, err := mbr.Read(bytes.NewReader(sector))
	if err != nil {
		return 0, checkpoint.Wrapf(err, ErrInvalidVolume, "no FAT32 boot sector and no partition table")
	}
	for _, p := range table.GetAllPartitions() {
		if !p.IsEmpty() {
			return uint64(p.GetLBAStart()), nil
		}
	}
	return 0, checkpoint.New(ErrInvalidVolume, "partition table is empty")
}

func volumeFrom(p BPB, start uint64) (Volume, error) {
	if p.BytesPerSector != SectorSize {
		return Volume{}, checkpoint.New(ErrInvalidVolume, "%d bytes per sector", p.BytesPerSector)
	}
	if p.SectorsPerCluster == 0 || p.SectorsPerCluster&(p.SectorsPerCluster-1) != 0 {
		return Volume{}, checkpoint.New(ErrInvalidVolume, "%d sectors per cluster", p.SectorsPerCluster)
	}
	if p.ReservedSectorCount == 0 {
		return Volume{}, checkpoint.New(ErrInvalidVolume, "no reserved sectors")
	}
	if p.NumFATs == 0 {
		return Volume{}, checkpoint.New(ErrInvalidVolume, "no FAT")
	}
	if p.FATSize16 != 0 || p.FATSize32 == 0 {
		return Volume{}, checkpoint.New(ErrInvalidVolume, "FAT12 or FAT16 volume")
	}
	if p.RootCluster < 2 {
		return Volume{}, checkpoint.New(ErrInvalidVolume, "root cluster %d", p.RootCluster)
	}

	total := p.TotalSectors32
	if total == 0 {
		total = uint32(p.TotalSectors16)
	}

	v := Volume{
		BytesPerSector:      p.BytesPerSector,
		SectorsPerCluster:   p.SectorsPerCluster,
		ReservedSectorCount: p.ReservedSectorCount,
		NumFATs:             p.NumFATs,
		FATSize32:           p.FATSize32,
		RootCluster:         p.RootCluster,
		TotalSectors:        total,
		PartitionStart:      start,
	}
	if p.BootSignature == 0x29 {
		v.Label = string(bytes.TrimRight(p.VolumeLabel[:], " "))
	}
	if !v.validCluster(v.RootCluster) {
		return Volume{}, checkpoint.New(ErrInvalidVolume, "root cluster %d beyond cluster %d", p.RootCluster, v.MaxCluster())
	}
	return v, nil
}

// Volume returns the geometry of the mounted volume.
func (fs *Fs) Volume() Volume {
	return fs.vol
}

// readSectors reads count volume relative sectors starting at sector.
func (fs *Fs) readSectors(sector uint64, count uint32, buf []byte) error {
	return checkpoint.From(fs.dev.ReadSectors(fs.port, fs.vol.PartitionStart+sector, count, buf))
}

// writeSectors writes count volume relative sectors starting at sector.
func (fs *Fs) writeSectors(sector uint64, count uint32, buf []byte) error {
	return checkpoint.From(fs.dev.WriteSectors(fs.port, fs.vol.PartitionStart+sector, count, buf))
}
