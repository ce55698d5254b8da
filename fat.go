package satafs

import (
	"encoding/binary"

	"github.com/tinykern/satafs/checkpoint"
)

// FAT entry values. Only the low 28 bits of an entry are significant.
const (
	fatMask     = 0x0FFFFFFF
	fatReserved = 0xF0000000
	fatFree     = 0x00000000
	fatBad      = 0x0FFFFFF7
	fatEOCMin   = 0x0FFFFFF8

	// EndOfChain is written to the last cluster of a chain.
	EndOfChain = 0x0FFFFFFF
)

// fatPosition returns the sector of the first FAT holding the entry of cluster and the entry's byte offset inside it.
func (fs *Fs) fatPosition(cluster uint32) (uint64, int) {
	offset := uint64(cluster) * 4
	return fs.vol.FATStartSector() + offset/SectorSize, int(offset % SectorSize)
}

func (fs *Fs) checkFATIndex(cluster uint32) error {
	if cluster > fs.vol.MaxCluster() {
		return checkpoint.New(ErrInvalidCluster, "cluster %d beyond cluster %d", cluster, fs.vol.MaxCluster())
	}
	return nil
}

// FATEntry returns the masked FAT entry of cluster.
func (fs *Fs) FATEntry(cluster uint32) (uint32, error) {
	if err := fs.checkFATIndex(cluster); err != nil {
		return 0, err
	}
	sector, offset := fs.fatPosition(cluster)
	buf := make([]byte, SectorSize)
	if err := fs.readSectors(sector, 1, buf); err != nil {
		return 0, checkpoint.Wrapf(err, nil, "reading FAT entry of cluster %d", cluster)
	}
	return binary.LittleEndian.Uint32(buf[offset:]) & fatMask, nil
}

// SetFATEntry stores value as the FAT entry of cluster in every FAT copy.
// The reserved top four bits of the stored entries are kept.
func (fs *Fs) SetFATEntry(cluster, value uint32) error {
	if err := fs.checkFATIndex(cluster); err != nil {
		return err
	}
	sector, offset := fs.fatPosition(cluster)
	buf := make([]byte, SectorSize)
	for i := uint64(0); i < uint64(fs.vol.NumFATs); i++ {
		s := sector + i*uint64(fs.vol.FATSize32)
		if err := fs.readSectors(s, 1, buf); err != nil {
			return checkpoint.Wrapf(err, nil, "reading FAT %d entry of cluster %d", i, cluster)
		}
		old := binary.LittleEndian.Uint32(buf[offset:])
		binary.LittleEndian.PutUint32(buf[offset:], old&fatReserved|value&fatMask)
		if err := fs.writeSectors(s, 1, buf); err != nil {
			return checkpoint.Wrapf(err, nil, "writing FAT %d entry of cluster %d", i, cluster)
		}
	}
	return nil
}

// FindFreeCluster claims the lowest free cluster by marking it as end of chain and returns it.
func (fs *Fs) FindFreeCluster() (uint32, error) {
	buf := make([]byte, SectorSize)
	loaded := ^uint64(0)
	max := fs.vol.MaxCluster()

	for cluster := uint32(2); cluster <= max; cluster++ {
		sector, offset := fs.fatPosition(cluster)
		if sector != loaded {
			if err := fs.readSectors(sector, 1, buf); err != nil {
				return 0, checkpoint.Wrapf(err, nil, "scanning FAT sector %d", sector)
			}
			loaded = sector
		}
		if binary.LittleEndian.Uint32(buf[offset:])&fatMask != fatFree {
			continue
		}
		if err := fs.SetFATEntry(cluster, EndOfChain); err != nil {
			return 0, err
		}
		return cluster, nil
	}
	return 0, checkpoint.New(ErrNoFreeSpace, "all %d clusters in use", max-1)
}

// nextCluster returns the cluster following cluster in its chain.
// ok is false if cluster ends the chain.
func (fs *Fs) nextCluster(cluster uint32) (next uint32, ok bool, err error) {
	entry, err := fs.FATEntry(cluster)
	if err != nil {
		return 0, false, err
	}
	switch {
	case entry >= fatEOCMin:
		return 0, false, nil
	case entry == fatBad:
		return 0, false, checkpoint.New(ErrInvalidCluster, "bad cluster %d in chain of cluster %d", entry, cluster)
	case !fs.vol.validCluster(entry):
		return 0, false, checkpoint.New(ErrInvalidCluster, "cluster %d links to %d", cluster, entry)
	}
	return entry, true, nil
}

// Chain returns all clusters of the chain starting at start.
func (fs *Fs) Chain(start uint32) ([]uint32, error) {
	if !fs.vol.validCluster(start) {
		return nil, checkpoint.New(ErrInvalidCluster, "chain start %d", start)
	}
	chain := []uint32{start}
	for cluster := start; ; {
		next, ok, err := fs.nextCluster(cluster)
		if err != nil {
			return nil, err
		}
		if !ok {
			return chain, nil
		}
		if uint32(len(chain)) >= fs.vol.ClusterCount() {
			return nil, checkpoint.New(ErrInvalidCluster, "chain of cluster %d loops", start)
		}
		chain = append(chain, next)
		cluster = next
	}
}

// freeChain marks every cluster of the chain starting at start as free.
func (fs *Fs) freeChain(start uint32) error {
	chain, err := fs.Chain(start)
	if err != nil {
		return err
	}
	for _, cluster := range chain {
		if err := fs.SetFATEntry(cluster, fatFree); err != nil {
			return err
		}
	}
	return nil
}
