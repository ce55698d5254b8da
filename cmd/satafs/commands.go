package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"strings"

	"github.com/rekby/mbr"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/tinykern/satafs"
	"github.com/tinykern/satafs/blockdev"
	"github.com/tinykern/satafs/internal/config"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"
)

var knownPartTypes = map[byte]string{
	0x0B: "FAT32-CHS",
	0x0C: "FAT32-LBA",
	0x83: "Native Linux",
	0xEE: "GPT protective",
}

type partitionInfo struct {
	Index    int    `yaml:"index"`
	Type     byte   `yaml:"type"`
	TypeName string `yaml:"typeName,omitempty"`
	Bootable bool   `yaml:"bootable"`
	Start    uint32 `yaml:"start"`
	Length   uint32 `yaml:"length"`
}

type volumeInfo struct {
	Partitions        []partitionInfo `yaml:"partitions,omitempty"`
	Label             string          `yaml:"label"`
	Start             uint64          `yaml:"start"`
	TotalSectors      uint32          `yaml:"totalSectors"`
	SectorsPerCluster uint8           `yaml:"sectorsPerCluster"`
	ReservedSectors   uint16          `yaml:"reservedSectors"`
	FATs              uint8           `yaml:"fats"`
	FATSize           uint32          `yaml:"fatSize"`
	RootCluster       uint32          `yaml:"rootCluster"`
	Clusters          uint32          `yaml:"clusters"`
}

type listEntry struct {
	Name    string `yaml:"name"`
	Dir     bool   `yaml:"dir"`
	Size    int64  `yaml:"size"`
	Mode    string `yaml:"mode"`
	ModTime string `yaml:"modTime,omitempty"`
}

func writeYAML(w io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// partitions reads the partition table of the disk. A disk without one has no partitions.
func partitions(dev *device) ([]partitionInfo, error) {
	sector := make([]byte, blockdev.SectorSize)
	if err := dev.ReadSectors(dev.port, 0, 1, sector); err != nil {
		return nil, err
	}
	tab, err := mbr.Read(bytes.NewReader(sector))
	if err != nil {
		return nil, nil
	}

	var result []partitionInfo
	for i, p := range tab.GetAllPartitions() {
		if p.IsEmpty() {
			continue
		}
		result = append(result, partitionInfo{
			Index:    i + 1,
			Type:     byte(p.GetType()),
			TypeName: knownPartTypes[byte(p.GetType())],
			Bootable: p.IsBootable(),
			Start:    p.GetLBAStart(),
			Length:   p.GetLBALen(),
		})
	}
	return result, nil
}

func (a *app) info(c *cli.Context) error {
	fs, dev, err := a.mount(true)
	if err != nil {
		return err
	}
	defer dev.Close()

	parts, err := partitions(dev)
	if err != nil {
		return err
	}
	vol := fs.Volume()
	info := volumeInfo{
		Partitions:        parts,
		Label:             vol.Label,
		Start:             vol.PartitionStart,
		TotalSectors:      vol.TotalSectors,
		SectorsPerCluster: vol.SectorsPerCluster,
		ReservedSectors:   vol.ReservedSectorCount,
		FATs:              vol.NumFATs,
		FATSize:           vol.FATSize32,
		RootCluster:       vol.RootCluster,
		Clusters:          vol.ClusterCount(),
	}

	out := c.App.Writer
	if a.cfg.Output == config.OutputYAML {
		return writeYAML(out, info)
	}
	for _, p := range info.Partitions {
		fmt.Fprintf(out, "partition %d: type 0x%02x %s, start %d, %d sectors\n", p.Index, p.Type, p.TypeName, p.Start, p.Length)
	}
	fmt.Fprintf(out, "label:               %s\n", info.Label)
	fmt.Fprintf(out, "start:               %d\n", info.Start)
	fmt.Fprintf(out, "total sectors:       %d\n", info.TotalSectors)
	fmt.Fprintf(out, "sectors per cluster: %d\n", info.SectorsPerCluster)
	fmt.Fprintf(out, "reserved sectors:    %d\n", info.ReservedSectors)
	fmt.Fprintf(out, "FATs:                %d x %d sectors\n", info.FATs, info.FATSize)
	fmt.Fprintf(out, "root cluster:        %d\n", info.RootCluster)
	fmt.Fprintf(out, "clusters:            %d\n", info.Clusters)
	return nil
}

// goPath turns a command line path into an io/fs path.
func goPath(p string) string {
	p = strings.Trim(strings.ReplaceAll(p, `\`, "/"), "/")
	if p == "" {
		return "."
	}
	return path.Clean(p)
}

func (a *app) ls(c *cli.Context) error {
	fs, dev, err := a.mount(true)
	if err != nil {
		return err
	}
	defer dev.Close()

	entries, err := iofs.ReadDir(satafs.GoFs{Fs: fs}, goPath(c.Args().First()))
	if err != nil {
		return err
	}

	list := make([]listEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return err
		}
		entry := listEntry{
			Name: e.Name(),
			Dir:  e.IsDir(),
			Size: info.Size(),
			Mode: info.Mode().String(),
		}
		if t := info.ModTime(); !t.IsZero() {
			entry.ModTime = t.Format("2006-01-02 15:04:05")
		}
		list = append(list, entry)
	}

	out := c.App.Writer
	if a.cfg.Output == config.OutputYAML {
		return writeYAML(out, list)
	}
	for _, e := range list {
		fmt.Fprintf(out, "%s %10d %19s %s\n", e.Mode, e.Size, e.ModTime, e.Name)
	}
	return nil
}

func (a *app) tree(c *cli.Context) error {
	fs, dev, err := a.mount(true)
	if err != nil {
		return err
	}
	defer dev.Close()

	root := "/" + strings.Trim(c.Args().First(), "/")
	out := c.App.Writer
	return afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.Trim(strings.TrimPrefix(p, root), `/\`)
		if rel == "" {
			fmt.Fprintln(out, root)
			return nil
		}
		depth := strings.Count(strings.ReplaceAll(rel, `\`, "/"), "/")
		name := info.Name()
		if info.IsDir() {
			name += "/"
		}
		fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", depth+1), name)
		return nil
	})
}

func (a *app) exists(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("exists needs exactly one PATH", 2)
	}
	fs, dev, err := a.mount(true)
	if err != nil {
		return err
	}
	defer dev.Close()

	if !fs.PathExists(c.Args().First()) {
		return cli.Exit("", 1)
	}
	return nil
}

func (a *app) mkdir(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return cli.Exit("mkdir needs at least one PATH", 2)
	}
	fs, dev, err := a.mount(false)
	if err != nil {
		return err
	}
	defer dev.Close()

	for _, p := range c.Args().Slice() {
		if c.Bool("parents") {
			err = fs.MkdirAll(p, 0777)
		} else {
			err = fs.CreateDirectory(p)
		}
		if err != nil {
			return err
		}
		a.log.WithField("path", p).Debug("directory created")
	}
	return nil
}

func (a *app) rmdir(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return cli.Exit("rmdir needs at least one PATH", 2)
	}
	fs, dev, err := a.mount(false)
	if err != nil {
		return err
	}
	defer dev.Close()

	for _, p := range c.Args().Slice() {
		if c.Bool("recursive") {
			err = fs.RemoveAll(p)
		} else {
			err = fs.DeleteDirectory(p)
		}
		if err != nil {
			return err
		}
		a.log.WithField("path", p).Debug("directory removed")
	}
	return nil
}

func (a *app) mkfs(c *cli.Context) error {
	sectors := c.Uint64("sectors")
	if a.cfg.Image != "" {
		info, err := a.fs.Stat(a.cfg.Image)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if sectors == 0 {
				return cli.Exit("a new image needs --sectors", 2)
			}
			img, err := blockdev.CreateImage(a.fs, a.cfg.Image, sectors)
			if err != nil {
				return err
			}
			if err := img.Close(); err != nil {
				return err
			}
		case err != nil:
			return err
		case sectors == 0:
			sectors = uint64(info.Size()) / blockdev.SectorSize
		}
	}
	if sectors == 0 {
		return cli.Exit("--sectors is required for raw devices", 2)
	}

	spc := c.Uint("sectors-per-cluster")
	if spc == 0 || spc > 128 {
		return cli.Exit(fmt.Sprintf("invalid sectors per cluster %d", spc), 2)
	}

	dev, err := a.openDevice(false)
	if err != nil {
		return err
	}
	defer dev.Close()

	opts := satafs.FormatOptions{
		TotalSectors:      sectors,
		SectorsPerCluster: uint8(spc),
		Label:             c.String("label"),
		Partitioned:       c.Bool("partitioned"),
	}
	if err := satafs.Format(dev, dev.port, opts); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"sectors":     sectors,
		"partitioned": opts.Partitioned,
	}).Info("volume formatted")
	return nil
}
