package main

import (
	"io"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/tinykern/satafs/internal/config"
	"github.com/urfave/cli/v2"
)

// app holds what the Before hook resolved for the command that runs.
type app struct {
	cfg config.Config
	log *logrus.Logger
	// fs is where images and the config file are looked up.
	fs afero.Fs
}

func main() {
	if err := newApp(afero.NewOsFs(), os.Stdout, os.Stderr).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(fs afero.Fs, out, errOut io.Writer) *cli.App {
	a := &app{fs: fs}
	return &cli.App{
		Name:      "satafs",
		Usage:     "inspect and edit the directory tree of FAT32 volumes on SATA disks and disk images",
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file"},
			&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "disk image file"},
			&cli.StringFlag{Name: "raw", Usage: "raw block device, Linux only"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "AHCI port of the disk"},
			&cli.StringFlag{Name: "partitioning", Usage: "auto, none or first"},
			&cli.BoolFlag{Name: "simulate-ahci", Usage: "access the image through a simulated AHCI controller"},
			&cli.IntFlag{Name: "poll-budget", Usage: "register polls before an AHCI command times out"},
			&cli.DurationFlag{Name: "timeout", Usage: "wall clock limit of every AHCI wait"},
			&cli.StringFlag{Name: "log-level", Usage: "panic, fatal, error, warn, info, debug or trace"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "text or yaml"},
		},
		Before: a.before,
		Commands: []*cli.Command{
			{
				Name:      "info",
				Usage:     "show the partition table and the volume geometry",
				Action:    a.info,
				ArgsUsage: " ",
			},
			{
				Name:      "ls",
				Usage:     "list a directory",
				ArgsUsage: "[PATH]",
				Action:    a.ls,
			},
			{
				Name:      "tree",
				Usage:     "print the directory tree",
				ArgsUsage: "[PATH]",
				Action:    a.tree,
			},
			{
				Name:      "exists",
				Usage:     "exit with 1 if PATH does not exist",
				ArgsUsage: "PATH",
				Action:    a.exists,
			},
			{
				Name:      "mkdir",
				Usage:     "create directories",
				ArgsUsage: "PATH...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "parents", Aliases: []string{"p"}, Usage: "create missing parents, no error if existing"},
				},
				Action: a.mkdir,
			},
			{
				Name:      "rmdir",
				Usage:     "remove empty directories",
				ArgsUsage: "PATH...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "remove whole directory trees"},
				},
				Action: a.rmdir,
			},
			{
				Name:      "mkfs",
				Usage:     "write an empty FAT32 volume",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.Uint64Flag{Name: "sectors", Usage: "disk size in sectors, required for new images and raw devices"},
					&cli.UintFlag{Name: "sectors-per-cluster", Value: 1},
					&cli.StringFlag{Name: "label"},
					&cli.BoolFlag{Name: "partitioned", Usage: "put an MBR with one FAT32 partition in front of the volume"},
				},
				Action: a.mkfs,
			},
		},
	}
}

func (a *app) before(c *cli.Context) error {
	cfg, err := config.Load(a.fs, c.String("config"))
	if err != nil {
		return err
	}

	if c.IsSet("image") {
		cfg.Image = c.String("image")
	}
	if c.IsSet("raw") {
		cfg.Raw = c.String("raw")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("partitioning") {
		cfg.Partitioning = c.String("partitioning")
	}
	if c.IsSet("simulate-ahci") {
		cfg.SimulateAHCI = c.Bool("simulate-ahci")
	}
	if c.IsSet("poll-budget") {
		cfg.PollBudget = c.Int("poll-budget")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.LogFormat = c.String("log-format")
	}
	if c.IsSet("output") {
		cfg.Output = c.String("output")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cfg.Logger(c.App.ErrWriter)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, logger
	return nil
}
