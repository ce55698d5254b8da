package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tinykern/satafs"
	"github.com/tinykern/satafs/ahci"
	"github.com/tinykern/satafs/ahci/hbasim"
	"github.com/tinykern/satafs/blockdev"
)

// simABAR is where the simulated HBA places its registers.
const simABAR = 0xFEBF0000

var errNoDevice = errors.New("no disk given, use --image or --raw")

// device is an opened disk and the port the volume is on.
type device struct {
	blockdev.Device
	port  int
	close func() error
}

func (d *device) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

func (a *app) openDevice(readOnly bool) (*device, error) {
	switch {
	case a.cfg.Image != "" && a.cfg.SimulateAHCI:
		return a.openSimulated(readOnly)
	case a.cfg.Image != "":
		img, err := blockdev.OpenImage(a.fs, a.cfg.Image, readOnly)
		if err != nil {
			return nil, err
		}
		return &device{Device: img, close: img.Close}, nil
	case a.cfg.Raw != "":
		raw, err := openRaw(a.cfg.Raw, readOnly)
		if err != nil {
			return nil, err
		}
		return &device{Device: raw, close: raw.Close}, nil
	}
	return nil, errNoDevice
}

// openSimulated attaches the image to a simulated HBA and drives it with the AHCI controller,
// so every sector moves through command lists, FISes and bounce buffers.
func (a *app) openSimulated(readOnly bool) (*device, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := a.fs.OpenFile(a.cfg.Image, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}

	hba := hbasim.ForController(simABAR, ahci.DefaultBounceSectors)
	hba.Attach(a.cfg.Port, f)

	opts := []ahci.Option{
		ahci.WithPollBudget(a.cfg.PollBudget),
		ahci.WithLogger(a.log),
	}
	if a.cfg.Timeout > 0 {
		opts = append(opts, ahci.WithDeadline(a.cfg.Timeout, time.Now))
	}
	ctrl := ahci.New(hba, opts...)
	if err := ctrl.Init(simABAR); err != nil {
		f.Close()
		return nil, err
	}
	return &device{Device: ctrl, port: a.cfg.Port, close: f.Close}, nil
}

func (a *app) mount(readOnly bool) (*satafs.Fs, *device, error) {
	dev, err := a.openDevice(readOnly)
	if err != nil {
		return nil, nil, err
	}
	mode, err := a.cfg.PartitionMode()
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	fs, err := satafs.Mount(dev, dev.port, satafs.WithLogger(a.log), satafs.WithPartitioning(mode))
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return fs, dev, nil
}
