// Package ahci drives the SATA ports of an AHCI host bus adapter.
//
// The controller keeps exactly one command in flight per port. Every command is
// issued from command slot 0 and completion is detected by polling the command
// issue register, bounded by a poll budget (and optionally a wall clock deadline).
// Data moves through a per port bounce buffer in DMA memory, so callers may pass
// ordinary Go slices.
package ahci

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tinykern/satafs/blockdev"
	"github.com/tinykern/satafs/checkpoint"
)

// Bus gives the driver access to the HBA register window and to physical memory.
// In a kernel with identity mapped memory both are plain loads and stores.
type Bus interface {
	Read32(addr uint64) uint32
	Write32(addr uint64, value uint32)
	// Memory returns the n bytes of physical memory starting at addr.
	Memory(addr uint64, n int) []byte
}

const (
	// DefaultDMABase is where the per port command structures are placed unless configured otherwise.
	DefaultDMABase = 0x400000
	// DefaultBounceSectors is the size of each port's bounce buffer.
	DefaultBounceSectors = 16
	// DefaultPollBudget is the number of register polls before a command times out.
	DefaultPollBudget = 1000000

	commandListOffset = 0
	receivedFISOffset = 1024
	commandTableOff   = 2048
	bounceOffset      = 4096
)

// DMASize returns the amount of DMA memory used for MaxPorts ports with the given bounce buffer size.
func DMASize(bounceSectors uint32) uint64 {
	return MaxPorts * portAreaSize(bounceSectors)
}

func portAreaSize(bounceSectors uint32) uint64 {
	size := uint64(bounceOffset) + uint64(bounceSectors)*blockdev.SectorSize
	return (size + 4095) &^ 4095
}

type port struct {
	index     int
	regs      uint64
	signature uint32

	commandList uint64
	receivedFIS uint64
	table       uint64
	bounce      uint64
}

// Controller is an AHCI HBA. It implements blockdev.Device.
type Controller struct {
	bus  Bus
	abar uint64

	dmaBase       uint64
	bounceSectors uint32
	pollBudget    int
	deadline      time.Duration
	now           func() time.Time
	log           logrus.FieldLogger

	ports [MaxPorts]*port
}

// Option configures a Controller.
type Option func(*Controller)

// WithDMABase places the command structures and bounce buffers at addr.
// DMASize tells how much memory starting at addr the controller owns.
func WithDMABase(addr uint64) Option {
	return func(c *Controller) { c.dmaBase = addr }
}

// WithBounceSectors sets the number of sectors a single command can transfer.
func WithBounceSectors(n uint32) Option {
	return func(c *Controller) {
		if n > 0 && uint64(n)*blockdev.SectorSize <= PRDMaxBytes {
			c.bounceSectors = n
		}
	}
}

// WithPollBudget sets the number of register polls before a wait gives up.
func WithPollBudget(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.pollBudget = n
		}
	}
}

// WithDeadline additionally bounds every wait by d of wall clock time as reported by now.
func WithDeadline(d time.Duration, now func() time.Time) Option {
	return func(c *Controller) {
		c.deadline = d
		c.now = now
	}
}

// WithLogger sets the logger used for device discovery and command failures.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) { c.log = log }
}

// New creates a controller on bus. Call Init before issuing commands.
func New(bus Bus, opts ...Option) *Controller {
	c := &Controller{
		bus:           bus,
		dmaBase:       DefaultDMABase,
		bounceSectors: DefaultBounceSectors,
		pollBudget:    DefaultPollBudget,
		log:           logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) read(p *port, reg uint64) uint32 {
	return c.bus.Read32(p.regs + reg)
}

func (c *Controller) write(p *port, reg uint64, v uint32) {
	c.bus.Write32(p.regs+reg, v)
}

// Init switches the HBA at abar into AHCI mode and sets up every implemented
// port that has an active SATA device attached.
func (c *Controller) Init(abar uint64) error {
	c.abar = abar
	c.ports = [MaxPorts]*port{}

	ghc := c.bus.Read32(abar + RegGHC)
	c.bus.Write32(abar+RegGHC, ghc|GHCAE)

	implemented := c.bus.Read32(abar + RegPI)
	log := c.log.WithField("abar", abar)
	log.Debug("AHCI controller found")

	for i := 0; i < MaxPorts; i++ {
		if implemented&(1<<uint(i)) == 0 {
			continue
		}

		area := c.dmaBase + uint64(i)*portAreaSize(c.bounceSectors)
		p := &port{
			index:       i,
			regs:        PortRegister(abar, i, 0),
			commandList: area + commandListOffset,
			receivedFIS: area + receivedFISOffset,
			table:       area + commandTableOff,
			bounce:      area + bounceOffset,
		}

		ssts := c.read(p, PxSSTS)
		det := ssts & 0x0F
		ipm := (ssts >> 8) & 0x0F
		if det != DetPresent || ipm != IPMActive {
			continue
		}

		p.signature = c.read(p, PxSIG)
		if p.signature != SigATA {
			log.WithField("port", i).WithField("signature", p.signature).Debug("skipping non SATA device")
			continue
		}

		if err := c.rebase(p); err != nil {
			return checkpoint.Wrapf(err, nil, "port %d", i)
		}
		c.ports[i] = p
		log.WithField("port", i).Info("SATA drive found")
	}
	return nil
}

// Ports lists the ports with a usable SATA device.
func (c *Controller) Ports() []int {
	var ports []int
	for i, p := range c.ports {
		if p != nil {
			ports = append(ports, i)
		}
	}
	return ports
}

// rebase moves the port's command list and received FIS area into controller owned memory.
func (c *Controller) rebase(p *port) error {
	if err := c.stop(p); err != nil {
		return err
	}

	zero(c.bus.Memory(p.commandList, CommandListSize))
	zero(c.bus.Memory(p.receivedFIS, ReceivedFISSize))
	zero(c.bus.Memory(p.table, CommandTableSize))

	c.write(p, PxCLB, uint32(p.commandList))
	c.write(p, PxCLBU, uint32(p.commandList>>32))
	c.write(p, PxFB, uint32(p.receivedFIS))
	c.write(p, PxFBU, uint32(p.receivedFIS>>32))

	c.write(p, PxSERR, 0xFFFFFFFF)
	c.write(p, PxIS, 0xFFFFFFFF)

	return c.start(p)
}

func (c *Controller) port(index int) (*port, error) {
	if index < 0 || index >= MaxPorts {
		return nil, checkpoint.New(blockdev.ErrInvalidPort, "port %d out of range", index)
	}
	p := c.ports[index]
	if p == nil {
		return nil, checkpoint.New(blockdev.ErrInvalidPort, "no device on port %d", index)
	}
	return p, nil
}

// ReadSectors reads count sectors starting at lba from the device on port into buf.
func (c *Controller) ReadSectors(port int, lba uint64, count uint32, buf []byte) error {
	return c.transfer(port, false, lba, count, buf)
}

// WriteSectors writes count sectors from buf to the device on port starting at lba.
func (c *Controller) WriteSectors(port int, lba uint64, count uint32, buf []byte) error {
	return c.transfer(port, true, lba, count, buf)
}

func (c *Controller) transfer(index int, write bool, lba uint64, count uint32, buf []byte) error {
	if err := blockdev.CheckBuffer(count, buf); err != nil {
		return checkpoint.From(err)
	}
	p, err := c.port(index)
	if err != nil {
		return err
	}

	for count > 0 {
		n := count
		if n > c.bounceSectors {
			n = c.bounceSectors
		}
		size := int(n) * blockdev.SectorSize
		if err := c.command(p, write, lba, n, buf[:size]); err != nil {
			c.log.WithFields(logrus.Fields{
				"port":  index,
				"lba":   lba,
				"count": n,
				"write": write,
			}).WithError(err).Warn("AHCI command failed")
			return err
		}
		buf = buf[size:]
		lba += uint64(n)
		count -= n
	}
	return nil
}

// command runs a single READ/WRITE DMA EXT through slot 0 and waits for it.
func (c *Controller) command(p *port, write bool, lba uint64, count uint32, data []byte) error {
	if err := c.stop(p); err != nil {
		return err
	}

	ata := byte(ATAReadDMAExt)
	if write {
		ata = ATAWriteDMAExt
	}

	CommandHeader{
		FISLength: FISH2DSize / 4,
		Write:     write,
		PRDTL:     1,
		CTBA:      p.table,
	}.Encode(c.bus.Memory(p.commandList, CommandHeaderSize))

	table := c.bus.Memory(p.table, CommandTableSize)
	zero(table)
	EncodeH2D(table[:FISH2DSize], ata, lba, uint16(count))
	PRD{
		Address:   p.bounce,
		ByteCount: uint32(len(data)),
		Interrupt: true,
	}.Encode(table[PRDTOffset:])

	bounce := c.bus.Memory(p.bounce, len(data))
	if write {
		copy(bounce, data)
	}

	if err := c.start(p); err != nil {
		return err
	}

	if !c.poll(func() bool { return c.read(p, PxTFD)&(TFDBusy|TFDDRQ) == 0 }) {
		return checkpoint.New(blockdev.ErrTimeout, "port %d stays busy", p.index)
	}

	c.write(p, PxIS, 0xFFFFFFFF)
	c.write(p, PxCI, 1)

	if !c.poll(func() bool { return c.read(p, PxCI)&1 == 0 || c.read(p, PxIS)&ISTFES != 0 }) {
		return checkpoint.New(blockdev.ErrTimeout, "port %d lba %d: command not completed", p.index, lba)
	}

	if tfd := c.read(p, PxTFD); tfd&TFDErr != 0 || c.read(p, PxIS)&ISTFES != 0 {
		return checkpoint.New(blockdev.ErrFault, "port %d lba %d: task file 0x%02x error 0x%02x", p.index, lba, tfd&0xFF, (tfd>>8)&0xFF)
	}

	if !write {
		copy(data, bounce)
	}
	return nil
}

// stop clears ST and FRE and waits for the command list and FIS engines to halt.
func (c *Controller) stop(p *port) error {
	cmd := c.read(p, PxCMD)
	c.write(p, PxCMD, cmd&^(CmdST|CmdFRE))
	if !c.poll(func() bool { return c.read(p, PxCMD)&(CmdCR|CmdFR) == 0 }) {
		return checkpoint.New(blockdev.ErrTimeout, "port %d: command engine does not stop", p.index)
	}
	return nil
}

// start re-enables FIS receive and the command engine.
func (c *Controller) start(p *port) error {
	if !c.poll(func() bool { return c.read(p, PxCMD)&CmdCR == 0 }) {
		return checkpoint.New(blockdev.ErrTimeout, "port %d: command engine still running", p.index)
	}
	cmd := c.read(p, PxCMD)
	c.write(p, PxCMD, cmd|CmdFRE)
	c.write(p, PxCMD, cmd|CmdFRE|CmdST)
	return nil
}

// poll evaluates done until it holds or the poll budget (or deadline) is used up.
func (c *Controller) poll(done func() bool) bool {
	var deadline time.Time
	if c.now != nil {
		deadline = c.now().Add(c.deadline)
	}
	for i := 0; i < c.pollBudget; i++ {
		if done() {
			return true
		}
		if c.now != nil && c.now().After(deadline) {
			return false
		}
	}
	return false
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
