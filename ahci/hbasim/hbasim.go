// Package hbasim simulates an AHCI host bus adapter with disks attached to its ports.
//
// HBA implements ahci.Bus: it owns a register window at ABAR and a block of
// physical memory, and executes READ/WRITE DMA EXT commands synchronously when the
// driver polls the command issue register. Knobs allow tests to make commands hang
// or fail.
package hbasim

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tinykern/satafs/ahci"
	"github.com/tinykern/satafs/blockdev"
)

// Disk is the storage behind a simulated port.
type Disk interface {
	io.ReaderAt
	io.WriterAt
}

// Command describes a command the HBA executed.
type Command struct {
	Port  int
	ATA   byte
	LBA   uint64
	Count uint16
}

type simPort struct {
	disk    Disk
	pending bool
	wait    int
}

// HBA is a simulated AHCI controller.
type HBA struct {
	abar    uint64
	regs    [ahci.RegWindow / 4]uint32
	memBase uint64
	mem     []byte
	ports   [ahci.MaxPorts]simPort

	// Hang keeps issued commands from ever completing.
	Hang bool
	// StuckEngine keeps the command list engine running after ST was cleared.
	StuckEngine bool
	// Latency is the number of command issue polls before a command completes.
	Latency int

	faultLBA *uint64

	// Executed lists every command that completed, successfully or not.
	Executed []Command
}

// New creates an HBA with its registers at abar and memSize bytes of physical memory at memBase.
func New(abar, memBase uint64, memSize int) *HBA {
	h := &HBA{
		abar:    abar,
		memBase: memBase,
		mem:     make([]byte, memSize),
	}
	h.setReg(ahci.RegCAP, ahci.MaxPorts-1)
	h.setReg(ahci.RegVS, 0x00010300)
	return h
}

// ForController creates an HBA whose memory covers the DMA area of a controller
// using the default DMA base and the given bounce buffer size.
func ForController(abar uint64, bounceSectors uint32) *HBA {
	return New(abar, ahci.DefaultDMABase, int(ahci.DMASize(bounceSectors)))
}

// Attach connects disk to port as an active SATA device.
func (h *HBA) Attach(port int, disk Disk) {
	h.AttachWithSignature(port, disk, ahci.SigATA)
}

// AttachWithSignature connects disk to port with the given device signature.
func (h *HBA) AttachWithSignature(port int, disk Disk, signature uint32) {
	h.ports[port].disk = disk
	h.setReg(ahci.RegPI, h.reg(ahci.RegPI)|1<<uint(port))
	h.setPortReg(port, ahci.PxSSTS, ahci.IPMActive<<8|1<<4|ahci.DetPresent)
	h.setPortReg(port, ahci.PxSIG, signature)
	h.setPortReg(port, ahci.PxTFD, ahci.TFDDRDY|1<<4)
}

// FaultAt makes every command touching lba complete with the task file error bit set.
func (h *HBA) FaultAt(lba uint64) {
	h.faultLBA = &lba
}

func (h *HBA) reg(off uint64) uint32       { return h.regs[off/4] }
func (h *HBA) setReg(off uint64, v uint32) { h.regs[off/4] = v }

func (h *HBA) portOff(port int, reg uint64) uint64 {
	return ahci.PortRegBase + uint64(port)*ahci.PortRegSize + reg
}

func (h *HBA) portReg(port int, reg uint64) uint32 {
	return h.reg(h.portOff(port, reg))
}

func (h *HBA) setPortReg(port int, reg uint64, v uint32) {
	h.setReg(h.portOff(port, reg), v)
}

func (h *HBA) inWindow(addr uint64) bool {
	return addr >= h.abar && addr < h.abar+ahci.RegWindow
}

// decode splits a register offset into port and port register, port is -1 for host registers.
func decode(off uint64) (int, uint64) {
	if off < ahci.PortRegBase {
		return -1, off
	}
	off -= ahci.PortRegBase
	return int(off / ahci.PortRegSize), off % ahci.PortRegSize
}

func (h *HBA) Read32(addr uint64) uint32 {
	if !h.inWindow(addr) {
		return binary.LittleEndian.Uint32(h.Memory(addr, 4))
	}
	off := addr - h.abar
	port, reg := decode(off)
	if port >= 0 && reg == ahci.PxCI {
		h.progress(port)
	}
	return h.reg(off)
}

func (h *HBA) Write32(addr uint64, v uint32) {
	if !h.inWindow(addr) {
		binary.LittleEndian.PutUint32(h.Memory(addr, 4), v)
		return
	}
	off := addr - h.abar
	port, reg := decode(off)
	if port < 0 {
		h.setReg(off, v)
		return
	}

	switch reg {
	case ahci.PxIS, ahci.PxSERR:
		// write one to clear
		h.setReg(off, h.reg(off)&^v)
	case ahci.PxCMD:
		cmd := v &^ (ahci.CmdCR | ahci.CmdFR)
		if v&ahci.CmdST != 0 || (h.StuckEngine && h.reg(off)&ahci.CmdCR != 0) {
			cmd |= ahci.CmdCR
		}
		if v&ahci.CmdFRE != 0 {
			cmd |= ahci.CmdFR
		}
		h.setReg(off, cmd)
	case ahci.PxCI:
		if v&1 == 0 || h.portReg(port, ahci.PxCMD)&ahci.CmdST == 0 {
			return
		}
		h.setReg(off, h.reg(off)|1)
		h.ports[port].pending = true
		h.ports[port].wait = h.Latency
		h.progress(port)
	default:
		h.setReg(off, v)
	}
}

// Memory returns a window into the simulated physical memory.
// It panics on accesses outside of it, like a bus fault would stop a kernel.
func (h *HBA) Memory(addr uint64, n int) []byte {
	if addr < h.memBase || addr+uint64(n) > h.memBase+uint64(len(h.mem)) {
		panic(fmt.Sprintf("hbasim: physical access 0x%x+%d outside of memory", addr, n))
	}
	start := addr - h.memBase
	return h.mem[start : start+uint64(n)]
}

func (h *HBA) progress(port int) {
	p := &h.ports[port]
	if !p.pending || h.Hang {
		return
	}
	if p.wait > 0 {
		p.wait--
		return
	}
	p.pending = false
	h.execute(port)
}

func (h *HBA) execute(port int) {
	clb := uint64(h.portReg(port, ahci.PxCLB)) | uint64(h.portReg(port, ahci.PxCLBU))<<32
	header := ahci.DecodeCommandHeader(h.Memory(clb, ahci.CommandHeaderSize))
	table := h.Memory(header.CTBA, ahci.PRDTOffset+int(header.PRDTL)*ahci.PRDEntrySize)

	ata, lba, count, ok := ahci.DecodeH2D(table[:ahci.FISH2DSize])
	h.Executed = append(h.Executed, Command{Port: port, ATA: ata, LBA: lba, Count: count})

	var regions [][]byte
	for i := 0; i < int(header.PRDTL); i++ {
		prd := ahci.DecodePRD(table[ahci.PRDTOffset+i*ahci.PRDEntrySize:])
		regions = append(regions, h.Memory(prd.Address, int(prd.ByteCount)))
	}

	size := int(count) * blockdev.SectorSize
	err := h.validate(port, ok, ata, header, lba, count, regions, size)
	if err == nil {
		err = h.transfer(port, header.Write, lba, size, regions)
	}

	if err != nil {
		h.setPortReg(port, ahci.PxTFD, ahci.TFDDRDY|ahci.TFDErr|0x04<<8)
		h.setPortReg(port, ahci.PxIS, h.portReg(port, ahci.PxIS)|ahci.ISTFES)
	} else {
		header.PRDBC = uint32(size)
		header.Encode(h.Memory(clb, ahci.CommandHeaderSize))
		h.setPortReg(port, ahci.PxTFD, ahci.TFDDRDY|1<<4)
		h.setPortReg(port, ahci.PxIS, h.portReg(port, ahci.PxIS)|ahci.ISDHRS)
	}
	h.setPortReg(port, ahci.PxCI, h.portReg(port, ahci.PxCI)&^1)
}

func (h *HBA) validate(port int, ok bool, ata byte, header ahci.CommandHeader, lba uint64, count uint16, regions [][]byte, size int) error {
	if !ok {
		return fmt.Errorf("no command FIS")
	}
	if h.ports[port].disk == nil {
		return fmt.Errorf("no disk")
	}
	if (ata == ahci.ATAWriteDMAExt) != header.Write || (ata != ahci.ATAReadDMAExt && ata != ahci.ATAWriteDMAExt) {
		return fmt.Errorf("unsupported command 0x%02x", ata)
	}
	total := 0
	for _, r := range regions {
		total += len(r)
	}
	if total != size {
		return fmt.Errorf("PRDT covers %d bytes, command needs %d", total, size)
	}
	if h.faultLBA != nil && *h.faultLBA >= lba && *h.faultLBA < lba+uint64(count) {
		return fmt.Errorf("injected fault")
	}
	return nil
}

func (h *HBA) transfer(port int, write bool, lba uint64, size int, regions [][]byte) error {
	disk := h.ports[port].disk
	data := make([]byte, 0, size)
	if write {
		for _, r := range regions {
			data = append(data, r...)
		}
		_, err := disk.WriteAt(data, int64(lba)*blockdev.SectorSize)
		return err
	}

	data = data[:size]
	if n, err := disk.ReadAt(data, int64(lba)*blockdev.SectorSize); n != size {
		return fmt.Errorf("short read: %v", err)
	}
	for _, r := range regions {
		copy(r, data)
		data = data[len(r):]
	}
	return nil
}
