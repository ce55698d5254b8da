package ahci

import "encoding/binary"

// Generic host control registers, relative to ABAR.
const (
	RegCAP = 0x00
	RegGHC = 0x04
	RegIS  = 0x08
	RegPI  = 0x0C
	RegVS  = 0x10

	// PortRegBase is the offset of port 0's register block, PortRegSize the size of each block.
	PortRegBase = 0x100
	PortRegSize = 0x80

	// RegWindow is the size of the whole register window for MaxPorts ports.
	RegWindow = PortRegBase + MaxPorts*PortRegSize
)

// Port registers, relative to the port's register block.
const (
	PxCLB  = 0x00
	PxCLBU = 0x04
	PxFB   = 0x08
	PxFBU  = 0x0C
	PxIS   = 0x10
	PxIE   = 0x14
	PxCMD  = 0x18
	PxTFD  = 0x20
	PxSIG  = 0x24
	PxSSTS = 0x28
	PxSCTL = 0x2C
	PxSERR = 0x30
	PxSACT = 0x34
	PxCI   = 0x38
)

// Register bits.
const (
	GHCAE = 1 << 31

	CmdST  = 1 << 0
	CmdFRE = 1 << 4
	CmdFR  = 1 << 14
	CmdCR  = 1 << 15

	TFDErr  = 1 << 0
	TFDDRQ  = 1 << 3
	TFDDRDY = 1 << 6
	TFDBusy = 1 << 7

	ISDHRS = 1 << 0
	ISTFES = 1 << 30

	// SSTS device detection and interface power management values of a usable link.
	DetPresent = 3
	IPMActive  = 1

	SigATA   = 0x00000101
	SigATAPI = 0xEB140101
)

// MaxPorts is the number of ports an HBA may implement.
const MaxPorts = 32

// ATA commands.
const (
	ATAReadDMAExt  = 0x25
	ATAWriteDMAExt = 0x35
)

// Command list, FIS and command table layout.
const (
	FISTypeRegH2D = 0x27
	FISH2DSize    = 20

	CommandHeaderSize = 32
	CommandListSize   = 1024
	ReceivedFISSize   = 256

	// Command header DW0 flags.
	HeaderWrite = 1 << 6

	PRDTOffset   = 0x80
	PRDEntrySize = 16
	PRDInterrupt = 1 << 31
	PRDMaxBytes  = 4 << 20

	// CommandTableSize is the size of a command table with a single PRDT entry.
	CommandTableSize = PRDTOffset + PRDEntrySize
)

// PortRegister returns the bus address of register reg of port.
func PortRegister(abar uint64, port int, reg uint64) uint64 {
	return abar + PortRegBase + uint64(port)*PortRegSize + reg
}

// EncodeH2D fills fis with a host to device register FIS carrying an ATA command
// with a 48 bit LBA and a 16 bit sector count.
func EncodeH2D(fis []byte, command byte, lba uint64, count uint16) {
	for i := range fis[:FISH2DSize] {
		fis[i] = 0
	}
	fis[0] = FISTypeRegH2D
	fis[1] = 1 << 7 // command, not control
	fis[2] = command

	fis[4] = byte(lba)
	fis[5] = byte(lba >> 8)
	fis[6] = byte(lba >> 16)
	fis[7] = 1 << 6 // LBA mode
	fis[8] = byte(lba >> 24)
	fis[9] = byte(lba >> 32)
	fis[10] = byte(lba >> 40)

	fis[12] = byte(count)
	fis[13] = byte(count >> 8)
}

// DecodeH2D is the inverse of EncodeH2D. ok is false if fis is no command register FIS.
func DecodeH2D(fis []byte) (command byte, lba uint64, count uint16, ok bool) {
	if len(fis) < FISH2DSize || fis[0] != FISTypeRegH2D || fis[1]&(1<<7) == 0 {
		return 0, 0, 0, false
	}
	lba = uint64(fis[4]) |
		uint64(fis[5])<<8 |
		uint64(fis[6])<<16 |
		uint64(fis[8])<<24 |
		uint64(fis[9])<<32 |
		uint64(fis[10])<<40
	count = uint16(fis[12]) | uint16(fis[13])<<8
	return fis[2], lba, count, true
}

// CommandHeader is command list slot as the HBA reads it.
type CommandHeader struct {
	FISLength uint8 // in dwords
	Write     bool
	PRDTL     uint16
	PRDBC     uint32
	CTBA      uint64
}

// Encode writes h into the 32 byte slot b.
func (h CommandHeader) Encode(b []byte) {
	for i := range b[:CommandHeaderSize] {
		b[i] = 0
	}
	flags := uint16(h.FISLength & 0x1F)
	if h.Write {
		flags |= HeaderWrite
	}
	binary.LittleEndian.PutUint16(b[0:], flags)
	binary.LittleEndian.PutUint16(b[2:], h.PRDTL)
	binary.LittleEndian.PutUint32(b[4:], h.PRDBC)
	binary.LittleEndian.PutUint32(b[8:], uint32(h.CTBA))
	binary.LittleEndian.PutUint32(b[12:], uint32(h.CTBA>>32))
}

// DecodeCommandHeader reads a command list slot.
func DecodeCommandHeader(b []byte) CommandHeader {
	flags := binary.LittleEndian.Uint16(b[0:])
	return CommandHeader{
		FISLength: uint8(flags & 0x1F),
		Write:     flags&HeaderWrite != 0,
		PRDTL:     binary.LittleEndian.Uint16(b[2:]),
		PRDBC:     binary.LittleEndian.Uint32(b[4:]),
		CTBA:      uint64(binary.LittleEndian.Uint32(b[8:])) | uint64(binary.LittleEndian.Uint32(b[12:]))<<32,
	}
}

// PRD is a physical region descriptor.
type PRD struct {
	Address   uint64
	ByteCount uint32
	Interrupt bool
}

// Encode writes p into the 16 byte entry b. The byte count is stored minus one.
func (p PRD) Encode(b []byte) {
	for i := range b[:PRDEntrySize] {
		b[i] = 0
	}
	binary.LittleEndian.PutUint32(b[0:], uint32(p.Address))
	binary.LittleEndian.PutUint32(b[4:], uint32(p.Address>>32))
	dw3 := (p.ByteCount - 1) & (PRDMaxBytes - 1)
	if p.Interrupt {
		dw3 |= PRDInterrupt
	}
	binary.LittleEndian.PutUint32(b[12:], dw3)
}

// DecodePRD reads a physical region descriptor.
func DecodePRD(b []byte) PRD {
	dw3 := binary.LittleEndian.Uint32(b[12:])
	return PRD{
		Address:   uint64(binary.LittleEndian.Uint32(b[0:])) | uint64(binary.LittleEndian.Uint32(b[4:]))<<32,
		ByteCount: dw3&(PRDMaxBytes-1) + 1,
		Interrupt: dw3&PRDInterrupt != 0,
	}
}
