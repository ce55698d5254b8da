package satafs

import (
	"encoding/binary"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tinykern/satafs/checkpoint"
	"golang.org/x/text/encoding/unicode"
)

// maxNameUnits is the longest long name in UTF-16 code units.
const maxNameUnits = 255

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

func decodeUTF16(units []uint16) string {
	raw := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(raw[2*i:], u)
	}
	name, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return ""
	}
	return string(name)
}

func encodeUTF16(s string) ([]uint16, error) {
	raw, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return units, nil
}

// lfnBuilder collects long name fragments until the short entry they belong to is read.
// Fragments are expected in on-disk order, from the last-flagged one down to order 1.
type lfnBuilder struct {
	units    [maxLFNEntries * lfnChars]uint16
	length   int
	next     int
	checksum byte
	slots    []slot
}

func (b *lfnBuilder) reset() {
	for i := range b.units[:b.length] {
		b.units[i] = 0xFFFF
	}
	b.length = 0
	b.next = 0
	b.slots = nil
}

func (b *lfnBuilder) add(l LongFilenameEntry, at slot) {
	order := int(l.Sequence & lfnOrderMask)
	if l.Sequence&lfnLast != 0 {
		b.reset()
		if order < 1 || order > maxLFNEntries {
			return
		}
		b.checksum = l.Checksum
		b.length = order * lfnChars
	} else if b.length == 0 || l.Checksum != b.checksum || order != b.next {
		// A fragment without its last part, out of sequence or from another chain.
		b.reset()
		return
	}
	units := l.Units()
	copy(b.units[(order-1)*lfnChars:], units[:])
	b.next = order - 1
	b.slots = append(b.slots, at)
}

// takeFor is take for the short entry named short. Fragments whose checksum does not match it are dropped.
func (b *lfnBuilder) takeFor(short [11]byte) (string, []slot) {
	if b.length != 0 && b.checksum != lfnChecksum(short) {
		b.reset()
	}
	return b.take()
}

// take returns the collected name and the slots of its fragments and starts over.
func (b *lfnBuilder) take() (string, []slot) {
	if b.length == 0 || b.next != 0 {
		// Nothing collected or a chain with missing fragments.
		b.reset()
		return "", nil
	}
	n := 0
	for n < b.length && b.units[n] != 0x0000 && b.units[n] != 0xFFFF {
		n++
	}
	name, slots := decodeUTF16(b.units[:n]), b.slots
	b.reset()
	return name, slots
}

// DisplayName is the long name if there is one, the short name otherwise.
func (h ExtendedEntryHeader) DisplayName() string {
	if h.ExtendedName != "" {
		return h.ExtendedName
	}
	return h.ShortName()
}

// ShortName formats the 8.3 name as "BASE.EXT", honouring the lower case flags.
func (e EntryHeader) ShortName() string {
	raw := e.Name
	if raw[0] == entryKanji {
		raw[0] = entryDeleted
	}
	base := strings.TrimRight(string(raw[:8]), " ")
	ext := strings.TrimRight(string(raw[8:]), " ")
	if e.NTReserved&ntLowerBase != 0 {
		base = strings.ToLower(base)
	}
	if e.NTReserved&ntLowerExt != 0 {
		ext = strings.ToLower(ext)
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func isShortChar(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("!#$%&'()-@^_`{}~", c) >= 0
}

// caseOf returns the lower case flag needed for part, ok is false for mixed case.
func caseOf(part string, flag byte) (byte, bool) {
	lower := strings.ToUpper(part) != part
	upper := strings.ToLower(part) != part
	switch {
	case lower && upper:
		return 0, false
	case lower:
		return flag, true
	}
	return 0, true
}

// shortNameOf returns the 11 byte name and NTRes flags for names that can be stored
// without a long name. ok is false for all other names.
func shortNameOf(name string) (raw [11]byte, ntres byte, ok bool) {
	base, ext := name, ""
	if i := strings.IndexByte(name, '.'); i >= 0 {
		base, ext = name[:i], name[i+1:]
		if ext == "" || strings.IndexByte(ext, '.') >= 0 {
			return raw, 0, false
		}
	}
	if len(base) == 0 || len(base) > 8 || len(ext) > 3 {
		return raw, 0, false
	}
	for i := 0; i < len(name); i++ {
		if name[i] != '.' && !isShortChar(name[i]) {
			return raw, 0, false
		}
	}

	baseFlag, ok := caseOf(base, ntLowerBase)
	if !ok {
		return raw, 0, false
	}
	extFlag, ok := caseOf(ext, ntLowerExt)
	if !ok {
		return raw, 0, false
	}

	copy(raw[:], "           ")
	copy(raw[:8], strings.ToUpper(base))
	copy(raw[8:], strings.ToUpper(ext))
	return raw, baseFlag | extFlag, true
}

// basis derives the upper case base and extension a generated alias starts from.
func basis(name string) (string, string) {
	clean := func(s string, max int) string {
		var b strings.Builder
		for _, r := range strings.ToUpper(s) {
			if b.Len() == max {
				break
			}
			switch {
			case r == ' ' || r == '.':
			case r < utf8.RuneSelf && isShortChar(byte(r)):
				b.WriteRune(r)
			default:
				b.WriteByte('_')
			}
		}
		return b.String()
	}

	name = strings.TrimLeft(name, ".")
	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		base, ext = name[:i], name[i+1:]
	}
	base, ext = clean(base, 8), clean(ext, 3)
	if base == "" {
		base = "_"
	}
	return base, ext
}

// aliasFor generates a BASIS~N short name for name that taken does not report as used.
func aliasFor(name string, taken func([11]byte) bool) ([11]byte, error) {
	base, ext := basis(name)
	var raw [11]byte
	for n := 1; n < 1000000; n++ {
		tail := "~" + strconv.Itoa(n)
		head := base
		if len(head)+len(tail) > 8 {
			head = head[:8-len(tail)]
		}
		copy(raw[:], "           ")
		copy(raw[:8], head+tail)
		copy(raw[8:], ext)
		if !taken(raw) {
			return raw, nil
		}
	}
	return raw, checkpoint.New(ErrNoFreeSpace, "no short name left for %q", name)
}

// lfnChecksum is the checksum over a short name stored in each of its long name fragments.
func lfnChecksum(name [11]byte) byte {
	var sum byte
	for _, c := range name {
		sum = (sum>>1 | sum<<7) + c
	}
	return sum
}

// longNameEntries returns the fragments of name in on-disk order, last fragment first.
func longNameEntries(name string, short [11]byte) ([]LongFilenameEntry, error) {
	units, err := encodeUTF16(name)
	if err != nil {
		return nil, checkpoint.Wrapf(err, ErrInvalidName, "%q", name)
	}
	n := (len(units) + lfnChars - 1) / lfnChars
	if n == 0 || n > maxLFNEntries {
		return nil, checkpoint.New(ErrInvalidName, "%q needs %d long name entries", name, n)
	}

	padded := make([]uint16, n*lfnChars)
	copy(padded, units)
	// A short last fragment is terminated by 0x0000 and padded with 0xFFFF.
	for i := len(units) + 1; i < len(padded); i++ {
		padded[i] = 0xFFFF
	}

	sum := lfnChecksum(short)
	entries := make([]LongFilenameEntry, n)
	for i := range entries {
		order := n - i
		l := LongFilenameEntry{
			Sequence:  byte(order),
			Attribute: AttrLongName,
			Checksum:  sum,
		}
		if i == 0 {
			l.Sequence |= lfnLast
		}
		var chunk [lfnChars]uint16
		copy(chunk[:], padded[(order-1)*lfnChars:])
		l.SetUnits(chunk)
		entries[i] = l
	}
	return entries, nil
}

// validateName checks that name can be stored as a directory entry.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return checkpoint.New(ErrInvalidName, "%q", name)
	}
	if !utf8.ValidString(name) {
		return checkpoint.New(ErrInvalidName, "%q is not valid UTF-8", name)
	}
	if strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ") {
		return checkpoint.New(ErrInvalidName, "%q ends with a dot or space", name)
	}
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(`"*/:<>?\|`, r) {
			return checkpoint.New(ErrInvalidName, "%q contains %q", name, r)
		}
	}
	units, err := encodeUTF16(name)
	if err != nil {
		return checkpoint.Wrapf(err, ErrInvalidName, "%q", name)
	}
	if len(units) > maxNameUnits {
		return checkpoint.New(ErrInvalidName, "%q is longer than %d characters", name, maxNameUnits)
	}
	return nil
}
