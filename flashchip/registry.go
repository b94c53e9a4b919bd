package flashchip

import "fmt"

// FlashDescriptor describes one SPI NOR flash chip the drivers recognise by
// its 24-bit manufacturer/device ID.
type FlashDescriptor struct {
	// MID is the 24-bit JEDEC manufacturer/device ID this descriptor
	// matches, as returned by the device's "read MID" command.
	MID uint32

	// Name is a human-readable chip name for logs, e.g. "GD25Q41B".
	Name string

	// Vendor is the JEDEC-registered manufacturer name, e.g. "Winbond".
	Vendor string

	// IconName is a UI icon slug for the vendor, e.g. "winbond".
	IconName string

	// SizeBytes is the chip's total addressable flash size.
	SizeBytes uint32

	// StatusRegWidth is how many status-register bytes the unprotect
	// sequence must read and OR together before writing back the
	// unprotect word.
	StatusRegWidth int

	// SB and LB are the block-protect bit-field's start offset and length
	// within the OR'd status word. Mask, UnprotectWord, and ProtectWord
	// are all synthesised from SB/LB via bfd.
	SB uint8
	LB uint8

	// Mask has exactly the bits SB/LB cover set; the unprotect sequence
	// must touch only these bits and preserve the rest of the status
	// word (QE, SRP, and other chip-specific flags).
	Mask uint8

	// UnprotectWord is the bit pattern to OR into the protect field to
	// clear block protection. Every chip in this registry clears the
	// whole field, so this is always 0, but it is carried as its own
	// field (rather than hardcoded) so a future chip needing a non-zero
	// unprotect pattern (e.g. a TB/CMP bit that must stay set) only needs
	// a new registry entry, not a code change.
	UnprotectWord uint8

	// ProtectWord is the bit pattern the protect field holds once every
	// block-protect bit is set, i.e. Mask itself.
	ProtectWord uint8

	// ReadOpcodes and WriteOpcodes are the chip's standard SPI NOR opcodes:
	// ReadOpcodes in the order [single, fast, dual-out, quad-out] read,
	// WriteOpcodes in the order [page program, quad page program, sector
	// erase, block erase]. No driver reads them: the BK7231 driver talks to
	// flash exclusively through bootloader-level commands that already
	// select the right SPI opcode on-device.
	ReadOpcodes  [4]byte
	WriteOpcodes [4]byte
}

// standardReadOpcodes and standardWriteOpcodes are the SPI NOR command set
// every chip in this registry implements: single/fast/dual/quad read, and
// byte-program/quad-program/sector-erase/block-erase.
var (
	standardReadOpcodes  = [4]byte{0x03, 0x0B, 0x3B, 0x6B}
	standardWriteOpcodes = [4]byte{0x02, 0x32, 0x20, 0xD8}
)

// vendorInfo names a JEDEC manufacturer and a UI icon slug for it.
type vendorInfo struct {
	vendor   string
	iconName string
}

// vendorByPrefix maps a MID's high byte to its JEDEC-registered vendor.
var vendorByPrefix = map[uint32]vendorInfo{
	0xEF: {"Winbond", "winbond"},
	0xC8: {"GigaDevice", "gigadevice"},
	0x20: {"XTX", "xtx"},
	0x85: {"Puya", "puya"},
	0x1C: {"Eon", "eon"},
	0x0B: {"XTX", "xtx"},
	0x68: {"Boya", "boya"},
	0x5E: {"Zbit", "zbit"},
	0xA1: {"Fudan", "fudan"},
	0x8C: {"ESMT", "esmt"},
}

func vendorFor(mid uint32) vendorInfo {
	if v, ok := vendorByPrefix[mid>>16]; ok {
		return v
	}
	return vendorInfo{"Unknown", "generic"}
}

// newEntry builds a FlashDescriptor from the handful of facts that vary per
// chip. Every chip here puts its block-protect bits (BP0-BP2, and CMP/SEC/TB
// where the status register is wider than one byte) at bit 2, three bits
// wide; single-byte-status parts fold the whole register into the field
// since they expose no other status bits worth preserving. Mask,
// UnprotectWord, and ProtectWord are all derived from SB/LB through bfd, so
// they can never disagree with SB/LB.
func newEntry(mid uint32, name string, sizeBytes uint32, statusWidth int) FlashDescriptor {
	v := vendorFor(mid)
	sb, lb := uint8(2), uint8(3)
	if statusWidth == 1 {
		sb, lb = 0, 8
	}
	mask := bfd(0xFF, sb, lb)
	return FlashDescriptor{
		MID:            mid,
		Name:           name,
		Vendor:         v.vendor,
		IconName:       v.iconName,
		SizeBytes:      sizeBytes,
		StatusRegWidth: statusWidth,
		SB:             sb,
		LB:             lb,
		Mask:           mask,
		UnprotectWord:  bfd(0, sb, lb),
		ProtectWord:    mask,
		ReadOpcodes:    standardReadOpcodes,
		WriteOpcodes:   standardWriteOpcodes,
	}
}

var registry []FlashDescriptor

func init() {
	registry = []FlashDescriptor{
		newEntry(0xEF3013, "W25X40", 512*1024, 1),
		newEntry(0xEF4014, "W25Q80", 1*1024*1024, 1),
		newEntry(0xEF4015, "W25Q16", 2*1024*1024, 2),
		newEntry(0xEF4016, "W25Q32", 4*1024*1024, 2),
		newEntry(0xEF4017, "W25Q64", 8*1024*1024, 2),
		newEntry(0xEF4018, "W25Q128", 16*1024*1024, 2),
		newEntry(0xEF7018, "W25Q128JV", 16*1024*1024, 3),
		newEntry(0xC84013, "GD25Q40", 512*1024, 1),
		newEntry(0xC84014, "GD25Q80", 1*1024*1024, 1),
		newEntry(0xC84015, "GD25Q16", 2*1024*1024, 2),
		newEntry(0xC84016, "GD25Q32", 4*1024*1024, 2),
		newEntry(0xC84017, "GD25Q64", 8*1024*1024, 2),
		newEntry(0xC86514, "GD25WQ80", 1*1024*1024, 2),
		newEntry(0xC86515, "GD25WQ16", 2*1024*1024, 2),
		newEntry(0xC86516, "GD25WQ32", 4*1024*1024, 2),
		newEntry(0x204013, "XM25QH40", 512*1024, 1),
		newEntry(0x204014, "XM25QH80", 1*1024*1024, 1),
		newEntry(0x204015, "XM25QH16", 2*1024*1024, 2),
		newEntry(0x204016, "XM25QH32", 4*1024*1024, 2),
		newEntry(0x856013, "PY25Q40H", 512*1024, 1),
		newEntry(0x856014, "PY25Q80H", 1*1024*1024, 1),
		newEntry(0x856015, "PY25Q16H", 2*1024*1024, 2),
		newEntry(0x856016, "PY25Q32H", 4*1024*1024, 2),
		newEntry(0x1C3013, "EN25QH40", 512*1024, 1),
		newEntry(0x1C3014, "EN25QH80", 1*1024*1024, 1),
		newEntry(0x1C3015, "EN25QH16", 2*1024*1024, 2),
		newEntry(0x1C3016, "EN25QH32", 4*1024*1024, 2),
		newEntry(0x0B4014, "XTX25F08B", 1*1024*1024, 1),
		newEntry(0x0B4015, "XTX25F16B", 2*1024*1024, 2),
		newEntry(0x0B4016, "XTX25F32B", 4*1024*1024, 2),
		newEntry(0x684013, "BOYA25Q40", 512*1024, 1),
		newEntry(0x684014, "BOYA25Q80", 1*1024*1024, 1),
		newEntry(0x684015, "BOYA25Q16", 2*1024*1024, 2),
		newEntry(0x684016, "BOYA25Q32", 4*1024*1024, 2),
		newEntry(0x5E4014, "ZB25VQ80", 1*1024*1024, 1),
		newEntry(0x5E4015, "ZB25VQ16", 2*1024*1024, 2),
		newEntry(0x5E4016, "ZB25VQ32", 4*1024*1024, 2),
		newEntry(0xA13015, "FM25Q16", 2*1024*1024, 2),
		newEntry(0xA14016, "FM25Q32", 4*1024*1024, 2),
		newEntry(0x8C4014, "ESMT25QH80", 1*1024*1024, 1),
		newEntry(0x8C4015, "ESMT25QH16", 2*1024*1024, 2),
	}
}

// ErrUnknownFlash reports a MID with no matching FlashDescriptor. Drivers
// surface this as a recoverable error: the caller may continue only by
// explicitly setting a skip-unprotect option.
type ErrUnknownFlash struct {
	MID uint32
}

func (e *ErrUnknownFlash) Error() string {
	return fmt.Sprintf("flashchip: unknown flash MID 0x%06X", e.MID)
}

// Lookup returns the FlashDescriptor for mid, or an *ErrUnknownFlash if no
// entry matches. The scan is linear over a few dozen entries, which is fast
// enough that this is never worth optimising further.
func Lookup(mid uint32) (FlashDescriptor, error) {
	for _, d := range registry {
		if d.MID == mid {
			return d, nil
		}
	}
	return FlashDescriptor{}, &ErrUnknownFlash{MID: mid}
}

// All returns every registered FlashDescriptor, in registration order. The
// returned slice is a copy; mutating it does not affect the registry.
func All() []FlashDescriptor {
	out := make([]FlashDescriptor, len(registry))
	copy(out, registry)
	return out
}

// Count reports the number of registered flash descriptors.
func Count() int {
	return len(registry)
}
