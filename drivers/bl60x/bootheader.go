package bl60x

import (
	"encoding/binary"

	"github.com/go-embedded/chipflash/crc"
)

// BootHeaderSize is the fixed size of the boot header written at flash
// offset 0.
const BootHeaderSize = 176

// bootMagic is the boot header's fixed magic value.
const bootMagic = 0x504E4642

// ImageStart is the fixed offset firmware is loaded at; FirmwareOffset in
// the boot header always points here.
const ImageStart = 0x1000

// FlashConfig carries the per-flash timing fields the boot header embeds,
// as supplied by the caller of BuildBootHeader.
type FlashConfig struct {
	ClockConfig uint32
	IoMode      uint32
	Timing      [8]byte
}

// BuildBootHeader assembles the 176-byte boot header describing firmware,
// per the magic/clock/boot-config/length/entry/image-start/SHA-256/CRC-32
// layout BL602 and BL702 bootroms expect at offset 0. Each CRC-32 is
// cumulative over everything before it, the same nesting the real ROM
// header uses for its flash-config, clock-config, and whole-header checks.
//
// Field layout (all little-endian):
//
//	[0:4]     magic (0x504E4642)
//	[4:12]    flash timing (FlashConfig.Timing)
//	[12:16]   clock configuration
//	[16:20]   boot configuration
//	[20:24]   firmware length
//	[24:28]   entry point (always 0)
//	[28:32]   image start (always ImageStart)
//	[32:96]   reserved (zero)
//	[96:100]  CRC-32 over [0:96), the flash-config substructure
//	[100:112] reserved (zero)
//	[112:116] CRC-32 over [0:112), the clock/boot-config substructure
//	[116:132] reserved (zero)
//	[132:164] SHA-256 of the firmware
//	[164:172] reserved (zero)
//	[172:176] CRC-32 over [0:172), the whole header
func BuildBootHeader(cfg FlashConfig, bootConfig uint32, firmware []byte) []byte {
	h := make([]byte, BootHeaderSize)
	binary.LittleEndian.PutUint32(h[0:4], bootMagic)
	copy(h[4:12], cfg.Timing[:])
	binary.LittleEndian.PutUint32(h[12:16], cfg.ClockConfig)
	binary.LittleEndian.PutUint32(h[16:20], bootConfig)
	binary.LittleEndian.PutUint32(h[20:24], uint32(len(firmware)))
	binary.LittleEndian.PutUint32(h[24:28], 0)
	binary.LittleEndian.PutUint32(h[28:32], ImageStart)

	crc1 := crc.CRC32(0xFFFFFFFF, h[0:96])
	binary.LittleEndian.PutUint32(h[96:100], crc1)

	crc2 := crc.CRC32(0xFFFFFFFF, h[0:112])
	binary.LittleEndian.PutUint32(h[112:116], crc2)

	sum := crc.SHA256(firmware)
	copy(h[132:164], sum[:])

	crc3 := crc.CRC32(0xFFFFFFFF, h[0:172])
	binary.LittleEndian.PutUint32(h[172:176], crc3)

	return h
}
