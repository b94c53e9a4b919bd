package bl60x

import (
	"encoding/binary"
	"fmt"
)

// Opcodes, per the BL602/702/616 ROM bootloader command set.
const (
	OpGetBootInfo    byte = 0x10
	OpLoadBootHeader byte = 0x11
	OpLoadSegHeader  byte = 0x17
	OpLoadSegData    byte = 0x18
	OpCheckImage     byte = 0x19
	OpRunImage       byte = 0x1A
	OpFlashErase     byte = 0x30
	OpFlashWrite     byte = 0x31
	OpFlashRead      byte = 0x32
	OpFlashID        byte = 0x36
	OpFlashEraseAll  byte = 0x3C
	OpFlashSHA256    byte = 0x3D
	OpBL616Config    byte = 0x3B
)

// maxChunk bounds OpLoadSegData payload chunks.
const maxChunk = 4092

// maxWriteChunk bounds OpFlashWrite payload chunks (4 bytes of address
// precede the data).
const maxWriteChunk = 4092

// checksum8 is the running-sum checksum BuildCommand uses over the
// length and payload bytes.
func checksum8(length uint16, payload []byte) byte {
	var sum byte
	sum += byte(length)
	sum += byte(length >> 8)
	for _, b := range payload {
		sum += b
	}
	return sum
}

// BuildCommand frames opcode and payload as [opcode, checksum, len_lo,
// len_hi, payload...].
func BuildCommand(opcode byte, payload []byte) []byte {
	length := uint16(len(payload))
	frame := make([]byte, 4, 4+len(payload))
	frame[0] = opcode
	frame[1] = checksum8(length, payload)
	frame[2] = byte(length)
	frame[3] = byte(length >> 8)
	return append(frame, payload...)
}

// ResponseKind classifies a response's two-byte status prefix.
type ResponseKind int

const (
	ResponseUnknown ResponseKind = iota
	ResponseOK
	ResponseFail
	ResponsePending
)

// ParseResponseKind inspects the first two ASCII bytes of a response.
func ParseResponseKind(b []byte) (ResponseKind, error) {
	if len(b) < 2 {
		return ResponseUnknown, fmt.Errorf("bl60x: response too short: %d bytes", len(b))
	}
	switch string(b[:2]) {
	case "OK":
		return ResponseOK, nil
	case "FL":
		return ResponseFail, nil
	case "PD":
		return ResponsePending, nil
	default:
		return ResponseUnknown, fmt.Errorf("bl60x: unrecognised response prefix %q", b[:2])
	}
}

// Variant identifies which of the three bootrom flavours responded to
// OpGetBootInfo.
type Variant int

const (
	VariantBL602 Variant = iota
	VariantBL702
	VariantBL616
)

func (v Variant) String() string {
	switch v {
	case VariantBL702:
		return "BL702"
	case VariantBL616:
		return "BL616"
	default:
		return "BL602"
	}
}

// DetectVariant inspects the bootrom version bytes OpGetBootInfo returns
// and classifies the chip by its leading hex digits.
func DetectVariant(bootInfo []byte) Variant {
	if len(bootInfo) < 4 {
		return VariantBL602
	}
	lead := binary.BigEndian.Uint32(bootInfo[:4]) >> 20
	switch lead {
	case 0x702, 0x704, 0x706:
		return VariantBL702
	case 0x616, 0x618:
		return VariantBL616
	default:
		return VariantBL602
	}
}

// DecodeFlashSize decodes opcode 0x36's 4-byte response into a size in
// bytes: byte[3]-0x11 is log2 of the size in 8-bit groups.
func DecodeFlashSize(resp []byte) (uint32, error) {
	if len(resp) < 4 {
		return 0, fmt.Errorf("bl60x: flash-ID response too short: %d bytes", len(resp))
	}
	shift := resp[3] - 0x11
	sizeMB := (uint32(1) << shift) / 8
	return sizeMB * 1024 * 1024, nil
}
