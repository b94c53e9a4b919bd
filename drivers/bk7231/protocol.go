package bk7231

import "fmt"

// Opcodes, per the BK7231 ROM bootloader command set.
const (
	OpLinkCheck      byte = 0x00
	OpWriteReg       byte = 0x01
	OpReadReg        byte = 0x03
	OpFlashWrite4K   byte = 0x07
	OpFlashRead4K    byte = 0x09
	OpFlashErase4K   byte = 0x0B
	OpFlashEraseSize byte = 0x0F // sub-opcode in payload[0]: 0x20 = 4K, 0xD8 = 64K
	OpFlashReadSR    byte = 0x0C
	OpFlashWriteSR   byte = 0x0D
	OpFlashGetMID    byte = 0x0E
	OpSetBaudRate    byte = 0x0F
	OpCheckCRC       byte = 0x10
)

var shortHeader = []byte{0x01, 0xE0, 0xFC}
var longHeaderTail = []byte{0xFF, 0xF4}
var responsePrefix = []byte{0x04, 0x0E}

// maxShortPayload is the largest payload the short framing's single
// length byte can carry.
const maxShortPayload = 255

// BuildCommand frames opcode and payload using the short form when payload
// fits in a single length byte, or the long form otherwise.
func BuildCommand(opcode byte, payload []byte) []byte {
	if len(payload) <= maxShortPayload {
		frame := make([]byte, 0, len(shortHeader)+2+len(payload))
		frame = append(frame, shortHeader...)
		frame = append(frame, byte(len(payload)+1), opcode)
		frame = append(frame, payload...)
		return frame
	}

	frame := make([]byte, 0, len(shortHeader)+len(longHeaderTail)+3+len(payload))
	frame = append(frame, shortHeader...)
	frame = append(frame, longHeaderTail...)
	l := uint16(len(payload) + 1)
	frame = append(frame, byte(l), byte(l>>8), opcode)
	frame = append(frame, payload...)
	return frame
}

// ParseResponse strips the fixed 0x04 0x0E framing prefix and the
// echoed-back length/opcode bytes, returning the opcode and payload.
func ParseResponse(frame []byte) (opcode byte, payload []byte, err error) {
	if len(frame) < 4 {
		return 0, nil, fmt.Errorf("bk7231: response too short: %d bytes", len(frame))
	}
	if frame[0] != responsePrefix[0] || frame[1] != responsePrefix[1] {
		return 0, nil, fmt.Errorf("bk7231: bad response prefix % X", frame[:2])
	}
	length := int(frame[2])
	if len(frame) < 3+length {
		return 0, nil, fmt.Errorf("bk7231: response declares %d bytes, have %d", length, len(frame)-3)
	}
	opcode = frame[3]
	payload = frame[4 : 3+length]
	return opcode, payload, nil
}

// LinkCheckCmd builds a LinkCheck command, used to probe bus acquisition.
func LinkCheckCmd() []byte {
	return BuildCommand(OpLinkCheck, nil)
}

// SetBaudRateCmd builds a SetBaudRate command for the given baud, encoded
// as a 4-byte little-endian value.
func SetBaudRateCmd(baud uint32) []byte {
	payload := []byte{byte(baud), byte(baud >> 8), byte(baud >> 16), byte(baud >> 24)}
	return BuildCommand(OpSetBaudRate, payload)
}

// FlashGetMIDCmd builds a FlashGetMID command.
func FlashGetMIDCmd() []byte {
	return BuildCommand(OpFlashGetMID, nil)
}

// FlashReadSRCmd builds a FlashReadSR command for the given status-register
// index (0-based) among a chip's multi-byte status word.
func FlashReadSRCmd(index byte) []byte {
	return BuildCommand(OpFlashReadSR, []byte{index})
}

// FlashWriteSRCmd builds a FlashWriteSR command writing value to
// status-register index.
func FlashWriteSRCmd(index byte, value byte) []byte {
	return BuildCommand(OpFlashWriteSR, []byte{index, value})
}

// FlashRead4KCmd builds a FlashRead4K command for the 4K sector at address.
func FlashRead4KCmd(address uint32) []byte {
	payload := []byte{byte(address), byte(address >> 8), byte(address >> 16), byte(address >> 24)}
	return BuildCommand(OpFlashRead4K, payload)
}

// FlashWrite4KCmd builds a FlashWrite4K command writing data (expected to
// be exactly 4096 bytes) to the sector at address.
func FlashWrite4KCmd(address uint32, data []byte) []byte {
	payload := make([]byte, 4, 4+len(data))
	payload[0] = byte(address)
	payload[1] = byte(address >> 8)
	payload[2] = byte(address >> 16)
	payload[3] = byte(address >> 24)
	payload = append(payload, data...)
	return BuildCommand(OpFlashWrite4K, payload)
}

// FlashErase4KCmd builds a FlashErase4K command for the sector at address.
func FlashErase4KCmd(address uint32) []byte {
	payload := []byte{byte(address), byte(address >> 8), byte(address >> 16), byte(address >> 24)}
	return BuildCommand(OpFlashErase4K, payload)
}

// Erase granularity sub-opcodes for FlashEraseSize.
const (
	EraseSub4K  byte = 0x20
	EraseSub64K byte = 0xD8
)

// FlashEraseSizeCmd builds a family-sized erase command for address, using
// sub as the granularity sub-opcode (EraseSub4K or EraseSub64K).
func FlashEraseSizeCmd(sub byte, address uint32) []byte {
	payload := []byte{sub, byte(address), byte(address >> 8), byte(address >> 16), byte(address >> 24)}
	return BuildCommand(OpFlashEraseSize, payload)
}

// CheckCRCCmd builds a CheckCRC command over the half-open byte range
// [start, end).
func CheckCRCCmd(start, end uint32) []byte {
	payload := []byte{
		byte(start), byte(start >> 8), byte(start >> 16), byte(start >> 24),
		byte(end), byte(end >> 8), byte(end >> 16), byte(end >> 24),
	}
	return BuildCommand(OpCheckCRC, payload)
}

// WriteRegCmd builds a WriteReg command writing value to the 32-bit
// register at addr.
func WriteRegCmd(addr, value uint32) []byte {
	payload := []byte{
		byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24),
		byte(value), byte(value >> 8), byte(value >> 16), byte(value >> 24),
	}
	return BuildCommand(OpWriteReg, payload)
}

// ReadRegCmd builds a ReadReg command reading the 32-bit register at addr.
func ReadRegCmd(addr uint32) []byte {
	payload := []byte{byte(addr), byte(addr >> 8), byte(addr >> 16), byte(addr >> 24)}
	return BuildCommand(OpReadReg, payload)
}
