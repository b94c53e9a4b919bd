package esp32

import (
	"encoding/binary"
	"fmt"
)

// Opcodes, per the esptool-compatible ROM/stub command set.
const (
	OpFlashBegin      byte = 0x02
	OpFlashData       byte = 0x03
	OpFlashEnd        byte = 0x04
	OpMemBegin        byte = 0x05
	OpMemEnd          byte = 0x06
	OpMemData         byte = 0x07
	OpSync            byte = 0x08
	OpWriteReg        byte = 0x09
	OpReadReg         byte = 0x0A
	OpSPIAttach       byte = 0x0D
	OpReadFlashSlow   byte = 0x0E
	OpChangeBaudrate  byte = 0x0F
	OpSPIFlashMD5     byte = 0x13
	OpGetSecurityInfo byte = 0x14
	OpReadFlash       byte = 0xD2
)

// memBlockSize is the chunk size MEM_DATA blocks during stub upload.
const memBlockSize = 0x1800

// flashDataBlockSize is the chunk size FLASH_DATA blocks during a write.
const flashDataBlockSize = 0x400

// readFlashBlockSize and readFlashMaxInFlight parameterize READ_FLASH's
// fast streaming path: block size for the stub's progress acks, and how
// many unacknowledged blocks may be outstanding at once.
const (
	readFlashBlockSize    = 0x1000
	readFlashMaxInFlight  = 64
	readFlashSlowPerBlock = 64
)

// BuildCommand frames a command as
// [0x00, op, len_lo, len_hi, checksum(4 LE), data].
func BuildCommand(op byte, checksum uint32, data []byte) []byte {
	frame := make([]byte, 8, 8+len(data))
	frame[0] = 0x00
	frame[1] = op
	binary.LittleEndian.PutUint16(frame[2:4], uint16(len(data)))
	binary.LittleEndian.PutUint32(frame[4:8], checksum)
	return append(frame, data...)
}

// ParseResponse validates a response's fixed prefix
// [0x01, op, len_lo, len_hi, value(4 LE), data..., status(2)] and returns
// the opcode, value, body (excluding the trailing 2-byte status), and
// whether the status byte reported an error.
func ParseResponse(frame []byte) (op byte, value uint32, body []byte, errStatus bool, err error) {
	if len(frame) < 10 {
		return 0, 0, nil, false, fmt.Errorf("esp32: response too short: %d bytes", len(frame))
	}
	if frame[0] != 0x01 {
		return 0, 0, nil, false, fmt.Errorf("esp32: bad response direction byte %#x", frame[0])
	}
	op = frame[1]
	value = binary.LittleEndian.Uint32(frame[4:8])
	body = frame[8 : len(frame)-2]
	status := frame[len(frame)-2]
	errStatus = status != 0
	return op, value, body, errStatus, nil
}

// XorChecksum computes the rolling XOR checksum MEM_DATA/FLASH_DATA blocks
// carry, seeded with 0xEF.
func XorChecksum(data []byte) uint32 {
	sum := byte(0xEF)
	for _, b := range data {
		sum ^= b
	}
	return uint32(sum)
}

// SyncPayload is the fixed payload OpSync sends: 07 07 12 20 followed by
// 32 bytes of 0x55.
func SyncPayload() []byte {
	payload := make([]byte, 0, 4+32)
	payload = append(payload, 0x07, 0x07, 0x12, 0x20)
	for i := 0; i < 32; i++ {
		payload = append(payload, 0x55)
	}
	return payload
}

// ChipIDFromMagic maps the magic value read from register 0x40001000 to a
// chip name, for devices too old to support GET_SECURITY_INFO.
func ChipIDFromMagic(magic uint32) string {
	switch magic {
	case 0x00F01D83:
		return "ESP32"
	case 0x000007C6:
		return "ESP32-S2"
	case 0xFFF0C101:
		return "ESP8266"
	default:
		return "unknown"
	}
}

// spiRegisters holds the SPI controller register offsets used to drive
// flash-ID reads without a stub. Base addresses differ between ESP32 (ROM
// SPI controller at 0x3FF42000) and ESP32-S3/C3 (0x60002000).
type spiRegisters struct {
	Base    uint32
	Cmd     uint32
	Usr     uint32
	Usr1    uint32
	Usr2    uint32
	W0      uint32
}

// SPIRegistersFor returns the register set for family name "esp32",
// "esp32s3", or "esp32c3".
func SPIRegistersFor(family string) spiRegisters {
	if family == "esp32" {
		return spiRegisters{Base: 0x3FF42000, Cmd: 0x00, Usr: 0x1C, Usr1: 0x20, Usr2: 0x24, W0: 0x80}
	}
	return spiRegisters{Base: 0x60002000, Cmd: 0x00, Usr: 0x18, Usr1: 0x1C, Usr2: 0x20, W0: 0x58}
}
