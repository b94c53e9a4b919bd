package wm

import (
	"encoding/binary"
	"fmt"

	"github.com/go-embedded/chipflash/crc"
)

// secbootMagic is the 4-byte marker a raw binary's secboot header must
// begin with before it can be wrapped in a pseudo-FLS header.
var secbootMagic = [4]byte{0x9F, 0xFF, 0xFF, 0xA0}

// pseudoFLSHeaderSize is the header length by family: 44 bytes for W600,
// 48 for W800.
const (
	pseudoFLSHeaderSizeW600 = 44
	pseudoFLSHeaderSizeW800 = 48

	secbootBodyOffset = 0x2000
)

// ErrMissingSecbootHeader indicates a raw binary did not begin its body at
// secbootBodyOffset with the expected secboot magic.
var ErrMissingSecbootHeader = fmt.Errorf("wm: raw binary missing secboot header 0x9FFFFFA0 at offset 0x%X", secbootBodyOffset)

// BuildPseudoFLS carves body out of raw (the bytes from secbootBodyOffset
// onward), validates its secboot magic, and wraps it in a family pseudo-FLS
// header carrying the start address, length, payload CRC-32, and a header
// CRC-32 over everything preceding it.
func BuildPseudoFLS(isW800 bool, startAddr uint32, raw []byte) ([]byte, error) {
	if len(raw) < secbootBodyOffset+4 {
		return nil, ErrMissingSecbootHeader
	}
	body := raw[secbootBodyOffset:]
	if [4]byte{body[0], body[1], body[2], body[3]} != secbootMagic {
		return nil, ErrMissingSecbootHeader
	}

	headerSize := pseudoFLSHeaderSizeW600
	if isW800 {
		headerSize = pseudoFLSHeaderSizeW800
	}
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], startAddr)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(body)))
	payloadCRC := crc.CRC32(0xFFFFFFFF, body)
	binary.LittleEndian.PutUint32(header[8:12], payloadCRC)
	// Bytes [12:headerSize-4) are reserved padding, left zero.
	headerCRC := crc.CRC32(0xFFFFFFFF, header[:headerSize-4])
	binary.LittleEndian.PutUint32(header[headerSize-4:headerSize], headerCRC)

	out := make([]byte, 0, headerSize+len(body))
	out = append(out, header...)
	out = append(out, body...)
	return out, nil
}
