// Package bk7231 implements the HCI-style command protocol BK7231 and its
// siblings (BK7231T/U/N/M, BK7238, BK7236, BK7252, BK7252N, BK7258) speak in
// ROM-bootloader mode, and the flasher.Driver that drives it: bus
// acquisition, baud negotiation, flash identification and unprotect, an
// encryption-key sanity check, and sector-granularity read/write/erase with
// CRC-32 verification.
//
// Every command frame begins with the fixed header 0x01 0xE0 0xFC, in
// either a "short" form (header, 1-byte length, opcode, payload) or a
// "long" form (header, 0xFF 0xF4, 2-byte length, opcode, payload) used for
// payloads too large for the short form's single length byte. Responses
// mirror the request with a 0x04 0x0E framing prefix.
package bk7231
