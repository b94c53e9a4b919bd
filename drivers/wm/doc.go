// Package wm implements the 0x21-framed command protocol the W600 and W800
// Wi-Fi/BLE bootloaders speak, and the flasher.Driver that drives it: sync
// on a stream of 'C' bytes (or the secboot-interrupt sequence), flash-ID,
// W800-only stub upload over XMODEM-1K, baud switching, W800-only fast
// read, and write via either a direct-passthrough FLS payload or a raw
// binary wrapped in a family-specific pseudo-FLS header.
//
// Every command is framed as
// 0x21 | total_len[2 LE] | crc16[2 LE] | cmd_type[4 LE] | params, where
// crc16 is CRC-16/CCITT-FALSE over cmd_type+params and total_len counts
// cmd_type+params+2 (the CRC itself).
package wm
