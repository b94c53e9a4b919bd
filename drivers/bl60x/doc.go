// Package bl60x implements the length-prefixed command protocol
// BL602/BL702/BL616 ROM bootloaders speak, and the flasher.Driver that
// drives it: sync, bootrom variant detection, eflash-loader upload
// (BL602/702) or direct config (BL616), flash identification, and
// sector-granularity read/write with SHA-256 verification.
//
// Every command frame is a 4-byte header (opcode, checksum, length_lo,
// length_hi) followed by length payload bytes. Responses begin with two
// ASCII status bytes: "OK" (success), "FL" (failure), or "PD" (pending,
// polled every 20ms).
package bl60x
