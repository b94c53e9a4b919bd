package crc

import "sync"

// Poly32 is the reflected CRC-32 polynomial used by the BK and BL/WM
// drivers: 0xEDB88320 (the same polynomial zlib and Ethernet use, but
// without the stdlib's implicit final-XOR step — see CRC32's doc comment).
const Poly32 = 0xEDB88320

var (
	crc32TableOnce sync.Once
	crc32Table     [256]uint32
)

func crc32Tab() [256]uint32 {
	crc32TableOnce.Do(func() {
		for i := 0; i < 256; i++ {
			c := uint32(i)
			for bit := 0; bit < 8; bit++ {
				if c&1 != 0 {
					c = (c >> 1) ^ Poly32
				} else {
					c >>= 1
				}
			}
			crc32Table[i] = c
		}
	})
	return crc32Table
}

// CRC32 computes the reflected CRC-32 (poly 0xEDB88320) of data, seeded
// with init. Every caller in this repository passes 0xFFFFFFFF for init,
// matching the bootloaders' own CRC implementations.
//
// This is deliberately not go.dev/std's hash/crc32: the stdlib package
// treats the seed you pass to Update as an already-finalized checksum and
// internally inverts it twice (once on entry, once on exit) to reproduce
// the classic zlib/Ethernet CRC-32. The wire protocols here instead expose
// the running register directly — the same register value the firmware
// itself holds mid-computation — so a 0xFFFFFFFF seed must flow straight
// into the loop with no implicit inversion. Using hash/crc32 for this would
// silently produce a different value than the device computes.
func CRC32(init uint32, data []byte) uint32 {
	tab := crc32Tab()
	crc := init
	for _, b := range data {
		crc = tab[byte(crc)^b] ^ (crc >> 8)
	}
	return crc
}
