// Package partition parses and builds the BL602/BL702/BL616 on-chip flash
// partition table: a small binary structure, written at flash offset
// 0xE000 right after the boot header, describing up to sixteen named
// regions of flash (firmware, factory defaults, media, etc).
//
// # Table format
//
// A table is a 16-byte header followed by up to 16 fixed-size entries:
//
//	Header (16 bytes):
//	  magic    [4]byte  "BFPT"
//	  count    uint32   little-endian, number of valid entries (<= 16)
//	  age      uint32   little-endian, monotonic table generation
//	  crc32    uint32   little-endian, reflected CRC-32 over count, age,
//	                    and every entry's bytes
//
//	Entry (26 bytes), repeated count times:
//	  entryType uint8
//	  slotFlag  uint8
//	  name      [8]byte  ASCII, NUL-padded
//	  addr0     uint32   little-endian, slot 0 flash address
//	  addr1     uint32   little-endian, slot 1 flash address
//	  len0      uint32   little-endian, slot 0 length
//	  len1      uint32   little-endian, slot 1 length
//
// ParseTable and BuildTable are exact inverses for any well-formed buffer:
// BuildTable(ParseTable(x)) reproduces x byte for byte.
package partition
