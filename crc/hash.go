package crc

import (
	"crypto/md5"
	"crypto/sha256"
)

// MaxHashBuffer is the largest buffer MD5 and SHA256 are expected to run
// over in this repository (one full device read/write), matching the
// spec's stated bound. Callers are not required to respect it; it exists
// purely as documentation of the expected working set.
const MaxHashBuffer = 16 << 20 // 16 MiB

// MD5 returns the MD5 digest of data, used by the ESP32 driver to verify a
// write against the device's SPI_FLASH_MD5 response.
func MD5(data []byte) [16]byte {
	return md5.Sum(data)
}

// SHA256 returns the SHA-256 digest of data, used by the BL602/702/616
// driver for read/write verification and boot-header construction.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}
