// Package crc implements the checksum and hash primitives the drivers use
// to verify flash contents: CRC-32 (reflected, polynomial 0xEDB88320),
// CRC-16/CCITT-FALSE, CRC-16/XMODEM, and thin wrappers around the stdlib
// MD5 and SHA-256 implementations.
//
// All functions are pure: given the same input they always return the same
// output, and none retains state across calls. Table construction for the
// two CRC-16 variants is memoized lazily via sync.Once, following the same
// "compute once, reuse forever" shape the teacher package uses for its
// packet checksum tables.
package crc
