// Package esp32 implements the SLIP-framed command protocol the ESP32,
// ESP32-S3, and ESP32-C3 ROM bootloaders (and their RAM stub) speak, and
// the flasher.Driver that drives it: reset-into-bootloader, sync, SPI
// attach, register read/write for stub-less flash identification, stub
// upload, and baud switching.
//
// Every command is SLIP-encoded: framed by 0xC0, with 0xDB 0xDC and 0xDB
// 0xDD escaping 0xC0 and 0xDB respectively inside the payload.
package esp32
