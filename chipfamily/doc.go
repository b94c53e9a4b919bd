// Package chipfamily identifies the chip families this repository flashes
// and the handful of family-specific constants a caller needs before it
// picks a driver: a display name, the firmware-backup filename prefix, and
// which of the four wire protocols applies.
//
// Family is a tagged sum type (a bounded int with methods), not an
// enum-with-methods dispatch table: each method is a direct switch over the
// family's own value, so adding a family means touching this one file
// rather than hunting down scattered type switches elsewhere.
package chipfamily
