// Package flashchip holds the static registry of SPI NOR flash chips the
// drivers know how to identify and unprotect: a closed set of roughly forty
// entries keyed by 24-bit manufacturer/device ID (MID). The BK7231 driver
// consults it after sync; the other drivers do not use it.
//
// The registry is built once at package init and never mutated afterward,
// so lookups need no locking. A linear scan over forty entries is simpler
// than a map or binary search and indistinguishable in practice; the set is
// closed and small enough that this isn't a real tradeoff.
package flashchip
