package wm

import _ "embed"

// Bundled uncompressed for the same reason as the BL602/702 eflash-loader
// images: no third-party compression library appears anywhere in this
// repository's dependency corpus, and the stub is a handful of kilobytes
// either way.

//go:embed assets/stub_w800.bin
var stubW800 []byte

// StubW800 returns the bundled W800 RAM stub image, sent via XMODEM-1K
// before flash reads and writes.
func StubW800() []byte {
	return stubW800
}
