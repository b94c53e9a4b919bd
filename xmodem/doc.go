// Package xmodem implements a sender-only XMODEM-1K transfer, the framing
// the BL602/702/616 and WM W600/W800 bootloaders use once a device has
// synced and is ready to receive a loader stub or firmware image.
//
// The sender is a small state machine: wait for the receiver's initiation
// byte (which selects checksum or CRC-16 mode), send fixed 1024-byte data
// packets until the buffer is exhausted, then send EOT until acknowledged.
// It knows nothing about flash addresses or chip families; callers hand it
// a transport and a byte slice and get back an error or nil.
package xmodem
