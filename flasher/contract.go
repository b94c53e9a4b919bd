package flasher

import "context"

// Driver is the uniform operation surface every chip-family driver
// exposes. Read populates an internal buffer retrieved with
// ReadResult; Write verifies what it wrote before returning. All
// operations are cooperatively cancellable via ctx: a driver checks
// ctx.Err() between sectors, between packets, and between sync retries,
// and returns a *CancelledError promptly rather than guaranteeing any
// particular amount of work completes.
//
// A Driver is owned by one caller for the lifetime of one Connect/Dispose
// pair; operations are not safe to call concurrently on the same Driver.
type Driver interface {
	// Connect acquires the transport and brings the device into
	// bootloader mode (sync, baud negotiation, flash identification).
	Connect(ctx context.Context) error

	// Read reads sectors [startSector, startSector+sectors) into the
	// driver's internal result buffer. fullRead requests verification of
	// the entire read against the device's own checksum/hash, where the
	// protocol supports it.
	Read(ctx context.Context, startSector, sectors int, fullRead bool) error

	// Write writes bytes starting at byte offset startOffset, then
	// verifies what was written.
	Write(ctx context.Context, startOffset uint32, bytes []byte) error

	// Erase erases sectors [startSector, startSector+sectors). eraseAll
	// requests a full-chip erase where the protocol offers a dedicated
	// command, reporting whether the erase actually ran.
	Erase(ctx context.Context, startSector, sectors int, eraseAll bool) (bool, error)

	// ReadResult returns the buffer populated by the most recent Read, or
	// nil if Read has not been called.
	ReadResult() []byte

	// Dispose releases the transport and any subscriptions. Safe to call
	// more than once.
	Dispose() error
}
