package transport

import (
	"context"
	"errors"
	"time"
)

// ErrTransportOpen is returned by Connect when the underlying port cannot be
// acquired (permission denied, device missing, already in use by another
// process).
var ErrTransportOpen = errors.New("transport: failed to open port")

// ErrTransportWrite is returned by Write when bytes could not be handed to
// the underlying port.
var ErrTransportWrite = errors.New("transport: write failed")

// ErrClosed is returned by any operation attempted after Disconnect.
var ErrClosed = errors.New("transport: closed")

// Transport is the abstract duplex byte stream a driver consumes. It is the
// only capability every driver requires; implementations are free to layer
// buffering, retries, or logging underneath.
//
// A Transport is owned exclusively by one driver for the lifetime of one
// operation (spec: the outer application must not invoke the transport
// while a driver is running). Disconnect is always safe to call, including
// on an already-closed or never-opened Transport.
type Transport interface {
	// Connect acquires the underlying port. Returns ErrTransportOpen (or a
	// wrapping error) on failure.
	Connect(ctx context.Context) error

	// Disconnect releases the port. Idempotent.
	Disconnect() error

	// Write sends bytes, preserving order. It may buffer internally but
	// must not reorder or drop bytes it accepts.
	Write(p []byte) (int, error)

	// Read reads into p, blocking until at least one byte is available or
	// the deadline set by SetReadTimeout elapses. Callers distinguish a
	// timeout by checking errors.Is(err, ErrReadTimeout).
	Read(p []byte) (int, error)

	// SetReadTimeout bounds the next and all subsequent Read calls until
	// changed again. A timeout of zero disables the deadline.
	SetReadTimeout(d time.Duration) error

	// SetBaud changes the bit rate used for bytes written and read after
	// this call returns. The contract only promises the new rate applies
	// to subsequent bytes; implementations that must close and reopen the
	// port to change baud do so transparently and resume delivering bytes
	// normally, but callers should expect up to a ~50ms blackout and one
	// lost partial frame around the call (drivers re-subscribe afterwards
	// by simply continuing to call Read).
	SetBaud(baud int) error

	// SetDTR asserts or releases the DTR control line. The returned bool
	// reports whether the host was able to honour the request; a false
	// result is not an error — some hosts cannot assert DTR/RTS at all.
	SetDTR(assert bool) (bool, error)

	// SetRTS asserts or releases the RTS control line. See SetDTR.
	SetRTS(assert bool) (bool, error)

	// ResetBuffers discards any buffered but unread input and any buffered
	// but unsent output. No driver in this repository calls it.
	ResetBuffers() error
}

// ErrReadTimeout is returned by Read (wrapped) when SetReadTimeout's
// deadline elapses before any byte arrives.
var ErrReadTimeout = errors.New("transport: read timeout")

// PortEnumeration is an optional capability a Transport implementation may
// additionally satisfy. No driver in this repository uses it; it exists for
// the outer application (CLI, GUI) to list candidate ports.
type PortEnumeration interface {
	AvailablePorts() ([]string, error)
}
