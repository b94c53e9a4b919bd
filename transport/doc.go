// Package transport defines the byte-stream contract that every chip driver
// consumes to talk to a device over a UART.
//
// # Overview
//
// Drivers never open a serial port themselves. Instead the caller constructs
// a Transport (typically a *Serial, backed by go.bug.st/serial) and hands it
// to a driver constructor. This keeps the drivers hardware-independent and
// testable: unit tests substitute a Transport backed by an in-memory pipe
// that plays back canned bootloader responses.
//
// # Capability model
//
// Transport is deliberately small. Two control-line setters (SetDTR, SetRTS)
// report whether the signal was honoured rather than erroring, because many
// hosts (and many USB-serial adapters) cannot assert them at all — a driver
// that requires DTR/RTS must treat a false return as "try the next recovery
// method", not as a fatal error.
//
// Port enumeration is a separate, optional capability (PortEnumeration)
// because no driver needs it; only the outer CLI does, to populate a --port
// flag's help text or a picker.
package transport
