package transport

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial is a Transport backed by go.bug.st/serial. It is the transport the
// CLI uses by default; drivers themselves only ever see the Transport
// interface.
//
// Baud changes close and reopen the underlying port, mirroring the pattern
// in sxwebdev-esp32flasher's SetBaudRate: go.bug.st/serial has no "change
// baud in place" call, so the port is closed, reopened with the new Mode,
// and reads resume transparently from the caller's point of view.
type Serial struct {
	mu       sync.Mutex
	portName string
	baud     int
	port     serial.Port
}

// NewSerial creates a Serial transport for portName at the given initial
// baud rate. The port is not opened until Connect is called.
func NewSerial(portName string, initialBaud int) *Serial {
	return &Serial{portName: portName, baud: initialBaud}
}

func (s *Serial) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: s.baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
}

// Connect opens the port. ctx is observed only to allow the caller to
// cancel slow platform-level opens; go.bug.st/serial itself has no
// context-aware Open.
func (s *Serial) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	port, err := serial.Open(s.portName, s.mode())
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransportOpen, s.portName, err)
	}
	s.port = port
	return nil
}

// Disconnect closes the port. Safe to call multiple times.
func (s *Serial) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return 0, ErrClosed
	}
	n, err := port.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrTransportWrite, err)
	}
	return n, nil
}

func (s *Serial) Read(p []byte) (int, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return 0, ErrClosed
	}
	n, err := port.Read(p)
	if err != nil {
		if isTimeout(err) {
			return n, fmt.Errorf("%w: %v", ErrReadTimeout, err)
		}
		if err == io.EOF {
			return n, io.EOF
		}
		return n, err
	}
	if n == 0 {
		// go.bug.st/serial returns (0, nil) on read-timeout rather than an
		// error on some platforms; normalize to ErrReadTimeout so callers
		// have one thing to check.
		return 0, ErrReadTimeout
	}
	return n, nil
}

func isTimeout(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func (s *Serial) SetReadTimeout(d time.Duration) error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return ErrClosed
	}
	if d <= 0 {
		return port.SetReadTimeout(serial.NoTimeout)
	}
	return port.SetReadTimeout(d)
}

// SetBaud closes and reopens the port at the new rate. Per the transport
// contract, at most a short blackout is expected around the call; callers
// simply keep calling Read afterwards.
func (s *Serial) SetBaud(baud int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return ErrClosed
	}
	if err := s.port.Close(); err != nil {
		return err
	}
	s.baud = baud

	port, err := serial.Open(s.portName, s.mode())
	if err != nil {
		return fmt.Errorf("%w: reopen at %d baud: %v", ErrTransportOpen, baud, err)
	}
	s.port = port
	return nil
}

func (s *Serial) SetDTR(assert bool) (bool, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return false, ErrClosed
	}
	if err := port.SetDTR(assert); err != nil {
		// Some hosts simply cannot assert DTR. That is not fatal: report
		// "not honoured" rather than propagating the error.
		return false, nil
	}
	return true, nil
}

func (s *Serial) SetRTS(assert bool) (bool, error) {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return false, ErrClosed
	}
	if err := port.SetRTS(assert); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Serial) ResetBuffers() error {
	s.mu.Lock()
	port := s.port
	s.mu.Unlock()

	if port == nil {
		return ErrClosed
	}
	if err := port.ResetInputBuffer(); err != nil {
		return err
	}
	return port.ResetOutputBuffer()
}

// AvailablePorts implements the optional PortEnumeration capability.
func (s *Serial) AvailablePorts() ([]string, error) {
	return serial.GetPortsList()
}

var _ Transport = (*Serial)(nil)
var _ PortEnumeration = (*Serial)(nil)
