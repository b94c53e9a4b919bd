package transport

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// Mock is a Transport backed by an in-memory queue of canned responses,
// generalizing the teacher package's examples/mock_device pattern to a
// request/response byte stream instead of a fixed-latency passthrough.
//
// Writes are recorded (for assertions); reads are served from a queue of
// byte slices pushed with QueueResponse. This is the transport every driver
// test in this repository uses.
type Mock struct {
	mu        sync.Mutex
	writes    [][]byte
	responses [][]byte
	dtr, rts  []bool
	baud      int
	connected bool
	closed    bool
}

// NewMock creates a Mock transport with no queued responses.
func NewMock() *Mock {
	return &Mock{baud: 115200}
}

// QueueResponse appends bytes that will be returned, in order, by
// subsequent Read calls. A Read never joins two queued chunks; one whose
// buffer is smaller than the next chunk returns its first part and leaves
// the rest for the following Read.
func (m *Mock) QueueResponse(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, append([]byte(nil), p...))
}

// Writes returns every byte slice passed to Write so far, in order.
func (m *Mock) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	copy(out, m.writes)
	return out
}

// LastWrite returns the most recent Write payload, or nil if none occurred.
func (m *Mock) LastWrite() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return nil
	}
	return m.writes[len(m.writes)-1]
}

func (m *Mock) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.connected = true
	m.closed = false
	return nil
}

func (m *Mock) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.connected = false
	return nil
}

func (m *Mock) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	m.writes = append(m.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (m *Mock) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	if len(m.responses) == 0 {
		return 0, ErrReadTimeout
	}
	chunk := m.responses[0]
	m.responses = m.responses[1:]
	n := copy(p, chunk)
	if n < len(chunk) {
		// Caller's buffer was smaller than the queued chunk; requeue the
		// remainder so nothing is lost.
		m.responses = append([][]byte{chunk[n:]}, m.responses...)
	}
	return n, nil
}

func (m *Mock) SetReadTimeout(d time.Duration) error { return nil }

func (m *Mock) SetBaud(baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baud = baud
	return nil
}

func (m *Mock) SetDTR(assert bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dtr = append(m.dtr, assert)
	return true, nil
}

func (m *Mock) SetRTS(assert bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rts = append(m.rts, assert)
	return true, nil
}

func (m *Mock) ResetBuffers() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = nil
	return nil
}

// Baud reports the most recently set baud rate.
func (m *Mock) Baud() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baud
}

// AllWritesConcat concatenates every Write payload, useful for tests that
// want to assert on the whole byte stream a driver produced.
func (m *Mock) AllWritesConcat() []byte {
	var buf bytes.Buffer
	for _, w := range m.Writes() {
		buf.Write(w)
	}
	return buf.Bytes()
}

var _ Transport = (*Mock)(nil)
