package xmodem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-embedded/chipflash/crc"
	"github.com/go-embedded/chipflash/transport"
)

const (
	soh byte = 0x01
	stx byte = 0x02
	eot byte = 0x04
	ack byte = 0x06
	nak byte = 0x15
	can byte = 0x18

	blockSize = 1024
)

// ErrInitiationFailed is returned when the receiver does not offer a
// recognised mode ('C' for CRC-16, NAK for checksum) before the initiation
// timeout elapses.
var ErrInitiationFailed = errors.New("xmodem: initiation failed")

// ErrCancelled is returned when the receiver answers a packet or the EOT
// with CAN.
var ErrCancelled = errors.New("xmodem: transfer cancelled")

// ErrRetriesExhausted is returned when a packet is NAKed or times out more
// than MaxRetries times in a row.
var ErrRetriesExhausted = errors.New("xmodem: retries exhausted")

// Progress is reported after every successfully acknowledged packet.
type Progress struct {
	BytesSent int
	Total     int
	Block     int
	Offset    uint32
}

// ProgressFunc receives a Progress after each acknowledged packet. May be
// nil.
type ProgressFunc func(Progress)

// Options configures a Sender. NewOptions returns the defaults; NewSender
// also replaces zero-valued fields with those defaults.
type Options struct {
	// PadByte fills out the final, short packet. WM bootloaders require
	// 0xFF; BL60x accepts 0xFF as well. Defaults to 0xFF.
	PadByte byte

	// MaxRetries bounds how many times a single packet may be NAKed or
	// time out before the transfer aborts. Defaults to 5.
	MaxRetries int

	// InitiationTimeout bounds how long the sender waits for the
	// receiver's first mode byte. Defaults to 10s, matching the longer
	// erase windows some bootloaders need before they're ready to
	// receive.
	InitiationTimeout time.Duration

	// ResponseTimeout bounds how long the sender waits for ACK/NAK after
	// each packet. Defaults to 3s.
	ResponseTimeout time.Duration

	// OnProgress is called after every acknowledged packet. May be nil.
	OnProgress ProgressFunc
}

// NewOptions returns Options populated with this package's defaults.
func NewOptions() Options {
	return Options{
		PadByte:           0xFF,
		MaxRetries:        5,
		InitiationTimeout: 10 * time.Second,
		ResponseTimeout:   3 * time.Second,
	}
}

// Sender drives a single XMODEM-1K transfer over a transport.Transport. It
// holds no state between calls to Send; a Sender may be reused for
// successive transfers.
type Sender struct {
	opts Options
}

// NewSender returns a Sender configured by opts. Zero-value fields in opts
// that matter (MaxRetries <= 0, timeouts <= 0) fall back to NewOptions'
// defaults.
func NewSender(opts Options) *Sender {
	d := NewOptions()
	if opts.PadByte != 0 {
		d.PadByte = opts.PadByte
	}
	if opts.MaxRetries > 0 {
		d.MaxRetries = opts.MaxRetries
	}
	if opts.InitiationTimeout > 0 {
		d.InitiationTimeout = opts.InitiationTimeout
	}
	if opts.ResponseTimeout > 0 {
		d.ResponseTimeout = opts.ResponseTimeout
	}
	if opts.OnProgress != nil {
		d.OnProgress = opts.OnProgress
	}
	return &Sender{opts: d}
}

// Send transfers data over t, starting at the given offset (used only for
// progress reporting — XMODEM carries no address). It blocks until the
// receiver acknowledges the final EOT, ctx is cancelled, or the transfer
// fails.
func (s *Sender) Send(ctx context.Context, t transport.Transport, data []byte, offset uint32) error {
	useCRC, err := s.awaitInitiation(ctx, t)
	if err != nil {
		return err
	}

	resp := make([]byte, 1)
	block := byte(1)
	sent := 0
	total := len(data)

	for sent < total || (sent == 0 && total == 0) {
		end := sent + blockSize
		if end > total {
			end = total
		}
		payload := make([]byte, blockSize)
		copy(payload, data[sent:end])
		for i := end - sent; i < blockSize; i++ {
			payload[i] = s.opts.PadByte
		}

		packet := make([]byte, 0, 3+blockSize+2)
		packet = append(packet, stx, block, 0xFF-block)
		packet = append(packet, payload...)
		if useCRC {
			c := crc.CRC16XMODEM(payload)
			packet = append(packet, byte(c>>8), byte(c))
		} else {
			var sum byte
			for _, b := range payload {
				sum += b
			}
			packet = append(packet, sum)
		}

		if err := s.sendPacketWithRetry(ctx, t, packet, resp); err != nil {
			return err
		}

		sent = end
		block++
		if s.opts.OnProgress != nil {
			s.opts.OnProgress(Progress{
				BytesSent: sent,
				Total:     total,
				Block:     int(block) - 1,
				Offset:    offset,
			})
		}
		if total == 0 {
			break
		}
	}

	return s.sendEOT(ctx, t, resp)
}

func (s *Sender) awaitInitiation(ctx context.Context, t transport.Transport) (useCRC bool, err error) {
	if err := t.SetReadTimeout(s.opts.InitiationTimeout); err != nil {
		return false, err
	}
	buf := make([]byte, 1)
	n, err := t.Read(buf)
	if err != nil || n == 0 {
		return false, fmt.Errorf("%w: %v", ErrInitiationFailed, err)
	}
	switch buf[0] {
	case 'C':
		return true, nil
	case nak:
		return false, nil
	default:
		return false, ErrInitiationFailed
	}
}

func (s *Sender) sendPacketWithRetry(ctx context.Context, t transport.Transport, packet, resp []byte) error {
	if err := t.SetReadTimeout(s.opts.ResponseTimeout); err != nil {
		return err
	}
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := t.Write(packet); err != nil {
			return err
		}
		n, err := t.Read(resp)
		if err != nil || n == 0 {
			continue
		}
		switch resp[0] {
		case ack:
			return nil
		case can:
			return ErrCancelled
		case nak:
			continue
		default:
			continue
		}
	}
	return ErrRetriesExhausted
}

func (s *Sender) sendEOT(ctx context.Context, t transport.Transport, resp []byte) error {
	if err := t.SetReadTimeout(s.opts.ResponseTimeout); err != nil {
		return err
	}
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := t.Write([]byte{eot}); err != nil {
			return err
		}
		n, err := t.Read(resp)
		if err != nil || n == 0 {
			continue
		}
		switch resp[0] {
		case ack:
			return nil
		case can:
			return ErrCancelled
		default:
			continue
		}
	}
	return ErrRetriesExhausted
}
