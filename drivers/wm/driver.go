package wm

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"

	"github.com/go-embedded/chipflash/chipfamily"
	"github.com/go-embedded/chipflash/crc"
	"github.com/go-embedded/chipflash/flasher"
	"github.com/go-embedded/chipflash/transport"
	"github.com/go-embedded/chipflash/xmodem"
)

const (
	syncWindow      = 2 * time.Second
	syncMinCBytes   = 3
	maxSyncAttempts = 1000

	secbootEscCount    = 250
	secbootEscInterval = 1 * time.Millisecond

	targetBaud = 921600
)

// Driver implements flasher.Driver for the WM W600 and W800 family.
type Driver struct {
	t      transport.Transport
	family chipfamily.Family
	cfg    flasher.Config

	isW800         bool
	stubAlive      bool
	flashIDs       []byte
	flashSizeBytes uint32
	result         []byte
}

// New returns a Driver for family (chipfamily.W600 or chipfamily.W800),
// communicating over t, configured by opts.
func New(t transport.Transport, family chipfamily.Family, opts ...flasher.Option) *Driver {
	return &Driver{t: t, family: family, isW800: family == chipfamily.W800, cfg: flasher.Apply(opts...)}
}

func (d *Driver) log(level flasher.LogLevel, msg string, kv ...interface{}) {
	flasher.Log(d.cfg.Logger, level, msg, kv...)
}

func (d *Driver) setState(s flasher.State) {
	if d.cfg.StateCallback != nil {
		d.cfg.StateCallback(s)
	}
}

// Connect syncs with the bootloader (interrupting secboot mode if needed),
// reads the flash ID, and, on W800, uploads and starts the RAM stub.
func (d *Driver) Connect(ctx context.Context) error {
	d.setState(flasher.Opening)
	if err := d.t.Connect(ctx); err != nil {
		return &flasher.TransportOpenError{Err: err}
	}

	d.setState(flasher.Syncing)
	if err := d.sync(ctx); err != nil {
		return err
	}

	d.setState(flasher.Identifying)
	if err := d.readFlashID(); err != nil {
		d.log(flasher.LogWarn, "flash ID read failed, continuing", "err", err)
	}

	if !d.isW800 {
		d.setState(flasher.Configuring)
		return nil
	}

	d.setState(flasher.Configuring)
	if err := d.uploadStub(ctx); err != nil {
		return err
	}
	if err := d.changeBaud(targetBaud); err != nil {
		return err
	}
	return d.sync(ctx)
}

// sync waits for a burst of more than syncMinCBytes 'C' bytes within
// syncWindow, retrying up to maxSyncAttempts times. If the device never
// answers, it tries the W600 secboot-interrupt sequence: 250 ESC bytes at
// 1 ms spacing, then a secboot-erase command, before continuing to retry.
func (d *Driver) sync(ctx context.Context) error {
	resp := make([]byte, 256)
	triedSecbootBreak := false

	for attempt := 0; attempt < maxSyncAttempts; attempt++ {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "sync"}
		}
		_ = d.t.SetReadTimeout(syncWindow)
		n, err := d.t.Read(resp)
		if err == nil && n > 0 && bytes.Count(resp[:n], []byte{'C'}) > syncMinCBytes {
			return nil
		}

		if !triedSecbootBreak && attempt > 0 && attempt%50 == 0 {
			triedSecbootBreak = true
			d.breakSecboot(ctx)
		}
	}
	return &flasher.SyncFailedError{Attempts: maxSyncAttempts}
}

// breakSecboot sends 250 ESC bytes at 1ms spacing to interrupt a W600
// stuck in secboot mode, then issues the secboot-erase command.
func (d *Driver) breakSecboot(ctx context.Context) {
	for i := 0; i < secbootEscCount; i++ {
		if ctx.Err() != nil {
			return
		}
		_, _ = d.t.Write([]byte{0x1B})
		time.Sleep(secbootEscInterval)
	}
	_ = d.t.SetReadTimeout(500 * time.Millisecond)
	_, _ = d.t.Write(BuildCommand(CmdSecbootEase, nil))
	resp := make([]byte, 64)
	_, _ = d.t.Read(resp)
}

// readFlashID sends CmdFlashID and decodes the response.
func (d *Driver) readFlashID() error {
	_ = d.t.SetReadTimeout(500 * time.Millisecond)
	if _, err := d.t.Write(BuildCommand(CmdFlashID, nil)); err != nil {
		return &flasher.TransportWriteError{Err: err}
	}
	resp := make([]byte, 64)
	n, err := d.t.Read(resp)
	if err != nil || n == 0 {
		return &flasher.ProtocolFramingError{Operation: "FlashID", Reason: "no response"}
	}
	_, params, perr := ParseResponse(resp[:n])
	if perr != nil {
		return &flasher.ProtocolFramingError{Operation: "FlashID", Reason: perr.Error()}
	}
	ids, sizeMB, ferr := ParseFlashIDResponse(params)
	if ferr != nil {
		return &flasher.ProtocolFramingError{Operation: "FlashID", Reason: ferr.Error()}
	}
	d.flashIDs = ids
	if sizeMB > 0 {
		d.flashSizeBytes = uint32(sizeMB) * 1024 * 1024
	}
	d.log(flasher.LogInfo, "flash ID read", "ids", ids, "size_mb", sizeMB)
	return nil
}

// uploadStub sends the bundled W800 RAM stub via XMODEM-1K.
func (d *Driver) uploadStub(ctx context.Context) error {
	sender := xmodem.NewSender(xmodem.NewOptions())
	if err := sender.Send(ctx, d.t, StubW800(), 0); err != nil {
		return &flasher.ProtocolFramingError{Operation: "stub upload", Reason: err.Error()}
	}
	d.stubAlive = true
	return nil
}

// changeBaud sends CmdBaudChange carrying the new rate, waits for the
// command to flush, then sets the transport baud.
func (d *Driver) changeBaud(newBaud uint32) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, newBaud)
	if _, err := d.t.Write(BuildCommand(CmdBaudChange, payload)); err != nil {
		return &flasher.TransportWriteError{Err: err}
	}
	time.Sleep(20 * time.Millisecond)
	return d.t.SetBaud(int(newBaud))
}

// Read reads sectors [startSector, startSector+sectors) via CmdFlashRead in
// up-to-4096-byte chunks, each validated by its own trailing CRC-32,
// retrying up to ten times per chunk. When the driver knows the chip's flash
// size (from a prior readFlashID), the final chunk is bounded to whatever
// remains on the chip rather than the full 4096 bytes, since the flash size
// need not be a multiple of the chunk size and the device itself only
// returns the bytes that exist. W600 has no flash-read command and fails
// immediately.
func (d *Driver) Read(ctx context.Context, startSector, sectors int, fullRead bool) error {
	if !d.isW800 {
		return &flasher.ProtocolFramingError{Operation: "read", Reason: "W600 cannot read flash"}
	}
	d.setState(flasher.Working)
	const chunkSize = flashReadChunk
	offset := uint32(startSector) * chunkSize
	total := sectors * chunkSize
	buf := make([]byte, 0, total)

	for len(buf) < total {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "read"}
		}
		reqOffset := offset + uint32(len(buf))
		want := chunkSize
		if remaining := total - len(buf); remaining < want {
			want = remaining
		}
		if d.flashSizeBytes > 0 {
			if reqOffset >= d.flashSizeBytes {
				break
			}
			if onChip := int(d.flashSizeBytes - reqOffset); onChip < want {
				want = onChip
			}
		}

		payload := make([]byte, 8)
		binary.LittleEndian.PutUint32(payload[0:4], reqOffset)
		binary.LittleEndian.PutUint32(payload[4:8], uint32(want))

		const maxChunkAttempts = 10
		var chunk []byte
		var lastErr error
		var usedAttempt int
		for attempt := 0; attempt < maxChunkAttempts; attempt++ {
			usedAttempt = attempt + 1
			_ = d.t.SetReadTimeout(2 * time.Second)
			if _, err := d.t.Write(BuildCommand(CmdFlashRead, payload)); err != nil {
				return &flasher.TransportWriteError{Err: err}
			}
			resp := make([]byte, want+32)
			n, err := d.t.Read(resp)
			if err != nil || n == 0 {
				lastErr = &flasher.ProtocolFramingError{Operation: "FlashRead", Reason: "no response"}
				continue
			}
			validated, verr := ValidateFlashReadResponse(resp[:n], want)
			if verr != nil {
				lastErr = &flasher.ProtocolFramingError{Operation: "FlashRead", Reason: verr.Error()}
				continue
			}
			chunk = validated
			lastErr = nil
			break
		}
		if lastErr != nil {
			return lastErr
		}
		buf = append(buf, chunk...)

		if d.cfg.ProgressCallback != nil {
			d.cfg.ProgressCallback(flasher.Progress{
				Phase: "reading", BytesDone: len(buf), TotalSectors: sectors,
				Percentage:  100 * float64(len(buf)) / float64(total),
				Attempt:     usedAttempt,
				MaxAttempts: maxChunkAttempts,
			})
		}

		if len(chunk) < chunkSize {
			break
		}
	}

	if fullRead {
		d.setState(flasher.Verifying)
		local := crc.CRC32(0xFFFFFFFF, buf)
		d.log(flasher.LogInfo, "read complete", "crc", local)
	}
	d.result = buf
	return nil
}

// Write sends data over XMODEM-1K. If data already carries FLS framing (an
// already-length-prefixed payload the caller built), it is sent directly;
// otherwise, for raw binaries, the driver carves the secboot body and
// wraps it in a family pseudo-FLS header before sending.
func (d *Driver) Write(ctx context.Context, startOffset uint32, data []byte) error {
	d.setState(flasher.Working)

	payload := data
	if !looksLikeFLS(data) {
		wrapped, err := BuildPseudoFLS(d.isW800, startOffset, data)
		if err != nil {
			return &flasher.ProtocolFramingError{Operation: "write", Reason: err.Error()}
		}
		payload = wrapped
	}

	sender := xmodem.NewSender(xmodem.Options{
		OnProgress: func(p xmodem.Progress) {
			if d.cfg.ProgressCallback != nil {
				d.cfg.ProgressCallback(flasher.Progress{
					Phase: "writing", BytesDone: p.BytesSent, TotalSectors: (p.Total + flashReadChunk - 1) / flashReadChunk,
					Percentage: 100 * float64(p.BytesSent) / float64(maxInt(p.Total, 1)),
				})
			}
		},
	})
	if err := sender.Send(ctx, d.t, payload, startOffset); err != nil {
		return &flasher.ProtocolFramingError{Operation: "write", Reason: err.Error()}
	}

	d.setState(flasher.Verifying)
	return nil
}

// looksLikeFLS reports whether data already carries the pseudo-FLS header
// magic this driver itself writes (a start address of zero length is never
// valid, so a non-zero declared length combined with the secboot magic at
// the header's expected body offset is enough of a signal).
func looksLikeFLS(data []byte) bool {
	if len(data) < pseudoFLSHeaderSizeW600 {
		return false
	}
	declaredLen := binary.LittleEndian.Uint32(data[4:8])
	if declaredLen == 0 || declaredLen > uint32(len(data)) {
		return false
	}
	for _, hs := range []int{pseudoFLSHeaderSizeW600, pseudoFLSHeaderSizeW800} {
		if len(data) >= hs+4 && [4]byte{data[hs], data[hs+1], data[hs+2], data[hs+3]} == secbootMagic {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Erase is not supported by the WM bootloader protocol.
func (d *Driver) Erase(ctx context.Context, startSector, sectors int, eraseAll bool) (bool, error) {
	return false, &flasher.ProtocolFramingError{Operation: "erase", Reason: "WM bootloader does not support flash erase"}
}

// ReadResult returns the buffer populated by the most recent Read.
func (d *Driver) ReadResult() []byte { return d.result }

// Dispose releases the transport.
func (d *Driver) Dispose() error {
	return d.t.Disconnect()
}

var _ flasher.Driver = (*Driver)(nil)
