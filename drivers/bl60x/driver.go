package bl60x

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/go-embedded/chipflash/crc"
	"github.com/go-embedded/chipflash/flasher"
	"github.com/go-embedded/chipflash/transport"
)

const (
	syncByte        = 'U'
	syncRepeat      = 16
	pendingPoll     = 20 * time.Millisecond
	maxPendingPolls = 500
	eraseTimeout    = 30 * time.Second
)

// Driver implements flasher.Driver for BL602, BL702, and BL616.
type Driver struct {
	t       transport.Transport
	cfg     flasher.Config
	variant Variant
	result  []byte

	flashSizeBytes uint32
}

// New returns a Driver communicating over t, configured by opts.
func New(t transport.Transport, opts ...flasher.Option) *Driver {
	return &Driver{t: t, cfg: flasher.Apply(opts...)}
}

func (d *Driver) log(level flasher.LogLevel, msg string, kv ...interface{}) {
	flasher.Log(d.cfg.Logger, level, msg, kv...)
}

func (d *Driver) setState(s flasher.State) {
	if d.cfg.StateCallback != nil {
		d.cfg.StateCallback(s)
	}
}

// Connect syncs with the bootrom, detects the chip variant, and uploads
// the eflash loader (BL602/702) or sends the BL616 config command.
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
	info, err := d.command(OpGetBootInfo, nil)
	if err != nil {
		return err
	}
	d.variant = DetectVariant(info)
	d.log(flasher.LogInfo, "bootrom variant detected", "variant", d.variant.String())

	d.setState(flasher.Configuring)
	if d.variant == VariantBL616 {
		if _, err := d.command(OpBL616Config, []byte{0x00, 0x00, 0x00, 0x00}); err != nil {
			return err
		}
	} else if err := d.uploadLoader(ctx); err != nil {
		return err
	}

	d.setState(flasher.Identifying)
	if err := d.identifyFlash(); err != nil {
		d.log(flasher.LogWarn, "flash ID read failed, continuing", "err", err)
	}
	return nil
}

// identifyFlash sends OpFlashID and decodes the response into a size, for
// logging and progress reporting; drivers fall back to the caller-supplied
// extent if this fails, so a decode error here is not fatal.
func (d *Driver) identifyFlash() error {
	resp, err := d.command(OpFlashID, nil)
	if err != nil {
		return err
	}
	size, err := DecodeFlashSize(resp)
	if err != nil {
		return err
	}
	d.flashSizeBytes = size
	d.log(flasher.LogInfo, "flash identified", "size_bytes", size)
	return nil
}

// sync pulses RTS/DTR to enter the bootloader, then sends 16 'U' bytes and
// awaits "OK" within ~75ms. Retries up to 1000 times, re-pulsing every
// tenth attempt.
func (d *Driver) sync(ctx context.Context) error {
	pulse := func() {
		_, _ = d.t.SetRTS(true)
		_, _ = d.t.SetDTR(true)
		_, _ = d.t.SetDTR(false)
		time.Sleep(100 * time.Millisecond)
		_, _ = d.t.SetRTS(true)
		time.Sleep(500 * time.Millisecond)
	}
	pulse()

	syncBytes := make([]byte, syncRepeat)
	for i := range syncBytes {
		syncBytes[i] = syncByte
	}
	resp := make([]byte, 2)

	for attempt := 0; attempt < 1000; attempt++ {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "sync"}
		}
		if attempt > 0 && attempt%10 == 0 {
			pulse()
		}
		_ = d.t.SetReadTimeout(75 * time.Millisecond)
		if _, err := d.t.Write(syncBytes); err != nil {
			return &flasher.TransportWriteError{Err: err}
		}
		n, err := d.t.Read(resp)
		if err == nil && n >= 2 && string(resp[:2]) == "OK" {
			return nil
		}
	}
	return &flasher.SyncFailedError{Attempts: 1000}
}

// command sends a single length-prefixed command and returns its data
// payload, handling the "PD" pending status by polling.
func (d *Driver) command(opcode byte, payload []byte) ([]byte, error) {
	frame := BuildCommand(opcode, payload)
	_ = d.t.SetReadTimeout(1 * time.Second)
	if _, err := d.t.Write(frame); err != nil {
		return nil, &flasher.TransportWriteError{Err: err}
	}

	for poll := 0; poll < maxPendingPolls; poll++ {
		head := make([]byte, 2)
		n, err := d.t.Read(head)
		if err != nil || n < 2 {
			return nil, &flasher.ProtocolFramingError{Operation: "command", Reason: "short response header"}
		}
		kind, kerr := ParseResponseKind(head)
		if kerr != nil {
			return nil, &flasher.ProtocolFramingError{Operation: "command", Reason: kerr.Error()}
		}
		switch kind {
		case ResponseFail:
			return nil, &flasher.ProtocolStatusError{Operation: "command"}
		case ResponsePending:
			time.Sleep(pendingPoll)
			continue
		case ResponseOK:
			lenBuf := make([]byte, 2)
			if n, err := d.t.Read(lenBuf); err != nil || n < 2 {
				return nil, nil
			}
			length := binary.LittleEndian.Uint16(lenBuf)
			if length == 0 {
				return nil, nil
			}
			data := make([]byte, length)
			if _, err := d.t.Read(data); err != nil {
				return nil, &flasher.ProtocolFramingError{Operation: "command", Reason: "short data"}
			}
			return data, nil
		}
	}
	return nil, &flasher.ProtocolFramingError{Operation: "command", Reason: "exceeded pending-poll budget"}
}

// uploadLoader streams the bundled eflash-loader image via boot header,
// segment header, and chunked data commands, then checks and runs it.
func (d *Driver) uploadLoader(ctx context.Context) error {
	image := EflashLoader(d.variant)
	if image == nil {
		return nil
	}
	if _, err := d.command(OpLoadBootHeader, image[:min(len(image), BootHeaderSize)]); err != nil {
		return err
	}

	segHeader := make([]byte, 8)
	binary.LittleEndian.PutUint32(segHeader[0:4], 0)
	binary.LittleEndian.PutUint32(segHeader[4:8], uint32(len(image)))
	if _, err := d.command(OpLoadSegHeader, segHeader); err != nil {
		return err
	}

	for off := 0; off < len(image); off += maxChunk {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "loader upload"}
		}
		end := off + maxChunk
		if end > len(image) {
			end = len(image)
		}
		if _, err := d.command(OpLoadSegData, image[off:end]); err != nil {
			return err
		}
	}

	if _, err := d.command(OpCheckImage, nil); err != nil {
		return err
	}
	_, err := d.command(OpRunImage, nil)
	return err
}

// Read reads sectors*4096 bytes starting at byte offset startSector*4096 in
// 4096-byte chunks, re-syncing and re-requesting a chunk whose size does not
// match. When fullRead is set it then verifies the result with an on-device
// SHA-256.
func (d *Driver) Read(ctx context.Context, startSector, sectors int, fullRead bool) error {
	d.setState(flasher.Working)
	const chunkSize = 4096
	offset := uint32(startSector) * chunkSize
	total := sectors * chunkSize
	buf := make([]byte, 0, total)

	for len(buf) < total {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "read"}
		}
		remaining := total - len(buf)
		chunk := chunkSize
		if remaining < chunk {
			chunk = remaining
		}
		payload := make([]byte, 8)
		binary.LittleEndian.PutUint32(payload[0:4], offset+uint32(len(buf)))
		binary.LittleEndian.PutUint32(payload[4:8], uint32(chunk))

		data, err := d.command(OpFlashRead, payload)
		if err != nil {
			return err
		}
		if len(data) != chunk {
			if serr := d.sync(ctx); serr != nil {
				return serr
			}
			continue
		}
		buf = append(buf, data...)

		if d.cfg.ProgressCallback != nil {
			d.cfg.ProgressCallback(flasher.Progress{
				Phase: "reading", BytesDone: len(buf), TotalSectors: sectors,
				Percentage: 100 * float64(len(buf)) / float64(total),
			})
		}
	}

	if fullRead {
		d.setState(flasher.Verifying)
		if err := d.verifySHA256(offset, buf); err != nil {
			return err
		}
	}

	d.result = buf
	return nil
}

// Write erases the target range, writes in 4092-byte chunks prefixed by a
// 4-byte LE address, then verifies with an on-device SHA-256.
func (d *Driver) Write(ctx context.Context, startOffset uint32, data []byte) error {
	d.setState(flasher.Working)

	eraseLen := uint32(len(data))
	erasePayload := make([]byte, 8)
	binary.LittleEndian.PutUint32(erasePayload[0:4], startOffset)
	binary.LittleEndian.PutUint32(erasePayload[4:8], startOffset+eraseLen)
	_ = d.t.SetReadTimeout(eraseTimeout)
	if _, err := d.command(OpFlashErase, erasePayload); err != nil {
		return err
	}

	for off := 0; off < len(data); off += maxWriteChunk {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "write"}
		}
		end := off + maxWriteChunk
		if end > len(data) {
			end = len(data)
		}
		payload := make([]byte, 4+end-off)
		binary.LittleEndian.PutUint32(payload[0:4], startOffset+uint32(off))
		copy(payload[4:], data[off:end])
		if _, err := d.command(OpFlashWrite, payload); err != nil {
			return err
		}

		if d.cfg.ProgressCallback != nil {
			d.cfg.ProgressCallback(flasher.Progress{
				Phase: "writing", BytesDone: end, TotalSectors: (len(data) + 4095) / 4096,
				Percentage: 100 * float64(end) / float64(len(data)),
			})
		}
	}

	d.setState(flasher.Verifying)
	return d.verifySHA256(startOffset, data)
}

func (d *Driver) verifySHA256(offset uint32, data []byte) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], offset)
	binary.LittleEndian.PutUint32(payload[4:8], uint32(len(data)))
	resp, err := d.command(OpFlashSHA256, payload)
	if err != nil {
		return err
	}
	local := crc.SHA256(data)
	if len(resp) < 32 {
		return &flasher.ProtocolFramingError{Operation: "FlashSHA256", Reason: "short digest"}
	}
	for i := 0; i < 32; i++ {
		if resp[i] != local[i] {
			return &flasher.VerificationMismatchError{Method: "SHA256", Expected: "local", Actual: "device"}
		}
	}
	return nil
}

// Erase erases sectors [startSector, startSector+sectors), or the full
// chip when eraseAll is set.
func (d *Driver) Erase(ctx context.Context, startSector, sectors int, eraseAll bool) (bool, error) {
	d.setState(flasher.Working)
	_ = d.t.SetReadTimeout(eraseTimeout)
	if eraseAll {
		_, err := d.command(OpFlashEraseAll, nil)
		return err == nil, err
	}
	const chunkSize = 4096
	start := uint32(startSector) * chunkSize
	end := start + uint32(sectors)*chunkSize
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], start)
	binary.LittleEndian.PutUint32(payload[4:8], end)
	_, err := d.command(OpFlashErase, payload)
	return err == nil, err
}

// ReadResult returns the buffer populated by the most recent Read.
func (d *Driver) ReadResult() []byte { return d.result }

// Dispose releases the transport.
func (d *Driver) Dispose() error {
	return d.t.Disconnect()
}

var _ flasher.Driver = (*Driver)(nil)
