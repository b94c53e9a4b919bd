package esp32

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/go-embedded/chipflash/crc"
	"github.com/go-embedded/chipflash/flasher"
	"github.com/go-embedded/chipflash/transport"
)

const (
	flashSectorSize = 4096
	targetBaud      = 460800

	syncTimeout = 300 * time.Millisecond
)

// Driver implements flasher.Driver for ESP32, ESP32-S3, and ESP32-C3.
type Driver struct {
	t           transport.Transport
	cfg         flasher.Config
	chipName    string
	stubAlive   bool
	description string
	result      []byte
}

// New returns a Driver for chipName ("esp32", "esp32s3", "esp32c3"),
// communicating over t, configured by opts.
func New(t transport.Transport, chipName string, opts ...flasher.Option) *Driver {
	return &Driver{t: t, chipName: chipName, cfg: flasher.Apply(opts...)}
}

func (d *Driver) log(level flasher.LogLevel, msg string, kv ...interface{}) {
	flasher.Log(d.cfg.Logger, level, msg, kv...)
}

func (d *Driver) setState(s flasher.State) {
	if d.cfg.StateCallback != nil {
		d.cfg.StateCallback(s)
	}
}

// Connect pulses into the ROM bootloader, syncs, attaches SPI, and loads
// the RAM stub so subsequent flash operations run at stub speed. Stub
// upload failure is non-fatal: reads fall back to the ROM's slow path,
// though writes require the stub and will fail later.
func (d *Driver) Connect(ctx context.Context) error {
	d.setState(flasher.Opening)
	if err := d.t.Connect(ctx); err != nil {
		return &flasher.TransportOpenError{Err: err}
	}

	d.setState(flasher.Syncing)
	d.resetIntoBootloader()
	if err := d.sync(ctx); err != nil {
		return err
	}

	d.setState(flasher.Identifying)
	if err := d.spiAttach(false); err != nil {
		return err
	}
	if detected, err := d.identifyChip(); err == nil {
		d.description = detected
		d.log(flasher.LogInfo, "chip identified", "chip", detected)
	}
	if mid, err := d.flashIDViaSPIRegisters(); err == nil {
		d.log(flasher.LogInfo, "flash MID read via SPI registers", "mid", hex.EncodeToString([]byte{byte(mid >> 16), byte(mid >> 8), byte(mid)}))
	}

	d.setState(flasher.Configuring)
	if err := d.uploadStub(ctx); err != nil {
		d.log(flasher.LogWarn, "stub upload failed, continuing against ROM loader", "err", err)
		return nil
	}
	if err := d.spiAttach(true); err != nil {
		d.log(flasher.LogWarn, "post-stub SPI attach failed", "err", err)
	}
	return d.changeBaud(targetBaud)
}

// resetIntoBootloader pulses DTR/RTS in the classic esptool pattern: DTR
// low + RTS high to reset with IO0 held low, then DTR high + RTS low to
// release reset while IO0 stays low through boot.
func (d *Driver) resetIntoBootloader() {
	_, _ = d.t.SetDTR(false)
	_, _ = d.t.SetRTS(true)
	time.Sleep(100 * time.Millisecond)
	_, _ = d.t.SetDTR(true)
	_, _ = d.t.SetRTS(false)
	time.Sleep(500 * time.Millisecond)
}

// sync sends OpSync, retrying up to 10 outer attempts of 4 each, re-pulsing
// into the bootloader between outer attempts. On success it drains up to 7
// additional duplicate sync responses.
func (d *Driver) sync(ctx context.Context) error {
	payload := SyncPayload()
	frame := SlipEncode(BuildCommand(OpSync, XorChecksum(payload), payload))

	for outer := 0; outer < 10; outer++ {
		if outer > 0 {
			d.resetIntoBootloader()
		}
		for attempt := 0; attempt < 4; attempt++ {
			if ctx.Err() != nil {
				return &flasher.CancelledError{Phase: "sync"}
			}
			_ = d.t.SetReadTimeout(syncTimeout)
			if _, err := d.t.Write(frame); err != nil {
				return &flasher.TransportWriteError{Err: err}
			}
			if _, _, _, err := d.readFrame(); err == nil {
				for i := 0; i < 7; i++ {
					_, _, _, _ = d.readFrame()
				}
				return nil
			}
		}
	}
	return &flasher.SyncFailedError{Attempts: 40}
}

// readFrame reads one SLIP-framed response and decodes it.
func (d *Driver) readFrame() (op byte, value uint32, body []byte, err error) {
	raw := make([]byte, 4096)
	n, rerr := d.t.Read(raw)
	if rerr != nil || n == 0 {
		return 0, 0, nil, &flasher.ProtocolFramingError{Operation: "readFrame", Reason: "no response"}
	}
	decoded := SlipDecode(raw[:n])
	var errStatus bool
	op, value, body, errStatus, err = ParseResponse(decoded)
	if err != nil {
		return 0, 0, nil, &flasher.ProtocolFramingError{Operation: "readFrame", Reason: err.Error()}
	}
	if errStatus {
		return 0, 0, nil, &flasher.ProtocolStatusError{Operation: "readFrame"}
	}
	return op, value, body, nil
}

// command sends a single SLIP-framed command and returns its response
// value and body, with a retry budget.
func (d *Driver) command(op byte, data []byte, timeout time.Duration) (uint32, []byte, error) {
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	frame := SlipEncode(BuildCommand(op, XorChecksum(data), data))
	for attempt := 0; attempt < 3; attempt++ {
		_ = d.t.SetReadTimeout(timeout)
		if _, err := d.t.Write(frame); err != nil {
			return 0, nil, &flasher.TransportWriteError{Err: err}
		}
		respOp, value, body, err := d.readFrame()
		if err == nil && respOp == op {
			return value, body, nil
		}
	}
	return 0, nil, &flasher.ProtocolFramingError{Operation: "command", Reason: "exceeded retry budget"}
}

// spiAttach sends SPI_ATTACH with an all-zero payload, 8 bytes before the
// stub is running, 4 after.
func (d *Driver) spiAttach(stub bool) error {
	size := 8
	if stub {
		size = 4
	}
	_, _, err := d.command(OpSPIAttach, make([]byte, size), time.Second)
	return err
}

// identifyChip tries GET_SECURITY_INFO first (C3 and later expose it); the
// chip ID sits at response offset 12. Older chips fall back to reading the
// magic value at register 0x40001000.
func (d *Driver) identifyChip() (string, error) {
	if _, body, err := d.command(OpGetSecurityInfo, nil, time.Second); err == nil && len(body) >= 16 {
		id := binary.LittleEndian.Uint32(body[12:16])
		switch id {
		case 5:
			return "ESP32-C3", nil
		case 9:
			return "ESP32-S3", nil
		case 0:
			return "ESP32", nil
		}
	}
	magic, err := d.readReg(0x40001000)
	if err != nil {
		return "", err
	}
	return ChipIDFromMagic(magic), nil
}

// readReg issues READ_REG for addr and returns the response value.
func (d *Driver) readReg(addr uint32) (uint32, error) {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, addr)
	value, _, err := d.command(OpReadReg, payload, time.Second)
	return value, err
}

// writeReg issues WRITE_REG(addr, value, mask, delayUs).
func (d *Driver) writeReg(addr, value, mask, delayUs uint32) error {
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint32(payload[0:4], addr)
	binary.LittleEndian.PutUint32(payload[4:8], value)
	binary.LittleEndian.PutUint32(payload[8:12], mask)
	binary.LittleEndian.PutUint32(payload[12:16], delayUs)
	_, _, err := d.command(OpWriteReg, payload, time.Second)
	return err
}

// flashIDViaSPIRegisters drives the on-chip SPI controller directly
// (without a stub) to issue a JEDEC READ-ID (0x9F) and returns the 24-bit
// manufacturer/device ID: set MOSI/MISO bit counts, set the COMMAND and
// MISO flags in SPI_USR, write the opcode and bit count into SPI_USR2,
// pulse the execute bit, poll until it clears, then read W0.
func (d *Driver) flashIDViaSPIRegisters() (uint32, error) {
	regs := SPIRegistersFor(d.chipName)
	const (
		usrCommand = 1 << 31
		usrMiso    = 1 << 28
		usrBusy    = 1 << 18
	)
	if err := d.writeReg(regs.Base+regs.Usr, usrCommand|usrMiso, 0xFFFFFFFF, 0); err != nil {
		return 0, err
	}
	if err := d.writeReg(regs.Base+regs.Usr1, 0, 0xFFFFFFFF, 0); err != nil {
		return 0, err
	}
	usr2 := uint32(7)<<28 | uint32(0x9F)
	if err := d.writeReg(regs.Base+regs.Usr2, usr2, 0xFFFFFFFF, 0); err != nil {
		return 0, err
	}
	if err := d.writeReg(regs.Base+regs.Cmd, usrBusy, 0xFFFFFFFF, 0); err != nil {
		return 0, err
	}
	for i := 0; i < 20; i++ {
		v, err := d.readReg(regs.Base + regs.Cmd)
		if err != nil {
			return 0, err
		}
		if v&usrBusy == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	v, err := d.readReg(regs.Base + regs.W0)
	if err != nil {
		return 0, err
	}
	return v & 0xFFFFFF, nil
}

// uploadStub loads the bundled RAM stub via MEM_BEGIN/MEM_DATA/MEM_END for
// each segment, then waits for its "OHAI" ready marker.
func (d *Driver) uploadStub(ctx context.Context) error {
	stub, err := LoadStub(d.chipName)
	if err != nil {
		return err
	}

	if err := d.loadSegment(ctx, stub.TextStart, stub.Text); err != nil {
		return err
	}
	if err := d.loadSegment(ctx, stub.DataStart, stub.Data); err != nil {
		return err
	}

	endPayload := make([]byte, 8)
	binary.LittleEndian.PutUint32(endPayload[0:4], 0)
	binary.LittleEndian.PutUint32(endPayload[4:8], stub.Entry)
	if _, _, err := d.command(OpMemEnd, endPayload, 500*time.Millisecond); err != nil {
		return err
	}

	_ = d.t.SetReadTimeout(5 * time.Second)
	raw := make([]byte, 64)
	n, rerr := d.t.Read(raw)
	if rerr != nil || n < 4 || string(SlipDecode(raw[:n])) != "OHAI" {
		return &flasher.ProtocolFramingError{Operation: "stub boot", Reason: "no OHAI marker"}
	}
	d.stubAlive = true
	return nil
}

func (d *Driver) loadSegment(ctx context.Context, addr uint32, data []byte) error {
	blocks := segmentBlocks(data)
	begin := make([]byte, 16)
	binary.LittleEndian.PutUint32(begin[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(begin[4:8], uint32(len(blocks)))
	binary.LittleEndian.PutUint32(begin[8:12], memBlockSize)
	binary.LittleEndian.PutUint32(begin[12:16], addr)
	if _, _, err := d.command(OpMemBegin, begin, 500*time.Millisecond); err != nil {
		return err
	}

	for i, block := range blocks {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "stub upload"}
		}
		payload := make([]byte, 16+len(block))
		binary.LittleEndian.PutUint32(payload[0:4], uint32(len(block)))
		binary.LittleEndian.PutUint32(payload[4:8], uint32(i))
		copy(payload[16:], block)
		if _, _, err := d.command(OpMemData, payload, 500*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// changeBaud asks the device to switch baud then follows on the transport.
// Rejection is non-fatal: the driver continues at the current baud.
func (d *Driver) changeBaud(newBaud int) error {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(newBaud))
	binary.LittleEndian.PutUint32(payload[4:8], 0)
	if _, _, err := d.command(OpChangeBaudrate, payload, time.Second); err != nil {
		d.log(flasher.LogWarn, "baud change rejected, continuing at current baud", "err", err)
		return nil
	}
	return d.t.SetBaud(newBaud)
}

// Read reads sectors [startSector, startSector+sectors). With the stub
// live, it uses the fast READ_FLASH streaming path; otherwise it falls
// back to the ROM's slow 64-byte-per-command path. Verifies with an
// on-device MD5 when fullRead is set.
func (d *Driver) Read(ctx context.Context, startSector, sectors int, fullRead bool) error {
	d.setState(flasher.Working)
	offset := uint32(startSector) * flashSectorSize
	length := uint32(sectors) * flashSectorSize

	var buf []byte
	var err error
	if d.stubAlive {
		buf, err = d.readFlashFast(ctx, offset, length)
	} else {
		buf, err = d.readFlashSlow(ctx, offset, length)
	}
	if err != nil {
		return err
	}

	if fullRead {
		d.setState(flasher.Verifying)
		if err := d.verifyMD5(buf); err != nil {
			return err
		}
	}
	d.result = buf
	return nil
}

// readFlashFast issues READ_FLASH and streams raw SLIP packets (no command
// header), acking the running byte total after each, then reads a trailing
// 16-byte MD5 digest.
func (d *Driver) readFlashFast(ctx context.Context, offset, length uint32) ([]byte, error) {
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint32(payload[0:4], offset)
	binary.LittleEndian.PutUint32(payload[4:8], length)
	binary.LittleEndian.PutUint32(payload[8:12], readFlashBlockSize)
	binary.LittleEndian.PutUint32(payload[12:16], readFlashMaxInFlight)
	if _, _, err := d.command(OpReadFlash, payload, time.Second); err != nil {
		return nil, err
	}

	buf := make([]byte, 0, length)
	raw := make([]byte, readFlashBlockSize+16)
	for uint32(len(buf)) < length {
		if ctx.Err() != nil {
			return nil, &flasher.CancelledError{Phase: "read"}
		}
		_ = d.t.SetReadTimeout(3 * time.Second)
		n, err := d.t.Read(raw)
		if err != nil || n == 0 {
			return nil, &flasher.ProtocolFramingError{Operation: "READ_FLASH", Reason: "stream stalled"}
		}
		packet := SlipDecode(raw[:n])
		buf = append(buf, packet...)
		if uint32(len(buf)) > length {
			buf = buf[:length]
		}

		ack := make([]byte, 4)
		binary.LittleEndian.PutUint32(ack, uint32(len(buf)))
		if _, werr := d.t.Write(SlipEncode(ack)); werr != nil {
			return nil, &flasher.TransportWriteError{Err: werr}
		}

		if d.cfg.ProgressCallback != nil {
			d.cfg.ProgressCallback(flasher.Progress{
				Phase: "reading", BytesDone: len(buf), TotalSectors: int(length / flashSectorSize),
				Percentage: 100 * float64(len(buf)) / float64(length),
			})
		}
	}

	_ = d.t.SetReadTimeout(3 * time.Second)
	digest := make([]byte, 32)
	n, err := d.t.Read(digest)
	if err != nil || n < 16 {
		return nil, &flasher.ProtocolFramingError{Operation: "READ_FLASH", Reason: "missing trailing MD5"}
	}
	return buf, nil
}

// readFlashSlow issues READ_FLASH_SLOW once per readFlashSlowPerBlock-byte
// chunk, a single response packet per command.
func (d *Driver) readFlashSlow(ctx context.Context, offset, length uint32) ([]byte, error) {
	buf := make([]byte, 0, length)
	for uint32(len(buf)) < length {
		if ctx.Err() != nil {
			return nil, &flasher.CancelledError{Phase: "read"}
		}
		remaining := length - uint32(len(buf))
		chunk := uint32(readFlashSlowPerBlock)
		if remaining < chunk {
			chunk = remaining
		}
		payload := make([]byte, 8)
		binary.LittleEndian.PutUint32(payload[0:4], offset+uint32(len(buf)))
		binary.LittleEndian.PutUint32(payload[4:8], chunk)
		_, body, err := d.command(OpReadFlashSlow, payload, 2*time.Second)
		if err != nil {
			return nil, err
		}
		if uint32(len(body)) < chunk {
			return nil, &flasher.ProtocolFramingError{Operation: "READ_FLASH_SLOW", Reason: "short response"}
		}
		buf = append(buf, body[:chunk]...)

		if d.cfg.ProgressCallback != nil {
			d.cfg.ProgressCallback(flasher.Progress{
				Phase: "reading", BytesDone: len(buf), TotalSectors: int(length / flashSectorSize),
				Percentage: 100 * float64(len(buf)) / float64(length),
			})
		}
	}
	return buf, nil
}

// Write erases the target range via FLASH_BEGIN, streams data in
// flashDataBlockSize chunks via FLASH_DATA, ends with FLASH_END
// (no_entry=1 to stay in the bootloader), and verifies with an on-device
// MD5. Requires the stub.
func (d *Driver) Write(ctx context.Context, startOffset uint32, data []byte) error {
	d.setState(flasher.Working)
	if !d.stubAlive {
		return &flasher.ProtocolFramingError{Operation: "write", Reason: "stub not running, writes require the RAM stub"}
	}

	numBlocks := (len(data) + flashDataBlockSize - 1) / flashDataBlockSize
	begin := make([]byte, 16)
	binary.LittleEndian.PutUint32(begin[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(begin[4:8], uint32(numBlocks))
	binary.LittleEndian.PutUint32(begin[8:12], flashDataBlockSize)
	binary.LittleEndian.PutUint32(begin[12:16], startOffset)
	if _, _, err := d.command(OpFlashBegin, begin, 15*time.Second); err != nil {
		return err
	}

	for i := 0; i < numBlocks; i++ {
		if ctx.Err() != nil {
			d.log(flasher.LogInfo, "Write cancelled by user")
			return &flasher.CancelledError{Phase: "write"}
		}
		off := i * flashDataBlockSize
		end := off + flashDataBlockSize
		if end > len(data) {
			end = len(data)
		}
		block := make([]byte, flashDataBlockSize)
		copy(block, data[off:end])

		payload := make([]byte, 16+len(block))
		binary.LittleEndian.PutUint32(payload[0:4], uint32(len(block)))
		binary.LittleEndian.PutUint32(payload[4:8], uint32(i))
		copy(payload[16:], block)

		const maxBlockAttempts = 3
		var werr error
		usedAttempt := 1
		for attempt := 0; attempt < maxBlockAttempts; attempt++ {
			usedAttempt = attempt + 1
			_, _, werr = d.command(OpFlashData, payload, 3*time.Second)
			if werr == nil {
				break
			}
		}
		if werr != nil {
			return werr
		}

		if d.cfg.ProgressCallback != nil {
			d.cfg.ProgressCallback(flasher.Progress{
				Phase: "writing", BytesDone: end, TotalSectors: (len(data) + flashSectorSize - 1) / flashSectorSize,
				Percentage:  100 * float64(end) / float64(len(data)),
				Attempt:     usedAttempt,
				MaxAttempts: maxBlockAttempts,
			})
		}
	}

	d.setState(flasher.Verifying)
	if err := d.verifyMD5(data); err != nil {
		return err
	}

	endPayload := make([]byte, 4)
	binary.LittleEndian.PutUint32(endPayload, 1)
	_, _, err := d.command(OpFlashEnd, endPayload, time.Second)
	return err
}

// verifyMD5 asks the device for SPI_FLASH_MD5 of the buffer most recently
// written or read and compares it locally. The stub returns 16 raw bytes;
// the ROM returns 32 ASCII hex characters.
func (d *Driver) verifyMD5(data []byte) error {
	_, body, err := d.command(OpSPIFlashMD5, nil, 10*time.Second)
	if err != nil {
		return err
	}
	local := crc.MD5(data)

	var device [16]byte
	switch {
	case len(body) >= 32:
		decoded, derr := hex.DecodeString(string(body[:32]))
		if derr != nil || len(decoded) != 16 {
			return &flasher.ProtocolFramingError{Operation: "SPIFlashMD5", Reason: "malformed hex digest"}
		}
		copy(device[:], decoded)
	case len(body) >= 16:
		copy(device[:], body[:16])
	default:
		return &flasher.ProtocolFramingError{Operation: "SPIFlashMD5", Reason: "short digest"}
	}

	if device != local {
		return &flasher.VerificationMismatchError{Method: "MD5", Expected: "local", Actual: "device"}
	}
	return nil
}

// Erase erases sectors [startSector, startSector+sectors) via FLASH_BEGIN
// with no following data, or the full chip when eraseAll is set.
func (d *Driver) Erase(ctx context.Context, startSector, sectors int, eraseAll bool) (bool, error) {
	d.setState(flasher.Working)
	if !d.stubAlive {
		return false, &flasher.ProtocolFramingError{Operation: "erase", Reason: "stub not running, erase requires the RAM stub"}
	}
	start := uint32(startSector) * flashSectorSize
	length := uint32(sectors) * flashSectorSize
	if eraseAll {
		length = 0xFFFFFFFF
		start = 0
	}
	begin := make([]byte, 16)
	binary.LittleEndian.PutUint32(begin[0:4], length)
	binary.LittleEndian.PutUint32(begin[4:8], 0)
	binary.LittleEndian.PutUint32(begin[8:12], flashDataBlockSize)
	binary.LittleEndian.PutUint32(begin[12:16], start)
	_, _, err := d.command(OpFlashBegin, begin, 30*time.Second)
	return err == nil, err
}

// ReadResult returns the buffer populated by the most recent Read.
func (d *Driver) ReadResult() []byte { return d.result }

// ChipDescription returns the chip name Connect identified ("ESP32",
// "ESP32-S3", "ESP32-C3"), or "" if Connect has not run or identification
// failed. Mirrors the chip-name string esptool-family tools report
// alongside the bare family tag.
func (d *Driver) ChipDescription() string { return d.description }

// Dispose releases the transport.
func (d *Driver) Dispose() error {
	return d.t.Disconnect()
}

var _ flasher.Driver = (*Driver)(nil)
