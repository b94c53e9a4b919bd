package bk7231

import (
	"bytes"
	"context"
	"time"

	"github.com/go-embedded/chipflash/chipfamily"
	"github.com/go-embedded/chipflash/crc"
	"github.com/go-embedded/chipflash/flashchip"
	"github.com/go-embedded/chipflash/flasher"
	"github.com/go-embedded/chipflash/transport"
)

const (
	sectorSize       = 4096
	block64KSize     = 64 * 1024
	bootloaderOffset = 0x11000

	initialBaud  = 115200
	targetBaud   = 921600
	linkCheckBudget = 10 * time.Millisecond
)

// Driver implements flasher.Driver for the BK7231 family of chips.
type Driver struct {
	t      transport.Transport
	family chipfamily.Family
	cfg    flasher.Config

	memoryBytes uint32
	desc        flashchip.FlashDescriptor

	result []byte
}

// New returns a Driver for family, communicating over t, configured by
// opts.
func New(t transport.Transport, family chipfamily.Family, opts ...flasher.Option) *Driver {
	return &Driver{t: t, family: family, cfg: flasher.Apply(opts...)}
}

func (d *Driver) log(level flasher.LogLevel, msg string, kv ...interface{}) {
	flasher.Log(d.cfg.Logger, level, msg, kv...)
}

func (d *Driver) setState(s flasher.State) {
	if d.cfg.StateCallback != nil {
		d.cfg.StateCallback(s)
	}
}

// Connect acquires the bus, negotiates baud, and identifies/unprotects the
// flash chip.
func (d *Driver) Connect(ctx context.Context) error {
	d.setState(flasher.Opening)
	if err := d.t.Connect(ctx); err != nil {
		return &flasher.TransportOpenError{Err: err}
	}

	d.setState(flasher.Syncing)
	if err := d.getBus(ctx); err != nil {
		return err
	}

	if err := d.switchBaud(ctx, targetBaud); err != nil {
		d.log(flasher.LogWarn, "baud switch failed, continuing at initial baud", "err", err)
	}

	d.setState(flasher.Identifying)
	if err := d.identifyAndUnprotect(ctx); err != nil {
		return err
	}

	if err := d.checkEncryptionKey(ctx); err != nil {
		return err
	}

	d.setState(flasher.Configuring)
	return nil
}

// getBus pulses the control lines then hammers LinkCheck, per the spec's
// "a power cycle might happen during this window; we must be liberal"
// rationale: up to 100 outer iterations of up to 100 LinkChecks each.
func (d *Driver) getBus(ctx context.Context) error {
	_, _ = d.t.SetDTR(true)
	_, _ = d.t.SetRTS(true)
	time.Sleep(50 * time.Millisecond)
	_, _ = d.t.SetDTR(false)
	_, _ = d.t.SetRTS(false)

	cmd := LinkCheckCmd()
	resp := make([]byte, 16)

	for outer := 0; outer < 100; outer++ {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "sync"}
		}
		if outer > 0 && outer%5 == 0 {
			_, _ = d.t.Write([]byte("reboot\r\n"))
		}
		for attempt := 0; attempt < 100; attempt++ {
			if ctx.Err() != nil {
				return &flasher.CancelledError{Phase: "sync"}
			}
			_ = d.t.SetReadTimeout(linkCheckBudget)
			if _, err := d.t.Write(cmd); err != nil {
				return &flasher.TransportWriteError{Err: err}
			}
			n, err := d.t.Read(resp)
			if err == nil && n > 0 {
				if _, _, perr := ParseResponse(resp[:n]); perr == nil {
					return nil
				}
			}
		}
	}
	return &flasher.SyncFailedError{Attempts: 100 * 100}
}

// switchBaud sends SetBaudRate at the current rate, waits for the frame to
// flush, then asks the transport to change baud and waits for a response
// at the new rate, retrying up to ten times on failure.
func (d *Driver) switchBaud(ctx context.Context, newBaud uint32) error {
	resp := make([]byte, 16)
	for attempt := 0; attempt < 10; attempt++ {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "baud switch"}
		}
		if _, err := d.t.Write(SetBaudRateCmd(newBaud)); err != nil {
			return &flasher.TransportWriteError{Err: err}
		}
		time.Sleep(20 * time.Millisecond)
		if err := d.t.SetBaud(int(newBaud)); err != nil {
			_ = d.t.SetBaud(initialBaud)
			continue
		}
		_ = d.t.SetReadTimeout(500 * time.Millisecond)
		n, err := d.t.Read(resp)
		if err == nil && n > 0 {
			return nil
		}
		_ = d.t.SetBaud(initialBaud)
	}
	return &flasher.SyncFailedError{Attempts: 10}
}

// identifyAndUnprotect reads the flash MID, looks up its descriptor, and
// clears its block-protection bits.
func (d *Driver) identifyAndUnprotect(ctx context.Context) error {
	resp := make([]byte, 16)
	_ = d.t.SetReadTimeout(200 * time.Millisecond)
	if _, err := d.t.Write(FlashGetMIDCmd()); err != nil {
		return &flasher.TransportWriteError{Err: err}
	}
	n, err := d.t.Read(resp)
	if err != nil || n < 7 {
		return &flasher.ProtocolFramingError{Operation: "FlashGetMID", Reason: "short response"}
	}
	_, payload, perr := ParseResponse(resp[:n])
	if perr != nil || len(payload) < 3 {
		return &flasher.ProtocolFramingError{Operation: "FlashGetMID", Reason: "malformed payload"}
	}
	mid := uint32(payload[0])<<16 | uint32(payload[1])<<8 | uint32(payload[2])

	desc, err := flashchip.Lookup(mid)
	if err != nil {
		if d.cfg.SkipUnprotect {
			d.log(flasher.LogWarn, "unknown flash MID, continuing without unprotect", "mid", mid)
			d.memoryBytes = 2 * 1024 * 1024
			return nil
		}
		return err
	}
	d.memoryBytes = desc.SizeBytes
	d.desc = desc
	d.log(flasher.LogInfo, "flash def found", "name", desc.Name, "vendor", desc.Vendor)

	return d.setProtectState(ctx, true)
}

// setProtectState reads the status register(s), ORs them into a single
// word, then writes back that word with only the protect bit-field (mask/sb/
// lb from the looked-up FlashDescriptor) cleared to unprotectWord, leaving
// every other status bit (QE, SRP, ...) untouched. Retries up to ten times
// on persistent disagreement.
func (d *Driver) setProtectState(ctx context.Context, unprotect bool) error {
	if !unprotect {
		return nil
	}
	resp := make([]byte, 16)
	for attempt := 0; attempt < 10; attempt++ {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "unprotect"}
		}
		var word uint8
		for i := 0; i < d.desc.StatusRegWidth; i++ {
			_ = d.t.SetReadTimeout(200 * time.Millisecond)
			if _, err := d.t.Write(FlashReadSRCmd(byte(i))); err != nil {
				return &flasher.TransportWriteError{Err: err}
			}
			n, err := d.t.Read(resp)
			if err != nil || n < 1 {
				continue
			}
			_, payload, perr := ParseResponse(resp[:n])
			if perr == nil && len(payload) > 0 {
				word |= payload[0]
			}
		}
		newWord := (word &^ d.desc.Mask) | d.desc.UnprotectWord
		if _, err := d.t.Write(FlashWriteSRCmd(0, newWord)); err != nil {
			return &flasher.TransportWriteError{Err: err}
		}
		_ = d.t.SetReadTimeout(200 * time.Millisecond)
		if n, err := d.t.Read(resp); err == nil && n > 0 {
			return nil
		}
	}
	return &flasher.ProtocolStatusError{Operation: "SetProtectState", Status: 0xFF}
}

// checkEncryptionKey reads the 16-byte eFuse block and compares decoded
// coefficients against a family-specific expected value. Skipped for
// T/U and 7238/7252N, where the ROM doesn't expose the eFuse path.
func (d *Driver) checkEncryptionKey(ctx context.Context) error {
	switch d.family {
	case chipfamily.BK7231T, chipfamily.BK7231U, chipfamily.BK7238, chipfamily.BK7252N:
		return nil
	}

	efuse := make([]byte, 16)
	_, _ = d.t.Write(WriteRegCmd(0x0, 0x1))
	_ = d.t.SetReadTimeout(200 * time.Millisecond)
	resp := make([]byte, 32)
	for i := 0; i < 4; i++ {
		_, _ = d.t.Write(ReadRegCmd(uint32(i) * 4))
		n, err := d.t.Read(resp)
		if err != nil || n < 8 {
			continue
		}
		_, payload, perr := ParseResponse(resp[:n])
		if perr == nil && len(payload) >= 4 {
			copy(efuse[i*4:i*4+4], payload[:4])
		}
	}

	var expected [16]byte
	if d.family == chipfamily.BK7231N {
		expected = tuyaKey
	}

	if !bytes.Equal(efuse, expected[:]) && !isUniform(efuse) {
		if d.cfg.SkipKeyCheck {
			d.log(flasher.LogWarn, "encryption key mismatch, continuing (skip_key_check set)")
			return nil
		}
		return &flasher.VerificationMismatchError{Method: "encryption key", Expected: "well-known key", Actual: "custom key"}
	}
	return nil
}

// tuyaKey is the BK7231N family's expected eFuse coefficient pattern.
var tuyaKey = [16]byte{
	0x54, 0x75, 0x79, 0x61, 0x42, 0x4B, 0x37, 0x32,
	0x33, 0x31, 0x4E, 0x4B, 0x65, 0x79, 0x21, 0x21,
}

func isUniform(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	for _, v := range b {
		if v != b[0] {
			return false
		}
	}
	return true
}

// rejectProtected enforces the hard bootloader-protection invariant: T/U
// writes and erases below 0x11000 are rejected before any transmission
// unless OverwriteBootloader is set.
func (d *Driver) rejectProtected(offset, length uint32) error {
	if !d.family.IsBK7231TU() || d.cfg.OverwriteBootloader {
		return nil
	}
	if offset < bootloaderOffset {
		return &flasher.ProtectedRegionError{Offset: offset, Length: length, Region: "bootloader", RegionEnd: bootloaderOffset}
	}
	return nil
}

// Read reads sectors [startSector, startSector+sectors) and, if fullRead,
// verifies the result against the device's own CRC-32.
func (d *Driver) Read(ctx context.Context, startSector, sectors int, fullRead bool) error {
	d.setState(flasher.Working)
	buf := make([]byte, sectors*sectorSize)
	resp := make([]byte, 15+sectorSize)

	for i := 0; i < sectors; i++ {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "read"}
		}
		sectorAddr := uint32(startSector+i) * sectorSize
		addr := sectorAddr
		if d.family.IsBK7231TU() {
			addr += d.memoryBytes
		}
		_ = d.t.SetReadTimeout(time.Duration(float64(500*time.Millisecond) * d.cfg.ReadTimeoutMultiplier))
		if _, err := d.t.Write(FlashRead4KCmd(addr)); err != nil {
			return &flasher.TransportWriteError{Err: err}
		}
		n, err := d.t.Read(resp)
		if err != nil || n != 15+sectorSize {
			return &flasher.ProtocolFramingError{Operation: "FlashRead4K", Reason: "unexpected response length"}
		}
		copy(buf[i*sectorSize:], resp[15:15+sectorSize])

		if d.cfg.ProgressCallback != nil {
			d.cfg.ProgressCallback(flasher.Progress{
				Phase: "reading", CurrentSector: i, TotalSectors: sectors,
				Percentage: 100 * float64(i+1) / float64(sectors), BytesDone: (i + 1) * sectorSize,
			})
		}
	}

	if isAllSame(buf, 0x00) || isAllSame(buf, 0xFF) {
		return &flasher.VerificationMismatchError{Method: "sanity", Expected: "non-uniform buffer", Actual: "uniform buffer"}
	}

	if fullRead {
		d.setState(flasher.Verifying)
		startAddr := uint32(startSector) * sectorSize
		endAddr := startAddr + uint32(len(buf))
		local := crc.CRC32(0xFFFFFFFF, buf)
		device, err := d.deviceCRC(startAddr, endAddr)
		if err == nil && device != local && !d.cfg.IgnoreCRCErr {
			return &flasher.VerificationMismatchError{Method: "CRC32", Expected: hex32(local), Actual: hex32(device)}
		}
		if err == nil && device == local {
			d.log(flasher.LogInfo, "CRC matches", "crc", hex32(local))
		}
	}

	d.result = buf
	return nil
}

func (d *Driver) deviceCRC(start, end uint32) (uint32, error) {
	_ = d.t.SetReadTimeout(2 * time.Second)
	if _, err := d.t.Write(CheckCRCCmd(start, end)); err != nil {
		return 0, err
	}
	resp := make([]byte, 16)
	n, err := d.t.Read(resp)
	if err != nil || n < 8 {
		return 0, &flasher.ProtocolFramingError{Operation: "CheckCRC", Reason: "short response"}
	}
	_, payload, perr := ParseResponse(resp[:n])
	if perr != nil || len(payload) < 4 {
		return 0, &flasher.ProtocolFramingError{Operation: "CheckCRC", Reason: "malformed payload"}
	}
	return uint32(payload[0]) | uint32(payload[1])<<8 | uint32(payload[2])<<16 | uint32(payload[3])<<24, nil
}

// Write erases then writes bytes starting at startOffset, in 4K sectors,
// then verifies with CheckCRC.
func (d *Driver) Write(ctx context.Context, startOffset uint32, data []byte) error {
	if err := d.rejectProtected(startOffset, uint32(len(data))); err != nil {
		return err
	}
	d.setState(flasher.Working)

	sectors := (len(data) + sectorSize - 1) / sectorSize
	if _, err := d.Erase(ctx, int(startOffset/sectorSize), sectors, false); err != nil {
		return err
	}

	for i := 0; i < sectors; i++ {
		if ctx.Err() != nil {
			return &flasher.CancelledError{Phase: "write"}
		}
		addr := startOffset + uint32(i)*sectorSize
		end := (i + 1) * sectorSize
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, sectorSize)
		copy(chunk, data[i*sectorSize:end])

		_ = d.t.SetReadTimeout(time.Duration(float64(500*time.Millisecond) * d.cfg.ReadTimeoutMultiplier))
		if _, err := d.t.Write(FlashWrite4KCmd(addr, chunk)); err != nil {
			return &flasher.TransportWriteError{Err: err}
		}
		resp := make([]byte, 16)
		n, err := d.t.Read(resp)
		if err != nil || n == 0 {
			return &flasher.ProtocolFramingError{Operation: "FlashWrite4K", Reason: "no response"}
		}

		if d.cfg.ProgressCallback != nil {
			d.cfg.ProgressCallback(flasher.Progress{
				Phase: "writing", CurrentSector: i, TotalSectors: sectors,
				Percentage: 100 * float64(i+1) / float64(sectors), BytesDone: end,
			})
		}
	}

	d.setState(flasher.Verifying)
	local := crc.CRC32(0xFFFFFFFF, data)
	device, err := d.deviceCRC(startOffset, startOffset+uint32(len(data)))
	if err == nil && device != local && !d.cfg.IgnoreCRCErr {
		return &flasher.VerificationMismatchError{Method: "CRC32", Expected: hex32(local), Actual: hex32(device)}
	}
	return nil
}

// Erase erases sectors [startSector, startSector+sectors). 4K erases are
// used at the range's unaligned boundaries, 64K block erases in between.
// Each sector retries up to six times before aborting.
func (d *Driver) Erase(ctx context.Context, startSector, sectors int, eraseAll bool) (bool, error) {
	startOffset := uint32(startSector) * sectorSize
	length := uint32(sectors) * sectorSize
	if err := d.rejectProtected(startOffset, length); err != nil {
		return false, err
	}

	addr := startOffset
	remaining := length
	for remaining > 0 {
		if ctx.Err() != nil {
			return false, &flasher.CancelledError{Phase: "erase"}
		}
		use64K := remaining >= block64KSize && addr%block64KSize == 0
		var cmd []byte
		var step uint32
		if use64K {
			cmd = FlashEraseSizeCmd(EraseSub64K, addr)
			step = block64KSize
		} else {
			cmd = FlashEraseSizeCmd(EraseSub4K, addr)
			step = sectorSize
		}

		var ok bool
		const maxEraseAttempts = 6
		for attempt := 0; attempt < maxEraseAttempts; attempt++ {
			if d.cfg.ProgressCallback != nil {
				d.cfg.ProgressCallback(flasher.Progress{
					Phase: "erasing", BytesDone: int(addr - startOffset),
					Attempt: attempt + 1, MaxAttempts: maxEraseAttempts,
				})
			}
			_ = d.t.SetReadTimeout(1 * time.Second)
			if _, err := d.t.Write(cmd); err != nil {
				return false, &flasher.TransportWriteError{Err: err}
			}
			resp := make([]byte, 16)
			if n, err := d.t.Read(resp); err == nil && n > 0 {
				ok = true
				break
			}
		}
		if !ok {
			return false, &flasher.ProtocolFramingError{Operation: "FlashEraseSize", Reason: "no response after retries"}
		}

		addr += step
		remaining -= step
	}
	return true, nil
}

// ReadResult returns the buffer populated by the most recent Read.
func (d *Driver) ReadResult() []byte { return d.result }

// Dispose releases the transport.
func (d *Driver) Dispose() error {
	return d.t.Disconnect()
}

func isAllSame(b []byte, v byte) bool {
	for _, x := range b {
		if x != v {
			return false
		}
	}
	return true
}

func hex32(v uint32) string {
	const hexdigits = "0123456789ABCDEF"
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = hexdigits[v&0xF]
		v >>= 4
	}
	return "0x" + string(out)
}

var _ flasher.Driver = (*Driver)(nil)
