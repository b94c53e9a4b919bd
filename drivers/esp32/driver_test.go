package esp32

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/go-embedded/chipflash/crc"
	"github.com/go-embedded/chipflash/flasher"
	"github.com/go-embedded/chipflash/transport"
)

func syncOKFrame() []byte {
	return okFrame(OpSync, 0, nil)
}

func okFrame(op byte, value uint32, body []byte) []byte {
	resp := make([]byte, 0, 10+len(body))
	resp = append(resp, 0x01, op, byte(len(body)), byte(len(body)>>8),
		byte(value), byte(value>>8), byte(value>>16), byte(value>>24))
	resp = append(resp, body...)
	resp = append(resp, 0x00, 0x00)
	return SlipEncode(resp)
}

func TestConnectSyncsThenFallsBackWithoutStub(t *testing.T) {
	m := transport.NewMock()
	m.QueueResponse(syncOKFrame())
	// The ROM answers a sync with several duplicate responses; sync drains
	// seven of them before Connect moves on to SPI attach.
	for i := 0; i < 7; i++ {
		m.QueueResponse(syncOKFrame())
	}
	m.QueueResponse(okFrame(OpSPIAttach, 0, nil))
	// No further responses queued: identifyChip, flashIDViaSPIRegisters, and
	// uploadStub all fail silently or non-fatally.
	d := New(m, "esp32")

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if d.stubAlive {
		t.Error("expected stubAlive false when no stub response was queued")
	}
}

func TestConnectFailsWithoutSyncResponse(t *testing.T) {
	m := transport.NewMock()
	d := New(m, "esp32")
	err := d.Connect(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var syncErr *flasher.SyncFailedError
	if !errors.As(err, &syncErr) {
		t.Errorf("got %T, want *flasher.SyncFailedError", err)
	}
}

func TestSyncRetriesAcrossGarbageFrames(t *testing.T) {
	m := transport.NewMock()
	m.QueueResponse([]byte{0xC0, 0xFF, 0xC0})
	m.QueueResponse([]byte{0xC0, 0xFF, 0xC0})
	m.QueueResponse(syncOKFrame())
	d := New(m, "esp32")
	if err := d.sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
}

func TestReadFlashSlowPath(t *testing.T) {
	m := transport.NewMock()
	data := []byte("0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF0123456789ABCDEF")
	if len(data) != readFlashSlowPerBlock {
		t.Fatalf("fixture length %d, want %d", len(data), readFlashSlowPerBlock)
	}
	m.QueueResponse(okFrame(OpReadFlashSlow, 0, data))
	d := New(m, "esp32")

	buf, err := d.readFlashSlow(context.Background(), 0, uint32(len(data)))
	if err != nil {
		t.Fatalf("readFlashSlow: %v", err)
	}
	if string(buf) != string(data) {
		t.Errorf("got %q, want %q", buf, data)
	}
}

func TestVerifyMD5StubRawBytes(t *testing.T) {
	m := transport.NewMock()
	data := []byte("stub raw md5 payload")
	digest := crc.MD5(data)
	m.QueueResponse(okFrame(OpSPIFlashMD5, 0, digest[:]))
	d := New(m, "esp32")

	if err := d.verifyMD5(data); err != nil {
		t.Fatalf("verifyMD5: %v", err)
	}
}

func TestVerifyMD5ROMHexASCII(t *testing.T) {
	m := transport.NewMock()
	data := []byte("rom ascii hex md5 payload")
	digest := crc.MD5(data)
	hexDigest := []byte(hex.EncodeToString(digest[:]))
	m.QueueResponse(okFrame(OpSPIFlashMD5, 0, hexDigest))
	d := New(m, "esp32")

	if err := d.verifyMD5(data); err != nil {
		t.Fatalf("verifyMD5: %v", err)
	}
}

func TestVerifyMD5Mismatch(t *testing.T) {
	m := transport.NewMock()
	wrong := crc.MD5([]byte("not the data"))
	m.QueueResponse(okFrame(OpSPIFlashMD5, 0, wrong[:]))
	d := New(m, "esp32")

	err := d.verifyMD5([]byte("actual data"))
	var mismatch *flasher.VerificationMismatchError
	if !errors.As(err, &mismatch) {
		t.Errorf("got %T, want *flasher.VerificationMismatchError", err)
	}
}

func TestWriteRequiresStub(t *testing.T) {
	m := transport.NewMock()
	d := New(m, "esp32")
	if err := d.Write(context.Background(), 0, []byte{0x01}); err == nil {
		t.Error("expected error writing without a live stub")
	}
}

func TestEraseRequiresStub(t *testing.T) {
	m := transport.NewMock()
	d := New(m, "esp32")
	if _, err := d.Erase(context.Background(), 0, 1, false); err == nil {
		t.Error("expected error erasing without a live stub")
	}
}

func TestLoadStubAllVariants(t *testing.T) {
	for _, name := range []string{"esp32", "esp32s3", "esp32c3"} {
		if _, err := LoadStub(name); err != nil {
			t.Errorf("LoadStub(%q): %v", name, err)
		}
	}
}

func TestLoadStubUnknownChip(t *testing.T) {
	if _, err := LoadStub("esp8266"); err == nil {
		t.Error("expected error for an unbundled chip name")
	}
}

func TestSegmentBlocksSizing(t *testing.T) {
	data := make([]byte, memBlockSize*2+10)
	blocks := segmentBlocks(data)
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}
	if len(blocks[2]) != 10 {
		t.Errorf("last block length = %d, want 10", len(blocks[2]))
	}
}

func TestSegmentBlocksEmpty(t *testing.T) {
	blocks := segmentBlocks(nil)
	if len(blocks) != 1 || len(blocks[0]) != 0 {
		t.Errorf("segmentBlocks(nil) = %v, want one empty block", blocks)
	}
}
