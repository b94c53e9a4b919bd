package bk7231

import (
	"context"
	"testing"

	"github.com/go-embedded/chipflash/chipfamily"
	"github.com/go-embedded/chipflash/transport"
)

func TestBuildCommandShortForm(t *testing.T) {
	frame := BuildCommand(OpLinkCheck, nil)
	want := []byte{0x01, 0xE0, 0xFC, 0x01, 0x00}
	if string(frame) != string(want) {
		t.Fatalf("BuildCommand short form = % X, want % X", frame, want)
	}
}

func TestBuildCommandLongForm(t *testing.T) {
	payload := make([]byte, 300)
	frame := BuildCommand(OpFlashWrite4K, payload)
	if frame[3] != 0xFF || frame[4] != 0xF4 {
		t.Fatalf("long form header = % X", frame[:5])
	}
	l := int(frame[5]) | int(frame[6])<<8
	if l != len(payload)+1 {
		t.Fatalf("long form length = %d, want %d", l, len(payload)+1)
	}
	if frame[7] != OpFlashWrite4K {
		t.Fatalf("long form opcode = %#x, want %#x", frame[7], OpFlashWrite4K)
	}
}

func TestParseResponseRoundTrip(t *testing.T) {
	frame := []byte{0x04, 0x0E, 0x04, 0x0E, 0xEF, 0x40, 0x17}
	opcode, payload, err := ParseResponse(frame)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if opcode != 0x0E {
		t.Fatalf("opcode = %#x, want 0x0E", opcode)
	}
	if string(payload) != string([]byte{0xEF, 0x40, 0x17}) {
		t.Fatalf("payload = % X, want EF 40 17", payload)
	}
}

func TestParseResponseRejectsBadPrefix(t *testing.T) {
	_, _, err := ParseResponse([]byte{0x00, 0x00, 0x01, 0x00})
	if err == nil {
		t.Fatal("expected error for bad prefix")
	}
}

func TestRejectProtectedBK7231T(t *testing.T) {
	d := &Driver{family: chipfamily.BK7231T}
	if err := d.rejectProtected(0, 0x1000); err == nil {
		t.Fatal("write at offset 0 should be rejected for BK7231T without override")
	}
	if err := d.rejectProtected(bootloaderOffset, 0x1000); err != nil {
		t.Fatalf("write at bootloaderOffset should be accepted: %v", err)
	}
}

func TestRejectProtectedOverrideAllows(t *testing.T) {
	d := &Driver{family: chipfamily.BK7231T}
	d.cfg.OverwriteBootloader = true
	if err := d.rejectProtected(0, 0x1000); err != nil {
		t.Fatalf("override should allow write at offset 0: %v", err)
	}
}

func TestRejectProtectedNonTUFamilyUnaffected(t *testing.T) {
	d := &Driver{family: chipfamily.BK7231N}
	if err := d.rejectProtected(0, 0x1000); err != nil {
		t.Fatalf("non-T/U family should never be protected: %v", err)
	}
}

func TestIsAllSame(t *testing.T) {
	if !isAllSame([]byte{0xFF, 0xFF, 0xFF}, 0xFF) {
		t.Fatal("expected uniform buffer to be detected")
	}
	if isAllSame([]byte{0xFF, 0x00, 0xFF}, 0xFF) {
		t.Fatal("non-uniform buffer falsely flagged as uniform")
	}
}

func TestHex32Formatting(t *testing.T) {
	if got := hex32(0xDEADBEEF); got != "0xDEADBEEF" {
		t.Fatalf("hex32 = %q, want 0xDEADBEEF", got)
	}
}

// minimalAck is a 4-byte response frame that ParseResponse accepts:
// prefix 0x04 0x0E, length 1 (opcode only), opcode 0x00, empty payload.
var minimalAck = []byte{0x04, 0x0E, 0x01, 0x00}

func TestConnectThenReadOneSector(t *testing.T) {
	m := transport.NewMock()
	// getBus: first LinkCheck succeeds immediately.
	m.QueueResponse(minimalAck)
	// switchBaud: response at the new rate.
	m.QueueResponse(minimalAck)
	// identifyAndUnprotect: FlashGetMID reports MID 0xEF4017 (W25Q64).
	m.QueueResponse([]byte{0x04, 0x0E, 0x04, 0x0E, 0xEF, 0x40, 0x17})
	// setProtectState: two status-register reads, then a write ack.
	m.QueueResponse(minimalAck)
	m.QueueResponse(minimalAck)
	m.QueueResponse(minimalAck)

	d := New(m, chipfamily.BK7231T)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if d.memoryBytes != 8*1024*1024 {
		t.Fatalf("memoryBytes = %d, want 8 MiB for W25Q64", d.memoryBytes)
	}

	sector := make([]byte, 15+sectorSize)
	for i := range sector {
		sector[i] = byte(i % 251)
	}
	m.QueueResponse(sector)

	if err := d.Read(context.Background(), 0, 1, false); err != nil {
		t.Fatalf("Read: %v", err)
	}
	result := d.ReadResult()
	if len(result) != sectorSize {
		t.Fatalf("ReadResult length = %d, want %d", len(result), sectorSize)
	}
	if result[0] != sector[15] {
		t.Fatalf("ReadResult did not discard the 15-byte header correctly")
	}
}

func TestConnectFailsWithoutSyncResponse(t *testing.T) {
	m := transport.NewMock() // no queued responses: every LinkCheck times out
	d := New(m, chipfamily.BK7231T)
	err := d.Connect(context.Background())
	if err == nil {
		t.Fatal("expected Connect to fail when the device never syncs")
	}
}
