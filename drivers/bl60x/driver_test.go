package bl60x

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/go-embedded/chipflash/crc"
	"github.com/go-embedded/chipflash/transport"
)

// okResponse queues the three Read-sized chunks command() expects for a
// successful OK response carrying data.
func okResponse(m *transport.Mock, data []byte) {
	m.QueueResponse([]byte("OK"))
	lenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBuf, uint16(len(data)))
	m.QueueResponse(lenBuf)
	if len(data) > 0 {
		m.QueueResponse(data)
	}
}

func bootInfoBL616() []byte {
	info := make([]byte, 4)
	binary.BigEndian.PutUint32(info, 0x616<<20)
	return info
}

func TestConnectBL616SkipsLoaderUpload(t *testing.T) {
	m := transport.NewMock()
	m.QueueResponse([]byte("OK")) // sync
	okResponse(m, bootInfoBL616())
	okResponse(m, nil) // BL616Config ack

	d := New(m)
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if d.variant != VariantBL616 {
		t.Fatalf("variant = %v, want BL616", d.variant)
	}
}

func TestConnectFailsWithoutSyncResponse(t *testing.T) {
	m := transport.NewMock()
	d := New(m)
	if err := d.Connect(context.Background()); err == nil {
		t.Fatal("expected Connect to fail when the device never syncs")
	}
}

func TestCommandHandlesPendingThenOK(t *testing.T) {
	m := transport.NewMock()
	m.QueueResponse([]byte("PD"))
	okResponse(m, []byte{0x01, 0x02, 0x03})

	d := New(m)
	data, err := d.command(OpGetBootInfo, nil)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	if !bytes.Equal(data, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("data = % X, want 01 02 03", data)
	}
}

func TestCommandFailStatus(t *testing.T) {
	m := transport.NewMock()
	m.QueueResponse([]byte("FL"))

	d := New(m)
	if _, err := d.command(OpGetBootInfo, nil); err == nil {
		t.Fatal("expected an error for an FL status")
	}
}

func TestReadOneChunk(t *testing.T) {
	m := transport.NewMock()
	chunkData := make([]byte, 4096)
	for i := range chunkData {
		chunkData[i] = byte(i % 200)
	}
	okResponse(m, chunkData)

	d := New(m)
	if err := d.Read(context.Background(), 0, 1, false); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(d.ReadResult(), chunkData) {
		t.Fatal("ReadResult did not match the queued chunk")
	}
}

func TestVerifySHA256Matches(t *testing.T) {
	data := []byte("firmware payload bytes")
	sum := crc.SHA256(data)

	m := transport.NewMock()
	okResponse(m, sum[:])

	d := New(m)
	if err := d.verifySHA256(0, data); err != nil {
		t.Fatalf("verifySHA256: %v", err)
	}
}

func TestVerifySHA256Mismatch(t *testing.T) {
	m := transport.NewMock()
	okResponse(m, make([]byte, 32))

	d := New(m)
	if err := d.verifySHA256(0, []byte("mismatched data")); err == nil {
		t.Fatal("expected a verification mismatch error")
	}
}

func TestEraseAllSendsEraseAllOpcode(t *testing.T) {
	m := transport.NewMock()
	okResponse(m, nil)

	d := New(m)
	ran, err := d.Erase(context.Background(), 0, 0, true)
	if err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if !ran {
		t.Fatal("expected Erase to report it ran")
	}
	if got := m.LastWrite()[0]; got != OpFlashEraseAll {
		t.Fatalf("opcode sent = %#x, want %#x", got, OpFlashEraseAll)
	}
}

func TestDetectVariantBL602Default(t *testing.T) {
	if v := DetectVariant([]byte{0x00, 0x00, 0x00, 0x00}); v != VariantBL602 {
		t.Fatalf("DetectVariant = %v, want BL602", v)
	}
}

func TestEflashLoaderNilForBL616(t *testing.T) {
	if EflashLoader(VariantBL616) != nil {
		t.Fatal("expected no eflash loader for BL616")
	}
	if EflashLoader(VariantBL602) == nil {
		t.Fatal("expected a bundled eflash loader for BL602")
	}
}
