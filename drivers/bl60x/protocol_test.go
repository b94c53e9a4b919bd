package bl60x

import (
	"encoding/binary"
	"testing"

	"github.com/go-embedded/chipflash/crc"
)

func TestBuildCommandFraming(t *testing.T) {
	frame := BuildCommand(OpFlashID, nil)
	if frame[0] != OpFlashID {
		t.Fatalf("opcode = %#x, want %#x", frame[0], OpFlashID)
	}
	if frame[2] != 0 || frame[3] != 0 {
		t.Fatalf("expected zero length for nil payload, got % X", frame[2:4])
	}
}

func TestBuildCommandChecksum(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	frame := BuildCommand(OpFlashWrite, payload)
	want := checksum8(uint16(len(payload)), payload)
	if frame[1] != want {
		t.Fatalf("checksum = %#x, want %#x", frame[1], want)
	}
}

func TestParseResponseKind(t *testing.T) {
	cases := map[string]ResponseKind{
		"OK": ResponseOK,
		"FL": ResponseFail,
		"PD": ResponsePending,
	}
	for prefix, want := range cases {
		got, err := ParseResponseKind([]byte(prefix + "xx"))
		if err != nil {
			t.Fatalf("ParseResponseKind(%q): %v", prefix, err)
		}
		if got != want {
			t.Fatalf("ParseResponseKind(%q) = %v, want %v", prefix, got, want)
		}
	}
}

func TestDetectVariant(t *testing.T) {
	cases := []struct {
		lead uint32
		want Variant
	}{
		{0x70200000, VariantBL702},
		{0x70400000, VariantBL702},
		{0x61600000, VariantBL616},
		{0x60200000, VariantBL602},
	}
	for _, c := range cases {
		buf := []byte{byte(c.lead >> 24), byte(c.lead >> 16), byte(c.lead >> 8), byte(c.lead)}
		if got := DetectVariant(buf); got != c.want {
			t.Errorf("DetectVariant(%X) = %v, want %v", c.lead, got, c.want)
		}
	}
}

func TestDecodeFlashSize(t *testing.T) {
	// b[3] = 0x14 -> shift 3 -> (1<<3)/8 = 1 MB
	resp := []byte{0, 0, 0, 0x14}
	size, err := DecodeFlashSize(resp)
	if err != nil {
		t.Fatalf("DecodeFlashSize: %v", err)
	}
	if size != 1024*1024 {
		t.Fatalf("size = %d, want 1 MiB", size)
	}
}

func TestBuildBootHeaderLength(t *testing.T) {
	h := BuildBootHeader(FlashConfig{}, 0, []byte("firmware"))
	if len(h) != BootHeaderSize {
		t.Fatalf("header length = %d, want %d", len(h), BootHeaderSize)
	}
	if h[0] != 0x42 || h[1] != 0x46 || h[2] != 0x4E || h[3] != 0x50 {
		t.Fatalf("magic bytes = % X, want little-endian 0x504E4642", h[:4])
	}
}

func TestBuildBootHeaderCRCAndSHAOffsets(t *testing.T) {
	fw := []byte("firmware body for offset checking")
	h := BuildBootHeader(FlashConfig{ClockConfig: 7}, 3, fw)

	wantSHA := crc.SHA256(fw)
	if string(h[132:164]) != string(wantSHA[:]) {
		t.Fatalf("bytes 132..163 = % X, want SHA-256 of firmware % X", h[132:164], wantSHA)
	}

	crc1 := crc.CRC32(0xFFFFFFFF, h[0:96])
	if got := binary.LittleEndian.Uint32(h[96:100]); got != crc1 {
		t.Fatalf("CRC-32 at offset 96 = %#08x, want %#08x", got, crc1)
	}

	crc2 := crc.CRC32(0xFFFFFFFF, h[0:112])
	if got := binary.LittleEndian.Uint32(h[112:116]); got != crc2 {
		t.Fatalf("CRC-32 at offset 112 = %#08x, want %#08x", got, crc2)
	}

	crc3 := crc.CRC32(0xFFFFFFFF, h[0:172])
	if got := binary.LittleEndian.Uint32(h[172:176]); got != crc3 {
		t.Fatalf("CRC-32 at offset 172 = %#08x, want %#08x", got, crc3)
	}
}

func TestBuildBootHeaderDeterministic(t *testing.T) {
	fw := []byte("same firmware bytes")
	a := BuildBootHeader(FlashConfig{ClockConfig: 1}, 2, fw)
	b := BuildBootHeader(FlashConfig{ClockConfig: 1}, 2, fw)
	if string(a) != string(b) {
		t.Fatal("BuildBootHeader is not deterministic for identical inputs")
	}
}
