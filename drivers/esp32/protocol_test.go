package esp32

import (
	"bytes"
	"testing"
)

func TestSlipRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{0xC0, 0xDB, 0x00, 0xFF},
		bytes.Repeat([]byte{0xC0}, 10),
	}
	for _, payload := range cases {
		encoded := SlipEncode(payload)
		if encoded[0] != slipEnd || encoded[len(encoded)-1] != slipEnd {
			t.Fatalf("SlipEncode(%v) not framed by 0xC0: %v", payload, encoded)
		}
		decoded := SlipDecode(encoded)
		if !bytes.Equal(decoded, payload) {
			t.Errorf("round trip mismatch: got %v, want %v", decoded, payload)
		}
	}
}

func TestBuildCommand(t *testing.T) {
	frame := BuildCommand(OpSync, 0x12345678, []byte{0xAA, 0xBB})
	want := []byte{0x00, OpSync, 0x02, 0x00, 0x78, 0x56, 0x34, 0x12, 0xAA, 0xBB}
	if !bytes.Equal(frame, want) {
		t.Errorf("BuildCommand: got %v, want %v", frame, want)
	}
}

func TestParseResponse(t *testing.T) {
	frame := []byte{0x01, OpSync, 0x02, 0x00, 0x01, 0x00, 0x00, 0x00, 0xAA, 0xBB, 0x00, 0x00}
	op, value, body, errStatus, err := ParseResponse(frame)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if op != OpSync || value != 1 || errStatus {
		t.Errorf("got op=%#x value=%d errStatus=%v", op, value, errStatus)
	}
	if !bytes.Equal(body, []byte{0xAA, 0xBB}) {
		t.Errorf("body = %v", body)
	}
}

func TestParseResponseErrorStatus(t *testing.T) {
	frame := []byte{0x01, OpSync, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x05}
	_, _, _, errStatus, err := ParseResponse(frame)
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if !errStatus {
		t.Error("expected errStatus true for non-zero status byte")
	}
}

func TestParseResponseTooShort(t *testing.T) {
	if _, _, _, _, err := ParseResponse([]byte{0x01, 0x02}); err == nil {
		t.Error("expected error for short frame")
	}
}

func TestXorChecksumSeed(t *testing.T) {
	if got := XorChecksum(nil); got != 0xEF {
		t.Errorf("XorChecksum(nil) = %#x, want 0xEF", got)
	}
	if got := XorChecksum([]byte{0xEF}); got != 0 {
		t.Errorf("XorChecksum([0xEF]) = %#x, want 0", got)
	}
}

func TestSyncPayloadShape(t *testing.T) {
	p := SyncPayload()
	if len(p) != 36 {
		t.Fatalf("len(SyncPayload()) = %d, want 36", len(p))
	}
	want := []byte{0x07, 0x07, 0x12, 0x20}
	if !bytes.Equal(p[:4], want) {
		t.Errorf("SyncPayload prefix = %v, want %v", p[:4], want)
	}
	for _, b := range p[4:] {
		if b != 0x55 {
			t.Fatalf("SyncPayload tail byte = %#x, want 0x55", b)
		}
	}
}

func TestChipIDFromMagic(t *testing.T) {
	cases := map[uint32]string{
		0x00F01D83: "ESP32",
		0x000007C6: "ESP32-S2",
		0xFFF0C101: "ESP8266",
		0x00000000: "unknown",
	}
	for magic, want := range cases {
		if got := ChipIDFromMagic(magic); got != want {
			t.Errorf("ChipIDFromMagic(%#x) = %q, want %q", magic, got, want)
		}
	}
}

func TestSPIRegistersForDiffersByFamily(t *testing.T) {
	esp32 := SPIRegistersFor("esp32")
	c3 := SPIRegistersFor("esp32c3")
	if esp32.Base == c3.Base {
		t.Error("expected different SPI base addresses for esp32 vs esp32c3")
	}
	if esp32.Base != 0x3FF42000 {
		t.Errorf("esp32 SPI base = %#x, want 0x3FF42000", esp32.Base)
	}
	if c3.Base != 0x60002000 {
		t.Errorf("esp32c3 SPI base = %#x, want 0x60002000", c3.Base)
	}
}
