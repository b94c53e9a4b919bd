package crc

import "testing"

func TestCRC32Deterministic(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	a := CRC32(0xFFFFFFFF, data)
	b := CRC32(0xFFFFFFFF, data)
	if a != b {
		t.Fatalf("CRC32 not deterministic: %08X != %08X", a, b)
	}
}

func TestCRC32EmptyInput(t *testing.T) {
	if got := CRC32(0xFFFFFFFF, nil); got != 0xFFFFFFFF {
		t.Fatalf("CRC32(init, nil) = %08X, want unchanged init 0xFFFFFFFF", got)
	}
}

func TestCRC32ChangesWithInput(t *testing.T) {
	a := CRC32(0xFFFFFFFF, []byte{0x00})
	b := CRC32(0xFFFFFFFF, []byte{0x01})
	if a == b {
		t.Fatalf("CRC32 of different inputs collided: %08X", a)
	}
}

func TestCRC16CCITTFalseKnownVector(t *testing.T) {
	// "123456789" -> 0x29B1 is the canonical CRC-16/CCITT-FALSE test vector.
	got := CRC16CCITTFalse([]byte("123456789"))
	if got != 0x29B1 {
		t.Fatalf("CRC16CCITTFalse(\"123456789\") = %04X, want 29B1", got)
	}
}

func TestCRC16XMODEMKnownVector(t *testing.T) {
	// "123456789" -> 0x31C3 is the canonical CRC-16/XMODEM test vector.
	got := CRC16XMODEM([]byte("123456789"))
	if got != 0x31C3 {
		t.Fatalf("CRC16XMODEM(\"123456789\") = %04X, want 31C3", got)
	}
}

func TestCRC16VariantsDiffer(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	if CRC16CCITTFalse(data) == CRC16XMODEM(data) {
		t.Fatalf("CCITT-FALSE and XMODEM crc16 unexpectedly agree for %v", data)
	}
}

func TestMD5MatchesKnownVector(t *testing.T) {
	sum := MD5([]byte("abc"))
	want := "900150983cd24fb0d6963f7d28e17f72"
	if hexString(sum[:]) != want {
		t.Fatalf("MD5(\"abc\") = %x, want %s", sum, want)
	}
}

func TestSHA256MatchesKnownVector(t *testing.T) {
	sum := SHA256([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"[:64]
	if hexString(sum[:]) != want {
		t.Fatalf("SHA256(\"abc\") = %x, want %s", sum, want)
	}
}

func hexString(b []byte) string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexdigits[c>>4]
		out[i*2+1] = hexdigits[c&0xF]
	}
	return string(out)
}
