package chipfamily

import "testing"

func TestProtocolGrouping(t *testing.T) {
	cases := []struct {
		f    Family
		want Protocol
	}{
		{BK7231T, ProtocolBK7231},
		{BK7231N, ProtocolBK7231},
		{BK7258, ProtocolBK7231},
		{BL602, ProtocolBL60x},
		{BL702, ProtocolBL60x},
		{BL616, ProtocolBL60x},
		{ESP32, ProtocolESP32},
		{ESP32S3, ProtocolESP32},
		{ESP32C3, ProtocolESP32},
		{W600, ProtocolWM},
		{W800, ProtocolWM},
	}
	for _, c := range cases {
		if got := c.f.Protocol(); got != c.want {
			t.Errorf("%s.Protocol() = %s, want %s", c.f.DisplayName(), got, c.want)
		}
	}
}

func TestFirmwarePrefixRules(t *testing.T) {
	qio := []Family{BK7231N, BK7231M, BK7236, BK7238, BK7252N, BK7258}
	for _, f := range qio {
		if got := f.FirmwarePrefix(); got != MarkerQIO {
			t.Errorf("%s.FirmwarePrefix() = %q, want QIO", f.DisplayName(), got)
		}
	}

	ua := []Family{BK7231T, BK7231U, BK7252}
	for _, f := range ua {
		if got := f.FirmwarePrefix(); got != MarkerUA {
			t.Errorf("%s.FirmwarePrefix() = %q, want UA", f.DisplayName(), got)
		}
	}

	for _, f := range []Family{BL602, ESP32, W800} {
		if got := f.FirmwarePrefix(); got != MarkerNone {
			t.Errorf("%s.FirmwarePrefix() = %q, want none", f.DisplayName(), got)
		}
	}
}

func TestIsBK7231TU(t *testing.T) {
	if !BK7231T.IsBK7231TU() || !BK7231U.IsBK7231TU() {
		t.Fatal("BK7231T/U should report IsBK7231TU true")
	}
	if BK7231N.IsBK7231TU() {
		t.Fatal("BK7231N should not report IsBK7231TU true")
	}
}

func TestParseFamilyAcceptsCommonSpellings(t *testing.T) {
	cases := map[string]Family{
		"bk7231t": BK7231T,
		"BK7231T": BK7231T,
		"esp32-s3": ESP32S3,
		"esp32_c3": ESP32C3,
		"w800":    W800,
	}
	for input, want := range cases {
		got, err := ParseFamily(input)
		if err != nil {
			t.Fatalf("ParseFamily(%q): %v", input, err)
		}
		if got != want {
			t.Errorf("ParseFamily(%q) = %s, want %s", input, got.DisplayName(), want.DisplayName())
		}
	}
}

func TestParseFamilyRejectsUnknown(t *testing.T) {
	if _, err := ParseFamily("not-a-chip"); err == nil {
		t.Error("expected an error for an unrecognised family name")
	}
}

func TestUnknownFamilyProtocol(t *testing.T) {
	if got := Unknown.Protocol(); got != ProtocolUnknown {
		t.Fatalf("Unknown.Protocol() = %v, want ProtocolUnknown", got)
	}
	if got := Unknown.DisplayName(); got != "unknown" {
		t.Fatalf("Unknown.DisplayName() = %q, want unknown", got)
	}
}
