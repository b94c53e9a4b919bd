package flasher

import (
	"testing"
	"time"

	"github.com/go-embedded/chipflash/chipfamily"
)

func TestApplyDefaults(t *testing.T) {
	c := Apply()
	if c.ReadTimeoutMultiplier != 1.0 {
		t.Fatalf("ReadTimeoutMultiplier = %v, want 1.0", c.ReadTimeoutMultiplier)
	}
	if c.OverwriteBootloader {
		t.Fatal("OverwriteBootloader should default to false")
	}
}

func TestWithReadTimeoutMultiplierClamps(t *testing.T) {
	c := Apply(WithReadTimeoutMultiplier(0.2))
	if c.ReadTimeoutMultiplier != 1.0 {
		t.Fatalf("multiplier below 1.0 should clamp to 1.0, got %v", c.ReadTimeoutMultiplier)
	}
	c = Apply(WithReadTimeoutMultiplier(2.5))
	if c.ReadTimeoutMultiplier != 2.5 {
		t.Fatalf("multiplier = %v, want 2.5", c.ReadTimeoutMultiplier)
	}
}

func TestOptionsApplyInOrder(t *testing.T) {
	c := Apply(WithOverwriteBootloader(true), WithSkipKeyCheck(true), WithIgnoreCRCErr(true))
	if !c.OverwriteBootloader || !c.SkipKeyCheck || !c.IgnoreCRCErr {
		t.Fatalf("unexpected config: %+v", c)
	}
}

func TestLogDispatchesByLevel(t *testing.T) {
	var got []string
	l := &recordingLogger{record: &got}
	Log(l, LogDebug, "d")
	Log(l, LogInfo, "i")
	Log(l, LogWarn, "w")
	Log(l, LogError, "e")
	want := []string{"debug:d", "info:i", "warn:w", "error:e"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLogNilLoggerNoPanic(t *testing.T) {
	Log(nil, LogInfo, "anything")
}

func TestBackupNameBK7231TU(t *testing.T) {
	at := time.Date(2026, 3, 9, 14, 5, 1, 0, time.UTC)
	qio := BackupName(chipfamily.BK7231T, 0, at)
	if qio != "readResult_BK7231T_QIO_2026-09-3-14-05-01.bin" {
		t.Fatalf("QIO backup name = %q", qio)
	}
	ua := BackupName(chipfamily.BK7231T, 0x11000, at)
	if ua != "readResult_BK7231T_UA_2026-09-3-14-05-01.bin" {
		t.Fatalf("UA backup name = %q", ua)
	}
}

func TestBackupNameNonBKFamilyHasNoMarker(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	name := BackupName(chipfamily.ESP32, 0, at)
	if name != "readResult_ESP32_2026-01-1-00-00-00.bin" {
		t.Fatalf("backup name = %q", name)
	}
}

func TestStateStringCoversAllValues(t *testing.T) {
	for s := Idle; s <= Failed; s++ {
		if s.String() == "unknown" {
			t.Fatalf("State %d has no String() case", s)
		}
	}
}

type recordingLogger struct {
	record *[]string
}

func (r *recordingLogger) Debug(msg string, kv ...interface{}) { *r.record = append(*r.record, "debug:"+msg) }
func (r *recordingLogger) Info(msg string, kv ...interface{})  { *r.record = append(*r.record, "info:"+msg) }
func (r *recordingLogger) Warn(msg string, kv ...interface{})  { *r.record = append(*r.record, "warn:"+msg) }
func (r *recordingLogger) Error(msg string, kv ...interface{}) { *r.record = append(*r.record, "error:"+msg) }
