package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-embedded/chipflash/chipfamily"
)

// fakeDriver is a flasher.Driver whose Read always returns a sector-rounded,
// over-long buffer, the same shape a real driver's Read leaves behind when
// the caller's byte count isn't a whole number of sectors.
type fakeDriver struct {
	result []byte
}

func (f *fakeDriver) Connect(ctx context.Context) error { return nil }
func (f *fakeDriver) Read(ctx context.Context, startSector, sectors int, fullRead bool) error {
	f.result = make([]byte, sectors*sectorSize)
	for i := range f.result {
		f.result[i] = byte(i % 256)
	}
	return nil
}
func (f *fakeDriver) Write(ctx context.Context, startOffset uint32, data []byte) error { return nil }
func (f *fakeDriver) Erase(ctx context.Context, startSector, sectors int, eraseAll bool) (bool, error) {
	return true, nil
}
func (f *fakeDriver) ReadResult() []byte { return f.result }
func (f *fakeDriver) Dispose() error     { return nil }

func TestDoReadTruncatesToRequestedSize(t *testing.T) {
	d := &fakeDriver{}
	out := filepath.Join(t.TempDir(), "out.bin")
	const size = 100 // not a multiple of sectorSize

	if err := doRead(context.Background(), d, chipfamily.BK7231T, 0, size, out); err != nil {
		t.Fatalf("doRead: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != size {
		t.Fatalf("written file length = %d, want %d", len(data), size)
	}
}

func TestDoTestComparesOnlyRequestedBytes(t *testing.T) {
	d := &fakeDriver{}
	const size = 100 // not a multiple of sectorSize
	if err := doTest(context.Background(), d, 0, size); err != nil {
		t.Fatalf("doTest: %v", err)
	}
}
