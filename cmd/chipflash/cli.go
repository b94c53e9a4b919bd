package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-embedded/chipflash/chipfamily"
	"github.com/go-embedded/chipflash/drivers/bk7231"
	"github.com/go-embedded/chipflash/drivers/bl60x"
	"github.com/go-embedded/chipflash/drivers/esp32"
	"github.com/go-embedded/chipflash/drivers/wm"
	"github.com/go-embedded/chipflash/flasher"
	"github.com/go-embedded/chipflash/transport"
)

const sectorSize = 4096

// esp32ChipName maps a Family to the stub-asset name esp32.New expects
// ("esp32", "esp32s3", "esp32c3").
func esp32ChipName(f chipfamily.Family) string {
	switch f {
	case chipfamily.ESP32S3:
		return "esp32s3"
	case chipfamily.ESP32C3:
		return "esp32c3"
	default:
		return "esp32"
	}
}

// fullChipSize is the default read/write extent for the fread/fwrite
// commands when --size is not given: a generous upper bound per protocol
// family, large enough to cover every flash part these chips ship with.
func fullChipSize(f chipfamily.Family) uint32 {
	switch f.Protocol() {
	case chipfamily.ProtocolESP32:
		return 0x400000
	default:
		return 0x200000
	}
}

type cmdSpec struct {
	name     string
	needFile bool // command takes a positional firmware-file argument
}

var commands = map[string]cmdSpec{
	"fread":       {name: "fread"},
	"-read":       {name: "fread"},
	"fwrite":      {name: "fwrite", needFile: true},
	"-write":      {name: "fwrite", needFile: true},
	"read_flash":  {name: "read_flash"},
	"-cread":      {name: "read_flash"},
	"write_flash": {name: "write_flash", needFile: true},
	"-cwrite":     {name: "write_flash", needFile: true},
	"test":        {name: "test"},
	"-test":       {name: "test"},
}

func run(args []string) error {
	for _, a := range args {
		if a == "--help" || a == "-help" || a == "-h" || a == "/?" {
			printUsage()
			return nil
		}
	}

	if len(args) == 0 {
		printUsage()
		return errors.New("chipflash: no command given")
	}

	spec, ok := commands[args[0]]
	if !ok {
		return fmt.Errorf("chipflash: unknown command %q", args[0])
	}
	rest := args[1:]

	fs := flag.NewFlagSet(spec.name, flag.ContinueOnError)
	var port, chip, addrStr, sizeStr, out string
	var baud int
	fs.StringVar(&port, "port", "", "serial port device path")
	fs.StringVar(&port, "p", "", "serial port device path")
	fs.IntVar(&baud, "baud", 921600, "serial baud rate")
	fs.IntVar(&baud, "b", 921600, "serial baud rate")
	fs.StringVar(&chip, "chip", "", "chip family (bk7231t, bl602, esp32, w800, ...)")
	fs.StringVar(&addrStr, "addr", "0", "start address/offset (decimal or 0xHEX)")
	fs.StringVar(&addrStr, "ofs", "0", "start address/offset (decimal or 0xHEX)")
	fs.StringVar(&sizeStr, "size", "0", "byte length (decimal or 0xHEX)")
	fs.StringVar(&sizeStr, "len", "0", "byte length (decimal or 0xHEX)")
	fs.StringVar(&out, "out", "", "output filename for a read")

	// -port/-b/-chip/-ofs/-len/-out (single-dash aliases) parse identically
	// under Go's flag package, which treats - and -- the same.
	if err := fs.Parse(rest); err != nil {
		return err
	}

	if port == "" {
		return errors.New("chipflash: --port is required")
	}
	if chip == "" {
		return errors.New("chipflash: --chip is required")
	}
	family, err := chipfamily.ParseFamily(chip)
	if err != nil {
		return err
	}

	addr, err := parseIntArg(addrStr)
	if err != nil {
		return fmt.Errorf("chipflash: --addr: %w", err)
	}
	size, err := parseIntArg(sizeStr)
	if err != nil {
		return fmt.Errorf("chipflash: --size: %w", err)
	}

	var firmwarePath string
	positional := fs.Args()
	if spec.needFile {
		if len(positional) == 0 {
			return fmt.Errorf("chipflash: %s requires a firmware file argument", spec.name)
		}
		firmwarePath = positional[0]
	}

	t := transport.NewSerial(port, baud)
	logger := newSlogLogger()
	drv, err := newDriver(t, family, logger)
	if err != nil {
		return err
	}
	defer drv.Dispose()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := drv.Connect(ctx); err != nil {
		return fmt.Errorf("chipflash: connect: %w", err)
	}

	switch spec.name {
	case "fread":
		readSize := size
		if readSize == 0 {
			readSize = fullChipSize(family)
		}
		return doRead(ctx, drv, family, addr, readSize, out)
	case "read_flash":
		if size == 0 {
			return errors.New("chipflash: read_flash requires --size")
		}
		return doRead(ctx, drv, family, addr, size, out)
	case "fwrite":
		return doWrite(ctx, drv, firmwarePath, addr)
	case "write_flash":
		return doWrite(ctx, drv, firmwarePath, addr)
	case "test":
		return doTest(ctx, drv, addr, size)
	default:
		return fmt.Errorf("chipflash: unhandled command %q", spec.name)
	}
}

func newDriver(t transport.Transport, family chipfamily.Family, logger flasher.Logger) (flasher.Driver, error) {
	opts := []flasher.Option{flasher.WithLogger(logger)}
	switch family.Protocol() {
	case chipfamily.ProtocolBK7231:
		return bk7231.New(t, family, opts...), nil
	case chipfamily.ProtocolBL60x:
		return bl60x.New(t, opts...), nil
	case chipfamily.ProtocolESP32:
		return esp32.New(t, esp32ChipName(family), opts...), nil
	case chipfamily.ProtocolWM:
		return wm.New(t, family, opts...), nil
	default:
		return nil, fmt.Errorf("chipflash: %s has no registered driver", family.DisplayName())
	}
}

func doRead(ctx context.Context, drv flasher.Driver, family chipfamily.Family, addr, size uint32, out string) error {
	sectors := int((size + sectorSize - 1) / sectorSize)
	if err := drv.Read(ctx, int(addr/sectorSize), sectors, true); err != nil {
		return fmt.Errorf("chipflash: read: %w", err)
	}
	data := drv.ReadResult()
	// ReadResult is rounded up to a whole number of sectors (and, for a
	// flash chip smaller than requested, may come back shorter still);
	// never write more than the caller actually asked for.
	if uint32(len(data)) > size {
		data = data[:size]
	}

	name := out
	if name == "" {
		name = flasher.BackupName(family, addr, time.Now())
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("chipflash: write %s: %w", name, err)
	}
	fmt.Printf("read %d bytes, saved to %s\n", len(data), name)
	return nil
}

func doWrite(ctx context.Context, drv flasher.Driver, path string, addr uint32) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("chipflash: read firmware file: %w", err)
	}
	if err := drv.Write(ctx, addr, data); err != nil {
		return fmt.Errorf("chipflash: write: %w", err)
	}
	fmt.Printf("wrote %d bytes at 0x%X\n", len(data), addr)
	return nil
}

// doTest writes a repeating pattern at addr, reads it back, and verifies it
// byte-for-byte, exercising the full write+read+verify path without a real
// firmware file.
func doTest(ctx context.Context, drv flasher.Driver, addr, size uint32) error {
	if size == 0 {
		size = sectorSize
	}
	pattern := make([]byte, size)
	for i := range pattern {
		pattern[i] = byte(i % 256)
	}
	if err := drv.Write(ctx, addr, pattern); err != nil {
		return fmt.Errorf("chipflash: test write: %w", err)
	}

	sectors := int((size + sectorSize - 1) / sectorSize)
	if err := drv.Read(ctx, int(addr/sectorSize), sectors, true); err != nil {
		return fmt.Errorf("chipflash: test read: %w", err)
	}
	got := drv.ReadResult()
	if len(got) < len(pattern) {
		return fmt.Errorf("chipflash: test read returned %d bytes, want at least %d", len(got), len(pattern))
	}
	got = got[:len(pattern)]
	for i, want := range pattern {
		if got[i] != want {
			return fmt.Errorf("chipflash: test mismatch at offset 0x%X: got 0x%02X, want 0x%02X", addr+uint32(i), got[i], want)
		}
	}
	fmt.Printf("test passed: %d bytes written, read back, and verified at 0x%X\n", len(pattern), addr)
	return nil
}

func parseIntArg(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `chipflash - firmware flasher for BK7231, BL602/BL702/BL616, ESP32/S3/C3, and WM W600/W800 microcontrollers

Usage:
  chipflash <command> [flags] [file]

Commands:
  fread                 full chip read
  fwrite <file>         full chip write
  read_flash            range read (requires --addr and --size)
  write_flash <file>    range write (requires --addr)
  test                  write/read/verify a pattern

Legacy aliases: -read, -write, -cread, -cwrite, -test

Flags:
  --port, -p, -port <id>     serial port device path (required)
  --baud, -b, -baud <int>    serial baud rate (default 921600)
  --chip, -chip <family>     chip family: bk7231t, bk7231n, bl602, bl702, bl616, esp32, esp32s3, esp32c3, w600, w800, ...
  --addr, -ofs <int|0xHEX>   start address/offset
  --size, -len <int|0xHEX>   byte length
  --out, -out <name>         output filename for a read
  --help, -help, -h, /?      show this help`)
}
