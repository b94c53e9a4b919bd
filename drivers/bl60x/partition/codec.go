package partition

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-embedded/chipflash/crc"
)

var magic = [4]byte{'B', 'F', 'P', 'T'}

// ErrBadMagic is returned by ParseTable when the buffer does not start with
// the expected magic bytes.
var ErrBadMagic = fmt.Errorf("partition: bad magic, expected %q", string(magic[:]))

// ErrTruncated is returned by ParseTable when the buffer is shorter than
// the header plus count * entrySize demands.
type ErrTruncated struct {
	Need, Got int
}

func (e *ErrTruncated) Error() string {
	return fmt.Sprintf("partition: truncated table, need %d bytes, got %d", e.Need, e.Got)
}

// ErrChecksumMismatch is returned by ParseTable when the header's stored
// CRC-32 does not match the one computed over the table's own bytes.
type ErrChecksumMismatch struct {
	Expected, Actual uint32
}

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("partition: checksum mismatch, header says 0x%08X, computed 0x%08X", e.Expected, e.Actual)
}

// ParseTable decodes a partition table from its on-flash binary form.
func ParseTable(buf []byte) (*Table, error) {
	if len(buf) < headerSize {
		return nil, &ErrTruncated{Need: headerSize, Got: len(buf)}
	}
	if !bytes.Equal(buf[0:4], magic[:]) {
		return nil, ErrBadMagic
	}
	count := binary.LittleEndian.Uint32(buf[4:8])
	age := binary.LittleEndian.Uint32(buf[8:12])
	storedCRC := binary.LittleEndian.Uint32(buf[12:16])

	need := headerSize + int(count)*entrySize
	if len(buf) < need {
		return nil, &ErrTruncated{Need: need, Got: len(buf)}
	}
	if count > MaxEntries {
		return nil, &ErrTooManyEntries{Count: int(count)}
	}

	computed := checksumOver(buf[4:8], buf[8:12], buf[headerSize:need])
	if computed != storedCRC {
		return nil, &ErrChecksumMismatch{Expected: storedCRC, Actual: computed}
	}

	t := &Table{Age: age, Entries: make([]Entry, count)}
	off := headerSize
	for i := 0; i < int(count); i++ {
		e := buf[off : off+entrySize]
		t.Entries[i] = Entry{
			Type:     e[0],
			SlotFlag: e[1],
			Name:     trimName(e[2 : 2+NameLength]),
			Addr0:    binary.LittleEndian.Uint32(e[10:14]),
			Addr1:    binary.LittleEndian.Uint32(e[14:18]),
			Len0:     binary.LittleEndian.Uint32(e[18:22]),
			Len1:     binary.LittleEndian.Uint32(e[22:26]),
		}
		off += entrySize
	}
	return t, nil
}

// BuildTable encodes t into its on-flash binary form. BuildTable(ParseTable(x))
// reproduces x byte for byte for any x ParseTable accepted.
func BuildTable(t *Table) ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}

	count := uint32(len(t.Entries))
	need := headerSize + len(t.Entries)*entrySize
	buf := make([]byte, need)
	copy(buf[0:4], magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], count)
	binary.LittleEndian.PutUint32(buf[8:12], t.Age)

	off := headerSize
	for _, e := range t.Entries {
		entry := buf[off : off+entrySize]
		entry[0] = e.Type
		entry[1] = e.SlotFlag
		copy(entry[2:2+NameLength], paddedName(e.Name))
		binary.LittleEndian.PutUint32(entry[10:14], e.Addr0)
		binary.LittleEndian.PutUint32(entry[14:18], e.Addr1)
		binary.LittleEndian.PutUint32(entry[18:22], e.Len0)
		binary.LittleEndian.PutUint32(entry[22:26], e.Len1)
		off += entrySize
	}

	crc32 := checksumOver(buf[4:8], buf[8:12], buf[headerSize:need])
	binary.LittleEndian.PutUint32(buf[12:16], crc32)
	return buf, nil
}

func checksumOver(parts ...[]byte) uint32 {
	c := crc.CRC32(0xFFFFFFFF, nil)
	for _, p := range parts {
		c = crc.CRC32(c, p)
	}
	return c
}

func trimName(b []byte) string {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		i = len(b)
	}
	return string(b[:i])
}

func paddedName(name string) []byte {
	out := make([]byte, NameLength)
	copy(out, name)
	return out
}
