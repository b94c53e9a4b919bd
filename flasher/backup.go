package flasher

import (
	"fmt"
	"time"

	"github.com/go-embedded/chipflash/chipfamily"
)

// BackupName builds the filename the CLI writes a full read's result to:
// readResult_{ChipName}_{QIO|UA}_{yyyy-dd-M-HH-mm-ss}.bin, with the marker
// omitted for families that carry none. startOffset selects QIO (read
// started at sector 0) vs UA (read started at offset 0x11000) for the
// BK7231T/U families; other families fall back to their fixed
// FirmwarePrefix marker.
func BackupName(family chipfamily.Family, startOffset uint32, at time.Time) string {
	marker := family.FirmwarePrefix()
	if family.IsBK7231TU() {
		if startOffset == 0 {
			marker = chipfamily.MarkerQIO
		} else if startOffset == 0x11000 {
			marker = chipfamily.MarkerUA
		}
	}

	stamp := at.Format("2006-02-1-15-04-05")
	if marker == chipfamily.MarkerNone {
		return fmt.Sprintf("readResult_%s_%s.bin", family.DisplayName(), stamp)
	}
	return fmt.Sprintf("readResult_%s_%s_%s.bin", family.DisplayName(), marker, stamp)
}
