// Command chipflash flashes BK7231, BL602/BL702/BL616, ESP32/S3/C3, and WM
// W600/W800 microcontrollers over a UART bootloader connection.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
