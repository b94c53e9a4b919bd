// Package flasher defines the operation surface every chip-family driver
// implements (drivers/bk7231, drivers/bl60x, drivers/esp32, drivers/wm) and
// the machinery shared across all of them: the State machine an operation
// walks through, Progress/Logger/State callbacks, the functional-options
// Config every driver accepts, and the typed error taxonomy drivers return.
//
// # Basic usage
//
// A caller picks a driver for the target chip family, wires up whichever
// callbacks it wants, and drives it through Connect/Read/Write/Erase:
//
//	d := bk7231.New(serialTransport, chipfamily.BK7231T,
//	    flasher.WithProgressCallback(func(p flasher.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	    flasher.WithLogger(myLogger),
//	)
//	defer d.Dispose()
//
//	if err := d.Connect(ctx); err != nil {
//	    return err
//	}
//	if err := d.Read(ctx, 0, 256, true); err != nil {
//	    return err
//	}
//	data := d.ReadResult()
//
// # Cancellation
//
// Every operation takes a context.Context and checks it between sectors,
// packets, and sync retries. Cancellation is cooperative: a cancelled
// operation returns a *CancelledError promptly, with no guarantee about how
// much work completed, and no half-written state guarantee either way.
//
// # Hardware independence
//
// This package does not implement serial communication. Drivers consume a
// transport.Transport, which callers construct separately (transport.Serial
// for a real port, transport.Mock for tests).
package flasher
