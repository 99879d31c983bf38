// Package tcp accepts kill-feed connections from game servers.
//
// Each connection is served on its own goroutine. The sender writes
// newline-terminated frames; the first four characters of a frame are the
// sender ident, which selects the webhook destination, and the remainder is
// the line handed to the Dispatcher. Lines from one connection are dispatched
// in the order received, and a slow delivery only delays its own connection.
//
// A frame starting with a 0x00 byte, end of stream, or a read error closes the
// connection. Unknown idents and failed deliveries are logged and the
// connection stays open.
//
// Shutdown is cooperative: Stop closes the listener and sets a stop flag that
// every connection checks at least once per poll interval.
//
//	in, err := tcp.NewInput(tcp.Config{Address: ":9999", Encoding: "latin-1"},
//	    tcp.Deps{Router: reg, Dispatcher: pipeline, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	if err := in.Start(ctx); err != nil {
//	    return err
//	}
//	defer in.Stop(5 * time.Second)
package tcp
