// Package errors provides the error classification used across tklserver.
//
// # Overview
//
// Errors fall into three classes that decide how far a failure is allowed to travel:
//
//   - Transient: network timeouts, rate limits, dropped peers. Logged; the caller moves on.
//   - Invalid: a line that does not parse, an unknown sender ident, bad configuration
//     values. Logged; the offending event falls back or is discarded.
//   - Fatal: unusable configuration or a listener that cannot bind. The process exits.
//
// # Wrapping
//
// All wrapping follows "component.method: action failed: %w":
//
//	if err := conn.SetReadDeadline(deadline); err != nil {
//	    return errors.WrapTransient(err, "tcp-input", "readLine", "set deadline")
//	}
//
// Wrapped errors keep the cause reachable through errors.Is and errors.As, so
// sentinel checks like errors.Is(err, errors.ErrParsingFailed) work through any
// number of layers.
package errors
