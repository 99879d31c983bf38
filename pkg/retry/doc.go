// Package retry provides exponential backoff for transient startup failures.
//
// The relay never retries webhook deliveries; retries are reserved for
// resources the process needs before it can serve, such as its listening
// socket and the optional NATS connection:
//
//	listener, err := retry.DoWithResult(ctx, retry.Quick(), func() (net.Listener, error) {
//	    return net.Listen("tcp", addr)
//	})
//
// Wrap an error with NonRetryable to stop immediately.
package retry
