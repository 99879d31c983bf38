// Package natsclient manages the NATS connection used to mirror relayed events.
//
// The client wraps nats.go with connection status tracking, structured logging
// of connection events and a bounded drain on Close:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithLogger(logger),
//	    natsclient.WithName("tklserver"),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err // transient; the caller decides whether to run without a mirror
//	}
//	defer client.Close(context.Background())
//
//	err = client.Publish(ctx, "tkl.AB12.kill", payload)
//
// Publish returns ErrNotConnected while the connection is down; nats.go keeps
// reconnecting in the background according to WithMaxReconnects and
// WithReconnectWait.
//
// # Testing
//
// NewTestClient starts a NATS server with testcontainers-go and returns a
// connected client. Tests using it are tagged "integration":
//
//	go test -tags integration ./natsclient/...
package natsclient
