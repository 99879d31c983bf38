// Package testutil provides shared fixtures for tklserver tests: kill-feed
// lines, a fake webhook server, and an in-memory NATS publisher.
//
// A typical end-to-end test resolves sources against the fake webhook, sends
// frames to the relay and inspects what was delivered:
//
//	hook := testutil.NewFakeWebhook(t)
//	client, _ := webhook.NewClient(webhook.Config{APIBase: hook.APIBase()}, webhook.Deps{})
//	dest, _ := client.Resolve(ctx, hook.URL(1, "token"))
//	...
//	conn.Write(testutil.Frame("AB12", testutil.KillLine))
//	reqs := hook.WaitForRequests(t, 1, 5*time.Second)
package testutil
