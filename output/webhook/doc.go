// Package webhook executes chat webhooks over HTTP.
//
// # Overview
//
// Client covers the two calls the relay makes: resolving a webhook URL into its
// id/token pair at startup, and executing a webhook once per event.
//
//	client, err := webhook.NewClient(webhook.DefaultConfig(), webhook.Deps{Logger: logger})
//	dest, err := client.Resolve(ctx, "https://discord.com/api/webhooks/123/abc")
//	err = client.Execute(ctx, dest, &webhook.Message{Content: "hello"})
//
// # Payloads
//
// A Message without files is posted as application/json. A Message with files is
// posted as multipart/form-data: the JSON goes in the payload_json part and each
// file in files[i]. Embeds reference an uploaded file with AttachmentURL(name).
//
// allowed_mentions.parse is always sent, empty unless set, so relayed names
// never ping anyone.
//
// # Errors
//
// Nothing is retried. Network failures, HTTP 429 and HTTP 5xx are transient;
// other non-2xx responses are invalid. Both wrap errors.ErrDeliveryFailed
// (or errors.ErrNotResolvable from Resolve).
package webhook
