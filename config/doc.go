// Package config loads the relay configuration.
//
// The file is YAML (JSON is accepted as a YAML subset). Known sections map onto
// Config; every top-level key of the form "source.<ident>" defines one sender:
//
//	relay:
//	  port: 9999
//	source.AB12:
//	  webhook_url: https://discord.com/api/webhooks/1/abc
//
// Environment variables override the file: TKLSERVER_HOST, TKLSERVER_PORT,
// TKLSERVER_ENCODING and TKLSERVER_NATS_URL.
//
// Validation errors are classified fatal; the caller is expected to exit.
package config
