// Package tklserver relays game server kill feeds to chat webhooks.
//
// Game servers open a long-lived TCP connection and write one line per kill.
// Each line starts with a four-character sender ident that selects the
// destination webhook; the remainder is parsed into a kill event and posted
// as a rich embed, with the weapon's kill icon attached when one is bundled.
// Lines that do not parse are posted as plain text.
//
// # Architecture
//
//	game server ──TCP──► input/tcp ──► relay.Pipeline ──► output/webhook ──► chat
//	                        │              │  │
//	                     registry       event notify ◄── assets
//	                                        │
//	                                        └──► relay.Mirror ──► NATS (optional)
//
// # Packages
//
// Relay:
//   - input/tcp: listener, per-connection sessions, ident routing
//   - registry: sender ident to webhook destination, resolved at startup
//   - event: kill-line parser and action derivation
//   - notify: embed and plain-text notification builder
//   - assets: kill icon bundle with aliases and lazy PNG transcoding
//   - relay: parse, build, deliver and mirror one line
//   - output/webhook: webhook resolve and execute client
//
// Infrastructure:
//   - config: YAML configuration with environment overrides
//   - errors: classified errors (transient, invalid, fatal)
//   - metric: Prometheus metrics and the /health endpoint
//   - health: component health aggregation
//   - natsclient: NATS connection for the event mirror
//   - pkg/cache: generic cache with statistics and metrics
//   - pkg/retry: exponential backoff for startup operations
//
// # Binaries
//
//	# Run the relay
//	tklserver --config tklserver.yaml
//
//	# Pack a directory of kill icons into a bundle
//	mkbundle -dir icons/ -out kill_icons.zlib -alias SMG=Rifle
package tklserver
