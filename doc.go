// Package backend provides the Threads realtime server.

// The binaries live under cmd/:

// - cmd/server: websocket fan-out server, event ingest and introspection API
// - cmd/cli: developer CLI (mint tokens, check presence, publish and watch events)
// - cmd/seed: seeds the data store and replays fake realtime traffic

// The realtime layer is organized into subpackages:

// - internal/websocket: hub, connection registry, rooms, typing and the event relay
// - internal/notify: the Notifier interface the CRUD API announces changes through
// - internal/eventbus: envelopes and the HTTP, Redis, Kafka and Postgres transports
// - internal/repository: the data store slice the realtime layer reads and updates
// - internal/database: Database connection and migrations
// - internal/cache: Redis client and the presence mirror
// - internal/auth: token verification
// - internal/middleware: HTTP middleware (rate limiting, tracing, metrics, etc.)
// - internal/metrics, internal/telemetry: Prometheus metrics and OpenTelemetry tracing

// See the individual package documentation for detailed API reference.
package backend
