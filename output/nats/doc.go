// Package nats provides a terminal node that publishes payloads to a NATS
// subject, through core NATS or JetStream.
//
// Payloads are JSON-encoded; []byte payloads holding valid JSON are sent
// unchanged. Each publish is retried with exponential backoff (pkg/retry)
// within Config.Timeout. Payloads that still fail are logged and counted by
// the node runtime and dropped; delivery guarantees beyond that belong to the
// broker.
package nats
