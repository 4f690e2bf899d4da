// Package nodeflow is an in-process dataflow engine. Pluggable nodes
// (producers, processors and consumers) are wired into an arbitrary
// fan-out/fan-in graph; every node runs on its own goroutine and data moves
// downstream through per-node mailboxes.
//
// # Architecture
//
//	┌─────────────────────────────────────┐
//	│            pipeline                 │  Named registry, Connect,
//	│   (start sinks first, dispose       │  wave-ordered Dispose,
//	│    sources first, health)           │  topology, health
//	└─────────────────────────────────────┘
//	           ↓ orchestrates
//	┌─────────────────────────────────────┐
//	│              node                   │  Broadcaster, Poller,
//	│  (contracts and runtimes)           │  ConsumerNode, Processor
//	└─────────────────────────────────────┘
//	           ↓ enqueue into
//	┌─────────────────────────────────────┐
//	│           pkg/mailbox               │  Unbounded FIFO, watermark,
//	│                                     │  Prometheus gauges
//	└─────────────────────────────────────┘
//
// A producer delivers each payload to its subscribers according to the
// broadcast semantics: every subscriber gets it (ToAll), one random
// subscriber gets it (Random), or the subscriber with the shallowest mailbox
// gets it (LoadBalanced). With more than one recipient and clone-on-fork
// enabled, payloads implementing node.Cloner are deep-copied per recipient.
//
// # Fan-Out
//
//	                ┌─────────────┐
//	                │  generator  │  input/generator (poller)
//	                └──────┬──────┘
//	                       ↓
//	                ┌─────────────┐
//	                │  transform  │  processor/transform
//	                └──────┬──────┘
//	     ┌─────────────────┼─────────────────┐
//	     ↓                 ↓                 ↓
//	┌────────┐       ┌──────────┐      ┌──────────┐
//	│  File  │       │WebSocket │      │   NATS   │
//	│ Output │       │  Output  │      │  Output  │
//	└────────┘       └──────────┘      └──────────┘
//
// Each sink has its own mailbox and worker, so a slow websocket client never
// stalls the file writer. Pollers may consult node.BranchLoad before the next
// cycle and back off while any downstream mailbox is deeper than a threshold.
//
// # Stop and Dispose
//
// Stop is cooperative: a poller finishes its current cycle, a consumer
// drains the items already queued. Dispose stops a node and blocks until its
// worker has exited, so disposing a pipeline source-first delivers every
// produced item to the sinks before Dispose returns.
//
// # Packages
//
// Engine:
//   - node: capability contracts and the producer, poller, consumer and
//     processor runtimes
//   - pkg/mailbox: the mailbox behind every consumer
//   - pipeline: graph assembly, ordered lifecycle, topology
//
// Adapters:
//   - input/generator, input/nats: sources
//   - processor/transform: typed transforms and filters
//   - output/file, output/websocket, output/nats: sinks
//
// Infrastructure:
//   - errors: error classification and wrapping
//   - config: JSON/YAML configuration with environment overrides
//   - metric: Prometheus registry and the /metrics and /health server
//   - health: per-node status and aggregation
//   - natsclient: NATS and JetStream connection
//   - pkg/retry, pkg/tlsutil: backoff and TLS helpers
//   - testutil: recorders, cloneable payloads and an in-memory NATS mock
//
// The nodeflow command in cmd/nodeflow assembles a configurable
// source -> transform -> sinks pipeline from these pieces.
package nodeflow
