// Package websocket provides a terminal node that pushes every payload to all
// connected websocket clients.
//
// Each payload is wrapped in a MessageEnvelope:
//
//	{"type":"data","id":"<uuid>","sender":"suffix","timestamp":1700000000000,"payload":...}
//
// Payloads are JSON-encoded; []byte payloads holding valid JSON are embedded
// as-is. A payload that arrives while no client is connected is counted as
// unsent and discarded. Clients that fail a write or a ping are disconnected.
//
// The upgrade handler can be mounted on an existing server through Handler,
// or served on its own port with Listen. Dispose drains the mailbox, shuts the
// server down and closes every client with a going-away frame.
package websocket
