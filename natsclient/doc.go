// Package natsclient wraps a NATS connection for the nodeflow adapters.
//
// A Client offers core publish/subscribe, JetStream stream creation and
// acknowledged JetStream publishes. Its Publish method matches
// node.LogPublisher, so a connected client can also carry node diagnostics to
// logs.<flow>.<node>:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("nodeflow"),
//	    natsclient.WithMetrics(registry))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// Reconnection is delegated to nats.go; the client tracks the resulting
// status transitions. All errors are classified with the nodeflow errors
// package so callers can retry transient failures.
//
// NewTestClient starts a disposable NATS server with testcontainers-go for
// integration tests, which are built only with the "integration" tag.
package natsclient
