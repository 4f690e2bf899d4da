// Package node is the nodeflow execution engine: the capability contracts a
// pluggable node implements, and the runtimes that give those contracts their
// concurrency, lifecycle and dispatch behavior.
//
// # Contracts
//
// A node implements Lifecycle plus Producer and/or Consumer. Topology is built
// only through Producer.Subscribe and Producer.Unsubscribe; arbitrary DAGs are
// allowed, including a consumer subscribed to several producers. Cycles are the
// caller's responsibility.
//
// # Runtimes
//
//   - Broadcaster: a subscriber set plus clone-on-fork broadcast, for anything
//     that originates data.
//   - ConsumerNode: a private FIFO mailbox drained by one worker goroutine that
//     invokes a HandlerFunc per item.
//   - Poller: a Broadcaster whose worker runs produce, dispatch, sleep in a loop
//     with stop-responsive sleep slices and an optional backpressure wait.
//   - Processor: a ConsumerNode intake composed with a Broadcaster fan-out, with
//     a DispatchPolicy choosing ToAll, Random or LoadBalanced delivery.
//
// # Lifecycle
//
// Consumers and processors go NotStarted, Running, Suspended (mailbox empty),
// Stopping, Stopped. Stop is cooperative: the in-flight item always completes,
// items already queued are drained, then the worker exits. Dispose stops the
// node, waits for the worker to exit and releases its resources; a disposed
// node never runs again.
//
//	sink, err := node.NewConsumer(func(_ node.Producer, p node.Payload) error {
//	    fmt.Println(p)
//	    return nil
//	}, node.WithName("sink"))
//	if err != nil {
//	    return err
//	}
//	upper, err := node.NewProcessor(func(_ node.Producer, p node.Payload) (node.Payload, error) {
//	    s, ok := p.(string)
//	    if !ok {
//	        return nil, errors.NewUnexpectedPayload("upper", "string", p)
//	    }
//	    return strings.ToUpper(s), nil
//	})
//	if err != nil {
//	    return err
//	}
//	_ = upper.Subscribe(sink)
//	_ = upper.ReceiveData(nil, "hello") // starts upper implicitly
//	upper.Dispose()
//	sink.Dispose()
//
// # Error handling
//
// Constructors and Subscribe report invalid arguments synchronously. Errors
// and panics inside a produce, transform or handle step are recovered by the
// worker, logged, counted and the item is dropped; they never cross a node
// boundary. Lifecycle misuse such as stopping twice is a silent no-op.
package node
