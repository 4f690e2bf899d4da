// Package mailbox provides an unbounded, thread-safe FIFO queue with a single
// blocking reader, used as the private input queue of a nodeflow consumer.
//
// A Mailbox pairs its queue with a "waiting" flag under the same mutex, and
// wakes a blocked reader through a condition variable. An enqueue can therefore
// never slip between the reader's empty check and its wait:
//
//	mb, _ := mailbox.New[string]()
//	go func() {
//	    for {
//	        item, ok := mb.Take() // blocks while empty
//	        if !ok {
//	            return // closed and drained
//	        }
//	        handle(item)
//	    }
//	}()
//	mb.Put("hello")
//	mb.Close()
//
// Close does not discard queued items: Take keeps returning them until the
// queue is empty and only then reports ok=false. Reopen makes a closed mailbox
// blocking again so the owning node can be restarted.
//
// Statistics are always collected. The high-water mark of the queue depth and
// the time it was reached are available through Watermark, and a callback can
// be registered to observe new highs. Prometheus gauges are optional via
// WithMetrics.
package mailbox
