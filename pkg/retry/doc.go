// Package retry provides exponential backoff retry for transient failures in
// adapter I/O, such as publishing a payload to NATS.
//
// Errors classified as invalid or fatal by the nodeflow errors package, or
// explicitly wrapped with NonRetryable, stop the loop immediately. Exhausting
// all attempts returns an error matching errors.ErrMaxRetriesExceeded that
// still wraps the last failure:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.Publish(ctx, subject, data)
//	})
//
// Jitter is drawn from a process-wide source unless Config.Jitter is set;
// SeededJitter gives reproducible delays.
package retry
