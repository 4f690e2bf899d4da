// Package errors provides standardized error handling patterns for nodeflow.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input or configuration, non-retryable) and Fatal (unrecoverable).
// The engine uses the classes to separate construction-time validation
// failures, which are returned synchronously, from per-item failures, which
// are recovered inside a node's worker and only logged.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "NATSOutput", "handle", "publish")
//	errors.WrapInvalid(err, "Poller", "NewPoller", "validate options")
//	errors.WrapFatal(err, "MetricsRegistry", "RegisterCounter", "register")
//
// # Payload Errors
//
// Nodes that expect a particular payload shape return an
// *UnexpectedPayloadError, which satisfies errors.Is(err, ErrUnexpectedPayload):
//
//	s, ok := payload.(string)
//	if !ok {
//	    return errors.NewUnexpectedPayload(name, "string", payload)
//	}
package errors
