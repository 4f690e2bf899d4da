// Package transform provides generic, typed processor nodes.
//
// A Transform[In, Out] accepts only payloads whose dynamic type is In; any
// other payload fails the item with *errors.UnexpectedPayloadError, which
// matches errors.ErrUnexpectedPayload. Returning a nil pointer, map or slice
// forwards nothing.
//
//	suffix, _ := transform.New(transform.Suffix("X"), node.WithName("suffix"))
//	evens, _ := transform.NewFilter(func(n int64) bool { return n%2 == 0 })
package transform
