// Package testutil provides shared test doubles for nodeflow packages.
//
//   - Recorder: a real consumer node that captures payloads in handling order
//     and can block until a given count has arrived.
//   - MockNode: a synchronous Lifecycle and Consumer with call counters.
//   - MockNATSClient: an in-memory publish/subscribe bus shaped like
//     natsclient.Client, with failure injection.
//   - Document and Opaque: cloneable and non-cloneable payloads.
//
// Example:
//
//	rec := testutil.NewRecorder(node.WithName("rec"))
//	defer rec.Dispose()
//	_ = producer.Subscribe(rec)
//	...
//	require.True(t, rec.WaitFor(3, time.Second))
//	assert.Equal(t, []string{"aX", "bX", "cX"}, rec.Strings())
package testutil
