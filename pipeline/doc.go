// Package pipeline manages a set of named nodes as one unit.
//
// A Pipeline registers nodes, wires them with Connect and Disconnect, starts
// them sinks-first, and disposes them sources-first so that the items a
// source already dispatched are drained by every downstream node:
//
//	p := pipeline.New("demo")
//	p.MustAdd(source, suffix, sink)
//	_ = p.Connect("source", "suffix")
//	_ = p.Connect("suffix", "sink")
//	_ = p.Start()
//	...
//	_ = p.Dispose(ctx)
//
// Topology reports edges, weakly connected clusters and isolated nodes.
// Health aggregates a health.Status per node from the node's Stats.
package pipeline
