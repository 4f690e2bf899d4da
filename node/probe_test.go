package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBranchLoad(t *testing.T) {
	leafA := &lister{depth: 2}
	leafB := &lister{depth: 9}
	mid := &lister{depth: 4, subs: []Consumer{leafA}}
	root := &lister{subs: []Consumer{mid, leafB}}

	assert.Equal(t, 9, BranchLoad(root))
	assert.Equal(t, 4, BranchLoad(mid))
	assert.Equal(t, 0, BranchLoad(leafA))
}

func TestBranchLoad_NonListerRoot(t *testing.T) {
	assert.Equal(t, 0, BranchLoad(&sink{depth: 3}))
	assert.Equal(t, 0, BranchLoad(nil))
}

func TestBranchLoad_CountsNonReportersAsZero(t *testing.T) {
	root := &lister{subs: []Consumer{&sink{}, &lister{depth: 1}}}
	// sink reports depth 0 through DepthReporter.
	assert.Equal(t, 1, BranchLoad(root))
}

func TestBranchLoad_TerminatesOnCycles(t *testing.T) {
	a := &lister{depth: 1}
	b := &lister{depth: 3, subs: []Consumer{a}}
	a.subs = []Consumer{b}

	assert.Equal(t, 3, BranchLoad(a))
}

func TestBranchLoad_ThroughRuntimeNodes(t *testing.T) {
	release := make(chan struct{})
	slow := newTestConsumer(t, func(Producer, Payload) error {
		<-release
		return nil
	})
	proc := newTestProcessor(t, identity)
	src := newTestBroadcaster()
	_ = src.Subscribe(proc)
	_ = proc.Subscribe(slow)

	for i := 0; i < 5; i++ {
		_ = slow.ReceiveData(nil, i)
	}

	assert.GreaterOrEqual(t, BranchLoad(src), 4)
	close(release)
}

// valueConsumer has a comparable type, but comparing two values panics when
// meta holds a slice.
type valueConsumer struct {
	meta  any
	depth int
}

func (v valueConsumer) ReceiveData(Producer, Payload) error { return nil }
func (v valueConsumer) MailboxDepth() int                   { return v.depth }

func TestBranchLoad_ValueConsumerWithSliceField(t *testing.T) {
	b := newTestBroadcaster()
	c := valueConsumer{meta: []string{"a"}, depth: 6}

	assert.False(t, isComparable(c))
	assert.True(t, isComparable(valueConsumer{meta: "a"}))

	assert.NoError(t, b.Subscribe(c))
	assert.NotPanics(t, func() { b.Unsubscribe(c) })
	assert.NotPanics(t, func() {
		assert.Equal(t, 6, BranchLoad(b))
		assert.Equal(t, 6, BranchLoad(&lister{subs: []Consumer{c}}))
		assert.Equal(t, 0, BranchLoad(c))
	})
}
