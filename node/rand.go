package node

import (
	"math/rand/v2"
	"sync"
)

// RandSource yields uniform integers in [0, n). Implementations must be safe
// for concurrent use.
type RandSource interface {
	IntN(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRandSource returns a deterministic source for the given seed.
func NewRandSource(seed uint64) RandSource {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func newDefaultRandSource() RandSource {
	return NewRandSource(rand.Uint64())
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}
