package node

import (
	"fmt"
	"strings"

	"github.com/c360/nodeflow/errors"
)

// DispatchPolicy selects which subscribers receive a processor's output.
type DispatchPolicy int

const (
	// ToAll broadcasts to every subscriber, cloning on fork.
	ToAll DispatchPolicy = iota
	// Random delivers to one subscriber chosen uniformly at random.
	Random
	// LoadBalanced delivers to the subscriber with the shallowest mailbox.
	LoadBalanced
)

func (p DispatchPolicy) String() string {
	switch p {
	case ToAll:
		return "to_all"
	case Random:
		return "random"
	case LoadBalanced:
		return "load_balanced"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseDispatchPolicy accepts the String form, case-insensitively. An empty
// string yields ToAll.
func ParseDispatchPolicy(s string) (DispatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "to_all", "toall", "all":
		return ToAll, nil
	case "random":
		return Random, nil
	case "load_balanced", "loadbalanced":
		return LoadBalanced, nil
	default:
		return ToAll, errors.WrapInvalid(
			fmt.Errorf("%w: unknown dispatch policy %q", errors.ErrInvalidConfig, s),
			"node", "ParseDispatchPolicy", "parse policy")
	}
}

func (p DispatchPolicy) valid() bool {
	return p >= ToAll && p <= LoadBalanced
}

// pickRandom returns a uniformly chosen subscriber, or nil when there are none.
func pickRandom(subscribers []Consumer, source RandSource) Consumer {
	if len(subscribers) == 0 {
		return nil
	}
	return subscribers[source.IntN(len(subscribers))]
}

// pickShallowest returns the subscriber with the smallest mailbox depth. Ties
// go to the earliest subscriber; consumers that do not report depth count as 0.
func pickShallowest(subscribers []Consumer) Consumer {
	var (
		best      Consumer
		bestDepth int
	)
	for i, s := range subscribers {
		depth := MailboxDepth(s)
		if i == 0 || depth < bestDepth {
			best, bestDepth = s, depth
		}
	}
	return best
}

// MailboxDepth returns the depth reported by consumer, or 0 if it reports none.
func MailboxDepth(consumer Consumer) int {
	if d, ok := consumer.(DepthReporter); ok {
		return d.MailboxDepth()
	}
	return 0
}
