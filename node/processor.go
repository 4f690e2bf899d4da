package node

import (
	"fmt"
	"sync"

	"github.com/c360/nodeflow/errors"
)

// TransformFunc turns one intake item into the payload to forward. A nil
// payload forwards nothing; an error drops the item.
type TransformFunc func(sender Producer, payload Payload) (Payload, error)

// Processor composes a ConsumerNode intake with a Broadcaster fan-out. Each
// item is transformed on the intake worker and forwarded per the active
// DispatchPolicy.
type Processor struct {
	*ConsumerNode
	*Broadcaster

	transform TransformFunc
	rand      RandSource

	policyMu sync.RWMutex
	policy   DispatchPolicy
}

// NewProcessor creates a processor around transform.
func NewProcessor(transform TransformFunc, opts ...Option) (*Processor, error) {
	if transform == nil {
		return nil, errors.WrapInvalid(errors.ErrNilHandler, "node", "NewProcessor", "validate transform")
	}
	o := newOptions("processor", opts)
	if !o.policy.valid() {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, o.policy), o.name, "NewProcessor", "validate policy")
	}

	log := NewLogger(o.name, o.flow, o.logger, o.publisher)
	metrics := newNodeMetrics(o.registry, o.name, log)

	p := &Processor{
		transform: transform,
		rand:      o.rand,
		policy:    o.policy,
	}
	p.Broadcaster = newBroadcaster(o, log, metrics)
	p.Broadcaster.sender = p
	p.ConsumerNode = newConsumerNode("processor", p.process, o, log, metrics)
	return p, nil
}

// Name returns the display name.
func (p *Processor) Name() string {
	return p.ConsumerNode.Name()
}

// Log returns the node's diagnostics logger.
func (p *Processor) Log() *Logger {
	return p.ConsumerNode.Log()
}

// Policy returns the active dispatch policy.
func (p *Processor) Policy() DispatchPolicy {
	p.policyMu.RLock()
	defer p.policyMu.RUnlock()
	return p.policy
}

// SetPolicy switches the dispatch policy for subsequently forwarded items.
func (p *Processor) SetPolicy(policy DispatchPolicy) error {
	if !policy.valid() {
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrInvalidConfig, policy), p.Name(), "SetPolicy", "validate policy")
	}
	p.policyMu.Lock()
	defer p.policyMu.Unlock()
	if p.policy != policy {
		p.ConsumerNode.log.Info("Dispatch policy changed", "from", p.policy, "to", policy)
		p.policy = policy
	}
	return nil
}

// Stats merges intake and fan-out counters.
func (p *Processor) Stats() Stats {
	s := p.ConsumerNode.Stats()
	b := p.Broadcaster.Stats()
	s.Dispatched = b.Dispatched
	s.Dropped = b.Dropped
	return s
}

func (p *Processor) process(sender Producer, payload Payload) error {
	out, err := p.transform(sender, payload)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return p.forward(out)
}

func (p *Processor) forward(payload Payload) error {
	switch p.Policy() {
	case Random:
		return p.deliverOne(pickRandom(p.Subscribers(), p.rand), payload)
	case LoadBalanced:
		return p.deliverOne(pickShallowest(p.Subscribers()), payload)
	default:
		_, err := p.Dispatch(payload)
		return err
	}
}

func (p *Processor) deliverOne(target Consumer, payload Payload) error {
	if target == nil {
		p.Broadcaster.discard()
		return nil
	}
	// Deliver already logs rejections.
	_ = p.Deliver(target, payload)
	return nil
}
