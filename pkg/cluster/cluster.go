// Package cluster provides the in-process peer transport the consensus
// agents run on. Every agent is addressable by a (actor, node) pair and
// reachable through synchronous call/multicall exchanges with bounded
// timeouts. The transport also owns cluster topology: nodes join and
// leave, partitions can be imposed and healed, and every endpoint can
// subscribe to the resulting nodeup/nodedown notification stream.
package cluster

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brpandey/basic-paxos/pkg/concurrency"
	"github.com/brpandey/basic-paxos/pkg/errors"
	"github.com/brpandey/basic-paxos/pkg/events"
	"github.com/brpandey/basic-paxos/pkg/events/adapters/memory"
	"github.com/brpandey/basic-paxos/pkg/resilience"
)

// Target addresses one agent mailbox.
type Target struct {
	Actor string
	Node  string
}

// Handler serves requests addressed to one actor.
type Handler func(ctx context.Context, msg any) (any, error)

// Reply is one collected multicall response. Targets that were
// unreachable or timed out produce no Reply at all.
type Reply struct {
	Node string
	Msg  any
}

// Config holds transport-level options.
type Config struct {
	// ExcludedNodes are node names never enumerated as peers, such as
	// an administrative or manager node that joins the cluster but
	// takes no part in consensus.
	ExcludedNodes []string `env:"PAXOS_EXCLUDED_NODES" env-separator:","`
}

// Network is the registry of all endpoints in one in-process cluster.
type Network struct {
	cfg       Config
	endpoints *concurrency.ShardedMapString[*Endpoint]
	bus       *memory.MemoryBus
	latency   atomic.Int64 // nanoseconds added before each delivery

	mu       sync.RWMutex
	groups   map[string]string // node -> partition group, "" = main
	breakers map[string]*resilience.CircuitBreaker
}

// NewNetwork creates an empty cluster.
func NewNetwork(cfg Config) *Network {
	return &Network{
		cfg:       cfg,
		endpoints: concurrency.NewShardedMapString[*Endpoint](),
		bus:       memory.New(),
		groups:    make(map[string]string),
		breakers:  make(map[string]*resilience.CircuitBreaker),
	}
}

func membershipTopic(node string) string {
	return "membership." + node
}

// AddNode registers a node and returns its endpoint. Every node that can
// reach it observes a nodeup event.
func (n *Network) AddNode(name string) *Endpoint {
	ep := &Endpoint{
		node:     name,
		net:      n,
		handlers: concurrency.NewShardedMapString[Handler](),
	}
	n.endpoints.Set(name, ep)

	n.mu.Lock()
	n.groups[name] = ""
	n.mu.Unlock()

	n.notifyReachable(name, events.TypeNodeUp)
	return ep
}

// RemoveNode unregisters a node, simulating a crash. Peers that could
// reach it observe a nodedown event; its volatile agent state is gone.
func (n *Network) RemoveNode(name string) {
	if _, ok := n.endpoints.Get(name); !ok {
		return
	}
	n.notifyReachable(name, events.TypeNodeDown)
	n.endpoints.Delete(name)

	n.mu.Lock()
	delete(n.groups, name)
	n.mu.Unlock()
}

// Partition splits the cluster. Nodes listed in sides keep only the
// peers of their own side; unlisted nodes stay in the main group. Each
// node observes nodedown for every peer that just became unreachable.
func (n *Network) Partition(sides map[string]string) {
	type cut struct{ a, b string }
	var cuts []cut

	n.mu.Lock()
	old := n.groups
	next := make(map[string]string, len(old))
	for node := range old {
		next[node] = sides[node]
	}
	for a := range next {
		for b := range next {
			if a < b && old[a] == old[b] && next[a] != next[b] {
				cuts = append(cuts, cut{a, b})
			}
		}
	}
	n.groups = next
	n.resetBreakersLocked()
	n.mu.Unlock()

	for _, c := range cuts {
		n.publish(c.a, events.TypeNodeDown, c.b)
		n.publish(c.b, events.TypeNodeDown, c.a)
	}
}

// Heal removes all partitions. Each node observes nodeup for every peer
// that just became reachable again.
func (n *Network) Heal() {
	type join struct{ a, b string }
	var joins []join

	n.mu.Lock()
	for a, ga := range n.groups {
		for b, gb := range n.groups {
			if a < b && ga != gb {
				joins = append(joins, join{a, b})
			}
		}
	}
	for node := range n.groups {
		n.groups[node] = ""
	}
	n.resetBreakersLocked()
	n.mu.Unlock()

	for _, j := range joins {
		n.publish(j.a, events.TypeNodeUp, j.b)
		n.publish(j.b, events.TypeNodeUp, j.a)
	}
}

// Nodes returns all registered node names, reachable or not.
func (n *Network) Nodes() []string {
	return n.endpoints.Keys()
}

func (n *Network) reachable(from, to string) bool {
	if from == to {
		_, ok := n.endpoints.Get(to)
		return ok
	}
	if _, ok := n.endpoints.Get(from); !ok {
		return false
	}
	if _, ok := n.endpoints.Get(to); !ok {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.groups[from] == n.groups[to]
}

// notifyReachable publishes a membership event about subject to every
// other node that can reach it.
func (n *Network) notifyReachable(subject string, eventType string) {
	for _, other := range n.endpoints.Keys() {
		if other != subject && n.reachable(subject, other) {
			n.publish(other, eventType, subject)
		}
	}
}

func (n *Network) publish(to string, eventType string, subject string) {
	_ = n.bus.Publish(context.Background(), membershipTopic(to), events.Event{
		Type:    eventType,
		Source:  "cluster",
		Payload: subject,
	})
}

func (n *Network) breakerFor(from, to string) *resilience.CircuitBreaker {
	key := from + "->" + to
	n.mu.Lock()
	defer n.mu.Unlock()
	cb, ok := n.breakers[key]
	if !ok {
		cfg := resilience.DefaultCircuitBreakerConfig(key)
		cfg.FailureThreshold = 3
		cfg.Timeout = 2 * time.Second
		cb = resilience.NewCircuitBreaker(cfg)
		n.breakers[key] = cb
	}
	return cb
}

// resetBreakersLocked clears breaker state after a topology change so a
// healed link is usable immediately.
func (n *Network) resetBreakersLocked() {
	for _, cb := range n.breakers {
		cb.Reset()
	}
}

// SetLatency adds a fixed delay before every delivery. Partition and
// duel tests use it to widen the windows between phases.
func (n *Network) SetLatency(d time.Duration) {
	n.latency.Store(int64(d))
}

// deliver runs the handler registered for target, honoring ctx.
func (n *Network) deliver(ctx context.Context, from string, target Target, msg any) (any, error) {
	if d := time.Duration(n.latency.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, errors.Timeout("call to "+target.Actor+"@"+target.Node, ctx.Err())
		}
	}
	if !n.reachable(from, target.Node) {
		return nil, errors.Down("node "+target.Node+" unreachable from "+from, nil)
	}
	ep, ok := n.endpoints.Get(target.Node)
	if !ok {
		return nil, errors.Down("node "+target.Node+" not registered", nil)
	}
	h, ok := ep.handlers.Get(target.Actor)
	if !ok {
		return nil, errors.Down("no actor "+target.Actor+" on "+target.Node, nil)
	}

	type result struct {
		reply any
		err   error
	}
	resCh := make(chan result, 1)
	go func() {
		reply, err := h(ctx, msg)
		resCh <- result{reply, err}
	}()

	select {
	case res := <-resCh:
		return res.reply, res.err
	case <-ctx.Done():
		return nil, errors.Timeout("call to "+target.Actor+"@"+target.Node, ctx.Err())
	}
}
