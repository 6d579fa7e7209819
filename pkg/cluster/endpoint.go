package cluster

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brpandey/basic-paxos/pkg/concurrency"
	"github.com/brpandey/basic-paxos/pkg/events"
	"github.com/brpandey/basic-paxos/pkg/logger"
)

// Endpoint is one node's handle on the transport.
type Endpoint struct {
	node     string
	net      *Network
	handlers *concurrency.ShardedMapString[Handler]
}

// Node returns the endpoint's node name.
func (e *Endpoint) Node() string {
	return e.node
}

// Register installs the handler serving requests addressed to
// (actor, this node). Re-registering replaces the previous handler,
// which is how a supervisor swaps in a restarted agent.
func (e *Endpoint) Register(actor string, h Handler) {
	e.handlers.Set(actor, h)
}

// Call sends msg to target and waits for its reply or ctx expiry.
// Delivery runs through a per-link circuit breaker: calls to a peer
// that keeps failing error out fast with a down error.
func (e *Endpoint) Call(ctx context.Context, target Target, msg any) (any, error) {
	id := uuid.NewString()
	logger.L().Debug("call", "id", id, "from", e.node,
		"actor", target.Actor, "node", target.Node)

	var reply any
	err := e.net.breakerFor(e.node, target.Node).Execute(ctx, func(ctx context.Context) error {
		var err error
		reply, err = e.net.deliver(ctx, e.node, target, msg)
		return err
	})
	if err != nil {
		logger.L().Debug("call failed", "id", id, "error", err)
		return nil, err
	}
	return reply, nil
}

// Multicall sends msg to the named actor on every peer (self included)
// and collects replies until the timeout. Peers that are unreachable,
// error, or miss the deadline are omitted from the result.
func (e *Endpoint) Multicall(ctx context.Context, actor string, msg any, timeout time.Duration) []Reply {
	peers := e.Peers()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		replies []Reply
		wg      sync.WaitGroup
	)
	for _, peer := range peers {
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			reply, err := e.Call(ctx, Target{Actor: actor, Node: peer}, msg)
			if err != nil {
				return
			}
			mu.Lock()
			replies = append(replies, Reply{Node: peer, Msg: reply})
			mu.Unlock()
		}(peer)
	}
	wg.Wait()
	return replies
}

// Peers enumerates the nodes currently reachable from this endpoint,
// itself included, minus the configured exclusion list.
func (e *Endpoint) Peers() []string {
	var peers []string
	for _, node := range e.net.Nodes() {
		if slices.Contains(e.net.cfg.ExcludedNodes, node) {
			continue
		}
		if e.net.reachable(e.node, node) {
			peers = append(peers, node)
		}
	}
	slices.Sort(peers)
	return peers
}

// Subscribe registers a handler for this node's membership stream.
// Events arrive in publish order.
func (e *Endpoint) Subscribe(h events.Handler) {
	_ = e.net.bus.Subscribe(context.Background(), membershipTopic(e.node), h)
}
