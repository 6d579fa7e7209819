// Package node wires one process-worth of consensus agents together:
// an Acceptor, a Proposer, and a Leader sharing a transport endpoint,
// supervised so a panicking agent is replaced with a fresh (volatile)
// instance instead of taking the node down.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brpandey/basic-paxos/pkg/cluster"
	"github.com/brpandey/basic-paxos/pkg/config"
	"github.com/brpandey/basic-paxos/pkg/errors"
	"github.com/brpandey/basic-paxos/pkg/logger"
	"github.com/brpandey/basic-paxos/pkg/paxos"
)

// Node is one member of the cluster.
type Node struct {
	name string
	cfg  paxos.Config
	ep   *cluster.Endpoint
	log  *slog.Logger

	mu       sync.Mutex
	acceptor *paxos.Acceptor
	proposer *paxos.Proposer
	leader   *paxos.Leader
	stopped  bool
}

// Start joins the network under name and boots all three agents.
func Start(net *cluster.Network, name string, cfg paxos.Config) *Node {
	n := &Node{
		name: name,
		cfg:  cfg.Normalize(),
		ep:   net.AddNode(name),
		log:  logger.L().With("node", name),
	}

	n.acceptor = paxos.NewAcceptor(name)
	n.acceptor.Start()
	n.proposer = paxos.NewProposer(n.ep, n.cfg)
	n.leader = paxos.NewLeader(n.ep, n.cfg)

	n.ep.Register(paxos.ActorAcceptor, n.supervised(paxos.ActorAcceptor))
	n.ep.Register(paxos.ActorProposer, n.supervised(paxos.ActorProposer))
	n.ep.Register(paxos.ActorLeader, n.supervised(paxos.ActorLeader))

	n.log.Info("node started")
	return n
}

// Stop leaves the network. Peers observe a nodedown event; all agent
// state is discarded.
func (n *Node) Stop(net *cluster.Network) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	n.mu.Unlock()

	net.RemoveNode(n.name)
	n.acceptor.Stop()
	n.leader.Stop()
	n.log.Info("node stopped")
}

// Name returns the node's name on the transport.
func (n *Node) Name() string {
	return n.name
}

// Start submits a value through this node's Leader agent. This is the
// client surface: any node takes the request and forwards it to the
// distinguished proposer.
func (n *Node) Start(ctx context.Context, value []byte) paxos.RoundOutcome {
	return n.leader.Start(ctx, value)
}

// Acceptor returns the node's acceptor agent.
func (n *Node) Acceptor() *paxos.Acceptor {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.acceptor
}

// Proposer returns the node's proposer agent.
func (n *Node) Proposer() *paxos.Proposer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.proposer
}

// Leader returns the node's leader agent.
func (n *Node) Leader() *paxos.Leader {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leader
}

// handlerFor resolves the current agent for an actor name; restarts
// swap agents, so handlers go through this indirection.
func (n *Node) handlerFor(actor string) cluster.Handler {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch actor {
	case paxos.ActorAcceptor:
		return n.acceptor.Handle
	case paxos.ActorProposer:
		return n.proposer.Handle
	case paxos.ActorLeader:
		return n.leader.Handle
	}
	return nil
}

// supervised wraps an agent handler so a panic is contained: the agent
// is replaced by a fresh instance and the caller sees a catch-all
// error rather than a dead node.
func (n *Node) supervised(actor string) cluster.Handler {
	return func(ctx context.Context, msg any) (reply any, err error) {
		defer func() {
			if r := recover(); r != nil {
				n.log.Error("agent crashed, restarting", "agent", actor, "panic", r)
				n.restart(actor)
				reply, err = nil, errors.CatchAll(fmt.Sprintf("agent %s crashed", actor), nil)
			}
		}()
		h := n.handlerFor(actor)
		if h == nil {
			return nil, errors.CatchAll("unknown actor "+actor, nil)
		}
		return h(ctx, msg)
	}
}

// restart replaces a crashed agent. State is volatile by design, so
// the replacement starts empty.
func (n *Node) restart(actor string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return
	}
	switch actor {
	case paxos.ActorAcceptor:
		n.acceptor.Stop()
		n.acceptor = paxos.NewAcceptor(n.name)
		n.acceptor.Start()
	case paxos.ActorProposer:
		n.proposer = paxos.NewProposer(n.ep, n.cfg)
	case paxos.ActorLeader:
		n.leader.Stop()
		n.leader = paxos.NewLeader(n.ep, n.cfg)
	}
}

// Env is the process configuration loaded from the environment.
type Env struct {
	Log     logger.Config
	Paxos   paxos.Config
	Cluster cluster.Config
}

// LoadEnv reads and validates process configuration and initializes
// the global logger.
func LoadEnv() (Env, error) {
	var env Env
	if err := config.Load(&env); err != nil {
		return Env{}, err
	}
	logger.Init(env.Log)
	return env, nil
}
