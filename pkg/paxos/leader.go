package paxos

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brpandey/basic-paxos/pkg/cluster"
	"github.com/brpandey/basic-paxos/pkg/errors"
	"github.com/brpandey/basic-paxos/pkg/events"
	"github.com/brpandey/basic-paxos/pkg/logger"
)

// Leader designates the distinguished proposer and forwards client
// starts to it. Consensus safety never depends on the choice being
// unique; only progress does, so elections are cheap and re-run on
// demand rather than agreed on.
type Leader struct {
	node string
	cfg  Config
	ep   *cluster.Endpoint
	log  *slog.Logger

	mu         sync.Mutex
	leaderNode string

	quit     chan struct{}
	quitOnce sync.Once
}

func NewLeader(ep *cluster.Endpoint, cfg Config) *Leader {
	l := &Leader{
		node: ep.Node(),
		cfg:  cfg.Normalize(),
		ep:   ep,
		log:  logger.Agent(ActorLeader, ep.Node()),
		quit: make(chan struct{}),
	}

	ep.Subscribe(func(ctx context.Context, evt events.Event) error {
		l.onMembership(evt)
		return nil
	})

	// First election fires on a timer unless a client start forces one
	// earlier.
	l.after(l.cfg.LeaderBootDelay, func() {
		if l.Leader() == "" {
			l.elect(context.Background())
		}
	})
	return l
}

// Stop cancels pending election timers.
func (l *Leader) Stop() {
	l.quitOnce.Do(func() { close(l.quit) })
}

// Leader returns the current leader's node name, empty while
// unresolved.
func (l *Leader) Leader() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.leaderNode
}

// Start forwards a client request to the distinguished proposer,
// electing one first if none is resolved yet, and returns the
// proposer's outcome.
func (l *Leader) Start(ctx context.Context, value []byte) RoundOutcome {
	leader := l.Leader()
	if leader == "" {
		l.elect(ctx)
		leader = l.Leader()
	}
	if leader == "" {
		l.log.Info("no leader resolved, request rejected")
		return errorOutcome(errors.CodeCatchAll, EmptyID)
	}

	// The forward must outlive a full retry loop on the remote side.
	timeout := l.cfg.RetryBudget + 2*l.cfg.RoundTimeout
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := l.ep.Call(ctx, cluster.Target{Actor: ActorProposer, Node: leader}, StartRequest{Value: value})
	if err != nil {
		l.log.Warn("forward to leader failed", "leader", leader, "error", err)
		if errors.Code(err) == errors.CodeTimeout {
			return errorOutcome(errors.CodeTimeout, EmptyID)
		}
		return errorOutcome(errors.CodeCatchAll, EmptyID)
	}
	outcome, ok := reply.(RoundOutcome)
	if !ok {
		l.log.Warn("unexpected forward reply discarded", "reply", reply)
		return errorOutcome(errors.CodeCatchAll, EmptyID)
	}
	return outcome
}

// Handle serves transport requests so any node's leader agent can take
// client starts and leader queries.
func (l *Leader) Handle(ctx context.Context, msg any) (any, error) {
	switch m := msg.(type) {
	case StartRequest:
		return l.Start(ctx, m.Value), nil
	case GetLeaderRequest:
		return l.Leader(), nil
	default:
		return nil, errors.CatchAll(fmt.Sprintf("unexpected message %T", msg), nil)
	}
}

// elect queries every peer proposer for its stable id and picks the
// lexicographically greatest. An empty result leaves the leader
// unresolved and schedules another try after the settle delay.
func (l *Leader) elect(ctx context.Context) {
	replies := l.ep.Multicall(ctx, ActorProposer, GetID{}, l.cfg.RoundTimeout)

	bestNode, bestID := "", ""
	for _, r := range replies {
		id, ok := r.Msg.(string)
		if !ok {
			l.log.Warn("unexpected election reply discarded", "from", r.Node)
			continue
		}
		if id > bestID {
			bestNode, bestID = r.Node, id
		}
	}

	if bestNode == "" {
		l.log.Info("election returned no candidates, retrying later")
		l.after(l.cfg.LeaderChooseDelay, func() {
			if l.Leader() == "" {
				l.elect(context.Background())
			}
		})
		return
	}

	l.mu.Lock()
	l.leaderNode = bestNode
	l.mu.Unlock()
	l.log.Info("leader chosen", "leader", bestNode, "id", bestID)
}

// onMembership re-elects, after the settle delay, when the current
// leader's node goes down. Other churn leaves the choice alone.
func (l *Leader) onMembership(evt events.Event) {
	if evt.Type != events.TypeNodeDown {
		return
	}
	down, _ := evt.Payload.(string)

	l.mu.Lock()
	lost := down != "" && down == l.leaderNode
	if lost {
		l.leaderNode = ""
	}
	l.mu.Unlock()

	if lost {
		l.log.Info("leader lost, scheduling re-election", "down", down)
		l.after(l.cfg.LeaderChooseDelay, func() {
			if l.Leader() == "" {
				l.elect(context.Background())
			}
		})
	}
}

// after runs fn once the delay elapses, unless the agent stopped.
func (l *Leader) after(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		select {
		case <-l.quit:
		default:
			fn()
		}
	})
}
