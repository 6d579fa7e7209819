package paxos

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/brpandey/basic-paxos/pkg/cluster"
	"github.com/brpandey/basic-paxos/pkg/errors"
	"github.com/brpandey/basic-paxos/pkg/events"
	"github.com/brpandey/basic-paxos/pkg/logger"
	"github.com/brpandey/basic-paxos/pkg/resilience"
)

// Proposer drives consensus rounds. One round is in flight at a time:
// each attempt holds the round lock, so attempts from concurrent Start
// calls on the same proposer run one after another, but the retry
// loops of those calls interleave rather than run whole in turn. The
// peer count feeding quorum arithmetic tracks membership notifications.
type Proposer struct {
	node string
	id   string
	cfg  Config
	ep   *cluster.Endpoint
	seq  *Sequencer
	log  *slog.Logger
	rng  *rand.Rand

	// roundMu enforces the one-round-at-a-time discipline.
	roundMu      sync.Mutex
	currentRound ProposalID

	peerMu    sync.Mutex
	peerCount int
}

func NewProposer(ep *cluster.Endpoint, cfg Config) *Proposer {
	node := ep.Node()
	id := DeriveID(node)
	p := &Proposer{
		node: node,
		id:   id,
		cfg:  cfg.Normalize(),
		ep:   ep,
		seq:  NewSequencer(id),
		log:  logger.Agent(ActorProposer, node),
		rng:  rand.New(rand.NewSource(entropySeed())),
	}
	p.peerCount = len(ep.Peers())

	ep.Subscribe(func(ctx context.Context, evt events.Event) error {
		p.refreshPeerCount(evt)
		return nil
	})
	return p
}

func entropySeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

// ID returns the stable identifier used for leader comparison and as
// the origin of every proposal id this proposer issues.
func (p *Proposer) ID() string {
	return p.id
}

// CurrentRound returns the id of the most recently started round.
func (p *Proposer) CurrentRound() ProposalID {
	p.roundMu.Lock()
	defer p.roundMu.Unlock()
	return p.currentRound
}

func (p *Proposer) refreshPeerCount(evt events.Event) {
	count := len(p.ep.Peers())
	p.peerMu.Lock()
	p.peerCount = count
	p.peerMu.Unlock()
	p.log.Debug("membership changed", "event", evt.Type,
		"node", evt.Payload, "peers", count)
}

func (p *Proposer) peers() int {
	p.peerMu.Lock()
	defer p.peerMu.Unlock()
	return p.peerCount
}

// Handle serves transport requests: GetID for leader election and
// StartRequest for rounds forwarded by a Leader agent.
func (p *Proposer) Handle(ctx context.Context, msg any) (any, error) {
	switch m := msg.(type) {
	case GetID:
		return p.id, nil
	case StartRequest:
		if m.Once {
			return p.StartOnce(ctx, m.Value), nil
		}
		return p.Start(ctx, m.Value), nil
	default:
		return nil, errors.CatchAll(fmt.Sprintf("unexpected message %T", msg), nil)
	}
}

// Start runs rounds for value until one is accepted or the retry
// budget elapses. Only declined phases are retried; a cluster below
// the minimum quorum is terminal, and success is never retried.
func (p *Proposer) Start(ctx context.Context, value []byte) RoundOutcome {
	if !p.cfg.Retries {
		return p.StartOnce(ctx, value)
	}

	var last RoundOutcome
	retryCfg := resilience.RetryConfig{
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.5,
		MaxElapsed:     p.cfg.RetryBudget,
		RetryIf:        errors.Retryable,
		Rand:           p.rng,
	}
	err := resilience.Retry(ctx, retryCfg, func(ctx context.Context) error {
		last = p.attempt(ctx, value)
		return outcomeError(last)
	})
	if err != nil && last.Status == "" {
		// Context expired before the first attempt.
		return errorOutcome(errors.CodeTimeout, EmptyID)
	}
	return last
}

// StartOnce runs a single round and never retries.
func (p *Proposer) StartOnce(ctx context.Context, value []byte) RoundOutcome {
	return p.attempt(ctx, value)
}

// outcomeError maps an outcome back to the error domain so the retry
// wrapper can decide whether another round could help.
func outcomeError(o RoundOutcome) error {
	switch {
	case o.Accepted():
		return nil
	case o.ErrorKind != "":
		return errors.New(o.ErrorKind, "round did not reach consensus", nil)
	default:
		return errors.CatchAll("round failed without an error kind", nil)
	}
}

// attempt runs one full Phase 1 + Phase 2 round.
func (p *Proposer) attempt(ctx context.Context, value []byte) RoundOutcome {
	p.roundMu.Lock()
	defer p.roundMu.Unlock()

	round := p.seq.Next()
	p.currentRound = round
	p.log.Debug("round started", "round", round)

	// Phase 1: collect promises.
	replies := p.ep.Multicall(ctx, ActorAcceptor, Prepare{ID: round}, p.cfg.RoundTimeout)

	peers := p.peers()
	if peers < p.cfg.MinQuorum {
		p.log.Info("round abandoned, cluster below minimum quorum",
			"round", round, "peers", peers, "min", p.cfg.MinQuorum)
		return errorOutcome(errors.CodeBelowMinQuorum, round)
	}
	if len(replies) > peers {
		panic(fmt.Sprintf("paxos: %d prepare replies from %d peers", len(replies), peers))
	}
	quorum := peers/2 + 1

	promises := 0
	var adopted AcceptedPair
	for _, r := range replies {
		switch m := r.Msg.(type) {
		case Promise:
			promises++
			if m.Accepted != nil && m.Accepted.ID.Greater(adopted.ID) {
				adopted = *m.Accepted
			}
		case Decline:
			p.seq.Observe(m.Promised)
		default:
			p.log.Warn("unknown prepare reply discarded", "from", r.Node, "msg", r.Msg)
		}
	}
	if promises < quorum {
		p.log.Debug("prepare quorum not reached",
			"round", round, "promises", promises, "quorum", quorum)
		return errorOutcome(errors.CodeConsensusNotReached, round)
	}

	// The value that could already have been chosen wins over ours.
	chosen := value
	if !adopted.IsEmpty() {
		chosen = adopted.Value
		p.log.Info("adopting previously accepted value",
			"round", round, "from", adopted.ID)
	}

	// Phase 2: seek accepts.
	replies = p.ep.Multicall(ctx, ActorAcceptor, Commit{ID: round, Value: chosen}, p.cfg.RoundTimeout)
	if len(replies) > peers {
		panic(fmt.Sprintf("paxos: %d commit replies from %d peers", len(replies), peers))
	}

	var participants, declines []string
	for _, r := range replies {
		switch m := r.Msg.(type) {
		case Accepted:
			if m.ID == round && bytes.Equal(m.Value, chosen) {
				participants = append(participants, r.Node)
			} else {
				p.log.Warn("accepted reply for a different round discarded",
					"from", r.Node, "id", m.ID)
			}
		case Decline:
			declines = append(declines, r.Node)
			p.seq.Observe(m.Promised)
		default:
			p.log.Warn("unknown commit reply discarded", "from", r.Node, "msg", r.Msg)
		}
	}

	if len(participants) >= quorum {
		p.log.Info("round accepted", "round", round,
			"participants", len(participants), "declines", len(declines))
		return RoundOutcome{
			Status:       StatusAccepted,
			Participants: participants,
			Round:        round,
			Value:        chosen,
			Declines:     declines,
		}
	}

	p.log.Debug("commit quorum not reached", "round", round,
		"participants", len(participants), "quorum", quorum)
	return RoundOutcome{
		Status:    StatusDeclined,
		Round:     round,
		Declines:  declines,
		ErrorKind: errors.CodeCommitDeclined,
	}
}
