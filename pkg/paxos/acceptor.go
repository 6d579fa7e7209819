package paxos

import (
	"context"
	"log/slog"

	"github.com/brpandey/basic-paxos/pkg/logger"
)

// Acceptor is the voting agent. It holds the highest promise it has
// made and the highest proposal it has accepted, and never replies
// with anything but Promise, Accepted, or Decline. State lives in
// memory only; a restart forgets everything.
type Acceptor struct {
	node       string
	log        *slog.Logger
	actionChan chan func()
	quit       chan struct{}

	// owned by the actor goroutine
	promised ProposalID
	accepted AcceptedPair
}

func NewAcceptor(node string) *Acceptor {
	return &Acceptor{
		node:       node,
		log:        logger.Agent(ActorAcceptor, node),
		actionChan: make(chan func(), mailboxDepth),
		quit:       make(chan struct{}),
	}
}

const mailboxDepth = 16

// Start runs the acceptor's mailbox loop.
func (a *Acceptor) Start() {
	go a.actorLoop()
}

// Stop terminates the mailbox loop.
func (a *Acceptor) Stop() {
	close(a.quit)
}

func (a *Acceptor) actorLoop() {
	for {
		select {
		case action := <-a.actionChan:
			action()
		case <-a.quit:
			return
		}
	}
}

// Handle serves transport requests. Prepare and Commit are serialized
// in arrival order through the mailbox.
func (a *Acceptor) Handle(ctx context.Context, msg any) (any, error) {
	resultChan := make(chan any, 1)
	select {
	case a.actionChan <- func() { resultChan <- a.handle(msg) }:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.quit:
		return nil, context.Canceled
	}
	select {
	case res := <-resultChan:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Acceptor) handle(msg any) any {
	switch m := msg.(type) {
	case Prepare:
		return a.prepare(m)
	case Commit:
		return a.commit(m)
	default:
		a.log.Warn("unknown message discarded", "msg", msg)
		return Decline{Promised: a.promised}
	}
}

// prepare applies the Phase 1 rules. A higher id than the current
// promise raises the promise; any previously accepted pair rides along
// in the reply so the proposer can adopt its value.
func (a *Acceptor) prepare(m Prepare) any {
	if !m.ID.Greater(a.promised) {
		a.log.Debug("prepare declined", "id", m.ID, "promised", a.promised)
		return Decline{Promised: a.promised}
	}

	a.promised = m.ID
	if a.accepted.IsEmpty() {
		a.log.Debug("promised", "id", m.ID)
		return Promise{ID: m.ID}
	}

	history := a.accepted
	a.log.Debug("promised with history", "id", m.ID, "accepted", history.ID)
	return Promise{ID: m.ID, Accepted: &history}
}

// commit applies the Phase 2 rules. Only the exact promised id is
// accepted; an id above the promise is a stray commit that skipped
// Phase 1 and is declined defensively.
func (a *Acceptor) commit(m Commit) any {
	switch {
	case m.ID == a.promised:
		a.accepted = AcceptedPair{ID: m.ID, Value: m.Value}
		a.log.Debug("accepted", "id", m.ID)
		return Accepted{ID: m.ID, Value: m.Value}

	case m.ID.Less(a.promised):
		a.log.Debug("commit declined", "id", m.ID, "promised", a.promised)
		return Decline{Promised: a.promised}

	default:
		a.log.Warn("stray commit without matching promise declined",
			"id", m.ID, "promised", a.promised)
		return Decline{Promised: a.promised}
	}
}

// State returns a snapshot of the acceptor's state, serialized through
// the mailbox like any other request.
func (a *Acceptor) State() (ProposalID, AcceptedPair) {
	type snapshot struct {
		promised ProposalID
		accepted AcceptedPair
	}
	resultChan := make(chan snapshot, 1)
	a.actionChan <- func() {
		resultChan <- snapshot{a.promised, a.accepted}
	}
	s := <-resultChan
	return s.promised, s.accepted
}
