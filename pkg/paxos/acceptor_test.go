package paxos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAcceptor(t *testing.T) *Acceptor {
	t.Helper()
	a := NewAcceptor("paxos1")
	a.Start()
	t.Cleanup(a.Stop)
	return a
}

func (a *Acceptor) must(t *testing.T, msg any) any {
	t.Helper()
	reply, err := a.Handle(context.Background(), msg)
	require.NoError(t, err)
	return reply
}

func TestAcceptorPromisesFreshProposal(t *testing.T) {
	a := newTestAcceptor(t)

	id := ProposalID{Sequence: 10, Origin: "aa"}
	reply := a.must(t, Prepare{ID: id})

	promise, ok := reply.(Promise)
	require.True(t, ok, "got %T", reply)
	assert.Equal(t, id, promise.ID)
	assert.Nil(t, promise.Accepted)

	promised, accepted := a.State()
	assert.Equal(t, id, promised)
	assert.True(t, accepted.IsEmpty())
}

func TestAcceptorDeclinesStalePrepare(t *testing.T) {
	a := newTestAcceptor(t)

	high := ProposalID{Sequence: 10, Origin: "aa"}
	a.must(t, Prepare{ID: high})

	// Lower sequence.
	reply := a.must(t, Prepare{ID: ProposalID{Sequence: 9, Origin: "zz"}})
	decline, ok := reply.(Decline)
	require.True(t, ok, "got %T", reply)
	assert.Equal(t, high, decline.Promised)

	// Equal id is not higher either.
	reply = a.must(t, Prepare{ID: high})
	_, ok = reply.(Decline)
	assert.True(t, ok, "got %T", reply)

	// State unchanged by declines.
	promised, _ := a.State()
	assert.Equal(t, high, promised)
}

func TestAcceptorPromiseCarriesHistory(t *testing.T) {
	a := newTestAcceptor(t)

	first := ProposalID{Sequence: 10, Origin: "aa"}
	a.must(t, Prepare{ID: first})
	a.must(t, Commit{ID: first, Value: []byte("pizza")})

	second := ProposalID{Sequence: 20, Origin: "bb"}
	reply := a.must(t, Prepare{ID: second})

	promise, ok := reply.(Promise)
	require.True(t, ok, "got %T", reply)
	assert.Equal(t, second, promise.ID)
	require.NotNil(t, promise.Accepted)
	assert.Equal(t, first, promise.Accepted.ID)
	assert.Equal(t, []byte("pizza"), promise.Accepted.Value)

	// The promise moved but the accepted pair stayed.
	promised, accepted := a.State()
	assert.Equal(t, second, promised)
	assert.Equal(t, first, accepted.ID)
}

func TestAcceptorCommitRules(t *testing.T) {
	a := newTestAcceptor(t)

	id := ProposalID{Sequence: 10, Origin: "aa"}
	a.must(t, Prepare{ID: id})

	// Matching promise: accepted.
	reply := a.must(t, Commit{ID: id, Value: []byte("v")})
	accepted, ok := reply.(Accepted)
	require.True(t, ok, "got %T", reply)
	assert.Equal(t, id, accepted.ID)
	assert.Equal(t, []byte("v"), accepted.Value)

	// Below the promise: declined, state untouched.
	low := ProposalID{Sequence: 5, Origin: "zz"}
	reply = a.must(t, Commit{ID: low, Value: []byte("other")})
	_, ok = reply.(Decline)
	assert.True(t, ok, "got %T", reply)

	// Above the promise without a prepare: stray, declined.
	high := ProposalID{Sequence: 99, Origin: "zz"}
	reply = a.must(t, Commit{ID: high, Value: []byte("stray")})
	_, ok = reply.(Decline)
	assert.True(t, ok, "got %T", reply)

	promised, pair := a.State()
	assert.Equal(t, id, promised)
	assert.Equal(t, id, pair.ID)
	assert.Equal(t, []byte("v"), pair.Value)
}

func TestAcceptorCommitReplayIdempotent(t *testing.T) {
	a := newTestAcceptor(t)

	id := ProposalID{Sequence: 10, Origin: "aa"}
	a.must(t, Prepare{ID: id})
	a.must(t, Commit{ID: id, Value: []byte("v")})

	// Replaying the accepted commit accepts again with the same value.
	reply := a.must(t, Commit{ID: id, Value: []byte("v")})
	accepted, ok := reply.(Accepted)
	require.True(t, ok, "got %T", reply)
	assert.Equal(t, []byte("v"), accepted.Value)
}

func TestAcceptorPromiseMonotone(t *testing.T) {
	a := newTestAcceptor(t)

	ids := []ProposalID{
		{Sequence: 3, Origin: "a"},
		{Sequence: 1, Origin: "b"},
		{Sequence: 7, Origin: "c"},
		{Sequence: 7, Origin: "a"},
		{Sequence: 12, Origin: "b"},
		{Sequence: 2, Origin: "z"},
	}

	prev := EmptyID
	for _, id := range ids {
		a.must(t, Prepare{ID: id})
		promised, _ := a.State()
		assert.False(t, prev.Greater(promised), "promise regressed from %v to %v", prev, promised)
		prev = promised
	}
}

func TestAcceptorUnknownMessageDeclined(t *testing.T) {
	a := newTestAcceptor(t)

	reply := a.must(t, "bogus")
	_, ok := reply.(Decline)
	assert.True(t, ok, "got %T", reply)
}
