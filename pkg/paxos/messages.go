package paxos

// Actor names on the transport. Each node registers all three.
const (
	ActorAcceptor = "acceptor"
	ActorProposer = "proposer"
	ActorLeader   = "leader"
)

// Wire messages. The in-process transport passes them by value; any
// serialization that round-trips the fields is equivalent.

// Prepare opens Phase 1 for a round.
type Prepare struct {
	ID ProposalID `json:"id"`
}

// Promise is an acceptor's pledge not to accept anything below ID.
// Accepted is non-nil when the acceptor has previously accepted a
// proposal; the proposer must adopt the highest such value it sees.
type Promise struct {
	ID       ProposalID    `json:"id"`
	Accepted *AcceptedPair `json:"accepted,omitempty"`
}

// Commit asks acceptors to accept Value under ID (Phase 2).
type Commit struct {
	ID    ProposalID `json:"id"`
	Value []byte     `json:"value"`
}

// Accepted is an acceptor's Phase 2 vote.
type Accepted struct {
	ID    ProposalID `json:"id"`
	Value []byte     `json:"value"`
}

// Decline rejects a Prepare or Commit. Promised carries the acceptor's
// current promise so the proposer can raise its next round past it.
type Decline struct {
	Promised ProposalID `json:"promised"`
}

// GetID asks a proposer for its stable identifier (leader election).
type GetID struct{}

// StartRequest asks a proposer to run rounds for Value. The leader
// forwards client starts as this message.
type StartRequest struct {
	Value []byte `json:"value"`
	// Once disables the retry loop; the proposer runs a single round.
	Once bool `json:"once"`
}

// GetLeaderRequest asks a leader agent for the current leader node.
type GetLeaderRequest struct{}
