package paxos

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIDStable(t *testing.T) {
	assert.Equal(t, DeriveID("paxos1@localhost"), DeriveID("paxos1@localhost"))
}

func TestDeriveIDHostnameComponentOnly(t *testing.T) {
	// The host part after @ does not contribute.
	assert.Equal(t, DeriveID("paxos1@hostA"), DeriveID("paxos1@hostB"))
	assert.Equal(t, DeriveID("paxos1"), DeriveID("paxos1@anything"))
}

func TestDeriveIDDistinct(t *testing.T) {
	seen := map[string]string{}
	for _, name := range []string{"paxos1", "paxos2", "paxos3", "paxos4", "paxos5", "manager"} {
		id := DeriveID(name)
		assert.Len(t, id, 16)
		prev, dup := seen[id]
		assert.False(t, dup, "collision between %s and %s", name, prev)
		seen[id] = name
	}
}
