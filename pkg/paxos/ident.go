package paxos

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DeriveID maps a node name to the stable identifier used as the
// Origin of its proposal ids and compared during leader election.
// Only the hostname component (before any "@") is hashed, so election
// greatness does not simply track a numeric node suffix. Distinct
// hostnames yield distinct ids for any realistic cluster size.
func DeriveID(node string) string {
	host := node
	if i := strings.IndexByte(node, '@'); i >= 0 {
		host = node[:i]
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(host))
}
