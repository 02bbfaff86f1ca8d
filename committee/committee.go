// Package committee holds the immutable validator set for an epoch: ordered
// (public key, address, stake) triples and the quorum/validity thresholds
// derived from committee size.
package committee

import (
	"fmt"
	"sort"

	"github.com/tolelom/bftcore/crypto"
)

// Authority is one committee member.
type Authority struct {
	PublicKey crypto.PublicKey
	Address   string
	Stake     uint64
}

// Committee is the immutable, ordered validator set for the epoch.
// Authorities are kept sorted by public-key hex so that round-robin leader
// selection (§4.2) is deterministic across replicas without a separate sort
// step at call time.
type Committee struct {
	authorities []Authority
	index       map[string]int
}

// New builds a Committee from authorities, equal-weighting every entry with
// Stake=1 if Stake is left at zero.
func New(authorities []Authority) *Committee {
	sorted := make([]Authority, len(authorities))
	copy(sorted, authorities)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PublicKey.Hex() < sorted[j].PublicKey.Hex()
	})

	index := make(map[string]int, len(sorted))
	for i, a := range sorted {
		if a.Stake == 0 {
			sorted[i].Stake = 1
		}
		index[a.PublicKey.Hex()] = i
	}
	return &Committee{authorities: sorted, index: index}
}

// Size returns n, the committee size.
func (c *Committee) Size() int {
	return len(c.authorities)
}

// F returns the maximum number of tolerated Byzantine replicas for n=3f+1.
func (c *Committee) F() int {
	return (c.Size() - 1) / 3
}

// QuorumThreshold returns 2f+1.
func (c *Committee) QuorumThreshold() int {
	return 2*c.F() + 1
}

// ValidityThreshold returns f+1.
func (c *Committee) ValidityThreshold() int {
	return c.F() + 1
}

// Exists reports whether pk is a committee member.
func (c *Committee) Exists(pk crypto.PublicKey) bool {
	_, ok := c.index[pk.Hex()]
	return ok
}

// ByHex resolves a hex-encoded public key to the member's PublicKey, for
// code (QC verification, leader election) that only carries hex keys in
// aggregated signature maps.
func (c *Committee) ByHex(hex string) (crypto.PublicKey, bool) {
	i, ok := c.index[hex]
	if !ok {
		return nil, false
	}
	return c.authorities[i].PublicKey, true
}

// Stake returns pk's voting weight, or 0 if pk is not a member.
func (c *Committee) Stake(pk crypto.PublicKey) uint64 {
	i, ok := c.index[pk.Hex()]
	if !ok {
		return 0
	}
	return c.authorities[i].Stake
}

// Address returns pk's network address.
func (c *Committee) Address(pk crypto.PublicKey) (string, error) {
	i, ok := c.index[pk.Hex()]
	if !ok {
		return "", fmt.Errorf("committee: unknown authority %s", pk.Hex())
	}
	return c.authorities[i].Address, nil
}

// BroadcastAddresses returns the addresses of every member except self.
func (c *Committee) BroadcastAddresses(self crypto.PublicKey) []string {
	addrs := make([]string, 0, len(c.authorities)-1)
	selfHex := self.Hex()
	for _, a := range c.authorities {
		if a.PublicKey.Hex() != selfHex {
			addrs = append(addrs, a.Address)
		}
	}
	return addrs
}

// Authorities returns the sorted public keys of every committee member.
// Callers must not mutate the returned slice's backing array via the
// returned PublicKey slices.
func (c *Committee) Authorities() []crypto.PublicKey {
	keys := make([]crypto.PublicKey, len(c.authorities))
	for i, a := range c.authorities {
		keys[i] = a.PublicKey
	}
	return keys
}
