// Package peer maintains the statically registered set of peer nodes whose
// ledgers are consulted during reconciliation.
package peer

import (
	"sort"
	"sync"
)

// Peer represents one registered node in the network.
type Peer struct {
	Host string
}

// New constructs a peer value for the specified host address.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this peer.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// Set represents the data representation to maintain a set of known peers.
type Set struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewSet constructs a set to manage peer information.
func NewSet() *Set {
	return &Set{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new peer to the set, reporting whether it was not
// already present.
func (ps *Set) Add(p Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[p]; exists {
		return false
	}

	ps.set[p] = struct{}{}
	return true
}

// Remove removes a peer from the set.
func (ps *Set) Remove(p Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, p)
}

// Count returns the number of registered peers.
func (ps *Set) Count() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Hosts returns the registered peer addresses in sorted order, excluding
// the specified host. Sorting keeps the persisted document stable across
// saves.
func (ps *Set) Hosts(exclude string) []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	hosts := make([]string, 0, len(ps.set))
	for p := range ps.set {
		if !p.Match(exclude) {
			hosts = append(hosts, p.Host)
		}
	}
	sort.Strings(hosts)

	return hosts
}
