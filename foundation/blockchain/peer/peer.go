// Package peer tracks the set of known nodes a participant has learned
// about and the handshake payload exchanged over `/node_api/v1/connections`
// to seed that set without admitting a node to itself.
package peer

import (
	"sync"

	"github.com/google/uuid"
)

// Peer identifies another node in the network by its advertised host.
type Peer struct {
	Host string
}

// New constructs a Peer for host.
func New(host string) Peer {
	return Peer{Host: host}
}

// Match reports whether host names this peer.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// SessionID identifies one running process for the lifetime of that
// process; it exists so a node's handshake response lets the caller
// recognize and reject a connection back to itself, per the spec this
// node's ambient stack carries "session identity" for.
type SessionID string

// NewSessionID generates a fresh process-scoped session identity.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// Handshake is the payload exchanged with `/node_api/v1/connections`: the
// caller's own host and session id, so the callee can both register the
// caller as a known peer and detect whether the caller is itself.
type Handshake struct {
	Host      string    `json:"host" validate:"required"`
	SessionID SessionID `json:"session_id" validate:"required"`
}

// Status reports this node's chain height and known-peer set, returned
// in response to a handshake so the caller can bootstrap its own peer set
// and decide whether it is behind.
type Status struct {
	SessionID         SessionID `json:"session_id"`
	LatestBlockHash   string    `json:"latest_block_hash"`
	LatestBlockNumber uint64    `json:"latest_block_number"`
	KnownPeers        []Peer    `json:"known_peers"`
}

// =============================================================================

// Set maintains the de-duplicated collection of peers this node currently
// knows about.
type Set struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewSet constructs an empty peer set.
func NewSet() *Set {
	return &Set{set: make(map[Peer]struct{})}
}

// Bootstrap seeds the set from a list of host strings, the shape the
// node's own configuration carries its known-peers default in.
func (s *Set) Bootstrap(hosts []string) {
	for _, host := range hosts {
		s.Add(New(host))
	}
}

// Add adds peer to the set, reporting whether it was new.
func (s *Set) Add(peer Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.set[peer]; exists {
		return false
	}
	s.set[peer] = struct{}{}
	return true
}

// Remove drops peer from the set, e.g. after it fails to respond to a
// handshake.
func (s *Set) Remove(peer Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, peer)
}

// Copy returns every known peer except one matching host (normally this
// node's own, so it is never told about itself).
func (s *Set) Copy(host string) []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var peers []Peer
	for peer := range s.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}
	return peers
}
