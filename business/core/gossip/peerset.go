package gossip

import "sync"

// Peer identifies one gossip endpoint by its P2P host:port.
type Peer struct {
	Host string
}

// Match reports whether host names this peer.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// PeerSet is the mutex-guarded registry of live peer connections that
// backs gossip.Core: every accepted or dialed connection is registered
// here, keyed by peer address, and every broadcast walks it.
type PeerSet struct {
	mu    sync.RWMutex
	conns map[Peer]*conn
}

// NewPeerSet constructs an empty peer set.
func NewPeerSet() *PeerSet {
	return &PeerSet{
		conns: make(map[Peer]*conn),
	}
}

// Add registers the live connection for a peer, reporting whether the peer
// was not already present.
func (ps *PeerSet) Add(peer Peer, cn *conn) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.conns[peer]
	ps.conns[peer] = cn
	return !exists
}

// Remove drops a peer's connection from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.conns, peer)
}

// Get returns the live connection registered for host, if any.
func (ps *PeerSet) Get(host string) (*conn, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	cn, ok := ps.conns[Peer{Host: host}]
	return cn, ok
}

// Copy returns every live connection other than host's.
func (ps *PeerSet) Copy(host string) []*conn {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var conns []*conn
	for peer, cn := range ps.conns {
		if !peer.Match(host) {
			conns = append(conns, cn)
		}
	}

	return conns
}

// All returns every live connection.
func (ps *PeerSet) All() []*conn {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	conns := make([]*conn, 0, len(ps.conns))
	for _, cn := range ps.conns {
		conns = append(conns, cn)
	}

	return conns
}

// Len reports the number of live connections.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.conns)
}
