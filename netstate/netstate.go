// Package netstate holds network-facing state that the chain/validator
// services never touch directly: the peer table and the head/finalized
// checkpoints served by the RPC surface and the Status req/resp protocol.
// Grounded on original_source/crates/networking/network_state/lean/src/
// {lib.rs,cached_peer.rs} (peer table + atomically-swapped checkpoints) and
// geanlabs-gean/networking/service.go's use of a BlockReader-shaped
// collaborator.
package netstate

import (
	"sync"
	"time"

	"github.com/geanlabs/gean/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

// ConnectionState is a peer's connectivity state in the local table.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
)

// Direction mirrors libp2p's connection direction for the peer table.
type Direction int

const (
	DirUnknown Direction = iota
	DirInbound
	DirOutbound
)

// PeerInfo is one entry in the peer table.
type PeerInfo struct {
	ID                  peer.ID
	Address             string
	Direction           Direction
	State               ConnectionState
	LastSeen            time.Time
	HeadCheckpoint      types.Checkpoint
	FinalizedCheckpoint types.Checkpoint
}

// State is the thread-safe network-state collaborator. Peer-table access
// uses a plain mutex; the head/finalized checkpoints use a dedicated
// read-write lock so RPC readers never block behind a peer-table write
// (§5's "non-blocking read-write primitive, writer-preferring").
type State struct {
	peerMu sync.Mutex
	peers  map[peer.ID]*PeerInfo

	checkpointMu sync.RWMutex
	head         types.Checkpoint
	finalized    types.Checkpoint
}

// New creates an empty network state.
func New() *State {
	return &State{peers: make(map[peer.ID]*PeerInfo)}
}

// UpsertPeer modifies the entry for id in place on a match, or inserts a new
// one on miss.
func (s *State) UpsertPeer(id peer.ID, address string, direction Direction, state ConnectionState) {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()

	if existing, ok := s.peers[id]; ok {
		existing.Address = address
		existing.Direction = direction
		existing.State = state
		existing.LastSeen = time.Now()
		return
	}

	s.peers[id] = &PeerInfo{
		ID:        id,
		Address:   address,
		Direction: direction,
		State:     state,
		LastSeen:  time.Now(),
	}
}

// UpdatePeerCheckpoints records a peer's reported head/finalized checkpoints
// (from a Status exchange), leaving connectivity fields untouched.
func (s *State) UpdatePeerCheckpoints(id peer.ID, head, finalized types.Checkpoint) {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()

	if existing, ok := s.peers[id]; ok {
		existing.HeadCheckpoint = head
		existing.FinalizedCheckpoint = finalized
		existing.LastSeen = time.Now()
	}
}

// RemovePeer drops id from the table (e.g. on disconnect).
func (s *State) RemovePeer(id peer.ID) {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	delete(s.peers, id)
}

// Peer returns the entry for id, if any.
func (s *State) Peer(id peer.ID) (PeerInfo, bool) {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	p, ok := s.peers[id]
	if !ok {
		return PeerInfo{}, false
	}
	return *p, true
}

// Peers returns a snapshot of every tracked peer.
func (s *State) Peers() []PeerInfo {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	out := make([]PeerInfo, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, *p)
	}
	return out
}

// ConnectedPeers counts entries currently in the Connected state.
func (s *State) ConnectedPeers() int {
	s.peerMu.Lock()
	defer s.peerMu.Unlock()
	count := 0
	for _, p := range s.peers {
		if p.State == Connected {
			count++
		}
	}
	return count
}

// SetHeadCheckpoint atomically updates the exported head checkpoint.
func (s *State) SetHeadCheckpoint(cp types.Checkpoint) {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()
	s.head = cp
}

// HeadCheckpoint reads the exported head checkpoint.
func (s *State) HeadCheckpoint() types.Checkpoint {
	s.checkpointMu.RLock()
	defer s.checkpointMu.RUnlock()
	return s.head
}

// SetFinalizedCheckpoint atomically updates the exported finalized checkpoint.
func (s *State) SetFinalizedCheckpoint(cp types.Checkpoint) {
	s.checkpointMu.Lock()
	defer s.checkpointMu.Unlock()
	s.finalized = cp
}

// FinalizedCheckpoint reads the exported finalized checkpoint.
func (s *State) FinalizedCheckpoint() types.Checkpoint {
	s.checkpointMu.RLock()
	defer s.checkpointMu.RUnlock()
	return s.finalized
}
