package netstate

import (
	"testing"

	"github.com/geanlabs/gean/types"
	"github.com/libp2p/go-libp2p/core/peer"
)

func testPeerID(t *testing.T, seed byte) peer.ID {
	t.Helper()
	// An identity multihash prefix (code 0x00, digest length 0x20) followed
	// by 32 seed bytes makes a 34-byte, syntactically valid, deterministic
	// peer.ID for tests.
	raw := make([]byte, 34)
	raw[0] = 0x00
	raw[1] = 0x20
	for i := 2; i < len(raw); i++ {
		raw[i] = seed
	}
	return peer.ID(raw)
}

func TestUpsertPeer_InsertsThenUpdatesInPlace(t *testing.T) {
	s := New()
	id := testPeerID(t, 1)

	s.UpsertPeer(id, "/ip4/1.2.3.4/tcp/9000", DirOutbound, Connected)
	peerInfo, ok := s.Peer(id)
	if !ok {
		t.Fatal("expected peer to be present after UpsertPeer")
	}
	if peerInfo.Address != "/ip4/1.2.3.4/tcp/9000" || peerInfo.Direction != DirOutbound || peerInfo.State != Connected {
		t.Errorf("unexpected peer info after insert: %+v", peerInfo)
	}

	s.UpsertPeer(id, "/ip4/1.2.3.4/tcp/9001", DirOutbound, Disconnected)
	peerInfo, ok = s.Peer(id)
	if !ok {
		t.Fatal("peer should still be present after update")
	}
	if peerInfo.Address != "/ip4/1.2.3.4/tcp/9001" || peerInfo.State != Disconnected {
		t.Errorf("update in place failed, got %+v", peerInfo)
	}
	if len(s.Peers()) != 1 {
		t.Errorf("expected exactly one tracked peer, got %d", len(s.Peers()))
	}
}

func TestConnectedPeers_CountsOnlyConnectedState(t *testing.T) {
	s := New()
	s.UpsertPeer(testPeerID(t, 1), "a1", DirInbound, Connected)
	s.UpsertPeer(testPeerID(t, 2), "a2", DirOutbound, Connected)
	s.UpsertPeer(testPeerID(t, 3), "a3", DirOutbound, Disconnected)

	if got := s.ConnectedPeers(); got != 2 {
		t.Errorf("ConnectedPeers() = %d, want 2", got)
	}
}

func TestRemovePeer(t *testing.T) {
	s := New()
	id := testPeerID(t, 1)
	s.UpsertPeer(id, "a", DirInbound, Connected)

	s.RemovePeer(id)
	if _, ok := s.Peer(id); ok {
		t.Error("expected peer to be gone after RemovePeer")
	}
	if n := len(s.Peers()); n != 0 {
		t.Errorf("Peers() length = %d, want 0", n)
	}
}

func TestUpdatePeerCheckpoints_OnlyAppliesToKnownPeers(t *testing.T) {
	s := New()
	id := testPeerID(t, 1)

	head := types.Checkpoint{Slot: 10}
	finalized := types.Checkpoint{Slot: 8}

	// Unknown peer: no-op, must not panic or insert.
	s.UpdatePeerCheckpoints(id, head, finalized)
	if _, ok := s.Peer(id); ok {
		t.Fatal("UpdatePeerCheckpoints should not insert unknown peers")
	}

	s.UpsertPeer(id, "a", DirInbound, Connected)
	s.UpdatePeerCheckpoints(id, head, finalized)

	peerInfo, ok := s.Peer(id)
	if !ok {
		t.Fatal("expected peer to exist")
	}
	if peerInfo.HeadCheckpoint != head || peerInfo.FinalizedCheckpoint != finalized {
		t.Errorf("checkpoints not recorded: %+v", peerInfo)
	}
}

func TestHeadAndFinalizedCheckpoint_RoundTrip(t *testing.T) {
	s := New()
	head := types.Checkpoint{Slot: 5}
	finalized := types.Checkpoint{Slot: 3}

	s.SetHeadCheckpoint(head)
	s.SetFinalizedCheckpoint(finalized)

	if got := s.HeadCheckpoint(); got != head {
		t.Errorf("HeadCheckpoint() = %+v, want %+v", got, head)
	}
	if got := s.FinalizedCheckpoint(); got != finalized {
		t.Errorf("FinalizedCheckpoint() = %+v, want %+v", got, finalized)
	}
}
