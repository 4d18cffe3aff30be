// Package storage defines the durable store interface for consensus
// objects: blocks, states, the slot and state-root indices, the two
// attestation pools, and the scalar fork-choice fields. Implementations
// live in storage/memory (tests) and
// storage/pebblestore (the crash-consistent on-disk backend).
package storage

import "github.com/geanlabs/gean/types"

// Store is the durable key-value backend described in SPEC_FULL.md §4.C.
// PutBlock is the only multi-table write; implementations must apply it
// atomically (block + state + slot_index + state_root_index all commit
// together or not at all).
type Store interface {
	// PutBlock inserts a block, its derived post-state, and the
	// corresponding slot_index/state_root_index entries in one atomic
	// commit. Calling it twice for the same root is a no-op on the second
	// call's indices (on_block checks existence first; see forkchoice).
	PutBlock(root types.Root, signed *types.SignedBlockWithAttestation, state *types.State) error

	GetSignedBlock(root types.Root) (*types.SignedBlockWithAttestation, bool, error)
	GetState(root types.Root) (*types.State, bool, error)
	HasBlock(root types.Root) (bool, error)

	// GetBlockRootBySlot returns the canonical head-of-chain block root
	// recorded at slot, if any.
	GetBlockRootBySlot(slot types.Slot) (types.Root, bool, error)
	GetBlockRootByStateRoot(stateRoot types.Root) (types.Root, bool, error)

	// ForEachSlot iterates slot_index in ascending slot order, stopping
	// early if fn returns false. slot_index records the most recently seen
	// root at a slot and is overwritten on forks, so it is only a
	// convenience for single-chain lookups (sync ranges, RPC); fork choice
	// uses ForEachBlock for the full tree instead.
	ForEachSlot(fn func(slot types.Slot, root types.Root) bool) error

	// ForEachBlock iterates every stored block (all forks, unordered),
	// stopping early if fn returns false. This is the primitive the
	// fork-choice LMD-GHOST walk uses to rebuild the block tree.
	ForEachBlock(fn func(root types.Root, signed *types.SignedBlockWithAttestation) bool) error

	GetLatestKnownAttestation(validator types.ValidatorIndex) (*types.SignedAttestation, bool, error)
	PutLatestKnownAttestation(validator types.ValidatorIndex, att *types.SignedAttestation) error
	DeleteLatestKnownAttestation(validator types.ValidatorIndex) error

	GetLatestNewAttestation(validator types.ValidatorIndex) (*types.SignedAttestation, bool, error)
	PutLatestNewAttestation(validator types.ValidatorIndex, att *types.SignedAttestation) error
	DeleteLatestNewAttestation(validator types.ValidatorIndex) error

	// DrainLatestNewAttestations empties the latest-new pool and returns
	// everything it held, for accept_new_attestations (§4.E).
	DrainLatestNewAttestations() (map[types.ValidatorIndex]*types.SignedAttestation, error)
	// AllLatestNewAttestations peeks the latest-new pool without draining
	// it, for update_safe_target (§4.E), which scores candidate heads
	// against pending votes but must not consume them.
	AllLatestNewAttestations() (map[types.ValidatorIndex]*types.SignedAttestation, error)
	AllLatestKnownAttestations() (map[types.ValidatorIndex]*types.SignedAttestation, error)

	GetLatestJustified() (types.Checkpoint, error)
	SetLatestJustified(types.Checkpoint) error
	GetLatestFinalized() (types.Checkpoint, error)
	SetLatestFinalized(types.Checkpoint) error
	GetHead() (types.Root, bool, error)
	SetHead(types.Root) error
	GetSafeTarget() (types.Root, bool, error)
	SetSafeTarget(types.Root) error

	// GetTime/SetTime track ticks since genesis (not seconds), per §4.C.
	GetTime() (uint64, error)
	SetTime(uint64) error

	Close() error
}
