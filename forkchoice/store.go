// Package forkchoice implements the LMD GHOST fork choice algorithm: on_block,
// on_attestation, update_head, update_safe_target, the sub-slot tick
// protocol, and produce_block/produce_attestation_data. Grounded on
// geanlabs-gean/forkchoice/{store,lmdghost,votes,time,duties,errors}.go,
// generalized from an in-memory Store holding maps of blocks/states/votes to
// one that reads and writes through a storage.Store (§4.C) so that fork
// choice state survives a restart.
package forkchoice

import (
	"fmt"
	"sync"

	"github.com/geanlabs/gean/sig"
	"github.com/geanlabs/gean/statetransition"
	"github.com/geanlabs/gean/storage"
	"github.com/geanlabs/gean/types"
)

// Store coordinates fork choice over a durable storage.Store. A single mutex
// serializes on_block/on_attestation/tick handling, matching the teacher's
// single sync.RWMutex Store — the durable backend does not itself serialize
// multi-step read-modify-write sequences like update_head.
type Store struct {
	mu     sync.Mutex
	db     storage.Store
	Config types.Config
}

// NewStore bootstraps fork choice from an anchor (genesis or weak-subjectivity
// checkpoint) state and its signed block, persisting both and initializing
// the scalar fields. Grounded on leanSpec's get_forkchoice_store, which seeds
// LatestJustified/LatestFinalized from the anchor *state*, not the anchor
// block's own (pre-genesis) checkpoint fields.
func NewStore(db storage.Store, anchorState *types.State, anchorSigned *types.SignedBlockWithAttestation) (*Store, error) {
	anchorBlock := anchorSigned.Message.Block

	stateRoot, err := anchorState.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("forkchoice: hash anchor state: %w", err)
	}
	if anchorBlock.StateRoot != stateRoot {
		return nil, ErrAnchorStateRootMismatch
	}

	anchorRoot, err := anchorBlock.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("forkchoice: hash anchor block: %w", err)
	}

	if err := db.PutBlock(anchorRoot, anchorSigned, anchorState); err != nil {
		return nil, fmt.Errorf("forkchoice: store anchor block: %w", err)
	}
	if err := db.SetLatestJustified(anchorState.LatestJustified); err != nil {
		return nil, err
	}
	if err := db.SetLatestFinalized(anchorState.LatestFinalized); err != nil {
		return nil, err
	}
	if err := db.SetHead(anchorRoot); err != nil {
		return nil, err
	}
	if err := db.SetSafeTarget(anchorRoot); err != nil {
		return nil, err
	}
	if err := db.SetTime(uint64(anchorBlock.Slot) * types.IntervalsPerSlot); err != nil {
		return nil, err
	}

	return &Store{db: db, Config: anchorState.Config}, nil
}

func (s *Store) HasBlock(root types.Root) (bool, error) {
	return s.db.HasBlock(root)
}

// GetBlock returns the unsigned block body for root.
func (s *Store) GetBlock(root types.Root) (*types.Block, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBlockLocked(root)
}

func (s *Store) getBlockLocked(root types.Root) (*types.Block, bool, error) {
	signed, ok, err := s.db.GetSignedBlock(root)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &signed.Message.Block, true, nil
}

func (s *Store) GetHead() (types.Root, error) {
	root, ok, err := s.db.GetHead()
	if err != nil {
		return types.Root{}, err
	}
	if !ok {
		return types.Root{}, ErrHeadNotFound
	}
	return root, nil
}

func (s *Store) GetLatestJustified() (types.Checkpoint, error) {
	return s.db.GetLatestJustified()
}

// GetState returns the post-state stored alongside the block at root.
func (s *Store) GetState(root types.Root) (*types.State, bool, error) {
	return s.db.GetState(root)
}

func (s *Store) GetLatestFinalized() (types.Checkpoint, error) {
	return s.db.GetLatestFinalized()
}

// GetBlockRootBySlot returns the canonical root recorded at slot, if any.
func (s *Store) GetBlockRootBySlot(slot types.Slot) (types.Root, bool, error) {
	return s.db.GetBlockRootBySlot(slot)
}

// NumValidators returns the size of the validator registry as of the
// current head state, used to compute the proposer-for-slot assignment.
func (s *Store) NumValidators() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	headRoot, ok, err := s.db.GetHead()
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrHeadNotFound
	}
	headState, ok, err := s.db.GetState(headRoot)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrHeadNotFound
	}
	return uint64(len(headState.Validators)), nil
}

// OnBlock applies on_block (SPEC_FULL.md §4.E): runs the state transition
// over the block against its parent's post-state, optionally verifies every
// attester signature (body attestations plus the trailing proposer
// attestation) against the parent state's validator registry, persists the
// result, files the body attestations into the known pool, recomputes head,
// and finally files the proposer's own attestation so it is on record for
// the next head recomputation. chain.Service.ProcessBlock (which also
// handles the node's own just-produced blocks) and the syncer always pass
// verifySignatures=true; false skips the check and is used only by tests.
func (s *Store) OnBlock(signed *types.SignedBlockWithAttestation, verifySignatures bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	block := &signed.Message.Block
	root, err := block.HashTreeRoot()
	if err != nil {
		return fmt.Errorf("forkchoice: hash block: %w", err)
	}

	if has, err := s.db.HasBlock(root); err != nil {
		return err
	} else if has {
		return nil
	}

	if len(signed.Signature) != len(block.Body.Attestations)+1 {
		return fmt.Errorf("%w: got=%d want=%d", ErrSignatureCount, len(signed.Signature), len(block.Body.Attestations)+1)
	}

	parentState, ok, err := s.db.GetState(block.ParentRoot)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrParentNotFound, block.ParentRoot.Short())
	}

	if verifySignatures {
		if err := verifyBlockSignatures(parentState, signed); err != nil {
			return err
		}
	}

	postState, err := statetransition.Transition(parentState, block)
	if err != nil {
		return fmt.Errorf("forkchoice: state transition: %w", err)
	}

	if err := s.db.PutBlock(root, signed, postState); err != nil {
		return err
	}

	for i := range block.Body.Attestations {
		if err := s.onAttestationLocked(&block.Body.Attestations[i], true); err != nil {
			return err
		}
	}

	if err := s.updateHeadLocked(); err != nil {
		return err
	}

	return s.onAttestationLocked(&signed.Message.ProposerAttestation, false)
}

// verifyBlockSignatures checks each of the |attestations|+1 signatures in
// signed against parentState's validator registry, at epoch =
// attestation.Data.Slot, per SPEC_FULL.md §4.E on_block step 3. The
// proposer attestation's signature sits at the tail position.
func verifyBlockSignatures(parentState *types.State, signed *types.SignedBlockWithAttestation) error {
	atts := signed.Message.Block.Body.Attestations
	for i, att := range atts {
		if err := verifyAttestationSignature(parentState, &att, signed.Signature[i]); err != nil {
			return fmt.Errorf("forkchoice: body attestation %d: %w", i, err)
		}
	}
	proposerAtt := signed.Message.ProposerAttestation
	if err := verifyAttestationSignature(parentState, &proposerAtt, signed.Signature[len(atts)]); err != nil {
		return fmt.Errorf("forkchoice: proposer attestation: %w", err)
	}
	return nil
}

func verifyAttestationSignature(parentState *types.State, att *types.Attestation, signature types.Signature) error {
	if att.ValidatorID >= uint64(len(parentState.Validators)) {
		return fmt.Errorf("%w: %d", ErrInvalidProposer, att.ValidatorID)
	}
	validator := parentState.Validators[att.ValidatorID]
	pub, err := sig.PublicKeyFromBytes(validator.Pubkey)
	if err != nil {
		return fmt.Errorf("forkchoice: decode validator pubkey: %w", err)
	}
	otsSig, err := sig.SignatureFromBytes(signature)
	if err != nil {
		return fmt.Errorf("forkchoice: decode signature: %w", err)
	}
	root, err := att.HashTreeRoot()
	if err != nil {
		return fmt.Errorf("forkchoice: hash attestation: %w", err)
	}
	if !sig.Verify(pub, uint64(att.Data.Slot), root, otsSig, true) {
		return fmt.Errorf("%w: validator %d", ErrSignatureInvalid, att.ValidatorID)
	}
	return nil
}

func (s *Store) allBlocksLocked() (map[types.Root]*types.Block, error) {
	blocks := make(map[types.Root]*types.Block)
	err := s.db.ForEachBlock(func(root types.Root, signed *types.SignedBlockWithAttestation) bool {
		b := signed.Message.Block
		blocks[root] = &b
		return true
	})
	return blocks, err
}

// latestCheckpointsAcrossStates finds the highest-slot LatestJustified and
// LatestFinalized checkpoints among every block's post-state, since a
// sibling fork may have justified or
// finalized a later checkpoint than the current head's own state carries.
// On_block step 4 requires both fields to advance to the max (by slot) of
// their prior value and the newly-derived state's value, not just the
// eventual head's own view.
func (s *Store) latestCheckpointsAcrossStates() (justified, finalized types.Checkpoint, err error) {
	foundJustified, foundFinalized := false, false
	var walkErr error
	walkErr2 := s.db.ForEachBlock(func(root types.Root, _ *types.SignedBlockWithAttestation) bool {
		st, ok, e := s.db.GetState(root)
		if e != nil {
			walkErr = e
			return false
		}
		if !ok {
			return true
		}
		if !foundJustified || st.LatestJustified.Slot > justified.Slot {
			justified = st.LatestJustified
			foundJustified = true
		}
		if !foundFinalized || st.LatestFinalized.Slot > finalized.Slot {
			finalized = st.LatestFinalized
			foundFinalized = true
		}
		return true
	})
	if walkErr2 != nil {
		return types.Checkpoint{}, types.Checkpoint{}, walkErr2
	}
	if walkErr != nil {
		return types.Checkpoint{}, types.Checkpoint{}, walkErr
	}
	return justified, finalized, nil
}

func (s *Store) updateHeadLocked() error {
	justified, finalized, err := s.latestCheckpointsAcrossStates()
	if err != nil {
		return err
	}

	blocks, err := s.allBlocksLocked()
	if err != nil {
		return err
	}

	known, err := s.db.AllLatestKnownAttestations()
	if err != nil {
		return err
	}

	head := getHead(blocks, justified.Root, votesFromAttestations(known), 0)
	if err := s.db.SetHead(head); err != nil {
		return err
	}
	if err := s.db.SetLatestJustified(justified); err != nil {
		return err
	}
	return s.db.SetLatestFinalized(finalized)
}

// updateSafeTargetLocked runs the same head walk as updateHeadLocked, also
// rooted at latest_justified, but filtered to blocks
// carrying at least a two-thirds supermajority of *new* votes, per
// SPEC_FULL.md §4.E's update_safe_target.
func (s *Store) updateSafeTargetLocked() error {
	justified, err := s.db.GetLatestJustified()
	if err != nil {
		return err
	}
	justifiedState, ok, err := s.db.GetState(justified.Root)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	numValidators := len(justifiedState.Validators)
	minScore := (numValidators*2 + 2) / 3 // ceil(2n/3)

	blocks, err := s.allBlocksLocked()
	if err != nil {
		return err
	}
	newAtts, err := s.db.AllLatestNewAttestations()
	if err != nil {
		return err
	}

	safeTarget := getHead(blocks, justified.Root, votesFromAttestations(newAtts), minScore)
	return s.db.SetSafeTarget(safeTarget)
}
