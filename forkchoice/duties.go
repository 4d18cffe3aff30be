package forkchoice

import (
	"fmt"

	"github.com/geanlabs/gean/statetransition"
	"github.com/geanlabs/gean/types"
)

// ProduceBlock creates a block via iterative (fixed-point) attestation
// collection: build a candidate block, run the state transition, collect any
// known votes not yet included whose target is reachable from the
// post-state's new LatestJustified source, and repeat until nothing new is
// found. Processing attestations can itself justify a checkpoint, making
// further attestations eligible, so this typically converges in one or two
// passes. Grounded on geanlabs-gean/forkchoice/duties.go#ProduceBlock; the
// validator-package helpers it called (ValidateProposer, BuildBlock,
// CollectNewAttestations) are folded in here as unexported functions since
// the separate validator package this spec builds owns duty scheduling, not
// block construction.
func (s *Store) ProduceBlock(slot types.Slot, proposerIndex types.ValidatorIndex) (*types.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.advanceToSlotLocked(slot); err != nil {
		return nil, err
	}

	headRoot, ok, err := s.db.GetHead()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeadNotFound
	}
	headState, ok, err := s.db.GetState(headRoot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeadNotFound
	}

	numValidators := uint64(len(headState.Validators))
	if numValidators == 0 || uint64(slot)%numValidators != uint64(proposerIndex) {
		return nil, fmt.Errorf("%w: slot=%d index=%d", ErrWrongProposer, slot, proposerIndex)
	}

	known, err := s.db.AllLatestKnownAttestations()
	if err != nil {
		return nil, err
	}

	var attestations []types.Attestation
	for {
		block, postState, err := buildBlock(headState, slot, proposerIndex, attestations)
		if err != nil {
			return nil, err
		}

		fresh := collectNewAttestations(known, func(r types.Root) bool {
			has, _ := s.db.HasBlock(r)
			return has
		}, postState.LatestJustified, attestations)

		if len(fresh) == 0 {
			return block, nil
		}
		attestations = append(attestations, fresh...)
	}
}

// buildBlock assembles a candidate block over headState for slot, runs the
// block-portion of the state transition, and fills in the resulting
// state_root.
func buildBlock(headState *types.State, slot types.Slot, proposerIndex types.ValidatorIndex, attestations []types.Attestation) (*types.Block, *types.State, error) {
	state, err := statetransition.ProcessSlots(headState, slot)
	if err != nil {
		return nil, nil, err
	}

	parentRoot, err := state.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		return nil, nil, err
	}

	block := &types.Block{
		Slot:          slot,
		ProposerIndex: uint64(proposerIndex),
		ParentRoot:    parentRoot,
		Body:          types.BlockBody{Attestations: attestations},
	}

	postState, err := statetransition.ProcessBlock(state, block)
	if err != nil {
		return nil, nil, err
	}

	stateRoot, err := postState.HashTreeRoot()
	if err != nil {
		return nil, nil, err
	}
	block.StateRoot = stateRoot

	return block, postState, nil
}

// collectNewAttestations finds known votes not already included whose target
// block is present in the store, re-sourcing each against source (the
// post-state's latest justified checkpoint at the time of collection).
func collectNewAttestations(known map[types.ValidatorIndex]*types.SignedAttestation, hasBlock func(types.Root) bool, source types.Checkpoint, already []types.Attestation) []types.Attestation {
	included := make(map[uint64]bool, len(already))
	for _, a := range already {
		included[a.ValidatorID] = true
	}

	var out []types.Attestation
	for idx, signed := range known {
		if included[uint64(idx)] {
			continue
		}
		target := signed.Message.Data.Target
		if !hasBlock(target.Root) {
			continue
		}
		out = append(out, types.Attestation{
			ValidatorID: uint64(idx),
			Data: types.AttestationData{
				Slot:   signed.Message.Data.Slot,
				Head:   signed.Message.Data.Head,
				Target: target,
				Source: source,
			},
		})
	}
	return out
}

// ProduceAttestationData creates attestation data for the given slot,
// grounded on geanlabs-gean/forkchoice/duties.go#ProduceAttestationData.
func (s *Store) ProduceAttestationData(slot types.Slot) (*types.AttestationData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.advanceToSlotLocked(slot); err != nil {
		return nil, err
	}

	headRoot, ok, err := s.db.GetHead()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeadNotFound
	}
	headBlock, ok, err := s.getBlockLocked(headRoot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeadNotFound
	}

	target, err := s.getVoteTargetLocked()
	if err != nil {
		return nil, err
	}
	justified, err := s.db.GetLatestJustified()
	if err != nil {
		return nil, err
	}

	return &types.AttestationData{
		Slot:   slot,
		Head:   types.Checkpoint{Root: headRoot, Slot: headBlock.Slot},
		Target: target,
		Source: justified,
	}, nil
}
