// Package statetransition implements the deterministic Lean Ethereum state
// transition function: process_slots, process_block_header, and
// process_attestations, plus the justification/finalization bookkeeping
// that drives consensus progress. Grounded on
// geanlabs-gean/consensus/transition.go, generalized from that teacher's
// NumValidators scalar to this spec's ordered Validator registry
// (len(state.Validators)) and from types.Vote/SignedVote to
// types.Attestation/types.SignedAttestation.
package statetransition

import (
	"errors"
	"fmt"

	"github.com/geanlabs/gean/types"
)

var (
	ErrTargetNotAfterCurrent = errors.New("statetransition: target slot must be greater than current slot")
	ErrBlockSlotMismatch     = errors.New("statetransition: block slot does not match state slot")
	ErrBlockNotNewer         = errors.New("statetransition: block slot must be newer than latest header")
	ErrWrongProposer         = errors.New("statetransition: unexpected proposer for slot")
	ErrParentRootMismatch    = errors.New("statetransition: parent root mismatch")
	ErrStateRootMismatch     = errors.New("statetransition: state root mismatch")
)

// ProcessSlot performs per-slot maintenance: if the latest block header's
// state_root is still the empty placeholder left by ProcessBlockHeader, it
// is filled in with the current state's tree-hash root.
func ProcessSlot(s *types.State) (*types.State, error) {
	if s.LatestBlockHeader.StateRoot.IsZero() {
		stateRoot, err := s.HashTreeRoot()
		if err != nil {
			return nil, fmt.Errorf("statetransition: hash state: %w", err)
		}
		newState := Copy(s)
		newState.LatestBlockHeader.StateRoot = stateRoot
		return newState, nil
	}
	return s, nil
}

// ProcessSlots advances the state through empty slots up to targetSlot.
func ProcessSlots(s *types.State, targetSlot types.Slot) (*types.State, error) {
	if s.Slot >= targetSlot {
		return nil, fmt.Errorf("%w: target=%d current=%d", ErrTargetNotAfterCurrent, targetSlot, s.Slot)
	}

	state := s
	var err error
	for state.Slot < targetSlot {
		state, err = ProcessSlot(state)
		if err != nil {
			return nil, err
		}
		newState := Copy(state)
		newState.Slot++
		state = newState
	}
	return state, nil
}

// ProcessBlockHeader validates and applies a block header, per
// SPEC_FULL.md §4.D.
func ProcessBlockHeader(s *types.State, block *types.Block) (*types.State, error) {
	if block.Slot != s.Slot {
		return nil, fmt.Errorf("%w: block=%d state=%d", ErrBlockSlotMismatch, block.Slot, s.Slot)
	}
	if block.Slot <= s.LatestBlockHeader.Slot {
		return nil, fmt.Errorf("%w: block=%d latest=%d", ErrBlockNotNewer, block.Slot, s.LatestBlockHeader.Slot)
	}

	numValidators := uint64(len(s.Validators))
	expectedProposer := uint64(block.Slot) % numValidators
	if block.ProposerIndex != expectedProposer {
		return nil, fmt.Errorf("%w: got=%d want=%d slot=%d", ErrWrongProposer, block.ProposerIndex, expectedProposer, block.Slot)
	}

	expectedParent, err := s.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("statetransition: hash latest header: %w", err)
	}
	if block.ParentRoot != expectedParent {
		return nil, ErrParentRootMismatch
	}

	newState := Copy(s)

	if s.LatestBlockHeader.Slot == 0 {
		newState.LatestJustified.Root = block.ParentRoot
		newState.LatestFinalized.Root = block.ParentRoot
	}

	newState.HistoricalBlockHashes = append(newState.HistoricalBlockHashes, block.ParentRoot)

	parentSlot := int(s.LatestBlockHeader.Slot)
	newState.JustifiedSlots = types.AppendBitAt(newState.JustifiedSlots, parentSlot, s.LatestBlockHeader.Slot == 0)

	emptySlots := int(block.Slot - s.LatestBlockHeader.Slot - 1)
	for i := 0; i < emptySlots; i++ {
		newState.HistoricalBlockHashes = append(newState.HistoricalBlockHashes, types.Root{})
		emptySlot := parentSlot + 1 + i
		newState.JustifiedSlots = types.AppendBitAt(newState.JustifiedSlots, emptySlot, false)
	}

	bodyRoot, err := block.Body.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("statetransition: hash body: %w", err)
	}
	newState.LatestBlockHeader = types.BlockHeader{
		Slot:          block.Slot,
		ProposerIndex: block.ProposerIndex,
		ParentRoot:    block.ParentRoot,
		StateRoot:     types.Root{},
		BodyRoot:      bodyRoot,
	}

	return newState, nil
}

// ProcessAttestations applies process_attestations per SPEC_FULL.md §4.D:
// filters that fail are skipped, never errored (pool-filter misses are not
// consensus-rule violations).
func ProcessAttestations(s *types.State, attestations []types.Attestation) (*types.State, error) {
	newState := Copy(s)
	justifications := GetJustifications(newState)

	for _, att := range attestations {
		data := att.Data
		sourceSlot := int(data.Source.Slot)
		targetSlot := int(data.Target.Slot)
		validatorID := int(att.ValidatorID)

		if !types.GetBit(newState.JustifiedSlots, sourceSlot) {
			continue
		}
		if types.GetBit(newState.JustifiedSlots, targetSlot) {
			continue
		}
		if sourceSlot >= len(newState.HistoricalBlockHashes) ||
			data.Source.Root != newState.HistoricalBlockHashes[sourceSlot] {
			continue
		}
		if targetSlot >= len(newState.HistoricalBlockHashes) ||
			data.Target.Root != newState.HistoricalBlockHashes[targetSlot] {
			continue
		}
		if data.Target.Slot <= data.Source.Slot {
			continue
		}
		if !IsJustifiable(newState.LatestFinalized.Slot, data.Target.Slot) {
			continue
		}

		numValidators := len(newState.Validators)
		votes, exists := justifications[data.Target.Root]
		if !exists {
			votes = make([]bool, numValidators)
		}
		if validatorID < len(votes) {
			votes[validatorID] = true
		}
		justifications[data.Target.Root] = votes

		count := CountVotes(votes)
		if 3*count >= 2*numValidators {
			newState.LatestJustified = data.Target
			newState.JustifiedSlots = types.SetBit(newState.JustifiedSlots, targetSlot, true)
			delete(justifications, data.Target.Root)

			canFinalize := true
			for slot := data.Source.Slot + 1; slot < data.Target.Slot; slot++ {
				if IsJustifiable(newState.LatestFinalized.Slot, slot) {
					canFinalize = false
					break
				}
			}
			if canFinalize {
				newState.LatestFinalized = data.Source
			}
		}
	}

	return SetJustifications(newState, justifications), nil
}

// ProcessBlock applies process_block_header followed by
// process_attestations over the block's body.
func ProcessBlock(s *types.State, block *types.Block) (*types.State, error) {
	state, err := ProcessBlockHeader(s, block)
	if err != nil {
		return nil, err
	}
	return ProcessAttestations(state, block.Body.Attestations)
}

// Transition applies the full state_transition(state, block) pipeline:
// process_slots, process_block, then a state-root equality check.
func Transition(s *types.State, block *types.Block) (*types.State, error) {
	state, err := ProcessSlots(s, block.Slot)
	if err != nil {
		return nil, err
	}

	state, err = ProcessBlock(state, block)
	if err != nil {
		return nil, err
	}

	want, err := state.HashTreeRoot()
	if err != nil {
		return nil, fmt.Errorf("statetransition: hash state: %w", err)
	}
	if block.StateRoot != want {
		return nil, fmt.Errorf("%w: block=%s computed=%s", ErrStateRootMismatch, block.StateRoot.Short(), want[:4])
	}
	return state, nil
}

// Copy creates a deep copy of the state; every transition function returns
// a fresh state rather than mutating its input.
func Copy(s *types.State) *types.State {
	cp := *s
	cp.HistoricalBlockHashes = append([]types.Root{}, s.HistoricalBlockHashes...)
	cp.JustifiedSlots = append([]byte{}, s.JustifiedSlots...)
	cp.Validators = append([]types.Validator{}, s.Validators...)
	cp.JustificationsRoots = append([]types.Root{}, s.JustificationsRoots...)
	cp.JustificationsValidators = append([]byte{}, s.JustificationsValidators...)
	return &cp
}
