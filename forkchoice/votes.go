package forkchoice

import (
	"fmt"

	"github.com/geanlabs/gean/types"
)

// OnAttestation validates and files a gossiped attestation into the
// latest-new pool. Grounded on geanlabs-gean/forkchoice/votes.go's
// ValidateAttestation + ProcessAttestation, generalized from
// types.SignedVote to types.SignedAttestation.
func (s *Store) OnAttestation(signed *types.SignedAttestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateAttestationLocked(signed); err != nil {
		return err
	}
	return s.onAttestationLocked(&signed.Message, false)
}

func (s *Store) validateAttestationLocked(signed *types.SignedAttestation) error {
	data := signed.Message.Data

	targetBlock, ok, err := s.getBlockLocked(data.Target.Root)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: target root %s", ErrTargetNotFound, data.Target.Root.Short())
	}

	var sourceSlot types.Slot
	if data.Source.Root.IsZero() {
		if data.Source.Slot != 0 {
			return fmt.Errorf("%w: genesis source must have slot 0, got %d", ErrSlotMismatch, data.Source.Slot)
		}
	} else {
		sourceBlock, ok, err := s.getBlockLocked(data.Source.Root)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: source root %s", ErrSourceNotFound, data.Source.Root.Short())
		}
		sourceSlot = sourceBlock.Slot
		if sourceSlot != data.Source.Slot {
			return fmt.Errorf("%w: source block slot %d != checkpoint slot %d", ErrSlotMismatch, sourceSlot, data.Source.Slot)
		}
	}

	if sourceSlot > targetBlock.Slot {
		return fmt.Errorf("%w: source slot %d > target block slot %d", ErrSlotMismatch, sourceSlot, targetBlock.Slot)
	}
	if data.Source.Slot > data.Target.Slot {
		return fmt.Errorf("%w: source slot %d > target slot %d", ErrSlotMismatch, data.Source.Slot, data.Target.Slot)
	}
	if targetBlock.Slot != data.Target.Slot {
		return fmt.Errorf("%w: target block slot %d != checkpoint slot %d", ErrSlotMismatch, targetBlock.Slot, data.Target.Slot)
	}

	t, err := s.db.GetTime()
	if err != nil {
		return err
	}
	currentSlot := types.Slot(t / types.IntervalsPerSlot)
	if data.Slot > currentSlot+1 {
		return fmt.Errorf("%w: vote slot %d too far ahead (current: %d)", ErrFutureVote, data.Slot, currentSlot)
	}

	return nil
}

// onAttestationLocked files a single attestation's target checkpoint into
// the known or new vote pool, applying the "newer slot wins" upsert rule
// from geanlabs-gean/forkchoice/votes.go#processAttestationLocked. Votes
// carried in a block (isFromBlock) go straight to the known pool and clear
// any now-redundant pending vote for the same validator; gossiped votes
// land in the new pool until accept_new_attestations promotes them.
func (s *Store) onAttestationLocked(att *types.Attestation, fromBlock bool) error {
	idx := types.ValidatorIndex(att.ValidatorID)

	if fromBlock {
		known, ok, err := s.db.GetLatestKnownAttestation(idx)
		if err != nil {
			return err
		}
		if !ok || known.Message.Data.Target.Slot < att.Data.Target.Slot {
			if err := s.db.PutLatestKnownAttestation(idx, &types.SignedAttestation{Message: *att}); err != nil {
				return err
			}
		}

		pending, ok, err := s.db.GetLatestNewAttestation(idx)
		if err != nil {
			return err
		}
		if ok && pending.Message.Data.Target.Slot <= att.Data.Target.Slot {
			if err := s.db.DeleteLatestNewAttestation(idx); err != nil {
				return err
			}
		}
		return nil
	}

	pending, ok, err := s.db.GetLatestNewAttestation(idx)
	if err != nil {
		return err
	}
	if !ok || pending.Message.Data.Target.Slot < att.Data.Target.Slot {
		return s.db.PutLatestNewAttestation(idx, &types.SignedAttestation{Message: *att})
	}
	return nil
}

// acceptNewAttestationsLocked promotes every pending vote in the latest-new
// pool into the latest-known pool and recomputes the head, per
// accept_new_attestations (§4.E).
func (s *Store) acceptNewAttestationsLocked() error {
	drained, err := s.db.DrainLatestNewAttestations()
	if err != nil {
		return err
	}
	for idx, att := range drained {
		if err := s.db.PutLatestKnownAttestation(idx, att); err != nil {
			return err
		}
	}
	return s.updateHeadLocked()
}

// getVoteTargetLocked picks the attestation target for produce_attestation_data:
// walk back from head up to 3 slots while it is strictly ahead of the safe
// target, then walk further back until the candidate lands on a justifiable
// slot relative to the latest finalized checkpoint. Grounded on
// geanlabs-gean/forkchoice/votes.go#getVoteTargetLocked.
func (s *Store) getVoteTargetLocked() (types.Checkpoint, error) {
	headRoot, ok, err := s.db.GetHead()
	if err != nil {
		return types.Checkpoint{}, err
	}
	if !ok {
		return types.Checkpoint{}, ErrHeadNotFound
	}

	safeRoot, ok, err := s.db.GetSafeTarget()
	if err != nil {
		return types.Checkpoint{}, err
	}
	if !ok {
		safeRoot = headRoot
	}
	safeBlock, ok, err := s.getBlockLocked(safeRoot)
	if err != nil {
		return types.Checkpoint{}, err
	}
	if !ok {
		safeBlock = nil
	}

	targetRoot := headRoot
	for i := 0; i < 3; i++ {
		tb, ok, err := s.getBlockLocked(targetRoot)
		if err != nil {
			return types.Checkpoint{}, err
		}
		if !ok {
			break
		}
		if safeBlock != nil && tb.Slot > safeBlock.Slot {
			targetRoot = tb.ParentRoot
		}
	}

	finalized, err := s.db.GetLatestFinalized()
	if err != nil {
		return types.Checkpoint{}, err
	}

	for {
		tb, ok, err := s.getBlockLocked(targetRoot)
		if err != nil {
			return types.Checkpoint{}, err
		}
		if !ok {
			break
		}
		if tb.Slot.IsJustifiableAfter(finalized.Slot) {
			break
		}
		targetRoot = tb.ParentRoot
	}

	tb, ok, err := s.getBlockLocked(targetRoot)
	if err != nil {
		return types.Checkpoint{}, err
	}
	if !ok {
		return types.Checkpoint{}, ErrTargetNotFound
	}
	return types.Checkpoint{Root: targetRoot, Slot: tb.Slot}, nil
}
