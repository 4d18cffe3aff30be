package forkchoice

import "github.com/geanlabs/gean/types"

// CurrentSlot returns the current slot based on store time.
func (s *Store) CurrentSlot() (types.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.db.GetTime()
	if err != nil {
		return 0, err
	}
	return types.Slot(t / types.IntervalsPerSlot), nil
}

// CurrentInterval returns the current sub-slot tick (0-3) within the slot.
func (s *Store) CurrentInterval() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.db.GetTime()
	if err != nil {
		return 0, err
	}
	return t % types.IntervalsPerSlot, nil
}

// TickInterval advances store time by one interval, running whichever
// sub-slot action that interval triggers. hasProposal signals that this tick
// coincides with the local node's proposal duty, matching
// geanlabs-gean/forkchoice/time.go's tickIntervalLocked.
func (s *Store) TickInterval(hasProposal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickIntervalLocked(hasProposal)
}

func (s *Store) tickIntervalLocked(hasProposal bool) error {
	t, err := s.db.GetTime()
	if err != nil {
		return err
	}
	t++
	if err := s.db.SetTime(t); err != nil {
		return err
	}

	switch t % types.IntervalsPerSlot {
	case 0:
		if hasProposal {
			return s.acceptNewAttestationsLocked()
		}
	case 1:
		// Validator voting interval - no action.
	case 2:
		return s.updateSafeTargetLocked()
	default:
		return s.acceptNewAttestationsLocked()
	}
	return nil
}

// AdvanceTime ticks the store forward to the wall-clock time given (seconds
// since the Unix epoch), signaling hasProposal on the tick immediately
// preceding it.
func (s *Store) AdvanceTime(wallClock uint64, hasProposal bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wallClock < s.Config.GenesisTime {
		return nil
	}
	targetTicks := (wallClock - s.Config.GenesisTime) / types.SecondsPerInterval

	for {
		t, err := s.db.GetTime()
		if err != nil {
			return err
		}
		if t >= targetTicks {
			return nil
		}
		shouldSignal := hasProposal && (t+1) == targetTicks
		if err := s.tickIntervalLocked(shouldSignal); err != nil {
			return err
		}
	}
}

// advanceToSlotLocked ticks the store forward to the first interval of slot,
// then promotes any pending votes so the caller sees an up-to-date head.
func (s *Store) advanceToSlotLocked(slot types.Slot) error {
	slotTime := s.Config.GenesisTime + uint64(slot)*types.SecondsPerSlot
	targetTicks := (slotTime - s.Config.GenesisTime) / types.SecondsPerInterval

	for {
		t, err := s.db.GetTime()
		if err != nil {
			return err
		}
		if t >= targetTicks {
			break
		}
		shouldSignal := (t + 1) == targetTicks
		if err := s.tickIntervalLocked(shouldSignal); err != nil {
			return err
		}
	}
	return s.acceptNewAttestationsLocked()
}
