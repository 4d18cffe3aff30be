// Package memory is an in-memory storage.Store, used by tests. It
// satisfies the same atomicity contract as
// storage/pebblestore by holding one mutex across every multi-table write.
package memory

import (
	"sync"

	"github.com/geanlabs/gean/storage"
	"github.com/geanlabs/gean/types"
)

type Store struct {
	mu sync.RWMutex

	blocks      map[types.Root]*types.SignedBlockWithAttestation
	states      map[types.Root]*types.State
	slotIndex   map[types.Slot]types.Root
	stateRoots  map[types.Root]types.Root
	knownAtts   map[types.ValidatorIndex]*types.SignedAttestation
	newAtts     map[types.ValidatorIndex]*types.SignedAttestation

	latestJustified types.Checkpoint
	latestFinalized types.Checkpoint
	head            *types.Root
	safeTarget      *types.Root
	time            uint64
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		blocks:     make(map[types.Root]*types.SignedBlockWithAttestation),
		states:     make(map[types.Root]*types.State),
		slotIndex:  make(map[types.Slot]types.Root),
		stateRoots: make(map[types.Root]types.Root),
		knownAtts:  make(map[types.ValidatorIndex]*types.SignedAttestation),
		newAtts:    make(map[types.ValidatorIndex]*types.SignedAttestation),
	}
}

func (s *Store) PutBlock(root types.Root, signed *types.SignedBlockWithAttestation, state *types.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stateRoot, err := state.HashTreeRoot()
	if err != nil {
		return err
	}
	s.blocks[root] = signed
	s.states[root] = state
	s.slotIndex[signed.Message.Block.Slot] = root
	s.stateRoots[stateRoot] = root
	return nil
}

func (s *Store) GetSignedBlock(root types.Root) (*types.SignedBlockWithAttestation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[root]
	return b, ok, nil
}

func (s *Store) GetState(root types.Root) (*types.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[root]
	return st, ok, nil
}

func (s *Store) HasBlock(root types.Root) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blocks[root]
	return ok, nil
}

func (s *Store) GetBlockRootBySlot(slot types.Slot) (types.Root, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.slotIndex[slot]
	return r, ok, nil
}

func (s *Store) GetBlockRootByStateRoot(stateRoot types.Root) (types.Root, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.stateRoots[stateRoot]
	return r, ok, nil
}

func (s *Store) ForEachSlot(fn func(slot types.Slot, root types.Root) bool) error {
	s.mu.RLock()
	slots := make([]types.Slot, 0, len(s.slotIndex))
	for slot := range s.slotIndex {
		slots = append(slots, slot)
	}
	s.mu.RUnlock()

	sortSlots(slots)
	for _, slot := range slots {
		s.mu.RLock()
		root := s.slotIndex[slot]
		s.mu.RUnlock()
		if !fn(slot, root) {
			break
		}
	}
	return nil
}

func (s *Store) ForEachBlock(fn func(root types.Root, signed *types.SignedBlockWithAttestation) bool) error {
	s.mu.RLock()
	snapshot := make(map[types.Root]*types.SignedBlockWithAttestation, len(s.blocks))
	for root, b := range s.blocks {
		snapshot[root] = b
	}
	s.mu.RUnlock()

	for root, b := range snapshot {
		if !fn(root, b) {
			break
		}
	}
	return nil
}

func sortSlots(s []types.Slot) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func (s *Store) GetLatestKnownAttestation(v types.ValidatorIndex) (*types.SignedAttestation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.knownAtts[v]
	return a, ok, nil
}

func (s *Store) PutLatestKnownAttestation(v types.ValidatorIndex, att *types.SignedAttestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knownAtts[v] = att
	return nil
}

func (s *Store) DeleteLatestKnownAttestation(v types.ValidatorIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.knownAtts, v)
	return nil
}

func (s *Store) GetLatestNewAttestation(v types.ValidatorIndex) (*types.SignedAttestation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.newAtts[v]
	return a, ok, nil
}

func (s *Store) PutLatestNewAttestation(v types.ValidatorIndex, att *types.SignedAttestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newAtts[v] = att
	return nil
}

func (s *Store) DeleteLatestNewAttestation(v types.ValidatorIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.newAtts, v)
	return nil
}

func (s *Store) DrainLatestNewAttestations() (map[types.ValidatorIndex]*types.SignedAttestation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.newAtts
	s.newAtts = make(map[types.ValidatorIndex]*types.SignedAttestation)
	return drained, nil
}

func (s *Store) AllLatestNewAttestations() (map[types.ValidatorIndex]*types.SignedAttestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[types.ValidatorIndex]*types.SignedAttestation, len(s.newAtts))
	for k, v := range s.newAtts {
		cp[k] = v
	}
	return cp, nil
}

func (s *Store) AllLatestKnownAttestations() (map[types.ValidatorIndex]*types.SignedAttestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make(map[types.ValidatorIndex]*types.SignedAttestation, len(s.knownAtts))
	for k, v := range s.knownAtts {
		cp[k] = v
	}
	return cp, nil
}

func (s *Store) GetLatestJustified() (types.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestJustified, nil
}

func (s *Store) SetLatestJustified(cp types.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestJustified = cp
	return nil
}

func (s *Store) GetLatestFinalized() (types.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestFinalized, nil
}

func (s *Store) SetLatestFinalized(cp types.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestFinalized = cp
	return nil
}

func (s *Store) GetHead() (types.Root, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.head == nil {
		return types.Root{}, false, nil
	}
	return *s.head, true, nil
}

func (s *Store) SetHead(root types.Root) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = &root
	return nil
}

func (s *Store) GetSafeTarget() (types.Root, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.safeTarget == nil {
		return types.Root{}, false, nil
	}
	return *s.safeTarget, true, nil
}

func (s *Store) SetSafeTarget(root types.Root) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.safeTarget = &root
	return nil
}

func (s *Store) GetTime() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.time, nil
}

func (s *Store) SetTime(t uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.time = t
	return nil
}

func (s *Store) Close() error { return nil }
