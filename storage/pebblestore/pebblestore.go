// Package pebblestore is the durable, crash-consistent storage.Store
// backend, grounded on geanlabs-gean/storage's table-interface shape and
// backed by github.com/cockroachdb/pebble — an embedded, WAL-backed
// key-value store that already gives the atomic-batch and fsync-on-commit
// guarantees SPEC_FULL.md §4.C asks for. Every table is a distinct key
// prefix within one pebble.DB; blobs are length-implicit SSZ payloads
// (pebble itself stores the value length), matching §6's "length-prefixed
// SSZ payloads" framing at the store-file level.
package pebblestore

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/geanlabs/gean/storage"
	"github.com/geanlabs/gean/types"
)

const (
	prefixBlock       = "b/"
	prefixState       = "s/"
	prefixSlotIndex   = "i/"
	prefixStateRoot   = "r/"
	prefixKnownAtt    = "ak/"
	prefixNewAtt      = "an/"
	fieldJustified    = "f/justified"
	fieldFinalized    = "f/finalized"
	fieldHead         = "f/head"
	fieldSafeTarget   = "f/safe_target"
	fieldTime         = "f/time"
)

type Store struct {
	db *pebble.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if absent) a pebble-backed store rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebblestore: open %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func rootKey(prefix string, root types.Root) []byte {
	return append([]byte(prefix), root[:]...)
}

func slotKey(slot types.Slot) []byte {
	k := make([]byte, len(prefixSlotIndex)+8)
	copy(k, prefixSlotIndex)
	binary.BigEndian.PutUint64(k[len(prefixSlotIndex):], uint64(slot))
	return k
}

func validatorKey(prefix string, v types.ValidatorIndex) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], uint64(v))
	return k
}

func (s *Store) get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	closer.Close()
	return out, true, nil
}

func (s *Store) PutBlock(root types.Root, signed *types.SignedBlockWithAttestation, state *types.State) error {
	blockBytes, err := signed.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("pebblestore: marshal block: %w", err)
	}
	stateBytes, err := state.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("pebblestore: marshal state: %w", err)
	}
	stateRoot, err := state.HashTreeRoot()
	if err != nil {
		return fmt.Errorf("pebblestore: hash state: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(rootKey(prefixBlock, root), blockBytes, nil); err != nil {
		return err
	}
	if err := batch.Set(rootKey(prefixState, root), stateBytes, nil); err != nil {
		return err
	}
	if err := batch.Set(slotKey(signed.Message.Block.Slot), root[:], nil); err != nil {
		return err
	}
	if err := batch.Set(rootKey(prefixStateRoot, stateRoot), root[:], nil); err != nil {
		return err
	}
	return s.db.Apply(batch, pebble.Sync)
}

func (s *Store) GetSignedBlock(root types.Root) (*types.SignedBlockWithAttestation, bool, error) {
	data, ok, err := s.get(rootKey(prefixBlock, root))
	if err != nil || !ok {
		return nil, ok, err
	}
	var out types.SignedBlockWithAttestation
	if err := out.UnmarshalSSZ(data); err != nil {
		return nil, false, fmt.Errorf("pebblestore: unmarshal block: %w", err)
	}
	return &out, true, nil
}

func (s *Store) GetState(root types.Root) (*types.State, bool, error) {
	data, ok, err := s.get(rootKey(prefixState, root))
	if err != nil || !ok {
		return nil, ok, err
	}
	var out types.State
	if err := out.UnmarshalSSZ(data); err != nil {
		return nil, false, fmt.Errorf("pebblestore: unmarshal state: %w", err)
	}
	return &out, true, nil
}

func (s *Store) HasBlock(root types.Root) (bool, error) {
	_, ok, err := s.get(rootKey(prefixBlock, root))
	return ok, err
}

func (s *Store) GetBlockRootBySlot(slot types.Slot) (types.Root, bool, error) {
	data, ok, err := s.get(slotKey(slot))
	if err != nil || !ok {
		return types.Root{}, ok, err
	}
	var root types.Root
	copy(root[:], data)
	return root, true, nil
}

func (s *Store) GetBlockRootByStateRoot(stateRoot types.Root) (types.Root, bool, error) {
	data, ok, err := s.get(rootKey(prefixStateRoot, stateRoot))
	if err != nil || !ok {
		return types.Root{}, ok, err
	}
	var root types.Root
	copy(root[:], data)
	return root, true, nil
}

func (s *Store) ForEachSlot(fn func(slot types.Slot, root types.Root) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixSlotIndex),
		UpperBound: prefixUpperBound(prefixSlotIndex),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		slot := types.Slot(binary.BigEndian.Uint64(key[len(prefixSlotIndex):]))
		var root types.Root
		copy(root[:], iter.Value())
		if !fn(slot, root) {
			break
		}
	}
	return iter.Error()
}

func (s *Store) ForEachBlock(fn func(root types.Root, signed *types.SignedBlockWithAttestation) bool) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefixBlock),
		UpperBound: prefixUpperBound(prefixBlock),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		var root types.Root
		copy(root[:], iter.Key()[len(prefixBlock):])
		var signed types.SignedBlockWithAttestation
		if err := signed.UnmarshalSSZ(iter.Value()); err != nil {
			return fmt.Errorf("pebblestore: unmarshal block: %w", err)
		}
		if !fn(root, &signed) {
			break
		}
	}
	return iter.Error()
}

func prefixUpperBound(prefix string) []byte {
	b := []byte(prefix)
	out := append([]byte(nil), b...)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0 {
			return out
		}
	}
	return nil
}

func (s *Store) getAttestation(key []byte) (*types.SignedAttestation, bool, error) {
	data, ok, err := s.get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	var out types.SignedAttestation
	if err := out.UnmarshalSSZ(data); err != nil {
		return nil, false, fmt.Errorf("pebblestore: unmarshal attestation: %w", err)
	}
	return &out, true, nil
}

func (s *Store) putAttestation(key []byte, att *types.SignedAttestation) error {
	data, err := att.MarshalSSZ()
	if err != nil {
		return fmt.Errorf("pebblestore: marshal attestation: %w", err)
	}
	return s.db.Set(key, data, pebble.Sync)
}

func (s *Store) GetLatestKnownAttestation(v types.ValidatorIndex) (*types.SignedAttestation, bool, error) {
	return s.getAttestation(validatorKey(prefixKnownAtt, v))
}

func (s *Store) PutLatestKnownAttestation(v types.ValidatorIndex, att *types.SignedAttestation) error {
	return s.putAttestation(validatorKey(prefixKnownAtt, v), att)
}

func (s *Store) DeleteLatestKnownAttestation(v types.ValidatorIndex) error {
	return s.db.Delete(validatorKey(prefixKnownAtt, v), pebble.Sync)
}

func (s *Store) GetLatestNewAttestation(v types.ValidatorIndex) (*types.SignedAttestation, bool, error) {
	return s.getAttestation(validatorKey(prefixNewAtt, v))
}

func (s *Store) PutLatestNewAttestation(v types.ValidatorIndex, att *types.SignedAttestation) error {
	return s.putAttestation(validatorKey(prefixNewAtt, v), att)
}

func (s *Store) DeleteLatestNewAttestation(v types.ValidatorIndex) error {
	return s.db.Delete(validatorKey(prefixNewAtt, v), pebble.Sync)
}

func (s *Store) iterValidatorTable(prefix string) (map[types.ValidatorIndex]*types.SignedAttestation, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make(map[types.ValidatorIndex]*types.SignedAttestation)
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		v := types.ValidatorIndex(binary.BigEndian.Uint64(key[len(prefix):]))
		var att types.SignedAttestation
		if err := att.UnmarshalSSZ(iter.Value()); err != nil {
			return nil, fmt.Errorf("pebblestore: unmarshal attestation: %w", err)
		}
		out[v] = &att
	}
	return out, iter.Error()
}

func (s *Store) DrainLatestNewAttestations() (map[types.ValidatorIndex]*types.SignedAttestation, error) {
	drained, err := s.iterValidatorTable(prefixNewAtt)
	if err != nil {
		return nil, err
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	for v := range drained {
		if err := batch.Delete(validatorKey(prefixNewAtt, v), nil); err != nil {
			return nil, err
		}
	}
	if err := s.db.Apply(batch, pebble.Sync); err != nil {
		return nil, err
	}
	return drained, nil
}

func (s *Store) AllLatestNewAttestations() (map[types.ValidatorIndex]*types.SignedAttestation, error) {
	return s.iterValidatorTable(prefixNewAtt)
}

func (s *Store) AllLatestKnownAttestations() (map[types.ValidatorIndex]*types.SignedAttestation, error) {
	return s.iterValidatorTable(prefixKnownAtt)
}

func (s *Store) getCheckpoint(key string) (types.Checkpoint, error) {
	data, ok, err := s.get([]byte(key))
	if err != nil || !ok {
		return types.Checkpoint{}, err
	}
	var cp types.Checkpoint
	if err := cp.UnmarshalSSZ(data); err != nil {
		return types.Checkpoint{}, fmt.Errorf("pebblestore: unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

func (s *Store) setCheckpoint(key string, cp types.Checkpoint) error {
	data, err := cp.MarshalSSZ()
	if err != nil {
		return err
	}
	return s.db.Set([]byte(key), data, pebble.Sync)
}

func (s *Store) GetLatestJustified() (types.Checkpoint, error) { return s.getCheckpoint(fieldJustified) }
func (s *Store) SetLatestJustified(cp types.Checkpoint) error  { return s.setCheckpoint(fieldJustified, cp) }
func (s *Store) GetLatestFinalized() (types.Checkpoint, error) { return s.getCheckpoint(fieldFinalized) }
func (s *Store) SetLatestFinalized(cp types.Checkpoint) error  { return s.setCheckpoint(fieldFinalized, cp) }

func (s *Store) GetHead() (types.Root, bool, error) {
	data, ok, err := s.get([]byte(fieldHead))
	if err != nil || !ok {
		return types.Root{}, ok, err
	}
	var root types.Root
	copy(root[:], data)
	return root, true, nil
}

func (s *Store) SetHead(root types.Root) error {
	return s.db.Set([]byte(fieldHead), root[:], pebble.Sync)
}

func (s *Store) GetSafeTarget() (types.Root, bool, error) {
	data, ok, err := s.get([]byte(fieldSafeTarget))
	if err != nil || !ok {
		return types.Root{}, ok, err
	}
	var root types.Root
	copy(root[:], data)
	return root, true, nil
}

func (s *Store) SetSafeTarget(root types.Root) error {
	return s.db.Set([]byte(fieldSafeTarget), root[:], pebble.Sync)
}

func (s *Store) GetTime() (uint64, error) {
	data, ok, err := s.get([]byte(fieldTime))
	if err != nil || !ok {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

func (s *Store) SetTime(t uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], t)
	return s.db.Set([]byte(fieldTime), buf[:], pebble.Sync)
}
