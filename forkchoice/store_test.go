package forkchoice

import (
	"testing"

	"github.com/geanlabs/gean/config"
	"github.com/geanlabs/gean/sig"
	"github.com/geanlabs/gean/storage/memory"
	"github.com/geanlabs/gean/types"
)

func makeTestValidators(n uint64) []types.Validator {
	validators := make([]types.Validator, n)
	for i := uint64(0); i < n; i++ {
		validators[i] = types.Validator{Index: types.ValidatorIndex(i)}
	}
	return validators
}

func genesisAnchor(t *testing.T, numValidators uint64) (*types.State, *types.SignedBlockWithAttestation) {
	t.Helper()
	state, block, err := config.GenerateGenesis(1000000000, makeTestValidators(numValidators))
	if err != nil {
		t.Fatalf("GenerateGenesis: %v", err)
	}
	signed := &types.SignedBlockWithAttestation{Message: types.BlockWithAttestation{Block: *block}}
	return state, signed
}

// setupTestStore creates a store from genesis for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	state, signed := genesisAnchor(t, 8)
	store, err := NewStore(memory.New(), state, signed)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

// buildValidBlock creates a valid block at the given slot over the store's
// current head state, with a correctly computed state root.
func buildValidBlock(t *testing.T, store *Store, slot types.Slot) *types.Block {
	t.Helper()

	headRoot, err := store.GetHead()
	if err != nil {
		t.Fatalf("GetHead: %v", err)
	}
	headState, ok, err := store.GetState(headRoot)
	if err != nil || !ok {
		t.Fatalf("GetState: ok=%v err=%v", ok, err)
	}

	proposer := types.ValidatorIndex(uint64(slot) % uint64(len(headState.Validators)))
	block, _, err := buildBlock(headState, slot, proposer, nil)
	if err != nil {
		t.Fatalf("buildBlock at slot %d: %v", slot, err)
	}
	return block
}

func signedFor(block *types.Block) *types.SignedBlockWithAttestation {
	return &types.SignedBlockWithAttestation{
		Message:   types.BlockWithAttestation{Block: *block},
		Signature: make([]types.Signature, len(block.Body.Attestations)+1),
	}
}

func TestNewStore_Initialization(t *testing.T) {
	state, signed := genesisAnchor(t, 8)
	store, err := NewStore(memory.New(), state, signed)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	anchorRoot, _ := signed.Message.Block.HashTreeRoot()
	head, err := store.GetHead()
	if err != nil {
		t.Fatalf("GetHead: %v", err)
	}
	if head != anchorRoot {
		t.Error("head should be the anchor block root")
	}

	if has, _ := store.HasBlock(anchorRoot); !has {
		t.Error("anchor block should be stored")
	}

	if store.Config.GenesisTime != 1000000000 {
		t.Errorf("genesis time = %d, want 1000000000", store.Config.GenesisTime)
	}
}

func TestNewStore_AnchorMismatch(t *testing.T) {
	state, signed := genesisAnchor(t, 8)
	signed.Message.Block.StateRoot = types.Root{0xff} // corrupt the state root

	_, err := NewStore(memory.New(), state, signed)
	if err == nil {
		t.Error("expected error for anchor block state root mismatch")
	}
}

func TestStore_OnBlock_Valid(t *testing.T) {
	store := setupTestStore(t)

	block := buildValidBlock(t, store, 1)
	if err := store.OnBlock(signedFor(block), false); err != nil {
		t.Fatalf("OnBlock: %v", err)
	}

	blockRoot, _ := block.HashTreeRoot()

	if has, _ := store.HasBlock(blockRoot); !has {
		t.Error("block should be in store after processing")
	}
	if _, ok, _ := store.GetState(blockRoot); !ok {
		t.Error("state should be in store after processing")
	}
	head, err := store.GetHead()
	if err != nil {
		t.Fatalf("GetHead: %v", err)
	}
	if head != blockRoot {
		t.Error("head should update to the new block")
	}
}

func TestStore_OnBlock_DuplicateSkipped(t *testing.T) {
	store := setupTestStore(t)

	block := buildValidBlock(t, store, 1)
	if err := store.OnBlock(signedFor(block), false); err != nil {
		t.Fatalf("first OnBlock: %v", err)
	}
	if err := store.OnBlock(signedFor(block), false); err != nil {
		t.Fatalf("second OnBlock: %v", err)
	}
}

func TestStore_OnBlock_MissingParent(t *testing.T) {
	store := setupTestStore(t)

	block := &types.Block{
		Slot:          1,
		ProposerIndex: 1,
		ParentRoot:    types.Root{0xff}, // unknown parent
	}

	if err := store.OnBlock(signedFor(block), false); err == nil {
		t.Error("expected error for missing parent")
	}
}

func TestStore_OnBlock_InvalidStateRoot(t *testing.T) {
	store := setupTestStore(t)

	block := buildValidBlock(t, store, 1)
	block.StateRoot = types.Root{0xff} // corrupt state root

	if err := store.OnBlock(signedFor(block), false); err == nil {
		t.Error("expected error for invalid state root")
	}
}

func TestStore_HasBlock(t *testing.T) {
	store := setupTestStore(t)

	head, err := store.GetHead()
	if err != nil {
		t.Fatalf("GetHead: %v", err)
	}
	if has, _ := store.HasBlock(head); !has {
		t.Error("store should have the anchor block")
	}
	if has, _ := store.HasBlock(types.Root{0xff}); has {
		t.Error("store should not have unknown root")
	}
}

func TestStore_GetBlock(t *testing.T) {
	store := setupTestStore(t)

	head, _ := store.GetHead()
	block, ok, err := store.GetBlock(head)
	if err != nil || !ok {
		t.Fatalf("anchor block should exist: ok=%v err=%v", ok, err)
	}
	if block.Slot != 0 {
		t.Errorf("anchor block slot = %d, want 0", block.Slot)
	}

	_, ok, _ = store.GetBlock(types.Root{0xff})
	if ok {
		t.Error("unknown root should not exist")
	}
}

func TestStore_MultipleBlocks_HeadUpdates(t *testing.T) {
	store := setupTestStore(t)

	block1 := buildValidBlock(t, store, 1)
	if err := store.OnBlock(signedFor(block1), false); err != nil {
		t.Fatalf("OnBlock slot 1: %v", err)
	}
	block1Root, _ := block1.HashTreeRoot()
	if head, _ := store.GetHead(); head != block1Root {
		t.Error("head should be block at slot 1")
	}

	block2 := buildValidBlock(t, store, 2)
	if err := store.OnBlock(signedFor(block2), false); err != nil {
		t.Fatalf("OnBlock slot 2: %v", err)
	}
	block2Root, _ := block2.HashTreeRoot()
	if head, _ := store.GetHead(); head != block2Root {
		t.Error("head should be block at slot 2")
	}
}

// TestStore_OnBlock_SignatureCountMismatch pins S5: a signature list whose
// length doesn't equal len(body.attestations)+1 is rejected unconditionally,
// even when verifySignatures is false.
func TestStore_OnBlock_SignatureCountMismatch(t *testing.T) {
	store := setupTestStore(t)
	block := buildValidBlock(t, store, 1)

	signed := &types.SignedBlockWithAttestation{
		Message:   types.BlockWithAttestation{Block: *block},
		Signature: []types.Signature{}, // missing the lone proposer slot
	}
	if err := store.OnBlock(signed, false); err == nil {
		t.Error("expected signature-count mismatch to be rejected")
	}
}

// TestStore_OnBlock_VerifySignatures exercises on_block step 3: a correctly
// signed proposer attestation is accepted, a tampered one is rejected, once
// verifySignatures is requested.
func TestStore_OnBlock_VerifySignatures(t *testing.T) {
	var seed [32]byte
	seed[0] = 7
	pub, priv, err := sig.KeyGen(seed, 0, 1<<uint(sig.LifetimeTest.Height()), sig.LifetimeTest)
	if err != nil {
		t.Fatalf("KeyGen: %v", err)
	}

	validators := []types.Validator{{Index: 0, Pubkey: pub.Bytes()}}
	state, anchorBlock, err := config.GenerateGenesis(1000000000, validators)
	if err != nil {
		t.Fatalf("GenerateGenesis: %v", err)
	}
	anchorSigned := &types.SignedBlockWithAttestation{Message: types.BlockWithAttestation{Block: *anchorBlock}}
	store, err := NewStore(memory.New(), state, anchorSigned)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	block := buildValidBlock(t, store, 1)

	attData, err := store.ProduceAttestationData(1)
	if err != nil {
		t.Fatalf("ProduceAttestationData: %v", err)
	}
	proposerAtt := types.Attestation{ValidatorID: 0, Data: *attData}
	root, err := proposerAtt.HashTreeRoot()
	if err != nil {
		t.Fatalf("HashTreeRoot: %v", err)
	}
	otsSig, err := priv.Sign(uint64(proposerAtt.Data.Slot), root)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	signed := &types.SignedBlockWithAttestation{
		Message:   types.BlockWithAttestation{Block: *block, ProposerAttestation: proposerAtt},
		Signature: []types.Signature{otsSig.Bytes()},
	}
	if err := store.OnBlock(signed, true); err != nil {
		t.Fatalf("OnBlock with valid signature: %v", err)
	}

	filed, ok, err := store.db.GetLatestNewAttestation(0)
	if err != nil {
		t.Fatalf("GetLatestNewAttestation: %v", err)
	}
	if !ok {
		t.Fatal("expected proposer attestation to be filed into the new pool after OnBlock")
	}
	if filed.Message.Data.Target.Slot != proposerAtt.Data.Target.Slot {
		t.Error("filed attestation target does not match proposer attestation")
	}

	block2 := buildValidBlock(t, store, 2)
	attData2, err := store.ProduceAttestationData(2)
	if err != nil {
		t.Fatalf("ProduceAttestationData: %v", err)
	}
	tamperedAtt := types.Attestation{ValidatorID: 0, Data: *attData2}
	tampered := &types.SignedBlockWithAttestation{
		Message:   types.BlockWithAttestation{Block: *block2, ProposerAttestation: tamperedAtt},
		Signature: []types.Signature{otsSig.Bytes()}, // signature from slot 1, wrong epoch for slot 2
	}
	if err := store.OnBlock(tampered, true); err == nil {
		t.Error("expected signature verification to fail for a mismatched epoch")
	}
}
