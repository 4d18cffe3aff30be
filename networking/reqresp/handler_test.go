package reqresp

import (
	"testing"

	"github.com/geanlabs/gean/config"
	"github.com/geanlabs/gean/forkchoice"
	"github.com/geanlabs/gean/storage/memory"
	"github.com/geanlabs/gean/types"
)

func setupTestStore(t *testing.T) *forkchoice.Store {
	t.Helper()

	validators := make([]types.Validator, 4)
	for i := range validators {
		validators[i] = types.Validator{Index: types.ValidatorIndex(i)}
	}

	genesisState, genesisBlock, err := config.GenerateGenesis(1000, validators)
	if err != nil {
		t.Fatalf("GenerateGenesis failed: %v", err)
	}

	signed := &types.SignedBlockWithAttestation{Message: types.BlockWithAttestation{Block: *genesisBlock}}
	store, err := forkchoice.NewStore(memory.New(), genesisState, signed)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	return store
}

func TestGetStatus(t *testing.T) {
	store := setupTestStore(t)
	handler := NewHandler(store)

	status, err := handler.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}

	// Genesis state should have zero finalized slot
	if status.Finalized.Slot != 0 {
		t.Errorf("Finalized.Slot = %d, want 0", status.Finalized.Slot)
	}

	head, err := store.GetHead()
	if err != nil {
		t.Fatalf("GetHead: %v", err)
	}
	if status.Head.Root != head {
		t.Error("Head.Root does not match store head")
	}
}

func TestHandleBlocksByRoot(t *testing.T) {
	store := setupTestStore(t)
	handler := NewHandler(store)

	genesisRoot, err := store.GetHead()
	if err != nil {
		t.Fatalf("GetHead: %v", err)
	}

	request := &BlocksByRootRequest{
		Roots: []types.Root{genesisRoot},
	}

	blocks, err := handler.HandleBlocksByRoot(request)
	if err != nil {
		t.Fatalf("HandleBlocksByRoot: %v", err)
	}

	if len(blocks) != 1 {
		t.Errorf("Expected 1 block, got %d", len(blocks))
	}

	if blocks[0].Message.Block.Slot != 0 {
		t.Errorf("Block slot = %d, want 0", blocks[0].Message.Block.Slot)
	}
}

func TestHandleBlocksByRootUnknown(t *testing.T) {
	store := setupTestStore(t)
	handler := NewHandler(store)

	unknownRoot := types.Root{1, 2, 3}

	request := &BlocksByRootRequest{
		Roots: []types.Root{unknownRoot},
	}

	blocks, err := handler.HandleBlocksByRoot(request)
	if err != nil {
		t.Fatalf("HandleBlocksByRoot: %v", err)
	}

	if len(blocks) != 0 {
		t.Errorf("Expected 0 blocks for unknown root, got %d", len(blocks))
	}
}

func TestValidatePeerStatus(t *testing.T) {
	store := setupTestStore(t)
	handler := NewHandler(store)

	head, err := store.GetHead()
	if err != nil {
		t.Fatalf("GetHead: %v", err)
	}

	validStatus := &Status{
		Finalized: types.Checkpoint{Root: types.Root{}, Slot: 0},
		Head:      types.Checkpoint{Root: head, Slot: 0},
	}

	if err := handler.ValidatePeerStatus(validStatus); err != nil {
		t.Errorf("ValidatePeerStatus failed for valid status: %v", err)
	}
}
