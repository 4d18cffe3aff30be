package statetransition

import (
	"testing"

	"github.com/geanlabs/gean/types"
)

func genesisState(t *testing.T, numValidators int) *types.State {
	t.Helper()
	validators := make([]types.Validator, numValidators)
	for i := range validators {
		validators[i] = types.Validator{Index: types.ValidatorIndex(i)}
	}
	return &types.State{
		Config:     types.Config{GenesisTime: 0},
		Validators: validators,
	}
}

// S1 — Genesis only.
func TestProcessSlotsFromGenesis(t *testing.T) {
	s := genesisState(t, 10)

	next, err := ProcessSlots(s, 5)
	if err != nil {
		t.Fatalf("ProcessSlots: %v", err)
	}
	if next.Slot != 5 {
		t.Fatalf("slot = %d, want 5", next.Slot)
	}
	genesisRoot, err := s.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash genesis: %v", err)
	}
	if next.LatestBlockHeader.StateRoot != genesisRoot {
		t.Fatalf("state_root = %x, want genesis root %x", next.LatestBlockHeader.StateRoot, genesisRoot)
	}
	if len(next.HistoricalBlockHashes) != 0 {
		t.Fatalf("historical_block_hashes should be empty, got %d entries", len(next.HistoricalBlockHashes))
	}
	if len(next.JustifiedSlots) != 0 {
		t.Fatalf("justified_slots should be empty, got %d bytes", len(next.JustifiedSlots))
	}
}

func TestProcessSlotsRejectsNonAdvancingTarget(t *testing.T) {
	s := genesisState(t, 4)
	s.Slot = 3
	if _, err := ProcessSlots(s, 3); err == nil {
		t.Fatal("expected error advancing to the current slot")
	}
}

// S2 — First block.
func TestProcessBlockHeaderFirstBlock(t *testing.T) {
	s := genesisState(t, 10)
	s, err := ProcessSlots(s, 1)
	if err != nil {
		t.Fatalf("ProcessSlots: %v", err)
	}

	parentRoot, err := s.LatestBlockHeader.HashTreeRoot()
	if err != nil {
		t.Fatalf("hash header: %v", err)
	}

	block := &types.Block{
		Slot:          1,
		ProposerIndex: 1,
		ParentRoot:    parentRoot,
	}

	next, err := ProcessBlockHeader(s, block)
	if err != nil {
		t.Fatalf("ProcessBlockHeader: %v", err)
	}
	if next.LatestJustified.Root != parentRoot || next.LatestFinalized.Root != parentRoot {
		t.Fatalf("expected justified/finalized root == parent root")
	}
	if len(next.HistoricalBlockHashes) != 1 {
		t.Fatalf("historical_block_hashes length = %d, want 1", len(next.HistoricalBlockHashes))
	}
	if !types.GetBit(next.JustifiedSlots, 0) {
		t.Fatal("bit 0 of justified_slots should be set")
	}
}

func TestProcessBlockHeaderWrongProposer(t *testing.T) {
	s := genesisState(t, 4)
	s, _ = ProcessSlots(s, 1)
	parentRoot, _ := s.LatestBlockHeader.HashTreeRoot()
	block := &types.Block{Slot: 1, ProposerIndex: 2, ParentRoot: parentRoot}
	if _, err := ProcessBlockHeader(s, block); err == nil {
		t.Fatal("expected wrong-proposer error")
	}
}

// S3 — Supermajority justification.
func TestProcessAttestationsSupermajority(t *testing.T) {
	s := genesisState(t, 10)

	// Advance through slots 1, 4, 5 leaving gaps so slot 4 has a real
	// historical hash to vote for.
	s, err := ProcessSlots(s, 1)
	if err != nil {
		t.Fatalf("ProcessSlots: %v", err)
	}
	parentRoot, _ := s.LatestBlockHeader.HashTreeRoot()
	block1 := &types.Block{Slot: 1, ProposerIndex: 1, ParentRoot: parentRoot}
	s, err = ProcessBlockHeader(s, block1)
	if err != nil {
		t.Fatalf("ProcessBlockHeader(1): %v", err)
	}

	s, err = ProcessSlots(s, 4)
	if err != nil {
		t.Fatalf("ProcessSlots to 4: %v", err)
	}
	parentRoot, _ = s.LatestBlockHeader.HashTreeRoot()
	block4 := &types.Block{Slot: 4, ProposerIndex: 4, ParentRoot: parentRoot}
	s, err = ProcessBlockHeader(s, block4)
	if err != nil {
		t.Fatalf("ProcessBlockHeader(4): %v", err)
	}

	s, err = ProcessSlots(s, 5)
	if err != nil {
		t.Fatalf("ProcessSlots to 5: %v", err)
	}
	parentRoot, _ = s.LatestBlockHeader.HashTreeRoot()
	block5 := &types.Block{Slot: 5, ProposerIndex: 5, ParentRoot: parentRoot}
	s, err = ProcessBlockHeader(s, block5)
	if err != nil {
		t.Fatalf("ProcessBlockHeader(5): %v", err)
	}

	slot4Root := s.HistoricalBlockHashes[4]
	genesisCheckpoint := types.Checkpoint{Root: s.LatestJustified.Root, Slot: 0}
	slot4Checkpoint := types.Checkpoint{Root: slot4Root, Slot: 4}

	var atts []types.Attestation
	for i := 0; i < 7; i++ {
		atts = append(atts, types.Attestation{
			ValidatorID: uint64(i),
			Data: types.AttestationData{
				Slot:   4,
				Target: slot4Checkpoint,
				Source: genesisCheckpoint,
			},
		})
	}

	next, err := ProcessAttestations(s, atts)
	if err != nil {
		t.Fatalf("ProcessAttestations: %v", err)
	}
	if next.LatestJustified != slot4Checkpoint {
		t.Fatalf("latest_justified = %+v, want %+v", next.LatestJustified, slot4Checkpoint)
	}
	if !types.GetBit(next.JustifiedSlots, 4) {
		t.Fatal("justified_slots[4] should be set")
	}
	if next.LatestFinalized.Root != genesisCheckpoint.Root {
		t.Fatalf("latest_finalized = %+v, want genesis checkpoint", next.LatestFinalized)
	}
}

func TestIsJustifiableReflexiveAndNearRule(t *testing.T) {
	if !IsJustifiable(10, 10) {
		t.Fatal("IsJustifiable must be reflexive")
	}
	if IsJustifiable(10, 9) {
		t.Fatal("candidate before finalized must not be justifiable")
	}
	for d := types.Slot(0); d <= 5; d++ {
		if !IsJustifiable(10, 10+d) {
			t.Fatalf("delta %d <= 5 must be justifiable", d)
		}
	}
}
