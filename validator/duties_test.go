package validator

import (
	"context"
	"testing"

	"github.com/geanlabs/gean/chain"
	"github.com/geanlabs/gean/config"
	"github.com/geanlabs/gean/forkchoice"
	"github.com/geanlabs/gean/sig"
	"github.com/geanlabs/gean/storage/memory"
	"github.com/geanlabs/gean/types"
)

const numTestValidators = 4

func makeTestKeystores(t *testing.T, n uint64) ([]Keystore, []types.Validator) {
	t.Helper()
	keystores := make([]Keystore, n)
	validators := make([]types.Validator, n)
	for i := uint64(0); i < n; i++ {
		var seed [32]byte
		seed[0] = byte(i)
		pub, priv, err := sig.KeyGen(seed, 0, 1<<uint(sig.LifetimeTest.Height()), sig.LifetimeTest)
		if err != nil {
			t.Fatalf("KeyGen validator %d: %v", i, err)
		}
		validators[i] = types.Validator{Index: types.ValidatorIndex(i), Pubkey: pub.Bytes()}
		keystores[i] = Keystore{Index: types.ValidatorIndex(i), PublicKey: pub, PrivateKey: priv}
	}
	return keystores, validators
}

func setupTestDuties(t *testing.T) (*Duties, *chain.Service) {
	t.Helper()
	keystores, validators := makeTestKeystores(t, numTestValidators)

	const genesisTime = 1000000000
	state, block, err := config.GenerateGenesis(genesisTime, validators)
	if err != nil {
		t.Fatalf("GenerateGenesis: %v", err)
	}
	signed := &types.SignedBlockWithAttestation{Message: types.BlockWithAttestation{Block: *block}}

	fc, err := forkchoice.NewStore(memory.New(), state, signed)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	chainSvc := chain.NewService(fc, nil, genesisTime, nil)
	chainSvc.Start(context.Background())
	t.Cleanup(chainSvc.Stop)

	duties := New(keystores, chainSvc, genesisTime, nil)
	return duties, chainSvc
}

func TestHasProposal(t *testing.T) {
	duties, _ := setupTestDuties(t)

	// slot 1 mod 4 validators == validator 1, which is in our keystore set.
	if !duties.HasProposal(numTestValidators, 1) {
		t.Error("expected validator 1 to have the proposal for slot 1")
	}
	if duties.HasProposal(0, 1) {
		t.Error("HasProposal with zero validators should be false")
	}
}

func TestHasProposal_WiredIntoChainService(t *testing.T) {
	duties, chainSvc := setupTestDuties(t)
	if chainSvc.HasProposal == nil {
		t.Fatal("New should wire HasProposal into the chain service")
	}
	if !chainSvc.HasProposal(1) {
		t.Error("chain service HasProposal callback should delegate to duties.HasProposal")
	}
	_ = duties
}

func TestTryPropose_AdvancesHead(t *testing.T) {
	duties, chainSvc := setupTestDuties(t)
	ctx := context.Background()

	duties.tryPropose(ctx, 1, numTestValidators)

	// Building attestation data for slot 2 exposes the current head as seen
	// by the store; it should now point at the slot 1 block just proposed,
	// not at genesis (slot 0).
	attData, err := chainSvc.BuildAttestationData(ctx, 2)
	if err != nil {
		t.Fatalf("BuildAttestationData: %v", err)
	}
	if attData.Head.Slot != 1 {
		t.Errorf("head slot after tryPropose = %d, want 1", attData.Head.Slot)
	}
}

func TestTryPropose_NoOpWhenNoLocalProposer(t *testing.T) {
	duties, chainSvc := setupTestDuties(t)
	ctx := context.Background()

	// Restrict to a keystore set that never proposes slot 1 (validator 1 is
	// the slot 1 proposer; drop it).
	duties.Keystores = []Keystore{duties.Keystores[0], duties.Keystores[2], duties.Keystores[3]}

	duties.tryPropose(ctx, 1, numTestValidators)

	attData, err := chainSvc.BuildAttestationData(ctx, 2)
	if err != nil {
		t.Fatalf("BuildAttestationData: %v", err)
	}
	if attData.Head.Slot != 0 {
		t.Errorf("head slot = %d, want 0 (no block should have been proposed)", attData.Head.Slot)
	}
}

func TestTryAttest_SkipsTheSlotProposer(t *testing.T) {
	duties, chainSvc := setupTestDuties(t)
	ctx := context.Background()

	duties.tryPropose(ctx, 1, numTestValidators)
	// Should not panic or error even though validator 1 (this slot's
	// proposer) is skipped internally.
	duties.tryAttest(ctx, 1, numTestValidators)

	n, err := chainSvc.NumValidators(ctx)
	if err != nil {
		t.Fatalf("NumValidators: %v", err)
	}
	if n != numTestValidators {
		t.Fatalf("NumValidators = %d, want %d", n, numTestValidators)
	}
}

func TestOnInterval_DispatchesByInterval(t *testing.T) {
	duties, chainSvc := setupTestDuties(t)
	ctx := context.Background()

	duties.OnInterval(ctx, 1, 0, numTestValidators) // propose
	duties.OnInterval(ctx, 1, 1, numTestValidators) // attest
	duties.OnInterval(ctx, 1, 2, numTestValidators) // no-op for validator duties

	attData, err := chainSvc.BuildAttestationData(ctx, 2)
	if err != nil {
		t.Fatalf("BuildAttestationData: %v", err)
	}
	if attData.Head.Slot != 1 {
		t.Errorf("head slot after OnInterval(0) = %d, want 1", attData.Head.Slot)
	}
}
