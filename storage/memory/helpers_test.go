package memory

import (
	"testing"

	"github.com/geanlabs/gean/types"
)

func newTestSignedBlock(t *testing.T, slot types.Slot) *types.SignedBlockWithAttestation {
	t.Helper()
	return &types.SignedBlockWithAttestation{
		Message: types.BlockWithAttestation{
			Block: types.Block{
				Slot:          slot,
				ProposerIndex: uint64(slot) % 4,
				Body:          types.BlockBody{},
			},
			ProposerAttestation: types.Attestation{ValidatorID: uint64(slot) % 4},
		},
		Signature: []types.Signature{{}},
	}
}

func newTestState(t *testing.T, slot types.Slot) *types.State {
	t.Helper()
	return &types.State{
		Config:     types.Config{GenesisTime: 0},
		Slot:       slot,
		Validators: make([]types.Validator, 4),
	}
}

func newTestAttestation(t *testing.T, atSlot types.Slot) *types.SignedAttestation {
	t.Helper()
	return &types.SignedAttestation{
		Message: types.Attestation{
			Data: types.AttestationData{Slot: atSlot},
		},
	}
}
