// Package validator runs the per-slot proposer/attester duty loop for a set
// of locally held keystores, grounded on geanlabs-gean/node/validator.go's
// ValidatorDuties (HasProposal, OnInterval) and original_source/crates/
// common/validator/lean/src/service.rs's per-slot duty dispatch. Signing
// uses sig.Sign (component A) in place of the teacher's unsigned
// placeholder envelopes.
package validator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geanlabs/gean/chain"
	"github.com/geanlabs/gean/sig"
	"github.com/geanlabs/gean/types"
)

// Keystore is one locally controlled validator's signing material.
type Keystore struct {
	Index      types.ValidatorIndex
	PublicKey  sig.PublicKey
	PrivateKey *sig.PrivateKey
}

// Duties drives proposer and attester duties for a set of local keystores
// on the chain service's tick cadence.
type Duties struct {
	Keystores   []Keystore
	Chain       *chain.Service
	GenesisTime uint64
	Logger      *slog.Logger
}

// New creates a duty scheduler over keystores, driven by chainSvc, and wires
// itself in as chainSvc's HasProposal callback so the fork-choice tick table
// knows when this node is about to propose.
func New(keystores []Keystore, chainSvc *chain.Service, genesisTime uint64, logger *slog.Logger) *Duties {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Duties{Keystores: keystores, Chain: chainSvc, GenesisTime: genesisTime, Logger: logger}
	chainSvc.HasProposal = func(slot types.Slot) bool {
		numValidators, err := chainSvc.NumValidators(context.Background())
		if err != nil {
			return false
		}
		return d.HasProposal(numValidators, slot)
	}
	return d
}

// HasProposal reports whether one of these keystores proposes at slot,
// wired into chain.Service.HasProposal so the tick loop can compute
// forkchoice's has_proposal flag without the chain package knowing about
// key material.
func (d *Duties) HasProposal(numValidators uint64, slot types.Slot) bool {
	if numValidators == 0 {
		return false
	}
	proposer := types.ValidatorIndex(uint64(slot) % numValidators)
	for _, ks := range d.Keystores {
		if ks.Index == proposer {
			return true
		}
	}
	return false
}

// OnInterval executes validator duties for the current slot and tick,
// grounded on ValidatorDuties.OnInterval: tick%4==0 proposes, tick%4==1
// attests.
func (d *Duties) OnInterval(ctx context.Context, slot types.Slot, interval uint64, numValidators uint64) {
	switch interval {
	case 0:
		d.tryPropose(ctx, slot, numValidators)
	case 1:
		d.tryAttest(ctx, slot, numValidators)
	}
}

func (d *Duties) tryPropose(ctx context.Context, slot types.Slot, numValidators uint64) {
	if slot == 0 || numValidators == 0 {
		return
	}
	proposerIdx := types.ValidatorIndex(uint64(slot) % numValidators)

	for _, ks := range d.Keystores {
		if ks.Index != proposerIdx {
			continue
		}

		block, err := d.Chain.ProduceBlock(ctx, slot, ks.Index)
		if err != nil {
			d.Logger.Error("propose: produce block failed", "slot", slot, "proposer", ks.Index, "error", err)
			return
		}

		attData, err := d.Chain.BuildAttestationData(ctx, slot)
		if err != nil {
			d.Logger.Error("propose: build attestation data failed", "slot", slot, "error", err)
			return
		}
		proposerAtt := types.Attestation{ValidatorID: uint64(ks.Index), Data: *attData}

		signatures := make([]types.Signature, len(block.Body.Attestations)+1)
		for i, a := range block.Body.Attestations {
			sigBytes, err := signAttestation(ks, a)
			if err != nil {
				d.Logger.Error("propose: sign body attestation failed", "slot", slot, "index", i, "error", err)
				return
			}
			signatures[i] = sigBytes
		}
		proposerSigBytes, err := signAttestation(ks, proposerAtt)
		if err != nil {
			d.Logger.Error("propose: sign proposer attestation failed", "slot", slot, "error", err)
			return
		}
		signatures[len(signatures)-1] = proposerSigBytes

		signedBlock := &types.SignedBlockWithAttestation{
			Message: types.BlockWithAttestation{
				Block:               *block,
				ProposerAttestation: proposerAtt,
			},
			Signature: signatures,
		}

		d.Chain.ProcessBlock(ctx, signedBlock, true)
		d.Logger.Info("proposed block", "slot", slot, "proposer", ks.Index, "attestations", len(block.Body.Attestations))
		return
	}
}

func (d *Duties) tryAttest(ctx context.Context, slot types.Slot, numValidators uint64) {
	if slot == 0 || numValidators == 0 {
		return
	}
	proposerIdx := types.ValidatorIndex(uint64(slot) % numValidators)

	for _, ks := range d.Keystores {
		// The proposer already attested via ProposerAttestation at tick 0.
		if ks.Index == proposerIdx {
			continue
		}

		attData, err := d.Chain.BuildAttestationData(ctx, slot)
		if err != nil {
			d.Logger.Error("attest: build attestation data failed", "slot", slot, "validator", ks.Index, "error", err)
			continue
		}
		att := types.Attestation{ValidatorID: uint64(ks.Index), Data: *attData}

		sigBytes, err := signAttestation(ks, att)
		if err != nil {
			d.Logger.Error("attest: sign failed", "slot", slot, "validator", ks.Index, "error", err)
			continue
		}

		signed := &types.SignedAttestation{Message: att, Signature: sigBytes}
		d.Chain.ProcessAttestation(ctx, signed, true)
		d.Logger.Debug("attested", "slot", slot, "validator", ks.Index, "target_slot", att.Data.Target.Slot)
	}
}

// signAttestation signs att's tree-hash root at epoch = att.Data.Slot, the
// signing domain documented on types.SignedAttestation.
func signAttestation(ks Keystore, att types.Attestation) (types.Signature, error) {
	root, err := att.HashTreeRoot()
	if err != nil {
		return types.Signature{}, fmt.Errorf("validator: hash attestation: %w", err)
	}
	s, err := ks.PrivateKey.Sign(uint64(att.Data.Slot), root)
	if err != nil {
		return types.Signature{}, fmt.Errorf("validator: sign attestation: %w", err)
	}
	return s.Bytes(), nil
}
