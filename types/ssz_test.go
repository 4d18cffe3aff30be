package types

import (
	"bytes"
	"testing"
)

// roundTrip marshals v, unmarshals into a fresh zero value of the same
// underlying layout via the supplied unmarshal func, and returns the
// marshaled bytes for further comparison.
func roundTripCheckpoint(t *testing.T, c Checkpoint) {
	t.Helper()
	buf, err := c.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ: %v", err)
	}
	var got Checkpoint
	if err := got.UnmarshalSSZ(buf); err != nil {
		t.Fatalf("UnmarshalSSZ: %v", err)
	}
	if got != c {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
	}

	root1, err := c.HashTreeRoot()
	if err != nil {
		t.Fatalf("HashTreeRoot: %v", err)
	}
	root2, err := got.HashTreeRoot()
	if err != nil {
		t.Fatalf("HashTreeRoot (round tripped): %v", err)
	}
	if root1 != root2 {
		t.Errorf("HashTreeRoot not stable across round trip: %x != %x", root1, root2)
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	roundTripCheckpoint(t, Checkpoint{})
	roundTripCheckpoint(t, Checkpoint{Root: Root{1, 2, 3}, Slot: 42})
}

func TestAttestationData_RoundTrip(t *testing.T) {
	data := AttestationData{
		Slot:   7,
		Head:   Checkpoint{Root: Root{0xAA}, Slot: 7},
		Target: Checkpoint{Root: Root{0xBB}, Slot: 5},
		Source: Checkpoint{Root: Root{0xCC}, Slot: 3},
	}
	buf, err := data.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ: %v", err)
	}
	var got AttestationData
	if err := got.UnmarshalSSZ(buf); err != nil {
		t.Fatalf("UnmarshalSSZ: %v", err)
	}
	if got != data {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, data)
	}

	root1, err := data.HashTreeRoot()
	if err != nil {
		t.Fatalf("HashTreeRoot: %v", err)
	}
	root2, err := got.HashTreeRoot()
	if err != nil {
		t.Fatalf("HashTreeRoot (round tripped): %v", err)
	}
	if root1 != root2 {
		t.Errorf("HashTreeRoot not stable across round trip: %x != %x", root1, root2)
	}
}

func TestSignedAttestation_RoundTrip(t *testing.T) {
	att := SignedAttestation{
		Message: Attestation{
			ValidatorID: 3,
			Data: AttestationData{
				Slot:   9,
				Head:   Checkpoint{Slot: 9},
				Target: Checkpoint{Slot: 8},
				Source: Checkpoint{Slot: 5},
			},
		},
	}
	att.Signature[0] = 0xFE

	buf, err := att.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ: %v", err)
	}
	var got SignedAttestation
	if err := got.UnmarshalSSZ(buf); err != nil {
		t.Fatalf("UnmarshalSSZ: %v", err)
	}
	if got != att {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, att)
	}
}

func TestBlock_RoundTrip(t *testing.T) {
	block := Block{
		Slot:          12,
		ProposerIndex: 2,
		ParentRoot:    Root{1},
		StateRoot:     Root{2},
		Body: BlockBody{
			Attestations: []Attestation{
				{ValidatorID: 0, Data: AttestationData{Slot: 11}},
				{ValidatorID: 1, Data: AttestationData{Slot: 11}},
			},
		},
	}

	buf, err := block.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ: %v", err)
	}
	var got Block
	if err := got.UnmarshalSSZ(buf); err != nil {
		t.Fatalf("UnmarshalSSZ: %v", err)
	}
	if len(got.Body.Attestations) != len(block.Body.Attestations) {
		t.Fatalf("attestation count = %d, want %d", len(got.Body.Attestations), len(block.Body.Attestations))
	}
	for i := range block.Body.Attestations {
		if got.Body.Attestations[i] != block.Body.Attestations[i] {
			t.Errorf("attestation %d mismatch: got %+v, want %+v", i, got.Body.Attestations[i], block.Body.Attestations[i])
		}
	}
	if got.Slot != block.Slot || got.ProposerIndex != block.ProposerIndex ||
		got.ParentRoot != block.ParentRoot || got.StateRoot != block.StateRoot {
		t.Errorf("block fixed fields mismatch: got %+v, want %+v", got, block)
	}

	root1, err := block.HashTreeRoot()
	if err != nil {
		t.Fatalf("HashTreeRoot: %v", err)
	}
	root2, err := got.HashTreeRoot()
	if err != nil {
		t.Fatalf("HashTreeRoot (round tripped): %v", err)
	}
	if root1 != root2 {
		t.Errorf("HashTreeRoot not stable across round trip: %x != %x", root1, root2)
	}
}

func TestBlockWithAttestation_RoundTrip(t *testing.T) {
	bwa := BlockWithAttestation{
		Block: Block{
			Slot:          4,
			ProposerIndex: 1,
			ParentRoot:    Root{9},
			StateRoot:     Root{8},
		},
		ProposerAttestation: Attestation{
			ValidatorID: 1,
			Data:        AttestationData{Slot: 4, Head: Checkpoint{Slot: 3}},
		},
	}

	buf, err := bwa.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ: %v", err)
	}
	var got BlockWithAttestation
	if err := got.UnmarshalSSZ(buf); err != nil {
		t.Fatalf("UnmarshalSSZ: %v", err)
	}
	if got.Block.Slot != bwa.Block.Slot || got.Block.ProposerIndex != bwa.Block.ProposerIndex ||
		got.Block.ParentRoot != bwa.Block.ParentRoot || got.Block.StateRoot != bwa.Block.StateRoot {
		t.Errorf("block fields mismatch: got %+v, want %+v", got.Block, bwa.Block)
	}
	if got.ProposerAttestation != bwa.ProposerAttestation {
		t.Errorf("proposer attestation mismatch: got %+v, want %+v", got.ProposerAttestation, bwa.ProposerAttestation)
	}
}

func TestSignedBlockWithAttestation_RoundTrip(t *testing.T) {
	signed := SignedBlockWithAttestation{
		Message: BlockWithAttestation{
			Block: Block{
				Slot:          6,
				ProposerIndex: 2,
				Body: BlockBody{
					Attestations: []Attestation{
						{ValidatorID: 0, Data: AttestationData{Slot: 5}},
						{ValidatorID: 1, Data: AttestationData{Slot: 5}},
					},
				},
			},
			ProposerAttestation: Attestation{ValidatorID: 2, Data: AttestationData{Slot: 6}},
		},
		// One signature per body attestation plus the proposer's own.
		Signature: []Signature{{0x01}, {0x02}, {0x03}},
	}

	buf, err := signed.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ: %v", err)
	}
	var got SignedBlockWithAttestation
	if err := got.UnmarshalSSZ(buf); err != nil {
		t.Fatalf("UnmarshalSSZ: %v", err)
	}
	if len(got.Signature) != len(signed.Signature) {
		t.Fatalf("signature count = %d, want %d", len(got.Signature), len(signed.Signature))
	}
	for i := range signed.Signature {
		if !bytes.Equal(got.Signature[i][:], signed.Signature[i][:]) {
			t.Errorf("signature %d mismatch", i)
		}
	}
	if len(got.Message.Block.Body.Attestations) != len(signed.Message.Block.Body.Attestations) {
		t.Errorf("body attestation count = %d, want %d",
			len(got.Message.Block.Body.Attestations), len(signed.Message.Block.Body.Attestations))
	}

	root1, err := signed.HashTreeRoot()
	if err != nil {
		t.Fatalf("HashTreeRoot: %v", err)
	}
	root2, err := got.HashTreeRoot()
	if err != nil {
		t.Fatalf("HashTreeRoot (round tripped): %v", err)
	}
	if root1 != root2 {
		t.Errorf("HashTreeRoot not stable across round trip: %x != %x", root1, root2)
	}
}

// TestSignedBlockWithAttestation_SignatureCountMatchesAttestations pins the
// invariant documented on SignedBlockWithAttestation: the signature list
// holds exactly one entry per body attestation plus the proposer's own, so
// its length must equal len(Body.Attestations)+1.
func TestSignedBlockWithAttestation_SignatureCountMatchesAttestations(t *testing.T) {
	cases := []struct {
		name         string
		attestations int
	}{
		{"no body attestations", 0},
		{"one body attestation", 1},
		{"several body attestations", 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			atts := make([]Attestation, tc.attestations)
			for i := range atts {
				atts[i] = Attestation{ValidatorID: uint64(i), Data: AttestationData{Slot: 1}}
			}
			sigs := make([]Signature, tc.attestations+1)

			signed := SignedBlockWithAttestation{
				Message: BlockWithAttestation{
					Block: Block{Slot: 1, Body: BlockBody{Attestations: atts}},
				},
				Signature: sigs,
			}

			if len(signed.Signature) != len(signed.Message.Block.Body.Attestations)+1 {
				t.Fatalf("signature count = %d, want %d", len(signed.Signature), len(signed.Message.Block.Body.Attestations)+1)
			}

			buf, err := signed.MarshalSSZ()
			if err != nil {
				t.Fatalf("MarshalSSZ: %v", err)
			}
			var got SignedBlockWithAttestation
			if err := got.UnmarshalSSZ(buf); err != nil {
				t.Fatalf("UnmarshalSSZ: %v", err)
			}
			if len(got.Signature) != len(got.Message.Block.Body.Attestations)+1 {
				t.Errorf("round-tripped signature count = %d, want %d",
					len(got.Signature), len(got.Message.Block.Body.Attestations)+1)
			}
		})
	}
}

func TestSignedBlockWithAttestation_RejectsOversizedSignatureList(t *testing.T) {
	signed := SignedBlockWithAttestation{
		Signature: make([]Signature, MaxAttestationsPerBlock+2),
	}
	if _, err := signed.MarshalSSZ(); err == nil {
		t.Error("expected MarshalSSZ to reject a signature list beyond MaxAttestationsPerBlock+1")
	}
}

func TestValidator_RoundTrip(t *testing.T) {
	v := Validator{Index: 9}
	v.Pubkey[0] = 0x01
	v.Pubkey[51] = 0xFF

	buf, err := v.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ: %v", err)
	}
	var got Validator
	if err := got.UnmarshalSSZ(buf); err != nil {
		t.Fatalf("UnmarshalSSZ: %v", err)
	}
	if got != v {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, v)
	}
}

func TestBlockHeader_RoundTrip(t *testing.T) {
	h := BlockHeader{
		Slot:          3,
		ProposerIndex: 1,
		ParentRoot:    Root{1},
		StateRoot:     Root{2},
		BodyRoot:      Root{3},
	}
	buf, err := h.MarshalSSZ()
	if err != nil {
		t.Fatalf("MarshalSSZ: %v", err)
	}
	var got BlockHeader
	if err := got.UnmarshalSSZ(buf); err != nil {
		t.Fatalf("UnmarshalSSZ: %v", err)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}
