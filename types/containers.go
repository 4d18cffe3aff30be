package types

// SSZ containers for the Lean Ethereum 3SF-mini consensus protocol.
// Field order is part of the wire format and must not be reordered.

// Checkpoint is an ancestor the chain commits to. The zero value is the
// default checkpoint used before any block has been justified/finalized.
type Checkpoint struct {
	Root Root `ssz-size:"32"`
	Slot Slot
}

// Config holds the chain-wide parameters fixed at genesis.
type Config struct {
	GenesisTime uint64
}

// Validator is a registry entry: a signature-scheme public key bound to a
// fixed index. The registry is append-only and ordered by index.
type Validator struct {
	Pubkey Pubkey `ssz-size:"52"`
	Index  ValidatorIndex
}

// AttestationData is a validator's observed view of the chain at a slot.
type AttestationData struct {
	Slot   Slot
	Head   Checkpoint
	Target Checkpoint
	Source Checkpoint
}

// Attestation pairs a validator identity with its observed chain view.
// Kept separate from AttestationData because the unsigned form travels
// inside a block body while the signed form travels over gossip.
type Attestation struct {
	ValidatorID uint64
	Data        AttestationData
}

// SignedAttestation is the gossip envelope for an Attestation. The signing
// domain is the tree-hash root of Message; the signing epoch is Data.Slot.
type SignedAttestation struct {
	Message   Attestation
	Signature Signature `ssz-size:"3112"`
}

// BlockHeader is the fixed-size spine of a block used for parent linking.
// StateRoot is zero immediately after ProcessBlockHeader and is filled in
// by the next ProcessSlots call.
type BlockHeader struct {
	Slot          Slot
	ProposerIndex uint64
	ParentRoot    Root `ssz-size:"32"`
	StateRoot     Root `ssz-size:"32"`
	BodyRoot      Root `ssz-size:"32"`
}

// BlockBody carries the block's variable-length payload. Attestations here
// are unsigned; their signatures travel in the enclosing envelope.
type BlockBody struct {
	Attestations []Attestation `ssz-max:"4096"`
}

// Block is a proposed consensus block.
type Block struct {
	Slot          Slot
	ProposerIndex uint64
	ParentRoot    Root `ssz-size:"32"`
	StateRoot     Root `ssz-size:"32"`
	Body          BlockBody
}

// BlockWithAttestation bundles a block with the proposer's own attestation,
// so the proposer's vote can be filed under distinct fork-choice semantics
// from the body's attestations (§4.E on_block step 7).
type BlockWithAttestation struct {
	Block               Block
	ProposerAttestation Attestation
}

// SignedBlockWithAttestation is the top-level block envelope on the wire.
// Signature holds one entry per body attestation followed by the
// proposer's own signature: [att_0, ..., att_n-1, proposer]. Its length
// must equal len(Body.Attestations)+1.
type SignedBlockWithAttestation struct {
	Message   BlockWithAttestation
	Signature []Signature `ssz-max:"4097" ssz-size:"?,3112"`
}

// State is the full Merkle-hashed consensus state.
//
// JustificationsRoots/JustificationsValidators together encode a logical
// map[Root]BitList[len(Validators)] — flattened for Merkle stability. See
// package statetransition's GetJustifications/SetJustifications for the
// inflate/flatten pair that hides this encoding from callers.
type State struct {
	Config Config

	Slot              Slot
	LatestBlockHeader BlockHeader

	LatestJustified Checkpoint
	LatestFinalized Checkpoint

	HistoricalBlockHashes []Root `ssz-max:"262144" ssz-size:"?,32"`
	JustifiedSlots        []byte `ssz:"bitlist" ssz-max:"262144"`

	Validators []Validator `ssz-max:"262144"`

	JustificationsRoots      []Root `ssz-max:"262144" ssz-size:"?,32"`
	JustificationsValidators []byte `ssz:"bitlist" ssz-max:"1073741824"` // HISTORICAL_ROOTS_LIMIT * VALIDATOR_REGISTRY_LIMIT
}
