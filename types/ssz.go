package types

import (
	"encoding/binary"
	"fmt"

	ssz "github.com/ferranbt/fastssz"

	bitfield "github.com/OffchainLabs/go-bitfield"
)

// Fixed SSZ sizes for the containers in this package. Containers that hold
// only fixed-size fields are themselves fixed size; anything holding a
// List[...] or Bitlist[...] is variable size and carries a 4-byte offset
// in its parent's fixed region instead of being inlined.
const (
	rootSize        = 32
	slotSize        = 8
	checkpointSize  = rootSize + slotSize
	configSize      = 8
	validatorSize   = 52 + 8
	attDataSize     = slotSize + 3*checkpointSize
	attestationSize = 8 + attDataSize
	signedAttSize   = attestationSize + SignatureSize
	blockHeaderSize = slotSize + 8 + rootSize + rootSize + rootSize
)

func putOffset(buf []byte, v uint32) {
	binary.LittleEndian.PutUint32(buf, v)
}

func readOffset(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

// --- Checkpoint ---

func (c *Checkpoint) SizeSSZ() int { return checkpointSize }

func (c *Checkpoint) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, checkpointSize)
	return c.MarshalSSZTo(buf)
}

func (c *Checkpoint) MarshalSSZTo(buf []byte) ([]byte, error) {
	buf = append(buf, c.Root[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(c.Slot))
	return buf, nil
}

func (c *Checkpoint) UnmarshalSSZ(buf []byte) error {
	if len(buf) != checkpointSize {
		return fmt.Errorf("ssz: invalid Checkpoint size %d", len(buf))
	}
	copy(c.Root[:], buf[:rootSize])
	c.Slot = Slot(binary.LittleEndian.Uint64(buf[rootSize:]))
	return nil
}

func (c *Checkpoint) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	if err := c.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	return hh.HashRoot()
}

func (c *Checkpoint) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutBytes(c.Root[:])
	hh.PutUint64(uint64(c.Slot))
	hh.Merkleize(indx)
	return nil
}

// --- Config ---

func (c *Config) SizeSSZ() int { return configSize }

func (c *Config) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, c.GenesisTime)
	return buf, nil
}

func (c *Config) UnmarshalSSZ(buf []byte) error {
	if len(buf) != configSize {
		return fmt.Errorf("ssz: invalid Config size %d", len(buf))
	}
	c.GenesisTime = binary.LittleEndian.Uint64(buf)
	return nil
}

func (c *Config) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	if err := c.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	return hh.HashRoot()
}

func (c *Config) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutUint64(c.GenesisTime)
	hh.Merkleize(indx)
	return nil
}

// --- Validator ---

func (v *Validator) SizeSSZ() int { return validatorSize }

func (v *Validator) MarshalSSZTo(buf []byte) ([]byte, error) {
	buf = append(buf, v.Pubkey[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(v.Index))
	return buf, nil
}

func (v *Validator) MarshalSSZ() ([]byte, error) {
	return v.MarshalSSZTo(make([]byte, 0, validatorSize))
}

func (v *Validator) UnmarshalSSZ(buf []byte) error {
	if len(buf) != validatorSize {
		return fmt.Errorf("ssz: invalid Validator size %d", len(buf))
	}
	copy(v.Pubkey[:], buf[:52])
	v.Index = ValidatorIndex(binary.LittleEndian.Uint64(buf[52:]))
	return nil
}

func (v *Validator) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutBytes(v.Pubkey[:])
	hh.PutUint64(uint64(v.Index))
	hh.Merkleize(indx)
	return nil
}

// --- AttestationData ---

func (d *AttestationData) SizeSSZ() int { return attDataSize }

func (d *AttestationData) MarshalSSZTo(buf []byte) ([]byte, error) {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(d.Slot))
	var err error
	if buf, err = d.Head.MarshalSSZTo(buf); err != nil {
		return nil, err
	}
	if buf, err = d.Target.MarshalSSZTo(buf); err != nil {
		return nil, err
	}
	if buf, err = d.Source.MarshalSSZTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *AttestationData) MarshalSSZ() ([]byte, error) {
	return d.MarshalSSZTo(make([]byte, 0, attDataSize))
}

func (d *AttestationData) UnmarshalSSZ(buf []byte) error {
	if len(buf) != attDataSize {
		return fmt.Errorf("ssz: invalid AttestationData size %d", len(buf))
	}
	d.Slot = Slot(binary.LittleEndian.Uint64(buf[:8]))
	off := 8
	for _, cp := range []*Checkpoint{&d.Head, &d.Target, &d.Source} {
		if err := cp.UnmarshalSSZ(buf[off : off+checkpointSize]); err != nil {
			return err
		}
		off += checkpointSize
	}
	return nil
}

func (d *AttestationData) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutUint64(uint64(d.Slot))
	for _, cp := range []*Checkpoint{&d.Head, &d.Target, &d.Source} {
		if err := cp.HashTreeRootWith(hh); err != nil {
			return err
		}
	}
	hh.Merkleize(indx)
	return nil
}

func (d *AttestationData) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	if err := d.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	return hh.HashRoot()
}

// --- Attestation ---

func (a *Attestation) SizeSSZ() int { return attestationSize }

func (a *Attestation) MarshalSSZTo(buf []byte) ([]byte, error) {
	buf = binary.LittleEndian.AppendUint64(buf, a.ValidatorID)
	return a.Data.MarshalSSZTo(buf)
}

func (a *Attestation) MarshalSSZ() ([]byte, error) {
	return a.MarshalSSZTo(make([]byte, 0, attestationSize))
}

func (a *Attestation) UnmarshalSSZ(buf []byte) error {
	if len(buf) != attestationSize {
		return fmt.Errorf("ssz: invalid Attestation size %d", len(buf))
	}
	a.ValidatorID = binary.LittleEndian.Uint64(buf[:8])
	return a.Data.UnmarshalSSZ(buf[8:])
}

func (a *Attestation) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutUint64(a.ValidatorID)
	if err := a.Data.HashTreeRootWith(hh); err != nil {
		return err
	}
	hh.Merkleize(indx)
	return nil
}

func (a *Attestation) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	if err := a.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	return hh.HashRoot()
}

// --- SignedAttestation ---

func (s *SignedAttestation) SizeSSZ() int { return signedAttSize }

func (s *SignedAttestation) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, 0, signedAttSize)
	buf, err := s.Message.MarshalSSZTo(buf)
	if err != nil {
		return nil, err
	}
	buf = append(buf, s.Signature[:]...)
	return buf, nil
}

func (s *SignedAttestation) UnmarshalSSZ(buf []byte) error {
	if len(buf) != signedAttSize {
		return fmt.Errorf("ssz: invalid SignedAttestation size %d", len(buf))
	}
	if err := s.Message.UnmarshalSSZ(buf[:attestationSize]); err != nil {
		return err
	}
	copy(s.Signature[:], buf[attestationSize:])
	return nil
}

func (s *SignedAttestation) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	indx := hh.Index()
	if err := s.Message.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	hh.PutBytes(s.Signature[:])
	hh.Merkleize(indx)
	return hh.HashRoot()
}

// --- BlockHeader ---

func (b *BlockHeader) SizeSSZ() int { return blockHeaderSize }

func (b *BlockHeader) MarshalSSZTo(buf []byte) ([]byte, error) {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.Slot))
	buf = binary.LittleEndian.AppendUint64(buf, b.ProposerIndex)
	buf = append(buf, b.ParentRoot[:]...)
	buf = append(buf, b.StateRoot[:]...)
	buf = append(buf, b.BodyRoot[:]...)
	return buf, nil
}

func (b *BlockHeader) MarshalSSZ() ([]byte, error) {
	return b.MarshalSSZTo(make([]byte, 0, blockHeaderSize))
}

func (b *BlockHeader) UnmarshalSSZ(buf []byte) error {
	if len(buf) != blockHeaderSize {
		return fmt.Errorf("ssz: invalid BlockHeader size %d", len(buf))
	}
	b.Slot = Slot(binary.LittleEndian.Uint64(buf[0:8]))
	b.ProposerIndex = binary.LittleEndian.Uint64(buf[8:16])
	copy(b.ParentRoot[:], buf[16:48])
	copy(b.StateRoot[:], buf[48:80])
	copy(b.BodyRoot[:], buf[80:112])
	return nil
}

func (b *BlockHeader) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutUint64(uint64(b.Slot))
	hh.PutUint64(b.ProposerIndex)
	hh.PutBytes(b.ParentRoot[:])
	hh.PutBytes(b.StateRoot[:])
	hh.PutBytes(b.BodyRoot[:])
	hh.Merkleize(indx)
	return nil
}

func (b *BlockHeader) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	if err := b.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	return hh.HashRoot()
}

// --- BlockBody ---

func (b *BlockBody) SizeSSZ() int { return len(b.Attestations) * attestationSize }

func (b *BlockBody) MarshalSSZ() ([]byte, error) {
	if uint64(len(b.Attestations)) > MaxAttestationsPerBlock {
		return nil, fmt.Errorf("ssz: BlockBody.Attestations exceeds limit %d", MaxAttestationsPerBlock)
	}
	buf := make([]byte, 0, b.SizeSSZ())
	var err error
	for i := range b.Attestations {
		if buf, err = b.Attestations[i].MarshalSSZTo(buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (b *BlockBody) UnmarshalSSZ(buf []byte) error {
	if len(buf)%attestationSize != 0 {
		return fmt.Errorf("ssz: invalid BlockBody size %d", len(buf))
	}
	n := len(buf) / attestationSize
	if uint64(n) > MaxAttestationsPerBlock {
		return fmt.Errorf("ssz: BlockBody.Attestations exceeds limit %d", MaxAttestationsPerBlock)
	}
	b.Attestations = make([]Attestation, n)
	for i := 0; i < n; i++ {
		off := i * attestationSize
		if err := b.Attestations[i].UnmarshalSSZ(buf[off : off+attestationSize]); err != nil {
			return err
		}
	}
	return nil
}

func (b *BlockBody) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	subIndx := hh.Index()
	for i := range b.Attestations {
		c := hh.Index()
		if err := b.Attestations[i].HashTreeRootWith(hh); err != nil {
			return err
		}
		hh.Merkleize(c)
	}
	hh.MerkleizeWithMixin(subIndx, uint64(len(b.Attestations)), MaxAttestationsPerBlock)
	hh.Merkleize(indx)
	return nil
}

func (b *BlockBody) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	if err := b.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	return hh.HashRoot()
}

// --- Block ---

func (b *Block) SizeSSZ() int {
	return slotSize + 8 + rootSize + rootSize + 4 + b.Body.SizeSSZ()
}

func (b *Block) MarshalSSZ() ([]byte, error) {
	fixed := slotSize + 8 + rootSize + rootSize + 4
	buf := make([]byte, 0, fixed+b.Body.SizeSSZ())
	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.Slot))
	buf = binary.LittleEndian.AppendUint64(buf, b.ProposerIndex)
	buf = append(buf, b.ParentRoot[:]...)
	buf = append(buf, b.StateRoot[:]...)
	offBuf := make([]byte, 4)
	putOffset(offBuf, uint32(fixed))
	buf = append(buf, offBuf...)
	body, err := b.Body.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	return append(buf, body...), nil
}

func (b *Block) UnmarshalSSZ(buf []byte) error {
	const fixed = slotSize + 8 + rootSize + rootSize + 4
	if len(buf) < fixed {
		return fmt.Errorf("ssz: invalid Block size %d", len(buf))
	}
	b.Slot = Slot(binary.LittleEndian.Uint64(buf[0:8]))
	b.ProposerIndex = binary.LittleEndian.Uint64(buf[8:16])
	copy(b.ParentRoot[:], buf[16:48])
	copy(b.StateRoot[:], buf[48:80])
	offset := readOffset(buf[80:84])
	if int(offset) != fixed {
		return fmt.Errorf("ssz: unexpected Block.Body offset %d", offset)
	}
	return b.Body.UnmarshalSSZ(buf[fixed:])
}

func (b *Block) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	hh.PutUint64(uint64(b.Slot))
	hh.PutUint64(b.ProposerIndex)
	hh.PutBytes(b.ParentRoot[:])
	hh.PutBytes(b.StateRoot[:])
	if err := b.Body.HashTreeRootWith(hh); err != nil {
		return err
	}
	hh.Merkleize(indx)
	return nil
}

func (b *Block) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	if err := b.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	return hh.HashRoot()
}

// --- BlockWithAttestation ---

func (b *BlockWithAttestation) MarshalSSZ() ([]byte, error) {
	const fixed = 4 + attestationSize
	buf := make([]byte, 4, fixed)
	blk, err := b.Block.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	putOffset(buf[:4], uint32(fixed))
	pa, err := b.ProposerAttestation.MarshalSSZTo(nil)
	if err != nil {
		return nil, err
	}
	buf = append(buf, pa...)
	buf = append(buf, blk...)
	return buf, nil
}

func (b *BlockWithAttestation) UnmarshalSSZ(buf []byte) error {
	const fixed = 4 + attestationSize
	if len(buf) < fixed {
		return fmt.Errorf("ssz: invalid BlockWithAttestation size %d", len(buf))
	}
	offset := readOffset(buf[:4])
	if int(offset) != fixed {
		return fmt.Errorf("ssz: unexpected BlockWithAttestation.Block offset %d", offset)
	}
	if err := b.ProposerAttestation.UnmarshalSSZ(buf[4:fixed]); err != nil {
		return err
	}
	return b.Block.UnmarshalSSZ(buf[fixed:])
}

func (b *BlockWithAttestation) HashTreeRootWith(hh *ssz.Hasher) error {
	indx := hh.Index()
	if err := b.Block.HashTreeRootWith(hh); err != nil {
		return err
	}
	if err := b.ProposerAttestation.HashTreeRootWith(hh); err != nil {
		return err
	}
	hh.Merkleize(indx)
	return nil
}

func (b *BlockWithAttestation) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	if err := b.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	return hh.HashRoot()
}

// --- SignedBlockWithAttestation ---

func (s *SignedBlockWithAttestation) MarshalSSZ() ([]byte, error) {
	if uint64(len(s.Signature)) > MaxAttestationsPerBlock+1 {
		return nil, fmt.Errorf("ssz: SignedBlockWithAttestation.Signature exceeds limit")
	}
	buf := make([]byte, 8)
	msg, err := s.Message.MarshalSSZ()
	if err != nil {
		return nil, err
	}
	putOffset(buf[0:4], 8)
	putOffset(buf[4:8], uint32(8+len(msg)))
	buf = append(buf, msg...)
	for i := range s.Signature {
		buf = append(buf, s.Signature[i][:]...)
	}
	return buf, nil
}

func (s *SignedBlockWithAttestation) UnmarshalSSZ(buf []byte) error {
	if len(buf) < 8 {
		return fmt.Errorf("ssz: invalid SignedBlockWithAttestation size %d", len(buf))
	}
	msgOff := readOffset(buf[0:4])
	sigOff := readOffset(buf[4:8])
	if msgOff != 8 || int(sigOff) > len(buf) || sigOff < msgOff {
		return fmt.Errorf("ssz: invalid SignedBlockWithAttestation offsets")
	}
	if err := s.Message.UnmarshalSSZ(buf[msgOff:sigOff]); err != nil {
		return err
	}
	sigBytes := buf[sigOff:]
	if len(sigBytes)%SignatureSize != 0 {
		return fmt.Errorf("ssz: invalid signature list size %d", len(sigBytes))
	}
	n := len(sigBytes) / SignatureSize
	s.Signature = make([]Signature, n)
	for i := 0; i < n; i++ {
		copy(s.Signature[i][:], sigBytes[i*SignatureSize:(i+1)*SignatureSize])
	}
	return nil
}

func (s *SignedBlockWithAttestation) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	indx := hh.Index()
	if err := s.Message.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	subIndx := hh.Index()
	for i := range s.Signature {
		hh.Append(s.Signature[i][:])
	}
	hh.FillUpTo32()
	numItems := uint64(len(s.Signature))
	hh.MerkleizeWithMixin(subIndx, numItems, MaxAttestationsPerBlock+1)
	hh.Merkleize(indx)
	return hh.HashRoot()
}

// --- State ---

const stateFixedSize = configSize + slotSize + blockHeaderSize + checkpointSize*2 + 4*5

func (s *State) MarshalSSZ() ([]byte, error) {
	buf := make([]byte, stateFixedSize)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], s.Config.GenesisTime)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], uint64(s.Slot))
	off += 8
	hdr, _ := s.LatestBlockHeader.MarshalSSZ()
	copy(buf[off:], hdr)
	off += blockHeaderSize
	cp, _ := s.LatestJustified.MarshalSSZ()
	copy(buf[off:], cp)
	off += checkpointSize
	cp, _ = s.LatestFinalized.MarshalSSZ()
	copy(buf[off:], cp)
	off += checkpointSize

	cursor := stateFixedSize
	var dynamic []byte

	writeList := func(data []byte) {
		putOffset(buf[off:off+4], uint32(cursor))
		off += 4
		cursor += len(data)
		dynamic = append(dynamic, data...)
	}

	historical := make([]byte, 0, len(s.HistoricalBlockHashes)*rootSize)
	for _, r := range s.HistoricalBlockHashes {
		historical = append(historical, r[:]...)
	}
	writeList(historical)
	writeList(s.JustifiedSlots)

	validators := make([]byte, 0, len(s.Validators)*validatorSize)
	for i := range s.Validators {
		validators, _ = s.Validators[i].MarshalSSZTo(validators)
	}
	writeList(validators)

	justRoots := make([]byte, 0, len(s.JustificationsRoots)*rootSize)
	for _, r := range s.JustificationsRoots {
		justRoots = append(justRoots, r[:]...)
	}
	writeList(justRoots)
	writeList(s.JustificationsValidators)

	return append(buf, dynamic...), nil
}

func (s *State) UnmarshalSSZ(buf []byte) error {
	if len(buf) < stateFixedSize {
		return fmt.Errorf("ssz: invalid State size %d", len(buf))
	}
	off := 0
	s.Config.GenesisTime = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	s.Slot = Slot(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	if err := s.LatestBlockHeader.UnmarshalSSZ(buf[off : off+blockHeaderSize]); err != nil {
		return err
	}
	off += blockHeaderSize
	if err := s.LatestJustified.UnmarshalSSZ(buf[off : off+checkpointSize]); err != nil {
		return err
	}
	off += checkpointSize
	if err := s.LatestFinalized.UnmarshalSSZ(buf[off : off+checkpointSize]); err != nil {
		return err
	}
	off += checkpointSize

	offsets := make([]uint32, 5)
	for i := range offsets {
		offsets[i] = readOffset(buf[off : off+4])
		off += 4
	}
	offsets = append(offsets, uint32(len(buf)))

	section := func(i int) []byte {
		return buf[offsets[i]:offsets[i+1]]
	}

	hist := section(0)
	if len(hist)%rootSize != 0 {
		return fmt.Errorf("ssz: invalid HistoricalBlockHashes size")
	}
	s.HistoricalBlockHashes = make([]Root, len(hist)/rootSize)
	for i := range s.HistoricalBlockHashes {
		copy(s.HistoricalBlockHashes[i][:], hist[i*rootSize:(i+1)*rootSize])
	}

	s.JustifiedSlots = append([]byte{}, section(1)...)

	vs := section(2)
	if len(vs)%validatorSize != 0 {
		return fmt.Errorf("ssz: invalid Validators size")
	}
	s.Validators = make([]Validator, len(vs)/validatorSize)
	for i := range s.Validators {
		if err := s.Validators[i].UnmarshalSSZ(vs[i*validatorSize : (i+1)*validatorSize]); err != nil {
			return err
		}
	}

	jr := section(3)
	if len(jr)%rootSize != 0 {
		return fmt.Errorf("ssz: invalid JustificationsRoots size")
	}
	s.JustificationsRoots = make([]Root, len(jr)/rootSize)
	for i := range s.JustificationsRoots {
		copy(s.JustificationsRoots[i][:], jr[i*rootSize:(i+1)*rootSize])
	}

	s.JustificationsValidators = append([]byte{}, section(4)...)
	return nil
}

func (s *State) HashTreeRoot() ([32]byte, error) {
	hh := ssz.NewHasher()
	indx := hh.Index()

	if err := s.Config.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	hh.PutUint64(uint64(s.Slot))
	if err := s.LatestBlockHeader.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	if err := s.LatestJustified.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}
	if err := s.LatestFinalized.HashTreeRootWith(hh); err != nil {
		return [32]byte{}, err
	}

	// HistoricalBlockHashes: List[Bytes32, HISTORICAL_ROOTS_LIMIT]
	subIndx := hh.Index()
	for _, r := range s.HistoricalBlockHashes {
		hh.Append(r[:])
	}
	hh.FillUpTo32()
	hh.MerkleizeWithMixin(subIndx, uint64(len(s.HistoricalBlockHashes)), HistoricalRootsLimit)

	// JustifiedSlots: Bitlist[HISTORICAL_ROOTS_LIMIT]
	hh.PutBitlist(s.JustifiedSlots, HistoricalRootsLimit)

	// Validators: List[Validator, VALIDATOR_REGISTRY_LIMIT]
	subIndx = hh.Index()
	for i := range s.Validators {
		c := hh.Index()
		if err := s.Validators[i].HashTreeRootWith(hh); err != nil {
			return [32]byte{}, err
		}
		hh.Merkleize(c)
	}
	hh.MerkleizeWithMixin(subIndx, uint64(len(s.Validators)), ValidatorRegistryLimit)

	// JustificationsRoots: List[Bytes32, HISTORICAL_ROOTS_LIMIT]
	subIndx = hh.Index()
	for _, r := range s.JustificationsRoots {
		hh.Append(r[:])
	}
	hh.FillUpTo32()
	hh.MerkleizeWithMixin(subIndx, uint64(len(s.JustificationsRoots)), HistoricalRootsLimit)

	// JustificationsValidators: Bitlist[HISTORICAL_ROOTS_LIMIT * VALIDATOR_REGISTRY_LIMIT]
	hh.PutBitlist(s.JustificationsValidators, HistoricalRootsLimit*ValidatorRegistryLimit)

	hh.Merkleize(indx)
	return hh.HashRoot()
}

// NewBitlist returns a minimal valid SSZ bitlist of the given logical
// length, all bits clear. It exists so callers outside this package never
// construct the length-delimiter bit by hand.
func NewBitlist(length uint64) []byte {
	return bitfield.NewBitlist(length)
}
