// Package sig implements a hash-based, one-time-per-epoch signature scheme
// with per-epoch activation windows, in the shape of the leansig XMSS-style
// scheme used by the reference implementation, but entirely in pure Go.
//
// The construction is a Winternitz one-time signature (w=256, one digit per
// message byte plus a two-byte checksum) whose one-time public keys are the
// leaves of a Merkle tree; the tree root is the long-lived public key and a
// signature carries both the revealed OTS chain values and the Merkle
// authentication path for the signing epoch's leaf. blake3 is the hash
// function throughout.
package sig

import (
	"encoding/binary"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/geanlabs/gean/types"
)

const (
	hashSize          = 32
	numMessageChains  = 32 // one Winternitz chain per message byte
	numChecksumChains = 2  // checksum fits in two base-256 digits (max 32*255=8160)
	numChains         = numMessageChains + numChecksumChains
	chainLen          = 255 // w-1, w=256
)

// Scheme selects the signature scheme's lifetime variant. Both share the
// same construction; only the Merkle tree height (and therefore the
// authentication-path length packed into the wire signature) differs.
type Scheme uint32

const (
	// LifetimeTest is the small devnet variant: 2^8 epochs per key.
	LifetimeTest Scheme = iota
	// LifetimeProduction is the full-size variant: 2^32 epochs per key.
	LifetimeProduction
)

// Height returns the scheme's Merkle tree height (log2 of its epoch count).
func (s Scheme) Height() int {
	switch s {
	case LifetimeTest:
		return 8
	case LifetimeProduction:
		return 32
	default:
		return -1
	}
}

func hash(parts ...[]byte) [hashSize]byte {
	h := blake3.New(hashSize, nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [hashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

func chainWalk(seed [hashSize]byte, steps int) [hashSize]byte {
	cur := seed
	for i := 0; i < steps; i++ {
		cur = hash(cur[:])
	}
	return cur
}

// PublicKey is the long-lived verification key: a Merkle root over one OTS
// leaf per epoch in the key's activation window, plus the window metadata
// needed to locate a given epoch's leaf. Matches types.Pubkey's 52 bytes:
// 32 (root) + 8 (activation epoch) + 8 (num active epochs) + 4 (scheme).
type PublicKey struct {
	Root             [hashSize]byte
	ActivationEpoch  uint64
	NumActiveEpochs  uint64
	SchemeTag        Scheme
}

// Bytes serializes the public key into a types.Pubkey.
func (pk PublicKey) Bytes() types.Pubkey {
	var out types.Pubkey
	copy(out[0:32], pk.Root[:])
	binary.LittleEndian.PutUint64(out[32:40], pk.ActivationEpoch)
	binary.LittleEndian.PutUint64(out[40:48], pk.NumActiveEpochs)
	binary.LittleEndian.PutUint32(out[48:52], uint32(pk.SchemeTag))
	return out
}

// PublicKeyFromBytes decodes a types.Pubkey produced by PublicKey.Bytes.
func PublicKeyFromBytes(b types.Pubkey) (PublicKey, error) {
	scheme := Scheme(binary.LittleEndian.Uint32(b[48:52]))
	if scheme.Height() < 0 {
		return PublicKey{}, ErrMalformedPublicKey
	}
	var pk PublicKey
	copy(pk.Root[:], b[0:32])
	pk.ActivationEpoch = binary.LittleEndian.Uint64(b[32:40])
	pk.NumActiveEpochs = binary.LittleEndian.Uint64(b[40:48])
	pk.SchemeTag = scheme
	return pk, nil
}

// PrivateKey holds everything needed to sign within one key's activation
// window: the root seed (every per-epoch secret is re-derived from it) and
// a used-epoch set enforcing the one-time property. Not safe for concurrent
// use; callers sign from a single validator duties loop per spec.md §4.G.
type PrivateKey struct {
	Seed            [32]byte
	ActivationEpoch uint64
	NumActiveEpochs uint64
	SchemeTag       Scheme

	used map[uint64]bool
}

// KeyGen derives a (PublicKey, PrivateKey) pair deterministically from seed.
// The realised activation window is exactly [activationEpoch,
// activationEpoch+numActiveEpochs); numActiveEpochs must fit within the
// scheme's 2^height leaves.
func KeyGen(seed [32]byte, activationEpoch, numActiveEpochs uint64, scheme Scheme) (PublicKey, *PrivateKey, error) {
	height := scheme.Height()
	if height < 0 {
		return PublicKey{}, nil, fmt.Errorf("sig: unknown scheme %d", scheme)
	}
	if numActiveEpochs == 0 || numActiveEpochs > uint64(1)<<uint(height) {
		return PublicKey{}, nil, ErrLifetimeExceeded
	}

	priv := &PrivateKey{
		Seed:            seed,
		ActivationEpoch: activationEpoch,
		NumActiveEpochs: numActiveEpochs,
		SchemeTag:       scheme,
		used:            make(map[uint64]bool),
	}

	root := merkleRoot(seed, activationEpoch, numActiveEpochs, height)
	pub := PublicKey{
		Root:            root,
		ActivationEpoch: activationEpoch,
		NumActiveEpochs: numActiveEpochs,
		SchemeTag:       scheme,
	}
	return pub, priv, nil
}

// Signature is the wire form of one OTS signature: the revealed Winternitz
// chain values for the signed epoch's leaf, plus the Merkle authentication
// path from that leaf to the public key's root. Packed into the fixed
// types.Signature array; unused authentication-path slots (for the smaller
// LifetimeTest tree) are left zeroed.
type Signature struct {
	Epoch         uint64
	AuthPathLen   uint32
	ChainReveals  [numChains][hashSize]byte
	AuthPath      [maxHeight][hashSize]byte
}

const maxHeight = 32 // LifetimeProduction.Height()

// wireFixedSize is the portion of types.Signature's 3112 bytes this scheme
// actually uses; the remainder is reserved padding so that both lifetime
// variants share one wire size regardless of their authentication-path
// length (LifetimeTest only fills AuthPath[:8]).
const wireFixedSize = 8 + 4 + numChains*hashSize + maxHeight*hashSize

// Bytes packs the signature into the fixed-size wire container: epoch (8
// bytes LE), authPathLen (4 bytes LE), the numChains chain reveals, the
// maxHeight authentication-path slots (zero-padded beyond AuthPathLen), and
// trailing reserved zero padding out to 3112 bytes.
func (s Signature) Bytes() types.Signature {
	var out types.Signature
	off := 0
	binary.LittleEndian.PutUint64(out[off:], s.Epoch)
	off += 8
	binary.LittleEndian.PutUint32(out[off:], s.AuthPathLen)
	off += 4
	for i := 0; i < numChains; i++ {
		copy(out[off:], s.ChainReveals[i][:])
		off += hashSize
	}
	for i := 0; i < maxHeight; i++ {
		copy(out[off:], s.AuthPath[i][:])
		off += hashSize
	}
	return out
}

// SignatureFromBytes unpacks a wire signature produced by Signature.Bytes.
func SignatureFromBytes(b types.Signature) (Signature, error) {
	var s Signature
	off := 0
	s.Epoch = binary.LittleEndian.Uint64(b[off:])
	off += 8
	s.AuthPathLen = binary.LittleEndian.Uint32(b[off:])
	off += 4
	if s.AuthPathLen > maxHeight {
		return Signature{}, ErrMalformedSignature
	}
	for i := 0; i < numChains; i++ {
		copy(s.ChainReveals[i][:], b[off:])
		off += hashSize
	}
	for i := 0; i < maxHeight; i++ {
		copy(s.AuthPath[i][:], b[off:])
		off += hashSize
	}
	return s, nil
}

// leafSeed derives the per-epoch secret seed all of a leaf's Winternitz
// chains are derived from.
func leafSeed(seed [32]byte, epoch uint64) [hashSize]byte {
	var e [8]byte
	binary.LittleEndian.PutUint64(e[:], epoch)
	return hash(seed[:], e[:])
}

func chainSeed(ls [hashSize]byte, chainIdx int) [hashSize]byte {
	return hash(ls[:], []byte{byte(chainIdx)})
}

// otsLeaf computes the Merkle-leaf value committing to all of a one-time
// key's chain tops, i.e. the value that Sign's revealed chain values must
// be walkable forward to reconstruct.
func otsLeaf(seed [32]byte, epoch uint64) [hashSize]byte {
	ls := leafSeed(seed, epoch)
	buf := make([]byte, 0, numChains*hashSize)
	for i := 0; i < numChains; i++ {
		top := chainWalk(chainSeed(ls, i), chainLen)
		buf = append(buf, top[:]...)
	}
	return hash(buf)
}

// messageDigits splits a 32-byte message into its Winternitz digits (one
// per byte) plus the two-byte checksum digit pair that binds digit forgery
// attempts to a higher total hash-chain cost.
func messageDigits(message [32]byte) [numChains]byte {
	var digits [numChains]byte
	checksum := 0
	for i := 0; i < numMessageChains; i++ {
		digits[i] = message[i]
		checksum += chainLen - int(message[i])
	}
	digits[numMessageChains] = byte(checksum >> 8)
	digits[numMessageChains+1] = byte(checksum)
	return digits
}

// Sign produces a one-time signature over message at the given epoch. It
// fails if epoch is outside the key's activation window or has already
// been used to sign (the one-time property of the underlying OTS scheme).
func (priv *PrivateKey) Sign(epoch uint64, message [32]byte) (Signature, error) {
	if epoch < priv.ActivationEpoch || epoch >= priv.ActivationEpoch+priv.NumActiveEpochs {
		return Signature{}, ErrEpochOutOfRange
	}
	if priv.used == nil {
		priv.used = make(map[uint64]bool)
	}
	if priv.used[epoch] {
		return Signature{}, ErrEpochReused
	}

	digits := messageDigits(message)
	ls := leafSeed(priv.Seed, epoch)

	sig := Signature{Epoch: epoch}
	for i := 0; i < numChains; i++ {
		sig.ChainReveals[i] = chainWalk(chainSeed(ls, i), int(digits[i]))
	}

	height := priv.SchemeTag.Height()
	path := authPath(priv.Seed, priv.ActivationEpoch, priv.NumActiveEpochs, height, epoch-priv.ActivationEpoch)
	sig.AuthPathLen = uint32(height)
	copy(sig.AuthPath[:height], path)

	priv.used[epoch] = true
	return sig, nil
}

// Verify checks sig against message for the given epoch under pub. A
// zero-valued Signature (Epoch==0, AuthPathLen==0, all chain/path entries
// zero) is accepted only when allowBlank is true, matching the reference
// scheme's "blank signature" escape hatch for tests and unsigned scratch
// transitions.
func Verify(pub PublicKey, epoch uint64, message [32]byte, s Signature, allowBlank bool) bool {
	if allowBlank && s == (Signature{}) {
		return true
	}
	if s.Epoch != epoch {
		return false
	}
	if epoch < pub.ActivationEpoch || epoch >= pub.ActivationEpoch+pub.NumActiveEpochs {
		return false
	}
	height := pub.SchemeTag.Height()
	if height < 0 || int(s.AuthPathLen) != height {
		return false
	}

	digits := messageDigits(message)
	buf := make([]byte, 0, numChains*hashSize)
	for i := 0; i < numChains; i++ {
		top := chainWalk(s.ChainReveals[i], chainLen-int(digits[i]))
		buf = append(buf, top[:]...)
	}
	leaf := hash(buf)

	index := epoch - pub.ActivationEpoch
	computed := leaf
	for level := 0; level < height; level++ {
		sibling := s.AuthPath[level]
		if index&1 == 0 {
			computed = hash(computed[:], sibling[:])
		} else {
			computed = hash(sibling[:], computed[:])
		}
		index >>= 1
	}
	return computed == pub.Root
}
