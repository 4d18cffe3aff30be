package sig

// The Merkle tree over per-epoch OTS leaves is sparse: LifetimeProduction's
// height (32) implies 2^32 leaves, far more than any real key ever
// populates (numActiveEpochs). Subtrees entirely outside [0, numActiveEpochs)
// collapse to a precomputed "empty" hash per level, so root/path computation
// costs O(numActiveEpochs * height) instead of O(2^height).

var emptyHash [maxHeight + 1][hashSize]byte

func init() {
	emptyHash[0] = hash([]byte("gean/sig/empty-leaf"))
	for level := 1; level <= maxHeight; level++ {
		prev := emptyHash[level-1]
		emptyHash[level] = hash(prev[:], prev[:])
	}
}

// subtreeRoot computes the root of the subtree spanning relative leaf
// indices [leafLo, leafLo+2^level) given numActive real leaves starting at
// activationEpoch.
func subtreeRoot(seed [32]byte, activationEpoch uint64, numActive uint64, level int, leafLo uint64) [hashSize]byte {
	if leafLo >= numActive {
		return emptyHash[level]
	}
	if level == 0 {
		return otsLeaf(seed, activationEpoch+leafLo)
	}
	half := uint64(1) << uint(level-1)
	left := subtreeRoot(seed, activationEpoch, numActive, level-1, leafLo)
	right := subtreeRoot(seed, activationEpoch, numActive, level-1, leafLo+half)
	return hash(left[:], right[:])
}

func merkleRoot(seed [32]byte, activationEpoch, numActive uint64, height int) [hashSize]byte {
	return subtreeRoot(seed, activationEpoch, numActive, height, 0)
}

// authPath returns the height sibling hashes needed to climb from leaf
// index to the tree root, ordered from the leaf's immediate sibling (index
// 0) to the top-level sibling (index height-1) — the same order Verify
// walks in.
func authPath(seed [32]byte, activationEpoch, numActive uint64, height int, index uint64) [][hashSize]byte {
	out := make([][hashSize]byte, height)
	var descend func(level int, leafLo uint64)
	descend = func(level int, leafLo uint64) {
		if level == 0 {
			return
		}
		half := uint64(1) << uint(level-1)
		rightLo := leafLo + half
		if index < rightLo {
			out[level-1] = subtreeRoot(seed, activationEpoch, numActive, level-1, rightLo)
			descend(level-1, leafLo)
		} else {
			out[level-1] = subtreeRoot(seed, activationEpoch, numActive, level-1, leafLo)
			descend(level-1, rightLo)
		}
	}
	descend(height, 0)
	return out
}
