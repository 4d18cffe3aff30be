package forkchoice

import "github.com/geanlabs/gean/types"

// getHead runs LMD GHOST over an in-memory snapshot of the block tree: walk
// down from root, at each fork choosing the child carrying the most votes,
// tie-broken by slot then by root. Only children whose vote weight is at
// least minScore are considered, which is how update_safe_target (§4.E)
// reuses this same walk with a supermajority floor instead of accepting any
// single vote. Grounded on geanlabs-gean/forkchoice/lmdghost.go, generalized
// from an in-memory Store's maps to a snapshot assembled from storage.Store.
func getHead(blocks map[types.Root]*types.Block, root types.Root, latestVotes map[types.ValidatorIndex]types.Checkpoint, minScore int) types.Root {
	if root.IsZero() {
		var minSlot types.Slot = ^types.Slot(0)
		for hash, block := range blocks {
			if block.Slot < minSlot {
				minSlot = block.Slot
				root = hash
			}
		}
	}

	if blocks[root] == nil {
		return root
	}

	// Count votes for each block; votes for descendants count for ancestors.
	voteWeights := make(map[types.Root]int)
	rootSlot := blocks[root].Slot

	for _, vote := range latestVotes {
		if _, exists := blocks[vote.Root]; !exists {
			continue
		}
		blockHash := vote.Root
		for blocks[blockHash] != nil && blocks[blockHash].Slot > rootSlot {
			voteWeights[blockHash]++
			blockHash = blocks[blockHash].ParentRoot
		}
	}

	childrenMap := make(map[types.Root][]types.Root)
	for blockHash, block := range blocks {
		if !block.ParentRoot.IsZero() && voteWeights[blockHash] >= minScore {
			childrenMap[block.ParentRoot] = append(childrenMap[block.ParentRoot], blockHash)
		}
	}

	current := root
	for {
		children := childrenMap[current]
		if len(children) == 0 {
			return current
		}

		best := children[0]
		bestWeight := voteWeights[best]
		bestSlot := blocks[best].Slot

		for _, child := range children[1:] {
			weight := voteWeights[child]
			childSlot := blocks[child].Slot

			// Tie-break: most votes, then highest slot, then lexicographically highest root.
			if weight > bestWeight ||
				(weight == bestWeight && childSlot > bestSlot) ||
				(weight == bestWeight && childSlot == bestSlot && child.Compare(best) > 0) {
				best = child
				bestWeight = weight
				bestSlot = childSlot
			}
		}

		current = best
	}
}

// votesFromAttestations projects an attestation pool down to the
// checkpoint-only view getHead needs: each vote counts for the validator's
// observed head, not its justification target (SPEC_FULL.md §4.E step 2).
func votesFromAttestations(atts map[types.ValidatorIndex]*types.SignedAttestation) map[types.ValidatorIndex]types.Checkpoint {
	out := make(map[types.ValidatorIndex]types.Checkpoint, len(atts))
	for idx, a := range atts {
		out[idx] = a.Message.Data.Head
	}
	return out
}
