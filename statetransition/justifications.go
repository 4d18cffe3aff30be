package statetransition

import (
	"sort"

	"github.com/geanlabs/gean/types"
)

// GetJustifications inflates state's flattened justifications_roots /
// justifications_validators pair into the logical map<root, []bool> form,
// per SPEC_FULL.md §3's note: the two fields together encode a
// map[Root]BitList[len(validators)], flattened purely for Merkle
// stability. Grounded on geanlabs-gean/consensus/justifications.go.
func GetJustifications(s *types.State) map[types.Root][]bool {
	justifications := make(map[types.Root][]bool)
	if len(s.JustificationsRoots) == 0 {
		return justifications
	}

	numValidators := len(s.Validators)
	for i, root := range s.JustificationsRoots {
		startIdx := i * numValidators
		votes := make([]bool, numValidators)
		for j := 0; j < numValidators; j++ {
			votes[j] = types.GetBit(s.JustificationsValidators, startIdx+j)
		}
		justifications[root] = votes
	}
	return justifications
}

// SetJustifications flattens the logical map back into state's two SSZ
// fields: roots sorted lexicographically, each followed by its
// |validators|-bit vote row.
func SetJustifications(s *types.State, justifications map[types.Root][]bool) *types.State {
	newState := Copy(s)

	if len(justifications) == 0 {
		newState.JustificationsRoots = nil
		newState.JustificationsValidators = nil
		return newState
	}

	roots := make([]types.Root, 0, len(justifications))
	for root := range justifications {
		roots = append(roots, root)
	}
	sortRoots(roots)

	numValidators := len(s.Validators)
	totalBits := len(roots) * numValidators

	flatVotes := types.NewBitlist(uint64(totalBits))
	for i, root := range roots {
		votes := justifications[root]
		for j, voted := range votes {
			if voted {
				flatVotes = types.SetBit(flatVotes, i*numValidators+j, true)
			}
		}
	}

	newState.JustificationsRoots = roots
	newState.JustificationsValidators = flatVotes
	return newState
}

func sortRoots(roots []types.Root) {
	sort.Slice(roots, func(i, j int) bool {
		return roots[i].Compare(roots[j]) < 0
	})
}

// CountVotes counts the set bits in a per-root vote row.
func CountVotes(votes []bool) int {
	count := 0
	for _, v := range votes {
		if v {
			count++
		}
	}
	return count
}

// IsJustifiable reports whether candidateSlot may carry a justification
// vote given the chain's current finalized slot (SPEC_FULL.md §4.D). This
// is a thin wrapper over types.Slot.IsJustifiableAfter kept in this
// package so callers read process_attestations' logic without chasing it
// into the types package.
func IsJustifiable(finalizedSlot, candidateSlot types.Slot) bool {
	return candidateSlot.IsJustifiableAfter(finalizedSlot)
}
