package postprocess

import (
	"sort"
)

// DefaultClassLimit is the maximum number of detections kept per class
const DefaultClassLimit = 100

// Suppress runs greedy Non-Maximum Suppression independently for each class.
// Within a class candidates are visited by descending score (ties keep their
// original order) and any remaining box overlapping a selected box by more
// than iouThreshold is discarded.  At most limit boxes are kept per class,
// limit <= 0 uses DefaultClassLimit.
//
// The result is ordered by ascending class index and then by selection order
// within each class.
func Suppress(cands []Candidate, iouThreshold float32, limit int) []Candidate {

	if len(cands) == 0 {
		return nil
	}

	if limit <= 0 {
		limit = DefaultClassLimit
	}

	// group candidate indexes by class, indexes within a group stay in
	// original order
	groups := make(map[int][]int)

	for i, c := range cands {
		groups[c.Class] = append(groups[c.Class], i)
	}

	classes := make([]int, 0, len(groups))

	for c := range groups {
		classes = append(classes, c)
	}

	sort.Ints(classes)

	selected := make([]Candidate, 0, len(cands))

	for _, c := range classes {
		selected = suppressClass(cands, groups[c], iouThreshold, limit, selected)
	}

	return selected
}

// suppressClass runs NMS over the candidates at the given indexes and appends
// the survivors to out
func suppressClass(cands []Candidate, idx []int, iouThreshold float32,
	limit int, out []Candidate) []Candidate {

	sort.SliceStable(idx, func(i, j int) bool {
		return cands[idx[i]].Score > cands[idx[j]].Score
	})

	active := make([]bool, len(idx))

	for i := range active {
		active[i] = true
	}

	numActive := len(idx)
	kept := 0

	for i := 0; i < len(idx) && numActive > 0; i++ {

		if !active[i] {
			continue
		}

		boxA := cands[idx[i]]
		out = append(out, boxA)
		active[i] = false
		numActive--
		kept++

		if kept >= limit {
			break
		}

		for j := i + 1; j < len(idx); j++ {

			if !active[j] {
				continue
			}

			if IoU(boxA.Box, cands[idx[j]].Box) > iouThreshold {
				active[j] = false
				numActive--
			}
		}
	}

	return out
}
