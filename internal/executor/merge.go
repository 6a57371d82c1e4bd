package executor

// BatchIndex maps one entry of a shard-local batch back to its slot in the
// logical batch. A unit executing a batch owns one BatchIndex per statement it
// added, in the order they were added.
type BatchIndex struct {
	Global int
	Local  int
}

// MergeSum adds up update counts. A nil result list merges to 0.
func MergeSum(results []int64) int64 {
	if results == nil {
		return 0
	}
	var total int64
	for _, r := range results {
		total += r
	}
	return total
}

// MergeFirstOrFalse keeps the first unit's result. All units of one logical
// statement are expected to agree on whether they produced rows, so the first
// answer stands for all of them.
func MergeFirstOrFalse(results []bool) bool {
	if len(results) == 0 {
		return false
	}
	return results[0]
}

// MergeBatch reassembles per-unit batch counts into the logical batch of
// batchSize entries. indexes[i] is the BatchIndex list of the i-th unit, in
// the same order the units were dispatched. Counts for a global slot that was
// routed to several units are summed.
//
// A nil result list merges to []int64{0}, not to a batchSize-long slice.
// A nil entry for one unit (a suppressed failure) contributes nothing, and so
// does an index past the end of what the unit reported.
func MergeBatch(batchSize int, indexes [][]BatchIndex) MergeFunc[[]int64, []int64] {
	return func(results [][]int64) []int64 {
		if results == nil {
			return []int64{0}
		}
		merged := make([]int64, batchSize)
		for i, unitIndexes := range indexes {
			if i >= len(results) || results[i] == nil {
				continue
			}
			local := results[i]
			for _, idx := range unitIndexes {
				if idx.Local >= len(local) {
					continue
				}
				merged[idx.Global] += local[idx.Local]
			}
		}
		return merged
	}
}
