package workflow

import "slices"

// PlanEviction returns the version numbers to drop before inserting one
// more version so that no more than retentionCap remain, oldest first.
func PlanEviction(retained []int, retentionCap int) []int {
	if retentionCap < 1 {
		retentionCap = 1
	}
	excess := len(retained) + 1 - retentionCap
	if excess <= 0 {
		return nil
	}

	sorted := slices.Clone(retained)
	slices.Sort(sorted)
	return sorted[:excess]
}
