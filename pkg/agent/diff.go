package agent

// CreateOp pairs a new item's id with the id it should be inserted after
// (empty string means "at the head").
type CreateOp struct {
	AfterID string
	NewID   string
}

// ContextDiff is the minimum edit between two item-id sequences: ids to
// remove, and ids to create (each anchored after a previous id) — spec
// §4.7. Providers that maintain server-side state can replay this
// incrementally; providers without server state just call Replace.
type ContextDiff struct {
	ToRemove []string
	ToCreate []CreateOp
}

// Diff computes the LCS-based edit between old and new item-id sequences.
func Diff(oldItems, newItems []ChatItem) ContextDiff {
	oldIDs := idsOf(oldItems)
	newIDs := idsOf(newItems)

	lcs := longestCommonSubsequence(oldIDs, newIDs)
	lcsSet := make(map[string]bool, len(lcs))
	for _, id := range lcs {
		lcsSet[id] = true
	}

	var toRemove []string
	for _, id := range oldIDs {
		if !lcsSet[id] {
			toRemove = append(toRemove, id)
		}
	}

	var toCreate []CreateOp
	prevID := ""
	lcsIdx := 0
	for _, id := range newIDs {
		if lcsIdx < len(lcs) && id == lcs[lcsIdx] {
			prevID = id
			lcsIdx++
			continue
		}
		toCreate = append(toCreate, CreateOp{AfterID: prevID, NewID: id})
		prevID = id
	}

	return ContextDiff{ToRemove: toRemove, ToCreate: toCreate}
}

// Apply reconstructs the new item-id sequence that diff(oldItems, ...)
// was computed against, used by tests to assert the round-trip property:
// apply(oldCtx, diff(oldCtx, newCtx)) == newCtx by id sequence.
func Apply(oldItems []ChatItem, byID map[string]ChatItem, d ContextDiff) []ChatItem {
	removed := make(map[string]bool, len(d.ToRemove))
	for _, id := range d.ToRemove {
		removed[id] = true
	}

	var kept []ChatItem
	for _, it := range oldItems {
		if !removed[it.ID] {
			kept = append(kept, it)
		}
	}

	indexOf := func(id string) int {
		for i, it := range kept {
			if it.ID == id {
				return i
			}
		}
		return -1
	}

	for _, op := range d.ToCreate {
		item, ok := byID[op.NewID]
		if !ok {
			continue
		}
		if op.AfterID == "" {
			kept = append([]ChatItem{item}, kept...)
			continue
		}
		idx := indexOf(op.AfterID)
		if idx < 0 {
			kept = append(kept, item)
			continue
		}
		kept = append(kept[:idx+1], append([]ChatItem{item}, kept[idx+1:]...)...)
	}

	return kept
}

func idsOf(items []ChatItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// longestCommonSubsequence returns the LCS of two id sequences using the
// standard O(n*m) dynamic-programming table.
func longestCommonSubsequence(a, b []string) []string {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var out []string
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			i++
		default:
			j++
		}
	}
	return out
}
