package agent

import "testing"

func TestDiffNoChangeIsEmpty(t *testing.T) {
	items := []ChatItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	d := Diff(items, items)
	if len(d.ToRemove) != 0 || len(d.ToCreate) != 0 {
		t.Fatalf("expected empty diff for identical sequences, got %+v", d)
	}
}

func TestDiffAppendOnly(t *testing.T) {
	oldItems := []ChatItem{{ID: "a"}, {ID: "b"}}
	newItems := []ChatItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	d := Diff(oldItems, newItems)
	if len(d.ToRemove) != 0 {
		t.Fatalf("expected no removals, got %v", d.ToRemove)
	}
	if len(d.ToCreate) != 1 || d.ToCreate[0].NewID != "c" || d.ToCreate[0].AfterID != "b" {
		t.Fatalf("unexpected creates: %+v", d.ToCreate)
	}
}

func TestDiffRemovalAndInsertion(t *testing.T) {
	oldItems := []ChatItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	newItems := []ChatItem{{ID: "a"}, {ID: "x"}, {ID: "c"}}

	d := Diff(oldItems, newItems)
	if len(d.ToRemove) != 1 || d.ToRemove[0] != "b" {
		t.Fatalf("expected removal of b, got %v", d.ToRemove)
	}
	if len(d.ToCreate) != 1 || d.ToCreate[0].NewID != "x" || d.ToCreate[0].AfterID != "a" {
		t.Fatalf("unexpected creates: %+v", d.ToCreate)
	}
}

func TestApplyRoundTrip(t *testing.T) {
	oldItems := []ChatItem{{ID: "a", Content: "A"}, {ID: "b", Content: "B"}, {ID: "c", Content: "C"}}
	newItems := []ChatItem{{ID: "a", Content: "A"}, {ID: "x", Content: "X"}, {ID: "c", Content: "C"}}

	byID := make(map[string]ChatItem, len(newItems))
	for _, it := range newItems {
		byID[it.ID] = it
	}

	d := Diff(oldItems, newItems)
	result := Apply(oldItems, byID, d)

	if len(result) != len(newItems) {
		t.Fatalf("expected %d items after apply, got %d: %+v", len(newItems), len(result), result)
	}
	for i, it := range result {
		if it.ID != newItems[i].ID {
			t.Fatalf("item %d mismatch: got %s want %s", i, it.ID, newItems[i].ID)
		}
	}
}
