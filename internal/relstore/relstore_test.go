package relstore

import "testing"

func TestUpdateClausesExcludesConflictColumns(t *testing.T) {
	clauses := updateClauses([]string{"symbol", "price", "beta"}, []string{"symbol"})
	if len(clauses) != 2 {
		t.Fatalf("expected 2 update clauses, got %d: %v", len(clauses), clauses)
	}
	want := map[string]bool{"price = EXCLUDED.price": true, "beta = EXCLUDED.beta": true}
	for _, c := range clauses {
		if !want[c] {
			t.Fatalf("unexpected clause %q", c)
		}
	}
}

func TestColumnsOfCoversEveryKey(t *testing.T) {
	cols := columnsOf(Row{"a": 1, "b": 2, "c": 3})
	if len(cols) != 3 {
		t.Fatalf("expected 3 columns, got %d: %v", len(cols), cols)
	}
	seen := map[string]bool{}
	for _, c := range cols {
		seen[c] = true
	}
	for _, want := range []string{"a", "b", "c"} {
		if !seen[want] {
			t.Fatalf("expected column %q present, got %v", want, cols)
		}
	}
}
