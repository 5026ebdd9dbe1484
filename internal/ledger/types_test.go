package ledger

import "testing"

func TestNewReferenceShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		ref := NewReference()
		if len(ref) != ReferenceLength {
			t.Fatalf("expected %d characters, got %q", ReferenceLength, ref)
		}
		for _, r := range ref {
			if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
				t.Fatalf("unexpected character %q in reference %q", r, ref)
			}
		}
		seen[ref] = struct{}{}
	}
	// Collisions are possible but vanishingly unlikely in 1000 draws.
	if len(seen) < 990 {
		t.Fatalf("suspicious collision rate: %d unique of 1000", len(seen))
	}
}

func TestStatusValid(t *testing.T) {
	if !StatusCompleted.Valid() || !StatusFailed.Valid() {
		t.Fatal("known statuses must be valid")
	}
	if Status("pending").Valid() {
		t.Fatal("unknown status must be invalid")
	}
}
