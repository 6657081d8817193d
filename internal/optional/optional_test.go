package optional

import "testing"

func TestMergeChildSetWins(t *testing.T) {
	parent := Of(1)
	child := Of(2)
	got := Merge(parent, child)
	if v, ok := got.Get(); !ok || v != 2 {
		t.Fatalf("want (2, true), got (%v, %v)", v, ok)
	}
}

func TestMergeChildDisabledClearsParent(t *testing.T) {
	parent := Of(1)
	child := Disable[int]()
	got := Merge(parent, child)
	if !got.IsUnset() {
		t.Fatalf("want unset, got state with value %v", got.GetOr(-1))
	}
}

func TestMergeChildUnsetInheritsParent(t *testing.T) {
	parent := Of(1)
	child := None[int]()
	got := Merge(parent, child)
	if v, ok := got.Get(); !ok || v != 1 {
		t.Fatalf("want (1, true), got (%v, %v)", v, ok)
	}
}

func TestGetOrFallsBackWhenUnset(t *testing.T) {
	o := None[string]()
	if got := o.GetOr("fallback"); got != "fallback" {
		t.Fatalf("want fallback, got %q", got)
	}
}
