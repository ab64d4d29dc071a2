package envvars

import (
	"fmt"
	"testing"
)

func newTestSet() *WorkingSet {
	ws := NewWorkingSet()
	n := 0
	ws.newID = func() string {
		n++
		return fmt.Sprintf("v%d", n)
	}
	return ws
}

func TestWorkingSet_StartsWithEmptyRow(t *testing.T) {
	ws := NewWorkingSet()
	vars := ws.Vars()
	if len(vars) != 1 || !IsEmpty(vars[0]) || vars[0].ID == "" {
		t.Fatalf("unexpected initial set %+v", vars)
	}
}

func TestWorkingSet_SetAssignsIDsAndTrailingRow(t *testing.T) {
	ws := newTestSet()
	ws.Set([]Resolved{{Name: "A", Value: strPtr("1")}, {ID: "keep", Name: "B", Value: strPtr("2")}})

	vars := ws.Vars()
	if len(vars) != 3 {
		t.Fatalf("expected 3 rows, got %+v", vars)
	}
	if vars[0].ID != "v1" || vars[1].ID != "keep" {
		t.Fatalf("ids not assigned as expected: %+v", vars)
	}
	if !IsEmpty(vars[2]) {
		t.Fatalf("expected trailing empty row, got %+v", vars[2])
	}
}

func TestWorkingSet_AddInsertsBeforeTrailingRow(t *testing.T) {
	ws := newTestSet()
	id := ws.Add("NEW", "x")

	vars := ws.Vars()
	if len(vars) != 2 {
		t.Fatalf("expected 2 rows, got %+v", vars)
	}
	if vars[0].ID != id || vars[0].Name != "NEW" || !vars[0].Local || !vars[0].Editable {
		t.Fatalf("unexpected added row %+v", vars[0])
	}
	if !IsEmpty(vars[1]) {
		t.Fatalf("trailing row moved: %+v", vars)
	}
}

func TestWorkingSet_EditingTrailingRowCreatesNewOne(t *testing.T) {
	ws := newTestSet()
	trailing := ws.Vars()[0].ID

	if !ws.UpdateName(trailing, "FRESH") {
		t.Fatal("expected rename of the empty row")
	}
	vars := ws.Vars()
	if len(vars) != 2 || vars[0].Name != "FRESH" || !IsEmpty(vars[1]) {
		t.Fatalf("expected a fresh trailing row, got %+v", vars)
	}
}

func TestWorkingSet_StaticRowsAreReadOnly(t *testing.T) {
	ws := newTestSet()
	ws.Set(Merge(&Environment{Variables: []Variable{static("API_KEY", "abc123")}}, nil))
	id := ws.Vars()[0].ID

	if ws.UpdateValue(id, "hacked") {
		t.Fatal("static value must not change")
	}
	if ws.UpdateName(id, "OTHER") {
		t.Fatal("static name must not change")
	}
	if ws.Delete(id) {
		t.Fatal("static row must not be deleted")
	}
	if ws.SetByName("API_KEY", "x") {
		t.Fatal("SetByName must not override a static row")
	}
	if v, _ := ws.Lookup("API_KEY"); v != "abc123" {
		t.Fatalf("API_KEY = %q", v)
	}
}

func TestWorkingSet_SetByName(t *testing.T) {
	ws := newTestSet()
	ws.Set(Merge(&Environment{Variables: []Variable{dynamic("TOKEN")}}, nil))

	calls := 0
	unsubscribe := ws.Subscribe(func([]Resolved) { calls++ })
	defer unsubscribe()

	if !ws.SetByName("TOKEN", "t1") {
		t.Fatal("expected TOKEN to be set")
	}
	if ws.SetByName("TOKEN", "t1") {
		t.Fatal("same value should not count as a change")
	}
	if !ws.SetByName("SESSION", "s1") {
		t.Fatal("expected SESSION to be appended")
	}
	if calls != 2 {
		t.Fatalf("expected 2 notifications, got %d", calls)
	}

	vars := ws.Vars()
	if vars[1].Name != "SESSION" || vars[1].Local {
		t.Fatalf("unexpected appended row %+v", vars[1])
	}
	if !IsEmpty(vars[len(vars)-1]) {
		t.Fatalf("trailing row missing: %+v", vars)
	}
}

func TestWorkingSet_DeleteAndMap(t *testing.T) {
	ws := newTestSet()
	ws.Set([]Resolved{
		{Name: "A", Value: strPtr("1"), Editable: true, Local: true},
		{Name: "A", Value: strPtr("2"), Editable: true, Local: true},
		{Name: "B", Editable: true},
	})

	m := ws.Map()
	if m["A"] != "1" || m["B"] != "" || len(m) != 2 {
		t.Fatalf("unexpected map %v", m)
	}

	first := ws.Vars()[0].ID
	if !ws.Delete(first) {
		t.Fatal("delete failed")
	}
	if ws.Delete("missing") {
		t.Fatal("deleting an unknown id should report false")
	}
	if v, ok := ws.Lookup("A"); !ok || v != "2" {
		t.Fatalf("Lookup(A) = %q, %v", v, ok)
	}
}

func TestWorkingSet_ObserversGetCopies(t *testing.T) {
	ws := newTestSet()
	var seen []Resolved
	ws.Subscribe(func(v []Resolved) {
		seen = v
		*v[0].Value = "mutated"
	})
	ws.Add("A", "1")

	if seen == nil {
		t.Fatal("observer not called")
	}
	if v, _ := ws.Lookup("A"); v != "1" {
		t.Fatalf("observer mutation leaked into the set: %q", v)
	}
}

func TestWorkingSet_Unsubscribe(t *testing.T) {
	ws := newTestSet()
	calls := 0
	unsubscribe := ws.Subscribe(func([]Resolved) { calls++ })
	ws.Add("A", "1")
	unsubscribe()
	ws.Add("B", "2")
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestNonEmpty(t *testing.T) {
	in := []Resolved{{Name: "A"}, {Value: strPtr(" ")}, {Value: strPtr("v")}}
	if got := NonEmpty(in); len(got) != 2 {
		t.Fatalf("NonEmpty = %+v", got)
	}
}
