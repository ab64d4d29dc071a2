package envvars

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

func static(name, value string) Variable {
	return Variable{Name: name, Source: Source{Value: strPtr(value)}}
}

func dynamic(name string) Variable {
	return Variable{Name: name, Source: Source{Request: &Request{Endpoints: []string{"/login"}, Method: "post"}}}
}

func local(name, value string) Resolved {
	return Resolved{ID: "id-" + name, Name: name, Value: strPtr(value), Editable: true, Local: true}
}

type row struct {
	Name     string
	Value    string
	Null     bool
	Editable bool
	Local    bool
}

func rows(vars []Resolved) []row {
	out := make([]row, len(vars))
	for i, v := range vars {
		out[i] = row{Name: v.Name, Value: v.StringValue(), Null: v.Value == nil, Editable: v.Editable, Local: v.Local}
	}
	return out
}

func TestMerge_StaticWinsOverLocal(t *testing.T) {
	env := &Environment{Variables: []Variable{static("API_KEY", "abc123")}}
	got := Merge(env, []Resolved{local("API_KEY", "user-edited")})

	if got[0].Name != "API_KEY" || got[0].StringValue() != "abc123" || got[0].Editable || got[0].Local {
		t.Fatalf("unexpected first row %+v", got[0])
	}
}

func TestMerge_DynamicKeepsLocalOverride(t *testing.T) {
	env := &Environment{Variables: []Variable{dynamic("TOKEN")}}
	got := Merge(env, []Resolved{local("TOKEN", "xyz")})

	if got[0].StringValue() != "xyz" || !got[0].Editable || got[0].Local {
		t.Fatalf("unexpected first row %+v", got[0])
	}
}

func TestMerge_Layout(t *testing.T) {
	env := &Environment{Variables: []Variable{
		static("BASE_URL", "http://api"),
		dynamic("TOKEN"),
		dynamic("SESSION"),
	}}
	localVars := []Resolved{
		local("EXTRA_B", "b"),
		local("TOKEN", "t-1"),
		{ID: "blank", Name: "", Value: strPtr("ignored")},
		local("EXTRA_A", "a"),
		local("EXTRA_B", "b2"),
	}

	got := rows(Merge(env, localVars))
	want := []row{
		{Name: "BASE_URL", Value: "http://api", Editable: false},
		{Name: "TOKEN", Value: "t-1", Editable: true},
		{Name: "SESSION", Null: true, Editable: true},
		{Name: "EXTRA_B", Value: "b2", Editable: true, Local: true},
		{Name: "EXTRA_A", Value: "a", Editable: true, Local: true},
		{Name: "", Value: "", Editable: true, Local: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merge layout\n got: %+v\nwant: %+v", got, want)
	}
}

func TestMerge_IDs(t *testing.T) {
	env := &Environment{Variables: []Variable{dynamic("TOKEN")}}
	got := Merge(env, []Resolved{local("TOKEN", "x"), local("ONLY_LOCAL", "y")})
	if got[0].ID != "" {
		t.Fatalf("remote-derived row should have empty id, got %q", got[0].ID)
	}
	if got[1].ID != "id-ONLY_LOCAL" {
		t.Fatalf("local-only row should keep its id, got %q", got[1].ID)
	}
}

func TestMerge_NilEnvironment(t *testing.T) {
	got := rows(Merge(nil, []Resolved{local("A", "1")}))
	want := []row{
		{Name: "A", Value: "1", Editable: true, Local: true},
		{Editable: true, Local: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
}

func TestMerge_DoesNotAliasInput(t *testing.T) {
	in := []Resolved{local("A", "1")}
	out := Merge(&Environment{}, in)
	*out[0].Value = "changed"
	if in[0].StringValue() != "1" {
		t.Fatal("merge output aliases input values")
	}
}

func randomInputs(r *rand.Rand) (*Environment, []Resolved) {
	env := &Environment{}
	for i := 0; i < r.Intn(6); i++ {
		name := fmt.Sprintf("V%d", r.Intn(8))
		if r.Intn(2) == 0 {
			env.Variables = append(env.Variables, static(name, fmt.Sprintf("s%d", i)))
		} else {
			env.Variables = append(env.Variables, dynamic(name))
		}
	}
	var vars []Resolved
	for i := 0; i < r.Intn(8); i++ {
		switch r.Intn(4) {
		case 0:
			vars = append(vars, Resolved{Value: strPtr("")})
		default:
			vars = append(vars, local(fmt.Sprintf("V%d", r.Intn(10)), fmt.Sprintf("l%d", i)))
		}
	}
	return env, vars
}

func TestMerge_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		env, vars := randomInputs(r)

		first := Merge(env, vars)
		second := Merge(env, vars)
		if !reflect.DeepEqual(rows(first), rows(second)) {
			t.Fatalf("merge is not deterministic for %+v / %+v", env, vars)
		}

		// static variables always carry the declared value
		for j, sv := range env.Variables {
			if sv.IsStatic() && (first[j].StringValue() != *sv.Source.Value || first[j].Editable) {
				t.Fatalf("static %s overridden: %+v", sv.Name, first[j])
			}
		}

		empties := 0
		for _, m := range first {
			if IsEmpty(m) {
				empties++
			}
		}
		if empties != 1 {
			t.Fatalf("expected exactly one empty row, got %d in %+v", empties, rows(first))
		}
		if !IsEmpty(first[len(first)-1]) {
			t.Fatalf("empty row must be last: %+v", rows(first))
		}

		// remote-derived rows come first, in schema order
		for j, sv := range env.Variables {
			if first[j].Name != sv.Name || first[j].Local {
				t.Fatalf("row %d = %+v, want remote %s", j, first[j], sv.Name)
			}
		}
	}
}

func TestIsEmpty(t *testing.T) {
	tests := []struct {
		v    Resolved
		want bool
	}{
		{Resolved{}, true},
		{Resolved{Name: "  ", Value: strPtr(" ")}, true},
		{Resolved{Name: "A"}, false},
		{Resolved{Value: strPtr("x")}, false},
	}
	for _, tt := range tests {
		if got := IsEmpty(tt.v); got != tt.want {
			t.Errorf("IsEmpty(%+v) = %v", tt.v, got)
		}
	}
}
