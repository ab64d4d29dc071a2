package envvars

// Merge combines the remote schema with the local snapshot. It is pure: the
// same inputs always give the same output in the same order.
//
// Remote-derived rows come first in schema order. Static variables always take
// the remote value and are read-only; dynamic ones keep a local override when
// present. Unmatched local rows follow in their original order, and one empty
// row is appended unless the result already has one. Remote-derived rows get
// an empty ID; the working set assigns one.
func Merge(env *Environment, local []Resolved) []Resolved {
	byName := make(map[string]Resolved, len(local))
	order := make([]string, 0, len(local))
	for _, lv := range local {
		if lv.Name == "" {
			continue
		}
		// later duplicates win on value, the first keeps its position
		if _, seen := byName[lv.Name]; !seen {
			order = append(order, lv.Name)
		}
		byName[lv.Name] = lv
	}

	var result []Resolved
	if env != nil {
		result = make([]Resolved, 0, len(env.Variables)+len(order)+1)
		for _, sv := range env.Variables {
			r := Resolved{Name: sv.Name, Local: false}
			lv, matched := byName[sv.Name]
			switch {
			case sv.IsStatic():
				r.Value = strPtr(*sv.Source.Value)
				r.Editable = false
			case matched && lv.Value != nil:
				r.Value = strPtr(*lv.Value)
				r.Editable = true
			default:
				r.Editable = true
			}
			result = append(result, r)
			delete(byName, sv.Name)
		}
	}

	for _, name := range order {
		r, ok := byName[name]
		if !ok {
			continue
		}
		if r.Value != nil {
			r.Value = strPtr(*r.Value)
		}
		r.Editable = true
		r.Local = true
		result = append(result, r)
	}

	return withTrailingRow(result, func() string { return "" })
}

// withTrailingRow appends an empty editable local row unless one exists.
func withTrailingRow(vars []Resolved, newID func() string) []Resolved {
	for _, v := range vars {
		if IsEmpty(v) {
			return vars
		}
	}
	return append(vars, Resolved{ID: newID(), Value: strPtr(""), Editable: true, Local: true})
}
