package util

import (
	"bytes"
	"text/template"
)

// RenderTemplate renders s as a Go template with vars exposed under .env,
// e.g. "{{.env.baseUrl}}/users". Unparseable templates or missing keys leave s unchanged.
func RenderTemplate(s string, vars map[string]string) string {
	out, err := RenderTemplateErr(s, vars)
	if err != nil {
		return s
	}
	return out
}

// RenderTemplateErr behaves like RenderTemplate but reports parse, validation
// and missing-key errors.
func RenderTemplateErr(s string, vars map[string]string) (string, error) {
	if len(s) == 0 {
		return s, nil
	}
	if err := ValidateTemplate(s); err != nil {
		return "", err
	}
	t, err := template.New("gotmpl").Option("missingkey=error").Parse(s)
	if err != nil {
		return "", err
	}
	if vars == nil {
		vars = map[string]string{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]any{"env": vars}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderAnyTemplate walks arbitrary structures (map[string]any, []any) and renders
// all string values with RenderTemplate. Non-string scalars are returned as is.
func RenderAnyTemplate(in any, vars map[string]string) any {
	var fn func(v any) any
	fn = func(v any) any {
		switch t := v.(type) {
		case map[string]any:
			m := make(map[string]any, len(t))
			for k, vv := range t {
				m[k] = fn(vv)
			}
			return m
		case []any:
			arr := make([]any, len(t))
			for i := range t {
				arr[i] = fn(t[i])
			}
			return arr
		case string:
			return RenderTemplate(t, vars)
		default:
			return v
		}
	}
	return fn(in)
}
