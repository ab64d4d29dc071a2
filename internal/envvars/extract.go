package envvars

import (
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Extraction is a value taken from a response for a dynamic variable.
type Extraction struct {
	Name  string
	Value string
}

// Extract evaluates every dynamic variable bound to method and path against a
// response. Body paths are gjson paths; header paths are header names.
// Variables whose value cannot be found are skipped.
func Extract(env *Environment, method, path string, header http.Header, body []byte) []Extraction {
	if env == nil {
		return nil
	}
	var parsed gjson.Result
	parsedOnce := false
	var out []Extraction
	for _, v := range env.Variables {
		req := v.Source.Request
		if v.IsStatic() || req == nil || !strings.EqualFold(req.Method, method) || !containsPath(req.Endpoints, path) {
			continue
		}
		if p := deref(req.Response.BodyAttributePath); p != "" && len(body) > 0 {
			if !parsedOnce {
				parsed, parsedOnce = gjson.ParseBytes(body), true
			}
			if res := parsed.Get(p); res.Exists() {
				out = append(out, Extraction{Name: v.Name, Value: res.String()})
				continue
			}
		}
		if h := deref(req.Response.HeaderAttributePath); h != "" && header != nil {
			if val := header.Get(h); val != "" {
				out = append(out, Extraction{Name: v.Name, Value: val})
			}
		}
	}
	return out
}

func containsPath(endpoints []string, path string) bool {
	for _, e := range endpoints {
		if strings.TrimSpace(e) == path {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
