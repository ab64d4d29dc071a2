package tabs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/apidesk/internal/catalog"
)

// BuildFromEndpoint seeds a new document from the endpoint's declared schema.
func BuildFromEndpoint(ep catalog.Endpoint, baseURL string, now time.Time) Document {
	method := strings.ToUpper(strings.TrimSpace(ep.Method))
	path := strings.TrimSpace(ep.Path)
	headers := make([]Pair, 0, len(ep.Headers))
	for _, h := range ep.Headers {
		headers = append(headers, Pair{K: h.Name})
	}
	query := make([]Pair, 0, len(ep.QueryParams))
	for _, q := range ep.QueryParams {
		query = append(query, Pair{K: q.Name, V: anyToString(q.DefaultValue)})
	}
	var body string
	if ep.Request != nil {
		body = exampleBody(ep.Request.ExampleModel)
	}
	bodyType, rawType := bodyTypeFor(ep.Consumes)
	ts := now.UnixMilli()

	return Document{
		Key:    KeyFor(method, path),
		Method: method,
		Path:   path,
		Request: Request{
			URL:         strings.TrimSuffix(strings.TrimSpace(baseURL), "/") + path,
			Headers:     headers,
			QueryParams: query,
			Body:        body,
			Consumes:    append([]string{}, ep.Consumes...),
			BodyType:    bodyType,
			RawType:     rawType,
			Mode:        ModeParams,
		},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
}

func exampleBody(model any) string {
	switch m := model.(type) {
	case nil:
		return ""
	case string:
		return m
	}
	b, err := json.MarshalIndent(model, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", model)
	}
	return string(b)
}

func anyToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case float64:
		// JSON numbers decode as float64; never use scientific notation
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool, int, int64, uint64:
		return fmt.Sprintf("%v", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		b = bytes.TrimSpace(b)
		if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
			return string(b[1 : len(b)-1])
		}
		return string(b)
	}
}
