// Package tabs stores the per-tab request documents.
package tabs

// BodyType is the body editor mode.
type BodyType string

const (
	BodyNone           BodyType = "none"
	BodyFormData       BodyType = "form-data"
	BodyFormURLEncoded BodyType = "x-www-form-urlencoded"
	BodyRaw            BodyType = "raw"
	BodyBinary         BodyType = "binary"
)

// RawType is the syntax of a raw body.
type RawType string

const (
	RawJSON       RawType = "JSON"
	RawXML        RawType = "XML"
	RawHTML       RawType = "HTML"
	RawJavaScript RawType = "JavaScript"
	RawText       RawType = "text"
)

// EditMode is the request section being edited.
type EditMode string

const (
	ModeParams  EditMode = "params"
	ModeHeaders EditMode = "headers"
	ModeBody    EditMode = "body"
)

// Pair is one header or query parameter row.
type Pair struct {
	K string `json:"k"`
	V string `json:"v"`
}

// Request is the editable request state of a tab.
type Request struct {
	URL         string   `json:"url"`
	Headers     []Pair   `json:"headers"`
	QueryParams []Pair   `json:"queryParams"`
	Body        string   `json:"body"`
	Consumes    []string `json:"consumes"`
	BodyType    BodyType `json:"bodyType"`
	RawType     RawType  `json:"rawType,omitempty"`
	Mode        EditMode `json:"mode"`
}

// Response is the last response received in a tab.
type Response struct {
	Status    int               `json:"status,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	TimeMs    int64             `json:"timeMs,omitempty"`
	Timestamp int64             `json:"timestamp,omitempty"`
}

// Document is one open tab. Timestamps are Unix milliseconds.
type Document struct {
	Key          string    `json:"key"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Request      Request   `json:"uiRequest"`
	LastResponse *Response `json:"lastResponse,omitempty"`
	CreatedAt    int64     `json:"createdAt"`
	UpdatedAt    int64     `json:"updatedAt"`
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := d
	out.Request.Headers = append([]Pair(nil), d.Request.Headers...)
	out.Request.QueryParams = append([]Pair(nil), d.Request.QueryParams...)
	out.Request.Consumes = append([]string(nil), d.Request.Consumes...)
	if d.LastResponse != nil {
		r := *d.LastResponse
		if d.LastResponse.Headers != nil {
			r.Headers = make(map[string]string, len(d.LastResponse.Headers))
			for k, v := range d.LastResponse.Headers {
				r.Headers[k] = v
			}
		}
		out.LastResponse = &r
	}
	return out
}
