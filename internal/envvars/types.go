// Package envvars resolves the environment variable working set from local
// edits and the remote environment schema.
package envvars

import (
	"context"
	"strings"
)

// Environment is the remote-declared variable schema.
type Environment struct {
	Variables []Variable `json:"variables"`
}

// Variable is one remote-declared variable.
type Variable struct {
	Name   string `json:"name"`
	Source Source `json:"source"`
}

// Source describes where a variable's value comes from. A non-nil Value makes the variable static.
type Source struct {
	Value   *string  `json:"value"`
	Request *Request `json:"request,omitempty"`
}

// Request names the endpoints whose responses feed a dynamic variable.
type Request struct {
	Endpoints []string `json:"endpoints"`
	Method    string   `json:"method"`
	Response  Response `json:"response"`
}

// Response locates the value inside a response.
type Response struct {
	BodyAttributePath   *string `json:"bodyAttributePath,omitempty"`
	HeaderAttributePath *string `json:"headerAttributePath,omitempty"`
}

// IsStatic reports whether the server dictates the value.
func (v Variable) IsStatic() bool {
	return v.Source.Value != nil
}

// Resolved is one row of the working set.
type Resolved struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Value    *string `json:"value"`
	Editable bool    `json:"editable"`
	// Local marks a variable with no remote counterpart.
	Local bool `json:"local"`
}

// StringValue returns the value or "" when null.
func (r Resolved) StringValue() string {
	if r.Value == nil {
		return ""
	}
	return *r.Value
}

// IsEmpty reports whether both name and value are blank.
func IsEmpty(r Resolved) bool {
	return strings.TrimSpace(r.Name) == "" && strings.TrimSpace(r.StringValue()) == ""
}

// CachedEnvironment is the last fetched schema plus the liveness fingerprint seen with it.
type CachedEnvironment struct {
	Instance Environment `json:"instance"`
	Uptime   string      `json:"uptime"`
}

// Liveness is the result of a liveness probe.
type Liveness struct {
	Uptime string `json:"uptime"`
}

// RemoteSource fetches the remote schema and liveness signal.
type RemoteSource interface {
	FetchEnvironment(ctx context.Context) (*Environment, error)
	ProbeLiveness(ctx context.Context) (Liveness, error)
}

func strPtr(s string) *string { return &s }
