// Package catalog holds the endpoint catalog the workspace opens tabs from.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no endpoint matches a method and path.
var ErrNotFound = errors.New("catalog: endpoint not found")

// Document is a catalog of endpoints.
type Document struct {
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Endpoints []Endpoint `json:"endpoints" yaml:"endpoints"`
}

// Endpoint describes one operation of the target API.
type Endpoint struct {
	Method      string   `json:"method" yaml:"method"`
	Path        string   `json:"path" yaml:"path"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	Headers     []Param  `json:"headers,omitempty" yaml:"headers,omitempty"`
	QueryParams []Param  `json:"query_params,omitempty" yaml:"query_params,omitempty"`
	Consumes    []string `json:"consumes,omitempty" yaml:"consumes,omitempty"`
	Request     *Body    `json:"request,omitempty" yaml:"request,omitempty"`
}

// Param is a declared header or query parameter.
type Param struct {
	Name         string `json:"name" yaml:"name"`
	DefaultValue any    `json:"default_value,omitempty" yaml:"default_value,omitempty"`
	Required     bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// Body carries the example request body.
type Body struct {
	ExampleModel any `json:"example_model,omitempty" yaml:"example_model,omitempty"`
}

// DisplayName returns Name, or "METHOD path" when unnamed.
func (e Endpoint) DisplayName() string {
	if strings.TrimSpace(e.Name) != "" {
		return e.Name
	}
	return strings.ToUpper(e.Method) + " " + e.Path
}

// Find returns the endpoint matching method (case-insensitive) and path.
func (d *Document) Find(method, path string) (Endpoint, error) {
	if d == nil {
		return Endpoint{}, ErrNotFound
	}
	for _, ep := range d.Endpoints {
		if strings.EqualFold(ep.Method, method) && ep.Path == path {
			return ep, nil
		}
	}
	return Endpoint{}, fmt.Errorf("%w: %s %s", ErrNotFound, strings.ToUpper(method), path)
}

// Parse decodes a YAML or JSON catalog document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	for i, ep := range doc.Endpoints {
		if strings.TrimSpace(ep.Method) == "" || strings.TrimSpace(ep.Path) == "" {
			return nil, fmt.Errorf("catalog: endpoint %d: method and path are required", i)
		}
		doc.Endpoints[i].Method = strings.ToUpper(strings.TrimSpace(ep.Method))
	}
	return &doc, nil
}

// LoadFile reads and parses the catalog at path.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}
