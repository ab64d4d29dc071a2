package tabs

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is returned for keys that do not have the METHOD:path form.
var ErrInvalidKey = errors.New("tabs: invalid tab key")

// KeyFor returns the canonical tab key for an endpoint, e.g. "GET:/users".
func KeyFor(method, path string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + ":" + strings.TrimSpace(path)
}

// ParseKey splits a tab key back into method and path.
func ParseKey(key string) (method, path string, err error) {
	method, path, ok := strings.Cut(key, ":")
	if !ok || method == "" || path == "" || method != strings.ToUpper(method) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return method, path, nil
}
