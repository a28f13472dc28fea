package eventlog

import (
	"sort"
	"strings"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/errors"
	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

// TypeFilter is a set of event types; an empty filter admits everything
type TypeFilter map[mcp.EventType]struct{}

// NewTypeFilter builds a filter from already-validated types
func NewTypeFilter(types ...mcp.EventType) TypeFilter {
	if len(types) == 0 {
		return nil
	}
	f := make(TypeFilter, len(types))
	for _, t := range types {
		f[t] = struct{}{}
	}
	return f
}

// ParseTypeFilter reads a comma separated list such as "registered,updated".
// Blank input yields the empty filter.
func ParseTypeFilter(s string) (TypeFilter, error) {
	var types []mcp.EventType
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := mcp.ParseEventType(part)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeEventType, "invalid types filter").
				WithDetails(map[string]string{"type": strings.TrimSpace(part)})
		}
		types = append(types, t)
	}
	return NewTypeFilter(types...), nil
}

func (f TypeFilter) Allows(t mcp.EventType) bool {
	if len(f) == 0 {
		return true
	}
	_, ok := f[t]
	return ok
}

// String renders the filter in its wire form, sorted
func (f TypeFilter) String() string {
	names := make([]string, 0, len(f))
	for t := range f {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
