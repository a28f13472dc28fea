package registry

import (
	"sort"
	"strings"

	"github.com/JamesPrial/mcp-registry-gateway/pkg/mcp"
)

// Filters narrow a search; zero values match everything and all set fields must match
type Filters struct {
	Query string   `mapstructure:"query" json:"query,omitempty"`
	Tags  []string `mapstructure:"tags" json:"tags,omitempty"`
	Type  string   `mapstructure:"type" json:"type,omitempty"`
	// Limit <= 0 returns every match
	Limit int `mapstructure:"limit" json:"limit,omitempty"`
}

func (f Filters) Match(r mcp.ServerRecord) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" && !matchesQuery(r, q) {
		return false
	}
	for _, want := range f.Tags {
		if !hasTag(r.Tags, want) {
			return false
		}
	}
	if t := strings.TrimSpace(f.Type); t != "" && !strings.EqualFold(r.Type, t) {
		return false
	}
	return true
}

func matchesQuery(r mcp.ServerRecord, q string) bool {
	if strings.Contains(strings.ToLower(r.Name), q) || strings.Contains(strings.ToLower(r.Description), q) {
		return true
	}
	for _, tag := range r.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func hasTag(tags []string, want string) bool {
	want = strings.TrimSpace(want)
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}

// SortDefault orders by stars descending, then name
func SortDefault(records []mcp.ServerRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Stars != records[j].Stars {
			return records[i].Stars > records[j].Stars
		}
		return records[i].Name < records[j].Name
	})
}
