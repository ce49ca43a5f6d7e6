package slide

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// All disables a repository or category filter.
const All = "all"

// Criteria selects index entries. Filters compose with logical AND; an
// empty Search and empty or "all" Repository/Category match everything.
type Criteria struct {
	Search     string `json:"search,omitempty"`
	Repository string `json:"repository,omitempty"`
	Category   string `json:"category,omitempty"`
}

// Normalize lowercases and trims the search term and folds "all" to empty.
func (c Criteria) Normalize() Criteria {
	out := Criteria{
		Search:     cases.Lower(language.Und).String(strings.TrimSpace(c.Search)),
		Repository: c.Repository,
		Category:   c.Category,
	}
	if out.Repository == All {
		out.Repository = ""
	}
	if out.Category == All {
		out.Category = ""
	}
	return out
}

// IsEmpty reports whether the criteria match every entry.
func (c Criteria) IsEmpty() bool {
	n := c.Normalize()
	return n.Search == "" && n.Repository == "" && n.Category == ""
}

// Match reports whether a single entry satisfies normalized criteria.
func (c Criteria) Match(e *IndexEntry) bool {
	if c.Search != "" && !strings.Contains(e.SearchText, c.Search) {
		return false
	}
	if c.Repository != "" && e.Repository != c.Repository {
		return false
	}
	if c.Category != "" && e.Category != c.Category {
		return false
	}
	return true
}

// Filter returns the entries matching c in index order. It never mutates
// entries and never returns an entry absent from it.
func Filter(entries []IndexEntry, c Criteria) []IndexEntry {
	n := c.Normalize()
	out := make([]IndexEntry, 0, len(entries))
	for i := range entries {
		if n.Match(&entries[i]) {
			out = append(out, entries[i])
		}
	}
	return out
}

// FilterOptions returns the sorted distinct non-empty repositories and categories.
func FilterOptions(entries []IndexEntry) (repositories, categories []string) {
	repoSet := make(map[string]struct{})
	catSet := make(map[string]struct{})
	for i := range entries {
		if r := entries[i].Repository; r != "" {
			repoSet[r] = struct{}{}
		}
		if c := entries[i].Category; c != "" {
			catSet[c] = struct{}{}
		}
	}
	return sortedKeys(repoSet), sortedKeys(catSet)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
