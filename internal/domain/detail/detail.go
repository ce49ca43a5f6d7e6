// Package detail models batch lookups of full slide records by id.
package detail

import (
	"strings"

	"github.com/pathology-bites/slidedex/internal/domain"
	"github.com/pathology-bites/slidedex/internal/domain/slide"
)

// Batch caps for the detail lookup.
const (
	MaxGetIDs  = 50
	MaxPostIDs = 100
)

// Request is a validated, de-duplicated list of slide ids.
type Request struct {
	ids []string
}

// ParseIDs merges a single id and a list of ids (each list item may itself be
// comma-separated), trimming blanks and dropping duplicates in first-seen order.
func ParseIDs(single string, list ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(raw string) {
		for _, part := range strings.Split(raw, ",") {
			id := strings.TrimSpace(part)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	add(single)
	for _, l := range list {
		add(l)
	}
	return out
}

// ParseRequest builds a request from raw id parameters. The limit applies to
// every non-blank id supplied, duplicates included.
func ParseRequest(single string, list []string, limit int) (Request, error) {
	if n := countIDs(single, list); n > limit {
		return Request{}, tooMany(limit)
	}
	return NewRequest(ParseIDs(single, list...), limit)
}

func countIDs(single string, list []string) int {
	n := 0
	for _, raw := range append([]string{single}, list...) {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) != "" {
				n++
			}
		}
	}
	return n
}

// NewRequest validates the id count against limit.
func NewRequest(ids []string, limit int) (Request, error) {
	if len(ids) == 0 {
		return Request{}, domain.NewInvalidRequest("No slide IDs provided")
	}
	if len(ids) > limit {
		return Request{}, tooMany(limit)
	}
	cp := make([]string, len(ids))
	copy(cp, ids)
	return Request{ids: cp}, nil
}

// IDs returns the requested ids.
func (r Request) IDs() []string { return r.ids }

// Len returns the number of requested ids.
func (r Request) Len() int { return len(r.ids) }

// Result partitions requested ids into found records and missing ids.
type Result struct {
	Found       []slide.Slide
	NotFoundIDs []string
}

// Partition resolves every requested id against the lookup, in request order.
func Partition(lookup map[string]slide.Slide, req Request) Result {
	res := Result{
		Found:       make([]slide.Slide, 0, req.Len()),
		NotFoundIDs: []string{},
	}
	for _, id := range req.ids {
		if s, ok := lookup[id]; ok {
			res.Found = append(res.Found, s)
		} else {
			res.NotFoundIDs = append(res.NotFoundIDs, id)
		}
	}
	return res
}

func tooMany(limit int) error {
	return domain.NewInvalidRequest("Too many IDs requested. Maximum %d allowed.", limit)
}
