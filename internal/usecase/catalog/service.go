// Package catalog serves the minimal search index and batch slide details.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/pathology-bites/slidedex/internal/domain/detail"
	"github.com/pathology-bites/slidedex/internal/domain/slide"
)

// PayloadMinimalIndex tags index responses.
const PayloadMinimalIndex = "minimal-index"

// Performance reports index build timings in milliseconds.
type Performance struct {
	LoadMs  int64 `json:"loadMs"`
	BuildMs int64 `json:"buildMs"`
	TotalMs int64 `json:"totalMs"`
}

// IndexMetadata describes an index response.
type IndexMetadata struct {
	TotalSlides   int            `json:"totalSlides"`
	OriginalTotal int            `json:"originalTotal"`
	SizeReduction string         `json:"sizeReduction"`
	PayloadType   string         `json:"payloadType"`
	Filters       slide.Criteria `json:"filters"`
	Performance   Performance    `json:"performance"`
}

// IndexResult is the search index plus its metadata.
type IndexResult struct {
	Entries  []slide.IndexEntry
	Metadata IndexMetadata
}

// Service builds index and detail responses from the dataset.
type Service struct {
	loader DatasetLoader
	now    func() time.Time
}

// New creates a catalog service.
func New(loader DatasetLoader) *Service {
	return &Service{loader: loader, now: time.Now}
}

// SearchIndex loads the dataset and projects it into the minimal index.
// Non-empty criteria are applied server-side; empty criteria return every entry.
func (s *Service) SearchIndex(ctx context.Context, c slide.Criteria) (IndexResult, error) {
	start := s.now()

	slides, err := s.loader.Load(ctx)
	if err != nil {
		return IndexResult{}, fmt.Errorf("load dataset: %w", err)
	}
	loaded := s.now()

	entries := slide.BuildIndex(slides)
	if !c.IsEmpty() {
		entries = slide.Filter(entries, c)
	}
	built := s.now()

	reduction, err := sizeReduction(slides, entries)
	if err != nil {
		return IndexResult{}, err
	}

	return IndexResult{
		Entries: entries,
		Metadata: IndexMetadata{
			TotalSlides:   len(entries),
			OriginalTotal: len(slides),
			SizeReduction: reduction,
			PayloadType:   PayloadMinimalIndex,
			Filters:       c.Normalize(),
			Performance: Performance{
				LoadMs:  loaded.Sub(start).Milliseconds(),
				BuildMs: built.Sub(loaded).Milliseconds(),
				TotalMs: built.Sub(start).Milliseconds(),
			},
		},
	}, nil
}

// Details resolves the requested ids against the dataset.
func (s *Service) Details(ctx context.Context, req detail.Request) (detail.Result, error) {
	slides, err := s.loader.Load(ctx)
	if err != nil {
		return detail.Result{}, fmt.Errorf("load dataset: %w", err)
	}
	return detail.Partition(slide.Lookup(slides), req), nil
}

// sizeReduction is the share of JSON bytes saved by serving entries instead of
// the full records, formatted as "NN%".
func sizeReduction(slides []slide.Slide, entries []slide.IndexEntry) (string, error) {
	full, err := json.Marshal(slides)
	if err != nil {
		return "", fmt.Errorf("measure dataset: %w", err)
	}
	minimal, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("measure index: %w", err)
	}
	if len(full) == 0 {
		return "0%", nil
	}
	pct := math.Round((1 - float64(len(minimal))/float64(len(full))) * 100)
	return fmt.Sprintf("%d%%", int(pct)), nil
}
