// Package slide models virtual microscopy slide records and the minimal
// search index projected from them.
package slide

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/pathology-bites/slidedex/internal/domain"
)

// Slide is one virtual microscopy slide as stored in the dataset blob.
// Records are read-only here; ingestion happens out of band.
type Slide struct {
	ID              string     `json:"id"`
	Diagnosis       string     `json:"diagnosis,omitempty"`
	Category        string     `json:"category,omitempty"`
	Subcategory     string     `json:"subcategory,omitempty"`
	Repository      string     `json:"repository,omitempty"`
	PatientInfo     string     `json:"patient_info,omitempty"`
	ClinicalHistory string     `json:"clinical_history,omitempty"`
	Age             FlexString `json:"age,omitempty"`
	Gender          string     `json:"gender,omitempty"`
	StainType       string     `json:"stain_type,omitempty"`
	PreviewImageURL string     `json:"preview_image_url,omitempty"`
	SlideURL        string     `json:"slide_url,omitempty"`
	CaseURL         string     `json:"case_url,omitempty"`
	OtherURLs       []string   `json:"other_urls,omitempty"`

	// raw is the record exactly as stored; detail responses echo it so
	// fields this service does not model survive the round trip.
	raw json.RawMessage
}

type slideAlias Slide

// MarshalJSON emits the stored record when available.
func (s Slide) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	out, err := json.Marshal(slideAlias(s))
	if err != nil {
		return nil, fmt.Errorf("marshal slide %q: %w", s.ID, err)
	}
	return out, nil
}

// UnmarshalJSON decodes a record and keeps its raw form.
func (s *Slide) UnmarshalJSON(data []byte) error {
	var a slideAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err //nolint:wrapcheck // decoder adds position context
	}
	*s = Slide(a)
	s.raw = append(json.RawMessage(nil), data...)
	return nil
}

// FlexString decodes JSON strings, numbers, and null into a string.
// The dataset carries age both as "45" and 45.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err //nolint:wrapcheck // decoder adds position context
		}
		*f = FlexString(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		if i, err := n.Int64(); err == nil {
			*f = FlexString(strconv.FormatInt(i, 10))
			return nil
		}
		*f = FlexString(n.String())
		return nil
	}
}

// ParseDataset decodes the dataset blob. The blob must be a JSON array of
// records and every record must carry an id.
func ParseDataset(data []byte) ([]Slide, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: expected a JSON array of slides", domain.ErrMalformedDataset)
	}

	var slides []Slide
	if err := json.Unmarshal(trimmed, &slides); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedDataset, err)
	}

	for i := range slides {
		if slides[i].ID == "" {
			return nil, fmt.Errorf("%w: slide at position %d has no id", domain.ErrMalformedDataset, i)
		}
	}
	return slides, nil
}

// Lookup builds an id -> record map. The first record wins on duplicate ids.
func Lookup(slides []Slide) map[string]Slide {
	m := make(map[string]Slide, len(slides))
	for _, s := range slides {
		if _, ok := m[s.ID]; !ok {
			m[s.ID] = s
		}
	}
	return m
}
