package slide

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NoDiagnosis is displayed for records that carry no diagnosis.
const NoDiagnosis = "No diagnosis available"

// IndexEntry is the minimal projection of a Slide served to clients for
// search. It is a pure function of the source record.
type IndexEntry struct {
	ID              string `json:"id"`
	Diagnosis       string `json:"diagnosis"`
	Repository      string `json:"repository"`
	Category        string `json:"category"`
	Subcategory     string `json:"subcategory"`
	PatientInfo     string `json:"patient_info"`
	Age             string `json:"age"`
	Gender          string `json:"gender"`
	StainType       string `json:"stain_type"`
	PreviewImageURL string `json:"preview_image_url"`
	SlideURL        string `json:"slide_url"`
	CaseURL         string `json:"case_url"`
	ClinicalHistory string `json:"clinical_history"`
	SearchText      string `json:"searchText"`
}

// BuildIndex projects every slide into an IndexEntry, preserving order.
func BuildIndex(slides []Slide) []IndexEntry {
	lower := cases.Lower(language.Und)
	out := make([]IndexEntry, len(slides))
	for i := range slides {
		out[i] = project(&slides[i], lower)
	}
	return out
}

func project(s *Slide, lower cases.Caser) IndexEntry {
	diagnosis := s.Diagnosis
	if diagnosis == "" {
		diagnosis = NoDiagnosis
	}
	return IndexEntry{
		ID:              s.ID,
		Diagnosis:       diagnosis,
		Repository:      s.Repository,
		Category:        s.Category,
		Subcategory:     s.Subcategory,
		PatientInfo:     s.PatientInfo,
		Age:             string(s.Age),
		Gender:          s.Gender,
		StainType:       s.StainType,
		PreviewImageURL: s.PreviewImageURL,
		SlideURL:        s.SlideURL,
		CaseURL:         s.CaseURL,
		ClinicalHistory: s.ClinicalHistory,
		SearchText:      searchText(s, lower),
	}
}

// searchText joins the searchable fields, skipping blank ones. The stored
// diagnosis is used, not the display placeholder.
func searchText(s *Slide, lower cases.Caser) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{s.Diagnosis, s.Repository, s.Category, s.Subcategory} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	return lower.String(strings.Join(parts, " "))
}
