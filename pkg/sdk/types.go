package slidedex

import (
	"github.com/pathology-bites/slidedex/internal/domain/slide"
	"github.com/pathology-bites/slidedex/internal/usecase/catalog"
)

// Slide is a full slide record. Fields the service does not model are
// preserved and re-emitted by json.Marshal.
type Slide = slide.Slide

// IndexEntry is the minimal searchable projection of a Slide.
type IndexEntry = slide.IndexEntry

// Criteria filters the index. "all" or empty Repository/Category match everything.
type Criteria = slide.Criteria

// IndexMetadata describes a search-index response.
type IndexMetadata = catalog.IndexMetadata

// Index is the decoded search-index response.
type Index struct {
	Data     []IndexEntry  `json:"data"`
	Metadata IndexMetadata `json:"metadata"`
}

// DetailsMetadata summarizes a detail lookup.
type DetailsMetadata struct {
	Requested   int      `json:"requested"`
	Found       int      `json:"found"`
	NotFound    int      `json:"notFound"`
	NotFoundIDs []string `json:"notFoundIds,omitempty"`
}

// Details is the decoded details response.
type Details struct {
	Data     []Slide         `json:"data"`
	Metadata DetailsMetadata `json:"metadata"`
}

// HealthReport is the decoded health response.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

type detailsBody struct {
	IDs []string `json:"ids"`
}
