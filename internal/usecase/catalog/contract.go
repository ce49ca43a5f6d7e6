package catalog

import (
	"context"

	"github.com/pathology-bites/slidedex/internal/domain/slide"
)

// DatasetLoader provides the parsed slide dataset.
type DatasetLoader interface {
	Load(ctx context.Context) ([]slide.Slide, error)
}
