package domain

// Canonical object-store location of the virtual slide dataset.
const (
	DefaultBucket     = "pathology-bites-data"
	DefaultDatasetKey = "virtual-slides.json"
)

// Location addresses a single blob in the object store.
type Location struct {
	Bucket string
	Key    string
}

// DefaultLocation returns the canonical dataset location.
func DefaultLocation() Location {
	return Location{Bucket: DefaultBucket, Key: DefaultDatasetKey}
}

// String formats the location as bucket/key.
func (l Location) String() string { return l.Bucket + "/" + l.Key }
