package health

import "context"

// StorageChecker checks object store configuration or reachability.
type StorageChecker interface {
	Check(ctx context.Context) error
}

// CachePinger checks the shared blob cache.
type CachePinger interface {
	Ping(ctx context.Context) error
}
