package slidedex

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/pathology-bites/slidedex/internal/domain/slide"
)

// IndexState tracks the one-shot index load.
type IndexState int

// Index load states. Ready and Error are terminal until Reload.
const (
	IndexIdle IndexState = iota
	IndexLoading
	IndexReady
	IndexError
)

func (s IndexState) String() string {
	switch s {
	case IndexIdle:
		return "idle"
	case IndexLoading:
		return "loading"
	case IndexReady:
		return "ready"
	case IndexError:
		return "error"
	default:
		return fmt.Sprintf("IndexState(%d)", int(s))
	}
}

// indexFetcher is the consumer interface for the index and detail endpoints.
type indexFetcher interface {
	FetchIndex(ctx context.Context) (*Index, error)
	FetchDetails(ctx context.Context, ids []string) (*Details, error)
}

// Catalog holds one session's view of the slide collection: the index,
// fetched once and filtered locally, and a detail cache that only grows.
// All methods are safe for concurrent use.
type Catalog struct {
	client indexFetcher
	obs    *observer

	mu         sync.RWMutex
	state      IndexState
	indexErr   error
	detailsErr error
	index      []IndexEntry
	repos      []string
	cats       []string
	details    map[string]Slide

	criteria    Criteria
	filtered    []IndexEntry
	filteredFor Criteria
	filteredOK  bool
	detailLoads int
	rng         *rand.Rand
	rngMu       sync.Mutex
}

// NewCatalog creates an empty Catalog. Call Load to fetch the index.
func NewCatalog(client *Client) *Catalog {
	c := newCatalog(client)
	c.obs = client.obs
	c.rng = client.cfg.rng
	return c
}

func newCatalog(client indexFetcher) *Catalog {
	return &Catalog{
		client:  client,
		details: make(map[string]Slide),
	}
}

// Load fetches the search index once. Calls after the first are no-ops until
// Reload. A failed fetch leaves the index empty and is reported by Err; it is
// also returned here.
func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.state != IndexIdle {
		c.mu.Unlock()
		return nil
	}
	c.state = IndexLoading
	c.mu.Unlock()

	idx, err := c.client.FetchIndex(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = IndexError
		c.indexErr = err
		c.index = nil
		c.repos, c.cats = nil, nil
		c.filteredOK = false
		return err
	}
	c.state = IndexReady
	c.indexErr = nil
	c.index = idx.Data
	c.repos, c.cats = slide.FilterOptions(c.index)
	c.filteredOK = false
	return nil
}

// Reload discards the index and fetches it again. The detail cache is kept.
func (c *Catalog) Reload(ctx context.Context) error {
	c.mu.Lock()
	if c.state == IndexLoading {
		c.mu.Unlock()
		return nil
	}
	c.state = IndexIdle
	c.mu.Unlock()
	return c.Load(ctx)
}

// State returns the index load state.
func (c *Catalog) State() IndexState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsLoadingIndex reports whether the index fetch is in flight.
func (c *Catalog) IsLoadingIndex() bool {
	return c.State() == IndexLoading
}

// IsLoadingDetails reports whether any detail fetch is in flight.
func (c *Catalog) IsLoadingDetails() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.detailLoads > 0
}

// Err returns the outstanding fetch failure, or nil. An index failure takes
// precedence and lasts until a Reload succeeds; a detail failure is cleared by
// the next successful detail fetch.
func (c *Catalog) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.indexErr != nil {
		return c.indexErr
	}
	return c.detailsErr
}

// SearchIndex returns a copy of the loaded index.
func (c *Catalog) SearchIndex() []IndexEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.index)
}

// Repositories returns the sorted distinct repositories in the index.
func (c *Catalog) Repositories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.repos)
}

// Categories returns the sorted distinct categories in the index.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.cats)
}

// SetFilters replaces the active criteria.
func (c *Catalog) SetFilters(crit Criteria) {
	c.mu.Lock()
	c.criteria = crit
	c.mu.Unlock()
}

// Filters returns the active criteria.
func (c *Catalog) Filters() Criteria {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.criteria
}

// Filtered returns the index entries matching the active criteria, in index
// order. The result is recomputed only when the index or criteria change,
// and never involves the network.
func (c *Catalog) Filtered() []IndexEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.filteredLocked())
}

func (c *Catalog) filteredLocked() []IndexEntry {
	norm := c.criteria.Normalize()
	if c.filteredOK && c.filteredFor == norm {
		return c.filtered
	}
	if norm.IsEmpty() {
		c.filtered = c.index
	} else {
		c.filtered = slide.Filter(c.index, norm)
	}
	c.filteredFor = norm
	c.filteredOK = true
	return c.filtered
}

// RandomSlides draws n entries uniformly without replacement from the
// filtered set (the full index when no filter is active).
func (c *Catalog) RandomSlides(n int) []IndexEntry {
	c.mu.Lock()
	pool := c.filteredLocked()
	c.mu.Unlock()

	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return slide.Sample(pool, n, c.rng)
}

// Detail returns a cached full record.
func (c *Catalog) Detail(id string) (Slide, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.details[id]
	return s, ok
}

// CachedDetails returns the number of cached full records.
func (c *Catalog) CachedDetails() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.details)
}

// LoadSlideDetails returns full records for ids: cached ones first, in the
// requested order, then newly fetched ones in server order. Only uncached ids
// go over the network. Ids the server does not know are dropped. On a fetch
// failure the cached records are returned along with the error.
func (c *Catalog) LoadSlideDetails(ctx context.Context, ids []string) ([]Slide, error) {
	c.mu.RLock()
	cached := make([]Slide, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if s, ok := c.details[id]; ok {
			cached = append(cached, s)
		} else {
			missing = append(missing, id)
		}
	}
	c.mu.RUnlock()

	c.obs.cacheLookup(len(cached), len(missing))
	if len(missing) == 0 {
		return cached, nil
	}

	c.mu.Lock()
	c.detailLoads++
	c.mu.Unlock()

	resp, err := c.client.FetchDetails(ctx, missing)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.detailLoads--
	if err != nil {
		c.detailsErr = err
		return cached, err
	}
	c.detailsErr = nil
	for _, s := range resp.Data {
		c.details[s.ID] = s
	}
	return append(cached, resp.Data...), nil
}
