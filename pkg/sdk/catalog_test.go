package slidedex

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathology-bites/slidedex/internal/domain/slide"
)

// --- Mocks ---

type mockFetcher struct {
	indexFn   func(ctx context.Context) (*Index, error)
	detailsFn func(ctx context.Context, ids []string) (*Details, error)

	indexCalls   atomic.Int32
	detailsCalls atomic.Int32
	mu           sync.Mutex
	requested    [][]string
}

func (m *mockFetcher) FetchIndex(ctx context.Context) (*Index, error) {
	m.indexCalls.Add(1)
	return m.indexFn(ctx)
}

func (m *mockFetcher) FetchDetails(ctx context.Context, ids []string) (*Details, error) {
	m.detailsCalls.Add(1)
	m.mu.Lock()
	m.requested = append(m.requested, append([]string(nil), ids...))
	m.mu.Unlock()
	return m.detailsFn(ctx, ids)
}

func testIndex(t *testing.T) []IndexEntry {
	t.Helper()
	slides, err := slide.ParseDataset([]byte(threeSlides))
	require.NoError(t, err)
	return slide.BuildIndex(slides)
}

// datasetFetcher serves the three-slide dataset.
func datasetFetcher(t *testing.T) *mockFetcher {
	t.Helper()
	slides, err := slide.ParseDataset([]byte(threeSlides))
	require.NoError(t, err)
	byID := slide.Lookup(slides)
	index := slide.BuildIndex(slides)

	return &mockFetcher{
		indexFn: func(_ context.Context) (*Index, error) {
			return &Index{Data: index}, nil
		},
		detailsFn: func(_ context.Context, ids []string) (*Details, error) {
			d := &Details{}
			for _, id := range ids {
				if s, ok := byID[id]; ok {
					d.Data = append(d.Data, s)
				} else {
					d.Metadata.NotFoundIDs = append(d.Metadata.NotFoundIDs, id)
				}
			}
			return d, nil
		},
	}
}

func entryIDs(entries []IndexEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func slideIDs(slides []Slide) []string {
	ids := make([]string, len(slides))
	for i, s := range slides {
		ids[i] = s.ID
	}
	return ids
}

// --- Index loading ---

func TestCatalog_Load(t *testing.T) {
	f := datasetFetcher(t)
	cat := newCatalog(f)
	assert.Equal(t, IndexIdle, cat.State())

	require.NoError(t, cat.Load(context.Background()))
	assert.Equal(t, IndexReady, cat.State())
	assert.False(t, cat.IsLoadingIndex())
	require.NoError(t, cat.Err())

	assert.Equal(t, []string{"a", "b", "c"}, entryIDs(cat.SearchIndex()))
	assert.Equal(t, []string{"X", "Y"}, cat.Repositories())
	assert.Equal(t, []string{"Heme", "Onc"}, cat.Categories())

	// Terminal: a second Load does not refetch.
	require.NoError(t, cat.Load(context.Background()))
	assert.Equal(t, int32(1), f.indexCalls.Load())
}

func TestCatalog_LoadError(t *testing.T) {
	fail := &StatusError{Code: 500, Message: "Failed to fetch virtual slides metadata", Details: "network down"}
	f := &mockFetcher{indexFn: func(_ context.Context) (*Index, error) { return nil, fail }}
	cat := newCatalog(f)

	err := cat.Load(context.Background())
	require.ErrorIs(t, err, fail)
	assert.Equal(t, IndexError, cat.State())
	assert.Contains(t, cat.Err().Error(), "Failed to fetch virtual slides metadata")
	assert.Empty(t, cat.SearchIndex())
	assert.Empty(t, cat.Filtered())
	assert.Empty(t, cat.RandomSlides(3))

	// No automatic retry.
	require.NoError(t, cat.Load(context.Background()))
	assert.Equal(t, int32(1), f.indexCalls.Load())
}

func TestCatalog_Reload(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	index := testIndex(t)
	f := &mockFetcher{indexFn: func(_ context.Context) (*Index, error) {
		if fail.Load() {
			return nil, ErrNetwork
		}
		return &Index{Data: index}, nil
	}}
	cat := newCatalog(f)

	require.ErrorIs(t, cat.Load(context.Background()), ErrNetwork)
	fail.Store(false)
	require.NoError(t, cat.Reload(context.Background()))

	assert.Equal(t, IndexReady, cat.State())
	assert.NoError(t, cat.Err())
	assert.Len(t, cat.SearchIndex(), 3)
	assert.Equal(t, int32(2), f.indexCalls.Load())
}

func TestCatalog_IsLoadingIndex(t *testing.T) {
	release := make(chan struct{})
	index := testIndex(t)
	f := &mockFetcher{indexFn: func(_ context.Context) (*Index, error) {
		<-release
		return &Index{Data: index}, nil
	}}
	cat := newCatalog(f)

	done := make(chan error)
	go func() { done <- cat.Load(context.Background()) }()

	require.Eventually(t, cat.IsLoadingIndex, time.Second, time.Millisecond)
	assert.Empty(t, cat.Filtered(), "filtering while loading sees an empty index")
	close(release)
	require.NoError(t, <-done)
	assert.False(t, cat.IsLoadingIndex())
}

// --- Filtering ---

func TestCatalog_Filtered(t *testing.T) {
	cat := newCatalog(datasetFetcher(t))
	require.NoError(t, cat.Load(context.Background()))

	assert.Equal(t, []string{"a", "b", "c"}, entryIDs(cat.Filtered()))

	cat.SetFilters(Criteria{Search: "lymphoma"})
	assert.Equal(t, []string{"a", "c"}, entryIDs(cat.Filtered()))

	cat.SetFilters(Criteria{Repository: "X", Category: "Onc"})
	assert.Empty(t, cat.Filtered())

	cat.SetFilters(Criteria{Search: "", Repository: "all", Category: "all"})
	assert.Len(t, cat.Filtered(), 3)
	assert.Equal(t, Criteria{Repository: "all", Category: "all"}, cat.Filters())
}

func TestCatalog_FilteredIdempotentAndComposes(t *testing.T) {
	cat := newCatalog(datasetFetcher(t))
	require.NoError(t, cat.Load(context.Background()))

	both := Criteria{Search: "lymph", Repository: "X", Category: "Heme"}
	cat.SetFilters(both)
	first := cat.Filtered()
	second := cat.Filtered()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("filtering is not idempotent (-first +second):\n%s", diff)
	}

	var parts [][]IndexEntry
	for _, c := range []Criteria{{Search: "lymph"}, {Repository: "X"}, {Category: "Heme"}} {
		cat.SetFilters(c)
		parts = append(parts, cat.Filtered())
	}
	inAll := func(id string) bool {
		for _, p := range parts {
			found := false
			for _, e := range p {
				if e.ID == id {
					found = true
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	var intersection []string
	for _, e := range cat.SearchIndex() {
		if inAll(e.ID) {
			intersection = append(intersection, e.ID)
		}
	}
	assert.Equal(t, intersection, entryIDs(first))
}

func TestCatalog_FilteredIsMemoized(t *testing.T) {
	cat := newCatalog(datasetFetcher(t))
	require.NoError(t, cat.Load(context.Background()))

	cat.SetFilters(Criteria{Search: "lymphoma"})
	_ = cat.Filtered()
	cached := cat.filtered

	cat.SetFilters(Criteria{Search: "  LYMPHOMA "})
	_ = cat.Filtered()
	assert.Same(t, &cached[0], &cat.filtered[0], "equivalent criteria must reuse the memoized result")
}

func TestCatalog_FilteredReturnsCopy(t *testing.T) {
	cat := newCatalog(datasetFetcher(t))
	require.NoError(t, cat.Load(context.Background()))

	got := cat.Filtered()
	got[0].ID = "mutated"
	assert.Equal(t, "a", cat.SearchIndex()[0].ID)
}

// --- Random slides ---

func TestCatalog_RandomSlides(t *testing.T) {
	cat := newCatalog(datasetFetcher(t))
	cat.rng = rand.New(rand.NewPCG(1, 2))
	require.NoError(t, cat.Load(context.Background()))

	got := cat.RandomSlides(2)
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].ID, got[1].ID)

	assert.Len(t, cat.RandomSlides(10), 3)
	assert.Empty(t, cat.RandomSlides(0))

	cat.SetFilters(Criteria{Category: "Onc"})
	for range 5 {
		got = cat.RandomSlides(5)
		require.Len(t, got, 1)
		assert.Equal(t, "b", got[0].ID)
	}
	assert.Zero(t, cat.CachedDetails(), "random draws never fetch details")
}

// --- Details ---

func TestCatalog_LoadSlideDetails(t *testing.T) {
	f := datasetFetcher(t)
	cat := newCatalog(f)

	got, err := cat.LoadSlideDetails(context.Background(), []string{"a", "b", "z"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, slideIDs(got))

	s, ok := cat.Detail("a")
	require.True(t, ok)
	assert.Equal(t, "a", s.ID)
	_, ok = cat.Detail("z")
	assert.False(t, ok, "unknown ids are not cached")

	// Cached ids first (request order), then fetched ones.
	got, err = cat.LoadSlideDetails(context.Background(), []string{"c", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, slideIDs(got))

	f.mu.Lock()
	assert.Equal(t, [][]string{{"a", "b", "z"}, {"c"}}, f.requested)
	f.mu.Unlock()
}

func TestCatalog_LoadSlideDetails_AllCachedSkipsNetwork(t *testing.T) {
	f := datasetFetcher(t)
	cat := newCatalog(f)

	_, err := cat.LoadSlideDetails(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	got, err := cat.LoadSlideDetails(context.Background(), []string{"b", "a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "b"}, slideIDs(got))
	assert.Equal(t, int32(1), f.detailsCalls.Load())
}

func TestCatalog_LoadSlideDetails_Error(t *testing.T) {
	f := datasetFetcher(t)
	cat := newCatalog(f)
	_, err := cat.LoadSlideDetails(context.Background(), []string{"a"})
	require.NoError(t, err)

	f.detailsFn = func(_ context.Context, _ []string) (*Details, error) {
		return nil, ErrNetwork
	}

	got, err := cat.LoadSlideDetails(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, []string{"a"}, slideIDs(got), "cached records survive a failed fetch")
	require.ErrorIs(t, cat.Err(), ErrNetwork)

	_, ok := cat.Detail("a")
	assert.True(t, ok, "the cache never shrinks")
	assert.False(t, cat.IsLoadingDetails())
}

func TestCatalog_DetailErrorClearedBySuccess(t *testing.T) {
	f := datasetFetcher(t)
	ok := f.detailsFn
	cat := newCatalog(f)

	f.detailsFn = func(_ context.Context, _ []string) (*Details, error) {
		return nil, ErrNetwork
	}
	_, err := cat.LoadSlideDetails(context.Background(), []string{"a"})
	require.ErrorIs(t, err, ErrNetwork)
	require.ErrorIs(t, cat.Err(), ErrNetwork)

	f.detailsFn = ok
	got, err := cat.LoadSlideDetails(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, slideIDs(got))
	assert.NoError(t, cat.Err())
}

func TestCatalog_IndexErrorOutlivesDetailSuccess(t *testing.T) {
	f := datasetFetcher(t)
	f.indexFn = func(_ context.Context) (*Index, error) { return nil, ErrNetwork }
	cat := newCatalog(f)

	require.ErrorIs(t, cat.Load(context.Background()), ErrNetwork)
	_, err := cat.LoadSlideDetails(context.Background(), []string{"a"})
	require.NoError(t, err)

	require.ErrorIs(t, cat.Err(), ErrNetwork)
	assert.Equal(t, IndexError, cat.State())
}

func TestCatalog_IsLoadingDetails(t *testing.T) {
	f := datasetFetcher(t)
	release := make(chan struct{})
	inner := f.detailsFn
	f.detailsFn = func(ctx context.Context, ids []string) (*Details, error) {
		<-release
		return inner(ctx, ids)
	}
	cat := newCatalog(f)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = cat.LoadSlideDetails(context.Background(), []string{"a"})
	}()

	require.Eventually(t, cat.IsLoadingDetails, time.Second, time.Millisecond)
	close(release)
	<-done
	assert.False(t, cat.IsLoadingDetails())
}

func TestCatalog_ConcurrentOverlappingLoads(t *testing.T) {
	f := datasetFetcher(t)
	cat := newCatalog(f)
	require.NoError(t, cat.Load(context.Background()))

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := []string{"a", "b"}
			if i%2 == 0 {
				ids = []string{"b", "c"}
			}
			got, err := cat.LoadSlideDetails(context.Background(), ids)
			assert.NoError(t, err)
			assert.Len(t, got, 2)
			_ = cat.Filtered()
			_ = cat.RandomSlides(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, cat.CachedDetails())
	assert.GreaterOrEqual(t, f.detailsCalls.Load(), int32(2))
}

func TestNewCatalog_FromClient(t *testing.T) {
	ts := newServiceServer(t, stubLoader{data: threeSlides})
	c := newTestClient(t, ts, WithRand(rand.New(rand.NewPCG(7, 7))))
	cat := NewCatalog(c)

	require.NoError(t, cat.Load(context.Background()))
	cat.SetFilters(Criteria{Search: "lymphoma"})
	require.Len(t, cat.Filtered(), 2)

	got, err := cat.LoadSlideDetails(context.Background(), entryIDs(cat.Filtered()))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, slideIDs(got))
}

func TestIndexState_String(t *testing.T) {
	assert.Equal(t, "ready", IndexReady.String())
	assert.Equal(t, "IndexState(9)", IndexState(9).String())
}
