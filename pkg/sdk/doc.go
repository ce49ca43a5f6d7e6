// Package slidedex is a Go client for the slidedex virtual-slide service.
//
// Client wraps the two HTTP endpoints. Catalog layers a session cache on top:
// the minimal search index is fetched once and filtered locally, and full
// slide records are fetched lazily and kept for the lifetime of the Catalog.
//
//	client, _ := slidedex.New("https://slides.example.org", slidedex.WithAPIKey(key))
//	cat := slidedex.NewCatalog(client)
//	_ = cat.Load(ctx)
//	cat.SetFilters(slidedex.Criteria{Search: "lymphoma", Repository: "all"})
//	for _, e := range cat.Filtered() {
//	    fmt.Println(e.ID, e.Diagnosis)
//	}
//	slides, _ := cat.LoadSlideDetails(ctx, []string{"a", "b"})
package slidedex
