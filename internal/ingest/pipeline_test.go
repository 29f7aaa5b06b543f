package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// memStore is an in-memory SnapshotStore for pipeline tests.
type memStore struct {
	snap *Snapshot
}

func (m *memStore) LoadLatest(_ context.Context) (*Snapshot, error) { return m.snap, nil }
func (m *memStore) Save(_ context.Context, snap *Snapshot) error    { m.snap = snap; return nil }

func newPipelineServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/funding", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>Funding</h1>
<a href="/grants/alpha">Alpha research grants now open</a>
<a href="/grants/beta">Beta fellowship, deadline approaching</a>
</body></html>`))
	})
	mux.HandleFunc("/grants/alpha", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Alpha</title></head><body>
<h1>Alpha Research Grants</h1>
<p>Grants of up to £40,000 for ecology projects. Applications are open.
Deadline: 1 December 2030.</p></body></html>`))
	})
	mux.HandleFunc("/grants/beta", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>Beta</title></head><body>
<h1>Beta Early-Career Fellowship</h1>
<p>A fellowship for early-career researchers. Apply by 15 June 2031.</p>
</body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func pipelineRegistry(serverURL string) *Registry {
	return &Registry{Sources: []Source{{
		ID:       "testsrc",
		Name:     "Test Source",
		Homepage: serverURL,
		SeedURLs: []string{serverURL + "/funding"},
	}}}
}

func TestPipelineEndToEnd(t *testing.T) {
	srv := newPipelineServer(t)
	store := &memStore{}

	p := NewPipeline(pipelineRegistry(srv.URL), NewHTTPFetcher(0))
	p.Resolve.ParsePDFs = false
	p.Store = store

	dataset, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if dataset.Stats.Total != 2 {
		t.Fatalf("Total = %d, want 2 (items: %+v)", dataset.Stats.Total, dataset.Items)
	}
	if dataset.Stats.NewToday != 2 {
		t.Errorf("NewToday = %d, want 2", dataset.Stats.NewToday)
	}
	if dataset.Stats.Open != 2 {
		t.Errorf("Open = %d, want 2", dataset.Stats.Open)
	}

	seenIDs := make(map[string]bool)
	seenURLs := make(map[string]bool)
	for _, item := range dataset.Items {
		if item.ID == "" || item.Fingerprint == "" {
			t.Errorf("%q missing identity", item.Title)
		}
		if seenIDs[item.ID] || seenURLs[item.URL] {
			t.Errorf("duplicate id or url: %+v", item)
		}
		seenIDs[item.ID] = true
		seenURLs[item.URL] = true
		if item.Summary == nil {
			t.Errorf("%q missing summary", item.Title)
		}
		if item.URLCheck == nil || item.URLCheck.Status != CheckReachable {
			t.Errorf("%q urlCheck = %+v", item.Title, item.URLCheck)
		}
	}

	// Sorted by ascending deadline within the open group.
	if !strings.Contains(dataset.Items[0].Title, "Alpha") {
		t.Errorf("order wrong: %q first", dataset.Items[0].Title)
	}

	if dataset.Digest.Stats.NewItems != 2 {
		t.Errorf("digest NewItems = %d", dataset.Digest.Stats.NewItems)
	}
	if store.snap == nil || len(store.snap.Items) != 2 {
		t.Error("snapshot not persisted")
	}
}

func TestPipelineSecondRunReusesSummaries(t *testing.T) {
	srv := newPipelineServer(t)
	store := &memStore{}

	p := NewPipeline(pipelineRegistry(srv.URL), NewHTTPFetcher(0))
	p.Resolve.ParsePDFs = false
	p.Store = store

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if second.Stats.NewToday != 0 || second.Stats.UpdatedToday != 0 {
		t.Errorf("second run stats = %+v, want no changes", second.Stats)
	}

	firstByID := make(map[string]Opportunity)
	for _, item := range first.Items {
		firstByID[item.ID] = item
	}
	for _, item := range second.Items {
		prev, ok := firstByID[item.ID]
		if !ok {
			t.Errorf("item %q changed id between runs", item.Title)
			continue
		}
		if item.Fingerprint != prev.Fingerprint {
			t.Errorf("item %q fingerprint drifted", item.Title)
		}
	}
}

func TestPipelineCarriesForwardOnEmptyRun(t *testing.T) {
	srv := newPipelineServer(t)
	store := &memStore{}

	p := NewPipeline(pipelineRegistry(srv.URL), NewHTTPFetcher(0))
	p.Resolve.ParsePDFs = false
	p.Store = store
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("seeding run: %v", err)
	}

	// A source that answers but lists nothing.
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>News</h1><p>Nothing here.</p></body></html>`))
	}))
	defer empty.Close()

	p2 := NewPipeline(pipelineRegistry(empty.URL), NewHTTPFetcher(0))
	p2.Resolve.ParsePDFs = false
	p2.Store = store

	dataset, err := p2.Run(context.Background())
	if err != nil {
		t.Fatalf("empty run: %v", err)
	}
	if dataset.Stats.Total != 2 {
		t.Fatalf("Total = %d, want 2 carried items", dataset.Stats.Total)
	}
	for _, item := range dataset.Items {
		if !item.CarriedForward {
			t.Errorf("%q not marked carried", item.Title)
		}
	}
}

func TestPipelineFallbackWhenCarryDisabled(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><h1>News</h1><p>Nothing here.</p></body></html>`))
	}))
	defer empty.Close()

	p := NewPipeline(pipelineRegistry(empty.URL), NewHTTPFetcher(0))
	p.Resolve.ParsePDFs = false
	p.DisableCarryForward = true

	dataset, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dataset.Stats.Total == 0 {
		t.Fatal("fallback set must keep the dataset non-empty")
	}
	for _, item := range dataset.Items {
		if !item.CarriedForward {
			t.Errorf("fallback item %q not marked carried", item.Title)
		}
	}
}

func TestPipelineNoSourcesIsFatal(t *testing.T) {
	p := NewPipeline(&Registry{}, NewHTTPFetcher(0))
	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("empty source list must abort the run")
	}
}

func TestPipelineStrictAbortsWhenVerificationDropsEverything(t *testing.T) {
	// Pages resolve fine over GET, but every verification HEAD gets a 404,
	// so no item survives the check.
	inner := newPipelineServer(t)
	gone := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			http.NotFound(w, r)
			return
		}
		inner.Config.Handler.ServeHTTP(w, r)
	}))
	defer gone.Close()

	p := NewPipeline(pipelineRegistry(gone.URL), NewHTTPFetcher(0))
	p.Resolve.ParsePDFs = false
	p.Verify.Strict = true

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("strict run with zero surviving items must abort")
	}
}

func TestPipelineAllSourcesFailedAborts(t *testing.T) {
	reg := &Registry{Sources: []Source{{
		ID:       "dead",
		Name:     "Dead Source",
		Homepage: "http://127.0.0.1:1",
		SeedURLs: []string{"http://127.0.0.1:1/funding"},
	}}}
	p := NewPipeline(reg, NewHTTPFetcher(0))
	p.Resolve.ParsePDFs = false

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("all sources failing must abort the run")
	}
}
