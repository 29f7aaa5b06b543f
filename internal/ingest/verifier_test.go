package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newVerifyServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/gated", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/head-hostile", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func verifySource(serverURL string) Source {
	return Source{ID: "test", Name: "Test", Homepage: serverURL, SeedURLs: []string{serverURL}}
}

func itemAt(url string) Opportunity {
	return Opportunity{Title: "Some opportunity", URL: url, SourceID: "test"}
}

func TestVerifyClassifications(t *testing.T) {
	srv := newVerifyServer(t)
	src := verifySource(srv.URL)

	items := []Opportunity{
		itemAt(srv.URL + "/ok"),
		itemAt(srv.URL + "/old"),
		itemAt(srv.URL + "/gated"),
		itemAt(srv.URL + "/head-hostile"),
		itemAt(srv.URL + "/missing"),
		itemAt("https://elsewhere.example.net/x"),
		itemAt("ftp://funder.example.org/file"),
	}

	kept, summary, diags, err := NewVerifier().Verify(context.Background(), items, []Source{src})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	byURL := make(map[string]URLCheckStatus)
	for _, item := range kept {
		byURL[item.URL] = item.URLCheck.Status
	}

	if got := byURL[CanonicalizeURL(srv.URL+"/ok")]; got != CheckReachable {
		t.Errorf("/ok status = %q", got)
	}
	// The redirected item's URL is rewritten to the final target.
	if got := byURL[CanonicalizeURL(srv.URL+"/new")]; got != CheckReachableRedirect {
		t.Errorf("/old status = %q, kept = %v", got, byURL)
	}
	if got := byURL[CanonicalizeURL(srv.URL+"/gated")]; got != CheckReachableRestrict {
		t.Errorf("/gated status = %q", got)
	}
	if got := byURL[CanonicalizeURL(srv.URL+"/head-hostile")]; got != CheckReachable {
		t.Errorf("/head-hostile status = %q, want reachable after GET retry", got)
	}

	if len(kept) != 4 {
		t.Errorf("kept = %d, want 4", len(kept))
	}
	if summary.Dropped != 3 {
		t.Errorf("dropped = %d, want 3", summary.Dropped)
	}
	if summary.ByState[CheckHTTPError] != 1 {
		t.Errorf("http_error count = %d", summary.ByState[CheckHTTPError])
	}
	if summary.ByState[CheckBadHost] != 1 {
		t.Errorf("bad_host count = %d", summary.ByState[CheckBadHost])
	}
	if summary.ByState[CheckInvalidURL] != 1 {
		t.Errorf("invalid_url count = %d", summary.ByState[CheckInvalidURL])
	}

	reasons := make(map[string]bool)
	for _, d := range diags {
		reasons[d.Reason] = true
	}
	for _, want := range []string{"http_error", "bad_host", "invalid_url"} {
		if !reasons[want] {
			t.Errorf("missing diagnostic reason %q in %v", want, diags)
		}
	}
}

func TestVerifyCheckLimit(t *testing.T) {
	srv := newVerifyServer(t)
	src := verifySource(srv.URL)

	v := NewVerifier()
	v.MaxChecks = 1

	items := []Opportunity{
		itemAt(srv.URL + "/ok"),
		itemAt(srv.URL + "/missing"), // over budget, never checked
	}
	kept, summary, _, err := v.Verify(context.Background(), items, []Source{src})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(kept) != 2 {
		t.Fatalf("kept = %d, want 2 (unchecked item passes through)", len(kept))
	}
	if summary.Checked != 1 {
		t.Errorf("checked = %d, want 1", summary.Checked)
	}
	if kept[1].URLCheck.Status != CheckUncheckedLimit {
		t.Errorf("over-budget status = %q", kept[1].URLCheck.Status)
	}
}

func TestVerifyNetworkUnavailableFallback(t *testing.T) {
	// Connection refused on every check looks like a dead network, so the
	// batch passes through unchecked.
	src := Source{ID: "test", Name: "Test", Homepage: "http://127.0.0.1:1"}
	items := []Opportunity{
		itemAt("http://127.0.0.1:1/a"),
		itemAt("http://127.0.0.1:1/b"),
	}

	v := NewVerifier()
	v.Timeout = 2 * time.Second

	kept, summary, _, err := v.Verify(context.Background(), items, []Source{src})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(kept) != 2 {
		t.Fatalf("kept = %d, want 2", len(kept))
	}
	for _, item := range kept {
		if item.URLCheck.Status != CheckUncheckedNoNetwork {
			t.Errorf("status = %q, want unchecked_network_unavailable", item.URLCheck.Status)
		}
	}
	if summary.Kept != 2 {
		t.Errorf("summary.Kept = %d", summary.Kept)
	}
}

func TestVerifyStrictNetworkUnavailable(t *testing.T) {
	src := Source{ID: "test", Name: "Test", Homepage: "http://127.0.0.1:1"}
	v := NewVerifier()
	v.Strict = true
	v.Timeout = 2 * time.Second

	_, _, _, err := v.Verify(context.Background(), []Opportunity{itemAt("http://127.0.0.1:1/a")}, []Source{src})
	if err == nil {
		t.Fatal("strict mode must fail when the network is unavailable")
	}
	if !strings.Contains(err.Error(), "network unavailable") {
		t.Errorf("err = %v", err)
	}
}

func TestVerifyMixedNetworkErrorDropsItem(t *testing.T) {
	srv := newVerifyServer(t)
	src := verifySource(srv.URL)

	items := []Opportunity{
		itemAt(srv.URL + "/ok"),
		itemAt(srv.URL[:strings.LastIndex(srv.URL, ":")] + ":1/dead"),
	}
	kept, summary, _, err := NewVerifier().Verify(context.Background(), items, []Source{src})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("kept = %d, want 1", len(kept))
	}
	if summary.ByState[CheckNetworkError] != 1 {
		t.Errorf("network_error count = %d", summary.ByState[CheckNetworkError])
	}
}
