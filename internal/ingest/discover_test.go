package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
)

// stubFetcher serves canned responses keyed by URL.
type stubFetcher struct {
	pages map[string]stubPage
}

type stubPage struct {
	body        string
	contentType string
	err         error
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*FetchedDocument, error) {
	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no route for %s", url)
	}
	if page.err != nil {
		return nil, page.err
	}
	ct := page.contentType
	if ct == "" {
		ct = "text/html; charset=utf-8"
	}
	return &FetchedDocument{
		URL:         url,
		StatusCode:  200,
		ContentType: ct,
		Body:        io.NopCloser(strings.NewReader(page.body)),
		FetchedAt:   time.Now(),
	}, nil
}

const listingHTML = `<html><body>
<nav><a href="/about">About us</a> <a href="/privacy">Privacy policy</a></nav>
<main>
  <a href="/grants/ecology-fellowship">Ecology Fellowship, deadline approaching</a>
  <a href="/grants/small-awards/">Small research awards now open</a>
  <a href="https://elsewhere.net/grants/big-grant">Partner grant scheme</a>
  <a href="/news/annual-report">Annual report 2025</a>
</main>
</body></html>`

func testSource() Source {
	return Source{
		ID:       "example",
		Name:     "Example Funder",
		Homepage: "https://funder.example.org",
		SeedURLs: []string{"https://funder.example.org/funding"},
	}
}

func TestDiscoverRanksAndFilters(t *testing.T) {
	fetcher := &stubFetcher{pages: map[string]stubPage{
		"https://funder.example.org/funding": {body: listingHTML},
	}}
	d := NewDiscoverer(fetcher)

	candidates, drafts, diags := d.Discover(context.Background(), testSource())
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(drafts) != 0 {
		t.Fatalf("html seed should not produce feed drafts, got %d", len(drafts))
	}

	var urls []string
	for _, c := range candidates {
		urls = append(urls, c.URL)
	}

	// The fellowship link scores funding+deadline+host; it must rank first.
	if candidates[0].URL != "https://funder.example.org/grants/ecology-fellowship" {
		t.Errorf("top candidate = %s", candidates[0].URL)
	}
	for _, c := range candidates {
		if c.Kind == CandidateAnchor && strings.Contains(c.URL, "privacy") {
			t.Errorf("negative-keyword link survived: %v", urls)
		}
	}

	// The seed page itself is appended as a candidate.
	last := candidates[len(candidates)-1]
	if last.Kind != CandidateSeedPage || last.URL != "https://funder.example.org/funding" {
		t.Errorf("expected trailing seed-page candidate, got %+v", last)
	}
}

func TestDiscoverOffHostPenalty(t *testing.T) {
	link := CandidateLink{URL: "https://elsewhere.net/grants/big-grant", AnchorText: "Partner grant scheme"}
	onHost := CandidateLink{URL: "https://funder.example.org/grants/big-grant", AnchorText: "Partner grant scheme"}
	allowed := []string{"funder.example.org"}

	off := ScoreCandidate(link, allowed, DefaultScoreRules)
	on := ScoreCandidate(onHost, allowed, DefaultScoreRules)
	if on-off != 3 {
		t.Errorf("host adjustment = %d, want 3 (on=%d off=%d)", on-off, on, off)
	}
}

func TestDiscoverParsesFeed(t *testing.T) {
	feed := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
  <title>Funder Calls</title>
  <item>
    <title>Marine Biology Fellowship</title>
    <link>https://funder.example.org/calls/marine-biology</link>
    <description>&lt;p&gt;Fellowship funding of £80,000. Deadline: 1 October 2026.&lt;/p&gt;</description>
  </item>
  <item>
    <title>No link entry</title>
  </item>
</channel></rss>`

	src := testSource()
	src.SeedURLs = []string{"https://funder.example.org/feed.xml"}
	fetcher := &stubFetcher{pages: map[string]stubPage{
		"https://funder.example.org/feed.xml": {body: feed, contentType: "application/rss+xml"},
	}}

	_, drafts, diags := NewDiscoverer(fetcher).Discover(context.Background(), src)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if len(drafts) != 1 {
		t.Fatalf("drafts = %d, want 1", len(drafts))
	}

	got := drafts[0]
	if got.Title != "Marine Biology Fellowship" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Type != "fellowship" {
		t.Errorf("Type = %q, want fellowship", got.Type)
	}
	if got.Deadline != "2026-10-01" {
		t.Errorf("Deadline = %q, want 2026-10-01", got.Deadline)
	}
	if got.Amount != "£80,000" {
		t.Errorf("Amount = %q, want £80,000", got.Amount)
	}
	if got.SourceID != "example" {
		t.Errorf("SourceID = %q", got.SourceID)
	}
}

func TestDiscoverSeedFailureIsDiagnostic(t *testing.T) {
	src := testSource()
	src.SeedURLs = []string{"https://funder.example.org/funding", "https://funder.example.org/broken"}
	fetcher := &stubFetcher{pages: map[string]stubPage{
		"https://funder.example.org/funding": {body: listingHTML},
		"https://funder.example.org/broken":  {err: fmt.Errorf("connection refused")},
	}}

	candidates, _, diags := NewDiscoverer(fetcher).Discover(context.Background(), src)
	if len(diags) != 1 {
		t.Fatalf("diags = %d, want 1", len(diags))
	}
	if diags[0].Reason != "seed_fetch_failed" {
		t.Errorf("Reason = %q", diags[0].Reason)
	}
	if len(candidates) == 0 {
		t.Error("healthy seed should still yield candidates")
	}
}
