package ingest

import (
	"context"
	"io"
	"log"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// ScoreRules drives candidate-link scoring. Keyword lists are configuration
// data passed into pure scoring functions, not package-level mutable state.
type ScoreRules struct {
	Funding  []string // +4 when anchor text or URL matches
	Deadline []string // +3
	Open     []string // +2
	Negative []string // -5
}

// DefaultScoreRules covers English funding listings.
var DefaultScoreRules = ScoreRules{
	Funding: []string{
		"grant", "funding", "fellowship", "scholarship", "studentship",
		"bursary", "award", "prize", "call for proposals", "competition",
	},
	Deadline: []string{"deadline", "closing date", "closes", "apply by"},
	Open:     []string{"open", "apply", "now accepting"},
	Negative: []string{
		"privacy", "cookie", "accessibility", "terms", "login", "sign in",
		"jobs", "careers", "vacanc", "events", "webinar", "newsletter",
		"subscribe", "contact", "about us", "twitter", "facebook",
		"linkedin", "youtube", "instagram", "sitemap",
	},
}

const (
	maxCandidatesPerSource = 25
	maxFeedItemsPerSource  = 20
)

// Discoverer fetches seed pages per source and produces ranked opportunity
// candidates, or draft opportunities directly when a seed is an RSS/Atom
// feed.
type Discoverer struct {
	Fetcher      Fetcher
	Rules        ScoreRules
	MaxPerSource int
	FeedCap      int
}

func NewDiscoverer(fetcher Fetcher) *Discoverer {
	return &Discoverer{
		Fetcher:      fetcher,
		Rules:        DefaultScoreRules,
		MaxPerSource: maxCandidatesPerSource,
		FeedCap:      maxFeedItemsPerSource,
	}
}

// Discover walks a source's seed URLs. Anchor candidates come back ranked;
// feed entries bypass scoring and come back as draft opportunities. Seed
// fetch failures are diagnostics, never fatal.
func (d *Discoverer) Discover(ctx context.Context, src Source) ([]CandidateLink, []Opportunity, []Diagnostic) {
	var candidates []CandidateLink
	var drafts []Opportunity
	var diags []Diagnostic

	allowed := allowedHostsFor(src)

	for _, seed := range src.SeedURLs {
		doc, err := d.Fetcher.Fetch(ctx, seed)
		if err != nil {
			log.Printf("[%s] seed fetch failed for %s: %v", src.ID, seed, err)
			diags = append(diags, Diagnostic{
				Stage: "discover", SourceID: src.ID, URL: seed,
				Reason: "seed_fetch_failed", Detail: err.Error(),
			})
			continue
		}

		body, readErr := io.ReadAll(doc.Body)
		doc.Body.Close()
		if readErr != nil {
			diags = append(diags, Diagnostic{
				Stage: "discover", SourceID: src.ID, URL: seed,
				Reason: "seed_read_failed", Detail: readErr.Error(),
			})
			continue
		}

		if looksLikeFeed(doc.ContentType, body) {
			items := d.parseFeed(src, seed, body)
			log.Printf("[%s] feed %s yielded %d items", src.ID, seed, len(items))
			drafts = append(drafts, items...)
			continue
		}

		links := extractAnchorCandidates(seed, string(body))
		for _, link := range links {
			link.Score = ScoreCandidate(link, allowed, d.Rules)
			if link.Score >= 1 {
				candidates = append(candidates, link)
			}
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > d.MaxPerSource {
		candidates = candidates[:d.MaxPerSource]
	}

	// The seed page itself is always worth one look: listings sometimes
	// ARE the opportunity page.
	for _, seed := range src.SeedURLs {
		candidates = append(candidates, CandidateLink{
			Kind:       CandidateSeedPage,
			URL:        seed,
			AnchorText: src.Name,
			Score:      0,
		})
	}

	return candidates, drafts, diags
}

// looksLikeFeed sniffs RSS/Atom from the content type or document prologue.
func looksLikeFeed(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "rss") || strings.Contains(ct, "atom") || strings.Contains(ct, "xml") {
		return true
	}
	head := strings.TrimSpace(string(body[:min(len(body), 512)]))
	lower := strings.ToLower(head)
	return strings.HasPrefix(lower, "<?xml") || strings.HasPrefix(lower, "<rss") || strings.HasPrefix(lower, "<feed")
}

// parseFeed turns feed entries into draft opportunities, capped per source.
func (d *Discoverer) parseFeed(src Source, seedURL string, body []byte) []Opportunity {
	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		log.Printf("[%s] feed parse failed for %s: %v", src.ID, seedURL, err)
		return nil
	}

	var out []Opportunity
	for _, entry := range parsed.Items {
		if len(out) >= d.FeedCap {
			break
		}
		link := entry.Link
		if link == "" && strings.HasPrefix(entry.GUID, "http") {
			link = entry.GUID
		}
		if link == "" || entry.Title == "" {
			continue
		}
		desc := HTMLToText(entry.Description)
		if desc == "" {
			desc = HTMLToText(entry.Content)
		}
		out = append(out, assembleDraft(src, entry.Title, link, desc))
	}
	return out
}

// extractAnchorCandidates pulls every outbound anchor with its visible text,
// resolved to absolute URLs and deduplicated by URL. On collision the longer
// visible text wins; link text quality varies a lot across a page.
func extractAnchorCandidates(pageURL, html string) []CandidateLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	byURL := make(map[string]CandidateLink)
	var order []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		u := CanonicalizeURL(abs.String())
		text := cleanText(sel.Text())

		existing, seen := byURL[u]
		if !seen {
			order = append(order, u)
			byURL[u] = CandidateLink{Kind: CandidateAnchor, URL: u, AnchorText: text}
			return
		}
		if len(text) > len(existing.AnchorText) {
			existing.AnchorText = text
			byURL[u] = existing
		}
	})

	out := make([]CandidateLink, 0, len(order))
	for _, u := range order {
		out = append(out, byURL[u])
	}
	return out
}

// ScoreCandidate scores one candidate link against the rule table and the
// source's allowed hosts.
func ScoreCandidate(link CandidateLink, allowedHosts []string, rules ScoreRules) int {
	haystack := strings.ToLower(link.AnchorText + " " + link.URL)
	score := 0

	if containsAny(haystack, rules.Funding) {
		score += 4
	}
	if containsAny(haystack, rules.Deadline) {
		score += 3
	}
	if containsAny(haystack, rules.Open) {
		score += 2
	}
	if containsAny(haystack, rules.Negative) {
		score -= 5
	}

	if hostAllowed(hostOf(link.URL), allowedHosts) {
		score++
	} else {
		score -= 2
	}

	return score
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
