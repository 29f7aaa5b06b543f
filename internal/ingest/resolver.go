package ingest

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxDetailFetches = 60
	minTitleLength   = 8
	descriptionMax   = 600
)

// Resolver fetches each ranked candidate's own page, extracts a title and
// description, runs the field extractors, and assembles draft opportunities.
type Resolver struct {
	Fetcher    Fetcher
	Rules      ScoreRules
	TypeRules  []TypeRule
	MaxFetches int
	ParsePDFs  bool
	Now        func() time.Time
}

func NewResolver(fetcher Fetcher) *Resolver {
	return &Resolver{
		Fetcher:    fetcher,
		Rules:      DefaultScoreRules,
		TypeRules:  DefaultTypeRules,
		MaxFetches: maxDetailFetches,
		ParsePDFs:  true,
		Now:        time.Now,
	}
}

// Resolve fetches candidate pages and returns the drafts that survive the
// content gate. Per-candidate failures are diagnostics; the run continues.
func (r *Resolver) Resolve(ctx context.Context, src Source, candidates []CandidateLink) ([]Opportunity, []Diagnostic) {
	var drafts []Opportunity
	var diags []Diagnostic

	seen := make(map[string]bool)
	fetched := 0

	for _, cand := range candidates {
		canon := CanonicalizeURL(cand.URL)
		if seen[canon] {
			continue
		}
		seen[canon] = true

		if fetched >= r.MaxFetches {
			break
		}
		fetched++

		doc, err := r.Fetcher.Fetch(ctx, cand.URL)
		if err != nil {
			log.Printf("[%s] detail fetch failed for %s: %v", src.ID, cand.URL, err)
			diags = append(diags, Diagnostic{
				Stage: "resolve", SourceID: src.ID, URL: cand.URL,
				Reason: "detail_fetch_failed", Detail: err.Error(),
			})
			continue
		}

		body, readErr := io.ReadAll(doc.Body)
		doc.Body.Close()
		if readErr != nil {
			diags = append(diags, Diagnostic{
				Stage: "resolve", SourceID: src.ID, URL: cand.URL,
				Reason: "detail_read_failed", Detail: readErr.Error(),
			})
			continue
		}

		page, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
		if err != nil {
			diags = append(diags, Diagnostic{
				Stage: "resolve", SourceID: src.ID, URL: cand.URL,
				Reason: "detail_parse_failed", Detail: err.Error(),
			})
			continue
		}

		title := extractTitle(page, cand.AnchorText)
		desc := extractDescription(page)
		bodyText := cleanText(page.Find("body").Text())
		combined := title + " " + desc + " " + bodyText

		if !passesContentGate(title, combined, r.Rules) {
			continue
		}

		draft := r.assemble(src, title, doc.URL, desc, combined)

		// Guideline/calendar PDFs sometimes carry the only deadline.
		if draft.Deadline == "" && r.ParsePDFs {
			if iso := r.deadlineFromAttachments(ctx, src, doc.URL, string(body)); iso != "" {
				draft.Deadline = iso
				draft.Status = InferStatus(combined, iso, r.Now())
			}
		}

		drafts = append(drafts, draft)
	}

	return drafts, diags
}

// extractTitle prefers the first heading, then the page title, then the
// anchor text the candidate arrived with.
func extractTitle(page *goquery.Document, anchorText string) string {
	if h := cleanText(page.Find("h1").First().Text()); h != "" {
		return h
	}
	if t := cleanText(page.Find("title").First().Text()); t != "" {
		return t
	}
	return cleanText(anchorText)
}

// extractDescription prefers the meta description, falling back to leading
// body text.
func extractDescription(page *goquery.Document) string {
	if meta, ok := page.Find(`meta[name="description"]`).Attr("content"); ok {
		if m := cleanText(meta); m != "" {
			return TruncateText(m, descriptionMax)
		}
	}
	var parts []string
	page.Find("p").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if t := cleanText(sel.Text()); t != "" {
			parts = append(parts, t)
		}
		return len(strings.Join(parts, " ")) < descriptionMax
	})
	return TruncateText(strings.Join(parts, " "), descriptionMax)
}

// passesContentGate separates real opportunities from navigation and footer
// noise: the page must mention funding, carry a real title, and avoid
// negative keywords in that title.
func passesContentGate(title, combined string, rules ScoreRules) bool {
	if len(cleanText(title)) < minTitleLength {
		return false
	}
	lower := strings.ToLower(combined)
	if !containsAny(lower, rules.Funding) {
		return false
	}
	if containsAny(strings.ToLower(title), rules.Negative) {
		return false
	}
	return true
}

// assemble runs every field extractor over the combined text and builds a
// draft Opportunity. The id is assigned later, after the consolidator has
// merged by canonical URL.
func (r *Resolver) assemble(src Source, title, pageURL, desc, combined string) Opportunity {
	deadline := ExtractDeadline(combined)
	return Opportunity{
		Title:          sanitizeUTF8(cleanText(title)),
		URL:            CanonicalizeURL(pageURL),
		SourceID:       src.ID,
		SourceName:     src.Name,
		SourceHomepage: src.Homepage,
		Type:           ClassifyType(combined, r.TypeRules),
		Status:         InferStatus(combined, deadline, r.Now()),
		Deadline:       deadline,
		Amount:         ExtractAmount(combined),
		Description:    sanitizeUTF8(TruncateText(cleanText(desc), descriptionMax)),
		Eligibility:    InferEligibility(combined),
		LastSeenAt:     r.Now().UTC(),
	}
}

// assembleDraft builds a draft from feed-entry fields, using the default
// extraction rules. Feed entries skip the content gate; feeds are curated.
func assembleDraft(src Source, title, link, desc string) Opportunity {
	combined := title + " " + desc
	deadline := ExtractDeadline(combined)
	now := time.Now()
	return Opportunity{
		Title:          sanitizeUTF8(cleanText(title)),
		URL:            CanonicalizeURL(link),
		SourceID:       src.ID,
		SourceName:     src.Name,
		SourceHomepage: src.Homepage,
		Type:           ClassifyType(combined, DefaultTypeRules),
		Status:         InferStatus(combined, deadline, now),
		Deadline:       deadline,
		Amount:         ExtractAmount(combined),
		Description:    sanitizeUTF8(TruncateText(cleanText(desc), descriptionMax)),
		Eligibility:    InferEligibility(combined),
		LastSeenAt:     now.UTC(),
	}
}

// deadlineFromAttachments tries linked PDF attachments for a deadline when
// the page itself had none.
func (r *Resolver) deadlineFromAttachments(ctx context.Context, src Source, pageURL, html string) string {
	for _, attURL := range collectAttachmentLinks(pageURL, html) {
		iso, err := extractDeadlineFromPDF(ctx, r.Fetcher, attURL)
		if err != nil {
			log.Printf("[%s] pdf deadline extraction failed for %s: %v", src.ID, attURL, err)
			continue
		}
		if iso != "" {
			return iso
		}
	}
	return ""
}
