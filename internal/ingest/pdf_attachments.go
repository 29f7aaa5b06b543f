package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"rsc.io/pdf"
)

const (
	maxAttachmentsPerPage = 3
	maxPDFBytes           = 8 << 20
	maxPDFPages           = 12
)

var attachmentHints = []string{"guideline", "guidance", "call", "deadline", "calendar", "scheme", "application"}

// collectAttachmentLinks returns up to maxAttachmentsPerPage absolute URLs of
// PDF links on the page whose anchor text or path suggests scheme documents.
func collectAttachmentLinks(pageURL, html string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		abs := base.ResolveReference(ref)
		if !strings.HasSuffix(strings.ToLower(abs.Path), ".pdf") {
			return true
		}
		hay := strings.ToLower(sel.Text() + " " + abs.Path)
		if !containsAny(hay, attachmentHints) {
			return true
		}
		u := abs.String()
		if seen[u] {
			return true
		}
		seen[u] = true
		out = append(out, u)
		return len(out) < maxAttachmentsPerPage
	})
	return out
}

// extractDeadlineFromPDF downloads the PDF and scans its text for a
// deadline. The pdf package panics on malformed files, so the read is
// wrapped in a recover.
func extractDeadlineFromPDF(ctx context.Context, fetcher Fetcher, pdfURL string) (iso string, err error) {
	doc, err := fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		return "", fmt.Errorf("fetching pdf: %w", err)
	}
	defer doc.Body.Close()

	data, err := io.ReadAll(io.LimitReader(doc.Body, maxPDFBytes))
	if err != nil {
		return "", fmt.Errorf("reading pdf body: %w", err)
	}

	text, err := pdfText(data)
	if err != nil {
		return "", err
	}
	return ExtractDeadline(text), nil
}

func pdfText(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	pages := reader.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		var last pdf.Text
		for _, t := range content.Text {
			if last.Y != 0 && t.Y != last.Y {
				sb.WriteString("\n")
			} else if last.X != 0 && t.X > last.X+last.W+1 {
				sb.WriteString(" ")
			}
			sb.WriteString(t.S)
			last = t
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
