package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// ApplyEnrichment runs the optional enricher over items that lack a summary
// and falls back to a heuristic one when the enricher is missing, fails, or
// returns nothing usable. Items that kept a summary from the previous
// snapshot are left alone.
func ApplyEnrichment(ctx context.Context, enricher Enricher, items []Opportunity) []Opportunity {
	for i := range items {
		if items[i].Summary != nil {
			continue
		}
		if enricher != nil {
			enr, err := enricher.Enrich(ctx, items[i], items[i].Description)
			if err != nil {
				log.Printf("[%s] enrichment failed for %q: %v", items[i].SourceID, items[i].Title, err)
			} else if strings.TrimSpace(enr.SummaryText) != "" {
				items[i].Summary = &Summary{
					Text:      cleanText(enr.SummaryText),
					Fit:       cleanList(enr.Fit),
					WatchOut:  cleanList(enr.WatchOut),
					Model:     enr.Model,
					Reasoning: enr.Reasoning,
				}
				if enr.Eligibility != nil {
					items[i].Eligibility = mergeEligibility(items[i].Eligibility, *enr.Eligibility)
				}
				continue
			}
		}
		items[i].Summary = heuristicSummary(items[i])
	}
	return items
}

// heuristicSummary builds a serviceable summary from the extracted fields
// alone, used whenever no model is available.
func heuristicSummary(o Opportunity) *Summary {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s from %s.", capitalizeFirst(o.Type), o.SourceName)
	if o.Amount != "" {
		fmt.Fprintf(&sb, " Funding: %s.", o.Amount)
	}
	if o.Deadline != "" {
		fmt.Fprintf(&sb, " Deadline: %s.", o.Deadline)
	}
	if o.Description != "" {
		fmt.Fprintf(&sb, " %s", TruncateText(o.Description, 200))
	}

	fit := []string{"Review eligibility criteria on the source page."}
	if len(o.Eligibility.CareerStages) > 0 {
		fit = []string{fmt.Sprintf("Aimed at %s researchers.", strings.Join(o.Eligibility.CareerStages, " and "))}
	}

	var watchOut []string
	if o.Deadline == "" {
		watchOut = append(watchOut, "No deadline found; confirm directly with the funder.")
	}

	return &Summary{Text: sb.String(), Fit: fit, WatchOut: watchOut, Model: "heuristic"}
}

// cleanList normalizes whitespace in each entry and drops empty ones.
func cleanList(items []string) []string {
	var out []string
	for _, s := range items {
		if c := cleanText(s); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
