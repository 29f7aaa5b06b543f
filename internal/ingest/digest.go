package ingest

import (
	"fmt"
	"strings"
	"time"
)

const (
	digestSectionCap  = 12
	closingSoonWindow = 14
)

// BuildDigest renders the run's changes as an email-ready markdown body.
// The digest always has content: a run with nothing new still reports that
// explicitly rather than going silent.
func BuildDigest(items []Opportunity, now time.Time) Digest {
	var fresh, updated, closing []Opportunity
	for _, item := range items {
		if item.IsNew {
			fresh = append(fresh, item)
		} else if item.IsUpdated {
			updated = append(updated, item)
		}
		if closingSoon(item, now) {
			closing = append(closing, item)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Funding radar %s\n\n", now.UTC().Format("2006-01-02"))

	writeSection(&sb, "New opportunities", fresh, now)
	writeSection(&sb, "Updated opportunities", updated, now)
	writeSection(&sb, fmt.Sprintf("Closing within %d days", closingSoonWindow), closing, now)

	if len(fresh) == 0 && len(updated) == 0 {
		sb.WriteString("_No new or updated opportunities in this run._\n")
	}

	subject := fmt.Sprintf("Funding radar: %d new, %d updated, %d closing soon (%s)",
		len(fresh), len(updated), len(closing), now.UTC().Format("2 Jan 2006"))

	return Digest{
		Subject:  subject,
		Markdown: sb.String(),
		Stats:    DigestStats{NewItems: len(fresh), UpdatedItems: len(updated), ClosingSoon: len(closing)},
	}
}

// closingSoon reports whether an open item's deadline falls within the
// window, counting whole days to the end of the deadline day so a deadline
// exactly 14 days out still qualifies.
func closingSoon(item Opportunity, now time.Time) bool {
	if item.Status != "open" || item.Deadline == "" {
		return false
	}
	d, err := time.Parse("2006-01-02", item.Deadline)
	if err != nil {
		return false
	}
	endOfDay := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, time.UTC)
	if endOfDay.Before(now) {
		return false
	}
	// Whole days left after today; a deadline exactly 14 days out counts.
	days := int(endOfDay.Sub(now).Hours() / 24)
	return days <= closingSoonWindow
}

func writeSection(sb *strings.Builder, heading string, items []Opportunity, now time.Time) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "## %s\n\n", heading)
	shown := items
	if len(shown) > digestSectionCap {
		shown = shown[:digestSectionCap]
	}
	for _, item := range shown {
		fmt.Fprintf(sb, "- **[%s](%s)** (%s, %s)", item.Title, item.URL, item.SourceName, item.Type)
		if item.Deadline != "" {
			fmt.Fprintf(sb, ", deadline %s", item.Deadline)
		}
		if item.Amount != "" {
			fmt.Fprintf(sb, ", %s", item.Amount)
		}
		sb.WriteString("\n")
	}
	if len(items) > digestSectionCap {
		fmt.Fprintf(sb, "\n_and %d more_\n", len(items)-digestSectionCap)
	}
	sb.WriteString("\n")
}
