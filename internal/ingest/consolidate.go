package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const fingerprintDescLength = 320

// deadlineRichnessBonus makes a dated duplicate beat an undated one even
// when the undated copy has a longer description.
const deadlineRichnessBonus = 400

// MergeByCanonicalURL collapses duplicates that share a canonical URL. The
// richer record wins its slot; empty fields are backfilled from the records
// it absorbed. On equal richness the earlier record wins, so source order
// stays deterministic.
func MergeByCanonicalURL(items []Opportunity) []Opportunity {
	byURL := make(map[string]int)
	var merged []Opportunity

	for _, item := range items {
		canon := CanonicalizeURL(item.URL)
		item.URL = canon

		pos, exists := byURL[canon]
		if !exists {
			byURL[canon] = len(merged)
			merged = append(merged, item)
			continue
		}

		kept := merged[pos]
		if richness(item) > richness(kept) {
			item = backfill(item, kept)
			merged[pos] = item
		} else {
			merged[pos] = backfill(kept, item)
		}
	}
	return merged
}

func richness(o Opportunity) int {
	score := len(o.Description)
	if o.Deadline != "" {
		score += deadlineRichnessBonus
	}
	return score
}

// backfill copies fields the winner is missing from the absorbed record.
func backfill(winner, other Opportunity) Opportunity {
	if winner.Deadline == "" {
		winner.Deadline = other.Deadline
	}
	if winner.Amount == "" {
		winner.Amount = other.Amount
	}
	if winner.Description == "" {
		winner.Description = other.Description
	}
	if winner.Status == "unknown" && other.Status != "unknown" && other.Status != "" {
		winner.Status = other.Status
	}
	winner.Eligibility = mergeEligibility(winner.Eligibility, other.Eligibility)
	return winner
}

func mergeEligibility(a, b Eligibility) Eligibility {
	return Eligibility{
		Levels:        mergeUniqueFold(a.Levels, b.Levels),
		CareerStages:  mergeUniqueFold(a.CareerStages, b.CareerStages),
		Nationalities: dropSentinel(mergeUniqueFold(a.Nationalities, b.Nationalities), "any"),
		Disciplines:   dropSentinel(mergeUniqueFold(a.Disciplines, b.Disciplines), "all disciplines"),
	}
}

// dropSentinel removes the catch-all tag once a merge has produced a
// concrete one; the sentinel means "nothing matched", not "also this".
func dropSentinel(tags []string, sentinel string) []string {
	if len(tags) <= 1 {
		return tags
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !strings.EqualFold(tag, sentinel) {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return tags
	}
	return out
}

// ComputeID derives a stable identifier from source, canonical URL, and
// title, so the same opportunity keeps its id across runs.
func ComputeID(o Opportunity) string {
	seed := o.SourceID + "|" + CanonicalizeURL(o.URL) + "|" + o.Title
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed)).String()
}

// Fingerprint hashes the externally visible fields of an opportunity. Two
// records with equal fingerprints are the same opportunity in the same
// state; a changed fingerprint under the same id means the item was updated.
func Fingerprint(o Opportunity) string {
	desc := o.Description
	if len(desc) > fingerprintDescLength {
		desc = desc[:fingerprintDescLength]
	}
	h := sha256.New()
	for _, part := range []string{o.Title, o.URL, o.Deadline, o.Amount, o.Status, desc} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AssignIdentity stamps ids and fingerprints on merged items.
func AssignIdentity(items []Opportunity) []Opportunity {
	for i := range items {
		items[i].ID = ComputeID(items[i])
		items[i].Fingerprint = Fingerprint(items[i])
	}
	return items
}

// Diff marks each item new or updated against the previous snapshot and
// carries prior enrichment forward when the item has not changed.
func Diff(items []Opportunity, prev *Snapshot, now time.Time) []Opportunity {
	var prevByID map[string]Opportunity
	if prev != nil {
		prevByID = prev.Index()
	}

	for i := range items {
		items[i].LastSeenAt = now.UTC()
		old, seen := prevByID[items[i].ID]
		if !seen {
			items[i].IsNew = true
			continue
		}
		if old.Fingerprint != items[i].Fingerprint {
			items[i].IsUpdated = true
			continue
		}
		// Unchanged: reuse the old enrichment rather than paying for it again.
		if items[i].Summary == nil && old.Summary != nil {
			s := *old.Summary
			items[i].Summary = &s
		}
	}
	return items
}

var statusRank = map[string]int{"open": 0, "unknown": 1, "closed": 2}

// SortItems orders for presentation: open before unknown before closed,
// nearest deadline first with undated items last, then title.
func SortItems(items []Opportunity) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if statusRank[a.Status] != statusRank[b.Status] {
			return statusRank[a.Status] < statusRank[b.Status]
		}
		switch {
		case a.Deadline == "" && b.Deadline != "":
			return false
		case a.Deadline != "" && b.Deadline == "":
			return true
		case a.Deadline != b.Deadline:
			return a.Deadline < b.Deadline
		}
		return strings.ToLower(a.Title) < strings.ToLower(b.Title)
	})
}

// CarryForward republishes the previous snapshot's items when a run found
// nothing at all. Items already carried once are pointed back at their
// source homepage, since their detail URLs have evidently gone stale.
func CarryForward(prev *Snapshot, now time.Time) []Opportunity {
	if prev == nil || len(prev.Items) == 0 {
		return nil
	}
	items := make([]Opportunity, len(prev.Items))
	copy(items, prev.Items)
	for i := range items {
		items[i].IsNew = false
		items[i].IsUpdated = false
		items[i].LastSeenAt = now.UTC()
		if items[i].CarriedForward && items[i].SourceHomepage != "" {
			items[i].URL = CanonicalizeURL(items[i].SourceHomepage)
		}
		items[i].CarriedForward = true
	}
	return items
}

// FallbackItems is the hand-curated seed set published when a run finds
// nothing and there is no previous snapshot to carry forward.
func FallbackItems(now time.Time) []Opportunity {
	items := []Opportunity{
		{
			Title:          "Wellcome Trust Early-Career Awards",
			URL:            "https://wellcome.org/research-funding/schemes/early-career-awards",
			SourceID:       "wellcome",
			SourceName:     "Wellcome Trust",
			SourceHomepage: "https://wellcome.org",
			Type:           "fellowship",
			Status:         "unknown",
			Description:    "Salary and research expenses for early-career researchers developing an independent programme in health-related discovery research.",
			Eligibility:    Eligibility{CareerStages: []string{"early career"}, Nationalities: []string{"any"}, Disciplines: []string{"life sciences", "medicine"}},
		},
		{
			Title:          "UKRI Future Leaders Fellowships",
			URL:            "https://www.ukri.org/what-we-do/developing-people-and-skills/future-leaders-fellowships",
			SourceID:       "ukri",
			SourceName:     "UK Research and Innovation",
			SourceHomepage: "https://www.ukri.org",
			Type:           "fellowship",
			Status:         "unknown",
			Description:    "Long-term support for early-career researchers and innovators tackling ambitious programmes across any discipline.",
			Eligibility:    Eligibility{CareerStages: []string{"early career"}, Nationalities: []string{"any"}, Disciplines: []string{"all disciplines"}},
		},
		{
			Title:          "Royal Society Research Grants",
			URL:            "https://royalsociety.org/grants-schemes-awards/grants/research-grants",
			SourceID:       "royal-society",
			SourceName:     "The Royal Society",
			SourceHomepage: "https://royalsociety.org",
			Type:           "grant",
			Status:         "unknown",
			Description:    "Seed funding for newly independent researchers in the natural sciences to purchase equipment and consumables.",
			Eligibility:    Eligibility{CareerStages: []string{"early career"}, Nationalities: []string{"uk"}, Disciplines: []string{"physical sciences", "life sciences"}},
		},
	}
	for i := range items {
		items[i].LastSeenAt = now.UTC()
		items[i].CarriedForward = true
	}
	return AssignIdentity(items)
}
