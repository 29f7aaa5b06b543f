package ingest

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Pipeline wires the run end to end: discover candidates per source,
// resolve detail pages, merge, verify URLs, diff against the previous
// snapshot, enrich, and assemble the published dataset.
type Pipeline struct {
	Registry *Registry
	Discover *Discoverer
	Resolve  *Resolver
	Verify   *Verifier
	Enricher Enricher
	Store    SnapshotStore
	Drafter  Drafter

	// DisableCarryForward makes an empty run publish the static fallback
	// set instead of republishing the previous snapshot.
	DisableCarryForward bool

	Now func() time.Time
}

// Drafter turns a digest into a deliverable draft somewhere downstream.
type Drafter interface {
	CreateDraft(ctx context.Context, subject, markdown string) (string, error)
}

func NewPipeline(reg *Registry, fetcher Fetcher) *Pipeline {
	return &Pipeline{
		Registry: reg,
		Discover: NewDiscoverer(fetcher),
		Resolve:  NewResolver(fetcher),
		Verify:   NewVerifier(),
		Now:      time.Now,
	}
}

// Run executes one full scan and returns the dataset to publish.
func (p *Pipeline) Run(ctx context.Context) (*Dataset, error) {
	if p.Registry == nil || len(p.Registry.Sources) == 0 {
		return nil, fmt.Errorf("pipeline: no sources configured")
	}
	now := p.Now()

	var prev *Snapshot
	if p.Store != nil {
		loaded, err := p.Store.LoadLatest(ctx)
		if err != nil {
			log.Printf("loading previous snapshot: %v (continuing without)", err)
		} else {
			prev = loaded
		}
	}

	var drafts []Opportunity
	var diags []Diagnostic
	failedSources := 0

	for _, src := range p.Registry.Sources {
		candidates, feedDrafts, srcDiags := p.Discover.Discover(ctx, src)
		diags = append(diags, srcDiags...)

		resolved, resDiags := p.Resolve.Resolve(ctx, src, candidates)
		diags = append(diags, resDiags...)

		got := len(feedDrafts) + len(resolved)
		if got == 0 && len(srcDiags) > 0 {
			failedSources++
			log.Printf("[%s] source yielded nothing (%d errors)", src.ID, len(srcDiags))
		} else {
			log.Printf("[%s] %d feed items, %d resolved pages", src.ID, len(feedDrafts), len(resolved))
		}
		drafts = append(drafts, feedDrafts...)
		drafts = append(drafts, resolved...)
	}

	if failedSources == len(p.Registry.Sources) {
		return nil, fmt.Errorf("pipeline: all %d sources failed", failedSources)
	}

	merged := MergeByCanonicalURL(drafts)

	kept, verifySummary, verifyDiags, err := p.Verify.Verify(ctx, merged, p.Registry.Sources)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	diags = append(diags, verifyDiags...)
	if p.Verify.Strict && verifySummary.Checked > 0 && verifySummary.Kept == 0 {
		return nil, fmt.Errorf("pipeline: strict verification dropped every item (%d checked)", verifySummary.Checked)
	}

	// Redirect rewrites can land two items on the same canonical URL.
	items := MergeByCanonicalURL(kept)

	if len(items) == 0 {
		if !p.DisableCarryForward {
			items = CarryForward(prev, now)
		}
		if len(items) == 0 {
			log.Printf("run found nothing and no snapshot to carry forward; publishing fallback set")
			items = FallbackItems(now)
		} else {
			log.Printf("run found nothing; carrying %d items forward", len(items))
		}
	} else {
		items = AssignIdentity(items)
	}

	items = Diff(items, prev, now)
	items = ApplyEnrichment(ctx, p.Enricher, items)
	SortItems(items)

	digest := BuildDigest(items, now)

	if p.Drafter != nil {
		if ref, err := p.Drafter.CreateDraft(ctx, digest.Subject, digest.Markdown); err != nil {
			log.Printf("creating digest draft: %v", err)
		} else {
			log.Printf("digest draft created: %s", ref)
		}
	}

	dataset := &Dataset{
		GeneratedAt: now.UTC(),
		Stats:       computeStats(items, len(p.Registry.Sources)),
		Digest:      digest,
		Sources:     p.Registry.Sources,
		Items:       items,
		Diagnostics: Diagnostics{Errors: diags, URLVerification: verifySummary},
	}

	if p.Store != nil {
		snap := &Snapshot{GeneratedAt: now.UTC(), Items: items}
		if err := p.Store.Save(ctx, snap); err != nil {
			log.Printf("saving snapshot: %v", err)
		}
	}

	return dataset, nil
}

func computeStats(items []Opportunity, sourceCount int) DatasetStats {
	stats := DatasetStats{Total: len(items), SourcesConfigured: sourceCount}
	for _, item := range items {
		switch item.Status {
		case "open":
			stats.Open++
		case "closed":
			stats.Closed++
		default:
			stats.Unknown++
		}
		if item.Deadline != "" {
			stats.WithDeadline++
		}
		if item.IsNew {
			stats.NewToday++
		}
		if item.IsUpdated {
			stats.UpdatedToday++
		}
	}
	return stats
}
