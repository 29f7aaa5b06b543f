package ingest

import (
	"context"
	"io"
	"time"
)

// Source defines configuration for a funding data source. Immutable per run;
// its host list is the allowed-host policy for every opportunity attributed
// to it.
type Source struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Category     string   `yaml:"category" json:"category"`
	Homepage     string   `yaml:"homepage" json:"homepage"`
	SeedURLs     []string `yaml:"seed_urls" json:"seed_urls"`
	IncludeHosts []string `yaml:"include_hosts,omitempty" json:"include_hosts,omitempty"`
}

// CandidateKind distinguishes how a candidate was produced during discovery.
type CandidateKind string

const (
	CandidateAnchor   CandidateKind = "anchor"
	CandidateSeedPage CandidateKind = "seed_page"
)

// CandidateLink is a scored, unverified link considered as a possible
// opportunity. Produced and consumed within one source's discovery pass,
// never persisted.
type CandidateLink struct {
	Kind       CandidateKind
	URL        string
	AnchorText string
	Score      int
}

// Eligibility holds lowercase tag sets per dimension. An empty set means
// "no restriction detected", not "unknown".
type Eligibility struct {
	Levels        []string `json:"levels"`
	CareerStages  []string `json:"career_stages"`
	Nationalities []string `json:"nationalities"`
	Disciplines   []string `json:"disciplines"`
}

// Summary is the enrichment collaborator's output for one item, or the
// heuristic fallback when the collaborator is unavailable.
type Summary struct {
	Text      string   `json:"text"`
	Fit       []string `json:"fit,omitempty"`
	WatchOut  []string `json:"watch_out,omitempty"`
	Model     string   `json:"model"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// URLCheckStatus classifies the outcome of verifying one opportunity link.
type URLCheckStatus string

const (
	CheckReachable          URLCheckStatus = "reachable"
	CheckReachableRedirect  URLCheckStatus = "reachable_with_redirect"
	CheckReachableRestrict  URLCheckStatus = "reachable_restricted"
	CheckInvalidURL         URLCheckStatus = "invalid_url"
	CheckBadHost            URLCheckStatus = "bad_host"
	CheckNetworkError       URLCheckStatus = "network_error"
	CheckHTTPError          URLCheckStatus = "http_error"
	CheckUncheckedLimit     URLCheckStatus = "unchecked_limit"
	CheckUncheckedNoNetwork URLCheckStatus = "unchecked_network_unavailable"
)

// URLCheck is the verification result attached to an item after the
// verifier runs.
type URLCheck struct {
	Status     URLCheckStatus `json:"status"`
	HTTPStatus int            `json:"http_status,omitempty"`
	FinalURL   string         `json:"final_url,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
}

// Opportunity is the central entity. Created fresh each run (or carried
// forward from the previous snapshot), mutated only by the consolidator and
// verifier, then frozen into the run's output snapshot.
type Opportunity struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	URL            string      `json:"url"`
	SourceID       string      `json:"source_id"`
	SourceName     string      `json:"source_name"`
	SourceHomepage string      `json:"source_homepage"`
	Type           string      `json:"type"`               // grant, fellowship, scholarship, call, award
	Status         string      `json:"status"`             // open, closed, unknown
	Deadline       string      `json:"deadline,omitempty"` // ISO YYYY-MM-DD, empty when unknown
	Amount         string      `json:"amount,omitempty"`   // free text, not normalized
	Description    string      `json:"description"`
	Eligibility    Eligibility `json:"eligibility"`
	Summary        *Summary    `json:"summary,omitempty"`
	URLCheck       *URLCheck   `json:"url_check,omitempty"`
	Fingerprint    string      `json:"fingerprint"`
	IsNew          bool        `json:"is_new"`
	IsUpdated      bool        `json:"is_updated"`
	LastSeenAt     time.Time   `json:"last_seen_at"`
	CarriedForward bool        `json:"carried_forward,omitempty"`
}

// Snapshot is one run's full item list. The previous run's snapshot is a
// read-only input to diffing.
type Snapshot struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Items       []Opportunity `json:"items"`
}

// Index returns the snapshot's items keyed by id.
func (s *Snapshot) Index() map[string]Opportunity {
	if s == nil {
		return nil
	}
	idx := make(map[string]Opportunity, len(s.Items))
	for _, it := range s.Items {
		idx[it.ID] = it
	}
	return idx
}

// Digest is the derived change summary for one run.
type Digest struct {
	Subject  string      `json:"subject"`
	Markdown string      `json:"markdown"`
	Stats    DigestStats `json:"stats"`
}

type DigestStats struct {
	NewItems     int `json:"new_items"`
	UpdatedItems int `json:"updated_items"`
	ClosingSoon  int `json:"closing_soon"`
}

// Diagnostic records a non-fatal failure (fetch, parse, verification drop).
type Diagnostic struct {
	Stage    string `json:"stage"`
	SourceID string `json:"source_id,omitempty"`
	URL      string `json:"url,omitempty"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

// DatasetStats summarizes one run's output.
type DatasetStats struct {
	Total             int `json:"total"`
	Open              int `json:"open"`
	Unknown           int `json:"unknown"`
	Closed            int `json:"closed"`
	WithDeadline      int `json:"with_deadline"`
	NewToday          int `json:"new_today"`
	UpdatedToday      int `json:"updated_today"`
	SourcesConfigured int `json:"sources_configured"`
}

// VerifySummary aggregates verification outcomes by classification.
type VerifySummary struct {
	Checked int                    `json:"checked"`
	Kept    int                    `json:"kept"`
	Dropped int                    `json:"dropped"`
	ByState map[URLCheckStatus]int `json:"by_state"`
}

// Diagnostics collects everything that went wrong without failing the run.
type Diagnostics struct {
	Errors          []Diagnostic  `json:"errors"`
	URLVerification VerifySummary `json:"url_verification"`
}

// Dataset is the versioned output of one pipeline run, consumed by the
// validation and UI collaborators.
type Dataset struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Stats       DatasetStats  `json:"stats"`
	Digest      Digest        `json:"digest"`
	Sources     []Source      `json:"sources"`
	Items       []Opportunity `json:"items"`
	Diagnostics Diagnostics   `json:"diagnostics"`
}

// FetchedDocument is the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// Enrichment is the enrichment collaborator's raw answer for one item.
type Enrichment struct {
	SummaryText string
	Fit         []string
	WatchOut    []string
	Eligibility *Eligibility
	Model       string
	Reasoning   string
}

// Enricher produces an item summary from supporting text. The pipeline
// falls back to a heuristic summary when the enricher is nil, errors, or
// returns an empty summary.
type Enricher interface {
	Enrich(ctx context.Context, opp Opportunity, supporting string) (Enrichment, error)
}

// SnapshotStore persists run snapshots. The previous snapshot is read once
// at the start of a run; a missing snapshot (nil, nil) is a valid cold start.
type SnapshotStore interface {
	LoadLatest(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}
