package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	defaultVerifyWorkers = 8
	defaultVerifyTimeout = 10 * time.Second
	defaultMaxChecks     = 120
)

// Verifier checks that opportunity links still resolve to an allowed host
// before they are published. Checks run on a fixed worker pool; results land
// in pre-sized slots indexed by position, so workers never contend on
// shared state.
type Verifier struct {
	Client    *http.Client
	Workers   int
	Timeout   time.Duration
	MaxChecks int
	Strict    bool
	Now       func() time.Time
}

func NewVerifier() *Verifier {
	return &Verifier{
		Client: &http.Client{
			CheckRedirect: safeCheckRedirect,
			Transport: &http.Transport{
				DialContext:         safeDialContext,
				MaxIdleConnsPerHost: 4,
			},
		},
		Workers:   defaultVerifyWorkers,
		Timeout:   defaultVerifyTimeout,
		MaxChecks: defaultMaxChecks,
		Now:       time.Now,
	}
}

// Verify checks every item's URL against its source's allowed hosts and the
// live server, and returns the items that survive with their check results
// attached. Items over the check budget pass through unchecked. If every
// attempted check fails at the network layer the whole batch passes through
// unchecked, unless the verifier is strict.
func (v *Verifier) Verify(ctx context.Context, items []Opportunity, sources []Source) ([]Opportunity, VerifySummary, []Diagnostic, error) {
	if len(items) == 0 {
		return items, VerifySummary{ByState: map[URLCheckStatus]int{}}, nil, nil
	}

	hostsBySource := make(map[string][]string, len(sources))
	for _, src := range sources {
		hostsBySource[src.ID] = allowedHostsFor(src)
	}

	checks := make([]URLCheck, len(items))
	toCheck := len(items)
	if toCheck > v.MaxChecks {
		toCheck = v.MaxChecks
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < v.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				checks[idx] = v.checkOne(ctx, items[idx].URL, hostsBySource[items[idx].SourceID])
			}
		}()
	}
	for i := 0; i < toCheck; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for i := toCheck; i < len(items); i++ {
		checks[i] = URLCheck{Status: CheckUncheckedLimit, CheckedAt: v.Now().UTC()}
	}

	// A batch where every attempted check died at the network layer says
	// more about this machine than about the URLs.
	networkDown := toCheck > 0
	for i := 0; i < toCheck; i++ {
		if checks[i].Status != CheckNetworkError {
			networkDown = false
			break
		}
	}
	if networkDown {
		if v.Strict {
			return nil, VerifySummary{}, nil, fmt.Errorf("url verification: network unavailable (%d/%d checks failed)", toCheck, toCheck)
		}
		for i := 0; i < toCheck; i++ {
			checks[i] = URLCheck{Status: CheckUncheckedNoNetwork, Detail: checks[i].Detail, CheckedAt: checks[i].CheckedAt}
		}
	}

	summary := VerifySummary{Checked: toCheck, ByState: make(map[URLCheckStatus]int)}
	var kept []Opportunity
	var diags []Diagnostic
	for i, item := range items {
		check := checks[i]
		summary.ByState[check.Status]++
		if !keepAfterCheck(check.Status) {
			summary.Dropped++
			diags = append(diags, Diagnostic{
				Stage: "verify", SourceID: item.SourceID, URL: item.URL,
				Reason: string(check.Status), Detail: check.Detail,
			})
			continue
		}
		if check.Status == CheckReachableRedirect && check.FinalURL != "" {
			item.URL = CanonicalizeURL(check.FinalURL)
		}
		c := check
		item.URLCheck = &c
		kept = append(kept, item)
	}
	summary.Kept = len(kept)
	return kept, summary, diags, nil
}

func keepAfterCheck(status URLCheckStatus) bool {
	switch status {
	case CheckReachable, CheckReachableRedirect, CheckReachableRestrict,
		CheckUncheckedLimit, CheckUncheckedNoNetwork:
		return true
	}
	return false
}

// checkOne performs a single URL check: host policy first, then HEAD, then
// GET when the server rejects or mishandles HEAD.
func (v *Verifier) checkOne(ctx context.Context, rawURL string, allowedHosts []string) URLCheck {
	checkedAt := v.Now().UTC()

	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return URLCheck{Status: CheckInvalidURL, Detail: "not an absolute http(s) url", CheckedAt: checkedAt}
	}
	if !hostAllowed(parsed.Hostname(), allowedHosts) {
		return URLCheck{Status: CheckBadHost, Detail: fmt.Sprintf("host %s not in source allow-list", parsed.Hostname()), CheckedAt: checkedAt}
	}

	cctx, cancel := context.WithTimeout(ctx, v.Timeout)
	defer cancel()

	resp, err := v.do(cctx, http.MethodHead, rawURL)
	if err != nil {
		return URLCheck{Status: CheckNetworkError, Detail: err.Error(), CheckedAt: checkedAt}
	}
	if retryWithGet(resp.StatusCode) {
		resp.Body.Close()
		resp, err = v.do(cctx, http.MethodGet, rawURL)
		if err != nil {
			return URLCheck{Status: CheckNetworkError, Detail: err.Error(), CheckedAt: checkedAt}
		}
	}
	defer resp.Body.Close()

	finalURL := resp.Request.URL.String()
	finalAllowed := hostAllowed(resp.Request.URL.Hostname(), allowedHosts)
	check := URLCheck{HTTPStatus: resp.StatusCode, FinalURL: finalURL, CheckedAt: checkedAt}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		switch {
		case !finalAllowed:
			check.Status = CheckBadHost
			check.Detail = fmt.Sprintf("redirected to disallowed host %s", resp.Request.URL.Hostname())
		case CanonicalizeURL(finalURL) != CanonicalizeURL(rawURL):
			check.Status = CheckReachableRedirect
		default:
			check.Status = CheckReachable
		}
	case finalAllowed && restrictedStatus(resp.StatusCode):
		// The link is real but gated; a soft pass.
		check.Status = CheckReachableRestrict
	default:
		check.Status = CheckHTTPError
		check.Detail = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return check
}

func restrictedStatus(status int) bool {
	return status == http.StatusUnauthorized ||
		status == http.StatusForbidden ||
		status == http.StatusTooManyRequests
}

// retryWithGet reports whether a HEAD response warrants a GET retry. Plenty
// of servers reject or misroute HEAD while serving GET fine.
func retryWithGet(status int) bool {
	switch status {
	case http.StatusMethodNotAllowed, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return status >= 500
}

func (v *Verifier) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "*/*")
	return v.Client.Do(req)
}
