// Package refcheck probes whether referenced resources exist on a FHIR
// server. Probes are HTTP HEAD requests issued in bounded-concurrency
// batches, with identical in-flight probes collapsed and settled
// results cached for a configurable TTL.
package refcheck

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/medvertical/records/cache"
	"github.com/medvertical/records/reference"
)

// Status classifies the outcome of one existence probe.
type Status string

const (
	// StatusExists means the server answered with a 2xx or 3xx.
	StatusExists Status = "exists"

	// StatusNotExists means the server answered but the resource is
	// not there (4xx) or the server failed to serve it (5xx).
	StatusNotExists Status = "not-exists"

	// StatusFailed means the probe itself could not run: transport
	// error, or a reference that cannot be probed over HTTP.
	StatusFailed Status = "failed"
)

// CheckResult is the outcome of probing one reference.
type CheckResult struct {
	// Reference is the raw reference string as given.
	Reference string

	// Status is the probe outcome.
	Status Status

	// HTTPStatus is the response code, 0 when no response was
	// received.
	HTTPStatus int

	// Error describes why a probe failed or could not run.
	Error string

	// Cached is true when the result was served from the TTL cache.
	Cached bool

	// Duration is the wall time of the probe, zero for cached results.
	Duration time.Duration
}

// Exists reports whether the probe confirmed the resource.
func (r CheckResult) Exists() bool { return r.Status == StatusExists }

const (
	defaultTimeout     = 3 * time.Second
	defaultConcurrency = 10
	defaultCacheTTL    = 15 * time.Minute
)

// Checker probes reference targets against a FHIR base URL.
type Checker struct {
	baseURL     string
	timeout     time.Duration
	concurrency int
	client      *http.Client
	results     *cache.TTL[string, CheckResult]
	inflight    singleflight.Group
	parser      *reference.Parser
}

// Option configures a Checker.
type Option func(*Checker)

// WithBaseURL sets the server base URL that relative references are
// resolved against.
func WithBaseURL(baseURL string) Option {
	return func(c *Checker) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout sets the per-probe timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithConcurrency caps how many probes run at once within a batch.
func WithConcurrency(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithCacheTTL sets how long settled results are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Checker) {
		if ttl > 0 {
			c.results = cache.NewTTL[string, CheckResult](ttl)
		}
	}
}

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Checker) { c.client.Transport = rt }
}

// NewChecker creates a Checker. Without WithBaseURL only absolute
// references can be probed.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		timeout:     defaultTimeout,
		concurrency: defaultConcurrency,
		results:     cache.NewTTL[string, CheckResult](defaultCacheTTL),
		parser:      reference.NewParser(reference.ParserOptions{}),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResultCache exposes the TTL cache, mainly for tests.
func (c *Checker) ResultCache() *cache.TTL[string, CheckResult] {
	return c.results
}

// Check probes a single reference. Cache and dedup are keyed by the
// reference string exactly as given; two spellings of the same target
// are probed independently.
func (c *Checker) Check(ctx context.Context, ref string) CheckResult {
	url, err := c.probeURL(ref)
	if err != nil {
		return CheckResult{Reference: ref, Status: StatusFailed, Error: err.Error()}
	}

	if cached, ok := c.results.Get(ref); ok {
		cached.Reference = ref
		cached.Cached = true
		cached.Duration = 0
		return cached
	}

	shared, _, _ := c.inflight.Do(ref, func() (any, error) {
		result := c.probe(ctx, url)
		if result.Status != StatusFailed {
			c.results.Set(ref, result)
		}
		return result, nil
	})

	result := shared.(CheckResult)
	result.Reference = ref
	return result
}

// BatchResult holds per-reference results in input order plus
// aggregate counts over the batch.
type BatchResult struct {
	Results []CheckResult

	// ExistCount and NotExistCount are confirmed answers from the
	// server; FailedCount are probes that could not be determined.
	ExistCount    int
	NotExistCount int
	FailedCount   int

	// CacheHits counts results served without a probe.
	CacheHits int

	// TotalTime is the wall time of the whole batch.
	TotalTime time.Duration
}

// CheckBatch probes every reference and returns results in input
// order. At most the configured concurrency of probes run at once;
// duplicate references within the batch share one probe. A failed
// probe never aborts the batch.
func (c *Checker) CheckBatch(ctx context.Context, refs []string) *BatchResult {
	batch := &BatchResult{Results: make([]CheckResult, len(refs))}
	if len(refs) == 0 {
		return batch
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			batch.Results[i] = c.Check(ctx, ref)
			return nil
		})
	}
	g.Wait()
	batch.TotalTime = time.Since(start)

	for _, r := range batch.Results {
		switch r.Status {
		case StatusExists:
			batch.ExistCount++
		case StatusNotExists:
			batch.NotExistCount++
		default:
			batch.FailedCount++
		}
		if r.Cached {
			batch.CacheHits++
		}
	}
	return batch
}

// probeURL maps a reference to the URL a HEAD is sent to. Contained,
// canonical, and invalid references have no probeable server location.
func (c *Checker) probeURL(ref string) (string, error) {
	parsed := c.parser.Parse(ref)
	switch parsed.Kind {
	case reference.KindAbsolute:
		return parsed.Raw, nil
	case reference.KindRelative:
		if c.baseURL == "" {
			return "", fmt.Errorf("no base URL configured for relative reference %q", ref)
		}
		return c.baseURL + "/" + parsed.Raw, nil
	case reference.KindContained:
		return "", fmt.Errorf("contained reference %q resolves within its parent, not over HTTP", ref)
	case reference.KindCanonical:
		return "", fmt.Errorf("canonical reference %q is not an instance location", ref)
	default:
		return "", fmt.Errorf("reference %q is not parseable: %s", ref, parsed.Reason)
	}
}

// probe issues the HEAD request and classifies the response.
func (c *Checker) probe(ctx context.Context, url string) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return CheckResult{Status: StatusFailed, Error: err.Error()}
	}

	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return CheckResult{Status: StatusFailed, Error: err.Error(), Duration: elapsed}
	}
	resp.Body.Close()

	result := CheckResult{HTTPStatus: resp.StatusCode, Duration: elapsed}
	switch {
	case resp.StatusCode < 400:
		result.Status = StatusExists
	case resp.StatusCode < 500:
		result.Status = StatusNotExists
	default:
		result.Status = StatusNotExists
		result.Error = fmt.Sprintf("server error %d", resp.StatusCode)
	}
	return result
}
