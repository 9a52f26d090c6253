package harvest

import (
	"fmt"
	"net/http"
	"time"
)

// CatalogEntry is a dataset link discovered on an HTML catalog page.
type CatalogEntry struct {
	// DatasetID is the dataset name captured from the href, including its extension.
	DatasetID string
	// RawHref is the href exactly as it appeared in the catalog markup.
	RawHref string
	// URL is the absolute landing page URL.
	URL string
}

// DescriptorLink points at a descriptor (NcML) document found on a landing page.
type DescriptorLink struct {
	// ResourceID is the trimmed anchor label, i.e. the descriptor's server path.
	ResourceID    string
	DescriptorURL string
}

// Service is a named endpoint exposed for a crawled dataset.
type Service struct {
	// Name is the service type label, e.g. "ISO" or "OPENDAP".
	Name string
	URL  string
}

// Dataset is a leaf dataset returned by a Crawler.
type Dataset struct {
	// ID is the slash-delimited dataset identifier mirroring the catalog nesting.
	ID       string
	Name     string
	Services []Service
}

// Resource pairs a dataset identifier with the service URL to reap.
type Resource struct {
	ID         string
	ServiceURL string
}

// Outcome classifies the result of reaping one resource.
type Outcome string

// Reap outcomes. Every resource ends a run in exactly one of them.
const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	// OutcomeUnpersisted marks a resource whose document was fetched but could not be written.
	OutcomeUnpersisted Outcome = "unpersisted"
)

// ResourceResult records the outcome of one reaped resource.
type ResourceResult struct {
	Resource Resource
	Outcome  Outcome
	// Path is the written document path; empty unless the outcome is success.
	Path string
	Err  error
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// OK reports whether the response carries a 2xx status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// LandingPolicy decides what an index run does when a landing page fails.
type LandingPolicy string

// Landing failure policies. There is no default; one must be configured.
const (
	LandingAbort LandingPolicy = "abort"
	LandingSkip  LandingPolicy = "skip"
)

// ParseLandingPolicy validates a configured policy name.
func ParseLandingPolicy(s string) (LandingPolicy, error) {
	switch p := LandingPolicy(s); p {
	case LandingAbort, LandingSkip:
		return p, nil
	default:
		return "", fmt.Errorf("unknown landing failure policy %q", s)
	}
}
