package harvest

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata. Transport failures
// are returned as errors; non-2xx responses are returned as responses.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// IndexStore persists attribute records keyed by their unique location.
type IndexStore interface {
	Insert(ctx context.Context, record AttributeRecord) error
	Close() error
}

// Crawler recursively discovers leaf datasets below a root catalog.
type Crawler interface {
	Crawl(ctx context.Context, rootCatalogURL string) ([]Dataset, error)
}

// Clock abstracts time for run bookkeeping.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
