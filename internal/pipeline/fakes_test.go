package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

type fakeWalker struct {
	entries []harvest.CatalogEntry
	err     error
}

func (f fakeWalker) Discover(context.Context, string) ([]harvest.CatalogEntry, error) {
	return f.entries, f.err
}

type fakeResolver struct {
	links map[string][]harvest.DescriptorLink
	fail  map[string]bool
}

func (f fakeResolver) Resolve(_ context.Context, _ string, landingURL string) ([]harvest.DescriptorLink, error) {
	if f.fail[landingURL] {
		return nil, harvest.ResourceError("fetch landing page", landingURL, harvest.StatusError(500))
	}
	return f.links[landingURL], nil
}

type fakeExtractor struct {
	schema *harvest.Schema
	values map[string]map[string]string
}

func (f fakeExtractor) Extract(_ context.Context, descriptorURL string) harvest.AttributeRecord {
	record := f.schema.NewRecord(descriptorURL)
	for k, v := range f.values[descriptorURL] {
		_ = record.Set(k, v)
	}
	return record
}

type fakeCrawler struct {
	datasets []harvest.Dataset
	err      error
	calls    int
}

func (f *fakeCrawler) Crawl(context.Context, string) ([]harvest.Dataset, error) {
	f.calls++
	return f.datasets, f.err
}

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()
	body, ok := f.bodies[req.URL]
	if !ok {
		return harvest.FetchResponse{URL: req.URL, StatusCode: 404}, nil
	}
	return harvest.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

var errCatalog = errors.New("catalog unavailable")
