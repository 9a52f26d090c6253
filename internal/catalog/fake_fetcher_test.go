package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

type page struct {
	status int
	body   string
	err    error
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]page
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req harvest.FetchRequest) (harvest.FetchResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()
	p, ok := f.pages[req.URL]
	if !ok {
		return harvest.FetchResponse{}, errors.New("connection refused")
	}
	if p.err != nil {
		return harvest.FetchResponse{}, p.err
	}
	status := p.status
	if status == 0 {
		status = 200
	}
	return harvest.FetchResponse{URL: req.URL, StatusCode: status, Body: []byte(p.body)}, nil
}
