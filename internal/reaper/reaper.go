// Package reaper downloads each resource's service document into a mirrored
// directory tree, recording exactly one outcome per resource.
package reaper

import (
	"context"
	"errors"
	"io"
	"path"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/metrics"
	"github.com/JakeFAU/tdsharvest/internal/storage/local"
)

// DocumentExtension is appended to every written document.
const DocumentExtension = ".xml"

var errEmptyID = errors.New("resource id has no file name")

// Config tunes a Reaper.
type Config struct {
	// Concurrency bounds in-flight resources; values below 2 reap sequentially.
	Concurrency int
	// Progress receives one "." per attempted resource. Nil disables it.
	Progress io.Writer
}

// Reaper fetches resources and writes them below a target root.
type Reaper struct {
	fetcher  harvest.Fetcher
	cfg      Config
	logger   *zap.Logger
	progress sync.Mutex
}

// New returns a Reaper.
func New(fetcher harvest.Fetcher, cfg Config, logger *zap.Logger) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reaper{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Report lists per-resource results in input order.
type Report struct {
	Results []harvest.ResourceResult
}

func (r Report) urls(match func(harvest.Outcome) bool) []string {
	var out []string
	for _, res := range r.Results {
		if match(res.Outcome) {
			out = append(out, res.Resource.ServiceURL)
		}
	}
	return out
}

// Successes returns the service URLs written successfully.
func (r Report) Successes() []string {
	return r.urls(func(o harvest.Outcome) bool { return o == harvest.OutcomeSuccess })
}

// Errors returns the service URLs to retry, including fetched documents that
// could not be written.
func (r Report) Errors() []string {
	return r.urls(func(o harvest.Outcome) bool { return o != harvest.OutcomeSuccess })
}

// Unpersisted returns the service URLs fetched but not written.
func (r Report) Unpersisted() []string {
	return r.urls(func(o harvest.Outcome) bool { return o == harvest.OutcomeUnpersisted })
}

// Reap creates targetRoot and processes every resource. Only a failure to
// create targetRoot is returned; per-resource failures land in the report.
func (r *Reaper) Reap(ctx context.Context, targetRoot string, resources []harvest.Resource) (Report, error) {
	mirror, err := local.New(local.Config{Root: targetRoot})
	if err != nil {
		return Report{}, harvest.Fatal(harvest.CauseTargetRoot, "create target root", targetRoot, err)
	}

	results := make([]harvest.ResourceResult, len(resources))
	if r.cfg.Concurrency < 2 {
		for i, res := range resources {
			results[i] = r.reapOne(ctx, mirror, res)
		}
	} else {
		g := new(errgroup.Group)
		g.SetLimit(r.cfg.Concurrency)
		for i, res := range resources {
			i, res := i, res
			g.Go(func() error {
				results[i] = r.reapOne(ctx, mirror, res)
				return nil
			})
		}
		_ = g.Wait()
	}
	if r.cfg.Progress != nil && len(resources) > 0 {
		_, _ = io.WriteString(r.cfg.Progress, "\n")
	}

	report := Report{Results: results}
	r.logger.Info("reap complete",
		zap.String("target_root", mirror.Root()),
		zap.Int("resources", len(resources)),
		zap.Int("successes", len(report.Successes())),
		zap.Int("errors", len(report.Errors())),
		zap.Int("unpersisted", len(report.Unpersisted())),
	)
	return report, nil
}

func (r *Reaper) reapOne(ctx context.Context, mirror *local.Mirror, res harvest.Resource) harvest.ResourceResult {
	result := r.attempt(ctx, mirror, res)
	r.tick()
	metrics.ObserveResource(string(result.Outcome))
	if result.Err != nil {
		r.logger.Warn("resource failed",
			zap.String("resource_id", res.ID),
			zap.String("service_url", res.ServiceURL),
			zap.String("outcome", string(result.Outcome)),
			zap.Error(result.Err),
		)
	} else {
		r.logger.Debug("resource reaped",
			zap.String("resource_id", res.ID),
			zap.String("path", result.Path),
		)
	}
	return result
}

func (r *Reaper) attempt(ctx context.Context, mirror *local.Mirror, res harvest.Resource) harvest.ResourceResult {
	fail := func(outcome harvest.Outcome, op string, err error) harvest.ResourceResult {
		return harvest.ResourceResult{
			Resource: res,
			Outcome:  outcome,
			Err:      harvest.ResourceError(op, res.ServiceURL, err),
		}
	}

	dir, leaf := path.Split(res.ID)
	if leaf == "" {
		return fail(harvest.OutcomeError, "split resource id", errEmptyID)
	}
	if _, err := mirror.EnsureDir(dir); err != nil {
		return fail(harvest.OutcomeError, "create resource directory", err)
	}

	resp, err := r.fetcher.Fetch(ctx, harvest.FetchRequest{URL: res.ServiceURL})
	if err != nil {
		return fail(harvest.OutcomeError, "fetch resource", err)
	}
	if !resp.OK() {
		return fail(harvest.OutcomeError, "fetch resource", harvest.StatusError(resp.StatusCode))
	}

	written, err := mirror.WriteFile(path.Join(dir, leaf+DocumentExtension), resp.Body)
	if err != nil {
		return fail(harvest.OutcomeUnpersisted, "write resource", err)
	}
	return harvest.ResourceResult{Resource: res, Outcome: harvest.OutcomeSuccess, Path: written}
}

func (r *Reaper) tick() {
	if r.cfg.Progress == nil {
		return
	}
	r.progress.Lock()
	defer r.progress.Unlock()
	_, _ = io.WriteString(r.cfg.Progress, ".")
}
