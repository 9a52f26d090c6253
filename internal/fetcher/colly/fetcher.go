// Package collyfetcher implements harvest.Fetcher on a gocolly collector.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/metrics"
)

const defaultTimeout = 30 * time.Second

// Throttle delays requests; *ratelimit.Limiter satisfies it.
type Throttle interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodyBytes caps the response body; 0 keeps the colly default.
	MaxBodyBytes int
	// Retries is the number of extra attempts after a transport error,
	// a 429 or a 5xx. Attempt n waits n*RetryBackoff first.
	Retries      int
	RetryBackoff time.Duration
}

// Fetcher implements harvest.Fetcher. Each fetch runs on a clone of one
// pre-configured collector, so clones share the HTTP client.
type Fetcher struct {
	cfg      Config
	base     *colly.Collector
	throttle Throttle
	logger   *zap.Logger
}

// New builds a Fetcher. throttle may be nil.
func New(cfg Config, throttle Throttle, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	opts := []colly.CollectorOption{
		colly.Async(false),
		// Catalogs may list a dataset twice and retry runs refetch known URLs.
		colly.AllowURLRevisit(),
		// Non-2xx responses reach OnResponse so callers see the status code.
		colly.ParseHTTPErrorResponse(),
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	if cfg.MaxBodyBytes > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodyBytes))
	}
	base := colly.NewCollector(opts...)
	base.IgnoreRobotsTxt = !cfg.RespectRobots
	base.WithTransport(newTransport())
	base.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{cfg: cfg, base: base, throttle: throttle, logger: logger}
}

// Fetch GETs request.URL. Only transport failures are errors; any status
// code comes back as a response once retries are exhausted.
func (f *Fetcher) Fetch(ctx context.Context, request harvest.FetchRequest) (harvest.FetchResponse, error) {
	for attempt := 1; ; attempt++ {
		resp, err := f.attempt(ctx, request)
		if attempt > f.cfg.Retries || !retryable(ctx, resp, err) {
			return resp, err
		}
		f.logger.Debug("retrying fetch",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Int("status_code", resp.StatusCode),
			zap.Error(err),
		)
		if err := sleep(ctx, time.Duration(attempt)*f.cfg.RetryBackoff); err != nil {
			return harvest.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, request harvest.FetchRequest) (harvest.FetchResponse, error) {
	if f.throttle != nil {
		if err := f.throttle.Wait(ctx, request.URL); err != nil {
			return harvest.FetchResponse{}, fmt.Errorf("throttle: %w", err)
		}
	}

	collector := f.base.Clone()
	x := &exchange{}
	x.bind(collector, request.Headers, time.Now())

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(request.URL)
	}()

	select {
	case <-ctx.Done():
		return harvest.FetchResponse{}, fmt.Errorf("fetch %s canceled: %w", request.URL, ctx.Err())
	case err := <-done:
		if err == nil {
			err = x.err
		}
		if err != nil {
			metrics.ObserveFetch(request.URL, "error", 0)
			f.logger.Debug("fetch failed", zap.String("url", request.URL), zap.Error(err))
			return harvest.FetchResponse{}, fmt.Errorf("fetch %s: %w", request.URL, err)
		}
	}

	metrics.ObserveFetch(request.URL, metrics.StatusClass(x.resp.StatusCode), len(x.resp.Body))
	f.logger.Debug("fetched",
		zap.String("url", request.URL),
		zap.Int("status_code", x.resp.StatusCode),
		zap.Int("bytes", len(x.resp.Body)),
		zap.Duration("duration", x.resp.Duration),
	)
	return x.resp, nil
}

// hooks is the callback surface of *colly.Collector that exchange uses.
type hooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// exchange collects what one collector visit produced.
type exchange struct {
	resp harvest.FetchResponse
	err  error
}

func (x *exchange) bind(h hooks, headers http.Header, start time.Time) {
	h.OnRequest(func(r *colly.Request) {
		for key, values := range headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})
	h.OnResponse(func(r *colly.Response) {
		respHeaders := http.Header{}
		if r.Headers != nil {
			respHeaders = r.Headers.Clone()
		}
		x.resp = harvest.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    respHeaders,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	h.OnError(func(_ *colly.Response, err error) {
		x.err = err
	})
}

func retryable(ctx context.Context, resp harvest.FetchResponse, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// newTransport clones the default transport with a larger per-host idle pool.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 100
	t.MaxIdleConnsPerHost = 16
	return t
}
