// Package bookkeeper maintains the per-run tracking files: crawl results,
// the retry list and the success list. Writes are best-effort: failures are
// logged and never returned.
package bookkeeper

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

const fileMode os.FileMode = 0o644

// Default tracking file names, relative to the working directory.
const (
	DefaultCrawlResultsPath = "crawl_results.txt"
	DefaultRetryPath        = "retry.txt"
	DefaultSuccessPath      = "success.txt"
)

// Paths names the tracking files. An empty path disables that file.
type Paths struct {
	CrawlResults string
	Retry        string
	Success      string
}

// Bookkeeper reads and writes tracking files.
type Bookkeeper struct {
	paths  Paths
	logger *zap.Logger
}

// New returns a Bookkeeper for paths.
func New(paths Paths, logger *zap.Logger) *Bookkeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bookkeeper{paths: paths, logger: logger}
}

// Reset removes the previous run's files. Missing files are fine.
func (b *Bookkeeper) Reset() {
	for _, p := range []string{b.paths.CrawlResults, b.paths.Retry, b.paths.Success} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			b.warn(harvest.BookkeepingError("remove tracking file", p, err))
		}
	}
}

// WriteCrawlResults records every crawled resource as a name/url pair.
func (b *Bookkeeper) WriteCrawlResults(resources []harvest.Resource) {
	var buf bytes.Buffer
	for _, r := range resources {
		fmt.Fprintf(&buf, "name = %s\nurl = %s\n", r.ID, r.ServiceURL)
	}
	b.write(b.paths.CrawlResults, buf.Bytes())
}

// WriteRetry records the URLs that must be attempted again.
func (b *Bookkeeper) WriteRetry(urls []string) {
	b.write(b.paths.Retry, lines(urls))
}

// WriteSuccess records the URLs written this run.
func (b *Bookkeeper) WriteSuccess(urls []string) {
	b.write(b.paths.Success, lines(urls))
}

// WriteList writes values one per line to an arbitrary path.
func (b *Bookkeeper) WriteList(path string, values []string) {
	b.write(path, lines(values))
}

// ReadRetry returns the previous run's retry list.
func (b *Bookkeeper) ReadRetry() ([]string, error) {
	data, err := b.read(b.paths.Retry)
	if err != nil {
		return nil, err
	}
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, harvest.BookkeepingError("read retry file", b.paths.Retry, err)
	}
	return out, nil
}

// ReadCrawlResults parses the previous run's crawl results.
func (b *Bookkeeper) ReadCrawlResults() ([]harvest.Resource, error) {
	data, err := b.read(b.paths.CrawlResults)
	if err != nil {
		return nil, err
	}
	var (
		out     []harvest.Resource
		pending string
		named   bool
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), " = ")
		if !ok {
			continue
		}
		switch key {
		case "name":
			pending, named = value, true
		case "url":
			if named {
				out = append(out, harvest.Resource{ID: pending, ServiceURL: value})
				named = false
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, harvest.BookkeepingError("read crawl results", b.paths.CrawlResults, err)
	}
	return out, nil
}

// ResourcesFor maps retry URLs back to resources. IDs come from known when the
// URL was crawled before, otherwise from the URL's dataset query or path.
func ResourcesFor(urls []string, known []harvest.Resource) []harvest.Resource {
	ids := make(map[string]string, len(known))
	for _, r := range known {
		if _, ok := ids[r.ServiceURL]; !ok {
			ids[r.ServiceURL] = r.ID
		}
	}
	out := make([]harvest.Resource, 0, len(urls))
	for _, u := range urls {
		id, ok := ids[u]
		if !ok {
			id = idFromURL(u)
		}
		out = append(out, harvest.Resource{ID: id, ServiceURL: u})
	}
	return out
}

func idFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.Trim(raw, "/")
	}
	if ds := u.Query().Get("dataset"); ds != "" {
		return ds
	}
	return strings.TrimPrefix(u.Path, "/")
}

func (b *Bookkeeper) read(p string) ([]byte, error) {
	if p == "" {
		return nil, nil
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, harvest.BookkeepingError("read tracking file", p, err)
	}
	return data, nil
}

func (b *Bookkeeper) write(p string, data []byte) {
	if p == "" {
		return
	}
	if err := os.WriteFile(p, data, fileMode); err != nil {
		b.warn(harvest.BookkeepingError("write tracking file", p, err))
		return
	}
	b.logger.Debug("tracking file written", zap.String("path", p), zap.Int("bytes", len(data)))
}

func (b *Bookkeeper) warn(err error) {
	b.logger.Warn("bookkeeping failed", zap.Error(err))
}

func lines(values []string) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
