package catalog

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

// datasetPattern matches dataset hrefs on a catalog page. It is anchored and case-sensitive.
var datasetPattern = regexp.MustCompile(`^catalog\.html\?dataset=(.+)\.(nc|ncml)$`)

// Walker discovers dataset entries on one catalog page.
type Walker struct {
	fetcher harvest.Fetcher
	logger  *zap.Logger
}

// NewWalker returns a Walker using fetcher.
func NewWalker(fetcher harvest.Fetcher, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{fetcher: fetcher, logger: logger}
}

// Discover fetches catalogURL and returns its dataset entries in document
// order. Any failure to obtain the page is a fatal precondition.
func (w *Walker) Discover(ctx context.Context, catalogURL string) ([]harvest.CatalogEntry, error) {
	base, err := url.Parse(catalogURL)
	if err != nil || base.Host == "" {
		if err == nil {
			err = fmt.Errorf("missing host")
		}
		return nil, harvest.Fatal(harvest.CauseCatalogFetch, "parse catalog url", catalogURL, err)
	}
	resp, err := w.fetcher.Fetch(ctx, harvest.FetchRequest{URL: catalogURL})
	if err != nil {
		return nil, harvest.Fatal(harvest.CauseCatalogFetch, "fetch catalog", catalogURL, err)
	}
	if !resp.OK() {
		return nil, harvest.Fatal(harvest.CauseCatalogFetch, "fetch catalog", catalogURL, harvest.StatusError(resp.StatusCode))
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, harvest.Fatal(harvest.CauseCatalogFetch, "parse catalog", catalogURL, err)
	}
	entries := extractEntries(base, doc)
	w.logger.Info("catalog walked",
		zap.String("catalog_url", catalogURL),
		zap.Int("datasets", len(entries)),
	)
	return entries, nil
}

func extractEntries(base *url.URL, doc *goquery.Document) []harvest.CatalogEntry {
	var entries []harvest.CatalogEntry
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		m := datasetPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		entries = append(entries, harvest.CatalogEntry{
			DatasetID: m[1] + "." + m[2],
			RawHref:   href,
			URL:       joinCatalogDir(base, href),
		})
	})
	return entries
}

// joinCatalogDir appends href to the directory of base's path, dropping the
// trailing file name. The href is appended verbatim so its query survives.
func joinCatalogDir(base *url.URL, href string) string {
	p := base.EscapedPath()
	dir := ""
	if i := strings.LastIndex(p, "/"); i >= 0 {
		dir = p[:i]
	}
	return originOf(base) + dir + "/" + href
}

// originOf returns scheme://host[:port] of u.
func originOf(u *url.URL) string {
	return u.Scheme + "://" + u.Host
}
