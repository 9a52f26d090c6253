package thredds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

// DefaultSelectors keep NetCDF and NcML leaf datasets.
var DefaultSelectors = []string{`.*\.nc$`, `.*\.ncml$`}

// DefaultSkipPatterns drop the aggregation and file-access views a TDS adds
// next to the real datasets.
var DefaultSkipPatterns = []string{
	`.*_files/`,
	`.*Individual Files.*`,
	`.*File_Access.*`,
	`.*Forecast Model Run.*`,
	`.*Constant Forecast Offset.*`,
	`.*Constant Forecast Date.*`,
}

// metadataServices get the catalog and dataset appended as a query.
var metadataServices = map[string]bool{"iso": true, "ncml": true, "uddc": true}

var errNotCatalog = errors.New("document has no catalog element")

// Config tunes a Crawler.
type Config struct {
	Selectors    []string
	SkipPatterns []string
	// MaxDepth bounds catalogRef nesting below the root; 0 is unlimited.
	MaxDepth int
}

// Crawler implements harvest.Crawler over catalog.xml documents.
type Crawler struct {
	fetcher   harvest.Fetcher
	selectors []*regexp.Regexp
	skips     []*regexp.Regexp
	maxDepth  int
	logger    *zap.Logger
}

var _ harvest.Crawler = (*Crawler)(nil)

// New compiles cfg's patterns. Empty pattern lists fall back to the defaults.
func New(fetcher harvest.Fetcher, cfg Config, logger *zap.Logger) (*Crawler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("max depth must be >= 0")
	}
	selectors := cfg.Selectors
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	skips := cfg.SkipPatterns
	if skips == nil {
		skips = DefaultSkipPatterns
	}
	sel, err := compileAll(selectors)
	if err != nil {
		return nil, fmt.Errorf("selector: %w", err)
	}
	skp, err := compileAll(skips)
	if err != nil {
		return nil, fmt.Errorf("skip pattern: %w", err)
	}
	return &Crawler{fetcher: fetcher, selectors: sel, skips: skp, maxDepth: cfg.MaxDepth, logger: logger}, nil
}

// compileAll anchors each pattern at the start of the input.
func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)`)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

type crawlState struct {
	visited  map[string]bool
	datasets []harvest.Dataset
}

// Crawl walks rootCatalogURL and every catalog it references. Only a failure on
// the root catalog is fatal; nested failures are logged and skipped.
func (c *Crawler) Crawl(ctx context.Context, rootCatalogURL string) ([]harvest.Dataset, error) {
	root, err := url.Parse(xmlCatalogURL(rootCatalogURL))
	if err != nil {
		return nil, harvest.Fatal(harvest.CauseCatalogCrawl, "parse catalog url", rootCatalogURL, err)
	}
	st := &crawlState{visited: make(map[string]bool)}
	if err := c.visit(ctx, st, root, 0); err != nil {
		return nil, harvest.Fatal(harvest.CauseCatalogCrawl, "crawl catalog", root.String(), err)
	}
	if err := ctx.Err(); err != nil {
		return nil, harvest.Fatal(harvest.CauseCatalogCrawl, "crawl catalog", root.String(), err)
	}
	c.logger.Info("catalog crawled",
		zap.String("catalog_url", root.String()),
		zap.Int("catalogs", len(st.visited)),
		zap.Int("datasets", len(st.datasets)),
	)
	return st.datasets, nil
}

// catalog is one parsed catalog.xml with its service table.
type catalog struct {
	url      *url.URL
	services map[string]*xmlquery.Node
	first    *xmlquery.Node
}

func (c *Crawler) visit(ctx context.Context, st *crawlState, u *url.URL, depth int) error {
	key := u.String()
	if st.visited[key] {
		return nil
	}
	st.visited[key] = true
	if err := ctx.Err(); err != nil {
		return err
	}

	root, err := c.load(ctx, key)
	if err != nil {
		return err
	}
	cat := &catalog{url: u, services: make(map[string]*xmlquery.Node)}
	inherited := ""
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != xmlquery.ElementNode {
			continue
		}
		switch n.Data {
		case "service":
			cat.addService(n)
		case "metadata":
			if name := metadataServiceName(n, true); name != "" {
				inherited = name
			}
		}
	}
	for n := root.FirstChild; n != nil; n = n.NextSibling {
		c.walk(ctx, st, cat, n, depth, inherited)
	}
	return nil
}

func (c *Crawler) load(ctx context.Context, rawURL string) (*xmlquery.Node, error) {
	resp, err := c.fetcher.Fetch(ctx, harvest.FetchRequest{URL: rawURL})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, harvest.StatusError(resp.StatusCode)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode && n.Data == "catalog" {
			return n, nil
		}
	}
	return nil, errNotCatalog
}

func (cat *catalog) addService(n *xmlquery.Node) {
	if cat.first == nil {
		cat.first = n
	}
	if name := attr(n, "name"); name != "" {
		if _, dup := cat.services[name]; !dup {
			cat.services[name] = n
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == "service" {
			if name := attr(child, "name"); name != "" {
				if _, dup := cat.services[name]; !dup {
					cat.services[name] = child
				}
			}
		}
	}
}

func (c *Crawler) walk(ctx context.Context, st *crawlState, cat *catalog, n *xmlquery.Node, depth int, inherited string) {
	if n.Type != xmlquery.ElementNode {
		return
	}
	switch n.Data {
	case "dataset":
		c.walkDataset(ctx, st, cat, n, depth, inherited)
	case "catalogRef":
		c.followRef(ctx, st, cat, n, depth)
	}
}

func (c *Crawler) walkDataset(ctx context.Context, st *crawlState, cat *catalog, n *xmlquery.Node, depth int, inherited string) {
	name := attr(n, "name")
	if matchAny(c.skips, name) {
		c.logger.Debug("skipping dataset", zap.String("name", name))
		return
	}
	if v := inheritedServiceName(n); v != "" {
		inherited = v
	}
	if urlPath := attr(n, "urlPath"); urlPath != "" {
		id := attr(n, "ID")
		if id == "" {
			id = urlPath
		}
		if matchAny(c.selectors, id) {
			serviceName := ownServiceName(n)
			if serviceName == "" {
				serviceName = inherited
			}
			st.datasets = append(st.datasets, harvest.Dataset{
				ID:       id,
				Name:     name,
				Services: cat.resolveServices(serviceName, id, urlPath),
			})
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.walk(ctx, st, cat, child, depth, inherited)
	}
}

func (c *Crawler) followRef(ctx context.Context, st *crawlState, cat *catalog, n *xmlquery.Node, depth int) {
	href := attr(n, "href")
	title := attr(n, "title")
	if title == "" {
		title = attr(n, "name")
	}
	if href == "" || matchAny(c.skips, title) || matchAny(c.skips, href) {
		c.logger.Debug("skipping catalog ref", zap.String("href", href), zap.String("title", title))
		return
	}
	if c.maxDepth > 0 && depth+1 > c.maxDepth {
		c.logger.Debug("catalog ref beyond max depth", zap.String("href", href), zap.Int("max_depth", c.maxDepth))
		return
	}
	ref, err := url.Parse(xmlCatalogURL(href))
	if err != nil {
		c.logger.Warn("bad catalog ref", zap.String("href", href), zap.Error(err))
		return
	}
	target := cat.url.ResolveReference(ref)
	if err := c.visit(ctx, st, target, depth+1); err != nil {
		c.logger.Warn("skipping nested catalog",
			zap.String("catalog_url", target.String()),
			zap.Error(err),
		)
	}
}

// resolveServices expands the named service, or the catalog's first service
// when the name is empty or unknown, into concrete endpoints.
func (cat *catalog) resolveServices(name, id, urlPath string) []harvest.Service {
	svc := cat.services[name]
	if svc == nil {
		svc = cat.first
	}
	if svc == nil {
		return nil
	}
	var out []harvest.Service
	var expand func(*xmlquery.Node)
	expand = func(s *xmlquery.Node) {
		if strings.EqualFold(attr(s, "serviceType"), "compound") {
			for child := s.FirstChild; child != nil; child = child.NextSibling {
				if child.Type == xmlquery.ElementNode && child.Data == "service" {
					expand(child)
				}
			}
			return
		}
		if u, ok := cat.serviceURL(s, id, urlPath); ok {
			out = append(out, harvest.Service{Name: attr(s, "serviceType"), URL: u})
		}
	}
	expand(svc)
	return out
}

func (cat *catalog) serviceURL(s *xmlquery.Node, id, urlPath string) (string, bool) {
	base, err := url.Parse(attr(s, "base"))
	if err != nil {
		return "", false
	}
	full := cat.url.ResolveReference(base).String() + urlPath
	if metadataServices[strings.ToLower(attr(s, "serviceType"))] {
		q := url.Values{}
		q.Set("catalog", cat.url.String())
		q.Set("dataset", id)
		full += "?" + q.Encode()
	}
	return full, true
}

// ownServiceName reads the dataset's serviceName element, attribute or
// metadata, in that order.
func ownServiceName(n *xmlquery.Node) string {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == "serviceName" {
			if v := strings.TrimSpace(child.InnerText()); v != "" {
				return v
			}
		}
	}
	if v := attr(n, "serviceName"); v != "" {
		return v
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == "metadata" {
			if v := metadataServiceName(child, false); v != "" {
				return v
			}
		}
	}
	return ""
}

func inheritedServiceName(n *xmlquery.Node) string {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == "metadata" {
			if v := metadataServiceName(child, true); v != "" {
				return v
			}
		}
	}
	return ""
}

// metadataServiceName returns the serviceName inside a metadata element. With
// inheritedOnly set, metadata not marked inherited is ignored.
func metadataServiceName(m *xmlquery.Node, inheritedOnly bool) string {
	if inheritedOnly && !strings.EqualFold(attr(m, "inherited"), "true") {
		return ""
	}
	for child := m.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == xmlquery.ElementNode && child.Data == "serviceName" {
			return strings.TrimSpace(child.InnerText())
		}
	}
	return ""
}

// attr looks an attribute up by local name so xlink:href and href both match.
func attr(n *xmlquery.Node, name string) string {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// xmlCatalogURL maps an HTML catalog link to its XML form.
func xmlCatalogURL(raw string) string {
	if i := strings.Index(raw, "?"); i >= 0 {
		if strings.HasSuffix(raw[:i], ".html") {
			return strings.TrimSuffix(raw[:i], ".html") + ".xml" + raw[i:]
		}
		return raw
	}
	if strings.HasSuffix(raw, ".html") {
		return strings.TrimSuffix(raw, ".html") + ".xml"
	}
	return raw
}
