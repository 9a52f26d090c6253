package catalog

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

// DefaultDescriptorMarker selects anchors pointing into the NcML service.
const DefaultDescriptorMarker = "/ncml/"

// Resolver extracts descriptor links from dataset landing pages.
type Resolver struct {
	fetcher harvest.Fetcher
	marker  string
	logger  *zap.Logger
}

// NewResolver returns a Resolver filtering hrefs on marker.
func NewResolver(fetcher harvest.Fetcher, marker string, logger *zap.Logger) *Resolver {
	if marker == "" {
		marker = DefaultDescriptorMarker
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetcher: fetcher, marker: marker, logger: logger}
}

// Resolve fetches landingURL and returns its descriptor links. The href only
// selects the anchor; the descriptor path is the anchor's trimmed label,
// resolved against the catalog's origin. Failures are resource-level errors.
func (r *Resolver) Resolve(ctx context.Context, catalogURL, landingURL string) ([]harvest.DescriptorLink, error) {
	base, err := url.Parse(catalogURL)
	if err != nil {
		return nil, harvest.ResourceError("parse catalog url", catalogURL, err)
	}
	resp, err := r.fetcher.Fetch(ctx, harvest.FetchRequest{URL: landingURL})
	if err != nil {
		return nil, harvest.ResourceError("fetch landing page", landingURL, err)
	}
	if !resp.OK() {
		return nil, harvest.ResourceError("fetch landing page", landingURL, harvest.StatusError(resp.StatusCode))
	}
	doc, err := htmlquery.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, harvest.ResourceError("parse landing page", landingURL, err)
	}
	links, err := r.descriptorLinks(base, landingURL, doc)
	if err != nil {
		return nil, harvest.ResourceError("query landing page", landingURL, err)
	}
	r.logger.Debug("landing page resolved",
		zap.String("landing_url", landingURL),
		zap.Int("descriptors", len(links)),
	)
	return links, nil
}

// descriptorLinks scans the anchors of a parsed landing page in document order.
func (r *Resolver) descriptorLinks(base *url.URL, landingURL string, doc *html.Node) ([]harvest.DescriptorLink, error) {
	anchors, err := htmlquery.QueryAll(doc, "//a[@href]")
	if err != nil {
		return nil, err
	}
	var links []harvest.DescriptorLink
	for _, a := range anchors {
		href := htmlquery.SelectAttr(a, "href")
		if !strings.Contains(href, r.marker) {
			continue
		}
		label := strings.TrimSpace(leadingText(a))
		if label == "" {
			r.logger.Warn("descriptor anchor has no label",
				zap.String("landing_url", landingURL),
				zap.String("href", href),
			)
			continue
		}
		links = append(links, harvest.DescriptorLink{
			ResourceID:    label,
			DescriptorURL: originOf(base) + ensureLeadingSlash(label),
		})
	}
	return links, nil
}

// leadingText returns the anchor's text up to its first child element.
// Text inside nested markup is not part of the label.
func leadingText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil && c.Type == html.TextNode; c = c.NextSibling {
		sb.WriteString(c.Data)
	}
	return sb.String()
}

func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return fmt.Sprintf("/%s", p)
}
