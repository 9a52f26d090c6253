// Package ncml extracts global attributes from NcML descriptor documents.
package ncml

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/metrics"
)

// DefaultContainer is the element holding the global attributes.
const DefaultContainer = "netcdf"

const attributeElement = "attribute"

// Extractor turns descriptor documents into attribute records.
type Extractor struct {
	fetcher   harvest.Fetcher
	schema    *harvest.Schema
	container string
	logger    *zap.Logger
}

// NewExtractor returns an Extractor matching container elements by name.
func NewExtractor(fetcher harvest.Fetcher, schema *harvest.Schema, container string, logger *zap.Logger) *Extractor {
	if container == "" {
		container = DefaultContainer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{fetcher: fetcher, schema: schema, container: container, logger: logger}
}

// Extract fetches descriptorURL and returns its record. It never fails: any
// problem yields a stub record holding only the key.
func (e *Extractor) Extract(ctx context.Context, descriptorURL string) harvest.AttributeRecord {
	record := e.schema.NewRecord(descriptorURL)

	resp, err := e.fetcher.Fetch(ctx, harvest.FetchRequest{URL: descriptorURL})
	switch {
	case err != nil:
		return e.stub(record, "fetch failed", err)
	case !resp.OK():
		return e.stub(record, "fetch failed", harvest.StatusError(resp.StatusCode))
	case len(bytes.TrimSpace(resp.Body)) == 0:
		return e.stub(record, "empty descriptor", nil)
	}

	doc, err := parse(resp.Body)
	if err != nil {
		return e.stub(record, "parse failed", err)
	}
	container := findContainer(doc, e.container, e.schema.Key())
	if container == nil {
		return e.stub(record, "container not found", fmt.Errorf("no <%s> with %s", e.container, e.schema.Key()))
	}

	for child := container.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode || !strings.EqualFold(child.Data, attributeElement) {
			continue
		}
		name, ok := attr(child, "name")
		if !ok {
			continue
		}
		name = strings.ToLower(name)
		value, _ := attr(child, "value")
		if value == "" || !e.schema.Interesting(name) {
			continue
		}
		// Interesting names are known to the schema, so Set cannot fail.
		_ = record.Set(name, value)
	}

	metrics.ObserveDescriptor("extracted")
	e.logger.Debug("descriptor extracted",
		zap.String("descriptor_url", descriptorURL),
		zap.Int("attributes", record.Populated()),
	)
	return record
}

func (e *Extractor) stub(record harvest.AttributeRecord, reason string, err error) harvest.AttributeRecord {
	metrics.ObserveDescriptor("stub")
	fields := []zap.Field{zap.String("descriptor_url", record.Key()), zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	e.logger.Warn("storing stub record", fields...)
	return record
}

// parse reads the document leniently so unclosed tags and HTML entities do
// not lose the whole descriptor. Declared non-UTF-8 encodings are decoded.
func parse(body []byte) (*xmlquery.Node, error) {
	return xmlquery.ParseWithOptions(bytes.NewReader(body), xmlquery.ParserOptions{
		Decoder: &xmlquery.DecoderOptions{
			Strict:        false,
			AutoClose:     xml.HTMLAutoClose,
			Entity:        xml.HTMLEntity,
			CharsetReader: charset.NewReaderLabel,
		},
	})
}

// findContainer returns the first element in document order named container
// that carries keyAttr.
func findContainer(n *xmlquery.Node, container, keyAttr string) *xmlquery.Node {
	if n.Type == xmlquery.ElementNode && strings.EqualFold(n.Data, container) {
		if _, ok := attr(n, keyAttr); ok {
			return n
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findContainer(child, container, keyAttr); found != nil {
			return found
		}
	}
	return nil
}

// attr looks an attribute up by local name, ignoring any namespace prefix.
func attr(n *xmlquery.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}
