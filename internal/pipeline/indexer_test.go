package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/storage/memory"
)

func indexFixture(t *testing.T, policy harvest.LandingPolicy, listPath string) (*Indexer, *memory.IndexStore) {
	t.Helper()
	schema := harvest.MustSchema([]harvest.Column{
		{Name: "location", Type: harvest.ColumnText},
		{Name: "stormyear", Type: harvest.ColumnInteger},
	})
	walker := fakeWalker{entries: []harvest.CatalogEntry{
		{DatasetID: "a.nc", URL: "http://h/landing/a"},
		{DatasetID: "b.nc", URL: "http://h/landing/b"},
		{DatasetID: "c.nc", URL: "http://h/landing/c"},
	}}
	resolver := fakeResolver{
		links: map[string][]harvest.DescriptorLink{
			"http://h/landing/a": {{ResourceID: "/ncml/a", DescriptorURL: "http://h/ncml/a"}},
			"http://h/landing/c": {
				{ResourceID: "/ncml/c", DescriptorURL: "http://h/ncml/c"},
				{ResourceID: "/ncml/a", DescriptorURL: "http://h/ncml/a"},
				{ResourceID: "/ncml/bad", DescriptorURL: "http://h/ncml/bad"},
			},
		},
		fail: map[string]bool{"http://h/landing/b": true},
	}
	extractor := fakeExtractor{schema: schema, values: map[string]map[string]string{
		"http://h/ncml/a":   {"stormyear": "2005"},
		"http://h/ncml/bad": {"stormyear": "n/a"},
	}}
	store := memory.NewIndexStore()
	ix, err := NewIndexer(IndexerConfig{CatalogURL: "http://h/catalog.html", Policy: policy, DescriptorListPath: listPath},
		walker, resolver, extractor, store, nil)
	require.NoError(t, err)
	return ix, store
}

func TestIndexerSkipPolicy(t *testing.T) {
	t.Parallel()

	listPath := filepath.Join(t.TempDir(), "descriptors.txt")
	ix, store := indexFixture(t, harvest.LandingSkip, listPath)

	summary, err := ix.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 3, summary.Datasets)
	assert.Equal(t, 1, summary.LandingFailures)
	assert.Equal(t, 4, summary.Descriptors)
	assert.Equal(t, 2, summary.Inserted)
	assert.Equal(t, 2, summary.InsertFailures, "duplicate and schema violation")
	assert.Equal(t, []string{"http://h/ncml/a", "http://h/ncml/c"}, store.Locations())

	row, ok := store.Row("http://h/ncml/a")
	require.True(t, ok)
	assert.Equal(t, []any{"http://h/ncml/a", int64(2005)}, row)

	data, err := os.ReadFile(listPath)
	require.NoError(t, err)
	assert.Equal(t, "http://h/ncml/a\nhttp://h/ncml/c\nhttp://h/ncml/a\nhttp://h/ncml/bad\n", string(data))
}

func TestIndexerAbortPolicy(t *testing.T) {
	t.Parallel()

	ix, store := indexFixture(t, harvest.LandingAbort, "")

	summary, err := ix.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, harvest.KindResource, harvest.KindOf(err))
	assert.Equal(t, 1, summary.LandingFailures)
	assert.Equal(t, []string{"http://h/ncml/a"}, store.Locations(), "work before the failure is kept")
}

func TestIndexerCatalogFailure(t *testing.T) {
	t.Parallel()

	walker := fakeWalker{err: harvest.Fatal(harvest.CauseCatalogFetch, "fetch catalog", "http://h", errCatalog)}
	ix, err := NewIndexer(IndexerConfig{Policy: harvest.LandingSkip}, walker, fakeResolver{}, fakeExtractor{}, memory.NewIndexStore(), nil)
	require.NoError(t, err)

	_, err = ix.Run(context.Background())
	require.Error(t, err)
	assert.True(t, harvest.IsFatal(err))
}

func TestNewIndexerRequiresPolicy(t *testing.T) {
	t.Parallel()

	_, err := NewIndexer(IndexerConfig{}, fakeWalker{}, fakeResolver{}, fakeExtractor{}, memory.NewIndexStore(), nil)
	require.Error(t, err)
}
