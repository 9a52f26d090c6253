package bookkeeper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

func newBookkeeper(t *testing.T) (*Bookkeeper, Paths) {
	t.Helper()
	dir := t.TempDir()
	paths := Paths{
		CrawlResults: filepath.Join(dir, DefaultCrawlResultsPath),
		Retry:        filepath.Join(dir, DefaultRetryPath),
		Success:      filepath.Join(dir, DefaultSuccessPath),
	}
	return New(paths, zap.NewNop()), paths
}

func TestWriteFormats(t *testing.T) {
	t.Parallel()

	b, paths := newBookkeeper(t)
	b.WriteCrawlResults([]harvest.Resource{
		{ID: "storms/a.nc", ServiceURL: "http://h/iso/a"},
		{ID: "b.nc", ServiceURL: "http://h/iso/b"},
	})
	b.WriteRetry([]string{"http://h/iso/b"})
	b.WriteSuccess([]string{"http://h/iso/a"})

	assertFile(t, paths.CrawlResults, "name = storms/a.nc\nurl = http://h/iso/a\nname = b.nc\nurl = http://h/iso/b\n")
	assertFile(t, paths.Retry, "http://h/iso/b\n")
	assertFile(t, paths.Success, "http://h/iso/a\n")
}

func TestWriteEmptyListsCreateEmptyFiles(t *testing.T) {
	t.Parallel()

	b, paths := newBookkeeper(t)
	b.WriteRetry(nil)
	assertFile(t, paths.Retry, "")
}

func TestResetIsIdempotent(t *testing.T) {
	t.Parallel()

	b, paths := newBookkeeper(t)
	b.WriteRetry([]string{"u"})
	b.WriteSuccess([]string{"u"})

	b.Reset()
	b.Reset()

	for _, p := range []string{paths.CrawlResults, paths.Retry, paths.Success} {
		_, err := os.Stat(p)
		assert.ErrorIs(t, err, os.ErrNotExist, p)
	}
}

func TestWriteFailureIsLoggedNotReturned(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	b := New(Paths{Retry: filepath.Join(t.TempDir(), "missing", "retry.txt")}, zap.New(core))

	b.WriteRetry([]string{"u"})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "bookkeeping failed", logs.All()[0].Message)
}

func TestReadRoundTrip(t *testing.T) {
	t.Parallel()

	b, _ := newBookkeeper(t)
	resources := []harvest.Resource{
		{ID: "storms/a.nc", ServiceURL: "http://h/iso/a?catalog=c&dataset=storms/a.nc"},
		{ID: "b.nc", ServiceURL: "http://h/iso/b"},
	}
	b.WriteCrawlResults(resources)
	b.WriteRetry([]string{"http://h/iso/b", "", "http://h/iso/c?dataset=x/c.nc"})

	crawled, err := b.ReadCrawlResults()
	require.NoError(t, err)
	assert.Equal(t, resources, crawled)

	retry, err := b.ReadRetry()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://h/iso/b", "http://h/iso/c?dataset=x/c.nc"}, retry)

	assert.Equal(t, []harvest.Resource{
		{ID: "b.nc", ServiceURL: "http://h/iso/b"},
		{ID: "x/c.nc", ServiceURL: "http://h/iso/c?dataset=x/c.nc"},
	}, ResourcesFor(retry, crawled))
}

func TestReadMissingFiles(t *testing.T) {
	t.Parallel()

	b, _ := newBookkeeper(t)
	retry, err := b.ReadRetry()
	require.NoError(t, err)
	assert.Empty(t, retry)

	crawled, err := b.ReadCrawlResults()
	require.NoError(t, err)
	assert.Empty(t, crawled)
}

func TestIDFromURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "thredds/iso/a.nc", idFromURL("http://h/thredds/iso/a.nc"))
	assert.Equal(t, "s/a.nc", idFromURL("http://h/thredds/iso/a.nc?catalog=x&dataset=s/a.nc"))
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(got))
}

func TestWriteList(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "SSV-Ncml.txt")
	New(Paths{}, nil).WriteList(path, []string{"http://h/a", "http://h/b"})
	assertFile(t, path, "http://h/a\nhttp://h/b\n")
}
