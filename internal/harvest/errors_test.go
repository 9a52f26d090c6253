package harvest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	base := errors.New("connection refused")
	fatal := Fatal(CauseCatalogFetch, "fetch catalog", "http://h/catalog.html", base)
	wrapped := fmt.Errorf("discover: %w", fatal)

	assert.True(t, IsFatal(wrapped))
	assert.Equal(t, CauseCatalogFetch, CauseOf(wrapped))
	assert.ErrorIs(t, wrapped, base)
	assert.Equal(t, "fetch catalog http://h/catalog.html: connection refused", fatal.Error())

	res := ResourceError("fetch", "http://h/iso/a", StatusError(404))
	assert.False(t, IsFatal(res))
	assert.Equal(t, KindResource, KindOf(res))
	assert.ErrorIs(t, res, ErrNonSuccessStatus)

	assert.Equal(t, KindBookkeeping, KindOf(BookkeepingError("remove", "retry.txt", base)))
	assert.Equal(t, Kind(""), KindOf(base))
	assert.Equal(t, CauseNone, CauseOf(base))
}

func TestFetchResponseOK(t *testing.T) {
	t.Parallel()

	assert.True(t, FetchResponse{StatusCode: 200}.OK())
	assert.True(t, FetchResponse{StatusCode: 204}.OK())
	assert.False(t, FetchResponse{StatusCode: 301}.OK())
	assert.False(t, FetchResponse{StatusCode: 500}.OK())
}
