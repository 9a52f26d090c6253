package harvest

import (
	"errors"
	"fmt"
)

// Kind groups failures by how the caller must react to them.
type Kind string

// Error kinds.
const (
	// KindFatal aborts the run: nothing downstream can proceed.
	KindFatal Kind = "fatal_precondition"
	// KindResource is confined to one resource and recorded in the error set.
	KindResource Kind = "resource"
	// KindBookkeeping covers tracking-file failures, which are logged only.
	KindBookkeeping Kind = "bookkeeping"
	// KindSchema reports a value that cannot be coerced to its column type.
	KindSchema Kind = "schema_violation"
)

// Cause names the precondition behind a fatal error.
type Cause string

// Fatal causes, each mapped to a distinct process exit status.
const (
	CauseNone         Cause = ""
	CauseCatalogFetch Cause = "catalog_fetch"
	CauseCatalogCrawl Cause = "catalog_crawl"
	CauseTargetRoot   Cause = "target_root"
)

// ErrNonSuccessStatus is wrapped when a fetch completes with a non-2xx status.
var ErrNonSuccessStatus = errors.New("non-success status")

// Error carries the taxonomy kind alongside the failing operation.
type Error struct {
	Kind  Kind
	Cause Cause
	Op    string
	URL   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.URL != "" {
		msg = fmt.Sprintf("%s %s", msg, e.URL)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal builds a fatal precondition error.
func Fatal(cause Cause, op, url string, err error) *Error {
	return &Error{Kind: KindFatal, Cause: cause, Op: op, URL: url, Err: err}
}

// ResourceError builds an error confined to a single resource.
func ResourceError(op, url string, err error) *Error {
	return &Error{Kind: KindResource, Op: op, URL: url, Err: err}
}

// BookkeepingError builds a tracking-file error.
func BookkeepingError(op, path string, err error) *Error {
	return &Error{Kind: KindBookkeeping, Op: op, URL: path, Err: err}
}

// SchemaError builds a schema violation for the named column.
func SchemaError(column, value string, err error) *Error {
	return &Error{Kind: KindSchema, Op: "coerce " + column, Err: fmt.Errorf("value %q: %w", value, err)}
}

// StatusError reports a completed fetch with a non-2xx status.
func StatusError(code int) error {
	return fmt.Errorf("%w %d", ErrNonSuccessStatus, code)
}

// KindOf returns the taxonomy kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Kind
	}
	return ""
}

// CauseOf returns the fatal cause carried by err.
func CauseOf(err error) Cause {
	var herr *Error
	if errors.As(err, &herr) {
		return herr.Cause
	}
	return CauseNone
}

// IsFatal reports whether err must abort the run.
func IsFatal(err error) bool {
	return KindOf(err) == KindFatal
}
