package cmd

import (
	"errors"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
)

// Process exit statuses.
const (
	exitOK         = 0
	exitCatalog    = 1
	exitTargetRoot = 2
	exitSetup      = 3
)

// setupErr marks configuration and wiring failures.
type setupErr struct {
	err error
}

func (e *setupErr) Error() string { return e.err.Error() }

func (e *setupErr) Unwrap() error { return e.err }

func setupError(err error) error {
	if err == nil {
		return nil
	}
	return &setupErr{err: err}
}

// exitCode maps a command error onto the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var se *setupErr
	if errors.As(err, &se) {
		return exitSetup
	}
	switch harvest.CauseOf(err) {
	case harvest.CauseTargetRoot:
		return exitTargetRoot
	default:
		return exitCatalog
	}
}
