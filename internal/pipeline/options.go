package pipeline

import (
	"time"

	"github.com/JakeFAU/tdsharvest/internal/clock/system"
	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/id/uuid"
)

// Option customizes the run environment shared by Indexer and Harvester.
type Option func(*runEnv)

// WithClock overrides the clock used to stamp runs.
func WithClock(clock harvest.Clock) Option {
	return func(env *runEnv) {
		if clock != nil {
			env.clock = clock
		}
	}
}

// WithIDGenerator overrides the run id source.
func WithIDGenerator(ids harvest.IDGenerator) Option {
	return func(env *runEnv) {
		if ids != nil {
			env.ids = ids
		}
	}
}

type runEnv struct {
	clock harvest.Clock
	ids   harvest.IDGenerator
}

func newRunEnv(opts []Option) runEnv {
	env := runEnv{clock: system.New(), ids: uuid.New()}
	for _, opt := range opts {
		opt(&env)
	}
	return env
}

// start returns a run id and start time. A generator failure falls back to a
// time derived id so a run is never blocked on it.
func (env runEnv) start() (string, time.Time) {
	now := env.clock.Now()
	id, err := env.ids.NewID()
	if err != nil || id == "" {
		id = "run-" + now.Format("20060102T150405.000000000Z")
	}
	return id, now
}
