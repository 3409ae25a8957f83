// Package logging wraps zerolog with the one helper the planner actually
// needs: timing a phase and logging its elapsed duration, matching
// strategy.py's `clock = time.time(); ...; print("... time =", ...)`
// instrumentation (spec §4.5).
package logging

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetLevel configures the global zerolog level, e.g. from config.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Phase logs phase start at debug level and returns a closure that logs
// elapsed time when called. Call it with defer at the top of a planning
// stage:
//
//	defer logging.Phase("tp-arrangement")()
func Phase(name string) func() {
	start := time.Now()
	log.Debug().Str("phase", name).Msg("phase started")
	return func() {
		log.Debug().
			Str("phase", name).
			Dur("elapsed", time.Since(start)).
			Msg("phase finished")
	}
}

// Event returns a zerolog event builder at info level, for call sites that
// want structured fields beyond the Phase helper.
func Event() *zerolog.Event {
	return log.Info()
}
