// workers/session_reaper.go
package workers

import (
	"context"
	"time"

	"game-reward-system/storage"

	"github.com/rs/zerolog"
)

// SessionReaper abandons in_progress sessions with no activity past the
// cutoff. Abandoning uses the same conditional status transition as finalize,
// so a session completed between listing and reaping is left alone.
type SessionReaper struct {
	sessions storage.SessionStore
	maxAge   time.Duration
	log      zerolog.Logger
}

func NewSessionReaper(sessions storage.SessionStore, maxAge time.Duration, log zerolog.Logger) *SessionReaper {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &SessionReaper{
		sessions: sessions,
		maxAge:   maxAge,
		log:      log.With().Str("worker", "session_reaper").Logger(),
	}
}

// Run polls until the context is cancelled. Call in a goroutine.
func (r *SessionReaper) Run(ctx context.Context, pollInterval time.Duration) {
	r.log.Info().Dur("max_age", r.maxAge).Msg("session reaper started")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("session reaper stopped")
			return
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				r.log.Error().Err(err).Msg("reaper sweep failed")
			}
		}
	}
}

func (r *SessionReaper) sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.maxAge)
	stale, err := r.sessions.ListStaleSessions(ctx, cutoff, 100)
	if err != nil {
		return err
	}

	var reaped int
	for _, sess := range stale {
		if err := r.sessions.AbandonSession(ctx, sess.ID); err != nil {
			// Lost the race against a concurrent finalize. Not an error.
			continue
		}
		reaped++
	}
	if reaped > 0 {
		r.log.Info().Int("reaped", reaped).Time("cutoff", cutoff).Msg("stale sessions abandoned")
	}
	return nil
}
