// workers/rank_worker.go
package workers

import (
	"context"
	"fmt"
	"time"

	"game-reward-system/models"
	"game-reward-system/services"
	"game-reward-system/storage"
	"game-reward-system/utils"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
)

// RankWorker owns the scheduled maintenance jobs: the batch re-rank sweep for
// monthly/all_time partitions, next-day challenge seeding, and the nightly
// leaderboard snapshot export.
type RankWorker struct {
	leaderboards *services.LeaderboardService
	challenges   *services.ChallengeService
	games        storage.GameStore
	objects      *utils.ObjectStore // nil when R2 is not configured
	log          zerolog.Logger
}

func NewRankWorker(
	leaderboards *services.LeaderboardService,
	challenges *services.ChallengeService,
	games storage.GameStore,
	objects *utils.ObjectStore,
	log zerolog.Logger,
) *RankWorker {
	return &RankWorker{
		leaderboards: leaderboards,
		challenges:   challenges,
		games:        games,
		objects:      objects,
		log:          log.With().Str("worker", "rank").Logger(),
	}
}

// Start schedules the jobs and returns the scheduler so main can shut it down.
func (w *RankWorker) Start(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	// Every minute: sweep partitions whose entries changed since the last pass.
	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			n, err := w.leaderboards.RecomputeDirty(ctx, 200)
			if err != nil {
				w.log.Error().Err(err).Msg("rank sweep failed")
				return
			}
			if n > 0 {
				w.log.Debug().Int("partitions", n).Msg("rank sweep done")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule rank sweep: %w", err)
	}

	// Shortly before midnight UTC: seed tomorrow's challenges and export
	// today's final leaderboard snapshots.
	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(23, 50, 0))),
		gocron.NewTask(func() {
			now := time.Now().UTC()
			tomorrow := services.DayKey(now.Add(24 * time.Hour))
			if err := w.challenges.SeedDay(ctx, tomorrow); err != nil {
				w.log.Error().Err(err).Str("day", tomorrow).Msg("challenge seeding failed")
			}
			w.exportSnapshots(ctx, now)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule daily job: %w", err)
	}

	sched.Start()
	w.log.Info().Msg("rank worker started")
	return sched, nil
}

// exportSnapshots writes the day's top-100 boards per game to object storage.
func (w *RankWorker) exportSnapshots(ctx context.Context, now time.Time) {
	if w.objects == nil {
		return
	}
	games, err := w.games.ListGames(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("snapshot export: listing games failed")
		return
	}
	day := services.DayKey(now)
	for _, game := range games {
		for _, metric := range models.AllMetrics {
			top, err := w.leaderboards.Top(ctx, game.ID, models.PeriodDaily, metric, 100, now)
			if err != nil || len(top) == 0 {
				continue
			}
			key := fmt.Sprintf("snapshots/%s/daily/%s/%s.json", game.ID, day, metric)
			url, err := w.objects.UploadJSON(ctx, key, top)
			if err != nil {
				w.log.Error().Err(err).Str("key", key).Msg("snapshot upload failed")
				continue
			}
			w.log.Info().Str("url", url).Int("entries", len(top)).Msg("leaderboard snapshot exported")
		}
	}
}
