package services

import (
	"context"
	"fmt"
	"time"

	"game-reward-system/models"
	"game-reward-system/storage"

	"github.com/rs/zerolog"
)

type LeaderboardService struct {
	store storage.LeaderboardStore
	log   zerolog.Logger
}

func NewLeaderboardService(store storage.LeaderboardStore, log zerolog.Logger) *LeaderboardService {
	return &LeaderboardService{store: store, log: log.With().Str("service", "leaderboard").Logger()}
}

// PeriodKey buckets a timestamp into the partition key for a period.
// All windows are UTC.
func PeriodKey(period models.LeaderboardPeriod, t time.Time) string {
	t = t.UTC()
	switch period {
	case models.PeriodDaily:
		return t.Format("2006-01-02")
	case models.PeriodWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case models.PeriodMonthly:
		return t.Format("2006-01")
	default:
		return "all"
	}
}

func PartitionFor(gameID string, period models.LeaderboardPeriod, metric models.LeaderboardMetric, t time.Time) storage.Partition {
	return storage.Partition{
		GameID:    gameID,
		Period:    period,
		PeriodKey: PeriodKey(period, t),
		Metric:    metric,
	}
}

// CompletionValues carries the per-metric observations one completed session
// contributes to the player's leaderboard aggregates.
type CompletionValues struct {
	Score  int64 // max-merged: partitions track the best single-session score
	Points int64 // summed
	XP     int64 // summed
	Won    bool
}

// RecordCompletion folds one completion into every (period, metric) partition
// for the game. Daily and weekly partitions are re-ranked inline (small, hot
// on display); monthly and all_time entries are left unranked for the batch
// worker sweep. Both paths satisfy the same rank contract.
func (s *LeaderboardService) RecordCompletion(ctx context.Context, gameID, playerID string, v CompletionValues, now time.Time) error {
	for _, period := range models.AllPeriods {
		for _, metric := range models.AllMetrics {
			value, mode, ok := metricValue(metric, v)
			if !ok {
				continue
			}
			p := PartitionFor(gameID, period, metric, now)
			if err := s.store.ApplyValue(ctx, p, playerID, value, mode); err != nil {
				return fmt.Errorf("apply leaderboard value %s/%s: %w", period, metric, err)
			}
			if period == models.PeriodDaily || period == models.PeriodWeekly {
				if _, err := s.store.RecomputeRanks(ctx, p); err != nil {
					return fmt.Errorf("recompute ranks %s/%s: %w", period, metric, err)
				}
			}
		}
	}
	return nil
}

func metricValue(metric models.LeaderboardMetric, v CompletionValues) (int64, storage.AggregateMode, bool) {
	switch metric {
	case models.MetricScore:
		return v.Score, storage.AggregateMax, true
	case models.MetricPoints:
		return v.Points, storage.AggregateAdd, v.Points > 0
	case models.MetricXP:
		return v.XP, storage.AggregateAdd, v.XP > 0
	case models.MetricWins:
		if !v.Won {
			return 0, storage.AggregateAdd, false
		}
		return 1, storage.AggregateAdd, true
	}
	return 0, storage.AggregateAdd, false
}

// RecomputeDirty is the batch pass: it re-ranks every partition with unranked
// entries and returns how many partitions were processed.
func (s *LeaderboardService) RecomputeDirty(ctx context.Context, limit int) (int, error) {
	parts, err := s.store.ListDirtyPartitions(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list dirty partitions: %w", err)
	}
	for _, p := range parts {
		n, err := s.store.RecomputeRanks(ctx, p)
		if err != nil {
			return 0, fmt.Errorf("recompute ranks %s/%s/%s: %w", p.GameID, p.Period, p.Metric, err)
		}
		s.log.Debug().
			Str("game_id", p.GameID).
			Str("period", string(p.Period)).
			Str("metric", string(p.Metric)).
			Int("entries", n).
			Msg("partition re-ranked")
	}
	return len(parts), nil
}

// Top returns the partition's leading entries from a single consistent read.
func (s *LeaderboardService) Top(ctx context.Context, gameID string, period models.LeaderboardPeriod, metric models.LeaderboardMetric, limit int, now time.Time) ([]models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.TopEntries(ctx, PartitionFor(gameID, period, metric, now), limit)
}

// Around returns the entries ranked near the player, for "your neighborhood"
// views.
func (s *LeaderboardService) Around(ctx context.Context, gameID string, period models.LeaderboardPeriod, metric models.LeaderboardMetric, playerID string, radius int, now time.Time) ([]models.LeaderboardEntry, error) {
	if radius <= 0 || radius > 25 {
		radius = 5
	}
	return s.store.EntriesAround(ctx, PartitionFor(gameID, period, metric, now), playerID, radius)
}
