package models

import (
	"time"
)

type LeaderboardPeriod string

const (
	PeriodDaily   LeaderboardPeriod = "daily"
	PeriodWeekly  LeaderboardPeriod = "weekly"
	PeriodMonthly LeaderboardPeriod = "monthly"
	PeriodAllTime LeaderboardPeriod = "all_time"
)

var AllPeriods = []LeaderboardPeriod{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime}

type LeaderboardMetric string

const (
	MetricScore  LeaderboardMetric = "score"  // best single-session score (max-merged)
	MetricPoints LeaderboardMetric = "points" // points earned (summed)
	MetricXP     LeaderboardMetric = "xp"     // XP earned (summed)
	MetricWins   LeaderboardMetric = "wins"   // wins (summed)
)

var AllMetrics = []LeaderboardMetric{MetricScore, MetricPoints, MetricXP, MetricWins}

// LeaderboardEntry is one player's aggregate within a (game, period, metric)
// partition. Rank is a dense ordering of Value descending, tie-broken by
// earliest UpdatedAt then PlayerID. Rank 0 means "not yet ranked": the entry
// was written or its value changed since the last rank pass, so its partition
// is due for recomputation.
type LeaderboardEntry struct {
	ID        string            `gorm:"primaryKey;type:uuid" json:"id"`
	GameID    string            `gorm:"uniqueIndex:idx_lb_entry;not null" json:"game_id"`
	Period    LeaderboardPeriod `gorm:"uniqueIndex:idx_lb_entry;type:varchar(12);not null" json:"period"`
	PeriodKey string            `gorm:"uniqueIndex:idx_lb_entry;type:varchar(12);not null" json:"period_key"` // "2026-08-29", "2026-W35", "2026-08", "all"
	Metric    LeaderboardMetric `gorm:"uniqueIndex:idx_lb_entry;type:varchar(12);not null" json:"metric"`
	PlayerID  string            `gorm:"uniqueIndex:idx_lb_entry;index;not null" json:"player_id"`

	Value        int64     `json:"value"`
	Rank         int       `gorm:"default:0;index" json:"rank"`
	PreviousRank int       `gorm:"default:0" json:"previous_rank"`
	UpdatedAt    time.Time `json:"updated_at"`
}
