package models

import (
	"time"
)

// ChallengeKind is the closed set of daily challenge objectives. Candidate
// values are recomputed from the full set of the day's completed sessions, so
// every kind must be derivable from sessions alone.
type ChallengeKind string

const (
	ChallengePlayCount    ChallengeKind = "play_count"
	ChallengeWinCount     ChallengeKind = "win_count"
	ChallengeTotalScore   ChallengeKind = "total_score"
	ChallengePerfectCount ChallengeKind = "perfect_count"
	ChallengeBestScore    ChallengeKind = "best_score"
)

// DailyChallenge is one day's challenge instance. Windows are UTC calendar
// days; a challenge never straddles two day boundaries.
type DailyChallenge struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Day         string `gorm:"uniqueIndex:idx_challenge_day_kind;type:varchar(10);not null" json:"day"` // "2006-01-02" (UTC)
	Kind        ChallengeKind `gorm:"uniqueIndex:idx_challenge_day_kind;type:varchar(16);not null" json:"kind"`
	Name        string        `gorm:"not null" json:"name"`
	Description string        `json:"description"`
	GameID      *string       `gorm:"index" json:"game_id,omitempty"` // nil = any game counts

	Target       int64 `gorm:"not null" json:"target"`
	RewardPoints int64 `gorm:"default:0" json:"reward_points"`
	RewardXP     int64 `gorm:"default:0" json:"reward_xp"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ChallengeProgress is a player's progress toward one challenge instance.
// Progress only moves forward (max-merge) and IsCompleted is one-way, so
// replays and out-of-order delivery cannot double count or regress.
type ChallengeProgress struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID    string `gorm:"uniqueIndex:idx_player_challenge;not null" json:"player_id"`
	ChallengeID string `gorm:"uniqueIndex:idx_player_challenge;not null" json:"challenge_id"`

	Progress       int64      `gorm:"default:0" json:"progress"`
	IsCompleted    bool       `gorm:"default:false" json:"is_completed"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	RewardsClaimed bool       `gorm:"default:false" json:"rewards_claimed"`

	UpdatedAt time.Time `json:"updated_at"`
}
