package models

import (
	"time"
)

// CriteriaType is the closed set of achievement unlock conditions. Adding a
// kind means adding an evaluator arm in services; the engine rejects unknown
// kinds at seed time rather than at evaluation time.
type CriteriaType string

const (
	CriteriaGamesPlayed  CriteriaType = "games_played"
	CriteriaWins         CriteriaType = "wins"
	CriteriaStreak       CriteriaType = "streak"
	CriteriaPerfectScore CriteriaType = "perfect_score"
	CriteriaSpeed        CriteriaType = "speed" // win within Target seconds
	CriteriaScore        CriteriaType = "score" // single-session score >= Target
	CriteriaLevel        CriteriaType = "level"
)

// ValidCriteriaType reports whether t is a known criteria kind.
func ValidCriteriaType(t CriteriaType) bool {
	switch t {
	case CriteriaGamesPlayed, CriteriaWins, CriteriaStreak,
		CriteriaPerfectScore, CriteriaSpeed, CriteriaScore, CriteriaLevel:
		return true
	}
	return false
}

type AchievementTier string

const (
	TierBronze   AchievementTier = "bronze"
	TierSilver   AchievementTier = "silver"
	TierGold     AchievementTier = "gold"
	TierPlatinum AchievementTier = "platinum"
)

// AchievementDefinition: static catalog config, read-only at evaluation time.
// Owned by the admin seeding path; the reward engine only reads it.
type AchievementDefinition struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Code        string `gorm:"uniqueIndex;not null" json:"code"` // e.g., "first-victory"
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Category    string `gorm:"type:varchar(32)" json:"category"`

	Tier AchievementTier `gorm:"type:varchar(16);default:'bronze'" json:"tier"`

	CriteriaType   CriteriaType `gorm:"type:varchar(24);not null" json:"criteria_type"`
	CriteriaTarget int64        `gorm:"not null" json:"criteria_target"`
	CriteriaGameID *string      `gorm:"index" json:"criteria_game_id,omitempty"` // nil = any game

	RewardPoints int64  `gorm:"default:0" json:"reward_points"`
	RewardXP     int64  `gorm:"default:0" json:"reward_xp"`
	RewardTitle  string `json:"reward_title,omitempty"`

	Hidden bool `gorm:"default:false" json:"hidden"`
	Active bool `gorm:"default:true" json:"active"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// AchievementUnlock: append-only award record, unique per (player, achievement).
// The unique index is the idempotency guarantee: a duplicate insert under
// concurrent evaluation is a no-op, never an error.
type AchievementUnlock struct {
	ID            string    `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID      string    `gorm:"uniqueIndex:idx_player_achievement;not null" json:"player_id"`
	AchievementID string    `gorm:"uniqueIndex:idx_player_achievement;not null" json:"achievement_id"`
	UnlockedAt    time.Time `gorm:"autoCreateTime" json:"unlocked_at"`
}
