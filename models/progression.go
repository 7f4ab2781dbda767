package models

import (
	"time"

	"gorm.io/gorm"
)

// PlayerProgress tracks gamified progression for each player (denormalized for performance)
type PlayerProgress struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID string `gorm:"uniqueIndex;not null" json:"player_id"`

	// Core progression. Level is always LevelForXP(TotalXP); it is persisted
	// so reads stay cheap, and only ever moves up.
	TotalXP int64 `json:"total_xp" gorm:"default:0"`
	Level   int   `json:"level" gorm:"default:1"`
	Rank    int   `json:"rank" gorm:"default:1"` // Rookie(1)→Bronze(2)→Silver(3)→Gold(4)→Platinum(5)→Diamond(6)

	// Play statistics. LongestStreak >= CurrentStreak always.
	GamesPlayed   int64 `json:"games_played" gorm:"default:0"`
	Wins          int64 `json:"wins" gorm:"default:0"`
	Losses        int64 `json:"losses" gorm:"default:0"`
	Draws         int64 `json:"draws" gorm:"default:0"`
	PerfectScores int64 `json:"perfect_scores" gorm:"default:0"`
	CurrentStreak int64 `json:"current_streak" gorm:"default:0"`
	LongestStreak int64 `json:"longest_streak" gorm:"default:0"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

func (PlayerProgress) TableName() string { return "player_progress" }

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
