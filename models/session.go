package models

import (
	"time"
)

// SessionStatus is the lifecycle state of a play session. Transitions are
// monotonic: in_progress may move to completed or abandoned, never back.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

type SessionOutcome string

const (
	OutcomeWin  SessionOutcome = "win"
	OutcomeLoss SessionOutcome = "loss"
	OutcomeDraw SessionOutcome = "draw"
)

// GameSession records a single play-through of a game by one player.
// Created when the player starts a game; mutated exactly once by the reward
// engine (to completed) or by the reaper (to abandoned); never deleted.
type GameSession struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID string `gorm:"index;not null" json:"player_id"`
	GameID   string `gorm:"index;not null" json:"game_id"`

	Status SessionStatus `gorm:"type:varchar(16);default:'in_progress';index" json:"status"`

	Score    int64          `json:"score"`
	MaxScore int64          `json:"max_score"`
	Outcome  SessionOutcome `gorm:"type:varchar(8)" json:"outcome,omitempty"`

	Accuracy   *int   `json:"accuracy,omitempty"` // 0..100
	Moves      *int   `json:"moves,omitempty"`
	Hints      *int   `json:"hints,omitempty"`
	Difficulty string `gorm:"type:varchar(16)" json:"difficulty,omitempty"`

	// Raw game telemetry as submitted by the client; the engine never reads it.
	RawData string `gorm:"type:jsonb" json:"raw_data,omitempty"`

	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	Timestamps
}

// DurationSeconds returns the played time, or 0 when the session is still open.
func (s *GameSession) DurationSeconds() int64 {
	if s.EndedAt == nil {
		return 0
	}
	d := int64(s.EndedAt.Sub(s.StartedAt).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// IsPerfect reports whether the session hit the maximum possible score.
func (s *GameSession) IsPerfect() bool {
	return s.MaxScore > 0 && s.Score >= s.MaxScore
}
