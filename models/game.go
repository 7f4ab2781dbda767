// models/game.go
package models

const (
	DifficultyEasy   = "easy"
	DifficultyNormal = "normal"
	DifficultyHard   = "hard"
	DifficultyExpert = "expert"
)

// Game holds the per-game reward configuration the engine reads when a
// session completes. Content management owns everything else about a game;
// this service only needs the base amounts and difficulty multipliers.
type Game struct {
	ID   string `json:"id" gorm:"primaryKey;type:uuid"`
	Name string `json:"name" gorm:"not null"`
	Slug string `json:"slug" gorm:"uniqueIndex"`

	// Base points by outcome; draw pays the participation base.
	WinPoints           int64 `json:"win_points" gorm:"default:50"`
	LossPoints          int64 `json:"loss_points" gorm:"default:10"`
	ParticipationPoints int64 `json:"participation_points" gorm:"default:20"`

	// Base XP by outcome.
	WinXP           int64 `json:"win_xp" gorm:"default:60"`
	LossXP          int64 `json:"loss_xp" gorm:"default:15"`
	ParticipationXP int64 `json:"participation_xp" gorm:"default:25"`

	// Difficulty multipliers. Explicit fields rather than a map: the engine
	// reads these, so they are part of the typed contract.
	EasyMultiplier   float64 `json:"easy_multiplier" gorm:"default:0.75"`
	NormalMultiplier float64 `json:"normal_multiplier" gorm:"default:1"`
	HardMultiplier   float64 `json:"hard_multiplier" gorm:"default:1.5"`
	ExpertMultiplier float64 `json:"expert_multiplier" gorm:"default:2"`

	Active bool `json:"active" gorm:"default:true"`

	Timestamps
}

// MultiplierFor maps a session difficulty to the configured multiplier.
// Unknown or empty difficulty plays at normal weight.
func (g *Game) MultiplierFor(difficulty string) float64 {
	var m float64
	switch difficulty {
	case DifficultyEasy:
		m = g.EasyMultiplier
	case DifficultyHard:
		m = g.HardMultiplier
	case DifficultyExpert:
		m = g.ExpertMultiplier
	default:
		m = g.NormalMultiplier
	}
	if m <= 0 {
		return 1
	}
	return m
}
