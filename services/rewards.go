package services

import (
	"math"

	"game-reward-system/models"
)

// RewardAmounts is the output of the pure reward computation: non-negative
// integer points and XP for one completed session.
type RewardAmounts struct {
	Points int64 `json:"points"`
	XP     int64 `json:"xp"`
}

// ComputeRewards selects the base amounts for the outcome, scales them by the
// score ratio (clamped to [0,1]) and the game's difficulty multiplier, and
// rounds. Pure function: no storage, no clock.
func ComputeRewards(game *models.Game, outcome models.SessionOutcome, score, maxScore int64, difficulty string) RewardAmounts {
	var basePoints, baseXP int64
	switch outcome {
	case models.OutcomeWin:
		basePoints, baseXP = game.WinPoints, game.WinXP
	case models.OutcomeLoss:
		basePoints, baseXP = game.LossPoints, game.LossXP
	default: // draw and anything else pays the participation base
		basePoints, baseXP = game.ParticipationPoints, game.ParticipationXP
	}

	ratio := 1.0
	if maxScore > 0 {
		ratio = float64(score) / float64(maxScore)
		if ratio < 0 {
			ratio = 0
		} else if ratio > 1 {
			ratio = 1
		}
	}
	mult := game.MultiplierFor(difficulty)

	return RewardAmounts{
		Points: scaleReward(basePoints, ratio, mult),
		XP:     scaleReward(baseXP, ratio, mult),
	}
}

func scaleReward(base int64, ratio, mult float64) int64 {
	v := int64(math.Round(float64(base) * ratio * mult))
	if v < 0 {
		return 0
	}
	return v
}

// Leveling curve: the cumulative XP threshold to hold level n is
// XPBase * n². Quadratic keeps early levels fast and later ones slow, and the
// closed form makes LevelForXP trivially pure and monotonic.
const (
	XPBase   = 10
	MaxLevel = 500
)

// XPForLevel returns the total XP required to hold the given level.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return int64(XPBase) * int64(level) * int64(level)
}

// LevelForXP maps total XP to a level. Same XP always yields the same level
// no matter how it was accumulated; output never decreases as XP grows.
func LevelForXP(totalXP int64) int {
	if totalXP <= 0 {
		return 1
	}
	level := int(math.Sqrt(float64(totalXP) / float64(XPBase)))
	if level > MaxLevel {
		level = MaxLevel
	}
	// Guard against float edge cases around exact thresholds.
	for level < MaxLevel && XPForLevel(level+1) <= totalXP {
		level++
	}
	for level > 1 && XPForLevel(level) > totalXP {
		level--
	}
	if level < 1 {
		level = 1
	}
	return level
}

// RankThresholds: levels required before rank-up.
var RankThresholds = map[int]int{ // rank → min level
	1: 1,   // Rookie (start)
	2: 5,   // Bronze
	3: 15,  // Silver
	4: 30,  // Gold
	5: 60,  // Platinum
	6: 100, // Diamond
}

func RankForLevel(level int) int {
	for rank := 6; rank >= 1; rank-- {
		if level >= RankThresholds[rank] {
			return rank
		}
	}
	return 1
}

func RankName(rank int) string {
	switch rank {
	case 1:
		return "Rookie"
	case 2:
		return "Bronze"
	case 3:
		return "Silver"
	case 4:
		return "Gold"
	case 5:
		return "Platinum"
	case 6:
		return "Diamond"
	default:
		if rank > 6 {
			return "Legend"
		}
		return "Rookie"
	}
}
