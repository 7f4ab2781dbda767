package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"game-reward-system/models"
	"game-reward-system/storage"

	"github.com/gosimple/slug"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type AchievementService struct {
	store storage.AchievementStore
	log   zerolog.Logger
}

func NewAchievementService(store storage.AchievementStore, log zerolog.Logger) *AchievementService {
	return &AchievementService{store: store, log: log.With().Str("service", "achievements").Logger()}
}

// Evaluate checks every active definition applicable to the game against the
// updated statistics (and the triggering session for per-session criteria)
// and returns the definitions newly unlocked by this call.
//
// Safe to re-run: already-unlocked pairs are skipped, and a lost insert race
// is treated as "already unlocked", not an error.
func (s *AchievementService) Evaluate(ctx context.Context, playerID, gameID string, stats *models.PlayerProgress, sess *models.GameSession) ([]models.AchievementDefinition, error) {
	defs, err := s.store.ListActiveDefinitions(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list achievement definitions: %w", err)
	}
	unlocked, err := s.store.ListUnlocked(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("list unlocked achievements: %w", err)
	}

	var newly []models.AchievementDefinition
	for _, def := range defs {
		if _, done := unlocked[def.ID]; done {
			continue
		}
		if !criterionMet(def, stats, sess) {
			continue
		}
		inserted, err := s.store.InsertUnlock(ctx, playerID, def.ID)
		if err != nil {
			return newly, fmt.Errorf("insert unlock %s: %w", def.Code, err)
		}
		if !inserted {
			continue // concurrent evaluator got there first
		}
		s.log.Info().
			Str("player_id", playerID).
			Str("achievement", def.Code).
			Str("tier", string(def.Tier)).
			Msg("achievement unlocked")
		newly = append(newly, def)
	}
	return newly, nil
}

// criterionMet dispatches on the closed criteria enum. Statistics-based kinds
// compare the current metric against the target; session-based kinds look at
// the triggering session only.
func criterionMet(def models.AchievementDefinition, stats *models.PlayerProgress, sess *models.GameSession) bool {
	switch def.CriteriaType {
	case models.CriteriaGamesPlayed:
		return stats.GamesPlayed >= def.CriteriaTarget
	case models.CriteriaWins:
		return stats.Wins >= def.CriteriaTarget
	case models.CriteriaStreak:
		return stats.CurrentStreak >= def.CriteriaTarget
	case models.CriteriaPerfectScore:
		return stats.PerfectScores >= def.CriteriaTarget
	case models.CriteriaLevel:
		return int64(stats.Level) >= def.CriteriaTarget
	case models.CriteriaScore:
		return sess != nil && sess.Score >= def.CriteriaTarget
	case models.CriteriaSpeed:
		if sess == nil || sess.Outcome != models.OutcomeWin {
			return false
		}
		d := sess.DurationSeconds()
		return d > 0 && d <= def.CriteriaTarget
	}
	return false
}

// AchievementProgress is one row of the public progress preview.
type AchievementProgress struct {
	Definition models.AchievementDefinition `json:"definition"`
	Current    int64                        `json:"current"`
	Unlocked   bool                         `json:"unlocked"`
	UnlockedAt *time.Time                   `json:"unlocked_at,omitempty"`
}

// Preview reports per-achievement progress for display. Hidden achievements
// are included only once unlocked; session-based criteria show 0/target until
// they fire.
func (s *AchievementService) Preview(ctx context.Context, playerID, gameID string, stats *models.PlayerProgress) ([]AchievementProgress, error) {
	defs, err := s.store.ListActiveDefinitions(ctx, gameID)
	if err != nil {
		return nil, err
	}
	unlocked, err := s.store.ListUnlocked(ctx, playerID)
	if err != nil {
		return nil, err
	}

	var out []AchievementProgress
	for _, def := range defs {
		at, done := unlocked[def.ID]
		if def.Hidden && !done {
			continue
		}
		row := AchievementProgress{Definition: def, Unlocked: done}
		if done {
			t := at
			row.UnlockedAt = &t
			row.Current = def.CriteriaTarget
		} else {
			row.Current = statMetric(def.CriteriaType, stats)
			if row.Current > def.CriteriaTarget {
				row.Current = def.CriteriaTarget
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func statMetric(t models.CriteriaType, stats *models.PlayerProgress) int64 {
	switch t {
	case models.CriteriaGamesPlayed:
		return stats.GamesPlayed
	case models.CriteriaWins:
		return stats.Wins
	case models.CriteriaStreak:
		return stats.CurrentStreak
	case models.CriteriaPerfectScore:
		return stats.PerfectScores
	case models.CriteriaLevel:
		return int64(stats.Level)
	default:
		return 0
	}
}

// CatalogSeed is the admin-facing shape for loading definitions: the code is
// derived from the name, and the display name from the code when omitted.
type CatalogSeed struct {
	Name           string
	Description    string
	Category       string
	Tier           models.AchievementTier
	CriteriaType   models.CriteriaType
	CriteriaTarget int64
	CriteriaGameID *string
	RewardPoints   int64
	RewardXP       int64
	RewardTitle    string
	Hidden         bool
}

var titleCaser = cases.Title(language.English)

// SeedCatalog upserts definitions by code; unknown criteria kinds are
// rejected before anything is written.
func (s *AchievementService) SeedCatalog(ctx context.Context, seeds []CatalogSeed) error {
	for _, seed := range seeds {
		if !models.ValidCriteriaType(seed.CriteriaType) {
			return fmt.Errorf("unknown criteria type %q for %q", seed.CriteriaType, seed.Name)
		}
		if seed.CriteriaTarget <= 0 {
			return fmt.Errorf("criteria target must be positive for %q", seed.Name)
		}
		code := slug.Make(seed.Name)
		name := seed.Name
		if name == "" {
			name = titleCaser.String(strings.ReplaceAll(code, "-", " "))
		}
		def := models.AchievementDefinition{
			Code:           code,
			Name:           name,
			Description:    seed.Description,
			Category:       seed.Category,
			Tier:           seed.Tier,
			CriteriaType:   seed.CriteriaType,
			CriteriaTarget: seed.CriteriaTarget,
			CriteriaGameID: seed.CriteriaGameID,
			RewardPoints:   seed.RewardPoints,
			RewardXP:       seed.RewardXP,
			RewardTitle:    seed.RewardTitle,
			Hidden:         seed.Hidden,
			Active:         true,
		}
		if def.Tier == "" {
			def.Tier = models.TierBronze
		}
		if err := s.store.UpsertDefinition(ctx, &def); err != nil {
			return fmt.Errorf("upsert achievement %s: %w", code, err)
		}
	}
	s.log.Info().Int("count", len(seeds)).Msg("achievement catalog seeded")
	return nil
}

// DefaultCatalog is the stock achievement set installed on first boot.
func DefaultCatalog() []CatalogSeed {
	return []CatalogSeed{
		{Name: "First Steps", Description: "Finish your first game", Category: "play", Tier: models.TierBronze, CriteriaType: models.CriteriaGamesPlayed, CriteriaTarget: 1, RewardPoints: 10, RewardXP: 20},
		{Name: "Regular", Description: "Finish 25 games", Category: "play", Tier: models.TierSilver, CriteriaType: models.CriteriaGamesPlayed, CriteriaTarget: 25, RewardPoints: 50, RewardXP: 100},
		{Name: "Veteran", Description: "Finish 100 games", Category: "play", Tier: models.TierGold, CriteriaType: models.CriteriaGamesPlayed, CriteriaTarget: 100, RewardPoints: 200, RewardXP: 400},
		{Name: "First Victory", Description: "Win a game", Category: "wins", Tier: models.TierBronze, CriteriaType: models.CriteriaWins, CriteriaTarget: 1, RewardPoints: 20, RewardXP: 30},
		{Name: "Champion", Description: "Win 50 games", Category: "wins", Tier: models.TierGold, CriteriaType: models.CriteriaWins, CriteriaTarget: 50, RewardPoints: 250, RewardXP: 500},
		{Name: "Hat Trick", Description: "Win 3 in a row", Category: "streaks", Tier: models.TierSilver, CriteriaType: models.CriteriaStreak, CriteriaTarget: 3, RewardPoints: 75, RewardXP: 150},
		{Name: "Unstoppable", Description: "Win 10 in a row", Category: "streaks", Tier: models.TierPlatinum, CriteriaType: models.CriteriaStreak, CriteriaTarget: 10, RewardPoints: 500, RewardXP: 1000, RewardTitle: "The Unstoppable"},
		{Name: "Perfectionist", Description: "Score a perfect game", Category: "skill", Tier: models.TierSilver, CriteriaType: models.CriteriaPerfectScore, CriteriaTarget: 1, RewardPoints: 100, RewardXP: 200},
		{Name: "Speed Demon", Description: "Win in under 30 seconds", Category: "skill", Tier: models.TierGold, CriteriaType: models.CriteriaSpeed, CriteriaTarget: 30, RewardPoints: 150, RewardXP: 300, Hidden: true},
		{Name: "Rising Star", Description: "Reach level 10", Category: "progression", Tier: models.TierSilver, CriteriaType: models.CriteriaLevel, CriteriaTarget: 10, RewardPoints: 100, RewardXP: 0},
	}
}
