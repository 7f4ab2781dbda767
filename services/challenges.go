package services

import (
	"context"
	"fmt"
	"time"

	"game-reward-system/models"
	"game-reward-system/storage"

	"github.com/rs/zerolog"
)

type ChallengeService struct {
	store    storage.ChallengeStore
	sessions storage.SessionStore
	wallets  storage.WalletStore
	progress storage.ProgressionStore
	log      zerolog.Logger
}

func NewChallengeService(store storage.ChallengeStore, sessions storage.SessionStore, wallets storage.WalletStore, progress storage.ProgressionStore, log zerolog.Logger) *ChallengeService {
	return &ChallengeService{
		store:    store,
		sessions: sessions,
		wallets:  wallets,
		progress: progress,
		log:      log.With().Str("service", "challenges").Logger(),
	}
}

// DayKey buckets a timestamp into its UTC calendar day.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Advance recomputes the player's candidate value for each of today's
// challenges from the full set of today's completed sessions and max-merges
// it into stored progress. Recompute-then-merge (rather than increment) makes
// replays, backfills and out-of-order delivery harmless: the candidate is
// derived from the same session set every time, and progress never decreases.
func (s *ChallengeService) Advance(ctx context.Context, playerID string, now time.Time) ([]models.ChallengeProgress, error) {
	day := DayKey(now)
	challenges, err := s.store.ListChallengesForDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list challenges for %s: %w", day, err)
	}
	if len(challenges) == 0 {
		return nil, nil
	}

	sessions, err := s.sessions.ListCompletedSessions(ctx, playerID, startOfDay(now))
	if err != nil {
		return nil, fmt.Errorf("list today's sessions: %w", err)
	}

	var updated []models.ChallengeProgress
	for _, ch := range challenges {
		candidate := candidateValue(ch, sessions)
		cp, completedNow, err := s.store.MergeChallengeProgress(ctx, playerID, ch, candidate, now)
		if err != nil {
			return updated, fmt.Errorf("merge progress for challenge %s: %w", ch.ID, err)
		}
		if completedNow {
			s.log.Info().
				Str("player_id", playerID).
				Str("challenge", string(ch.Kind)).
				Str("day", ch.Day).
				Msg("daily challenge completed")
		}
		updated = append(updated, *cp)
	}
	return updated, nil
}

// candidateValue derives one challenge metric from the day's sessions.
func candidateValue(ch models.DailyChallenge, sessions []models.GameSession) int64 {
	var v int64
	for _, sess := range sessions {
		if ch.GameID != nil && *ch.GameID != sess.GameID {
			continue
		}
		switch ch.Kind {
		case models.ChallengePlayCount:
			v++
		case models.ChallengeWinCount:
			if sess.Outcome == models.OutcomeWin {
				v++
			}
		case models.ChallengeTotalScore:
			v += sess.Score
		case models.ChallengePerfectCount:
			if sess.IsPerfect() {
				v++
			}
		case models.ChallengeBestScore:
			if sess.Score > v {
				v = sess.Score
			}
		}
	}
	return v
}

// ChallengeView pairs a challenge instance with the player's progress.
type ChallengeView struct {
	Challenge models.DailyChallenge    `json:"challenge"`
	Progress  models.ChallengeProgress `json:"progress"`
}

// Today lists the day's challenges with the player's progress (zero rows for
// challenges not yet attempted).
func (s *ChallengeService) Today(ctx context.Context, playerID string, now time.Time) ([]ChallengeView, error) {
	challenges, err := s.store.ListChallengesForDay(ctx, DayKey(now))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(challenges))
	for i, ch := range challenges {
		ids[i] = ch.ID
	}
	progress, err := s.store.ListChallengeProgress(ctx, playerID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.ChallengeProgress, len(progress))
	for _, cp := range progress {
		byID[cp.ChallengeID] = cp
	}

	out := make([]ChallengeView, 0, len(challenges))
	for _, ch := range challenges {
		view := ChallengeView{Challenge: ch}
		if cp, ok := byID[ch.ID]; ok {
			view.Progress = cp
		} else {
			view.Progress = models.ChallengeProgress{PlayerID: playerID, ChallengeID: ch.ID}
		}
		out = append(out, view)
	}
	return out, nil
}

// Claim pays out a completed challenge exactly once. The rewards_claimed flip
// is the gate: whoever wins it credits the wallet and XP; everyone else gets
// an already-claimed error. A payout failure reverts the flip so the claim is
// never consumed unpaid.
func (s *ChallengeService) Claim(ctx context.Context, playerID, challengeID string, now time.Time) (*models.Wallet, error) {
	cp, err := s.store.GetChallengeProgress(ctx, playerID, challengeID)
	if err != nil {
		return nil, err
	}
	if !cp.IsCompleted {
		return nil, fmt.Errorf("challenge %s not completed yet", challengeID)
	}

	// Resolve the instance before the flip; an unresolvable challenge must
	// not consume the claim.
	ch, err := s.challengeByID(ctx, challengeID, now)
	if err != nil {
		return nil, err
	}

	won, err := s.store.ClaimChallengeRewards(ctx, playerID, challengeID)
	if err != nil {
		return nil, fmt.Errorf("claim challenge rewards: %w", err)
	}
	if !won {
		return nil, fmt.Errorf("challenge %s rewards already claimed", challengeID)
	}

	wallet, err := s.payClaim(ctx, playerID, ch)
	if err != nil {
		if revertErr := s.store.RevertChallengeClaim(ctx, playerID, challengeID); revertErr != nil {
			s.log.Error().Err(revertErr).
				Str("player_id", playerID).
				Str("challenge_id", challengeID).
				Msg("failed to revert claim after payout failure")
		}
		return nil, err
	}

	s.log.Info().
		Str("player_id", playerID).
		Str("challenge_id", challengeID).
		Int64("points", ch.RewardPoints).
		Int64("xp", ch.RewardXP).
		Msg("challenge rewards claimed")
	return wallet, nil
}

func (s *ChallengeService) payClaim(ctx context.Context, playerID string, ch *models.DailyChallenge) (*models.Wallet, error) {
	if _, err := s.wallets.EnsureWallet(ctx, playerID); err != nil {
		return nil, err
	}
	wallet, err := s.wallets.CreditWallet(ctx, playerID, ch.RewardPoints)
	if err != nil {
		return nil, fmt.Errorf("credit challenge reward: %w", err)
	}
	if ch.RewardXP > 0 {
		if _, err := s.progress.EnsureProgress(ctx, playerID); err != nil {
			return nil, err
		}
		prog, err := s.progress.AddXP(ctx, playerID, ch.RewardXP)
		if err != nil {
			return nil, fmt.Errorf("add challenge xp: %w", err)
		}
		if lvl := LevelForXP(prog.TotalXP); lvl > prog.Level {
			if _, err := s.progress.SetLevelIfHigher(ctx, playerID, lvl, RankForLevel(lvl)); err != nil {
				return nil, err
			}
		}
	}
	return wallet, nil
}

func (s *ChallengeService) challengeByID(ctx context.Context, challengeID string, now time.Time) (*models.DailyChallenge, error) {
	// Claims are only valid for the current day's instances, so the day
	// listing doubles as the lookup.
	challenges, err := s.store.ListChallengesForDay(ctx, DayKey(now))
	if err != nil {
		return nil, err
	}
	for i := range challenges {
		if challenges[i].ID == challengeID {
			return &challenges[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

// SeedDay installs the stock challenge set for a day (idempotent upsert by
// day+kind). Run by the scheduler just before midnight UTC for the next day.
func (s *ChallengeService) SeedDay(ctx context.Context, day string) error {
	stock := []models.DailyChallenge{
		{Day: day, Kind: models.ChallengePlayCount, Name: "Daily Grind", Description: "Finish 3 games today", Target: 3, RewardPoints: 30, RewardXP: 50},
		{Day: day, Kind: models.ChallengeWinCount, Name: "On a Roll", Description: "Win 2 games today", Target: 2, RewardPoints: 50, RewardXP: 80},
		{Day: day, Kind: models.ChallengeTotalScore, Name: "High Roller", Description: "Score 2000 points total today", Target: 2000, RewardPoints: 60, RewardXP: 100},
		{Day: day, Kind: models.ChallengePerfectCount, Name: "Flawless", Description: "Get a perfect score today", Target: 1, RewardPoints: 100, RewardXP: 150},
	}
	for i := range stock {
		if err := s.store.UpsertChallenge(ctx, &stock[i]); err != nil {
			return fmt.Errorf("seed challenge %s/%s: %w", day, stock[i].Kind, err)
		}
	}
	s.log.Info().Str("day", day).Int("count", len(stock)).Msg("daily challenges seeded")
	return nil
}
