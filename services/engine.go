package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"game-reward-system/models"
	"game-reward-system/storage"

	"github.com/rs/zerolog"
)

// ErrValidation marks malformed completion input, rejected before any
// storage mutation.
var ErrValidation = errors.New("invalid completion input")

// Engine drives the session completion pipeline: finalize → compute rewards →
// apply wallet/XP → statistics & streak → achievements → leaderboards →
// daily challenges → feature gates. All coordination happens through the
// stores' atomic primitives; the engine itself holds no shared state and may
// be called from any number of goroutines.
type Engine struct {
	sessions     storage.SessionStore
	games        storage.GameStore
	wallets      storage.WalletStore
	progress     storage.ProgressionStore
	achievements *AchievementService
	leaderboards *LeaderboardService
	challenges   *ChallengeService
	log          zerolog.Logger
	now          func() time.Time
}

func NewEngine(
	sessions storage.SessionStore,
	games storage.GameStore,
	wallets storage.WalletStore,
	progress storage.ProgressionStore,
	achievements *AchievementService,
	leaderboards *LeaderboardService,
	challenges *ChallengeService,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		sessions:     sessions,
		games:        games,
		wallets:      wallets,
		progress:     progress,
		achievements: achievements,
		leaderboards: leaderboards,
		challenges:   challenges,
		log:          log.With().Str("service", "engine").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine's clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CompleteSessionInput is the contract consumed from the HTTP layer after
// request parsing.
type CompleteSessionInput struct {
	SessionID  string                 `json:"session_id"`
	Score      int64                  `json:"score"`
	MaxScore   int64                  `json:"max_score"`
	Outcome    models.SessionOutcome  `json:"outcome"`
	Accuracy   *int                   `json:"accuracy,omitempty"`
	Moves      *int                   `json:"moves,omitempty"`
	Hints      *int                   `json:"hints,omitempty"`
	Difficulty string                 `json:"difficulty,omitempty"`
	RawData    map[string]interface{} `json:"raw_data,omitempty"`
}

// CompletionResult aggregates everything one completion produced.
type CompletionResult struct {
	SessionID string        `json:"session_id"`
	Rewards   RewardAmounts `json:"rewards"`

	Progression struct {
		TotalXP      int64 `json:"total_xp"`
		NewLevel     int   `json:"new_level"`
		LeveledUp    bool  `json:"leveled_up"`
		LevelsGained int   `json:"levels_gained"`
	} `json:"progression"`

	Achievements struct {
		NewUnlocks int                            `json:"new_unlocks"`
		List       []models.AchievementDefinition `json:"list"`
	} `json:"achievements"`

	Streak struct {
		Current int64 `json:"current"`
		Longest int64 `json:"longest"`
	} `json:"streak"`

	Wallet      *models.Wallet `json:"wallet"`
	NewFeatures []string       `json:"new_features"`
}

func validateInput(in CompleteSessionInput) error {
	if in.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrValidation)
	}
	switch in.Outcome {
	case models.OutcomeWin, models.OutcomeLoss, models.OutcomeDraw:
	default:
		return fmt.Errorf("%w: outcome must be win, loss or draw", ErrValidation)
	}
	if in.Score < 0 || in.MaxScore < 0 {
		return fmt.Errorf("%w: scores must be non-negative", ErrValidation)
	}
	if in.MaxScore > 0 && in.Score > in.MaxScore {
		return fmt.Errorf("%w: score exceeds max_score", ErrValidation)
	}
	if in.Accuracy != nil && (*in.Accuracy < 0 || *in.Accuracy > 100) {
		return fmt.Errorf("%w: accuracy must be within 0..100", ErrValidation)
	}
	return nil
}

// StartSession opens a new in_progress session for the player.
func (e *Engine) StartSession(ctx context.Context, playerID, gameID string) (*models.GameSession, error) {
	if playerID == "" || gameID == "" {
		return nil, fmt.Errorf("%w: player_id and game_id are required", ErrValidation)
	}
	if _, err := e.games.GetGame(ctx, gameID); err != nil {
		return nil, fmt.Errorf("game %s: %w", gameID, err)
	}
	sess := &models.GameSession{
		PlayerID:  playerID,
		GameID:    gameID,
		Status:    models.SessionInProgress,
		StartedAt: e.now(),
	}
	if err := e.sessions.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Session fetches a session by id (read-only; used by the HTTP layer when a
// retrying caller wants the prior result after AlreadyFinalized).
func (e *Engine) Session(ctx context.Context, id string) (*models.GameSession, error) {
	return e.sessions.GetSession(ctx, id)
}

// CompleteSession runs the whole reward pipeline for one finished session.
//
// The conditional status transition in FinalizeSession is the only gate:
// exactly one caller per session gets past it, so every later step may assume
// it runs at most once per session. Each later step is individually
// idempotent besides, so a retried pipeline cannot double-grant.
func (e *Engine) CompleteSession(ctx context.Context, in CompleteSessionInput) (*CompletionResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	now := e.now()

	var rawData string
	if len(in.RawData) > 0 {
		b, err := json.Marshal(in.RawData)
		if err != nil {
			return nil, fmt.Errorf("%w: raw_data not serializable", ErrValidation)
		}
		rawData = string(b)
	}

	// 1. Finalize: the at-most-once gate.
	sess, err := e.sessions.FinalizeSession(ctx, in.SessionID, storage.FinalizeParams{
		Score:      in.Score,
		MaxScore:   in.MaxScore,
		Outcome:    in.Outcome,
		Accuracy:   in.Accuracy,
		Moves:      in.Moves,
		Hints:      in.Hints,
		Difficulty: in.Difficulty,
		RawData:    rawData,
		EndedAt:    now,
	})
	if err != nil {
		return nil, err
	}

	// 2. Reward computation. A missing game config means the session cannot
	// be rewarded at all, so reopen it and let a retry (after the config is
	// fixed) run the full pipeline again. Nothing has been granted yet.
	game, err := e.games.GetGame(ctx, sess.GameID)
	if err != nil {
		if reopenErr := e.sessions.ReopenSession(ctx, sess.ID); reopenErr != nil {
			e.log.Error().Err(reopenErr).Str("session_id", sess.ID).Msg("failed to reopen session after config miss")
		}
		return nil, fmt.Errorf("game config %s: %w", sess.GameID, err)
	}
	rewards := ComputeRewards(game, sess.Outcome, sess.Score, sess.MaxScore, sess.Difficulty)

	// 3. Wallet and XP.
	wallet, oldLevel, levelAfter, err := e.applyRewards(ctx, sess.PlayerID, rewards.Points, rewards.XP)
	if err != nil {
		return nil, fmt.Errorf("apply session rewards: %w", err)
	}

	// 4. Statistics and streak.
	stats, err := e.progress.ApplyOutcome(ctx, sess.PlayerID, sess.Outcome, sess.IsPerfect())
	if err != nil {
		return nil, fmt.Errorf("apply outcome statistics: %w", err)
	}
	stats.Level = levelAfter // ApplyOutcome does not touch the level; carry the recomputed one

	// 5. Achievements, with their rewards folded back in exactly one extra
	// pass. Achievement payouts never trigger re-evaluation.
	unlocked, err := e.achievements.Evaluate(ctx, sess.PlayerID, sess.GameID, stats, sess)
	if err != nil {
		return nil, fmt.Errorf("evaluate achievements: %w", err)
	}
	var achPoints, achXP int64
	for _, def := range unlocked {
		achPoints += def.RewardPoints
		achXP += def.RewardXP
	}
	if achPoints > 0 || achXP > 0 {
		wallet, _, levelAfter, err = e.applyRewards(ctx, sess.PlayerID, achPoints, achXP)
		if err != nil {
			return nil, fmt.Errorf("apply achievement rewards: %w", err)
		}
	}

	// 6. Leaderboards.
	err = e.leaderboards.RecordCompletion(ctx, sess.GameID, sess.PlayerID, CompletionValues{
		Score:  sess.Score,
		Points: rewards.Points + achPoints,
		XP:     rewards.XP + achXP,
		Won:    sess.Outcome == models.OutcomeWin,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("update leaderboards: %w", err)
	}

	// 7. Daily challenges.
	if _, err := e.challenges.Advance(ctx, sess.PlayerID, now); err != nil {
		return nil, fmt.Errorf("advance challenges: %w", err)
	}

	// 8. Assemble. newFeatures is pure: updated stats against the threshold
	// table, diffed with the pre-completion snapshot.
	result := &CompletionResult{SessionID: sess.ID, Rewards: rewards, Wallet: wallet}
	result.Progression.TotalXP = stats.TotalXP + achXP
	result.Progression.NewLevel = levelAfter
	result.Progression.LeveledUp = levelAfter > oldLevel
	result.Progression.LevelsGained = levelAfter - oldLevel
	result.Achievements.NewUnlocks = len(unlocked)
	result.Achievements.List = unlocked
	result.Streak.Current = stats.CurrentStreak
	result.Streak.Longest = stats.LongestStreak
	result.NewFeatures = NewFeatures(stats.GamesPlayed-1, oldLevel, stats.GamesPlayed, levelAfter)

	e.log.Info().
		Str("session_id", sess.ID).
		Str("player_id", sess.PlayerID).
		Str("game_id", sess.GameID).
		Str("outcome", string(sess.Outcome)).
		Int64("points", rewards.Points).
		Int64("xp", rewards.XP).
		Int("new_level", levelAfter).
		Int("achievements", len(unlocked)).
		Msg("session completed")

	return result, nil
}

// applyRewards credits points and XP through the atomic increment primitives,
// then advances the persisted level if the new XP total crossed thresholds.
// Returns the wallet post-image plus the level before and after.
func (e *Engine) applyRewards(ctx context.Context, playerID string, points, xp int64) (*models.Wallet, int, int, error) {
	if _, err := e.wallets.EnsureWallet(ctx, playerID); err != nil {
		return nil, 0, 0, fmt.Errorf("ensure wallet: %w", err)
	}
	if _, err := e.progress.EnsureProgress(ctx, playerID); err != nil {
		return nil, 0, 0, fmt.Errorf("ensure progress: %w", err)
	}

	wallet, err := e.wallets.CreditWallet(ctx, playerID, points)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("credit wallet: %w", err)
	}

	prog, err := e.progress.AddXP(ctx, playerID, xp)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("add xp: %w", err)
	}

	// AddXP leaves the stored level untouched, so the post-image level is the
	// pre-grant level. A single large grant may cross several thresholds.
	oldLevel := prog.Level
	newLevel := LevelForXP(prog.TotalXP)
	if newLevel > oldLevel {
		if _, err := e.progress.SetLevelIfHigher(ctx, playerID, newLevel, RankForLevel(newLevel)); err != nil {
			return nil, 0, 0, fmt.Errorf("persist level: %w", err)
		}
	} else {
		newLevel = oldLevel
	}
	return wallet, oldLevel, newLevel, nil
}
