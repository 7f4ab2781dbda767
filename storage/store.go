// Package storage defines the persistence interfaces the reward engine is
// wired against, plus a gorm/Postgres and an in-memory implementation.
//
// Concurrency correctness lives here: every cross-request coordination point
// is a single-statement primitive (conditional update, unique insert with
// conflict-ignore, atomic increment, max-merge upsert). The engine never does
// read-then-write on shared rows.
package storage

import (
	"context"
	"errors"
	"time"

	"game-reward-system/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrAlreadyFinalized  = errors.New("session already finalized")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
)

// FinalizeParams carries the client-reported result applied when a session
// transitions in_progress → completed.
type FinalizeParams struct {
	Score      int64
	MaxScore   int64
	Outcome    models.SessionOutcome
	Accuracy   *int
	Moves      *int
	Hints      *int
	Difficulty string
	RawData    string
	EndedAt    time.Time
}

// SessionStore manages play-session lifecycle. Finalize and Abandon are the
// conditional-update gates: they succeed for at most one caller per session.
type SessionStore interface {
	CreateSession(ctx context.Context, sess *models.GameSession) error
	GetSession(ctx context.Context, id string) (*models.GameSession, error)

	// FinalizeSession performs the single atomic in_progress → completed
	// transition and returns the completed session. Returns ErrNotFound if no
	// such session exists and ErrAlreadyFinalized if it exists but is no
	// longer in_progress.
	FinalizeSession(ctx context.Context, id string, fin FinalizeParams) (*models.GameSession, error)

	// ReopenSession rolls completed → in_progress. Only used when a pipeline
	// fails before any reward has been granted, so a retry can finalize again.
	ReopenSession(ctx context.Context, id string) error

	// AbandonSession moves in_progress → abandoned (inactivity reaper path).
	// Same conditional-update pattern; a completed session stays completed.
	AbandonSession(ctx context.Context, id string) error

	ListStaleSessions(ctx context.Context, olderThan time.Time, limit int) ([]models.GameSession, error)
	ListCompletedSessions(ctx context.Context, playerID string, since time.Time) ([]models.GameSession, error)
}

// WalletStore mutates balances only through atomic increments.
type WalletStore interface {
	EnsureWallet(ctx context.Context, playerID string) (*models.Wallet, error)
	GetWallet(ctx context.Context, playerID string) (*models.Wallet, error)

	// CreditWallet adds points to balance and lifetime earned in one
	// statement and returns the post-image.
	CreditWallet(ctx context.Context, playerID string, points int64) (*models.Wallet, error)

	// DebitWallet spends points; fails with ErrInsufficientFunds rather than
	// letting the balance go negative.
	DebitWallet(ctx context.Context, playerID string, points int64) (*models.Wallet, error)
}

// ProgressionStore mutates XP, level and statistics.
type ProgressionStore interface {
	EnsureProgress(ctx context.Context, playerID string) (*models.PlayerProgress, error)
	GetProgress(ctx context.Context, playerID string) (*models.PlayerProgress, error)

	// AddXP atomically increments TotalXP and returns the post-image. The
	// persisted level is untouched; callers recompute it and call
	// SetLevelIfHigher.
	AddXP(ctx context.Context, playerID string, xp int64) (*models.PlayerProgress, error)

	// SetLevelIfHigher persists a new level/rank only when it exceeds the
	// stored one, so levels never decrease under any interleaving.
	SetLevelIfHigher(ctx context.Context, playerID string, level, rank int) (bool, error)

	// ApplyOutcome folds one finished session into the play statistics in a
	// single statement: games played, win/loss/draw counters, perfect-score
	// counter, and the streak pair (reset on non-win, longest kept with
	// GREATEST). Returns the post-image.
	ApplyOutcome(ctx context.Context, playerID string, outcome models.SessionOutcome, perfect bool) (*models.PlayerProgress, error)
}

// AchievementStore reads the catalog and appends unlocks.
type AchievementStore interface {
	UpsertDefinition(ctx context.Context, def *models.AchievementDefinition) error
	ListActiveDefinitions(ctx context.Context, gameID string) ([]models.AchievementDefinition, error)
	ListUnlocked(ctx context.Context, playerID string) (map[string]time.Time, error)

	// InsertUnlock appends the (player, achievement) row. The unique pair
	// index makes concurrent inserts race-free: exactly one caller observes
	// inserted=true, the rest observe false with no error.
	InsertUnlock(ctx context.Context, playerID, achievementID string) (bool, error)
}

// Partition identifies one leaderboard bucket.
type Partition struct {
	GameID    string
	Period    models.LeaderboardPeriod
	PeriodKey string
	Metric    models.LeaderboardMetric
}

// AggregateMode selects how a new observation folds into an entry's value.
type AggregateMode int

const (
	AggregateAdd AggregateMode = iota // points, xp, wins
	AggregateMax                      // best score
)

// LeaderboardStore maintains per-partition entries and ranks.
type LeaderboardStore interface {
	// ApplyValue upserts the player's aggregate in the partition. Whenever the
	// value changes, the rank held until now is stashed in PreviousRank and
	// the rank is cleared to 0 (unranked), which marks the partition dirty for
	// the next rank pass. In max mode UpdatedAt only advances when the value
	// actually increases, preserving the first-to-reach tie-break.
	ApplyValue(ctx context.Context, p Partition, playerID string, value int64, mode AggregateMode) error

	// RecomputeRanks assigns dense ranks (value DESC, UpdatedAt ASC, PlayerID
	// ASC), records each entry's prior rank in PreviousRank, and returns the
	// number of entries ranked.
	RecomputeRanks(ctx context.Context, p Partition) (int, error)

	TopEntries(ctx context.Context, p Partition, limit int) ([]models.LeaderboardEntry, error)

	// EntriesAround returns the window of ranks around the player. If the
	// player's row is still unranked the partition is ranked first, so the
	// window is always anchored at the player's actual position.
	EntriesAround(ctx context.Context, p Partition, playerID string, radius int) ([]models.LeaderboardEntry, error)
	ListDirtyPartitions(ctx context.Context, limit int) ([]Partition, error)
}

// ChallengeStore manages daily challenge instances and per-player progress.
type ChallengeStore interface {
	UpsertChallenge(ctx context.Context, ch *models.DailyChallenge) error
	ListChallengesForDay(ctx context.Context, day string) ([]models.DailyChallenge, error)
	GetChallengeProgress(ctx context.Context, playerID, challengeID string) (*models.ChallengeProgress, error)
	ListChallengeProgress(ctx context.Context, playerID string, challengeIDs []string) ([]models.ChallengeProgress, error)

	// MergeChallengeProgress max-merges a candidate value recomputed from the
	// full day's sessions. Progress never decreases and IsCompleted never
	// reverts. Reports whether this call flipped the challenge to completed.
	MergeChallengeProgress(ctx context.Context, playerID string, ch models.DailyChallenge, candidate int64, now time.Time) (*models.ChallengeProgress, bool, error)

	// ClaimChallengeRewards flips rewards_claimed false → true for a
	// completed challenge; reports whether this call won the flip.
	ClaimChallengeRewards(ctx context.Context, playerID, challengeID string) (bool, error)

	// RevertChallengeClaim flips rewards_claimed back to false after a failed
	// payout, so the claim can be retried instead of being consumed unpaid.
	RevertChallengeClaim(ctx context.Context, playerID, challengeID string) error
}

// GameStore reads per-game reward configuration.
type GameStore interface {
	GetGame(ctx context.Context, id string) (*models.Game, error)
	UpsertGame(ctx context.Context, game *models.Game) error
	ListGames(ctx context.Context) ([]models.Game, error)
}
