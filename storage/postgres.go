package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"game-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres implements every store interface on top of a shared *gorm.DB.
// The hot paths (finalize, credit, unlock, merge) compile down to single
// statements so Postgres itself is the coordination point.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

// AutoMigrate creates/updates the schema for every entity this service owns.
func (s *Postgres) AutoMigrate() error {
	return s.db.AutoMigrate(
		&models.Game{},
		&models.GameSession{},
		&models.Wallet{},
		&models.PlayerProgress{},
		&models.AchievementDefinition{},
		&models.AchievementUnlock{},
		&models.LeaderboardEntry{},
		&models.DailyChallenge{},
		&models.ChallengeProgress{},
	)
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- Sessions ---

func (s *Postgres) CreateSession(ctx context.Context, sess *models.GameSession) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = models.SessionInProgress
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(sess).Error
}

func (s *Postgres) GetSession(ctx context.Context, id string) (*models.GameSession, error) {
	var sess models.GameSession
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&sess).Error; err != nil {
		return nil, translate(err)
	}
	return &sess, nil
}

func (s *Postgres) FinalizeSession(ctx context.Context, id string, fin FinalizeParams) (*models.GameSession, error) {
	updates := map[string]interface{}{
		"status":     models.SessionCompleted,
		"score":      fin.Score,
		"max_score":  fin.MaxScore,
		"outcome":    fin.Outcome,
		"accuracy":   fin.Accuracy,
		"moves":      fin.Moves,
		"hints":      fin.Hints,
		"difficulty": fin.Difficulty,
		"ended_at":   fin.EndedAt,
	}
	if fin.RawData != "" {
		updates["raw_data"] = fin.RawData
	}

	res := s.db.WithContext(ctx).Model(&models.GameSession{}).
		Where("id = ? AND status = ?", id, models.SessionInProgress).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish "no such session" from "lost the race".
		if _, err := s.GetSession(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadyFinalized
	}
	return s.GetSession(ctx, id)
}

func (s *Postgres) ReopenSession(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.GameSession{}).
		Where("id = ? AND status = ?", id, models.SessionCompleted).
		Updates(map[string]interface{}{"status": models.SessionInProgress, "ended_at": nil})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) AbandonSession(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.GameSession{}).
		Where("id = ? AND status = ?", id, models.SessionInProgress).
		Updates(map[string]interface{}{"status": models.SessionAbandoned, "ended_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyFinalized
	}
	return nil
}

func (s *Postgres) ListStaleSessions(ctx context.Context, olderThan time.Time, limit int) ([]models.GameSession, error) {
	var sessions []models.GameSession
	err := s.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", models.SessionInProgress, olderThan).
		Order("started_at ASC").
		Limit(limit).
		Find(&sessions).Error
	return sessions, err
}

func (s *Postgres) ListCompletedSessions(ctx context.Context, playerID string, since time.Time) ([]models.GameSession, error) {
	var sessions []models.GameSession
	err := s.db.WithContext(ctx).
		Where("player_id = ? AND status = ? AND ended_at >= ?", playerID, models.SessionCompleted, since).
		Order("ended_at ASC").
		Find(&sessions).Error
	return sessions, err
}

// --- Wallets ---

func (s *Postgres) EnsureWallet(ctx context.Context, playerID string) (*models.Wallet, error) {
	wallet := models.Wallet{ID: uuid.NewString(), PlayerID: playerID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}},
		DoNothing: true,
	}).Create(&wallet).Error
	if err != nil {
		return nil, err
	}
	return s.GetWallet(ctx, playerID)
}

func (s *Postgres) GetWallet(ctx context.Context, playerID string) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := s.db.WithContext(ctx).Where("player_id = ?", playerID).First(&wallet).Error; err != nil {
		return nil, translate(err)
	}
	return &wallet, nil
}

func (s *Postgres) CreditWallet(ctx context.Context, playerID string, points int64) (*models.Wallet, error) {
	if points < 0 {
		return nil, fmt.Errorf("credit amount must be non-negative, got %d", points)
	}
	var wallet models.Wallet
	res := s.db.WithContext(ctx).Model(&wallet).Clauses(clause.Returning{}).
		Where("player_id = ?", playerID).
		Updates(map[string]interface{}{
			"current_balance": gorm.Expr("current_balance + ?", points),
			"lifetime_earned": gorm.Expr("lifetime_earned + ?", points),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &wallet, nil
}

func (s *Postgres) DebitWallet(ctx context.Context, playerID string, points int64) (*models.Wallet, error) {
	if points < 0 {
		return nil, fmt.Errorf("debit amount must be non-negative, got %d", points)
	}
	var wallet models.Wallet
	res := s.db.WithContext(ctx).Model(&wallet).Clauses(clause.Returning{}).
		Where("player_id = ? AND current_balance >= ?", playerID, points).
		Updates(map[string]interface{}{
			"current_balance": gorm.Expr("current_balance - ?", points),
			"lifetime_spent":  gorm.Expr("lifetime_spent + ?", points),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetWallet(ctx, playerID); err != nil {
			return nil, err
		}
		return nil, ErrInsufficientFunds
	}
	return &wallet, nil
}

// --- Progression ---

func (s *Postgres) EnsureProgress(ctx context.Context, playerID string) (*models.PlayerProgress, error) {
	prog := models.PlayerProgress{ID: uuid.NewString(), PlayerID: playerID, Level: 1, Rank: 1}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}},
		DoNothing: true,
	}).Create(&prog).Error
	if err != nil {
		return nil, err
	}
	return s.GetProgress(ctx, playerID)
}

func (s *Postgres) GetProgress(ctx context.Context, playerID string) (*models.PlayerProgress, error) {
	var prog models.PlayerProgress
	if err := s.db.WithContext(ctx).Where("player_id = ?", playerID).First(&prog).Error; err != nil {
		return nil, translate(err)
	}
	return &prog, nil
}

func (s *Postgres) AddXP(ctx context.Context, playerID string, xp int64) (*models.PlayerProgress, error) {
	if xp < 0 {
		return nil, fmt.Errorf("xp amount must be non-negative, got %d", xp)
	}
	var prog models.PlayerProgress
	res := s.db.WithContext(ctx).Model(&prog).Clauses(clause.Returning{}).
		Where("player_id = ?", playerID).
		Updates(map[string]interface{}{"total_xp": gorm.Expr("total_xp + ?", xp)})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &prog, nil
}

func (s *Postgres) SetLevelIfHigher(ctx context.Context, playerID string, level, rank int) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.PlayerProgress{}).
		Where("player_id = ? AND level < ?", playerID, level).
		Updates(map[string]interface{}{
			"level":            level,
			"rank":             rank,
			"last_level_up_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Postgres) ApplyOutcome(ctx context.Context, playerID string, outcome models.SessionOutcome, perfect bool) (*models.PlayerProgress, error) {
	win := outcome == models.OutcomeWin
	loss := outcome == models.OutcomeLoss
	draw := outcome == models.OutcomeDraw

	var prog models.PlayerProgress
	res := s.db.WithContext(ctx).Raw(`
		UPDATE player_progress SET
			games_played   = games_played + 1,
			wins           = wins + CASE WHEN ?::boolean THEN 1 ELSE 0 END,
			losses         = losses + CASE WHEN ?::boolean THEN 1 ELSE 0 END,
			draws          = draws + CASE WHEN ?::boolean THEN 1 ELSE 0 END,
			perfect_scores = perfect_scores + CASE WHEN ?::boolean THEN 1 ELSE 0 END,
			current_streak = CASE WHEN ?::boolean THEN current_streak + 1 ELSE 0 END,
			longest_streak = GREATEST(longest_streak, CASE WHEN ?::boolean THEN current_streak + 1 ELSE 0 END),
			updated_at     = NOW()
		WHERE player_id = ?
		RETURNING *`,
		win, loss, draw, perfect, win, win, playerID,
	).Scan(&prog)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &prog, nil
}

// --- Achievements ---

func (s *Postgres) UpsertDefinition(ctx context.Context, def *models.AchievementDefinition) error {
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "category", "tier",
			"criteria_type", "criteria_target", "criteria_game_id",
			"reward_points", "reward_xp", "reward_title", "hidden", "active",
		}),
	}).Create(def).Error
}

func (s *Postgres) ListActiveDefinitions(ctx context.Context, gameID string) ([]models.AchievementDefinition, error) {
	var defs []models.AchievementDefinition
	err := s.db.WithContext(ctx).
		Where("active = ? AND (criteria_game_id IS NULL OR criteria_game_id = ?)", true, gameID).
		Order("code ASC").
		Find(&defs).Error
	return defs, err
}

func (s *Postgres) ListUnlocked(ctx context.Context, playerID string) (map[string]time.Time, error) {
	var unlocks []models.AchievementUnlock
	if err := s.db.WithContext(ctx).Where("player_id = ?", playerID).Find(&unlocks).Error; err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(unlocks))
	for _, u := range unlocks {
		out[u.AchievementID] = u.UnlockedAt
	}
	return out, nil
}

func (s *Postgres) InsertUnlock(ctx context.Context, playerID, achievementID string) (bool, error) {
	unlock := models.AchievementUnlock{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		AchievementID: achievementID,
		UnlockedAt:    time.Now().UTC(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}, {Name: "achievement_id"}},
		DoNothing: true,
	}).Create(&unlock)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// --- Leaderboards ---

func (s *Postgres) ApplyValue(ctx context.Context, p Partition, playerID string, value int64, mode AggregateMode) error {
	now := time.Now().UTC()
	entry := models.LeaderboardEntry{
		ID:        uuid.NewString(),
		GameID:    p.GameID,
		Period:    p.Period,
		PeriodKey: p.PeriodKey,
		Metric:    p.Metric,
		PlayerID:  playerID,
		Value:     value,
		UpdatedAt: now,
	}

	var assignments map[string]interface{}
	switch mode {
	case AggregateMax:
		// No-op merges (value not higher) keep UpdatedAt and rank untouched
		// so the first-to-reach tie-break and clean ranks survive replays.
		// A real change stashes the held rank in previous_rank before the
		// dirty-marker clears it.
		assignments = map[string]interface{}{
			"value":         gorm.Expr("GREATEST(leaderboard_entries.value, ?)", value),
			"updated_at":    gorm.Expr("CASE WHEN ? > leaderboard_entries.value THEN ? ELSE leaderboard_entries.updated_at END", value, now),
			"previous_rank": gorm.Expr(`CASE WHEN ? > leaderboard_entries.value AND leaderboard_entries."rank" > 0 THEN leaderboard_entries."rank" ELSE leaderboard_entries.previous_rank END`, value),
			"rank":          gorm.Expr(`CASE WHEN ? > leaderboard_entries.value THEN 0 ELSE leaderboard_entries."rank" END`, value),
		}
	default:
		assignments = map[string]interface{}{
			"value":         gorm.Expr("leaderboard_entries.value + ?", value),
			"updated_at":    now,
			"previous_rank": gorm.Expr(`CASE WHEN leaderboard_entries."rank" > 0 THEN leaderboard_entries."rank" ELSE leaderboard_entries.previous_rank END`),
			"rank":          0,
		}
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "game_id"}, {Name: "period"}, {Name: "period_key"},
			{Name: "metric"}, {Name: "player_id"},
		},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&entry).Error
}

func (s *Postgres) RecomputeRanks(ctx context.Context, p Partition) (int, error) {
	res := s.db.WithContext(ctx).Exec(`
		WITH ranked AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY value DESC, updated_at ASC, player_id ASC) AS new_rank
			FROM leaderboard_entries
			WHERE game_id = ? AND period = ? AND period_key = ? AND metric = ?
		)
		UPDATE leaderboard_entries e
		SET previous_rank = CASE WHEN e."rank" > 0 AND e."rank" <> ranked.new_rank THEN e."rank" ELSE e.previous_rank END,
		    "rank" = ranked.new_rank
		FROM ranked
		WHERE e.id = ranked.id`,
		p.GameID, p.Period, p.PeriodKey, p.Metric,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (s *Postgres) TopEntries(ctx context.Context, p Partition, limit int) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND period = ? AND period_key = ? AND metric = ?",
			p.GameID, p.Period, p.PeriodKey, p.Metric).
		Order("value DESC, updated_at ASC, player_id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (s *Postgres) EntriesAround(ctx context.Context, p Partition, playerID string, radius int) ([]models.LeaderboardEntry, error) {
	var own models.LeaderboardEntry
	err := s.db.WithContext(ctx).
		Where("game_id = ? AND period = ? AND period_key = ? AND metric = ? AND player_id = ?",
			p.GameID, p.Period, p.PeriodKey, p.Metric, playerID).
		First(&own).Error
	if err != nil {
		return nil, translate(err)
	}

	// The player's row may still carry the dirty marker (batch partitions
	// between sweeps). Rank the partition now so the window is anchored.
	if own.Rank == 0 {
		if _, err := s.RecomputeRanks(ctx, p); err != nil {
			return nil, err
		}
		err = s.db.WithContext(ctx).
			Where("game_id = ? AND period = ? AND period_key = ? AND metric = ? AND player_id = ?",
				p.GameID, p.Period, p.PeriodKey, p.Metric, playerID).
			First(&own).Error
		if err != nil {
			return nil, translate(err)
		}
	}

	lower := own.Rank - radius
	if lower < 1 {
		lower = 1
	}
	upper := own.Rank + radius

	var entries []models.LeaderboardEntry
	err = s.db.WithContext(ctx).
		Where(`game_id = ? AND period = ? AND period_key = ? AND metric = ? AND "rank" BETWEEN ? AND ?`,
			p.GameID, p.Period, p.PeriodKey, p.Metric, lower, upper).
		Order(`"rank" ASC`).
		Find(&entries).Error
	return entries, err
}

func (s *Postgres) ListDirtyPartitions(ctx context.Context, limit int) ([]Partition, error) {
	var parts []Partition
	err := s.db.WithContext(ctx).Raw(`
		SELECT DISTINCT game_id, period, period_key, metric
		FROM leaderboard_entries
		WHERE "rank" = 0
		LIMIT ?`, limit,
	).Scan(&parts).Error
	return parts, err
}

// --- Challenges ---

func (s *Postgres) UpsertChallenge(ctx context.Context, ch *models.DailyChallenge) error {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "game_id", "target", "reward_points", "reward_xp",
		}),
	}).Create(ch).Error
}

func (s *Postgres) ListChallengesForDay(ctx context.Context, day string) ([]models.DailyChallenge, error) {
	var challenges []models.DailyChallenge
	err := s.db.WithContext(ctx).Where("day = ?", day).Order("kind ASC").Find(&challenges).Error
	return challenges, err
}

func (s *Postgres) GetChallengeProgress(ctx context.Context, playerID, challengeID string) (*models.ChallengeProgress, error) {
	var cp models.ChallengeProgress
	err := s.db.WithContext(ctx).
		Where("player_id = ? AND challenge_id = ?", playerID, challengeID).
		First(&cp).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cp, nil
}

func (s *Postgres) ListChallengeProgress(ctx context.Context, playerID string, challengeIDs []string) ([]models.ChallengeProgress, error) {
	if len(challengeIDs) == 0 {
		return nil, nil
	}
	var list []models.ChallengeProgress
	err := s.db.WithContext(ctx).
		Where("player_id = ? AND challenge_id IN ?", playerID, challengeIDs).
		Find(&list).Error
	return list, err
}

func (s *Postgres) MergeChallengeProgress(ctx context.Context, playerID string, ch models.DailyChallenge, candidate int64, now time.Time) (*models.ChallengeProgress, bool, error) {
	if candidate < 0 {
		candidate = 0
	}
	now = now.UTC().Truncate(time.Microsecond) // survives the timestamp round-trip
	completed := candidate >= ch.Target
	var completedAt *time.Time
	if completed {
		completedAt = &now
	}

	var cp models.ChallengeProgress
	res := s.db.WithContext(ctx).Raw(`
		INSERT INTO challenge_progresses
			(id, player_id, challenge_id, progress, is_completed, completed_at, rewards_claimed, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, false, ?)
		ON CONFLICT (player_id, challenge_id) DO UPDATE SET
			progress     = GREATEST(challenge_progresses.progress, EXCLUDED.progress),
			is_completed = challenge_progresses.is_completed OR EXCLUDED.is_completed,
			completed_at = COALESCE(challenge_progresses.completed_at, EXCLUDED.completed_at),
			updated_at   = EXCLUDED.updated_at
		RETURNING *`,
		uuid.NewString(), playerID, ch.ID, candidate, completed, completedAt, now,
	).Scan(&cp)
	if res.Error != nil {
		return nil, false, res.Error
	}

	// This call won the completion transition iff the stored completion
	// timestamp is the one we just proposed.
	completedNow := completed && cp.CompletedAt != nil && cp.CompletedAt.Equal(now)
	return &cp, completedNow, nil
}

func (s *Postgres) ClaimChallengeRewards(ctx context.Context, playerID, challengeID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.ChallengeProgress{}).
		Where("player_id = ? AND challenge_id = ? AND is_completed = ? AND rewards_claimed = ?",
			playerID, challengeID, true, false).
		Update("rewards_claimed", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Postgres) RevertChallengeClaim(ctx context.Context, playerID, challengeID string) error {
	return s.db.WithContext(ctx).Model(&models.ChallengeProgress{}).
		Where("player_id = ? AND challenge_id = ? AND rewards_claimed = ?", playerID, challengeID, true).
		Update("rewards_claimed", false).Error
}

// --- Games ---

func (s *Postgres) GetGame(ctx context.Context, id string) (*models.Game, error) {
	var game models.Game
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&game).Error; err != nil {
		return nil, translate(err)
	}
	return &game, nil
}

func (s *Postgres) UpsertGame(ctx context.Context, game *models.Game) error {
	if game.ID == "" {
		game.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(game).Error
}

func (s *Postgres) ListGames(ctx context.Context) ([]models.Game, error) {
	var games []models.Game
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("name ASC").Find(&games).Error
	return games, err
}
