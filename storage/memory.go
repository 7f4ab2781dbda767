package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"game-reward-system/models"

	"github.com/google/uuid"
)

// Memory is an in-memory implementation of every store interface, used by
// tests and local development. It reproduces the Postgres concurrency
// semantics exactly: each primitive is atomic under one mutex, so conditional
// updates, unique inserts and max-merges behave the same under contention.
type Memory struct {
	mu          sync.Mutex
	sessions    map[string]models.GameSession
	wallets     map[string]models.Wallet            // by playerID
	progress    map[string]models.PlayerProgress    // by playerID
	definitions map[string]models.AchievementDefinition
	unlocks     map[string]models.AchievementUnlock // by playerID|achievementID
	entries     map[string]models.LeaderboardEntry  // by partition|playerID
	challenges  map[string]models.DailyChallenge
	chProgress  map[string]models.ChallengeProgress // by playerID|challengeID
	games       map[string]models.Game
}

func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]models.GameSession),
		wallets:     make(map[string]models.Wallet),
		progress:    make(map[string]models.PlayerProgress),
		definitions: make(map[string]models.AchievementDefinition),
		unlocks:     make(map[string]models.AchievementUnlock),
		entries:     make(map[string]models.LeaderboardEntry),
		challenges:  make(map[string]models.DailyChallenge),
		chProgress:  make(map[string]models.ChallengeProgress),
		games:       make(map[string]models.Game),
	}
}

func pairKey(a, b string) string { return a + "|" + b }

func partitionKey(p Partition, playerID string) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", p.GameID, p.Period, p.PeriodKey, p.Metric, playerID)
}

// --- Sessions ---

func (m *Memory) CreateSession(ctx context.Context, sess *models.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Status == "" {
		sess.Status = models.SessionInProgress
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	m.sessions[sess.ID] = *sess
	return nil
}

func (m *Memory) GetSession(ctx context.Context, id string) (*models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (m *Memory) FinalizeSession(ctx context.Context, id string, fin FinalizeParams) (*models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != models.SessionInProgress {
		return nil, ErrAlreadyFinalized
	}

	sess.Status = models.SessionCompleted
	sess.Score = fin.Score
	sess.MaxScore = fin.MaxScore
	sess.Outcome = fin.Outcome
	sess.Accuracy = fin.Accuracy
	sess.Moves = fin.Moves
	sess.Hints = fin.Hints
	sess.Difficulty = fin.Difficulty
	if fin.RawData != "" {
		sess.RawData = fin.RawData
	}
	ended := fin.EndedAt
	sess.EndedAt = &ended
	m.sessions[id] = sess
	return &sess, nil
}

func (m *Memory) ReopenSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok || sess.Status != models.SessionCompleted {
		return ErrNotFound
	}
	sess.Status = models.SessionInProgress
	sess.EndedAt = nil
	m.sessions[id] = sess
	return nil
}

func (m *Memory) AbandonSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if sess.Status != models.SessionInProgress {
		return ErrAlreadyFinalized
	}
	now := time.Now().UTC()
	sess.Status = models.SessionAbandoned
	sess.EndedAt = &now
	m.sessions[id] = sess
	return nil
}

func (m *Memory) ListStaleSessions(ctx context.Context, olderThan time.Time, limit int) ([]models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.GameSession
	for _, sess := range m.sessions {
		if sess.Status == models.SessionInProgress && sess.StartedAt.Before(olderThan) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListCompletedSessions(ctx context.Context, playerID string, since time.Time) ([]models.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.GameSession
	for _, sess := range m.sessions {
		if sess.PlayerID == playerID && sess.Status == models.SessionCompleted &&
			sess.EndedAt != nil && !sess.EndedAt.Before(since) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.Before(*out[j].EndedAt) })
	return out, nil
}

// --- Wallets ---

func (m *Memory) EnsureWallet(ctx context.Context, playerID string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.wallets[playerID]
	if !ok {
		wallet = models.Wallet{ID: uuid.NewString(), PlayerID: playerID}
		m.wallets[playerID] = wallet
	}
	return &wallet, nil
}

func (m *Memory) GetWallet(ctx context.Context, playerID string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.wallets[playerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &wallet, nil
}

func (m *Memory) CreditWallet(ctx context.Context, playerID string, points int64) (*models.Wallet, error) {
	if points < 0 {
		return nil, fmt.Errorf("credit amount must be non-negative, got %d", points)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.wallets[playerID]
	if !ok {
		return nil, ErrNotFound
	}
	wallet.CurrentBalance += points
	wallet.LifetimeEarned += points
	m.wallets[playerID] = wallet
	return &wallet, nil
}

func (m *Memory) DebitWallet(ctx context.Context, playerID string, points int64) (*models.Wallet, error) {
	if points < 0 {
		return nil, fmt.Errorf("debit amount must be non-negative, got %d", points)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	wallet, ok := m.wallets[playerID]
	if !ok {
		return nil, ErrNotFound
	}
	if wallet.CurrentBalance < points {
		return nil, ErrInsufficientFunds
	}
	wallet.CurrentBalance -= points
	wallet.LifetimeSpent += points
	m.wallets[playerID] = wallet
	return &wallet, nil
}

// --- Progression ---

func (m *Memory) EnsureProgress(ctx context.Context, playerID string) (*models.PlayerProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prog, ok := m.progress[playerID]
	if !ok {
		prog = models.PlayerProgress{ID: uuid.NewString(), PlayerID: playerID, Level: 1, Rank: 1}
		m.progress[playerID] = prog
	}
	return &prog, nil
}

func (m *Memory) GetProgress(ctx context.Context, playerID string) (*models.PlayerProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prog, ok := m.progress[playerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &prog, nil
}

func (m *Memory) AddXP(ctx context.Context, playerID string, xp int64) (*models.PlayerProgress, error) {
	if xp < 0 {
		return nil, fmt.Errorf("xp amount must be non-negative, got %d", xp)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	prog, ok := m.progress[playerID]
	if !ok {
		return nil, ErrNotFound
	}
	prog.TotalXP += xp
	m.progress[playerID] = prog
	return &prog, nil
}

func (m *Memory) SetLevelIfHigher(ctx context.Context, playerID string, level, rank int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prog, ok := m.progress[playerID]
	if !ok || prog.Level >= level {
		return false, nil
	}
	now := time.Now().UTC()
	prog.Level = level
	prog.Rank = rank
	prog.LastLevelUpAt = &now
	m.progress[playerID] = prog
	return true, nil
}

func (m *Memory) ApplyOutcome(ctx context.Context, playerID string, outcome models.SessionOutcome, perfect bool) (*models.PlayerProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prog, ok := m.progress[playerID]
	if !ok {
		return nil, ErrNotFound
	}

	prog.GamesPlayed++
	switch outcome {
	case models.OutcomeWin:
		prog.Wins++
		prog.CurrentStreak++
	case models.OutcomeLoss:
		prog.Losses++
		prog.CurrentStreak = 0
	case models.OutcomeDraw:
		prog.Draws++
		prog.CurrentStreak = 0
	}
	if perfect {
		prog.PerfectScores++
	}
	if prog.CurrentStreak > prog.LongestStreak {
		prog.LongestStreak = prog.CurrentStreak
	}
	m.progress[playerID] = prog
	return &prog, nil
}

// --- Achievements ---

func (m *Memory) UpsertDefinition(ctx context.Context, def *models.AchievementDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.definitions {
		if existing.Code == def.Code {
			def.ID = id
			m.definitions[id] = *def
			return nil
		}
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	m.definitions[def.ID] = *def
	return nil
}

func (m *Memory) ListActiveDefinitions(ctx context.Context, gameID string) ([]models.AchievementDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.AchievementDefinition
	for _, def := range m.definitions {
		if !def.Active {
			continue
		}
		if def.CriteriaGameID != nil && *def.CriteriaGameID != gameID {
			continue
		}
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) ListUnlocked(ctx context.Context, playerID string) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]time.Time)
	for _, u := range m.unlocks {
		if u.PlayerID == playerID {
			out[u.AchievementID] = u.UnlockedAt
		}
	}
	return out, nil
}

func (m *Memory) InsertUnlock(ctx context.Context, playerID, achievementID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(playerID, achievementID)
	if _, exists := m.unlocks[key]; exists {
		return false, nil
	}
	m.unlocks[key] = models.AchievementUnlock{
		ID:            uuid.NewString(),
		PlayerID:      playerID,
		AchievementID: achievementID,
		UnlockedAt:    time.Now().UTC(),
	}
	return true, nil
}

// --- Leaderboards ---

func (m *Memory) ApplyValue(ctx context.Context, p Partition, playerID string, value int64, mode AggregateMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	key := partitionKey(p, playerID)
	entry, ok := m.entries[key]
	if !ok {
		entry = models.LeaderboardEntry{
			ID: uuid.NewString(), GameID: p.GameID, Period: p.Period,
			PeriodKey: p.PeriodKey, Metric: p.Metric, PlayerID: playerID,
			Value: value, UpdatedAt: now,
		}
		m.entries[key] = entry
		return nil
	}

	switch mode {
	case AggregateMax:
		if value > entry.Value {
			entry.Value = value
			entry.UpdatedAt = now
			if entry.Rank > 0 {
				entry.PreviousRank = entry.Rank
			}
			entry.Rank = 0
		}
	default:
		entry.Value += value
		entry.UpdatedAt = now
		if entry.Rank > 0 {
			entry.PreviousRank = entry.Rank
		}
		entry.Rank = 0
	}
	m.entries[key] = entry
	return nil
}

func (m *Memory) partitionEntries(p Partition) []models.LeaderboardEntry {
	var out []models.LeaderboardEntry
	for _, e := range m.entries {
		if e.GameID == p.GameID && e.Period == p.Period && e.PeriodKey == p.PeriodKey && e.Metric == p.Metric {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.PlayerID < b.PlayerID
	})
	return out
}

func (m *Memory) RecomputeRanks(ctx context.Context, p Partition) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recomputeRanksLocked(p), nil
}

func (m *Memory) recomputeRanksLocked(p Partition) int {
	ordered := m.partitionEntries(p)
	for i, e := range ordered {
		newRank := i + 1
		if e.Rank > 0 && e.Rank != newRank {
			e.PreviousRank = e.Rank
		}
		e.Rank = newRank
		m.entries[partitionKey(p, e.PlayerID)] = e
	}
	return len(ordered)
}

func (m *Memory) TopEntries(ctx context.Context, p Partition, limit int) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := m.partitionEntries(p)
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

func (m *Memory) EntriesAround(ctx context.Context, p Partition, playerID string, radius int) ([]models.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	own, ok := m.entries[partitionKey(p, playerID)]
	if !ok {
		return nil, ErrNotFound
	}
	// An unranked own row (dirty partition between sweeps) would anchor the
	// window at nothing. Rank the partition first.
	if own.Rank == 0 {
		m.recomputeRanksLocked(p)
		own = m.entries[partitionKey(p, playerID)]
	}
	lower := own.Rank - radius
	if lower < 1 {
		lower = 1
	}
	upper := own.Rank + radius

	var out []models.LeaderboardEntry
	for _, e := range m.partitionEntries(p) {
		if e.Rank >= lower && e.Rank <= upper {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) ListDirtyPartitions(ctx context.Context, limit int) ([]Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[Partition]bool)
	var out []Partition
	for _, e := range m.entries {
		if e.Rank != 0 {
			continue
		}
		p := Partition{GameID: e.GameID, Period: e.Period, PeriodKey: e.PeriodKey, Metric: e.Metric}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- Challenges ---

func (m *Memory) UpsertChallenge(ctx context.Context, ch *models.DailyChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, existing := range m.challenges {
		if existing.Day == ch.Day && existing.Kind == ch.Kind {
			ch.ID = id
			m.challenges[id] = *ch
			return nil
		}
	}
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	m.challenges[ch.ID] = *ch
	return nil
}

func (m *Memory) ListChallengesForDay(ctx context.Context, day string) ([]models.DailyChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.DailyChallenge
	for _, ch := range m.challenges {
		if ch.Day == day {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}

func (m *Memory) GetChallengeProgress(ctx context.Context, playerID, challengeID string) (*models.ChallengeProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.chProgress[pairKey(playerID, challengeID)]
	if !ok {
		return nil, ErrNotFound
	}
	return &cp, nil
}

func (m *Memory) ListChallengeProgress(ctx context.Context, playerID string, challengeIDs []string) ([]models.ChallengeProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ChallengeProgress
	for _, id := range challengeIDs {
		if cp, ok := m.chProgress[pairKey(playerID, id)]; ok {
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *Memory) MergeChallengeProgress(ctx context.Context, playerID string, ch models.DailyChallenge, candidate int64, now time.Time) (*models.ChallengeProgress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if candidate < 0 {
		candidate = 0
	}
	now = now.UTC()
	key := pairKey(playerID, ch.ID)
	cp, ok := m.chProgress[key]
	if !ok {
		cp = models.ChallengeProgress{ID: uuid.NewString(), PlayerID: playerID, ChallengeID: ch.ID}
	}

	wasCompleted := cp.IsCompleted
	if candidate > cp.Progress {
		cp.Progress = candidate
	}
	if candidate >= ch.Target && !cp.IsCompleted {
		cp.IsCompleted = true
		cp.CompletedAt = &now
	}
	cp.UpdatedAt = now
	m.chProgress[key] = cp
	return &cp, cp.IsCompleted && !wasCompleted, nil
}

func (m *Memory) ClaimChallengeRewards(ctx context.Context, playerID, challengeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(playerID, challengeID)
	cp, ok := m.chProgress[key]
	if !ok || !cp.IsCompleted || cp.RewardsClaimed {
		return false, nil
	}
	cp.RewardsClaimed = true
	m.chProgress[key] = cp
	return true, nil
}

func (m *Memory) RevertChallengeClaim(ctx context.Context, playerID, challengeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pairKey(playerID, challengeID)
	cp, ok := m.chProgress[key]
	if !ok || !cp.RewardsClaimed {
		return nil
	}
	cp.RewardsClaimed = false
	m.chProgress[key] = cp
	return nil
}

// --- Games ---

func (m *Memory) GetGame(ctx context.Context, id string) (*models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	game, ok := m.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &game, nil
}

func (m *Memory) UpsertGame(ctx context.Context, game *models.Game) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if game.ID == "" {
		game.ID = uuid.NewString()
	}
	m.games[game.ID] = *game
	return nil
}

func (m *Memory) ListGames(ctx context.Context) ([]models.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Game
	for _, g := range m.games {
		if g.Active {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
