package services

import (
	"context"
	"testing"
	"time"

	"game-reward-system/models"
	"game-reward-system/storage"

	"github.com/rs/zerolog"
)

func TestPeriodKey(t *testing.T) {
	at := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		period models.LeaderboardPeriod
		want   string
	}{
		{models.PeriodDaily, "2025-06-15"},
		{models.PeriodWeekly, "2025-W24"},
		{models.PeriodMonthly, "2025-06"},
		{models.PeriodAllTime, "all"},
	}
	for _, tt := range tests {
		if got := PeriodKey(tt.period, at); got != tt.want {
			t.Errorf("PeriodKey(%s) = %q, want %q", tt.period, got, tt.want)
		}
	}

	// Different days share the all_time key but never the daily key.
	other := at.Add(48 * time.Hour)
	if PeriodKey(models.PeriodDaily, at) == PeriodKey(models.PeriodDaily, other) {
		t.Error("daily keys should differ across days")
	}
	if PeriodKey(models.PeriodAllTime, at) != PeriodKey(models.PeriodAllTime, other) {
		t.Error("all_time key should be constant")
	}
}

func TestRecordCompletionRanksDeterministically(t *testing.T) {
	mem := storage.NewMemory()
	svc := NewLeaderboardService(mem, zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	record := func(player string, score int64, won bool) {
		t.Helper()
		err := svc.RecordCompletion(ctx, "game-1", player, CompletionValues{
			Score: score, Points: 50, XP: 60, Won: won,
		}, now)
		if err != nil {
			t.Fatalf("record %s: %v", player, err)
		}
	}

	record("alice", 300, true)
	record("bob", 500, true)
	record("carol", 100, false)

	top, err := svc.Top(ctx, "game-1", models.PeriodDaily, models.MetricScore, 10, now)
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := []string{"bob", "alice", "carol"}
	if len(top) != 3 {
		t.Fatalf("got %d entries, want 3", len(top))
	}
	for i, want := range wantOrder {
		if top[i].PlayerID != want {
			t.Errorf("position %d = %s, want %s", i, top[i].PlayerID, want)
		}
		if top[i].Rank != i+1 {
			t.Errorf("rank of %s = %d, want dense %d", top[i].PlayerID, top[i].Rank, i+1)
		}
	}

	// Wins metric only counts winners.
	wins, err := svc.Top(ctx, "game-1", models.PeriodDaily, models.MetricWins, 10, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(wins) != 2 {
		t.Errorf("wins board has %d entries, want 2 (carol lost)", len(wins))
	}
}

func TestScoreMaxMergeIgnoresLowerReplay(t *testing.T) {
	mem := storage.NewMemory()
	svc := NewLeaderboardService(mem, zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	record := func(player string, score int64) {
		t.Helper()
		if err := svc.RecordCompletion(ctx, "game-1", player, CompletionValues{Score: score}, now); err != nil {
			t.Fatal(err)
		}
	}

	record("alice", 300)
	record("bob", 200)
	record("bob", 150) // worse run, must not move anything

	top, err := svc.Top(ctx, "game-1", models.PeriodDaily, models.MetricScore, 10, now)
	if err != nil {
		t.Fatal(err)
	}
	if top[1].PlayerID != "bob" || top[1].Value != 200 || top[1].Rank != 2 {
		t.Fatalf("after lower replay: %+v", top[1])
	}

	// A better run overtakes and records the displaced rank.
	record("bob", 400)
	top, err = svc.Top(ctx, "game-1", models.PeriodDaily, models.MetricScore, 10, now)
	if err != nil {
		t.Fatal(err)
	}
	if top[0].PlayerID != "bob" || top[0].Rank != 1 || top[0].PreviousRank != 2 {
		t.Errorf("bob after overtake = %+v, want rank 1 previous 2", top[0])
	}
	if top[1].PlayerID != "alice" || top[1].Rank != 2 || top[1].PreviousRank != 1 {
		t.Errorf("alice after overtake = %+v, want rank 2 previous 1", top[1])
	}
}

func TestTieBreakFirstToReach(t *testing.T) {
	mem := storage.NewMemory()
	svc := NewLeaderboardService(mem, zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	if err := svc.RecordCompletion(ctx, "game-1", "alice", CompletionValues{Score: 300}, now); err != nil {
		t.Fatal(err)
	}
	if err := svc.RecordCompletion(ctx, "game-1", "bob", CompletionValues{Score: 300}, now); err != nil {
		t.Fatal(err)
	}

	top, err := svc.Top(ctx, "game-1", models.PeriodDaily, models.MetricScore, 10, now)
	if err != nil {
		t.Fatal(err)
	}
	if top[0].PlayerID != "alice" || top[1].PlayerID != "bob" {
		t.Errorf("tie should rank the earlier entry first, got %s then %s", top[0].PlayerID, top[1].PlayerID)
	}
}

func TestRecomputeDirtySweepsBatchPartitions(t *testing.T) {
	mem := storage.NewMemory()
	svc := NewLeaderboardService(mem, zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	if err := svc.RecordCompletion(ctx, "game-1", "alice", CompletionValues{Score: 300, Points: 50, XP: 60, Won: true}, now); err != nil {
		t.Fatal(err)
	}

	// Monthly and all_time are left unranked by the inline path.
	monthly := PartitionFor("game-1", models.PeriodMonthly, models.MetricScore, now)
	entries, err := mem.TopEntries(ctx, monthly, 10)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Rank != 0 {
		t.Fatalf("monthly entry rank = %d, want 0 before sweep", entries[0].Rank)
	}

	if _, err := svc.RecomputeDirty(ctx, 100); err != nil {
		t.Fatal(err)
	}

	entries, err = mem.TopEntries(ctx, monthly, 10)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Rank != 1 {
		t.Errorf("monthly entry rank = %d, want 1 after sweep", entries[0].Rank)
	}

	// Second sweep finds nothing dirty.
	n, err := svc.RecomputeDirty(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second sweep processed %d partitions, want 0", n)
	}
}

func TestAroundAnchorsUnrankedPlayer(t *testing.T) {
	mem := storage.NewMemory()
	svc := NewLeaderboardService(mem, zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	if err := svc.RecordCompletion(ctx, "game-1", "alice", CompletionValues{Score: 300}, now); err != nil {
		t.Fatal(err)
	}
	if err := svc.RecordCompletion(ctx, "game-1", "bob", CompletionValues{Score: 500}, now); err != nil {
		t.Fatal(err)
	}

	// Monthly entries are still unranked (batch partitions wait for the
	// sweep); the neighborhood read must still find the player.
	around, err := svc.Around(ctx, "game-1", models.PeriodMonthly, models.MetricScore, "alice", 1, now)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, e := range around {
		if e.PlayerID == "alice" {
			found = true
			if e.Rank != 2 {
				t.Errorf("alice rank = %d, want 2", e.Rank)
			}
		}
	}
	if !found {
		t.Fatalf("own row missing from neighborhood: %+v", around)
	}
}

func TestAround(t *testing.T) {
	mem := storage.NewMemory()
	svc := NewLeaderboardService(mem, zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	players := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"}
	for i, player := range players {
		err := svc.RecordCompletion(ctx, "game-1", player, CompletionValues{Score: int64(1000 - i*100)}, now)
		if err != nil {
			t.Fatal(err)
		}
	}

	around, err := svc.Around(ctx, "game-1", models.PeriodDaily, models.MetricScore, "p4", 1, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(around) != 3 {
		t.Fatalf("got %d entries, want 3 (ranks 3..5)", len(around))
	}
	if around[0].PlayerID != "p3" || around[1].PlayerID != "p4" || around[2].PlayerID != "p5" {
		t.Errorf("neighborhood = %s %s %s", around[0].PlayerID, around[1].PlayerID, around[2].PlayerID)
	}
}
