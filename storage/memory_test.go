package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"game-reward-system/models"
)

func TestFinalizeSessionIsExclusive(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	sess := &models.GameSession{PlayerID: "p1", GameID: "g1"}
	if err := mem.CreateSession(ctx, sess); err != nil {
		t.Fatal(err)
	}

	const workers = 32
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = mem.FinalizeSession(ctx, sess.ID, FinalizeParams{
				Score: 100, Outcome: models.OutcomeWin, EndedAt: time.Now().UTC(),
			})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, ErrAlreadyFinalized) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("%d finalizers succeeded, want exactly 1", ok)
	}
}

func TestFinalizeSessionNotFound(t *testing.T) {
	mem := NewMemory()
	_, err := mem.FinalizeSession(context.Background(), "missing", FinalizeParams{Outcome: models.OutcomeWin})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAbandonCompletedSessionFails(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	sess := &models.GameSession{PlayerID: "p1", GameID: "g1"}
	if err := mem.CreateSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.FinalizeSession(ctx, sess.ID, FinalizeParams{Outcome: models.OutcomeWin, EndedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}

	if err := mem.AbandonSession(ctx, sess.ID); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("abandon after finalize = %v, want ErrAlreadyFinalized", err)
	}
	got, err := mem.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.SessionCompleted {
		t.Errorf("status = %s, completed must stick", got.Status)
	}
}

func TestDebitWalletInsufficientFunds(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	if _, err := mem.EnsureWallet(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.CreditWallet(ctx, "p1", 50); err != nil {
		t.Fatal(err)
	}

	if _, err := mem.DebitWallet(ctx, "p1", 100); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("error = %v, want ErrInsufficientFunds", err)
	}

	wallet, err := mem.GetWallet(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if wallet.CurrentBalance != 50 || wallet.LifetimeSpent != 0 {
		t.Errorf("failed debit mutated wallet: %+v", wallet)
	}

	if _, err := mem.DebitWallet(ctx, "p1", 50); err != nil {
		t.Fatalf("exact-balance debit: %v", err)
	}
}

func TestCreditWalletConcurrent(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	if _, err := mem.EnsureWallet(ctx, "p1"); err != nil {
		t.Fatal(err)
	}

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mem.CreditWallet(ctx, "p1", 10); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	wallet, err := mem.GetWallet(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if wallet.CurrentBalance != workers*10 || wallet.LifetimeEarned != workers*10 {
		t.Errorf("wallet = %+v, want %d", wallet, workers*10)
	}
}

func TestInsertUnlockRace(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	inserted := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := mem.InsertUnlock(ctx, "p1", "ach-1")
			if err != nil {
				t.Error(err)
				return
			}
			inserted[i] = ok
		}(i)
	}
	wg.Wait()

	var winners int
	for _, ok := range inserted {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("%d inserters won, want exactly 1", winners)
	}
}

func TestSetLevelIfHigherNeverLowers(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	if _, err := mem.EnsureProgress(ctx, "p1"); err != nil {
		t.Fatal(err)
	}

	if ok, _ := mem.SetLevelIfHigher(ctx, "p1", 5, 2); !ok {
		t.Fatal("raising the level should succeed")
	}
	if ok, _ := mem.SetLevelIfHigher(ctx, "p1", 3, 1); ok {
		t.Fatal("lowering the level should be a no-op")
	}
	if ok, _ := mem.SetLevelIfHigher(ctx, "p1", 5, 2); ok {
		t.Fatal("equal level should be a no-op")
	}

	prog, err := mem.GetProgress(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if prog.Level != 5 || prog.Rank != 2 {
		t.Errorf("progress = %+v, want level 5 rank 2", prog)
	}
}

func TestMergeChallengeProgressMonotonic(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	ch := models.DailyChallenge{Day: "2025-06-15", Kind: models.ChallengePlayCount, Name: "Daily Grind", Target: 3}
	if err := mem.UpsertChallenge(ctx, &ch); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	cp, completedNow, err := mem.MergeChallengeProgress(ctx, "p1", ch, 2, now)
	if err != nil {
		t.Fatal(err)
	}
	if cp.Progress != 2 || completedNow {
		t.Fatalf("merge 2: %+v completedNow=%v", cp, completedNow)
	}

	// A lower candidate never regresses.
	cp, completedNow, err = mem.MergeChallengeProgress(ctx, "p1", ch, 1, now.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if cp.Progress != 2 || completedNow {
		t.Fatalf("merge 1 after 2: %+v", cp)
	}

	// Crossing the target reports completion exactly once.
	cp, completedNow, err = mem.MergeChallengeProgress(ctx, "p1", ch, 3, now.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if !cp.IsCompleted || !completedNow {
		t.Fatalf("merge 3: %+v completedNow=%v", cp, completedNow)
	}
	first := *cp.CompletedAt

	cp, completedNow, err = mem.MergeChallengeProgress(ctx, "p1", ch, 4, now.Add(3*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if completedNow {
		t.Error("completion reported twice")
	}
	if !cp.CompletedAt.Equal(first) {
		t.Error("completion timestamp moved on replay")
	}
}

func TestClaimChallengeRewardsOnce(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	ch := models.DailyChallenge{Day: "2025-06-15", Kind: models.ChallengeWinCount, Name: "On a Roll", Target: 1}
	if err := mem.UpsertChallenge(ctx, &ch); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()

	// Unclaimed before completion.
	if ok, _ := mem.ClaimChallengeRewards(ctx, "p1", ch.ID); ok {
		t.Fatal("claim before any progress should fail")
	}

	if _, _, err := mem.MergeChallengeProgress(ctx, "p1", ch, 1, now); err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	wins := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			wins[i], _ = mem.ClaimChallengeRewards(ctx, "p1", ch.ID)
		}(i)
	}
	wg.Wait()

	var winners int
	for _, ok := range wins {
		if ok {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("%d claimers won, want exactly 1", winners)
	}
}

func TestApplyValueStashesPreviousRank(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	p := Partition{GameID: "g1", Period: models.PeriodDaily, PeriodKey: "2025-06-15", Metric: models.MetricPoints}

	if err := mem.ApplyValue(ctx, p, "alice", 100, AggregateAdd); err != nil {
		t.Fatal(err)
	}
	if err := mem.ApplyValue(ctx, p, "bob", 50, AggregateAdd); err != nil {
		t.Fatal(err)
	}
	if _, err := mem.RecomputeRanks(ctx, p); err != nil {
		t.Fatal(err)
	}

	// Bob adds enough to overtake. The rank he held (2) must survive the
	// dirty-marker clear and come back as PreviousRank after the next pass.
	if err := mem.ApplyValue(ctx, p, "bob", 100, AggregateAdd); err != nil {
		t.Fatal(err)
	}
	top, err := mem.TopEntries(ctx, p, 10)
	if err != nil {
		t.Fatal(err)
	}
	if top[0].PlayerID != "bob" || top[0].Rank != 0 || top[0].PreviousRank != 2 {
		t.Fatalf("bob after add = %+v, want rank 0 previous 2", top[0])
	}

	if _, err := mem.RecomputeRanks(ctx, p); err != nil {
		t.Fatal(err)
	}
	top, err = mem.TopEntries(ctx, p, 10)
	if err != nil {
		t.Fatal(err)
	}
	if top[0].PlayerID != "bob" || top[0].Rank != 1 || top[0].PreviousRank != 2 {
		t.Errorf("bob after re-rank = %+v, want rank 1 previous 2", top[0])
	}
	if top[1].PlayerID != "alice" || top[1].Rank != 2 || top[1].PreviousRank != 1 {
		t.Errorf("alice after re-rank = %+v, want rank 2 previous 1", top[1])
	}
}

func TestApplyOutcomeStreaks(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	if _, err := mem.EnsureProgress(ctx, "p1"); err != nil {
		t.Fatal(err)
	}

	apply := func(outcome models.SessionOutcome) *models.PlayerProgress {
		t.Helper()
		prog, err := mem.ApplyOutcome(ctx, "p1", outcome, false)
		if err != nil {
			t.Fatal(err)
		}
		return prog
	}

	apply(models.OutcomeWin)
	apply(models.OutcomeWin)
	prog := apply(models.OutcomeWin)
	if prog.CurrentStreak != 3 || prog.LongestStreak != 3 {
		t.Fatalf("streak = %d/%d, want 3/3", prog.CurrentStreak, prog.LongestStreak)
	}

	prog = apply(models.OutcomeDraw)
	if prog.CurrentStreak != 0 || prog.LongestStreak != 3 {
		t.Fatalf("after draw: %d/%d, want 0/3", prog.CurrentStreak, prog.LongestStreak)
	}

	prog = apply(models.OutcomeWin)
	if prog.CurrentStreak != 1 || prog.LongestStreak != 3 {
		t.Fatalf("after rebuild: %d/%d, want 1/3", prog.CurrentStreak, prog.LongestStreak)
	}
	if prog.GamesPlayed != 5 || prog.Wins != 4 || prog.Draws != 1 {
		t.Errorf("counters = %+v", prog)
	}
}
