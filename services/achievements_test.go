package services

import (
	"context"
	"testing"
	"time"

	"game-reward-system/models"
	"game-reward-system/storage"

	"github.com/rs/zerolog"
)

func seedAchievements(t *testing.T, mem *storage.Memory, seeds []CatalogSeed) *AchievementService {
	t.Helper()
	svc := NewAchievementService(mem, zerolog.Nop())
	if err := svc.SeedCatalog(context.Background(), seeds); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return svc
}

func TestSeedCatalogSlugsAndValidation(t *testing.T) {
	mem := storage.NewMemory()
	svc := seedAchievements(t, mem, []CatalogSeed{
		{Name: "First Steps!", CriteriaType: models.CriteriaGamesPlayed, CriteriaTarget: 1},
	})

	defs, err := mem.ListActiveDefinitions(context.Background(), "any")
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 1 || defs[0].Code != "first-steps" {
		t.Fatalf("defs = %+v, want code first-steps", defs)
	}
	if defs[0].Tier != models.TierBronze {
		t.Errorf("empty tier should default to bronze, got %s", defs[0].Tier)
	}

	// Re-seeding updates in place rather than duplicating.
	if err := svc.SeedCatalog(context.Background(), []CatalogSeed{
		{Name: "First Steps!", Description: "updated", CriteriaType: models.CriteriaGamesPlayed, CriteriaTarget: 1},
	}); err != nil {
		t.Fatal(err)
	}
	defs, _ = mem.ListActiveDefinitions(context.Background(), "any")
	if len(defs) != 1 || defs[0].Description != "updated" {
		t.Fatalf("re-seed produced %+v", defs)
	}

	if err := svc.SeedCatalog(context.Background(), []CatalogSeed{
		{Name: "Broken", CriteriaType: "vibes", CriteriaTarget: 1},
	}); err == nil {
		t.Error("unknown criteria type should be rejected")
	}
	if err := svc.SeedCatalog(context.Background(), []CatalogSeed{
		{Name: "Broken", CriteriaType: models.CriteriaWins, CriteriaTarget: 0},
	}); err == nil {
		t.Error("non-positive target should be rejected")
	}
}

func TestEvaluateSpeedCriterion(t *testing.T) {
	mem := storage.NewMemory()
	svc := seedAchievements(t, mem, []CatalogSeed{
		{Name: "Speed Demon", CriteriaType: models.CriteriaSpeed, CriteriaTarget: 30, Hidden: true},
	})
	ctx := context.Background()
	stats := &models.PlayerProgress{PlayerID: "p1", Level: 1}

	started := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	session := func(outcome models.SessionOutcome, seconds int64) *models.GameSession {
		ended := started.Add(time.Duration(seconds) * time.Second)
		return &models.GameSession{
			ID: "s", PlayerID: "p1", GameID: "g1",
			Outcome: outcome, StartedAt: started, EndedAt: &ended,
		}
	}

	// Slow win does not qualify.
	got, err := svc.Evaluate(ctx, "p1", "g1", stats, session(models.OutcomeWin, 45))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("slow win unlocked %v", got)
	}

	// Fast loss does not qualify either.
	got, _ = svc.Evaluate(ctx, "p1", "g1", stats, session(models.OutcomeLoss, 10))
	if len(got) != 0 {
		t.Fatalf("fast loss unlocked %v", got)
	}

	got, err = svc.Evaluate(ctx, "p1", "g1", stats, session(models.OutcomeWin, 20))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Code != "speed-demon" {
		t.Fatalf("fast win: %v", got)
	}

	// Idempotent on replay.
	got, _ = svc.Evaluate(ctx, "p1", "g1", stats, session(models.OutcomeWin, 5))
	if len(got) != 0 {
		t.Fatalf("replay unlocked again: %v", got)
	}
}

func TestEvaluateGameScopedDefinitions(t *testing.T) {
	mem := storage.NewMemory()
	other := "other-game"
	svc := seedAchievements(t, mem, []CatalogSeed{
		{Name: "Globetrotter", CriteriaType: models.CriteriaGamesPlayed, CriteriaTarget: 1},
		{Name: "Specialist", CriteriaType: models.CriteriaGamesPlayed, CriteriaTarget: 1, CriteriaGameID: &other},
	})
	ctx := context.Background()
	stats := &models.PlayerProgress{PlayerID: "p1", GamesPlayed: 1, Level: 1}

	got, err := svc.Evaluate(ctx, "p1", "game-1", stats, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Code != "globetrotter" {
		t.Fatalf("only the global definition should apply, got %v", got)
	}
}

func TestPreviewHidesLockedHidden(t *testing.T) {
	mem := storage.NewMemory()
	svc := seedAchievements(t, mem, []CatalogSeed{
		{Name: "Visible", CriteriaType: models.CriteriaWins, CriteriaTarget: 10},
		{Name: "Secret", CriteriaType: models.CriteriaStreak, CriteriaTarget: 5, Hidden: true},
	})
	ctx := context.Background()
	stats := &models.PlayerProgress{PlayerID: "p1", Wins: 4, CurrentStreak: 5, Level: 1}

	preview, err := svc.Preview(ctx, "p1", "g1", stats)
	if err != nil {
		t.Fatal(err)
	}
	if len(preview) != 1 || preview[0].Definition.Code != "visible" {
		t.Fatalf("locked hidden achievement leaked: %+v", preview)
	}
	if preview[0].Current != 4 {
		t.Errorf("current = %d, want 4", preview[0].Current)
	}

	// Once unlocked, the hidden one appears with full progress.
	if _, err := svc.Evaluate(ctx, "p1", "g1", stats, nil); err != nil {
		t.Fatal(err)
	}
	preview, err = svc.Preview(ctx, "p1", "g1", stats)
	if err != nil {
		t.Fatal(err)
	}
	var foundSecret bool
	for _, row := range preview {
		if row.Definition.Code == "secret" {
			foundSecret = true
			if !row.Unlocked || row.Current != 5 || row.UnlockedAt == nil {
				t.Errorf("secret row = %+v", row)
			}
		}
	}
	if !foundSecret {
		t.Error("unlocked hidden achievement missing from preview")
	}
}
