package services

import (
	"testing"

	"game-reward-system/models"
)

func testGame() *models.Game {
	return &models.Game{
		ID:                  "game-1",
		Name:                "Test Game",
		WinPoints:           50,
		LossPoints:          10,
		ParticipationPoints: 20,
		WinXP:               60,
		LossXP:              15,
		ParticipationXP:     25,
		EasyMultiplier:      0.75,
		NormalMultiplier:    1,
		HardMultiplier:      1.5,
		ExpertMultiplier:    2,
		Active:              true,
	}
}

func TestComputeRewards(t *testing.T) {
	game := testGame()

	tests := []struct {
		name       string
		outcome    models.SessionOutcome
		score      int64
		maxScore   int64
		difficulty string
		wantPoints int64
		wantXP     int64
	}{
		{name: "win full score normal", outcome: models.OutcomeWin, score: 100, maxScore: 100, wantPoints: 50, wantXP: 60},
		{name: "win half score", outcome: models.OutcomeWin, score: 50, maxScore: 100, wantPoints: 25, wantXP: 30},
		{name: "win no max score counts full", outcome: models.OutcomeWin, score: 9999, maxScore: 0, wantPoints: 50, wantXP: 60},
		{name: "win zero score", outcome: models.OutcomeWin, score: 0, maxScore: 100, wantPoints: 0, wantXP: 0},
		{name: "loss", outcome: models.OutcomeLoss, score: 100, maxScore: 100, wantPoints: 10, wantXP: 15},
		{name: "draw pays participation", outcome: models.OutcomeDraw, score: 100, maxScore: 100, wantPoints: 20, wantXP: 25},
		{name: "hard multiplier", outcome: models.OutcomeWin, score: 100, maxScore: 100, difficulty: models.DifficultyHard, wantPoints: 75, wantXP: 90},
		{name: "expert multiplier", outcome: models.OutcomeWin, score: 100, maxScore: 100, difficulty: models.DifficultyExpert, wantPoints: 100, wantXP: 120},
		{name: "easy multiplier rounds", outcome: models.OutcomeWin, score: 100, maxScore: 100, difficulty: models.DifficultyEasy, wantPoints: 38, wantXP: 45},
		{name: "unknown difficulty plays normal", outcome: models.OutcomeWin, score: 100, maxScore: 100, difficulty: "nightmare", wantPoints: 50, wantXP: 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeRewards(game, tt.outcome, tt.score, tt.maxScore, tt.difficulty)
			if got.Points != tt.wantPoints || got.XP != tt.wantXP {
				t.Errorf("ComputeRewards() = {%d, %d}, want {%d, %d}",
					got.Points, got.XP, tt.wantPoints, tt.wantXP)
			}
		})
	}
}

func TestComputeRewardsPure(t *testing.T) {
	game := testGame()
	first := ComputeRewards(game, models.OutcomeWin, 73, 100, models.DifficultyHard)
	for i := 0; i < 10; i++ {
		if got := ComputeRewards(game, models.OutcomeWin, 73, 100, models.DifficultyHard); got != first {
			t.Fatalf("ComputeRewards not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestComputeRewardsZeroMultiplierGuard(t *testing.T) {
	game := testGame()
	game.NormalMultiplier = 0
	got := ComputeRewards(game, models.OutcomeWin, 100, 100, "")
	if got.Points != 50 || got.XP != 60 {
		t.Errorf("zero multiplier should fall back to 1, got %+v", got)
	}
}

func TestLevelForXP(t *testing.T) {
	tests := []struct {
		xp   int64
		want int
	}{
		{0, 1},
		{-5, 1},
		{39, 1},
		{40, 2},
		{89, 2},
		{90, 3},
		{950, 9},   // below the level-10 threshold of 1000
		{999, 9},
		{1000, 10},
		{1010, 10},
		{1209, 10},
		{1210, 11},
	}
	for _, tt := range tests {
		if got := LevelForXP(tt.xp); got != tt.want {
			t.Errorf("LevelForXP(%d) = %d, want %d", tt.xp, got, tt.want)
		}
	}
}

func TestLevelForXPMonotonic(t *testing.T) {
	prev := 0
	for xp := int64(0); xp <= 50_000; xp += 7 {
		level := LevelForXP(xp)
		if level < prev {
			t.Fatalf("level decreased: LevelForXP(%d) = %d after %d", xp, level, prev)
		}
		prev = level
	}
}

func TestXPForLevelRoundTrip(t *testing.T) {
	for level := 1; level <= 100; level++ {
		threshold := XPForLevel(level)
		if got := LevelForXP(threshold); got != level {
			t.Errorf("LevelForXP(XPForLevel(%d)=%d) = %d", level, threshold, got)
		}
		if level > 1 {
			if got := LevelForXP(threshold - 1); got != level-1 {
				t.Errorf("LevelForXP(%d) = %d, want %d", threshold-1, got, level-1)
			}
		}
	}
}

func TestLevelForXPCapped(t *testing.T) {
	if got := LevelForXP(1 << 50); got != MaxLevel {
		t.Errorf("LevelForXP(huge) = %d, want cap %d", got, MaxLevel)
	}
}

func TestRankForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  int
	}{
		{1, 1}, {4, 1}, {5, 2}, {14, 2}, {15, 3}, {29, 3},
		{30, 4}, {59, 4}, {60, 5}, {99, 5}, {100, 6}, {500, 6},
	}
	for _, tt := range tests {
		if got := RankForLevel(tt.level); got != tt.want {
			t.Errorf("RankForLevel(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestFeaturesFor(t *testing.T) {
	got := FeaturesFor(0, 1)
	if len(got) != 0 {
		t.Errorf("new player should have no features, got %v", got)
	}

	diff := NewFeatures(0, 9, 1, 10)
	want := map[string]bool{"daily_challenges": true, "prestige_shop": true}
	if len(diff) != len(want) {
		t.Fatalf("NewFeatures = %v, want keys %v", diff, want)
	}
	for _, name := range diff {
		if !want[name] {
			t.Errorf("unexpected new feature %q", name)
		}
	}
}
