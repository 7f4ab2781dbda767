package services

// featureThreshold gates a UI surface behind play volume or level
// (progressive disclosure). Purely informational: the engine reports which
// gates a completion crossed, it stores nothing.
type featureThreshold struct {
	Name        string
	GamesPlayed int64
	Level       int
}

var featureThresholds = []featureThreshold{
	{Name: "daily_challenges", GamesPlayed: 1},
	{Name: "achievements_gallery", GamesPlayed: 2},
	{Name: "leaderboards", GamesPlayed: 3},
	{Name: "streak_tracker", GamesPlayed: 5},
	{Name: "tournaments", GamesPlayed: 10},
	{Name: "custom_avatars", Level: 5},
	{Name: "prestige_shop", Level: 10},
}

// FeaturesFor lists every feature available at the given play statistics.
func FeaturesFor(gamesPlayed int64, level int) []string {
	var out []string
	for _, t := range featureThresholds {
		if gamesPlayed >= t.GamesPlayed && level >= t.Level {
			out = append(out, t.Name)
		}
	}
	return out
}

// NewFeatures returns the features that became available between the two
// statistic snapshots, in threshold-table order.
func NewFeatures(beforeGames int64, beforeLevel int, afterGames int64, afterLevel int) []string {
	before := make(map[string]bool)
	for _, name := range FeaturesFor(beforeGames, beforeLevel) {
		before[name] = true
	}
	var out []string
	for _, name := range FeaturesFor(afterGames, afterLevel) {
		if !before[name] {
			out = append(out, name)
		}
	}
	return out
}
