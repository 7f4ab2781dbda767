package models

// Wallet holds a player's spendable point balance plus lifetime totals.
// Invariant: CurrentBalance = LifetimeEarned - LifetimeSpent, never negative.
// Balances are only ever mutated through single-statement atomic increments.
type Wallet struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerID string `gorm:"uniqueIndex;not null" json:"player_id"`

	CurrentBalance int64 `gorm:"default:0" json:"current_balance"`
	LifetimeEarned int64 `gorm:"default:0" json:"lifetime_earned"`
	LifetimeSpent  int64 `gorm:"default:0" json:"lifetime_spent"`

	Timestamps
}
