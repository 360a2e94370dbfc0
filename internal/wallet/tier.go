package wallet

import "github.com/shopspring/decimal"

// Tier is a gamification badge. Its deposit range is shown to users but never enforced.
type Tier struct {
	Level      int             `json:"level"`
	Label      string          `json:"label"`
	Emoji      string          `json:"emoji"`
	DepositMin decimal.Decimal `json:"depositMin"`
	DepositMax decimal.Decimal `json:"depositMax"` // zero means no upper bound
}

var tiers = []Tier{
	{1, "Bronze", "🥉", d(50), d(499)},
	{2, "Silver", "🥈", d(500), d(999)},
	{3, "Gold", "🥇", d(1000), d(2499)},
	{4, "Diamond", "💎", d(2500), d(4999)},
	{5, "Fire", "🔥", d(5000), d(9999)},
	{6, "Lightning", "⚡", d(10000), d(24999)},
	{7, "Star", "🌟", d(25000), d(49999)},
	{8, "Royal", "👑", d(50000), d(99999)},
	{9, "Rocket", "🚀", d(100000), d(249999)},
	{10, "Galaxy", "🌌", d(250000), d(499999)},
	{11, "Trident", "🔱", d(500000), d(999999)},
	{12, "Supreme", "👑", d(1000000), decimal.Zero},
}

const MaxTier = 12

// TierFor returns the badge for level, falling back to tier 1 for unknown levels.
func TierFor(level int) Tier {
	if level < 1 || level > len(tiers) {
		return tiers[0]
	}
	return tiers[level-1]
}

func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}

// Limits shown on the deposit and withdrawal pages.
type Limits struct {
	DepositDaily       decimal.Decimal `json:"depositDaily"`
	DepositMonthly     decimal.Decimal `json:"depositMonthly"`
	WithdrawalDaily    decimal.Decimal `json:"withdrawalDaily"`
	WithdrawalMonthly  decimal.Decimal `json:"withdrawalMonthly"`
	DepositUsedToday   decimal.Decimal `json:"depositUsedToday"`
	WithdrawnUsedToday decimal.Decimal `json:"withdrawnUsedToday"`
}

func DisplayLimits() Limits {
	return Limits{
		DepositDaily:      d(10000),
		DepositMonthly:    d(100000),
		WithdrawalDaily:   d(5000),
		WithdrawalMonthly: d(50000),
	}
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }
