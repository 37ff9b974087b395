package quiz

import (
	"animehub/internal/core/config"
	"animehub/internal/domain"
)

type Tier string

const (
	TierNone Tier = "none"
	TierLow  Tier = "low"
	TierMid  Tier = "mid"
	TierHigh Tier = "high"
)

// RewardTable maps a score percentage to xp. Thresholds are inclusive
// lower bounds in percent.
type RewardTable struct {
	ParticipationBase int
	LowMinPct         float64
	MidMinPct         float64
	HighMinPct        float64
	LowBonus          int
	MidBonus          int
	HighBonus         int
}

func DefaultRewards() RewardTable {
	return RewardTable{
		ParticipationBase: 10,
		LowMinPct:         40,
		MidMinPct:         60,
		HighMinPct:        80,
		LowBonus:          20,
		MidBonus:          50,
		HighBonus:         100,
	}
}

func RewardsFromConfig(c config.Rewards) RewardTable {
	return RewardTable{
		ParticipationBase: c.ParticipationBase,
		LowMinPct:         c.TierLowMinPct,
		MidMinPct:         c.TierMidMinPct,
		HighMinPct:        c.TierHighMinPct,
		LowBonus:          c.TierLowBonus,
		MidBonus:          c.TierMidBonus,
		HighBonus:         c.TierHighBonus,
	}
}

func (r RewardTable) Validate() error {
	if r.ParticipationBase < 0 || r.LowBonus < 0 || r.MidBonus < 0 || r.HighBonus < 0 {
		return domain.Invalid("rewards", "amounts must not be negative")
	}
	if !(0 <= r.LowMinPct && r.LowMinPct <= r.MidMinPct && r.MidMinPct <= r.HighMinPct && r.HighMinPct <= 100) {
		return domain.Invalid("rewards", "tier thresholds must ascend within 0..100")
	}
	return nil
}

// Evaluate returns the tier for pct and the total reward, base included.
func (r RewardTable) Evaluate(pct float64) (Tier, int) {
	switch {
	case pct >= r.HighMinPct:
		return TierHigh, r.ParticipationBase + r.HighBonus
	case pct >= r.MidMinPct:
		return TierMid, r.ParticipationBase + r.MidBonus
	case pct >= r.LowMinPct:
		return TierLow, r.ParticipationBase + r.LowBonus
	}
	return TierNone, r.ParticipationBase
}
