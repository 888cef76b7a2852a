package optimizer

import "github.com/hrygo/tutorsense/ai/core/llm"

// Priority is the caller-requested cost/quality preference for a turn.
type Priority string

const (
	PriorityQuality  Priority = "quality"
	PriorityBalanced Priority = "balanced"
	PriorityEconomy  Priority = "economy"
)

// budgetGuardRatio is the daily usage ratio at which every request is
// forced onto the cheapest tier regardless of requested priority.
const budgetGuardRatio = 0.8

// TierPrice is the per-million-token price of a tier in USD.
type TierPrice struct {
	InputUSD  float64
	OutputUSD float64
}

// DefaultTierPrices returns the built-in pricing table.
func DefaultTierPrices() map[llm.Tier]TierPrice {
	return map[llm.Tier]TierPrice{
		llm.TierQuality: {InputUSD: 2.50, OutputUSD: 10.00},
		llm.TierBalance: {InputUSD: 0.60, OutputUSD: 2.40},
		llm.TierEconomy: {InputUSD: 0.15, OutputUSD: 0.60},
	}
}

// SelectTier maps the requested priority to a tier. Once the daily usage
// ratio reaches the budget guard, the economy tier wins regardless of the
// requested priority: budget exhaustion is a deliberate downgrade, not an error.
func SelectTier(priority Priority, dailyUsageRatio float64) llm.Tier {
	if dailyUsageRatio >= budgetGuardRatio {
		return llm.TierEconomy
	}
	switch priority {
	case PriorityQuality:
		return llm.TierQuality
	case PriorityEconomy:
		return llm.TierEconomy
	default:
		return llm.TierBalance
	}
}
