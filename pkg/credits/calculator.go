package credits

import "fmt"

// Reason explains why a grant decision was made. Stored alongside the
// resulting ledger entry for audit purposes.
type Reason string

const (
	// ReasonTopUpToMinimum: the grant brings the balance up toward the new
	// tier's baseline allowance.
	ReasonTopUpToMinimum Reason = "top_up_to_minimum"
	// ReasonPreserveLegitimateExcess: the balance already sits at or above
	// the new tier's baseline through legitimate rollover or purchases;
	// the tier difference is granted on top.
	ReasonPreserveLegitimateExcess Reason = "preserve_legitimate_excess"
	// ReasonFarmingBlocked: the balance is implausibly high for the
	// previous tier, indicating downgrade/upgrade cycling. Nothing is
	// granted.
	ReasonFarmingBlocked Reason = "farming_blocked"
	// ReasonDowngrade: downgrades keep the existing balance untouched.
	ReasonDowngrade Reason = "downgrade_no_change"
)

// Policy holds the tunable constants of the grant policy.
type Policy struct {
	// RolloverFactor bounds the balance considered plausible for a tier:
	// balances at or below previousTierCredits * RolloverFactor are
	// legitimate. Accounts for one cycle of rollover plus modest ad-hoc
	// purchases.
	RolloverFactor float64
}

// DefaultPolicy is the production policy: 1.5x the previous tier's
// allowance is the farming threshold.
var DefaultPolicy = Policy{RolloverFactor: 1.5}

// Decision is the outcome of a tier-change grant calculation.
type Decision struct {
	CreditsToAdd         int64
	Reason               Reason
	MaxReasonableBalance int64
	IsLegitimate         bool
}

// CalculateUpgradeCredits decides the grant for an upgrade from a tier
// with previousTierCredits per cycle to one with newTierCredits.
//
// Only the tier difference is ever granted, never the new tier's full
// allowance: granting the full allowance on top of an existing balance
// would let users accumulate credits by cycling tiers. A balance above
// the plausibility threshold gets nothing at all.
//
// Callers must route downgrades to CalculateDowngradeCredits; passing
// newTierCredits <= previousTierCredits is an error, as is any negative
// input.
func (p Policy) CalculateUpgradeCredits(currentBalance, previousTierCredits, newTierCredits int64) (Decision, error) {
	if currentBalance < 0 || previousTierCredits < 0 || newTierCredits < 0 {
		return Decision{}, ErrNegativeInput
	}
	if newTierCredits <= previousTierCredits {
		return Decision{}, ErrNotAnUpgrade
	}

	tierDifference := newTierCredits - previousTierCredits
	maxReasonable := int64(float64(previousTierCredits) * p.RolloverFactor)

	if currentBalance > maxReasonable {
		return Decision{
			CreditsToAdd:         0,
			Reason:               ReasonFarmingBlocked,
			MaxReasonableBalance: maxReasonable,
			IsLegitimate:         false,
		}, nil
	}

	reason := ReasonTopUpToMinimum
	if currentBalance >= newTierCredits {
		reason = ReasonPreserveLegitimateExcess
	}

	return Decision{
		CreditsToAdd:         tierDifference,
		Reason:               reason,
		MaxReasonableBalance: maxReasonable,
		IsLegitimate:         true,
	}, nil
}

// CalculateUpgradeCredits applies the default policy.
func CalculateUpgradeCredits(currentBalance, previousTierCredits, newTierCredits int64) (Decision, error) {
	return DefaultPolicy.CalculateUpgradeCredits(currentBalance, previousTierCredits, newTierCredits)
}

// CalculateDowngradeCredits returns the downgrade decision: never an
// immediate clawback. The user keeps their balance until the next
// renewal cycle rebalances it. This is product policy, not an oversight.
func CalculateDowngradeCredits() Decision {
	return Decision{
		CreditsToAdd: 0,
		Reason:       ReasonDowngrade,
		IsLegitimate: true,
	}
}

// Explain renders a human-readable account of the decision for audit logs.
func (d Decision) Explain(currentBalance, previousTierCredits, newTierCredits int64) string {
	switch d.Reason {
	case ReasonFarmingBlocked:
		return fmt.Sprintf(
			"balance %d exceeds plausible maximum %d for a %d-credit tier; grant blocked as suspected farming",
			currentBalance, d.MaxReasonableBalance, previousTierCredits)
	case ReasonPreserveLegitimateExcess:
		return fmt.Sprintf(
			"granted tier difference %d on top of legitimate balance %d (new tier baseline %d)",
			d.CreditsToAdd, currentBalance, newTierCredits)
	case ReasonDowngrade:
		return "downgrade keeps the existing balance; next renewal rebalances"
	default:
		return fmt.Sprintf(
			"granted tier difference %d to bring balance %d toward new tier baseline %d",
			d.CreditsToAdd, currentBalance, newTierCredits)
	}
}
