package ltv

import (
	"fmt"

	"github.com/shopspring/decimal"

	"loankeeper/src/model"
)

// Health is the ordered classification of the aggregate LTV.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthCaution  Health = "caution"
	HealthWarning  Health = "warning"
	HealthCritical Health = "critical"
)

// Rank gives the ordering healthy < caution < warning < critical.
func (h Health) Rank() int {
	switch h {
	case HealthCaution:
		return 1
	case HealthWarning:
		return 2
	case HealthCritical:
		return 3
	default:
		return 0
	}
}

var (
	cautionBound  = decimal.NewFromInt(60)
	warningBound  = decimal.NewFromInt(70)
	criticalBound = decimal.NewFromInt(80)
	hundred       = decimal.NewFromInt(100)
)

// HealthFor classifies an LTV percentage. Band lower bounds are inclusive:
// 60 is caution, 70 is warning; critical starts strictly above 80.
func HealthFor(currentLTV decimal.Decimal) Health {
	switch {
	case currentLTV.GreaterThan(criticalBound):
		return HealthCritical
	case currentLTV.GreaterThanOrEqual(warningBound):
		return HealthWarning
	case currentLTV.GreaterThanOrEqual(cautionBound):
		return HealthCaution
	default:
		return HealthHealthy
	}
}

// Status is the derived view of the loan account, recomputed on demand.
type Status struct {
	Defined            bool            `json:"defined"`
	CurrentLTV         decimal.Decimal `json:"current_ltv"`
	TargetLTV          decimal.Decimal `json:"target_ltv"`
	CollateralValue    decimal.Decimal `json:"collateral_value"`
	DebtValue          decimal.Decimal `json:"debt_value"`
	Health             Health          `json:"health"`
	NeedsRebalance     bool            `json:"needs_rebalance"`
	RecommendedActions []string        `json:"recommended_actions"`
}

// Evaluate derives the LTVStatus from a fresh snapshot. Zero collateral is the
// distinct "no active loans" state, not a division fault. Recommendations are
// built from the same repay/borrow values the planner computes, so displayed
// guidance and executed behavior cannot drift apart.
func Evaluate(snap *Snapshot, settings model.RebalanceSettings) Status {
	collateral := snap.CollateralValue()
	debt := snap.DebtValue()
	target := decimal.NewFromFloat(settings.TargetLTV)

	status := Status{
		TargetLTV:       target,
		CollateralValue: collateral,
		DebtValue:       debt,
	}

	if collateral.IsZero() {
		status.Health = HealthHealthy
		status.RecommendedActions = []string{"no active loans"}
		return status
	}

	status.Defined = true
	status.CurrentLTV = debt.Div(collateral).Mul(hundred)
	status.Health = HealthFor(status.CurrentLTV)

	threshold := decimal.NewFromFloat(settings.RebalanceThreshold)
	diff := status.CurrentLTV.Sub(target)
	status.NeedsRebalance = diff.Abs().GreaterThan(threshold)

	if !status.NeedsRebalance {
		status.RecommendedActions = []string{
			fmt.Sprintf("LTV %s%% is within %s%% of target %s%%, no rebalancing needed",
				status.CurrentLTV.StringFixed(1), threshold.String(), target.String()),
		}
		return status
	}

	if diff.IsPositive() {
		repay := repayValue(collateral, debt, target)
		status.RecommendedActions = []string{
			fmt.Sprintf("LTV %s%% is above target %s%%", status.CurrentLTV.StringFixed(1), target.String()),
			fmt.Sprintf("repay %s worth of debt to return to target", repay.StringFixed(2)),
		}
	} else {
		borrow := borrowValue(collateral, debt, target)
		status.RecommendedActions = []string{
			fmt.Sprintf("LTV %s%% is below target %s%%", status.CurrentLTV.StringFixed(1), target.String()),
			fmt.Sprintf("up to %s can be borrowed against current collateral", borrow.StringFixed(2)),
		}
	}

	return status
}

// repayValue is the debt reduction that brings LTV exactly to target.
func repayValue(collateral, debt, target decimal.Decimal) decimal.Decimal {
	return debt.Sub(target.Div(hundred).Mul(collateral))
}

// borrowValue is the additional debt that brings LTV exactly to target.
func borrowValue(collateral, debt, target decimal.Decimal) decimal.Decimal {
	return target.Div(hundred).Mul(collateral).Sub(debt)
}
