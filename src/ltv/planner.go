package ltv

import (
	"fmt"

	"github.com/shopspring/decimal"

	"loankeeper/src/model"
)

// ActionKind is the closed set of rebalancing moves.
type ActionKind string

const (
	ActionBorrow ActionKind = "borrow"
	ActionRepay  ActionKind = "repay"
)

// Action is one asset-denominated borrow or repay step. Immutable value,
// produced by Plan and consumed by the executor.
type Action struct {
	Kind      ActionKind
	Asset     string
	Amount    decimal.Decimal
	Rationale string
}

// amountScale is the decimal precision used for asset amounts.
const amountScale = 8

// Plan computes the ordered action list that moves the current LTV back to
// target. Deterministic: identical (status, snapshot, settings) inputs yield
// identical output, with no clock or randomness involved, so planning can be
// tested in isolation from execution. When the computed move is suppressed
// (dust repay, nothing to borrow) the empty list comes back with the reason.
func Plan(status Status, snap *Snapshot, settings model.RebalanceSettings) ([]Action, string) {
	if !status.Defined {
		return nil, "no active loans"
	}
	if !status.NeedsRebalance {
		return nil, "LTV within target band"
	}

	target := decimal.NewFromFloat(settings.TargetLTV)
	collateral := snap.CollateralValue()
	debt := snap.DebtValue()

	if status.CurrentLTV.GreaterThan(target) {
		return planRepay(collateral, debt, target, snap, settings)
	}
	return planBorrow(collateral, debt, target, snap, settings)
}

// planRepay reduces debt back down to the target LTV. The value to repay is
// clamped to [min_repay_amount, current debt]; a clamped value still below
// the minimum is dust and produces no action.
func planRepay(collateral, debt, target decimal.Decimal, snap *Snapshot, settings model.RebalanceSettings) ([]Action, string) {
	value := repayValue(collateral, debt, target)
	if value.GreaterThan(debt) {
		value = debt
	}

	minRepay := decimal.NewFromFloat(settings.MinRepayAmount)
	if value.LessThan(minRepay) {
		return nil, fmt.Sprintf("repay of %s below minimum %s, skipping dust transaction",
			value.StringFixed(2), minRepay.StringFixed(2))
	}

	asset := highestDebtAsset(snap)
	if asset == "" {
		return nil, "no debt asset to repay"
	}

	price := snap.Price(asset)
	if price.IsZero() {
		return nil, fmt.Sprintf("no price for debt asset %s", asset)
	}

	amount := value.DivRound(price, amountScale)
	return []Action{{
		Kind:   ActionRepay,
		Asset:  asset,
		Amount: amount,
		Rationale: fmt.Sprintf("repay %s %s (%s) to bring LTV from %s%% to %s%%",
			amount.String(), asset, value.StringFixed(2),
			currentLTV(collateral, debt).StringFixed(2), target.String()),
	}}, ""
}

// planBorrow takes on additional debt up to the target LTV, capped by
// max_borrow_amount. The borrow asset is the snapshot's designated one.
func planBorrow(collateral, debt, target decimal.Decimal, snap *Snapshot, settings model.RebalanceSettings) ([]Action, string) {
	value := borrowValue(collateral, debt, target)
	if value.LessThanOrEqual(decimal.Zero) {
		return nil, "no borrow capacity at target LTV"
	}

	maxBorrow := decimal.NewFromFloat(settings.MaxBorrowAmount)
	if value.GreaterThan(maxBorrow) {
		value = maxBorrow
	}

	asset := snap.BorrowAsset
	if asset == "" {
		return nil, "no borrow asset configured"
	}

	price := snap.Price(asset)
	if price.IsZero() {
		return nil, fmt.Sprintf("no price for borrow asset %s", asset)
	}

	amount := value.DivRound(price, amountScale)
	return []Action{{
		Kind:   ActionBorrow,
		Asset:  asset,
		Amount: amount,
		Rationale: fmt.Sprintf("borrow %s %s (%s) to bring LTV from %s%% toward %s%%",
			amount.String(), asset, value.StringFixed(2),
			currentLTV(collateral, debt).StringFixed(2), target.String()),
	}}, ""
}

// highestDebtAsset picks the asset carrying the most debt by value, breaking
// ties lexicographically so the choice is reproducible.
func highestDebtAsset(snap *Snapshot) string {
	best := ""
	bestValue := decimal.Zero

	for _, asset := range sortedAssets(snap.Debt) {
		value := snap.Debt[asset].Mul(snap.Price(asset))
		if value.GreaterThan(bestValue) {
			best = asset
			bestValue = value
		}
	}
	return best
}

func currentLTV(collateral, debt decimal.Decimal) decimal.Decimal {
	if collateral.IsZero() {
		return decimal.Zero
	}
	return debt.Div(collateral).Mul(hundred)
}
