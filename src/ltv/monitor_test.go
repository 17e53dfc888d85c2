package ltv

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loankeeper/src/model"
)

func defaultSettings() model.RebalanceSettings {
	return model.RebalanceSettings{
		ClientID:           "live_client",
		TargetLTV:          74,
		RebalanceThreshold: 2,
		MaxBorrowAmount:    10000,
		MinRepayAmount:     10,
	}
}

// snapshotUSD builds a snapshot with USD-quoted values directly: every asset
// amount is already in valuation units via price 1.
func snapshotUSD(collateral, debt float64) *Snapshot {
	return &Snapshot{
		Collateral:  map[string]decimal.Decimal{"BTC": decimal.NewFromFloat(collateral)},
		Debt:        map[string]decimal.Decimal{"USDT": decimal.NewFromFloat(debt)},
		Prices:      map[string]decimal.Decimal{"BTC": decimal.NewFromInt(1), "USDT": decimal.NewFromInt(1)},
		BorrowAsset: "USDT",
	}
}

// collateral 10000, debt 6000: LTV is exactly 60.0 and the 60 band boundary
// is inclusive, so health lands on caution.
func TestEvaluateSixtyPercentIsCaution(t *testing.T) {
	status := Evaluate(snapshotUSD(10000, 6000), defaultSettings())

	require.True(t, status.Defined)
	assert.True(t, status.CurrentLTV.Equal(decimal.NewFromInt(60)), "got %s", status.CurrentLTV)
	assert.Equal(t, HealthCaution, status.Health)
}

func TestHealthLadder(t *testing.T) {
	cases := []struct {
		ltv  float64
		want Health
	}{
		{0, HealthHealthy},
		{59.99, HealthHealthy},
		{60, HealthCaution},
		{69.99, HealthCaution},
		{70, HealthWarning},
		{80, HealthWarning},
		{80.01, HealthCritical},
		{95, HealthCritical},
	}

	for _, tc := range cases {
		got := HealthFor(decimal.NewFromFloat(tc.ltv))
		assert.Equal(t, tc.want, got, "ltv %v", tc.ltv)
	}
}

// For v1 < v2, health(v1) <= health(v2) under the ladder ordering.
func TestHealthMonotonic(t *testing.T) {
	prev := HealthFor(decimal.Zero)
	for v := 1; v <= 100; v++ {
		h := HealthFor(decimal.NewFromInt(int64(v)))
		assert.GreaterOrEqual(t, h.Rank(), prev.Rank(), "ltv %d", v)
		prev = h
	}
}

func TestEvaluateNoActiveLoans(t *testing.T) {
	snap := &Snapshot{
		Collateral: map[string]decimal.Decimal{},
		Debt:       map[string]decimal.Decimal{},
		Prices:     map[string]decimal.Decimal{},
	}

	status := Evaluate(snap, defaultSettings())

	assert.False(t, status.Defined)
	assert.False(t, status.NeedsRebalance)
	assert.Equal(t, []string{"no active loans"}, status.RecommendedActions)
}

// target+threshold exactly does not trigger (strict inequality), a hair above
// does.
func TestNeedsRebalanceBoundaryIsStrict(t *testing.T) {
	settings := defaultSettings() // target 74, threshold 2

	at := Evaluate(snapshotUSD(10000, 7600), settings) // LTV exactly 76
	assert.False(t, at.NeedsRebalance)

	above := Evaluate(snapshotUSD(10000, 7601), settings) // LTV 76.01
	assert.True(t, above.NeedsRebalance)

	below := Evaluate(snapshotUSD(10000, 7199), settings) // LTV 71.99
	assert.True(t, below.NeedsRebalance)
}

// The monitor's recommendation quotes the same repay value the planner
// computes, so guidance and behavior stay consistent.
func TestEvaluateRecommendationMatchesPlanner(t *testing.T) {
	settings := defaultSettings()
	snap := snapshotUSD(10000, 7800) // LTV 78, repay value 400

	status := Evaluate(snap, settings)
	require.True(t, status.NeedsRebalance)
	require.Len(t, status.RecommendedActions, 2)
	assert.Contains(t, status.RecommendedActions[1], "400.00")

	actions, _ := Plan(status, snap, settings)
	require.Len(t, actions, 1)
	assert.True(t, actions[0].Amount.Equal(decimal.NewFromInt(400)), "got %s", actions[0].Amount)
}

func TestEvaluateValuesMultiAssetSnapshot(t *testing.T) {
	snap := &Snapshot{
		Collateral: map[string]decimal.Decimal{
			"BTC": decimal.NewFromFloat(0.1),
			"ETH": decimal.NewFromInt(2),
		},
		Debt: map[string]decimal.Decimal{
			"USDT": decimal.NewFromInt(3000),
		},
		Prices: map[string]decimal.Decimal{
			"BTC":  decimal.NewFromInt(50000),
			"ETH":  decimal.NewFromInt(2500),
			"USDT": decimal.NewFromInt(1),
		},
		BorrowAsset: "USDT",
	}

	status := Evaluate(snap, defaultSettings())

	// collateral 0.1*50000 + 2*2500 = 10000, debt 3000 -> 30%
	require.True(t, status.Defined)
	assert.True(t, status.CollateralValue.Equal(decimal.NewFromInt(10000)))
	assert.True(t, status.CurrentLTV.Equal(decimal.NewFromInt(30)), "got %s", status.CurrentLTV)
	assert.Equal(t, HealthHealthy, status.Health)
	assert.True(t, status.NeedsRebalance)
}
