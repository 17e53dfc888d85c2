package ltv

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Snapshot is one fresh read of the loan account: per-asset collateral and
// debt amounts plus the prices needed to value them in the common unit (USD).
// A snapshot is never cached across evaluations; a stale one would corrupt
// the control decision.
type Snapshot struct {
	Collateral  map[string]decimal.Decimal
	Debt        map[string]decimal.Decimal
	Prices      map[string]decimal.Decimal
	BorrowAsset string
}

// Price returns the valuation price for an asset, zero when unknown.
func (s *Snapshot) Price(asset string) decimal.Decimal {
	if p, ok := s.Prices[asset]; ok {
		return p
	}
	return decimal.Zero
}

// CollateralValue is Σ collateral_i × price_i in the valuation unit.
func (s *Snapshot) CollateralValue() decimal.Decimal {
	return s.valueOf(s.Collateral)
}

// DebtValue is Σ debt_i × price_i in the valuation unit.
func (s *Snapshot) DebtValue() decimal.Decimal {
	return s.valueOf(s.Debt)
}

func (s *Snapshot) valueOf(amounts map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, asset := range sortedAssets(amounts) {
		total = total.Add(amounts[asset].Mul(s.Price(asset)))
	}
	return total
}

// sortedAssets keeps every walk over an asset map deterministic.
func sortedAssets(amounts map[string]decimal.Decimal) []string {
	assets := make([]string, 0, len(amounts))
	for asset := range amounts {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}
