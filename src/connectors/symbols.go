package connectors

import (
	"github.com/shopspring/decimal"
)

// SymbolPrecision holds the decimal places Binance accepts per symbol.
type SymbolPrecision struct {
	Quantity int32
	Price    int32
}

var symbolPrecision = map[string]SymbolPrecision{
	"BTCUSDT":   {Quantity: 3, Price: 2},
	"ETHUSDT":   {Quantity: 3, Price: 2},
	"SOLUSDT":   {Quantity: 2, Price: 3},
	"AVAXUSDT":  {Quantity: 1, Price: 3},
	"ADAUSDT":   {Quantity: 0, Price: 5},
	"DOTUSDT":   {Quantity: 1, Price: 3},
	"LINKUSDT":  {Quantity: 2, Price: 3},
	"MATICUSDT": {Quantity: 0, Price: 5},
	"LTCUSDT":   {Quantity: 3, Price: 2},
	"BCHUSDT":   {Quantity: 3, Price: 2},
	"XRPUSDT":   {Quantity: 0, Price: 4},
	"XRPUSDC":   {Quantity: 0, Price: 4},
}

var defaultPrecision = SymbolPrecision{Quantity: 3, Price: 2}

// minQuantity is the exchange's smallest accepted order size per symbol.
// Smaller requests are bumped up rather than rejected.
var minQuantity = map[string]decimal.Decimal{
	"XRPUSDT":   decimal.NewFromInt(1),
	"XRPUSDC":   decimal.NewFromInt(1),
	"ADAUSDT":   decimal.NewFromInt(1),
	"MATICUSDT": decimal.NewFromInt(1),
	"BTCUSDT":   decimal.NewFromFloat(0.001),
	"ETHUSDT":   decimal.NewFromFloat(0.001),
}

// PrecisionFor returns the precision settings for a symbol.
func PrecisionFor(symbol string) SymbolPrecision {
	if p, ok := symbolPrecision[symbol]; ok {
		return p
	}
	return defaultPrecision
}

// FormatQuantity renders an order quantity the way the exchange expects it:
// clamped to the symbol's minimum and truncated to its quantity precision.
func FormatQuantity(symbol string, quantity decimal.Decimal) string {
	if min, ok := minQuantity[symbol]; ok && quantity.LessThan(min) {
		quantity = min
	}
	return quantity.StringFixed(PrecisionFor(symbol).Quantity)
}

// fallbackPrices cover a price-feed outage so valuation keeps working.
var fallbackPrices = map[string]decimal.Decimal{
	"BTCUSDT":   decimal.NewFromFloat(45000.0),
	"ETHUSDT":   decimal.NewFromFloat(2400.0),
	"SOLUSDT":   decimal.NewFromFloat(22.45),
	"AVAXUSDT":  decimal.NewFromFloat(18.92),
	"ADAUSDT":   decimal.NewFromFloat(0.4567),
	"DOTUSDT":   decimal.NewFromFloat(6.789),
	"LINKUSDT":  decimal.NewFromFloat(12.34),
	"MATICUSDT": decimal.NewFromFloat(0.8901),
	"LTCUSDT":   decimal.NewFromFloat(85.67),
	"BCHUSDT":   decimal.NewFromFloat(220.50),
	"XRPUSDT":   decimal.NewFromFloat(0.6234),
	"XRPUSDC":   decimal.NewFromFloat(0.6234),
}

// FallbackPrice returns the static price for a symbol, or 1 when unknown.
func FallbackPrice(symbol string) decimal.Decimal {
	if p, ok := fallbackPrices[symbol]; ok {
		return p
	}
	return decimal.NewFromInt(1)
}
