package connectors

import (
	"net/http"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// ValuationService prices assets off the public spot ticker, used to express
// account balances in quote-currency terms.
type ValuationService struct {
	exchange goex.API
	quote    string
}

func NewValuationService(quote string) *ValuationService {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return &ValuationService{
		exchange: binance.NewWithConfig(apiConfig),
		quote:    quote,
	}
}

// SpotPrice returns the last traded spot price of asset against the quote
// currency. Stablecoins short-circuit to 1.
func (v *ValuationService) SpotPrice(asset string) (decimal.Decimal, error) {
	if asset == v.quote || stableAssets[asset] {
		return decimal.NewFromInt(1), nil
	}

	pair := goex.NewCurrencyPair(goex.Currency{Symbol: asset}, goex.Currency{Symbol: v.quote})
	ticker, err := v.exchange.GetTicker(pair)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(ticker.Last), nil
}

// AssetValue is one balance expressed in the quote currency.
type AssetValue struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
	Price  decimal.Decimal `json:"price"`
	Value  decimal.Decimal `json:"value"`
}

// ValueBalances prices a balance list and totals it. Assets without a ticker
// fall back to the static table so one delisted coin cannot sink the whole
// valuation.
func (v *ValuationService) ValueBalances(balances []SpotBalance) ([]AssetValue, decimal.Decimal) {
	values := make([]AssetValue, 0, len(balances))
	total := decimal.Zero

	for _, b := range balances {
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		amount := free.Add(locked)
		if !amount.IsPositive() {
			continue
		}

		price, err := v.SpotPrice(b.Asset)
		if err != nil {
			logger.WithError(err).WithField("asset", b.Asset).Warn("Spot price lookup failed, using fallback")
			price = FallbackPrice(b.Asset + v.quote)
		}

		value := amount.Mul(price)
		values = append(values, AssetValue{Asset: b.Asset, Amount: amount, Price: price, Value: value})
		total = total.Add(value)
	}

	return values, total
}
