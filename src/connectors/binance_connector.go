// REST API CLIENT FOR BINANCE MARGIN + USDT-M FUTURES
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"loankeeper/src/ltv"
)

const (
	// Default retry configuration
	defaultRetryAttempts   = 5
	defaultRetryBaseDelay  = 500 * time.Millisecond
	defaultRetryMaxBackoff = 8 * time.Second
)

// stableAssets are valued at 1 without a market lookup.
var stableAssets = map[string]bool{
	"USDT": true,
	"USDC": true,
	"BUSD": true,
}

// PriceSource answers price lookups from a local cache, typically fed by the
// ticker stream. A miss falls through to REST.
type PriceSource interface {
	Price(symbol string) (decimal.Decimal, bool)
}

// BinanceClient talks to the Binance margin and futures REST APIs with
// HMAC-SHA256 signed requests.
type BinanceClient struct {
	apiKey      string
	apiSecret   string
	recvWindow  int64
	borrowAsset string

	spot    *resty.Client
	futures *resty.Client
	prices  PriceSource

	now func() time.Time
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func newRestyClient(baseURL string, timeout time.Duration) *resty.Client {
	retryCount := defaultRetryAttempts - 1

	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)
}

func NewBinanceClient(apiKey, apiSecret string, config Config) *BinanceClient {
	if config.SpotBaseURL == "" {
		config.SpotBaseURL = "https://api.binance.com"
		logger.Warnf("No spot base URL provided, using default: %s", config.SpotBaseURL)
	}
	if config.FuturesBaseURL == "" {
		config.FuturesBaseURL = "https://fapi.binance.com"
	}

	return &BinanceClient{
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		recvWindow:  config.RecvWindow,
		borrowAsset: config.BorrowAsset,
		spot:        newRestyClient(config.SpotBaseURL, config.RequestTimeout),
		futures:     newRestyClient(config.FuturesBaseURL, config.RequestTimeout),
		now:         time.Now,
	}
}

// SetPriceSource plugs in a local price cache consulted before REST lookups.
func (c *BinanceClient) SetPriceSource(prices PriceSource) {
	c.prices = prices
}

func (c *BinanceClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// doSigned sends one signed request. Binance wants every parameter in the
// query string with the signature computed over the encoded form.
func (c *BinanceClient) doSigned(ctx context.Context, client *resty.Client, method, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", fmt.Sprintf("%d", c.now().UnixMilli()))
	if c.recvWindow > 0 {
		params.Set("recvWindow", fmt.Sprintf("%d", c.recvWindow))
	}

	query := params.Encode()
	query += "&signature=" + c.sign(query)

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(query).
		Execute(method, path)
	if err != nil {
		return nil, err
	}

	return unwrapResponse(resp)
}

func (c *BinanceClient) doPublic(ctx context.Context, client *resty.Client, path string, params url.Values) ([]byte, error) {
	req := client.R().SetContext(ctx)
	if params != nil {
		req = req.SetQueryString(params.Encode())
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, err
	}
	return unwrapResponse(resp)
}

// unwrapResponse turns a non-2xx reply into an ExchangeError carrying the
// Binance error code, so callers can classify it as transient or permanent.
func unwrapResponse(resp *resty.Response) ([]byte, error) {
	raw := resp.Body()

	if resp.StatusCode() != 200 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if err := json.Unmarshal(raw, &apiErr); err != nil {
			return nil, &ExchangeError{HTTPStatus: resp.StatusCode(), Message: string(raw)}
		}
		return nil, &ExchangeError{HTTPStatus: resp.StatusCode(), Code: apiErr.Code, Message: apiErr.Msg}
	}
	return raw, nil
}

// -----------------------------
// MARGIN ACCOUNT & LOAN METHODS
// -----------------------------

type marginAccount struct {
	MarginLevel string `json:"marginLevel"`
	UserAssets  []struct {
		Asset    string `json:"asset"`
		Borrowed string `json:"borrowed"`
		Free     string `json:"free"`
		Interest string `json:"interest"`
		Locked   string `json:"locked"`
		NetAsset string `json:"netAsset"`
	} `json:"userAssets"`
}

// LoanSnapshot reads the cross-margin account and values every asset so the
// monitor can derive LTV. Debt per asset is borrowed principal plus accrued
// interest; collateral is the positive net balance.
func (c *BinanceClient) LoanSnapshot(ctx context.Context) (*ltv.Snapshot, error) {
	raw, err := c.doSigned(ctx, c.spot, "GET", "/sapi/v1/margin/account", nil)
	if err != nil {
		return nil, err
	}

	var account marginAccount
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("decode margin account: %w", err)
	}

	snap := &ltv.Snapshot{
		Collateral:  make(map[string]decimal.Decimal),
		Debt:        make(map[string]decimal.Decimal),
		Prices:      make(map[string]decimal.Decimal),
		BorrowAsset: c.borrowAsset,
	}

	for _, asset := range account.UserAssets {
		borrowed, _ := decimal.NewFromString(asset.Borrowed)
		interest, _ := decimal.NewFromString(asset.Interest)
		net, _ := decimal.NewFromString(asset.NetAsset)

		debt := borrowed.Add(interest)
		if debt.IsPositive() {
			snap.Debt[asset.Asset] = debt
		}
		if net.IsPositive() {
			snap.Collateral[asset.Asset] = net
		}
		if debt.IsPositive() || net.IsPositive() {
			snap.Prices[asset.Asset] = c.assetPrice(ctx, asset.Asset)
		}
	}

	return snap, nil
}

// Borrow takes a margin loan for the given asset.
func (c *BinanceClient) Borrow(ctx context.Context, asset string, amount decimal.Decimal) error {
	params := url.Values{}
	params.Set("asset", asset)
	params.Set("amount", amount.String())

	_, err := c.doSigned(ctx, c.spot, "POST", "/sapi/v1/margin/loan", params)
	if err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"asset":  asset,
		"amount": amount.String(),
	}).Info("Margin borrow executed")
	return nil
}

// Repay pays down a margin loan for the given asset.
func (c *BinanceClient) Repay(ctx context.Context, asset string, amount decimal.Decimal) error {
	params := url.Values{}
	params.Set("asset", asset)
	params.Set("amount", amount.String())

	_, err := c.doSigned(ctx, c.spot, "POST", "/sapi/v1/margin/repay", params)
	if err != nil {
		return err
	}

	logger.WithFields(logger.Fields{
		"asset":  asset,
		"amount": amount.String(),
	}).Info("Margin repay executed")
	return nil
}

// -----------------------------
// LOAN HISTORY
// -----------------------------

// ErrUnknownLoanHistoryKind rejects a history kind outside the supported set.
var ErrUnknownLoanHistoryKind = errors.New("unknown loan history kind")

var loanHistoryPaths = map[string]string{
	"borrow":         "/sapi/v1/loan/borrow/history",
	"repay":          "/sapi/v1/loan/repay/history",
	"ltv-adjustment": "/sapi/v1/loan/ltv/adjustment/history",
	"income":         "/sapi/v1/loan/income",
}

// LoanHistory reads one of the crypto-loan history feeds over a trailing
// window of days (30 when unset) and returns the exchange payload untouched.
// Binance pages these with current/size; one page of 100 rows covers the
// window in practice.
func (c *BinanceClient) LoanHistory(ctx context.Context, kind string, days int) (json.RawMessage, error) {
	path, ok := loanHistoryPaths[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoanHistoryKind, kind)
	}
	if days <= 0 {
		days = 30
	}

	end := c.now()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)

	params := url.Values{}
	params.Set("startTime", fmt.Sprintf("%d", start.UnixMilli()))
	params.Set("endTime", fmt.Sprintf("%d", end.UnixMilli()))
	params.Set("current", "1")
	params.Set("size", "100")

	return c.doSigned(ctx, c.spot, "GET", path, params)
}

// -----------------------------
// ACCOUNT & POSITION METHODS
// -----------------------------

type SpotBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

func (c *BinanceClient) SpotBalances(ctx context.Context) ([]SpotBalance, error) {
	raw, err := c.doSigned(ctx, c.spot, "GET", "/api/v3/account", nil)
	if err != nil {
		return nil, err
	}

	var account struct {
		Balances []SpotBalance `json:"balances"`
	}
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("decode spot account: %w", err)
	}

	// drop zero balances, the full list is hundreds of assets long
	out := make([]SpotBalance, 0, len(account.Balances))
	for _, b := range account.Balances {
		if b.Free != "0.00000000" || b.Locked != "0.00000000" {
			out = append(out, b)
		}
	}
	return out, nil
}

type FuturesPosition struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	UnRealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
	PositionSide     string `json:"positionSide"`
}

// FuturesPositions returns only positions with non-zero size.
func (c *BinanceClient) FuturesPositions(ctx context.Context) ([]FuturesPosition, error) {
	raw, err := c.doSigned(ctx, c.futures, "GET", "/fapi/v2/positionRisk", nil)
	if err != nil {
		return nil, err
	}

	var positions []FuturesPosition
	if err := json.Unmarshal(raw, &positions); err != nil {
		return nil, fmt.Errorf("decode futures positions: %w", err)
	}

	out := positions[:0]
	for _, p := range positions {
		amt, _ := decimal.NewFromString(p.PositionAmt)
		if !amt.IsZero() {
			out = append(out, p)
		}
	}
	return out, nil
}

type EarnPosition struct {
	Asset       string `json:"asset"`
	TotalAmount string `json:"totalAmount"`
	LatestAPR   string `json:"latestAnnualPercentageRate"`
	CanRedeem   bool   `json:"canRedeem"`
}

func (c *BinanceClient) EarnPositions(ctx context.Context) ([]EarnPosition, error) {
	raw, err := c.doSigned(ctx, c.spot, "GET", "/sapi/v1/simple-earn/flexible/position", nil)
	if err != nil {
		return nil, err
	}

	var page struct {
		Rows []EarnPosition `json:"rows"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode earn positions: %w", err)
	}
	return page.Rows, nil
}

// -----------------------------
// TRADING METHODS
// -----------------------------

type OrderResult struct {
	OrderID       int64  `json:"orderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	ClientOrderID string `json:"clientOrderId"`
	AvgPrice      string `json:"avgPrice"`
	ExecutedQty   string `json:"executedQty"`
}

// PlaceMarketOrder submits a futures market order. The quantity is clamped
// and formatted to the symbol's precision rules before submission.
func (c *BinanceClient) PlaceMarketOrder(ctx context.Context, symbol, side string, quantity decimal.Decimal, reduceOnly bool) (*OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", FormatQuantity(symbol, quantity))
	params.Set("newClientOrderId", "lk-"+uuid.NewString())
	if reduceOnly {
		params.Set("reduceOnly", "true")
	}

	raw, err := c.doSigned(ctx, c.futures, "POST", "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}

	var result OrderResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}

	logger.WithFields(logger.Fields{
		"symbol":   symbol,
		"side":     side,
		"order_id": result.OrderID,
		"status":   result.Status,
	}).Info("Market order placed")

	return &result, nil
}

// -----------------------------
// PRICING
// -----------------------------

// TickerPrice fetches the latest futures price for a symbol over REST.
func (c *BinanceClient) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	raw, err := c.doPublic(ctx, c.futures, "/fapi/v1/ticker/price", params)
	if err != nil {
		return decimal.Zero, err
	}

	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(raw, &ticker); err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker: %w", err)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse ticker price %q: %w", ticker.Price, err)
	}
	return price, nil
}

// MarketPrice resolves a symbol price from the stream cache first, then REST,
// then the static fallback table. It never fails, a stale price beats a
// stalled rebalance.
func (c *BinanceClient) MarketPrice(ctx context.Context, symbol string) decimal.Decimal {
	if c.prices != nil {
		if price, ok := c.prices.Price(symbol); ok {
			return price
		}
	}

	price, err := c.TickerPrice(ctx, symbol)
	if err == nil && price.IsPositive() {
		return price
	}

	logger.WithError(err).WithField("symbol", symbol).Warn("Using fallback price")
	return FallbackPrice(symbol)
}

// assetPrice values one unit of an asset in the quote currency.
func (c *BinanceClient) assetPrice(ctx context.Context, asset string) decimal.Decimal {
	if stableAssets[asset] {
		return decimal.NewFromInt(1)
	}
	return c.MarketPrice(ctx, asset+"USDT")
}
