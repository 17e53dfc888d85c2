package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loankeeper/src/connectors"
	"loankeeper/src/model"
	"loankeeper/src/signal"
	"loankeeper/src/tracker"
)

type mockStrategyStore struct {
	strategy   *model.Strategy
	err        error
	increments int
}

func (m *mockStrategyStore) FindByID(_ context.Context, _ uint) (*model.Strategy, error) {
	return m.strategy, m.err
}

func (m *mockStrategyStore) IncrementSignals(_ context.Context, _ uint) error {
	m.increments++
	return nil
}

type mockTracker struct {
	position   *model.Position
	openErr    error
	closeErr   error
	openCalls  int
	closeCalls int
}

func (m *mockTracker) Open(ctx context.Context, strategyID uint, inst *signal.Instruction, entryPrice float64, execute tracker.ExecuteFunc) (*model.Position, error) {
	m.openCalls++
	if m.openErr != nil {
		return nil, m.openErr
	}
	qty, _ := inst.Quantity.Float64()
	position := &model.Position{
		StrategyID: strategyID,
		Symbol:     inst.Symbol,
		Side:       inst.PositionSide(),
		Quantity:   qty,
		EntryPrice: entryPrice,
		Status:     model.PositionStatusOpen,
	}
	if execute != nil {
		if err := execute(ctx, position); err != nil {
			return nil, err
		}
	}
	return position, nil
}

func (m *mockTracker) Close(ctx context.Context, _ *signal.Instruction, _ float64, execute tracker.ExecuteFunc) (*model.Position, error) {
	m.closeCalls++
	if m.closeErr != nil {
		return nil, m.closeErr
	}
	if execute != nil {
		if err := execute(ctx, m.position); err != nil {
			return nil, err
		}
	}
	return m.position, nil
}

type placedOrder struct {
	symbol     string
	side       string
	quantity   decimal.Decimal
	reduceOnly bool
}

type mockExchange struct {
	orders   []placedOrder
	orderErr error
	failNext error
	price    decimal.Decimal
}

func (m *mockExchange) PlaceMarketOrder(_ context.Context, symbol, side string, quantity decimal.Decimal, reduceOnly bool) (*connectors.OrderResult, error) {
	m.orders = append(m.orders, placedOrder{symbol, side, quantity, reduceOnly})
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	return &connectors.OrderResult{OrderID: 1, Symbol: symbol, Status: "FILLED"}, nil
}

func (m *mockExchange) MarketPrice(_ context.Context, _ string) decimal.Decimal {
	if m.price.IsZero() {
		return decimal.NewFromInt(45000)
	}
	return m.price
}

type mockActivity struct {
	records []model.ActivityRecord
}

func (m *mockActivity) Append(_ context.Context, record *model.ActivityRecord) error {
	m.records = append(m.records, *record)
	return nil
}

func postWebhook(handler http.HandlerFunc, strategyID, body string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Post("/webhook/tradingview/strategy/{id}", handler)

	req := httptest.NewRequest(http.MethodPost, "/webhook/tradingview/strategy/"+strategyID, strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func activeStrategy() *mockStrategyStore {
	return &mockStrategyStore{strategy: &model.Strategy{ID: 7, Name: "ltv-keeper", Active: true}}
}

func TestWebhookHandlerOpensPosition(t *testing.T) {
	strategies := activeStrategy()
	positions := &mockTracker{}
	exchange := &mockExchange{}
	activity := &mockActivity{}

	handler := WebhookHandler(strategies, positions, exchange, activity)
	rr := postWebhook(handler, "7", "buy BTCUSDT 0.5")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, positions.openCalls)
	assert.Equal(t, 1, strategies.increments)

	require.Len(t, exchange.orders, 1)
	assert.Equal(t, "BUY", exchange.orders[0].side)
	assert.False(t, exchange.orders[0].reduceOnly)

	require.Len(t, activity.records, 1)
	record := activity.records[0]
	assert.Equal(t, model.ActivityOutcomeSuccess, record.Outcome)
	assert.Equal(t, "BTCUSDT", record.Symbol)
	assert.Equal(t, "open-long", record.Action)
	assert.Equal(t, "buy BTCUSDT 0.5", record.RawInput)
}

func TestWebhookHandlerClosePlacesReduceOnlyOppositeOrder(t *testing.T) {
	positions := &mockTracker{position: &model.Position{
		Symbol: "BTCUSDT", Side: model.PositionSideShort, Quantity: 0.5, Status: model.PositionStatusClosed,
	}}
	exchange := &mockExchange{}

	handler := WebhookHandler(activeStrategy(), positions, exchange, &mockActivity{})
	rr := postWebhook(handler, "7", "close BTCUSDT")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, 1, positions.closeCalls)

	require.Len(t, exchange.orders, 1)
	// closing a short means buying it back
	assert.Equal(t, "BUY", exchange.orders[0].side)
	assert.True(t, exchange.orders[0].reduceOnly)
	assert.True(t, exchange.orders[0].quantity.Equal(decimal.NewFromFloat(0.5)))
}

func TestWebhookHandlerMalformedSignal(t *testing.T) {
	activity := &mockActivity{}
	handler := WebhookHandler(activeStrategy(), &mockTracker{}, &mockExchange{}, activity)

	rr := postWebhook(handler, "7", "buy BTCUSDT nope")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "nope")

	require.Len(t, activity.records, 1)
	assert.Equal(t, model.ActivityOutcomeFailure, activity.records[0].Outcome)
	assert.Equal(t, "buy BTCUSDT nope", activity.records[0].RawInput)
}

func TestWebhookHandlerUnknownStrategy(t *testing.T) {
	activity := &mockActivity{}
	handler := WebhookHandler(&mockStrategyStore{}, &mockTracker{}, &mockExchange{}, activity)

	rr := postWebhook(handler, "99", "buy BTCUSDT 0.5")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	require.Len(t, activity.records, 1)
	assert.Equal(t, model.ActivityOutcomeFailure, activity.records[0].Outcome)
}

func TestWebhookHandlerDisabledStrategy(t *testing.T) {
	strategies := &mockStrategyStore{strategy: &model.Strategy{ID: 7, Active: false}}
	handler := WebhookHandler(strategies, &mockTracker{}, &mockExchange{}, &mockActivity{})

	rr := postWebhook(handler, "7", "buy BTCUSDT 0.5")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestWebhookHandlerDuplicateOpenConflict(t *testing.T) {
	positions := &mockTracker{openErr: &tracker.StateConflictError{
		Kind: tracker.ConflictDuplicateOpen, Symbol: "BTCUSDT", Side: model.PositionSideLong,
	}}
	exchange := &mockExchange{}
	activity := &mockActivity{}

	handler := WebhookHandler(activeStrategy(), positions, exchange, activity)
	rr := postWebhook(handler, "7", "buy BTCUSDT 0.5")

	assert.Equal(t, http.StatusConflict, rr.Code)
	// rejected before any order reaches the exchange
	assert.Empty(t, exchange.orders)
	require.Len(t, activity.records, 1)
	assert.Equal(t, model.ActivityOutcomeFailure, activity.records[0].Outcome)
}

func TestWebhookHandlerExchangeFailure(t *testing.T) {
	exchange := &mockExchange{orderErr: &connectors.ExchangeError{HTTPStatus: 400, Code: -3041, Message: "Balance is not enough"}}
	activity := &mockActivity{}

	handler := WebhookHandler(activeStrategy(), &mockTracker{}, exchange, activity)
	rr := postWebhook(handler, "7", "buy BTCUSDT 0.5")

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	require.Len(t, activity.records, 1)
	assert.Contains(t, activity.records[0].ErrorDetail, "BALANCE_NOT_ENOUGH")
}

// A rejected order must not leave a tracked position behind: the retry after
// the venue recovers is a fresh open, not a duplicate conflict.
func TestWebhookHandlerOrderFailureLeavesNoTrackedPosition(t *testing.T) {
	positions := tracker.New(nil)
	exchange := &mockExchange{failNext: &connectors.ExchangeError{HTTPStatus: 400, Code: -3041, Message: "Balance is not enough"}}
	activity := &mockActivity{}

	handler := WebhookHandler(activeStrategy(), positions, exchange, activity)

	rr := postWebhook(handler, "7", "buy BTCUSDT 0.5")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Empty(t, positions.OpenPositions())

	rr = postWebhook(handler, "7", "buy BTCUSDT 0.5")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, positions.OpenPositions(), 1)
	assert.Len(t, exchange.orders, 2)
}

// A failed reduce-only order keeps the position tracked so the close can be
// retried against the venue position that still exists.
func TestWebhookHandlerCloseOrderFailureKeepsPosition(t *testing.T) {
	positions := tracker.New(nil)
	exchange := &mockExchange{}
	handler := WebhookHandler(activeStrategy(), positions, exchange, &mockActivity{})

	rr := postWebhook(handler, "7", "buy BTCUSDT 0.5")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	exchange.failNext = &connectors.ExchangeError{HTTPStatus: 500, Code: -1001, Message: "internal error"}
	rr = postWebhook(handler, "7", "close BTCUSDT")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Len(t, positions.OpenPositions(), 1)

	rr = postWebhook(handler, "7", "close BTCUSDT")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Empty(t, positions.OpenPositions())
}

func TestWebhookHandlerStrategyLookupFailure(t *testing.T) {
	strategies := &mockStrategyStore{err: errors.New("db down")}
	activity := &mockActivity{}
	handler := WebhookHandler(strategies, &mockTracker{}, &mockExchange{}, activity)

	rr := postWebhook(handler, "7", "buy BTCUSDT 0.5")

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Len(t, activity.records, 1)
	assert.Equal(t, model.ActivityOutcomeFailure, activity.records[0].Outcome)
	assert.Equal(t, "buy BTCUSDT 0.5", activity.records[0].RawInput)
}

func TestWebhookHandlerInvalidStrategyID(t *testing.T) {
	handler := WebhookHandler(activeStrategy(), &mockTracker{}, &mockExchange{}, &mockActivity{})
	rr := postWebhook(handler, "abc", "buy BTCUSDT 0.5")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
