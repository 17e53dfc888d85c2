package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loankeeper/src/connectors"
	"loankeeper/src/ltv"
	"loankeeper/src/model"
	"loankeeper/src/rebalance"
)

type mockSnapshotter struct {
	snap *ltv.Snapshot
	err  error
}

func (m *mockSnapshotter) LoanSnapshot(_ context.Context) (*ltv.Snapshot, error) {
	return m.snap, m.err
}

type mockSettingsStore struct {
	settings map[string]model.RebalanceSettings
	saved    *model.RebalanceSettings
}

func (m *mockSettingsStore) Settings(_ context.Context, clientID string) (model.RebalanceSettings, error) {
	if s, ok := m.settings[clientID]; ok {
		return s, nil
	}
	return model.DefaultRebalanceSettings(clientID), nil
}

func (m *mockSettingsStore) SaveSettings(_ context.Context, settings *model.RebalanceSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	m.saved = settings
	return nil
}

type mockRebalancer struct {
	result *rebalance.Result
	err    error
}

func (m *mockRebalancer) Execute(_ context.Context, _ string) (*rebalance.Result, error) {
	return m.result, m.err
}

func usdSnapshot(collateral, debt float64) *ltv.Snapshot {
	return &ltv.Snapshot{
		Collateral:  map[string]decimal.Decimal{"USDT": decimal.NewFromFloat(collateral)},
		Debt:        map[string]decimal.Decimal{"USDT": decimal.NewFromFloat(debt)},
		Prices:      map[string]decimal.Decimal{"USDT": decimal.NewFromInt(1)},
		BorrowAsset: "USDT",
	}
}

func TestLTVStatusHandler(t *testing.T) {
	handler := LTVStatusHandler(&mockSnapshotter{snap: usdSnapshot(10000, 7800)}, &mockSettingsStore{}, "live_client")

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/loans/ltv", nil))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var status struct {
		Defined        bool       `json:"defined"`
		CurrentLTV     string     `json:"current_ltv"`
		Health         ltv.Health `json:"health"`
		NeedsRebalance bool       `json:"needs_rebalance"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))

	assert.True(t, status.Defined)
	assert.Equal(t, "78", status.CurrentLTV)
	assert.Equal(t, ltv.HealthWarning, status.Health)
	assert.True(t, status.NeedsRebalance)
}

func TestLTVStatusHandlerSnapshotFailure(t *testing.T) {
	handler := LTVStatusHandler(&mockSnapshotter{err: errors.New("connection reset")}, &mockSettingsStore{}, "live_client")

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/loans/ltv", nil))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestRebalanceHandlerAlreadyExecuting(t *testing.T) {
	handler := RebalanceHandler(&mockRebalancer{err: rebalance.ErrAlreadyExecuting}, "live_client")

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodPost, "/api/loans/rebalance", nil))

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRebalanceHandlerCooldown(t *testing.T) {
	handler := RebalanceHandler(&mockRebalancer{err: &rebalance.CooldownError{Remaining: 3 * time.Minute}}, "live_client")

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodPost, "/api/loans/rebalance", nil))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "3m0s")
}

func TestRebalanceHandlerSkipped(t *testing.T) {
	handler := RebalanceHandler(&mockRebalancer{result: &rebalance.Result{
		Reason: "LTV within threshold",
	}}, "live_client")

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodPost, "/api/loans/rebalance", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"skipped"`)
	assert.Contains(t, rr.Body.String(), "LTV within threshold")
}

func TestRebalanceHandlerExecuted(t *testing.T) {
	handler := RebalanceHandler(&mockRebalancer{result: &rebalance.Result{
		Execution: &model.RebalanceExecution{ID: "exec-1", Outcome: model.RebalanceOutcomeSuccess},
	}}, "live_client")

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodPost, "/api/loans/rebalance", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"executed"`)
	assert.Contains(t, rr.Body.String(), "exec-1")
}

func TestGetSettingsHandlerDefaults(t *testing.T) {
	handler := GetSettingsHandler(&mockSettingsStore{}, "live_client")

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/loans/settings", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var settings model.RebalanceSettings
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &settings))
	assert.Equal(t, 74.0, settings.TargetLTV)
	assert.Equal(t, "live_client", settings.ClientID)
}

func TestUpdateSettingsHandlerPartialUpdate(t *testing.T) {
	store := &mockSettingsStore{settings: map[string]model.RebalanceSettings{
		"live_client": {ClientID: "live_client", TargetLTV: 74, RebalanceThreshold: 2, MaxBorrowAmount: 10000, MinRepayAmount: 10, MinRebalanceInterval: 5 * time.Minute},
	}}
	handler := UpdateSettingsHandler(store, "live_client")

	req := httptest.NewRequest(http.MethodPut, "/api/loans/settings", strings.NewReader(`{"target_ltv": 70}`))
	rr := httptest.NewRecorder()
	handler(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.NotNil(t, store.saved)

	// only the submitted field changes
	assert.Equal(t, 70.0, store.saved.TargetLTV)
	assert.Equal(t, 2.0, store.saved.RebalanceThreshold)
	assert.Equal(t, 10000.0, store.saved.MaxBorrowAmount)
	assert.Equal(t, "live_client", store.saved.ClientID)
}

func TestUpdateSettingsHandlerRejectsInvalidTarget(t *testing.T) {
	store := &mockSettingsStore{}
	handler := UpdateSettingsHandler(store, "live_client")

	req := httptest.NewRequest(http.MethodPut, "/api/loans/settings", strings.NewReader(`{"target_ltv": 150}`))
	rr := httptest.NewRecorder()
	handler(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Nil(t, store.saved)
}

func TestRebalanceHistoryHandler(t *testing.T) {
	repo := &mockHistoryRepo{executions: []model.RebalanceExecution{
		{ID: "exec-2", Outcome: model.RebalanceOutcomePartial},
		{ID: "exec-1", Outcome: model.RebalanceOutcomeSuccess},
	}}
	handler := RebalanceHistoryHandler(repo)

	rr := httptest.NewRecorder()
	handler(rr, httptest.NewRequest(http.MethodGet, "/api/loans/rebalance/history?limit=2", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 2, repo.lastLimit)
	assert.Contains(t, rr.Body.String(), "exec-2")
}

type mockHistoryRepo struct {
	executions []model.RebalanceExecution
	lastLimit  int
}

func (m *mockHistoryRepo) FindLatestExecutions(_ context.Context, limit int) ([]model.RebalanceExecution, error) {
	m.lastLimit = limit
	return m.executions, nil
}

type mockLoanHistorian struct {
	payload json.RawMessage
	err     error
	kind    string
	days    int
}

func (m *mockLoanHistorian) LoanHistory(_ context.Context, kind string, days int) (json.RawMessage, error) {
	m.kind = kind
	m.days = days
	if m.err != nil {
		return nil, m.err
	}
	return m.payload, nil
}

func getLoanHistory(historian *mockLoanHistorian, path string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Get("/api/loans/history/{kind}", LoanHistoryHandler(historian))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestLoanHistoryHandlerPassesPayloadThrough(t *testing.T) {
	historian := &mockLoanHistorian{payload: json.RawMessage(`{"rows":[{"loanCoin":"USDT"}],"total":1}`)}

	rr := getLoanHistory(historian, "/api/loans/history/borrow?days=7")

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "borrow", historian.kind)
	assert.Equal(t, 7, historian.days)
	assert.JSONEq(t, `{"rows":[{"loanCoin":"USDT"}],"total":1}`, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestLoanHistoryHandlerDefaultWindow(t *testing.T) {
	historian := &mockLoanHistorian{payload: json.RawMessage(`{"rows":[],"total":0}`)}

	rr := getLoanHistory(historian, "/api/loans/history/repay")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 30, historian.days)
}

func TestLoanHistoryHandlerUnknownKind(t *testing.T) {
	historian := &mockLoanHistorian{err: connectors.ErrUnknownLoanHistoryKind}

	rr := getLoanHistory(historian, "/api/loans/history/vip")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLoanHistoryHandlerInvalidDays(t *testing.T) {
	historian := &mockLoanHistorian{}

	rr := getLoanHistory(historian, "/api/loans/history/borrow?days=-1")

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, historian.kind)
}

func TestLoanHistoryHandlerExchangeFailure(t *testing.T) {
	historian := &mockLoanHistorian{err: &connectors.ExchangeError{HTTPStatus: 503, Message: "upstream unavailable"}}

	rr := getLoanHistory(historian, "/api/loans/history/income")

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
