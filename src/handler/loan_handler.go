package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"loankeeper/src/connectors"
	"loankeeper/src/ltv"
	"loankeeper/src/model"
	"loankeeper/src/rebalance"
	"loankeeper/src/repository"
)

type loanSnapshotter interface {
	LoanSnapshot(ctx context.Context) (*ltv.Snapshot, error)
}

type settingsStore interface {
	Settings(ctx context.Context, clientID string) (model.RebalanceSettings, error)
	SaveSettings(ctx context.Context, settings *model.RebalanceSettings) error
}

type rebalancer interface {
	Execute(ctx context.Context, clientID string) (*rebalance.Result, error)
}

// LTVStatusHandler reports the current loan-to-value status: derived LTV,
// health band, and recommended actions.
func LTVStatusHandler(exchange loanSnapshotter, settings settingsStore, clientID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		current, err := settings.Settings(ctx, clientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load settings")
			return
		}

		snap, err := exchange.LoanSnapshot(ctx)
		if err != nil {
			logger.WithError(err).Error("failed to fetch loan snapshot")
			writeError(w, http.StatusBadGateway, "failed to fetch loan account")
			return
		}

		writeJSON(w, http.StatusOK, ltv.Evaluate(snap, current))
	}
}

// RebalanceHandler triggers one rebalance cycle. Concurrent triggers are
// rejected with 409, triggers inside the cooldown window with 429.
func RebalanceHandler(executor rebalancer, clientID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := executor.Execute(r.Context(), clientID)
		if err != nil {
			if errors.Is(err, rebalance.ErrAlreadyExecuting) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}

			var cooldown *rebalance.CooldownError
			if errors.As(err, &cooldown) {
				writeError(w, http.StatusTooManyRequests, cooldown.Error())
				return
			}

			logger.WithError(err).Error("rebalance failed")
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if result.Execution == nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"status": "skipped",
				"reason": result.Reason,
				"ltv":    result.Status,
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "executed",
			"execution": result.Execution,
			"ltv":       result.Status,
		})
	}
}

// RebalanceHistoryHandler lists the latest recorded executions.
func RebalanceHistoryHandler(repo interface {
	FindLatestExecutions(ctx context.Context, limit int) ([]model.RebalanceExecution, error)
}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		executions, err := repo.FindLatestExecutions(r.Context(), parseLimit(r, 20))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load rebalance history")
			return
		}
		writeJSON(w, http.StatusOK, executions)
	}
}

type loanHistorian interface {
	LoanHistory(ctx context.Context, kind string, days int) (json.RawMessage, error)
}

// LoanHistoryHandler passes one of the exchange's crypto-loan history feeds
// through untouched: borrow, repay, ltv-adjustment, or income. The optional
// days query bounds the trailing window, 30 days when omitted.
func LoanHistoryHandler(exchange loanHistorian) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 30
		if raw := r.URL.Query().Get("days"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, "days must be a positive integer")
				return
			}
			days = parsed
		}

		payload, err := exchange.LoanHistory(r.Context(), chi.URLParam(r, "kind"), days)
		if err != nil {
			if errors.Is(err, connectors.ErrUnknownLoanHistoryKind) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			logger.WithError(err).Error("failed to fetch loan history")
			writeError(w, http.StatusBadGateway, "failed to fetch loan history")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(payload); err != nil {
			logger.WithError(err).Error("failed to write loan history response")
		}
	}
}

// GetSettingsHandler returns the effective rebalance settings for the client.
func GetSettingsHandler(settings settingsStore, clientID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		current, err := settings.Settings(r.Context(), clientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load settings")
			return
		}
		writeJSON(w, http.StatusOK, current)
	}
}

// UpdateSettingsHandler validates and stores new rebalance settings. Partial
// payloads keep the current values for the omitted fields.
func UpdateSettingsHandler(settings settingsStore, clientID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		current, err := settings.Settings(ctx, clientID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load settings")
			return
		}

		// decode over the current values so omitted fields survive
		if err := json.NewDecoder(r.Body).Decode(&current); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings payload")
			return
		}
		current.ClientID = clientID

		if err := settings.SaveSettings(ctx, &current); err != nil {
			if isValidationError(err) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to save settings")
			return
		}

		writeJSON(w, http.StatusOK, current)
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, model.ErrInvalidTargetLTV) ||
		errors.Is(err, model.ErrInvalidThreshold) ||
		errors.Is(err, model.ErrInvalidMaxBorrow) ||
		errors.Is(err, model.ErrInvalidMinRepay) ||
		errors.Is(err, model.ErrInvalidInterval)
}

// DefaultLoanHandlers wires the loan endpoints to the production repository.
func DefaultLoanHandlers(exchange loanSnapshotter, executor rebalancer, clientID string) (status, trigger, history, get, update http.HandlerFunc) {
	repo := repository.NewRebalanceRepository()
	return LTVStatusHandler(exchange, repo, clientID),
		RebalanceHandler(executor, clientID),
		RebalanceHistoryHandler(repo),
		GetSettingsHandler(repo, clientID),
		UpdateSettingsHandler(repo, clientID)
}
