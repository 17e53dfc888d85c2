package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"loankeeper/src/connectors"
	"loankeeper/src/model"
	"loankeeper/src/repository"
	"loankeeper/src/signal"
	"loankeeper/src/tracker"
)

const maxSignalBytes = 4096

type strategyStore interface {
	FindByID(ctx context.Context, id uint) (*model.Strategy, error)
	IncrementSignals(ctx context.Context, id uint) error
}

type positionTracker interface {
	Open(ctx context.Context, strategyID uint, inst *signal.Instruction, entryPrice float64, execute tracker.ExecuteFunc) (*model.Position, error)
	Close(ctx context.Context, inst *signal.Instruction, exitPrice float64, execute tracker.ExecuteFunc) (*model.Position, error)
}

type orderPlacer interface {
	PlaceMarketOrder(ctx context.Context, symbol, side string, quantity decimal.Decimal, reduceOnly bool) (*connectors.OrderResult, error)
	MarketPrice(ctx context.Context, symbol string) decimal.Decimal
}

type activityAppender interface {
	Append(ctx context.Context, record *model.ActivityRecord) error
}

// WebhookHandler receives free-text trade alerts, parses them into
// instructions, executes them against the exchange, and keeps the tracker
// and activity log in sync. Every request leaves an activity record, failed
// ones included.
func WebhookHandler(strategies strategyStore, positions positionTracker, exchange orderPlacer, activity activityAppender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		strategyID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid strategy id")
			return
		}
		id := uint(strategyID)

		body, err := io.ReadAll(io.LimitReader(r.Body, maxSignalBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		raw := string(body)

		record := &model.ActivityRecord{
			Source:     model.ActivitySourceWebhook,
			StrategyID: &id,
			RawInput:   raw,
		}

		strategy, err := strategies.FindByID(ctx, id)
		if err != nil {
			appendFailure(ctx, activity, record, "failed to load strategy")
			writeError(w, http.StatusInternalServerError, "failed to load strategy")
			return
		}
		if strategy == nil {
			appendFailure(ctx, activity, record, "strategy not found")
			writeError(w, http.StatusNotFound, "strategy not found")
			return
		}
		if !strategy.Active {
			appendFailure(ctx, activity, record, "strategy is disabled")
			writeError(w, http.StatusConflict, "strategy is disabled")
			return
		}

		inst, err := signal.Parse(raw)
		if err != nil {
			appendFailure(ctx, activity, record, err.Error())
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
				"raw":   raw,
			})
			return
		}

		record.Symbol = inst.Symbol
		record.Action = string(inst.Action)

		if err := strategies.IncrementSignals(ctx, id); err != nil {
			logger.WithError(err).Warn("Failed to increment signal counter")
		}

		price := exchange.MarketPrice(ctx, inst.Symbol)
		priceF, _ := price.Float64()
		record.Price = priceF

		position, execErr := executeInstruction(ctx, positions, exchange, id, inst, priceF)
		if execErr != nil {
			appendFailure(ctx, activity, record, execErr.Error())

			var conflict *tracker.StateConflictError
			if errors.As(execErr, &conflict) {
				writeError(w, http.StatusConflict, conflict.Error())
				return
			}
			var exchangeErr *connectors.ExchangeError
			if errors.As(execErr, &exchangeErr) {
				writeError(w, http.StatusBadGateway, exchangeErr.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, execErr.Error())
			return
		}

		record.Quantity = position.Quantity
		record.Outcome = model.ActivityOutcomeSuccess
		if err := activity.Append(ctx, record); err != nil {
			logger.WithError(err).Error("Failed to append activity record")
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"instruction": inst.Render(),
			"position":    position,
		})
	}
}

// executeInstruction places the market order inside the tracker transition.
// Conflicts (duplicate open, unmatched close) are rejected before any money
// moves, and a rejected order commits nothing: the tracked set only ever
// reflects orders the venue accepted.
func executeInstruction(ctx context.Context, positions positionTracker, exchange orderPlacer, strategyID uint, inst *signal.Instruction, price float64) (*model.Position, error) {
	switch inst.Action {
	case signal.ActionOpenLong, signal.ActionOpenShort:
		side := "BUY"
		if inst.Action == signal.ActionOpenShort {
			side = "SELL"
		}
		return positions.Open(ctx, strategyID, inst, price, func(ctx context.Context, _ *model.Position) error {
			_, err := exchange.PlaceMarketOrder(ctx, inst.Symbol, side, inst.Quantity, false)
			return err
		})

	case signal.ActionClose:
		// close with an opposite-side reduce-only order over the full size
		return positions.Close(ctx, inst, price, func(ctx context.Context, position *model.Position) error {
			side := "SELL"
			if position.Side == model.PositionSideShort {
				side = "BUY"
			}
			_, err := exchange.PlaceMarketOrder(ctx, position.Symbol, side, decimal.NewFromFloat(position.Quantity), true)
			return err
		})

	default:
		return nil, errors.New("unsupported instruction")
	}
}

func appendFailure(ctx context.Context, activity activityAppender, record *model.ActivityRecord, detail string) {
	record.Outcome = model.ActivityOutcomeFailure
	record.ErrorDetail = detail
	if err := activity.Append(ctx, record); err != nil {
		logger.WithError(err).Error("Failed to append failure activity record")
	}
}

// DefaultWebhookHandler wires the handler to the production repositories.
func DefaultWebhookHandler(positions positionTracker, exchange orderPlacer) http.HandlerFunc {
	return WebhookHandler(
		repository.NewStrategyRepository(),
		positions,
		exchange,
		repository.NewActivityRepository(),
	)
}
