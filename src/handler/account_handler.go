package handler

import (
	"context"
	"net/http"

	logger "github.com/sirupsen/logrus"

	"loankeeper/src/connectors"
)

type accountReader interface {
	SpotBalances(ctx context.Context) ([]connectors.SpotBalance, error)
	FuturesPositions(ctx context.Context) ([]connectors.FuturesPosition, error)
	EarnPositions(ctx context.Context) ([]connectors.EarnPosition, error)
}

// BalanceHandler returns the spot balances valued in the quote currency.
func BalanceHandler(exchange accountReader, valuation *connectors.ValuationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		balances, err := exchange.SpotBalances(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to fetch spot balances")
			writeError(w, http.StatusBadGateway, "failed to fetch balances")
			return
		}

		values, total := valuation.ValueBalances(balances)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"balances":    values,
			"total_value": total,
		})
	}
}

// PositionsHandler returns the exchange's open futures positions, as opposed
// to the tracker's own view served by TrackedPositionsHandler.
func PositionsHandler(exchange accountReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		positions, err := exchange.FuturesPositions(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to fetch futures positions")
			writeError(w, http.StatusBadGateway, "failed to fetch positions")
			return
		}
		writeJSON(w, http.StatusOK, positions)
	}
}

// EarnHandler returns the flexible earn positions.
func EarnHandler(exchange accountReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		positions, err := exchange.EarnPositions(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to fetch earn positions")
			writeError(w, http.StatusBadGateway, "failed to fetch earn positions")
			return
		}
		writeJSON(w, http.StatusOK, positions)
	}
}
