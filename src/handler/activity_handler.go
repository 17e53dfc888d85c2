package handler

import (
	"context"
	"net/http"
	"time"

	"loankeeper/src/model"
	"loankeeper/src/repository"
)

type activityLister interface {
	FindLatest(ctx context.Context, limit int) ([]model.ActivityRecord, error)
	FindBySource(ctx context.Context, source string, limit int) ([]model.ActivityRecord, error)
}

type openPositionLister interface {
	OpenPositions() []model.Position
}

// ActivityHandler lists the latest activity records, optionally filtered by
// source (webhook or rebalance).
func ActivityHandler(activity activityLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 50)

		var (
			records []model.ActivityRecord
			err     error
		)
		if source := r.URL.Query().Get("source"); source != "" {
			records, err = activity.FindBySource(r.Context(), source, limit)
		} else {
			records, err = activity.FindLatest(r.Context(), limit)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load activity")
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":   len(records),
			"records": records,
		})
	}
}

// trackedPosition is the API view of an open position with its derived age.
type trackedPosition struct {
	model.Position
	AgeMinutes int `json:"age_minutes"`
}

// TrackedPositionsHandler lists the open positions straight from the
// tracker's in-memory set, with the age computed at request time.
func TrackedPositionsHandler(positions openPositionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		open := positions.OpenPositions()

		out := make([]trackedPosition, 0, len(open))
		for _, p := range open {
			out = append(out, trackedPosition{Position: p, AgeMinutes: p.AgeMinutes(now)})
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":     len(out),
			"positions": out,
		})
	}
}

// DefaultActivityHandler wires the handler to the production repository.
func DefaultActivityHandler() http.HandlerFunc {
	return ActivityHandler(repository.NewActivityRepository())
}
