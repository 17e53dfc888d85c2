package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"loankeeper/src/model"
	"loankeeper/src/repository"
)

type strategyCRUD interface {
	Create(ctx context.Context, strategy *model.Strategy) error
	FindByID(ctx context.Context, id uint) (*model.Strategy, error)
	FindAll(ctx context.Context) ([]model.Strategy, error)
	Update(ctx context.Context, strategy *model.Strategy) error
	Delete(ctx context.Context, id uint) error
}

type strategyPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Active      *bool  `json:"active"`
}

// ListStrategiesHandler returns every registered strategy.
func ListStrategiesHandler(repo strategyCRUD) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		strategies, err := repo.FindAll(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list strategies")
			return
		}
		writeJSON(w, http.StatusOK, strategies)
	}
}

// CreateStrategyHandler registers a new strategy, active by default.
func CreateStrategyHandler(repo strategyCRUD) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload strategyPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid strategy payload")
			return
		}
		if payload.Name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}

		strategy := &model.Strategy{
			Name:        payload.Name,
			Description: payload.Description,
			Active:      true,
		}
		if payload.Active != nil {
			strategy.Active = *payload.Active
		}

		if err := repo.Create(r.Context(), strategy); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create strategy")
			return
		}
		writeJSON(w, http.StatusCreated, strategy)
	}
}

// GetStrategyHandler fetches one strategy by ID.
func GetStrategyHandler(repo strategyCRUD) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := strategyID(w, r)
		if !ok {
			return
		}

		strategy, err := repo.FindByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load strategy")
			return
		}
		if strategy == nil {
			writeError(w, http.StatusNotFound, "strategy not found")
			return
		}
		writeJSON(w, http.StatusOK, strategy)
	}
}

// UpdateStrategyHandler applies a partial update to a strategy.
func UpdateStrategyHandler(repo strategyCRUD) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := strategyID(w, r)
		if !ok {
			return
		}

		strategy, err := repo.FindByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load strategy")
			return
		}
		if strategy == nil {
			writeError(w, http.StatusNotFound, "strategy not found")
			return
		}

		var payload strategyPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid strategy payload")
			return
		}

		if payload.Name != "" {
			strategy.Name = payload.Name
		}
		if payload.Description != "" {
			strategy.Description = payload.Description
		}
		if payload.Active != nil {
			strategy.Active = *payload.Active
		}

		if err := repo.Update(r.Context(), strategy); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to update strategy")
			return
		}
		writeJSON(w, http.StatusOK, strategy)
	}
}

// DeleteStrategyHandler removes a strategy.
func DeleteStrategyHandler(repo strategyCRUD) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := strategyID(w, r)
		if !ok {
			return
		}

		strategy, err := repo.FindByID(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load strategy")
			return
		}
		if strategy == nil {
			writeError(w, http.StatusNotFound, "strategy not found")
			return
		}

		if err := repo.Delete(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to delete strategy")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func strategyID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid strategy id")
		return 0, false
	}
	return uint(id), true
}

// DefaultStrategyHandlers wires the CRUD handlers to the production repository.
func DefaultStrategyHandlers() (list, create, get, update, remove http.HandlerFunc) {
	repo := repository.NewStrategyRepository()
	return ListStrategiesHandler(repo),
		CreateStrategyHandler(repo),
		GetStrategyHandler(repo),
		UpdateStrategyHandler(repo),
		DeleteStrategyHandler(repo)
}
