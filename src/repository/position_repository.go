package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"loankeeper/src/database"
	"loankeeper/src/model"
)

// PositionRepository handles read/write operations for tracked positions.
// It doubles as the tracker's durable store.
type PositionRepository struct {
	db *gorm.DB
}

// NewPositionRepository creates a new repository instance using the main read/write database.
func NewPositionRepository() *PositionRepository {
	logger.WithField("component", "PositionRepository").
		Info("Creating new PositionRepository with MainDB")

	return &PositionRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// SaveOpen inserts a freshly opened position. The given position is updated
// with the generated ID and timestamps.
func (r *PositionRepository) SaveOpen(ctx context.Context, position *model.Position) error {
	logger.WithFields(map[string]interface{}{
		"repo":   "PositionRepository",
		"op":     "SaveOpen",
		"symbol": position.Symbol,
		"side":   position.Side,
	}).Debug("Persisting opened position")

	err := r.db.WithContext(ctx).Create(position).Error
	if err != nil {
		logger.WithError(err).Error("Failed to persist opened position")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "SaveOpen",
		"position_id": position.ID,
	}).Info("Position persisted")

	return nil
}

// SaveClose persists the close transition: status, exit price, and close time.
func (r *PositionRepository) SaveClose(ctx context.Context, position *model.Position) error {
	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "SaveClose",
		"position_id": position.ID,
		"symbol":      position.Symbol,
	}).Debug("Persisting closed position")

	err := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("id = ?", position.ID).
		Updates(map[string]interface{}{
			"status":     position.Status,
			"exit_price": position.ExitPrice,
			"closed_at":  position.ClosedAt,
		}).Error
	if err != nil {
		logger.WithError(err).WithField("position_id", position.ID).
			Error("Failed to persist closed position")
		return err
	}
	return nil
}

// FindOpen returns every open position, oldest first. Used to warm the
// tracker at startup.
func (r *PositionRepository) FindOpen(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position

	err := r.db.WithContext(ctx).
		Where("status = ?", model.PositionStatusOpen).
		Order("opened_at ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch open positions")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "PositionRepository",
		"op":          "FindOpen",
		"rows_return": len(positions),
	}).Debug("Open positions fetched")

	return positions, nil
}

// FindByID fetches a single position by its primary ID.
// Returns (nil, nil) if the position is not found.
func (r *PositionRepository) FindByID(ctx context.Context, id uint) (*model.Position, error) {
	var position model.Position

	err := r.db.WithContext(ctx).First(&position, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithError(err).WithField("id", id).Error("Failed to fetch position by ID")
		return nil, err
	}
	return &position, nil
}

// FindLatest returns the most recent positions, open or closed, newest first.
func (r *PositionRepository) FindLatest(ctx context.Context, limit int) ([]model.Position, error) {
	if limit <= 0 {
		limit = 50
	}

	var positions []model.Position

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&positions).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch latest positions")
		return nil, err
	}
	return positions, nil
}
