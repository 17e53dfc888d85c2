package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"loankeeper/src/database"
	"loankeeper/src/model"
)

// ActivityRepository handles the append-only activity log. Records are never
// updated or deleted.
type ActivityRepository struct {
	db *gorm.DB
}

// NewActivityRepository creates a new repository instance using the main read/write database.
func NewActivityRepository() *ActivityRepository {
	logger.WithField("component", "ActivityRepository").
		Info("Creating new ActivityRepository with MainDB")

	return &ActivityRepository{
		db: database.MainDB,
	}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *ActivityRepository) WithDB(db *gorm.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append inserts one activity record.
func (r *ActivityRepository) Append(ctx context.Context, record *model.ActivityRecord) error {
	logger.WithFields(map[string]interface{}{
		"repo":    "ActivityRepository",
		"op":      "Append",
		"source":  record.Source,
		"action":  record.Action,
		"outcome": record.Outcome,
	}).Debug("Appending activity record")

	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		logger.WithError(err).Error("Failed to append activity record")
		return err
	}
	return nil
}

// FindLatest returns the most recent activity, newest first.
func (r *ActivityRepository) FindLatest(ctx context.Context, limit int) ([]model.ActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []model.ActivityRecord

	err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		logger.WithError(err).Error("Failed to fetch activity records")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "ActivityRepository",
		"op":          "FindLatest",
		"limit":       limit,
		"rows_return": len(records),
	}).Debug("Activity records fetched")

	return records, nil
}

// FindBySource returns the most recent activity from one source, newest first.
func (r *ActivityRepository) FindBySource(ctx context.Context, source string, limit int) ([]model.ActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var records []model.ActivityRecord

	err := r.db.WithContext(ctx).
		Where("source = ?", source).
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		logger.WithError(err).WithField("source", source).
			Error("Failed to fetch activity records by source")
		return nil, err
	}
	return records, nil
}

// Count returns the total number of activity records.
func (r *ActivityRepository) Count(ctx context.Context) (int64, error) {
	var count int64

	err := r.db.WithContext(ctx).
		Model(&model.ActivityRecord{}).
		Count(&count).Error
	if err != nil {
		logger.WithError(err).Error("Failed to count activity records")
		return 0, err
	}
	return count, nil
}
