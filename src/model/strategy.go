package model

import "time"

// Strategy is a named webhook target. Each strategy gets its own webhook URL
// and its signals are tracked independently.
type Strategy struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Description  string    `gorm:"size:512" json:"description"`
	Active       bool      `gorm:"not null;default:true" json:"active"`
	TotalSignals uint      `gorm:"not null;default:0" json:"total_signals"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Strategy) TableName() string {
	return "strategies"
}
