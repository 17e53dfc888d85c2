package model

import "time"

const (
	PositionSideLong  = "long"
	PositionSideShort = "short"

	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// Position is a position the system itself opened via a webhook signal and is
// monitoring for a later close signal. Distinct from positions visible on the
// exchange account.
type Position struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	StrategyID uint       `gorm:"index" json:"strategy_id"`
	Symbol     string     `gorm:"size:50;not null;index" json:"symbol"`
	Side       string     `gorm:"size:10;not null" json:"side"`
	Quantity   float64    `gorm:"not null" json:"quantity"`
	EntryPrice float64    `gorm:"not null" json:"entry_price"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	Status     string     `gorm:"size:50;not null;default:open" json:"status"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Position) TableName() string {
	return "tracked_positions"
}

// AgeMinutes is derived from OpenedAt at query time, never stored.
func (p *Position) AgeMinutes(now time.Time) int {
	return int(now.Sub(p.OpenedAt).Minutes())
}
