package ledger

import (
	"gorm.io/datatypes"
)

type Status string

const (
	// StatusPending means an entry order was sent but not yet verified.
	StatusPending Status = "pending"
	// StatusOpen means the entry order is confirmed executed.
	StatusOpen Status = "open"
	// StatusClosed means the position was squared off (or abandoned).
	StatusClosed Status = "closed"
)

// Exit reasons recorded on closed positions.
const (
	ExitTarget      = "TARGET"
	ExitStopLoss    = "STOP_LOSS_LEVEL"
	ExitEmergency   = "EMERGENCY"
	ExitSessionEnd  = "SESSION_END"
	ExitReconciled  = "RECONCILED"
	ExitEntryFailed = "ENTRY_FAILED"
)

// Position is one option trade from entry order to square-off.
type Position struct {
	ID  int64  `gorm:"column:id;primaryKey"`
	Day string `gorm:"column:day;index"`

	Direction  string  `gorm:"column:direction"`
	Pattern    string  `gorm:"column:pattern"`
	LevelName  string  `gorm:"column:level_name"`
	LevelValue float64 `gorm:"column:level_value"`

	Strike   int    `gorm:"column:strike"`
	Right    string `gorm:"column:right"`
	Quantity int    `gorm:"column:quantity"`

	EntryOrderID string  `gorm:"column:entry_order_id;index"`
	EntryPremium float64 `gorm:"column:entry_premium"`
	ExitOrderID  string  `gorm:"column:exit_order_id"`
	ExitPremium  float64 `gorm:"column:exit_premium"`

	Status        Status  `gorm:"column:status;index"`
	ExitReason    string  `gorm:"column:exit_reason"`
	PnL           float64 `gorm:"column:pnl"`
	AdverseStreak int     `gorm:"column:adverse_streak"`

	SignalJSON datatypes.JSON `gorm:"column:signal_json;type:TEXT"`

	CreatedAtUnix int64 `gorm:"column:created_at"`
	UpdatedAtUnix int64 `gorm:"column:updated_at"`
}

func (Position) TableName() string { return "positions" }

// Live reports whether the position still needs managing.
func (p *Position) Live() bool {
	return p.Status == StatusPending || p.Status == StatusOpen
}
