package trade

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

type Condition string

const (
	// Current executes at the latest market price. Fall and Rise are
	// rejected at intake, they exist only so stored values stay readable.
	Current Condition = "current"
	Fall    Condition = "fall"
	Rise    Condition = "rise"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Trade is one buy or sell request. A completed trade always carries
// ProcessedAt, ExecutedPrice and TotalAmount, a pending one never does.
type Trade struct {
	ID             int64
	AccountID      int64
	StockID        int64
	Side           Side
	Condition      Condition
	Quantity       int32
	RequestedPrice decimal.NullDecimal
	Status         Status
	RegisteredAt   time.Time
	ProcessedAt    sql.NullTime
	ExecutedPrice  decimal.NullDecimal
	TotalAmount    decimal.NullDecimal
}

type Account struct {
	ID      int64
	Balance decimal.Decimal
}
