package market

import (
	"errors"
	"time"
)

var (
	ErrMarketNotFound = errors.New("market not found")
	ErrStockNotFound  = errors.New("stock not found")
)

const clockLayout = "15:04:05"

// Market opens every day, there is no calendar or holiday model.
type Market struct {
	ID       int64
	Name     string
	OpensAt  string
	ClosesAt string
}

type Stock struct {
	ID       int64
	MarketID int64
	Name     string
	Ticker   string
}

// IsOpenAt reports whether the UTC time of day of t falls inside the
// [OpensAt, ClosesAt] window. Malformed window bounds count as closed.
func (m *Market) IsOpenAt(t time.Time) bool {
	opens, err := time.Parse(clockLayout, m.OpensAt)
	if err != nil {
		return false
	}
	closes, err := time.Parse(clockLayout, m.ClosesAt)
	if err != nil {
		return false
	}

	current := secondOfDay(t.UTC())
	return current >= secondOfDay(opens) && current <= secondOfDay(closes)
}

func secondOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
