package quote

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one simulated intraday price. Points are append-only and are
// consumed by the daily consolidation into candles.
type PricePoint struct {
	StockID int64
	Time    time.Time
	Price   decimal.Decimal
}

// Candle is the OHLCV summary of one stock for one calendar date. It is
// written exactly once, its source points are deleted in the same transaction.
type Candle struct {
	StockID int64
	Date    time.Time
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  int32
}
