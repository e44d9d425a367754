package usecase

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	quotePkg "github.com/KeynihAV/tradecore/pkg/exchange/quote"
	"github.com/KeynihAV/tradecore/pkg/logging"
	"go.uber.org/zap"
)

type QuotesRepo interface {
	AllPrices(tx *sql.Tx) ([]*quotePkg.PricePoint, error)
	AddCandle(candle *quotePkg.Candle, tx *sql.Tx) error
	DeletePrices(stockID int64, day time.Time, tx *sql.Tx) error
}

type VolumesRepo interface {
	CompletedVolume(stockID int64, day time.Time, tx *sql.Tx) (int32, error)
}

// Consolidator collapses the day's price points into one candle per stock and
// date, shortly after market close. Each run happens inside one serializable
// transaction, so a failure mid way leaves every point in place and writes no
// candle.
type Consolidator struct {
	DB         *sql.DB
	Quotes     QuotesRepo
	Volumes    VolumesRepo
	Markets    MarketsRepo
	Market     string
	CloseDelay time.Duration
	Logger     *logging.Logger
}

// Run computes each run's target instant from the wall clock instead of
// waiting a fixed day from the previous completion, so slow runs do not
// accumulate drift.
func (hc *Consolidator) Run(ctx context.Context) {
	for {
		mkt, err := hc.Markets.MarketByName(hc.Market)
		if err != nil {
			hc.Logger.Zap.Error("resolve market",
				zap.String("logger", "historyConsolidator"),
				zap.String("market", hc.Market),
				zap.Error(err),
			)
			return
		}

		next, err := nextRunAt(time.Now().UTC(), mkt.ClosesAt, hc.CloseDelay)
		if err != nil {
			hc.Logger.Zap.Error("compute next run",
				zap.String("logger", "historyConsolidator"),
				zap.Error(err),
			)
			return
		}

		hc.Logger.Zap.Info("waiting to perform stock history maintenance",
			zap.String("logger", "historyConsolidator"),
			zap.Time("until", next),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if err := hc.Consolidate(ctx); err != nil {
			hc.Logger.Zap.Error("stock history maintenance failed",
				zap.String("logger", "historyConsolidator"),
				zap.Error(err),
			)
		}
	}
}

func (hc *Consolidator) Consolidate(ctx context.Context) error {
	tx, err := hc.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}

	err = hc.consolidate(tx)
	if err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

type candleKey struct {
	stockID int64
	day     time.Time
}

func (hc *Consolidator) consolidate(tx *sql.Tx) error {
	points, err := hc.Quotes.AllPrices(tx)
	if err != nil {
		return err
	}

	groups := make(map[candleKey][]*quotePkg.PricePoint)
	for _, point := range points {
		key := candleKey{stockID: point.StockID, day: dayOf(point.Time)}
		groups[key] = append(groups[key], point)
	}

	for key, group := range groups {
		volume, err := hc.Volumes.CompletedVolume(key.stockID, key.day, tx)
		if err != nil {
			return err
		}

		if err := hc.Quotes.AddCandle(buildCandle(key.stockID, key.day, group, volume), tx); err != nil {
			return err
		}
		if err := hc.Quotes.DeletePrices(key.stockID, key.day, tx); err != nil {
			return err
		}
	}

	return nil
}

// buildCandle sorts the group by timestamp before taking open and close, so
// the result does not depend on storage order.
func buildCandle(stockID int64, day time.Time, points []*quotePkg.PricePoint, volume int32) *quotePkg.Candle {
	sorted := make([]*quotePkg.PricePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	candle := &quotePkg.Candle{
		StockID: stockID,
		Date:    day,
		Open:    sorted[0].Price,
		High:    sorted[0].Price,
		Low:     sorted[0].Price,
		Close:   sorted[len(sorted)-1].Price,
		Volume:  volume,
	}
	for _, point := range sorted[1:] {
		if point.Price.GreaterThan(candle.High) {
			candle.High = point.Price
		}
		if point.Price.LessThan(candle.Low) {
			candle.Low = point.Price
		}
	}

	return candle
}

func dayOf(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
}

// nextRunAt is the next market close plus delay: today if that instant is
// still ahead, otherwise tomorrow.
func nextRunAt(now time.Time, closesAt string, delay time.Duration) (time.Time, error) {
	closeClock, err := time.Parse("15:04:05", closesAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed market close time %v: %v", closesAt, err)
	}

	next := dayOf(now).
		Add(time.Duration(closeClock.Hour())*time.Hour +
			time.Duration(closeClock.Minute())*time.Minute +
			time.Duration(closeClock.Second())*time.Second).
		Add(delay)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}

	return next, nil
}
