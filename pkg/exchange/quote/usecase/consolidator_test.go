package usecase

import (
	"context"
	"database/sql"
	"testing"
	"time"

	quotePkg "github.com/KeynihAV/tradecore/pkg/exchange/quote"
	"github.com/KeynihAV/tradecore/pkg/logging"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v2"
)

type fakeQuotes struct {
	points  []*quotePkg.PricePoint
	candles []*quotePkg.Candle
	deleted []candleKey
}

func (f *fakeQuotes) AllPrices(tx *sql.Tx) ([]*quotePkg.PricePoint, error) {
	return f.points, nil
}

func (f *fakeQuotes) AddCandle(candle *quotePkg.Candle, tx *sql.Tx) error {
	f.candles = append(f.candles, candle)
	return nil
}

func (f *fakeQuotes) DeletePrices(stockID int64, day time.Time, tx *sql.Tx) error {
	f.deleted = append(f.deleted, candleKey{stockID: stockID, day: day})
	f.points = nil
	return nil
}

type fakeVolumes struct {
	volumes map[int64]int32
}

func (f *fakeVolumes) CompletedVolume(stockID int64, day time.Time, tx *sql.Tx) (int32, error) {
	return f.volumes[stockID], nil
}

func point(stockID int64, at time.Time, price int64) *quotePkg.PricePoint {
	return &quotePkg.PricePoint{StockID: stockID, Time: at, Price: decimal.NewFromInt(price)}
}

func TestBuildCandle(t *testing.T) {
	day := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

	// deliberately out of order: open and close must come from the
	// chronological first and last points, not the storage order
	points := []*quotePkg.PricePoint{
		point(1, day.Add(12*time.Hour), 15),
		point(1, day.Add(9*time.Hour), 10),
		point(1, day.Add(16*time.Hour), 12),
		point(1, day.Add(14*time.Hour), 8),
	}

	candle := buildCandle(1, day, points, 42)

	assert.Equal(t, int64(1), candle.StockID)
	assert.True(t, candle.Open.Equal(decimal.NewFromInt(10)), "open = %v, want 10", candle.Open)
	assert.True(t, candle.Close.Equal(decimal.NewFromInt(12)), "close = %v, want 12", candle.Close)
	assert.True(t, candle.High.Equal(decimal.NewFromInt(15)), "high = %v, want 15", candle.High)
	assert.True(t, candle.Low.Equal(decimal.NewFromInt(8)), "low = %v, want 8", candle.Low)
	assert.Equal(t, int32(42), candle.Volume)
}

func TestBuildCandle_SinglePoint(t *testing.T) {
	day := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	candle := buildCandle(1, day, []*quotePkg.PricePoint{point(1, day.Add(time.Hour), 10)}, 0)

	assert.True(t, candle.Open.Equal(decimal.NewFromInt(10)))
	assert.True(t, candle.Close.Equal(decimal.NewFromInt(10)))
	assert.True(t, candle.High.Equal(decimal.NewFromInt(10)))
	assert.True(t, candle.Low.Equal(decimal.NewFromInt(10)))
}

func TestNextRunAt(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		closesAt string
		delay    time.Duration
		want     time.Time
		wantErr  bool
	}{
		{name: "close still ahead",
			now:      time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC),
			closesAt: "16:00:00",
			delay:    30 * time.Minute,
			want:     time.Date(2023, 3, 1, 16, 30, 0, 0, time.UTC),
		},
		{name: "close already passed",
			now:      time.Date(2023, 3, 1, 17, 0, 0, 0, time.UTC),
			closesAt: "16:00:00",
			want:     time.Date(2023, 3, 2, 16, 0, 0, 0, time.UTC),
		},
		{name: "exactly at target moves to tomorrow",
			now:      time.Date(2023, 3, 1, 16, 0, 0, 0, time.UTC),
			closesAt: "16:00:00",
			want:     time.Date(2023, 3, 2, 16, 0, 0, 0, time.UTC),
		},
		{name: "malformed close time",
			now:      time.Date(2023, 3, 1, 16, 0, 0, 0, time.UTC),
			closesAt: "sundown",
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextRunAt(tt.now, tt.closesAt, tt.delay)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "nextRunAt = %v, want %v", got, tt.want)
		})
	}
}

func TestConsolidate(t *testing.T) {
	day1 := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2023, 3, 2, 0, 0, 0, 0, time.UTC)

	quotes := &fakeQuotes{
		points: []*quotePkg.PricePoint{
			point(1, day1.Add(10*time.Hour), 10),
			point(1, day1.Add(15*time.Hour), 12),
			point(1, day2.Add(10*time.Hour), 11),
			point(2, day1.Add(10*time.Hour), 100),
		},
	}
	volumes := &fakeVolumes{volumes: map[int64]int32{1: 7, 2: 3}}

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	consolidator := &Consolidator{
		DB:      db,
		Quotes:  quotes,
		Volumes: volumes,
		Market:  "TSE",
		Logger:  &logging.Logger{Zap: zap.NewNop()},
	}

	mock.ExpectBegin()
	mock.ExpectCommit()

	err = consolidator.Consolidate(context.Background())

	require.NoError(t, err)
	require.Len(t, quotes.candles, 3, "one candle per (stock, date) group")
	require.Len(t, quotes.deleted, 3, "consumed points are purged per group")

	byKey := map[candleKey]*quotePkg.Candle{}
	for _, candle := range quotes.candles {
		byKey[candleKey{stockID: candle.StockID, day: candle.Date}] = candle
	}

	first := byKey[candleKey{stockID: 1, day: day1}]
	require.NotNil(t, first)
	assert.True(t, first.Open.Equal(decimal.NewFromInt(10)))
	assert.True(t, first.Close.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, int32(7), first.Volume)

	second := byKey[candleKey{stockID: 1, day: day2}]
	require.NotNil(t, second)
	assert.True(t, second.Open.Equal(decimal.NewFromInt(11)))

	other := byKey[candleKey{stockID: 2, day: day1}]
	require.NotNil(t, other)
	assert.Equal(t, int32(3), other.Volume)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConsolidate_NoPointsIsNoOp(t *testing.T) {
	quotes := &fakeQuotes{}
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	consolidator := &Consolidator{
		DB:      db,
		Quotes:  quotes,
		Volumes: &fakeVolumes{},
		Market:  "TSE",
		Logger:  &logging.Logger{Zap: zap.NewNop()},
	}

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, consolidator.Consolidate(context.Background()))
	assert.Empty(t, quotes.candles)
	assert.Empty(t, quotes.deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
