package repo

import (
	"database/sql"
	"fmt"
	"time"

	quotePkg "github.com/KeynihAV/tradecore/pkg/exchange/quote"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

type QuotesDB struct {
	DB *sql.DB
}

func NewQuotesDB(db *sql.DB) (*QuotesDB, error) {
	_, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS prices(
			stockID int NOT NULL,
			time timestamptz NOT NULL,
			price numeric NOT NULL,
			PRIMARY KEY (stockID, time));
		CREATE INDEX IF NOT EXISTS prices_time_idx ON prices (time);
		CREATE TABLE IF NOT EXISTS history(
			stockID int NOT NULL,
			date date NOT NULL,
			open numeric NOT NULL,
			high numeric NOT NULL,
			low numeric NOT NULL,
			close numeric NOT NULL,
			volume int NOT NULL,
			PRIMARY KEY (stockID, date));`)
	if err != nil {
		return nil, err
	}

	return &QuotesDB{
		DB: db,
	}, nil
}

func (qd *QuotesDB) AddPrice(point *quotePkg.PricePoint) error {
	result, err := qd.DB.Exec(`INSERT INTO prices(stockID, time, price) values($1, $2, $3)`,
		point.StockID, point.Time, point.Price)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		return fmt.Errorf("not insert row in prices")
	}

	return nil
}

// LastPrice returns the most recent intraday price of the stock inside the
// settlement transaction.
func (qd *QuotesDB) LastPrice(stockID int64, tx *sql.Tx) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := tx.QueryRow(`SELECT price FROM prices WHERE stockID = $1 ORDER BY time DESC LIMIT 1`, stockID).
		Scan(&price)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return price, nil
}

func (qd *QuotesDB) LastPriceToday(stockID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := qd.DB.QueryRow(`
		SELECT price FROM prices
		WHERE stockID = $1 AND time >= date_trunc('day', now() at time zone 'utc')
		ORDER BY time DESC LIMIT 1`, stockID).
		Scan(&price)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return price, nil
}

func (qd *QuotesDB) LastClose(stockID int64) (decimal.Decimal, error) {
	var closePrice decimal.Decimal
	err := qd.DB.QueryRow(`SELECT close FROM history WHERE stockID = $1 ORDER BY date DESC LIMIT 1`, stockID).
		Scan(&closePrice)
	if err != nil {
		return decimal.Decimal{}, err
	}

	return closePrice, nil
}

func (qd *QuotesDB) AllPrices(tx *sql.Tx) ([]*quotePkg.PricePoint, error) {
	queryResult, err := tx.Query(`SELECT stockID, time, price FROM prices ORDER BY stockID, time`)
	if err != nil {
		return nil, err
	}
	defer queryResult.Close()

	result := make([]*quotePkg.PricePoint, 0)
	for queryResult.Next() {
		point := &quotePkg.PricePoint{}
		err = queryResult.Scan(&point.StockID, &point.Time, &point.Price)
		if err != nil {
			return nil, err
		}
		result = append(result, point)
	}

	return result, nil
}

func (qd *QuotesDB) AddCandle(candle *quotePkg.Candle, tx *sql.Tx) error {
	result, err := tx.Exec(`INSERT INTO history(stockID, date, open, high, low, close, volume)
		values($1, $2, $3, $4, $5, $6, $7)`,
		candle.StockID, candle.Date, candle.Open, candle.High, candle.Low, candle.Close, candle.Volume)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		return fmt.Errorf("not insert row in history")
	}

	return nil
}

// DeletePrices removes all price points of the stock inside the given
// calendar day.
func (qd *QuotesDB) DeletePrices(stockID int64, day time.Time, tx *sql.Tx) error {
	_, err := tx.Exec(`DELETE FROM prices WHERE stockID = $1 AND time >= $2 AND time < $3`,
		stockID, day, day.Add(24*time.Hour))
	if err != nil {
		return err
	}

	return nil
}
