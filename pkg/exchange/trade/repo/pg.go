package repo

import (
	"database/sql"
	"fmt"
	"time"

	tradePkg "github.com/KeynihAV/tradecore/pkg/exchange/trade"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

type TradesDB struct {
	DB *sql.DB
}

func NewTradesDB(db *sql.DB) (*TradesDB, error) {
	_, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS accounts(
			id SERIAL PRIMARY KEY,
			balance numeric NOT NULL DEFAULT 0);
		CREATE TABLE IF NOT EXISTS trades(
			id SERIAL PRIMARY KEY,
			accountID int NOT NULL,
			stockID int NOT NULL,
			side varchar(4) NOT NULL,
			condition varchar(10) NOT NULL,
			quantity int NOT NULL,
			requestedPrice numeric,
			status varchar(10) NOT NULL,
			registeredAt timestamptz NOT NULL,
			processedAt timestamptz,
			executedPrice numeric,
			totalAmount numeric);
		CREATE INDEX IF NOT EXISTS match_idx ON trades (stockID, status, side, quantity, registeredAt);`)
	if err != nil {
		return nil, err
	}

	return &TradesDB{
		DB: db,
	}, nil
}

func (td *TradesDB) AddTrade(trade *tradePkg.Trade) (int64, error) {
	query := `INSERT INTO trades(accountID, stockID, side, condition, quantity, requestedPrice, status, registeredAt)
	values($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id;`
	statement, err := td.DB.Prepare(query)
	if err != nil {
		return 0, err
	}
	defer statement.Close()

	var lastID int64
	err = statement.QueryRow(trade.AccountID, trade.StockID, trade.Side, trade.Condition,
		trade.Quantity, trade.RequestedPrice, trade.Status, trade.RegisteredAt).Scan(&lastID)
	if err != nil {
		return 0, err
	}

	return lastID, nil
}

const tradeColumns = `id, accountID, stockID, side, condition, quantity, requestedPrice,
	status, registeredAt, processedAt, executedPrice, totalAmount`

func scanTrade(row *sql.Row) (*tradePkg.Trade, error) {
	trade := &tradePkg.Trade{}
	err := row.Scan(&trade.ID, &trade.AccountID, &trade.StockID, &trade.Side, &trade.Condition,
		&trade.Quantity, &trade.RequestedPrice, &trade.Status, &trade.RegisteredAt,
		&trade.ProcessedAt, &trade.ExecutedPrice, &trade.TotalAmount)
	if err != nil {
		return nil, err
	}
	return trade, nil
}

func (td *TradesDB) TradeByID(tradeID int64, tx *sql.Tx) (*tradePkg.Trade, error) {
	return scanTrade(tx.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = $1`, tradeID))
}

// Counterpart picks the earliest pending trade on the same stock with the
// opposite side, another owner and exactly the same quantity.
func (td *TradesDB) Counterpart(stockID int64, side tradePkg.Side, accountID int64, quantity int32, tx *sql.Tx) (*tradePkg.Trade, error) {
	return scanTrade(tx.QueryRow(`
	SELECT `+tradeColumns+`
	FROM trades
	WHERE stockID = $1 AND status = $2 AND side = $3 AND accountID <> $4 AND quantity = $5
	ORDER BY registeredAt, id
	LIMIT 1`, stockID, tradePkg.StatusPending, side, accountID, quantity))
}

func (td *TradesDB) AccountByID(accountID int64, tx *sql.Tx) (*tradePkg.Account, error) {
	account := &tradePkg.Account{}
	err := tx.QueryRow(`SELECT id, balance FROM accounts WHERE id = $1`, accountID).
		Scan(&account.ID, &account.Balance)
	if err != nil {
		return nil, err
	}

	return account, nil
}

func (td *TradesDB) CompleteTrade(trade *tradePkg.Trade, tx *sql.Tx) error {
	result, err := tx.Exec(`UPDATE trades SET status = $1, processedAt = $2, executedPrice = $3, totalAmount = $4 WHERE id = $5`,
		trade.Status, trade.ProcessedAt, trade.ExecutedPrice, trade.TotalAmount, trade.ID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		return fmt.Errorf("trade %v not updated", trade.ID)
	}

	return nil
}

func (td *TradesDB) UpdateBalance(accountID int64, balance decimal.Decimal, tx *sql.Tx) error {
	result, err := tx.Exec(`UPDATE accounts SET balance = $1 WHERE id = $2`, balance, accountID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		return fmt.Errorf("account %v not updated", accountID)
	}

	return nil
}

// CompletedVolume sums the quantities of completed trades on the stock
// processed inside the given calendar day.
func (td *TradesDB) CompletedVolume(stockID int64, day time.Time, tx *sql.Tx) (int32, error) {
	var volume int32
	err := tx.QueryRow(`
	SELECT COALESCE(SUM(quantity), 0)
	FROM trades
	WHERE stockID = $1 AND status = $2 AND processedAt >= $3 AND processedAt < $4`,
		stockID, tradePkg.StatusCompleted, day, day.Add(24*time.Hour)).
		Scan(&volume)
	if err != nil {
		return 0, err
	}

	return volume, nil
}

func (td *TradesDB) TradesByTicker(ticker string, status tradePkg.Status) ([]*tradePkg.Trade, error) {
	return td.queryTrades(`
	SELECT Trades.id, Trades.accountID, Trades.stockID, Trades.side, Trades.condition, Trades.quantity,
		Trades.requestedPrice, Trades.status, Trades.registeredAt, Trades.processedAt,
		Trades.executedPrice, Trades.totalAmount
	FROM trades AS Trades
		JOIN stocks AS Stocks ON Stocks.id = Trades.stockID
	WHERE Stocks.ticker = $1 AND Trades.status = $2
	ORDER BY Trades.registeredAt, Trades.id`, ticker, status)
}

// TradesByAccount lists the account's trades on the stock, optionally
// filtered by status (empty status means all).
func (td *TradesDB) TradesByAccount(accountID int64, ticker string, status tradePkg.Status) ([]*tradePkg.Trade, error) {
	return td.queryTrades(`
	SELECT Trades.id, Trades.accountID, Trades.stockID, Trades.side, Trades.condition, Trades.quantity,
		Trades.requestedPrice, Trades.status, Trades.registeredAt, Trades.processedAt,
		Trades.executedPrice, Trades.totalAmount
	FROM trades AS Trades
		JOIN stocks AS Stocks ON Stocks.id = Trades.stockID
	WHERE Stocks.ticker = $1 AND Trades.accountID = $2 AND ($3 = '' OR Trades.status = $3)
	ORDER BY Trades.registeredAt, Trades.id`, ticker, accountID, status)
}

func (td *TradesDB) queryTrades(query string, args ...interface{}) ([]*tradePkg.Trade, error) {
	queryResult, err := td.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer queryResult.Close()

	result := make([]*tradePkg.Trade, 0)
	for queryResult.Next() {
		trade := &tradePkg.Trade{}
		err = queryResult.Scan(&trade.ID, &trade.AccountID, &trade.StockID, &trade.Side, &trade.Condition,
			&trade.Quantity, &trade.RequestedPrice, &trade.Status, &trade.RegisteredAt,
			&trade.ProcessedAt, &trade.ExecutedPrice, &trade.TotalAmount)
		if err != nil {
			return nil, err
		}
		result = append(result, trade)
	}

	return result, nil
}
