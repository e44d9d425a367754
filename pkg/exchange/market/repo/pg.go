package repo

import (
	"database/sql"
	"fmt"

	marketPkg "github.com/KeynihAV/tradecore/pkg/exchange/market"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type MarketsDB struct {
	DB *sql.DB
}

func NewMarketsDB(db *sql.DB) (*MarketsDB, error) {
	_, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS markets(
			id SERIAL PRIMARY KEY,
			name varchar(150) NOT NULL UNIQUE,
			opensAt varchar(8) NOT NULL,
			closesAt varchar(8) NOT NULL);
		CREATE TABLE IF NOT EXISTS stocks(
			id SERIAL PRIMARY KEY,
			marketID int NOT NULL REFERENCES markets(id),
			name varchar(200) NOT NULL,
			ticker varchar(5) NOT NULL UNIQUE);`)
	if err != nil {
		return nil, err
	}

	return &MarketsDB{
		DB: db,
	}, nil
}

func (md *MarketsDB) MarketByName(name string) (*marketPkg.Market, error) {
	mkt := &marketPkg.Market{}
	err := md.DB.QueryRow(`SELECT id, name, opensAt, closesAt FROM markets WHERE name = $1`, name).
		Scan(&mkt.ID, &mkt.Name, &mkt.OpensAt, &mkt.ClosesAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("market %v: %w", name, marketPkg.ErrMarketNotFound)
	}
	if err != nil {
		return nil, err
	}

	return mkt, nil
}

func (md *MarketsDB) StockByTicker(ticker string) (*marketPkg.Stock, error) {
	stock := &marketPkg.Stock{}
	err := md.DB.QueryRow(`SELECT id, marketID, name, ticker FROM stocks WHERE ticker = $1`, ticker).
		Scan(&stock.ID, &stock.MarketID, &stock.Name, &stock.Ticker)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stock %v: %w", ticker, marketPkg.ErrStockNotFound)
	}
	if err != nil {
		return nil, err
	}

	return stock, nil
}

func (md *MarketsDB) StocksByMarket(marketName string) ([]*marketPkg.Stock, error) {
	queryResult, err := md.DB.Query(`
	SELECT
		Stocks.id,
		Stocks.marketID,
		Stocks.name,
		Stocks.ticker
	FROM stocks AS Stocks
		JOIN markets AS Markets ON Markets.id = Stocks.marketID
	WHERE Markets.name = $1
	ORDER BY Stocks.id`, marketName)
	if err != nil {
		return nil, err
	}
	defer queryResult.Close()

	result := make([]*marketPkg.Stock, 0)
	for queryResult.Next() {
		stock := &marketPkg.Stock{}
		err = queryResult.Scan(&stock.ID, &stock.MarketID, &stock.Name, &stock.Ticker)
		if err != nil {
			return nil, err
		}
		result = append(result, stock)
	}

	return result, nil
}
