package usecase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/KeynihAV/tradecore/pkg/exchange/market"
	tradePkg "github.com/KeynihAV/tradecore/pkg/exchange/trade"
	"github.com/KeynihAV/tradecore/pkg/logging"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrTradeNotFound     = errors.New("trade not found")
	ErrMarketClosed      = errors.New("market is closed")
	ErrNoCounterpart     = errors.New("no matching pending trade")
	ErrNoPrice           = errors.New("no price available")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTxConflict        = errors.New("transaction serialization conflict")
)

const serializationFailureCode = "40001"

type TradesRepo interface {
	TradeByID(tradeID int64, tx *sql.Tx) (*tradePkg.Trade, error)
	Counterpart(stockID int64, side tradePkg.Side, accountID int64, quantity int32, tx *sql.Tx) (*tradePkg.Trade, error)
	AccountByID(accountID int64, tx *sql.Tx) (*tradePkg.Account, error)
	CompleteTrade(trade *tradePkg.Trade, tx *sql.Tx) error
	UpdateBalance(accountID int64, balance decimal.Decimal, tx *sql.Tx) error
}

type MarketsRepo interface {
	MarketByName(name string) (*market.Market, error)
}

type QuotesRepo interface {
	LastPrice(stockID int64, tx *sql.Tx) (decimal.Decimal, error)
}

// TradeProcessor pairs a trade with its counterpart and settles both legs
// against the owning accounts inside one serializable transaction.
type TradeProcessor struct {
	DB        *sql.DB
	Trades    TradesRepo
	Markets   MarketsRepo
	Quotes    QuotesRepo
	Market    string
	FlatFee   decimal.Decimal
	TxRetries int
	Logger    *logging.Logger
}

// Process runs one matching attempt. A serialization conflict is retried a
// bounded number of times with jittered backoff, everything else surfaces on
// the first pass.
func (tp *TradeProcessor) Process(ctx context.Context, tradeID int64) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = tp.processOnce(ctx, tradeID)
		if !errors.Is(err, ErrTxConflict) || attempt >= tp.TxRetries {
			return err
		}

		backoff := time.Duration(50+rand.Intn(100)) * time.Millisecond * time.Duration(attempt+1)
		tp.Logger.Zap.Warn("settlement conflict, retrying",
			zap.Int64("tradeID", tradeID),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (tp *TradeProcessor) processOnce(ctx context.Context, tradeID int64) error {
	tx, err := tp.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}

	err = tp.match(tx, tradeID)
	if err != nil {
		tx.Rollback()
		return classifyTxErr(err)
	}

	err = tx.Commit()
	if err != nil {
		return classifyTxErr(err)
	}

	return nil
}

func (tp *TradeProcessor) match(tx *sql.Tx, tradeID int64) error {
	current, err := tp.Trades.TradeByID(tradeID, tx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("trade %v: %w", tradeID, ErrTradeNotFound)
		}
		return err
	}
	if current.Status == tradePkg.StatusCompleted {
		// redelivered message for a settled trade, nothing left to do
		return nil
	}

	mkt, err := tp.Markets.MarketByName(tp.Market)
	if err != nil {
		return err
	}
	if !mkt.IsOpenAt(time.Now().UTC()) {
		return ErrMarketClosed
	}

	counter, err := tp.Trades.Counterpart(current.StockID, current.Side.Opposite(),
		current.AccountID, current.Quantity, tx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("trade %v: %w", tradeID, ErrNoCounterpart)
		}
		return err
	}

	price, err := tp.Quotes.LastPrice(current.StockID, tx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("stock %v: %w", current.StockID, ErrNoPrice)
		}
		return err
	}

	now := time.Now().UTC()
	for _, leg := range []*tradePkg.Trade{current, counter} {
		account, err := tp.Trades.AccountByID(leg.AccountID, tx)
		if err != nil {
			return err
		}

		newBalance, ok := settleLeg(leg, account.Balance, price, tp.FlatFee, now)
		if !ok {
			return fmt.Errorf("account %v, trade %v: %w", leg.AccountID, leg.ID, ErrInsufficientFunds)
		}

		if err := tp.Trades.CompleteTrade(leg, tx); err != nil {
			return err
		}
		if err := tp.Trades.UpdateBalance(leg.AccountID, newBalance, tx); err != nil {
			return err
		}
	}

	return nil
}

// settleLeg computes the signed settlement amount of one leg and mutates the
// trade into its completed state. The buy leg pays price×quantity plus the
// flat fee and must be covered by the account balance, the sell leg receives
// price×quantity minus the fee.
func settleLeg(trade *tradePkg.Trade, balance, price, fee decimal.Decimal, now time.Time) (decimal.Decimal, bool) {
	total := price.Mul(decimal.NewFromInt(int64(trade.Quantity)))
	if trade.Side == tradePkg.Buy {
		total = total.Add(fee)
	} else {
		total = total.Sub(fee)
	}

	if trade.Side == tradePkg.Buy && balance.LessThan(total) {
		return balance, false
	}

	if trade.Side == tradePkg.Buy {
		total = total.Neg()
	}

	trade.Status = tradePkg.StatusCompleted
	trade.ProcessedAt = sql.NullTime{Time: now, Valid: true}
	trade.ExecutedPrice = decimal.NullDecimal{Decimal: price, Valid: true}
	trade.TotalAmount = decimal.NullDecimal{Decimal: total, Valid: true}

	return balance.Add(total), true
}

func classifyTxErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == serializationFailureCode {
		return fmt.Errorf("%v: %w", err, ErrTxConflict)
	}
	return err
}
