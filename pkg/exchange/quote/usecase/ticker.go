package usecase

import (
	"context"
	"database/sql"
	"errors"
	"math/rand"
	"time"

	marketPkg "github.com/KeynihAV/tradecore/pkg/exchange/market"
	quotePkg "github.com/KeynihAV/tradecore/pkg/exchange/quote"
	"github.com/KeynihAV/tradecore/pkg/logging"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MarketsRepo interface {
	MarketByName(name string) (*marketPkg.Market, error)
	StocksByMarket(marketName string) ([]*marketPkg.Stock, error)
}

type PricesRepo interface {
	LastPriceToday(stockID int64) (decimal.Decimal, error)
	LastClose(stockID int64) (decimal.Decimal, error)
	AddPrice(point *quotePkg.PricePoint) error
}

// PriceTicker periodically synthesizes a new price per stock while the market
// is open. The perturbation is a fixed absolute jitter of up to 0.01 currency
// units, not a percentage of the price; drastic relative moves on cheap
// stocks are intended.
type PriceTicker struct {
	Markets  MarketsRepo
	Prices   PricesRepo
	Market   string
	Interval time.Duration
	Logger   *logging.Logger
}

func (pt *PriceTicker) Run(ctx context.Context) {
	ticker := time.NewTicker(pt.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pt.tick(ctx)
		}
	}
}

func (pt *PriceTicker) tick(ctx context.Context) {
	stocks, err := pt.Markets.StocksByMarket(pt.Market)
	if err != nil {
		pt.Logger.Zap.Error("load stocks",
			zap.String("logger", "priceTicker"),
			zap.Error(err),
		)
		return
	}
	if len(stocks) == 0 {
		return
	}

	mkt, err := pt.Markets.MarketByName(pt.Market)
	if err != nil {
		return
	}
	if !mkt.IsOpenAt(time.Now().UTC()) {
		pt.Logger.Zap.Warn("market is closed, cannot update stock prices",
			zap.String("logger", "priceTicker"),
			zap.String("market", pt.Market),
		)
		return
	}

	for _, stock := range stocks {
		select {
		case <-ctx.Done():
			return
		default:
		}

		base, err := pt.basePrice(stock.ID)
		if err != nil {
			pt.Logger.Zap.Warn("could not establish a base price",
				zap.String("logger", "priceTicker"),
				zap.String("ticker", stock.Ticker),
				zap.Error(err),
			)
			continue
		}

		newPrice := jitterPrice(base)
		err = pt.Prices.AddPrice(&quotePkg.PricePoint{
			StockID: stock.ID,
			Time:    time.Now().UTC(),
			Price:   newPrice,
		})
		if err != nil {
			pt.Logger.Zap.Error("insert price",
				zap.String("logger", "priceTicker"),
				zap.String("ticker", stock.Ticker),
				zap.Error(err),
			)
			continue
		}

		pt.Logger.Zap.Info("updated stock price",
			zap.String("logger", "priceTicker"),
			zap.String("ticker", stock.Ticker),
			zap.String("from", base.String()),
			zap.String("to", newPrice.String()),
		)
	}
}

// basePrice is the latest of today's price points, falling back to the last
// consolidated close when today has none yet.
func (pt *PriceTicker) basePrice(stockID int64) (decimal.Decimal, error) {
	price, err := pt.Prices.LastPriceToday(stockID)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, err
	}

	return pt.Prices.LastClose(stockID)
}

func jitterPrice(base decimal.Decimal) decimal.Decimal {
	change := decimal.NewFromFloat(rand.Float64() * 0.01)
	if rand.Intn(2) == 0 {
		change = change.Neg()
	}
	return base.Add(change)
}
