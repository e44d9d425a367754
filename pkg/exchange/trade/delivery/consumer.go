package delivery

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/KeynihAV/tradecore/pkg/exchange/market"
	tradePkg "github.com/KeynihAV/tradecore/pkg/exchange/trade"
	tradeUsecasePkg "github.com/KeynihAV/tradecore/pkg/exchange/trade/usecase"
	"github.com/KeynihAV/tradecore/pkg/logging"
	"github.com/KeynihAV/tradecore/pkg/metrics"
	"go.uber.org/zap"
)

type TradeProcessor interface {
	Process(ctx context.Context, tradeID int64) error
}

type RetryRepo interface {
	Incr(tradeID int64) (int, error)
	Clear(tradeID int64) error
}

type TradeQueue interface {
	Subscribe(handler func(body []byte) error) error
	PublishDeadLetter(ctx context.Context, body []byte) error
}

// Consumer feeds queued trade messages into the processor. Expected outcomes
// acknowledge the message; an unexpected failure is redelivered up to
// MaxAttempts times and then parked on the dead letter queue, so a poison
// message never loops forever and is never silently dropped.
type Consumer struct {
	Processor   TradeProcessor
	Retries     RetryRepo
	Queue       TradeQueue
	MaxAttempts int
	Logger      *logging.Logger
}

func (c *Consumer) Start(ctx context.Context) error {
	return c.Queue.Subscribe(func(body []byte) error {
		return c.handleMessage(ctx, body)
	})
}

func (c *Consumer) handleMessage(ctx context.Context, body []byte) error {
	msg := &tradePkg.Trade{}
	if err := json.Unmarshal(body, msg); err != nil {
		// a payload that does not parse can never succeed, park it at once
		c.Logger.Zap.Error("malformed trade message",
			zap.String("logger", "tradesConsumer"),
			zap.Error(err),
		)
		return c.deadLetter(ctx, body)
	}

	err := c.Processor.Process(ctx, msg.ID)
	switch {
	case err == nil:
		metrics.ProcessedTrades.WithLabelValues("ok").Inc()
	case errors.Is(err, tradeUsecasePkg.ErrTradeNotFound),
		errors.Is(err, market.ErrMarketNotFound),
		errors.Is(err, market.ErrStockNotFound):
		// the message may have raced ahead of the durable write, drop it
		c.Logger.Zap.Warn("trade reference not found",
			zap.String("logger", "tradesConsumer"),
			zap.Int64("tradeID", msg.ID),
			zap.Error(err),
		)
		metrics.ProcessedTrades.WithLabelValues("dropped").Inc()
	case errors.Is(err, tradeUsecasePkg.ErrMarketClosed),
		errors.Is(err, tradeUsecasePkg.ErrNoCounterpart),
		errors.Is(err, tradeUsecasePkg.ErrNoPrice),
		errors.Is(err, tradeUsecasePkg.ErrInsufficientFunds),
		errors.Is(err, tradeUsecasePkg.ErrTxConflict):
		// the trade stays pending, it only advances on a later delivery
		c.Logger.Zap.Warn("trade left pending",
			zap.String("logger", "tradesConsumer"),
			zap.Int64("tradeID", msg.ID),
			zap.Error(err),
		)
		metrics.ProcessedTrades.WithLabelValues("abandoned").Inc()
	default:
		return c.retryOrDeadLetter(ctx, msg.ID, body, err)
	}

	if err := c.Retries.Clear(msg.ID); err != nil {
		c.Logger.Zap.Warn("clear trade attempts",
			zap.String("logger", "tradesConsumer"),
			zap.Int64("tradeID", msg.ID),
			zap.Error(err),
		)
	}

	return nil
}

func (c *Consumer) retryOrDeadLetter(ctx context.Context, tradeID int64, body []byte, cause error) error {
	attempts, err := c.Retries.Incr(tradeID)
	if err != nil {
		c.Logger.Zap.Error("count trade attempts",
			zap.String("logger", "tradesConsumer"),
			zap.Int64("tradeID", tradeID),
			zap.Error(err),
		)
		return cause
	}

	if attempts < c.MaxAttempts {
		c.Logger.Zap.Error("unable to process trade, requeueing",
			zap.String("logger", "tradesConsumer"),
			zap.Int64("tradeID", tradeID),
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)
		metrics.ProcessedTrades.WithLabelValues("requeued").Inc()
		return cause
	}

	c.Logger.Zap.Error("unable to process trade, moving to dead letter queue",
		zap.String("logger", "tradesConsumer"),
		zap.Int64("tradeID", tradeID),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	if err := c.deadLetter(ctx, body); err != nil {
		return err
	}
	if err := c.Retries.Clear(tradeID); err != nil {
		c.Logger.Zap.Warn("clear trade attempts",
			zap.String("logger", "tradesConsumer"),
			zap.Int64("tradeID", tradeID),
			zap.Error(err),
		)
	}

	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, body []byte) error {
	if err := c.Queue.PublishDeadLetter(ctx, body); err != nil {
		return err
	}
	metrics.DeadLetteredTrades.Inc()
	return nil
}
