package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	configPkg "github.com/KeynihAV/tradecore/pkg/config"
	marketRepoPkg "github.com/KeynihAV/tradecore/pkg/exchange/market/repo"
	quoteRepoPkg "github.com/KeynihAV/tradecore/pkg/exchange/quote/repo"
	tradeDeliveryPkg "github.com/KeynihAV/tradecore/pkg/exchange/trade/delivery"
	tradeRepoPkg "github.com/KeynihAV/tradecore/pkg/exchange/trade/repo"
	tradeUsecasePkg "github.com/KeynihAV/tradecore/pkg/exchange/trade/usecase"
	loggingPkg "github.com/KeynihAV/tradecore/pkg/logging"
	queuePkg "github.com/KeynihAV/tradecore/pkg/queue"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var appName = "processor"

func main() {
	ctx, finish := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer finish()

	config := &configPkg.Config{}
	err := configPkg.Read(appName, config)
	if err != nil {
		log.Fatalln(err)
	}

	if !config.Processor.Enabled {
		log.Println("processor is disabled")
		return
	}

	logger := loggingPkg.New()
	defer logger.Zap.Sync()

	db, err := initDB(config)
	if err != nil {
		log.Fatalln(err)
	}

	err = startProcessor(ctx, db, config, logger)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
}

func startProcessor(ctx context.Context, db *sql.DB, config *configPkg.Config, logger *loggingPkg.Logger) error {
	marketsDB, err := marketRepoPkg.NewMarketsDB(db)
	if err != nil {
		return err
	}
	tradesDB, err := tradeRepoPkg.NewTradesDB(db)
	if err != nil {
		return err
	}
	quotesDB, err := quoteRepoPkg.NewQuotesDB(db)
	if err != nil {
		return err
	}
	retryDB, err := tradeRepoPkg.NewRetryDB(config)
	if err != nil {
		return err
	}

	tradesQueue := queuePkg.New(config)
	if err := tradesQueue.Init(appName); err != nil {
		return err
	}
	defer tradesQueue.Close()

	flatFee, err := decimal.NewFromString(config.Processor.FlatFee)
	if err != nil {
		return fmt.Errorf("malformed flat fee %v: %v", config.Processor.FlatFee, err)
	}

	tradeProcessor := &tradeUsecasePkg.TradeProcessor{
		DB:        db,
		Trades:    tradesDB,
		Markets:   marketsDB,
		Quotes:    quotesDB,
		Market:    config.Processor.Market,
		FlatFee:   flatFee,
		TxRetries: config.Processor.TxRetries,
		Logger:    logger,
	}

	consumer := &tradeDeliveryPkg.Consumer{
		Processor:   tradeProcessor,
		Retries:     retryDB,
		Queue:       tradesQueue,
		MaxAttempts: config.Processor.MaxAttempts,
		Logger:      logger,
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	logger.Zap.Info("processor started",
		zap.String("app", appName),
	)

	<-ctx.Done()

	return nil
}
