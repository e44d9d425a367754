package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	configPkg "github.com/KeynihAV/tradecore/pkg/config"
	marketRepoPkg "github.com/KeynihAV/tradecore/pkg/exchange/market/repo"
	quoteRepoPkg "github.com/KeynihAV/tradecore/pkg/exchange/quote/repo"
	quoteUsecasePkg "github.com/KeynihAV/tradecore/pkg/exchange/quote/usecase"
	tradeDeliveryPkg "github.com/KeynihAV/tradecore/pkg/exchange/trade/delivery"
	tradeRepoPkg "github.com/KeynihAV/tradecore/pkg/exchange/trade/repo"
	loggingPkg "github.com/KeynihAV/tradecore/pkg/logging"
	metricsPkg "github.com/KeynihAV/tradecore/pkg/metrics"
	queuePkg "github.com/KeynihAV/tradecore/pkg/queue"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var appName = "exchange"

func main() {
	ctx, finish := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer finish()

	config := &configPkg.Config{}
	err := configPkg.Read(appName, config)
	if err != nil {
		log.Fatalln(err)
	}

	logger := loggingPkg.New()
	defer logger.Zap.Sync()

	db, err := initDB(config)
	if err != nil {
		log.Fatalln(err)
	}

	err = startExchange(ctx, db, config, logger)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
}

func startExchange(ctx context.Context, db *sql.DB, config *configPkg.Config, logger *loggingPkg.Logger) error {
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

	tradesQueue := queuePkg.New(config)
	if err := tradesQueue.Init(appName); err != nil {
		return err
	}
	defer tradesQueue.Close()

	if config.Ticker.Enabled {
		priceTicker := &quoteUsecasePkg.PriceTicker{
			Markets:  marketsDB,
			Prices:   quotesDB,
			Market:   config.Ticker.Market,
			Interval: time.Duration(config.Ticker.IntervalSeconds) * time.Second,
			Logger:   logger,
		}
		go priceTicker.Run(ctx)
	}

	if config.History.Enabled {
		consolidator := &quoteUsecasePkg.Consolidator{
			DB:         db,
			Quotes:     quotesDB,
			Volumes:    tradesDB,
			Markets:    marketsDB,
			Market:     config.History.Market,
			CloseDelay: time.Duration(config.History.CloseDelayMinutes) * time.Minute,
			Logger:     logger,
		}
		go consolidator.Run(ctx)
	}

	tradesHandler := &tradeDeliveryPkg.TradesHandler{
		Trades: tradesDB,
		Stocks: marketsDB,
		Queue:  tradesQueue,
		Logger: logger,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/stocks/{ticker}/trade", tradesHandler.Trade).Methods("POST")
	r.HandleFunc("/api/v1/stocks/{ticker}/trades", tradesHandler.Trades).Methods("GET")
	r.HandleFunc("/api/v1/stocks/{ticker}/my-trades", tradesHandler.MyTrades).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(config.HTTP.Port),
		Handler: metricsPkg.TimeTrackingMiddleware(r),
	}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	err = server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}

	return err
}
