package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"loankeeper/src/connectors"
	"loankeeper/src/database"
	"loankeeper/src/rebalance"
	"loankeeper/src/repository"
	"loankeeper/src/security"
	"loankeeper/src/server"
	"loankeeper/src/tracker"
)

var (
	APP_NAME       = os.Getenv("APP_NAME")
	CLIENT_ID      = os.Getenv("CLIENT_ID")
	STREAM_SYMBOLS = os.Getenv("STREAM_SYMBOLS")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel // fallback seguro
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	apiKey, err := security.DecryptString(os.Getenv("BINANCE_API_KEY_HASH"))
	if err != nil {
		logger.WithError(err).Fatal("Failed to decrypt API Key")
	}
	apiSecret, err := security.DecryptString(os.Getenv("BINANCE_API_SECRET_HASH"))
	if err != nil {
		logger.WithError(err).Fatal("Failed to decrypt API Secret")
	}

	connConfig := connectors.GetConfig()
	exchange := connectors.NewBinanceClient(apiKey, apiSecret, connConfig)

	// Live prices over the combined mini-ticker stream; the REST ticker and
	// the static fallback table cover anything the stream has not seen yet.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := connectors.NewPriceStream(connConfig.StreamBaseURL, streamSymbols())
	if err != nil {
		logger.WithError(err).Fatal("Failed to build price stream")
	}
	go stream.Run(ctx)
	exchange.SetPriceSource(stream)

	// Rehydrate the tracker so open positions survive restarts
	positionRepo := repository.NewPositionRepository()
	positionTracker := tracker.New(positionRepo)
	open, err := positionRepo.FindOpen(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load open positions")
	}
	positionTracker.Warm(open)
	logger.WithField("open_positions", len(open)).Info("Tracker warmed")

	rebalanceRepo := repository.NewRebalanceRepository()
	executor := rebalance.New(exchange, rebalanceRepo, rebalanceRepo)

	clientID := CLIENT_ID
	if clientID == "" {
		clientID = "live_client"
	}

	server.StartServer(server.GetConfig().Port, server.Dependencies{
		Exchange:  exchange,
		Valuation: connectors.NewValuationService(connConfig.BorrowAsset),
		Tracker:   positionTracker,
		Executor:  executor,
		ClientID:  clientID,
	})
}

func streamSymbols() []string {
	raw := STREAM_SYMBOLS
	if raw == "" {
		raw = "BTCUSDT,ETHUSDT,BNBUSDT,SOLUSDT"
	}
	symbols := strings.Split(raw, ",")
	for i := range symbols {
		symbols[i] = strings.ToUpper(strings.TrimSpace(symbols[i]))
	}
	return symbols
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
