package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"loankeeper/src/connectors"
	"loankeeper/src/handler"
	"loankeeper/src/rebalance"
	"loankeeper/src/tracker"
)

// Dependencies carries the long-lived components the routes close over.
type Dependencies struct {
	Exchange  *connectors.BinanceClient
	Valuation *connectors.ValuationService
	Tracker   *tracker.Tracker
	Executor  *rebalance.Executor
	ClientID  string
}

func StartServer(port string, deps Dependencies) {
	// Router with middleware
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	// Signal intake
	r.Post("/webhook/tradingview/strategy/{id}", handler.DefaultWebhookHandler(deps.Tracker, deps.Exchange))

	r.Route("/api", func(r chi.Router) {
		r.Get("/webhooks/activity", handler.DefaultActivityHandler())
		r.Get("/tracked-positions", handler.TrackedPositionsHandler(deps.Tracker))

		list, create, get, update, remove := handler.DefaultStrategyHandlers()
		r.Route("/strategies", func(r chi.Router) {
			r.Get("/", list)
			r.Post("/", create)
			r.Get("/{id}", get)
			r.Put("/{id}", update)
			r.Delete("/{id}", remove)
		})

		status, trigger, history, getSettings, updateSettings := handler.DefaultLoanHandlers(deps.Exchange, deps.Executor, deps.ClientID)
		r.Route("/loans", func(r chi.Router) {
			r.Get("/ltv", status)
			r.Post("/rebalance", trigger)
			r.Get("/rebalance/history", history)
			r.Get("/history/{kind}", handler.LoanHistoryHandler(deps.Exchange))
			r.Get("/settings", getSettings)
			r.Put("/settings", updateSettings)
		})

		r.Get("/balance", handler.BalanceHandler(deps.Exchange, deps.Valuation))
		r.Get("/positions", handler.PositionsHandler(deps.Exchange))
		r.Get("/earn", handler.EarnHandler(deps.Exchange))
	})

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
