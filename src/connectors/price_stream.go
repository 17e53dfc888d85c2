package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const reconnectDelay = 5 * time.Second

// PriceStream keeps a live price cache fed by the Binance miniTicker
// websocket stream. Readers never block on the network, they see the last
// received price or a miss.
type PriceStream struct {
	streamURL string

	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewPriceStream builds a stream over the combined miniTicker channels for
// the given symbols.
func NewPriceStream(baseURL string, symbols []string) (*PriceStream, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("price stream needs at least one symbol")
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse stream base URL: %w", err)
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")

	return &PriceStream{
		streamURL: u.String(),
		prices:    make(map[string]decimal.Decimal),
	}, nil
}

// Price returns the cached price for a symbol.
func (s *PriceStream) Price(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[symbol]
	return price, ok
}

// Run consumes the stream until the context is cancelled, reconnecting with
// a fixed delay after read or dial failures. Intended to run as a goroutine
// next to the server.
func (s *PriceStream) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil {
			logger.WithError(err).Warn("Price stream disconnected")
		}

		select {
		case <-ctx.Done():
			logger.Info("Price stream stopped")
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *PriceStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout:  15 * time.Second,
		EnableCompression: true,
	}

	conn, _, err := dialer.DialContext(ctx, s.streamURL, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	defer conn.Close()

	logger.WithField("url", s.streamURL).Info("Price stream connected")

	// unblock ReadMessage when the context ends
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ws read failed: %w", err)
		}
		s.handleMessage(msg)
	}
}

// miniTickerFrame is one combined-stream envelope. Only the symbol and close
// price matter here.
type miniTickerFrame struct {
	Stream string `json:"stream"`
	Data   struct {
		Symbol string `json:"s"`
		Close  string `json:"c"`
	} `json:"data"`
}

func (s *PriceStream) handleMessage(msg []byte) {
	var frame miniTickerFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		logger.WithError(err).Debug("Skipping malformed stream frame")
		return
	}
	if frame.Data.Symbol == "" {
		return
	}

	price, err := decimal.NewFromString(frame.Data.Close)
	if err != nil || !price.IsPositive() {
		return
	}

	s.mu.Lock()
	s.prices[frame.Data.Symbol] = price
	s.mu.Unlock()
}
