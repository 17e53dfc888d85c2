package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SpotBaseURL    string        `envconfig:"BINANCE_SPOT_BASE_URL" default:"https://api.binance.com"`
	FuturesBaseURL string        `envconfig:"BINANCE_FUTURES_BASE_URL" default:"https://fapi.binance.com"`
	StreamBaseURL  string        `envconfig:"BINANCE_STREAM_BASE_URL" default:"wss://stream.binance.com:9443"`
	RecvWindow     int64         `envconfig:"BINANCE_RECV_WINDOW" default:"5000"`
	RequestTimeout time.Duration `envconfig:"BINANCE_REQUEST_TIMEOUT" default:"15s"`
	BorrowAsset    string        `envconfig:"BORROW_ASSET" default:"USDT"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
