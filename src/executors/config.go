package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ClientID      string        `envconfig:"CLIENT_ID"`
	APIKeyHash    string        `envconfig:"BINANCE_API_KEY_HASH"`
	APISecretHash string        `envconfig:"BINANCE_API_SECRET_HASH"`
	LoopPeriod    time.Duration `envconfig:"LOOP_PERIOD" default:"30s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
