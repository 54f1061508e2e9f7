// Package config loads replay settings from flags, environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ftchann/uniswap-twamm/lib/sqrtprice_math"

	ui "github.com/holiman/uint256"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	ErrMissingEvents = errors.New("config: events path is required")
	ErrInvalidPrice  = errors.New("config: invalid initial sqrt price")
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Events             string
	Out                string
	Token0             string
	Token1             string
	Decimals0          int32
	Decimals1          int32
	Fee                uint32
	TickSpacing        int
	SqrtPriceX96       string
	ExpirationInterval uint64
	StartTime          uint64
	PriceWindow        int
	LogLevel           string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TWAMM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("out", "./data/result.json")
	v.SetDefault("token0", "TOKEN0")
	v.SetDefault("token1", "TOKEN1")
	v.SetDefault("decimals0", 18)
	v.SetDefault("decimals1", 18)
	v.SetDefault("fee", uint32(3000))
	v.SetDefault("tick-spacing", 60)
	v.SetDefault("sqrt-price-x96", sqrtprice_math.EncodePriceSqrt(big.NewInt(1), big.NewInt(1)).Dec())
	v.SetDefault("expiration-interval", uint64(3600))
	v.SetDefault("price-window", 1024)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Events:             v.GetString("events"),
		Out:                v.GetString("out"),
		Token0:             v.GetString("token0"),
		Token1:             v.GetString("token1"),
		Decimals0:          v.GetInt32("decimals0"),
		Decimals1:          v.GetInt32("decimals1"),
		Fee:                v.GetUint32("fee"),
		TickSpacing:        v.GetInt("tick-spacing"),
		SqrtPriceX96:       v.GetString("sqrt-price-x96"),
		ExpirationInterval: v.GetUint64("expiration-interval"),
		StartTime:          v.GetUint64("start-time"),
		PriceWindow:        v.GetInt("price-window"),
		LogLevel:           v.GetString("log-level"),
	}

	return cfg, nil
}

// InitialSqrtPrice parses the configured starting price.
func (c Config) InitialSqrtPrice() (*ui.Int, error) {
	price, err := ui.FromDecimal(strings.TrimSpace(c.SqrtPriceX96))
	if err != nil || price.IsZero() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPrice, c.SqrtPriceX96)
	}
	return price, nil
}

func (c Config) Validate() error {
	if c.Events == "" {
		return ErrMissingEvents
	}
	_, err := c.InitialSqrtPrice()
	return err
}
