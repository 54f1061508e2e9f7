// Package result is the document written at the end of a replay.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ftchann/uniswap-twamm/lib/liquidity_amounts"
	"github.com/ftchann/uniswap-twamm/lib/pool"
	"github.com/ftchann/uniswap-twamm/lib/position"
	"github.com/ftchann/uniswap-twamm/lib/prices"
	"github.com/ftchann/uniswap-twamm/lib/sqrtprice_math"
	"github.com/ftchann/uniswap-twamm/lib/tickmath"
)

// Record is the outcome of one replayed event. Amounts are signed pool
// balance changes.
type Record struct {
	Index        int    `json:"index"`
	ID           string `json:"id,omitempty"`
	Type         string `json:"type"`
	Timestamp    uint64 `json:"timestamp"`
	Amount0      string `json:"amount0,omitempty"`
	Amount1      string `json:"amount1,omitempty"`
	Liquidity    string `json:"liquidity,omitempty"`
	SqrtPriceX96 string `json:"sqrtPriceX96"`
	Tick         int    `json:"tick"`
	Error        string `json:"error,omitempty"`
}

type OrderPoolSnapshot struct {
	ZeroForOne            bool   `json:"zeroForOne"`
	SellRateCurrent       string `json:"sellRateCurrent"`
	EarningsFactorCurrent string `json:"earningsFactorCurrent"`
}

type PositionSnapshot struct {
	Owner       string `json:"owner"`
	TickLower   int    `json:"tickLower"`
	TickUpper   int    `json:"tickUpper"`
	Liquidity   string `json:"liquidity"`
	Amount0     string `json:"amount0"`
	Amount1     string `json:"amount1"`
	TokensOwed0 string `json:"tokensOwed0"`
	TokensOwed1 string `json:"tokensOwed1"`
}

type Snapshot struct {
	Timestamp            uint64              `json:"timestamp"`
	SqrtPriceX96         string              `json:"sqrtPriceX96"`
	Tick                 int                 `json:"tick"`
	Liquidity            string              `json:"liquidity"`
	Price                string              `json:"price"`
	FeeGrowthGlobal0X128 string              `json:"feeGrowthGlobal0X128"`
	FeeGrowthGlobal1X128 string              `json:"feeGrowthGlobal1X128"`
	OrderPools           []OrderPoolSnapshot `json:"orderPools"`
	InitializedTicks     []int               `json:"initializedTicks"`
	OpenOrders           int                 `json:"openOrders"`
	Positions            []PositionSnapshot  `json:"positions"`
}

// PriceStats summarizes the sqrt price sampled after every event.
type PriceStats struct {
	Samples                int    `json:"samples"`
	AverageSqrtPriceX96    string `json:"averageSqrtPriceX96"`
	VolatilitySqrtPriceX96 string `json:"volatilitySqrtPriceX96"`
	AveragePrice           string `json:"averagePrice"`
}

type Save struct {
	Token0             string     `json:"token0"`
	Token1             string     `json:"token1"`
	Fee                uint32     `json:"fee"`
	TickSpacing        int        `json:"tick_spacing"`
	ExpirationInterval uint64     `json:"expiration_interval"`
	StartTime          uint64     `json:"start_time"`
	EndTime            uint64     `json:"end_time"`
	Events             int        `json:"events"`
	Failed             int        `json:"failed"`
	Records            []Record   `json:"records"`
	Final              Snapshot   `json:"final"`
	Prices             PriceStats `json:"prices"`
}

// TakeSnapshot captures the pool at timestamp. Position amounts are what
// burning all of the position's liquidity at the current price would return.
// Positions are ordered by owner address bytes, then by tick range.
func TakeSnapshot(p *pool.Pool, timestamp uint64, decimals0, decimals1 int32) (Snapshot, error) {
	s := Snapshot{
		Timestamp:            timestamp,
		SqrtPriceX96:         p.SqrtRatioX96.Dec(),
		Tick:                 p.TickCurrent,
		Liquidity:            p.Liquidity.Dec(),
		Price:                sqrtprice_math.Price(p.SqrtRatioX96, decimals0, decimals1).String(),
		FeeGrowthGlobal0X128: p.FeeGrowthGlobal0X128.Dec(),
		FeeGrowthGlobal1X128: p.FeeGrowthGlobal1X128.Dec(),
		InitializedTicks:     p.Ticks.Initialized(),
		OpenOrders:           len(p.TWAMM.Orders),
		Positions:            make([]PositionSnapshot, 0, len(p.Positions)),
	}
	for _, zeroForOne := range []bool{true, false} {
		orderPool := p.TWAMM.OrderPool(zeroForOne)
		s.OrderPools = append(s.OrderPools, OrderPoolSnapshot{
			ZeroForOne:            zeroForOne,
			SellRateCurrent:       orderPool.SellRateCurrent.Dec(),
			EarningsFactorCurrent: orderPool.EarningsFactorCurrent.Dec(),
		})
	}

	keys := make([]position.Key, 0, len(p.Positions))
	for key := range p.Positions {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if c := bytes.Compare(a.Owner[:], b.Owner[:]); c != 0 {
			return c < 0
		}
		if a.TickLower != b.TickLower {
			return a.TickLower < b.TickLower
		}
		return a.TickUpper < b.TickUpper
	})

	for _, key := range keys {
		pos := p.Positions[key]
		sqrtRatioLowerX96, err := tickmath.GetSqrtRatioAtTick(key.TickLower)
		if err != nil {
			return Snapshot{}, err
		}
		sqrtRatioUpperX96, err := tickmath.GetSqrtRatioAtTick(key.TickUpper)
		if err != nil {
			return Snapshot{}, err
		}
		amount0, amount1, err := liquidity_amounts.GetAmountsForLiquidity(p.SqrtRatioX96, sqrtRatioLowerX96, sqrtRatioUpperX96, pos.Liquidity)
		if err != nil {
			return Snapshot{}, fmt.Errorf("position %s [%d, %d]: %w", key.Owner.Hex(), key.TickLower, key.TickUpper, err)
		}
		s.Positions = append(s.Positions, PositionSnapshot{
			Owner:       key.Owner.Hex(),
			TickLower:   key.TickLower,
			TickUpper:   key.TickUpper,
			Liquidity:   pos.Liquidity.Dec(),
			Amount0:     amount0.Dec(),
			Amount1:     amount1.Dec(),
			TokensOwed0: pos.TokensOwed0.Dec(),
			TokensOwed1: pos.TokensOwed1.Dec(),
		})
	}
	return s, nil
}

func NewPriceStats(samples *prices.Prices, decimals0, decimals1 int32) PriceStats {
	average := samples.Average()
	stats := PriceStats{
		Samples:                samples.Len(),
		AverageSqrtPriceX96:    average.Dec(),
		VolatilitySqrtPriceX96: samples.Volatility().Dec(),
	}
	if samples.Len() > 0 {
		stats.AveragePrice = sqrtprice_math.Price(average, decimals0, decimals1).String()
	}
	return stats
}

func (s *Save) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return buf.Bytes(), nil
}

// Write stores the document at path, creating its directory.
func (s *Save) Write(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
