// Package executor replays events against a pool.
package executor

import (
	"errors"
	"fmt"
	"sort"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	"github.com/ftchann/uniswap-twamm/lib/liquidity_amounts"
	ppool "github.com/ftchann/uniswap-twamm/lib/pool"
	"github.com/ftchann/uniswap-twamm/lib/prices"
	"github.com/ftchann/uniswap-twamm/lib/result"
	"github.com/ftchann/uniswap-twamm/lib/tickmath"
	ent "github.com/ftchann/uniswap-twamm/lib/transaction"

	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	ErrMissingAmount  = errors.New("executor: amount is required")
	ErrNegativeAmount = errors.New("executor: amount must not be negative")
)

const defaultPriceWindow = 1024

type Execution struct {
	Pool         *ppool.Pool
	StartTime    uint64
	Transactions []ent.Transaction
	Prices       *prices.Prices
	Decimals0    int32
	Decimals1    int32

	logger *zap.Logger
}

type Option func(*Execution)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Execution) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDecimals sets the token decimals used for human readable prices.
func WithDecimals(decimals0, decimals1 int32) Option {
	return func(e *Execution) {
		e.Decimals0, e.Decimals1 = decimals0, decimals1
	}
}

// WithPriceWindow bounds the number of price samples kept for statistics.
func WithPriceWindow(n int) Option {
	return func(e *Execution) {
		e.Prices = prices.NewPrices(n)
	}
}

// CreateExecution prepares a replay of transactions against an initialized
// pool. Transactions are replayed in timestamp order; ties keep input order.
func CreateExecution(pool *ppool.Pool, startTime uint64, transactions []ent.Transaction, opts ...Option) *Execution {
	sorted := make([]ent.Transaction, len(transactions))
	copy(sorted, transactions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	e := &Execution{
		Pool:         pool,
		StartTime:    startTime,
		Transactions: sorted,
		Prices:       prices.NewPrices(defaultPriceWindow),
		Decimals0:    18,
		Decimals1:    18,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run replays every transaction. A failing transaction is recorded with its
// error and leaves the pool untouched; the replay continues.
func (e *Execution) Run() (*result.Save, error) {
	pool := e.Pool
	save := &result.Save{
		Token0:             pool.Token0,
		Token1:             pool.Token1,
		Fee:                pool.Fee,
		TickSpacing:        pool.TickSpacing,
		ExpirationInterval: pool.TWAMM.ExpirationInterval,
		StartTime:          e.StartTime,
		EndTime:            e.StartTime,
		Events:             len(e.Transactions),
		Records:            make([]result.Record, 0, len(e.Transactions)),
	}

	for i, trans := range e.Transactions {
		record := result.Record{
			Index:     i,
			ID:        trans.ID,
			Type:      trans.Type,
			Timestamp: trans.Timestamp,
		}
		amount0, amount1, liquidity, err := e.apply(trans)
		if err != nil {
			record.Error = err.Error()
			save.Failed++
			e.logger.Warn("event failed",
				zap.Int("index", i),
				zap.String("type", trans.Type),
				zap.Uint64("timestamp", trans.Timestamp),
				zap.Error(err),
			)
		} else {
			record.Amount0 = ent.FormatSigned(amount0)
			record.Amount1 = ent.FormatSigned(amount1)
			record.Liquidity = ent.FormatSigned(liquidity)
		}
		record.SqrtPriceX96 = pool.SqrtRatioX96.Dec()
		record.Tick = pool.TickCurrent
		save.Records = append(save.Records, record)

		e.Prices.Add(pool.SqrtRatioX96)
		if trans.Timestamp > save.EndTime {
			save.EndTime = trans.Timestamp
		}
	}

	final, err := result.TakeSnapshot(pool, save.EndTime, e.Decimals0, e.Decimals1)
	if err != nil {
		return nil, fmt.Errorf("final snapshot: %w", err)
	}
	save.Final = final
	save.Prices = result.NewPriceStats(e.Prices, e.Decimals0, e.Decimals1)

	e.logger.Info("replay finished",
		zap.Int("events", save.Events),
		zap.Int("failed", save.Failed),
		zap.String("sqrt_price_x96", final.SqrtPriceX96),
		zap.Int("tick", final.Tick),
	)
	return save, nil
}

// apply returns the signed pool balance changes of trans, and for mints and
// burns the liquidity delta.
func (e *Execution) apply(trans ent.Transaction) (amount0, amount1, liquidity *ui.Int, err error) {
	pool := e.Pool
	now := trans.Timestamp

	switch trans.Type {
	case ent.TypeMint:
		if liquidity, err = e.mintLiquidity(trans); err != nil {
			return nil, nil, nil, err
		}
		amount0, amount1, err = pool.ModifyPosition(now, trans.Owner, trans.TickLower, trans.TickUpper, liquidity)

	case ent.TypeBurn:
		if trans.Amount != nil {
			if trans.Amount.Sign() < 0 {
				return nil, nil, nil, ErrNegativeAmount
			}
			liquidity = new(ui.Int).Neg(trans.Amount)
		} else if pos, ok := pool.Position(trans.Owner, trans.TickLower, trans.TickUpper); ok {
			liquidity = new(ui.Int).Neg(pos.Liquidity)
		} else {
			return nil, nil, nil, ppool.ErrPositionNotFound
		}
		amount0, amount1, err = pool.ModifyPosition(now, trans.Owner, trans.TickLower, trans.TickUpper, liquidity)

	case ent.TypeSwap:
		if trans.Amount == nil {
			return nil, nil, nil, ErrMissingAmount
		}
		limit := trans.SqrtPriceLimitX96
		if limit == nil {
			limit = new(ui.Int)
		}
		amount0, amount1, err = pool.Swap(now, trans.ZeroForOne, trans.Amount, limit)

	case ent.TypeDonate:
		amount0, amount1 = orZero(trans.Amount0), orZero(trans.Amount1)
		if amount0.Sign() < 0 || amount1.Sign() < 0 {
			return nil, nil, nil, ErrNegativeAmount
		}
		err = pool.Donate(now, amount0, amount1)

	case ent.TypeCollect:
		requested0, requested1 := cons.MaxUint128, cons.MaxUint128
		if trans.Amount0 != nil {
			requested0 = trans.Amount0
		}
		if trans.Amount1 != nil {
			requested1 = trans.Amount1
		}
		var collected0, collected1 *ui.Int
		collected0, collected1, err = pool.Collect(trans.Owner, trans.TickLower, trans.TickUpper, requested0, requested1)
		if err == nil {
			amount0, amount1 = new(ui.Int).Neg(collected0), new(ui.Int).Neg(collected1)
		}

	case ent.TypeSubmitOrder:
		if trans.Amount == nil {
			return nil, nil, nil, ErrMissingAmount
		}
		if trans.Amount.Sign() < 0 {
			return nil, nil, nil, ErrNegativeAmount
		}
		if _, err = pool.SubmitLongTermOrder(now, trans.OrderKey(), trans.Amount); err == nil {
			amount0, amount1 = orderFlows(trans.ZeroForOne, trans.Amount, new(ui.Int))
		}

	case ent.TypeUpdateOrder:
		delta := orZero(trans.AmountDelta)
		var buy, sell *ui.Int
		if buy, sell, err = pool.UpdateLongTermOrder(now, trans.OrderKey(), delta); err == nil {
			in := new(ui.Int).Neg(sell)
			if delta.Sign() > 0 {
				in = delta.Clone()
			}
			amount0, amount1 = orderFlows(trans.ZeroForOne, in, new(ui.Int).Neg(buy))
		}

	case ent.TypeExecute:
		err = pool.ExecuteTWAMMOrders(now)
		amount0, amount1 = new(ui.Int), new(ui.Int)

	default:
		err = fmt.Errorf("%w: %q", ent.ErrUnknownType, trans.Type)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return amount0, amount1, liquidity, nil
}

// mintLiquidity is the explicit amount, or the most liquidity the token
// amounts buy at the current price.
func (e *Execution) mintLiquidity(trans ent.Transaction) (*ui.Int, error) {
	if trans.Amount != nil {
		if trans.Amount.Sign() < 0 {
			return nil, ErrNegativeAmount
		}
		return trans.Amount, nil
	}
	if trans.Amount0 == nil && trans.Amount1 == nil {
		return nil, ErrMissingAmount
	}
	amount0, amount1 := orZero(trans.Amount0), orZero(trans.Amount1)
	if amount0.Sign() < 0 || amount1.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	sqrtRatioLowerX96, err := tickmath.GetSqrtRatioAtTick(trans.TickLower)
	if err != nil {
		return nil, err
	}
	sqrtRatioUpperX96, err := tickmath.GetSqrtRatioAtTick(trans.TickUpper)
	if err != nil {
		return nil, err
	}
	return liquidity_amounts.GetLiquidityForAmounts(e.Pool.SqrtRatioX96, sqrtRatioLowerX96, sqrtRatioUpperX96, amount0, amount1)
}

// orderFlows maps sell and buy token flows of an order onto token0 and token1.
func orderFlows(zeroForOne bool, sell, buy *ui.Int) (amount0, amount1 *ui.Int) {
	if zeroForOne {
		return sell, buy
	}
	return buy, sell
}

func orZero(x *ui.Int) *ui.Int {
	if x == nil {
		return new(ui.Int)
	}
	return x
}
