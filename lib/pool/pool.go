// Package pool is a single concentrated liquidity pool with long term orders.
// Every mutating call first executes outstanding virtual orders and either
// applies completely or leaves the pool untouched.
package pool

import (
	"errors"
	"fmt"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	"github.com/ftchann/uniswap-twamm/lib/fullmath"
	lm "github.com/ftchann/uniswap-twamm/lib/liquidity_math"
	"github.com/ftchann/uniswap-twamm/lib/position"
	"github.com/ftchann/uniswap-twamm/lib/sqrtprice_math"
	"github.com/ftchann/uniswap-twamm/lib/swapmath"
	"github.com/ftchann/uniswap-twamm/lib/tickbitmap"
	td "github.com/ftchann/uniswap-twamm/lib/tickdata"
	"github.com/ftchann/uniswap-twamm/lib/tickmath"
	"github.com/ftchann/uniswap-twamm/lib/twamm"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

var (
	ErrPoolNotInitialized     = errors.New("pool: not initialized")
	ErrPoolAlreadyInitialized = errors.New("pool: already initialized")
	ErrInvalidTickSpacing     = errors.New("pool: invalid tick spacing")
	ErrInvalidTickRange       = errors.New("pool: invalid tick range")
	ErrInvalidLiquidityDelta  = errors.New("pool: liquidity delta outside int128")
	ErrInvalidPriceLimit      = errors.New("pool: invalid sqrt price limit")
	ErrZeroAmount             = errors.New("pool: amount specified is zero")
	ErrNoLiquidity            = errors.New("pool: no liquidity in range")
	ErrPositionNotFound       = errors.New("pool: position does not exist")
)

// MaxTickSpacing keeps a bitmap word search inside the tick range.
const MaxTickSpacing = 16384

type stepComputations struct {
	sqrtPriceStartX96 *ui.Int
	tickNext          int
	initialized       bool
	sqrtPriceNextX96  *ui.Int
	amountIn          *ui.Int
	amountOut         *ui.Int
	feeAmount         *ui.Int
}

type swapState struct {
	amountSpecifiedRemainingI *ui.Int
	amountCalculatedI         *ui.Int
	sqrtPriceX96              *ui.Int
	tick                      int
	feeGrowthGlobalX128       *ui.Int
	liquidity                 *ui.Int
}

type Pool struct {
	Token0               string
	Token1               string
	Fee                  uint32
	TickSpacing          int
	MaxLiquidityPerTick  *ui.Int
	SqrtRatioX96         *ui.Int
	TickCurrent          int
	Liquidity            *ui.Int
	FeeGrowthGlobal0X128 *ui.Int
	FeeGrowthGlobal1X128 *ui.Int
	Ticks                td.Ticks
	Bitmap               *tickbitmap.TickBitmap
	Positions            map[position.Key]*position.Info
	TWAMM                *twamm.State

	logger *zap.Logger
}

type Option func(*Pool)

// WithLogger sets the logger for tick crossings and virtual order execution.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool returns an uninitialized pool. Long term orders expire on multiples
// of expirationInterval seconds.
func NewPool(token0, token1 string, fee uint32, tickSpacing int, expirationInterval uint64, opts ...Option) (*Pool, error) {
	if fee >= swapmath.MaxFee {
		return nil, swapmath.ErrInvalidFee
	}
	if tickSpacing <= 0 || tickSpacing > MaxTickSpacing {
		return nil, ErrInvalidTickSpacing
	}
	pool := &Pool{
		Token0:               token0,
		Token1:               token1,
		Fee:                  fee,
		TickSpacing:          tickSpacing,
		MaxLiquidityPerTick:  td.TickSpacingToMaxLiquidityPerTick(tickSpacing),
		SqrtRatioX96:         new(ui.Int),
		Liquidity:            new(ui.Int),
		FeeGrowthGlobal0X128: new(ui.Int),
		FeeGrowthGlobal1X128: new(ui.Int),
		Ticks:                td.NewTicks(),
		Bitmap:               tickbitmap.New(tickSpacing),
		Positions:            make(map[position.Key]*position.Info),
		TWAMM:                twamm.NewState(expirationInterval),
		logger:               zap.NewNop(),
	}
	for _, opt := range opts {
		opt(pool)
	}
	return pool, nil
}

func (p *Pool) Clone() *Pool {
	positions := make(map[position.Key]*position.Info, len(p.Positions))
	for k, v := range p.Positions {
		positions[k] = v.Clone()
	}
	return &Pool{
		Token0:               p.Token0,
		Token1:               p.Token1,
		Fee:                  p.Fee,
		TickSpacing:          p.TickSpacing,
		MaxLiquidityPerTick:  p.MaxLiquidityPerTick.Clone(),
		SqrtRatioX96:         p.SqrtRatioX96.Clone(),
		TickCurrent:          p.TickCurrent,
		Liquidity:            p.Liquidity.Clone(),
		FeeGrowthGlobal0X128: p.FeeGrowthGlobal0X128.Clone(),
		FeeGrowthGlobal1X128: p.FeeGrowthGlobal1X128.Clone(),
		Ticks:                p.Ticks.Clone(),
		Bitmap:               p.Bitmap.Clone(),
		Positions:            positions,
		TWAMM:                p.TWAMM.Clone(),
		logger:               p.logger,
	}
}

// atomic runs fn against a copy of the pool and keeps the copy only if fn
// succeeds.
func (p *Pool) atomic(fn func(*Pool) error) error {
	clone := p.Clone()
	if err := fn(clone); err != nil {
		return err
	}
	*p = *clone
	return nil
}

func (p *Pool) Initialized() bool {
	return !p.SqrtRatioX96.IsZero()
}

// Initialize sets the starting price and starts the long term order clock.
func (p *Pool) Initialize(now uint64, sqrtPriceX96 *ui.Int) error {
	if p.Initialized() {
		return ErrPoolAlreadyInitialized
	}
	return p.atomic(func(p *Pool) error {
		tick, err := tickmath.GetTickAtSqrtRatio(sqrtPriceX96)
		if err != nil {
			return err
		}
		if err := p.TWAMM.Initialize(now); err != nil {
			return err
		}
		p.SqrtRatioX96 = sqrtPriceX96.Clone()
		p.TickCurrent = tick
		return nil
	})
}

func (p *Pool) Position(owner common.Address, tickLower, tickUpper int) (*position.Info, bool) {
	pos, ok := p.Positions[position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}]
	return pos, ok
}

func (p *Pool) checkTicks(tickLower, tickUpper int) error {
	if tickLower >= tickUpper || tickLower < tickmath.MinTick || tickUpper > tickmath.MaxTick {
		return ErrInvalidTickRange
	}
	if tickLower%p.TickSpacing != 0 || tickUpper%p.TickSpacing != 0 {
		return fmt.Errorf("%w: ticks not multiples of %d", ErrInvalidTickRange, p.TickSpacing)
	}
	return nil
}

// ModifyPosition adds (positive) or removes (negative) liquidity from the
// owner's position and returns the signed token amounts: positive amounts are
// owed to the pool. Removed liquidity is credited to the position's tokens
// owed and paid out by Collect.
func (p *Pool) ModifyPosition(now uint64, owner common.Address, tickLower, tickUpper int, liquidityDelta *ui.Int) (amount0, amount1 *ui.Int, err error) {
	err = p.atomic(func(p *Pool) error {
		if !p.Initialized() {
			return ErrPoolNotInitialized
		}
		if err := p.checkTicks(tickLower, tickUpper); err != nil {
			return err
		}
		if !lm.IsInt128(liquidityDelta) {
			return ErrInvalidLiquidityDelta
		}
		if err := p.executeTWAMMOrders(now); err != nil {
			return err
		}
		amount0, amount1, err = p.modifyPosition(owner, tickLower, tickUpper, liquidityDelta)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func (p *Pool) modifyPosition(owner common.Address, tickLower, tickUpper int, liquidityDelta *ui.Int) (amount0, amount1 *ui.Int, err error) {
	pos, err := p.updatePosition(owner, tickLower, tickUpper, liquidityDelta)
	if err != nil {
		return nil, nil, err
	}

	amount0, amount1 = new(ui.Int), new(ui.Int)
	if liquidityDelta.IsZero() {
		return amount0, amount1, nil
	}
	sqrtRatioLowerX96, err := tickmath.GetSqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, nil, err
	}
	sqrtRatioUpperX96, err := tickmath.GetSqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case p.TickCurrent < tickLower:
		// range is above the price, only token0 is needed
		amount0, err = sqrtprice_math.GetAmount0DeltaRounded(sqrtRatioLowerX96, sqrtRatioUpperX96, liquidityDelta)
	case p.TickCurrent < tickUpper:
		if amount0, err = sqrtprice_math.GetAmount0DeltaRounded(p.SqrtRatioX96, sqrtRatioUpperX96, liquidityDelta); err != nil {
			return nil, nil, err
		}
		if amount1, err = sqrtprice_math.GetAmount1DeltaRounded(sqrtRatioLowerX96, p.SqrtRatioX96, liquidityDelta); err != nil {
			return nil, nil, err
		}
		p.Liquidity, err = lm.AddDelta(p.Liquidity, liquidityDelta)
	default:
		amount1, err = sqrtprice_math.GetAmount1DeltaRounded(sqrtRatioLowerX96, sqrtRatioUpperX96, liquidityDelta)
	}
	if err != nil {
		return nil, nil, err
	}

	if liquidityDelta.Sign() < 0 {
		pos.TokensOwed0 = new(ui.Int).Sub(pos.TokensOwed0, amount0)
		pos.TokensOwed1 = new(ui.Int).Sub(pos.TokensOwed1, amount1)
	}
	return amount0, amount1, nil
}

func (p *Pool) updatePosition(owner common.Address, tickLower, tickUpper int, liquidityDelta *ui.Int) (*position.Info, error) {
	key := position.Key{Owner: owner, TickLower: tickLower, TickUpper: tickUpper}
	pos, ok := p.Positions[key]
	if !ok {
		if liquidityDelta.Sign() < 0 {
			return nil, ErrPositionNotFound
		}
		pos = position.NewPosition()
	}

	var flippedLower, flippedUpper bool
	if !liquidityDelta.IsZero() {
		var err error
		if flippedLower, err = p.Ticks.Update(tickLower, p.TickCurrent, liquidityDelta, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128, false, p.MaxLiquidityPerTick); err != nil {
			return nil, err
		}
		if flippedUpper, err = p.Ticks.Update(tickUpper, p.TickCurrent, liquidityDelta, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128, true, p.MaxLiquidityPerTick); err != nil {
			return nil, err
		}
		if flippedLower {
			if err := p.Bitmap.FlipTick(tickLower); err != nil {
				return nil, err
			}
		}
		if flippedUpper {
			if err := p.Bitmap.FlipTick(tickUpper); err != nil {
				return nil, err
			}
		}
	}

	feeGrowthInside0X128, feeGrowthInside1X128 := p.Ticks.GetFeeGrowthInside(tickLower, tickUpper, p.TickCurrent, p.FeeGrowthGlobal0X128, p.FeeGrowthGlobal1X128)
	if err := pos.Update(liquidityDelta, feeGrowthInside0X128, feeGrowthInside1X128); err != nil {
		return nil, err
	}
	p.Positions[key] = pos

	// cleared ticks are no longer needed once liquidity is removed
	if liquidityDelta.Sign() < 0 {
		if flippedLower {
			p.Ticks.Clear(tickLower)
		}
		if flippedUpper {
			p.Ticks.Clear(tickUpper)
		}
	}
	return pos, nil
}

// Collect pays out up to the requested amounts of what the position is owed.
func (p *Pool) Collect(owner common.Address, tickLower, tickUpper int, amount0Requested, amount1Requested *ui.Int) (amount0, amount1 *ui.Int, err error) {
	pos, ok := p.Position(owner, tickLower, tickUpper)
	if !ok {
		return nil, nil, ErrPositionNotFound
	}
	amount0, amount1 = pos.Collect(amount0Requested, amount1Requested)
	return amount0, amount1, nil
}

// Donate distributes the amounts as fees to liquidity in range.
func (p *Pool) Donate(now uint64, amount0, amount1 *ui.Int) error {
	return p.atomic(func(p *Pool) error {
		if !p.Initialized() {
			return ErrPoolNotInitialized
		}
		if err := p.executeTWAMMOrders(now); err != nil {
			return err
		}
		if p.Liquidity.IsZero() {
			return ErrNoLiquidity
		}
		fee0Q128, err := fullmath.MulDiv(amount0, cons.Q128, p.Liquidity)
		if err != nil {
			return err
		}
		fee1Q128, err := fullmath.MulDiv(amount1, cons.Q128, p.Liquidity)
		if err != nil {
			return err
		}
		p.FeeGrowthGlobal0X128 = new(ui.Int).Add(p.FeeGrowthGlobal0X128, fee0Q128)
		p.FeeGrowthGlobal1X128 = new(ui.Int).Add(p.FeeGrowthGlobal1X128, fee1Q128)
		return nil
	})
}

// Swap trades against the pool. amountSpecified is exact input when positive
// and exact output when negative; the price stops at sqrtPriceLimitX96, which
// may be zero for no limit. Returned amounts are signed pool balance changes.
func (p *Pool) Swap(now uint64, zeroForOne bool, amountSpecified, sqrtPriceLimitX96 *ui.Int) (amount0, amount1 *ui.Int, err error) {
	err = p.atomic(func(p *Pool) error {
		if !p.Initialized() {
			return ErrPoolNotInitialized
		}
		if amountSpecified.IsZero() {
			return ErrZeroAmount
		}
		if err := p.executeTWAMMOrders(now); err != nil {
			return err
		}
		amount0, amount1, err = p.swap(zeroForOne, amountSpecified, sqrtPriceLimitX96)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

func (p *Pool) swap(zeroForOne bool, amountSpecified, sqrtPriceLimitX96In *ui.Int) (amount0, amount1 *ui.Int, err error) {
	sqrtPriceLimitX96 := sqrtPriceLimitX96In.Clone()
	if sqrtPriceLimitX96.IsZero() {
		if zeroForOne {
			sqrtPriceLimitX96.Add(tickmath.MinSqrtRatio, cons.One)
		} else {
			sqrtPriceLimitX96.Sub(tickmath.MaxSqrtRatio, cons.One)
		}
	}
	if zeroForOne {
		if !sqrtPriceLimitX96.Lt(p.SqrtRatioX96) || !sqrtPriceLimitX96.Gt(tickmath.MinSqrtRatio) {
			return nil, nil, ErrInvalidPriceLimit
		}
	} else if !sqrtPriceLimitX96.Gt(p.SqrtRatioX96) || !sqrtPriceLimitX96.Lt(tickmath.MaxSqrtRatio) {
		return nil, nil, ErrInvalidPriceLimit
	}
	exactInput := amountSpecified.Sign() > 0

	var feeGrowthGlobalX128 *ui.Int
	if zeroForOne {
		feeGrowthGlobalX128 = p.FeeGrowthGlobal0X128.Clone()
	} else {
		feeGrowthGlobalX128 = p.FeeGrowthGlobal1X128.Clone()
	}
	state := swapState{
		amountSpecifiedRemainingI: amountSpecified.Clone(),
		amountCalculatedI:         new(ui.Int),
		sqrtPriceX96:              p.SqrtRatioX96.Clone(),
		tick:                      p.TickCurrent,
		feeGrowthGlobalX128:       feeGrowthGlobalX128,
		liquidity:                 p.Liquidity.Clone(),
	}

	for !state.amountSpecifiedRemainingI.IsZero() && !state.sqrtPriceX96.Eq(sqrtPriceLimitX96) {
		var step stepComputations
		step.sqrtPriceStartX96 = state.sqrtPriceX96
		step.tickNext, step.initialized = p.Bitmap.NextInitializedTickWithinOneWord(state.tick, zeroForOne)

		if step.tickNext < tickmath.MinTick {
			step.tickNext = tickmath.MinTick
		} else if step.tickNext > tickmath.MaxTick {
			step.tickNext = tickmath.MaxTick
		}

		if step.sqrtPriceNextX96, err = tickmath.GetSqrtRatioAtTick(step.tickNext); err != nil {
			return nil, nil, err
		}
		targetValue := step.sqrtPriceNextX96
		if (zeroForOne && step.sqrtPriceNextX96.Lt(sqrtPriceLimitX96)) || (!zeroForOne && step.sqrtPriceNextX96.Gt(sqrtPriceLimitX96)) {
			targetValue = sqrtPriceLimitX96
		}

		state.sqrtPriceX96, step.amountIn, step.amountOut, step.feeAmount, err = swapmath.ComputeSwapStep(
			state.sqrtPriceX96, targetValue, state.liquidity, state.amountSpecifiedRemainingI, p.Fee)
		if err != nil {
			return nil, nil, err
		}

		if exactInput {
			state.amountSpecifiedRemainingI = new(ui.Int).Sub(state.amountSpecifiedRemainingI, new(ui.Int).Add(step.amountIn, step.feeAmount))
			state.amountCalculatedI = new(ui.Int).Sub(state.amountCalculatedI, step.amountOut)
		} else {
			state.amountSpecifiedRemainingI = new(ui.Int).Add(state.amountSpecifiedRemainingI, step.amountOut)
			state.amountCalculatedI = new(ui.Int).Add(state.amountCalculatedI, new(ui.Int).Add(step.amountIn, step.feeAmount))
		}

		if !state.liquidity.IsZero() {
			fee, err := fullmath.MulDiv(step.feeAmount, cons.Q128, state.liquidity)
			if err != nil {
				return nil, nil, err
			}
			state.feeGrowthGlobalX128 = new(ui.Int).Add(state.feeGrowthGlobalX128, fee)
		}

		if state.sqrtPriceX96.Eq(step.sqrtPriceNextX96) {
			if step.initialized {
				feeGrowthGlobal0X128, feeGrowthGlobal1X128 := p.FeeGrowthGlobal0X128, state.feeGrowthGlobalX128
				if zeroForOne {
					feeGrowthGlobal0X128, feeGrowthGlobal1X128 = state.feeGrowthGlobalX128, p.FeeGrowthGlobal1X128
				}
				liquidityNet := p.Ticks.Cross(step.tickNext, feeGrowthGlobal0X128, feeGrowthGlobal1X128)
				if zeroForOne {
					liquidityNet.Neg(liquidityNet)
				}
				if state.liquidity, err = lm.AddDelta(state.liquidity, liquidityNet); err != nil {
					return nil, nil, err
				}
				p.logger.Debug("swap crossed tick", zap.Int("tick", step.tickNext), zap.String("liquidity", state.liquidity.Dec()))
			}
			if zeroForOne {
				state.tick = step.tickNext - 1
			} else {
				state.tick = step.tickNext
			}
		} else if !state.sqrtPriceX96.Eq(step.sqrtPriceStartX96) {
			if state.tick, err = tickmath.GetTickAtSqrtRatio(state.sqrtPriceX96); err != nil {
				return nil, nil, err
			}
		}
	}

	p.TickCurrent = state.tick
	p.Liquidity = state.liquidity
	p.SqrtRatioX96 = state.sqrtPriceX96
	if zeroForOne {
		p.FeeGrowthGlobal0X128 = state.feeGrowthGlobalX128
	} else {
		p.FeeGrowthGlobal1X128 = state.feeGrowthGlobalX128
	}

	amount0, amount1 = new(ui.Int), new(ui.Int)
	if zeroForOne == exactInput {
		amount0.Sub(amountSpecified, state.amountSpecifiedRemainingI)
		amount1.Set(state.amountCalculatedI)
	} else {
		amount0.Set(state.amountCalculatedI)
		amount1.Sub(amountSpecified, state.amountSpecifiedRemainingI)
	}
	return amount0, amount1, nil
}
