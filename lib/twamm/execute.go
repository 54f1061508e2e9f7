package twamm

import (
	"errors"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	fm "github.com/ftchann/uniswap-twamm/lib/fullmath"
	lm "github.com/ftchann/uniswap-twamm/lib/liquidity_math"
	spm "github.com/ftchann/uniswap-twamm/lib/sqrtprice_math"
	"github.com/ftchann/uniswap-twamm/lib/tickmath"

	ui "github.com/holiman/uint256"
)

// ExecuteTWAMMOrders trades both order pools against the curve from the last
// virtual order timestamp up to now. Every expiration boundary in between is
// settled in ascending order, so one call spanning several intervals leaves
// the same state as one call per interval.
func (s *State) ExecuteTWAMMOrders(now uint64, pool *PoolParams, ticks TickSource) error {
	if !s.initialized {
		return ErrNotInitialized
	}
	if now < s.LastVirtualOrderTimestamp {
		return ErrTimestampRegression
	}
	if !s.hasOutstandingOrders() {
		s.LastVirtualOrderTimestamp = now
		return nil
	}

	prev := s.LastVirtualOrderTimestamp
	next := prev - prev%s.ExpirationInterval + s.ExpirationInterval
	for next <= now && s.hasOutstandingOrders() {
		if err := s.advance(prev, next, true, pool, ticks); err != nil {
			return err
		}
		prev = next
		next += s.ExpirationInterval
	}
	if prev < now && s.hasOutstandingOrders() {
		if err := s.advance(prev, now, false, pool, ticks); err != nil {
			return err
		}
	}
	s.LastVirtualOrderTimestamp = now
	return nil
}

func (s *State) advance(from, to uint64, atInterval bool, pool *PoolParams, ticks TickSource) error {
	seconds := to - from
	rate0, rate1 := s.OrderPool0For1.SellRateCurrent, s.OrderPool1For0.SellRateCurrent

	var (
		earnings0 = new(ui.Int)
		earnings1 = new(ui.Int)
		err       error
	)
	switch {
	case !rate0.IsZero() && !rate1.IsZero():
		earnings0, earnings1, err = s.advanceBothPools(seconds, pool, ticks)
	case !rate0.IsZero():
		earnings0, err = s.advanceOnePool(true, seconds, pool, ticks)
	case !rate1.IsZero():
		earnings1, err = s.advanceOnePool(false, seconds, pool, ticks)
	}
	if err != nil {
		return err
	}

	if atInterval {
		s.OrderPool0For1.advanceToInterval(to, earnings0)
		s.OrderPool1For0.advanceToInterval(to, earnings1)
	} else {
		s.OrderPool0For1.advanceToCurrentTime(earnings0)
		s.OrderPool1For0.advanceToCurrentTime(earnings1)
	}
	return nil
}

// advanceBothPools integrates both sell rates over seconds, splitting the
// window at every initialized tick the price passes.
func (s *State) advanceBothPools(seconds uint64, pool *PoolParams, ticks TickSource) (earnings0, earnings1 *ui.Int, err error) {
	earnings0, earnings1 = new(ui.Int), new(ui.Int)
	remaining := new(ui.Int).Lsh(ui.NewInt(seconds), 96)

	for !remaining.IsZero() {
		params := ExecutionParams{
			SecondsElapsedX96: remaining,
			SqrtPriceX96:      pool.SqrtPriceX96,
			Liquidity:         pool.Liquidity,
			SellRate0:         s.OrderPool0For1.SellRateCurrent,
			SellRate1:         s.OrderPool1For0.SellRateCurrent,
		}
		final, err := NewSqrtPriceX96(params)
		if err != nil {
			return nil, nil, err
		}
		zeroForOne := final.Lt(pool.SqrtPriceX96)
		tick, crossing, err := nextCrossing(pool, final, zeroForOne, ticks)
		if err != nil {
			return nil, nil, err
		}
		var tickPrice *ui.Int
		if crossing {
			if tickPrice, err = tickmath.GetSqrtRatioAtTick(tick); err != nil {
				return nil, nil, err
			}
		}

		// S is only approached, so a tick sitting exactly at S stays uncrossed
		// and the price rests on its boundary from below.
		atSellRatio := false
		if crossing && !zeroForOne && tickPrice.Eq(final) {
			sellRatioX96, err := SqrtSellRatioX96(params.SellRate0, params.SellRate1)
			if err != nil {
				return nil, nil, err
			}
			atSellRatio = final.Eq(sellRatioX96)
		}

		if !crossing || atSellRatio {
			e0, e1, err := CalculateEarningsUpdates(params, final)
			if err != nil {
				return nil, nil, err
			}
			earnings0.Add(earnings0, e0)
			earnings1.Add(earnings1, e1)
			switch {
			case atSellRatio:
				pool.Tick = tick - 1
				pool.SqrtPriceX96 = final
			case !final.Eq(pool.SqrtPriceX96):
				if pool.Tick, err = tickmath.GetTickAtSqrtRatio(final); err != nil {
					return nil, nil, err
				}
				pool.SqrtPriceX96 = final
			}
			return earnings0, earnings1, nil
		}

		elapsed, err := CalculateTimeBetweenTicks(pool.Liquidity, pool.SqrtPriceX96, tickPrice, params.SellRate0, params.SellRate1)
		if err != nil {
			return nil, nil, err
		}
		if elapsed.Gt(remaining) {
			elapsed = remaining.Clone()
		}
		params.SecondsElapsedX96 = elapsed
		e0, e1, err := CalculateEarningsUpdates(params, tickPrice)
		if err != nil {
			return nil, nil, err
		}
		earnings0.Add(earnings0, e0)
		earnings1.Add(earnings1, e1)

		pool.SqrtPriceX96 = tickPrice
		if err := crossTick(pool, ticks, tick, zeroForOne); err != nil {
			return nil, nil, err
		}
		remaining = new(ui.Int).Sub(remaining, elapsed)
	}
	return earnings0, earnings1, nil
}

// advanceOnePool sells rate*seconds of one token into the curve like an
// exact input swap without fee. It returns the earnings factor of the
// selling pool.
func (s *State) advanceOnePool(zeroForOne bool, seconds uint64, pool *PoolParams, ticks TickSource) (*ui.Int, error) {
	sellRate := s.OrderPool(zeroForOne).SellRateCurrent
	remaining, overflow := new(ui.Int).MulOverflow(sellRate, ui.NewInt(seconds))
	if overflow {
		return nil, fm.ErrOverflow
	}
	earned := new(ui.Int)

	for !remaining.IsZero() {
		if pool.Liquidity.IsZero() {
			bound := tickmath.MaxTick
			if zeroForOne {
				bound = tickmath.MinTick
			}
			next, initialized := ticks.NextInitializedTick(pool.Tick, zeroForOne, bound)
			if !initialized {
				// nothing left to trade against
				break
			}
			var err error
			if pool.SqrtPriceX96, err = tickmath.GetSqrtRatioAtTick(next); err != nil {
				return nil, err
			}
			if err := crossTick(pool, ticks, next, zeroForOne); err != nil {
				return nil, err
			}
			continue
		}

		final, err := spm.GetNextSqrtPriceFromInput(pool.SqrtPriceX96, pool.Liquidity, remaining, zeroForOne)
		switch {
		case errors.Is(err, spm.ErrPriceOverflow) && zeroForOne:
			final = tickmath.MinSqrtRatio.Clone()
		case errors.Is(err, spm.ErrPriceOverflow):
			final = maxSqrtPrice.Clone()
		case err != nil:
			return nil, err
		default:
			final = clampSqrtPrice(final)
		}

		tick, crossing, err := nextCrossing(pool, final, zeroForOne, ticks)
		if err != nil {
			return nil, err
		}
		if crossing {
			tickPrice, err := tickmath.GetSqrtRatioAtTick(tick)
			if err != nil {
				return nil, err
			}
			sold, bought, err := sellDeltas(pool.SqrtPriceX96, tickPrice, pool.Liquidity, zeroForOne)
			if err != nil {
				return nil, err
			}
			earned.Add(earned, bought)
			if sold.Gt(remaining) {
				remaining.Clear()
			} else {
				remaining.Sub(remaining, sold)
			}
			pool.SqrtPriceX96 = tickPrice
			if err := crossTick(pool, ticks, tick, zeroForOne); err != nil {
				return nil, err
			}
			continue
		}

		_, bought, err := sellDeltas(pool.SqrtPriceX96, final, pool.Liquidity, zeroForOne)
		if err != nil {
			return nil, err
		}
		earned.Add(earned, bought)
		if !final.Eq(pool.SqrtPriceX96) {
			if pool.Tick, err = tickmath.GetTickAtSqrtRatio(final); err != nil {
				return nil, err
			}
			pool.SqrtPriceX96 = final
		}
		break
	}
	return fm.MulDiv(earned, cons.Q96, sellRate)
}

// sellDeltas returns the amount sold into the curve, rounded up, and the
// amount bought out of it, rounded down, for a move between two prices.
func sellDeltas(from, to, liquidity *ui.Int, zeroForOne bool) (sold, bought *ui.Int, err error) {
	if zeroForOne {
		if sold, err = spm.GetAmount0Delta(from, to, liquidity, true); err != nil {
			return nil, nil, err
		}
		bought, err = spm.GetAmount1Delta(from, to, liquidity, false)
		return sold, bought, err
	}
	if sold, err = spm.GetAmount1Delta(from, to, liquidity, true); err != nil {
		return nil, nil, err
	}
	bought, err = spm.GetAmount0Delta(from, to, liquidity, false)
	return sold, bought, err
}

// nextCrossing reports the first initialized tick passed on the way from the
// pool price to final. Moving down, a tick is passed once the price drops
// below it; moving up, once the price reaches it.
func nextCrossing(pool *PoolParams, final *ui.Int, zeroForOne bool, ticks TickSource) (int, bool, error) {
	if final.Eq(pool.SqrtPriceX96) {
		return 0, false, nil
	}
	target, err := tickmath.GetTickAtSqrtRatio(final)
	if err != nil {
		return 0, false, err
	}
	if zeroForOne {
		if pool.Tick <= target {
			return 0, false, nil
		}
		next, initialized := ticks.NextInitializedTick(pool.Tick, true, target+1)
		return next, initialized, nil
	}
	if pool.Tick >= target {
		return 0, false, nil
	}
	next, initialized := ticks.NextInitializedTick(pool.Tick, false, target)
	return next, initialized, nil
}

func crossTick(pool *PoolParams, ticks TickSource, tick int, zeroForOne bool) error {
	liquidityNet := ticks.CrossTick(tick)
	if zeroForOne {
		liquidityNet = new(ui.Int).Neg(liquidityNet)
		pool.Tick = tick - 1
	} else {
		pool.Tick = tick
	}
	liquidity, err := lm.AddDelta(pool.Liquidity, liquidityNet)
	if err != nil {
		return err
	}
	pool.Liquidity = liquidity
	return nil
}
