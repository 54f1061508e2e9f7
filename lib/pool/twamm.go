package pool

import (
	"github.com/ftchann/uniswap-twamm/lib/twamm"

	ui "github.com/holiman/uint256"
	"go.uber.org/zap"
)

// twammTicks lets virtual orders cross the pool's initialized ticks.
type twammTicks struct {
	pool *Pool
}

func (t twammTicks) NextInitializedTick(tick int, lte bool, bound int) (int, bool) {
	return t.pool.Bitmap.NextInitializedTick(tick, lte, bound)
}

func (t twammTicks) CrossTick(tick int) *ui.Int {
	t.pool.logger.Debug("virtual orders crossed tick", zap.Int("tick", tick))
	return t.pool.Ticks.Cross(tick, t.pool.FeeGrowthGlobal0X128, t.pool.FeeGrowthGlobal1X128)
}

func (p *Pool) executeTWAMMOrders(now uint64) error {
	from := p.TWAMM.LastVirtualOrderTimestamp
	params := &twamm.PoolParams{
		SqrtPriceX96: p.SqrtRatioX96,
		Tick:         p.TickCurrent,
		Liquidity:    p.Liquidity,
	}
	if err := p.TWAMM.ExecuteTWAMMOrders(now, params, twammTicks{pool: p}); err != nil {
		return err
	}
	if !params.SqrtPriceX96.Eq(p.SqrtRatioX96) {
		p.logger.Debug("executed virtual orders",
			zap.Uint64("from", from),
			zap.Uint64("to", now),
			zap.String("sqrt_price_x96", params.SqrtPriceX96.Dec()),
			zap.Int("tick", params.Tick),
		)
	}
	p.SqrtRatioX96 = params.SqrtPriceX96
	p.TickCurrent = params.Tick
	p.Liquidity = params.Liquidity
	return nil
}

// ExecuteTWAMMOrders trades outstanding long term orders up to now.
func (p *Pool) ExecuteTWAMMOrders(now uint64) error {
	return p.atomic(func(p *Pool) error {
		if !p.Initialized() {
			return ErrPoolNotInitialized
		}
		return p.executeTWAMMOrders(now)
	})
}

// SubmitLongTermOrder sells amountIn evenly until key.Expiration.
func (p *Pool) SubmitLongTermOrder(now uint64, key twamm.OrderKey, amountIn *ui.Int) (order *twamm.Order, err error) {
	err = p.atomic(func(p *Pool) error {
		if !p.Initialized() {
			return ErrPoolNotInitialized
		}
		params := &twamm.PoolParams{SqrtPriceX96: p.SqrtRatioX96, Tick: p.TickCurrent, Liquidity: p.Liquidity}
		if order, err = p.TWAMM.SubmitLongTermOrder(now, params, twammTicks{pool: p}, key, amountIn); err != nil {
			return err
		}
		p.SqrtRatioX96, p.TickCurrent, p.Liquidity = params.SqrtPriceX96, params.Tick, params.Liquidity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateLongTermOrder claims the order's proceeds and changes the amount it
// has left to sell by amountDelta. twamm.CancelAllDelta cancels the order.
func (p *Pool) UpdateLongTermOrder(now uint64, key twamm.OrderKey, amountDelta *ui.Int) (buyTokensOwed, sellTokensOwed *ui.Int, err error) {
	err = p.atomic(func(p *Pool) error {
		if !p.Initialized() {
			return ErrPoolNotInitialized
		}
		params := &twamm.PoolParams{SqrtPriceX96: p.SqrtRatioX96, Tick: p.TickCurrent, Liquidity: p.Liquidity}
		if buyTokensOwed, sellTokensOwed, err = p.TWAMM.UpdateLongTermOrder(now, params, twammTicks{pool: p}, key, amountDelta); err != nil {
			return err
		}
		p.SqrtRatioX96, p.TickCurrent, p.Liquidity = params.SqrtPriceX96, params.Tick, params.Liquidity
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return buyTokensOwed, sellTokensOwed, nil
}
