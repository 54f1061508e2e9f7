// Package twamm executes long term orders as continuous sell rates against a
// concentrated liquidity curve. Sold amounts are split into expiration
// intervals; all orders of one direction share an OrderPool.
package twamm

import (
	"errors"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	fm "github.com/ftchann/uniswap-twamm/lib/fullmath"
	lm "github.com/ftchann/uniswap-twamm/lib/liquidity_math"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
)

var (
	ErrNotInitialized              = errors.New("twamm: not initialized")
	ErrAlreadyInitialized          = errors.New("twamm: already initialized")
	ErrInvalidExpirationInterval   = errors.New("twamm: expiration interval must be positive")
	ErrExpirationLessThanBlocktime = errors.New("twamm: expiration not in the future")
	ErrExpirationNotOnInterval     = errors.New("twamm: expiration not on an interval boundary")
	ErrZeroSellRate                = errors.New("twamm: sell rate is zero")
	ErrOrderNotFound               = errors.New("twamm: order does not exist")
	ErrCannotModifyCompletedOrder  = errors.New("twamm: order already completed")
	ErrInvalidAmountDelta          = errors.New("twamm: amount delta exceeds the unsold amount")
	ErrTimestampRegression         = errors.New("twamm: timestamp before last virtual order execution")
	ErrUnreachablePrice            = errors.New("twamm: price not reachable by the sell ratio")
	ErrInvalidPrice                = errors.New("twamm: zero price")
)

// CancelAllDelta cancels whatever an order has left to sell.
var CancelAllDelta = cons.MinInt128.Clone()

// OrderKey identifies a long term order.
type OrderKey struct {
	Owner      common.Address
	Expiration uint64
	ZeroForOne bool
}

// Order is one owner's long term order, tracked against its pool's
// earnings factor.
type Order struct {
	SellRate           *ui.Int
	EarningsFactorLast *ui.Int
	// proceeds settled when more was added to the order, paid on the next update
	UnclaimedEarnings *ui.Int
}

func (o *Order) Clone() *Order {
	return &Order{
		SellRate:           o.SellRate.Clone(),
		EarningsFactorLast: o.EarningsFactorLast.Clone(),
		UnclaimedEarnings:  o.UnclaimedEarnings.Clone(),
	}
}

// PoolParams is the curve state virtual orders trade against. Execution
// moves it in place.
type PoolParams struct {
	SqrtPriceX96 *ui.Int
	Tick         int
	Liquidity    *ui.Int
}

// TickSource is the pool's initialized tick index. CrossTick must flip the
// tick's fee growth outside and return its liquidity net.
type TickSource interface {
	NextInitializedTick(tick int, lte bool, bound int) (next int, initialized bool)
	CrossTick(tick int) (liquidityNet *ui.Int)
}

// State is the TWAMM state of one pool. Operations are not atomic on their
// own: a failed call may leave State, PoolParams and the tick source
// partially advanced, so callers run them against copies.
type State struct {
	ExpirationInterval        uint64
	LastVirtualOrderTimestamp uint64
	OrderPool0For1            *OrderPool
	OrderPool1For0            *OrderPool
	Orders                    map[OrderKey]*Order

	initialized bool
}

// NewState returns an uninitialized state with empty order pools.
func NewState(expirationInterval uint64) *State {
	return &State{
		ExpirationInterval: expirationInterval,
		OrderPool0For1:     newOrderPool(),
		OrderPool1For0:     newOrderPool(),
		Orders:             make(map[OrderKey]*Order),
	}
}

func (s *State) Clone() *State {
	orders := make(map[OrderKey]*Order, len(s.Orders))
	for k, v := range s.Orders {
		orders[k] = v.Clone()
	}
	return &State{
		ExpirationInterval:        s.ExpirationInterval,
		LastVirtualOrderTimestamp: s.LastVirtualOrderTimestamp,
		OrderPool0For1:            s.OrderPool0For1.Clone(),
		OrderPool1For0:            s.OrderPool1For0.Clone(),
		Orders:                    orders,
		initialized:               s.initialized,
	}
}

func (s *State) Initialized() bool {
	return s.initialized
}

func (s *State) Initialize(now uint64) error {
	if s.initialized {
		return ErrAlreadyInitialized
	}
	if s.ExpirationInterval == 0 {
		return ErrInvalidExpirationInterval
	}
	s.LastVirtualOrderTimestamp = now
	s.initialized = true
	return nil
}

// OrderPool returns the pool of orders selling token0 (zeroForOne) or token1.
func (s *State) OrderPool(zeroForOne bool) *OrderPool {
	if zeroForOne {
		return s.OrderPool0For1
	}
	return s.OrderPool1For0
}

func (s *State) Order(key OrderKey) (*Order, bool) {
	order, ok := s.Orders[key]
	return order, ok
}

func (s *State) hasOutstandingOrders() bool {
	return !s.OrderPool0For1.SellRateCurrent.IsZero() || !s.OrderPool1For0.SellRateCurrent.IsZero()
}

// SubmitLongTermOrder executes outstanding orders up to now, then adds
// amountIn to be sold evenly until key.Expiration. Submitting to an existing
// key raises its sell rate.
func (s *State) SubmitLongTermOrder(now uint64, pool *PoolParams, ticks TickSource, key OrderKey, amountIn *ui.Int) (*Order, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	if key.Expiration <= now {
		return nil, ErrExpirationLessThanBlocktime
	}
	if key.Expiration%s.ExpirationInterval != 0 {
		return nil, ErrExpirationNotOnInterval
	}
	sellRate := new(ui.Int).Div(amountIn, ui.NewInt(key.Expiration-now))
	if sellRate.IsZero() {
		return nil, ErrZeroSellRate
	}

	if err := s.ExecuteTWAMMOrders(now, pool, ticks); err != nil {
		return nil, err
	}

	orderPool := s.OrderPool(key.ZeroForOne)
	order, ok := s.Orders[key]
	if ok {
		accrued, err := earningsOwed(orderPool.EarningsFactorCurrent, order)
		if err != nil {
			return nil, err
		}
		order.UnclaimedEarnings = accrued.Add(accrued, order.UnclaimedEarnings)
		order.EarningsFactorLast = orderPool.EarningsFactorCurrent.Clone()
		order.SellRate = new(ui.Int).Add(order.SellRate, sellRate)
	} else {
		order = &Order{
			SellRate:           sellRate,
			EarningsFactorLast: orderPool.EarningsFactorCurrent.Clone(),
			UnclaimedEarnings:  new(ui.Int),
		}
		s.Orders[key] = order
	}
	orderPool.addSellRate(key.Expiration, sellRate)
	return order.Clone(), nil
}

// UpdateLongTermOrder executes outstanding orders up to now and settles the
// order's proceeds. A zero amountDelta only claims, a negative one withdraws
// unsold tokens and a positive one adds to the amount left to sell. Expired
// orders are removed once claimed.
func (s *State) UpdateLongTermOrder(now uint64, pool *PoolParams, ticks TickSource, key OrderKey, amountDelta *ui.Int) (buyTokensOwed, sellTokensOwed *ui.Int, err error) {
	if !s.initialized {
		return nil, nil, ErrNotInitialized
	}
	if !lm.IsInt128(amountDelta) {
		return nil, nil, ErrInvalidAmountDelta
	}
	if err := s.ExecuteTWAMMOrders(now, pool, ticks); err != nil {
		return nil, nil, err
	}

	order, ok := s.Orders[key]
	if !ok {
		return nil, nil, ErrOrderNotFound
	}
	expired := key.Expiration <= now
	if expired && !amountDelta.IsZero() {
		return nil, nil, ErrCannotModifyCompletedOrder
	}

	orderPool := s.OrderPool(key.ZeroForOne)
	earningsFactorLast := orderPool.EarningsFactorCurrent
	if expired {
		if factor, ok := orderPool.EarningsFactorAt(key.Expiration); ok {
			earningsFactorLast = factor
		}
	}
	buyTokensOwed, err = earningsOwed(earningsFactorLast, order)
	if err != nil {
		return nil, nil, err
	}
	buyTokensOwed.Add(buyTokensOwed, order.UnclaimedEarnings)
	sellTokensOwed = new(ui.Int)

	if expired {
		delete(s.Orders, key)
		return buyTokensOwed, sellTokensOwed, nil
	}

	duration := ui.NewInt(key.Expiration - now)
	unsold := new(ui.Int).Mul(order.SellRate, duration)
	newSellRate := order.SellRate
	switch amountDelta.Sign() {
	case -1:
		withdrawn := new(ui.Int).Neg(amountDelta)
		if amountDelta.Eq(CancelAllDelta) {
			withdrawn = unsold
		}
		if withdrawn.Gt(unsold) {
			return nil, nil, ErrInvalidAmountDelta
		}
		newSellRate = new(ui.Int).Div(new(ui.Int).Sub(unsold, withdrawn), duration)
		orderPool.subSellRate(key.Expiration, new(ui.Int).Sub(order.SellRate, newSellRate))
		sellTokensOwed = withdrawn.Clone()
	case 1:
		newSellRate = new(ui.Int).Div(new(ui.Int).Add(unsold, amountDelta), duration)
		orderPool.addSellRate(key.Expiration, new(ui.Int).Sub(newSellRate, order.SellRate))
	}

	if newSellRate.IsZero() {
		delete(s.Orders, key)
		return buyTokensOwed, sellTokensOwed, nil
	}
	order.SellRate = newSellRate
	order.EarningsFactorLast = earningsFactorLast.Clone()
	order.UnclaimedEarnings = new(ui.Int)
	return buyTokensOwed, sellTokensOwed, nil
}

func earningsOwed(earningsFactor *ui.Int, order *Order) (*ui.Int, error) {
	delta := new(ui.Int).Sub(earningsFactor, order.EarningsFactorLast)
	return fm.MulDiv(delta, order.SellRate, cons.Q96)
}
