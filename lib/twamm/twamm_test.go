package twamm

import (
	"testing"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

const interval = 10_000

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func neg(x *ui.Int) *ui.Int { return new(ui.Int).Neg(x) }

func newDeepPool() *PoolParams {
	return &PoolParams{
		SqrtPriceX96: encodePrice(1, 1),
		Tick:         0,
		Liquidity:    ui.MustFromDecimal("1000000000000000000000000000000"),
	}
}

func newInitializedState(t *testing.T, now uint64) *State {
	t.Helper()
	s := NewState(interval)
	require.NoError(t, s.Initialize(now))
	return s
}

func TestInitialize(t *testing.T) {
	s := NewState(interval)
	require.False(t, s.Initialized())

	key := OrderKey{Owner: alice, Expiration: interval, ZeroForOne: true}
	_, err := s.SubmitLongTermOrder(0, newDeepPool(), newTestTicks(60), key, ether(1))
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, s.ExecuteTWAMMOrders(0, newDeepPool(), newTestTicks(60)), ErrNotInitialized)

	require.NoError(t, s.Initialize(1234))
	require.True(t, s.Initialized())
	require.Equal(t, uint64(1234), s.LastVirtualOrderTimestamp)
	require.Equal(t, uint64(interval), s.ExpirationInterval)
	require.ErrorIs(t, s.Initialize(1234), ErrAlreadyInitialized)

	require.ErrorIs(t, NewState(0).Initialize(0), ErrInvalidExpirationInterval)
}

func TestSubmitLongTermOrder(t *testing.T) {
	now := uint64(1000)
	s := newInitializedState(t, now)
	key := OrderKey{Owner: alice, Expiration: 3 * interval, ZeroForOne: true}

	order, err := s.SubmitLongTermOrder(now, newDeepPool(), newTestTicks(60), key, ether(1))
	require.NoError(t, err)

	sellRate := new(ui.Int).Div(ether(1), u(3*interval-now))
	require.Equal(t, sellRate, order.SellRate)
	require.True(t, order.EarningsFactorLast.IsZero())

	require.Equal(t, sellRate, s.OrderPool0For1.SellRateCurrent)
	require.Equal(t, sellRate, s.OrderPool0For1.SellRateEndingAt(3*interval))
	require.True(t, s.OrderPool1For0.SellRateCurrent.IsZero())

	stored, ok := s.Order(key)
	require.True(t, ok)
	require.Equal(t, order, stored)
}

func TestSubmitLongTermOrderErrors(t *testing.T) {
	now := uint64(interval)
	tests := []struct {
		name       string
		expiration uint64
		amount     *ui.Int
		err        error
	}{
		{"expiration is now", interval, ether(1), ErrExpirationLessThanBlocktime},
		{"expiration in the past", 0, ether(1), ErrExpirationLessThanBlocktime},
		{"expiration off interval", 2*interval + 1, ether(1), ErrExpirationNotOnInterval},
		{"amount below duration", 2 * interval, u(interval - 1), ErrZeroSellRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newInitializedState(t, now)
			key := OrderKey{Owner: alice, Expiration: tt.expiration}
			_, err := s.SubmitLongTermOrder(now, newDeepPool(), newTestTicks(60), key, tt.amount)
			require.ErrorIs(t, err, tt.err)
			require.Empty(t, s.Orders)
		})
	}
}

func TestExecuteTimestampRegression(t *testing.T) {
	s := newInitializedState(t, 500)
	require.ErrorIs(t, s.ExecuteTWAMMOrders(499, newDeepPool(), newTestTicks(60)), ErrTimestampRegression)

	// without orders only the timestamp moves
	pool := newDeepPool()
	require.NoError(t, s.ExecuteTWAMMOrders(5*interval+7, pool, newTestTicks(60)))
	require.Equal(t, uint64(5*interval+7), s.LastVirtualOrderTimestamp)
	require.Equal(t, newDeepPool(), pool)
}

func TestOpposingOrdersClearAtExpiration(t *testing.T) {
	s := newInitializedState(t, 0)
	pool := &PoolParams{
		SqrtPriceX96: encodePrice(1, 1),
		Liquidity:    ui.MustFromDecimal("1000000000000000000000000"),
	}
	ticks := newTestTicks(60)
	amount := ui.MustFromDecimal("5000000000000000000")

	key0 := OrderKey{Owner: alice, Expiration: 2 * interval, ZeroForOne: true}
	key1 := OrderKey{Owner: alice, Expiration: 2 * interval, ZeroForOne: false}
	_, err := s.SubmitLongTermOrder(0, pool, ticks, key0, amount)
	require.NoError(t, err)
	_, err = s.SubmitLongTermOrder(0, pool, ticks, key1, amount)
	require.NoError(t, err)

	require.NoError(t, s.ExecuteTWAMMOrders(2*interval, pool, ticks))
	require.True(t, s.OrderPool0For1.SellRateCurrent.IsZero())
	require.True(t, s.OrderPool1For0.SellRateCurrent.IsZero())
	require.Equal(t, encodePrice(1, 1), pool.SqrtPriceX96)
	require.Empty(t, ticks.crossed)

	for _, key := range []OrderKey{key0, key1} {
		buy, sell, err := s.UpdateLongTermOrder(2*interval, pool, ticks, key, new(ui.Int))
		require.NoError(t, err)
		require.Equal(t, amount, buy)
		require.True(t, sell.IsZero())

		_, ok := s.Order(key)
		require.False(t, ok)
		_, _, err = s.UpdateLongTermOrder(2*interval, pool, ticks, key, new(ui.Int))
		require.ErrorIs(t, err, ErrOrderNotFound)
	}
}

func TestClaimAfterExpirationUsesSnapshot(t *testing.T) {
	s := newInitializedState(t, 0)
	pool := newDeepPool()
	ticks := newTestTicks(60)

	early := OrderKey{Owner: alice, Expiration: interval, ZeroForOne: true}
	late := OrderKey{Owner: bob, Expiration: 3 * interval, ZeroForOne: true}
	_, err := s.SubmitLongTermOrder(0, pool, ticks, early, ether(1))
	require.NoError(t, err)
	_, err = s.SubmitLongTermOrder(0, pool, ticks, late, ether(3))
	require.NoError(t, err)

	require.NoError(t, s.ExecuteTWAMMOrders(2*interval+interval/2, pool, ticks))
	snapshot, ok := s.OrderPool0For1.EarningsFactorAt(interval)
	require.True(t, ok)
	require.True(t, s.OrderPool0For1.EarningsFactorCurrent.Gt(snapshot))

	buy, sell, err := s.UpdateLongTermOrder(2*interval+interval/2, pool, ticks, early, new(ui.Int))
	require.NoError(t, err)
	require.True(t, sell.IsZero())
	sellRate := new(ui.Int).Div(ether(1), u(interval))
	want, err := mulDivQ96(snapshot, sellRate)
	require.NoError(t, err)
	require.Equal(t, want, buy)
	// deep liquidity keeps the price close to one
	requireWithin(t, ether(1), buy, 1e-6)
}

func TestCancelHalfway(t *testing.T) {
	s := newInitializedState(t, 0)
	pool := newDeepPool()
	ticks := newTestTicks(60)
	key := OrderKey{Owner: alice, Expiration: 2 * interval, ZeroForOne: true}

	_, err := s.SubmitLongTermOrder(0, pool, ticks, key, ether(1))
	require.NoError(t, err)

	buy, sell, err := s.UpdateLongTermOrder(interval, pool, ticks, key, CancelAllDelta)
	require.NoError(t, err)
	half := new(ui.Int).Div(ether(1), u(2))
	require.Equal(t, half, sell)
	require.False(t, buy.Gt(half))
	requireWithin(t, half, buy, 1e-6)

	_, ok := s.Order(key)
	require.False(t, ok)
	require.True(t, s.OrderPool0For1.SellRateCurrent.IsZero())
	require.Empty(t, s.OrderPool0For1.SellRateEndingAtInterval)
	require.True(t, pool.SqrtPriceX96.Lt(encodePrice(1, 1)))
}

func TestUpdateLongTermOrderAmounts(t *testing.T) {
	setup := func(t *testing.T) (*State, *PoolParams, *testTicks, OrderKey) {
		s := newInitializedState(t, 0)
		pool := newDeepPool()
		ticks := newTestTicks(60)
		key := OrderKey{Owner: alice, Expiration: 2 * interval, ZeroForOne: false}
		_, err := s.SubmitLongTermOrder(0, pool, ticks, key, ether(1))
		require.NoError(t, err)
		return s, pool, ticks, key
	}

	t.Run("decrease", func(t *testing.T) {
		s, pool, ticks, key := setup(t)
		quarter := new(ui.Int).Div(ether(1), u(4))
		_, sell, err := s.UpdateLongTermOrder(interval, pool, ticks, key, neg(quarter))
		require.NoError(t, err)
		require.Equal(t, quarter, sell)

		order, ok := s.Order(key)
		require.True(t, ok)
		wantRate := new(ui.Int).Div(quarter, u(interval))
		require.Equal(t, wantRate, order.SellRate)
		require.Equal(t, wantRate, s.OrderPool1For0.SellRateCurrent)
		require.Equal(t, wantRate, s.OrderPool1For0.SellRateEndingAt(2*interval))
		require.Equal(t, s.OrderPool1For0.EarningsFactorCurrent, order.EarningsFactorLast)
	})

	t.Run("increase", func(t *testing.T) {
		s, pool, ticks, key := setup(t)
		_, sell, err := s.UpdateLongTermOrder(interval, pool, ticks, key, ether(1))
		require.NoError(t, err)
		require.True(t, sell.IsZero())

		order, _ := s.Order(key)
		wantRate := new(ui.Int).Div(new(ui.Int).Mul(ether(3), u(1)), u(2*interval))
		require.Equal(t, wantRate, order.SellRate)
		require.Equal(t, wantRate, s.OrderPool1For0.SellRateCurrent)
	})

	t.Run("claim only", func(t *testing.T) {
		s, pool, ticks, key := setup(t)
		buy, sell, err := s.UpdateLongTermOrder(interval, pool, ticks, key, new(ui.Int))
		require.NoError(t, err)
		require.True(t, sell.IsZero())
		require.False(t, buy.IsZero())

		// proceeds are paid once
		buy, _, err = s.UpdateLongTermOrder(interval, pool, ticks, key, new(ui.Int))
		require.NoError(t, err)
		require.True(t, buy.IsZero())
	})

	t.Run("exceeds unsold amount", func(t *testing.T) {
		s, pool, ticks, key := setup(t)
		_, _, err := s.UpdateLongTermOrder(interval, pool, ticks, key, neg(ether(1)))
		require.ErrorIs(t, err, ErrInvalidAmountDelta)
	})

	t.Run("outside int128", func(t *testing.T) {
		s, pool, ticks, key := setup(t)
		_, _, err := s.UpdateLongTermOrder(interval, pool, ticks, key, cons.MaxUint128)
		require.ErrorIs(t, err, ErrInvalidAmountDelta)
	})

	t.Run("completed order", func(t *testing.T) {
		s, pool, ticks, key := setup(t)
		_, _, err := s.UpdateLongTermOrder(2*interval, pool, ticks, key, neg(u(1)))
		require.ErrorIs(t, err, ErrCannotModifyCompletedOrder)
	})

	t.Run("unknown order", func(t *testing.T) {
		s, pool, ticks, key := setup(t)
		key.Owner = bob
		_, _, err := s.UpdateLongTermOrder(interval, pool, ticks, key, new(ui.Int))
		require.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestSubmitMergesIntoExistingOrder(t *testing.T) {
	s := newInitializedState(t, 0)
	pool := newDeepPool()
	ticks := newTestTicks(60)
	key := OrderKey{Owner: alice, Expiration: 2 * interval, ZeroForOne: true}

	_, err := s.SubmitLongTermOrder(0, pool, ticks, key, ether(2))
	require.NoError(t, err)
	order, err := s.SubmitLongTermOrder(interval, pool, ticks, key, ether(1))
	require.NoError(t, err)

	require.Equal(t, new(ui.Int).Div(ether(2), u(interval)), order.SellRate)
	require.False(t, order.UnclaimedEarnings.IsZero())
	require.Equal(t, s.OrderPool0For1.EarningsFactorCurrent, order.EarningsFactorLast)
	require.Equal(t, order.SellRate, s.OrderPool0For1.SellRateCurrent)

	buy, _, err := s.UpdateLongTermOrder(2*interval, pool, ticks, key, new(ui.Int))
	require.NoError(t, err)
	requireWithin(t, ether(3), buy, 1e-6)
}

func TestCloneIsIndependent(t *testing.T) {
	s := newInitializedState(t, 0)
	key := OrderKey{Owner: alice, Expiration: interval, ZeroForOne: true}
	_, err := s.SubmitLongTermOrder(0, newDeepPool(), newTestTicks(60), key, ether(1))
	require.NoError(t, err)

	clone := s.Clone()
	require.Equal(t, s, clone)
	require.NoError(t, clone.ExecuteTWAMMOrders(interval, newDeepPool(), newTestTicks(60)))
	require.NotEqual(t, s.OrderPool0For1, clone.OrderPool0For1)
	require.Equal(t, uint64(0), s.LastVirtualOrderTimestamp)
	require.False(t, s.OrderPool0For1.SellRateCurrent.IsZero())
}

func mulDivQ96(factor, sellRate *ui.Int) (*ui.Int, error) {
	return earningsOwed(factor, &Order{SellRate: sellRate, EarningsFactorLast: new(ui.Int)})
}

// requireWithin asserts |got - want| <= want * tolerance.
func requireWithin(t *testing.T, want, got *ui.Int, tolerance float64) {
	t.Helper()
	w, g := divX96(want), divX96(got)
	require.InDelta(t, w, g, w*tolerance, "want %s got %s", want.Dec(), got.Dec())
}
