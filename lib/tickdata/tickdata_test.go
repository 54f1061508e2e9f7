package tickdata

import (
	"fmt"
	"testing"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	lm "github.com/ftchann/uniswap-twamm/lib/liquidity_math"

	ui "github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u(x uint64) *ui.Int { return ui.NewInt(x) }

func neg(x uint64) *ui.Int { return new(ui.Int).Neg(ui.NewInt(x)) }

func setTick(ticks Ticks, tick int, outside0, outside1, gross, net *ui.Int) {
	ticks[tick] = &Info{
		LiquidityGross:        gross,
		LiquidityNet:          net,
		FeeGrowthOutside0X128: outside0,
		FeeGrowthOutside1X128: outside1,
	}
}

func TestTickSpacingToMaxLiquidityPerTick(t *testing.T) {
	tests := []struct {
		spacing int
		want    string
	}{
		{10, "1917565579412846627735051215301243"},
		{60, "11505069308564788430434325881101413"},
		{200, "38347205785278154309959589375342946"},
		{1, "191757530477355301479181766273477"},
		{887272, new(ui.Int).Div(cons.MaxUint128, u(3)).Dec()},
		{2302, "440854192570431170114173285871668350"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.spacing), func(t *testing.T) {
			got := TickSpacingToMaxLiquidityPerTick(tt.spacing)
			require.Equal(t, tt.want, got.Dec())

			usable := (887272/tt.spacing)*2 + 1
			total, overflow := new(ui.Int).MulOverflow(got, u(uint64(usable)))
			require.False(t, overflow)
			require.False(t, total.Gt(cons.MaxUint128))
		})
	}
}

func TestGetFeeGrowthInside(t *testing.T) {
	g := u(15)
	tests := []struct {
		name    string
		setup   func(Ticks)
		current int
		want0   uint64
		want1   uint64
	}{
		{"uninitialized inside", func(Ticks) {}, 0, 15, 15},
		{"uninitialized above", func(Ticks) {}, 4, 0, 0},
		{"uninitialized below", func(Ticks) {}, -4, 0, 0},
		{"subtracts upper", func(ts Ticks) { setTick(ts, 2, u(2), u(3), u(0), u(0)) }, 0, 13, 12},
		{"subtracts lower", func(ts Ticks) { setTick(ts, -2, u(2), u(3), u(0), u(0)) }, 0, 13, 12},
		{"subtracts both", func(ts Ticks) {
			setTick(ts, -2, u(2), u(3), u(0), u(0))
			setTick(ts, 2, u(4), u(1), u(0), u(0))
		}, 0, 9, 11},
		{"wraps", func(ts Ticks) {
			setTick(ts, -2, new(ui.Int).Sub(cons.MaxUint256, u(3)), new(ui.Int).Sub(cons.MaxUint256, u(2)), u(0), u(0))
			setTick(ts, 2, u(3), u(5), u(0), u(0))
		}, 0, 16, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticks := NewTicks()
			tt.setup(ticks)
			in0, in1 := ticks.GetFeeGrowthInside(-2, 2, tt.current, g, g)
			require.Equal(t, tt.want0, in0.Uint64())
			require.Equal(t, tt.want1, in1.Uint64())
			require.True(t, in0.IsUint64())
		})
	}
}

func TestUpdateFlips(t *testing.T) {
	max := cons.MaxUint128
	ticks := NewTicks()

	flipped, err := ticks.Update(0, 0, u(1), u(0), u(0), false, max)
	require.NoError(t, err)
	require.True(t, flipped)
	require.Equal(t, uint64(1), ticks.Get(0).LiquidityGross.Uint64())

	flipped, err = ticks.Update(0, 0, u(1), u(0), u(0), false, max)
	require.NoError(t, err)
	require.False(t, flipped)
	require.Equal(t, uint64(2), ticks.Get(0).LiquidityGross.Uint64())

	flipped, err = ticks.Update(0, 0, neg(1), u(0), u(0), false, max)
	require.NoError(t, err)
	require.False(t, flipped)

	flipped, err = ticks.Update(0, 0, neg(1), u(0), u(0), false, max)
	require.NoError(t, err)
	require.True(t, flipped)
	require.True(t, ticks.Get(0).LiquidityGross.IsZero())
	require.True(t, ticks.Get(0).LiquidityNet.IsZero())
}

func TestUpdateNetsByUpperFlag(t *testing.T) {
	ticks := NewTicks()
	for _, step := range []struct {
		delta uint64
		upper bool
	}{{2, false}, {1, true}, {3, true}, {1, false}} {
		_, err := ticks.Update(0, 0, u(step.delta), u(0), u(0), step.upper, cons.MaxUint128)
		require.NoError(t, err)
	}
	require.Equal(t, uint64(7), ticks.Get(0).LiquidityGross.Uint64())
	require.True(t, ticks.Get(0).LiquidityNet.Eq(neg(1)))
}

func TestUpdateRejectsOverflow(t *testing.T) {
	ticks := NewTicks()
	half := new(ui.Int).Sub(new(ui.Int).Rsh(cons.MaxUint128, 1), u(1))
	_, err := ticks.Update(0, 0, half, u(0), u(0), false, cons.MaxUint128)
	require.NoError(t, err)
	_, err = ticks.Update(0, 0, half, u(0), u(0), false, cons.MaxUint128)
	require.ErrorIs(t, err, lm.ErrNetOverflow)

	// nothing written on failure
	require.True(t, ticks.Get(0).LiquidityGross.Eq(half))

	maxLiquidity := u(10)
	_, err = ticks.Update(1, 0, u(11), u(0), u(0), false, maxLiquidity)
	require.ErrorIs(t, err, ErrTickLiquidityOverflow)
	_, ok := ticks[1]
	require.False(t, ok)

	_, err = ticks.Update(1, 0, neg(1), u(0), u(0), false, maxLiquidity)
	require.ErrorIs(t, err, lm.ErrLiquidityUnderflow)
}

func TestUpdateFeeGrowthOutside(t *testing.T) {
	ticks := NewTicks()
	_, err := ticks.Update(1, 1, u(1), u(1), u(2), false, cons.MaxUint128)
	require.NoError(t, err)
	require.Equal(t, uint64(1), ticks.Get(1).FeeGrowthOutside0X128.Uint64())
	require.Equal(t, uint64(2), ticks.Get(1).FeeGrowthOutside1X128.Uint64())

	// already initialized
	_, err = ticks.Update(1, 1, u(1), u(6), u(7), false, cons.MaxUint128)
	require.NoError(t, err)
	require.Equal(t, uint64(1), ticks.Get(1).FeeGrowthOutside0X128.Uint64())
	require.Equal(t, uint64(2), ticks.Get(1).FeeGrowthOutside1X128.Uint64())

	// above the current tick
	_, err = ticks.Update(2, 1, u(1), u(1), u(2), false, cons.MaxUint128)
	require.NoError(t, err)
	require.True(t, ticks.Get(2).FeeGrowthOutside0X128.IsZero())
	require.True(t, ticks.Get(2).FeeGrowthOutside1X128.IsZero())
}

func TestUpdateLiquidityBounds(t *testing.T) {
	ticks := NewTicks()
	setTick(ticks, 2, u(0), u(0), cons.MaxUint128.Clone(), u(0))
	_, err := ticks.Update(2, 1, neg(1), u(1), u(2), false, cons.MaxUint128)
	require.NoError(t, err)
	require.True(t, ticks.Get(2).LiquidityGross.Eq(new(ui.Int).Sub(cons.MaxUint128, u(1))))
	require.True(t, ticks.Get(2).LiquidityNet.Eq(neg(1)))

	half := new(ui.Int).Rsh(cons.MaxUint128, 1)
	setTick(ticks, 3, u(0), u(0), new(ui.Int).Add(half, u(1)), u(0))
	_, err = ticks.Update(3, 1, half, u(1), u(2), false, cons.MaxUint128)
	require.NoError(t, err)
	require.True(t, ticks.Get(3).LiquidityGross.Eq(cons.MaxUint128))
	require.True(t, ticks.Get(3).LiquidityNet.Eq(half))
}

func TestClear(t *testing.T) {
	ticks := NewTicks()
	setTick(ticks, 2, u(1), u(2), u(3), u(4))
	ticks.Clear(2)
	info := ticks.Get(2)
	require.True(t, info.FeeGrowthOutside0X128.IsZero())
	require.True(t, info.FeeGrowthOutside1X128.IsZero())
	require.True(t, info.LiquidityGross.IsZero())
	require.True(t, info.LiquidityNet.IsZero())
}

func TestCross(t *testing.T) {
	ticks := NewTicks()
	setTick(ticks, 2, u(1), u(2), u(3), u(4))

	net := ticks.Cross(2, u(7), u(9))
	require.Equal(t, uint64(4), net.Uint64())
	require.Equal(t, uint64(6), ticks.Get(2).FeeGrowthOutside0X128.Uint64())
	require.Equal(t, uint64(7), ticks.Get(2).FeeGrowthOutside1X128.Uint64())

	ticks.Cross(2, u(7), u(9))
	require.Equal(t, uint64(1), ticks.Get(2).FeeGrowthOutside0X128.Uint64())
	require.Equal(t, uint64(2), ticks.Get(2).FeeGrowthOutside1X128.Uint64())
}

func TestInitialized(t *testing.T) {
	ticks := NewTicks()
	for _, tick := range []int{60, -120, 0} {
		_, err := ticks.Update(tick, 0, u(5), u(0), u(0), false, cons.MaxUint128)
		require.NoError(t, err)
	}
	require.Equal(t, []int{-120, 0, 60}, ticks.Initialized())

	clone := ticks.Clone()
	clone.Cross(0, u(3), u(3))
	require.True(t, ticks.Get(0).FeeGrowthOutside0X128.IsZero())
}
