package liquidity_math

import (
	"testing"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"

	ui "github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func neg(x uint64) *ui.Int {
	return new(ui.Int).Neg(ui.NewInt(x))
}

func TestAddDelta(t *testing.T) {
	z, err := AddDelta(ui.NewInt(1), ui.NewInt(0))
	require.NoError(t, err)
	require.Equal(t, uint64(1), z.Uint64())

	z, err = AddDelta(ui.NewInt(1), neg(1))
	require.NoError(t, err)
	require.True(t, z.IsZero())

	z, err = AddDelta(ui.NewInt(1), ui.NewInt(1))
	require.NoError(t, err)
	require.Equal(t, uint64(2), z.Uint64())

	_, err = AddDelta(new(ui.Int).Sub(cons.MaxUint128, ui.NewInt(14)), ui.NewInt(15))
	require.ErrorIs(t, err, ErrLiquidityOverflow)

	_, err = AddDelta(ui.NewInt(0), neg(1))
	require.ErrorIs(t, err, ErrLiquidityUnderflow)
	_, err = AddDelta(ui.NewInt(3), neg(4))
	require.ErrorIs(t, err, ErrLiquidityUnderflow)
}

func TestSignedArithmetic(t *testing.T) {
	z, err := AddSigned(neg(5), ui.NewInt(3))
	require.NoError(t, err)
	require.True(t, z.Eq(neg(2)))

	z, err = SubSigned(ui.NewInt(3), ui.NewInt(5))
	require.NoError(t, err)
	require.True(t, z.Eq(neg(2)))

	_, err = AddSigned(cons.MaxInt128, ui.NewInt(1))
	require.ErrorIs(t, err, ErrNetOverflow)
	_, err = SubSigned(cons.MinInt128, ui.NewInt(1))
	require.ErrorIs(t, err, ErrNetOverflow)

	require.True(t, IsInt128(cons.MinInt128))
	require.False(t, IsInt128(cons.MaxUint128))
}
