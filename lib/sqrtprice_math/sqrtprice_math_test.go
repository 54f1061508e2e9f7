package sqrtprice_math

import (
	"math/big"
	"testing"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"

	ui "github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

var (
	priceOne  = EncodePriceSqrt(big.NewInt(1), big.NewInt(1))
	price1_21 = EncodePriceSqrt(big.NewInt(121), big.NewInt(100))
	e17       = new(ui.Int).Div(cons.E18, ui.NewInt(10))
)

func TestEncodePriceSqrt(t *testing.T) {
	require.True(t, priceOne.Eq(cons.Q96))
	require.Equal(t, "87150978765690771352898345369", price1_21.Dec())
}

func TestPrice(t *testing.T) {
	require.Equal(t, "1", Price(priceOne, 18, 18).String())
	require.Equal(t, "1.21", Price(price1_21, 18, 18).Round(6).String())
	// raw 1:1 between a 6 and an 18 decimal token
	require.Equal(t, "0.000000000001", Price(priceOne, 6, 18).String())
}

func TestGetAmount0Delta(t *testing.T) {
	amount, err := GetAmount0Delta(priceOne, price1_21, cons.E18, true)
	require.NoError(t, err)
	require.Equal(t, "90909090909090910", amount.Dec())

	amount, err = GetAmount0Delta(price1_21, priceOne, cons.E18, false)
	require.NoError(t, err)
	require.Equal(t, "90909090909090909", amount.Dec())

	amount, err = GetAmount0Delta(priceOne, price1_21, cons.Zero, true)
	require.NoError(t, err)
	require.True(t, amount.IsZero())

	_, err = GetAmount0Delta(cons.Zero, priceOne, cons.E18, true)
	require.ErrorIs(t, err, ErrInvalidPrice)
}

func TestGetAmount1Delta(t *testing.T) {
	amount, err := GetAmount1Delta(priceOne, price1_21, cons.E18, true)
	require.NoError(t, err)
	require.Equal(t, "100000000000000000", amount.Dec())

	amount, err = GetAmount1Delta(priceOne, price1_21, cons.E18, false)
	require.NoError(t, err)
	require.Equal(t, "99999999999999999", amount.Dec())
}

func TestGetAmountDeltaRounded(t *testing.T) {
	amount, err := GetAmount0DeltaRounded(priceOne, price1_21, cons.E18)
	require.NoError(t, err)
	require.Equal(t, "90909090909090910", amount.Dec())

	amount, err = GetAmount0DeltaRounded(priceOne, price1_21, new(ui.Int).Neg(cons.E18))
	require.NoError(t, err)
	require.Equal(t, -1, amount.Sign())
	require.Equal(t, "90909090909090909", new(ui.Int).Neg(amount).Dec())

	amount, err = GetAmount1DeltaRounded(priceOne, price1_21, new(ui.Int).Neg(cons.E18))
	require.NoError(t, err)
	require.Equal(t, "99999999999999999", new(ui.Int).Neg(amount).Dec())
}

func TestGetNextSqrtPriceFromInput(t *testing.T) {
	_, err := GetNextSqrtPriceFromInput(cons.Zero, cons.One, e17, false)
	require.ErrorIs(t, err, ErrInvalidPriceOrLiquidity)
	_, err = GetNextSqrtPriceFromInput(cons.One, cons.Zero, e17, true)
	require.ErrorIs(t, err, ErrInvalidPriceOrLiquidity)

	// any input amount cannot underflow the price
	next, err := GetNextSqrtPriceFromInput(cons.One, cons.One, new(ui.Int).Lsh(cons.One, 255), true)
	require.NoError(t, err)
	require.True(t, next.Eq(cons.One))

	_, err = GetNextSqrtPriceFromInput(cons.MaxUint160, cons.One, cons.MaxUint160, false)
	require.ErrorIs(t, err, ErrPriceOverflow)

	next, err = GetNextSqrtPriceFromInput(priceOne, cons.E18, cons.Zero, true)
	require.NoError(t, err)
	require.True(t, next.Eq(priceOne))

	next, err = GetNextSqrtPriceFromInput(priceOne, cons.E18, e17, false)
	require.NoError(t, err)
	require.Equal(t, "87150978765690771352898345369", next.Dec())

	next, err = GetNextSqrtPriceFromInput(priceOne, cons.E18, e17, true)
	require.NoError(t, err)
	require.Equal(t, "72025602285694852357767227579", next.Dec())
}

func TestGetNextSqrtPriceFromOutput(t *testing.T) {
	next, err := GetNextSqrtPriceFromOutput(priceOne, cons.E18, e17, false)
	require.NoError(t, err)
	require.Equal(t, "88031291682515930659493278152", next.Dec())

	next, err = GetNextSqrtPriceFromOutput(priceOne, cons.E18, e17, true)
	require.NoError(t, err)
	require.Equal(t, "71305346262837903834189555302", next.Dec())

	// output exceeding the virtual reserves
	_, err = GetNextSqrtPriceFromOutput(ui.MustFromDecimal("20282409603651670423947251286016"), ui.NewInt(1024), ui.NewInt(4), false)
	require.ErrorIs(t, err, ErrPriceOverflow)
	_, err = GetNextSqrtPriceFromOutput(ui.MustFromDecimal("20282409603651670423947251286016"), ui.NewInt(1024), ui.NewInt(262145), true)
	require.ErrorIs(t, err, ErrPriceOverflow)
}
