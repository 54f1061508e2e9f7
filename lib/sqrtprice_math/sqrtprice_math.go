package sqrtprice_math

import (
	"errors"
	"math/big"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	fm "github.com/ftchann/uniswap-twamm/lib/fullmath"

	ui "github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	ErrPriceOverflow           = errors.New("sqrtprice_math: price overflow")
	ErrInvalidPriceOrLiquidity = errors.New("sqrtprice_math: zero price or liquidity")
	ErrInvalidPrice            = errors.New("sqrtprice_math: zero price")
)

// EncodePriceSqrt returns sqrt(reserve1/reserve0) as a Q64.96, rounded down.
func EncodePriceSqrt(reserve1, reserve0 *big.Int) *ui.Int {
	num := new(big.Int).Lsh(reserve1, 192)
	num.Quo(num, reserve0)
	result, _ := ui.FromBig(num.Sqrt(num))
	return result
}

// Price converts a sqrt price to token1 per token0, adjusted for token decimals.
func Price(sqrtPriceX96 *ui.Int, decimals0, decimals1 int32) decimal.Decimal {
	square := new(big.Int).Mul(sqrtPriceX96.ToBig(), sqrtPriceX96.ToBig())
	price := decimal.NewFromBigInt(square, 0).DivRound(decimal.NewFromBigInt(cons.Q192.ToBig(), 0), 36)
	return price.Shift(decimals0 - decimals1)
}

func GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *ui.Int, roundUp bool) (*ui.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	if sqrtRatioAX96.IsZero() {
		return nil, ErrInvalidPrice
	}

	numerator1 := new(ui.Int).Lsh(liquidity, 96)
	numerator2 := new(ui.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)

	if roundUp {
		res, err := fm.MulDivRoundingUp(numerator1, numerator2, sqrtRatioBX96)
		if err != nil {
			return nil, err
		}
		return fm.DivRoundingUp(res, sqrtRatioAX96)
	}
	res, err := fm.MulDiv(numerator1, numerator2, sqrtRatioBX96)
	if err != nil {
		return nil, err
	}
	return res.Div(res, sqrtRatioAX96), nil
}

func GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity *ui.Int, roundUp bool) (*ui.Int, error) {
	if sqrtRatioAX96.Cmp(sqrtRatioBX96) > 0 {
		sqrtRatioAX96, sqrtRatioBX96 = sqrtRatioBX96, sqrtRatioAX96
	}
	diff := new(ui.Int).Sub(sqrtRatioBX96, sqrtRatioAX96)
	if roundUp {
		return fm.MulDivRoundingUp(liquidity, diff, cons.Q96)
	}
	return fm.MulDiv(liquidity, diff, cons.Q96)
}

// GetAmount0DeltaRounded takes a signed liquidity and returns a signed amount:
// rounded up when liquidity is added, down when it is removed.
func GetAmount0DeltaRounded(sqrtRatioAX96, sqrtRatioBX96, liquidity *ui.Int) (*ui.Int, error) {
	if liquidity.Sign() < 0 {
		amount, err := GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, new(ui.Int).Neg(liquidity), false)
		if err != nil {
			return nil, err
		}
		return amount.Neg(amount), nil
	}
	return GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity, true)
}

func GetAmount1DeltaRounded(sqrtRatioAX96, sqrtRatioBX96, liquidity *ui.Int) (*ui.Int, error) {
	if liquidity.Sign() < 0 {
		amount, err := GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, new(ui.Int).Neg(liquidity), false)
		if err != nil {
			return nil, err
		}
		return amount.Neg(amount), nil
	}
	return GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity, true)
}

// GetNextSqrtPriceFromInput rounds so that the price never passes the
// target implied by amountIn.
func GetNextSqrtPriceFromInput(sqrtPX96, liquidity, amountIn *ui.Int, zeroForOne bool) (*ui.Int, error) {
	if sqrtPX96.IsZero() || liquidity.IsZero() {
		return nil, ErrInvalidPriceOrLiquidity
	}
	if zeroForOne {
		return getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountIn, true)
	}
	return getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountIn, true)
}

func GetNextSqrtPriceFromOutput(sqrtPX96, liquidity, amountOut *ui.Int, zeroForOne bool) (*ui.Int, error) {
	if sqrtPX96.IsZero() || liquidity.IsZero() {
		return nil, ErrInvalidPriceOrLiquidity
	}
	if zeroForOne {
		return getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amountOut, false)
	}
	return getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amountOut, false)
}

func getNextSqrtPriceFromAmount0RoundingUp(sqrtPX96, liquidity, amount *ui.Int, add bool) (*ui.Int, error) {
	if amount.IsZero() {
		return sqrtPX96.Clone(), nil
	}
	numerator1 := new(ui.Int).Lsh(liquidity, 96)

	product, overflow := new(ui.Int).MulOverflow(amount, sqrtPX96)
	if add {
		if !overflow {
			denominator, overflow := new(ui.Int).AddOverflow(numerator1, product)
			if !overflow {
				return toUint160(fm.MulDivRoundingUp(numerator1, sqrtPX96, denominator))
			}
		}
		denominator, overflow := new(ui.Int).AddOverflow(new(ui.Int).Div(numerator1, sqrtPX96), amount)
		if overflow {
			return nil, ErrPriceOverflow
		}
		return toUint160(fm.DivRoundingUp(numerator1, denominator))
	}

	if overflow || !numerator1.Gt(product) {
		return nil, ErrPriceOverflow
	}
	denominator := new(ui.Int).Sub(numerator1, product)
	return toUint160(fm.MulDivRoundingUp(numerator1, sqrtPX96, denominator))
}

func getNextSqrtPriceFromAmount1RoundingDown(sqrtPX96, liquidity, amount *ui.Int, add bool) (*ui.Int, error) {
	var (
		quotient *ui.Int
		err      error
	)
	if add {
		if amount.Cmp(cons.MaxUint160) <= 0 {
			quotient = new(ui.Int).Div(new(ui.Int).Lsh(amount, 96), liquidity)
		} else if quotient, err = fm.MulDiv(amount, cons.Q96, liquidity); err != nil {
			return nil, ErrPriceOverflow
		}
		next, overflow := new(ui.Int).AddOverflow(sqrtPX96, quotient)
		if overflow {
			return nil, ErrPriceOverflow
		}
		return toUint160(next, nil)
	}

	if amount.Cmp(cons.MaxUint160) <= 0 {
		quotient, err = fm.DivRoundingUp(new(ui.Int).Lsh(amount, 96), liquidity)
	} else {
		quotient, err = fm.MulDivRoundingUp(amount, cons.Q96, liquidity)
	}
	if err != nil || !sqrtPX96.Gt(quotient) {
		return nil, ErrPriceOverflow
	}
	return new(ui.Int).Sub(sqrtPX96, quotient), nil
}

func toUint160(x *ui.Int, err error) (*ui.Int, error) {
	if err != nil {
		return nil, ErrPriceOverflow
	}
	if x.Gt(cons.MaxUint160) {
		return nil, ErrPriceOverflow
	}
	return x, nil
}
