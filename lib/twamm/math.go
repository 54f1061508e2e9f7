package twamm

import (
	"math/big"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	fm "github.com/ftchann/uniswap-twamm/lib/fullmath"
	"github.com/ftchann/uniswap-twamm/lib/tickmath"

	"github.com/ALTree/bigfloat"
	ui "github.com/holiman/uint256"
)

const precision = 256

var (
	q96Float = toFloat(cons.Q96)
	two      = newFloat().SetInt64(2)

	// beyond e^maxExponent the price has converged to the sell ratio
	maxExponent = newFloat().SetInt64(200)

	maxSqrtPrice = new(ui.Int).Sub(tickmath.MaxSqrtRatio, cons.One)
)

// ExecutionParams describes a stretch of two-sided virtual trading against a
// constant liquidity curve.
type ExecutionParams struct {
	SecondsElapsedX96 *ui.Int
	SqrtPriceX96      *ui.Int
	Liquidity         *ui.Int
	SellRate0         *ui.Int
	SellRate1         *ui.Int
}

func newFloat() *big.Float {
	return new(big.Float).SetPrec(precision)
}

func toFloat(x *ui.Int) *big.Float {
	return newFloat().SetInt(x.ToBig())
}

func fromX96(x *ui.Int) *big.Float {
	return newFloat().Quo(toFloat(x), q96Float)
}

// toX96 floors f*2^96. Negative values, which only come from rounding noise,
// read as zero.
func toX96(f *big.Float) (*ui.Int, error) {
	if f.Sign() <= 0 {
		return new(ui.Int), nil
	}
	i, _ := newFloat().Mul(f, q96Float).Int(nil)
	result, overflow := ui.FromBig(i)
	if overflow {
		return nil, fm.ErrOverflow
	}
	return result, nil
}

func (p ExecutionParams) validate() error {
	if p.SellRate0.IsZero() || p.SellRate1.IsZero() {
		return ErrZeroSellRate
	}
	return nil
}

// CalculateExecutionUpdates returns the price reached after both order pools
// sold for the elapsed time, and the earnings factor accrued by each pool.
func CalculateExecutionUpdates(p ExecutionParams) (sqrtPriceX96, earningsFactorPool0, earningsFactorPool1 *ui.Int, err error) {
	if sqrtPriceX96, err = NewSqrtPriceX96(p); err != nil {
		return nil, nil, nil, err
	}
	if earningsFactorPool0, earningsFactorPool1, err = CalculateEarningsUpdates(p, sqrtPriceX96); err != nil {
		return nil, nil, nil, err
	}
	return sqrtPriceX96, earningsFactorPool0, earningsFactorPool1, nil
}

// NewSqrtPriceX96 solves the price path of the curve under both sell rates:
//
//	P(t) = S * (e^(kt) - c) / (e^(kt) + c)
//
// with S = sqrt(r1/r0), k = 2*sqrt(r0*r1)/L and c = (S - P0) / (S + P0).
// The result lies between the starting price and S, inside the tick range.
func NewSqrtPriceX96(p ExecutionParams) (*ui.Int, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	r0, r1 := toFloat(p.SellRate0), toFloat(p.SellRate1)
	sqrtSellRatio := newFloat().Sqrt(newFloat().Quo(r1, r0))
	sqrtSellRatioX96, err := toX96(sqrtSellRatio)
	if err != nil {
		return nil, err
	}
	if p.SecondsElapsedX96.IsZero() {
		return p.SqrtPriceX96.Clone(), nil
	}

	price := sqrtSellRatio
	if !p.Liquidity.IsZero() {
		pow := newFloat().Sqrt(newFloat().Mul(r0, r1))
		pow.Mul(pow, fromX96(p.SecondsElapsedX96))
		pow.Mul(pow, two).Quo(pow, toFloat(p.Liquidity))

		if pow.Cmp(maxExponent) <= 0 {
			current := fromX96(p.SqrtPriceX96)
			c := newFloat().Quo(
				newFloat().Sub(sqrtSellRatio, current),
				newFloat().Add(sqrtSellRatio, current),
			)
			exp := bigfloat.Exp(newFloat().Set(pow))
			price = newFloat().Quo(newFloat().Sub(exp, c), newFloat().Add(exp, c))
			price.Mul(price, sqrtSellRatio)
		}
	}

	next, err := toX96(price)
	if err != nil {
		return nil, err
	}
	// the price only ever moves from the current price towards S
	low, high := p.SqrtPriceX96, sqrtSellRatioX96
	if high.Lt(low) {
		low, high = high, low
	}
	if next.Lt(low) {
		next = low.Clone()
	}
	if next.Gt(high) {
		next = high.Clone()
	}
	return clampSqrtPrice(next), nil
}

// SqrtSellRatioX96 is S = sqrt(r1/r0) as a Q64.96, rounded down. It is the
// price two-sided execution converges to.
func SqrtSellRatioX96(sellRate0, sellRate1 *ui.Int) (*ui.Int, error) {
	if sellRate0.IsZero() || sellRate1.IsZero() {
		return nil, ErrZeroSellRate
	}
	r0, r1 := toFloat(sellRate0), toFloat(sellRate1)
	return toX96(newFloat().Sqrt(newFloat().Quo(r1, r0)))
}

func clampSqrtPrice(sqrtPriceX96 *ui.Int) *ui.Int {
	if sqrtPriceX96.Lt(tickmath.MinSqrtRatio) {
		return tickmath.MinSqrtRatio.Clone()
	}
	if sqrtPriceX96.Gt(maxSqrtPrice) {
		return maxSqrtPrice.Clone()
	}
	return sqrtPriceX96
}

// CalculateEarningsUpdates returns, for the price move from p.SqrtPriceX96 to
// finalSqrtPriceX96, the Q96 amount of token1 earned per token0 sold by pool 0
// and of token0 earned per token1 sold by pool 1.
func CalculateEarningsUpdates(p ExecutionParams, finalSqrtPriceX96 *ui.Int) (earningsFactorPool0, earningsFactorPool1 *ui.Int, err error) {
	if err := p.validate(); err != nil {
		return nil, nil, err
	}
	if finalSqrtPriceX96.IsZero() || p.SqrtPriceX96.IsZero() {
		return nil, nil, ErrInvalidPrice
	}
	r0, r1 := toFloat(p.SellRate0), toFloat(p.SellRate1)
	seconds := fromX96(p.SecondsElapsedX96)
	liquidity := toFloat(p.Liquidity)
	start, end := fromX96(p.SqrtPriceX96), fromX96(finalSqrtPriceX96)

	// pool 0 gets what pool 1 sold, less the token1 the curve absorbed
	absorbed1 := newFloat().Mul(liquidity, newFloat().Sub(end, start))
	earnings0 := newFloat().Mul(r1, seconds)
	earnings0.Sub(earnings0, absorbed1).Quo(earnings0, r0)

	// pool 1 gets what pool 0 sold, less the token0 the curve absorbed
	inverseDelta := newFloat().Sub(newFloat().Quo(one(), end), newFloat().Quo(one(), start))
	absorbed0 := newFloat().Mul(liquidity, inverseDelta)
	earnings1 := newFloat().Mul(r0, seconds)
	earnings1.Sub(earnings1, absorbed0).Quo(earnings1, r1)

	if earningsFactorPool0, err = toX96(earnings0); err != nil {
		return nil, nil, err
	}
	if earningsFactorPool1, err = toX96(earnings1); err != nil {
		return nil, nil, err
	}
	return earningsFactorPool0, earningsFactorPool1, nil
}

// CalculateTimeBetweenTicks returns the Q96 seconds both sell rates take to
// move the price from sqrtPriceStartX96 to sqrtPriceEndX96:
//
//	t = L / (2*sqrt(r0*r1)) * ln((S - P0)(S + P1) / ((S + P0)(S - P1)))
func CalculateTimeBetweenTicks(liquidity, sqrtPriceStartX96, sqrtPriceEndX96, sellRate0, sellRate1 *ui.Int) (*ui.Int, error) {
	if sellRate0.IsZero() || sellRate1.IsZero() {
		return nil, ErrZeroSellRate
	}
	if liquidity.IsZero() || sqrtPriceStartX96.Eq(sqrtPriceEndX96) {
		return new(ui.Int), nil
	}
	r0, r1 := toFloat(sellRate0), toFloat(sellRate1)
	sqrtSellRatio := newFloat().Sqrt(newFloat().Quo(r1, r0))
	start, end := fromX96(sqrtPriceStartX96), fromX96(sqrtPriceEndX96)

	numerator := newFloat().Mul(newFloat().Sub(sqrtSellRatio, start), newFloat().Add(sqrtSellRatio, end))
	denominator := newFloat().Mul(newFloat().Add(sqrtSellRatio, start), newFloat().Sub(sqrtSellRatio, end))
	if denominator.Sign() == 0 {
		return nil, ErrUnreachablePrice
	}
	fraction := newFloat().Quo(numerator, denominator)
	if fraction.Sign() <= 0 {
		return nil, ErrUnreachablePrice
	}

	seconds := bigfloat.Log(fraction)
	seconds.Mul(seconds, toFloat(liquidity))
	seconds.Quo(seconds, newFloat().Mul(two, newFloat().Sqrt(newFloat().Mul(r0, r1))))
	return toX96(seconds)
}

func one() *big.Float {
	return newFloat().SetInt64(1)
}
