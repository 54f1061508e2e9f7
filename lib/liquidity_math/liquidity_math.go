package liquidity_math

import (
	"errors"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"

	ui "github.com/holiman/uint256"
)

var (
	ErrLiquidityOverflow  = errors.New("liquidity_math: liquidity overflows uint128")
	ErrLiquidityUnderflow = errors.New("liquidity_math: liquidity underflows zero")
	ErrNetOverflow        = errors.New("liquidity_math: net liquidity overflows int128")
)

// AddDelta adds a two's complement int128 delta to an unsigned uint128 liquidity.
func AddDelta(x, y *ui.Int) (*ui.Int, error) {
	if y.Sign() < 0 {
		z, underflow := new(ui.Int).SubOverflow(x, new(ui.Int).Neg(y))
		if underflow {
			return nil, ErrLiquidityUnderflow
		}
		return z, nil
	}
	z := new(ui.Int).Add(x, y)
	if z.Gt(cons.MaxUint128) {
		return nil, ErrLiquidityOverflow
	}
	return z, nil
}

// AddSigned adds two int128 values held in two's complement.
func AddSigned(x, y *ui.Int) (*ui.Int, error) {
	z := new(ui.Int).Add(x, y)
	if z.Sgt(cons.MaxInt128) || z.Slt(cons.MinInt128) {
		return nil, ErrNetOverflow
	}
	return z, nil
}

// SubSigned subtracts two int128 values held in two's complement.
func SubSigned(x, y *ui.Int) (*ui.Int, error) {
	z := new(ui.Int).Sub(x, y)
	if z.Sgt(cons.MaxInt128) || z.Slt(cons.MinInt128) {
		return nil, ErrNetOverflow
	}
	return z, nil
}

// IsInt128 reports whether x, read as two's complement, fits in an int128.
func IsInt128(x *ui.Int) bool {
	return !x.Sgt(cons.MaxInt128) && !x.Slt(cons.MinInt128)
}
