package fullmath

import (
	"errors"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"

	ui "github.com/holiman/uint256"
)

var (
	ErrDivisionByZero = errors.New("fullmath: division by zero")
	ErrOverflow       = errors.New("fullmath: result overflows uint256")
)

// MulDiv computes floor(a*b/denominator) with a full 512-bit intermediate product.
func MulDiv(a, b, denominator *ui.Int) (*ui.Int, error) {
	if denominator.IsZero() {
		return nil, ErrDivisionByZero
	}
	result, overflow := new(ui.Int).MulDivOverflow(a, b, denominator)
	if overflow {
		return nil, ErrOverflow
	}
	return result, nil
}

// MulDivRoundingUp is MulDiv rounded towards positive infinity.
func MulDivRoundingUp(a, b, denominator *ui.Int) (*ui.Int, error) {
	result, err := MulDiv(a, b, denominator)
	if err != nil {
		return nil, err
	}
	if !new(ui.Int).MulMod(a, b, denominator).IsZero() {
		if result.Eq(cons.MaxUint256) {
			return nil, ErrOverflow
		}
		result.AddUint64(result, 1)
	}
	return result, nil
}

// DivRoundingUp returns ceil(x/y).
func DivRoundingUp(x, y *ui.Int) (*ui.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	quotient, rem := new(ui.Int), new(ui.Int)
	quotient.DivMod(x, y, rem)
	if !rem.IsZero() {
		quotient.AddUint64(quotient, 1)
	}
	return quotient, nil
}
