package swapmath

import (
	"errors"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	fm "github.com/ftchann/uniswap-twamm/lib/fullmath"
	sqrtmath "github.com/ftchann/uniswap-twamm/lib/sqrtprice_math"

	ui "github.com/holiman/uint256"
)

// MaxFee is the fee denominator: fees are expressed in hundredths of a bip.
const MaxFee = 1_000_000

var ErrInvalidFee = errors.New("swapmath: fee must be below 1e6 pips")

// ComputeSwapStep swaps amountRemaining (two's complement: positive for exact
// input, negative for exact output) within one tick range. The price never
// moves past sqrtRatioTargetX96.
func ComputeSwapStep(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, amountRemainingI *ui.Int, feePips uint32) (sqrtRatioNextX96, amountIn, amountOut, feeAmount *ui.Int, err error) {
	if feePips >= MaxFee {
		return nil, nil, nil, nil, ErrInvalidFee
	}
	if amountRemainingI.IsZero() {
		return sqrtRatioCurrentX96.Clone(), new(ui.Int), new(ui.Int), new(ui.Int), nil
	}

	zeroForOne := sqrtRatioCurrentX96.Cmp(sqrtRatioTargetX96) >= 0
	exactIn := amountRemainingI.Sign() > 0
	fee := ui.NewInt(uint64(feePips))
	feeComplement := ui.NewInt(uint64(MaxFee - feePips))

	if exactIn {
		amountRemainingLessFee, err := fm.MulDiv(amountRemainingI, feeComplement, cons.E6)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if zeroForOne {
			amountIn, err = sqrtmath.GetAmount0Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, true)
		} else {
			amountIn, err = sqrtmath.GetAmount1Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, true)
		}
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if amountRemainingLessFee.Cmp(amountIn) >= 0 {
			sqrtRatioNextX96 = sqrtRatioTargetX96.Clone()
		} else {
			sqrtRatioNextX96, err = sqrtmath.GetNextSqrtPriceFromInput(sqrtRatioCurrentX96, liquidity, amountRemainingLessFee, zeroForOne)
		}
	} else {
		if zeroForOne {
			amountOut, err = sqrtmath.GetAmount1Delta(sqrtRatioTargetX96, sqrtRatioCurrentX96, liquidity, false)
		} else {
			amountOut, err = sqrtmath.GetAmount0Delta(sqrtRatioCurrentX96, sqrtRatioTargetX96, liquidity, false)
		}
		if err != nil {
			return nil, nil, nil, nil, err
		}
		if new(ui.Int).Neg(amountRemainingI).Cmp(amountOut) >= 0 {
			sqrtRatioNextX96 = sqrtRatioTargetX96.Clone()
		} else {
			sqrtRatioNextX96, err = sqrtmath.GetNextSqrtPriceFromOutput(sqrtRatioCurrentX96, liquidity, new(ui.Int).Neg(amountRemainingI), zeroForOne)
		}
	}
	if err != nil {
		return nil, nil, nil, nil, err
	}

	max := sqrtRatioTargetX96.Eq(sqrtRatioNextX96)

	if zeroForOne {
		if !(max && exactIn) {
			if amountIn, err = sqrtmath.GetAmount0Delta(sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, true); err != nil {
				return nil, nil, nil, nil, err
			}
		}
		if !(max && !exactIn) {
			if amountOut, err = sqrtmath.GetAmount1Delta(sqrtRatioNextX96, sqrtRatioCurrentX96, liquidity, false); err != nil {
				return nil, nil, nil, nil, err
			}
		}
	} else {
		if !(max && exactIn) {
			if amountIn, err = sqrtmath.GetAmount1Delta(sqrtRatioCurrentX96, sqrtRatioNextX96, liquidity, true); err != nil {
				return nil, nil, nil, nil, err
			}
		}
		if !(max && !exactIn) {
			if amountOut, err = sqrtmath.GetAmount0Delta(sqrtRatioCurrentX96, sqrtRatioNextX96, liquidity, false); err != nil {
				return nil, nil, nil, nil, err
			}
		}
	}

	// cap the output amount to not exceed the remaining output amount
	if !exactIn && amountOut.Cmp(new(ui.Int).Neg(amountRemainingI)) > 0 {
		amountOut = new(ui.Int).Neg(amountRemainingI)
	}

	if exactIn && !sqrtRatioNextX96.Eq(sqrtRatioTargetX96) {
		// we didn't reach the target, so take the remainder of the maximum input as fee
		feeAmount = new(ui.Int).Sub(amountRemainingI, amountIn)
	} else if feeAmount, err = fm.MulDivRoundingUp(amountIn, fee, feeComplement); err != nil {
		return nil, nil, nil, nil, err
	}
	return sqrtRatioNextX96, amountIn, amountOut, feeAmount, nil
}
