package liquidity_amounts

import (
	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	"github.com/ftchann/uniswap-twamm/lib/fullmath"
	spm "github.com/ftchann/uniswap-twamm/lib/sqrtprice_math"

	ui "github.com/holiman/uint256"
)

func sortRatios(sqrtRatioAX96, sqrtRatioBX96 *ui.Int) (*ui.Int, *ui.Int) {
	if sqrtRatioAX96.Gt(sqrtRatioBX96) {
		return sqrtRatioBX96, sqrtRatioAX96
	}
	return sqrtRatioAX96, sqrtRatioBX96
}

func GetLiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0 *ui.Int) (*ui.Int, error) {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	intermediate, err := fullmath.MulDiv(sqrtRatioAX96, sqrtRatioBX96, cons.Q96)
	if err != nil {
		return nil, err
	}
	return fullmath.MulDiv(amount0, intermediate, new(ui.Int).Sub(sqrtRatioBX96, sqrtRatioAX96))
}

func GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1 *ui.Int) (*ui.Int, error) {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	return fullmath.MulDiv(amount1, cons.Q96, new(ui.Int).Sub(sqrtRatioBX96, sqrtRatioAX96))
}

// GetLiquidityForAmounts returns the most liquidity the amounts can back
// between the two prices at the current price.
func GetLiquidityForAmounts(sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, amount0, amount1 *ui.Int) (*ui.Int, error) {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	if !sqrtRatioX96.Gt(sqrtRatioAX96) {
		return GetLiquidityForAmount0(sqrtRatioAX96, sqrtRatioBX96, amount0)
	}
	if sqrtRatioX96.Lt(sqrtRatioBX96) {
		liquidity0, err := GetLiquidityForAmount0(sqrtRatioX96, sqrtRatioBX96, amount0)
		if err != nil {
			return nil, err
		}
		liquidity1, err := GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioX96, amount1)
		if err != nil {
			return nil, err
		}
		if liquidity0.Lt(liquidity1) {
			return liquidity0, nil
		}
		return liquidity1, nil
	}
	return GetLiquidityForAmount1(sqrtRatioAX96, sqrtRatioBX96, amount1)
}

// GetAmountsForLiquidity returns the token amounts, rounded down, that
// liquidity between the two prices is worth at the current price.
func GetAmountsForLiquidity(sqrtRatioX96, sqrtRatioAX96, sqrtRatioBX96, liquidity *ui.Int) (amount0, amount1 *ui.Int, err error) {
	sqrtRatioAX96, sqrtRatioBX96 = sortRatios(sqrtRatioAX96, sqrtRatioBX96)
	amount0, amount1 = new(ui.Int), new(ui.Int)
	switch {
	case !sqrtRatioX96.Gt(sqrtRatioAX96):
		amount0, err = spm.GetAmount0Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity, false)
	case sqrtRatioX96.Lt(sqrtRatioBX96):
		if amount0, err = spm.GetAmount0Delta(sqrtRatioX96, sqrtRatioBX96, liquidity, false); err != nil {
			return nil, nil, err
		}
		amount1, err = spm.GetAmount1Delta(sqrtRatioAX96, sqrtRatioX96, liquidity, false)
	default:
		amount1, err = spm.GetAmount1Delta(sqrtRatioAX96, sqrtRatioBX96, liquidity, false)
	}
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}
