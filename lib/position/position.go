package position

import (
	"errors"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	"github.com/ftchann/uniswap-twamm/lib/fullmath"
	lm "github.com/ftchann/uniswap-twamm/lib/liquidity_math"

	"github.com/ethereum/go-ethereum/common"
	ui "github.com/holiman/uint256"
)

var ErrNoLiquidity = errors.New("position: cannot poke a position without liquidity")

// Key identifies a position by owner and range.
type Key struct {
	Owner     common.Address
	TickLower int
	TickUpper int
}

type Info struct {
	Liquidity                *ui.Int
	FeeGrowthInside0LastX128 *ui.Int
	FeeGrowthInside1LastX128 *ui.Int
	TokensOwed0              *ui.Int
	TokensOwed1              *ui.Int
}

func NewPosition() *Info {
	return &Info{
		Liquidity:                ui.NewInt(0),
		FeeGrowthInside0LastX128: ui.NewInt(0),
		FeeGrowthInside1LastX128: ui.NewInt(0),
		TokensOwed0:              ui.NewInt(0),
		TokensOwed1:              ui.NewInt(0),
	}
}

func (i *Info) Clone() *Info {
	return &Info{
		Liquidity:                i.Liquidity.Clone(),
		FeeGrowthInside0LastX128: i.FeeGrowthInside0LastX128.Clone(),
		FeeGrowthInside1LastX128: i.FeeGrowthInside1LastX128.Clone(),
		TokensOwed0:              i.TokensOwed0.Clone(),
		TokensOwed1:              i.TokensOwed1.Clone(),
	}
}

// Update credits fees accrued since the last update and applies the signed
// liquidity delta. Nothing is written on error.
func (i *Info) Update(liquidityDelta, feeGrowthInside0X128, feeGrowthInside1X128 *ui.Int) error {
	var liquidityNext *ui.Int
	if liquidityDelta.IsZero() {
		if i.Liquidity.IsZero() {
			return ErrNoLiquidity
		}
		liquidityNext = i.Liquidity
	} else {
		var err error
		if liquidityNext, err = lm.AddDelta(i.Liquidity, liquidityDelta); err != nil {
			return err
		}
	}

	tokensOwed0, err := fullmath.MulDiv(new(ui.Int).Sub(feeGrowthInside0X128, i.FeeGrowthInside0LastX128), i.Liquidity, cons.Q128)
	if err != nil {
		return err
	}
	tokensOwed1, err := fullmath.MulDiv(new(ui.Int).Sub(feeGrowthInside1X128, i.FeeGrowthInside1LastX128), i.Liquidity, cons.Q128)
	if err != nil {
		return err
	}

	i.Liquidity = liquidityNext
	i.FeeGrowthInside0LastX128 = feeGrowthInside0X128.Clone()
	i.FeeGrowthInside1LastX128 = feeGrowthInside1X128.Clone()
	// overflow is acceptable, the owner has to withdraw before hitting uint128 max
	i.TokensOwed0 = new(ui.Int).And(tokensOwed0.Add(tokensOwed0, i.TokensOwed0), cons.MaxUint128)
	i.TokensOwed1 = new(ui.Int).And(tokensOwed1.Add(tokensOwed1, i.TokensOwed1), cons.MaxUint128)
	return nil
}

// Collect takes up to the requested amounts from what the position is owed.
func (i *Info) Collect(amount0Requested, amount1Requested *ui.Int) (amount0, amount1 *ui.Int) {
	amount0 = i.TokensOwed0.Clone()
	if amount0Requested.Lt(amount0) {
		amount0 = amount0Requested.Clone()
	}
	amount1 = i.TokensOwed1.Clone()
	if amount1Requested.Lt(amount1) {
		amount1 = amount1Requested.Clone()
	}
	i.TokensOwed0 = new(ui.Int).Sub(i.TokensOwed0, amount0)
	i.TokensOwed1 = new(ui.Int).Sub(i.TokensOwed1, amount1)
	return
}
