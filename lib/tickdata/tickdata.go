package tickdata

import (
	"errors"
	"sort"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	fm "github.com/ftchann/uniswap-twamm/lib/fullmath"
	lm "github.com/ftchann/uniswap-twamm/lib/liquidity_math"
	"github.com/ftchann/uniswap-twamm/lib/tickmath"

	ui "github.com/holiman/uint256"
)

var ErrTickLiquidityOverflow = errors.New("tickdata: liquidity gross exceeds max liquidity per tick")

// Info is the ledger entry of a single tick. Fee growth outside is only
// meaningful while the tick is initialized.
type Info struct {
	LiquidityGross        *ui.Int
	LiquidityNet          *ui.Int // int128, two's complement
	FeeGrowthOutside0X128 *ui.Int
	FeeGrowthOutside1X128 *ui.Int
}

func newInfo() *Info {
	return &Info{
		LiquidityGross:        new(ui.Int),
		LiquidityNet:          new(ui.Int),
		FeeGrowthOutside0X128: new(ui.Int),
		FeeGrowthOutside1X128: new(ui.Int),
	}
}

func (i *Info) Clone() *Info {
	return &Info{
		LiquidityGross:        i.LiquidityGross.Clone(),
		LiquidityNet:          i.LiquidityNet.Clone(),
		FeeGrowthOutside0X128: i.FeeGrowthOutside0X128.Clone(),
		FeeGrowthOutside1X128: i.FeeGrowthOutside1X128.Clone(),
	}
}

func (i *Info) Initialized() bool {
	return !i.LiquidityGross.IsZero()
}

// Ticks maps a tick index to its ledger entry. Missing entries read as zero.
type Ticks map[int]*Info

func NewTicks() Ticks {
	return make(Ticks)
}

func (t Ticks) Clone() Ticks {
	ticks := make(Ticks, len(t))
	for k, v := range t {
		ticks[k] = v.Clone()
	}
	return ticks
}

// Get returns the entry for tick. The zero entry of an unknown tick is not stored.
func (t Ticks) Get(tick int) *Info {
	if info, ok := t[tick]; ok {
		return info
	}
	return newInfo()
}

// Initialized returns the initialized tick indexes in ascending order.
func (t Ticks) Initialized() []int {
	indexes := make([]int, 0, len(t))
	for k, v := range t {
		if v.Initialized() {
			indexes = append(indexes, k)
		}
	}
	sort.Ints(indexes)
	return indexes
}

// TickSpacingToMaxLiquidityPerTick bounds liquidity gross so that the sum over
// every tick usable with tickSpacing cannot overflow uint128.
func TickSpacingToMaxLiquidityPerTick(tickSpacing int) *ui.Int {
	span := ui.NewInt(uint64(tickmath.MaxTick - tickmath.MinTick + tickSpacing))
	result, _ := fm.MulDiv(cons.MaxUint128, ui.NewInt(uint64(tickSpacing)), span)
	return result
}

// Update applies liquidityDelta to tick and reports whether the tick flipped
// between initialized and uninitialized. Nothing is written on error.
func (t Ticks) Update(tick, tickCurrent int, liquidityDelta, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *ui.Int, upper bool, maxLiquidity *ui.Int) (flipped bool, err error) {
	info := t.Get(tick)

	liquidityGrossBefore := info.LiquidityGross
	liquidityGrossAfter, err := lm.AddDelta(liquidityGrossBefore, liquidityDelta)
	if err != nil {
		return false, err
	}
	if liquidityGrossAfter.Gt(maxLiquidity) {
		return false, ErrTickLiquidityOverflow
	}

	// when the lower (upper) tick is crossed left to right (right to left),
	// liquidity must be added (removed)
	var liquidityNet *ui.Int
	if upper {
		liquidityNet, err = lm.SubSigned(info.LiquidityNet, liquidityDelta)
	} else {
		liquidityNet, err = lm.AddSigned(info.LiquidityNet, liquidityDelta)
	}
	if err != nil {
		return false, err
	}

	flipped = liquidityGrossAfter.IsZero() != liquidityGrossBefore.IsZero()

	if liquidityGrossBefore.IsZero() && !liquidityGrossAfter.IsZero() {
		// by convention, we assume that all growth before a tick was initialized happened _below_ the tick
		if tick <= tickCurrent {
			info.FeeGrowthOutside0X128 = feeGrowthGlobal0X128.Clone()
			info.FeeGrowthOutside1X128 = feeGrowthGlobal1X128.Clone()
		}
	}
	info.LiquidityGross = liquidityGrossAfter
	info.LiquidityNet = liquidityNet
	t[tick] = info
	return flipped, nil
}

// Clear removes the ledger entry of tick.
func (t Ticks) Clear(tick int) {
	delete(t, tick)
}

// Cross flips the fee growth outside of tick and returns its liquidity net.
func (t Ticks) Cross(tick int, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *ui.Int) *ui.Int {
	info, ok := t[tick]
	if !ok {
		return new(ui.Int)
	}
	info.FeeGrowthOutside0X128 = new(ui.Int).Sub(feeGrowthGlobal0X128, info.FeeGrowthOutside0X128)
	info.FeeGrowthOutside1X128 = new(ui.Int).Sub(feeGrowthGlobal1X128, info.FeeGrowthOutside1X128)
	return info.LiquidityNet.Clone()
}

// GetFeeGrowthInside returns the fee growth per unit of liquidity between
// tickLower and tickUpper. All subtractions wrap.
func (t Ticks) GetFeeGrowthInside(tickLower, tickUpper, tickCurrent int, feeGrowthGlobal0X128, feeGrowthGlobal1X128 *ui.Int) (feeGrowthInside0X128, feeGrowthInside1X128 *ui.Int) {
	lower := t.Get(tickLower)
	upper := t.Get(tickUpper)

	var feeGrowthBelow0X128, feeGrowthBelow1X128 *ui.Int
	if tickCurrent >= tickLower {
		feeGrowthBelow0X128 = lower.FeeGrowthOutside0X128
		feeGrowthBelow1X128 = lower.FeeGrowthOutside1X128
	} else {
		feeGrowthBelow0X128 = new(ui.Int).Sub(feeGrowthGlobal0X128, lower.FeeGrowthOutside0X128)
		feeGrowthBelow1X128 = new(ui.Int).Sub(feeGrowthGlobal1X128, lower.FeeGrowthOutside1X128)
	}

	var feeGrowthAbove0X128, feeGrowthAbove1X128 *ui.Int
	if tickCurrent < tickUpper {
		feeGrowthAbove0X128 = upper.FeeGrowthOutside0X128
		feeGrowthAbove1X128 = upper.FeeGrowthOutside1X128
	} else {
		feeGrowthAbove0X128 = new(ui.Int).Sub(feeGrowthGlobal0X128, upper.FeeGrowthOutside0X128)
		feeGrowthAbove1X128 = new(ui.Int).Sub(feeGrowthGlobal1X128, upper.FeeGrowthOutside1X128)
	}

	feeGrowthInside0X128 = new(ui.Int).Sub(feeGrowthGlobal0X128, feeGrowthBelow0X128)
	feeGrowthInside0X128.Sub(feeGrowthInside0X128, feeGrowthAbove0X128)
	feeGrowthInside1X128 = new(ui.Int).Sub(feeGrowthGlobal1X128, feeGrowthBelow1X128)
	feeGrowthInside1X128.Sub(feeGrowthInside1X128, feeGrowthAbove1X128)
	return
}
