package constants

import (
	ui "github.com/holiman/uint256"
)

var (
	NegativeOne = new(ui.Int).Neg(ui.NewInt(1))
	Zero        = new(ui.Int)
	One         = new(ui.Int).SetOne()
	MaxUint256  = new(ui.Int).SetAllOne()
	MaxUint160  = new(ui.Int).Sub(new(ui.Int).Lsh(One, 160), One)
	MaxUint128  = new(ui.Int).Sub(new(ui.Int).Lsh(One, 128), One)

	// int128 bounds in two's complement
	MaxInt128 = new(ui.Int).Sub(new(ui.Int).Lsh(One, 127), One)
	MinInt128 = new(ui.Int).Neg(new(ui.Int).Lsh(One, 127))

	Q96  = new(ui.Int).Lsh(One, 96)
	Q128 = new(ui.Int).Lsh(One, 128)
	Q192 = new(ui.Int).Lsh(One, 192)
	E6   = ui.NewInt(1_000_000)
	E18  = new(ui.Int).Exp(ui.NewInt(10), ui.NewInt(18))
)
