package tickmath

import (
	"errors"
	"math/bits"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"

	ui "github.com/holiman/uint256"
)

const (
	MinTick int = -887272  // The minimum tick that can be used on any pool.
	MaxTick int = -MinTick // The maximum tick that can be used on any pool.
)

var (
	ErrInvalidTick      = errors.New("tickmath: tick out of range")
	ErrInvalidSqrtPrice = errors.New("tickmath: sqrt price out of range")
)

var (
	MinSqrtRatio = ui.NewInt(4295128739)                                                    // The sqrt ratio corresponding to MinTick.
	MaxSqrtRatio = ui.MustFromDecimal("1461446703485210103287273052203988822378723970342") // The sqrt ratio corresponding to MaxTick.

	q32Mask = ui.NewInt(1<<32 - 1)

	magicSqrt10001 = ui.MustFromHex("0x3627a301d71055774c85")
	magicTickLow   = ui.MustFromHex("0x28f6481ab7f045a5af012a19d003aaa")
	magicTickHigh  = ui.MustFromHex("0xdb2df09e81959a81455e260799a0632f")
)

// ratios[i] is 2^128 / sqrt(1.0001)^(2^i) as a Q128.128.
var ratios = mustFromHex(
	"0xfffcb933bd6fad37aa2d162d1a594001",
	"0xfff97272373d413259a46990580e213a",
	"0xfff2e50f5f656932ef12357cf3c7fdcc",
	"0xffe5caca7e10e4e61c3624eaa0941cd0",
	"0xffcb9843d60f6159c9db58835c926644",
	"0xff973b41fa98c081472e6896dfb254c0",
	"0xff2ea16466c96a3843ec78b326b52861",
	"0xfe5dee046a99a2a811c461f1969c3053",
	"0xfcbe86c7900a88aedcffc83b479aa3a4",
	"0xf987a7253ac413176f2b074cf7815e54",
	"0xf3392b0822b70005940c7a398e4b70f3",
	"0xe7159475a2c29b7443b29c7fa6e889d9",
	"0xd097f3bdfd2022b8845ad8f792aa5825",
	"0xa9f746462d870fdf8a65dc1f90e061e5",
	"0x70d869a156d2a1b890bb3df62baf32f7",
	"0x31be135f97d08fd981231505542fcfa6",
	"0x9aa508b5b7a84e1c677de54f3e99bc9",
	"0x5d6af8dedb81196699c329225ee604",
	"0x2216e584f5fa1ea926041bedfe98",
	"0x48a170391f7dc42444e8fa2",
)

func mustFromHex(hexes ...string) []*ui.Int {
	out := make([]*ui.Int, len(hexes))
	for i, h := range hexes {
		out[i] = ui.MustFromHex(h)
	}
	return out
}

// GetSqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96, rounded up.
func GetSqrtRatioAtTick(tick int) (*ui.Int, error) {
	absTick := tick
	if tick < 0 {
		absTick = -tick
	}
	if absTick > MaxTick {
		return nil, ErrInvalidTick
	}

	ratio := new(ui.Int).Set(cons.Q128)
	for i, r := range ratios {
		if absTick&(1<<i) == 0 {
			continue
		}
		if i == 0 {
			ratio.Set(r)
			continue
		}
		ratio.Mul(ratio, r).Rsh(ratio, 128)
	}
	if tick > 0 {
		ratio.Div(cons.MaxUint256, ratio)
	}

	// back to Q96
	roundUp := !new(ui.Int).And(ratio, q32Mask).IsZero()
	ratio.Rsh(ratio, 32)
	if roundUp {
		ratio.AddUint64(ratio, 1)
	}
	return ratio, nil
}

// GetTickAtSqrtRatio returns the greatest tick whose ratio is less than or
// equal to sqrtRatioX96.
func GetTickAtSqrtRatio(sqrtRatioX96 *ui.Int) (int, error) {
	if sqrtRatioX96.Lt(MinSqrtRatio) || !sqrtRatioX96.Lt(MaxSqrtRatio) {
		return 0, ErrInvalidSqrtPrice
	}
	ratio := new(ui.Int).Lsh(sqrtRatioX96, 32)
	msb := MostSignificantBit(ratio)

	r := new(ui.Int)
	if msb >= 128 {
		r.Rsh(ratio, msb-127)
	} else {
		r.Lsh(ratio, 127-msb)
	}

	// log2 is a signed 64.64 fixed point number
	log2 := signedInt(int64(msb) - 128)
	log2.Lsh(log2, 64)
	f := new(ui.Int)
	for i := uint(0); i < 14; i++ {
		r.Mul(r, r).Rsh(r, 127)
		f.Rsh(r, 128)
		if f.IsZero() {
			continue
		}
		log2.Or(log2, new(ui.Int).Lsh(cons.One, 63-i))
		r.Rsh(r, 1)
	}

	logSqrt10001 := new(ui.Int).Mul(log2, magicSqrt10001)
	tickLow := toInt(new(ui.Int).SRsh(new(ui.Int).Sub(logSqrt10001, magicTickLow), 128))
	tickHigh := toInt(new(ui.Int).SRsh(new(ui.Int).Add(logSqrt10001, magicTickHigh), 128))
	if tickLow == tickHigh {
		return tickLow, nil
	}

	sqrtRatio, err := GetSqrtRatioAtTick(tickHigh)
	if err != nil {
		return 0, err
	}
	if sqrtRatio.Cmp(sqrtRatioX96) <= 0 {
		return tickHigh, nil
	}
	return tickLow, nil
}

// MostSignificantBit returns the index of the highest set bit. x must be nonzero.
func MostSignificantBit(x *ui.Int) uint {
	return uint(x.BitLen() - 1)
}

// LeastSignificantBit returns the index of the lowest set bit. x must be nonzero.
func LeastSignificantBit(x *ui.Int) uint {
	for i, limb := range x {
		if limb != 0 {
			return uint(i*64 + bits.TrailingZeros64(limb))
		}
	}
	return 256
}

// Floor aligns tick down to a multiple of tickSpacing.
func Floor(tick, tickSpacing int) int {
	compressed := tick / tickSpacing
	if tick < 0 && tick%tickSpacing != 0 {
		compressed--
	}
	return compressed * tickSpacing
}

// Ceil aligns tick up to a multiple of tickSpacing.
func Ceil(tick, tickSpacing int) int {
	floor := Floor(tick, tickSpacing)
	if floor == tick {
		return tick
	}
	return floor + tickSpacing
}

// MinUsableTick and MaxUsableTick are the outermost ticks a position may use.
func MinUsableTick(tickSpacing int) int { return Ceil(MinTick, tickSpacing) }
func MaxUsableTick(tickSpacing int) int { return Floor(MaxTick, tickSpacing) }

func signedInt(v int64) *ui.Int {
	if v < 0 {
		return new(ui.Int).Neg(ui.NewInt(uint64(-v)))
	}
	return ui.NewInt(uint64(v))
}

// toInt reads a small two's complement value.
func toInt(x *ui.Int) int {
	return int(int64(x.Uint64()))
}
