package tickbitmap

import (
	"errors"

	cons "github.com/ftchann/uniswap-twamm/lib/constants"
	"github.com/ftchann/uniswap-twamm/lib/tickmath"

	ui "github.com/holiman/uint256"
)

var ErrTickMisaligned = errors.New("tickbitmap: tick not a multiple of tick spacing")

// TickBitmap packs one bit per tickSpacing-aligned tick into 256 bit words.
type TickBitmap struct {
	words       map[int16]*ui.Int
	tickSpacing int
}

func New(tickSpacing int) *TickBitmap {
	return &TickBitmap{
		words:       make(map[int16]*ui.Int),
		tickSpacing: tickSpacing,
	}
}

func (b *TickBitmap) Clone() *TickBitmap {
	words := make(map[int16]*ui.Int, len(b.words))
	for k, v := range b.words {
		words[k] = v.Clone()
	}
	return &TickBitmap{words: words, tickSpacing: b.tickSpacing}
}

func (b *TickBitmap) TickSpacing() int {
	return b.tickSpacing
}

// Position returns the word and bit of a compressed tick.
func Position(tick int) (wordPos int16, bitPos uint8) {
	return int16(tick >> 8), uint8(tick)
}

func (b *TickBitmap) compress(tick int) int {
	compressed := tick / b.tickSpacing
	if tick < 0 && tick%b.tickSpacing != 0 {
		compressed-- // round towards negative infinity
	}
	return compressed
}

func (b *TickBitmap) word(wordPos int16) *ui.Int {
	if w, ok := b.words[wordPos]; ok {
		return w
	}
	return cons.Zero
}

// FlipTick toggles the initialized bit of tick.
func (b *TickBitmap) FlipTick(tick int) error {
	if tick%b.tickSpacing != 0 {
		return ErrTickMisaligned
	}
	wordPos, bitPos := Position(tick / b.tickSpacing)
	mask := new(ui.Int).Lsh(cons.One, uint(bitPos))
	w := new(ui.Int).Xor(b.word(wordPos), mask)
	if w.IsZero() {
		delete(b.words, wordPos)
		return nil
	}
	b.words[wordPos] = w
	return nil
}

func (b *TickBitmap) IsInitialized(tick int) bool {
	if tick%b.tickSpacing != 0 {
		return false
	}
	wordPos, bitPos := Position(tick / b.tickSpacing)
	return new(ui.Int).Rsh(b.word(wordPos), uint(bitPos)).Uint64()&1 == 1
}

// NextInitializedTickWithinOneWord returns the next initialized tick in the
// word of tick, searching left (lte, tick itself included) or right (tick
// excluded). If none is found the word boundary is returned with
// initialized false.
func (b *TickBitmap) NextInitializedTickWithinOneWord(tick int, lte bool) (next int, initialized bool) {
	compressed := b.compress(tick)

	if lte {
		wordPos, bitPos := Position(compressed)
		// all the 1s at or to the right of the current bitPos
		mask := new(ui.Int).Lsh(cons.One, uint(bitPos))
		mask.Sub(mask, cons.One).Add(mask, new(ui.Int).Lsh(cons.One, uint(bitPos)))
		masked := mask.And(mask, b.word(wordPos))

		initialized = !masked.IsZero()
		if initialized {
			return (compressed - int(bitPos) + int(tickmath.MostSignificantBit(masked))) * b.tickSpacing, true
		}
		return (compressed - int(bitPos)) * b.tickSpacing, false
	}

	// start from the word of the next tick, since the current tick state doesn't matter
	wordPos, bitPos := Position(compressed + 1)
	// all the 1s at or to the left of the bitPos
	mask := new(ui.Int).Lsh(cons.One, uint(bitPos))
	mask.Sub(mask, cons.One).Not(mask)
	masked := mask.And(mask, b.word(wordPos))

	initialized = !masked.IsZero()
	if initialized {
		return (compressed + 1 + int(tickmath.LeastSignificantBit(masked)) - int(bitPos)) * b.tickSpacing, true
	}
	return (compressed + 1 + 255 - int(bitPos)) * b.tickSpacing, false
}

// NextInitializedTick walks words until an initialized tick is found or the
// search passes bound. Returns bound with initialized false in that case.
func (b *TickBitmap) NextInitializedTick(tick int, lte bool, bound int) (next int, initialized bool) {
	for {
		next, initialized = b.NextInitializedTickWithinOneWord(tick, lte)
		if lte {
			if next <= bound {
				return bound, initialized && next == bound
			}
			if initialized {
				return next, true
			}
			tick = next - 1
		} else {
			if next >= bound {
				return bound, initialized && next == bound
			}
			if initialized {
				return next, true
			}
			tick = next
		}
	}
}
