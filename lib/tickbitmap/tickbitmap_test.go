package tickbitmap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func initTicks(t *testing.T, spacing int, ticks ...int) *TickBitmap {
	b := New(spacing)
	for _, tick := range ticks {
		require.NoError(t, b.FlipTick(tick))
	}
	return b
}

func TestFlipTick(t *testing.T) {
	b := New(1)
	require.False(t, b.IsInitialized(1))

	require.NoError(t, b.FlipTick(1))
	require.True(t, b.IsInitialized(1))

	require.NoError(t, b.FlipTick(1))
	require.False(t, b.IsInitialized(1))
	require.Empty(t, b.words)

	require.NoError(t, b.FlipTick(-230))
	require.True(t, b.IsInitialized(-230))
	require.False(t, b.IsInitialized(-231))
	require.False(t, b.IsInitialized(-229))
	require.False(t, b.IsInitialized(-230+256))
	require.False(t, b.IsInitialized(-230-256))

	spaced := New(60)
	require.ErrorIs(t, spaced.FlipTick(61), ErrTickMisaligned)
	require.NoError(t, spaced.FlipTick(-120))
	require.True(t, spaced.IsInitialized(-120))
}

func TestPosition(t *testing.T) {
	tests := [][]int{
		{0, 0, 0},
		{255, 0, 255},
		{256, 1, 0},
		{-1, -1, 255},
		{-256, -1, 0},
		{-257, -2, 255},
	}
	for _, arg := range tests {
		t.Run(fmt.Sprint(arg), func(t *testing.T) {
			wordPos, bitPos := Position(arg[0])
			require.Equal(t, int16(arg[1]), wordPos)
			require.Equal(t, uint8(arg[2]), bitPos)
		})
	}
}

func TestNextInitializedTickWithinOneWord(t *testing.T) {
	b := initTicks(t, 1, -200, -55, -4, 70, 78, 84, 139, 240, 535)

	tests := []struct {
		tick        int
		lte         bool
		next        int
		initialized bool
	}{
		{78, false, 84, true},
		{-55, false, -4, true},
		{77, false, 78, true},
		{-56, false, -55, true},
		{255, false, 511, false},
		{-257, false, -200, true},
		{340, false, 511, false},
		{508, false, 511, false},
		{511, false, 535, true},
		{1000, false, 1023, false},

		{78, true, 78, true},
		{79, true, 78, true},
		{258, true, 256, false},
		{256, true, 256, false},
		{72, true, 70, true},
		{-257, true, -512, false},
		{1023, true, 768, false},
		{900, true, 768, false},
		{-56, true, -200, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.tick, tt.lte), func(t *testing.T) {
			next, initialized := b.NextInitializedTickWithinOneWord(tt.tick, tt.lte)
			require.Equal(t, tt.next, next)
			require.Equal(t, tt.initialized, initialized)
		})
	}

	require.NoError(t, b.FlipTick(329))
	next, initialized := b.NextInitializedTickWithinOneWord(456, true)
	require.Equal(t, 329, next)
	require.True(t, initialized)
}

func TestNextInitializedTickWithSpacing(t *testing.T) {
	b := initTicks(t, 60, -120, 60)

	next, initialized := b.NextInitializedTickWithinOneWord(-61, true)
	require.Equal(t, -120, next)
	require.True(t, initialized)

	next, initialized = b.NextInitializedTickWithinOneWord(-1, true)
	require.Equal(t, -120, next)
	require.True(t, initialized)

	next, initialized = b.NextInitializedTickWithinOneWord(-120, false)
	require.Equal(t, -60, next)
	require.False(t, initialized)

	next, initialized = b.NextInitializedTickWithinOneWord(-60, false)
	require.Equal(t, 60, next)
	require.True(t, initialized)
}

func TestNextInitializedTick(t *testing.T) {
	b := initTicks(t, 1, -2000, 70, 5000)

	next, initialized := b.NextInitializedTick(0, false, 10000)
	require.Equal(t, 70, next)
	require.True(t, initialized)

	next, initialized = b.NextInitializedTick(70, false, 10000)
	require.Equal(t, 5000, next)
	require.True(t, initialized)

	next, initialized = b.NextInitializedTick(70, false, 4000)
	require.Equal(t, 4000, next)
	require.False(t, initialized)

	next, initialized = b.NextInitializedTick(70, false, 5000)
	require.Equal(t, 5000, next)
	require.True(t, initialized)

	next, initialized = b.NextInitializedTick(69, true, -10000)
	require.Equal(t, -2000, next)
	require.True(t, initialized)

	next, initialized = b.NextInitializedTick(-1999, true, -1000)
	require.Equal(t, -1000, next)
	require.False(t, initialized)

	clone := b.Clone()
	require.NoError(t, clone.FlipTick(70))
	require.True(t, b.IsInitialized(70))
	require.False(t, clone.IsInitialized(70))
}
