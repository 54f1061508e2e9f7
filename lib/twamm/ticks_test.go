package twamm

import (
	"testing"

	"github.com/ftchann/uniswap-twamm/lib/tickbitmap"
	"github.com/ftchann/uniswap-twamm/lib/tickdata"

	ui "github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// testTicks is a tick ledger without fee accounting.
type testTicks struct {
	bitmap  *tickbitmap.TickBitmap
	ticks   tickdata.Ticks
	crossed []int
}

func newTestTicks(tickSpacing int) *testTicks {
	return &testTicks{
		bitmap: tickbitmap.New(tickSpacing),
		ticks:  tickdata.NewTicks(),
	}
}

func (tt *testTicks) addLiquidity(t *testing.T, lower, upper, current int, liquidity *ui.Int) {
	t.Helper()
	maxLiquidity := tickdata.TickSpacingToMaxLiquidityPerTick(tt.bitmap.TickSpacing())
	for _, tick := range []int{lower, upper} {
		flipped, err := tt.ticks.Update(tick, current, liquidity, new(ui.Int), new(ui.Int), tick == upper, maxLiquidity)
		require.NoError(t, err)
		if flipped {
			require.NoError(t, tt.bitmap.FlipTick(tick))
		}
	}
}

func (tt *testTicks) NextInitializedTick(tick int, lte bool, bound int) (int, bool) {
	return tt.bitmap.NextInitializedTick(tick, lte, bound)
}

func (tt *testTicks) CrossTick(tick int) *ui.Int {
	tt.crossed = append(tt.crossed, tick)
	return tt.ticks.Cross(tick, new(ui.Int), new(ui.Int))
}
