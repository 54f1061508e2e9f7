// Package prices keeps a window of recent sqrt price samples.
package prices

import (
	"math/big"

	ui "github.com/holiman/uint256"
)

// Prices is a ring buffer of sqrtPriceX96 samples.
type Prices struct {
	prices []*ui.Int
	index  int
	count  int
	length int
}

func NewPrices(length int) *Prices {
	if length < 1 {
		length = 1
	}
	return &Prices{prices: make([]*ui.Int, length), length: length}
}

// Add records a sample, dropping the oldest once the window is full.
func (p *Prices) Add(sqrtPriceX96 *ui.Int) {
	p.prices[p.index] = sqrtPriceX96.Clone()
	p.index = (p.index + 1) % p.length
	if p.count < p.length {
		p.count++
	}
}

func (p *Prices) Len() int {
	return p.count
}

func (p *Prices) samples() []*ui.Int {
	if p.count < p.length {
		return p.prices[:p.count]
	}
	return p.prices
}

// Average is the mean sample, rounded down. Zero when empty.
func (p *Prices) Average() *ui.Int {
	sum := new(ui.Int)
	if p.count == 0 {
		return sum
	}
	// samples fit in 160 bits, the sum cannot overflow
	for _, price := range p.samples() {
		sum.Add(sum, price)
	}
	return sum.Div(sum, ui.NewInt(uint64(p.count)))
}

// Volatility is the sample standard deviation in X96, rounded down. Zero with
// fewer than two samples.
func (p *Prices) Volatility() *ui.Int {
	if p.count < 2 {
		return new(ui.Int)
	}
	avg := p.Average().ToBig()
	sum := new(big.Int)
	for _, price := range p.samples() {
		diff := new(big.Int).Sub(price.ToBig(), avg)
		sum.Add(sum, diff.Mul(diff, diff))
	}
	variance := sum.Div(sum, big.NewInt(int64(p.count-1)))
	volatility, _ := ui.FromBig(variance.Sqrt(variance))
	return volatility
}
