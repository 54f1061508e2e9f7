package twamm

import (
	ui "github.com/holiman/uint256"
)

// OrderPool aggregates every long term order selling in one direction.
// Earnings factors are Q96 amounts of the bought token per unit sold.
type OrderPool struct {
	SellRateCurrent          *ui.Int
	SellRateEndingAtInterval map[uint64]*ui.Int
	EarningsFactorCurrent    *ui.Int
	EarningsFactorAtInterval map[uint64]*ui.Int
}

func newOrderPool() *OrderPool {
	return &OrderPool{
		SellRateCurrent:          new(ui.Int),
		SellRateEndingAtInterval: make(map[uint64]*ui.Int),
		EarningsFactorCurrent:    new(ui.Int),
		EarningsFactorAtInterval: make(map[uint64]*ui.Int),
	}
}

func (p *OrderPool) Clone() *OrderPool {
	clone := &OrderPool{
		SellRateCurrent:          p.SellRateCurrent.Clone(),
		SellRateEndingAtInterval: make(map[uint64]*ui.Int, len(p.SellRateEndingAtInterval)),
		EarningsFactorCurrent:    p.EarningsFactorCurrent.Clone(),
		EarningsFactorAtInterval: make(map[uint64]*ui.Int, len(p.EarningsFactorAtInterval)),
	}
	for k, v := range p.SellRateEndingAtInterval {
		clone.SellRateEndingAtInterval[k] = v.Clone()
	}
	for k, v := range p.EarningsFactorAtInterval {
		clone.EarningsFactorAtInterval[k] = v.Clone()
	}
	return clone
}

// SellRateEndingAt returns the sell rate of orders expiring at the boundary.
func (p *OrderPool) SellRateEndingAt(expiration uint64) *ui.Int {
	if rate, ok := p.SellRateEndingAtInterval[expiration]; ok {
		return rate
	}
	return new(ui.Int)
}

// EarningsFactorAt returns the earnings factor snapshot taken at the boundary.
func (p *OrderPool) EarningsFactorAt(expiration uint64) (*ui.Int, bool) {
	factor, ok := p.EarningsFactorAtInterval[expiration]
	return factor, ok
}

func (p *OrderPool) addSellRate(expiration uint64, sellRate *ui.Int) {
	p.SellRateCurrent = new(ui.Int).Add(p.SellRateCurrent, sellRate)
	p.SellRateEndingAtInterval[expiration] = new(ui.Int).Add(p.SellRateEndingAt(expiration), sellRate)
}

func (p *OrderPool) subSellRate(expiration uint64, sellRate *ui.Int) {
	p.SellRateCurrent = new(ui.Int).Sub(p.SellRateCurrent, sellRate)
	ending := new(ui.Int).Sub(p.SellRateEndingAt(expiration), sellRate)
	if ending.IsZero() {
		delete(p.SellRateEndingAtInterval, expiration)
		return
	}
	p.SellRateEndingAtInterval[expiration] = ending
}

// advanceToInterval accrues earnings up to an expiration boundary, snapshots
// the earnings factor there and retires the orders expiring at it.
func (p *OrderPool) advanceToInterval(expiration uint64, earningsFactor *ui.Int) {
	p.EarningsFactorCurrent = new(ui.Int).Add(p.EarningsFactorCurrent, earningsFactor)
	p.EarningsFactorAtInterval[expiration] = p.EarningsFactorCurrent.Clone()
	if ending, ok := p.SellRateEndingAtInterval[expiration]; ok {
		p.SellRateCurrent = new(ui.Int).Sub(p.SellRateCurrent, ending)
	}
}

func (p *OrderPool) advanceToCurrentTime(earningsFactor *ui.Int) {
	p.EarningsFactorCurrent = new(ui.Int).Add(p.EarningsFactorCurrent, earningsFactor)
}
