package inventory

import "slices"

// Product is the stock view of a catalog entry. Legacy products carry a single
// Stock value; variant products carry per-denomination stock.
type Product struct {
	ID                string
	Stock             *int
	DenominationStock map[int]int
}

// StockFor returns the configured stock for d. The unset denomination reads
// the single value, or the sum of all denominations when there is none.
func (p Product) StockFor(d Denomination) int {
	if d.Set {
		if p.DenominationStock == nil {
			return deref(p.Stock)
		}
		return p.DenominationStock[d.Value]
	}
	if p.Stock != nil {
		return *p.Stock
	}
	total := 0
	for _, n := range p.DenominationStock {
		total += n
	}
	return total
}

// Take decrements up to qty units for d, never below zero, and returns how
// many were actually taken. An unset denomination on a variant-only product
// drains denominations in ascending order.
func (p *Product) Take(d Denomination, qty int) int {
	if qty <= 0 {
		return 0
	}
	if d.Set && p.DenominationStock != nil {
		have := p.DenominationStock[d.Value]
		n := min(have, qty)
		p.DenominationStock[d.Value] = have - n
		return n
	}
	if p.Stock != nil || d.Set {
		have := deref(p.Stock)
		n := min(have, qty)
		left := have - n
		p.Stock = &left
		return n
	}

	values := make([]int, 0, len(p.DenominationStock))
	for v := range p.DenominationStock {
		values = append(values, v)
	}
	slices.Sort(values)
	taken := 0
	for _, v := range values {
		if taken == qty {
			break
		}
		n := min(p.DenominationStock[v], qty-taken)
		p.DenominationStock[v] -= n
		taken += n
	}
	return taken
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
