// Package cart holds the in-progress sale selection and its money totals.
//
// Prices are tax inclusive. Line nets are kept at four decimals and the
// aggregates are rounded to cents only once, after summing.
package cart

import (
	"github.com/shopspring/decimal"

	"unitysales/backend/internal/domain"
)

const (
	linePrecision  = 4
	totalPrecision = 2
)

var hundred = decimal.NewFromInt(100)

type Cart struct {
	lines []domain.CartLine
	index map[string]int
}

func New() *Cart {
	return &Cart{index: make(map[string]int)}
}

// FromLines rebuilds a cart from lines held by the terminal. Lines for the
// same product are merged and keep the first line's prices; callers reject
// conflicting prices with PriceConflict first.
func FromLines(lines []domain.CartLine) *Cart {
	c := New()
	for _, line := range lines {
		if line.ID == "" || line.Quantity < 1 {
			continue
		}
		if i, ok := c.index[line.ID]; ok {
			c.lines[i].Quantity += line.Quantity
			continue
		}
		c.index[line.ID] = len(c.lines)
		c.lines = append(c.lines, line)
	}
	return c
}

// PriceConflict returns the index of the first line that repeats a product
// with a different base price or tax rate, or -1.
func PriceConflict(lines []domain.CartLine) int {
	first := make(map[string]domain.CartLine, len(lines))
	for i, line := range lines {
		seen, ok := first[line.ID]
		if !ok {
			first[line.ID] = line
			continue
		}
		if !seen.BasePrice.Equal(line.BasePrice) || !seen.TaxRate.Equal(line.TaxRate) {
			return i
		}
	}
	return -1
}

// Add puts one more unit of product into the cart. It returns false without
// changing anything when the line already holds all known stock.
func (c *Cart) Add(product domain.Product) bool {
	if i, ok := c.index[product.ID]; ok {
		line := &c.lines[i]
		line.Stock = product.Stock
		if line.Quantity >= product.Stock {
			return false
		}
		line.Quantity++
		return true
	}
	if product.Stock < 1 {
		return false
	}
	c.index[product.ID] = len(c.lines)
	c.lines = append(c.lines, domain.CartLine{
		ID:        product.ID,
		Name:      product.Name,
		SKU:       product.SKU,
		BasePrice: product.BasePrice,
		TaxRate:   product.TaxRate,
		Stock:     product.Stock,
		Quantity:  1,
	})
	return true
}

// Decrease takes one unit off a line but never drops it below one.
func (c *Cart) Decrease(productID string) {
	if i, ok := c.index[productID]; ok && c.lines[i].Quantity > 1 {
		c.lines[i].Quantity--
	}
}

func (c *Cart) Remove(productID string) {
	i, ok := c.index[productID]
	if !ok {
		return
	}
	c.lines = append(c.lines[:i], c.lines[i+1:]...)
	delete(c.index, productID)
	for id, pos := range c.index {
		if pos > i {
			c.index[id] = pos - 1
		}
	}
}

func (c *Cart) Clear() {
	c.lines = nil
	c.index = make(map[string]int)
}

func (c *Cart) Quantity(productID string) int {
	if i, ok := c.index[productID]; ok {
		return c.lines[i].Quantity
	}
	return 0
}

func (c *Cart) Lines() []domain.CartLine {
	out := make([]domain.CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

func (c *Cart) Totals() domain.CartTotals {
	return Totals(c.lines)
}

// Totals computes subtotal, tax and gross for a set of lines.
func Totals(lines []domain.CartLine) domain.CartTotals {
	subtotal := decimal.Zero
	tax := decimal.Zero
	total := decimal.Zero
	units := 0
	for _, line := range lines {
		gross, net := LineAmounts(line)
		subtotal = subtotal.Add(net)
		tax = tax.Add(gross.Sub(net))
		total = total.Add(gross)
		units += line.Quantity
	}
	return domain.CartTotals{
		Subtotal:   subtotal.Round(totalPrecision),
		Tax:        tax.Round(totalPrecision),
		Total:      total.Round(totalPrecision),
		TotalItems: len(lines),
		TotalUnits: units,
	}
}

// LineAmounts returns the gross and four-decimal net for one line.
func LineAmounts(line domain.CartLine) (gross decimal.Decimal, net decimal.Decimal) {
	gross = line.BasePrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
	divisor := decimal.NewFromInt(1).Add(line.TaxRate.Div(hundred))
	if divisor.Sign() <= 0 {
		return gross, gross
	}
	net = gross.Div(divisor).Round(linePrecision)
	return gross, net
}
