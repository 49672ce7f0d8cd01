package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unitysales/backend/internal/domain"
)

func product(id string, price string, tax int64, stock int) domain.Product {
	return domain.Product{
		ID:        id,
		SKU:       "SKU-" + id,
		Name:      "Product " + id,
		BasePrice: decimal.RequireFromString(price),
		TaxRate:   decimal.NewFromInt(tax),
		Stock:     stock,
	}
}

func TestAddStopsAtKnownStock(t *testing.T) {
	c := New()
	p := product("a", "1.00", 21, 3)

	for i := 0; i < 10; i++ {
		c.Add(p)
	}

	assert.Equal(t, 3, c.Quantity("a"))
	assert.False(t, c.Add(p))
}

func TestAddRejectsOutOfStockProduct(t *testing.T) {
	c := New()
	assert.False(t, c.Add(product("a", "1.00", 21, 0)))
	assert.Empty(t, c.Lines())
}

func TestDecreaseNeverRemovesLine(t *testing.T) {
	c := New()
	p := product("a", "1.00", 21, 5)
	c.Add(p)
	c.Add(p)

	c.Decrease("a")
	c.Decrease("a")
	c.Decrease("a")

	require.Len(t, c.Lines(), 1)
	assert.Equal(t, 1, c.Quantity("a"))
}

func TestRemoveKeepsOtherLinesAddressable(t *testing.T) {
	c := New()
	c.Add(product("a", "1.00", 0, 5))
	c.Add(product("b", "2.00", 0, 5))
	c.Add(product("c", "3.00", 0, 5))

	c.Remove("a")
	c.Add(product("c", "3.00", 0, 5))

	assert.Equal(t, 0, c.Quantity("a"))
	assert.Equal(t, 1, c.Quantity("b"))
	assert.Equal(t, 2, c.Quantity("c"))
	assert.Len(t, c.Lines(), 2)
}

func TestTotalsExtractTaxFromInclusivePrice(t *testing.T) {
	c := New()
	c.Add(product("a", "12.10", 21, 10))

	totals := c.Totals()

	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("10.00")), "subtotal %s", totals.Subtotal)
	assert.True(t, totals.Tax.Equal(decimal.RequireFromString("2.10")), "tax %s", totals.Tax)
	assert.True(t, totals.Total.Equal(decimal.RequireFromString("12.10")), "total %s", totals.Total)
	assert.Equal(t, 1, totals.TotalItems)
	assert.Equal(t, 1, totals.TotalUnits)
}

func TestTotalsRoundOnceAtAggregation(t *testing.T) {
	lines := []domain.CartLine{
		{ID: "a", BasePrice: decimal.RequireFromString("1.99"), TaxRate: decimal.NewFromInt(21), Quantity: 3},
		{ID: "b", BasePrice: decimal.RequireFromString("0.35"), TaxRate: decimal.NewFromInt(10), Quantity: 7},
		{ID: "c", BasePrice: decimal.RequireFromString("4.15"), TaxRate: decimal.NewFromInt(4), Quantity: 2},
	}

	totals := Totals(lines)

	perLine := decimal.Zero
	for _, line := range lines {
		_, net := LineAmounts(line)
		perLine = perLine.Add(net.Round(2))
	}
	diff := totals.Subtotal.Sub(perLine).Abs()
	assert.True(t, diff.LessThanOrEqual(decimal.RequireFromString("0.01")), "drift %s", diff)
	assert.True(t, totals.Subtotal.Add(totals.Tax).Sub(totals.Total).Abs().LessThanOrEqual(decimal.RequireFromString("0.01")))
	assert.Equal(t, 3, totals.TotalItems)
	assert.Equal(t, 12, totals.TotalUnits)
}

func TestFromLinesMergesDuplicateProducts(t *testing.T) {
	c := FromLines([]domain.CartLine{
		{ID: "a", Quantity: 2},
		{ID: "a", Quantity: 3},
		{ID: "b", Quantity: 0},
	})

	require.Len(t, c.Lines(), 1)
	assert.Equal(t, 5, c.Quantity("a"))
}

func TestPriceConflictFindsDivergentDuplicate(t *testing.T) {
	price := decimal.RequireFromString("1.21")
	tax := decimal.NewFromInt(10)

	assert.Equal(t, -1, PriceConflict([]domain.CartLine{
		{ID: "a", BasePrice: price, TaxRate: tax, Quantity: 1},
		{ID: "b", BasePrice: decimal.RequireFromString("3.00"), TaxRate: tax, Quantity: 1},
		{ID: "a", BasePrice: decimal.RequireFromString("1.210"), TaxRate: tax, Quantity: 2},
	}))
	assert.Equal(t, 2, PriceConflict([]domain.CartLine{
		{ID: "a", BasePrice: price, TaxRate: tax, Quantity: 1},
		{ID: "b", BasePrice: price, TaxRate: tax, Quantity: 1},
		{ID: "a", BasePrice: decimal.RequireFromString("0.99"), TaxRate: tax, Quantity: 1},
	}))
	assert.Equal(t, 1, PriceConflict([]domain.CartLine{
		{ID: "a", BasePrice: price, TaxRate: tax, Quantity: 1},
		{ID: "a", BasePrice: price, TaxRate: decimal.NewFromInt(21), Quantity: 1},
	}))
}
