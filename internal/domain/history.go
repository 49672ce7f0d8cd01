package domain

import (
	"fmt"
	"sort"
	"strings"
)

// ShortID is the truncated sale id shown in listings.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// NewSalesHistoryRow flattens a sale and its items into the history shape.
// Quantities are summed per product and the summary is ordered by product name.
func NewSalesHistoryRow(sale Sale, items []SaleItemDetail) SalesHistoryRow {
	type entry struct {
		name string
		qty  int
	}
	byProduct := make(map[string]*entry, len(items))
	count := 0
	for _, item := range items {
		count += item.Quantity
		e, ok := byProduct[item.ProductID]
		if !ok {
			name := item.ProductName
			if name == "" {
				name = "Unknown product"
			}
			e = &entry{name: name}
			byProduct[item.ProductID] = e
		}
		e.qty += item.Quantity
	}

	entries := make([]*entry, 0, len(byProduct))
	for _, e := range byProduct {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].name < entries[j].name
	})

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s (x%d)", e.name, e.qty))
	}

	return SalesHistoryRow{
		ID:            sale.ID,
		ShortID:       ShortID(sale.ID),
		CreatedAt:     sale.CreatedAt,
		ItemsSummary:  strings.Join(parts, ", "),
		ItemCount:     count,
		PaymentMethod: sale.PaymentMethod,
		TotalAmount:   sale.TotalAmount,
	}
}

// Matches reports whether the row satisfies a free-text history search.
func (r SalesHistoryRow) Matches(search string) bool {
	needle := strings.ToLower(strings.TrimSpace(search))
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(r.ID), needle) ||
		strings.Contains(strings.ToLower(r.ItemsSummary), needle) ||
		strings.Contains(strings.ToLower(r.PaymentMethod), needle)
}
