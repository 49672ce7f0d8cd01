// Package allocation decides which stock sources satisfy one sale line.
//
// Batches are consumed oldest received first. When the batches of a product
// cannot cover the whole line, the line is served from the product's
// aggregate stock as a single untracked deduction, or refused. A line is
// never split between batches and aggregate stock.
package allocation

import (
	"sort"

	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/store"
)

// Plan returns the deductions needed to take requested units of product.
// The input batches are not modified.
func Plan(product domain.Product, batches []domain.Batch, requested int) ([]domain.Deduction, error) {
	if requested < 1 {
		return nil, store.Invalid("quantity", "must be at least 1")
	}
	if product.IsService() {
		return []domain.Deduction{{Quantity: requested}}, nil
	}

	ordered := make([]domain.Batch, 0, len(batches))
	totalBatchStock := 0
	for _, batch := range batches {
		if batch.Stock <= 0 {
			continue
		}
		ordered = append(ordered, batch)
		totalBatchStock += batch.Stock
	}

	if totalBatchStock < requested {
		if product.Stock < requested {
			return nil, &store.InsufficientStockError{
				ProductID: product.ID,
				Product:   product.Name,
				Available: max(product.Stock, totalBatchStock),
				Requested: requested,
			}
		}
		return []domain.Deduction{{Quantity: requested}}, nil
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ReceivedAt.Before(ordered[j].ReceivedAt)
	})

	deductions := make([]domain.Deduction, 0, len(ordered))
	remaining := requested
	for _, batch := range ordered {
		if remaining == 0 {
			break
		}
		take := min(batch.Stock, remaining)
		batchID := batch.ID
		deductions = append(deductions, domain.Deduction{BatchID: &batchID, Quantity: take})
		remaining -= take
	}
	return deductions, nil
}

// FromBatches reports how many units of the plan come from tracked batches.
func FromBatches(deductions []domain.Deduction) int {
	total := 0
	for _, d := range deductions {
		if d.BatchID != nil {
			total += d.Quantity
		}
	}
	return total
}
