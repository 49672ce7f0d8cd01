package memory

import (
	"context"
	"slices"

	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/store"
)

// WithTx holds the write lock for the whole unit of work. Writes land in an
// overlay that is folded into the store only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:        s,
		products: make(map[string]domain.Product),
		batches:  make(map[string]domain.Batch),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, p := range tx.products {
		s.products[id] = p
	}
	for id, b := range tx.batches {
		s.batches[id] = b
	}
	for _, sale := range tx.sales {
		s.sales[sale.ID] = sale
	}
	s.saleItems = append(s.saleItems, tx.items...)
	return nil
}

type memTx struct {
	s        *Store
	products map[string]domain.Product
	batches  map[string]domain.Batch
	sales    []domain.Sale
	items    []domain.SaleItem
}

func (t *memTx) product(id string) (domain.Product, bool) {
	if p, ok := t.products[id]; ok {
		return p, true
	}
	p, ok := t.s.products[id]
	return p, ok
}

func (t *memTx) batch(id string) (domain.Batch, bool) {
	if b, ok := t.batches[id]; ok {
		return b, true
	}
	b, ok := t.s.batches[id]
	return b, ok
}

func (t *memTx) hasSale(id string) bool {
	if _, ok := t.s.sales[id]; ok {
		return true
	}
	return slices.ContainsFunc(t.sales, func(s domain.Sale) bool { return s.ID == id })
}

func (t *memTx) InsertSale(_ context.Context, sale domain.Sale) error {
	if sale.ID == "" {
		return store.Invalid("sale id", "is required")
	}
	if t.hasSale(sale.ID) {
		return store.ErrConflict
	}
	t.sales = append(t.sales, sale)
	return nil
}

func (t *memTx) GetProductForUpdate(_ context.Context, productID string) (*domain.Product, error) {
	p, ok := t.product(productID)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *memTx) ListAvailableBatches(_ context.Context, productID string) ([]domain.Batch, error) {
	result := make([]domain.Batch, 0, 4)
	for id := range t.s.batches {
		b, _ := t.batch(id)
		if b.ProductID == productID && b.Stock > 0 {
			result = append(result, b)
		}
	}
	slices.SortFunc(result, compareFIFO)
	return result, nil
}

func (t *memTx) DeductBatch(_ context.Context, batchID string, qty int) error {
	b, ok := t.batch(batchID)
	if !ok {
		return store.ErrNotFound
	}
	if qty < 1 || b.Stock < qty {
		return store.ErrInsufficientStock
	}
	b.Stock -= qty
	t.batches[batchID] = b
	return nil
}

func (t *memTx) DeductProductStock(_ context.Context, productID string, qty int) error {
	p, ok := t.product(productID)
	if !ok {
		return store.ErrNotFound
	}
	if qty < 1 || p.Stock < qty {
		return store.ErrInsufficientStock
	}
	p.Stock -= qty
	t.products[productID] = p
	return nil
}

func (t *memTx) InsertSaleItem(_ context.Context, item domain.SaleItem) error {
	if !t.hasSale(item.SaleID) {
		return store.ErrNotFound
	}
	if _, ok := t.product(item.ProductID); !ok {
		return store.ErrNotFound
	}
	if item.BatchID != nil {
		if _, ok := t.batch(*item.BatchID); !ok {
			return store.ErrNotFound
		}
	}
	t.items = append(t.items, item)
	return nil
}
