package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/store"
)

func seedProduct(t *testing.T, s *Store, stock int) domain.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), domain.Product{
		SKU:       "SKU-T",
		Name:      "Test",
		Type:      domain.ProductTypePhysical,
		BasePrice: decimal.NewFromInt(2),
		Stock:     stock,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return *p
}

func TestNewSeededKeepsProductStockConsistentWithBatches(t *testing.T) {
	s := NewSeeded()
	batches, err := s.ListStockedBatches(context.Background())
	if err != nil {
		t.Fatalf("list batches: %v", err)
	}
	batched := map[string]int{}
	for _, b := range batches {
		batched[b.ProductID] += b.Stock
	}
	products, _ := s.ListProducts(context.Background(), "")
	for _, p := range products {
		if p.Stock < batched[p.ID] {
			t.Fatalf("product %s stock %d below batch sum %d", p.SKU, p.Stock, batched[p.ID])
		}
	}
}

func TestWithTxDiscardsWritesOnError(t *testing.T) {
	s := New()
	p := seedProduct(t, s, 5)
	b, err := s.CreateBatch(context.Background(), domain.Batch{ProductID: p.ID, BatchNumber: "B1", Stock: 3})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	boom := errors.New("boom")
	err = s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertSale(ctx, domain.Sale{ID: "sale-1", IsFinalized: true}); err != nil {
			return err
		}
		if err := tx.DeductBatch(ctx, b.ID, 2); err != nil {
			return err
		}
		if err := tx.DeductProductStock(ctx, p.ID, 2); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.GetProduct(context.Background(), p.ID)
	if got.Stock != 8 {
		t.Fatalf("expected product stock untouched at 8, got %d", got.Stock)
	}
	stocked, _ := s.ListStockedBatches(context.Background())
	if len(stocked) != 1 || stocked[0].Stock != 3 {
		t.Fatalf("expected batch untouched at 3, got %+v", stocked)
	}
	if _, err := s.GetSale(context.Background(), "sale-1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected sale to be discarded, got %v", err)
	}
}

func TestWithTxConditionalDeductions(t *testing.T) {
	s := New()
	p := seedProduct(t, s, 1)

	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.DeductProductStock(ctx, p.ID, 2)
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
}

func TestWithTxReadsOwnWrites(t *testing.T) {
	s := New()
	p := seedProduct(t, s, 0)
	older, _ := s.CreateBatch(context.Background(), domain.Batch{ProductID: p.ID, BatchNumber: "OLD", Stock: 2, ReceivedAt: time.Now().Add(-time.Hour)})
	_, _ = s.CreateBatch(context.Background(), domain.Batch{ProductID: p.ID, BatchNumber: "NEW", Stock: 2})

	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.DeductBatch(ctx, older.ID, 2); err != nil {
			return err
		}
		batches, err := tx.ListAvailableBatches(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(batches) != 1 || batches[0].BatchNumber != "NEW" {
			t.Fatalf("expected only NEW batch to remain available, got %+v", batches)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}
}

func TestDeleteBatchAdjustsProductStock(t *testing.T) {
	s := New()
	p := seedProduct(t, s, 4)
	b, _ := s.CreateBatch(context.Background(), domain.Batch{ProductID: p.ID, BatchNumber: "B1", Stock: 6})

	if err := s.DeleteBatch(context.Background(), b.ID); err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	got, _ := s.GetProduct(context.Background(), p.ID)
	if got.Stock != 4 {
		t.Fatalf("expected stock back to 4, got %d", got.Stock)
	}
}

func TestHistoryViewCanBeDisabled(t *testing.T) {
	s := New()
	s.DisableHistoryView()
	_, _, err := s.ListSalesHistoryView(context.Background(), domain.SalesHistoryQuery{})
	if !errors.Is(err, store.ErrViewUnavailable) {
		t.Fatalf("expected view unavailable, got %v", err)
	}
}

func TestCreateProductRejectsDuplicateSKU(t *testing.T) {
	s := New()
	seedProduct(t, s, 1)
	_, err := s.CreateProduct(context.Background(), domain.Product{SKU: "sku-t", Name: "Dup"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
