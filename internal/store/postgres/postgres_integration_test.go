package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/store"
	"unitysales/backend/internal/xid"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("UNITYSALES_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set UNITYSALES_TEST_DATABASE_URL to run postgres integration test")
	}
	if err := Migrate(databaseURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestConditionalDeductionRollsBackWholeSale(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProduct(ctx, domain.Product{
		SKU:       fmt.Sprintf("SKU-IT-%d", time.Now().UnixNano()),
		Name:      "Producto IT",
		Type:      domain.ProductTypePhysical,
		BasePrice: decimal.NewFromInt(3),
		TaxRate:   decimal.NewFromInt(21),
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1::uuid`, p.ID)
	})

	b, err := s.CreateBatch(ctx, domain.Batch{ProductID: p.ID, BatchNumber: "L-IT", Stock: 2})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	saleID := xid.New()
	err = s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertSale(ctx, domain.Sale{
			ID:            saleID,
			CreatedAt:     time.Now().UTC(),
			TotalAmount:   decimal.NewFromInt(9),
			PaymentMethod: domain.PaymentCash,
			IsFinalized:   true,
		}); err != nil {
			return err
		}
		if err := tx.DeductBatch(ctx, b.ID, 2); err != nil {
			return err
		}
		return tx.DeductBatch(ctx, b.ID, 1)
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if _, err := s.GetSale(ctx, saleID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected sale to be rolled back, got %v", err)
	}
	got, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", got.Stock)
	}
}

func TestConcurrentDeductionsNeverOversell(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProduct(ctx, domain.Product{
		SKU:       fmt.Sprintf("SKU-RACE-%d", time.Now().UnixNano()),
		Name:      "Producto Carrera",
		Type:      domain.ProductTypePhysical,
		BasePrice: decimal.NewFromInt(2),
		TaxRate:   decimal.Zero,
		Stock:     5,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1::uuid`, p.ID)
	})

	const buyers = 6
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
				product, err := tx.GetProductForUpdate(ctx, p.ID)
				if err != nil {
					return err
				}
				if product.Stock < 5 {
					return store.ErrInsufficientStock
				}
				return tx.DeductProductStock(ctx, p.ID, 5)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrConcurrentUpdate):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	got, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", got.Stock)
	}
}

func TestSearchTreatsWildcardsLiterally(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	p, err := s.CreateProduct(ctx, domain.Product{
		SKU:       fmt.Sprintf("SKU-LIKE-%d", stamp),
		Name:      "Producto Busqueda",
		Type:      domain.ProductTypePhysical,
		BasePrice: decimal.NewFromInt(1),
		TaxRate:   decimal.Zero,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1::uuid`, p.ID)
	})

	cases := map[string]int{
		fmt.Sprintf("LIKE-%d", stamp):  1,
		fmt.Sprintf("LIKE_%d", stamp):  0,
		fmt.Sprintf("LIKE%%%d", stamp): 0,
	}
	for search, want := range cases {
		_, total, err := s.ListInventory(ctx, domain.ListQuery{Search: search})
		if err != nil {
			t.Fatalf("list inventory %q: %v", search, err)
		}
		if total != want {
			t.Fatalf("search %q: expected %d matches, got %d", search, want, total)
		}
	}
}

func TestUnknownProductIDIsNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"not-a-uuid", xid.New()} {
		err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			_, err := tx.GetProductForUpdate(ctx, id)
			return err
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("id %q: expected not found, got %v", id, err)
		}
	}
}
