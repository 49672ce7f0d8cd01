package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/store"
)

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return mapTxError(err)
	}
	return mapTxError(tx.Commit())
}

// mapTxError flags serialization failures and deadlocks so callers can tell a
// lost race from a broken database.
func mapTxError(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %w", store.ErrConcurrentUpdate, err)
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	var tbai any
	if sale.TbaiCode != nil {
		tbai = *sale.TbaiCode
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (id, total_amount, payment_method, is_finalized, tbai_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sale.ID, sale.TotalAmount, sale.PaymentMethod, sale.IsFinalized, tbai, sale.CreatedAt)
	return mapWriteError(err)
}

func (t *pgTx) GetProductForUpdate(ctx context.Context, productID string) (*domain.Product, error) {
	if !isUUID(productID) {
		return nil, store.ErrNotFound
	}
	p, err := scanProduct(t.tx.QueryRowContext(ctx, `SELECT `+productColumns+productFrom+`
		WHERE p.id = $1::uuid
		FOR UPDATE OF p
	`, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *pgTx) ListAvailableBatches(ctx context.Context, productID string) ([]domain.Batch, error) {
	if !isUUID(productID) {
		return nil, store.ErrNotFound
	}
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		JOIN products p ON p.id = b.product_id
		WHERE b.product_id = $1::uuid AND b.stock > 0
		ORDER BY b.received_at ASC, b.id ASC
		FOR UPDATE OF b
	`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, 4)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (t *pgTx) DeductBatch(ctx context.Context, batchID string, qty int) error {
	if !isUUID(batchID) {
		return store.ErrNotFound
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE batches SET stock = stock - $1
		WHERE id = $2::uuid AND stock >= $1
	`, qty, batchID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (t *pgTx) DeductProductStock(ctx context.Context, productID string, qty int) error {
	if !isUUID(productID) {
		return store.ErrNotFound
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products SET stock = stock - $1, updated_at = now()
		WHERE id = $2::uuid AND stock >= $1
	`, qty, productID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (t *pgTx) InsertSaleItem(ctx context.Context, item domain.SaleItem) error {
	var batchID any
	if item.BatchID != nil {
		batchID = *item.BatchID
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sale_items (id, sale_id, product_id, batch_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.SaleID, item.ProductID, batchID, item.Quantity, item.UnitPrice)
	return mapWriteError(err)
}

// requireOneRow turns a conditional update that matched nothing into a stock
// refusal; the row lock taken earlier rules out a missing row.
func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrInsufficientStock
	}
	return nil
}
