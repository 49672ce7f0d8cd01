package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/store"
	"unitysales/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `
	p.id::text, p.sku, p.name, COALESCE(p.category_id::text, ''), COALESCE(c.name, ''), p.type,
	p.base_price, p.tax_rate, p.cost_price, p.stock, p.min_stock, p.created_at, p.updated_at`

const productFrom = `
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id`

// likeEscaper makes a search term match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

const productSearch = `($1 = '' OR p.name ILIKE ('%' || $1 || '%') ESCAPE '\' OR p.sku ILIKE ('%' || $1 || '%') ESCAPE '\')`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.Product, error) {
	var p domain.Product
	var cost decimal.NullDecimal
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.CategoryID, &p.CategoryName, &p.Type,
		&p.BasePrice, &p.TaxRate, &cost, &p.Stock, &p.MinStock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return domain.Product{}, err
	}
	if cost.Valid {
		p.CostPrice = &cost.Decimal
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, search string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+productFrom+`
		WHERE `+productSearch+`
		ORDER BY p.name, p.id
	`, escapeLike(strings.TrimSpace(search)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) ListInventory(ctx context.Context, query domain.ListQuery) ([]domain.Product, int, error) {
	search := escapeLike(strings.TrimSpace(query.Search))

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) `+productFrom+` WHERE `+productSearch, search).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := domain.NewPagination(query.Page, query.PageSize, total)
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+productFrom+`
		WHERE `+productSearch+`
		ORDER BY p.created_at DESC, p.id
		LIMIT $2 OFFSET $3
	`, search, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, page.PageSize)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if !isUUID(id) {
		return nil, store.ErrNotFound
	}
	p, err := scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+productFrom+` WHERE p.id = $1::uuid`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, category_id, type, base_price, tax_rate, cost_price, stock, min_stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`, product.ID, product.SKU, product.Name, nullIfEmpty(product.CategoryID), product.Type,
		product.BasePrice, product.TaxRate, nullDecimal(product.CostPrice), product.Stock, product.MinStock)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if !isUUID(product.ID) {
		return nil, store.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET sku = $2, name = $3, category_id = $4, type = $5, base_price = $6, tax_rate = $7,
		    cost_price = $8, stock = $9, min_stock = $10, updated_at = now()
		WHERE id = $1::uuid
	`, product.ID, product.SKU, product.Name, nullIfEmpty(product.CategoryID), product.Type,
		product.BasePrice, product.TaxRate, nullDecimal(product.CostPrice), product.Stock, product.MinStock)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	if !isUUID(id) {
		return store.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1::uuid`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.Invalid("product", "has recorded sales and cannot be deleted")
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id::text, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" {
		category.ID = xid.New()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO categories (id, name, created_at) VALUES ($1, $2, $3)`,
		category.ID, category.Name, category.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return &category, nil
}

const batchColumns = `b.id::text, b.product_id::text, COALESCE(p.name, ''), b.batch_number, b.stock, b.cost_per_unit, b.expiration_date, b.received_at`

func scanBatch(row scanner) (domain.Batch, error) {
	var b domain.Batch
	var expiry sql.NullTime
	if err := row.Scan(&b.ID, &b.ProductID, &b.ProductName, &b.BatchNumber, &b.Stock, &b.CostPerUnit, &expiry, &b.ReceivedAt); err != nil {
		return domain.Batch{}, err
	}
	if expiry.Valid {
		e := dateUTC(expiry.Time)
		b.ExpirationDate = &e
	}
	return b, nil
}

func (s *Store) ListBatches(ctx context.Context, query domain.ListQuery) ([]domain.Batch, int, error) {
	search := escapeLike(strings.TrimSpace(query.Search))
	const filter = `($1 = '' OR b.batch_number ILIKE ('%' || $1 || '%') ESCAPE '\' OR p.name ILIKE ('%' || $1 || '%') ESCAPE '\')`

	var total int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM batches b LEFT JOIN products p ON p.id = b.product_id WHERE `+filter, search).Scan(&total); err != nil {
		return nil, 0, err
	}

	page := domain.NewPagination(query.Page, query.PageSize, total)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		LEFT JOIN products p ON p.id = b.product_id
		WHERE `+filter+`
		ORDER BY b.received_at DESC, b.id
		LIMIT $2 OFFSET $3
	`, search, page.PageSize, page.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, page.PageSize)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}
	return batches, total, rows.Err()
}

func (s *Store) ListStockedBatches(ctx context.Context) ([]domain.Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+batchColumns+`
		FROM batches b
		LEFT JOIN products p ON p.id = b.product_id
		WHERE b.stock > 0
		ORDER BY b.received_at ASC, b.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, 64)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	if batch.Stock < 1 {
		return nil, store.Invalid("stock", "must be at least 1")
	}
	if !isUUID(batch.ProductID) {
		return nil, store.ErrNotFound
	}
	if batch.ID == "" {
		batch.ID = xid.New()
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productName string
	err = tx.QueryRowContext(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1::uuid
		RETURNING name
	`, batch.ProductID, batch.Stock).Scan(&productName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, product_id, batch_number, stock, cost_per_unit, expiration_date, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, batch.ID, batch.ProductID, batch.BatchNumber, batch.Stock, batch.CostPerUnit, nullDate(batch.ExpirationDate), batch.ReceivedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	batch.ProductName = productName
	return &batch, nil
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	if !isUUID(id) {
		return store.ErrNotFound
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var productID string
	var remaining int
	err = tx.QueryRowContext(ctx, `
		DELETE FROM batches WHERE id = $1::uuid
		RETURNING product_id::text, stock
	`, id).Scan(&productID, &remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.Invalid("batch", "has recorded sales and cannot be deleted")
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = GREATEST(stock - $2, 0), updated_at = now()
		WHERE id = $1::uuid
	`, productID, remaining); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.SaleDetail, error) {
	if !isUUID(id) {
		return nil, store.ErrNotFound
	}
	var sale domain.Sale
	var tbai sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id::text, created_at, total_amount, payment_method, is_finalized, tbai_code
		FROM sales WHERE id = $1::uuid
	`, id).Scan(&sale.ID, &sale.CreatedAt, &sale.TotalAmount, &sale.PaymentMethod, &sale.IsFinalized, &tbai)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if tbai.Valid {
		sale.TbaiCode = &tbai.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT si.id::text, si.sale_id::text, si.product_id::text, si.batch_id::text, si.quantity, si.unit_price,
		       COALESCE(p.name, ''), COALESCE(p.sku, ''), COALESCE(b.batch_number, '')
		FROM sale_items si
		LEFT JOIN products p ON p.id = si.product_id
		LEFT JOIN batches b ON b.id = si.batch_id
		WHERE si.sale_id = $1::uuid
		ORDER BY si.id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItemDetail, 0, 8)
	for rows.Next() {
		var item domain.SaleItemDetail
		var batchID sql.NullString
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &batchID, &item.Quantity, &item.UnitPrice,
			&item.ProductName, &item.SKU, &item.BatchNumber); err != nil {
			return nil, err
		}
		if batchID.Valid {
			item.BatchID = &batchID.String
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &domain.SaleDetail{Sale: sale, Items: items}, nil
}

func (s *Store) ListSalesHistoryView(ctx context.Context, query domain.SalesHistoryQuery) ([]domain.SalesHistoryRow, int, error) {
	search := escapeLike(strings.TrimSpace(query.Search))
	const filter = `($1 = '' OR id::text ILIKE ('%' || $1 || '%') ESCAPE '\' OR items_summary ILIKE ('%' || $1 || '%') ESCAPE '\' OR payment_method ILIKE ('%' || $1 || '%') ESCAPE '\')`

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales_history_view WHERE `+filter, search).Scan(&total); err != nil {
		if isUndefinedTable(err) {
			return nil, 0, store.ErrViewUnavailable
		}
		return nil, 0, err
	}

	page := domain.NewPagination(query.Page, query.PageSize, total)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, created_at, payment_method, total_amount, items_summary, item_count
		FROM sales_history_view
		WHERE `+filter+`
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, search, page.PageSize, page.Offset())
	if err != nil {
		if isUndefinedTable(err) {
			return nil, 0, store.ErrViewUnavailable
		}
		return nil, 0, err
	}
	defer rows.Close()

	result := make([]domain.SalesHistoryRow, 0, page.PageSize)
	for rows.Next() {
		var row domain.SalesHistoryRow
		if err := rows.Scan(&row.ID, &row.CreatedAt, &row.PaymentMethod, &row.TotalAmount, &row.ItemsSummary, &row.ItemCount); err != nil {
			return nil, 0, err
		}
		row.ShortID = domain.ShortID(row.ID)
		result = append(result, row)
	}
	return result, total, rows.Err()
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, created_at, total_amount, payment_method, is_finalized, tbai_code
		FROM sales
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var tbai sql.NullString
		if err := rows.Scan(&sale.ID, &sale.CreatedAt, &sale.TotalAmount, &sale.PaymentMethod, &sale.IsFinalized, &tbai); err != nil {
			return nil, err
		}
		if tbai.Valid {
			sale.TbaiCode = &tbai.String
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) ListSaleItems(ctx context.Context, saleIDs []string) ([]domain.SaleItem, error) {
	if len(saleIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, sale_id::text, product_id::text, batch_id::text, quantity, unit_price
		FROM sale_items
		WHERE sale_id = ANY($1::uuid[])
		ORDER BY id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleItem, 0, len(saleIDs)*2)
	for rows.Next() {
		var item domain.SaleItem
		var batchID sql.NullString
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &batchID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		if batchID.Valid {
			item.BatchID = &batchID.String
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action,
			&entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	return mapWriteError(err)
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, password, role, active, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapWriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return store.ErrConflict
	case isForeignKeyViolation(err):
		return store.Invalid("reference", "points to a missing row")
	case isCheckViolation(err):
		return store.Invalid("value", "violates a constraint")
	}
	return err
}

// isUUID reports whether id can be compared against a uuid key. Anything
// else cannot name a row.
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func isCheckViolation(err error) bool {
	return pgCode(err) == "23514"
}

func isSerializationFailure(err error) bool {
	switch pgCode(err) {
	case "40001", "40P01":
		return true
	}
	return false
}

func isUndefinedTable(err error) bool {
	return pgCode(err) == "42P01"
}

func dateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return dateUTC(*val)
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}
