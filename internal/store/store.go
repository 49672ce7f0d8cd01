package store

import (
	"context"

	"unitysales/backend/internal/domain"
)

type Repository interface {
	ListProducts(ctx context.Context, search string) ([]domain.Product, error)
	ListInventory(ctx context.Context, query domain.ListQuery) ([]domain.Product, int, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)

	ListBatches(ctx context.Context, query domain.ListQuery) ([]domain.Batch, int, error)
	ListStockedBatches(ctx context.Context) ([]domain.Batch, error)
	CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)
	DeleteBatch(ctx context.Context, id string) error

	GetSale(ctx context.Context, id string) (*domain.SaleDetail, error)
	ListSalesHistoryView(ctx context.Context, query domain.SalesHistoryQuery) ([]domain.SalesHistoryRow, int, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	ListSaleItems(ctx context.Context, saleIDs []string) ([]domain.SaleItem, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	// WithTx runs fn inside one all-or-nothing unit of work. Any error
	// returned by fn discards every write made through tx.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write surface used by checkout. Implementations lock the rows
// they hand out so concurrent sales serialize per product.
type Tx interface {
	InsertSale(ctx context.Context, sale domain.Sale) error
	GetProductForUpdate(ctx context.Context, productID string) (*domain.Product, error)
	// ListAvailableBatches returns batches with stock > 0, oldest received first.
	ListAvailableBatches(ctx context.Context, productID string) ([]domain.Batch, error)
	// DeductBatch subtracts qty only if the batch still holds at least qty.
	DeductBatch(ctx context.Context, batchID string, qty int) error
	// DeductProductStock subtracts qty only if the product still holds at least qty.
	DeductProductStock(ctx context.Context, productID string, qty int) error
	InsertSaleItem(ctx context.Context, item domain.SaleItem) error
}
