package memory

import (
	"cmp"
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/store"
	"unitysales/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	categories      map[string]domain.Category
	batches         map[string]domain.Batch
	sales           map[string]domain.Sale
	saleItems       []domain.SaleItem
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	historyView     bool
}

// New returns an empty store without any users.
func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		categories:      make(map[string]domain.Category),
		batches:         make(map[string]domain.Batch),
		sales:           make(map[string]domain.Sale),
		saleItems:       make([]domain.SaleItem, 0, 64),
		auditLogs:       make([]domain.AuditLog, 0, 64),
		usersByUsername: make(map[string]domain.UserAccount),
		historyView:     true,
	}
}

// seedUsers builds the initial accounts for dev/demo mode. Passwords come
// from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD with dev defaults.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		slog.Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override",
			slog.String("component", "memory-store"))
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic("memory-store: hash seed password: " + err.Error())
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a demo shop with a few categories, products and batches.
// Product stock always equals its batch stock plus unbatched units.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	now := time.Now().UTC()
	for _, name := range []string{"Lácteos", "Panadería", "Bebidas", "Servicios"} {
		c := domain.Category{ID: xid.New(), Name: name, CreatedAt: now}
		s.categories[c.ID] = c
	}
	categoryID := func(name string) string {
		for id, c := range s.categories {
			if c.Name == name {
				return id
			}
		}
		return ""
	}

	type seedBatch struct {
		number   string
		stock    int
		cost     string
		daysAgo  int
		expiryIn int
	}
	type seedProduct struct {
		sku       string
		name      string
		category  string
		kind      string
		price     string
		tax       int64
		unbatched int
		batches   []seedBatch
	}
	seeds := []seedProduct{
		{sku: "LAC-001", name: "Leche Entera 1L", category: "Lácteos", price: "1.21", tax: 10, batches: []seedBatch{
			{number: "LE-2401", stock: 12, cost: "0.62", daysAgo: 20, expiryIn: 6},
			{number: "LE-2402", stock: 24, cost: "0.60", daysAgo: 4, expiryIn: 40},
		}},
		{sku: "LAC-002", name: "Yogur Natural x4", category: "Lácteos", price: "2.20", tax: 10, batches: []seedBatch{
			{number: "YN-118", stock: 10, cost: "1.05", daysAgo: 9, expiryIn: 18},
		}},
		{sku: "PAN-001", name: "Barra de Pan", category: "Panadería", price: "0.95", tax: 4, unbatched: 40},
		{sku: "PAN-002", name: "Croissant", category: "Panadería", price: "1.45", tax: 10, unbatched: 8, batches: []seedBatch{
			{number: "CR-77", stock: 6, cost: "0.50", daysAgo: 1, expiryIn: 2},
		}},
		{sku: "BEB-001", name: "Agua Mineral 1.5L", category: "Bebidas", price: "0.85", tax: 10, unbatched: 60},
		{sku: "BEB-002", name: "Zumo de Naranja 1L", category: "Bebidas", price: "2.42", tax: 21, batches: []seedBatch{
			{number: "ZN-901", stock: 15, cost: "1.10", daysAgo: 30, expiryIn: 90},
			{number: "ZN-902", stock: 15, cost: "1.15", daysAgo: 3, expiryIn: 120},
		}},
		{sku: "SRV-001", name: "Envoltorio Regalo", category: "Servicios", kind: domain.ProductTypeService, price: "1.21", tax: 21},
	}

	for i, seed := range seeds {
		kind := seed.kind
		if kind == "" {
			kind = domain.ProductTypePhysical
		}
		p := domain.Product{
			ID:         xid.New(),
			SKU:        seed.sku,
			Name:       seed.name,
			CategoryID: categoryID(seed.category),
			Type:       kind,
			BasePrice:  decimal.RequireFromString(seed.price),
			TaxRate:    decimal.NewFromInt(seed.tax),
			Stock:      seed.unbatched,
			MinStock:   5,
			CreatedAt:  now.Add(time.Duration(i) * time.Second),
			UpdatedAt:  now,
		}
		for _, sb := range seed.batches {
			exp := now.AddDate(0, 0, sb.expiryIn)
			b := domain.Batch{
				ID:             xid.New(),
				ProductID:      p.ID,
				BatchNumber:    sb.number,
				Stock:          sb.stock,
				CostPerUnit:    decimal.RequireFromString(sb.cost),
				ExpirationDate: &exp,
				ReceivedAt:     now.AddDate(0, 0, -sb.daysAgo),
			}
			s.batches[b.ID] = b
			p.Stock += sb.stock
		}
		s.products[p.ID] = p
	}
	return s
}

// DisableHistoryView makes ListSalesHistoryView report the view as missing,
// the way a database without the denormalized view does.
func (s *Store) DisableHistoryView() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyView = false
}

func (s *Store) ListProducts(_ context.Context, search string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(search))
	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(strings.ToLower(p.SKU), needle) {
			continue
		}
		result = append(result, s.withCategory(p))
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return result, nil
}

func (s *Store) ListInventory(_ context.Context, query domain.ListQuery) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query.Search))
	matched := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(strings.ToLower(p.SKU), needle) {
			continue
		}
		matched = append(matched, s.withCategory(p))
	}
	slices.SortFunc(matched, func(a, b domain.Product) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	page := domain.NewPagination(query.Page, query.PageSize, len(matched))
	start, end := page.Window(len(matched))
	return matched[start:end], len(matched), nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := s.withCategory(p)
	return &out, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkProductLocked(product); err != nil {
		return nil, err
	}
	if product.ID == "" {
		product.ID = xid.New()
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product

	out := s.withCategory(product)
	return &out, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if err := s.checkProductLocked(product); err != nil {
		return nil, err
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	out := s.withCategory(product)
	return &out, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, item := range s.saleItems {
		if item.ProductID == id {
			return store.Invalid("product", "has recorded sales and cannot be deleted")
		}
	}
	for batchID, b := range s.batches {
		if b.ProductID == id {
			delete(s.batches, batchID)
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Category) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.categories {
		if strings.EqualFold(c.Name, category.Name) {
			return nil, store.ErrConflict
		}
	}
	if category.ID == "" {
		category.ID = xid.New()
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) ListBatches(_ context.Context, query domain.ListQuery) ([]domain.Batch, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(query.Search))
	matched := make([]domain.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		b.ProductName = s.products[b.ProductID].Name
		if needle != "" && !strings.Contains(strings.ToLower(b.BatchNumber), needle) && !strings.Contains(strings.ToLower(b.ProductName), needle) {
			continue
		}
		matched = append(matched, b)
	}
	slices.SortFunc(matched, func(a, b domain.Batch) int {
		return cmp.Or(b.ReceivedAt.Compare(a.ReceivedAt), cmp.Compare(a.ID, b.ID))
	})

	page := domain.NewPagination(query.Page, query.PageSize, len(matched))
	start, end := page.Window(len(matched))
	return matched[start:end], len(matched), nil
}

func (s *Store) ListStockedBatches(_ context.Context) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Batch, 0, len(s.batches))
	for _, b := range s.batches {
		if b.Stock <= 0 {
			continue
		}
		b.ProductName = s.products[b.ProductID].Name
		result = append(result, b)
	}
	slices.SortFunc(result, compareFIFO)
	return result, nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[batch.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if batch.Stock < 1 {
		return nil, store.Invalid("stock", "must be at least 1")
	}
	if batch.ID == "" {
		batch.ID = xid.New()
	}
	if batch.ReceivedAt.IsZero() {
		batch.ReceivedAt = time.Now().UTC()
	}

	s.batches[batch.ID] = batch
	product.Stock += batch.Stock
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	batch.ProductName = product.Name
	return &batch, nil
}

func (s *Store) DeleteBatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return store.ErrNotFound
	}
	for _, item := range s.saleItems {
		if item.BatchID != nil && *item.BatchID == id {
			return store.Invalid("batch", "has recorded sales and cannot be deleted")
		}
	}
	if product, ok := s.products[b.ProductID]; ok {
		product.Stock = max(product.Stock-b.Stock, 0)
		product.UpdatedAt = time.Now().UTC()
		s.products[product.ID] = product
	}
	delete(s.batches, id)
	return nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.SaleDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &domain.SaleDetail{Sale: sale, Items: s.itemDetailsLocked(id)}, nil
}

func (s *Store) ListSalesHistoryView(_ context.Context, query domain.SalesHistoryQuery) ([]domain.SalesHistoryRow, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.historyView {
		return nil, 0, store.ErrViewUnavailable
	}

	sales := s.sortedSalesLocked()
	rows := make([]domain.SalesHistoryRow, 0, len(sales))
	for _, sale := range sales {
		row := domain.NewSalesHistoryRow(sale, s.itemDetailsLocked(sale.ID))
		if row.Matches(query.Search) {
			rows = append(rows, row)
		}
	}

	page := domain.NewPagination(query.Page, query.PageSize, len(rows))
	start, end := page.Window(len(rows))
	return rows[start:end], len(rows), nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedSalesLocked(), nil
}

func (s *Store) ListSaleItems(_ context.Context, saleIDs []string) ([]domain.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]struct{}, len(saleIDs))
	for _, id := range saleIDs {
		wanted[id] = struct{}{}
	}
	result := make([]domain.SaleItem, 0, len(saleIDs)*2)
	for _, item := range s.saleItems {
		if _, ok := wanted[item.SaleID]; ok {
			result = append(result, item)
		}
	}
	return result, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	result := make([]domain.AuditLog, 0, min(limit, len(s.auditLogs)))
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.auditLogs[i])
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrConflict
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		result = append(result, u)
	}
	slices.SortFunc(result, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return result, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.usersByUsername[username] = u
	return nil
}

func (s *Store) checkProductLocked(product domain.Product) error {
	for id, p := range s.products {
		if id != product.ID && strings.EqualFold(p.SKU, product.SKU) {
			return store.ErrConflict
		}
	}
	if product.CategoryID != "" {
		if _, ok := s.categories[product.CategoryID]; !ok {
			return store.Invalid("category_id", "does not exist")
		}
	}
	return nil
}

func (s *Store) withCategory(p domain.Product) domain.Product {
	if c, ok := s.categories[p.CategoryID]; ok {
		p.CategoryName = c.Name
	}
	return p
}

func (s *Store) sortedSalesLocked() []domain.Sale {
	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	return sales
}

func (s *Store) itemDetailsLocked(saleID string) []domain.SaleItemDetail {
	details := make([]domain.SaleItemDetail, 0, 4)
	for _, item := range s.saleItems {
		if item.SaleID != saleID {
			continue
		}
		detail := domain.SaleItemDetail{SaleItem: item}
		if p, ok := s.products[item.ProductID]; ok {
			detail.ProductName = p.Name
			detail.SKU = p.SKU
		}
		if item.BatchID != nil {
			detail.BatchNumber = s.batches[*item.BatchID].BatchNumber
		}
		details = append(details, detail)
	}
	return details
}

func compareFIFO(a, b domain.Batch) int {
	return cmp.Or(a.ReceivedAt.Compare(b.ReceivedAt), cmp.Compare(a.ID, b.ID))
}
