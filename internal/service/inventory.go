package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/expiry"
	"unitysales/backend/internal/store"
)

var defaultTaxRate = decimal.NewFromInt(21)

func (s *Service) ListInventory(ctx context.Context, query domain.ListQuery) (domain.ProductListResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ProductListResponse{}, err
	}
	products, total, err := s.repo.ListInventory(ctx, query)
	if err != nil {
		return domain.ProductListResponse{}, err
	}
	page := domain.NewPagination(query.Page, query.PageSize, total)
	if products == nil {
		products = []domain.Product{}
	}
	return domain.ProductListResponse{
		Products:    products,
		TotalCount:  total,
		CurrentPage: page.Page,
		TotalPages:  page.TotalPages,
	}, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if err := s.checkStruct(req); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		SKU:        req.SKU,
		Name:       req.Name,
		CategoryID: req.CategoryID,
		Type:       req.Type,
		BasePrice:  req.BasePrice,
		TaxRate:    defaultTaxRate,
		CostPrice:  req.CostPrice,
		Stock:      req.Stock,
		MinStock:   req.MinStock,
	}
	if product.Type == "" {
		product.Type = domain.ProductTypePhysical
	}
	if req.TaxRate != nil {
		product.TaxRate = *req.TaxRate
	}
	if err := checkProductMoney(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidate(ctx)
	s.logAudit(ctx, "product.create", "product", created.ID,
		fmt.Sprintf("sku=%s,price=%s,stock=%d", created.SKU, created.BasePrice.StringFixed(2), created.Stock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.checkStruct(req); err != nil {
		return domain.Product{}, err
	}

	current, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	next := *current
	if req.SKU != nil {
		next.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
	}
	if req.CategoryID != nil {
		next.CategoryID = strings.TrimSpace(*req.CategoryID)
	}
	if req.Type != nil {
		next.Type = *req.Type
	}
	if req.BasePrice != nil {
		next.BasePrice = *req.BasePrice
	}
	if req.TaxRate != nil {
		next.TaxRate = *req.TaxRate
	}
	if req.CostPrice != nil {
		next.CostPrice = req.CostPrice
	}
	if req.Stock != nil {
		next.Stock = *req.Stock
	}
	if req.MinStock != nil {
		next.MinStock = *req.MinStock
	}
	if next.SKU == "" || next.Name == "" {
		return domain.Product{}, store.Invalid("product", "sku and name must not be blank")
	}
	if err := checkProductMoney(next); err != nil {
		return domain.Product{}, err
	}

	updated, err := s.repo.UpdateProduct(ctx, next)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidate(ctx)
	s.logAudit(ctx, "product.update", "product", updated.ID,
		fmt.Sprintf("price:%s->%s,stock:%d->%d", current.BasePrice.StringFixed(2), updated.BasePrice.StringFixed(2), current.Stock, updated.Stock))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logAudit(ctx, "product.delete", "product", id, "")
	return nil
}

func checkProductMoney(p domain.Product) error {
	switch {
	case p.BasePrice.IsNegative():
		return store.Invalid("base_price", "must not be negative")
	case p.TaxRate.IsNegative() || p.TaxRate.GreaterThan(maxTaxRate):
		return store.Invalid("tax_rate", "must be between 0 and 100")
	case p.CostPrice != nil && p.CostPrice.IsNegative():
		return store.Invalid("cost_price", "must not be negative")
	}
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	return categories, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Category{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.checkStruct(req); err != nil {
		return domain.Category{}, err
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{Name: req.Name})
	if err != nil {
		return domain.Category{}, err
	}
	s.invalidate(ctx)
	s.logAudit(ctx, "category.create", "category", created.ID, "name="+created.Name)
	return *created, nil
}

// CreateBatch registers a received lot and raises the product's aggregate
// stock by the same amount.
func (s *Service) CreateBatch(ctx context.Context, req domain.BatchCreateRequest) (domain.Batch, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Batch{}, err
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	req.BatchNumber = strings.TrimSpace(req.BatchNumber)
	req.ExpirationDate = strings.TrimSpace(req.ExpirationDate)
	if err := s.checkStruct(req); err != nil {
		return domain.Batch{}, err
	}
	if req.CostPerUnit.IsNegative() {
		return domain.Batch{}, store.Invalid("cost_per_unit", "must not be negative")
	}

	batch := domain.Batch{
		ProductID:   req.ProductID,
		BatchNumber: req.BatchNumber,
		Stock:       req.Stock,
		CostPerUnit: req.CostPerUnit,
	}
	if req.ExpirationDate != "" {
		exp, err := time.Parse(time.DateOnly, req.ExpirationDate)
		if err != nil {
			return domain.Batch{}, store.Invalid("expiration_date", "must use the YYYY-MM-DD layout")
		}
		batch.ExpirationDate = &exp
	}
	if req.ReceivedAt != nil {
		batch.ReceivedAt = req.ReceivedAt.UTC()
	}

	created, err := s.repo.CreateBatch(ctx, batch)
	if err != nil {
		return domain.Batch{}, err
	}
	s.invalidate(ctx)
	s.logAudit(ctx, "batch.create", "batch", created.ID,
		fmt.Sprintf("product=%s,number=%s,stock=%d", created.ProductID, created.BatchNumber, created.Stock))
	return *created, nil
}

func (s *Service) ListBatches(ctx context.Context, query domain.ListQuery) (domain.BatchListResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.BatchListResponse{}, err
	}
	batches, total, err := s.repo.ListBatches(ctx, query)
	if err != nil {
		return domain.BatchListResponse{}, err
	}

	page := domain.NewPagination(query.Page, query.PageSize, total)
	views := make([]domain.BatchView, 0, len(batches))
	atRisk := 0
	for _, b := range batches {
		level := s.classifier.Classify(b)
		if expiry.AtRisk(level) {
			atRisk++
		}
		views = append(views, domain.BatchView{Batch: b, Risk: level})
	}
	return domain.BatchListResponse{
		Batches:     views,
		TotalCount:  total,
		CurrentPage: page.Page,
		TotalPages:  page.TotalPages,
		AtRisk:      atRisk,
	}, nil
}

func (s *Service) DeleteBatch(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if err := s.repo.DeleteBatch(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logAudit(ctx, "batch.delete", "batch", id, "")
	return nil
}

// ScanExpiryRisk classifies every stocked batch. It backs both the admin
// endpoint and the scheduled job, so it does not require an actor.
func (s *Service) ScanExpiryRisk(ctx context.Context) (*domain.ExpiryScanResult, error) {
	batches, err := s.repo.ListStockedBatches(ctx)
	if err != nil {
		return nil, err
	}

	result := &domain.ExpiryScanResult{
		ScannedAt: s.now(),
		Counts: map[string]int{
			expiry.Expired:    0,
			expiry.NearExpiry: 0,
			expiry.Active:     0,
		},
		AtRisk: []domain.BatchView{},
	}
	for _, b := range batches {
		level := s.classifier.Classify(b)
		result.Counts[level]++
		if expiry.AtRisk(level) {
			result.AtRisk = append(result.AtRisk, domain.BatchView{Batch: b, Risk: level})
		}
	}
	s.metrics.SetBatchesAtRisk(result.Counts)
	return result, nil
}
