package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/store"
)

// SalesHistory returns one page of completed sales, newest first. When the
// denormalized view is missing the rows are rebuilt from sales and items.
func (s *Service) SalesHistory(ctx context.Context, query domain.SalesHistoryQuery) (domain.SalesHistoryPage, error) {
	query.Search = strings.TrimSpace(query.Search)
	page := domain.NewPagination(query.Page, query.PageSize, 0)
	query.Page, query.PageSize = page.Page, page.PageSize

	var result domain.SalesHistoryPage
	err := s.readThrough(ctx, &result, func(ctx context.Context) (any, error) {
		return s.loadSalesHistory(ctx, query)
	}, "sales-history", strconv.Itoa(query.Page), strconv.Itoa(query.PageSize), strings.ToLower(query.Search))
	if err != nil {
		return domain.SalesHistoryPage{}, err
	}
	if result.Sales == nil {
		result.Sales = []domain.SalesHistoryRow{}
	}
	return result, nil
}

func (s *Service) loadSalesHistory(ctx context.Context, query domain.SalesHistoryQuery) (domain.SalesHistoryPage, error) {
	rows, total, err := s.repo.ListSalesHistoryView(ctx, query)
	if errors.Is(err, store.ErrViewUnavailable) {
		s.logger.Info("sales history view unavailable, rebuilding from sales")
		rows, total, err = s.rebuildSalesHistory(ctx, query)
	}
	if err != nil {
		return domain.SalesHistoryPage{}, err
	}

	page := domain.NewPagination(query.Page, query.PageSize, total)
	if rows == nil {
		rows = []domain.SalesHistoryRow{}
	}
	return domain.SalesHistoryPage{
		Sales:       rows,
		TotalCount:  total,
		CurrentPage: page.Page,
		TotalPages:  page.TotalPages,
	}, nil
}

func (s *Service) rebuildSalesHistory(ctx context.Context, query domain.SalesHistoryQuery) ([]domain.SalesHistoryRow, int, error) {
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return nil, 0, err
	}
	saleIDs := make([]string, 0, len(sales))
	for _, sale := range sales {
		saleIDs = append(saleIDs, sale.ID)
	}
	items, err := s.repo.ListSaleItems(ctx, saleIDs)
	if err != nil {
		return nil, 0, err
	}
	products, err := s.repo.ListProducts(ctx, "")
	if err != nil {
		return nil, 0, err
	}

	names := make(map[string]domain.Product, len(products))
	for _, p := range products {
		names[p.ID] = p
	}
	bySale := make(map[string][]domain.SaleItemDetail, len(sales))
	for _, item := range items {
		p := names[item.ProductID]
		bySale[item.SaleID] = append(bySale[item.SaleID], domain.SaleItemDetail{
			SaleItem:    item,
			ProductName: p.Name,
			SKU:         p.SKU,
		})
	}

	matched := make([]domain.SalesHistoryRow, 0, len(sales))
	for _, sale := range sales {
		row := domain.NewSalesHistoryRow(sale, bySale[sale.ID])
		if row.Matches(query.Search) {
			matched = append(matched, row)
		}
	}

	page := domain.NewPagination(query.Page, query.PageSize, len(matched))
	start, end := page.Window(len(matched))
	return matched[start:end], len(matched), nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.SaleDetail, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.Invalid("id", "is required")
	}
	detail, err := s.repo.GetSale(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("load sale failed", slog.String("sale_id", id), slog.Any("error", err))
		}
		return nil, err
	}
	return detail, nil
}
