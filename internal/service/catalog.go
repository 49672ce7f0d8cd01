package service

import (
	"context"
	"strings"

	"unitysales/backend/internal/cart"
	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/store"
)

// ListCatalog returns every product ordered by name with its current
// aggregate stock. search filters by name or SKU.
func (s *Service) ListCatalog(ctx context.Context, search string) ([]domain.Product, error) {
	search = strings.ToLower(strings.TrimSpace(search))

	products := []domain.Product{}
	err := s.readThrough(ctx, &products, func(ctx context.Context) (any, error) {
		return s.repo.ListProducts(ctx, search)
	}, "catalog", search)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// ApplyCart runs one cart policy step against the lines held by the terminal.
func (s *Service) ApplyCart(ctx context.Context, req domain.CartApplyRequest) (domain.CartResponse, error) {
	if err := s.checkStruct(req); err != nil {
		return domain.CartResponse{}, err
	}
	if err := validateCartLines(req.Lines); err != nil {
		return domain.CartResponse{}, err
	}

	c := cart.FromLines(req.Lines)
	productID := strings.TrimSpace(req.ProductID)
	if req.Action != "clear" && productID == "" {
		return domain.CartResponse{}, store.Invalid("product_id", "is required")
	}

	switch req.Action {
	case "add":
		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return domain.CartResponse{}, err
		}
		if product.IsService() && product.Stock < 1 {
			// Services carry no stock; let the line grow without a ceiling.
			product.Stock = c.Quantity(product.ID) + 1
		}
		c.Add(*product)
	case "decrease":
		c.Decrease(productID)
	case "remove":
		c.Remove(productID)
	case "clear":
		c.Clear()
	}

	return cartResponse(c), nil
}

func (s *Service) CartTotals(_ context.Context, req domain.CartTotalsRequest) (domain.CartResponse, error) {
	if err := validateCartLines(req.Lines); err != nil {
		return domain.CartResponse{}, err
	}
	return cartResponse(cart.FromLines(req.Lines)), nil
}

func cartResponse(c *cart.Cart) domain.CartResponse {
	lines := c.Lines()
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return domain.CartResponse{Lines: lines, Totals: c.Totals()}
}
