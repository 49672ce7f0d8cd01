package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"unitysales/backend/internal/allocation"
	"unitysales/backend/internal/cart"
	"unitysales/backend/internal/domain"
	"unitysales/backend/internal/metrics"
	"unitysales/backend/internal/store"
	"unitysales/backend/internal/xid"
)

var (
	totalTolerance = decimal.RequireFromString("0.01")
	maxTaxRate     = decimal.NewFromInt(100)
)

// Checkout validates the request, records the sale and reports a tagged
// result. The error is returned alongside so callers can map it to a status;
// the result always carries a human readable message on failure.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResult, error) {
	changeDue, err := s.validateCheckout(req)
	if err != nil {
		s.metrics.CheckoutOutcome(outcomeOf(err))
		return domain.CheckoutResult{Success: false, Error: publicMessage(err)}, err
	}

	sale, err := s.ProcessSale(ctx, req.CartLines, req.TotalGross, req.PaymentMethod)
	if err != nil {
		return domain.CheckoutResult{Success: false, Error: publicMessage(err)}, err
	}

	return domain.CheckoutResult{
		Success:       true,
		TransactionID: sale.ID,
		Data:          sale,
		ChangeDue:     changeDue,
	}, nil
}

func (s *Service) validateCheckout(req domain.CheckoutRequest) (*decimal.Decimal, error) {
	if len(req.CartLines) == 0 {
		return nil, store.Invalid("cart_lines", "must not be empty")
	}
	if req.TotalGross.Round(2).Sign() <= 0 {
		return nil, store.Invalid("total_gross", "must be greater than 0")
	}
	if err := s.checkStruct(req); err != nil {
		return nil, err
	}
	if err := validateCartLines(req.CartLines); err != nil {
		return nil, err
	}

	if req.CashTendered == nil || req.PaymentMethod != domain.PaymentCash {
		return nil, nil
	}
	total := req.TotalGross.Round(2)
	if req.CashTendered.LessThan(total) {
		return nil, store.Invalid("cash_tendered", "must cover the total")
	}
	change := req.CashTendered.Sub(total)
	return &change, nil
}

func validateCartLines(lines []domain.CartLine) error {
	for i, line := range lines {
		field := fmt.Sprintf("cart_lines[%d]", i)
		switch {
		case line.ID == "":
			return store.Invalid(field+".id", "is required")
		case line.Quantity < 1:
			return store.Invalid(field+".quantity", "must be at least 1")
		case line.BasePrice.IsNegative():
			return store.Invalid(field+".base_price", "must not be negative")
		case line.TaxRate.IsNegative() || line.TaxRate.GreaterThan(maxTaxRate):
			return store.Invalid(field+".tax_rate", "must be between 0 and 100")
		}
	}
	if i := cart.PriceConflict(lines); i >= 0 {
		return store.Invalid(fmt.Sprintf("cart_lines[%d]", i), "repeats a product with a different price or tax rate")
	}
	return nil
}

// ProcessSale writes one sale and its stock effects in a single unit of work.
// Either every line is allocated and recorded or nothing is written.
func (s *Service) ProcessSale(ctx context.Context, lines []domain.CartLine, totalGross decimal.Decimal, paymentMethod string) (*domain.Sale, error) {
	if len(lines) == 0 {
		return nil, store.Invalid("cart_lines", "must not be empty")
	}
	if totalGross.Round(2).Sign() <= 0 {
		return nil, store.Invalid("total_gross", "must be greater than 0")
	}

	merged := cart.FromLines(lines).Lines()
	if computed := cart.Totals(merged).Total; computed.Sub(totalGross).Abs().GreaterThan(totalTolerance) {
		s.logger.Warn("checkout total differs from cart lines",
			slog.String("client_total", totalGross.StringFixed(2)),
			slog.String("computed_total", computed.StringFixed(2)),
		)
	}

	sale := domain.Sale{
		ID:            xid.New(),
		CreatedAt:     s.now(),
		TotalAmount:   totalGross.Round(2),
		PaymentMethod: paymentMethod,
		IsFinalized:   true,
	}

	var batchUnits, aggregateUnits int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		batchUnits, aggregateUnits = 0, 0
		if err := tx.InsertSale(ctx, sale); err != nil {
			return store.Wrap(store.StepSaleCreation, err)
		}
		for _, line := range merged {
			fromBatches, fromAggregate, err := s.sellLine(ctx, tx, sale.ID, line)
			if err != nil {
				return err
			}
			batchUnits += fromBatches
			aggregateUnits += fromAggregate
		}
		return nil
	})
	if err != nil {
		s.metrics.CheckoutOutcome(outcomeOf(err))
		s.logger.Warn("checkout failed",
			slog.String("sale_id", sale.ID),
			slog.String("payment_method", paymentMethod),
			slog.Any("error", err),
		)
		return nil, err
	}

	s.metrics.CheckoutOutcome("success")
	s.metrics.Deducted(metrics.SourceBatch, batchUnits)
	s.metrics.Deducted(metrics.SourceAggregate, aggregateUnits)
	s.invalidate(ctx)
	s.logAudit(ctx, "sale.create", "sale", sale.ID,
		fmt.Sprintf("total=%s,method=%s,lines=%d", sale.TotalAmount.StringFixed(2), paymentMethod, len(merged)))
	s.logger.Info("sale recorded",
		slog.String("sale_id", sale.ID),
		slog.String("total", sale.TotalAmount.StringFixed(2)),
		slog.Int("lines", len(merged)),
	)
	return &sale, nil
}

// sellLine allocates one cart line and records a sale item per deduction. It
// returns the units taken from batches and from aggregate stock.
func (s *Service) sellLine(ctx context.Context, tx store.Tx, saleID string, line domain.CartLine) (int, int, error) {
	product, err := tx.GetProductForUpdate(ctx, line.ID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, 0, store.Invalid("cart_lines", fmt.Sprintf("product %s (%s) does not exist", line.Name, line.ID))
	}
	if err != nil {
		return 0, 0, store.Wrap(store.StepProductLookup, err)
	}

	var batches []domain.Batch
	if !product.IsService() {
		batches, err = tx.ListAvailableBatches(ctx, product.ID)
		if err != nil {
			return 0, 0, store.Wrap(store.StepBatchFetch, err)
		}
	}

	plan, err := allocation.Plan(*product, batches, line.Quantity)
	if err != nil {
		return 0, 0, err
	}

	for _, d := range plan {
		if d.BatchID != nil {
			if err := tx.DeductBatch(ctx, *d.BatchID, d.Quantity); err != nil {
				return 0, 0, stockFailure(store.StepBatchUpdate, *product, line.Quantity, err)
			}
		}
		if err := tx.InsertSaleItem(ctx, domain.SaleItem{
			ID:        xid.New(),
			SaleID:    saleID,
			ProductID: product.ID,
			BatchID:   d.BatchID,
			Quantity:  d.Quantity,
			UnitPrice: line.BasePrice,
		}); err != nil {
			return 0, 0, store.Wrap(store.StepSaleItemInsert, err)
		}
	}

	if product.IsService() {
		return 0, 0, nil
	}
	if err := tx.DeductProductStock(ctx, product.ID, line.Quantity); err != nil {
		return 0, 0, stockFailure(store.StepProductStockUpdate, *product, line.Quantity, err)
	}

	fromBatches := allocation.FromBatches(plan)
	return fromBatches, line.Quantity - fromBatches, nil
}

// stockFailure reports a refused conditional decrement as a stock error
// naming the product; anything else is a storage failure at step.
func stockFailure(step string, product domain.Product, requested int, err error) error {
	if errors.Is(err, store.ErrInsufficientStock) {
		return &store.InsufficientStockError{
			ProductID: product.ID,
			Product:   product.Name,
			Available: product.Stock,
			Requested: requested,
		}
	}
	return store.Wrap(step, err)
}

func outcomeOf(err error) string {
	var storageErr *store.StorageError
	switch {
	case errors.Is(err, store.ErrConcurrentUpdate):
		return "concurrent_update"
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrInvalidTransaction):
		return "validation"
	case errors.As(err, &storageErr):
		return "storage"
	}
	return "error"
}

// publicMessage is the cause shown to the terminal. Storage failures only
// name the step that broke; a lost race asks for a resubmit.
func publicMessage(err error) string {
	if errors.Is(err, store.ErrConcurrentUpdate) {
		return store.ErrConcurrentUpdate.Error()
	}
	var storageErr *store.StorageError
	if errors.As(err, &storageErr) {
		return storageErr.Step + " failed"
	}
	var stockErr *store.InsufficientStockError
	var validationErr *store.ValidationError
	if errors.As(err, &stockErr) || errors.As(err, &validationErr) {
		return err.Error()
	}
	return "checkout failed"
}
