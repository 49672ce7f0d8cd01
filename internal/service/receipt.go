package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"unitysales/backend/internal/domain"
)

// BuildReceipt renders a sale as a printable ticket: plain text for the
// preview and the same lines wrapped in ESC/POS init and cut commands.
func (s *Service) BuildReceipt(ctx context.Context, saleID string) (domain.Receipt, error) {
	detail, err := s.GetSale(ctx, saleID)
	if err != nil {
		return domain.Receipt{}, err
	}
	sale := detail.Sale

	lines := []string{
		"Unity Sales",
		"========================",
		"Ticket: " + domain.ShortID(sale.ID),
		"Fecha: " + sale.CreatedAt.Format("2006-01-02 15:04:05"),
		"------------------------",
	}
	for _, item := range detail.Items {
		name := item.ProductName
		if name == "" {
			name = item.ProductID
		}
		if item.BatchNumber != "" {
			name += " [" + item.BatchNumber + "]"
		}
		lineTotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		lines = append(lines,
			fmt.Sprintf("%s x%d", name, item.Quantity),
			fmt.Sprintf("  %s", lineTotal.StringFixed(2)),
		)
	}
	lines = append(lines,
		"------------------------",
		fmt.Sprintf("Total : %s", sale.TotalAmount.StringFixed(2)),
		fmt.Sprintf("Pago  : %s", sale.PaymentMethod),
		"IVA incluido",
		"========================",
		"Gracias por su compra",
		"",
	)

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.Receipt{
		SaleID:       sale.ID,
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("receipt-%s.bin", sale.ID),
	}, nil
}
