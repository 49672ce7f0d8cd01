package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money travels as JSON numbers to match what the terminal sends.
	decimal.MarshalJSONWithoutQuotes = true
}

const (
	ProductTypePhysical = "physical"
	ProductTypeService  = "service"
)

const (
	PaymentCash  = "cash"
	PaymentCard  = "card"
	PaymentBizum = "bizum"
	PaymentOther = "other"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Product struct {
	ID           string           `json:"id"`
	SKU          string           `json:"sku"`
	Name         string           `json:"name"`
	CategoryID   string           `json:"category_id,omitempty"`
	CategoryName string           `json:"category_name,omitempty"`
	Type         string           `json:"type"`
	BasePrice    decimal.Decimal  `json:"base_price"`
	TaxRate      decimal.Decimal  `json:"tax_rate"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	Stock        int              `json:"stock"`
	MinStock     int              `json:"min_stock"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// IsService reports whether sales of the product leave stock untouched.
func (p Product) IsService() bool {
	return p.Type == ProductTypeService
}

type Batch struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	ProductName    string          `json:"product_name,omitempty"`
	BatchNumber    string          `json:"batch_number"`
	Stock          int             `json:"stock"`
	CostPerUnit    decimal.Decimal `json:"cost_per_unit"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
}

// Deduction is one unit of work emitted by the batch allocator: a quantity
// taken from a specific batch, or from the product's aggregate stock when
// BatchID is nil.
type Deduction struct {
	BatchID  *string `json:"batch_id"`
	Quantity int     `json:"quantity"`
}

type Sale struct {
	ID            string          `json:"id"`
	CreatedAt     time.Time       `json:"created_at"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	IsFinalized   bool            `json:"is_finalized"`
	TbaiCode      *string         `json:"tbai_code"`
}

type SaleItem struct {
	ID        string          `json:"id"`
	SaleID    string          `json:"sale_id"`
	ProductID string          `json:"product_id"`
	BatchID   *string         `json:"batch_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SaleItemDetail struct {
	SaleItem
	ProductName string `json:"product_name"`
	SKU         string `json:"sku"`
	BatchNumber string `json:"batch_number,omitempty"`
}

type SaleDetail struct {
	Sale  Sale             `json:"sale"`
	Items []SaleItemDetail `json:"items"`
}

// CartLine is a product snapshot held by the terminal plus the chosen quantity.
type CartLine struct {
	ID        string          `json:"id" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	SKU       string          `json:"sku" validate:"required"`
	BasePrice decimal.Decimal `json:"base_price"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	Stock     int             `json:"stock"`
	Quantity  int             `json:"quantity" validate:"gte=1"`
}

type CartTotals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	Total      decimal.Decimal `json:"total"`
	TotalItems int             `json:"totalItems"`
	TotalUnits int             `json:"totalUnits"`
}

type CartApplyRequest struct {
	Lines     []CartLine `json:"lines"`
	Action    string     `json:"action" validate:"required,oneof=add decrease remove clear"`
	ProductID string     `json:"product_id"`
}

type CartTotalsRequest struct {
	Lines []CartLine `json:"lines"`
}

type CartResponse struct {
	Lines  []CartLine `json:"lines"`
	Totals CartTotals `json:"totals"`
}

type CheckoutRequest struct {
	CartLines     []CartLine       `json:"cart_lines" validate:"required,min=1,dive"`
	TotalGross    decimal.Decimal  `json:"total_gross"`
	PaymentMethod string           `json:"payment_method" validate:"required,oneof=cash card bizum other"`
	CashTendered  *decimal.Decimal `json:"cash_tendered,omitempty"`
}

// CheckoutResult is the tagged outcome handed back to the terminal.
type CheckoutResult struct {
	Success       bool             `json:"success"`
	TransactionID string           `json:"transactionId,omitempty"`
	Data          *Sale            `json:"data,omitempty"`
	ChangeDue     *decimal.Decimal `json:"change_due,omitempty"`
	Error         string           `json:"error,omitempty"`
}

type SalesHistoryRow struct {
	ID            string          `json:"id"`
	ShortID       string          `json:"short_id"`
	CreatedAt     time.Time       `json:"created_at"`
	ItemsSummary  string          `json:"items_summary"`
	ItemCount     int             `json:"item_count"`
	PaymentMethod string          `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
}

type SalesHistoryQuery struct {
	Page     int
	PageSize int
	Search   string
}

type SalesHistoryPage struct {
	Sales       []SalesHistoryRow `json:"sales"`
	TotalCount  int               `json:"totalCount"`
	CurrentPage int               `json:"currentPage"`
	TotalPages  int               `json:"totalPages"`
}

type ListQuery struct {
	Page     int
	PageSize int
	Search   string
}

type ProductCreateRequest struct {
	SKU        string           `json:"sku" validate:"required,max=64"`
	Name       string           `json:"name" validate:"required,max=200"`
	CategoryID string           `json:"category_id"`
	Type       string           `json:"type" validate:"omitempty,oneof=physical service"`
	BasePrice  decimal.Decimal  `json:"base_price"`
	TaxRate    *decimal.Decimal `json:"tax_rate,omitempty"`
	CostPrice  *decimal.Decimal `json:"cost_price,omitempty"`
	Stock      int              `json:"stock" validate:"gte=0"`
	MinStock   int              `json:"min_stock" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	SKU        *string          `json:"sku,omitempty" validate:"omitempty,min=1,max=64"`
	Name       *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	CategoryID *string          `json:"category_id,omitempty"`
	Type       *string          `json:"type,omitempty" validate:"omitempty,oneof=physical service"`
	BasePrice  *decimal.Decimal `json:"base_price,omitempty"`
	TaxRate    *decimal.Decimal `json:"tax_rate,omitempty"`
	CostPrice  *decimal.Decimal `json:"cost_price,omitempty"`
	Stock      *int             `json:"stock,omitempty" validate:"omitempty,gte=0"`
	MinStock   *int             `json:"min_stock,omitempty" validate:"omitempty,gte=0"`
}

type ProductListResponse struct {
	Products    []Product `json:"products"`
	TotalCount  int       `json:"totalCount"`
	CurrentPage int       `json:"currentPage"`
	TotalPages  int       `json:"totalPages"`
}

type CategoryCreateRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type BatchCreateRequest struct {
	ProductID      string          `json:"product_id" validate:"required"`
	BatchNumber    string          `json:"batch_number" validate:"required,max=64"`
	Stock          int             `json:"stock" validate:"gte=1"`
	CostPerUnit    decimal.Decimal `json:"cost_per_unit"`
	ExpirationDate string          `json:"expiration_date" validate:"omitempty,datetime=2006-01-02"`
	ReceivedAt     *time.Time      `json:"received_at,omitempty"`
}

type BatchView struct {
	Batch
	Risk string `json:"risk"`
}

type BatchListResponse struct {
	Batches     []BatchView `json:"batches"`
	TotalCount  int         `json:"totalCount"`
	CurrentPage int         `json:"currentPage"`
	TotalPages  int         `json:"totalPages"`
	AtRisk      int         `json:"at_risk"`
}

type ExpiryScanResult struct {
	ScannedAt time.Time      `json:"scanned_at"`
	Counts    map[string]int `json:"counts"`
	AtRisk    []BatchView    `json:"at_risk"`
}

type Receipt struct {
	SaleID       string `json:"sale_id"`
	PreviewText  string `json:"preview_text"`
	EscposBase64 string `json:"escpos_base64"`
	FileName     string `json:"file_name"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}
