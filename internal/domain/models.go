package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Movement types for the inventory ledger. Sales must carry a negative
// quantity change; only adjustments may be edited or deleted after creation.
const (
	MovementInitial    = "initial"
	MovementSale       = "sale"
	MovementRestock    = "restock"
	MovementAdjustment = "adjustment"
)

// Payment status of a transaction, derived from cached totals.
const (
	PaymentStatusUnpaid  = "unpaid"
	PaymentStatusPartial = "partial"
	PaymentStatusPaid    = "paid"
)

// Sequencing label of a single payment within a transaction.
const (
	PaymentSeqInstallment = "installment"
	PaymentSeqSettlement  = "settlement"
)

// Sources for customer point ledger entries.
const (
	PointSourceTransaction = "transaction"
	PointSourcePromo       = "promo"
	PointSourceRedemption  = "redemption"
	PointSourceManual      = "manual"
)

type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	ParentID  *string   `json:"parent_id,omitempty"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Category) IsRoot() bool {
	return c.ParentID == nil
}

type CategoryCreateRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Slug        *string `json:"slug,omitempty"`
	ParentID    *string `json:"parent_id,omitempty"`
	ClearParent bool    `json:"clear_parent,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

// CategoryNode is a category with its resolved children, used by the
// cached tree view.
type CategoryNode struct {
	Category
	Children []CategoryNode `json:"children,omitempty"`
}

type Supplier struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContactInfo string    `json:"contact_info,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name        string `json:"name"`
	ContactInfo string `json:"contact_info,omitempty"`
}

type Product struct {
	ID         string          `json:"id"`
	CategoryID string          `json:"category_id"`
	SupplierID *string         `json:"supplier_id,omitempty"`
	Name       string          `json:"name"`
	Slug       string          `json:"slug"`
	ImageURL   string          `json:"image_url,omitempty"`
	Price      decimal.Decimal `json:"price"`
	CostPrice  decimal.Decimal `json:"cost_price"`
	Stock      int             `json:"stock"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	CategoryID   string          `json:"category_id"`
	SupplierID   *string         `json:"supplier_id,omitempty"`
	Name         string          `json:"name"`
	ImageURL     string          `json:"image_url,omitempty"`
	Price        decimal.Decimal `json:"price"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	InitialStock int             `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	CategoryID *string          `json:"category_id,omitempty"`
	SupplierID *string          `json:"supplier_id,omitempty"`
	Name       *string          `json:"name,omitempty"`
	Slug       *string          `json:"slug,omitempty"`
	ImageURL   *string          `json:"image_url,omitempty"`
	Price      *decimal.Decimal `json:"price,omitempty"`
	CostPrice  *decimal.Decimal `json:"cost_price,omitempty"`
}

type ProductAlert struct {
	ProductID         string `json:"product_id"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

// LowStockProduct pairs a product with the alert threshold it breached.
type LowStockProduct struct {
	Product   Product `json:"product"`
	Threshold int     `json:"threshold"`
}

// InventoryMovement is one signed stock change for a product. The product's
// cached stock is the running sum of its movements.
type InventoryMovement struct {
	ID             string           `json:"id"`
	ProductID      string           `json:"product_id"`
	ActorID        string           `json:"actor_id"`
	Type           string           `json:"type"`
	QuantityChange int              `json:"quantity_change"`
	CostPrice      *decimal.Decimal `json:"cost_price,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

type MovementCreateRequest struct {
	ProductID      string           `json:"product_id"`
	Type           string           `json:"type"`
	QuantityChange int              `json:"quantity_change"`
	CostPrice      *decimal.Decimal `json:"cost_price,omitempty"`
	Notes          string           `json:"notes,omitempty"`
}

type MovementUpdateRequest struct {
	QuantityChange *int             `json:"quantity_change,omitempty"`
	CostPrice      *decimal.Decimal `json:"cost_price,omitempty"`
	Notes          *string          `json:"notes,omitempty"`
}

// BulkDeleteResult reports a partial bulk delete: rows that were not
// eligible are skipped, never silently dropped.
type BulkDeleteResult struct {
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// CustomerPointsEntry is one signed delta in a customer's append-only
// points ledger.
type CustomerPointsEntry struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	PointsChange int       `json:"points_change"`
	Source       string    `json:"source"`
	CreatedAt    time.Time `json:"created_at"`
}

type PointsAdjustRequest struct {
	PointsChange int    `json:"points_change"`
	Source       string `json:"source"`
}

type CustomerPointsResponse struct {
	CustomerID  string                `json:"customer_id"`
	TotalPoints int                   `json:"total_points"`
	History     []CustomerPointsEntry `json:"history"`
}

type PaymentMethod struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type PaymentMethodCreateRequest struct {
	Name string `json:"name"`
}

type TransactionDetail struct {
	ID              string           `json:"id"`
	TransactionID   string           `json:"transaction_id"`
	ProductID       string           `json:"product_id"`
	Quantity        int              `json:"quantity"`
	PriceAtSale     decimal.Decimal  `json:"price_at_sale"`
	DiscountPerItem decimal.Decimal  `json:"discount_per_item"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

type TransactionPayment struct {
	ID              string          `json:"id"`
	TransactionID   string          `json:"transaction_id"`
	PaymentMethodID string          `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
	// Sequence is derived at read time, never persisted.
	Sequence  string    `json:"sequence,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction owns its details and payments. TotalAmount and PaidAmount are
// cached aggregates, recomputed from the full child set after every child
// mutation; PaymentStatus is derived from the two.
type Transaction struct {
	ID              string               `json:"id"`
	CustomerID      *string              `json:"customer_id,omitempty"`
	CashierID       string               `json:"cashier_id"`
	TransactionDate time.Time            `json:"transaction_date"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	PaidAmount      decimal.Decimal      `json:"paid_amount"`
	PaymentStatus   string               `json:"payment_status"`
	Details         []TransactionDetail  `json:"details,omitempty"`
	Payments        []TransactionPayment `json:"payments,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

type TransactionCreateRequest struct {
	CustomerID      *string    `json:"customer_id,omitempty"`
	TransactionDate *time.Time `json:"transaction_date,omitempty"`
}

type DetailAddRequest struct {
	ProductID       string           `json:"product_id"`
	Quantity        int              `json:"quantity"`
	DiscountPerItem decimal.Decimal  `json:"discount_per_item"`
	TaxRate         *decimal.Decimal `json:"tax_rate,omitempty"`
}

type DetailUpdateRequest struct {
	Quantity        *int             `json:"quantity,omitempty"`
	DiscountPerItem *decimal.Decimal `json:"discount_per_item,omitempty"`
}

type PaymentAddRequest struct {
	PaymentMethodID string          `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
}

type PaymentUpdateRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// TransactionResponse decorates a transaction with the remaining balance at
// the instant of the read. Remaining may be negative when overpaid.
type TransactionResponse struct {
	Transaction Transaction     `json:"transaction"`
	Remaining   decimal.Decimal `json:"remaining"`
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

// Actor is the authenticated user performing an operation. Ledger-mutating
// service calls take it as an explicit parameter.
type Actor struct {
	ID       string
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID        string
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
