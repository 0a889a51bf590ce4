package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrValidation is the class matched by field-level ValidationError
	// values via errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrImmutableMovement rejects edits or deletes of non-adjustment
	// inventory movements.
	ErrImmutableMovement = errors.New("only adjustment movements can be modified")
)

// ValidationError names the offending field so callers can surface it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a field-level validation error.
func Invalid(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Repository is the persistence contract. Every method that mutates a child
// of an aggregate (transaction detail/payment, inventory movement) also
// refreshes the parent's cached aggregates inside the same storage
// transaction, so a crash can never leave a stale cache behind.
type Repository interface {
	// Categories. DeleteCategory re-parents direct children to root in the
	// same transaction as the delete and rejects a category that still has
	// products; UpdateCategory rejects a parent that is the category itself
	// or one of its descendants.
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	// Products. The optional initial movement is recorded atomically with
	// the product row and seeds the stock cache.
	CreateProduct(ctx context.Context, product domain.Product, initial *domain.InventoryMovement) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SetProductAlert(ctx context.Context, alert domain.ProductAlert) error
	ListLowStockProducts(ctx context.Context) ([]domain.LowStockProduct, error)

	// Inventory ledger. RecordMovement appends a row and moves the stock
	// cache by quantity_change; UpdateMovement and DeleteMovement operate on
	// adjustment rows only and re-balance the cache by the delta.
	RecordMovement(ctx context.Context, movement domain.InventoryMovement) (*domain.InventoryMovement, error)
	GetMovement(ctx context.Context, id string) (*domain.InventoryMovement, error)
	ListMovements(ctx context.Context, productID string, movementType string, limit int) ([]domain.InventoryMovement, error)
	UpdateMovement(ctx context.Context, movement domain.InventoryMovement) (*domain.InventoryMovement, error)
	DeleteMovement(ctx context.Context, id string) error
	DeleteMovements(ctx context.Context, ids []string) (domain.BulkDeleteResult, error)
	SumProductMovements(ctx context.Context, productID string) (int, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	AddCustomerPoints(ctx context.Context, entry domain.CustomerPointsEntry) (*domain.CustomerPointsEntry, error)
	ListCustomerPoints(ctx context.Context, customerID string) ([]domain.CustomerPointsEntry, error)
	SumCustomerPoints(ctx context.Context, customerID string) (int, error)

	CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error)
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)

	// Transactions. The child mutators accept zero or more inventory
	// movements to apply in the same transaction (sale deduction on add,
	// compensating adjustment on remove), then recompute the parent's
	// cached totals from the full child set.
	CreateTransaction(ctx context.Context, transaction domain.Transaction) (*domain.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	AddTransactionDetail(ctx context.Context, txID string, detail domain.TransactionDetail, movements []domain.InventoryMovement) (*domain.Transaction, error)
	UpdateTransactionDetail(ctx context.Context, txID string, detail domain.TransactionDetail, movements []domain.InventoryMovement) (*domain.Transaction, error)
	RemoveTransactionDetail(ctx context.Context, txID string, detailID string, movements []domain.InventoryMovement) (*domain.Transaction, error)
	AddTransactionPayment(ctx context.Context, txID string, payment domain.TransactionPayment) (*domain.Transaction, error)
	UpdateTransactionPayment(ctx context.Context, txID string, payment domain.TransactionPayment) (*domain.Transaction, error)
	RemoveTransactionPayment(ctx context.Context, txID string, paymentID string) (*domain.Transaction, error)
	SumTransactionDetails(ctx context.Context, txID string) (decimal.Decimal, error)
	SumTransactionPayments(ctx context.Context, txID string) (decimal.Decimal, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
