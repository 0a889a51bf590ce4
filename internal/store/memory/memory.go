// Package memory holds the in-memory repository used for dev mode and
// service tests. Every write takes the single store lock, which makes each
// repository call atomic the same way a database transaction would.
package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/ledger"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	categories       map[string]domain.Category
	suppliers        map[string]domain.Supplier
	products         map[string]domain.Product
	alerts           map[string]domain.ProductAlert
	movements        map[string]domain.InventoryMovement
	customers        map[string]domain.Customer
	pointsByCustomer map[string][]domain.CustomerPointsEntry
	paymentMethods   map[string]domain.PaymentMethod
	transactionsByID map[string]*domain.Transaction
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; if
// unset, hardcoded dev defaults are used with a warning. These credentials
// are never used in production (the backend uses PostgreSQL when
// DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		id       string
		username string
		password string
		role     string
	}{
		{"usr-admin", "admin", adminPwd, "admin"},
		{"usr-cashier", "cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:        u.id,
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

func NewSeeded() *Store {
	now := time.Now().UTC()

	categories := []domain.Category{
		{ID: "cat-grocery", Name: "Sembako", Slug: "sembako", CreatedAt: now, UpdatedAt: now},
		{ID: "cat-beverage", Name: "Minuman", Slug: "minuman", CreatedAt: now, UpdatedAt: now},
		{ID: "cat-snack", Name: "Camilan", Slug: "camilan", CreatedAt: now, UpdatedAt: now},
	}

	type seedProduct struct {
		id       string
		category string
		name     string
		slug     string
		price    string
		cost     string
		stock    int
	}
	seedProducts := []seedProduct{
		{"prd-mie", "cat-grocery", "Mie Goreng Instan", "mie-goreng-instan", "3500", "2700", 120},
		{"prd-gula", "cat-grocery", "Gula 1kg", "gula-1kg", "17400", "15300", 80},
		{"prd-kopi", "cat-beverage", "Kopi Sachet", "kopi-sachet", "2600", "1700", 200},
		{"prd-teh", "cat-beverage", "Teh Celup", "teh-celup", "9800", "7200", 60},
		{"prd-keripik", "cat-snack", "Keripik Singkong", "keripik-singkong", "12800", "8000", 45},
	}

	categoryMap := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		categoryMap[c.ID] = c
	}

	products := make(map[string]domain.Product, len(seedProducts))
	movements := make(map[string]domain.InventoryMovement, len(seedProducts))
	for _, p := range seedProducts {
		products[p.id] = domain.Product{
			ID:         p.id,
			CategoryID: p.category,
			Name:       p.name,
			Slug:       p.slug,
			Price:      decimal.RequireFromString(p.price),
			CostPrice:  decimal.RequireFromString(p.cost),
			Stock:      p.stock,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		// Stock must always equal the movement sum, so every seeded
		// product gets a matching initial movement.
		m := domain.InventoryMovement{
			ID:             xid.New("mov"),
			ProductID:      p.id,
			ActorID:        "usr-admin",
			Type:           domain.MovementInitial,
			QuantityChange: p.stock,
			Notes:          "opening balance",
			CreatedAt:      now,
		}
		movements[m.ID] = m
	}

	paymentMethods := map[string]domain.PaymentMethod{
		"pm-cash": {ID: "pm-cash", Name: "Tunai", Active: true, CreatedAt: now},
		"pm-qris": {ID: "pm-qris", Name: "QRIS", Active: true, CreatedAt: now},
	}

	return &Store{
		categories:       categoryMap,
		suppliers:        make(map[string]domain.Supplier),
		products:         products,
		alerts:           make(map[string]domain.ProductAlert),
		movements:        movements,
		customers:        make(map[string]domain.Customer),
		pointsByCustomer: make(map[string][]domain.CustomerPointsEntry),
		paymentMethods:   paymentMethods,
		transactionsByID: make(map[string]*domain.Transaction),
		usersByUsername:  seedUsers(),
	}
}

// --- Categories ---

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.ParentID != nil {
		if _, ok := s.categories[*category.ParentID]; !ok {
			return nil, store.Invalid("parent_id", "category %s does not exist", *category.ParentID)
		}
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyCategory := category
	return &copyCategory, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return strings.Compare(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[category.ID]; !ok {
		return nil, store.ErrNotFound
	}
	if category.ParentID != nil {
		if err := s.checkParentLocked(category.ID, *category.ParentID); err != nil {
			return nil, err
		}
	}
	s.categories[category.ID] = category
	updated := category
	return &updated, nil
}

// checkParentLocked rejects a parent that does not exist, is the category
// itself, or is one of its descendants. Caller holds the write lock.
func (s *Store) checkParentLocked(categoryID, parentID string) error {
	if _, ok := s.categories[parentID]; !ok {
		return store.Invalid("parent_id", "category %s does not exist", parentID)
	}
	if parentID == categoryID {
		return store.Invalid("parent_id", "category cannot be its own parent")
	}
	// Walk up from the proposed parent; hitting categoryID means the
	// parent is a descendant and the move would close a cycle.
	seen := map[string]bool{}
	current := parentID
	for {
		node, ok := s.categories[current]
		if !ok || node.ParentID == nil {
			return nil
		}
		next := *node.ParentID
		if next == categoryID {
			return store.Invalid("parent_id", "category cannot be moved under its own descendant")
		}
		if seen[next] {
			return nil
		}
		seen[next] = true
		current = next
	}
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return store.Invalid("id", "category still has products")
		}
	}
	for childID, child := range s.categories {
		if child.ParentID != nil && *child.ParentID == id {
			child.ParentID = nil
			child.UpdatedAt = time.Now().UTC()
			s.categories[childID] = child
		}
	}
	delete(s.categories, id)
	return nil
}

// --- Suppliers ---

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	s.suppliers[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, ok := s.suppliers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		suppliers = append(suppliers, sup)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return strings.Compare(a.Name, b.Name)
	})
	return suppliers, nil
}

// --- Products ---

func (s *Store) CreateProduct(_ context.Context, product domain.Product, initial *domain.InventoryMovement) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[product.CategoryID]; !ok {
		return nil, store.Invalid("category_id", "category %s does not exist", product.CategoryID)
	}
	if product.SupplierID != nil {
		if _, ok := s.suppliers[*product.SupplierID]; !ok {
			return nil, store.Invalid("supplier_id", "supplier %s does not exist", *product.SupplierID)
		}
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	product.Stock = 0
	if initial != nil {
		m := *initial
		if m.ID == "" {
			m.ID = xid.New("mov")
		}
		m.ProductID = product.ID
		s.movements[m.ID] = m
		product.Stock = m.QuantityChange
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.categories[product.CategoryID]; !ok {
		return nil, store.Invalid("category_id", "category %s does not exist", product.CategoryID)
	}
	if product.SupplierID != nil {
		if _, ok := s.suppliers[*product.SupplierID]; !ok {
			return nil, store.Invalid("supplier_id", "supplier %s does not exist", *product.SupplierID)
		}
	}

	// Stock is ledger-owned, never set through a product update.
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) SetProductAlert(_ context.Context, alert domain.ProductAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[alert.ProductID]; !ok {
		return store.ErrNotFound
	}
	s.alerts[alert.ProductID] = alert
	return nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.LowStockProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.LowStockProduct, 0)
	for productID, alert := range s.alerts {
		product, ok := s.products[productID]
		if !ok {
			continue
		}
		if product.Stock <= alert.LowStockThreshold {
			low = append(low, domain.LowStockProduct{Product: product, Threshold: alert.LowStockThreshold})
		}
	}
	slices.SortFunc(low, func(a, b domain.LowStockProduct) int {
		return strings.Compare(a.Product.Name, b.Product.Name)
	})
	return low, nil
}

// --- Inventory ledger ---

func (s *Store) RecordMovement(_ context.Context, movement domain.InventoryMovement) (*domain.InventoryMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordMovementLocked(movement)
}

func (s *Store) recordMovementLocked(movement domain.InventoryMovement) (*domain.InventoryMovement, error) {
	product, ok := s.products[movement.ProductID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if movement.ID == "" {
		movement.ID = xid.New("mov")
	}
	if movement.CreatedAt.IsZero() {
		movement.CreatedAt = time.Now().UTC()
	}
	s.movements[movement.ID] = movement

	product.Stock += movement.QuantityChange
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	created := movement
	return &created, nil
}

func (s *Store) GetMovement(_ context.Context, id string) (*domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	movement, ok := s.movements[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyMovement := movement
	return &copyMovement, nil
}

func (s *Store) ListMovements(_ context.Context, productID string, movementType string, limit int) ([]domain.InventoryMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryMovement, 0)
	for _, m := range s.movements {
		if productID != "" && m.ProductID != productID {
			continue
		}
		if movementType != "" && m.Type != movementType {
			continue
		}
		result = append(result, m)
	}
	slices.SortFunc(result, func(a, b domain.InventoryMovement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateMovement(_ context.Context, movement domain.InventoryMovement) (*domain.InventoryMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.movements[movement.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if existing.Type != domain.MovementAdjustment {
		return nil, store.ErrImmutableMovement
	}

	movement.ProductID = existing.ProductID
	movement.Type = existing.Type
	movement.ActorID = existing.ActorID
	movement.CreatedAt = existing.CreatedAt
	s.movements[movement.ID] = movement

	// Re-balance the stock cache by the delta between old and new change.
	if product, ok := s.products[existing.ProductID]; ok {
		product.Stock += movement.QuantityChange - existing.QuantityChange
		product.UpdatedAt = time.Now().UTC()
		s.products[product.ID] = product
	}
	updated := movement
	return &updated, nil
}

func (s *Store) DeleteMovement(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteMovementLocked(id)
}

func (s *Store) deleteMovementLocked(id string) error {
	existing, ok := s.movements[id]
	if !ok {
		return store.ErrNotFound
	}
	if existing.Type != domain.MovementAdjustment {
		return store.ErrImmutableMovement
	}
	delete(s.movements, id)

	if product, ok := s.products[existing.ProductID]; ok {
		product.Stock -= existing.QuantityChange
		product.UpdatedAt = time.Now().UTC()
		s.products[product.ID] = product
	}
	return nil
}

func (s *Store) DeleteMovements(_ context.Context, ids []string) (domain.BulkDeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result domain.BulkDeleteResult
	for _, id := range ids {
		if err := s.deleteMovementLocked(id); err != nil {
			result.Skipped++
			continue
		}
		result.Deleted++
	}
	return result, nil
}

func (s *Store) SumProductMovements(_ context.Context, productID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.products[productID]; !ok {
		return 0, store.ErrNotFound
	}
	sum := 0
	for _, m := range s.movements {
		if m.ProductID == productID {
			sum += m.QuantityChange
		}
	}
	return sum, nil
}

// --- Customers and points ---

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) AddCustomerPoints(_ context.Context, entry domain.CustomerPointsEntry) (*domain.CustomerPointsEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[entry.CustomerID]; !ok {
		return nil, store.ErrNotFound
	}
	if entry.ID == "" {
		entry.ID = xid.New("pts")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.pointsByCustomer[entry.CustomerID] = append(s.pointsByCustomer[entry.CustomerID], entry)
	created := entry
	return &created, nil
}

func (s *Store) ListCustomerPoints(_ context.Context, customerID string) ([]domain.CustomerPointsEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.customers[customerID]; !ok {
		return nil, store.ErrNotFound
	}
	history := s.pointsByCustomer[customerID]
	result := make([]domain.CustomerPointsEntry, len(history))
	copy(result, history)
	slices.SortFunc(result, func(a, b domain.CustomerPointsEntry) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) SumCustomerPoints(_ context.Context, customerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.customers[customerID]; !ok {
		return 0, store.ErrNotFound
	}
	sum := 0
	for _, e := range s.pointsByCustomer[customerID] {
		sum += e.PointsChange
	}
	return sum, nil
}

// --- Payment methods ---

func (s *Store) CreatePaymentMethod(_ context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if method.ID == "" {
		method.ID = xid.New("pm")
	}
	s.paymentMethods[method.ID] = method
	created := method
	return &created, nil
}

func (s *Store) GetPaymentMethod(_ context.Context, id string) (*domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	method, ok := s.paymentMethods[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copyMethod := method
	return &copyMethod, nil
}

func (s *Store) ListPaymentMethods(_ context.Context) ([]domain.PaymentMethod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	methods := make([]domain.PaymentMethod, 0, len(s.paymentMethods))
	for _, m := range s.paymentMethods {
		methods = append(methods, m)
	}
	slices.SortFunc(methods, func(a, b domain.PaymentMethod) int {
		return strings.Compare(a.Name, b.Name)
	})
	return methods, nil
}

// --- Transactions ---

func (s *Store) CreateTransaction(_ context.Context, transaction domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transaction.CustomerID != nil {
		if _, ok := s.customers[*transaction.CustomerID]; !ok {
			return nil, store.Invalid("customer_id", "customer %s does not exist", *transaction.CustomerID)
		}
	}
	if transaction.ID == "" {
		transaction.ID = xid.New("trx")
	}
	transaction.TotalAmount = decimal.Zero
	transaction.PaidAmount = decimal.Zero
	transaction.PaymentStatus = domain.PaymentStatusUnpaid
	transaction.Details = nil
	transaction.Payments = nil

	stored := transaction
	s.transactionsByID[stored.ID] = &stored
	return cloneTransaction(&stored), nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneTransaction(tx), nil
}

func (s *Store) ListTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		result = append(result, *cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.TransactionDate.Equal(b.TransactionDate) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.TransactionDate.After(b.TransactionDate) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactionsByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.transactionsByID, id)
	return nil
}

func (s *Store) AddTransactionDetail(_ context.Context, txID string, detail domain.TransactionDetail, movements []domain.InventoryMovement) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[txID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.products[detail.ProductID]; !ok {
		return nil, store.Invalid("product_id", "product %s does not exist", detail.ProductID)
	}
	if detail.ID == "" {
		detail.ID = xid.New("dtl")
	}
	if detail.CreatedAt.IsZero() {
		detail.CreatedAt = time.Now().UTC()
	}
	detail.TransactionID = txID

	if err := s.applyMovementsLocked(movements); err != nil {
		return nil, err
	}
	tx.Details = append(tx.Details, detail)
	s.recomputeLocked(tx)
	return cloneTransaction(tx), nil
}

func (s *Store) UpdateTransactionDetail(_ context.Context, txID string, detail domain.TransactionDetail, movements []domain.InventoryMovement) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[txID]
	if !ok {
		return nil, store.ErrNotFound
	}
	idx := slices.IndexFunc(tx.Details, func(d domain.TransactionDetail) bool { return d.ID == detail.ID })
	if idx < 0 {
		return nil, store.ErrNotFound
	}

	existing := tx.Details[idx]
	detail.TransactionID = txID
	detail.ProductID = existing.ProductID
	detail.CreatedAt = existing.CreatedAt

	if err := s.applyMovementsLocked(movements); err != nil {
		return nil, err
	}
	tx.Details[idx] = detail
	s.recomputeLocked(tx)
	return cloneTransaction(tx), nil
}

func (s *Store) RemoveTransactionDetail(_ context.Context, txID string, detailID string, movements []domain.InventoryMovement) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[txID]
	if !ok {
		return nil, store.ErrNotFound
	}
	idx := slices.IndexFunc(tx.Details, func(d domain.TransactionDetail) bool { return d.ID == detailID })
	if idx < 0 {
		return nil, store.ErrNotFound
	}

	if err := s.applyMovementsLocked(movements); err != nil {
		return nil, err
	}
	tx.Details = slices.Delete(tx.Details, idx, idx+1)
	s.recomputeLocked(tx)
	return cloneTransaction(tx), nil
}

func (s *Store) AddTransactionPayment(_ context.Context, txID string, payment domain.TransactionPayment) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[txID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.paymentMethods[payment.PaymentMethodID]; !ok {
		return nil, store.Invalid("payment_method_id", "payment method %s does not exist", payment.PaymentMethodID)
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}
	payment.TransactionID = txID

	tx.Payments = append(tx.Payments, payment)
	s.recomputeLocked(tx)
	return cloneTransaction(tx), nil
}

func (s *Store) UpdateTransactionPayment(_ context.Context, txID string, payment domain.TransactionPayment) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[txID]
	if !ok {
		return nil, store.ErrNotFound
	}
	idx := slices.IndexFunc(tx.Payments, func(p domain.TransactionPayment) bool { return p.ID == payment.ID })
	if idx < 0 {
		return nil, store.ErrNotFound
	}

	existing := tx.Payments[idx]
	payment.TransactionID = txID
	payment.PaymentMethodID = existing.PaymentMethodID
	payment.CreatedAt = existing.CreatedAt
	tx.Payments[idx] = payment
	s.recomputeLocked(tx)
	return cloneTransaction(tx), nil
}

func (s *Store) RemoveTransactionPayment(_ context.Context, txID string, paymentID string) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactionsByID[txID]
	if !ok {
		return nil, store.ErrNotFound
	}
	idx := slices.IndexFunc(tx.Payments, func(p domain.TransactionPayment) bool { return p.ID == paymentID })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	tx.Payments = slices.Delete(tx.Payments, idx, idx+1)
	s.recomputeLocked(tx)
	return cloneTransaction(tx), nil
}

func (s *Store) SumTransactionDetails(_ context.Context, txID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[txID]
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	return ledger.TotalAmount(tx.Details), nil
}

func (s *Store) SumTransactionPayments(_ context.Context, txID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByID[txID]
	if !ok {
		return decimal.Zero, store.ErrNotFound
	}
	return ledger.PaidAmount(tx.Payments), nil
}

// applyMovementsLocked records the movements handed in alongside a detail
// mutation. The caller already holds the write lock, so the movement rows
// and the parent recompute land together.
func (s *Store) applyMovementsLocked(movements []domain.InventoryMovement) error {
	for _, m := range movements {
		if _, err := s.recordMovementLocked(m); err != nil {
			return err
		}
	}
	return nil
}

// recomputeLocked refreshes the cached totals from the full child set.
func (s *Store) recomputeLocked(tx *domain.Transaction) {
	tx.TotalAmount, tx.PaidAmount, tx.PaymentStatus = ledger.Reconcile(tx.Details, tx.Payments)
}

func cloneTransaction(tx *domain.Transaction) *domain.Transaction {
	clone := *tx
	clone.Details = make([]domain.TransactionDetail, len(tx.Details))
	copy(clone.Details, tx.Details)
	clone.Payments = make([]domain.TransactionPayment, len(tx.Payments))
	copy(clone.Payments, tx.Payments)
	return &clone
}

// --- Users ---

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.Invalid("username", "username and password are required")
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.Invalid("username", "username %s is taken", username)
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, u := range s.usersByUsername {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
