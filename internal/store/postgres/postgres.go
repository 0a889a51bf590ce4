package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/ledger"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- Categories ---

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, slug, parent_id, image_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING created_at, updated_at
	`, category.ID, category.Name, category.Slug, category.ParentID, nullIfEmpty(category.ImageURL)).
		Scan(&category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.Invalid("parent_id", "category does not exist")
		}
		if isUniqueViolation(err) {
			return nil, store.Invalid("slug", "slug %s is taken", category.Slug)
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var c domain.Category
	var imageURL sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, parent_id, image_url, created_at, updated_at
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID, &imageURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.ImageURL = imageURL.String
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, parent_id, image_url, created_at, updated_at
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var c domain.Category
		var imageURL sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID, &imageURL, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.ImageURL = imageURL.String
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if category.ParentID != nil {
		if *category.ParentID == category.ID {
			return nil, store.Invalid("parent_id", "category cannot be its own parent")
		}
		// The proposed parent must not sit in the category's own subtree.
		var descendant bool
		err := tx.QueryRowContext(ctx, `
			WITH RECURSIVE subtree AS (
				SELECT id FROM categories WHERE parent_id = $1
				UNION ALL
				SELECT c.id FROM categories c JOIN subtree s ON c.parent_id = s.id
			)
			SELECT EXISTS (SELECT 1 FROM subtree WHERE id = $2)
		`, category.ID, *category.ParentID).Scan(&descendant)
		if err != nil {
			return nil, err
		}
		if descendant {
			return nil, store.Invalid("parent_id", "category cannot be moved under its own descendant")
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE categories
		SET name = $2, slug = $3, parent_id = $4, image_url = $5, updated_at = now()
		WHERE id = $1
	`, category.ID, category.Name, category.Slug, category.ParentID, nullIfEmpty(category.ImageURL))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.Invalid("parent_id", "category does not exist")
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	updated := category
	return &updated, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Children become roots before the parent row goes away.
	if _, err := tx.ExecContext(ctx, `
		UPDATE categories SET parent_id = NULL, updated_at = now() WHERE parent_id = $1
	`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.Invalid("id", "category still has products")
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

// --- Suppliers ---

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO suppliers (id, name, contact_info, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING created_at
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.ContactInfo)).Scan(&supplier.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var sup domain.Supplier
	var contact sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, contact_info, created_at FROM suppliers WHERE id = $1
	`, id).Scan(&sup.ID, &sup.Name, &contact, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sup.ContactInfo = contact.String
	return &sup, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact_info, created_at FROM suppliers ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		var sup domain.Supplier
		var contact sql.NullString
		if err := rows.Scan(&sup.ID, &sup.Name, &contact, &sup.CreatedAt); err != nil {
			return nil, err
		}
		sup.ContactInfo = contact.String
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

// --- Products ---

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, initial *domain.InventoryMovement) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	product.Stock = 0
	if initial != nil {
		product.Stock = initial.QuantityChange
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (id, category_id, supplier_id, name, slug, image_url, price, cost_price, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now(),now())
		RETURNING created_at, updated_at
	`, product.ID, product.CategoryID, product.SupplierID, product.Name, product.Slug,
		nullIfEmpty(product.ImageURL), product.Price, product.CostPrice, product.Stock).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.Invalid("category_id", "category or supplier does not exist")
		}
		if isUniqueViolation(err) {
			return nil, store.Invalid("slug", "slug %s is taken", product.Slug)
		}
		return nil, err
	}

	if initial != nil {
		m := *initial
		if m.ID == "" {
			m.ID = xid.New("mov")
		}
		m.ProductID = product.ID
		if _, err := insertMovement(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

const productColumns = `id, category_id, supplier_id, name, slug, image_url, price, cost_price, stock, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	var imageURL sql.NullString
	err := row.Scan(&p.ID, &p.CategoryID, &p.SupplierID, &p.Name, &p.Slug, &imageURL,
		&p.Price, &p.CostPrice, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	p.ImageURL = imageURL.String
	return p, err
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	// Stock is deliberately absent from the SET list: only the inventory
	// ledger moves it.
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET category_id = $2, supplier_id = $3, name = $4, slug = $5, image_url = $6,
		    price = $7, cost_price = $8, updated_at = now()
		WHERE id = $1
		RETURNING stock, created_at, updated_at
	`, product.ID, product.CategoryID, product.SupplierID, product.Name, product.Slug,
		nullIfEmpty(product.ImageURL), product.Price, product.CostPrice).
		Scan(&product.Stock, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isForeignKeyViolation(err) {
			return nil, store.Invalid("category_id", "category or supplier does not exist")
		}
		if isUniqueViolation(err) {
			return nil, store.Invalid("slug", "slug %s is taken", product.Slug)
		}
		return nil, err
	}
	updated := product
	return &updated, nil
}

func (s *Store) SetProductAlert(ctx context.Context, alert domain.ProductAlert) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO product_alerts (product_id, low_stock_threshold)
		VALUES ($1,$2)
		ON CONFLICT (product_id) DO UPDATE SET low_stock_threshold = EXCLUDED.low_stock_threshold
	`, alert.ProductID, alert.LowStockThreshold)
	if err != nil {
		if isForeignKeyViolation(err) {
			return store.ErrNotFound
		}
		return err
	}
	if _, err := res.RowsAffected(); err != nil {
		return err
	}
	return nil
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.LowStockProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.category_id, p.supplier_id, p.name, p.slug, p.image_url,
		       p.price, p.cost_price, p.stock, p.created_at, p.updated_at,
		       a.low_stock_threshold
		FROM products p
		JOIN product_alerts a ON a.product_id = p.id
		WHERE p.stock <= a.low_stock_threshold
		ORDER BY p.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	low := make([]domain.LowStockProduct, 0, 16)
	for rows.Next() {
		var item domain.LowStockProduct
		var imageURL sql.NullString
		if err := rows.Scan(&item.Product.ID, &item.Product.CategoryID, &item.Product.SupplierID,
			&item.Product.Name, &item.Product.Slug, &imageURL, &item.Product.Price,
			&item.Product.CostPrice, &item.Product.Stock, &item.Product.CreatedAt,
			&item.Product.UpdatedAt, &item.Threshold); err != nil {
			return nil, err
		}
		item.Product.ImageURL = imageURL.String
		low = append(low, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return low, nil
}

// --- Inventory ledger ---

// insertMovement appends a movement row and shifts the cached stock by its
// quantity change, inside the caller's transaction.
func insertMovement(ctx context.Context, tx *sql.Tx, m domain.InventoryMovement) (*domain.InventoryMovement, error) {
	if m.ID == "" {
		m.ID = xid.New("mov")
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO inventory_movements (id, product_id, actor_id, type, quantity_change, cost_price, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		RETURNING created_at
	`, m.ID, m.ProductID, m.ActorID, m.Type, m.QuantityChange, nullDecimal(m.CostPrice), nullIfEmpty(m.Notes)).
		Scan(&m.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1
	`, m.ProductID, m.QuantityChange)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return &m, nil
}

func (s *Store) RecordMovement(ctx context.Context, movement domain.InventoryMovement) (*domain.InventoryMovement, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created, err := insertMovement(ctx, tx, movement)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

const movementColumns = `id, product_id, actor_id, type, quantity_change, cost_price, notes, created_at`

func scanMovement(row interface{ Scan(...any) error }) (domain.InventoryMovement, error) {
	var m domain.InventoryMovement
	var notes sql.NullString
	var cost decimal.NullDecimal
	err := row.Scan(&m.ID, &m.ProductID, &m.ActorID, &m.Type, &m.QuantityChange, &cost, &notes, &m.CreatedAt)
	m.CostPrice = decimalPtr(cost)
	m.Notes = notes.String
	return m, err
}

func (s *Store) GetMovement(ctx context.Context, id string) (*domain.InventoryMovement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+movementColumns+` FROM inventory_movements WHERE id = $1`, id)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListMovements(ctx context.Context, productID string, movementType string, limit int) ([]domain.InventoryMovement, error) {
	query := `SELECT ` + movementColumns + ` FROM inventory_movements WHERE 1=1`
	args := make([]any, 0, 3)
	if productID != "" {
		args = append(args, productID)
		query += ` AND product_id = $1`
	}
	if movementType != "" {
		args = append(args, movementType)
		if len(args) == 1 {
			query += ` AND type = $1`
		} else {
			query += ` AND type = $2`
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		args = append(args, limit)
		switch len(args) {
		case 1:
			query += ` LIMIT $1`
		case 2:
			query += ` LIMIT $2`
		case 3:
			query += ` LIMIT $3`
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.InventoryMovement, 0, 64)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) UpdateMovement(ctx context.Context, movement domain.InventoryMovement) (*domain.InventoryMovement, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+movementColumns+` FROM inventory_movements WHERE id = $1 FOR UPDATE
	`, movement.ID)
	existing, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if existing.Type != domain.MovementAdjustment {
		return nil, store.ErrImmutableMovement
	}

	movement.ProductID = existing.ProductID
	movement.ActorID = existing.ActorID
	movement.Type = existing.Type
	movement.CreatedAt = existing.CreatedAt

	if _, err := tx.ExecContext(ctx, `
		UPDATE inventory_movements
		SET quantity_change = $2, cost_price = $3, notes = $4
		WHERE id = $1
	`, movement.ID, movement.QuantityChange, nullDecimal(movement.CostPrice), nullIfEmpty(movement.Notes)); err != nil {
		return nil, err
	}

	delta := movement.QuantityChange - existing.QuantityChange
	if delta != 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1
		`, existing.ProductID, delta); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	updated := movement
	return &updated, nil
}

// deleteMovementTx removes one adjustment row and rolls its quantity change
// back out of the stock cache.
func deleteMovementTx(ctx context.Context, tx *sql.Tx, id string) error {
	row := tx.QueryRowContext(ctx, `
		SELECT product_id, type, quantity_change FROM inventory_movements WHERE id = $1 FOR UPDATE
	`, id)
	var productID, movementType string
	var quantityChange int
	if err := row.Scan(&productID, &movementType, &quantityChange); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if movementType != domain.MovementAdjustment {
		return store.ErrImmutableMovement
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM inventory_movements WHERE id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1
	`, productID, quantityChange); err != nil {
		return err
	}
	return nil
}

func (s *Store) DeleteMovement(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteMovementTx(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteMovements(ctx context.Context, ids []string) (domain.BulkDeleteResult, error) {
	var result domain.BulkDeleteResult
	for _, id := range ids {
		// Each row gets its own transaction so one ineligible row never
		// rolls back the rest of the batch.
		err := s.DeleteMovement(ctx, id)
		switch {
		case err == nil:
			result.Deleted++
		case errors.Is(err, store.ErrImmutableMovement), errors.Is(err, store.ErrNotFound):
			result.Skipped++
		default:
			return result, err
		}
	}
	return result, nil
}

func (s *Store) SumProductMovements(ctx context.Context, productID string) (int, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
	`, productID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	var sum int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_change), 0) FROM inventory_movements WHERE product_id = $1
	`, productID).Scan(&sum)
	return sum, err
}

// --- Customers and points ---

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (id, name, phone, email, created_at)
		VALUES ($1,$2,$3,$4,now())
		RETURNING created_at
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email)).
		Scan(&customer.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	var phone, email sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, email, created_at FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &phone, &email, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.Phone = phone.String
	c.Email = email.String
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, email, created_at FROM customers ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		var phone, email sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &phone, &email, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Phone = phone.String
		c.Email = email.String
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) AddCustomerPoints(ctx context.Context, entry domain.CustomerPointsEntry) (*domain.CustomerPointsEntry, error) {
	if entry.ID == "" {
		entry.ID = xid.New("pts")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customer_points (id, customer_id, points_change, source, created_at)
		VALUES ($1,$2,$3,$4,now())
		RETURNING created_at
	`, entry.ID, entry.CustomerID, entry.PointsChange, entry.Source).Scan(&entry.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) ListCustomerPoints(ctx context.Context, customerID string) ([]domain.CustomerPointsEntry, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)
	`, customerID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, points_change, source, created_at
		FROM customer_points
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC
	`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.CustomerPointsEntry, 0, 32)
	for rows.Next() {
		var e domain.CustomerPointsEntry
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.PointsChange, &e.Source, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SumCustomerPoints(ctx context.Context, customerID string) (int, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)
	`, customerID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	var sum int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points_change), 0) FROM customer_points WHERE customer_id = $1
	`, customerID).Scan(&sum)
	return sum, err
}

// --- Payment methods ---

func (s *Store) CreatePaymentMethod(ctx context.Context, method domain.PaymentMethod) (*domain.PaymentMethod, error) {
	if method.ID == "" {
		method.ID = xid.New("pm")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO payment_methods (id, name, active, created_at)
		VALUES ($1,$2,$3,now())
		RETURNING created_at
	`, method.ID, method.Name, method.Active).Scan(&method.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.Invalid("name", "payment method %s already exists", method.Name)
		}
		return nil, err
	}
	created := method
	return &created, nil
}

func (s *Store) GetPaymentMethod(ctx context.Context, id string) (*domain.PaymentMethod, error) {
	var m domain.PaymentMethod
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, active, created_at FROM payment_methods WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Active, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active, created_at FROM payment_methods ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	methods := make([]domain.PaymentMethod, 0, 8)
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Active, &m.CreatedAt); err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return methods, nil
}

// --- Transactions ---

func (s *Store) CreateTransaction(ctx context.Context, transaction domain.Transaction) (*domain.Transaction, error) {
	if transaction.ID == "" {
		transaction.ID = xid.New("trx")
	}
	transaction.TotalAmount = decimal.Zero
	transaction.PaidAmount = decimal.Zero
	transaction.PaymentStatus = domain.PaymentStatusUnpaid

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (id, customer_id, cashier_id, transaction_date, total_amount, paid_amount, payment_status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		RETURNING created_at
	`, transaction.ID, transaction.CustomerID, transaction.CashierID, transaction.TransactionDate,
		transaction.TotalAmount, transaction.PaidAmount, transaction.PaymentStatus).
		Scan(&transaction.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.Invalid("customer_id", "customer does not exist")
		}
		return nil, err
	}
	created := transaction
	return &created, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadTransaction(ctx context.Context, q querier, id string) (*domain.Transaction, error) {
	var tx domain.Transaction
	err := q.QueryRowContext(ctx, `
		SELECT id, customer_id, cashier_id, transaction_date, total_amount, paid_amount, payment_status, created_at
		FROM transactions
		WHERE id = $1
	`, id).Scan(&tx.ID, &tx.CustomerID, &tx.CashierID, &tx.TransactionDate,
		&tx.TotalAmount, &tx.PaidAmount, &tx.PaymentStatus, &tx.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	detailRows, err := q.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, quantity, price_at_sale, discount_per_item, tax_rate, created_at
		FROM transaction_details
		WHERE transaction_id = $1
		ORDER BY created_at, id
	`, id)
	if err != nil {
		return nil, err
	}
	for detailRows.Next() {
		var d domain.TransactionDetail
		var taxRate decimal.NullDecimal
		if err := detailRows.Scan(&d.ID, &d.TransactionID, &d.ProductID, &d.Quantity,
			&d.PriceAtSale, &d.DiscountPerItem, &taxRate, &d.CreatedAt); err != nil {
			_ = detailRows.Close()
			return nil, err
		}
		d.TaxRate = decimalPtr(taxRate)
		tx.Details = append(tx.Details, d)
	}
	if err := detailRows.Err(); err != nil {
		_ = detailRows.Close()
		return nil, err
	}
	_ = detailRows.Close()

	paymentRows, err := q.QueryContext(ctx, `
		SELECT id, transaction_id, payment_method_id, amount, created_at
		FROM transaction_payments
		WHERE transaction_id = $1
		ORDER BY created_at, id
	`, id)
	if err != nil {
		return nil, err
	}
	for paymentRows.Next() {
		var p domain.TransactionPayment
		if err := paymentRows.Scan(&p.ID, &p.TransactionID, &p.PaymentMethodID, &p.Amount, &p.CreatedAt); err != nil {
			_ = paymentRows.Close()
			return nil, err
		}
		tx.Payments = append(tx.Payments, p)
	}
	if err := paymentRows.Err(); err != nil {
		_ = paymentRows.Close()
		return nil, err
	}
	_ = paymentRows.Close()

	return &tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return loadTransaction(ctx, s.db, id)
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	query := `
		SELECT id, customer_id, cashier_id, transaction_date, total_amount, paid_amount, payment_status, created_at
		FROM transactions
		ORDER BY transaction_date DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.CustomerID, &tx.CashierID, &tx.TransactionDate,
			&tx.TotalAmount, &tx.PaidAmount, &tx.PaymentStatus, &tx.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_details WHERE transaction_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transaction_payments WHERE transaction_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

// recomputeTransaction refreshes the cached totals from the child rows,
// inside the caller's transaction. The status is re-derived from the fresh
// sums, never from the previous cached values.
func recomputeTransaction(ctx context.Context, tx *sql.Tx, txID string) error {
	var total, paid decimal.Decimal
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM((price_at_sale - discount_per_item) * quantity), 0)
		FROM transaction_details
		WHERE transaction_id = $1
	`, txID).Scan(&total); err != nil {
		return err
	}
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transaction_payments
		WHERE transaction_id = $1
	`, txID).Scan(&paid); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET total_amount = $2, paid_amount = $3, payment_status = $4
		WHERE id = $1
	`, txID, total, paid, ledger.PaymentStatus(total, paid))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// lockTransaction pins the parent row so concurrent child writes serialize
// on it.
func lockTransaction(ctx context.Context, tx *sql.Tx, txID string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM transactions WHERE id = $1 FOR UPDATE`, txID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (s *Store) AddTransactionDetail(ctx context.Context, txID string, detail domain.TransactionDetail, movements []domain.InventoryMovement) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}
	if detail.ID == "" {
		detail.ID = xid.New("dtl")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transaction_details (id, transaction_id, product_id, quantity, price_at_sale, discount_per_item, tax_rate, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
	`, detail.ID, txID, detail.ProductID, detail.Quantity, detail.PriceAtSale, detail.DiscountPerItem, nullDecimal(detail.TaxRate)); err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.Invalid("product_id", "product does not exist")
		}
		return nil, err
	}
	for _, m := range movements {
		if _, err := insertMovement(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	if err := recomputeTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}

	result, err := loadTransaction(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateTransactionDetail(ctx context.Context, txID string, detail domain.TransactionDetail, movements []domain.InventoryMovement) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE transaction_details
		SET quantity = $3, price_at_sale = $4, discount_per_item = $5, tax_rate = $6
		WHERE id = $1 AND transaction_id = $2
	`, detail.ID, txID, detail.Quantity, detail.PriceAtSale, detail.DiscountPerItem, nullDecimal(detail.TaxRate))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	for _, m := range movements {
		if _, err := insertMovement(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	if err := recomputeTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}

	result, err := loadTransaction(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) RemoveTransactionDetail(ctx context.Context, txID string, detailID string, movements []domain.InventoryMovement) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM transaction_details WHERE id = $1 AND transaction_id = $2
	`, detailID, txID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	for _, m := range movements {
		if _, err := insertMovement(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	if err := recomputeTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}

	result, err := loadTransaction(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) AddTransactionPayment(ctx context.Context, txID string, payment domain.TransactionPayment) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO transaction_payments (id, transaction_id, payment_method_id, amount, created_at)
		VALUES ($1,$2,$3,$4,now())
	`, payment.ID, txID, payment.PaymentMethodID, payment.Amount); err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.Invalid("payment_method_id", "payment method does not exist")
		}
		return nil, err
	}
	if err := recomputeTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}

	result, err := loadTransaction(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateTransactionPayment(ctx context.Context, txID string, payment domain.TransactionPayment) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE transaction_payments SET amount = $3 WHERE id = $1 AND transaction_id = $2
	`, payment.ID, txID, payment.Amount)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	if err := recomputeTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}

	result, err := loadTransaction(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) RemoveTransactionPayment(ctx context.Context, txID string, paymentID string) (*domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := lockTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
		DELETE FROM transaction_payments WHERE id = $1 AND transaction_id = $2
	`, paymentID, txID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	if err := recomputeTransaction(ctx, tx, txID); err != nil {
		return nil, err
	}

	result, err := loadTransaction(ctx, tx, txID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SumTransactionDetails(ctx context.Context, txID string) (decimal.Decimal, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)
	`, txID).Scan(&exists); err != nil {
		return decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, store.ErrNotFound
	}

	var total decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM((price_at_sale - discount_per_item) * quantity), 0)
		FROM transaction_details
		WHERE transaction_id = $1
	`, txID).Scan(&total)
	return total, err
}

func (s *Store) SumTransactionPayments(ctx context.Context, txID string) (decimal.Decimal, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE id = $1)
	`, txID).Scan(&exists); err != nil {
		return decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, store.ErrNotFound
	}

	var paid decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transaction_payments
		WHERE transaction_id = $1
	`, txID).Scan(&paid)
	return paid, err
}

// --- Users ---

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return store.Invalid("username", "username and password are required")
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.ID, username, user.Password, user.Role, user.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return store.Invalid("username", "username %s is taken", username)
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password, role, active, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, strings.ToLower(strings.TrimSpace(username)), password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Helpers ---

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(nd decimal.NullDecimal) *decimal.Decimal {
	if !nd.Valid {
		return nil
	}
	d := nd.Decimal
	return &d
}
