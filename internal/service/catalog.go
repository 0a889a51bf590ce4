package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/slug"
	"tokopos/backend/internal/store"
)

// --- Categories ---

func (s *Service) CreateCategory(ctx context.Context, actor domain.Actor, req domain.CategoryCreateRequest) (domain.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Category{}, store.Invalid("name", "name is required")
	}
	token := slug.Make(req.Name)
	if token == "" {
		return domain.Category{}, store.Invalid("name", "name must contain at least one letter or digit")
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:     req.Name,
		Slug:     token,
		ParentID: req.ParentID,
		ImageURL: strings.TrimSpace(req.ImageURL),
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.invalidateTree(ctx)
	s.logAudit(actor.Username, "category_create", "category", created.ID, fmt.Sprintf("name=%s slug=%s", created.Name, created.Slug))
	return *created, nil
}

func (s *Service) GetCategory(ctx context.Context, id string) (domain.Category, error) {
	category, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}
	return *category, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) UpdateCategory(ctx context.Context, actor domain.Actor, id string, req domain.CategoryUpdateRequest) (domain.Category, error) {
	existing, err := s.repo.GetCategory(ctx, id)
	if err != nil {
		return domain.Category{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Category{}, store.Invalid("name", "name is required")
		}
		// The slug follows the name only when the name actually changed;
		// renaming back and forth never silently rewrites a hand-set slug.
		if name != existing.Name {
			token := slug.Make(name)
			if token == "" {
				return domain.Category{}, store.Invalid("name", "name must contain at least one letter or digit")
			}
			updated.Slug = token
		}
		updated.Name = name
	}
	if req.Slug != nil {
		token := strings.TrimSpace(*req.Slug)
		if slug.Make(token) != token || token == "" {
			return domain.Category{}, store.Invalid("slug", "slug must be lowercase letters, digits and hyphens")
		}
		updated.Slug = token
	}
	if req.ClearParent {
		updated.ParentID = nil
	} else if req.ParentID != nil {
		updated.ParentID = req.ParentID
	}
	if req.ImageURL != nil {
		updated.ImageURL = strings.TrimSpace(*req.ImageURL)
	}

	saved, err := s.repo.UpdateCategory(ctx, updated)
	if err != nil {
		return domain.Category{}, err
	}

	s.invalidateTree(ctx)
	s.logAudit(actor.Username, "category_update", "category", saved.ID, fmt.Sprintf("name=%s slug=%s", saved.Name, saved.Slug))
	return *saved, nil
}

func (s *Service) DeleteCategory(ctx context.Context, actor domain.Actor, id string) error {
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.invalidateTree(ctx)
	s.logAudit(actor.Username, "category_delete", "category", id, "children re-parented to root")
	return nil
}

// CategoryTree returns the nested category view, cached between writes.
func (s *Service) CategoryTree(ctx context.Context) ([]domain.CategoryNode, error) {
	if cached, ok, err := s.tree.Get(ctx, categoryTreeKey); err == nil && ok {
		return cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: category tree cache read failed: %v", err)
	}

	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	tree := buildTree(categories)

	if err := s.tree.Set(ctx, categoryTreeKey, tree, s.treeTTL); err != nil {
		log.Printf("[service] WARN: category tree cache write failed: %v", err)
	}
	return tree, nil
}

func buildTree(categories []domain.Category) []domain.CategoryNode {
	children := make(map[string][]domain.Category)
	roots := make([]domain.Category, 0, len(categories))
	for _, c := range categories {
		if c.IsRoot() {
			roots = append(roots, c)
			continue
		}
		children[*c.ParentID] = append(children[*c.ParentID], c)
	}

	var build func(c domain.Category) domain.CategoryNode
	build = func(c domain.Category) domain.CategoryNode {
		node := domain.CategoryNode{Category: c}
		for _, child := range children[c.ID] {
			node.Children = append(node.Children, build(child))
		}
		return node
	}

	tree := make([]domain.CategoryNode, 0, len(roots))
	for _, root := range roots {
		tree = append(tree, build(root))
	}
	return tree
}

func (s *Service) invalidateTree(ctx context.Context) {
	if err := s.tree.Invalidate(ctx, categoryTreeKey); err != nil {
		log.Printf("[service] WARN: category tree cache invalidation failed: %v", err)
	}
}

// --- Suppliers ---

func (s *Service) CreateSupplier(ctx context.Context, actor domain.Actor, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.Invalid("name", "name is required")
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:        req.Name,
		ContactInfo: strings.TrimSpace(req.ContactInfo),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(actor.Username, "supplier_create", "supplier", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

// --- Products ---

func (s *Service) CreateProduct(ctx context.Context, actor domain.Actor, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.CategoryID = strings.TrimSpace(req.CategoryID)
	if req.Name == "" {
		return domain.Product{}, store.Invalid("name", "name is required")
	}
	if req.CategoryID == "" {
		return domain.Product{}, store.Invalid("category_id", "category_id is required")
	}
	if req.Price.IsNegative() {
		return domain.Product{}, store.Invalid("price", "must not be negative")
	}
	if req.CostPrice.IsNegative() {
		return domain.Product{}, store.Invalid("cost_price", "must not be negative")
	}
	if req.InitialStock < 0 {
		return domain.Product{}, store.Invalid("initial_stock", "must not be negative")
	}
	token := slug.Make(req.Name)
	if token == "" {
		return domain.Product{}, store.Invalid("name", "name must contain at least one letter or digit")
	}

	product := domain.Product{
		CategoryID: req.CategoryID,
		SupplierID: req.SupplierID,
		Name:       req.Name,
		Slug:       token,
		ImageURL:   strings.TrimSpace(req.ImageURL),
		Price:      req.Price,
		CostPrice:  req.CostPrice,
	}

	// A non-zero opening stock lands as the product's first ledger row, so
	// the cached stock and the movement sum agree from day one.
	var initial *domain.InventoryMovement
	if req.InitialStock > 0 {
		cost := req.CostPrice
		initial = &domain.InventoryMovement{
			ActorID:        actor.ID,
			Type:           domain.MovementInitial,
			QuantityChange: req.InitialStock,
			CostPrice:      &cost,
			Notes:          "opening balance",
		}
	}

	created, err := s.repo.CreateProduct(ctx, product, initial)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(actor.Username, "product_create", "product", created.ID, fmt.Sprintf("name=%s stock=%d", created.Name, created.Stock))
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) UpdateProduct(ctx context.Context, actor domain.Actor, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.Invalid("name", "name is required")
		}
		if name != existing.Name {
			token := slug.Make(name)
			if token == "" {
				return domain.Product{}, store.Invalid("name", "name must contain at least one letter or digit")
			}
			updated.Slug = token
		}
		updated.Name = name
	}
	if req.Slug != nil {
		token := strings.TrimSpace(*req.Slug)
		if slug.Make(token) != token || token == "" {
			return domain.Product{}, store.Invalid("slug", "slug must be lowercase letters, digits and hyphens")
		}
		updated.Slug = token
	}
	if req.CategoryID != nil {
		categoryID := strings.TrimSpace(*req.CategoryID)
		if categoryID == "" {
			return domain.Product{}, store.Invalid("category_id", "category_id is required")
		}
		updated.CategoryID = categoryID
	}
	if req.SupplierID != nil {
		updated.SupplierID = req.SupplierID
	}
	if req.ImageURL != nil {
		updated.ImageURL = strings.TrimSpace(*req.ImageURL)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.Product{}, store.Invalid("price", "must not be negative")
		}
		updated.Price = *req.Price
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.Product{}, store.Invalid("cost_price", "must not be negative")
		}
		updated.CostPrice = *req.CostPrice
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(actor.Username, "product_update", "product", saved.ID, fmt.Sprintf("name=%s slug=%s", saved.Name, saved.Slug))
	return *saved, nil
}

func (s *Service) SetProductAlert(ctx context.Context, actor domain.Actor, productID string, threshold int) error {
	if threshold < 0 {
		return store.Invalid("low_stock_threshold", "must not be negative")
	}
	if err := s.repo.SetProductAlert(ctx, domain.ProductAlert{
		ProductID:         productID,
		LowStockThreshold: threshold,
	}); err != nil {
		return err
	}
	s.logAudit(actor.Username, "product_alert_set", "product", productID, fmt.Sprintf("threshold=%d", threshold))
	return nil
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.LowStockProduct, error) {
	return s.repo.ListLowStockProducts(ctx)
}
