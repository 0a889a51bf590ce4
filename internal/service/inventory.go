package service

import (
	"context"
	"fmt"
	"strings"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/ledger"
	"tokopos/backend/internal/store"
)

// RecordMovement appends one row to a product's stock ledger. The acting
// user is stamped on the row.
func (s *Service) RecordMovement(ctx context.Context, actor domain.Actor, req domain.MovementCreateRequest) (domain.InventoryMovement, error) {
	if actor.ID == "" {
		return domain.InventoryMovement{}, store.Invalid("actor", "acting user is required")
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.InventoryMovement{}, store.Invalid("product_id", "product_id is required")
	}
	req.Type = strings.ToLower(strings.TrimSpace(req.Type))
	if err := ledger.ValidateMovement(req.Type, req.QuantityChange); err != nil {
		return domain.InventoryMovement{}, err
	}
	if req.CostPrice != nil && req.CostPrice.IsNegative() {
		return domain.InventoryMovement{}, store.Invalid("cost_price", "must not be negative")
	}

	created, err := s.repo.RecordMovement(ctx, domain.InventoryMovement{
		ProductID:      req.ProductID,
		ActorID:        actor.ID,
		Type:           req.Type,
		QuantityChange: req.QuantityChange,
		CostPrice:      req.CostPrice,
		Notes:          strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.InventoryMovement{}, err
	}

	s.logAudit(actor.Username, "movement_record", "movement", created.ID,
		fmt.Sprintf("product=%s type=%s change=%d", created.ProductID, created.Type, created.QuantityChange))
	return *created, nil
}

func (s *Service) GetMovement(ctx context.Context, id string) (domain.InventoryMovement, error) {
	movement, err := s.repo.GetMovement(ctx, id)
	if err != nil {
		return domain.InventoryMovement{}, err
	}
	return *movement, nil
}

func (s *Service) ListMovements(ctx context.Context, productID string, movementType string, limit int) ([]domain.InventoryMovement, error) {
	movementType = strings.ToLower(strings.TrimSpace(movementType))
	if movementType != "" && !ledger.ValidMovementType(movementType) {
		return nil, store.Invalid("type", "unknown movement type %q", movementType)
	}
	return s.repo.ListMovements(ctx, strings.TrimSpace(productID), movementType, limit)
}

// UpdateMovement edits an adjustment row. The repository rejects every
// other movement type.
func (s *Service) UpdateMovement(ctx context.Context, actor domain.Actor, id string, req domain.MovementUpdateRequest) (domain.InventoryMovement, error) {
	existing, err := s.repo.GetMovement(ctx, id)
	if err != nil {
		return domain.InventoryMovement{}, err
	}

	updated := *existing
	if req.QuantityChange != nil {
		updated.QuantityChange = *req.QuantityChange
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.InventoryMovement{}, store.Invalid("cost_price", "must not be negative")
		}
		updated.CostPrice = req.CostPrice
	}
	if req.Notes != nil {
		updated.Notes = strings.TrimSpace(*req.Notes)
	}

	saved, err := s.repo.UpdateMovement(ctx, updated)
	if err != nil {
		return domain.InventoryMovement{}, err
	}

	s.logAudit(actor.Username, "movement_update", "movement", saved.ID,
		fmt.Sprintf("product=%s change=%d", saved.ProductID, saved.QuantityChange))
	return *saved, nil
}

func (s *Service) DeleteMovement(ctx context.Context, actor domain.Actor, id string) error {
	if err := s.repo.DeleteMovement(ctx, id); err != nil {
		return err
	}
	s.logAudit(actor.Username, "movement_delete", "movement", id, "")
	return nil
}

// DeleteMovements removes the adjustment subset of ids and reports what was
// skipped. Ineligible rows never fail the batch.
func (s *Service) DeleteMovements(ctx context.Context, actor domain.Actor, ids []string) (domain.BulkDeleteResult, error) {
	if len(ids) == 0 {
		return domain.BulkDeleteResult{}, store.Invalid("ids", "at least one id is required")
	}
	result, err := s.repo.DeleteMovements(ctx, ids)
	if err != nil {
		return domain.BulkDeleteResult{}, err
	}
	s.logAudit(actor.Username, "movement_bulk_delete", "movement", "",
		fmt.Sprintf("deleted=%d skipped=%d", result.Deleted, result.Skipped))
	return result, nil
}

// AuditProductStock compares the cached stock against the ledger sum. The
// two must agree; a mismatch means a write bypassed the ledger.
func (s *Service) AuditProductStock(ctx context.Context, productID string) (cached int, fromLedger int, err error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return 0, 0, err
	}
	sum, err := s.repo.SumProductMovements(ctx, productID)
	if err != nil {
		return 0, 0, err
	}
	return product.Stock, sum, nil
}
