package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/ledger"
	"tokopos/backend/internal/store"
)

func (s *Service) CreateTransaction(ctx context.Context, actor domain.Actor, req domain.TransactionCreateRequest) (domain.TransactionResponse, error) {
	if actor.ID == "" {
		return domain.TransactionResponse{}, store.Invalid("actor", "acting user is required")
	}

	date := time.Now().UTC()
	if req.TransactionDate != nil {
		date = req.TransactionDate.UTC()
	}

	created, err := s.repo.CreateTransaction(ctx, domain.Transaction{
		CustomerID:      req.CustomerID,
		CashierID:       actor.ID,
		TransactionDate: date,
	})
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	s.logAudit(actor.Username, "transaction_create", "transaction", created.ID, "")
	return decorate(created), nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (domain.TransactionResponse, error) {
	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	return decorate(tx), nil
}

func (s *Service) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, limit)
}

func (s *Service) DeleteTransaction(ctx context.Context, actor domain.Actor, id string) error {
	if err := s.repo.DeleteTransaction(ctx, id); err != nil {
		return err
	}
	s.logAudit(actor.Username, "transaction_delete", "transaction", id, "")
	return nil
}

// AddDetail adds a line item. The sale price is snapshotted from the
// product at this moment, and the stock deduction lands in the inventory
// ledger inside the same store transaction as the line and the recompute.
func (s *Service) AddDetail(ctx context.Context, actor domain.Actor, txID string, req domain.DetailAddRequest) (domain.TransactionResponse, error) {
	if actor.ID == "" {
		return domain.TransactionResponse{}, store.Invalid("actor", "acting user is required")
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return domain.TransactionResponse{}, store.Invalid("product_id", "product_id is required")
	}

	product, err := s.repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	detail := domain.TransactionDetail{
		ProductID:       product.ID,
		Quantity:        req.Quantity,
		PriceAtSale:     product.Price,
		DiscountPerItem: req.DiscountPerItem,
		TaxRate:         req.TaxRate,
	}
	if err := ledger.ValidateDetail(detail); err != nil {
		return domain.TransactionResponse{}, err
	}

	movements := []domain.InventoryMovement{{
		ProductID:      product.ID,
		ActorID:        actor.ID,
		Type:           domain.MovementSale,
		QuantityChange: -req.Quantity,
		Notes:          "sale " + txID,
	}}

	tx, err := s.repo.AddTransactionDetail(ctx, txID, detail, movements)
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	s.logAudit(actor.Username, "detail_add", "transaction", txID,
		fmt.Sprintf("product=%s qty=%d", product.ID, req.Quantity))
	return decorate(tx), nil
}

// UpdateDetail changes a line's quantity or discount. The price snapshot
// never moves. A quantity change is mirrored in the stock ledger: more
// units sold means a further sale deduction, fewer means a compensating
// adjustment back in.
func (s *Service) UpdateDetail(ctx context.Context, actor domain.Actor, txID string, detailID string, req domain.DetailUpdateRequest) (domain.TransactionResponse, error) {
	if actor.ID == "" {
		return domain.TransactionResponse{}, store.Invalid("actor", "acting user is required")
	}

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	existing, ok := findDetail(tx.Details, detailID)
	if !ok {
		return domain.TransactionResponse{}, store.ErrNotFound
	}

	updated := existing
	if req.Quantity != nil {
		updated.Quantity = *req.Quantity
	}
	if req.DiscountPerItem != nil {
		updated.DiscountPerItem = *req.DiscountPerItem
	}
	if err := ledger.ValidateDetail(updated); err != nil {
		return domain.TransactionResponse{}, err
	}

	var movements []domain.InventoryMovement
	if diff := updated.Quantity - existing.Quantity; diff > 0 {
		movements = append(movements, domain.InventoryMovement{
			ProductID:      existing.ProductID,
			ActorID:        actor.ID,
			Type:           domain.MovementSale,
			QuantityChange: -diff,
			Notes:          "sale " + txID,
		})
	} else if diff < 0 {
		movements = append(movements, domain.InventoryMovement{
			ProductID:      existing.ProductID,
			ActorID:        actor.ID,
			Type:           domain.MovementAdjustment,
			QuantityChange: -diff,
			Notes:          "line quantity reduced on " + txID,
		})
	}

	result, err := s.repo.UpdateTransactionDetail(ctx, txID, updated, movements)
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	s.logAudit(actor.Username, "detail_update", "transaction", txID,
		fmt.Sprintf("detail=%s qty=%d", detailID, updated.Quantity))
	return decorate(result), nil
}

// RemoveDetail drops a line item and returns its units to stock through a
// compensating adjustment, keeping the original sale row intact.
func (s *Service) RemoveDetail(ctx context.Context, actor domain.Actor, txID string, detailID string) (domain.TransactionResponse, error) {
	if actor.ID == "" {
		return domain.TransactionResponse{}, store.Invalid("actor", "acting user is required")
	}

	tx, err := s.repo.GetTransaction(ctx, txID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	existing, ok := findDetail(tx.Details, detailID)
	if !ok {
		return domain.TransactionResponse{}, store.ErrNotFound
	}

	movements := []domain.InventoryMovement{{
		ProductID:      existing.ProductID,
		ActorID:        actor.ID,
		Type:           domain.MovementAdjustment,
		QuantityChange: existing.Quantity,
		Notes:          "line removed from " + txID,
	}}

	result, err := s.repo.RemoveTransactionDetail(ctx, txID, detailID, movements)
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	s.logAudit(actor.Username, "detail_remove", "transaction", txID, "detail="+detailID)
	return decorate(result), nil
}

func (s *Service) AddPayment(ctx context.Context, actor domain.Actor, txID string, req domain.PaymentAddRequest) (domain.TransactionResponse, error) {
	if actor.ID == "" {
		return domain.TransactionResponse{}, store.Invalid("actor", "acting user is required")
	}
	req.PaymentMethodID = strings.TrimSpace(req.PaymentMethodID)
	if req.PaymentMethodID == "" {
		return domain.TransactionResponse{}, store.Invalid("payment_method_id", "payment_method_id is required")
	}
	if !req.Amount.IsPositive() {
		return domain.TransactionResponse{}, store.Invalid("amount", "must be positive")
	}

	method, err := s.repo.GetPaymentMethod(ctx, req.PaymentMethodID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	if !method.Active {
		return domain.TransactionResponse{}, store.Invalid("payment_method_id", "payment method %s is inactive", method.Name)
	}

	tx, err := s.repo.AddTransactionPayment(ctx, txID, domain.TransactionPayment{
		PaymentMethodID: method.ID,
		Amount:          req.Amount,
	})
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	s.logAudit(actor.Username, "payment_add", "transaction", txID,
		fmt.Sprintf("method=%s amount=%s", method.ID, req.Amount))
	return decorate(tx), nil
}

func (s *Service) UpdatePayment(ctx context.Context, actor domain.Actor, txID string, paymentID string, req domain.PaymentUpdateRequest) (domain.TransactionResponse, error) {
	if actor.ID == "" {
		return domain.TransactionResponse{}, store.Invalid("actor", "acting user is required")
	}
	if req.Amount == nil {
		return domain.TransactionResponse{}, store.Invalid("amount", "amount is required")
	}
	if !req.Amount.IsPositive() {
		return domain.TransactionResponse{}, store.Invalid("amount", "must be positive")
	}

	tx, err := s.repo.UpdateTransactionPayment(ctx, txID, domain.TransactionPayment{
		ID:     paymentID,
		Amount: *req.Amount,
	})
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	s.logAudit(actor.Username, "payment_update", "transaction", txID,
		fmt.Sprintf("payment=%s amount=%s", paymentID, req.Amount))
	return decorate(tx), nil
}

func (s *Service) RemovePayment(ctx context.Context, actor domain.Actor, txID string, paymentID string) (domain.TransactionResponse, error) {
	if actor.ID == "" {
		return domain.TransactionResponse{}, store.Invalid("actor", "acting user is required")
	}

	tx, err := s.repo.RemoveTransactionPayment(ctx, txID, paymentID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	s.logAudit(actor.Username, "payment_remove", "transaction", txID, "payment="+paymentID)
	return decorate(tx), nil
}

// SettleRemaining writes one payment for exactly what is still owed, read
// from fresh sums rather than the cached totals.
func (s *Service) SettleRemaining(ctx context.Context, actor domain.Actor, txID string, paymentMethodID string) (domain.TransactionResponse, error) {
	if actor.ID == "" {
		return domain.TransactionResponse{}, store.Invalid("actor", "acting user is required")
	}

	total, err := s.repo.SumTransactionDetails(ctx, txID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}
	paid, err := s.repo.SumTransactionPayments(ctx, txID)
	if err != nil {
		return domain.TransactionResponse{}, err
	}

	amount := ledger.SettlementAmount(total, paid)
	if amount.IsZero() {
		return domain.TransactionResponse{}, store.Invalid("amount", "nothing remaining to settle")
	}

	return s.AddPayment(ctx, actor, txID, domain.PaymentAddRequest{
		PaymentMethodID: paymentMethodID,
		Amount:          amount,
	})
}

// decorate labels the payments and attaches the remaining balance.
func decorate(tx *domain.Transaction) domain.TransactionResponse {
	out := *tx
	out.Payments = ledger.LabelPayments(out.TotalAmount, out.Payments)
	return domain.TransactionResponse{
		Transaction: out,
		Remaining:   ledger.Remaining(out.TotalAmount, out.PaidAmount),
	}
}

func findDetail(details []domain.TransactionDetail, id string) (domain.TransactionDetail, bool) {
	for _, d := range details {
		if d.ID == id {
			return d, true
		}
	}
	return domain.TransactionDetail{}, false
}
