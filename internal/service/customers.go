package service

import (
	"context"
	"fmt"
	"strings"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

func (s *Service) CreateCustomer(ctx context.Context, actor domain.Actor, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.Invalid("name", "name is required")
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:  req.Name,
		Phone: strings.TrimSpace(req.Phone),
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(actor.Username, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// AdjustPoints appends one signed entry to the customer's points ledger.
// Entries are never edited afterwards; corrections are new entries.
func (s *Service) AdjustPoints(ctx context.Context, actor domain.Actor, customerID string, req domain.PointsAdjustRequest) (domain.CustomerPointsEntry, error) {
	if actor.ID == "" {
		return domain.CustomerPointsEntry{}, store.Invalid("actor", "acting user is required")
	}
	if req.PointsChange == 0 {
		return domain.CustomerPointsEntry{}, store.Invalid("points_change", "must not be zero")
	}
	req.Source = strings.ToLower(strings.TrimSpace(req.Source))
	switch req.Source {
	case domain.PointSourceTransaction, domain.PointSourcePromo, domain.PointSourceRedemption, domain.PointSourceManual:
	default:
		return domain.CustomerPointsEntry{}, store.Invalid("source", "unknown points source %q", req.Source)
	}

	created, err := s.repo.AddCustomerPoints(ctx, domain.CustomerPointsEntry{
		CustomerID:   customerID,
		PointsChange: req.PointsChange,
		Source:       req.Source,
	})
	if err != nil {
		return domain.CustomerPointsEntry{}, err
	}

	s.logAudit(actor.Username, "points_adjust", "customer", customerID,
		fmt.Sprintf("change=%d source=%s", req.PointsChange, req.Source))
	return *created, nil
}

// CustomerPoints returns the ledger total with the full history. The total
// may be negative; the ledger does not clamp.
func (s *Service) CustomerPoints(ctx context.Context, customerID string) (domain.CustomerPointsResponse, error) {
	total, err := s.repo.SumCustomerPoints(ctx, customerID)
	if err != nil {
		return domain.CustomerPointsResponse{}, err
	}
	history, err := s.repo.ListCustomerPoints(ctx, customerID)
	if err != nil {
		return domain.CustomerPointsResponse{}, err
	}
	return domain.CustomerPointsResponse{
		CustomerID:  customerID,
		TotalPoints: total,
		History:     history,
	}, nil
}

// --- Payment methods ---

func (s *Service) CreatePaymentMethod(ctx context.Context, actor domain.Actor, req domain.PaymentMethodCreateRequest) (domain.PaymentMethod, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.PaymentMethod{}, store.Invalid("name", "name is required")
	}

	created, err := s.repo.CreatePaymentMethod(ctx, domain.PaymentMethod{
		Name:   req.Name,
		Active: true,
	})
	if err != nil {
		return domain.PaymentMethod{}, err
	}

	s.logAudit(actor.Username, "payment_method_create", "payment_method", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return s.repo.ListPaymentMethods(ctx)
}
