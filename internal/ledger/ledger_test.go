package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

func dec(v string) decimal.Decimal {
	d, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return d
}

func detail(price, discount string, qty int) domain.TransactionDetail {
	return domain.TransactionDetail{
		Quantity:        qty,
		PriceAtSale:     dec(price),
		DiscountPerItem: dec(discount),
	}
}

func TestReconcile(t *testing.T) {
	details := []domain.TransactionDetail{
		detail("100", "10", 2),
		detail("50", "0", 1),
	}
	payments := []domain.TransactionPayment{
		{ID: "pay-1", Amount: dec("80")},
		{ID: "pay-2", Amount: dec("150")},
	}

	total, paid, status := Reconcile(details, payments)
	if !total.Equal(dec("230")) {
		t.Fatalf("total = %s, want 230", total)
	}
	if !paid.Equal(dec("230")) {
		t.Fatalf("paid = %s, want 230", paid)
	}
	if status != domain.PaymentStatusPaid {
		t.Fatalf("status = %q, want paid", status)
	}
}

func TestPaymentStatus(t *testing.T) {
	cases := []struct {
		name  string
		total string
		paid  string
		want  string
	}{
		{"no payments", "230", "0", domain.PaymentStatusUnpaid},
		{"partial", "230", "80", domain.PaymentStatusPartial},
		{"exact", "230", "230", domain.PaymentStatusPaid},
		{"overpaid", "230", "300", domain.PaymentStatusPaid},
		{"zero total no payments", "0", "0", domain.PaymentStatusUnpaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PaymentStatus(dec(tc.total), dec(tc.paid)); got != tc.want {
				t.Fatalf("PaymentStatus(%s, %s) = %q, want %q", tc.total, tc.paid, got, tc.want)
			}
		})
	}
}

func TestSettlementAmount(t *testing.T) {
	if got := SettlementAmount(dec("230"), dec("80")); !got.Equal(dec("150")) {
		t.Fatalf("SettlementAmount = %s, want 150", got)
	}
	// Overpaid transactions settle with zero, never a negative write.
	if got := SettlementAmount(dec("230"), dec("300")); !got.IsZero() {
		t.Fatalf("SettlementAmount when overpaid = %s, want 0", got)
	}
}

func TestRemainingMayGoNegative(t *testing.T) {
	if got := Remaining(dec("230"), dec("300")); !got.Equal(dec("-70")) {
		t.Fatalf("Remaining = %s, want -70", got)
	}
}

func TestLabelPayments(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	payments := []domain.TransactionPayment{
		{ID: "pay-3", Amount: dec("100"), CreatedAt: base.Add(2 * time.Minute)},
		{ID: "pay-1", Amount: dec("80"), CreatedAt: base},
		{ID: "pay-2", Amount: dec("50"), CreatedAt: base.Add(time.Minute)},
	}

	labeled := LabelPayments(dec("230"), payments)
	if len(labeled) != 3 {
		t.Fatalf("len = %d, want 3", len(labeled))
	}
	wantOrder := []string{"pay-1", "pay-2", "pay-3"}
	wantSeq := []string{domain.PaymentSeqInstallment, domain.PaymentSeqInstallment, domain.PaymentSeqSettlement}
	for i, p := range labeled {
		if p.ID != wantOrder[i] {
			t.Fatalf("labeled[%d].ID = %q, want %q", i, p.ID, wantOrder[i])
		}
		if p.Sequence != wantSeq[i] {
			t.Fatalf("labeled[%d].Sequence = %q, want %q", i, p.Sequence, wantSeq[i])
		}
	}

	// Input slice stays untouched.
	if payments[0].Sequence != "" {
		t.Fatalf("input slice mutated")
	}
}

func TestLabelPaymentsTieBreaksByID(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	payments := []domain.TransactionPayment{
		{ID: "pay-b", Amount: dec("100"), CreatedAt: at},
		{ID: "pay-a", Amount: dec("100"), CreatedAt: at},
	}
	labeled := LabelPayments(dec("200"), payments)
	if labeled[0].ID != "pay-a" || labeled[1].ID != "pay-b" {
		t.Fatalf("tie order = %q, %q", labeled[0].ID, labeled[1].ID)
	}
	if labeled[0].Sequence != domain.PaymentSeqInstallment {
		t.Fatalf("first of tie = %q, want installment", labeled[0].Sequence)
	}
	if labeled[1].Sequence != domain.PaymentSeqSettlement {
		t.Fatalf("second of tie = %q, want settlement", labeled[1].Sequence)
	}
}

func TestStockFromMovements(t *testing.T) {
	movements := []domain.InventoryMovement{
		{Type: domain.MovementInitial, QuantityChange: 50},
		{Type: domain.MovementSale, QuantityChange: -3},
		{Type: domain.MovementSale, QuantityChange: -2},
		{Type: domain.MovementRestock, QuantityChange: 10},
	}
	if got := StockFromMovements(movements); got != 55 {
		t.Fatalf("StockFromMovements = %d, want 55", got)
	}
	if got := StockFromMovements(nil); got != 0 {
		t.Fatalf("StockFromMovements(nil) = %d, want 0", got)
	}
}

func TestValidateMovement(t *testing.T) {
	if err := ValidateMovement(domain.MovementSale, -1); err != nil {
		t.Fatalf("valid sale rejected: %v", err)
	}
	if err := ValidateMovement(domain.MovementAdjustment, 0); err != nil {
		t.Fatalf("zero adjustment rejected: %v", err)
	}

	err := ValidateMovement(domain.MovementSale, 5)
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("positive sale: err = %v, want validation error", err)
	}
	var verr *store.ValidationError
	if !errors.As(err, &verr) || verr.Field != "quantity_change" {
		t.Fatalf("positive sale: field = %v, want quantity_change", err)
	}
	if err := ValidateMovement(domain.MovementSale, 0); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("zero sale: err = %v, want validation error", err)
	}
	if err := ValidateMovement("transfer", -1); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("unknown type: err = %v, want validation error", err)
	}
}

func TestValidateDetail(t *testing.T) {
	ok := detail("100", "10", 2)
	if err := ValidateDetail(ok); err != nil {
		t.Fatalf("valid detail rejected: %v", err)
	}

	cases := []struct {
		name  string
		d     domain.TransactionDetail
		field string
	}{
		{"zero quantity", detail("100", "0", 0), "quantity"},
		{"negative price", detail("-1", "0", 1), "price_at_sale"},
		{"negative discount", detail("100", "-5", 1), "discount_per_item"},
		{"discount above price", detail("100", "120", 1), "discount_per_item"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDetail(tc.d)
			var verr *store.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}
