// Package ledger holds the aggregation rules shared by both repository
// implementations: transaction totals and payment status, per-payment
// sequencing, and the stock running sum. Everything here is pure; callers
// are responsible for running it inside the right storage transaction.
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
)

// Subtotal is (price_at_sale - discount_per_item) * quantity for one line.
func Subtotal(d domain.TransactionDetail) decimal.Decimal {
	unit := d.PriceAtSale.Sub(d.DiscountPerItem)
	return unit.Mul(decimal.NewFromInt(int64(d.Quantity)))
}

// TotalAmount sums line subtotals over the full current detail set.
func TotalAmount(details []domain.TransactionDetail) decimal.Decimal {
	total := decimal.Zero
	for _, d := range details {
		total = total.Add(Subtotal(d))
	}
	return total
}

// PaidAmount sums payment amounts over the full current payment set.
func PaidAmount(payments []domain.TransactionPayment) decimal.Decimal {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}

// PaymentStatus derives the transaction status from cached totals. A
// transaction with no payments is unpaid even when its total is zero;
// overpayment still reads as paid.
func PaymentStatus(total, paid decimal.Decimal) string {
	switch {
	case paid.IsZero():
		return domain.PaymentStatusUnpaid
	case paid.GreaterThanOrEqual(total):
		return domain.PaymentStatusPaid
	default:
		return domain.PaymentStatusPartial
	}
}

// Reconcile recomputes the two cached scalars and the derived status from
// the full current child set.
func Reconcile(details []domain.TransactionDetail, payments []domain.TransactionPayment) (total, paid decimal.Decimal, status string) {
	total = TotalAmount(details)
	paid = PaidAmount(payments)
	return total, paid, PaymentStatus(total, paid)
}

// Remaining is total - paid; negative when overpaid.
func Remaining(total, paid decimal.Decimal) decimal.Decimal {
	return total.Sub(paid)
}

// SettlementAmount is the write value for a settle-remaining payment,
// clamped at zero.
func SettlementAmount(total, paid decimal.Decimal) decimal.Decimal {
	remaining := Remaining(total, paid)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// LabelPayments fills each payment's Sequence field: a payment whose
// cumulative amount (ordered by creation time, ties by id) reaches the
// transaction total is the settlement, everything before it an installment.
// Payments after the total has been reached also read as settlement.
func LabelPayments(total decimal.Decimal, payments []domain.TransactionPayment) []domain.TransactionPayment {
	ordered := make([]domain.TransactionPayment, len(payments))
	copy(ordered, payments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	running := decimal.Zero
	for i := range ordered {
		running = running.Add(ordered[i].Amount)
		if running.GreaterThanOrEqual(total) {
			ordered[i].Sequence = domain.PaymentSeqSettlement
		} else {
			ordered[i].Sequence = domain.PaymentSeqInstallment
		}
	}
	return ordered
}

// StockFromMovements is the authoritative stock value: the sum of all
// signed quantity changes. The cached product stock must always equal it.
func StockFromMovements(movements []domain.InventoryMovement) int {
	stock := 0
	for _, m := range movements {
		stock += m.QuantityChange
	}
	return stock
}

// ValidMovementType reports whether t is one of the four ledger types.
func ValidMovementType(t string) bool {
	switch t {
	case domain.MovementInitial, domain.MovementSale, domain.MovementRestock, domain.MovementAdjustment:
		return true
	}
	return false
}

// ValidateMovement enforces the ledger write rules before any row exists:
// known type, and sales must deduct stock.
func ValidateMovement(movementType string, quantityChange int) error {
	if !ValidMovementType(movementType) {
		return store.Invalid("type", "unknown movement type %q", movementType)
	}
	if movementType == domain.MovementSale && quantityChange >= 0 {
		return store.Invalid("quantity_change", "quantity change for sales must be negative")
	}
	return nil
}

// ValidateDetail enforces line-item rules: quantity at least one, price and
// discount non-negative, and a non-negative subtotal (the discount may not
// exceed the unit price).
func ValidateDetail(d domain.TransactionDetail) error {
	if d.Quantity < 1 {
		return store.Invalid("quantity", "must be at least 1")
	}
	if d.PriceAtSale.IsNegative() {
		return store.Invalid("price_at_sale", "must not be negative")
	}
	if d.DiscountPerItem.IsNegative() {
		return store.Invalid("discount_per_item", "must not be negative")
	}
	if d.DiscountPerItem.GreaterThan(d.PriceAtSale) {
		return store.Invalid("discount_per_item", "must not exceed price_at_sale")
	}
	if d.TaxRate != nil && d.TaxRate.IsNegative() {
		return store.Invalid("tax_rate", "must not be negative")
	}
	return nil
}
