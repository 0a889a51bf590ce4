package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"tokopos/backend/internal/cache"
	"tokopos/backend/internal/domain"
	"tokopos/backend/internal/store"
	"tokopos/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(), cache.NoopTreeCache{})
}

var (
	admin   = domain.Actor{ID: "usr-admin", Username: "admin", Role: "admin"}
	cashier = domain.Actor{ID: "usr-cashier", Username: "cashier", Role: "cashier"}
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func mustTransaction(t *testing.T, svc *Service) domain.TransactionResponse {
	t.Helper()
	tx, err := svc.CreateTransaction(context.Background(), cashier, domain.TransactionCreateRequest{})
	if err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}
	return tx
}

func mustProduct(t *testing.T, svc *Service, name string, price string, initialStock int) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(context.Background(), admin, domain.ProductCreateRequest{
		CategoryID:   "cat-grocery",
		Name:         name,
		Price:        dec(price),
		CostPrice:    dec(price).Div(dec("2")),
		InitialStock: initialStock,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	return product
}

func TestTransactionReconciliation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	p1 := mustProduct(t, svc, "Beras 5kg", "100", 50)
	p2 := mustProduct(t, svc, "Minyak 1L", "50", 50)
	tx := mustTransaction(t, svc)

	resp, err := svc.AddDetail(ctx, cashier, tx.Transaction.ID, domain.DetailAddRequest{
		ProductID:       p1.ID,
		Quantity:        2,
		DiscountPerItem: dec("10"),
	})
	if err != nil {
		t.Fatalf("add detail failed: %v", err)
	}
	resp, err = svc.AddDetail(ctx, cashier, tx.Transaction.ID, domain.DetailAddRequest{
		ProductID: p2.ID,
		Quantity:  1,
	})
	if err != nil {
		t.Fatalf("add detail failed: %v", err)
	}

	if !resp.Transaction.TotalAmount.Equal(dec("230")) {
		t.Fatalf("total = %s, want 230", resp.Transaction.TotalAmount)
	}
	if resp.Transaction.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("status = %q, want unpaid", resp.Transaction.PaymentStatus)
	}

	resp, err = svc.AddPayment(ctx, cashier, tx.Transaction.ID, domain.PaymentAddRequest{
		PaymentMethodID: "pm-cash",
		Amount:          dec("80"),
	})
	if err != nil {
		t.Fatalf("add payment failed: %v", err)
	}
	if resp.Transaction.PaymentStatus != domain.PaymentStatusPartial {
		t.Fatalf("status = %q, want partial", resp.Transaction.PaymentStatus)
	}
	if !resp.Remaining.Equal(dec("150")) {
		t.Fatalf("remaining = %s, want 150", resp.Remaining)
	}

	resp, err = svc.AddPayment(ctx, cashier, tx.Transaction.ID, domain.PaymentAddRequest{
		PaymentMethodID: "pm-qris",
		Amount:          dec("150"),
	})
	if err != nil {
		t.Fatalf("add payment failed: %v", err)
	}
	if resp.Transaction.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("status = %q, want paid", resp.Transaction.PaymentStatus)
	}
	if !resp.Transaction.PaidAmount.Equal(dec("230")) {
		t.Fatalf("paid = %s, want 230", resp.Transaction.PaidAmount)
	}

	// Second payment closed the balance, so it reads as the settlement.
	payments := resp.Transaction.Payments
	if len(payments) != 2 {
		t.Fatalf("payments = %d, want 2", len(payments))
	}
	if payments[0].Sequence != domain.PaymentSeqInstallment {
		t.Fatalf("first payment sequence = %q, want installment", payments[0].Sequence)
	}
	if payments[1].Sequence != domain.PaymentSeqSettlement {
		t.Fatalf("second payment sequence = %q, want settlement", payments[1].Sequence)
	}
}

func TestPaymentEditAndRemovalRecompute(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	product := mustProduct(t, svc, "Gula 1kg", "100", 20)
	tx := mustTransaction(t, svc)

	if _, err := svc.AddDetail(ctx, cashier, tx.Transaction.ID, domain.DetailAddRequest{
		ProductID: product.ID,
		Quantity:  2,
	}); err != nil {
		t.Fatalf("add detail failed: %v", err)
	}

	first, err := svc.AddPayment(ctx, cashier, tx.Transaction.ID, domain.PaymentAddRequest{
		PaymentMethodID: "pm-cash",
		Amount:          dec("120"),
	})
	if err != nil {
		t.Fatalf("add payment failed: %v", err)
	}
	firstID := mustPayment(t, first, dec("120")).ID

	resp, err := svc.AddPayment(ctx, cashier, tx.Transaction.ID, domain.PaymentAddRequest{
		PaymentMethodID: "pm-qris",
		Amount:          dec("80"),
	})
	if err != nil {
		t.Fatalf("add payment failed: %v", err)
	}
	secondID := mustPayment(t, resp, dec("80")).ID
	if resp.Transaction.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("status = %q, want paid", resp.Transaction.PaymentStatus)
	}

	// Shrinking a payment reopens the balance.
	lower := dec("30")
	resp, err = svc.UpdatePayment(ctx, cashier, tx.Transaction.ID, secondID, domain.PaymentUpdateRequest{Amount: &lower})
	if err != nil {
		t.Fatalf("update payment failed: %v", err)
	}
	if !resp.Transaction.PaidAmount.Equal(dec("150")) {
		t.Fatalf("paid = %s, want 150", resp.Transaction.PaidAmount)
	}
	if resp.Transaction.PaymentStatus != domain.PaymentStatusPartial {
		t.Fatalf("status = %q, want partial after edit", resp.Transaction.PaymentStatus)
	}
	if !resp.Remaining.Equal(dec("50")) {
		t.Fatalf("remaining = %s, want 50", resp.Remaining)
	}

	resp, err = svc.RemovePayment(ctx, cashier, tx.Transaction.ID, firstID)
	if err != nil {
		t.Fatalf("remove payment failed: %v", err)
	}
	if !resp.Transaction.PaidAmount.Equal(dec("30")) {
		t.Fatalf("paid = %s, want 30", resp.Transaction.PaidAmount)
	}
	if !resp.Remaining.Equal(dec("170")) {
		t.Fatalf("remaining = %s, want 170", resp.Remaining)
	}

	// Removing the last payment drops the transaction back to unpaid.
	resp, err = svc.RemovePayment(ctx, cashier, tx.Transaction.ID, secondID)
	if err != nil {
		t.Fatalf("remove payment failed: %v", err)
	}
	if resp.Transaction.PaymentStatus != domain.PaymentStatusUnpaid {
		t.Fatalf("status = %q, want unpaid", resp.Transaction.PaymentStatus)
	}
	if !resp.Transaction.PaidAmount.IsZero() {
		t.Fatalf("paid = %s, want 0", resp.Transaction.PaidAmount)
	}

	if _, err := svc.UpdatePayment(ctx, domain.Actor{}, tx.Transaction.ID, secondID, domain.PaymentUpdateRequest{Amount: &lower}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("anonymous update: err = %v, want validation error", err)
	}
	if _, err := svc.RemovePayment(ctx, domain.Actor{}, tx.Transaction.ID, secondID); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("anonymous remove: err = %v, want validation error", err)
	}
}

func mustPayment(t *testing.T, resp domain.TransactionResponse, amount decimal.Decimal) domain.TransactionPayment {
	t.Helper()
	for _, p := range resp.Transaction.Payments {
		if p.Amount.Equal(amount) {
			return p
		}
	}
	t.Fatalf("no payment of %s in %+v", amount, resp.Transaction.Payments)
	return domain.TransactionPayment{}
}

func TestAddDetailSnapshotsPrice(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	product := mustProduct(t, svc, "Sabun Cair", "40", 10)
	tx := mustTransaction(t, svc)

	if _, err := svc.AddDetail(ctx, cashier, tx.Transaction.ID, domain.DetailAddRequest{
		ProductID: product.ID,
		Quantity:  1,
	}); err != nil {
		t.Fatalf("add detail failed: %v", err)
	}

	// Catalog price changes must not move already-written lines.
	newPrice := dec("55")
	if _, err := svc.UpdateProduct(ctx, admin, product.ID, domain.ProductUpdateRequest{Price: &newPrice}); err != nil {
		t.Fatalf("update product failed: %v", err)
	}

	got, err := svc.GetTransaction(ctx, tx.Transaction.ID)
	if err != nil {
		t.Fatalf("get transaction failed: %v", err)
	}
	if !got.Transaction.Details[0].PriceAtSale.Equal(dec("40")) {
		t.Fatalf("price at sale = %s, want 40", got.Transaction.Details[0].PriceAtSale)
	}
}

func TestOverpaymentAllowed(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	product := mustProduct(t, svc, "Garam", "10", 10)
	tx := mustTransaction(t, svc)

	if _, err := svc.AddDetail(ctx, cashier, tx.Transaction.ID, domain.DetailAddRequest{
		ProductID: product.ID,
		Quantity:  1,
	}); err != nil {
		t.Fatalf("add detail failed: %v", err)
	}
	resp, err := svc.AddPayment(ctx, cashier, tx.Transaction.ID, domain.PaymentAddRequest{
		PaymentMethodID: "pm-cash",
		Amount:          dec("25"),
	})
	if err != nil {
		t.Fatalf("overpayment rejected: %v", err)
	}
	if resp.Transaction.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("status = %q, want paid", resp.Transaction.PaymentStatus)
	}
	if !resp.Remaining.Equal(dec("-15")) {
		t.Fatalf("remaining = %s, want -15", resp.Remaining)
	}

	// Fully paid already, so there is nothing left to settle.
	if _, err := svc.SettleRemaining(ctx, cashier, tx.Transaction.ID, "pm-cash"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("settle on overpaid: err = %v, want validation error", err)
	}
}

func TestSettleRemaining(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	product := mustProduct(t, svc, "Telur 10 Butir", "30", 20)
	tx := mustTransaction(t, svc)

	if _, err := svc.AddDetail(ctx, cashier, tx.Transaction.ID, domain.DetailAddRequest{
		ProductID: product.ID,
		Quantity:  3,
	}); err != nil {
		t.Fatalf("add detail failed: %v", err)
	}
	if _, err := svc.AddPayment(ctx, cashier, tx.Transaction.ID, domain.PaymentAddRequest{
		PaymentMethodID: "pm-cash",
		Amount:          dec("40"),
	}); err != nil {
		t.Fatalf("add payment failed: %v", err)
	}

	resp, err := svc.SettleRemaining(ctx, cashier, tx.Transaction.ID, "pm-qris")
	if err != nil {
		t.Fatalf("settle remaining failed: %v", err)
	}
	if resp.Transaction.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("status = %q, want paid", resp.Transaction.PaymentStatus)
	}
	if !resp.Remaining.IsZero() {
		t.Fatalf("remaining = %s, want 0", resp.Remaining)
	}
}

func TestInactivePaymentMethodRejected(t *testing.T) {
	ctx := context.Background()

	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopTreeCache{})
	method, err := repo.CreatePaymentMethod(ctx, domain.PaymentMethod{Name: "Voucher", Active: false})
	if err != nil {
		t.Fatalf("create payment method failed: %v", err)
	}

	product := mustProduct(t, svc, "Kecap", "15", 5)
	tx := mustTransaction(t, svc)
	if _, err := svc.AddDetail(ctx, cashier, tx.Transaction.ID, domain.DetailAddRequest{
		ProductID: product.ID,
		Quantity:  1,
	}); err != nil {
		t.Fatalf("add detail failed: %v", err)
	}

	_, err = svc.AddPayment(ctx, cashier, tx.Transaction.ID, domain.PaymentAddRequest{
		PaymentMethodID: method.ID,
		Amount:          dec("15"),
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("inactive method: err = %v, want validation error", err)
	}
}

func TestDetailLifecycleKeepsStockLedgerBalanced(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	product := mustProduct(t, svc, "Susu UHT 1L", "20", 50)
	tx := mustTransaction(t, svc)

	resp, err := svc.AddDetail(ctx, cashier, tx.Transaction.ID, domain.DetailAddRequest{
		ProductID: product.ID,
		Quantity:  5,
	})
	if err != nil {
		t.Fatalf("add detail failed: %v", err)
	}
	assertStockConsistent(t, svc, product.ID, 45)

	// Raising the quantity deducts the difference as a further sale.
	qty := 8
	resp, err = svc.UpdateDetail(ctx, cashier, tx.Transaction.ID, resp.Transaction.Details[0].ID, domain.DetailUpdateRequest{Quantity: &qty})
	if err != nil {
		t.Fatalf("update detail failed: %v", err)
	}
	assertStockConsistent(t, svc, product.ID, 42)
	if !resp.Transaction.TotalAmount.Equal(dec("160")) {
		t.Fatalf("total = %s, want 160", resp.Transaction.TotalAmount)
	}

	// Removing the line puts the units back through an adjustment; the
	// original sale rows stay in the ledger untouched.
	resp, err = svc.RemoveDetail(ctx, cashier, tx.Transaction.ID, resp.Transaction.Details[0].ID)
	if err != nil {
		t.Fatalf("remove detail failed: %v", err)
	}
	assertStockConsistent(t, svc, product.ID, 50)
	if !resp.Transaction.TotalAmount.IsZero() {
		t.Fatalf("total after remove = %s, want 0", resp.Transaction.TotalAmount)
	}

	sales, err := svc.ListMovements(ctx, product.ID, domain.MovementSale, 0)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("sale movements = %d, want 2", len(sales))
	}
}

func assertStockConsistent(t *testing.T, svc *Service, productID string, want int) {
	t.Helper()
	cached, fromLedger, err := svc.AuditProductStock(context.Background(), productID)
	if err != nil {
		t.Fatalf("audit stock failed: %v", err)
	}
	if cached != want {
		t.Fatalf("cached stock = %d, want %d", cached, want)
	}
	if cached != fromLedger {
		t.Fatalf("cached stock %d disagrees with ledger sum %d", cached, fromLedger)
	}
}

func TestRecordMovementRejectsPositiveSale(t *testing.T) {
	svc := newTestService()

	_, err := svc.RecordMovement(context.Background(), admin, domain.MovementCreateRequest{
		ProductID:      "prd-mie",
		Type:           domain.MovementSale,
		QuantityChange: 3,
	})
	var verr *store.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if verr.Field != "quantity_change" {
		t.Fatalf("field = %q, want quantity_change", verr.Field)
	}
}

func TestOnlyAdjustmentsMutable(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	sale, err := svc.RecordMovement(ctx, admin, domain.MovementCreateRequest{
		ProductID:      "prd-mie",
		Type:           domain.MovementSale,
		QuantityChange: -2,
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	adjustment, err := svc.RecordMovement(ctx, admin, domain.MovementCreateRequest{
		ProductID:      "prd-mie",
		Type:           domain.MovementAdjustment,
		QuantityChange: -1,
		Notes:          "damaged in storage",
	})
	if err != nil {
		t.Fatalf("record adjustment failed: %v", err)
	}

	qty := 4
	if _, err := svc.UpdateMovement(ctx, admin, sale.ID, domain.MovementUpdateRequest{QuantityChange: &qty}); !errors.Is(err, store.ErrImmutableMovement) {
		t.Fatalf("update sale: err = %v, want immutable movement", err)
	}
	if err := svc.DeleteMovement(ctx, admin, sale.ID); !errors.Is(err, store.ErrImmutableMovement) {
		t.Fatalf("delete sale: err = %v, want immutable movement", err)
	}

	updated, err := svc.UpdateMovement(ctx, admin, adjustment.ID, domain.MovementUpdateRequest{QuantityChange: &qty})
	if err != nil {
		t.Fatalf("update adjustment failed: %v", err)
	}
	if updated.QuantityChange != 4 {
		t.Fatalf("quantity change = %d, want 4", updated.QuantityChange)
	}
	assertStockConsistent(t, svc, "prd-mie", 120-2+4)

	if err := svc.DeleteMovement(ctx, admin, adjustment.ID); err != nil {
		t.Fatalf("delete adjustment failed: %v", err)
	}
	assertStockConsistent(t, svc, "prd-mie", 118)
}

func TestBulkDeleteSkipsIneligible(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	sale, err := svc.RecordMovement(ctx, admin, domain.MovementCreateRequest{
		ProductID:      "prd-kopi",
		Type:           domain.MovementSale,
		QuantityChange: -1,
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	adj1, err := svc.RecordMovement(ctx, admin, domain.MovementCreateRequest{
		ProductID:      "prd-kopi",
		Type:           domain.MovementAdjustment,
		QuantityChange: 5,
	})
	if err != nil {
		t.Fatalf("record adjustment failed: %v", err)
	}
	adj2, err := svc.RecordMovement(ctx, admin, domain.MovementCreateRequest{
		ProductID:      "prd-kopi",
		Type:           domain.MovementAdjustment,
		QuantityChange: -2,
	})
	if err != nil {
		t.Fatalf("record adjustment failed: %v", err)
	}

	result, err := svc.DeleteMovements(ctx, admin, []string{sale.ID, adj1.ID, adj2.ID, "mov-missing"})
	if err != nil {
		t.Fatalf("bulk delete failed: %v", err)
	}
	if result.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", result.Deleted)
	}
	if result.Skipped != 2 {
		t.Fatalf("skipped = %d, want 2", result.Skipped)
	}
	assertStockConsistent(t, svc, "prd-kopi", 199)
}

func TestCategoryTreeAndReparenting(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	parent, err := svc.CreateCategory(ctx, admin, domain.CategoryCreateRequest{Name: "Elektronik"})
	if err != nil {
		t.Fatalf("create category failed: %v", err)
	}
	child, err := svc.CreateCategory(ctx, admin, domain.CategoryCreateRequest{Name: "Aksesoris", ParentID: &parent.ID})
	if err != nil {
		t.Fatalf("create child failed: %v", err)
	}
	grandchild, err := svc.CreateCategory(ctx, admin, domain.CategoryCreateRequest{Name: "Kabel", ParentID: &child.ID})
	if err != nil {
		t.Fatalf("create grandchild failed: %v", err)
	}

	// Moving the root under its own grandchild would close a cycle.
	if _, err := svc.UpdateCategory(ctx, admin, parent.ID, domain.CategoryUpdateRequest{ParentID: &grandchild.ID}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("cycle move: err = %v, want validation error", err)
	}
	if _, err := svc.UpdateCategory(ctx, admin, parent.ID, domain.CategoryUpdateRequest{ParentID: &parent.ID}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("self parent: err = %v, want validation error", err)
	}

	// Deleting the middle node promotes its children to roots.
	if err := svc.DeleteCategory(ctx, admin, child.ID); err != nil {
		t.Fatalf("delete category failed: %v", err)
	}
	got, err := svc.GetCategory(ctx, grandchild.ID)
	if err != nil {
		t.Fatalf("get category failed: %v", err)
	}
	if !got.IsRoot() {
		t.Fatalf("grandchild still has parent %v after delete", got.ParentID)
	}

	tree, err := svc.CategoryTree(ctx)
	if err != nil {
		t.Fatalf("category tree failed: %v", err)
	}
	for _, node := range tree {
		if node.ID == child.ID {
			t.Fatalf("deleted category still in tree")
		}
	}
}

func TestDeleteCategoryInUseRejected(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// Seeded products live under cat-grocery, so it cannot go away.
	err := svc.DeleteCategory(ctx, admin, "cat-grocery")
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("delete in-use category: err = %v, want validation error", err)
	}

	empty, err := svc.CreateCategory(ctx, admin, domain.CategoryCreateRequest{Name: "Musiman"})
	if err != nil {
		t.Fatalf("create category failed: %v", err)
	}
	if err := svc.DeleteCategory(ctx, admin, empty.ID); err != nil {
		t.Fatalf("delete empty category failed: %v", err)
	}
}

func TestSlugFollowsNameChangesOnly(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, admin, domain.CategoryCreateRequest{Name: "Roti & Kue"})
	if err != nil {
		t.Fatalf("create category failed: %v", err)
	}
	if category.Slug != "roti-kue" {
		t.Fatalf("slug = %q, want roti-kue", category.Slug)
	}

	// A custom slug survives updates that leave the name alone.
	custom := "bakery"
	updated, err := svc.UpdateCategory(ctx, admin, category.ID, domain.CategoryUpdateRequest{Slug: &custom})
	if err != nil {
		t.Fatalf("set slug failed: %v", err)
	}
	sameName := "Roti & Kue"
	updated, err = svc.UpdateCategory(ctx, admin, category.ID, domain.CategoryUpdateRequest{Name: &sameName})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Slug != "bakery" {
		t.Fatalf("slug = %q, want bakery (unchanged name must not regenerate)", updated.Slug)
	}

	newName := "Kue Kering"
	updated, err = svc.UpdateCategory(ctx, admin, category.ID, domain.CategoryUpdateRequest{Name: &newName})
	if err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if updated.Slug != "kue-kering" {
		t.Fatalf("slug = %q, want kue-kering", updated.Slug)
	}
}

func TestCustomerPointsLedger(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, admin, domain.CustomerCreateRequest{Name: "Budi"})
	if err != nil {
		t.Fatalf("create customer failed: %v", err)
	}

	for _, adj := range []struct {
		change int
		source string
	}{
		{100, domain.PointSourceTransaction},
		{50, domain.PointSourcePromo},
		{-180, domain.PointSourceRedemption},
	} {
		if _, err := svc.AdjustPoints(ctx, admin, customer.ID, domain.PointsAdjustRequest{
			PointsChange: adj.change,
			Source:       adj.source,
		}); err != nil {
			t.Fatalf("adjust points failed: %v", err)
		}
	}

	resp, err := svc.CustomerPoints(ctx, customer.ID)
	if err != nil {
		t.Fatalf("customer points failed: %v", err)
	}
	// Redemption beyond the balance leaves a negative total; the ledger
	// records it rather than clamping.
	if resp.TotalPoints != -30 {
		t.Fatalf("total points = %d, want -30", resp.TotalPoints)
	}
	if len(resp.History) != 3 {
		t.Fatalf("history entries = %d, want 3", len(resp.History))
	}

	if _, err := svc.AdjustPoints(ctx, admin, customer.ID, domain.PointsAdjustRequest{
		PointsChange: 10,
		Source:       "birthday",
	}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("unknown source: err = %v, want validation error", err)
	}
}

func TestLowStockReport(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	product := mustProduct(t, svc, "Tepung Terigu", "12", 4)
	if err := svc.SetProductAlert(ctx, admin, product.ID, 5); err != nil {
		t.Fatalf("set alert failed: %v", err)
	}

	low, err := svc.ListLowStockProducts(ctx)
	if err != nil {
		t.Fatalf("low stock report failed: %v", err)
	}
	if len(low) != 1 || low[0].Product.ID != product.ID {
		t.Fatalf("low stock report = %+v, want only %s", low, product.ID)
	}

	// Restocking above the threshold clears the product from the report.
	if _, err := svc.RecordMovement(ctx, admin, domain.MovementCreateRequest{
		ProductID:      product.ID,
		Type:           domain.MovementRestock,
		QuantityChange: 20,
	}); err != nil {
		t.Fatalf("restock failed: %v", err)
	}
	low, err = svc.ListLowStockProducts(ctx)
	if err != nil {
		t.Fatalf("low stock report failed: %v", err)
	}
	if len(low) != 0 {
		t.Fatalf("low stock report has %d entries after restock, want 0", len(low))
	}
}

func TestProductCreateSeedsLedger(t *testing.T) {
	svc := newTestService()

	product := mustProduct(t, svc, "Sarden Kaleng", "18", 30)
	if product.Stock != 30 {
		t.Fatalf("stock = %d, want 30", product.Stock)
	}
	assertStockConsistent(t, svc, product.ID, 30)

	movements, err := svc.ListMovements(context.Background(), product.ID, "", 0)
	if err != nil {
		t.Fatalf("list movements failed: %v", err)
	}
	if len(movements) != 1 || movements[0].Type != domain.MovementInitial {
		t.Fatalf("movements = %+v, want a single initial row", movements)
	}
}
