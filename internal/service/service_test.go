package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
	"github.com/GibsonWaheire/POS-salon/internal/store"
	"github.com/GibsonWaheire/POS-salon/internal/store/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	repo := memory.New()
	svc := New(repo, nil)
	ctx := context.Background()

	if _, err := repo.CreateStaff(ctx, domain.Staff{
		ID: "staff-1", Name: "Grace Achieng", Role: "stylist",
		PINHash: mustHash(t, "1234!"), Active: true, BasePay: 25000,
		Partition: domain.PartitionLive,
	}); err != nil {
		t.Fatalf("seed staff: %v", err)
	}
	if _, err := repo.CreateService(ctx, domain.Service{
		ID: "svc-braiding", Name: "Box Braids", Price: 1000, CommissionRate: 0.50,
	}); err != nil {
		t.Fatalf("seed service: %v", err)
	}
	if _, err := repo.CreateProduct(ctx, domain.Product{
		ID: "prod-oil", Name: "Hair Oil", SellingPrice: 450,
		StockQuantity: 1, MinStockLevel: 0, Partition: domain.PartitionLive,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return svc, repo
}

func mustHash(t *testing.T, pin string) string {
	t.Helper()
	hash, err := HashPIN(pin)
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}
	return hash
}

func TestCreateSaleComputesVATAndCommission(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID:  "staff-1",
		Services: []domain.SaleServiceInput{{ServiceID: "svc-braiding", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	sale := resp.Sale
	if sale.TotalAmount != 1000 {
		t.Errorf("total = %v, want 1000", sale.TotalAmount)
	}
	if sale.Subtotal != 862.07 {
		t.Errorf("subtotal = %v, want 862.07", sale.Subtotal)
	}
	if sale.TaxAmount != 137.93 {
		t.Errorf("tax = %v, want 137.93", sale.TaxAmount)
	}
	if sale.CommissionAmount != 431.03 {
		t.Errorf("commission = %v, want 431.03", sale.CommissionAmount)
	}
	if sale.Status != domain.SaleStatusPending {
		t.Errorf("status = %q, want pending", sale.Status)
	}
	if sale.SaleNumber == "" {
		t.Error("sale number missing")
	}
	if len(resp.Skipped) != 0 {
		t.Errorf("skipped = %v", resp.Skipped)
	}
}

func TestCreateSaleSkipsUnresolvableLines(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID: "staff-1",
		Services: []domain.SaleServiceInput{
			{ServiceID: "svc-braiding"},
			{ServiceID: "svc-missing"},
		},
		Products: []domain.SaleProductInput{
			{ProductID: "prod-missing", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if len(resp.Sale.Services) != 1 || len(resp.Sale.Products) != 0 {
		t.Fatalf("lines = %d services, %d products", len(resp.Sale.Services), len(resp.Sale.Products))
	}
	if len(resp.Skipped) != 2 {
		t.Fatalf("skipped = %v, want 2 entries", resp.Skipped)
	}
}

func TestCreateSaleCreatesCatalogServiceByName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	price := 700.0
	resp, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID: "staff-1",
		Services: []domain.SaleServiceInput{
			{Name: "Deep Conditioning", Price: &price},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if len(resp.Sale.Services) != 1 {
		t.Fatalf("services = %d, want 1", len(resp.Sale.Services))
	}
	line := resp.Sale.Services[0]
	if line.ServiceName != "Deep Conditioning" || line.UnitPrice != 700 {
		t.Errorf("line = %+v", line)
	}
	if _, err := svc.repo.FindServiceByName(ctx, "Deep Conditioning"); err != nil {
		t.Errorf("catalog entry not created: %v", err)
	}
}

func TestCreateSaleRejectsEmptyRequest(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.CreateSale(context.Background(), domain.PartitionLive, domain.SaleCreateRequest{StaffID: "staff-1"})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestCompleteSaleInsufficientStockLeavesEverythingUntouched(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	resp, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID:  "staff-1",
		Products: []domain.SaleProductInput{{ProductID: "prod-oil", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	_, err = svc.CompleteSale(ctx, resp.Sale.ID, domain.SaleCompleteRequest{PaymentMethod: "cash"})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want insufficient stock", err)
	}
	var stockErr *store.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("err = %v, want *store.StockError", err)
	}
	if stockErr.Available != 1 || stockErr.Required != 2 {
		t.Errorf("stock error = %+v", stockErr)
	}

	product, err := repo.GetProduct(ctx, "prod-oil")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.StockQuantity != 1 {
		t.Errorf("stock = %v, want 1 (unchanged)", product.StockQuantity)
	}
	sale, err := repo.GetSale(ctx, resp.Sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if sale.Status != domain.SaleStatusPending {
		t.Errorf("status = %q, want pending", sale.Status)
	}
	if usage := repo.ProductUsageForSale(sale.ID); len(usage) != 0 {
		t.Errorf("usage entries = %d, want 0", len(usage))
	}
}

func TestCompleteSaleDeductsStockAndAwardsLoyalty(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	customer, err := svc.CreateCustomer(ctx, domain.CustomerCreateRequest{
		Name: "Amina Njoroge", Phone: "0712345678",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	resp, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID:       "staff-1",
		CustomerName:  "Amina Njoroge",
		CustomerPhone: "0712345678",
		Services:      []domain.SaleServiceInput{{ServiceID: "svc-braiding"}},
		Products:      []domain.SaleProductInput{{ProductID: "prod-oil", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if resp.Sale.CustomerID != customer.ID {
		t.Fatalf("customer not matched by phone: %q vs %q", resp.Sale.CustomerID, customer.ID)
	}

	completed, err := svc.CompleteSale(ctx, resp.Sale.ID, domain.SaleCompleteRequest{PaymentMethod: "cash"})
	if err != nil {
		t.Fatalf("complete sale: %v", err)
	}
	if completed.Sale.Status != domain.SaleStatusCompleted || completed.Sale.CompletedAt == nil {
		t.Errorf("sale = %+v", completed.Sale)
	}
	wantReceipt := "RCP-" + completed.Sale.SaleNumber[len("SALE-"):]
	if completed.Payment.ReceiptNumber != wantReceipt {
		t.Errorf("receipt = %q, want %q", completed.Payment.ReceiptNumber, wantReceipt)
	}
	if completed.Payment.Amount != completed.Sale.TotalAmount {
		t.Errorf("payment amount = %v, want %v", completed.Payment.Amount, completed.Sale.TotalAmount)
	}

	product, _ := repo.GetProduct(ctx, "prod-oil")
	if product.StockQuantity != 0 {
		t.Errorf("stock = %v, want 0", product.StockQuantity)
	}
	if usage := repo.ProductUsageForSale(completed.Sale.ID); len(usage) != 1 {
		t.Errorf("usage entries = %d, want 1", len(usage))
	}

	// 1450 total -> 14 loyalty points, one visit recorded.
	updated, _ := repo.GetCustomer(ctx, customer.ID)
	if updated.LoyaltyPoints != 14 {
		t.Errorf("loyalty points = %d, want 14", updated.LoyaltyPoints)
	}
	if updated.TotalVisits != 1 || updated.TotalSpent != 1450 {
		t.Errorf("customer = %+v", updated)
	}

	// Completing again is rejected.
	_, err = svc.CompleteSale(ctx, resp.Sale.ID, domain.SaleCompleteRequest{PaymentMethod: "cash"})
	if !errors.Is(err, store.ErrAlreadyCompleted) {
		t.Errorf("second completion err = %v, want already completed", err)
	}
}

func TestCompleteSaleMpesaValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID:  "staff-1",
		Services: []domain.SaleServiceInput{{ServiceID: "svc-braiding"}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	for _, bad := range []string{"SHORT", "toolongcode12", "ABC123!@#D"} {
		_, err := svc.CompleteSale(ctx, resp.Sale.ID, domain.SaleCompleteRequest{
			PaymentMethod: "mpesa", TransactionCode: bad,
		})
		if !errors.Is(err, store.ErrValidation) {
			t.Errorf("code %q: err = %v, want validation", bad, err)
		}
	}

	completed, err := svc.CompleteSale(ctx, resp.Sale.ID, domain.SaleCompleteRequest{
		PaymentMethod: "mpesa", TransactionCode: "qgh7xk9p2m",
	})
	if err != nil {
		t.Fatalf("complete sale: %v", err)
	}
	if completed.Payment.TransactionCode != "QGH7XK9P2M" {
		t.Errorf("code = %q, want uppercased", completed.Payment.TransactionCode)
	}

	second, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID:  "staff-1",
		Services: []domain.SaleServiceInput{{ServiceID: "svc-braiding"}},
	})
	if err != nil {
		t.Fatalf("create second sale: %v", err)
	}
	done, err := svc.CompleteSale(ctx, second.Sale.ID, domain.SaleCompleteRequest{PaymentMethod: "mpesa"})
	if err != nil {
		t.Fatalf("mpesa without code should complete: %v", err)
	}
	if done.Payment.TransactionCode != "" {
		t.Errorf("code = %q, want empty", done.Payment.TransactionCode)
	}
}

func TestPendingCommissionsNetsAgainstPayments(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID:  "staff-1",
		Services: []domain.SaleServiceInput{{ServiceID: "svc-braiding"}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.CompleteSale(ctx, resp.Sale.ID, domain.SaleCompleteRequest{PaymentMethod: "cash"}); err != nil {
		t.Fatalf("complete sale: %v", err)
	}

	pending, err := svc.PendingCommissions(ctx, domain.PartitionLive, "", "", "")
	if err != nil {
		t.Fatalf("pending commissions: %v", err)
	}
	if len(pending.PendingCommissions) != 1 {
		t.Fatalf("entries = %d, want 1", len(pending.PendingCommissions))
	}
	if pending.PendingCommissions[0].PendingAmount != 431.03 {
		t.Errorf("pending = %v, want 431.03", pending.PendingCommissions[0].PendingAmount)
	}

	// Pay it out; staff disappears from the pending list.
	payment, err := svc.CreateCommissionPayment(ctx, domain.PartitionLive, domain.CommissionPaymentRequest{
		StaffID: "staff-1",
	})
	if err != nil {
		t.Fatalf("create commission payment: %v", err)
	}
	if payment.GrossPay != 431.03 || payment.NetPay != 431.03 {
		t.Errorf("payment gross=%v net=%v, want 431.03", payment.GrossPay, payment.NetPay)
	}
	if len(payment.Items) != 1 || payment.Items[0].Name != "Commission - Box Braids" {
		t.Errorf("auto-populated items = %+v", payment.Items)
	}
	if payment.ReceiptNumber == "" {
		t.Error("receipt number missing")
	}

	pending, err = svc.PendingCommissions(ctx, domain.PartitionLive, "", "", "")
	if err != nil {
		t.Fatalf("pending commissions: %v", err)
	}
	if len(pending.PendingCommissions) != 0 {
		t.Errorf("entries after payout = %+v, want none", pending.PendingCommissions)
	}
}

func TestCreateCommissionPaymentExplicitItems(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	payment, err := svc.CreateCommissionPayment(ctx, domain.PartitionLive, domain.CommissionPaymentRequest{
		StaffID: "staff-1",
		Earnings: []domain.PayrollItemInput{
			{Name: "Commission", Amount: 5000},
		},
		Deductions: []domain.PayrollItemInput{
			{Name: "Savings", Amount: 10, IsPercentage: true, PercentageOf: domain.PercentageOfGrossPay},
		},
	})
	if err != nil {
		t.Fatalf("create commission payment: %v", err)
	}
	if payment.GrossPay != 5000 {
		t.Errorf("gross = %v, want 5000", payment.GrossPay)
	}
	if payment.TotalDeductions != 500 {
		t.Errorf("deductions = %v, want 500", payment.TotalDeductions)
	}
	if payment.NetPay != 4500 || payment.AmountPaid != 4500 {
		t.Errorf("net = %v / paid = %v, want 4500", payment.NetPay, payment.AmountPaid)
	}
}

func TestCreateCommissionPaymentValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	noAuto := false
	_, err := svc.CreateCommissionPayment(ctx, domain.PartitionLive, domain.CommissionPaymentRequest{
		StaffID:                 "staff-1",
		AutoPopulateCommissions: &noAuto,
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("empty payment err = %v, want validation", err)
	}

	_, err = svc.CreateCommissionPayment(ctx, domain.PartitionLive, domain.CommissionPaymentRequest{
		StaffID:  "staff-1",
		Earnings: []domain.PayrollItemInput{{Name: "Bonus", Amount: 100}},
		Deductions: []domain.PayrollItemInput{
			{Name: "Mystery", Amount: 10, IsPercentage: true, PercentageOf: "net_pay"},
		},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("bad percentage base err = %v, want validation", err)
	}

	_, err = svc.CreateCommissionPayment(ctx, domain.PartitionLive, domain.CommissionPaymentRequest{
		StaffID: "staff-unknown",
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown staff err = %v, want not found", err)
	}
}

func TestCreateCommissionPaymentAppendsAutoCommissionsToEarnings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID:  "staff-1",
		Services: []domain.SaleServiceInput{{ServiceID: "svc-braiding"}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.CompleteSale(ctx, resp.Sale.ID, domain.SaleCompleteRequest{PaymentMethod: "cash"}); err != nil {
		t.Fatalf("complete sale: %v", err)
	}

	payment, err := svc.CreateCommissionPayment(ctx, domain.PartitionLive, domain.CommissionPaymentRequest{
		StaffID:  "staff-1",
		Earnings: []domain.PayrollItemInput{{Name: "Transport Allowance", Amount: 1000}},
	})
	if err != nil {
		t.Fatalf("create commission payment: %v", err)
	}
	var names []string
	for _, item := range payment.Items {
		if item.Type == domain.PayrollItemEarning {
			names = append(names, item.Name)
		}
	}
	if len(names) != 2 || names[0] != "Transport Allowance" || names[1] != "Commission - Box Braids" {
		t.Errorf("earning names = %v, want allowance then commission", names)
	}
	if payment.GrossPay != 1431.03 {
		t.Errorf("gross = %v, want 1431.03", payment.GrossPay)
	}
}

func TestCreateCommissionPaymentMpesaReference(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateCommissionPayment(ctx, domain.PartitionLive, domain.CommissionPaymentRequest{
		StaffID:              "staff-1",
		Earnings:             []domain.PayrollItemInput{{Name: "Bonus", Amount: 1000}},
		PaymentMethod:        "mpesa",
		TransactionReference: "bad!",
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Errorf("bad reference err = %v, want validation", err)
	}

	payment, err := svc.CreateCommissionPayment(ctx, domain.PartitionLive, domain.CommissionPaymentRequest{
		StaffID:              "staff-1",
		Earnings:             []domain.PayrollItemInput{{Name: "Bonus", Amount: 1000}},
		PaymentMethod:        "mpesa",
		TransactionReference: "qgh7xk9p2m",
	})
	if err != nil {
		t.Fatalf("valid reference: %v", err)
	}
	if payment.TransactionReference != "QGH7XK9P2M" {
		t.Errorf("reference = %q, want uppercased", payment.TransactionReference)
	}

	payment, err = svc.CreateCommissionPayment(ctx, domain.PartitionLive, domain.CommissionPaymentRequest{
		StaffID:       "staff-1",
		Earnings:      []domain.PayrollItemInput{{Name: "Bonus", Amount: 1000}},
		PaymentMethod: "mpesa",
	})
	if err != nil {
		t.Fatalf("mpesa payout without reference should record: %v", err)
	}
	if payment.TransactionReference != "" {
		t.Errorf("reference = %q, want empty", payment.TransactionReference)
	}
}

func TestPendingCommissionsDefaultsToAllTime(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	past := time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)
	if _, err := repo.CreateSale(ctx, domain.Sale{
		StaffID: "staff-1", Status: domain.SaleStatusCompleted,
		Subtotal: 862.07, TaxAmount: 137.93, TotalAmount: 1000, CommissionAmount: 431.03,
		CreatedAt: past, CompletedAt: &past, Partition: domain.PartitionLive,
	}); err != nil {
		t.Fatalf("seed past sale: %v", err)
	}

	pending, err := svc.PendingCommissions(ctx, domain.PartitionLive, "", "", "")
	if err != nil {
		t.Fatalf("pending commissions: %v", err)
	}
	if len(pending.PendingCommissions) != 1 || pending.TotalPending != 431.03 {
		t.Fatalf("pending = %+v, want the 2024 sale included", pending)
	}

	pending, err = svc.PendingCommissions(ctx, domain.PartitionLive, "2025-01-01", "2025-01-31", "")
	if err != nil {
		t.Fatalf("pending commissions with window: %v", err)
	}
	if len(pending.PendingCommissions) != 0 {
		t.Errorf("entries = %d, want 0 outside the window", len(pending.PendingCommissions))
	}
}

func TestPendingCommissionsStaffFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID:  "staff-1",
		Services: []domain.SaleServiceInput{{ServiceID: "svc-braiding"}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.CompleteSale(ctx, resp.Sale.ID, domain.SaleCompleteRequest{PaymentMethod: "cash"}); err != nil {
		t.Fatalf("complete sale: %v", err)
	}

	pending, err := svc.PendingCommissions(ctx, domain.PartitionLive, "", "", "staff-1")
	if err != nil {
		t.Fatalf("pending commissions: %v", err)
	}
	if len(pending.PendingCommissions) != 1 || pending.PendingCommissions[0].StaffID != "staff-1" {
		t.Fatalf("pending = %+v, want only staff-1", pending.PendingCommissions)
	}

	pending, err = svc.PendingCommissions(ctx, domain.PartitionLive, "", "", "staff-2")
	if err != nil {
		t.Fatalf("pending commissions: %v", err)
	}
	if len(pending.PendingCommissions) != 0 {
		t.Errorf("entries = %d, want 0 for another staff member", len(pending.PendingCommissions))
	}
}

func TestDailyReportAggregatesCompletedSales(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	resp, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID:  "staff-1",
		Services: []domain.SaleServiceInput{{ServiceID: "svc-braiding"}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.CompleteSale(ctx, resp.Sale.ID, domain.SaleCompleteRequest{PaymentMethod: "cash"}); err != nil {
		t.Fatalf("complete sale: %v", err)
	}

	z, err := svc.DailyReport(ctx, domain.PartitionLive, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if z.TransactionCount != 1 {
		t.Errorf("transactions = %d, want 1", z.TransactionCount)
	}
	if z.Revenue.TotalRevenue != 1000 || z.Revenue.VATAmount != 137.93 {
		t.Errorf("revenue = %+v", z.Revenue)
	}
	if z.TotalCommission != 431.03 {
		t.Errorf("commission = %v, want 431.03", z.TotalCommission)
	}
	if z.PaymentMethods["cash"] != 1000 {
		t.Errorf("payment methods = %v", z.PaymentMethods)
	}

	// Pending sales stay out of the report.
	if _, err := svc.CreateSale(ctx, domain.PartitionLive, domain.SaleCreateRequest{
		StaffID:  "staff-1",
		Services: []domain.SaleServiceInput{{ServiceID: "svc-braiding"}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	z2, err := svc.DailyReport(ctx, domain.PartitionLive, time.Now().UTC().Format("2006-01-02"))
	if err != nil {
		t.Fatalf("daily report: %v", err)
	}
	if z2.TransactionCount != 1 {
		t.Errorf("transactions = %d, want 1 (pending excluded)", z2.TransactionCount)
	}
}

func TestDemoLogoutPurgesDemoData(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if _, err := repo.CreateStaff(ctx, domain.Staff{
		ID: "staff-demo", Name: "Demo Staff", Role: "manager",
		PINHash: mustHash(t, "9999*"), Active: true, Partition: domain.PartitionDemo,
	}); err != nil {
		t.Fatalf("seed demo staff: %v", err)
	}

	resp, err := svc.CreateSale(ctx, domain.PartitionDemo, domain.SaleCreateRequest{
		StaffID:      "staff-demo",
		CustomerName: "Demo Customer",
		Services:     []domain.SaleServiceInput{{ServiceID: "svc-braiding"}},
	})
	if err != nil {
		t.Fatalf("create demo sale: %v", err)
	}
	if _, err := svc.CompleteSale(ctx, resp.Sale.ID, domain.SaleCompleteRequest{PaymentMethod: "cash"}); err != nil {
		t.Fatalf("complete demo sale: %v", err)
	}

	if err := svc.Logout(ctx, domain.Actor{StaffID: "staff-demo", Demo: true}, domain.LogoutRequest{}); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if _, err := repo.GetSale(ctx, resp.Sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("demo sale survived purge: %v", err)
	}
	demoSales, err := repo.ListSales(ctx, domain.PartitionDemo, domain.SaleListFilter{})
	if err != nil {
		t.Fatalf("list demo sales: %v", err)
	}
	if len(demoSales) != 0 {
		t.Errorf("demo sales after purge = %d", len(demoSales))
	}
	customers, err := repo.ListCustomers(ctx, domain.PartitionDemo, 0)
	if err != nil {
		t.Fatalf("list demo customers: %v", err)
	}
	if len(customers) != 0 {
		t.Errorf("demo customers after purge = %d", len(customers))
	}
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	staff, err := svc.Authenticate(ctx, "staff-1", "1234!")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if staff.ID != "staff-1" {
		t.Errorf("staff = %+v", staff)
	}
	if _, err := svc.Authenticate(ctx, "staff-1", "9999#"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("wrong pin err = %v, want not found", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "1234!"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown staff err = %v, want not found", err)
	}
}

func TestValidatePIN(t *testing.T) {
	for _, valid := range []string{"1234!", "a1b2#", "99.9x", "*0000"} {
		if err := ValidatePIN(valid); err != nil {
			t.Errorf("ValidatePIN(%q) = %v, want ok", valid, err)
		}
	}
	for _, invalid := range []string{"", "1234", "123456!", "abcd!", "12345", "abcde"} {
		if err := ValidatePIN(invalid); !errors.Is(err, store.ErrValidation) {
			t.Errorf("ValidatePIN(%q) = %v, want validation error", invalid, err)
		}
	}
}

func TestActivateSubscriptionIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.ActivateSubscription(ctx, "acct-1", "pro", "PS-REF-001")
	if err != nil || !created {
		t.Fatalf("first activation created=%v err=%v", created, err)
	}
	created, err = svc.ActivateSubscription(ctx, "acct-1", "pro", "PS-REF-001")
	if err != nil {
		t.Fatalf("replay err = %v", err)
	}
	if created {
		t.Error("replayed reference reported as newly created")
	}
}
