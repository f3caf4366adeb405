package payroll

import (
	"testing"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
)

func TestGrossPaySumsFlatEarningsOnly(t *testing.T) {
	items := []domain.CommissionPaymentItem{
		{Type: domain.PayrollItemEarning, Name: "Commission - Braiding", Amount: 3000},
		{Type: domain.PayrollItemEarning, Name: "Bonus", Amount: 2000},
		{Type: domain.PayrollItemEarning, Name: "Odd percentage earning", Amount: 10, IsPercentage: true},
		{Type: domain.PayrollItemDeduction, Name: "Advance", Amount: 500},
	}
	if got := GrossPay(items); got != 5000 {
		t.Fatalf("gross pay = %v, want 5000", got)
	}
}

func TestNetPayWithPercentageOfGrossDeduction(t *testing.T) {
	items := []domain.CommissionPaymentItem{
		{Type: domain.PayrollItemEarning, Name: "Commission", Amount: 5000},
		{
			Type:         domain.PayrollItemDeduction,
			Name:         "Savings",
			Amount:       10,
			IsPercentage: true,
			PercentageOf: domain.PercentageOfGrossPay,
		},
	}
	gross := GrossPay(items)
	if gross != 5000 {
		t.Fatalf("gross pay = %v, want 5000", gross)
	}
	deductions := TotalDeductions(items, &gross, nil)
	if deductions != 500 {
		t.Fatalf("deductions = %v, want 500", deductions)
	}
	if net := NetPay(gross, deductions); net != 4500 {
		t.Fatalf("net pay = %v, want 4500", net)
	}
}

func TestTotalDeductionsPercentageOfBasePay(t *testing.T) {
	items := []domain.CommissionPaymentItem{
		{
			Type:         domain.PayrollItemDeduction,
			Name:         "NSSF",
			Amount:       6,
			IsPercentage: true,
			PercentageOf: domain.PercentageOfBasePay,
		},
		{Type: domain.PayrollItemDeduction, Name: "Uniform", Amount: 200},
	}
	basePay := 30000.0
	if got := TotalDeductions(items, nil, &basePay); got != 2000 {
		t.Fatalf("deductions = %v, want 2000", got)
	}
}

func TestTotalDeductionsSkipsPercentageWithoutBase(t *testing.T) {
	items := []domain.CommissionPaymentItem{
		{
			Type:         domain.PayrollItemDeduction,
			Name:         "Savings",
			Amount:       10,
			IsPercentage: true,
			PercentageOf: domain.PercentageOfBasePay,
		},
		{Type: domain.PayrollItemDeduction, Name: "Advance", Amount: 300},
	}
	if got := TotalDeductions(items, nil, nil); got != 300 {
		t.Fatalf("deductions = %v, want 300 (percentage item skipped)", got)
	}
}

func TestServiceCommissionUsesTaxExclusiveBase(t *testing.T) {
	// 1000.00 tax-inclusive at 50% commission: base 862.07, commission 431.03.
	if got := ServiceCommission(1000, 0.50); got != 431.03 {
		t.Fatalf("commission = %v, want 431.03", got)
	}
	if got := ServiceCommission(1000, 0); got != 0 {
		t.Fatalf("zero-rate commission = %v, want 0", got)
	}
}

func TestCommissionEarningsCarriesTraceability(t *testing.T) {
	sales := []domain.Sale{
		{
			ID:         "sale-1",
			SaleNumber: "SALE-20260106-101500-001",
			Services: []domain.SaleServiceLine{
				{ID: "line-1", ServiceName: "Braiding", CommissionAmount: 431.03},
				{ID: "line-2", ServiceName: "Retouch", CommissionAmount: 0},
			},
		},
	}
	items := CommissionEarnings(sales)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1 (zero-commission line skipped)", len(items))
	}
	item := items[0]
	if item.Type != domain.PayrollItemEarning {
		t.Errorf("type = %q, want earning", item.Type)
	}
	if item.Name != "Commission - Braiding" {
		t.Errorf("name = %q", item.Name)
	}
	if item.Amount != 431.03 {
		t.Errorf("amount = %v, want 431.03", item.Amount)
	}
	if item.SaleID != "sale-1" || item.SaleServiceID != "line-1" || item.SaleNumber != "SALE-20260106-101500-001" {
		t.Errorf("traceability fields = %+v", item)
	}
}
