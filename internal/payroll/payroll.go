// Package payroll contains the pure commission/payroll arithmetic shared by
// the payment-creation path and the payout reports. Nothing here touches the
// store; callers load rows and pass them in.
package payroll

import (
	"github.com/GibsonWaheire/POS-salon/internal/domain"
)

// GrossPay sums the flat (non-percentage) earnings items, rounded to 2dp.
// Percentage earnings have no defined base in this system and contribute
// nothing; request validation rejects them before they get here.
func GrossPay(items []domain.CommissionPaymentItem) float64 {
	total := 0.0
	for _, item := range items {
		if item.Type != domain.PayrollItemEarning || item.IsPercentage {
			continue
		}
		total += item.Amount
	}
	return domain.Round2(total)
}

// TotalDeductions resolves each deduction item: percentage items against
// their declared base (skipped when the base is unavailable), flat items at
// face value. Rounded to 2dp.
func TotalDeductions(items []domain.CommissionPaymentItem, grossPay, basePay *float64) float64 {
	total := 0.0
	for _, item := range items {
		if item.Type != domain.PayrollItemDeduction {
			continue
		}
		if item.IsPercentage {
			base, ok := item.PercentageOf.Resolve(grossPay, basePay)
			if !ok {
				continue
			}
			total += base * (item.Amount / 100.0)
			continue
		}
		total += item.Amount
	}
	return domain.Round2(total)
}

// NetPay is gross pay minus total deductions, rounded to 2dp.
func NetPay(grossPay, totalDeductions float64) float64 {
	return domain.Round2(grossPay - totalDeductions)
}

// ServiceCommission computes the commission owed on one service line.
// Canonical policy: the base is the tax-exclusive share of the line total.
func ServiceCommission(lineTotal, commissionRate float64) float64 {
	return domain.Round2(domain.TaxExclusive(lineTotal) * commissionRate)
}

// CommissionEarnings builds one earnings item per positive-commission service
// line of the given completed sales, carrying the originating sale number and
// service name for payslip traceability.
func CommissionEarnings(sales []domain.Sale) []domain.CommissionPaymentItem {
	items := make([]domain.CommissionPaymentItem, 0, len(sales))
	for _, sale := range sales {
		for _, line := range sale.Services {
			if line.CommissionAmount <= 0 {
				continue
			}
			items = append(items, domain.CommissionPaymentItem{
				Type:          domain.PayrollItemEarning,
				Name:          "Commission - " + line.ServiceName,
				Amount:        line.CommissionAmount,
				SaleID:        sale.ID,
				SaleServiceID: line.ID,
				ServiceName:   line.ServiceName,
				SaleNumber:    sale.SaleNumber,
			})
		}
	}
	return items
}
