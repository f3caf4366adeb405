// Package report holds the pure aggregation functions behind the reporting
// endpoints and the receipt/payslip render-data endpoints. Each metric is
// derived exactly once here so the numbers cannot diverge between consumers.
// Monetary outputs are rounded to 2dp only at struct construction; the
// accumulators run unrounded.
package report

import (
	"time"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
)

type RevenueBreakdown struct {
	TotalRevenue     float64 `json:"total_revenue"`
	ServicesRevenue  float64 `json:"services_revenue"`
	ProductsRevenue  float64 `json:"products_revenue"`
	RevenueBeforeVAT float64 `json:"revenue_before_vat"`
	VATAmount        float64 `json:"vat_amount"`
	VATRate          float64 `json:"vat_rate"`
}

type ZReport struct {
	Date             string             `json:"date"`
	Revenue          RevenueBreakdown   `json:"revenue"`
	TotalCommission  float64            `json:"total_commission"`
	TransactionCount int                `json:"transaction_count"`
	PaymentMethods   map[string]float64 `json:"payment_methods"`
}

type PeriodVariance struct {
	PreviousValue float64 `json:"previous_value"`
	Delta         float64 `json:"delta"`
	DeltaPercent  float64 `json:"delta_percent"`
}

type FinancialSummary struct {
	PeriodStart            string             `json:"period_start"`
	PeriodEnd              string             `json:"period_end"`
	Revenue                RevenueBreakdown   `json:"revenue"`
	TotalExpenses          float64            `json:"total_expenses"`
	ExpensesByCategory     map[string]float64 `json:"expenses_by_category"`
	TotalCommissionEarned  float64            `json:"total_commission_earned"`
	TotalCommissionPaid    float64            `json:"total_commission_paid"`
	TotalCommissionPending float64            `json:"total_commission_pending"`
	NetProfit              float64            `json:"net_profit"`
	ProfitMarginPercent    float64            `json:"profit_margin_percent"`
	RevenueVariance        *PeriodVariance    `json:"revenue_variance,omitempty"`
	ProfitVariance         *PeriodVariance    `json:"profit_variance,omitempty"`
}

type TaxReport struct {
	Month            string  `json:"month"`
	PeriodStart      string  `json:"period_start"`
	PeriodEnd        string  `json:"period_end"`
	TotalSales       float64 `json:"total_sales"`
	SalesBeforeVAT   float64 `json:"sales_before_vat"`
	VATCollected     float64 `json:"vat_collected"`
	VATRate          float64 `json:"vat_rate"`
	TransactionCount int     `json:"transaction_count"`
}

type CommissionPayoutReport struct {
	StartDate        string                          `json:"start_date"`
	EndDate          string                          `json:"end_date"`
	StaffCommissions []domain.StaffPendingCommission `json:"staff_commissions"`
	TotalCommission  float64                         `json:"total_commission_payout"`
	TotalPaid        float64                         `json:"total_commission_paid"`
	TotalPending     float64                         `json:"total_commission_pending"`
	TotalStaff       int                             `json:"total_staff"`
}

// Revenue splits completed-sale revenue into services and products and
// back-calculates VAT from the tax-inclusive total.
func Revenue(sales []domain.Sale) RevenueBreakdown {
	servicesRevenue := 0.0
	productsRevenue := 0.0
	for _, sale := range sales {
		for _, line := range sale.Services {
			servicesRevenue += line.TotalPrice
		}
		for _, line := range sale.Products {
			productsRevenue += line.TotalPrice
		}
	}
	total := servicesRevenue + productsRevenue
	vat := total * domain.VATRate / (1 + domain.VATRate)
	return RevenueBreakdown{
		TotalRevenue:     domain.Round2(total),
		ServicesRevenue:  domain.Round2(servicesRevenue),
		ProductsRevenue:  domain.Round2(productsRevenue),
		RevenueBeforeVAT: domain.Round2(total - vat),
		VATAmount:        domain.Round2(vat),
		VATRate:          domain.VATRate,
	}
}

// CommissionEarned sums sale-level commission over completed sales.
func CommissionEarned(sales []domain.Sale) float64 {
	total := 0.0
	for _, sale := range sales {
		total += sale.CommissionAmount
	}
	return domain.Round2(total)
}

// PaymentMethodTotals groups payment amounts by method for the given sales.
func PaymentMethodTotals(sales []domain.Sale, payments []domain.Payment) map[string]float64 {
	saleIDs := make(map[string]struct{}, len(sales))
	for _, sale := range sales {
		saleIDs[sale.ID] = struct{}{}
	}
	totals := make(map[string]float64)
	for _, payment := range payments {
		if _, ok := saleIDs[payment.SaleID]; !ok {
			continue
		}
		method := payment.Method
		if method == "" {
			method = "cash"
		}
		totals[method] += payment.Amount
	}
	for method, amount := range totals {
		totals[method] = domain.Round2(amount)
	}
	return totals
}

// Daily builds the Z-report for one day's completed sales.
func Daily(date time.Time, sales []domain.Sale, payments []domain.Payment) ZReport {
	return ZReport{
		Date:             date.Format("2006-01-02"),
		Revenue:          Revenue(sales),
		TotalCommission:  CommissionEarned(sales),
		TransactionCount: len(sales),
		PaymentMethods:   PaymentMethodTotals(sales, payments),
	}
}

// Summary builds the financial summary for a window. previousSales and
// previousExpenses, when non-nil, come from the immediately preceding window
// of equal length and drive the period-over-period variance figures.
func Summary(
	from, to time.Time,
	sales []domain.Sale,
	expenses []domain.Expense,
	commissionPaid float64,
	previousSales []domain.Sale,
	previousExpenses []domain.Expense,
) FinancialSummary {
	revenue := Revenue(sales)
	commissionEarned := CommissionEarned(sales)

	totalExpenses := 0.0
	byCategory := make(map[string]float64)
	for _, expense := range expenses {
		totalExpenses += expense.Amount
		category := expense.Category
		if category == "" {
			category = "other"
		}
		byCategory[category] += expense.Amount
	}
	for category, amount := range byCategory {
		byCategory[category] = domain.Round2(amount)
	}

	netProfit := revenue.TotalRevenue - totalExpenses - commissionEarned
	margin := 0.0
	if revenue.TotalRevenue > 0 {
		margin = netProfit / revenue.TotalRevenue * 100
	}

	summary := FinancialSummary{
		PeriodStart:            from.Format("2006-01-02"),
		PeriodEnd:              to.Format("2006-01-02"),
		Revenue:                revenue,
		TotalExpenses:          domain.Round2(totalExpenses),
		ExpensesByCategory:     byCategory,
		TotalCommissionEarned:  commissionEarned,
		TotalCommissionPaid:    domain.Round2(commissionPaid),
		TotalCommissionPending: domain.Round2(commissionEarned - commissionPaid),
		NetProfit:              domain.Round2(netProfit),
		ProfitMarginPercent:    domain.Round2(margin),
	}

	if previousSales != nil || previousExpenses != nil {
		prevRevenue := Revenue(previousSales)
		prevExpensesTotal := 0.0
		for _, expense := range previousExpenses {
			prevExpensesTotal += expense.Amount
		}
		prevProfit := prevRevenue.TotalRevenue - prevExpensesTotal - CommissionEarned(previousSales)
		summary.RevenueVariance = variance(revenue.TotalRevenue, prevRevenue.TotalRevenue)
		summary.ProfitVariance = variance(netProfit, prevProfit)
	}

	return summary
}

func variance(current, previous float64) *PeriodVariance {
	v := &PeriodVariance{
		PreviousValue: domain.Round2(previous),
		Delta:         domain.Round2(current - previous),
	}
	if previous != 0 {
		v.DeltaPercent = domain.Round2((current - previous) / previous * 100)
	}
	return v
}

// Tax builds the monthly VAT filing report.
func Tax(month string, from, to time.Time, sales []domain.Sale) TaxReport {
	total := 0.0
	for _, sale := range sales {
		total += sale.TotalAmount
	}
	vat := total * domain.VATRate / (1 + domain.VATRate)
	return TaxReport{
		Month:            month,
		PeriodStart:      from.Format("2006-01-02"),
		PeriodEnd:        to.Format("2006-01-02"),
		TotalSales:       domain.Round2(total),
		SalesBeforeVAT:   domain.Round2(total - vat),
		VATCollected:     domain.Round2(vat),
		VATRate:          domain.VATRate,
		TransactionCount: len(sales),
	}
}

// PendingByStaff aggregates earned commission per staff member over completed
// sales, nets it against disbursed amounts, and reports both the raw totals
// and the positive pending balances. staffNames maps staff id to display name.
func PendingByStaff(
	sales []domain.Sale,
	paidByStaff map[string]float64,
	staffNames map[string]string,
) []domain.StaffPendingCommission {
	byStaff := make(map[string]*domain.StaffPendingCommission)
	order := make([]string, 0, 8)
	for _, sale := range sales {
		if sale.StaffID == "" {
			continue
		}
		entry, ok := byStaff[sale.StaffID]
		if !ok {
			name := staffNames[sale.StaffID]
			if name == "" {
				name = "Staff " + sale.StaffID
			}
			entry = &domain.StaffPendingCommission{StaffID: sale.StaffID, StaffName: name}
			byStaff[sale.StaffID] = entry
			order = append(order, sale.StaffID)
		}
		entry.TotalSales += sale.Subtotal
		entry.TotalCommission += sale.CommissionAmount
		entry.TransactionCount++
	}

	result := make([]domain.StaffPendingCommission, 0, len(order))
	for _, staffID := range order {
		entry := byStaff[staffID]
		paid := paidByStaff[staffID]
		entry.TotalSales = domain.Round2(entry.TotalSales)
		entry.TotalCommission = domain.Round2(entry.TotalCommission)
		entry.PaidAmount = domain.Round2(paid)
		entry.PendingAmount = domain.Round2(entry.TotalCommission - paid)
		result = append(result, *entry)
	}
	return result
}

// Payout builds the commission payout report over a window.
func Payout(from, to time.Time, sales []domain.Sale, paidByStaff map[string]float64, staffNames map[string]string) CommissionPayoutReport {
	staff := PendingByStaff(sales, paidByStaff, staffNames)
	totalCommission := 0.0
	totalPaid := 0.0
	totalPending := 0.0
	for _, entry := range staff {
		totalCommission += entry.TotalCommission
		totalPaid += entry.PaidAmount
		totalPending += entry.PendingAmount
	}
	return CommissionPayoutReport{
		StartDate:        from.Format("2006-01-02"),
		EndDate:          to.Format("2006-01-02"),
		StaffCommissions: staff,
		TotalCommission:  domain.Round2(totalCommission),
		TotalPaid:        domain.Round2(totalPaid),
		TotalPending:     domain.Round2(totalPending),
		TotalStaff:       len(staff),
	}
}
