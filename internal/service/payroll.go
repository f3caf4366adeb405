package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
	"github.com/GibsonWaheire/POS-salon/internal/payroll"
	"github.com/GibsonWaheire/POS-salon/internal/report"
	"github.com/GibsonWaheire/POS-salon/internal/store"
)

// periodOrCurrentWeek parses YYYY-MM-DD period bounds, defaulting to the
// Monday-Sunday week containing today. The end bound is pushed to the end of
// its day so same-day sales are included.
func periodOrCurrentWeek(startStr, endStr string) (time.Time, time.Time, error) {
	if startStr == "" && endStr == "" {
		monday, sunday := domain.CurrentWeekRange(time.Now().UTC())
		return monday, endOfDay(sunday), nil
	}
	start, err := time.Parse("2006-01-02", startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: period_start must be YYYY-MM-DD", store.ErrValidation)
	}
	end, err := time.Parse("2006-01-02", endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: period_end must be YYYY-MM-DD", store.ErrValidation)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: period_end is before period_start", store.ErrValidation)
	}
	return start, endOfDay(end), nil
}

func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, time.UTC)
}

// optionalPeriod parses YYYY-MM-DD bounds that may each be absent. A nil
// bound means unbounded on that side.
func optionalPeriod(startStr, endStr string) (*time.Time, *time.Time, error) {
	var from, to *time.Time
	if startStr != "" {
		start, err := time.Parse("2006-01-02", startStr)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: period_start must be YYYY-MM-DD", store.ErrValidation)
		}
		from = &start
	}
	if endStr != "" {
		end, err := time.Parse("2006-01-02", endStr)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: period_end must be YYYY-MM-DD", store.ErrValidation)
		}
		end = endOfDay(end)
		to = &end
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, fmt.Errorf("%w: period_end is before period_start", store.ErrValidation)
	}
	return from, to, nil
}

func (s *Service) staffNames(ctx context.Context) (map[string]string, error) {
	staff, err := s.repo.ListStaff(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(staff))
	for _, st := range staff {
		names[st.ID] = st.Name
	}
	return names, nil
}

// PendingCommissions reports, per staff member, commission earned on
// completed sales net of amounts already disbursed. The window spans all
// time unless bounds are given, and an optional staffID narrows the view to
// one person. Staff with nothing outstanding are left out.
func (s *Service) PendingCommissions(ctx context.Context, partition domain.Partition, startStr, endStr, staffID string) (domain.PendingCommissionsResponse, error) {
	from, to, err := optionalPeriod(startStr, endStr)
	if err != nil {
		return domain.PendingCommissionsResponse{}, err
	}
	sales, err := s.repo.ListCompletedSales(ctx, partition, from, to, strings.TrimSpace(staffID))
	if err != nil {
		return domain.PendingCommissionsResponse{}, err
	}
	paid, err := s.repo.SumCommissionPaidByStaff(ctx, partition)
	if err != nil {
		return domain.PendingCommissionsResponse{}, err
	}
	names, err := s.staffNames(ctx)
	if err != nil {
		return domain.PendingCommissionsResponse{}, err
	}

	all := report.PendingByStaff(sales, paid, names)
	resp := domain.PendingCommissionsResponse{PendingCommissions: make([]domain.StaffPendingCommission, 0, len(all))}
	for _, entry := range all {
		resp.TotalCommission = domain.Round2(resp.TotalCommission + entry.TotalCommission)
		if entry.PendingAmount <= 0 {
			continue
		}
		resp.PendingCommissions = append(resp.PendingCommissions, entry)
		resp.TotalPending = domain.Round2(resp.TotalPending + entry.PendingAmount)
	}
	return resp, nil
}

// StaffPerformance summarizes completed-sale activity per staff member over
// the period: sales volume, transaction count, commission earned and what of
// it is still outstanding. Unlike PendingCommissions it lists everyone.
func (s *Service) StaffPerformance(ctx context.Context, partition domain.Partition, startStr, endStr string) ([]domain.StaffPendingCommission, error) {
	from, to, err := periodOrCurrentWeek(startStr, endStr)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListCompletedSales(ctx, partition, &from, &to, "")
	if err != nil {
		return nil, err
	}
	paid, err := s.repo.SumCommissionPaidByStaff(ctx, partition)
	if err != nil {
		return nil, err
	}
	names, err := s.staffNames(ctx)
	if err != nil {
		return nil, err
	}
	return report.PendingByStaff(sales, paid, names), nil
}

// CreateCommissionPayment records a payroll disbursement. When
// auto-population is on (the default), one commission earning per service
// line on the staff member's completed sales in the period is appended to
// whatever earnings the caller supplied.
func (s *Service) CreateCommissionPayment(ctx context.Context, partition domain.Partition, req domain.CommissionPaymentRequest) (domain.CommissionPayment, error) {
	staff, err := s.repo.GetStaff(ctx, strings.TrimSpace(req.StaffID))
	if err != nil {
		return domain.CommissionPayment{}, err
	}
	from, to, err := periodOrCurrentWeek(req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return domain.CommissionPayment{}, err
	}
	if req.PaymentMethod != "" && !validPaymentMethod(strings.ToLower(req.PaymentMethod)) {
		return domain.CommissionPayment{}, fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, req.PaymentMethod)
	}
	if strings.EqualFold(req.PaymentMethod, "mpesa") && strings.TrimSpace(req.TransactionReference) != "" {
		code, err := NormalizeMpesaCode(req.TransactionReference)
		if err != nil {
			return domain.CommissionPayment{}, err
		}
		req.TransactionReference = code
	}

	var items []domain.CommissionPaymentItem
	for _, input := range req.Earnings {
		if input.IsPercentage {
			return domain.CommissionPayment{}, fmt.Errorf("%w: percentage earnings are not supported", store.ErrValidation)
		}
		if input.Amount < 0 {
			return domain.CommissionPayment{}, fmt.Errorf("%w: earning amount cannot be negative", store.ErrValidation)
		}
		items = append(items, domain.CommissionPaymentItem{
			Type:          domain.PayrollItemEarning,
			Name:          strings.TrimSpace(input.Name),
			Amount:        domain.Round2(input.Amount),
			Notes:         input.Notes,
			SaleID:        input.SaleID,
			SaleServiceID: input.SaleServiceID,
			ServiceName:   input.ServiceName,
			SaleNumber:    input.SaleNumber,
		})
	}

	autoPopulate := req.AutoPopulateCommissions == nil || *req.AutoPopulateCommissions
	if autoPopulate {
		sales, err := s.repo.ListCompletedSales(ctx, partition, &from, &to, staff.ID)
		if err != nil {
			return domain.CommissionPayment{}, err
		}
		items = append(items, payroll.CommissionEarnings(sales)...)
	}
	if len(items) == 0 {
		return domain.CommissionPayment{}, fmt.Errorf("%w: no earnings to pay out for the period", store.ErrValidation)
	}

	for _, input := range req.Deductions {
		if input.Amount < 0 {
			return domain.CommissionPayment{}, fmt.Errorf("%w: deduction amount cannot be negative", store.ErrValidation)
		}
		if input.IsPercentage && !input.PercentageOf.Valid() {
			return domain.CommissionPayment{}, fmt.Errorf("%w: percentage deductions need percentage_of gross_pay or base_pay", store.ErrValidation)
		}
		items = append(items, domain.CommissionPaymentItem{
			Type:         domain.PayrollItemDeduction,
			Name:         strings.TrimSpace(input.Name),
			Amount:       input.Amount,
			IsPercentage: input.IsPercentage,
			PercentageOf: input.PercentageOf,
			Notes:        input.Notes,
		})
	}

	var basePay *float64
	switch {
	case req.BasePay != nil:
		if *req.BasePay < 0 {
			return domain.CommissionPayment{}, fmt.Errorf("%w: base pay cannot be negative", store.ErrValidation)
		}
		basePay = req.BasePay
	case staff.BasePay > 0:
		v := staff.BasePay
		basePay = &v
	}

	gross := payroll.GrossPay(items)
	deductions := payroll.TotalDeductions(items, &gross, basePay)
	net := payroll.NetPay(gross, deductions)

	payment := domain.CommissionPayment{
		StaffID:              staff.ID,
		AmountPaid:           net,
		GrossPay:             gross,
		TotalDeductions:      deductions,
		NetPay:               net,
		PaymentDate:          time.Now().UTC(),
		PeriodStart:          from,
		PeriodEnd:            to,
		Method:               strings.ToLower(strings.TrimSpace(req.PaymentMethod)),
		TransactionReference: strings.TrimSpace(req.TransactionReference),
		ReceiptNumber:        strings.TrimSpace(req.ReceiptNumber),
		PaidBy:               strings.TrimSpace(req.PaidBy),
		Notes:                strings.TrimSpace(req.Notes),
		Partition:            partition,
		Items:                items,
	}
	if basePay != nil {
		payment.BasePay = *basePay
	}

	created, err := s.repo.CreateCommissionPayment(ctx, payment)
	if err != nil {
		return domain.CommissionPayment{}, err
	}
	log.Printf("[service] commission payment receipt=%s staff=%s gross=%.2f net=%.2f",
		created.ReceiptNumber, created.StaffID, created.GrossPay, created.NetPay)
	s.invalidateReports(ctx, partition)
	return *created, nil
}

func (s *Service) GetCommissionPayment(ctx context.Context, id string) (domain.CommissionPayment, error) {
	cp, err := s.repo.GetCommissionPayment(ctx, id)
	if err != nil {
		return domain.CommissionPayment{}, err
	}
	return *cp, nil
}

func (s *Service) ListCommissionPayments(ctx context.Context, partition domain.Partition, staffID string) ([]domain.CommissionPayment, error) {
	return s.repo.ListCommissionPayments(ctx, partition, staffID)
}

// PayslipData is everything a front end needs to render a payslip.
type PayslipData struct {
	Payment   domain.CommissionPayment `json:"payment"`
	StaffName string                   `json:"staff_name"`
	StaffRole string                   `json:"staff_role,omitempty"`
}

func (s *Service) Payslip(ctx context.Context, paymentID string) (PayslipData, error) {
	cp, err := s.repo.GetCommissionPayment(ctx, paymentID)
	if err != nil {
		return PayslipData{}, err
	}
	data := PayslipData{Payment: *cp}
	if staff, err := s.repo.GetStaff(ctx, cp.StaffID); err == nil {
		data.StaffName = staff.Name
		data.StaffRole = staff.Role
	}
	return data, nil
}
