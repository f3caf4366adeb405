package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
	"github.com/GibsonWaheire/POS-salon/internal/report"
	"github.com/GibsonWaheire/POS-salon/internal/store"
)

const reportCacheTTL = 5 * time.Minute

// invalidateReports drops cached report payloads for the partition after any
// write that changes the numbers.
func (s *Service) invalidateReports(ctx context.Context, partition domain.Partition) {
	if err := s.reports.Invalidate(ctx, fmt.Sprintf("report:*:%s:*", partition)); err != nil {
		log.Printf("[service] WARN: report cache invalidation failed: %v", err)
	}
}

// cachedReport runs build under a cache key, serving the cached JSON when
// present. Cache failures degrade to computing fresh.
func cachedReport[T any](ctx context.Context, s *Service, key string, build func() (T, error)) (T, error) {
	var zero T
	if raw, ok, err := s.reports.Get(ctx, key); err == nil && ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	} else if err != nil {
		log.Printf("[service] WARN: report cache read failed key=%s: %v", key, err)
	}
	value, err := build()
	if err != nil {
		return zero, err
	}
	if raw, err := json.Marshal(value); err == nil {
		if err := s.reports.Set(ctx, key, raw, reportCacheTTL); err != nil {
			log.Printf("[service] WARN: report cache write failed key=%s: %v", key, err)
		}
	}
	return value, nil
}

// DailyReport is the Z-report for one day, today by default.
func (s *Service) DailyReport(ctx context.Context, partition domain.Partition, dateStr string) (report.ZReport, error) {
	day := time.Now().UTC()
	if dateStr != "" {
		parsed, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			return report.ZReport{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrValidation)
		}
		day = parsed
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := endOfDay(dayStart)

	key := fmt.Sprintf("report:z:%s:%s", partition, dayStart.Format("2006-01-02"))
	return cachedReport(ctx, s, key, func() (report.ZReport, error) {
		sales, err := s.repo.ListCompletedSales(ctx, partition, &dayStart, &dayEnd, "")
		if err != nil {
			return report.ZReport{}, err
		}
		payments, err := s.repo.ListPayments(ctx, partition, &dayStart, &dayEnd)
		if err != nil {
			return report.ZReport{}, err
		}
		return report.Daily(dayStart, sales, payments), nil
	})
}

// FinancialSummary covers a date window, defaulting to the current calendar
// month to date, with variance against the preceding window of equal length.
func (s *Service) FinancialSummary(ctx context.Context, partition domain.Partition, startStr, endStr string) (report.FinancialSummary, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := endOfDay(now)
	if startStr != "" || endStr != "" {
		var err error
		from, to, err = periodOrCurrentWeek(startStr, endStr)
		if err != nil {
			return report.FinancialSummary{}, err
		}
	}

	key := fmt.Sprintf("report:summary:%s:%s:%s", partition, from.Format("2006-01-02"), to.Format("2006-01-02"))
	return cachedReport(ctx, s, key, func() (report.FinancialSummary, error) {
		sales, err := s.repo.ListCompletedSales(ctx, partition, &from, &to, "")
		if err != nil {
			return report.FinancialSummary{}, err
		}
		expenses, err := s.repo.ListExpenses(ctx, partition, &from, &to, "")
		if err != nil {
			return report.FinancialSummary{}, err
		}
		paidByStaff, err := s.repo.SumCommissionPaidByStaff(ctx, partition)
		if err != nil {
			return report.FinancialSummary{}, err
		}
		paid := 0.0
		for _, amount := range paidByStaff {
			paid += amount
		}

		span := to.Sub(from)
		prevTo := from.Add(-time.Second)
		prevFrom := prevTo.Add(-span)
		prevSales, err := s.repo.ListCompletedSales(ctx, partition, &prevFrom, &prevTo, "")
		if err != nil {
			return report.FinancialSummary{}, err
		}
		prevExpenses, err := s.repo.ListExpenses(ctx, partition, &prevFrom, &prevTo, "")
		if err != nil {
			return report.FinancialSummary{}, err
		}
		return report.Summary(from, to, sales, expenses, paid, prevSales, prevExpenses), nil
	})
}

// TaxReport is the monthly VAT filing view. month is YYYY-MM, current month
// by default.
func (s *Service) TaxReport(ctx context.Context, partition domain.Partition, month string) (report.TaxReport, error) {
	now := time.Now().UTC()
	if month == "" {
		month = now.Format("2006-01")
	}
	firstDay, err := time.Parse("2006-01", month)
	if err != nil {
		return report.TaxReport{}, fmt.Errorf("%w: month must be YYYY-MM", store.ErrValidation)
	}
	from := firstDay
	to := endOfDay(firstDay.AddDate(0, 1, -1))

	key := fmt.Sprintf("report:tax:%s:%s", partition, month)
	return cachedReport(ctx, s, key, func() (report.TaxReport, error) {
		sales, err := s.repo.ListCompletedSales(ctx, partition, &from, &to, "")
		if err != nil {
			return report.TaxReport{}, err
		}
		return report.Tax(month, from, to, sales), nil
	})
}

// CommissionPayoutReport covers a window, the current week by default.
func (s *Service) CommissionPayoutReport(ctx context.Context, partition domain.Partition, startStr, endStr string) (report.CommissionPayoutReport, error) {
	from, to, err := periodOrCurrentWeek(startStr, endStr)
	if err != nil {
		return report.CommissionPayoutReport{}, err
	}

	key := fmt.Sprintf("report:payout:%s:%s:%s", partition, from.Format("2006-01-02"), to.Format("2006-01-02"))
	return cachedReport(ctx, s, key, func() (report.CommissionPayoutReport, error) {
		sales, err := s.repo.ListCompletedSales(ctx, partition, &from, &to, "")
		if err != nil {
			return report.CommissionPayoutReport{}, err
		}
		paid, err := s.repo.SumCommissionPaidByStaff(ctx, partition)
		if err != nil {
			return report.CommissionPayoutReport{}, err
		}
		names, err := s.staffNames(ctx)
		if err != nil {
			return report.CommissionPayoutReport{}, err
		}
		return report.Payout(from, to, sales, paid, names), nil
	})
}

// ActivateSubscription records a successful gateway charge. Redelivered
// webhook events are absorbed: the external reference is the idempotency key.
func (s *Service) ActivateSubscription(ctx context.Context, accountID, planName, externalReference string) (bool, error) {
	created, err := s.repo.CreateSubscriptionIfNew(ctx, domain.Subscription{
		AccountID:         accountID,
		PlanName:          planName,
		Status:            "active",
		ExternalReference: externalReference,
	})
	if err != nil {
		return false, err
	}
	if created {
		log.Printf("[service] subscription activated plan=%s ref=%s", planName, externalReference)
	} else {
		log.Printf("[service] subscription event replayed ref=%s, ignoring", externalReference)
	}
	return created, nil
}
