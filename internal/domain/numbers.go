package domain

import (
	"fmt"
	"strings"
	"time"
)

// NewSaleNumber builds a sale number of the form SALE-YYYYMMDD-HHMMSS-NNN.
// Uniqueness is enforced by the store's unique constraint; on conflict the
// store regenerates with a bumped sequence.
func NewSaleNumber(at time.Time, seq int) string {
	return fmt.Sprintf("SALE-%s-%s-%03d", at.Format("20060102"), at.Format("150405"), seq)
}

// NewSaleReceiptNumber derives the default receipt number for a completed
// sale from its sale number.
func NewSaleReceiptNumber(saleNumber string) string {
	return "RCP-" + strings.TrimPrefix(saleNumber, "SALE-")
}

// NewCommissionReceiptNumber builds a payroll receipt number of the form
// COMM-YYYYMMDD-NNNN. Same uniqueness contract as NewSaleNumber.
func NewCommissionReceiptNumber(at time.Time, seq int) string {
	return fmt.Sprintf("COMM-%s-%04d", at.Format("20060102"), seq)
}

// CurrentWeekRange returns the Monday and Sunday of the week containing at,
// truncated to dates in UTC.
func CurrentWeekRange(at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	monday := day.AddDate(0, 0, -offset)
	sunday := monday.AddDate(0, 0, 6)
	return monday, sunday
}
