package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyCompleted  = errors.New("sale already completed")
	ErrDuplicateReceipt  = errors.New("duplicate receipt number")
)

// StockError reports which product blocked a sale completion and by how much.
// It unwraps to ErrInsufficientStock.
type StockError struct {
	ProductID   string
	ProductName string
	Available   float64
	Required    float64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %.2f, required %.2f",
		e.ProductName, e.Available, e.Required)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// Repository is the persistence contract shared by the postgres and in-memory
// stores. Methods that read or write partitioned rows take an explicit
// domain.Partition; none of them consult ambient request state.
type Repository interface {
	// Staff and sessions.
	CreateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error)
	GetStaff(ctx context.Context, id string) (*domain.Staff, error)
	ListStaff(ctx context.Context) ([]domain.Staff, error)
	UpdateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error)
	DeleteStaff(ctx context.Context, id string) error
	RecordStaffLogin(ctx context.Context, entry domain.StaffLoginLog) (*domain.StaffLoginLog, error)
	CloseStaffLogin(ctx context.Context, loginLogID string, staffID string, at time.Time) (*domain.StaffLoginLog, error)
	ListStaffLoginHistory(ctx context.Context, staffID string, from, to *time.Time, limit int) ([]domain.StaffLoginLog, error)
	// PurgeDemoData removes every demo-partition row created through the given
	// demo staff member's session (sales with lines, usage entries, payments,
	// orphaned demo customers, expenses).
	PurgeDemoData(ctx context.Context, staffID string) error

	// Customers.
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	FindCustomerByPhone(ctx context.Context, partition domain.Partition, phone string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, partition domain.Partition, limit int) ([]domain.Customer, error)

	// Service catalog.
	CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error)
	GetService(ctx context.Context, id string) (*domain.Service, error)
	FindServiceByName(ctx context.Context, name string) (*domain.Service, error)
	ListServices(ctx context.Context) ([]domain.Service, error)
	UpdateService(ctx context.Context, svc domain.Service) (*domain.Service, error)
	DeleteService(ctx context.Context, id string) error

	// Product inventory. Stock quantities are mutated only by CompleteSale and
	// explicit product updates.
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context, partition domain.Partition) ([]domain.Product, error)
	ListLowStockProducts(ctx context.Context, partition domain.Partition) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// Sales. CreateSale persists the sale header and all lines as one unit and
	// owns sale-number uniqueness (regenerate-on-conflict). CompleteSale is the
	// atomic completion transaction: stock check+deduction, usage entries,
	// payment row, status flip, customer loyalty.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSales(ctx context.Context, partition domain.Partition, filter domain.SaleListFilter) ([]domain.Sale, error)
	CompleteSale(ctx context.Context, saleID string, payment domain.Payment, at time.Time) (*domain.Sale, *domain.Payment, error)
	ListCompletedSales(ctx context.Context, partition domain.Partition, from, to *time.Time, staffID string) ([]domain.Sale, error)

	// Payments.
	ListPayments(ctx context.Context, partition domain.Partition, from, to *time.Time) ([]domain.Payment, error)

	// Payroll disbursements. CreateCommissionPayment persists the payment and
	// every item as one unit and owns receipt-number uniqueness.
	CreateCommissionPayment(ctx context.Context, payment domain.CommissionPayment) (*domain.CommissionPayment, error)
	GetCommissionPayment(ctx context.Context, id string) (*domain.CommissionPayment, error)
	ListCommissionPayments(ctx context.Context, partition domain.Partition, staffID string) ([]domain.CommissionPayment, error)
	// SumCommissionPaidByStaff returns disbursed commission per staff id,
	// using gross_pay and falling back to amount_paid for legacy rows.
	SumCommissionPaidByStaff(ctx context.Context, partition domain.Partition) (map[string]float64, error)

	// Expenses.
	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, id string) (*domain.Expense, error)
	ListExpenses(ctx context.Context, partition domain.Partition, from, to *time.Time, category string) ([]domain.Expense, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	// Appointments (legacy payment-per-appointment path).
	CreateAppointment(ctx context.Context, appt domain.Appointment) (*domain.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*domain.Appointment, error)
	ListAppointments(ctx context.Context, partition domain.Partition, from, to *time.Time, status string) ([]domain.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, status string) (*domain.Appointment, error)
	CompleteAppointment(ctx context.Context, id string, payment domain.Payment, at time.Time) (*domain.Appointment, *domain.Payment, error)

	// Subscriptions. Insert is idempotent on ExternalReference; created is
	// false when the reference was already recorded.
	CreateSubscriptionIfNew(ctx context.Context, sub domain.Subscription) (created bool, err error)
}
