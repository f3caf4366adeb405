// Package service holds the business rules between the HTTP layer and the
// store: request validation, price and commission math, payroll assembly and
// report caching. Handlers translate its errors onto HTTP statuses via the
// store sentinel errors.
package service

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/GibsonWaheire/POS-salon/internal/cache"
	"github.com/GibsonWaheire/POS-salon/internal/domain"
	"github.com/GibsonWaheire/POS-salon/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// defaultCommissionRate applies to catalog services created without an
// explicit rate.
const defaultCommissionRate = 0.40

type Service struct {
	repo    store.Repository
	reports cache.ReportCache
}

func New(repo store.Repository, reports cache.ReportCache) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	return &Service{repo: repo, reports: reports}
}

var mpesaCodePattern = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// NormalizeMpesaCode uppercases and validates an M-Pesa confirmation code.
// Valid codes are exactly ten alphanumeric characters.
func NormalizeMpesaCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !mpesaCodePattern.MatchString(code) {
		return "", fmt.Errorf("%w: m-pesa code must be exactly 10 letters or digits", store.ErrValidation)
	}
	return code, nil
}

func validPaymentMethod(method string) bool {
	switch method {
	case "cash", "mpesa", "card":
		return true
	}
	return false
}

// validatePaymentInput normalizes the method and, for M-Pesa, the
// transaction code. Codes are optional; a supplied code must be well formed.
func validatePaymentInput(method string, transactionCode string) (string, string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = "cash"
	}
	if !validPaymentMethod(method) {
		return "", "", fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, method)
	}
	transactionCode = strings.TrimSpace(transactionCode)
	if method == "mpesa" && transactionCode != "" {
		code, err := NormalizeMpesaCode(transactionCode)
		if err != nil {
			return "", "", err
		}
		return method, code, nil
	}
	return method, transactionCode, nil
}

// Staff.

func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.Staff, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if req.Name == "" {
		return domain.Staff{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.Role == "" {
		req.Role = "stylist"
	}
	if req.BasePay < 0 {
		return domain.Staff{}, fmt.Errorf("%w: base pay cannot be negative", store.ErrValidation)
	}
	hash, err := HashPIN(req.PIN)
	if err != nil {
		return domain.Staff{}, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	created, err := s.repo.CreateStaff(ctx, domain.Staff{
		Name:      req.Name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Role:      req.Role,
		PINHash:   hash,
		Active:    active,
		BasePay:   req.BasePay,
		Partition: domain.ParsePartition(req.Demo),
	})
	if err != nil {
		return domain.Staff{}, err
	}
	return *created, nil
}

func (s *Service) GetStaff(ctx context.Context, id string) (domain.Staff, error) {
	staff, err := s.repo.GetStaff(ctx, id)
	if err != nil {
		return domain.Staff{}, err
	}
	return *staff, nil
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.Staff, error) {
	return s.repo.ListStaff(ctx)
}

func (s *Service) UpdateStaff(ctx context.Context, id string, req domain.StaffUpdateRequest) (domain.Staff, error) {
	current, err := s.repo.GetStaff(ctx, id)
	if err != nil {
		return domain.Staff{}, err
	}
	staff := *current
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Staff{}, fmt.Errorf("%w: name cannot be empty", store.ErrValidation)
		}
		staff.Name = name
	}
	if req.Phone != nil {
		staff.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		staff.Email = strings.TrimSpace(*req.Email)
	}
	if req.Role != nil {
		staff.Role = strings.ToLower(strings.TrimSpace(*req.Role))
	}
	if req.Active != nil {
		staff.Active = *req.Active
	}
	if req.BasePay != nil {
		if *req.BasePay < 0 {
			return domain.Staff{}, fmt.Errorf("%w: base pay cannot be negative", store.ErrValidation)
		}
		staff.BasePay = *req.BasePay
	}
	if req.PIN != nil {
		hash, err := HashPIN(*req.PIN)
		if err != nil {
			return domain.Staff{}, err
		}
		staff.PINHash = hash
	}
	updated, err := s.repo.UpdateStaff(ctx, staff)
	if err != nil {
		return domain.Staff{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteStaff(ctx context.Context, id string) error {
	return s.repo.DeleteStaff(ctx, id)
}

// Authenticate verifies a staff PIN for login. The error is the same for an
// unknown account and a wrong PIN.
func (s *Service) Authenticate(ctx context.Context, staffID string, pin string) (domain.Staff, error) {
	staff, err := s.repo.GetStaff(ctx, strings.TrimSpace(staffID))
	if err != nil {
		return domain.Staff{}, store.ErrNotFound
	}
	if !staff.Active {
		return domain.Staff{}, store.ErrNotFound
	}
	if !CheckPIN(staff.PINHash, pin) {
		return domain.Staff{}, store.ErrNotFound
	}
	return *staff, nil
}

func (s *Service) RecordLogin(ctx context.Context, staffID string, ipAddress string, demoExpiresAt *time.Time) (domain.StaffLoginLog, error) {
	entry, err := s.repo.RecordStaffLogin(ctx, domain.StaffLoginLog{
		StaffID:       staffID,
		LoginTime:     time.Now().UTC(),
		IPAddress:     ipAddress,
		DemoExpiresAt: demoExpiresAt,
	})
	if err != nil {
		return domain.StaffLoginLog{}, err
	}
	return *entry, nil
}

// Logout closes the login-log session. Demo sessions additionally purge
// every row the demo account created, so the sandbox resets between visits.
func (s *Service) Logout(ctx context.Context, actor domain.Actor, req domain.LogoutRequest) error {
	staffID := req.StaffID
	if staffID == "" {
		staffID = actor.StaffID
	}
	if _, err := s.repo.CloseStaffLogin(ctx, req.LoginLogID, staffID, time.Now().UTC()); err != nil {
		log.Printf("[service] WARN: failed to close login log staff=%s: %v", staffID, err)
	}
	if actor.Demo {
		if err := s.repo.PurgeDemoData(ctx, staffID); err != nil {
			return err
		}
		s.invalidateReports(ctx, domain.PartitionDemo)
	}
	return nil
}

func (s *Service) ListLoginHistory(ctx context.Context, staffID string, from, to *time.Time, limit int) ([]domain.StaffLoginLog, error) {
	return s.repo.ListStaffLoginHistory(ctx, staffID, from, to, limit)
}

// Customers.

// CreateCustomer is get-or-create on phone number within the partition:
// walk-in flows repeatedly submit the same customer.
func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	partition := domain.ParsePartition(req.Demo)
	if req.Phone != "" {
		if existing, err := s.repo.FindCustomerByPhone(ctx, partition, req.Phone); err == nil {
			return *existing, nil
		}
	}
	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     strings.TrimSpace(req.Email),
		Partition: partition,
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *c, nil
}

func (s *Service) ListCustomers(ctx context.Context, partition domain.Partition, limit int) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, partition, limit)
}

// Service catalog.

func (s *Service) CreateCatalogService(ctx context.Context, req domain.ServiceCreateRequest) (domain.Service, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Service{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.Price < 0 {
		return domain.Service{}, fmt.Errorf("%w: price cannot be negative", store.ErrValidation)
	}
	rate := defaultCommissionRate
	if req.CommissionRate != nil {
		rate = *req.CommissionRate
	}
	if rate < 0 || rate > 1 {
		return domain.Service{}, fmt.Errorf("%w: commission rate must be between 0 and 1", store.ErrValidation)
	}
	created, err := s.repo.CreateService(ctx, domain.Service{
		Name:            req.Name,
		Description:     strings.TrimSpace(req.Description),
		Category:        strings.TrimSpace(req.Category),
		Price:           domain.Round2(req.Price),
		DurationMinutes: req.DurationMinutes,
		CommissionRate:  rate,
	})
	if err != nil {
		return domain.Service{}, err
	}
	return *created, nil
}

func (s *Service) GetCatalogService(ctx context.Context, id string) (domain.Service, error) {
	svc, err := s.repo.GetService(ctx, id)
	if err != nil {
		return domain.Service{}, err
	}
	return *svc, nil
}

func (s *Service) ListCatalogServices(ctx context.Context) ([]domain.Service, error) {
	return s.repo.ListServices(ctx)
}

func (s *Service) UpdateCatalogService(ctx context.Context, id string, req domain.ServiceCreateRequest) (domain.Service, error) {
	current, err := s.repo.GetService(ctx, id)
	if err != nil {
		return domain.Service{}, err
	}
	svc := *current
	if name := strings.TrimSpace(req.Name); name != "" {
		svc.Name = name
	}
	if req.Description != "" {
		svc.Description = strings.TrimSpace(req.Description)
	}
	if req.Category != "" {
		svc.Category = strings.TrimSpace(req.Category)
	}
	if req.Price > 0 {
		svc.Price = domain.Round2(req.Price)
	}
	if req.DurationMinutes > 0 {
		svc.DurationMinutes = req.DurationMinutes
	}
	if req.CommissionRate != nil {
		if *req.CommissionRate < 0 || *req.CommissionRate > 1 {
			return domain.Service{}, fmt.Errorf("%w: commission rate must be between 0 and 1", store.ErrValidation)
		}
		svc.CommissionRate = *req.CommissionRate
	}
	updated, err := s.repo.UpdateService(ctx, svc)
	if err != nil {
		return domain.Service{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteCatalogService(ctx context.Context, id string) error {
	return s.repo.DeleteService(ctx, id)
}

// Products.

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.SellingPrice < 0 || req.UnitPrice < 0 || req.StockQuantity < 0 || req.MinStockLevel < 0 {
		return domain.Product{}, fmt.Errorf("%w: prices and quantities cannot be negative", store.ErrValidation)
	}
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:          req.Name,
		Category:      strings.TrimSpace(req.Category),
		UnitPrice:     domain.Round2(req.UnitPrice),
		SellingPrice:  domain.Round2(req.SellingPrice),
		StockQuantity: req.StockQuantity,
		MinStockLevel: req.MinStockLevel,
		Partition:     domain.ParsePartition(req.Demo),
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *p, nil
}

func (s *Service) ListProducts(ctx context.Context, partition domain.Partition) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, partition)
}

func (s *Service) ListLowStockProducts(ctx context.Context, partition domain.Partition) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx, partition)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	current, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	product := *current
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name cannot be empty", store.ErrValidation)
		}
		product.Name = name
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.UnitPrice != nil {
		if *req.UnitPrice < 0 {
			return domain.Product{}, fmt.Errorf("%w: unit price cannot be negative", store.ErrValidation)
		}
		product.UnitPrice = domain.Round2(*req.UnitPrice)
	}
	if req.SellingPrice != nil {
		if *req.SellingPrice < 0 {
			return domain.Product{}, fmt.Errorf("%w: selling price cannot be negative", store.ErrValidation)
		}
		product.SellingPrice = domain.Round2(*req.SellingPrice)
	}
	if req.StockQuantity != nil {
		if *req.StockQuantity < 0 {
			return domain.Product{}, fmt.Errorf("%w: stock cannot be negative", store.ErrValidation)
		}
		product.StockQuantity = *req.StockQuantity
	}
	if req.MinStockLevel != nil {
		if *req.MinStockLevel < 0 {
			return domain.Product{}, fmt.Errorf("%w: min stock cannot be negative", store.ErrValidation)
		}
		product.MinStockLevel = *req.MinStockLevel
	}
	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.repo.DeleteProduct(ctx, id)
}

// Expenses.

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	req.Category = strings.TrimSpace(req.Category)
	if req.Category == "" {
		return domain.Expense{}, fmt.Errorf("%w: category is required", store.ErrValidation)
	}
	if req.Amount <= 0 {
		return domain.Expense{}, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}
	expenseDate := time.Now().UTC()
	if req.ExpenseDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpenseDate)
		if err != nil {
			return domain.Expense{}, fmt.Errorf("%w: expense_date must be YYYY-MM-DD", store.ErrValidation)
		}
		expenseDate = parsed
	}
	partition := domain.ParsePartition(req.Demo)
	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		Category:      strings.ToLower(req.Category),
		Description:   strings.TrimSpace(req.Description),
		Amount:        domain.Round2(req.Amount),
		ExpenseDate:   expenseDate,
		ReceiptNumber: strings.TrimSpace(req.ReceiptNumber),
		PaidBy:        strings.TrimSpace(req.PaidBy),
		CreatedBy:     req.CreatedBy,
		Partition:     partition,
	})
	if err != nil {
		return domain.Expense{}, err
	}
	s.invalidateReports(ctx, partition)
	return *created, nil
}

func (s *Service) GetExpense(ctx context.Context, id string) (domain.Expense, error) {
	e, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return domain.Expense{}, err
	}
	return *e, nil
}

func (s *Service) ListExpenses(ctx context.Context, partition domain.Partition, from, to *time.Time, category string) ([]domain.Expense, error) {
	return s.repo.ListExpenses(ctx, partition, from, to, category)
}

func (s *Service) UpdateExpense(ctx context.Context, id string, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	current, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return domain.Expense{}, err
	}
	expense := *current
	if category := strings.TrimSpace(req.Category); category != "" {
		expense.Category = strings.ToLower(category)
	}
	if req.Description != "" {
		expense.Description = strings.TrimSpace(req.Description)
	}
	if req.Amount > 0 {
		expense.Amount = domain.Round2(req.Amount)
	}
	if req.ExpenseDate != "" {
		parsed, err := time.Parse("2006-01-02", req.ExpenseDate)
		if err != nil {
			return domain.Expense{}, fmt.Errorf("%w: expense_date must be YYYY-MM-DD", store.ErrValidation)
		}
		expense.ExpenseDate = parsed
	}
	if req.ReceiptNumber != "" {
		expense.ReceiptNumber = strings.TrimSpace(req.ReceiptNumber)
	}
	if req.PaidBy != "" {
		expense.PaidBy = strings.TrimSpace(req.PaidBy)
	}
	updated, err := s.repo.UpdateExpense(ctx, expense)
	if err != nil {
		return domain.Expense{}, err
	}
	s.invalidateReports(ctx, expense.Partition)
	return *updated, nil
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	expense, err := s.repo.GetExpense(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.invalidateReports(ctx, expense.Partition)
	return nil
}

// Appointments.

func (s *Service) CreateAppointment(ctx context.Context, req domain.AppointmentCreateRequest) (domain.Appointment, error) {
	if req.CustomerID == "" {
		return domain.Appointment{}, fmt.Errorf("%w: customer_id is required", store.ErrValidation)
	}
	if _, err := s.repo.GetCustomer(ctx, req.CustomerID); err != nil {
		return domain.Appointment{}, err
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("%w: scheduled_at must be RFC 3339", store.ErrValidation)
	}
	if req.StaffID != "" {
		if _, err := s.repo.GetStaff(ctx, req.StaffID); err != nil {
			return domain.Appointment{}, err
		}
	}
	created, err := s.repo.CreateAppointment(ctx, domain.Appointment{
		CustomerID:  req.CustomerID,
		StaffID:     req.StaffID,
		ScheduledAt: scheduledAt.UTC(),
		Status:      domain.AppointmentStatusScheduled,
		Notes:       strings.TrimSpace(req.Notes),
		ServiceIDs:  req.ServiceIDs,
		Partition:   domain.ParsePartition(req.Demo),
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return *created, nil
}

func (s *Service) GetAppointment(ctx context.Context, id string) (domain.Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	return *appt, nil
}

func (s *Service) ListAppointments(ctx context.Context, partition domain.Partition, from, to *time.Time, status string) ([]domain.Appointment, error) {
	return s.repo.ListAppointments(ctx, partition, from, to, status)
}

func (s *Service) UpdateAppointmentStatus(ctx context.Context, id string, status string) (domain.Appointment, error) {
	switch status {
	case domain.AppointmentStatusScheduled, domain.AppointmentStatusCancelled:
	case domain.AppointmentStatusCompleted:
		return domain.Appointment{}, fmt.Errorf("%w: use the complete endpoint to finish an appointment", store.ErrValidation)
	default:
		return domain.Appointment{}, fmt.Errorf("%w: unknown appointment status %q", store.ErrValidation, status)
	}
	appt, err := s.repo.UpdateAppointmentStatus(ctx, id, status)
	if err != nil {
		return domain.Appointment{}, err
	}
	return *appt, nil
}

func (s *Service) CompleteAppointment(ctx context.Context, id string, req domain.AppointmentCompleteRequest) (domain.Appointment, domain.Payment, error) {
	if req.Amount <= 0 {
		return domain.Appointment{}, domain.Payment{}, fmt.Errorf("%w: amount must be positive", store.ErrValidation)
	}
	method, code, err := validatePaymentInput(req.PaymentMethod, req.TransactionCode)
	if err != nil {
		return domain.Appointment{}, domain.Payment{}, err
	}
	appt, payment, err := s.repo.CompleteAppointment(ctx, id, domain.Payment{
		Amount:          domain.Round2(req.Amount),
		Method:          method,
		TransactionCode: code,
	}, time.Now().UTC())
	if err != nil {
		return domain.Appointment{}, domain.Payment{}, err
	}
	s.invalidateReports(ctx, appt.Partition)
	return *appt, *payment, nil
}
