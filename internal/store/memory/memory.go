// Package memory is the in-memory store used for dev mode and tests. It
// implements the same Repository contract as the postgres store behind a
// single RWMutex, so anything exercised against it behaves the same way
// against the real database minus durability.
package memory

import (
	"context"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
	"github.com/GibsonWaheire/POS-salon/internal/store"
	"github.com/GibsonWaheire/POS-salon/internal/xid"
)

type Store struct {
	mu                 sync.RWMutex
	staff              map[string]domain.Staff
	loginLogs          map[string]domain.StaffLoginLog
	customers          map[string]domain.Customer
	services           map[string]domain.Service
	products           map[string]domain.Product
	sales              map[string]*domain.Sale
	saleNumbers        map[string]string
	usage              []domain.ProductUsage
	payments           map[string]domain.Payment
	receiptNumbers     map[string]string
	commissionPayments map[string]*domain.CommissionPayment
	commissionReceipts map[string]string
	expenses           map[string]domain.Expense
	appointments       map[string]domain.Appointment
	subscriptions      map[string]domain.Subscription
	subscriptionRefs   map[string]string
}

func New() *Store {
	return &Store{
		staff:              make(map[string]domain.Staff),
		loginLogs:          make(map[string]domain.StaffLoginLog),
		customers:          make(map[string]domain.Customer),
		services:           make(map[string]domain.Service),
		products:           make(map[string]domain.Product),
		sales:              make(map[string]*domain.Sale),
		saleNumbers:        make(map[string]string),
		usage:              make([]domain.ProductUsage, 0, 64),
		payments:           make(map[string]domain.Payment),
		receiptNumbers:     make(map[string]string),
		commissionPayments: make(map[string]*domain.CommissionPayment),
		commissionReceipts: make(map[string]string),
		expenses:           make(map[string]domain.Expense),
		appointments:       make(map[string]domain.Appointment),
		subscriptions:      make(map[string]domain.Subscription),
		subscriptionRefs:   make(map[string]string),
	}
}

// NewSeeded returns a store preloaded with a small salon catalog, a live
// staff roster, and a demo account. Seed PINs are read from SEED_MANAGER_PIN,
// SEED_STYLIST_PIN and SEED_DEMO_PIN; dev defaults are used with a warning
// when unset. Seed data never reaches production (the server uses PostgreSQL
// when DATABASE_URL is set).
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	managerPIN := envOr("SEED_MANAGER_PIN", "2468#")
	stylistPIN := envOr("SEED_STYLIST_PIN", "1357!")
	demoPIN := envOr("SEED_DEMO_PIN", "9999*")
	if os.Getenv("SEED_MANAGER_PIN") == "" || os.Getenv("SEED_STYLIST_PIN") == "" || os.Getenv("SEED_DEMO_PIN") == "" {
		log.Println("[memory-store] WARNING: using default dev PINs. Set SEED_MANAGER_PIN, SEED_STYLIST_PIN and SEED_DEMO_PIN to override.")
	}

	for _, st := range []struct {
		id        string
		name      string
		role      string
		pin       string
		basePay   float64
		partition domain.Partition
	}{
		{"staff-manager", "Wanjiru Kamau", "manager", managerPIN, 45000, domain.PartitionLive},
		{"staff-stylist", "Grace Achieng", "stylist", stylistPIN, 25000, domain.PartitionLive},
		{"staff-demo", "Demo Staff", "manager", demoPIN, 0, domain.PartitionDemo},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(st.pin), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed PIN for %s: %v", st.id, err)
		}
		s.staff[st.id] = domain.Staff{
			ID:        st.id,
			Name:      st.name,
			Role:      st.role,
			PINHash:   string(hash),
			Active:    true,
			BasePay:   st.basePay,
			Partition: st.partition,
			CreatedAt: now,
		}
	}

	for _, svc := range []domain.Service{
		{ID: "svc-braiding", Name: "Box Braids", Category: "braiding", Price: 2500, DurationMinutes: 180, CommissionRate: 0.50},
		{ID: "svc-cut", Name: "Haircut", Category: "barbering", Price: 500, DurationMinutes: 30, CommissionRate: 0.40},
		{ID: "svc-retouch", Name: "Relaxer Retouch", Category: "treatment", Price: 1200, DurationMinutes: 90, CommissionRate: 0.45},
		{ID: "svc-manicure", Name: "Manicure", Category: "nails", Price: 800, DurationMinutes: 45, CommissionRate: 0.40},
	} {
		svc.CreatedAt = now
		s.services[svc.ID] = svc
	}

	for _, p := range []domain.Product{
		{ID: "prod-oil", Name: "Hair Oil 250ml", Category: "retail", UnitPrice: 300, SellingPrice: 450, StockQuantity: 24, MinStockLevel: 5, Partition: domain.PartitionLive},
		{ID: "prod-shampoo", Name: "Shampoo 500ml", Category: "retail", UnitPrice: 420, SellingPrice: 600, StockQuantity: 12, MinStockLevel: 4, Partition: domain.PartitionLive},
		{ID: "prod-relaxer", Name: "Relaxer Kit", Category: "supply", UnitPrice: 650, SellingPrice: 900, StockQuantity: 8, MinStockLevel: 3, Partition: domain.PartitionLive},
		{ID: "prod-demo-oil", Name: "Hair Oil 250ml", Category: "retail", UnitPrice: 300, SellingPrice: 450, StockQuantity: 10, MinStockLevel: 2, Partition: domain.PartitionDemo},
	} {
		p.CreatedAt = now
		s.products[p.ID] = p
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Staff.

func (s *Store) CreateStaff(_ context.Context, staff domain.Staff) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if staff.ID == "" {
		staff.ID = xid.New("staff")
	}
	if _, exists := s.staff[staff.ID]; exists {
		return nil, store.ErrConflict
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}
	s.staff[staff.ID] = staff
	out := staff
	return &out, nil
}

func (s *Store) GetStaff(_ context.Context, id string) (*domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.staff[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := st
	return &out, nil
}

func (s *Store) ListStaff(_ context.Context) ([]domain.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Staff, 0, len(s.staff))
	for _, st := range s.staff {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateStaff(_ context.Context, staff domain.Staff) (*domain.Staff, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.staff[staff.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	staff.CreatedAt = current.CreatedAt
	staff.Partition = current.Partition
	s.staff[staff.ID] = staff
	out := staff
	return &out, nil
}

// DeleteStaff deactivates the account. Sales and payroll rows keep their
// staff references, so hard deletes are never done.
func (s *Store) DeleteStaff(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staff[id]
	if !ok {
		return store.ErrNotFound
	}
	st.Active = false
	s.staff[id] = st
	return nil
}

func (s *Store) RecordStaffLogin(_ context.Context, entry domain.StaffLoginLog) (*domain.StaffLoginLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staff[entry.StaffID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if entry.ID == "" {
		entry.ID = xid.New("loginlog")
	}
	if entry.LoginTime.IsZero() {
		entry.LoginTime = time.Now().UTC()
	}
	s.loginLogs[entry.ID] = entry
	t := entry.LoginTime
	st.LastLogin = &t
	s.staff[entry.StaffID] = st
	out := entry
	return &out, nil
}

func (s *Store) CloseStaffLogin(_ context.Context, loginLogID string, staffID string, at time.Time) (*domain.StaffLoginLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.loginLogs[loginLogID]
	if !ok || (staffID != "" && entry.StaffID != staffID) {
		// Fall back to the most recent open session for the staff member.
		var latest *domain.StaffLoginLog
		for id := range s.loginLogs {
			candidate := s.loginLogs[id]
			if candidate.StaffID != staffID || candidate.LogoutTime != nil {
				continue
			}
			if latest == nil || candidate.LoginTime.After(latest.LoginTime) {
				c := candidate
				latest = &c
			}
		}
		if latest == nil {
			return nil, store.ErrNotFound
		}
		entry = *latest
	}
	if entry.LogoutTime != nil {
		out := entry
		return &out, nil
	}
	logout := at.UTC()
	entry.LogoutTime = &logout
	entry.SessionSeconds = int(logout.Sub(entry.LoginTime).Seconds())
	s.loginLogs[entry.ID] = entry
	out := entry
	return &out, nil
}

func (s *Store) ListStaffLoginHistory(_ context.Context, staffID string, from, to *time.Time, limit int) ([]domain.StaffLoginLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.StaffLoginLog, 0, 16)
	for _, entry := range s.loginLogs {
		if staffID != "" && entry.StaffID != staffID {
			continue
		}
		if from != nil && entry.LoginTime.Before(*from) {
			continue
		}
		if to != nil && entry.LoginTime.After(*to) {
			continue
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoginTime.After(out[j].LoginTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PurgeDemoData(_ context.Context, staffID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	purgedSales := make(map[string]struct{})
	for id, sale := range s.sales {
		if !sale.Partition.IsDemo() || sale.StaffID != staffID {
			continue
		}
		purgedSales[id] = struct{}{}
		delete(s.saleNumbers, sale.SaleNumber)
		delete(s.sales, id)
	}
	for id, payment := range s.payments {
		if _, gone := purgedSales[payment.SaleID]; gone {
			delete(s.receiptNumbers, payment.ReceiptNumber)
			delete(s.payments, id)
		}
	}
	kept := s.usage[:0]
	for _, u := range s.usage {
		if _, gone := purgedSales[u.SaleID]; !gone {
			kept = append(kept, u)
		}
	}
	s.usage = kept

	for id, cp := range s.commissionPayments {
		if cp.Partition.IsDemo() && cp.StaffID == staffID {
			delete(s.commissionReceipts, cp.ReceiptNumber)
			delete(s.commissionPayments, id)
		}
	}
	for id, expense := range s.expenses {
		if expense.Partition.IsDemo() && expense.CreatedBy == staffID {
			delete(s.expenses, id)
		}
	}

	// Demo customers with no surviving sales go too.
	referenced := make(map[string]struct{})
	for _, sale := range s.sales {
		if sale.CustomerID != "" {
			referenced[sale.CustomerID] = struct{}{}
		}
	}
	for id, customer := range s.customers {
		if !customer.Partition.IsDemo() {
			continue
		}
		if _, ok := referenced[id]; !ok {
			delete(s.customers, id)
		}
	}
	return nil
}

// Customers.

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if _, exists := s.customers[customer.ID]; exists {
		return nil, store.ErrConflict
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	out := customer
	return &out, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := c
	return &out, nil
}

func (s *Store) FindCustomerByPhone(_ context.Context, partition domain.Partition, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, store.ErrNotFound
	}
	for _, c := range s.customers {
		if c.Partition == partition && c.Phone == phone {
			out := c
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListCustomers(_ context.Context, partition domain.Partition, limit int) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if c.Partition == partition {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Service catalog.

func (s *Store) CreateService(_ context.Context, svc domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	if _, exists := s.services[svc.ID]; exists {
		return nil, store.ErrConflict
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now().UTC()
	}
	s.services[svc.ID] = svc
	out := svc
	return &out, nil
}

func (s *Store) GetService(_ context.Context, id string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := svc
	return &out, nil
}

func (s *Store) FindServiceByName(_ context.Context, name string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name = strings.TrimSpace(name)
	for _, svc := range s.services {
		if strings.EqualFold(svc.Name, name) {
			out := svc
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListServices(_ context.Context) ([]domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Service, 0, len(s.services))
	for _, svc := range s.services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateService(_ context.Context, svc domain.Service) (*domain.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.services[svc.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	svc.CreatedAt = current.CreatedAt
	s.services[svc.ID] = svc
	out := svc
	return &out, nil
}

func (s *Store) DeleteService(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.services, id)
	return nil
}

// Products.

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrConflict
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	out := product
	return &out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := p
	return &out, nil
}

func (s *Store) ListProducts(_ context.Context, partition domain.Partition) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Partition == partition {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) ListLowStockProducts(_ context.Context, partition domain.Partition) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, 4)
	for _, p := range s.products {
		if p.Partition == partition && p.StockQuantity <= p.MinStockLevel {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = current.CreatedAt
	product.Partition = current.Partition
	s.products[product.ID] = product
	out := product
	return &out, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// Sales.

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.sales[sale.ID]; exists {
		return nil, store.ErrConflict
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPending
	}
	if sale.SaleNumber == "" || s.saleNumbers[sale.SaleNumber] != "" {
		for seq := 1; ; seq++ {
			candidate := domain.NewSaleNumber(sale.CreatedAt, seq)
			if s.saleNumbers[candidate] == "" {
				sale.SaleNumber = candidate
				break
			}
		}
	}
	for i := range sale.Services {
		if sale.Services[i].ID == "" {
			sale.Services[i].ID = xid.New("saleline")
		}
		sale.Services[i].SaleID = sale.ID
	}
	for i := range sale.Products {
		if sale.Products[i].ID == "" {
			sale.Products[i].ID = xid.New("saleline")
		}
		sale.Products[i].SaleID = sale.ID
	}
	s.saleNumbers[sale.SaleNumber] = sale.ID
	s.sales[sale.ID] = cloneSale(&sale)
	return cloneSale(&sale), nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, partition domain.Partition, filter domain.SaleListFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Sale, 0, 16)
	for _, sale := range s.sales {
		if sale.Partition != partition {
			continue
		}
		if filter.StaffID != "" && sale.StaffID != filter.StaffID {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && sale.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, *cloneSale(sale))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CompleteSale(_ context.Context, saleID string, payment domain.Payment, at time.Time) (*domain.Sale, *domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	switch sale.Status {
	case domain.SaleStatusCompleted:
		return nil, nil, store.ErrAlreadyCompleted
	case domain.SaleStatusCancelled:
		return nil, nil, store.ErrValidation
	}

	// Stock check first; nothing is written until every line clears.
	for _, line := range sale.Products {
		if line.StockDeducted {
			continue
		}
		product, ok := s.products[line.ProductID]
		if !ok {
			return nil, nil, store.ErrNotFound
		}
		if product.StockQuantity < line.Quantity {
			return nil, nil, &store.StockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.StockQuantity,
				Required:    line.Quantity,
			}
		}
	}

	if payment.ReceiptNumber == "" {
		payment.ReceiptNumber = domain.NewSaleReceiptNumber(sale.SaleNumber)
	}
	if s.receiptNumbers[payment.ReceiptNumber] != "" {
		return nil, nil, store.ErrDuplicateReceipt
	}

	at = at.UTC()
	for i := range sale.Products {
		line := &sale.Products[i]
		if line.StockDeducted {
			continue
		}
		product := s.products[line.ProductID]
		product.StockQuantity -= line.Quantity
		s.products[line.ProductID] = product
		line.StockDeducted = true
		s.usage = append(s.usage, domain.ProductUsage{
			ID:           xid.New("usage"),
			ProductID:    line.ProductID,
			SaleID:       sale.ID,
			QuantityUsed: line.Quantity,
			UsedAt:       at,
		})
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	payment.SaleID = sale.ID
	payment.Amount = sale.TotalAmount
	payment.Status = domain.PaymentStatusCompleted
	payment.Partition = sale.Partition
	payment.CreatedAt = at
	s.payments[payment.ID] = payment
	s.receiptNumbers[payment.ReceiptNumber] = payment.ID

	sale.Status = domain.SaleStatusCompleted
	completed := at
	sale.CompletedAt = &completed

	if sale.CustomerID != "" {
		if customer, ok := s.customers[sale.CustomerID]; ok {
			customer.LoyaltyPoints += int(math.Floor(sale.TotalAmount / domain.LoyaltyPointDivisor))
			customer.TotalVisits++
			customer.TotalSpent = domain.Round2(customer.TotalSpent + sale.TotalAmount)
			visit := at
			customer.LastVisit = &visit
			s.customers[sale.CustomerID] = customer
		}
	}

	outPayment := payment
	return cloneSale(sale), &outPayment, nil
}

func (s *Store) ListCompletedSales(_ context.Context, partition domain.Partition, from, to *time.Time, staffID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Sale, 0, 16)
	for _, sale := range s.sales {
		if sale.Partition != partition || sale.Status != domain.SaleStatusCompleted {
			continue
		}
		if staffID != "" && sale.StaffID != staffID {
			continue
		}
		at := sale.CreatedAt
		if sale.CompletedAt != nil {
			at = *sale.CompletedAt
		}
		if from != nil && at.Before(*from) {
			continue
		}
		if to != nil && at.After(*to) {
			continue
		}
		out = append(out, *cloneSale(sale))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Payments.

func (s *Store) ListPayments(_ context.Context, partition domain.Partition, from, to *time.Time) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Payment, 0, 16)
	for _, p := range s.payments {
		if p.Partition != partition {
			continue
		}
		if from != nil && p.CreatedAt.Before(*from) {
			continue
		}
		if to != nil && p.CreatedAt.After(*to) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Payroll.

func (s *Store) CreateCommissionPayment(_ context.Context, payment domain.CommissionPayment) (*domain.CommissionPayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.staff[payment.StaffID]; !ok {
		return nil, store.ErrNotFound
	}
	if payment.ID == "" {
		payment.ID = xid.New("commpay")
	}
	if payment.ReceiptNumber == "" {
		for seq := len(s.commissionPayments) + 1; ; seq++ {
			candidate := domain.NewCommissionReceiptNumber(payment.PaymentDate, seq)
			if s.commissionReceipts[candidate] == "" {
				payment.ReceiptNumber = candidate
				break
			}
		}
	} else if s.commissionReceipts[payment.ReceiptNumber] != "" {
		return nil, store.ErrDuplicateReceipt
	}
	for i := range payment.Items {
		if payment.Items[i].ID == "" {
			payment.Items[i].ID = xid.New("payitem")
		}
		payment.Items[i].PaymentID = payment.ID
		payment.Items[i].DisplayOrder = i
	}
	s.commissionReceipts[payment.ReceiptNumber] = payment.ID
	s.commissionPayments[payment.ID] = cloneCommissionPayment(&payment)
	return cloneCommissionPayment(&payment), nil
}

func (s *Store) GetCommissionPayment(_ context.Context, id string) (*domain.CommissionPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.commissionPayments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneCommissionPayment(cp), nil
}

func (s *Store) ListCommissionPayments(_ context.Context, partition domain.Partition, staffID string) ([]domain.CommissionPayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CommissionPayment, 0, 8)
	for _, cp := range s.commissionPayments {
		if cp.Partition != partition {
			continue
		}
		if staffID != "" && cp.StaffID != staffID {
			continue
		}
		out = append(out, *cloneCommissionPayment(cp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentDate.After(out[j].PaymentDate) })
	return out, nil
}

func (s *Store) SumCommissionPaidByStaff(_ context.Context, partition domain.Partition) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64)
	for _, cp := range s.commissionPayments {
		if cp.Partition != partition {
			continue
		}
		amount := cp.GrossPay
		if amount == 0 {
			amount = cp.AmountPaid
		}
		out[cp.StaffID] += amount
	}
	for staffID, amount := range out {
		out[staffID] = domain.Round2(amount)
	}
	return out, nil
}

// Expenses.

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if _, exists := s.expenses[expense.ID]; exists {
		return nil, store.ErrConflict
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	if expense.ExpenseDate.IsZero() {
		expense.ExpenseDate = expense.CreatedAt
	}
	s.expenses[expense.ID] = expense
	out := expense
	return &out, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (*domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := e
	return &out, nil
}

func (s *Store) ListExpenses(_ context.Context, partition domain.Partition, from, to *time.Time, category string) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Expense, 0, 16)
	for _, e := range s.expenses {
		if e.Partition != partition {
			continue
		}
		if category != "" && !strings.EqualFold(e.Category, category) {
			continue
		}
		if from != nil && e.ExpenseDate.Before(*from) {
			continue
		}
		if to != nil && e.ExpenseDate.After(*to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpenseDate.After(out[j].ExpenseDate) })
	return out, nil
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.expenses[expense.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	expense.CreatedAt = current.CreatedAt
	expense.Partition = current.Partition
	s.expenses[expense.ID] = expense
	out := expense
	return &out, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

// Appointments.

func (s *Store) CreateAppointment(_ context.Context, appt domain.Appointment) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == "" {
		appt.ID = xid.New("appt")
	}
	if _, exists := s.appointments[appt.ID]; exists {
		return nil, store.ErrConflict
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	if appt.Status == "" {
		appt.Status = domain.AppointmentStatusScheduled
	}
	s.appointments[appt.ID] = appt
	out := appt
	out.ServiceIDs = append([]string(nil), appt.ServiceIDs...)
	return &out, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (*domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appt, ok := s.appointments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := appt
	out.ServiceIDs = append([]string(nil), appt.ServiceIDs...)
	return &out, nil
}

func (s *Store) ListAppointments(_ context.Context, partition domain.Partition, from, to *time.Time, status string) ([]domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Appointment, 0, 8)
	for _, appt := range s.appointments {
		if appt.Partition != partition {
			continue
		}
		if status != "" && appt.Status != status {
			continue
		}
		if from != nil && appt.ScheduledAt.Before(*from) {
			continue
		}
		if to != nil && appt.ScheduledAt.After(*to) {
			continue
		}
		a := appt
		a.ServiceIDs = append([]string(nil), appt.ServiceIDs...)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (s *Store) UpdateAppointmentStatus(_ context.Context, id string, status string) (*domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	appt.Status = status
	s.appointments[id] = appt
	out := appt
	out.ServiceIDs = append([]string(nil), appt.ServiceIDs...)
	return &out, nil
}

func (s *Store) CompleteAppointment(_ context.Context, id string, payment domain.Payment, at time.Time) (*domain.Appointment, *domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return nil, nil, store.ErrNotFound
	}
	if appt.Status == domain.AppointmentStatusCompleted {
		return nil, nil, store.ErrAlreadyCompleted
	}
	if appt.Status == domain.AppointmentStatusCancelled {
		return nil, nil, store.ErrValidation
	}
	if payment.ReceiptNumber != "" && s.receiptNumbers[payment.ReceiptNumber] != "" {
		return nil, nil, store.ErrDuplicateReceipt
	}
	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	payment.AppointmentID = appt.ID
	payment.Status = domain.PaymentStatusCompleted
	payment.Partition = appt.Partition
	payment.CreatedAt = at.UTC()
	s.payments[payment.ID] = payment
	if payment.ReceiptNumber != "" {
		s.receiptNumbers[payment.ReceiptNumber] = payment.ID
	}
	appt.Status = domain.AppointmentStatusCompleted
	s.appointments[id] = appt
	out := appt
	out.ServiceIDs = append([]string(nil), appt.ServiceIDs...)
	outPayment := payment
	return &out, &outPayment, nil
}

// Subscriptions.

func (s *Store) CreateSubscriptionIfNew(_ context.Context, sub domain.Subscription) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ExternalReference == "" {
		return false, store.ErrValidation
	}
	if _, seen := s.subscriptionRefs[sub.ExternalReference]; seen {
		return false, nil
	}
	if sub.ID == "" {
		sub.ID = xid.New("sub")
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	s.subscriptions[sub.ID] = sub
	s.subscriptionRefs[sub.ExternalReference] = sub.ID
	return true, nil
}

// ProductUsageForSale is test-support visibility into the audit trail.
func (s *Store) ProductUsageForSale(saleID string) []domain.ProductUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ProductUsage, 0, 2)
	for _, u := range s.usage {
		if u.SaleID == saleID {
			out = append(out, u)
		}
	}
	return out
}

func cloneSale(src *domain.Sale) *domain.Sale {
	out := *src
	out.Services = append([]domain.SaleServiceLine(nil), src.Services...)
	out.Products = append([]domain.SaleProductLine(nil), src.Products...)
	return &out
}

func cloneCommissionPayment(src *domain.CommissionPayment) *domain.CommissionPayment {
	out := *src
	out.Items = append([]domain.CommissionPaymentItem(nil), src.Items...)
	return &out
}
