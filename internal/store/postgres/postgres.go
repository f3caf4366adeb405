// Package postgres is the production store. It speaks database/sql over the
// pgx stdlib driver and maps constraint violations onto the shared store
// sentinel errors.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
	"github.com/GibsonWaheire/POS-salon/internal/store"
	"github.com/GibsonWaheire/POS-salon/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Staff.

const staffColumns = "id, name, phone, email, role, pin_hash, active, base_pay, partition, last_login, created_at"

func scanStaff(row interface{ Scan(...any) error }) (*domain.Staff, error) {
	var st domain.Staff
	var lastLogin sql.NullTime
	if err := row.Scan(&st.ID, &st.Name, &st.Phone, &st.Email, &st.Role, &st.PINHash,
		&st.Active, &st.BasePay, &st.Partition, &lastLogin, &st.CreatedAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		st.LastLogin = &t
	}
	return &st, nil
}

func (s *Store) CreateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error) {
	if staff.ID == "" {
		staff.ID = xid.New("staff")
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff (id, name, phone, email, role, pin_hash, active, base_pay, partition, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, staff.ID, staff.Name, staff.Phone, staff.Email, staff.Role, staff.PINHash,
		staff.Active, staff.BasePay, staff.Partition, staff.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := staff
	return &created, nil
}

func (s *Store) GetStaff(ctx context.Context, id string) (*domain.Staff, error) {
	st, err := scanStaff(s.db.QueryRowContext(ctx,
		"SELECT "+staffColumns+" FROM staff WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return st, nil
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.Staff, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+staffColumns+" FROM staff ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Staff, 0, 16)
	for rows.Next() {
		st, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE staff
		SET name = $2, phone = $3, email = $4, role = $5, pin_hash = $6, active = $7, base_pay = $8
		WHERE id = $1
	`, staff.ID, staff.Name, staff.Phone, staff.Email, staff.Role, staff.PINHash, staff.Active, staff.BasePay)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetStaff(ctx, staff.ID)
}

// DeleteStaff deactivates the account so historic sales and payroll rows keep
// a valid staff reference.
func (s *Store) DeleteStaff(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE staff SET active = FALSE WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecordStaffLogin(ctx context.Context, entry domain.StaffLoginLog) (*domain.StaffLoginLog, error) {
	if entry.ID == "" {
		entry.ID = xid.New("loginlog")
	}
	if entry.LoginTime.IsZero() {
		entry.LoginTime = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE staff SET last_login = $2 WHERE id = $1", entry.StaffID, entry.LoginTime)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO staff_login_logs (id, staff_id, login_time, ip_address, demo_expires_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.ID, entry.StaffID, entry.LoginTime, entry.IPAddress, nullTime(entry.DemoExpiresAt)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := entry
	return &created, nil
}

func (s *Store) CloseStaffLogin(ctx context.Context, loginLogID string, staffID string, at time.Time) (*domain.StaffLoginLog, error) {
	at = at.UTC()
	var id string
	var err error
	if loginLogID != "" {
		err = s.db.QueryRowContext(ctx, `
			SELECT id FROM staff_login_logs WHERE id = $1 AND ($2 = '' OR staff_id = $2)
		`, loginLogID, staffID).Scan(&id)
	}
	if loginLogID == "" || errors.Is(err, sql.ErrNoRows) {
		// Most recent open session for the staff member.
		err = s.db.QueryRowContext(ctx, `
			SELECT id FROM staff_login_logs
			WHERE staff_id = $1 AND logout_time IS NULL
			ORDER BY login_time DESC
			LIMIT 1
		`, staffID).Scan(&id)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var entry domain.StaffLoginLog
	var logout, demoExpires sql.NullTime
	if err := s.db.QueryRowContext(ctx, `
		UPDATE staff_login_logs
		SET logout_time = $2,
		    session_seconds = GREATEST(0, EXTRACT(EPOCH FROM ($2 - login_time))::int)
		WHERE id = $1 AND logout_time IS NULL
		RETURNING id, staff_id, login_time, logout_time, session_seconds, ip_address, demo_expires_at
	`, id, at).Scan(&entry.ID, &entry.StaffID, &entry.LoginTime, &logout,
		&entry.SessionSeconds, &entry.IPAddress, &demoExpires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.getLoginLog(ctx, id)
		}
		return nil, err
	}
	entry.LogoutTime = timePtr(logout)
	entry.DemoExpiresAt = timePtr(demoExpires)
	return &entry, nil
}

func (s *Store) getLoginLog(ctx context.Context, id string) (*domain.StaffLoginLog, error) {
	var entry domain.StaffLoginLog
	var logout, demoExpires sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, staff_id, login_time, logout_time, session_seconds, ip_address, demo_expires_at
		FROM staff_login_logs WHERE id = $1
	`, id).Scan(&entry.ID, &entry.StaffID, &entry.LoginTime, &logout,
		&entry.SessionSeconds, &entry.IPAddress, &demoExpires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	entry.LogoutTime = timePtr(logout)
	entry.DemoExpiresAt = timePtr(demoExpires)
	return &entry, nil
}

func (s *Store) ListStaffLoginHistory(ctx context.Context, staffID string, from, to *time.Time, limit int) ([]domain.StaffLoginLog, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, staff_id, login_time, logout_time, session_seconds, ip_address, demo_expires_at
		FROM staff_login_logs
		WHERE ($1 = '' OR staff_id = $1)
		  AND ($2::timestamptz IS NULL OR login_time >= $2)
		  AND ($3::timestamptz IS NULL OR login_time <= $3)
		ORDER BY login_time DESC
		LIMIT $4
	`, staffID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.StaffLoginLog, 0, limit)
	for rows.Next() {
		var entry domain.StaffLoginLog
		var logout, demoExpires sql.NullTime
		if err := rows.Scan(&entry.ID, &entry.StaffID, &entry.LoginTime, &logout,
			&entry.SessionSeconds, &entry.IPAddress, &demoExpires); err != nil {
			return nil, err
		}
		entry.LogoutTime = timePtr(logout)
		entry.DemoExpiresAt = timePtr(demoExpires)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) PurgeDemoData(ctx context.Context, staffID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM product_usage
		WHERE sale_id IN (SELECT id FROM sales WHERE partition = 'demo' AND staff_id = $1)
	`, staffID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM payments
		WHERE sale_id IN (SELECT id FROM sales WHERE partition = 'demo' AND staff_id = $1)
	`, staffID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM sales WHERE partition = 'demo' AND staff_id = $1", staffID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM commission_payments WHERE partition = 'demo' AND staff_id = $1", staffID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM expenses WHERE partition = 'demo' AND created_by = $1", staffID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM customers
		WHERE partition = 'demo'
		  AND id NOT IN (SELECT customer_id FROM sales WHERE customer_id <> '')
	`); err != nil {
		return err
	}
	return tx.Commit()
}

// Customers.

const customerColumns = "id, name, phone, email, loyalty_points, total_visits, total_spent, last_visit, partition, created_at"

func scanCustomer(row interface{ Scan(...any) error }) (*domain.Customer, error) {
	var c domain.Customer
	var lastVisit sql.NullTime
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.LoyaltyPoints,
		&c.TotalVisits, &c.TotalSpent, &lastVisit, &c.Partition, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.LastVisit = timePtr(lastVisit)
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID == "" {
		customer.ID = xid.New("cust")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, loyalty_points, total_visits, total_spent, partition, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, customer.ID, customer.Name, customer.Phone, customer.Email,
		customer.LoyaltyPoints, customer.TotalVisits, customer.TotalSpent,
		customer.Partition, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) FindCustomerByPhone(ctx context.Context, partition domain.Partition, phone string) (*domain.Customer, error) {
	if phone == "" {
		return nil, store.ErrNotFound
	}
	c, err := scanCustomer(s.db.QueryRowContext(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE partition = $1 AND phone = $2 ORDER BY created_at LIMIT 1",
		partition, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *Store) ListCustomers(ctx context.Context, partition domain.Partition, limit int) ([]domain.Customer, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+customerColumns+" FROM customers WHERE partition = $1 ORDER BY created_at DESC LIMIT $2",
		partition, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Customer, 0, limit)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// Service catalog.

const serviceColumns = "id, name, description, category, price, duration_minutes, commission_rate, created_at"

func scanService(row interface{ Scan(...any) error }) (*domain.Service, error) {
	var svc domain.Service
	if err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.Category,
		&svc.Price, &svc.DurationMinutes, &svc.CommissionRate, &svc.CreatedAt); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *Store) CreateService(ctx context.Context, svc domain.Service) (*domain.Service, error) {
	if svc.ID == "" {
		svc.ID = xid.New("svc")
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO services (id, name, description, category, price, duration_minutes, commission_rate, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, svc.ID, svc.Name, svc.Description, svc.Category, svc.Price,
		svc.DurationMinutes, svc.CommissionRate, svc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := svc
	return &created, nil
}

func (s *Store) GetService(ctx context.Context, id string) (*domain.Service, error) {
	svc, err := scanService(s.db.QueryRowContext(ctx,
		"SELECT "+serviceColumns+" FROM services WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return svc, nil
}

func (s *Store) FindServiceByName(ctx context.Context, name string) (*domain.Service, error) {
	svc, err := scanService(s.db.QueryRowContext(ctx,
		"SELECT "+serviceColumns+" FROM services WHERE LOWER(name) = LOWER($1) ORDER BY created_at LIMIT 1", name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context) ([]domain.Service, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+serviceColumns+" FROM services ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Service, 0, 32)
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *svc)
	}
	return out, rows.Err()
}

func (s *Store) UpdateService(ctx context.Context, svc domain.Service) (*domain.Service, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE services
		SET name = $2, description = $3, category = $4, price = $5, duration_minutes = $6, commission_rate = $7
		WHERE id = $1
	`, svc.ID, svc.Name, svc.Description, svc.Category, svc.Price, svc.DurationMinutes, svc.CommissionRate)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetService(ctx, svc.ID)
}

func (s *Store) DeleteService(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM services WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Products.

const productColumns = "id, name, category, unit_price, selling_price, stock_quantity, min_stock_level, partition, created_at"

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Category, &p.UnitPrice, &p.SellingPrice,
		&p.StockQuantity, &p.MinStockLevel, &p.Partition, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit_price, selling_price, stock_quantity, min_stock_level, partition, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, product.ID, product.Name, product.Category, product.UnitPrice, product.SellingPrice,
		product.StockQuantity, product.MinStockLevel, product.Partition, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) ListProducts(ctx context.Context, partition domain.Partition) ([]domain.Product, error) {
	return s.listProducts(ctx, partition, false)
}

func (s *Store) ListLowStockProducts(ctx context.Context, partition domain.Partition) ([]domain.Product, error) {
	return s.listProducts(ctx, partition, true)
}

func (s *Store) listProducts(ctx context.Context, partition domain.Partition, lowStockOnly bool) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE partition = $1 AND ($2 = FALSE OR stock_quantity <= min_stock_level)
		ORDER BY name
	`, partition, lowStockOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, unit_price = $4, selling_price = $5, stock_quantity = $6, min_stock_level = $7
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.UnitPrice,
		product.SellingPrice, product.StockQuantity, product.MinStockLevel)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Sales.

const saleColumns = "id, sale_number, staff_id, customer_id, customer_name, customer_phone, status, subtotal, tax_amount, total_amount, commission_amount, notes, partition, created_at, completed_at"

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	var completed sql.NullTime
	if err := row.Scan(&sale.ID, &sale.SaleNumber, &sale.StaffID, &sale.CustomerID,
		&sale.CustomerName, &sale.CustomerPhone, &sale.Status, &sale.Subtotal,
		&sale.TaxAmount, &sale.TotalAmount, &sale.CommissionAmount, &sale.Notes,
		&sale.Partition, &sale.CreatedAt, &completed); err != nil {
		return nil, err
	}
	sale.CompletedAt = timePtr(completed)
	return &sale, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSaleLines(ctx context.Context, q querier, sales []*domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	byID := make(map[string]*domain.Sale, len(sales))
	ids := make([]string, 0, len(sales))
	for _, sale := range sales {
		byID[sale.ID] = sale
		ids = append(ids, sale.ID)
	}

	serviceRows, err := q.QueryContext(ctx, `
		SELECT id, sale_id, service_id, service_name, quantity, unit_price, total_price, commission_rate, commission_amount
		FROM sale_services
		WHERE sale_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return err
	}
	for serviceRows.Next() {
		var line domain.SaleServiceLine
		if err := serviceRows.Scan(&line.ID, &line.SaleID, &line.ServiceID, &line.ServiceName,
			&line.Quantity, &line.UnitPrice, &line.TotalPrice, &line.CommissionRate, &line.CommissionAmount); err != nil {
			_ = serviceRows.Close()
			return err
		}
		if sale, ok := byID[line.SaleID]; ok {
			sale.Services = append(sale.Services, line)
		}
	}
	if err := serviceRows.Err(); err != nil {
		_ = serviceRows.Close()
		return err
	}
	_ = serviceRows.Close()

	productRows, err := q.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price, total_price, stock_deducted
		FROM sale_products
		WHERE sale_id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return err
	}
	for productRows.Next() {
		var line domain.SaleProductLine
		if err := productRows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.ProductName,
			&line.Quantity, &line.UnitPrice, &line.TotalPrice, &line.StockDeducted); err != nil {
			_ = productRows.Close()
			return err
		}
		if sale, ok := byID[line.SaleID]; ok {
			sale.Products = append(sale.Products, line)
		}
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return err
	}
	_ = productRows.Close()
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPending
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Sale numbers carry a per-second sequence suffix; bump it until the
	// unique constraint accepts the insert.
	inserted := false
	for seq := 1; seq <= 1000 && !inserted; seq++ {
		if sale.SaleNumber == "" || seq > 1 {
			sale.SaleNumber = domain.NewSaleNumber(sale.CreatedAt, seq)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales (id, sale_number, staff_id, customer_id, customer_name, customer_phone,
				status, subtotal, tax_amount, total_amount, commission_amount, notes, partition, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, sale.ID, sale.SaleNumber, sale.StaffID, sale.CustomerID, sale.CustomerName,
			sale.CustomerPhone, sale.Status, sale.Subtotal, sale.TaxAmount, sale.TotalAmount,
			sale.CommissionAmount, sale.Notes, sale.Partition, sale.CreatedAt)
		if err == nil {
			inserted = true
			break
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}
	if !inserted {
		return nil, store.ErrConflict
	}

	for i := range sale.Services {
		line := &sale.Services[i]
		if line.ID == "" {
			line.ID = xid.New("saleline")
		}
		line.SaleID = sale.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_services (id, sale_id, service_id, service_name, quantity, unit_price, total_price, commission_rate, commission_amount)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, line.ID, line.SaleID, line.ServiceID, line.ServiceName, line.Quantity,
			line.UnitPrice, line.TotalPrice, line.CommissionRate, line.CommissionAmount); err != nil {
			return nil, err
		}
	}
	for i := range sale.Products {
		line := &sale.Products[i]
		if line.ID == "" {
			line.ID = xid.New("saleline")
		}
		line.SaleID = sale.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sale_products (id, sale_id, product_id, product_name, quantity, unit_price, total_price, stock_deducted)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, line.ID, line.SaleID, line.ProductID, line.ProductName, line.Quantity,
			line.UnitPrice, line.TotalPrice, line.StockDeducted); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx,
		"SELECT "+saleColumns+" FROM sales WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := loadSaleLines(ctx, s.db, []*domain.Sale{sale}); err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context, partition domain.Partition, filter domain.SaleListFilter) ([]domain.Sale, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE partition = $1
		  AND ($2 = '' OR staff_id = $2)
		  AND ($3 = '' OR status = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
		ORDER BY created_at DESC
		LIMIT $6
	`, partition, filter.StaffID, filter.Status, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]*domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadSaleLines(ctx, s.db, sales); err != nil {
		return nil, err
	}
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		out = append(out, *sale)
	}
	return out, nil
}

func (s *Store) CompleteSale(ctx context.Context, saleID string, payment domain.Payment, at time.Time) (*domain.Sale, *domain.Payment, error) {
	at = at.UTC()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := scanSale(tx.QueryRowContext(ctx,
		"SELECT "+saleColumns+" FROM sales WHERE id = $1 FOR UPDATE", saleID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	switch sale.Status {
	case domain.SaleStatusCompleted:
		return nil, nil, store.ErrAlreadyCompleted
	case domain.SaleStatusCancelled:
		return nil, nil, store.ErrValidation
	}
	if err := loadSaleLines(ctx, tx, []*domain.Sale{sale}); err != nil {
		return nil, nil, err
	}

	// Conditional stock updates: the WHERE clause rejects oversell, and a
	// zero row count is reported with the live quantity.
	for i := range sale.Products {
		line := &sale.Products[i]
		if line.StockDeducted {
			continue
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock_quantity = stock_quantity - $2
			WHERE id = $1 AND stock_quantity >= $2
		`, line.ProductID, line.Quantity)
		if err != nil {
			return nil, nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, nil, err
		}
		if n == 0 {
			var name string
			var available float64
			if err := tx.QueryRowContext(ctx,
				"SELECT name, stock_quantity FROM products WHERE id = $1",
				line.ProductID).Scan(&name, &available); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, nil, store.ErrNotFound
				}
				return nil, nil, err
			}
			return nil, nil, &store.StockError{
				ProductID:   line.ProductID,
				ProductName: name,
				Available:   available,
				Required:    line.Quantity,
			}
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE sale_products SET stock_deducted = TRUE WHERE id = $1", line.ID); err != nil {
			return nil, nil, err
		}
		line.StockDeducted = true
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO product_usage (id, product_id, sale_id, quantity_used, used_at)
			VALUES ($1,$2,$3,$4,$5)
		`, xid.New("usage"), line.ProductID, sale.ID, line.Quantity, at); err != nil {
			return nil, nil, err
		}
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	if payment.ReceiptNumber == "" {
		payment.ReceiptNumber = domain.NewSaleReceiptNumber(sale.SaleNumber)
	}
	payment.SaleID = sale.ID
	payment.Amount = sale.TotalAmount
	payment.Status = domain.PaymentStatusCompleted
	payment.Partition = sale.Partition
	payment.CreatedAt = at
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, sale_id, amount, payment_method, status, transaction_code, receipt_number, partition, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, payment.ID, payment.SaleID, payment.Amount, payment.Method, payment.Status,
		payment.TransactionCode, payment.ReceiptNumber, payment.Partition, payment.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrDuplicateReceipt
		}
		return nil, nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE sales SET status = $2, completed_at = $3 WHERE id = $1",
		sale.ID, domain.SaleStatusCompleted, at); err != nil {
		return nil, nil, err
	}
	sale.Status = domain.SaleStatusCompleted
	completed := at
	sale.CompletedAt = &completed

	if sale.CustomerID != "" {
		points := int(math.Floor(sale.TotalAmount / domain.LoyaltyPointDivisor))
		if _, err := tx.ExecContext(ctx, `
			UPDATE customers
			SET loyalty_points = loyalty_points + $2,
			    total_visits = total_visits + 1,
			    total_spent = ROUND((total_spent + $3)::numeric, 2),
			    last_visit = $4
			WHERE id = $1
		`, sale.CustomerID, points, sale.TotalAmount, at); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	outPayment := payment
	return sale, &outPayment, nil
}

func (s *Store) ListCompletedSales(ctx context.Context, partition domain.Partition, from, to *time.Time, staffID string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE partition = $1
		  AND status = 'completed'
		  AND ($2 = '' OR staff_id = $2)
		  AND ($3::timestamptz IS NULL OR COALESCE(completed_at, created_at) >= $3)
		  AND ($4::timestamptz IS NULL OR COALESCE(completed_at, created_at) <= $4)
		ORDER BY created_at
	`, partition, staffID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]*domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadSaleLines(ctx, s.db, sales); err != nil {
		return nil, err
	}
	out := make([]domain.Sale, 0, len(sales))
	for _, sale := range sales {
		out = append(out, *sale)
	}
	return out, nil
}

// Payments.

func (s *Store) ListPayments(ctx context.Context, partition domain.Partition, from, to *time.Time) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, appointment_id, amount, payment_method, status, transaction_code, receipt_number, partition, created_at
		FROM payments
		WHERE partition = $1
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)
		ORDER BY created_at
	`, partition, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Payment, 0, 64)
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.SaleID, &p.AppointmentID, &p.Amount, &p.Method,
			&p.Status, &p.TransactionCode, &p.ReceiptNumber, &p.Partition, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Payroll.

func (s *Store) CreateCommissionPayment(ctx context.Context, payment domain.CommissionPayment) (*domain.CommissionPayment, error) {
	if payment.ID == "" {
		payment.ID = xid.New("commpay")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	generated := payment.ReceiptNumber == ""
	seq := 0
	if generated {
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM commission_payments").Scan(&seq); err != nil {
			return nil, err
		}
	}

	inserted := false
	for attempt := 1; attempt <= 1000 && !inserted; attempt++ {
		if generated {
			payment.ReceiptNumber = domain.NewCommissionReceiptNumber(payment.PaymentDate, seq+attempt)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO commission_payments (id, staff_id, amount_paid, base_pay, gross_pay, total_deductions, net_pay,
				payment_date, period_start, period_end, payment_method, transaction_reference, receipt_number, paid_by, notes, partition)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		`, payment.ID, payment.StaffID, payment.AmountPaid, payment.BasePay, payment.GrossPay,
			payment.TotalDeductions, payment.NetPay, payment.PaymentDate, payment.PeriodStart,
			payment.PeriodEnd, payment.Method, payment.TransactionReference, payment.ReceiptNumber,
			payment.PaidBy, payment.Notes, payment.Partition)
		if err == nil {
			inserted = true
			break
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		if !generated {
			return nil, store.ErrDuplicateReceipt
		}
	}
	if !inserted {
		return nil, store.ErrConflict
	}

	for i := range payment.Items {
		item := &payment.Items[i]
		if item.ID == "" {
			item.ID = xid.New("payitem")
		}
		item.PaymentID = payment.ID
		item.DisplayOrder = i
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO commission_payment_items (id, payment_id, item_type, item_name, amount, is_percentage,
				percentage_of, display_order, notes, sale_id, sale_service_id, service_name, sale_number)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, item.ID, item.PaymentID, item.Type, item.Name, item.Amount, item.IsPercentage,
			string(item.PercentageOf), item.DisplayOrder, item.Notes, item.SaleID,
			item.SaleServiceID, item.ServiceName, item.SaleNumber); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := payment
	return &created, nil
}

const commissionPaymentColumns = "id, staff_id, amount_paid, base_pay, gross_pay, total_deductions, net_pay, payment_date, period_start, period_end, payment_method, transaction_reference, receipt_number, paid_by, notes, partition"

func scanCommissionPayment(row interface{ Scan(...any) error }) (*domain.CommissionPayment, error) {
	var cp domain.CommissionPayment
	if err := row.Scan(&cp.ID, &cp.StaffID, &cp.AmountPaid, &cp.BasePay, &cp.GrossPay,
		&cp.TotalDeductions, &cp.NetPay, &cp.PaymentDate, &cp.PeriodStart, &cp.PeriodEnd,
		&cp.Method, &cp.TransactionReference, &cp.ReceiptNumber, &cp.PaidBy, &cp.Notes, &cp.Partition); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *Store) loadCommissionItems(ctx context.Context, payments []*domain.CommissionPayment) error {
	if len(payments) == 0 {
		return nil
	}
	byID := make(map[string]*domain.CommissionPayment, len(payments))
	ids := make([]string, 0, len(payments))
	for _, cp := range payments {
		byID[cp.ID] = cp
		ids = append(ids, cp.ID)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payment_id, item_type, item_name, amount, is_percentage, percentage_of,
			display_order, notes, sale_id, sale_service_id, service_name, sale_number
		FROM commission_payment_items
		WHERE payment_id = ANY($1)
		ORDER BY payment_id, display_order
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.CommissionPaymentItem
		var percentageOf string
		if err := rows.Scan(&item.ID, &item.PaymentID, &item.Type, &item.Name, &item.Amount,
			&item.IsPercentage, &percentageOf, &item.DisplayOrder, &item.Notes,
			&item.SaleID, &item.SaleServiceID, &item.ServiceName, &item.SaleNumber); err != nil {
			return err
		}
		item.PercentageOf = domain.PercentageBase(percentageOf)
		if cp, ok := byID[item.PaymentID]; ok {
			cp.Items = append(cp.Items, item)
		}
	}
	return rows.Err()
}

func (s *Store) GetCommissionPayment(ctx context.Context, id string) (*domain.CommissionPayment, error) {
	cp, err := scanCommissionPayment(s.db.QueryRowContext(ctx,
		"SELECT "+commissionPaymentColumns+" FROM commission_payments WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := s.loadCommissionItems(ctx, []*domain.CommissionPayment{cp}); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *Store) ListCommissionPayments(ctx context.Context, partition domain.Partition, staffID string) ([]domain.CommissionPayment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commissionPaymentColumns+`
		FROM commission_payments
		WHERE partition = $1 AND ($2 = '' OR staff_id = $2)
		ORDER BY payment_date DESC
	`, partition, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*domain.CommissionPayment, 0, 16)
	for rows.Next() {
		cp, err := scanCommissionPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadCommissionItems(ctx, payments); err != nil {
		return nil, err
	}
	out := make([]domain.CommissionPayment, 0, len(payments))
	for _, cp := range payments {
		out = append(out, *cp)
	}
	return out, nil
}

func (s *Store) SumCommissionPaidByStaff(ctx context.Context, partition domain.Partition) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT staff_id, ROUND(SUM(CASE WHEN gross_pay <> 0 THEN gross_pay ELSE amount_paid END)::numeric, 2)
		FROM commission_payments
		WHERE partition = $1
		GROUP BY staff_id
	`, partition)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var staffID string
		var amount float64
		if err := rows.Scan(&staffID, &amount); err != nil {
			return nil, err
		}
		out[staffID] = amount
	}
	return out, rows.Err()
}

// Expenses.

const expenseColumns = "id, category, description, amount, expense_date, receipt_number, paid_by, created_by, partition, created_at"

func scanExpense(row interface{ Scan(...any) error }) (*domain.Expense, error) {
	var e domain.Expense
	if err := row.Scan(&e.ID, &e.Category, &e.Description, &e.Amount, &e.ExpenseDate,
		&e.ReceiptNumber, &e.PaidBy, &e.CreatedBy, &e.Partition, &e.CreatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	if expense.ExpenseDate.IsZero() {
		expense.ExpenseDate = expense.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, category, description, amount, expense_date, receipt_number, paid_by, created_by, partition, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, expense.ID, expense.Category, expense.Description, expense.Amount, expense.ExpenseDate,
		expense.ReceiptNumber, expense.PaidBy, expense.CreatedBy, expense.Partition, expense.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (*domain.Expense, error) {
	e, err := scanExpense(s.db.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, partition domain.Partition, from, to *time.Time, category string) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE partition = $1
		  AND ($2 = '' OR LOWER(category) = LOWER($2))
		  AND ($3::timestamptz IS NULL OR expense_date >= $3)
		  AND ($4::timestamptz IS NULL OR expense_date <= $4)
		ORDER BY expense_date DESC
	`, partition, category, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Expense, 0, 32)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE expenses
		SET category = $2, description = $3, amount = $4, expense_date = $5, receipt_number = $6, paid_by = $7
		WHERE id = $1
	`, expense.ID, expense.Category, expense.Description, expense.Amount,
		expense.ExpenseDate, expense.ReceiptNumber, expense.PaidBy)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetExpense(ctx, expense.ID)
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Appointments.

const appointmentColumns = "id, customer_id, staff_id, scheduled_at, status, notes, service_ids, partition, created_at"

func scanAppointment(row interface{ Scan(...any) error }) (*domain.Appointment, error) {
	var appt domain.Appointment
	var serviceIDs []byte
	if err := row.Scan(&appt.ID, &appt.CustomerID, &appt.StaffID, &appt.ScheduledAt,
		&appt.Status, &appt.Notes, &serviceIDs, &appt.Partition, &appt.CreatedAt); err != nil {
		return nil, err
	}
	if len(serviceIDs) > 0 {
		if err := json.Unmarshal(serviceIDs, &appt.ServiceIDs); err != nil {
			return nil, err
		}
	}
	return &appt, nil
}

func (s *Store) CreateAppointment(ctx context.Context, appt domain.Appointment) (*domain.Appointment, error) {
	if appt.ID == "" {
		appt.ID = xid.New("appt")
	}
	if appt.CreatedAt.IsZero() {
		appt.CreatedAt = time.Now().UTC()
	}
	if appt.Status == "" {
		appt.Status = domain.AppointmentStatusScheduled
	}
	serviceIDs, err := json.Marshal(appt.ServiceIDs)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO appointments (id, customer_id, staff_id, scheduled_at, status, notes, service_ids, partition, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, appt.ID, appt.CustomerID, appt.StaffID, appt.ScheduledAt, appt.Status,
		appt.Notes, serviceIDs, appt.Partition, appt.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := appt
	return &created, nil
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*domain.Appointment, error) {
	appt, err := scanAppointment(s.db.QueryRowContext(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return appt, nil
}

func (s *Store) ListAppointments(ctx context.Context, partition domain.Partition, from, to *time.Time, status string) ([]domain.Appointment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE partition = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR scheduled_at >= $3)
		  AND ($4::timestamptz IS NULL OR scheduled_at <= $4)
		ORDER BY scheduled_at
	`, partition, status, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Appointment, 0, 16)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *appt)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id string, status string) (*domain.Appointment, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE appointments SET status = $2 WHERE id = $1", id, status)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetAppointment(ctx, id)
}

func (s *Store) CompleteAppointment(ctx context.Context, id string, payment domain.Payment, at time.Time) (*domain.Appointment, *domain.Payment, error) {
	at = at.UTC()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	appt, err := scanAppointment(tx.QueryRowContext(ctx,
		"SELECT "+appointmentColumns+" FROM appointments WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	switch appt.Status {
	case domain.AppointmentStatusCompleted:
		return nil, nil, store.ErrAlreadyCompleted
	case domain.AppointmentStatusCancelled:
		return nil, nil, store.ErrValidation
	}

	if payment.ID == "" {
		payment.ID = xid.New("pay")
	}
	payment.AppointmentID = appt.ID
	payment.Status = domain.PaymentStatusCompleted
	payment.Partition = appt.Partition
	payment.CreatedAt = at
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, appointment_id, amount, payment_method, status, transaction_code, receipt_number, partition, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, payment.ID, payment.AppointmentID, payment.Amount, payment.Method, payment.Status,
		payment.TransactionCode, payment.ReceiptNumber, payment.Partition, payment.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrDuplicateReceipt
		}
		return nil, nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE appointments SET status = $2 WHERE id = $1",
		appt.ID, domain.AppointmentStatusCompleted); err != nil {
		return nil, nil, err
	}
	appt.Status = domain.AppointmentStatusCompleted

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	outPayment := payment
	return appt, &outPayment, nil
}

// Subscriptions.

func (s *Store) CreateSubscriptionIfNew(ctx context.Context, sub domain.Subscription) (bool, error) {
	if sub.ExternalReference == "" {
		return false, store.ErrValidation
	}
	if sub.ID == "" {
		sub.ID = xid.New("sub")
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, account_id, plan_name, status, external_reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (external_reference) DO NOTHING
	`, sub.ID, sub.AccountID, sub.PlanName, sub.Status, sub.ExternalReference, sub.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
