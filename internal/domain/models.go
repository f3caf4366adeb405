package domain

import (
	"math"
	"time"
)

// Partition separates demo (sandbox) rows from live rows. It is passed
// explicitly through every repository call so a missing partition is a
// compile-time omission, not a runtime data leak.
type Partition string

const (
	PartitionLive Partition = "live"
	PartitionDemo Partition = "demo"
)

func (p Partition) IsDemo() bool {
	return p == PartitionDemo
}

// ParsePartition maps the demo toggle used by the HTTP layer onto a Partition.
func ParsePartition(demo bool) Partition {
	if demo {
		return PartitionDemo
	}
	return PartitionLive
}

// VATRate is the statutory VAT rate applied to all tax-inclusive prices.
const VATRate = 0.16

// LoyaltyPointDivisor awards one loyalty point per this many KES spent.
const LoyaltyPointDivisor = 100.0

// Round2 rounds to 2 decimal places. Applied at persist/response boundaries,
// never during intermediate accumulation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// TaxExclusive back-calculates the pre-VAT amount from a tax-inclusive total.
func TaxExclusive(inclusive float64) float64 {
	return Round2(inclusive / (1 + VATRate))
}

type Staff struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone,omitempty"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role"`
	PINHash   string     `json:"-"`
	Active    bool       `json:"active"`
	BasePay   float64    `json:"base_pay"`
	Partition Partition  `json:"partition"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type StaffCreateRequest struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Email   string  `json:"email"`
	Role    string  `json:"role"`
	PIN     string  `json:"pin"`
	Active  *bool   `json:"active,omitempty"`
	BasePay float64 `json:"base_pay"`
	Demo    bool    `json:"demo"`
}

type StaffUpdateRequest struct {
	Name    *string  `json:"name,omitempty"`
	Phone   *string  `json:"phone,omitempty"`
	Email   *string  `json:"email,omitempty"`
	Role    *string  `json:"role,omitempty"`
	PIN     *string  `json:"pin,omitempty"`
	Active  *bool    `json:"active,omitempty"`
	BasePay *float64 `json:"base_pay,omitempty"`
}

type StaffLoginLog struct {
	ID             string     `json:"id"`
	StaffID        string     `json:"staff_id"`
	LoginTime      time.Time  `json:"login_time"`
	LogoutTime     *time.Time `json:"logout_time,omitempty"`
	SessionSeconds int        `json:"session_seconds,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
	DemoExpiresAt  *time.Time `json:"demo_expires_at,omitempty"`
}

type Customer struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Phone         string     `json:"phone,omitempty"`
	Email         string     `json:"email,omitempty"`
	LoyaltyPoints int        `json:"loyalty_points"`
	TotalVisits   int        `json:"total_visits"`
	TotalSpent    float64    `json:"total_spent"`
	LastVisit     *time.Time `json:"last_visit,omitempty"`
	Partition     Partition  `json:"partition"`
	CreatedAt     time.Time  `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Demo  bool   `json:"demo"`
}

// Service is one catalog entry for salon work (cut, braiding, facial, ...).
type Service struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category,omitempty"`
	Price           float64   `json:"price"`
	DurationMinutes int       `json:"duration_minutes"`
	CommissionRate  float64   `json:"commission_rate"`
	CreatedAt       time.Time `json:"created_at"`
}

type ServiceCreateRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	Price           float64  `json:"price"`
	DurationMinutes int      `json:"duration_minutes"`
	CommissionRate  *float64 `json:"commission_rate,omitempty"`
}

type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Category      string    `json:"category,omitempty"`
	UnitPrice     float64   `json:"unit_price"`
	SellingPrice  float64   `json:"selling_price"`
	StockQuantity float64   `json:"stock_quantity"`
	MinStockLevel float64   `json:"min_stock_level"`
	Partition     Partition `json:"partition"`
	CreatedAt     time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Name          string  `json:"name"`
	Category      string  `json:"category"`
	UnitPrice     float64 `json:"unit_price"`
	SellingPrice  float64 `json:"selling_price"`
	StockQuantity float64 `json:"stock_quantity"`
	MinStockLevel float64 `json:"min_stock_level"`
	Demo          bool    `json:"demo"`
}

type ProductUpdateRequest struct {
	Name          *string  `json:"name,omitempty"`
	Category      *string  `json:"category,omitempty"`
	UnitPrice     *float64 `json:"unit_price,omitempty"`
	SellingPrice  *float64 `json:"selling_price,omitempty"`
	StockQuantity *float64 `json:"stock_quantity,omitempty"`
	MinStockLevel *float64 `json:"min_stock_level,omitempty"`
}

const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
)

type Sale struct {
	ID               string            `json:"id"`
	SaleNumber       string            `json:"sale_number"`
	StaffID          string            `json:"staff_id"`
	CustomerID       string            `json:"customer_id,omitempty"`
	CustomerName     string            `json:"customer_name,omitempty"`
	CustomerPhone    string            `json:"customer_phone,omitempty"`
	Status           string            `json:"status"`
	Subtotal         float64           `json:"subtotal"`
	TaxAmount        float64           `json:"tax_amount"`
	TotalAmount      float64           `json:"total_amount"`
	CommissionAmount float64           `json:"commission_amount"`
	Notes            string            `json:"notes,omitempty"`
	Partition        Partition         `json:"partition"`
	CreatedAt        time.Time         `json:"created_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	Services         []SaleServiceLine `json:"services"`
	Products         []SaleProductLine `json:"products"`
}

type SaleServiceLine struct {
	ID               string  `json:"id"`
	SaleID           string  `json:"sale_id"`
	ServiceID        string  `json:"service_id"`
	ServiceName      string  `json:"service_name"`
	Quantity         int     `json:"quantity"`
	UnitPrice        float64 `json:"unit_price"`
	TotalPrice       float64 `json:"total_price"`
	CommissionRate   float64 `json:"commission_rate"`
	CommissionAmount float64 `json:"commission_amount"`
}

type SaleProductLine struct {
	ID            string  `json:"id"`
	SaleID        string  `json:"sale_id"`
	ProductID     string  `json:"product_id"`
	ProductName   string  `json:"product_name"`
	Quantity      float64 `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	TotalPrice    float64 `json:"total_price"`
	StockDeducted bool    `json:"stock_deducted"`
}

// ProductUsage is the audit trail row written when stock is deducted.
type ProductUsage struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	SaleID       string    `json:"sale_id"`
	QuantityUsed float64   `json:"quantity_used"`
	UsedAt       time.Time `json:"used_at"`
}

type SaleServiceInput struct {
	ServiceID       string   `json:"service_id"`
	Name            string   `json:"name,omitempty"`
	Price           *float64 `json:"price,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	CommissionRate  *float64 `json:"commission_rate,omitempty"`
	Quantity        int      `json:"quantity"`
}

type SaleProductInput struct {
	ProductID string  `json:"product_id"`
	Quantity  float64 `json:"quantity"`
}

type SaleCreateRequest struct {
	StaffID       string             `json:"staff_id"`
	CustomerName  string             `json:"customer_name,omitempty"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	CustomerEmail string             `json:"customer_email,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	Services      []SaleServiceInput `json:"services"`
	Products      []SaleProductInput `json:"products"`
}

// SkippedLine reports a sale line that could not be resolved to a catalog
// entry and was dropped rather than failing the whole sale.
type SkippedLine struct {
	Kind   string `json:"kind"`
	RefID  string `json:"ref_id"`
	Reason string `json:"reason"`
}

type SaleCreateResponse struct {
	Sale    Sale          `json:"sale"`
	Skipped []SkippedLine `json:"skipped,omitempty"`
}

type SaleCompleteRequest struct {
	PaymentMethod   string `json:"payment_method"`
	TransactionCode string `json:"transaction_code,omitempty"`
	ReceiptNumber   string `json:"receipt_number,omitempty"`
}

type SaleCompleteResponse struct {
	Sale    Sale    `json:"sale"`
	Payment Payment `json:"payment"`
}

type SaleListFilter struct {
	StaffID string
	Status  string
	From    *time.Time
	To      *time.Time
	Limit   int
}

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusRefunded  = "refunded"
)

type Payment struct {
	ID              string    `json:"id"`
	SaleID          string    `json:"sale_id,omitempty"`
	AppointmentID   string    `json:"appointment_id,omitempty"`
	Amount          float64   `json:"amount"`
	Method          string    `json:"payment_method"`
	Status          string    `json:"status"`
	TransactionCode string    `json:"transaction_code,omitempty"`
	ReceiptNumber   string    `json:"receipt_number,omitempty"`
	Partition       Partition `json:"partition"`
	CreatedAt       time.Time `json:"created_at"`
}

// PercentageBase is the closed set of bases a percentage payroll item may
// resolve against.
type PercentageBase string

const (
	PercentageOfGrossPay PercentageBase = "gross_pay"
	PercentageOfBasePay  PercentageBase = "base_pay"
)

// Valid reports whether the tag is one of the recognized bases.
func (b PercentageBase) Valid() bool {
	return b == PercentageOfGrossPay || b == PercentageOfBasePay
}

// Resolve returns the numeric base for this tag. ok is false when the tag is
// unknown or the referenced base is unavailable.
func (b PercentageBase) Resolve(grossPay, basePay *float64) (float64, bool) {
	switch b {
	case PercentageOfGrossPay:
		if grossPay == nil {
			return 0, false
		}
		return *grossPay, true
	case PercentageOfBasePay:
		if basePay == nil {
			return 0, false
		}
		return *basePay, true
	default:
		return 0, false
	}
}

const (
	PayrollItemEarning   = "earning"
	PayrollItemDeduction = "deduction"
)

type CommissionPayment struct {
	ID                   string                  `json:"id"`
	StaffID              string                  `json:"staff_id"`
	AmountPaid           float64                 `json:"amount_paid"`
	BasePay              float64                 `json:"base_pay"`
	GrossPay             float64                 `json:"gross_pay"`
	TotalDeductions      float64                 `json:"total_deductions"`
	NetPay               float64                 `json:"net_pay"`
	PaymentDate          time.Time               `json:"payment_date"`
	PeriodStart          time.Time               `json:"period_start"`
	PeriodEnd            time.Time               `json:"period_end"`
	Method               string                  `json:"payment_method,omitempty"`
	TransactionReference string                  `json:"transaction_reference,omitempty"`
	ReceiptNumber        string                  `json:"receipt_number"`
	PaidBy               string                  `json:"paid_by,omitempty"`
	Notes                string                  `json:"notes,omitempty"`
	Partition            Partition               `json:"partition"`
	Items                []CommissionPaymentItem `json:"items"`
}

type CommissionPaymentItem struct {
	ID            string         `json:"id"`
	PaymentID     string         `json:"payment_id"`
	Type          string         `json:"item_type"`
	Name          string         `json:"item_name"`
	Amount        float64        `json:"amount"`
	IsPercentage  bool           `json:"is_percentage"`
	PercentageOf  PercentageBase `json:"percentage_of,omitempty"`
	DisplayOrder  int            `json:"display_order"`
	Notes         string         `json:"notes,omitempty"`
	SaleID        string         `json:"sale_id,omitempty"`
	SaleServiceID string         `json:"sale_service_id,omitempty"`
	ServiceName   string         `json:"service_name,omitempty"`
	SaleNumber    string         `json:"sale_number,omitempty"`
}

type PayrollItemInput struct {
	Name          string         `json:"item_name"`
	Amount        float64        `json:"amount"`
	IsPercentage  bool           `json:"is_percentage"`
	PercentageOf  PercentageBase `json:"percentage_of,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	SaleID        string         `json:"sale_id,omitempty"`
	SaleServiceID string         `json:"sale_service_id,omitempty"`
	ServiceName   string         `json:"service_name,omitempty"`
	SaleNumber    string         `json:"sale_number,omitempty"`
}

type CommissionPaymentRequest struct {
	StaffID                 string             `json:"staff_id"`
	PeriodStart             string             `json:"period_start,omitempty"`
	PeriodEnd               string             `json:"period_end,omitempty"`
	BasePay                 *float64           `json:"base_pay,omitempty"`
	PaymentMethod           string             `json:"payment_method,omitempty"`
	TransactionReference    string             `json:"transaction_reference,omitempty"`
	ReceiptNumber           string             `json:"receipt_number,omitempty"`
	PaidBy                  string             `json:"paid_by,omitempty"`
	Notes                   string             `json:"notes,omitempty"`
	AutoPopulateCommissions *bool              `json:"auto_populate_commissions,omitempty"`
	Earnings                []PayrollItemInput `json:"earnings"`
	Deductions              []PayrollItemInput `json:"deductions"`
}

type StaffPendingCommission struct {
	StaffID          string  `json:"staff_id"`
	StaffName        string  `json:"staff_name"`
	TotalSales       float64 `json:"total_sales"`
	TotalCommission  float64 `json:"total_commission"`
	TransactionCount int     `json:"transaction_count"`
	PaidAmount       float64 `json:"paid_amount"`
	PendingAmount    float64 `json:"pending_amount"`
}

type PendingCommissionsResponse struct {
	PendingCommissions []StaffPendingCommission `json:"pending_commissions"`
	TotalPending       float64                  `json:"total_pending"`
	TotalCommission    float64                  `json:"total_commission"`
}

type Expense struct {
	ID            string    `json:"id"`
	Category      string    `json:"category"`
	Description   string    `json:"description,omitempty"`
	Amount        float64   `json:"amount"`
	ExpenseDate   time.Time `json:"expense_date"`
	ReceiptNumber string    `json:"receipt_number,omitempty"`
	PaidBy        string    `json:"paid_by,omitempty"`
	CreatedBy     string    `json:"created_by,omitempty"`
	Partition     Partition `json:"partition"`
	CreatedAt     time.Time `json:"created_at"`
}

type ExpenseCreateRequest struct {
	Category      string  `json:"category"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	ExpenseDate   string  `json:"expense_date,omitempty"`
	ReceiptNumber string  `json:"receipt_number,omitempty"`
	PaidBy        string  `json:"paid_by,omitempty"`
	CreatedBy     string  `json:"created_by,omitempty"`
	Demo          bool    `json:"demo"`
}

const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusCompleted = "completed"
	AppointmentStatusCancelled = "cancelled"
)

type Appointment struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customer_id"`
	StaffID     string    `json:"staff_id,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
	ServiceIDs  []string  `json:"service_ids"`
	Partition   Partition `json:"partition"`
	CreatedAt   time.Time `json:"created_at"`
}

type AppointmentCreateRequest struct {
	CustomerID  string   `json:"customer_id"`
	StaffID     string   `json:"staff_id,omitempty"`
	ScheduledAt string   `json:"scheduled_at"`
	Notes       string   `json:"notes,omitempty"`
	ServiceIDs  []string `json:"service_ids"`
	Demo        bool     `json:"demo"`
}

type AppointmentCompleteRequest struct {
	PaymentMethod   string  `json:"payment_method"`
	Amount          float64 `json:"amount"`
	TransactionCode string  `json:"transaction_code,omitempty"`
}

// Subscription records a billing plan activated through the payment gateway
// webhook. ExternalReference is the gateway's payment reference and the
// idempotency key.
type Subscription struct {
	ID                string    `json:"id"`
	AccountID         string    `json:"account_id"`
	PlanName          string    `json:"plan_name"`
	Status            string    `json:"status"`
	ExternalReference string    `json:"external_reference"`
	CreatedAt         time.Time `json:"created_at"`
}

type Actor struct {
	StaffID string
	Name    string
	Role    string
	Demo    bool
}

type LoginRequest struct {
	StaffID string `json:"staff_id"`
	PIN     string `json:"pin"`
}

type LoginResponse struct {
	AccessToken   string     `json:"access_token"`
	Staff         Staff      `json:"staff"`
	LoginLogID    string     `json:"login_log_id"`
	Demo          bool       `json:"demo"`
	DemoExpiresAt *time.Time `json:"demo_expires_at,omitempty"`
	ExpiresAt     string     `json:"expires_at"`
}

type LogoutRequest struct {
	LoginLogID string `json:"login_log_id,omitempty"`
	StaffID    string `json:"staff_id,omitempty"`
}
