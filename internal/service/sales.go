package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/GibsonWaheire/POS-salon/internal/domain"
	"github.com/GibsonWaheire/POS-salon/internal/payroll"
	"github.com/GibsonWaheire/POS-salon/internal/store"
)

// CreateSale opens a pending walk-in sale. Line items are resolved against
// the catalog; unresolvable ones are skipped and reported back rather than
// failing the whole request. All listed prices are tax-inclusive, so the
// subtotal is back-calculated and commission runs on the pre-VAT share.
func (s *Service) CreateSale(ctx context.Context, partition domain.Partition, req domain.SaleCreateRequest) (domain.SaleCreateResponse, error) {
	staff, err := s.repo.GetStaff(ctx, strings.TrimSpace(req.StaffID))
	if err != nil {
		return domain.SaleCreateResponse{}, err
	}
	if !staff.Active {
		return domain.SaleCreateResponse{}, fmt.Errorf("%w: staff account is inactive", store.ErrValidation)
	}
	if len(req.Services) == 0 && len(req.Products) == 0 {
		return domain.SaleCreateResponse{}, fmt.Errorf("%w: at least one service or product line is required", store.ErrValidation)
	}

	sale := domain.Sale{
		StaffID:       staff.ID,
		Status:        domain.SaleStatusPending,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Notes:         strings.TrimSpace(req.Notes),
		Partition:     partition,
	}

	if sale.CustomerName != "" {
		customer, err := s.resolveCustomer(ctx, partition, sale.CustomerName, sale.CustomerPhone, req.CustomerEmail)
		if err != nil {
			return domain.SaleCreateResponse{}, err
		}
		sale.CustomerID = customer.ID
	}

	var skipped []domain.SkippedLine
	total := 0.0
	commission := 0.0

	for _, input := range req.Services {
		svc, skip := s.resolveServiceLine(ctx, input)
		if skip != nil {
			skipped = append(skipped, *skip)
			continue
		}
		qty := input.Quantity
		if qty < 1 {
			qty = 1
		}
		price := svc.Price
		if input.Price != nil && *input.Price > 0 {
			price = domain.Round2(*input.Price)
		}
		rate := svc.CommissionRate
		if input.CommissionRate != nil {
			if *input.CommissionRate < 0 || *input.CommissionRate > 1 {
				return domain.SaleCreateResponse{}, fmt.Errorf("%w: commission rate must be between 0 and 1", store.ErrValidation)
			}
			rate = *input.CommissionRate
		}
		lineTotal := domain.Round2(price * float64(qty))
		lineCommission := payroll.ServiceCommission(lineTotal, rate)
		sale.Services = append(sale.Services, domain.SaleServiceLine{
			ServiceID:        svc.ID,
			ServiceName:      svc.Name,
			Quantity:         qty,
			UnitPrice:        price,
			TotalPrice:       lineTotal,
			CommissionRate:   rate,
			CommissionAmount: lineCommission,
		})
		total += lineTotal
		commission += lineCommission
	}

	for _, input := range req.Products {
		if input.Quantity <= 0 {
			return domain.SaleCreateResponse{}, fmt.Errorf("%w: product quantity must be positive", store.ErrValidation)
		}
		product, err := s.repo.GetProduct(ctx, input.ProductID)
		if err != nil {
			skipped = append(skipped, domain.SkippedLine{
				Kind:   "product",
				RefID:  input.ProductID,
				Reason: "product not found",
			})
			continue
		}
		lineTotal := domain.Round2(product.SellingPrice * input.Quantity)
		sale.Products = append(sale.Products, domain.SaleProductLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    input.Quantity,
			UnitPrice:   product.SellingPrice,
			TotalPrice:  lineTotal,
		})
		total += lineTotal
	}

	if len(sale.Services) == 0 && len(sale.Products) == 0 {
		return domain.SaleCreateResponse{}, fmt.Errorf("%w: no line item could be resolved", store.ErrValidation)
	}

	sale.TotalAmount = domain.Round2(total)
	sale.Subtotal = domain.TaxExclusive(sale.TotalAmount)
	sale.TaxAmount = domain.Round2(sale.TotalAmount - sale.Subtotal)
	sale.CommissionAmount = domain.Round2(commission)

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.SaleCreateResponse{}, err
	}
	log.Printf("[service] sale created number=%s staff=%s total=%.2f skipped=%d",
		created.SaleNumber, created.StaffID, created.TotalAmount, len(skipped))
	return domain.SaleCreateResponse{Sale: *created, Skipped: skipped}, nil
}

func (s *Service) resolveCustomer(ctx context.Context, partition domain.Partition, name, phone, email string) (*domain.Customer, error) {
	if phone != "" {
		if existing, err := s.repo.FindCustomerByPhone(ctx, partition, phone); err == nil {
			return existing, nil
		}
	}
	return s.repo.CreateCustomer(ctx, domain.Customer{
		Name:      name,
		Phone:     phone,
		Email:     strings.TrimSpace(email),
		Partition: partition,
	})
}

// resolveServiceLine finds the catalog service for a line, falling back to
// name lookup and finally to creating the catalog entry from the submitted
// details. A nil service with a non-nil skip means the line is dropped.
func (s *Service) resolveServiceLine(ctx context.Context, input domain.SaleServiceInput) (*domain.Service, *domain.SkippedLine) {
	if input.ServiceID != "" {
		if svc, err := s.repo.GetService(ctx, input.ServiceID); err == nil {
			return svc, nil
		}
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, &domain.SkippedLine{
			Kind:   "service",
			RefID:  input.ServiceID,
			Reason: "service not found and no name given",
		}
	}
	if svc, err := s.repo.FindServiceByName(ctx, name); err == nil {
		return svc, nil
	}
	if input.Price == nil || *input.Price <= 0 {
		return nil, &domain.SkippedLine{
			Kind:   "service",
			RefID:  name,
			Reason: "unknown service and no price to create it from",
		}
	}
	rate := defaultCommissionRate
	if input.CommissionRate != nil && *input.CommissionRate >= 0 && *input.CommissionRate <= 1 {
		rate = *input.CommissionRate
	}
	created, err := s.repo.CreateService(ctx, domain.Service{
		Name:            name,
		Price:           domain.Round2(*input.Price),
		DurationMinutes: input.DurationMinutes,
		CommissionRate:  rate,
	})
	if err != nil {
		return nil, &domain.SkippedLine{Kind: "service", RefID: name, Reason: "could not create catalog entry"}
	}
	return created, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, partition domain.Partition, filter domain.SaleListFilter) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, partition, filter)
}

// CompleteSale finalizes payment on a pending sale. The store runs the
// atomic transaction; this layer validates the payment input.
func (s *Service) CompleteSale(ctx context.Context, saleID string, req domain.SaleCompleteRequest) (domain.SaleCompleteResponse, error) {
	method, code, err := validatePaymentInput(req.PaymentMethod, req.TransactionCode)
	if err != nil {
		return domain.SaleCompleteResponse{}, err
	}
	sale, payment, err := s.repo.CompleteSale(ctx, saleID, domain.Payment{
		Method:          method,
		TransactionCode: code,
		ReceiptNumber:   strings.TrimSpace(req.ReceiptNumber),
	}, time.Now().UTC())
	if err != nil {
		return domain.SaleCompleteResponse{}, err
	}
	log.Printf("[service] sale completed number=%s method=%s receipt=%s",
		sale.SaleNumber, payment.Method, payment.ReceiptNumber)
	s.invalidateReports(ctx, sale.Partition)
	return domain.SaleCompleteResponse{Sale: *sale, Payment: *payment}, nil
}

// ReceiptData is everything a front end needs to render a sale receipt.
type ReceiptData struct {
	Sale          domain.Sale     `json:"sale"`
	Payment       *domain.Payment `json:"payment,omitempty"`
	ReceiptNumber string          `json:"receipt_number,omitempty"`
	Subtotal      float64         `json:"subtotal"`
	VATAmount     float64         `json:"vat_amount"`
	VATRate       float64         `json:"vat_rate"`
	Total         float64         `json:"total"`
	StaffName     string          `json:"staff_name,omitempty"`
}

func (s *Service) SaleReceipt(ctx context.Context, saleID string) (ReceiptData, error) {
	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return ReceiptData{}, err
	}
	data := ReceiptData{
		Sale:      *sale,
		Subtotal:  sale.Subtotal,
		VATAmount: sale.TaxAmount,
		VATRate:   domain.VATRate,
		Total:     sale.TotalAmount,
	}
	if staff, err := s.repo.GetStaff(ctx, sale.StaffID); err == nil {
		data.StaffName = staff.Name
	}
	if sale.Status == domain.SaleStatusCompleted {
		payments, err := s.repo.ListPayments(ctx, sale.Partition, nil, nil)
		if err != nil {
			return ReceiptData{}, err
		}
		for i := range payments {
			if payments[i].SaleID == sale.ID {
				p := payments[i]
				data.Payment = &p
				data.ReceiptNumber = p.ReceiptNumber
				break
			}
		}
	}
	return data, nil
}
