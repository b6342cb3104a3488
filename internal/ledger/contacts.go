package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateContactParams struct {
	Name  string
	Email string
	Phone string
}

type CreateDocumentParams struct {
	Name     string
	MimeType string
	Size     int64
	Category DocumentCategory
	Tags     []string
	URL      string
}

func (s *Service) CreateCustomer(ctx context.Context, params CreateContactParams) (*Customer, error) {
	c := &Customer{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(params.Name),
		Email:        strings.TrimSpace(params.Email),
		Phone:        strings.TrimSpace(params.Phone),
		TotalRevenue: decimal.Zero,
	}
	if err := ValidateCustomer(c); err != nil {
		return nil, err
	}

	release := s.gate.Shared()
	defer release()

	if err := s.repo.PutCustomer(ctx, c); err != nil {
		return nil, err
	}

	return c, nil
}

func (s *Service) GetCustomer(ctx context.Context, id uuid.UUID) (*Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context) ([]*Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateVendor(ctx context.Context, params CreateContactParams) (*Vendor, error) {
	v := &Vendor{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(params.Name),
		Email:        strings.TrimSpace(params.Email),
		Phone:        strings.TrimSpace(params.Phone),
		TotalExpense: decimal.Zero,
	}
	if err := ValidateVendor(v); err != nil {
		return nil, err
	}

	release := s.gate.Shared()
	defer release()

	if err := s.repo.PutVendor(ctx, v); err != nil {
		return nil, err
	}

	return v, nil
}

func (s *Service) GetVendor(ctx context.Context, id uuid.UUID) (*Vendor, error) {
	return s.repo.GetVendor(ctx, id)
}

func (s *Service) ListVendors(ctx context.Context) ([]*Vendor, error) {
	return s.repo.ListVendors(ctx)
}

func (s *Service) AddDocument(ctx context.Context, params CreateDocumentParams) (*Document, error) {
	d := &Document{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(params.Name),
		MimeType:   params.MimeType,
		Size:       params.Size,
		Category:   params.Category,
		UploadedAt: s.now().UTC(),
		Tags:       params.Tags,
		URL:        params.URL,
	}
	if d.Category == "" {
		d.Category = DocumentOther
	}

	if d.Tags == nil {
		d.Tags = []string{}
	}

	if err := ValidateDocument(d); err != nil {
		return nil, err
	}

	release := s.gate.Shared()
	defer release()

	if err := s.repo.PutDocument(ctx, d); err != nil {
		return nil, err
	}

	return d, nil
}

func (s *Service) ListDocuments(ctx context.Context) ([]*Document, error) {
	return s.repo.ListDocuments(ctx)
}
