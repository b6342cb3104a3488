package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/finsync/internal/database"
	"github.com/MrJamesThe3rd/finsync/internal/ledger"
)

const selectContactColumns = `id, name, email, phone, %s, last_transaction`

func scanCustomer(s scanner) (*ledger.Customer, error) {
	var c ledger.Customer

	var last sql.NullString

	if err := s.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.TotalRevenue, &last); err != nil {
		return nil, err
	}

	t, err := database.ParseNullTime(last)
	if err != nil {
		return nil, err
	}

	c.LastTransaction = t

	return &c, nil
}

func scanVendor(s scanner) (*ledger.Vendor, error) {
	var v ledger.Vendor

	var last sql.NullString

	if err := s.Scan(&v.ID, &v.Name, &v.Email, &v.Phone, &v.TotalExpense, &last); err != nil {
		return nil, err
	}

	t, err := database.ParseNullTime(last)
	if err != nil {
		return nil, err
	}

	v.LastTransaction = t

	return &v, nil
}

func (s *Store) PutCustomer(ctx context.Context, c *ledger.Customer) error {
	if err := putCustomer(ctx, s.db, c); err != nil {
		return err
	}

	return touch(ctx, s.db)
}

func putCustomer(ctx context.Context, q queryer, c *ledger.Customer) error {
	query := `INSERT OR REPLACE INTO customers (` + fmt.Sprintf(selectContactColumns, "total_revenue") + `)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		c.ID, c.Name, c.Email, c.Phone, c.TotalRevenue.String(), database.NullTime(c.LastTransaction),
	)
	if err != nil {
		return storageErr("putting customer", err)
	}

	return nil
}

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*ledger.Customer, error) {
	query := `SELECT ` + fmt.Sprintf(selectContactColumns, "total_revenue") + ` FROM customers WHERE id = ?`

	c, err := scanCustomer(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrCustomerNotFound
		}

		return nil, storageErr("getting customer", err)
	}

	return c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]*ledger.Customer, error) {
	return listCustomers(ctx, s.db)
}

func listCustomers(ctx context.Context, q queryer) ([]*ledger.Customer, error) {
	query := `SELECT ` + fmt.Sprintf(selectContactColumns, "total_revenue") + ` FROM customers ORDER BY name, id`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("listing customers", err)
	}
	defer rows.Close()

	customers := []*ledger.Customer{}

	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, storageErr("scanning customer", err)
		}

		customers = append(customers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("listing customers", err)
	}

	return customers, nil
}

func (s *Store) PutVendor(ctx context.Context, v *ledger.Vendor) error {
	if err := putVendor(ctx, s.db, v); err != nil {
		return err
	}

	return touch(ctx, s.db)
}

func putVendor(ctx context.Context, q queryer, v *ledger.Vendor) error {
	query := `INSERT OR REPLACE INTO vendors (` + fmt.Sprintf(selectContactColumns, "total_expense") + `)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		v.ID, v.Name, v.Email, v.Phone, v.TotalExpense.String(), database.NullTime(v.LastTransaction),
	)
	if err != nil {
		return storageErr("putting vendor", err)
	}

	return nil
}

func (s *Store) GetVendor(ctx context.Context, id uuid.UUID) (*ledger.Vendor, error) {
	query := `SELECT ` + fmt.Sprintf(selectContactColumns, "total_expense") + ` FROM vendors WHERE id = ?`

	v, err := scanVendor(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrVendorNotFound
		}

		return nil, storageErr("getting vendor", err)
	}

	return v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]*ledger.Vendor, error) {
	return listVendors(ctx, s.db)
}

func listVendors(ctx context.Context, q queryer) ([]*ledger.Vendor, error) {
	query := `SELECT ` + fmt.Sprintf(selectContactColumns, "total_expense") + ` FROM vendors ORDER BY name, id`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("listing vendors", err)
	}
	defer rows.Close()

	vendors := []*ledger.Vendor{}

	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, storageErr("scanning vendor", err)
		}

		vendors = append(vendors, v)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("listing vendors", err)
	}

	return vendors, nil
}

const selectDocumentColumns = `id, name, mime_type, size, category, uploaded_at, tags, url`

func scanDocument(s scanner) (*ledger.Document, error) {
	var d ledger.Document

	var category, uploadedAt, tags string

	if err := s.Scan(&d.ID, &d.Name, &d.MimeType, &d.Size, &category, &uploadedAt, &tags, &d.URL); err != nil {
		return nil, err
	}

	d.Category = ledger.DocumentCategory(category)

	t, err := database.ParseTime(uploadedAt)
	if err != nil {
		return nil, err
	}

	d.UploadedAt = t

	if err := json.Unmarshal([]byte(tags), &d.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}

	return &d, nil
}

func (s *Store) PutDocument(ctx context.Context, d *ledger.Document) error {
	if err := putDocument(ctx, s.db, d); err != nil {
		return err
	}

	return touch(ctx, s.db)
}

func putDocument(ctx context.Context, q queryer, d *ledger.Document) error {
	tags, err := encodeTags(d.Tags)
	if err != nil {
		return err
	}

	query := `INSERT OR REPLACE INTO documents (` + selectDocumentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = q.ExecContext(ctx, query,
		d.ID, d.Name, d.MimeType, d.Size, d.Category, database.FormatTime(d.UploadedAt), tags, d.URL,
	)
	if err != nil {
		return storageErr("putting document", err)
	}

	return nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]*ledger.Document, error) {
	return listDocuments(ctx, s.db)
}

func listDocuments(ctx context.Context, q queryer) ([]*ledger.Document, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+selectDocumentColumns+` FROM documents ORDER BY uploaded_at DESC, id`)
	if err != nil {
		return nil, storageErr("listing documents", err)
	}
	defer rows.Close()

	docs := []*ledger.Document{}

	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, storageErr("scanning document", err)
		}

		docs = append(docs, d)
	}

	if err := rows.Err(); err != nil {
		return nil, storageErr("listing documents", err)
	}

	return docs, nil
}
