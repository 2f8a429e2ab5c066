package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordSource reads one business table of the inventory application.
type RecordSource struct {
	db         dbtx
	entityType domain.EntityType
	selectSQL  string
	scan       func(pgx.Row) (domain.Record, error)
}

func (s *RecordSource) EntityType() domain.EntityType {
	return s.entityType
}

// ListRecords returns every row of the table.
func (s *RecordSource) ListRecords(ctx context.Context) ([]domain.Record, error) {
	return s.query(ctx, s.selectSQL+` ORDER BY id`)
}

// ListRecordsChangedSince returns rows updated strictly after since.
func (s *RecordSource) ListRecordsChangedSince(ctx context.Context, since time.Time) ([]domain.Record, error) {
	return s.query(ctx, s.selectSQL+` WHERE updated_at > $1 ORDER BY id`, since)
}

func (s *RecordSource) query(ctx context.Context, sql string, args ...any) ([]domain.Record, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.entityType, err)
	}
	defer rows.Close()

	records := make([]domain.Record, 0)
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", s.entityType, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func NewUserSource(pool *pgxpool.Pool) *RecordSource {
	return &RecordSource{
		db:         pool,
		entityType: domain.EntityUsers,
		selectSQL:  `SELECT id, name, email, role, active, last_login, created_at, updated_at FROM users`,
		scan: func(row pgx.Row) (domain.Record, error) {
			var u domain.User
			var lastLogin pgtype.Timestamptz
			if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Active, &lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
				return nil, err
			}
			if lastLogin.Valid {
				t := lastLogin.Time
				u.LastLogin = &t
			}
			return u, nil
		},
	}
}

func NewClientSource(pool *pgxpool.Pool) *RecordSource {
	return &RecordSource{
		db:         pool,
		entityType: domain.EntityClients,
		selectSQL: `SELECT id, name, email, phone, company, city, category, balance, credit_limit, active, created_at, updated_at
			FROM clients`,
		scan: func(row pgx.Row) (domain.Record, error) {
			var c domain.Client
			err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company, &c.City, &c.Category,
				&c.Balance, &c.CreditLimit, &c.Active, &c.CreatedAt, &c.UpdatedAt)
			return c, err
		},
	}
}

func NewProductSource(pool *pgxpool.Pool) *RecordSource {
	return &RecordSource{
		db:         pool,
		entityType: domain.EntityProducts,
		selectSQL: `SELECT id, name, sku, category, description, quantity, min_stock, unit_price, supplier_id, active, created_at, updated_at
			FROM products`,
		scan: func(row pgx.Row) (domain.Record, error) {
			var p domain.Product
			err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &p.Description, &p.Quantity, &p.MinStock,
				&p.UnitPrice, &p.SupplierID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
			return p, err
		},
	}
}

func NewSupplierSource(pool *pgxpool.Pool) *RecordSource {
	return &RecordSource{
		db:         pool,
		entityType: domain.EntitySuppliers,
		selectSQL:  `SELECT id, name, email, phone, city, category, active, created_at, updated_at FROM suppliers`,
		scan: func(row pgx.Row) (domain.Record, error) {
			var s domain.Supplier
			err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Phone, &s.City, &s.Category, &s.Active, &s.CreatedAt, &s.UpdatedAt)
			return s, err
		},
	}
}

func NewPurchaseSource(pool *pgxpool.Pool) *RecordSource {
	return &RecordSource{
		db:         pool,
		entityType: domain.EntityPurchases,
		selectSQL: `SELECT id, reference, supplier_id, status, total_amount, item_count, ordered_at, expected_at, created_at, updated_at
			FROM purchases`,
		scan: func(row pgx.Row) (domain.Record, error) {
			var p domain.Purchase
			var expected pgtype.Timestamptz
			if err := row.Scan(&p.ID, &p.Reference, &p.SupplierID, &p.Status, &p.TotalAmount, &p.ItemCount,
				&p.OrderedAt, &expected, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return nil, err
			}
			if expected.Valid {
				t := expected.Time
				p.ExpectedAt = &t
			}
			return p, nil
		},
	}
}

func NewInvoiceSource(pool *pgxpool.Pool) *RecordSource {
	return &RecordSource{
		db:         pool,
		entityType: domain.EntityInvoices,
		selectSQL: `SELECT id, number, client_id, status, total_amount, paid_amount, issued_at, due_date, created_at, updated_at
			FROM invoices`,
		scan: func(row pgx.Row) (domain.Record, error) {
			var i domain.Invoice
			err := row.Scan(&i.ID, &i.Number, &i.ClientID, &i.Status, &i.TotalAmount, &i.PaidAmount,
				&i.IssuedAt, &i.DueDate, &i.CreatedAt, &i.UpdatedAt)
			return i, err
		},
	}
}

// NewRecordSources returns a source for every entity type.
func NewRecordSources(pool *pgxpool.Pool) []*RecordSource {
	return []*RecordSource{
		NewUserSource(pool),
		NewClientSource(pool),
		NewProductSource(pool),
		NewSupplierSource(pool),
		NewPurchaseSource(pool),
		NewInvoiceSource(pool),
	}
}
