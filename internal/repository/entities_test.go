//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSources_ListAndChangedSince(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := pool.Exec(ctx,
		`INSERT INTO products (id, name, sku, category, quantity, min_stock, unit_price, supplier_id, updated_at)
		 VALUES ('p-1', 'Bolt M6', 'B-M6', 'hardware', 3, 10, 0.25, 's-1', $1),
		        ('p-2', 'Nut M6', 'N-M6', 'hardware', 50, 10, 0.10, 's-1', $2)`,
		old, recent,
	)
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		`INSERT INTO invoices (id, number, client_id, status, total_amount, paid_amount, due_date, updated_at)
		 VALUES ('inv-1', 'F-2026-001', 'c-1', 'sent', 1200.50, 200, $1, $2)`,
		old, recent,
	)
	require.NoError(t, err)

	products := NewProductSource(pool)
	all, err := products.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	p, ok := all[0].(domain.Product)
	require.True(t, ok)
	assert.Equal(t, "Bolt M6", p.Name)
	assert.Equal(t, 3, p.Quantity)
	assert.Equal(t, 0.25, p.UnitPrice)

	changed, err := products.ListRecordsChangedSince(ctx, old)
	require.NoError(t, err)
	require.Len(t, changed, 1)
	assert.Equal(t, "p-2", changed[0].RecordID())

	invoices, err := NewInvoiceSource(pool).ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	inv := invoices[0].(domain.Invoice)
	assert.Equal(t, 1000.50, inv.Outstanding())

	sources := NewRecordSources(pool)
	require.Len(t, sources, len(domain.AllEntityTypes()))
	for _, s := range sources {
		_, err := s.ListRecords(ctx)
		assert.NoError(t, err, s.EntityType())
	}
}
