package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SyncStatusRepository persists per-type sync checkpoints.
type SyncStatusRepository struct {
	db dbtx
}

func NewSyncStatusRepository(pool *pgxpool.Pool) *SyncStatusRepository {
	return &SyncStatusRepository{db: pool}
}

func NewSyncStatusRepositoryWithTx(tx pgx.Tx) *SyncStatusRepository {
	return &SyncStatusRepository{db: tx}
}

const syncStatusColumns = `entity_type, last_sync, checksum, document_count, last_error, duration_ms, updated_at`

// EnsureDefaults inserts a never-synced row for every type that has none.
func (r *SyncStatusRepository) EnsureDefaults(ctx context.Context, types []domain.EntityType) error {
	batch := &pgx.Batch{}
	for _, t := range types {
		batch.Queue(
			`INSERT INTO sync_status (entity_type, last_sync) VALUES ($1, $2)
			 ON CONFLICT (entity_type) DO NOTHING`,
			string(t), domain.SyncEpoch,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	for _, t := range types {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("ensure sync status %s: %w", t, err)
		}
	}
	return br.Close()
}

func (r *SyncStatusRepository) Get(ctx context.Context, t domain.EntityType) (*domain.SyncStatus, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+syncStatusColumns+` FROM sync_status WHERE entity_type = $1`,
		string(t),
	)
	s, err := scanSyncStatus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSyncStatusNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *SyncStatusRepository) List(ctx context.Context) ([]*domain.SyncStatus, error) {
	rows, err := r.db.Query(ctx, `SELECT `+syncStatusColumns+` FROM sync_status ORDER BY entity_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []*domain.SyncStatus
	for rows.Next() {
		s, err := scanSyncStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

func (r *SyncStatusRepository) Upsert(ctx context.Context, s *domain.SyncStatus) error {
	if err := domain.ValidateSyncStatus(s); err != nil {
		return err
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO sync_status (entity_type, last_sync, checksum, document_count, last_error, duration_ms, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (entity_type) DO UPDATE SET
			last_sync = EXCLUDED.last_sync,
			checksum = EXCLUDED.checksum,
			document_count = EXCLUDED.document_count,
			last_error = EXCLUDED.last_error,
			duration_ms = EXCLUDED.duration_ms,
			updated_at = now()`,
		string(s.EntityType), s.LastSync, s.Checksum, s.DocumentCount, s.LastError, s.DurationMS,
	)
	return err
}

// ResetAll returns every checkpoint to the never-synced sentinel.
func (r *SyncStatusRepository) ResetAll(ctx context.Context) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sync_status
		 SET last_sync = $1, checksum = '', document_count = 0, last_error = '', duration_ms = 0, updated_at = now()`,
		domain.SyncEpoch,
	)
	return err
}

func (r *SyncStatusRepository) Ping(ctx context.Context) error {
	return ping(ctx, r.db)
}

func scanSyncStatus(row pgx.Row) (*domain.SyncStatus, error) {
	var s domain.SyncStatus
	var entityType string
	if err := row.Scan(&entityType, &s.LastSync, &s.Checksum, &s.DocumentCount, &s.LastError, &s.DurationMS, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.EntityType = domain.EntityType(entityType)
	s.LastSync = s.LastSync.UTC()
	return &s, nil
}
