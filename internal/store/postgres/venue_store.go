package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// VenueStore implements domain.VenueStore using PostgreSQL.
type VenueStore struct {
	pool *pgxpool.Pool
}

// NewVenueStore creates a new VenueStore backed by the given connection pool.
func NewVenueStore(pool *pgxpool.Pool) *VenueStore {
	return &VenueStore{pool: pool}
}

// Upsert inserts a venue or refreshes its kind, endpoint and enabled flag.
func (s *VenueStore) Upsert(ctx context.Context, v domain.Venue) error {
	if strings.TrimSpace(v.ID) == "" || strings.TrimSpace(v.Symbol) == "" {
		return fmt.Errorf("postgres: upsert venue: id and symbol are required: %w", domain.ErrInvalidConfig)
	}
	kind := v.Kind
	if kind == "" {
		kind = domain.VenueKindCEX
	}

	const query = `
		INSERT INTO venues (id, symbol, kind, endpoint, enabled)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id, symbol) DO UPDATE SET
			kind     = EXCLUDED.kind,
			endpoint = EXCLUDED.endpoint,
			enabled  = EXCLUDED.enabled`

	if _, err := s.pool.Exec(ctx, query, v.ID, v.Symbol, string(kind), v.Endpoint, v.Enabled); err != nil {
		return fmt.Errorf("postgres: upsert venue %s/%s: %w", v.ID, v.Symbol, err)
	}
	return nil
}

// ListEnabled returns the enabled venues for symbol ordered by id.
func (s *VenueStore) ListEnabled(ctx context.Context, symbol string) ([]domain.Venue, error) {
	const query = `
		SELECT id, kind, symbol, endpoint, enabled, created_at
		FROM venues
		WHERE symbol = $1 AND enabled
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: list venues for %s: %w", symbol, err)
	}
	venues, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Venue, error) {
		var v domain.Venue
		var kind string
		err := row.Scan(&v.ID, &kind, &v.Symbol, &v.Endpoint, &v.Enabled, &v.CreatedAt)
		v.Kind = domain.VenueKind(kind)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan venues for %s: %w", symbol, err)
	}
	return venues, nil
}

// SetEnabled toggles every catalog row for venue id.
func (s *VenueStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE venues SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("postgres: set venue %s enabled: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: venue %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
