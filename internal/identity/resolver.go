// Package identity resolves user IDs to display names for result views.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PlaceholderName is used when an ID does not resolve. A missing profile
// never fails an aggregation.
const PlaceholderName = "Unknown User"

// Resolver batch-resolves user IDs to display names.
type Resolver interface {
	ResolveDisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

// PostgresResolver looks display names up in the users table.
type PostgresResolver struct {
	pool *pgxpool.Pool
}

// NewPostgresResolver creates a users-table resolver.
func NewPostgresResolver(pool *pgxpool.Pool) *PostgresResolver {
	return &PostgresResolver{pool: pool}
}

// ResolveDisplayNames returns a name for every requested ID in one query.
// IDs without a matching row are absent from the map; callers substitute
// PlaceholderName.
func (r *PostgresResolver) ResolveDisplayNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	names := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, full_name FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("select display names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan display name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}
