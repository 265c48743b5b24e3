// Package nomenclature hosts the shared code registry that enforces code
// uniqueness across every nomenclature kind.
package nomenclature

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	nomshared "github.com/optimapos/optimapos/internal/nomenclature/shared"
	"github.com/optimapos/optimapos/internal/shared"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx, allowing the registry
// to participate in the caller's transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Registry reserves and releases nomenclature codes.
type Registry struct{}

// NewRegistry constructs the registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Reserve claims a code for a kind. A code may be claimed by at most one
// nomenclature row of any kind.
func (r *Registry) Reserve(ctx context.Context, q Querier, kind, code string) error {
	normalized := nomshared.NormalizeCode(code)
	if !nomshared.ValidCode(normalized) {
		fields := shared.NewFieldErrors()
		fields.Add("code", "must be 1-32 characters of A-Z, 0-9, dash or underscore")
		return fields.Err()
	}
	_, err := q.Exec(ctx, `INSERT INTO nomenclature_codes (code, kind) VALUES ($1, $2)`, normalized, kind)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("nomenclature: code %s: %w", normalized, shared.ErrDuplicate)
		}
		return fmt.Errorf("nomenclature: reserve code: %w", err)
	}
	return nil
}

// Release frees a code, used when a nomenclature row is deleted or recoded.
func (r *Registry) Release(ctx context.Context, q Querier, kind, code string) error {
	_, err := q.Exec(ctx, `DELETE FROM nomenclature_codes WHERE code=$1 AND kind=$2`, nomshared.NormalizeCode(code), kind)
	if err != nil {
		return fmt.Errorf("nomenclature: release code: %w", err)
	}
	return nil
}
