package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/itsm-portal/internal/domain"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// ClosureCodeRepository reads closure codes.
type ClosureCodeRepository interface {
	GetActiveByID(ctx context.Context, id string) (*domain.ClosureCode, error)
}

type closureCodeRepository struct {
	pool *pgxpool.Pool
}

// NewClosureCodeRepository builds the repository.
func NewClosureCodeRepository(pool *pgxpool.Pool) ClosureCodeRepository {
	return &closureCodeRepository{pool: pool}
}

func (r *closureCodeRepository) GetActiveByID(ctx context.Context, id string) (*domain.ClosureCode, error) {
	const query = `SELECT id, code, description, is_active FROM closure_codes WHERE id=$1 AND is_active`
	var code domain.ClosureCode
	err := r.pool.QueryRow(ctx, query, id).Scan(&code.ID, &code.Code, &code.Description, &code.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("closure code", nil)
	}
	if err != nil {
		return nil, err
	}
	return &code, nil
}
