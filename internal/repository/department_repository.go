package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/itsm-portal/internal/domain"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// DepartmentRepository reads departments.
type DepartmentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Department, error)
}

type departmentRepository struct {
	pool *pgxpool.Pool
}

// NewDepartmentRepository builds the repository.
func NewDepartmentRepository(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepository{pool: pool}
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	const query = `SELECT id, name, created_at FROM departments WHERE id=$1`
	var dept domain.Department
	err := r.pool.QueryRow(ctx, query, id).Scan(&dept.ID, &dept.Name, &dept.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("department", nil)
	}
	if err != nil {
		return nil, err
	}
	return &dept, nil
}
