package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/itsm-portal/internal/domain"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// UserRepository defines persistence access for accounts and their role
// assignments.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListAssignments(ctx context.Context, userID string) ([]domain.RoleAssignment, error)
	TouchLastLogin(ctx context.Context, userID string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, name, email, password_hash, is_active, last_login_at, created_at, updated_at`

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.fetchSingle(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)`, email)
}

func (r *userRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.IsActive,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("user", nil)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListAssignments(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	const query = `
        SELECT ur.role_id, COALESCE(ur.department_id, t.department_id), ur.team_id
        FROM user_roles ur
        LEFT JOIN teams t ON t.id = ur.team_id
        WHERE ur.user_id=$1`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.RoleAssignment
	for rows.Next() {
		var (
			roleID int16
			a      domain.RoleAssignment
		)
		if err := rows.Scan(&roleID, &a.DepartmentID, &a.TeamID); err != nil {
			return nil, err
		}
		a.Role = domain.Role(roleID)
		if !a.Role.Valid() {
			continue
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *userRepository) TouchLastLogin(ctx context.Context, userID string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET last_login_at=NOW() WHERE id=$1`, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return apperrors.NewNotFound("user", nil)
	}
	return nil
}
