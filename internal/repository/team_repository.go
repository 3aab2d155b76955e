package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TeamRepository resolves team membership for managers.
type TeamRepository interface {
	// MembersManagedBy returns user ids in every team the manager leads,
	// either as teams.manager_id or through a MANAGER role scoped to the team.
	MembersManagedBy(ctx context.Context, managerID string) ([]string, error)
}

type teamRepository struct {
	pool *pgxpool.Pool
}

// NewTeamRepository constructs repository.
func NewTeamRepository(pool *pgxpool.Pool) TeamRepository {
	return &teamRepository{pool: pool}
}

func (r *teamRepository) MembersManagedBy(ctx context.Context, managerID string) ([]string, error) {
	const query = `
        SELECT DISTINCT tm.user_id
        FROM team_members tm
        JOIN teams t ON t.id = tm.team_id
        WHERE t.manager_id = $1
           OR t.id IN (SELECT team_id FROM user_roles WHERE user_id=$1 AND role_id=3 AND team_id IS NOT NULL)`
	rows, err := r.pool.Query(ctx, query, managerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
