package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/itsm-portal/internal/domain"
)

// TicketHistoryRepository reads the audit trail. Entries are written only
// through TicketRepository, inside the ticket's transaction.
type TicketHistoryRepository interface {
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistoryEntry, error)
}

type ticketHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewTicketHistoryRepository builds repository.
func NewTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &ticketHistoryRepository{pool: pool}
}

func insertHistory(ctx context.Context, tx pgx.Tx, entry *domain.TicketHistoryEntry) error {
	const query = `
        INSERT INTO ticket_history (ticket_id, change_type, old_status, new_status, note, changed_by, changed_at)
        VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7)
        RETURNING id, changed_at`
	return tx.QueryRow(ctx, query,
		entry.TicketID,
		entry.ChangeType,
		string(entry.OldStatus),
		entry.NewStatus,
		entry.Note,
		entry.ChangedBy,
		entry.ChangedAt,
	).Scan(&entry.ID, &entry.ChangedAt)
}

func (r *ticketHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistoryEntry, error) {
	const query = `
        SELECT id, ticket_id, change_type, COALESCE(old_status, ''), new_status, note, changed_by, changed_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY changed_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistoryEntry
	for rows.Next() {
		var entry domain.TicketHistoryEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.ChangeType,
			&entry.OldStatus,
			&entry.NewStatus,
			&entry.Note,
			&entry.ChangedBy,
			&entry.ChangedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
