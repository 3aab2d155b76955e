package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/itsm-portal/internal/domain"
	apperrors "github.com/spec-kit/itsm-portal/pkg/util/errorutil"
)

// TicketFilter narrows ticket listings.
type TicketFilter struct {
	CreatedBy  *string
	AssignedTo *string
	Statuses   []domain.TicketStatus
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence. Every mutation writes the
// ticket row and its history entry in one transaction.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket, entry *domain.TicketHistoryEntry) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	// ApplyChange persists ticket if its stored version still equals
	// expectedVersion, bumps the version and appends entry. A stale version
	// yields VERSION_CONFLICT and nothing is written.
	ApplyChange(ctx context.Context, ticket *domain.Ticket, expectedVersion int, entry *domain.TicketHistoryEntry) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, number, title, description, status, priority, created_by, assigned_to, assigned_at,
               department_id, closure_code_id, closed_at, version, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, entry *domain.TicketHistoryEntry) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		number, err := nextTicketNumber(ctx, tx, ticket.CreatedAt)
		if err != nil {
			return err
		}
		ticket.Number = number

		const query = `
        INSERT INTO tickets (number, title, description, status, priority, created_by, department_id, version, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,1,$8,$8)
        RETURNING id, version, created_at, updated_at`
		if err := tx.QueryRow(ctx, query,
			ticket.Number,
			ticket.Title,
			ticket.Description,
			ticket.Status,
			ticket.Priority,
			ticket.CreatedBy,
			ticket.DepartmentID,
			ticket.CreatedAt,
		).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
			return err
		}

		entry.TicketID = ticket.ID
		return insertHistory(ctx, tx, entry)
	})
}

// nextTicketNumber allocates TKT-YYYYMMDD-NNNNN from a per-day counter row.
func nextTicketNumber(ctx context.Context, tx pgx.Tx, at time.Time) (string, error) {
	if at.IsZero() {
		at = time.Now()
	}
	day := at.UTC().Format("2006-01-02")
	const query = `
        INSERT INTO ticket_number_sequences (day, last_value) VALUES ($1, 1)
        ON CONFLICT (day) DO UPDATE SET last_value = ticket_number_sequences.last_value + 1
        RETURNING last_value`
	var seq int
	if err := tx.QueryRow(ctx, query, day).Scan(&seq); err != nil {
		return "", fmt.Errorf("allocate ticket number: %w", err)
	}
	return FormatTicketNumber(at, seq), nil
}

// FormatTicketNumber renders the human readable ticket number.
func FormatTicketNumber(at time.Time, seq int) string {
	return fmt.Sprintf("TKT-%s-%05d", at.UTC().Format("20060102"), seq)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	return ticket, err
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		query += fmt.Sprintf(" AND created_by=$%d", len(args))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		query += fmt.Sprintf(" AND assigned_to=$%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) ApplyChange(ctx context.Context, ticket *domain.Ticket, expectedVersion int, entry *domain.TicketHistoryEntry) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const query = `
        UPDATE tickets SET status=$1, priority=$2, assigned_to=$3, assigned_at=$4, closure_code_id=$5,
            closed_at=$6, version=version+1, updated_at=NOW()
        WHERE id=$7 AND version=$8
        RETURNING version, updated_at`
		err := tx.QueryRow(ctx, query,
			ticket.Status,
			ticket.Priority,
			ticket.AssignedTo,
			ticket.AssignedAt,
			ticket.ClosureCodeID,
			ticket.ClosedAt,
			ticket.ID,
			expectedVersion,
		).Scan(&ticket.Version, &ticket.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrVersionConflict
		}
		if err != nil {
			return err
		}

		entry.TicketID = ticket.ID
		return insertHistory(ctx, tx, entry)
	})
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket   domain.Ticket
		priority *int16
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.Title,
		&ticket.Description,
		&ticket.Status,
		&priority,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.AssignedAt,
		&ticket.DepartmentID,
		&ticket.ClosureCodeID,
		&ticket.ClosedAt,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if priority != nil {
		p := int(*priority)
		ticket.Priority = &p
	}
	return &ticket, nil
}
