package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/librosfab/support-service/internal/domain"
)

const ticketColumns = `id, owner_id, subject, body, type, status, priority, phone, legacy_thread, created_at, updated_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) NextNumber(ctx context.Context, year int) (int, error) {
	const query = `
        INSERT INTO ticket_counters (year, last_value) VALUES ($1, 1)
        ON CONFLICT (year) DO UPDATE SET last_value = ticket_counters.last_value + 1
        RETURNING last_value`
	var next int
	if err := r.pool.QueryRow(ctx, query, year).Scan(&next); err != nil {
		return 0, translatePgError(err, "advance ticket counter")
	}
	return next, nil
}

func (r *ticketRepository) RaiseCounter(ctx context.Context, year, atLeast int) error {
	const query = `
        INSERT INTO ticket_counters (year, last_value) VALUES ($1, $2)
        ON CONFLICT (year) DO UPDATE SET last_value = GREATEST(ticket_counters.last_value, EXCLUDED.last_value)`
	_, err := r.pool.Exec(ctx, query, year, atLeast)
	return translatePgError(err, "raise ticket counter")
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, first *domain.Message) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertTicket(ctx, tx, ticket); err != nil {
			return err
		}
		if first == nil {
			return nil
		}
		first.TicketID = ticket.ID
		return insertMessage(ctx, tx, first)
	})
	return translatePgError(err, "create ticket")
}

func (r *ticketRepository) Import(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (id) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query, ticketArgs(ticket)...)
	if err != nil {
		return false, translatePgError(err, "import ticket")
	}
	return cmd.RowsAffected() == 1, nil
}

// pgxExecer is satisfied by both the pool and a transaction.
type pgxExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertTicket(ctx context.Context, db pgxExecer, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := db.Exec(ctx, query, ticketArgs(ticket)...)
	return err
}

func ticketArgs(ticket *domain.Ticket) []any {
	return []any{
		ticket.ID,
		ticket.OwnerID,
		ticket.Subject,
		ticket.Body,
		string(ticket.Type),
		string(ticket.Status),
		string(ticket.Priority),
		ticket.Phone,
		ticket.LegacyThread,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	}
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translatePgError(err, "select ticket")
	}
	return ticket, nil
}

func (r *ticketRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE owner_id=$1 ORDER BY created_at DESC, id DESC`
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, translatePgError(err, "list tickets by owner")
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses, args := FilterClauses(filter, func(n int) string { return fmt.Sprintf("$%d", n) })
	limit, offset := NormalizeLimit(filter.Limit, filter.Offset)

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s, created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), PriorityOrderSQL, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translatePgError(err, "list tickets")
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, next domain.TicketStatus, at time.Time, guard StatusGuard) error {
	var guardErr error
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var current domain.TicketStatus
		if err := tx.QueryRow(ctx, `SELECT status FROM tickets WHERE id=$1 FOR UPDATE`, id).Scan(&current); err != nil {
			return err
		}
		if guard != nil {
			if guardErr = guard(current); guardErr != nil {
				return guardErr
			}
		}
		_, err := tx.Exec(ctx, `UPDATE tickets SET status=$1, updated_at=$2 WHERE id=$3`, string(next), at, id)
		return err
	})
	if guardErr != nil {
		return guardErr
	}
	return translatePgError(err, "update ticket status")
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority, at time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET priority=$1, updated_at=$2 WHERE id=$3`, string(priority), at, id)
	if err != nil {
		return translatePgError(err, "update ticket priority")
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, translatePgError(err, "count tickets")
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int)
	for rows.Next() {
		var status domain.TicketStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, translatePgError(err, "scan ticket count")
		}
		counts[status] = count
	}
	return counts, translatePgError(rows.Err(), "count tickets")
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.OwnerID,
		&ticket.Subject,
		&ticket.Body,
		&ticket.Type,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Phone,
		&ticket.LegacyThread,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, translatePgError(err, "scan ticket")
		}
		result = append(result, *ticket)
	}
	return result, translatePgError(rows.Err(), "scan tickets")
}
