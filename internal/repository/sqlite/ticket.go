package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/repository"
)

const ticketColumns = `id, owner_id, subject, body, type, status, priority, phone, legacy_thread, created_at, updated_at`

type ticketRepository struct {
	db *sql.DB
}

// NewTicketRepository returns the SQLite ticket repository.
func NewTicketRepository(db *sql.DB) repository.TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) NextNumber(ctx context.Context, year int) (int, error) {
	const query = `
        INSERT INTO ticket_counters (year, last_value) VALUES (?, 1)
        ON CONFLICT (year) DO UPDATE SET last_value = last_value + 1
        RETURNING last_value`
	var next int
	if err := r.db.QueryRowContext(ctx, query, year).Scan(&next); err != nil {
		return 0, translateError(err, "advance ticket counter")
	}
	return next, nil
}

func (r *ticketRepository) RaiseCounter(ctx context.Context, year, atLeast int) error {
	const query = `
        INSERT INTO ticket_counters (year, last_value) VALUES (?, ?)
        ON CONFLICT (year) DO UPDATE SET last_value = MAX(last_value, excluded.last_value)`
	_, err := r.db.ExecContext(ctx, query, year, atLeast)
	return translateError(err, "raise ticket counter")
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket, first *domain.Message) error {
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := insertTicket(ctx, tx, ticket, false); err != nil {
			return err
		}
		if first == nil {
			return nil
		}
		first.TicketID = ticket.ID
		return insertMessage(ctx, tx, first)
	})
	return translateError(err, "create ticket")
}

func (r *ticketRepository) Import(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	res, err := insertTicket(ctx, r.db, ticket, true)
	if err != nil {
		return false, translateError(err, "import ticket")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, translateError(err, "import ticket")
	}
	return n == 1, nil
}

func insertTicket(ctx context.Context, db queryer, ticket *domain.Ticket, ignoreExisting bool) (sql.Result, error) {
	verb := "INSERT"
	if ignoreExisting {
		verb = "INSERT OR IGNORE"
	}
	query := verb + ` INTO tickets (` + ticketColumns + `) VALUES (?,?,?,?,?,?,?,?,?,?,?)`
	return db.ExecContext(ctx, query,
		ticket.ID,
		ticket.OwnerID,
		ticket.Subject,
		ticket.Body,
		string(ticket.Type),
		string(ticket.Status),
		string(ticket.Priority),
		ticket.Phone,
		ticket.LegacyThread,
		ticket.CreatedAt.UTC(),
		ticket.UpdatedAt.UTC(),
	)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id))
	if err != nil {
		return nil, translateError(err, "select ticket")
	}
	return ticket, nil
}

func (r *ticketRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE owner_id=? ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, translateError(err, "list tickets by owner")
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	clauses, args := repository.FilterClauses(filter, func(int) string { return "?" })
	limit, offset := repository.NormalizeLimit(filter.Limit, filter.Offset)

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s, created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), repository.PriorityOrderSQL, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "list tickets")
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, next domain.TicketStatus, at time.Time, guard repository.StatusGuard) error {
	var guardErr error
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var current domain.TicketStatus
		if err := tx.QueryRowContext(ctx, `SELECT status FROM tickets WHERE id=?`, id).Scan(&current); err != nil {
			return err
		}
		if guard != nil {
			if guardErr = guard(current); guardErr != nil {
				return guardErr
			}
		}
		_, err := tx.ExecContext(ctx, `UPDATE tickets SET status=?, updated_at=? WHERE id=?`, string(next), at.UTC(), id)
		return err
	})
	if guardErr != nil {
		return guardErr
	}
	return translateError(err, "update ticket status")
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE tickets SET priority=?, updated_at=? WHERE id=?`, string(priority), at.UTC(), id)
	if err != nil {
		return translateError(err, "update ticket priority")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *ticketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, translateError(err, "count tickets")
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, translateError(err, "scan ticket count")
		}
		counts[domain.TicketStatus(status)] = count
	}
	return counts, translateError(rows.Err(), "count tickets")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket                   domain.Ticket
		ticketType, status, prio string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.OwnerID,
		&ticket.Subject,
		&ticket.Body,
		&ticketType,
		&status,
		&prio,
		&ticket.Phone,
		&ticket.LegacyThread,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Type = domain.TicketType(ticketType)
	ticket.Status = domain.TicketStatus(status)
	ticket.Priority = domain.TicketPriority(prio)
	return &ticket, nil
}

func scanTickets(rows *sql.Rows) ([]domain.Ticket, error) {
	result := []domain.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, translateError(err, "scan ticket")
		}
		result = append(result, *ticket)
	}
	return result, translateError(rows.Err(), "scan tickets")
}
