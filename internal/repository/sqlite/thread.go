package sqlite

import (
	"context"
	"database/sql"

	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/repository"
)

type threadRepository struct {
	db *sql.DB
}

// NewThreadRepository returns the SQLite message log.
func NewThreadRepository(db *sql.DB) repository.ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) ListByTicket(ctx context.Context, ticketID string, afterSeq int) ([]domain.Message, error) {
	const query = `
        SELECT ticket_id, seq, author, body, created_at
        FROM ticket_messages
        WHERE ticket_id=? AND seq > ?
        ORDER BY seq ASC`
	rows, err := r.db.QueryContext(ctx, query, ticketID, afterSeq)
	if err != nil {
		return nil, translateError(err, "list messages")
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var (
			msg    domain.Message
			author string
		)
		if err := rows.Scan(&msg.TicketID, &msg.Seq, &author, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, translateError(err, "scan message")
		}
		msg.Author = domain.MessageAuthor(author)
		result = append(result, msg)
	}
	return result, translateError(rows.Err(), "list messages")
}

func (r *threadRepository) LastSeq(ctx context.Context, ticketID string) (int, error) {
	return lastSeq(ctx, r.db, ticketID)
}

// Append runs in an immediate transaction, which holds the database write
// lock from the ticket read through the insert.
func (r *threadRepository) Append(ctx context.Context, ticketID string, msg *domain.Message, guard repository.AppendGuard, seed repository.SeedFunc) error {
	var guardErr error
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		ticket, err := scanTicket(tx.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, ticketID))
		if err != nil {
			return err
		}
		if guard != nil {
			if guardErr = guard(ticket); guardErr != nil {
				return guardErr
			}
		}

		last, err := lastSeq(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if last == 0 && seed != nil {
			for _, m := range seed(ticket) {
				m.TicketID = ticketID
				if err := insertMessage(ctx, tx, &m); err != nil {
					return err
				}
				if m.Seq > last {
					last = m.Seq
				}
			}
		}

		msg.TicketID = ticketID
		msg.Seq = last + 1
		if err := insertMessage(ctx, tx, msg); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE tickets SET updated_at=? WHERE id=?`, msg.CreatedAt.UTC(), ticketID)
		return err
	})
	if guardErr != nil {
		return guardErr
	}
	return translateError(err, "append message")
}

func lastSeq(ctx context.Context, db queryer, ticketID string) (int, error) {
	var last int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ticket_messages WHERE ticket_id=?`, ticketID).Scan(&last)
	return last, translateError(err, "last message seq")
}

func insertMessage(ctx context.Context, db queryer, msg *domain.Message) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, seq, author, body, created_at)
        VALUES (?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		msg.TicketID,
		msg.Seq,
		string(msg.Author),
		msg.Body,
		msg.CreatedAt.UTC(),
	)
	return err
}
