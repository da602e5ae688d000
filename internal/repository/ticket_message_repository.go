package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/librosfab/support-service/internal/domain"
)

type threadRepository struct {
	pool *pgxpool.Pool
}

// NewThreadRepository builds repository.
func NewThreadRepository(pool *pgxpool.Pool) ThreadRepository {
	return &threadRepository{pool: pool}
}

func (r *threadRepository) ListByTicket(ctx context.Context, ticketID string, afterSeq int) ([]domain.Message, error) {
	const query = `
        SELECT ticket_id, seq, author, body, created_at
        FROM ticket_messages
        WHERE ticket_id=$1 AND seq > $2
        ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID, afterSeq)
	if err != nil {
		return nil, translatePgError(err, "list messages")
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.TicketID, &msg.Seq, &msg.Author, &msg.Body, &msg.CreatedAt); err != nil {
			return nil, translatePgError(err, "scan message")
		}
		result = append(result, msg)
	}
	return result, translatePgError(rows.Err(), "list messages")
}

func (r *threadRepository) LastSeq(ctx context.Context, ticketID string) (int, error) {
	var last int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ticket_messages WHERE ticket_id=$1`, ticketID).Scan(&last)
	return last, translatePgError(err, "last message seq")
}

func (r *threadRepository) Append(ctx context.Context, ticketID string, msg *domain.Message, guard AppendGuard, seed SeedFunc) error {
	var guardErr error
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
		ticket, err := scanTicket(tx.QueryRow(ctx, query, ticketID))
		if err != nil {
			return err
		}
		if guard != nil {
			if guardErr = guard(ticket); guardErr != nil {
				return guardErr
			}
		}

		var last int
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM ticket_messages WHERE ticket_id=$1`, ticketID).Scan(&last); err != nil {
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
		_, err = tx.Exec(ctx, `UPDATE tickets SET updated_at=$1 WHERE id=$2`, msg.CreatedAt, ticketID)
		return err
	})
	if guardErr != nil {
		return guardErr
	}
	return translatePgError(err, "append message")
}

func insertMessage(ctx context.Context, db pgxExecer, msg *domain.Message) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, seq, author, body, created_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := db.Exec(ctx, query,
		msg.TicketID,
		msg.Seq,
		string(msg.Author),
		msg.Body,
		msg.CreatedAt,
	)
	return err
}
