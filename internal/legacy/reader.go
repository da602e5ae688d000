package legacy

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// Source yields the legacy rows to import.
type Source interface {
	Users(ctx context.Context) ([]User, error)
	Tickets(ctx context.Context) ([]Ticket, error)
}

// MySQLSource reads the old site's database.
type MySQLSource struct {
	db *sql.DB
}

// OpenMySQL connects to the legacy database. Timestamps are parsed as UTC.
func OpenMySQL(ctx context.Context, dsn string) (*MySQLSource, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse mysql dsn")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping mysql")
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &MySQLSource{db: db}, nil
}

// Close releases the connection pool.
func (s *MySQLSource) Close() error {
	return s.db.Close()
}

// Users reads every account.
func (s *MySQLSource) Users(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, correo, contrasena, COALESCE(fecha_registro, NOW())
		FROM usuarios
		ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query usuarios")
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Password, &u.RegisteredAt); err != nil {
			return nil, errors.Wrap(err, "scan usuarios")
		}
		out = append(out, u)
	}
	return out, errors.Wrap(rows.Err(), "iterate usuarios")
}

// Tickets reads every ticket with its conversation.
func (s *MySQLSource) Tickets(ctx context.Context) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mt.ticket_id, mt.usuario_id, COALESCE(mt.asunto, ''), COALESCE(mt.descripcion, ''),
		       COALESCE(mt.estado, ''), COALESCE(mt.prioridad, ''), COALESCE(t.tipo, ''),
		       COALESCE(t.contenido, ''), COALESCE(mt.fecha_creacion, t.fecha, NOW())
		FROM mensaje_tickets mt
		LEFT JOIN tickets t ON mt.ticket_id = t.ticket_id
		ORDER BY mt.fecha_creacion, mt.id`)
	if err != nil {
		return nil, errors.Wrap(err, "query mensaje_tickets")
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(&t.TicketID, &t.UserID, &t.Subject, &t.Description,
			&t.Status, &t.Priority, &t.Type, &t.Content, &t.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan mensaje_tickets")
		}
		out = append(out, t)
	}
	return out, errors.Wrap(rows.Err(), "iterate mensaje_tickets")
}
