package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/config"
	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/persistence"
	"github.com/librosfab/support-service/internal/repository"
	"github.com/librosfab/support-service/internal/repository/sqlite"
)

func newStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := persistence.NewSQLite(config.SQLiteConfig{Path: persistence.MemoryPath}, zap.NewNop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := persistence.RunSQLiteMigrations(context.Background(), db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := sqlite.NewStore(db)
	t.Cleanup(store.Close)
	return store
}

func seedUser(t *testing.T, store *repository.Store, id, email string) {
	t.Helper()
	err := store.Users.Create(context.Background(), &domain.User{
		ID: id, Email: email, PasswordHash: "hash", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func newTicket(id, owner string, priority domain.TicketPriority, at time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:        id,
		OwnerID:   owner,
		Subject:   "Asunto " + id,
		Body:      "Cuerpo",
		Type:      domain.TicketTypeInquiry,
		Status:    domain.TicketStatusOpen,
		Priority:  priority,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUser(t, store, "u1", "ana@example.com")

	err := store.Users.Create(ctx, &domain.User{ID: "u2", Email: "ana@example.com", PasswordHash: "h", CreatedAt: time.Now()})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("duplicate email: %v", err)
	}
	if _, err := store.Users.GetByID(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing user: %v", err)
	}
	u, err := store.Users.GetByEmail(ctx, "ana@example.com")
	if err != nil || u.ID != "u1" {
		t.Fatalf("get by email: %+v %v", u, err)
	}
}

func TestCounters(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for want := 1; want <= 3; want++ {
		got, err := store.Tickets.NextNumber(ctx, 2026)
		if err != nil || got != want {
			t.Fatalf("NextNumber = %d, %v; want %d", got, err, want)
		}
	}
	if got, _ := store.Tickets.NextNumber(ctx, 2027); got != 1 {
		t.Fatalf("counters are not per year: %d", got)
	}

	if err := store.Tickets.RaiseCounter(ctx, 2026, 40); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if err := store.Tickets.RaiseCounter(ctx, 2026, 10); err != nil {
		t.Fatalf("raise lower: %v", err)
	}
	if got, _ := store.Tickets.NextNumber(ctx, 2026); got != 41 {
		t.Fatalf("after raise NextNumber = %d, want 41", got)
	}
	if err := store.Tickets.RaiseCounter(ctx, 2030, 5); err != nil {
		t.Fatalf("raise new year: %v", err)
	}
	if got, _ := store.Tickets.NextNumber(ctx, 2030); got != 6 {
		t.Fatalf("fresh year after raise = %d, want 6", got)
	}
}

func TestCreateImportAndList(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUser(t, store, "u1", "ana@example.com")
	seedUser(t, store, "u2", "luis@example.com")

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	low := newTicket("TK-2026-00001", "u1", domain.TicketPriorityLow, base)
	first := domain.ImplicitMessage(low)
	if err := store.Tickets.Create(ctx, low, &first); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := newTicket("TK-2026-00001", "u2", domain.TicketPriorityHigh, base)
	if err := store.Tickets.Create(ctx, dup, &first); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("duplicate id: %v", err)
	}

	urgent := newTicket("TK-2026-00002", "u2", domain.TicketPriorityUrgent, base.Add(time.Hour))
	inserted, err := store.Tickets.Import(ctx, urgent)
	if err != nil || !inserted {
		t.Fatalf("import: %v %v", inserted, err)
	}
	inserted, err = store.Tickets.Import(ctx, newTicket("TK-2026-00002", "u2", domain.TicketPriorityLow, base))
	if err != nil || inserted {
		t.Fatalf("re-import: %v %v", inserted, err)
	}
	if msgs, _ := store.Threads.ListByTicket(ctx, urgent.ID, 0); len(msgs) != 0 {
		t.Fatalf("import wrote %d messages", len(msgs))
	}

	medium := newTicket("TK-2026-00003", "u1", domain.TicketPriorityMedium, base.Add(2*time.Hour))
	first = domain.ImplicitMessage(medium)
	if err := store.Tickets.Create(ctx, medium, &first); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := store.Tickets.List(ctx, repository.TicketFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	order := []string{"TK-2026-00002", "TK-2026-00003", "TK-2026-00001"}
	if len(all) != len(order) {
		t.Fatalf("list returned %d tickets", len(all))
	}
	for i, id := range order {
		if all[i].ID != id {
			t.Fatalf("list[%d] = %s, want %s", i, all[i].ID, id)
		}
	}

	mine, err := store.Tickets.ListByOwner(ctx, "u1")
	if err != nil || len(mine) != 2 || mine[0].ID != "TK-2026-00003" {
		t.Fatalf("list by owner: %v %v", mine, err)
	}

	got, err := store.Tickets.GetByID(ctx, "TK-2026-00002")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.CreatedAt.Equal(urgent.CreatedAt) || got.Priority != domain.TicketPriorityUrgent {
		t.Fatalf("round trip = %+v", got)
	}

	counts, err := store.Tickets.CountByStatus(ctx)
	if err != nil || counts[domain.TicketStatusOpen] != 3 {
		t.Fatalf("counts = %v %v", counts, err)
	}
}

func TestAppendSeedsLegacyThread(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	seedUser(t, store, "u1", "ana@example.com")

	legacy := newTicket("TK-2024-00010", "u1", domain.TicketPriorityMedium, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	raw := "texto original"
	legacy.LegacyThread = &raw
	if _, err := store.Tickets.Import(ctx, legacy); err != nil {
		t.Fatalf("import: %v", err)
	}

	seed := func(tk *domain.Ticket) []domain.Message {
		return []domain.Message{{TicketID: tk.ID, Seq: 1, Author: domain.AuthorCustomer, Body: *tk.LegacyThread, CreatedAt: tk.CreatedAt}}
	}
	msg := &domain.Message{Author: domain.AuthorSupport, Body: "respuesta", CreatedAt: time.Now().UTC()}
	if err := store.Threads.Append(ctx, legacy.ID, msg, nil, seed); err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.Seq != 2 {
		t.Fatalf("appended seq = %d, want 2", msg.Seq)
	}
	msgs, err := store.Threads.ListByTicket(ctx, legacy.ID, 0)
	if err != nil || len(msgs) != 2 || msgs[0].Body != "texto original" {
		t.Fatalf("thread = %+v %v", msgs, err)
	}
	if last, _ := store.Threads.LastSeq(ctx, legacy.ID); last != 2 {
		t.Fatalf("LastSeq = %d", last)
	}

	refused := errors.New("refused")
	err = store.Threads.Append(ctx, legacy.ID, &domain.Message{Author: domain.AuthorCustomer, Body: "x", CreatedAt: time.Now()},
		func(*domain.Ticket) error { return refused }, seed)
	if !errors.Is(err, refused) {
		t.Fatalf("guard error = %v", err)
	}
	if err := store.Threads.Append(ctx, "TK-2024-99999", msg, nil, seed); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing ticket: %v", err)
	}
}
