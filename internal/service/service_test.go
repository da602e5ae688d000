package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/librosfab/support-service/internal/auth"
	"github.com/librosfab/support-service/internal/config"
	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/events"
	"github.com/librosfab/support-service/internal/persistence"
	"github.com/librosfab/support-service/internal/repository"
	"github.com/librosfab/support-service/internal/repository/sqlite"
	apperrors "github.com/librosfab/support-service/pkg/util/errorutil"
)

// stepClock advances by one second on every reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) count(eventType events.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	store   *repository.Store
	auth    *AuthService
	tickets *TicketService
	threads *ThreadService
	gateway *TicketGateway
	events  *recordedEvents
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := persistence.NewSQLite(config.SQLiteConfig{Path: persistence.MemoryPath}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := sqlite.NewStore(db)
	t.Cleanup(store.Close)
	if err := persistence.RunSQLiteMigrations(ctx, db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	clock := &stepClock{now: time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)}
	recorder := &recordedEvents{}
	dispatcher := events.NewInMemoryDispatcher(nil)
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, recorder.handle)
	}

	tickets := NewTicketService(TicketDependencies{TicketRepo: store.Tickets, Dispatcher: dispatcher, Now: clock.Now})
	threads := NewThreadService(ThreadDependencies{ThreadRepo: store.Threads, Dispatcher: dispatcher, Now: clock.Now})
	return &testEnv{
		store: store,
		auth: NewAuthService(AuthDependencies{
			UserRepo:   store.Users,
			Tokens:     auth.NewTokenManager("test-secret", time.Hour),
			BcryptCost: bcrypt.MinCost,
			Now:        clock.Now,
		}),
		tickets: tickets,
		threads: threads,
		gateway: NewTicketGateway(tickets, threads),
		events:  recorder,
	}
}

func (e *testEnv) signUp(t *testing.T, email string) *domain.Identity {
	t.Helper()
	user, err := e.auth.Register(context.Background(), RegisterInput{
		Email:           email,
		Password:        "secreto1",
		ConfirmPassword: "secreto1",
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return &domain.Identity{UserID: user.ID, Email: user.Email, SessionID: "test"}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if !apperrors.HasCode(err, code) {
		t.Fatalf("err = %v, want code %s", err, code)
	}
}

func TestQuoteConversationUntilClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")

	ticket, err := env.gateway.CreateTicket(ctx, ana, TicketCreateInput{
		Subject: "Cotización 100 libros",
		Body:    "Necesito 100 copias",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.Status != domain.TicketStatusOpen {
		t.Fatalf("status = %s, want open", ticket.Status)
	}

	view, err := env.gateway.GetTicket(ctx, ana, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Messages) != 1 || view.Messages[0].Body != "Necesito 100 copias" ||
		view.Messages[0].Author != domain.AuthorCustomer {
		t.Fatalf("initial thread = %+v", view.Messages)
	}

	if _, err := env.gateway.AppendMessage(ctx, ana, ticket.ID, "¿Cuándo estará listo?"); err != nil {
		t.Fatalf("append: %v", err)
	}
	view, err = env.gateway.GetTicket(ctx, ana, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Messages) != 2 {
		t.Fatalf("thread has %d messages, want 2", len(view.Messages))
	}
	if view.Messages[0].Body != "Necesito 100 copias" || view.Messages[1].Body != "¿Cuándo estará listo?" {
		t.Fatalf("thread out of order: %+v", view.Messages)
	}
	if view.Messages[0].Seq != 1 || view.Messages[1].Seq != 2 {
		t.Fatalf("seqs = %d, %d", view.Messages[0].Seq, view.Messages[1].Seq)
	}

	if _, err := env.tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = env.gateway.AppendMessage(ctx, ana, ticket.ID, "¿Hola?")
	assertCode(t, err, apperrors.CodeTicketClosed)

	if env.events.count(events.EventTicketCreated) != 1 ||
		env.events.count(events.EventTicketMessageAdded) != 1 ||
		env.events.count(events.EventTicketStatusChanged) != 1 {
		t.Fatalf("unexpected events: %+v", env.events.events)
	}
}

func TestTicketIDsAreUniqueAndWellFormed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")

	seen := map[string]bool{}
	for i := 0; i < 25; i++ {
		ticket, err := env.gateway.CreateTicket(ctx, ana, TicketCreateInput{Subject: "Pedido", Body: "Detalle"})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if !domain.ValidTicketID(ticket.ID) {
			t.Fatalf("malformed id %q", ticket.ID)
		}
		if seen[ticket.ID] {
			t.Fatalf("duplicate id %q", ticket.ID)
		}
		seen[ticket.ID] = true
	}
	if !seen["TK-2026-00001"] || !seen["TK-2026-00025"] {
		t.Fatalf("ids are not sequential: %v", seen)
	}

	list, err := env.gateway.ListTickets(ctx, ana)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 25 || list[0].ID != "TK-2026-00025" {
		t.Fatalf("list not most recent first: first=%s len=%d", list[0].ID, len(list))
	}
}

func TestCreateTicketSkipsIDsTakenByImports(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")

	imported := &domain.Ticket{
		ID:        "TK-2026-00001",
		OwnerID:   ana.UserID,
		Subject:   "Pedido antiguo",
		Body:      "Texto original",
		Type:      domain.TicketTypeInquiry,
		Status:    domain.TicketStatusOpen,
		Priority:  domain.TicketPriorityMedium,
		CreatedAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
	}
	created, err := env.store.Tickets.Import(ctx, imported)
	if err != nil || !created {
		t.Fatalf("import = %v, %v", created, err)
	}
	again, err := env.store.Tickets.Import(ctx, imported)
	if err != nil || again {
		t.Fatalf("second import = %v, %v; want skipped", again, err)
	}

	ticket, err := env.gateway.CreateTicket(ctx, ana, TicketCreateInput{Subject: "Nuevo", Body: "Texto"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ticket.ID != "TK-2026-00002" {
		t.Fatalf("id = %s, want TK-2026-00002", ticket.ID)
	}
}

func TestCreateTicketValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")

	long := make([]rune, domain.MaxSubjectLength+1)
	for i := range long {
		long[i] = 'á'
	}
	cases := map[string]TicketCreateInput{
		"blank subject": {Subject: "   ", Body: "x"},
		"blank body":    {Subject: "x", Body: " \n"},
		"long subject":  {Subject: string(long), Body: "x"},
		"unknown type":  {Subject: "x", Body: "x", Type: "complaint"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.gateway.CreateTicket(ctx, ana, input)
			assertCode(t, err, apperrors.CodeValidation)
		})
	}

	_, err := env.gateway.CreateTicket(ctx, nil, TicketCreateInput{Subject: "x", Body: "x"})
	assertCode(t, err, apperrors.CodeUnauthenticated)
}

func TestGetTicketChecksOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")
	luis := env.signUp(t, "luis@example.com")

	ticket, err := env.gateway.CreateTicket(ctx, ana, TicketCreateInput{Subject: "Pedido", Body: "Detalle"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.gateway.GetTicket(ctx, luis, ticket.ID)
	assertCode(t, err, apperrors.CodeForbidden)

	_, err = env.gateway.GetTicket(ctx, ana, "TK-2026-09999")
	assertCode(t, err, apperrors.CodeNotFound)

	_, err = env.gateway.GetTicket(ctx, ana, "not-a-ticket")
	assertCode(t, err, apperrors.CodeNotFound)

	_, err = env.gateway.GetTicket(ctx, nil, ticket.ID)
	assertCode(t, err, apperrors.CodeUnauthenticated)

	_, err = env.gateway.AppendMessage(ctx, luis, ticket.ID, "hola")
	assertCode(t, err, apperrors.CodeForbidden)
}

func TestAppendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")
	ticket, err := env.gateway.CreateTicket(ctx, ana, TicketCreateInput{Subject: "Pedido", Body: "Detalle"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = env.gateway.AppendMessage(ctx, ana, ticket.ID, "  \t ")
	assertCode(t, err, apperrors.CodeEmptyMessage)

	tooLong := make([]rune, domain.MaxMessageLength+1)
	for i := range tooLong {
		tooLong[i] = 'ñ'
	}
	_, err = env.gateway.AppendMessage(ctx, ana, ticket.ID, string(tooLong))
	assertCode(t, err, apperrors.CodeValidation)

	_, err = env.gateway.AppendMessage(ctx, nil, ticket.ID, "hola")
	assertCode(t, err, apperrors.CodeUnauthenticated)

	_, err = env.gateway.AppendMessage(ctx, ana, "TK-2026-04040", "hola")
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestClosedTicketRejectsEveryCaller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")
	luis := env.signUp(t, "luis@example.com")

	ticket, err := env.gateway.CreateTicket(ctx, ana, TicketCreateInput{Subject: "Pedido", Body: "Detalle"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusClosed); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err = env.gateway.AppendMessage(ctx, ana, ticket.ID, "hola")
	assertCode(t, err, apperrors.CodeTicketClosed)
	_, err = env.gateway.AppendMessage(ctx, luis, ticket.ID, "hola")
	assertCode(t, err, apperrors.CodeTicketClosed)
	_, err = env.threads.AppendAsSupport(ctx, ticket.ID, "cerrado")
	assertCode(t, err, apperrors.CodeTicketClosed)

	_, err = env.tickets.UpdateStatus(ctx, ticket.ID, domain.TicketStatusOpen)
	assertCode(t, err, apperrors.CodeTicketClosed)
}

func TestConcurrentAppendsKeepEveryMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")
	ticket, err := env.gateway.CreateTicket(ctx, ana, TicketCreateInput{Subject: "Pedido", Body: "Detalle"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = env.gateway.AppendMessage(ctx, ana, ticket.ID, "cliente")
			} else {
				_, err = env.threads.AppendAsSupport(ctx, ticket.ID, "soporte")
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	view, err := env.gateway.GetTicket(ctx, ana, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Messages) != writers+1 {
		t.Fatalf("thread has %d messages, want %d", len(view.Messages), writers+1)
	}
	for i, m := range view.Messages {
		if m.Seq != i+1 {
			t.Fatalf("message %d has seq %d", i, m.Seq)
		}
	}
}

func TestPollingReturnsOnlyNewMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")
	ticket, err := env.gateway.CreateTicket(ctx, ana, TicketCreateInput{Subject: "Pedido", Body: "Detalle"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.threads.AppendAsSupport(ctx, ticket.ID, "¿Qué formato?"); err != nil {
		t.Fatalf("reply: %v", err)
	}

	view, err := env.gateway.Messages(ctx, ana, ticket.ID, 1)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(view.Messages) != 1 || view.Messages[0].Author != domain.AuthorSupport || view.Messages[0].Seq != 2 {
		t.Fatalf("poll = %+v", view.Messages)
	}

	view, err = env.gateway.Messages(ctx, ana, ticket.ID, 2)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(view.Messages) != 0 {
		t.Fatalf("poll after last seq returned %d messages", len(view.Messages))
	}
}

func importLegacy(t *testing.T, env *testEnv, owner *domain.Identity, id, legacy string) *domain.Ticket {
	t.Helper()
	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	ticket := &domain.Ticket{
		ID:           id,
		OwnerID:      owner.UserID,
		Subject:      "Pedido antiguo",
		Body:         "Quisiera imprimir 100 libros",
		Type:         domain.TicketTypeInquiry,
		Status:       domain.TicketStatusOpen,
		Priority:     domain.TicketPriorityMedium,
		LegacyThread: &legacy,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	if _, err := env.store.Tickets.Import(context.Background(), ticket); err != nil {
		t.Fatalf("import: %v", err)
	}
	return ticket
}

func TestLegacyThreadIsMaterialisedOnFirstAppend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")
	legacy := `[{"autor":"cliente","mensaje":"Necesito 100 copias","fecha":"2024-05-01 09:30:00"},` +
		`{"autor":"soporte","mensaje":"Le enviamos la cotización","fecha":"2024-05-01 11:00:00"}]`
	ticket := importLegacy(t, env, ana, "TK-2024-00042", legacy)

	for i := 0; i < 2; i++ {
		view, err := env.gateway.GetTicket(ctx, ana, ticket.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(view.Messages) != 2 || view.Messages[1].Author != domain.AuthorSupport {
			t.Fatalf("legacy view = %+v", view.Messages)
		}
	}

	msg, err := env.gateway.AppendMessage(ctx, ana, ticket.ID, "Gracias")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.Seq != 3 {
		t.Fatalf("seq = %d, want 3", msg.Seq)
	}

	view, err := env.gateway.GetTicket(ctx, ana, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Messages) != 3 || view.Messages[0].Body != "Necesito 100 copias" || view.Messages[2].Body != "Gracias" {
		t.Fatalf("thread = %+v", view.Messages)
	}
	want := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	if !view.Messages[0].CreatedAt.Equal(want) {
		t.Fatalf("legacy timestamp = %s, want %s", view.Messages[0].CreatedAt, want)
	}
	if view.Ticket.LegacyThread == nil || *view.Ticket.LegacyThread != legacy {
		t.Fatalf("legacy value was rewritten")
	}
}

func TestLegacyScalarReadsAsSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")
	ticket := importLegacy(t, env, ana, "TK-2024-00007", "Hola, quiero 50 agendas")

	view, err := env.gateway.GetTicket(ctx, ana, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Messages) != 1 || view.Messages[0].Body != "Hola, quiero 50 agendas" ||
		view.Messages[0].Author != domain.AuthorCustomer || !view.Messages[0].CreatedAt.Equal(ticket.CreatedAt) {
		t.Fatalf("view = %+v", view.Messages)
	}
}

func TestStatusLifecycleAndSupportListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := env.signUp(t, "ana@example.com")

	first, err := env.gateway.CreateTicket(ctx, ana, TicketCreateInput{Subject: "Uno", Body: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := env.gateway.CreateTicket(ctx, ana, TicketCreateInput{Subject: "Dos", Body: "x", Type: domain.TicketTypeProblem})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := env.tickets.UpdateStatus(ctx, first.ID, domain.TicketStatusInProgress); err != nil {
		t.Fatalf("in_progress: %v", err)
	}
	_, err = env.tickets.UpdateStatus(ctx, first.ID, domain.TicketStatusInProgress)
	assertCode(t, err, apperrors.CodeValidation)
	_, err = env.tickets.UpdateStatus(ctx, first.ID, domain.TicketStatusOpen)
	assertCode(t, err, apperrors.CodeValidation)
	_, err = env.tickets.UpdateStatus(ctx, first.ID, "archived")
	assertCode(t, err, apperrors.CodeValidation)
	_, err = env.tickets.UpdateStatus(ctx, "TK-2026-00999", domain.TicketStatusClosed)
	assertCode(t, err, apperrors.CodeNotFound)

	updated, err := env.tickets.UpdatePriority(ctx, first.ID, domain.TicketPriorityUrgent)
	if err != nil {
		t.Fatalf("priority: %v", err)
	}
	if updated.Priority != domain.TicketPriorityUrgent || updated.OwnerID != ana.UserID {
		t.Fatalf("updated = %+v", updated)
	}

	all, err := env.tickets.ListAll(ctx, repository.TicketFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].ID != first.ID || all[1].ID != second.ID {
		t.Fatalf("urgent ticket not listed first: %+v", all)
	}

	open, err := env.tickets.ListAll(ctx, repository.TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusOpen}})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 1 || open[0].ID != second.ID {
		t.Fatalf("open filter = %+v", open)
	}

	counts, err := env.tickets.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[domain.TicketStatusOpen] != 1 || counts[domain.TicketStatusInProgress] != 1 || counts[domain.TicketStatusClosed] != 0 {
		t.Fatalf("counts = %v", counts)
	}
	if env.events.count(events.EventTicketPriorityChanged) != 1 {
		t.Fatalf("priority event not published")
	}
}
