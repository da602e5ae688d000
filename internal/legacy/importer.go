package legacy

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/auth"
	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/repository"
	"github.com/librosfab/support-service/internal/service"
)

// Report summarises one import run.
type Report struct {
	UsersCreated     int
	UsersExisting    int
	PasswordsHashed  int
	TicketsImported  int
	TicketsExisting  int
	TicketsSkipped   int
	CountersRaisedTo map[int]int
}

// Importer copies legacy rows into a store. Re-running it is safe: rows
// already present are left untouched.
type Importer struct {
	users      repository.UserRepository
	tickets    repository.TicketRepository
	bcryptCost int
	logger     *zap.Logger
}

// NewImporter builds an importer writing to store.
func NewImporter(store *repository.Store, bcryptCost int, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{users: store.Users, tickets: store.Tickets, bcryptCost: bcryptCost, logger: logger}
}

// Run imports every user, then every ticket, then raises the ticket
// counters past the imported ids.
func (im *Importer) Run(ctx context.Context, src Source) (*Report, error) {
	report := &Report{CountersRaisedTo: map[int]int{}}

	legacyUsers, err := src.Users(ctx)
	if err != nil {
		return nil, err
	}
	owners := make(map[int64]string, len(legacyUsers))
	for _, lu := range legacyUsers {
		id, err := im.importUser(ctx, lu, report)
		if err != nil {
			return report, err
		}
		if id != "" {
			owners[lu.ID] = id
		}
	}

	legacyTickets, err := src.Tickets(ctx)
	if err != nil {
		return report, err
	}
	maxNumber := map[int]int{}
	for _, lt := range legacyTickets {
		ownerID, ok := owners[lt.UserID]
		if !ok {
			im.logger.Warn("skipping ticket of unknown user",
				zap.String("ticket_id", lt.TicketID), zap.Int64("usuario_id", lt.UserID))
			report.TicketsSkipped++
			continue
		}
		ticket := ToDomain(lt, ownerID)
		year, number, ok := parseTicketID(ticket.ID)
		if !ok {
			im.logger.Warn("skipping ticket with malformed id", zap.String("ticket_id", lt.TicketID))
			report.TicketsSkipped++
			continue
		}

		inserted, err := im.tickets.Import(ctx, &ticket)
		if err != nil {
			return report, errors.Wrapf(err, "import ticket %s", ticket.ID)
		}
		if inserted {
			report.TicketsImported++
		} else {
			report.TicketsExisting++
		}
		if number > maxNumber[year] {
			maxNumber[year] = number
		}
	}

	for year, number := range maxNumber {
		if err := im.tickets.RaiseCounter(ctx, year, number); err != nil {
			return report, errors.Wrapf(err, "raise counter %d", year)
		}
		report.CountersRaisedTo[year] = number
	}
	return report, nil
}

// importUser creates the account and returns the id tickets should be
// owned by. An email already registered on the new site keeps its account.
func (im *Importer) importUser(ctx context.Context, lu User, report *Report) (string, error) {
	email := service.NormalizeEmail(lu.Email)
	if email == "" {
		im.logger.Warn("skipping user without email", zap.Int64("usuario_id", lu.ID))
		return "", nil
	}

	existing, err := im.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		report.UsersExisting++
		return existing.ID, nil
	case !errors.Is(err, repository.ErrNotFound):
		return "", errors.Wrapf(err, "look up %s", email)
	}

	hash := lu.Password
	if !auth.IsHashed(hash) {
		hash, err = auth.HashPassword(lu.Password, im.bcryptCost)
		if err != nil {
			return "", errors.Wrapf(err, "hash password of usuario %d", lu.ID)
		}
		report.PasswordsHashed++
	}

	user := &domain.User{
		ID:           UserID(lu.ID),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    lu.RegisteredAt.UTC(),
	}
	if err := im.users.Create(ctx, user); err != nil {
		return "", errors.Wrapf(err, "create user %s", email)
	}
	report.UsersCreated++
	return user.ID, nil
}

func parseTicketID(id string) (year, number int, ok bool) {
	if !domain.ValidTicketID(id) {
		return 0, 0, false
	}
	parts := strings.Split(id, "-")
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	number, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, false
	}
	return year, number, true
}
