// Package legacy moves accounts and tickets out of the old PHP site's MySQL
// database into the current store.
package legacy

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/thread"
)

// userNamespace seeds deterministic ids for imported accounts, so running
// the import twice yields the same user ids.
var userNamespace = uuid.MustParse("6f1c2b8e-2f5d-4c39-9a0e-5b7d3c1e8a42")

// User is a row of the legacy usuarios table.
type User struct {
	ID           int64
	Email        string
	Password     string
	RegisteredAt time.Time
}

// Ticket is a legacy ticket: a mensaje_tickets row joined with its tickets
// row.
type Ticket struct {
	TicketID    string
	UserID      int64
	Subject     string
	Description string
	Status      string
	Priority    string
	Type        string
	Content     string
	CreatedAt   time.Time
}

// UserID is the id an imported account gets.
func UserID(legacyID int64) string {
	return uuid.NewSHA1(userNamespace, []byte("usuarios:"+strconv.FormatInt(legacyID, 10))).String()
}

// MapStatus translates an estado value. Unknown values read as open.
func MapStatus(estado string) domain.TicketStatus {
	switch strings.ToLower(strings.TrimSpace(estado)) {
	case "en_proceso", "en proceso":
		return domain.TicketStatusInProgress
	case "resuelto":
		return domain.TicketStatusResolved
	case "cerrado":
		return domain.TicketStatusClosed
	}
	return domain.TicketStatusOpen
}

// MapPriority translates a prioridad value. Unknown values read as medium.
func MapPriority(prioridad string) domain.TicketPriority {
	switch strings.ToLower(strings.TrimSpace(prioridad)) {
	case "baja":
		return domain.TicketPriorityLow
	case "alta":
		return domain.TicketPriorityHigh
	case "urgente":
		return domain.TicketPriorityUrgent
	}
	return domain.TicketPriorityMedium
}

// MapType translates a tipo value. Unknown values read as inquiry.
func MapType(tipo string) domain.TicketType {
	switch strings.ToLower(strings.TrimSpace(tipo)) {
	case "problema":
		return domain.TicketTypeProblem
	case "sugerencia":
		return domain.TicketTypeSuggestion
	case "urgente":
		return domain.TicketTypeUrgent
	}
	return domain.TicketTypeInquiry
}

const phoneLabel = "Teléfono:"

// ExtractPhone pulls the phone number the old contact form appended to the
// ticket content, if any.
func ExtractPhone(contenido string) string {
	idx := strings.LastIndex(contenido, phoneLabel)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(contenido[idx+len(phoneLabel):])
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = strings.TrimSpace(rest[:nl])
	}
	return rest
}

// ToDomain maps a legacy ticket owned by ownerID. The stored conversation is
// kept verbatim as the legacy thread; the body is its first entry.
func ToDomain(lt Ticket, ownerID string) domain.Ticket {
	createdAt := lt.CreatedAt.UTC()
	t := domain.Ticket{
		ID:        strings.TrimSpace(lt.TicketID),
		OwnerID:   ownerID,
		Subject:   truncateRunes(strings.TrimSpace(lt.Subject), domain.MaxSubjectLength),
		Type:      MapType(lt.Type),
		Status:    MapStatus(lt.Status),
		Priority:  MapPriority(lt.Priority),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	if phone := ExtractPhone(lt.Content); phone != "" {
		t.Phone = &phone
	}

	if strings.TrimSpace(lt.Description) != "" {
		raw := lt.Description
		t.LegacyThread = &raw
		if view := thread.Parse(raw).View(&t); len(view) > 0 {
			t.Body = view[0].Body
		}
	}
	if t.Body == "" {
		t.Body = t.Subject
	}
	return t
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
