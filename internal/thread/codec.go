// Package thread encodes ticket threads and decodes the values stored by
// earlier versions of the site, where a whole conversation lived in one
// text column.
//
// A stored value is one of two variants. A StructuredList is a JSON array
// of entries, either in the current encoding (author/body/created_at) or in
// the legacy one (autor/mensaje/fecha). Anything else is a LegacyScalar: the
// customer's original submission kept verbatim. Decoding never rewrites
// the stored value.
package thread

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/librosfab/support-service/internal/domain"
)

// Kind tags the variant recognised in a stored value.
type Kind int

const (
	KindEmpty Kind = iota
	KindStructured
	KindLegacyScalar
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindLegacyScalar:
		return "legacy_scalar"
	default:
		return "empty"
	}
}

// legacyTimeLayout is how the old site stamped chat entries.
const legacyTimeLayout = "2006-01-02 15:04:05"

// Legacy author spellings.
const (
	legacyCustomer = "cliente"
	legacySupport  = "soporte"
)

// ErrNotStructured is returned by Decode for values that are not a JSON list.
var ErrNotStructured = errors.New("thread: value is not a structured message list")

type wireMessage struct {
	TicketID  string               `json:"ticket_id,omitempty"`
	Seq       int                  `json:"seq"`
	Author    domain.MessageAuthor `json:"author"`
	Body      string               `json:"body"`
	CreatedAt time.Time            `json:"created_at"`
}

// storedEntry accepts both the current and the legacy entry shapes.
type storedEntry struct {
	TicketID  string     `json:"ticket_id"`
	Seq       int        `json:"seq"`
	Author    string     `json:"author"`
	Body      *string    `json:"body"`
	CreatedAt *time.Time `json:"created_at"`

	Autor   string `json:"autor"`
	Mensaje string `json:"mensaje"`
	Fecha   string `json:"fecha"`
}

// Stored is the decoded, tagged form of a stored thread value.
type Stored struct {
	Kind     Kind
	Messages []domain.Message
	Scalar   string
}

// Encode renders messages in the current structured encoding.
func Encode(msgs []domain.Message) ([]byte, error) {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage{
			TicketID:  m.TicketID,
			Seq:       m.Seq,
			Author:    m.Author,
			Body:      m.Body,
			CreatedAt: m.CreatedAt,
		})
	}
	return json.Marshal(out)
}

// Decode parses a structured list. Values that are not a JSON array of
// entries yield ErrNotStructured. Entries without message text (null or
// blank body) are dropped.
func Decode(raw []byte) ([]domain.Message, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotStructured
	}
	var entries []storedEntry
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return nil, ErrNotStructured
	}
	msgs := make([]domain.Message, 0, len(entries))
	for _, e := range entries {
		msg := e.toMessage(len(msgs))
		if strings.TrimSpace(msg.Body) == "" {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Parse classifies a stored value without failing: unparseable text is the
// legacy scalar variant.
func Parse(raw string) Stored {
	if strings.TrimSpace(raw) == "" {
		return Stored{Kind: KindEmpty}
	}
	msgs, err := Decode([]byte(raw))
	if err != nil {
		return Stored{Kind: KindLegacyScalar, Scalar: raw}
	}
	return Stored{Kind: KindStructured, Messages: msgs}
}

// View returns the messages a reader sees for ticket t, numbered 1..n in
// stored order. Entries that lack a timestamp are stamped with the ticket's
// creation time. A value with no entries is the single implicit submission
// message.
func (s Stored) View(t *domain.Ticket) []domain.Message {
	switch s.Kind {
	case KindStructured:
		if len(s.Messages) == 0 {
			break
		}
		out := make([]domain.Message, len(s.Messages))
		for i, m := range s.Messages {
			m.TicketID = t.ID
			m.Seq = i + 1
			if m.CreatedAt.IsZero() {
				m.CreatedAt = t.CreatedAt
			}
			out[i] = m
		}
		return out
	case KindLegacyScalar:
		return []domain.Message{{
			TicketID:  t.ID,
			Seq:       1,
			Author:    domain.AuthorCustomer,
			Body:      s.Scalar,
			CreatedAt: t.CreatedAt,
		}}
	}
	return []domain.Message{domain.ImplicitMessage(t)}
}

// ViewOf is the read view of a ticket that has no message rows.
func ViewOf(t *domain.Ticket) []domain.Message {
	if t.LegacyThread == nil {
		return []domain.Message{domain.ImplicitMessage(t)}
	}
	return Parse(*t.LegacyThread).View(t)
}

func (e storedEntry) toMessage(index int) domain.Message {
	msg := domain.Message{
		TicketID: e.TicketID,
		Seq:      e.Seq,
	}
	if msg.Seq <= 0 {
		msg.Seq = index + 1
	}

	switch {
	case e.Author != "":
		msg.Author = domain.MessageAuthor(e.Author)
	case e.Autor == legacyCustomer:
		msg.Author = domain.AuthorCustomer
	case e.Autor == legacySupport:
		msg.Author = domain.AuthorSupport
	default:
		msg.Author = domain.AuthorSupport
	}
	if !msg.Author.Valid() {
		msg.Author = domain.AuthorSupport
	}

	if e.Body != nil {
		msg.Body = *e.Body
	} else {
		msg.Body = e.Mensaje
	}

	if e.CreatedAt != nil {
		msg.CreatedAt = *e.CreatedAt
	} else if e.Fecha != "" {
		if ts, err := time.ParseInLocation(legacyTimeLayout, e.Fecha, time.UTC); err == nil {
			msg.CreatedAt = ts
		}
	}
	return msg
}
