package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/config"
	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/events"
	"github.com/librosfab/support-service/internal/mq"
	"github.com/librosfab/support-service/internal/repository"
	"github.com/librosfab/support-service/internal/service"
)

const timeLayout = "2006-01-02 15:04"

type commands struct {
	tickets *service.TicketService
	threads *service.ThreadService
	out     io.Writer
}

func (c *commands) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "list":
		return c.list(ctx, args)
	case "stats":
		return c.stats(ctx)
	case "show":
		return c.show(ctx, args)
	case "status":
		return c.status(ctx, args)
	case "priority":
		return c.priority(ctx, args)
	case "reply":
		return c.reply(ctx, args)
	}
	return errors.Errorf("unknown command %q", name)
}

func (c *commands) list(ctx context.Context, args []string) error {
	var statuses, priorities []string
	var limit int
	flags := pflag.NewFlagSet("list", pflag.ContinueOnError)
	flags.StringSliceVar(&statuses, "status", nil, "only tickets in these states")
	flags.StringSliceVar(&priorities, "priority", nil, "only tickets with these priorities")
	flags.IntVar(&limit, "limit", repository.DefaultListLimit, "maximum rows")
	if err := flags.Parse(args); err != nil {
		return err
	}

	filter := repository.TicketFilter{Limit: limit}
	for _, s := range statuses {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(s))
	}
	for _, p := range priorities {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(p))
	}
	tickets, err := c.tickets.ListAll(ctx, filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIORITY\tSTATUS\tTYPE\tUPDATED\tSUBJECT")
	for _, t := range tickets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Priority, t.Status, t.Type, t.UpdatedAt.Format(timeLayout), t.Subject)
	}
	return w.Flush()
}

func (c *commands) stats(ctx context.Context) error {
	counts, err := c.tickets.CountByStatus(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	total := 0
	for _, s := range []domain.TicketStatus{
		domain.TicketStatusOpen,
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
	} {
		fmt.Fprintf(w, "%s\t%d\n", s, counts[s])
		total += counts[s]
	}
	fmt.Fprintf(w, "total\t%d\n", total)
	return w.Flush()
}

func (c *commands) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: show <ticket-id>")
	}
	ticket, err := c.tickets.Get(ctx, args[0])
	if err != nil {
		return err
	}
	msgs, err := c.threads.Messages(ctx, ticket)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "%s  %s\n", ticket.ID, ticket.Subject)
	fmt.Fprintf(c.out, "status: %s  priority: %s  type: %s\n", ticket.Status, ticket.Priority, ticket.Type)
	if ticket.Phone != nil {
		fmt.Fprintf(c.out, "phone: %s\n", *ticket.Phone)
	}
	fmt.Fprintf(c.out, "opened: %s  updated: %s\n\n", ticket.CreatedAt.Format(timeLayout), ticket.UpdatedAt.Format(timeLayout))
	for _, m := range msgs {
		fmt.Fprintf(c.out, "#%d %s %s\n  %s\n", m.Seq, m.Author, m.CreatedAt.Format(timeLayout),
			strings.ReplaceAll(m.Body, "\n", "\n  "))
	}
	return nil
}

func (c *commands) status(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: status <ticket-id> <state>")
	}
	ticket, err := c.tickets.UpdateStatus(ctx, args[0], domain.TicketStatus(args[1]))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s is now %s\n", ticket.ID, ticket.Status)
	return nil
}

func (c *commands) priority(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: priority <ticket-id> <priority>")
	}
	ticket, err := c.tickets.UpdatePriority(ctx, args[0], domain.TicketPriority(args[1]))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s priority is now %s\n", ticket.ID, ticket.Priority)
	return nil
}

func (c *commands) reply(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: reply <ticket-id> <text>")
	}
	msg, err := c.threads.AppendAsSupport(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "replied on %s as message #%d\n", args[0], msg.Seq)
	return nil
}

// watchedEvent is the broker form of events.Event; payloads stay raw.
type watchedEvent struct {
	Type      events.EventType `json:"type"`
	TicketID  string           `json:"ticket_id"`
	Actor     events.Actor     `json:"actor"`
	Timestamp string           `json:"timestamp"`
	Payload   json.RawMessage  `json:"payload"`
}

func runWatch(ctx context.Context, cfg config.AMQPConfig, args []string, out io.Writer, logger *zap.Logger) error {
	var queue string
	flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	flags.StringVar(&queue, "queue", "", "durable queue to consume (default: temporary queue)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if cfg.URL == "" {
		return errors.New("AMQP_URL is not set")
	}

	consumer, err := mq.NewRabbitConsumer(cfg.URL, cfg.Exchange, queue, logger)
	if err != nil {
		return err
	}
	defer consumer.Close() //nolint:errcheck

	if err := consumer.Consume(func(d amqp091.Delivery) {
		fmt.Fprintln(out, formatDelivery(d.Body))
	}); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func formatDelivery(body []byte) string {
	var e watchedEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return "unreadable event: " + string(body)
	}
	return fmt.Sprintf("%s %-24s %s %s %s", e.Timestamp, e.Type, e.TicketID, e.Actor.Type, e.Payload)
}
