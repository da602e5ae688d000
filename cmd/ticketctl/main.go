// ticketctl is the support operator's tool: it lists and inspects tickets,
// moves them through their lifecycle, replies on their threads and follows
// ticket events from the broker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/config"
	"github.com/librosfab/support-service/internal/events"
	"github.com/librosfab/support-service/internal/observability"
	"github.com/librosfab/support-service/internal/persistence"
	"github.com/librosfab/support-service/internal/service"
	"github.com/librosfab/support-service/internal/worker"
)

const usage = `usage: ticketctl <command> [flags] [args]

commands:
  list [--status s] [--priority p] [--limit n]   list tickets, urgent first
  stats                                          ticket counts per state
  show <ticket-id>                               ticket details and thread
  status <ticket-id> <state>                     move a ticket to open|in_progress|resolved|closed
  priority <ticket-id> <priority>                set low|medium|high|urgent
  reply <ticket-id> <text>                       answer on the ticket thread
  watch [--queue name]                           print ticket events from the broker
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(os.Stderr, usage)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Logger, observability.WithService("ticketctl"), observability.WithOutput("stderr"))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if args[0] == "watch" {
		return runWatch(ctx, cfg.AMQP, args[1:], os.Stdout, logger)
	}

	store, err := persistence.OpenStore(ctx, *cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	dispatcher := events.NewInMemoryDispatcher(logger)
	notifications, err := worker.StartNotificationWorker(dispatcher, cfg.AMQP, logger)
	if err != nil {
		logger.Warn("broker unavailable; events will only be logged", zap.Error(err))
		notifications, _ = worker.StartNotificationWorker(dispatcher, config.AMQPConfig{}, logger)
	}
	defer notifications.Stop()

	// replies must evict the API's cached copy of the thread
	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	c := &commands{
		tickets: service.NewTicketService(service.TicketDependencies{
			TicketRepo: store.Tickets,
			Dispatcher: dispatcher,
			Logger:     logger,
		}),
		threads: service.NewThreadService(service.ThreadDependencies{
			ThreadRepo: store.Threads,
			Cache:      redis.ThreadCache(cfg.Chat),
			Dispatcher: dispatcher,
			Logger:     logger,
		}),
		out: os.Stdout,
	}
	return c.dispatch(ctx, args[0], args[1:])
}
