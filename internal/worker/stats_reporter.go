package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/librosfab/support-service/internal/domain"
	"github.com/librosfab/support-service/internal/observability"
)

// StatsSource reports ticket counts per state.
type StatsSource interface {
	CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error)
}

// StatsReporter periodically logs ticket counts and request totals.
type StatsReporter struct {
	cron    *cron.Cron
	source  StatsSource
	metrics *observability.Metrics
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewStatsReporter builds a reporter. metrics may be nil.
func NewStatsReporter(source StatsSource, metrics *observability.Metrics, logger *zap.Logger) *StatsReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StatsReporter{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		source:  source,
		metrics: metrics,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start schedules the report. An empty schedule disables it.
func (r *StatsReporter) Start(schedule string) error {
	if schedule == "" {
		r.logger.Info("stats schedule empty; reporter disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(schedule, func() {
		if err := r.Report(r.ctx); err != nil {
			r.logger.Error("stats report failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("stats reporter started", zap.String("schedule", schedule))
	return nil
}

// Report logs one snapshot.
func (r *StatsReporter) Report(ctx context.Context) error {
	counts, err := r.source.CountByStatus(ctx)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.Int("open", counts[domain.TicketStatusOpen]),
		zap.Int("in_progress", counts[domain.TicketStatusInProgress]),
		zap.Int("resolved", counts[domain.TicketStatusResolved]),
		zap.Int("closed", counts[domain.TicketStatusClosed]),
	}
	if r.metrics != nil {
		snap := r.metrics.Snapshot()
		var requests, errs int64
		for _, n := range snap.Requests {
			requests += n
		}
		for _, n := range snap.Errors {
			errs += n
		}
		fields = append(fields, zap.Int64("requests", requests), zap.Int64("request_errors", errs))
	}
	r.logger.Info("ticket stats", fields...)
	return nil
}

// Stop waits for a running report and stops the schedule.
func (r *StatsReporter) Stop() {
	<-r.cron.Stop().Done()
	r.cancel()
}
