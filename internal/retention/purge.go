// Package retention removes aged channel messages on a cron schedule.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nunutzi10/foam-ai/internal/config"
	"github.com/nunutzi10/foam-ai/internal/messages"
)

// Purger deletes messages older than the configured retention window. A zero
// TTL disables it entirely.
type Purger struct {
	messages *messages.Service
	ttl      time.Duration
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewPurger(log *slog.Logger, messageSvc *messages.Service, cfg config.RetentionConfig) *Purger {
	if log == nil {
		log = slog.Default()
	}
	return &Purger{
		messages: messageSvc,
		ttl:      cfg.TTL(),
		schedule: cfg.Schedule,
		logger:   log.With(slog.String("service", "retention")),
	}
}

// Start schedules the purge job. No-op when retention is disabled.
func (p *Purger) Start() error {
	if p.ttl == 0 {
		p.logger.Info("message retention disabled")
		return nil
	}
	p.cron = cron.New()
	if _, err := p.cron.AddFunc(p.schedule, func() {
		p.RunOnce(context.Background())
	}); err != nil {
		return err
	}
	p.cron.Start()
	p.logger.Info("message retention scheduled",
		slog.String("schedule", p.schedule), slog.Duration("ttl", p.ttl))
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (p *Purger) Stop(ctx context.Context) error {
	if p.cron == nil {
		return nil
	}
	select {
	case <-p.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes a single purge pass.
func (p *Purger) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-p.ttl)
	removed, err := p.messages.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("message purge failed", slog.Any("error", err))
		return
	}
	p.logger.Info("message purge finished",
		slog.Int64("removed", removed), slog.Time("cutoff", cutoff))
}
