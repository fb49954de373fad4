package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

const (
	sweepBatch   = 50
	activityPage = 50
)

// Prompter posts the auto-close prompt for a ticket.
type Prompter interface {
	SendAutoClosePrompt(ctx context.Context, ticketID string) (*domain.Ticket, error)
}

// MessageSource fetches recent channel messages, newest first.
type MessageSource interface {
	Messages(ctx context.Context, channelID string, limit int, beforeID string) ([]platform.Message, error)
}

// Watchdog periodically prompts owners of idle tickets. Overlapping ticks
// are skipped rather than queued.
type Watchdog struct {
	tickets  repository.TicketRepository
	messages MessageSource
	prompter Prompter
	cfg      config.WatchdogConfig
	logger   *zap.Logger
	clock    func() time.Time
	batch    int
	running  atomic.Bool
}

// NewWatchdog constructs the sweep.
func NewWatchdog(tickets repository.TicketRepository, messages MessageSource, prompter Prompter, cfg config.WatchdogConfig, logger *zap.Logger) *Watchdog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchdog{
		tickets:  tickets,
		messages: messages,
		prompter: prompter,
		cfg:      cfg,
		logger:   logger,
		clock:    time.Now,
		batch:    sweepBatch,
	}
}

// Run sweeps every configured interval until ctx is done.
func (w *Watchdog) Run(ctx context.Context) {
	interval := w.cfg.Interval()
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("watchdog started", zap.Duration("interval", interval))
	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			w.logger.Info("watchdog stopped")
			return
		}
	}
}

func (w *Watchdog) tick(ctx context.Context) {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Debug("watchdog sweep still running, skipping tick")
		return
	}
	defer w.running.Store(false)

	prompted, err := w.Sweep(ctx)
	if err != nil {
		w.logger.Error("watchdog sweep failed", zap.Error(err))
		return
	}
	if prompted > 0 {
		w.logger.Info("watchdog prompted idle tickets", zap.Int("count", prompted))
	}
}

// Sweep runs one pass over every candidate, paging by keyset so tickets
// skipped on one page never hide the ones behind them. It returns how many
// tickets were prompted. Only a failure to list candidates aborts the pass.
func (w *Watchdog) Sweep(ctx context.Context) (int, error) {
	now := w.clock()
	cutoff := now.Add(-w.cfg.OpenThreshold())
	batch := w.batch
	if batch <= 0 {
		batch = sweepBatch
	}

	prompted := 0
	var after *repository.StaleCursor
	for ctx.Err() == nil {
		candidates, err := w.tickets.ListStale(ctx, cutoff, after, batch)
		if err != nil {
			return prompted, err
		}
		for i := range candidates {
			if ctx.Err() != nil {
				break
			}
			if w.check(ctx, &candidates[i], now) {
				prompted++
			}
		}
		if len(candidates) < batch {
			break
		}
		after = repository.CursorOf(&candidates[len(candidates)-1])
	}
	return prompted, nil
}

// check prompts t when its channel has been idle long enough and reports
// whether a prompt was sent.
func (w *Watchdog) check(ctx context.Context, ticket *domain.Ticket, now time.Time) bool {
	last, err := w.lastActivity(ctx, ticket)
	if errors.Is(err, platform.ErrNotFound) {
		w.logger.Debug("ticket channel is gone, skipping", zap.String("ticket_id", ticket.ID), zap.String("channel_id", ticket.Channel()))
		return false
	}
	if err != nil {
		w.logger.Warn("activity lookup failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		return false
	}
	if now.Sub(last) < w.cfg.InactiveThreshold() {
		return false
	}

	if _, err := w.prompter.SendAutoClosePrompt(ctx, ticket.ID); err != nil {
		switch apperrors.OutcomeOf(err) {
		case apperrors.OutcomeAlreadyDone, apperrors.OutcomeNotFound:
			w.logger.Debug("auto-close prompt skipped", zap.String("ticket_id", ticket.ID), zap.Error(err))
		default:
			w.logger.Warn("auto-close prompt failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
		return false
	}
	return true
}

// lastActivity is the timestamp of the newest message not posted by a
// bot, or the start of the open period when there is none.
func (w *Watchdog) lastActivity(ctx context.Context, t *domain.Ticket) (time.Time, error) {
	msgs, err := w.messages.Messages(ctx, t.Channel(), activityPage, "")
	if err != nil {
		return time.Time{}, err
	}
	for _, m := range msgs {
		if !m.Bot {
			return m.Timestamp, nil
		}
	}
	return t.OpenedAt, nil
}
