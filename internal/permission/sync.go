package permission

import (
	"context"

	"go.uber.org/zap"
)

// Applier writes overwrites to a conversation space. Each call affects a
// single principal and is expected to be idempotent.
type Applier interface {
	SetOverwrite(ctx context.Context, channelID string, ow Overwrite) error
	ClearOverwrite(ctx context.Context, channelID string, principal Principal) error
}

// Report summarizes one synchronization pass.
type Report struct {
	Applied int
	Cleared int
	Failed  []Principal
}

// OK reports whether every write succeeded.
func (r Report) OK() bool {
	return len(r.Failed) == 0
}

// Synchronizer applies computed matrices to spaces. A failed write for one
// principal is logged and does not stop the remaining writes.
type Synchronizer struct {
	applier Applier
	logger  *zap.Logger
}

// NewSynchronizer constructs a synchronizer.
func NewSynchronizer(applier Applier, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{applier: applier, logger: logger}
}

// Apply writes every overwrite in overwrites.
func (s *Synchronizer) Apply(ctx context.Context, channelID string, overwrites []Overwrite) Report {
	return s.write(ctx, channelID, overwrites, nil)
}

// Sync moves a space from prev to next, writing only what changed.
func (s *Synchronizer) Sync(ctx context.Context, channelID string, prev, next []Overwrite) Report {
	set, remove := Diff(prev, next)
	return s.write(ctx, channelID, set, remove)
}

func (s *Synchronizer) write(ctx context.Context, channelID string, set []Overwrite, remove []Principal) Report {
	var report Report
	for _, ow := range set {
		if err := s.applier.SetOverwrite(ctx, channelID, ow); err != nil {
			s.logger.Warn("overwrite write failed",
				zap.String("channel_id", channelID),
				zap.String("principal_id", ow.ID),
				zap.String("principal_kind", string(ow.Kind)),
				zap.Error(err))
			report.Failed = append(report.Failed, ow.Principal)
			continue
		}
		report.Applied++
	}
	for _, principal := range remove {
		if err := s.applier.ClearOverwrite(ctx, channelID, principal); err != nil {
			s.logger.Warn("overwrite clear failed",
				zap.String("channel_id", channelID),
				zap.String("principal_id", principal.ID),
				zap.Error(err))
			report.Failed = append(report.Failed, principal)
			continue
		}
		report.Cleared++
	}
	return report
}
