// Package transcript renders conversation history into the plain-text
// snapshot stored on the ticket record and the rich HTML document persisted
// to external storage.
package transcript

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/platform"
)

const (
	// PageSize is the largest page the platform returns per fetch.
	PageSize = 100

	defaultPlainLimit = 100
	defaultHTMLCap    = 2000
)

// MessageSource fetches history newest first, older than beforeID.
type MessageSource interface {
	Messages(ctx context.Context, channelID string, limit int, beforeID string) ([]platform.Message, error)
}

// Options bounds the exports.
type Options struct {
	PlainLimit int
	HTMLCap    int
}

// Exporter renders channel history.
type Exporter struct {
	source     MessageSource
	markdown   *Markdown
	logger     *zap.Logger
	plainLimit int
	htmlCap    int
}

// NewExporter constructs an exporter. Zero options fall back to 100 and
// 2000 messages.
func NewExporter(source MessageSource, opts Options, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PlainLimit <= 0 || opts.PlainLimit > PageSize {
		opts.PlainLimit = defaultPlainLimit
	}
	if opts.HTMLCap <= 0 {
		opts.HTMLCap = defaultHTMLCap
	}
	return &Exporter{
		source:     source,
		markdown:   NewMarkdown(),
		logger:     logger,
		plainLimit: opts.PlainLimit,
		htmlCap:    opts.HTMLCap,
	}
}

// recent returns up to limit of the latest messages in chronological order.
func (e *Exporter) recent(ctx context.Context, channelID string, limit int) ([]platform.Message, error) {
	msgs, err := e.source.Messages(ctx, channelID, limit, "")
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	slices.Reverse(msgs)
	return msgs, nil
}

// history paginates backward until the channel is exhausted or maxMessages
// were collected, and returns them in chronological order.
func (e *Exporter) history(ctx context.Context, channelID string, maxMessages int) ([]platform.Message, error) {
	var (
		all    []platform.Message
		before string
	)
	for len(all) < maxMessages {
		limit := min(PageSize, maxMessages-len(all))
		page, err := e.source.Messages(ctx, channelID, limit, before)
		if err != nil {
			if len(all) == 0 {
				return nil, fmt.Errorf("fetch messages: %w", err)
			}
			e.logger.Warn("transcript pagination stopped early",
				zap.String("channel_id", channelID),
				zap.Int("collected", len(all)),
				zap.Error(err))
			break
		}
		if len(page) > limit {
			page = page[:limit]
		}
		all = append(all, page...)
		if len(page) < limit {
			break
		}
		before = page[len(page)-1].ID
	}
	slices.Reverse(all)
	return all, nil
}
