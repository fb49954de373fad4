package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

const (
	uniqueViolation     = "23505"
	openPerUserIndex    = "tickets_one_open_per_user"
	ticketNumberCounter = "ticket_number"
)

const ticketColumns = `id, guild_id, ticket_number, user_id, channel_id, ticket_type, open, claimed_by,
        message_id, created_at, opened_at, updated_at, closed_at, close_requested_at,
        auto_close_prompt_sent_at, close_reason, close_requested_by, closed_by, transcript,
        transcript_html_path, rating_score, rating_by, rating_at, description_prompt_message_id`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO tickets (id, guild_id, ticket_number, user_id, channel_id, ticket_type, open, claimed_by,
            message_id, created_at, opened_at, updated_at, description_prompt_message_id)
        VALUES ($1,$2,$3,$4,$5,$6,TRUE,NULL,$7,$8,$8,$8,$9)`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.GuildID,
		ticket.TicketNumber,
		ticket.UserID,
		ticket.ChannelID,
		ticket.TicketType,
		ticket.MessageID,
		ticket.CreatedAt,
		ticket.DescriptionPromptMessageID,
	)
	if err != nil {
		return mapWriteError(err)
	}
	ticket.Open = true
	ticket.OpenedAt = ticket.CreatedAt
	ticket.UpdatedAt = ticket.CreatedAt
	return nil
}

func (r *ticketRepository) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) FindOpenByOwner(ctx context.Context, userID string) (*domain.Ticket, error) {
	return r.findOne(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE user_id=$1 AND open`, userID)
}

func (r *ticketRepository) FindByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	return r.findOne(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE channel_id=$1 ORDER BY open DESC LIMIT 1`, channelID)
}

func (r *ticketRepository) FindByNumber(ctx context.Context, number int64) (*domain.Ticket, error) {
	return r.findOne(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_number=$1`, number)
}

func (r *ticketRepository) AtomicClaim(ctx context.Context, channelID, claimantID string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET claimed_by=$2, updated_at=NOW()
        WHERE channel_id=$1 AND open AND claimed_by IS NULL
        RETURNING ` + ticketColumns
	return r.update(ctx, query, channelID, claimantID)
}

func (r *ticketRepository) AtomicUnclaim(ctx context.Context, channelID, expectedClaimant string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET claimed_by=NULL, updated_at=NOW()
        WHERE channel_id=$1 AND open AND claimed_by=$2
        RETURNING ` + ticketColumns
	return r.update(ctx, query, channelID, expectedClaimant)
}

func (r *ticketRepository) AtomicClose(ctx context.Context, channelID string, params CloseParams) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET open=FALSE, channel_id=NULL, closed_at=$2, closed_by=$3,
            close_reason=COALESCE(NULLIF($4, ''), close_reason), close_requested_at=NULL,
            close_requested_by=NULL, updated_at=$2
        WHERE channel_id=$1 AND open
        RETURNING ` + ticketColumns
	return r.update(ctx, query, channelID, params.At, params.ClosedBy, params.Reason)
}

func (r *ticketRepository) SetCloseRequest(ctx context.Context, channelID, requestedBy, reason string, at time.Time) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET close_requested_at=$2, close_requested_by=$3, close_reason=NULLIF($4, ''), updated_at=$2
        WHERE channel_id=$1 AND open AND close_requested_at IS NULL
        RETURNING ` + ticketColumns
	return r.update(ctx, query, channelID, at, requestedBy, reason)
}

func (r *ticketRepository) ClearCloseRequest(ctx context.Context, channelID string) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET close_requested_at=NULL, close_requested_by=NULL, close_reason=NULL, updated_at=NOW()
        WHERE channel_id=$1 AND open AND close_requested_at IS NOT NULL
        RETURNING ` + ticketColumns
	return r.update(ctx, query, channelID)
}

func (r *ticketRepository) NextTicketNumber(ctx context.Context) (int64, error) {
	const query = `
        INSERT INTO ticket_counters (name, value) VALUES ($1, 1)
        ON CONFLICT (name) DO UPDATE SET value = ticket_counters.value + 1
        RETURNING value`
	var next int64
	if err := r.pool.QueryRow(ctx, query, ticketNumberCounter).Scan(&next); err != nil {
		return 0, fmt.Errorf("next ticket number: %w", err)
	}
	return next, nil
}

func (r *ticketRepository) AssignNumber(ctx context.Context, id string, number int64) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET ticket_number=$2, updated_at=NOW()
        WHERE id=$1 AND ticket_number IS NULL
        RETURNING ` + ticketColumns
	return r.update(ctx, query, id, number)
}

func (r *ticketRepository) SetTranscript(ctx context.Context, id, plain string, htmlPath *string) error {
	const query = `UPDATE tickets SET transcript=$2, transcript_html_path=$3, updated_at=NOW() WHERE id=$1`
	return r.exec(ctx, query, id, plain, htmlPath)
}

func (r *ticketRepository) SetMessages(ctx context.Context, id, messageID string, descriptionPromptID *string) error {
	const query = `UPDATE tickets SET message_id=$2, description_prompt_message_id=$3, updated_at=NOW() WHERE id=$1`
	return r.exec(ctx, query, id, messageID, descriptionPromptID)
}

func (r *ticketRepository) Reopen(ctx context.Context, id string, params ReopenParams) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET open=TRUE, channel_id=$2, opened_at=$3, updated_at=$3,
            claimed_by=NULL, message_id=NULL, closed_at=NULL, closed_by=NULL, close_reason=NULL,
            close_requested_at=NULL, close_requested_by=NULL, auto_close_prompt_sent_at=NULL,
            rating_score=NULL, rating_by=NULL, rating_at=NULL, description_prompt_message_id=NULL
        WHERE id=$1 AND NOT open
        RETURNING ` + ticketColumns
	return r.update(ctx, query, id, params.ChannelID, params.At)
}

func (r *ticketRepository) SwitchType(ctx context.Context, channelID string, params SwitchParams) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET ticket_type=$3,
            description_prompt_message_id=CASE WHEN $4 THEN NULL ELSE description_prompt_message_id END,
            updated_at=NOW()
        WHERE channel_id=$1 AND open AND ticket_type=$2
        RETURNING ` + ticketColumns
	return r.update(ctx, query, channelID, params.From, params.To, params.ClearDescriptionPrompt)
}

func (r *ticketRepository) MarkPromptSent(ctx context.Context, id string, at time.Time) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET auto_close_prompt_sent_at=$2, updated_at=$2
        WHERE id=$1 AND open AND auto_close_prompt_sent_at IS NULL
        RETURNING ` + ticketColumns
	return r.update(ctx, query, id, at)
}

func (r *ticketRepository) ResetPrompt(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE tickets SET auto_close_prompt_sent_at=NULL, updated_at=NOW() WHERE id=$1 AND auto_close_prompt_sent_at=$2`
	return r.exec(ctx, query, id, at)
}

func (r *ticketRepository) ListStale(ctx context.Context, openedBefore time.Time, after *StaleCursor, limit int) ([]domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + ` FROM tickets
        WHERE open AND auto_close_prompt_sent_at IS NULL AND opened_at < $1
          AND ($2::timestamptz IS NULL OR (opened_at, id) > ($2::timestamptz, $3::uuid))
        ORDER BY opened_at ASC, id ASC LIMIT $4`
	var afterAt *time.Time
	var afterID *string
	if after != nil {
		afterAt, afterID = &after.OpenedAt, &after.ID
	}
	rows, err := r.pool.Query(ctx, query, openedBefore, afterAt, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) SetRating(ctx context.Context, id, userID string, score int, at time.Time) (*domain.Ticket, error) {
	const query = `
        UPDATE tickets SET rating_score=$3, rating_by=$2, rating_at=$4, updated_at=$4
        WHERE id=$1 AND user_id=$2 AND NOT open AND rating_score IS NULL
        RETURNING ` + ticketColumns
	return r.update(ctx, query, id, userID, score, at)
}

func (r *ticketRepository) CountOpen(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE open`).Scan(&count)
	return count, err
}

func (r *ticketRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func (r *ticketRepository) update(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoMatch
	}
	if err != nil {
		return nil, mapWriteError(err)
	}
	return ticket, nil
}

func (r *ticketRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoMatch
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.GuildID,
		&ticket.TicketNumber,
		&ticket.UserID,
		&ticket.ChannelID,
		&ticket.TicketType,
		&ticket.Open,
		&ticket.ClaimedBy,
		&ticket.MessageID,
		&ticket.CreatedAt,
		&ticket.OpenedAt,
		&ticket.UpdatedAt,
		&ticket.ClosedAt,
		&ticket.CloseRequestedAt,
		&ticket.AutoClosePromptSentAt,
		&ticket.CloseReason,
		&ticket.CloseRequestedBy,
		&ticket.ClosedBy,
		&ticket.Transcript,
		&ticket.TranscriptHTMLPath,
		&ticket.RatingScore,
		&ticket.RatingBy,
		&ticket.RatingAt,
		&ticket.DescriptionPromptMessageID,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openPerUserIndex {
		return ErrOpenTicketExists
	}
	return err
}
