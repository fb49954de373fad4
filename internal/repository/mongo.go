package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

const mongoOpenPerUserIndex = "one_open_per_user"

const (
	ticketsCollection  = "tickets"
	countersCollection = "counters"
	historyCollection  = "ticket_history"
)

type mongoTicketRepository struct {
	tickets  *mongo.Collection
	counters *mongo.Collection
}

// NewMongoTicketRepository builds the document-store repository and makes
// sure the uniqueness indexes exist.
func NewMongoTicketRepository(ctx context.Context, db *mongo.Database) (TicketRepository, error) {
	r := &mongoTicketRepository{
		tickets:  db.Collection(ticketsCollection),
		counters: db.Collection(countersCollection),
	}
	_, err := r.tickets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetName(mongoOpenPerUserIndex).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"open": true}),
		},
		{
			Keys: bson.D{{Key: "ticket_number", Value: 1}},
			Options: options.Index().
				SetName("ticket_number").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"ticket_number": bson.M{"$exists": true}}),
		},
		{Keys: bson.D{{Key: "channel_id", Value: 1}}},
		{Keys: bson.D{{Key: "open", Value: 1}, {Key: "opened_at", Value: 1}}},
	})
	if err != nil {
		return nil, fmt.Errorf("create ticket indexes: %w", err)
	}
	return r, nil
}

func (r *mongoTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.Open = true
	ticket.ClaimedBy = nil
	ticket.OpenedAt = ticket.CreatedAt
	ticket.UpdatedAt = ticket.CreatedAt
	if _, err := r.tickets.InsertOne(ctx, ticket); err != nil {
		if isOpenPerUserViolation(err) {
			return ErrOpenTicketExists
		}
		return err
	}
	return nil
}

func (r *mongoTicketRepository) FindByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoTicketRepository) FindOpenByOwner(ctx context.Context, userID string) (*domain.Ticket, error) {
	return r.findOne(ctx, bson.M{"user_id": userID, "open": true})
}

func (r *mongoTicketRepository) FindByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	return r.findOne(ctx, bson.M{"channel_id": channelID})
}

func (r *mongoTicketRepository) FindByNumber(ctx context.Context, number int64) (*domain.Ticket, error) {
	return r.findOne(ctx, bson.M{"ticket_number": number})
}

func (r *mongoTicketRepository) AtomicClaim(ctx context.Context, channelID, claimantID string) (*domain.Ticket, error) {
	return r.update(ctx,
		bson.M{"channel_id": channelID, "open": true, "claimed_by": nil},
		bson.M{"$set": bson.M{"claimed_by": claimantID, "updated_at": storeNow()}})
}

func (r *mongoTicketRepository) AtomicUnclaim(ctx context.Context, channelID, expectedClaimant string) (*domain.Ticket, error) {
	return r.update(ctx,
		bson.M{"channel_id": channelID, "open": true, "claimed_by": expectedClaimant},
		bson.M{"$set": bson.M{"claimed_by": nil, "updated_at": storeNow()}})
}

func (r *mongoTicketRepository) AtomicClose(ctx context.Context, channelID string, params CloseParams) (*domain.Ticket, error) {
	set := bson.M{
		"open":               false,
		"channel_id":         nil,
		"closed_at":          params.At,
		"closed_by":          params.ClosedBy,
		"close_requested_at": nil,
		"close_requested_by": nil,
		"updated_at":         params.At,
	}
	if params.Reason != "" {
		set["close_reason"] = params.Reason
	}
	return r.update(ctx, bson.M{"channel_id": channelID, "open": true}, bson.M{"$set": set})
}

func (r *mongoTicketRepository) SetCloseRequest(ctx context.Context, channelID, requestedBy, reason string, at time.Time) (*domain.Ticket, error) {
	var closeReason any
	if reason != "" {
		closeReason = reason
	}
	return r.update(ctx,
		bson.M{"channel_id": channelID, "open": true, "close_requested_at": nil},
		bson.M{"$set": bson.M{
			"close_requested_at": at,
			"close_requested_by": requestedBy,
			"close_reason":       closeReason,
			"updated_at":         at,
		}})
}

func (r *mongoTicketRepository) ClearCloseRequest(ctx context.Context, channelID string) (*domain.Ticket, error) {
	return r.update(ctx,
		bson.M{"channel_id": channelID, "open": true, "close_requested_at": bson.M{"$ne": nil}},
		bson.M{"$set": bson.M{
			"close_requested_at": nil,
			"close_requested_by": nil,
			"close_reason":       nil,
			"updated_at":         storeNow(),
		}})
}

func (r *mongoTicketRepository) NextTicketNumber(ctx context.Context) (int64, error) {
	var counter struct {
		Value int64 `bson:"value"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := r.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": ticketNumberCounter},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next ticket number: %w", err)
	}
	return counter.Value, nil
}

func (r *mongoTicketRepository) AssignNumber(ctx context.Context, id string, number int64) (*domain.Ticket, error) {
	return r.update(ctx,
		bson.M{"_id": id, "ticket_number": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"ticket_number": number, "updated_at": storeNow()}})
}

func (r *mongoTicketRepository) SetTranscript(ctx context.Context, id, plain string, htmlPath *string) error {
	return r.updateOne(ctx, id, bson.M{
		"transcript":           plain,
		"transcript_html_path": htmlPath,
	})
}

func (r *mongoTicketRepository) SetMessages(ctx context.Context, id, messageID string, descriptionPromptID *string) error {
	return r.updateOne(ctx, id, bson.M{
		"message_id":                    messageID,
		"description_prompt_message_id": descriptionPromptID,
	})
}

func (r *mongoTicketRepository) Reopen(ctx context.Context, id string, params ReopenParams) (*domain.Ticket, error) {
	return r.update(ctx, bson.M{"_id": id, "open": false}, bson.M{"$set": bson.M{
		"open":                          true,
		"channel_id":                    params.ChannelID,
		"opened_at":                     params.At,
		"updated_at":                    params.At,
		"claimed_by":                    nil,
		"message_id":                    nil,
		"closed_at":                     nil,
		"closed_by":                     nil,
		"close_reason":                  nil,
		"close_requested_at":            nil,
		"close_requested_by":            nil,
		"auto_close_prompt_sent_at":     nil,
		"rating_score":                  nil,
		"rating_by":                     nil,
		"rating_at":                     nil,
		"description_prompt_message_id": nil,
	}})
}

func (r *mongoTicketRepository) SwitchType(ctx context.Context, channelID string, params SwitchParams) (*domain.Ticket, error) {
	set := bson.M{"ticket_type": params.To, "updated_at": storeNow()}
	if params.ClearDescriptionPrompt {
		set["description_prompt_message_id"] = nil
	}
	return r.update(ctx,
		bson.M{"channel_id": channelID, "open": true, "ticket_type": params.From},
		bson.M{"$set": set})
}

func (r *mongoTicketRepository) MarkPromptSent(ctx context.Context, id string, at time.Time) (*domain.Ticket, error) {
	return r.update(ctx,
		bson.M{"_id": id, "open": true, "auto_close_prompt_sent_at": nil},
		bson.M{"$set": bson.M{"auto_close_prompt_sent_at": at, "updated_at": at}})
}

func (r *mongoTicketRepository) ResetPrompt(ctx context.Context, id string, at time.Time) error {
	res, err := r.tickets.UpdateOne(ctx,
		bson.M{"_id": id, "auto_close_prompt_sent_at": at},
		bson.M{"$set": bson.M{"auto_close_prompt_sent_at": nil, "updated_at": storeNow()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNoMatch
	}
	return nil
}

func (r *mongoTicketRepository) ListStale(ctx context.Context, openedBefore time.Time, after *StaleCursor, limit int) ([]domain.Ticket, error) {
	opts := options.Find().SetSort(bson.D{{Key: "opened_at", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	filter := bson.M{
		"open":                      true,
		"auto_close_prompt_sent_at": nil,
		"opened_at":                 bson.M{"$lt": openedBefore},
	}
	if after != nil {
		filter["$or"] = bson.A{
			bson.M{"opened_at": bson.M{"$gt": after.OpenedAt}},
			bson.M{"opened_at": after.OpenedAt, "_id": bson.M{"$gt": after.ID}},
		}
	}
	cursor, err := r.tickets.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var tickets []domain.Ticket
	if err := cursor.All(ctx, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *mongoTicketRepository) SetRating(ctx context.Context, id, userID string, score int, at time.Time) (*domain.Ticket, error) {
	return r.update(ctx,
		bson.M{"_id": id, "user_id": userID, "open": false, "rating_score": nil},
		bson.M{"$set": bson.M{"rating_score": score, "rating_by": userID, "rating_at": at, "updated_at": at}})
}

func (r *mongoTicketRepository) CountOpen(ctx context.Context) (int64, error) {
	return r.tickets.CountDocuments(ctx, bson.M{"open": true})
}

func (r *mongoTicketRepository) findOne(ctx context.Context, filter bson.M) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := r.tickets.FindOne(ctx, filter).Decode(&ticket)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *mongoTicketRepository) update(ctx context.Context, filter, update bson.M) (*domain.Ticket, error) {
	var ticket domain.Ticket
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.tickets.FindOneAndUpdate(ctx, filter, update, opts).Decode(&ticket)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNoMatch
	}
	if err != nil {
		if isOpenPerUserViolation(err) {
			return nil, ErrOpenTicketExists
		}
		return nil, err
	}
	return &ticket, nil
}

func (r *mongoTicketRepository) updateOne(ctx context.Context, id string, set bson.M) error {
	set["updated_at"] = storeNow()
	res, err := r.tickets.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNoMatch
	}
	return nil
}

type mongoHistoryRepository struct {
	col *mongo.Collection
}

// NewMongoHistoryRepository builds the document-store history repository.
func NewMongoHistoryRepository(db *mongo.Database) TicketHistoryRepository {
	return &mongoHistoryRepository{col: db.Collection(historyCollection)}
}

func (r *mongoHistoryRepository) Create(ctx context.Context, history *domain.TicketHistory) error {
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = storeNow()
	}
	_, err := r.col.InsertOne(ctx, history)
	return err
}

func (r *mongoHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	cursor, err := r.col.Find(ctx, bson.M{"ticket_id": ticketID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var result []domain.TicketHistory
	if err := cursor.All(ctx, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// storeNow matches the millisecond resolution the engine stamps records with.
func storeNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// isOpenPerUserViolation reports a duplicate key on the one-open-ticket index
// only. Collisions on _id or ticket_number stay plain errors.
func isOpenPerUserViolation(err error) bool {
	if !mongo.IsDuplicateKeyError(err) {
		return false
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 && strings.Contains(e.Message, mongoOpenPerUserIndex) {
				return true
			}
		}
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return strings.Contains(ce.Message, mongoOpenPerUserIndex)
	}
	return false
}
