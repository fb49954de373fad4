package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/dto"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/service"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// TicketsHandler exposes the lifecycle engine to the interaction
// dispatch layer.
type TicketsHandler struct {
	service *service.TicketService
	metrics *observability.Metrics
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, metrics *observability.Metrics) *TicketsHandler {
	return &TicketsHandler{service: ticketService, metrics: metrics}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.OwnerID) == "" || req.Type == "" {
		return apperrors.NewValidationError("owner_id and type required", nil)
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), req.OwnerID, req.Type)
	if err := h.observe("create", err); err != nil {
		return err
	}
	return success(c, fiber.StatusCreated, dto.NewTicketResponse(ticket))
}

// Claim POST /tickets/channel/:channelId/claim.
func (h *TicketsHandler) Claim(c *fiber.Ctx) error {
	actorID, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Claim(c.UserContext(), c.Params("channelId"), actorID)
	if err := h.observe("claim", err); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.NewTicketResponse(ticket))
}

// Unclaim POST /tickets/channel/:channelId/unclaim.
func (h *TicketsHandler) Unclaim(c *fiber.Ctx) error {
	actorID, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Unclaim(c.UserContext(), c.Params("channelId"), actorID)
	if err := h.observe("unclaim", err); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.NewTicketResponse(ticket))
}

// RequestClose POST /tickets/channel/:channelId/close-request.
func (h *TicketsHandler) RequestClose(c *fiber.Ctx) error {
	var req dto.CloseRequest
	if err := c.BodyParser(&req); err != nil || req.ActorID == "" {
		return apperrors.NewValidationError("actor_id required", nil)
	}
	ticket, err := h.service.RequestClose(c.UserContext(), c.Params("channelId"), req.ActorID, req.Reason)
	if err := h.observe("close_request", err); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.NewTicketResponse(ticket))
}

// ResolveCloseRequest POST /tickets/channel/:channelId/close-request/resolve.
func (h *TicketsHandler) ResolveCloseRequest(c *fiber.Ctx) error {
	var req dto.ResolveCloseRequest
	if err := c.BodyParser(&req); err != nil || req.ActorID == "" || req.Accept == nil {
		return apperrors.NewValidationError("actor_id and accept required", nil)
	}
	result, err := h.service.ResolveCloseRequest(c.UserContext(), c.Params("channelId"), req.ActorID, *req.Accept)
	if err := h.observe("close_request_resolve", err); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.ResolveResponse{
		Accepted:       result.Accepted,
		Ticket:         dto.NewTicketResponse(result.Ticket),
		TranscriptPath: result.TranscriptPath,
	})
}

// Close POST /tickets/channel/:channelId/close.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	var req dto.CloseRequest
	if err := c.BodyParser(&req); err != nil || req.ActorID == "" {
		return apperrors.NewValidationError("actor_id required", nil)
	}
	result, err := h.service.Close(c.UserContext(), c.Params("channelId"), req.ActorID, req.Reason)
	if err := h.observe("close", err); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.CloseResponse{
		Ticket:         dto.NewTicketResponse(result.Ticket),
		TranscriptPath: result.TranscriptPath,
	})
}

// SwitchType POST /tickets/channel/:channelId/switch.
func (h *TicketsHandler) SwitchType(c *fiber.Ctx) error {
	var req dto.SwitchTypeRequest
	if err := c.BodyParser(&req); err != nil || req.ActorID == "" || req.Type == "" {
		return apperrors.NewValidationError("actor_id and type required", nil)
	}
	ticket, err := h.service.SwitchType(c.UserContext(), c.Params("channelId"), req.ActorID, req.Type)
	if err := h.observe("switch_type", err); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.NewTicketResponse(ticket))
}

// Reopen POST /tickets/number/:number/reopen.
func (h *TicketsHandler) Reopen(c *fiber.Ctx) error {
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	actorID, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.Reopen(c.UserContext(), number, actorID)
	if err := h.observe("reopen", err); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.NewTicketResponse(ticket))
}

// Rate POST /tickets/number/:number/rating.
func (h *TicketsHandler) Rate(c *fiber.Ctx) error {
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	var req dto.RatingRequest
	if err := c.BodyParser(&req); err != nil || req.ActorID == "" {
		return apperrors.NewValidationError("actor_id and score required", nil)
	}
	ticket, err := h.service.Rate(c.UserContext(), number, req.ActorID, req.Score)
	if err := h.observe("rate", err); err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.NewTicketResponse(ticket))
}

// GetByChannel GET /tickets/channel/:channelId.
func (h *TicketsHandler) GetByChannel(c *fiber.Ctx) error {
	ticket, err := h.service.GetByChannel(c.UserContext(), c.Params("channelId"))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.NewTicketResponse(ticket))
}

// GetByNumber GET /tickets/number/:number.
func (h *TicketsHandler) GetByNumber(c *fiber.Ctx) error {
	number, err := numberParam(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetByNumber(c.UserContext(), number)
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.NewTicketResponse(ticket))
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	entries, err := h.service.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, dto.NewHistoryResponse(entries))
}

// Stats GET /tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return success(c, fiber.StatusOK, stats)
}

func (h *TicketsHandler) observe(operation string, err error) error {
	h.metrics.RecordOutcome(operation, string(apperrors.OutcomeOf(err)))
	return err
}

func success(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"data":    data,
		"outcome": apperrors.OutcomeSuccess,
	})
}

func actorFrom(c *fiber.Ctx) (string, error) {
	var req dto.ActorRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.ActorID) == "" {
		return "", apperrors.NewValidationError("actor_id required", nil)
	}
	return req.ActorID, nil
}

func numberParam(c *fiber.Ctx) (int64, error) {
	number, err := strconv.ParseInt(c.Params("number"), 10, 64)
	if err != nil || number <= 0 {
		return 0, apperrors.NewValidationError("ticket number must be a positive integer", map[string]any{"field": "number"})
	}
	return number, nil
}
