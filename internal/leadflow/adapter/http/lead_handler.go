package http

import (
	"strconv"

	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/domain/repository"
	"leadflow/internal/leadflow/usecase"
	"leadflow/internal/shared/contextkeys"

	"github.com/gofiber/fiber/v2"
)

// AdvanceLeadRequest is the optional body of the advance endpoint.
type AdvanceLeadRequest struct {
	ToStep string `json:"to_step"`
}

// AssignLeadRequest is the body of the assign endpoint. An empty UserID
// unassigns the lead.
type AssignLeadRequest struct {
	UserID string `json:"user_id"`
}

func (h *HTTPHandler) ListLeads(c *fiber.Ctx) error {
	q := repository.LeadQuery{
		ProjectID:  c.Query("project_id"),
		AssignedTo: c.Query("assigned_to"),
		Status:     model.LeadStatus(c.Query("status")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return badRequest(c, "invalid_limit", "limit must be a non-negative integer")
		}
		q.Limit = limit
	}

	leads, err := h.LeadUC.ListLeads(c.UserContext(), q)
	if err != nil {
		return h.respondError(c, err, "Failed to list leads")
	}
	return c.JSON(leads)
}

func (h *HTTPHandler) CreateLead(c *fiber.Ctx) error {
	var req usecase.CreateLeadRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request_body", "Failed to parse request body")
	}

	ctx := contextkeys.With(c.UserContext(), contextkeys.ProjectIDKey, req.ProjectID)
	lead, err := h.LeadUC.CreateLead(ctx, req)
	if err != nil {
		return h.respondError(c, err, "Failed to create lead")
	}

	h.publish(ctx, model.NewLeadCreatedEvent(lead, lead.CreatedAt))
	return c.Status(fiber.StatusCreated).JSON(lead)
}

func (h *HTTPHandler) GetLead(c *fiber.Ctx) error {
	lead, err := h.LeadUC.GetLead(c.UserContext(), c.Params("leadId"))
	if err != nil {
		return h.respondError(c, err, "Failed to get lead")
	}
	return c.JSON(lead)
}

func (h *HTTPHandler) AdvanceLead(c *fiber.Ctx) error {
	var req AdvanceLeadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid_request_body", "Failed to parse request body")
		}
	}

	result, err := h.LeadUC.Advance(c.UserContext(), c.Params("leadId"), req.ToStep)
	if err != nil {
		return h.respondError(c, err, "Failed to advance lead")
	}

	h.publishAdvance(c, result)
	return c.JSON(result.Lead)
}

func (h *HTTPHandler) AdvanceRandom(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	ctx := contextkeys.With(c.UserContext(), contextkeys.ProjectIDKey, projectID)

	result, err := h.LeadUC.AdvanceRandom(ctx, projectID)
	if err != nil {
		return h.respondError(c, err, "Failed to advance random lead")
	}

	h.publishAdvance(c, result)
	return c.JSON(fiber.Map{
		"lead_id": result.Lead.ID.Hex(),
		"from":    result.From,
		"to":      result.To,
		"lead":    result.Lead,
	})
}

func (h *HTTPHandler) publishAdvance(c *fiber.Ctx, result *usecase.AdvanceResult) {
	ctx := contextkeys.With(c.UserContext(), contextkeys.ProjectIDKey, result.ProjectID)
	h.publish(ctx, model.NewLeadAdvancedEvent(
		result.ProjectID, result.Lead.ID.Hex(), result.From, result.To, result.Lead.UpdatedAt))
}

func (h *HTTPHandler) AssignLead(c *fiber.Ctx) error {
	var req AssignLeadRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid_request_body", "Failed to parse request body")
		}
	}

	lead, err := h.LeadUC.AssignLead(c.UserContext(), c.Params("leadId"), req.UserID)
	if err != nil {
		return h.respondError(c, err, "Failed to assign lead")
	}

	ctx := contextkeys.With(c.UserContext(), contextkeys.ProjectIDKey, lead.ProjectID)
	h.publish(ctx, model.NewLeadAssignedEvent(lead.ProjectID, lead.ID.Hex(), lead.AssignedTo, lead.UpdatedAt))
	return c.JSON(lead)
}

func (h *HTTPHandler) AddNote(c *fiber.Ctx) error {
	var req usecase.AddNoteRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request_body", "Failed to parse request body")
	}

	result, err := h.LeadUC.AddNote(c.UserContext(), c.Params("leadId"), req)
	if err != nil {
		return h.respondError(c, err, "Failed to add note")
	}

	lead := result.Lead
	ctx := contextkeys.With(c.UserContext(), contextkeys.ProjectIDKey, lead.ProjectID)
	h.publish(ctx, model.NewLeadNoteAddedEvent(lead.ProjectID, lead.ID.Hex(), result.Note, result.Note.CreatedAt))
	return c.Status(fiber.StatusCreated).JSON(result.Note)
}
