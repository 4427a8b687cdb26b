package http

import (
	"strconv"

	"leadflow/internal/shared/contextkeys"

	"github.com/gofiber/fiber/v2"
)

// AddMemberRequest is the body of the add-member endpoint.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
}

func (h *HTTPHandler) ListProjects(c *fiber.Ctx) error {
	projects, err := h.ProjectUC.ListProjects(c.UserContext())
	if err != nil {
		return h.respondError(c, err, "Failed to list projects")
	}
	return c.JSON(projects)
}

func (h *HTTPHandler) GetProject(c *fiber.Ctx) error {
	project, err := h.ProjectUC.GetProject(c.UserContext(), c.Params("projectId"))
	if err != nil {
		return h.respondError(c, err, "Failed to get project")
	}
	return c.JSON(project)
}

func (h *HTTPHandler) ListMembers(c *fiber.Ctx) error {
	users, err := h.ProjectUC.ListMembers(c.UserContext(), c.Params("projectId"))
	if err != nil {
		return h.respondError(c, err, "Failed to list members")
	}
	return c.JSON(users)
}

func (h *HTTPHandler) AddMember(c *fiber.Ctx) error {
	var req AddMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_request_body", "Failed to parse request body")
	}
	if req.UserID == "" {
		return badRequest(c, "missing_user_id", "user_id is required")
	}

	projectID := c.Params("projectId")
	ctx := contextkeys.With(c.UserContext(), contextkeys.ProjectIDKey, projectID)
	project, err := h.ProjectUC.AddMember(ctx, projectID, req.UserID)
	if err != nil {
		return h.respondError(c, err, "Failed to add member")
	}
	return c.JSON(project)
}

func (h *HTTPHandler) RecentEvents(c *fiber.Ctx) error {
	var limit int64
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return badRequest(c, "invalid_limit", "limit must be a non-negative integer")
		}
		limit = n
	}

	entries, err := h.ProjectUC.RecentEvents(c.UserContext(), c.Params("projectId"), limit)
	if err != nil {
		return h.respondError(c, err, "Failed to read project events")
	}
	return c.JSON(entries)
}
