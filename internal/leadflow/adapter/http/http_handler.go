package http

import (
	"context"
	stdErrors "errors"

	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/usecase"
	"leadflow/internal/shared/errors"
	"leadflow/internal/shared/eventbus"
	"leadflow/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

// eventSource tags events published by this adapter.
const eventSource = "http"

// HTTPHandler serves the leadflow REST API.
type HTTPHandler struct {
	LeadUC    usecase.LeadUsecase
	ProjectUC usecase.ProjectUsecase
	DemoUC    usecase.DemoUsecase
	StatusUC  usecase.StatusUsecase
	Events    eventbus.Publisher
	Log       logger.Logger
}

// NewHTTPHandler creates a new HTTPHandler. events may be nil, in which case
// nothing is broadcast.
func NewHTTPHandler(
	leadUC usecase.LeadUsecase,
	projectUC usecase.ProjectUsecase,
	demoUC usecase.DemoUsecase,
	statusUC usecase.StatusUsecase,
	events eventbus.Publisher,
	log logger.Logger,
) *HTTPHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &HTTPHandler{
		LeadUC:    leadUC,
		ProjectUC: projectUC,
		DemoUC:    demoUC,
		StatusUC:  statusUC,
		Events:    events,
		Log:       log.WithComponent("http"),
	}
}

// RegisterRoutes registers every REST endpoint on router.
func (h *HTTPHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/", h.Root)
	router.Get("/test", h.DatabaseStatus)

	api := router.Group("/api")
	api.Get("/demo/bootstrap", h.DemoBootstrap)

	h.registerProjectRoutes(api.Group("/projects"))
	h.registerLeadRoutes(api.Group("/leads"))
}

func (h *HTTPHandler) registerProjectRoutes(router fiber.Router) {
	router.Get("/", h.ListProjects)
	router.Get("/:projectId", h.GetProject)
	router.Get("/:projectId/members", h.ListMembers)
	router.Post("/:projectId/members", h.AddMember)
	router.Get("/:projectId/events", h.RecentEvents)
	router.Post("/:projectId/advance-random", h.AdvanceRandom)
}

func (h *HTTPHandler) registerLeadRoutes(router fiber.Router) {
	router.Get("/", h.ListLeads)
	router.Post("/", h.CreateLead)
	router.Get("/:leadId", h.GetLead)
	router.Post("/:leadId/advance", h.AdvanceLead)
	router.Post("/:leadId/assign", h.AssignLead)
	router.Post("/:leadId/notes", h.AddNote)
}

func (h *HTTPHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"message": "Leadflow Backend Running"})
}

func (h *HTTPHandler) DatabaseStatus(c *fiber.Ctx) error {
	return c.JSON(h.StatusUC.DatabaseStatus(c.UserContext()))
}

func (h *HTTPHandler) DemoBootstrap(c *fiber.Ctx) error {
	boot, err := h.DemoUC.Bootstrap(c.UserContext())
	if err != nil {
		return h.respondError(c, err, "Failed to bootstrap demo project")
	}
	return c.JSON(boot)
}

// respondError writes err as {"error": code, "message": text} with the status
// carried by the AppError, or 500.
func (h *HTTPHandler) respondError(c *fiber.Ctx, err error, logMsg string) error {
	status := errors.HTTPStatus(err)
	code := "internal_error"
	message := err.Error()

	var appErr *errors.AppError
	if stdErrors.As(err, &appErr) {
		if appErr.Code != "" {
			code = appErr.Code
		}
		message = appErr.Message
	}

	log := h.Log.WithContext(c.UserContext()).WithFields(map[string]interface{}{
		"status": status,
		"path":   c.Path(),
	})
	if status >= fiber.StatusInternalServerError {
		log.Errorf("%s: %v", logMsg, err)
	} else {
		log.Debugf("%s: %v", logMsg, err)
	}

	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

func badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

// publish hands a pipeline event to the bus. Subscriber failures are logged;
// the mutation has already been committed.
func (h *HTTPHandler) publish(ctx context.Context, event model.PipelineEvent) {
	if h.Events == nil {
		return
	}
	busEvent := eventbus.NewBasicEventWithSource(string(event.Type()), event, eventSource)
	if err := h.Events.Publish(ctx, busEvent); err != nil {
		h.Log.WithContext(ctx).WithFields(map[string]interface{}{
			"project_id": event.ProjectID,
			"event":      event.Type(),
		}).Warnf("Event subscribers failed: %v", err)
	}
}
