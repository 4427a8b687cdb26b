package usecase

import (
	"context"
	"math/rand"
	"strings"

	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/domain/repository"
	"leadflow/internal/leadflow/domain/service"
	"leadflow/internal/shared/contextkeys"
	"leadflow/internal/shared/errors"
	"leadflow/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("leadflow/usecase")

// LeadUsecase covers every mutation of a lead. It does not broadcast; callers
// publish the returned results.
type LeadUsecase interface {
	CreateLead(ctx context.Context, req CreateLeadRequest) (*model.Lead, error)
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	ListLeads(ctx context.Context, q repository.LeadQuery) ([]*model.Lead, error)

	// Advance moves the lead to toStep when it belongs to the project's
	// pipeline, or one step forward otherwise.
	Advance(ctx context.Context, leadID, toStep string) (*AdvanceResult, error)
	// AdvanceRandom advances one lead of the project picked at random.
	AdvanceRandom(ctx context.Context, projectID string) (*AdvanceResult, error)

	// AssignLead sets the lead's assignee; an empty userID unassigns it.
	AssignLead(ctx context.Context, leadID, userID string) (*model.Lead, error)
	AddNote(ctx context.Context, leadID string, req AddNoteRequest) (*NoteResult, error)
}

// CreateLeadRequest is the lead intake payload. CurrentStep defaults to the
// project's first step.
type CreateLeadRequest struct {
	Name        string `json:"name"`
	ProjectID   string `json:"project_id"`
	Source      string `json:"source,omitempty"`
	CurrentStep string `json:"current_step,omitempty"`
	AssignedTo  string `json:"assigned_to,omitempty"`
}

// AddNoteRequest is the payload of a note.
type AddNoteRequest struct {
	AuthorID string `json:"author_id"`
	Content  string `json:"content"`
}

// AdvanceResult is the re-read lead plus the step transition that was applied.
type AdvanceResult struct {
	Lead      *model.Lead
	ProjectID string
	From      string
	To        string
}

// NoteResult is the re-read lead plus the note that was appended.
type NoteResult struct {
	Lead *model.Lead
	Note model.Note
}

type leadUsecase struct {
	repo     repository.LeadflowRepository
	pipeline service.PipelineService
	intn     func(n int) int
	logger   logger.Logger
}

// NewLeadUsecase creates a lead use case. intn picks the lead for
// AdvanceRandom; nil means math/rand.
func NewLeadUsecase(repo repository.LeadflowRepository, pipeline service.PipelineService, intn func(n int) int, log logger.Logger) LeadUsecase {
	if pipeline == nil {
		pipeline = service.NewPipelineService()
	}
	if intn == nil {
		intn = rand.Intn
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &leadUsecase{
		repo:     repo,
		pipeline: pipeline,
		intn:     intn,
		logger:   log.WithComponent("lead_usecase"),
	}
}

func (uc *leadUsecase) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	return uc.repo.GetLead(ctx, leadID)
}

func (uc *leadUsecase) ListLeads(ctx context.Context, q repository.LeadQuery) ([]*model.Lead, error) {
	return uc.repo.ListLeads(ctx, q)
}

func (uc *leadUsecase) CreateLead(ctx context.Context, req CreateLeadRequest) (lead *model.Lead, err error) {
	ctx, span := tracer.Start(ctx, "LeadUsecase.CreateLead",
		trace.WithAttributes(attribute.String("project.id", req.ProjectID)))
	defer func() { endSpan(span, err) }()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.NewValidationError("Lead name is required")
	}

	project, err := uc.repo.GetProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if len(project.Steps) == 0 {
		return nil, errors.NewValidationError("Project has no pipeline steps")
	}

	step := req.CurrentStep
	if step == "" {
		step = project.FirstStep()
	}
	if !project.HasStep(step) {
		return nil, errors.NewValidationError("Unknown pipeline step").WithDetail("step", step)
	}

	var assignee *model.User
	if req.AssignedTo != "" {
		if assignee, err = uc.repo.GetUser(ctx, req.AssignedTo); err != nil {
			return nil, err
		}
	}

	now := uc.repo.Now()
	lead = model.NewLead(name, project.ID.Hex(), step, now)
	lead.Source = req.Source
	lead.EnteredAt = &now
	if assignee != nil {
		assigneeID := assignee.ID.Hex()
		lead.AssignedTo = &assigneeID
	}

	leadID, err := uc.repo.CreateDocument(ctx, model.CollectionLeads, lead)
	if err != nil {
		return nil, err
	}
	// The lead is stored at this point; a stale assignee list must not hide it.
	if assignee != nil {
		if _, err := uc.repo.UpdateUser(ctx, assignee.ID, repository.Update{
			Push: map[string]interface{}{"assigned_lead_ids": leadID},
		}); err != nil {
			uc.logger.WithContext(ctx).Warnf("Assignee %s not updated for lead %s: %v", assignee.ID.Hex(), leadID, err)
		}
	}

	uc.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"lead_id":    leadID,
		"project_id": lead.ProjectID,
		"step":       step,
	}).Info("Lead created")

	return uc.repo.GetLead(ctx, leadID)
}

func (uc *leadUsecase) Advance(ctx context.Context, leadID, toStep string) (result *AdvanceResult, err error) {
	ctx = contextkeys.With(ctx, contextkeys.LeadIDKey, leadID)
	ctx, span := tracer.Start(ctx, "LeadUsecase.Advance",
		trace.WithAttributes(attribute.String("lead.id", leadID), attribute.String("lead.requested_step", toStep)))
	defer func() { endSpan(span, err) }()

	lead, err := uc.repo.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	project, err := uc.projectOf(ctx, lead)
	if err != nil {
		return nil, err
	}

	tr := uc.pipeline.Advance(lead, project, toStep, uc.repo.Now())
	matched, err := uc.repo.UpdateLead(ctx, lead.ID, repository.Update{
		Set: map[string]interface{}{
			"current_step": tr.To,
			"status":       string(tr.Status),
			"updated_at":   tr.UpdatedAt,
		},
		Push: map[string]interface{}{"history": tr.Action},
	})
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, errors.NewNotFoundError("Lead").WithCause(errors.ErrLeadNotFound)
	}

	updated, err := uc.repo.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("lead.from", tr.From), attribute.String("lead.to", tr.To))
	uc.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"project_id": project.ID.Hex(),
		"from":       tr.From,
		"to":         tr.To,
		"status":     tr.Status,
	}).Info("Lead advanced")

	return &AdvanceResult{
		Lead:      updated,
		ProjectID: project.ID.Hex(),
		From:      tr.From,
		To:        tr.To,
	}, nil
}

func (uc *leadUsecase) AdvanceRandom(ctx context.Context, projectID string) (*AdvanceResult, error) {
	leads, err := uc.repo.ListLeads(ctx, repository.LeadQuery{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, errors.NewNotFoundError("Lead").
			WithMessage("No leads in project").
			WithDetail("project_id", projectID)
	}
	lead := leads[uc.intn(len(leads))]
	return uc.Advance(ctx, lead.ID.Hex(), "")
}

func (uc *leadUsecase) AssignLead(ctx context.Context, leadID, userID string) (updated *model.Lead, err error) {
	ctx, span := tracer.Start(ctx, "LeadUsecase.AssignLead",
		trace.WithAttributes(attribute.String("lead.id", leadID), attribute.String("user.id", userID)))
	defer func() { endSpan(span, err) }()

	lead, err := uc.repo.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}

	var user *model.User
	var assignedTo interface{}
	next := ""
	if userID != "" {
		if user, err = uc.repo.GetUser(ctx, userID); err != nil {
			return nil, err
		}
		next = user.ID.Hex()
		assignedTo = next
	}

	previous := lead.Assignee()
	if _, err := uc.repo.UpdateLead(ctx, lead.ID, repository.Update{
		Set: map[string]interface{}{
			"assigned_to": assignedTo,
			"updated_at":  uc.repo.Now(),
		},
	}); err != nil {
		return nil, err
	}

	hex := lead.ID.Hex()
	if previous != "" && previous != next {
		uc.releaseLead(ctx, previous, hex)
	}
	if user != nil && !contains(user.AssignedLeadIDs, hex) {
		if _, err := uc.repo.UpdateUser(ctx, user.ID, repository.Update{
			Push: map[string]interface{}{"assigned_lead_ids": hex},
		}); err != nil {
			return nil, err
		}
	}

	uc.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"lead_id":  hex,
		"from":     previous,
		"assignee": next,
	}).Info("Lead assigned")

	return uc.repo.GetLead(ctx, leadID)
}

// releaseLead removes leadID from the previous assignee's list. The user may
// no longer exist; that is not an error for the assignment.
func (uc *leadUsecase) releaseLead(ctx context.Context, userID, leadID string) {
	user, err := uc.repo.GetUser(ctx, userID)
	if err != nil {
		uc.logger.WithContext(ctx).Warnf("Previous assignee %s not updated: %v", userID, err)
		return
	}
	kept := make([]string, 0, len(user.AssignedLeadIDs))
	for _, id := range user.AssignedLeadIDs {
		if id != leadID {
			kept = append(kept, id)
		}
	}
	if _, err := uc.repo.UpdateUser(ctx, user.ID, repository.Update{
		Set: map[string]interface{}{"assigned_lead_ids": kept},
	}); err != nil {
		uc.logger.WithContext(ctx).Warnf("Previous assignee %s not updated: %v", userID, err)
	}
}

func (uc *leadUsecase) AddNote(ctx context.Context, leadID string, req AddNoteRequest) (result *NoteResult, err error) {
	ctx, span := tracer.Start(ctx, "LeadUsecase.AddNote",
		trace.WithAttributes(attribute.String("lead.id", leadID)))
	defer func() { endSpan(span, err) }()

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, errors.NewValidationError("Note content is required")
	}

	lead, err := uc.repo.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	author, err := uc.repo.GetUser(ctx, req.AuthorID)
	if err != nil {
		return nil, err
	}

	now := uc.repo.Now()
	note := model.Note{
		AuthorID:  author.ID.Hex(),
		Content:   content,
		CreatedAt: now,
	}
	action := model.Action{
		ProjectID: lead.ProjectID,
		LeadID:    lead.ID.Hex(),
		Type:      model.ActionComment,
		Meta:      bson.M{"author_id": note.AuthorID},
		CreatedAt: now,
	}

	if _, err := uc.repo.UpdateLead(ctx, lead.ID, repository.Update{
		Set:  map[string]interface{}{"updated_at": now},
		Push: map[string]interface{}{"notes": note, "history": action},
	}); err != nil {
		return nil, err
	}

	updated, err := uc.repo.GetLead(ctx, leadID)
	if err != nil {
		return nil, err
	}
	return &NoteResult{Lead: updated, Note: note}, nil
}

// projectOf resolves the lead's project. A lead whose project does not
// resolve cannot be advanced.
func (uc *leadUsecase) projectOf(ctx context.Context, lead *model.Lead) (*model.Project, error) {
	if lead.ProjectID == "" {
		return nil, errors.NewInvalidReferenceError("Project not found for lead").
			WithDetail("lead_id", lead.ID.Hex())
	}
	project, err := uc.repo.GetProject(ctx, lead.ProjectID)
	if err != nil {
		if errors.IsNotFound(err) || errors.IsValidation(err) {
			return nil, errors.NewInvalidReferenceError("Project not found for lead").
				WithDetail("lead_id", lead.ID.Hex()).
				WithDetail("project_id", lead.ProjectID)
		}
		return nil, err
	}
	return project, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
