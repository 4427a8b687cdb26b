package usecase

import (
	"context"

	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/domain/repository"
	"leadflow/internal/shared/errors"
	"leadflow/internal/shared/logger"
)

// DefaultEventLimit is how many journal entries RecentEvents returns when no
// limit is given.
const DefaultEventLimit = 50

// ProjectUsecase reads projects and manages their members.
type ProjectUsecase interface {
	ListProjects(ctx context.Context) ([]*model.Project, error)
	GetProject(ctx context.Context, projectID string) (*model.Project, error)
	ListMembers(ctx context.Context, projectID string) ([]*model.User, error)
	// AddMember adds userID to the project. Adding an existing member is a no-op.
	AddMember(ctx context.Context, projectID, userID string) (*model.Project, error)
	// RecentEvents returns the newest journaled events of the project. It is
	// empty when no journal is configured.
	RecentEvents(ctx context.Context, projectID string, limit int64) ([]model.JournalEntry, error)
}

type projectUsecase struct {
	repo    repository.LeadflowRepository
	journal repository.EventJournal
	logger  logger.Logger
}

// NewProjectUsecase creates a project use case. journal may be nil.
func NewProjectUsecase(repo repository.LeadflowRepository, journal repository.EventJournal, log logger.Logger) ProjectUsecase {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &projectUsecase{
		repo:    repo,
		journal: journal,
		logger:  log.WithComponent("project_usecase"),
	}
}

func (uc *projectUsecase) ListProjects(ctx context.Context) ([]*model.Project, error) {
	return uc.repo.ListProjects(ctx)
}

func (uc *projectUsecase) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	return uc.repo.GetProject(ctx, projectID)
}

func (uc *projectUsecase) ListMembers(ctx context.Context, projectID string) ([]*model.User, error) {
	project, err := uc.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return uc.repo.ListUsersByIDs(ctx, project.Members)
}

func (uc *projectUsecase) AddMember(ctx context.Context, projectID, userID string) (*model.Project, error) {
	project, err := uc.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	user, err := uc.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	member := user.ID.Hex()
	if project.HasMember(member) {
		return project, nil
	}

	if _, err := uc.repo.UpdateProject(ctx, project.ID, repository.Update{
		Set:  map[string]interface{}{"updated_at": uc.repo.Now()},
		Push: map[string]interface{}{"members": member},
	}); err != nil {
		return nil, err
	}

	uc.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"project_id": projectID,
		"user_id":    member,
	}).Info("Member added to project")

	return uc.repo.GetProject(ctx, projectID)
}

func (uc *projectUsecase) RecentEvents(ctx context.Context, projectID string, limit int64) ([]model.JournalEntry, error) {
	if _, err := uc.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if uc.journal == nil {
		return []model.JournalEntry{}, nil
	}
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	entries, err := uc.journal.Recent(ctx, projectID, limit)
	if err != nil {
		return nil, errors.NewInfrastructureError("Failed to read event journal").WithCause(err)
	}
	return entries, nil
}
