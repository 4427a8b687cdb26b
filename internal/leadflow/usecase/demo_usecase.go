package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"leadflow/internal/leadflow/config"
	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/domain/repository"
	"leadflow/internal/shared/errors"
	"leadflow/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// DemoSteps is the pipeline of the demo project.
var DemoSteps = []string{"Acquisition", "Setter", "Closer", "Vente"}

// demoStepWeights biases seeded leads toward the start of the pipeline.
var demoStepWeights = []int{5, 4, 3, 2}

var demoUsers = []struct {
	name  string
	email string
	role  model.Role
}{
	{"Alice Admin", "admin@leadflow.app", model.RoleAdmin},
	{"Sam Setter", "setter@leadflow.app", model.RoleSetter},
	{"Casey Closer", "closer@leadflow.app", model.RoleCloser},
	{"Vera Viewer", "viewer@leadflow.app", model.RoleViewer},
}

var (
	demoFirstNames = []string{"Leo", "Maya", "Noah", "Emma", "Liam", "Olivia", "Ava", "Ethan", "Sofia", "Lucas", "Mila"}
	demoSources    = []string{"Ads", "Referral", "Website", "Outbound", "Event"}
)

// DemoBootstrap is the payload of the demo bootstrap endpoint.
type DemoBootstrap struct {
	ProjectID string        `json:"project_id"`
	Steps     []string      `json:"steps"`
	Users     []*model.User `json:"users"`
	Leads     []*model.Lead `json:"leads"`
}

// DemoUsecase seeds and serves the demo project.
type DemoUsecase interface {
	// EnsureDemoProject returns the id of the demo project, creating and
	// seeding it on first use.
	EnsureDemoProject(ctx context.Context) (string, error)
	Bootstrap(ctx context.Context) (*DemoBootstrap, error)
}

type demoUsecase struct {
	repo   repository.LeadflowRepository
	cfg    config.DemoConfig
	logger logger.Logger

	// mu serializes seeding so two concurrent bootstraps create one project.
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewDemoUsecase creates the demo seeder. rnd may be nil.
func NewDemoUsecase(repo repository.LeadflowRepository, cfg config.DemoConfig, rnd *rand.Rand, log logger.Logger) DemoUsecase {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &demoUsecase{
		repo:   repo,
		cfg:    cfg,
		rnd:    rnd,
		logger: log.WithComponent("demo_usecase"),
	}
}

func (uc *demoUsecase) EnsureDemoProject(ctx context.Context) (string, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	existing, err := uc.repo.FindProjectByName(ctx, uc.cfg.ProjectName)
	if err == nil {
		return existing.ID.Hex(), nil
	}
	if !errors.IsNotFound(err) {
		return "", err
	}

	return uc.seed(ctx)
}

func (uc *demoUsecase) seed(ctx context.Context) (string, error) {
	now := uc.repo.Now()
	projectID, err := uc.repo.CreateDocument(ctx, model.CollectionProjects, model.NewProject(uc.cfg.ProjectName, DemoSteps, now))
	if err != nil {
		return "", err
	}

	userIDs, err := uc.createUsers(ctx, now)
	if err != nil {
		return "", err
	}

	// Setter and closer share the leads past the first step.
	assignable := userIDs[1:3]
	assigned := make(map[string][]string, len(assignable))

	for i := 0; i < uc.cfg.LeadCount; i++ {
		name := fmt.Sprintf("%s %d", demoFirstNames[uc.rnd.Intn(len(demoFirstNames))], 100+uc.rnd.Intn(900))
		stepIdx := uc.weightedStep()
		lead := model.NewLead(name, projectID, DemoSteps[stepIdx], now)
		lead.Source = demoSources[uc.rnd.Intn(len(demoSources))]
		lead.EnteredAt = &now
		lead.Status = model.LeadStatusActive
		if stepIdx >= 1 {
			assignee := assignable[uc.rnd.Intn(len(assignable))]
			lead.AssignedTo = &assignee
			assigned[assignee] = append(assigned[assignee], lead.ID.Hex())
		}
		if _, err := uc.repo.CreateDocument(ctx, model.CollectionLeads, lead); err != nil {
			return "", err
		}
	}

	for userID, leadIDs := range assigned {
		oid, _ := primitive.ObjectIDFromHex(userID)
		if _, err := uc.repo.UpdateUser(ctx, oid, repository.Update{
			Set: map[string]interface{}{"assigned_lead_ids": leadIDs},
		}); err != nil {
			return "", err
		}
	}

	projectOID, _ := primitive.ObjectIDFromHex(projectID)
	if _, err := uc.repo.UpdateProject(ctx, projectOID, repository.Update{
		Set: map[string]interface{}{"members": userIDs},
	}); err != nil {
		return "", err
	}

	uc.logger.WithFields(map[string]interface{}{
		"project_id": projectID,
		"users":      len(userIDs),
		"leads":      uc.cfg.LeadCount,
	}).Info("Demo project seeded")
	return projectID, nil
}

// createUsers inserts the demo team concurrently and returns their ids in
// declaration order.
func (uc *demoUsecase) createUsers(ctx context.Context, now time.Time) ([]string, error) {
	ids := make([]string, len(demoUsers))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range demoUsers {
		i, u := i, u
		g.Go(func() error {
			id, err := uc.repo.CreateDocument(gctx, model.CollectionUsers, model.NewUser(u.name, u.email, u.role, now))
			if err != nil {
				return err
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (uc *demoUsecase) weightedStep() int {
	total := 0
	for _, w := range demoStepWeights {
		total += w
	}
	n := uc.rnd.Intn(total)
	for i, w := range demoStepWeights {
		if n < w {
			return i
		}
		n -= w
	}
	return len(demoStepWeights) - 1
}

func (uc *demoUsecase) Bootstrap(ctx context.Context) (*DemoBootstrap, error) {
	projectID, err := uc.EnsureDemoProject(ctx)
	if err != nil {
		return nil, err
	}
	project, err := uc.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	users, err := uc.repo.ListUsersByIDs(ctx, project.Members)
	if err != nil {
		return nil, err
	}
	leads, err := uc.repo.ListLeads(ctx, repository.LeadQuery{ProjectID: projectID})
	if err != nil {
		return nil, err
	}

	return &DemoBootstrap{
		ProjectID: projectID,
		Steps:     project.Steps,
		Users:     users,
		Leads:     leads,
	}, nil
}
