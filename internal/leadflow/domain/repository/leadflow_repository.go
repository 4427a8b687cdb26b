package repository

import (
	"context"
	"time"

	"leadflow/internal/leadflow/domain/model"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LeadQuery holds the optional exact-match filters for listing leads.
// Zero fields are not filtered on; a Limit of 0 means no limit.
type LeadQuery struct {
	ProjectID  string
	AssignedTo string
	Status     model.LeadStatus
	Limit      int
}

// LeadflowRepository is the typed view of the document store used by the
// use cases. Lookups by id take the id hex and fail with a validation error
// when it is malformed.
type LeadflowRepository interface {
	Now() time.Time

	CreateDocument(ctx context.Context, collection string, record interface{}) (string, error)
	GetDocuments(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error)

	GetProject(ctx context.Context, id string) (*model.Project, error)
	FindProjectByName(ctx context.Context, name string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]*model.Project, error)
	UpdateProject(ctx context.Context, id primitive.ObjectID, update Update) (bool, error)

	GetLead(ctx context.Context, id string) (*model.Lead, error)
	ListLeads(ctx context.Context, q LeadQuery) ([]*model.Lead, error)
	UpdateLead(ctx context.Context, id primitive.ObjectID, update Update) (bool, error)

	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]*model.User, error)
	UpdateUser(ctx context.Context, id primitive.ObjectID, update Update) (bool, error)
}
