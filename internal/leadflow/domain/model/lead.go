package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CollectionLeads is the collection leads are stored in.
const CollectionLeads = "lead"

// LeadStatus is the commercial state of a lead.
type LeadStatus string

const (
	LeadStatusNew    LeadStatus = "new"
	LeadStatusActive LeadStatus = "active"
	LeadStatusWon    LeadStatus = "won"
	LeadStatusLost   LeadStatus = "lost"
	LeadStatusPaused LeadStatus = "paused"
)

// IsValid reports whether s is one of the known statuses.
func (s LeadStatus) IsValid() bool {
	switch s {
	case LeadStatusNew, LeadStatusActive, LeadStatusWon, LeadStatusLost, LeadStatusPaused:
		return true
	}
	return false
}

// ActionType classifies a history entry.
type ActionType string

const (
	ActionCreated  ActionType = "created"
	ActionCalled   ActionType = "called"
	ActionMeeting  ActionType = "meeting"
	ActionAdvanced ActionType = "advanced"
	ActionWon      ActionType = "won"
	ActionLost     ActionType = "lost"
	ActionComment  ActionType = "comment"
)

// Lead is a prospect moving through a project's pipeline.
//
// ProjectID and AssignedTo are id hex strings, not ObjectIDs, so they filter
// with plain string equality.
type Lead struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name         string             `json:"name" bson:"name"`
	Source       string             `json:"source,omitempty" bson:"source,omitempty"`
	EnteredAt    *time.Time         `json:"entered_at,omitempty" bson:"entered_at,omitempty"`
	ProjectID    string             `json:"project_id" bson:"project_id"`
	CurrentStep  string             `json:"current_step" bson:"current_step"`
	AssignedTo   *string            `json:"assigned_to" bson:"assigned_to"`
	Status       LeadStatus         `json:"status" bson:"status"`
	Notes        []Note             `json:"notes" bson:"notes"`
	Appointments []bson.M           `json:"appointments" bson:"appointments"`
	History      []Action           `json:"history" bson:"history"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// Assignee returns the assigned user id, or "".
func (l *Lead) Assignee() string {
	if l.AssignedTo == nil {
		return ""
	}
	return *l.AssignedTo
}

// Note is a free-text comment on a lead. Notes are never edited.
type Note struct {
	AuthorID  string    `json:"author_id" bson:"author_id"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Action is one entry of a lead's append-only history.
type Action struct {
	ProjectID string     `json:"project_id" bson:"project_id"`
	LeadID    string     `json:"lead_id" bson:"lead_id"`
	Type      ActionType `json:"type" bson:"type"`
	FromStep  string     `json:"from_step,omitempty" bson:"from_step,omitempty"`
	ToStep    string     `json:"to_step,omitempty" bson:"to_step,omitempty"`
	Meta      bson.M     `json:"meta,omitempty" bson:"meta,omitempty"`
	CreatedAt time.Time  `json:"created_at" bson:"created_at"`
}

// NewLead builds a lead on step of projectID. The lead is given its id up
// front so its creation action can reference it.
func NewLead(name, projectID, step string, now time.Time) *Lead {
	id := primitive.NewObjectID()
	return &Lead{
		ID:           id,
		Name:         name,
		ProjectID:    projectID,
		CurrentStep:  step,
		Status:       LeadStatusNew,
		Notes:        []Note{},
		Appointments: []bson.M{},
		History: []Action{{
			ProjectID: projectID,
			LeadID:    id.Hex(),
			Type:      ActionCreated,
			ToStep:    step,
			CreatedAt: now,
		}},
		CreatedAt: now,
	}
}
