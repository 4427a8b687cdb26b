package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CollectionProjects is the collection projects are stored in.
const CollectionProjects = "project"

// Project is a tenant with an ordered pipeline. Members are user id hex strings.
type Project struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name      string             `json:"name" bson:"name"`
	Steps     []string           `json:"steps" bson:"steps"`
	Members   []string           `json:"members" bson:"members"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// StepIndex returns the position of step in the pipeline, or -1.
func (p *Project) StepIndex(step string) int {
	for i, s := range p.Steps {
		if s == step {
			return i
		}
	}
	return -1
}

// HasStep reports whether step belongs to the pipeline.
func (p *Project) HasStep(step string) bool {
	return p.StepIndex(step) >= 0
}

// FirstStep returns the entry step, or "" for an empty pipeline.
func (p *Project) FirstStep() string {
	if len(p.Steps) == 0 {
		return ""
	}
	return p.Steps[0]
}

// LastStep returns the terminal step, or "" for an empty pipeline.
func (p *Project) LastStep() string {
	if len(p.Steps) == 0 {
		return ""
	}
	return p.Steps[len(p.Steps)-1]
}

// HasMember reports whether userID is already a member.
func (p *Project) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// ValidateSteps checks the pipeline is non-empty and has no duplicate step.
func ValidateSteps(steps []string) error {
	if len(steps) == 0 {
		return ErrEmptyPipeline
	}
	seen := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		if s == "" {
			return ErrEmptyStepName
		}
		if _, dup := seen[s]; dup {
			return ErrDuplicateStep
		}
		seen[s] = struct{}{}
	}
	return nil
}

// NewProject builds a project with an empty member list.
func NewProject(name string, steps []string, now time.Time) *Project {
	return &Project{
		Name:      name,
		Steps:     append([]string(nil), steps...),
		Members:   []string{},
		CreatedAt: now,
	}
}
