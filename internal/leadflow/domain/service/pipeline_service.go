package service

import (
	"time"

	"leadflow/internal/leadflow/domain/model"
)

// PipelineService computes lead transitions. It never touches storage.
type PipelineService interface {
	// Advance computes the transition of lead within project. A requestedStep
	// that belongs to the pipeline is jumped to directly; anything else moves
	// the lead one step forward.
	Advance(lead *model.Lead, project *model.Project, requestedStep string, now time.Time) Transition
}

// Transition is the outcome of one advancement, ready to be persisted.
type Transition struct {
	From      string
	To        string
	Status    model.LeadStatus
	Action    model.Action
	UpdatedAt time.Time
}

// Changed reports whether the lead moves to a different step.
func (t Transition) Changed() bool {
	return t.From != t.To
}

type pipelineService struct{}

// NewPipelineService creates a new pipeline service
func NewPipelineService() PipelineService {
	return &pipelineService{}
}

func (s *pipelineService) Advance(lead *model.Lead, project *model.Project, requestedStep string, now time.Time) Transition {
	from := lead.CurrentStep
	to := nextStep(project.Steps, from, requestedStep)

	status := lead.Status
	if len(project.Steps) > 0 && to == project.LastStep() {
		status = model.LeadStatusWon
	}

	return Transition{
		From:   from,
		To:     to,
		Status: status,
		Action: model.Action{
			ProjectID: project.ID.Hex(),
			LeadID:    lead.ID.Hex(),
			Type:      model.ActionAdvanced,
			FromStep:  from,
			ToStep:    to,
			CreatedAt: now,
		},
		UpdatedAt: now,
	}
}

// nextStep picks the destination step. An unknown current step re-enters the
// pipeline at its first step and the last step is absorbing.
func nextStep(steps []string, current, requested string) string {
	if len(steps) == 0 {
		return current
	}

	currentIdx := -1
	for i, step := range steps {
		if requested != "" && step == requested {
			return requested
		}
		if step == current && currentIdx < 0 {
			currentIdx = i
		}
	}

	if currentIdx < 0 {
		return steps[0]
	}
	if currentIdx+1 >= len(steps) {
		return steps[len(steps)-1]
	}
	return steps[currentIdx+1]
}
