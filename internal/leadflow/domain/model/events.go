package model

import (
	"encoding/json"
	"time"
)

// EventType names a realtime message sent to project observers.
type EventType string

const (
	EventConnected     EventType = "connected"
	EventLeadCreated   EventType = "lead_created"
	EventLeadAdvanced  EventType = "lead_advanced"
	EventLeadAssigned  EventType = "lead_assigned"
	EventLeadNoteAdded EventType = "lead_note_added"
)

// PipelineEventTypes lists every event published on the bus for a project.
var PipelineEventTypes = []EventType{
	EventLeadCreated,
	EventLeadAdvanced,
	EventLeadAssigned,
	EventLeadNoteAdded,
}

// PipelineEvent is what handlers publish after a successful mutation. Message
// is the exact JSON payload observers receive.
type PipelineEvent struct {
	ProjectID  string      `json:"project_id"`
	Message    interface{} `json:"message"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// ConnectedMessage is the first frame sent to a new observer.
type ConnectedMessage struct {
	Type       EventType `json:"type"`
	ProjectID  string    `json:"project_id"`
	ObserverID string    `json:"observer_id"`
}

// LeadAdvancedMessage announces a step transition.
type LeadAdvancedMessage struct {
	Type   EventType `json:"type"`
	LeadID string    `json:"lead_id"`
	From   string    `json:"from"`
	To     string    `json:"to"`
}

// LeadCreatedMessage carries a freshly created lead.
type LeadCreatedMessage struct {
	Type EventType `json:"type"`
	Lead *Lead     `json:"lead"`
}

// LeadAssignedMessage announces a new assignee. AssignedTo is nil when the
// lead was unassigned.
type LeadAssignedMessage struct {
	Type       EventType `json:"type"`
	LeadID     string    `json:"lead_id"`
	AssignedTo *string   `json:"assigned_to"`
}

// LeadNoteAddedMessage carries the appended note.
type LeadNoteAddedMessage struct {
	Type   EventType `json:"type"`
	LeadID string    `json:"lead_id"`
	Note   Note      `json:"note"`
}

func NewLeadAdvancedEvent(projectID, leadID, from, to string, at time.Time) PipelineEvent {
	return PipelineEvent{
		ProjectID:  projectID,
		Message:    LeadAdvancedMessage{Type: EventLeadAdvanced, LeadID: leadID, From: from, To: to},
		OccurredAt: at,
	}
}

func NewLeadCreatedEvent(lead *Lead, at time.Time) PipelineEvent {
	return PipelineEvent{
		ProjectID:  lead.ProjectID,
		Message:    LeadCreatedMessage{Type: EventLeadCreated, Lead: lead},
		OccurredAt: at,
	}
}

func NewLeadAssignedEvent(projectID, leadID string, assignedTo *string, at time.Time) PipelineEvent {
	return PipelineEvent{
		ProjectID:  projectID,
		Message:    LeadAssignedMessage{Type: EventLeadAssigned, LeadID: leadID, AssignedTo: assignedTo},
		OccurredAt: at,
	}
}

func NewLeadNoteAddedEvent(projectID, leadID string, note Note, at time.Time) PipelineEvent {
	return PipelineEvent{
		ProjectID:  projectID,
		Message:    LeadNoteAddedMessage{Type: EventLeadNoteAdded, LeadID: leadID, Note: note},
		OccurredAt: at,
	}
}

// Type returns the message's event type.
func (e PipelineEvent) Type() EventType {
	switch m := e.Message.(type) {
	case LeadAdvancedMessage:
		return m.Type
	case LeadCreatedMessage:
		return m.Type
	case LeadAssignedMessage:
		return m.Type
	case LeadNoteAddedMessage:
		return m.Type
	}
	return ""
}

// JournalEntry is one recorded event as read back from the journal.
type JournalEntry struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	ProjectID  string          `json:"project_id"`
	Message    json.RawMessage `json:"message"`
	OccurredAt time.Time       `json:"occurred_at"`
}
