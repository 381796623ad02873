package domain

import "time"

// EventType names one kind of domain event. The set is closed; it grows by
// adding names, existing names are never repurposed.
type EventType string

const (
	// Record lifecycle events, one triple per tracked kind.
	EventIssueCreated    EventType = "issue.created"
	EventIssueUpdated    EventType = "issue.updated"
	EventIssueDeleted    EventType = "issue.deleted"
	EventPatternCreated  EventType = "pattern.created"
	EventPatternUpdated  EventType = "pattern.updated"
	EventPatternDeleted  EventType = "pattern.deleted"
	EventSolutionCreated EventType = "solution.created"
	EventSolutionUpdated EventType = "solution.updated"
	EventSolutionDeleted EventType = "solution.deleted"
	EventBriefCreated    EventType = "brief.created"
	EventBriefUpdated    EventType = "brief.updated"
	EventBriefDeleted    EventType = "brief.deleted"
	EventArtifactCreated EventType = "artifact.created"
	EventArtifactUpdated EventType = "artifact.updated"
	EventArtifactDeleted EventType = "artifact.deleted"

	// Job lifecycle events published by run-owning collaborators.
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	// Discovery pipeline events.
	EventDiscoveryRunStarted   EventType = "discovery.run.started"
	EventDiscoveryRunCompleted EventType = "discovery.run.completed"

	// Source trust events.
	EventSourceHealthChanged EventType = "source.health.changed"
)

func RecordCreatedEvent(kind RecordKind) EventType { return EventType(string(kind) + ".created") }
func RecordUpdatedEvent(kind RecordKind) EventType { return EventType(string(kind) + ".updated") }
func RecordDeletedEvent(kind RecordKind) EventType { return EventType(string(kind) + ".deleted") }

// ServerEvent is constructed at publish time and never mutated. The core
// does not persist events; durability is a collaborator concern.
type ServerEvent struct {
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
}
