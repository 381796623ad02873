package domain

import "time"

type RecordKind string

const (
	KindIssue    RecordKind = "issue"
	KindPattern  RecordKind = "pattern"
	KindSolution RecordKind = "solution"
	KindBrief    RecordKind = "brief"
	KindArtifact RecordKind = "artifact"
)

// RecordKinds lists every tracked kind in a fixed order.
var RecordKinds = []RecordKind{KindIssue, KindPattern, KindSolution, KindBrief, KindArtifact}

func ParseRecordKind(s string) (RecordKind, bool) {
	k := RecordKind(s)
	for _, known := range RecordKinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

type RecordStatus string

const (
	StatusDraft      RecordStatus = "draft"
	StatusActive     RecordStatus = "active"
	StatusSuperseded RecordStatus = "superseded"
	StatusArchived   RecordStatus = "archived"
)

// HashExemptFields are the provenance fields stripped from a record before
// its content hash is computed, to avoid self-reference.
var HashExemptFields = []string{"contentHash", "parentHash", "authorSignature"}

func IsHashExempt(field string) bool {
	for _, f := range HashExemptFields {
		if f == field {
			return true
		}
	}
	return false
}

// Record is the base shape shared by every tracked entity. Payload carries
// the kind-specific fields; the named fields are the provenance envelope.
type Record struct {
	ID              string
	Kind            RecordKind
	Version         int64
	Status          RecordStatus
	Author          string
	AuthorSignature string
	ContentHash     string
	ParentHash      string
	Payload         map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RecordVersion is one immutable entry of a record's hash chain. Version 1
// has an empty ParentHash; version n stores the content hash of n-1 as its
// parent.
type RecordVersion struct {
	RecordID        string
	Kind            RecordKind
	Version         int64
	Status          RecordStatus
	Author          string
	AuthorSignature string
	ContentHash     string
	ParentHash      string
	Payload         map[string]any
	RecordCreatedAt time.Time
	CreatedAt       time.Time
}
