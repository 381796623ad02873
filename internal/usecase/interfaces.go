package usecase

import (
	"context"
	"crypto/ed25519"
	"time"

	"tabula/internal/domain"
)

type RecordRepository interface {
	Create(ctx context.Context, rec domain.Record) error
	Get(ctx context.Context, kind domain.RecordKind, id string) (domain.Record, error)
	UpdateCAS(ctx context.Context, rec domain.Record, expectedVersion int64) error
	Delete(ctx context.Context, kind domain.RecordKind, id string) error
	Versions(ctx context.Context, kind domain.RecordKind, id string) ([]domain.RecordVersion, error)
}

type ActorRepository interface {
	Create(ctx context.Context, actor domain.ActorIdentity) error
	Get(ctx context.Context, id string) (domain.ActorIdentity, error)
}

type FetchLogRepository interface {
	Append(ctx context.Context, fetch domain.SourceFetch) error
	ListWindow(ctx context.Context, sourceDomain string, from, to time.Time) ([]domain.SourceFetch, error)
	ActiveDomains(ctx context.Context, since time.Time) ([]string, error)
}

type SourceHealthRepository interface {
	Get(ctx context.Context, sourceDomain string) (domain.SourceHealth, error)
	Upsert(ctx context.Context, health domain.SourceHealth) error
	AppendSnapshot(ctx context.Context, snap domain.HealthSnapshot) error
	History(ctx context.Context, sourceDomain string, limit int) ([]domain.HealthSnapshot, error)
}

type AssessmentRepository interface {
	Get(ctx context.Context, sourceDomain string) (domain.SourceAssessment, error)
	Upsert(ctx context.Context, assessment domain.SourceAssessment) error
}

// EventPublisher is the write side of the event bus. Publication is
// fire-and-forget; it never blocks the mutation that triggered it.
type EventPublisher interface {
	Publish(eventType domain.EventType, payload map[string]any)
}

// Keyring holds the ed25519 signing keys of locally registered actors.
type Keyring interface {
	Put(actorID string, priv ed25519.PrivateKey) error
	Has(actorID string) bool
	PublicKey(actorID string) (ed25519.PublicKey, error)
	SignRecord(actorID, contentHash string) (string, error)
}

// ActorResolver resolves actor identities for signing and verification.
type ActorResolver interface {
	Resolve(ctx context.Context, id string) (domain.ActorIdentity, error)
}

// IdentityCache fronts the actor repository. Identities are immutable,
// so cached entries can never go stale.
type IdentityCache interface {
	Get(id string) (domain.ActorIdentity, bool)
	Put(id string, actor domain.ActorIdentity)
}

// AdmissionPolicy screens record mutations before any hash or signature
// work. A nil engine means admission is open.
type AdmissionPolicy interface {
	Evaluate(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error)
}
