package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"tabula/internal/domain"
	"tabula/internal/infra/canonical"
	"tabula/internal/infra/crypto"
)

// Ledger orchestrates record mutations while preserving the chain
// invariants: versions increment by one with no gaps, parentHash of
// version n equals contentHash of version n-1, and every version is
// signed by its author.
type Ledger struct {
	Records RecordRepository
	Actors  ActorResolver
	Keys    Keyring
	Policy  AdmissionPolicy
	Events  EventPublisher
	Clock   func() time.Time
}

type CreateRequest struct {
	Kind    domain.RecordKind
	Payload map[string]any
	Status  domain.RecordStatus
	Author  string
}

type UpdateRequest struct {
	Kind   domain.RecordKind
	ID     string
	Patch  map[string]any
	Status *domain.RecordStatus
	Author string
}

// RecordVerification is the on-read integrity check: the hash is
// recomputed from the stored payload and the signature is checked
// against the author's registered key.
type RecordVerification struct {
	HashValid      bool
	SignatureValid bool
}

type ChainFailure struct {
	Version int64
	Reason  string
}

// ChainReport names every version that fails an integrity check. An
// empty Failures list means the whole chain verified.
type ChainReport struct {
	RecordID string
	Kind     domain.RecordKind
	Versions int
	Valid    bool
	Failures []ChainFailure
}

// Base record fields are server-managed; client payloads carrying any
// of them are rejected before hash or signature work.
var reservedPayloadFields = []string{
	"author", "authorSignature", "contentHash", "createdAt",
	"id", "kind", "parentHash", "status", "updatedAt", "version",
}

func (l *Ledger) Create(ctx context.Context, req CreateRequest) (domain.Record, error) {
	if _, ok := domain.ParseRecordKind(string(req.Kind)); !ok {
		return domain.Record{}, fmt.Errorf("%w: unknown record kind %q", domain.ErrValidationFailed, req.Kind)
	}
	if req.Author == "" {
		return domain.Record{}, fmt.Errorf("%w: author is required", domain.ErrValidationFailed)
	}
	if len(req.Payload) == 0 {
		return domain.Record{}, fmt.Errorf("%w: payload is required", domain.ErrValidationFailed)
	}
	if hits := reservedFieldsIn(req.Payload); len(hits) > 0 {
		return domain.Record{}, fmt.Errorf("%w: payload carries server-managed fields: %s",
			domain.ErrValidationFailed, strings.Join(hits, ", "))
	}
	status := req.Status
	if status == "" {
		status = domain.StatusDraft
	}
	if !validStatus(status) {
		return domain.Record{}, fmt.Errorf("%w: unknown status %q", domain.ErrValidationFailed, status)
	}
	if err := l.admit(ctx, domain.PolicyOpCreate, req.Kind, req.Payload, req.Author); err != nil {
		return domain.Record{}, err
	}

	contentHash, err := canonical.HashExcluding(req.Payload, domain.HashExemptFields...)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: %v", domain.ErrValidationFailed, err)
	}
	signature, err := l.Keys.SignRecord(req.Author, contentHash)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: sign as %s: %v", domain.ErrCryptoFailure, req.Author, err)
	}

	now := l.now()
	rec := domain.Record{
		ID:              domain.NewRecordID(req.Kind),
		Kind:            req.Kind,
		Version:         1,
		Status:          status,
		Author:          req.Author,
		AuthorSignature: signature,
		ContentHash:     contentHash,
		Payload:         req.Payload,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.Records.Create(ctx, rec); err != nil {
		return domain.Record{}, err
	}
	l.publish(domain.RecordCreatedEvent(req.Kind), rec)
	return rec, nil
}

func (l *Ledger) Update(ctx context.Context, req UpdateRequest) (domain.Record, error) {
	if _, ok := domain.ParseRecordKind(string(req.Kind)); !ok {
		return domain.Record{}, fmt.Errorf("%w: unknown record kind %q", domain.ErrValidationFailed, req.Kind)
	}
	if req.Author == "" {
		return domain.Record{}, fmt.Errorf("%w: author is required", domain.ErrValidationFailed)
	}
	if len(req.Patch) == 0 && req.Status == nil {
		return domain.Record{}, fmt.Errorf("%w: nothing to update", domain.ErrValidationFailed)
	}
	if hits := reservedFieldsIn(req.Patch); len(hits) > 0 {
		return domain.Record{}, fmt.Errorf("%w: patch carries server-managed fields: %s",
			domain.ErrValidationFailed, strings.Join(hits, ", "))
	}
	if req.Status != nil && !validStatus(*req.Status) {
		return domain.Record{}, fmt.Errorf("%w: unknown status %q", domain.ErrValidationFailed, *req.Status)
	}

	head, err := l.Records.Get(ctx, req.Kind, req.ID)
	if err != nil {
		return domain.Record{}, err
	}

	// Merge semantics match a JSON object spread: patch keys overwrite,
	// explicit nulls overwrite with null, absent keys are untouched.
	merged := make(map[string]any, len(head.Payload)+len(req.Patch))
	for k, v := range head.Payload {
		merged[k] = v
	}
	for k, v := range req.Patch {
		merged[k] = v
	}
	status := head.Status
	if req.Status != nil {
		status = *req.Status
	}
	if err := l.admit(ctx, domain.PolicyOpUpdate, req.Kind, merged, req.Author); err != nil {
		return domain.Record{}, err
	}

	contentHash, err := canonical.HashExcluding(merged, domain.HashExemptFields...)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: %v", domain.ErrValidationFailed, err)
	}
	signature, err := l.Keys.SignRecord(req.Author, contentHash)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: sign as %s: %v", domain.ErrCryptoFailure, req.Author, err)
	}

	next := domain.Record{
		ID:              head.ID,
		Kind:            head.Kind,
		Version:         head.Version + 1,
		Status:          status,
		Author:          req.Author,
		AuthorSignature: signature,
		ContentHash:     contentHash,
		ParentHash:      head.ContentHash,
		Payload:         merged,
		CreatedAt:       head.CreatedAt,
		UpdatedAt:       l.now(),
	}
	if err := l.Records.UpdateCAS(ctx, next, head.Version); err != nil {
		return domain.Record{}, err
	}
	l.publish(domain.RecordUpdatedEvent(req.Kind), next)
	return next, nil
}

func (l *Ledger) Get(ctx context.Context, kind domain.RecordKind, id string) (domain.Record, error) {
	return l.Records.Get(ctx, kind, id)
}

// Delete removes the head row. Version history is retained so the chain
// of a deleted record stays auditable.
func (l *Ledger) Delete(ctx context.Context, kind domain.RecordKind, id string) error {
	head, err := l.Records.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	if err := l.Records.Delete(ctx, kind, id); err != nil {
		return err
	}
	l.publish(domain.RecordDeletedEvent(kind), head)
	return nil
}

// Verify recomputes the record's content hash and checks the author
// signature against the registry. Unresolvable authors make the
// signature invalid, not the call erroneous.
func (l *Ledger) Verify(ctx context.Context, rec domain.Record) (RecordVerification, error) {
	var out RecordVerification

	expected, err := canonical.HashExcluding(rec.Payload, domain.HashExemptFields...)
	if err == nil && expected == rec.ContentHash {
		out.HashValid = true
	}

	actor, err := l.Actors.Resolve(ctx, rec.Author)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return out, nil
		}
		return out, err
	}
	pub, err := base64.StdEncoding.DecodeString(actor.PublicKey)
	if err != nil {
		return out, nil
	}
	out.SignatureValid = crypto.Verify(pub, rec.ContentHash, rec.Author, rec.AuthorSignature)
	return out, nil
}

// VerifyChain walks the full version history oldest to newest, checking
// version continuity, parent linkage, recomputed hashes, and author
// signatures. Every failing version is named in the report.
func (l *Ledger) VerifyChain(ctx context.Context, kind domain.RecordKind, id string) (ChainReport, error) {
	versions, err := l.Records.Versions(ctx, kind, id)
	if err != nil {
		return ChainReport{}, err
	}
	if len(versions) == 0 {
		return ChainReport{}, fmt.Errorf("%w: %s %s has no versions", domain.ErrNotFound, kind, id)
	}

	report := ChainReport{RecordID: id, Kind: kind, Versions: len(versions)}
	fail := func(version int64, reason string) {
		report.Failures = append(report.Failures, ChainFailure{Version: version, Reason: reason})
	}

	for i, v := range versions {
		if want := int64(i + 1); v.Version != want {
			fail(v.Version, fmt.Sprintf("version sequence gap: expected %d", want))
		}
		if i == 0 {
			if v.ParentHash != "" {
				fail(v.Version, "first version has a parent hash")
			}
		} else if v.ParentHash != versions[i-1].ContentHash {
			fail(v.Version, "parent hash does not match previous content hash")
		}

		recomputed, err := canonical.HashExcluding(v.Payload, domain.HashExemptFields...)
		if err != nil {
			fail(v.Version, fmt.Sprintf("payload cannot be canonicalized: %v", err))
		} else if recomputed != v.ContentHash {
			fail(v.Version, "content hash mismatch")
		}

		if ok, reason := l.verifyVersionSignature(ctx, v); !ok {
			fail(v.Version, reason)
		}
	}

	// A live head must agree with the newest version row.
	head, err := l.Records.Get(ctx, kind, id)
	switch {
	case err == nil:
		latest := versions[len(versions)-1]
		if head.Version != latest.Version || head.ContentHash != latest.ContentHash {
			fail(latest.Version, "head row diverges from latest version")
		}
	case errors.Is(err, domain.ErrNotFound):
		// Deleted records keep their history; nothing to cross-check.
	default:
		return ChainReport{}, err
	}

	report.Valid = len(report.Failures) == 0
	return report, nil
}

func (l *Ledger) verifyVersionSignature(ctx context.Context, v domain.RecordVersion) (bool, string) {
	actor, err := l.Actors.Resolve(ctx, v.Author)
	if err != nil {
		return false, fmt.Sprintf("author %s unresolved", v.Author)
	}
	pub, err := base64.StdEncoding.DecodeString(actor.PublicKey)
	if err != nil {
		return false, fmt.Sprintf("author %s has a malformed public key", v.Author)
	}
	if !crypto.Verify(pub, v.ContentHash, v.Author, v.AuthorSignature) {
		return false, "author signature invalid"
	}
	return true, ""
}

// admit runs the optional admission policy before any hash or signature
// work. A nil engine admits everything.
func (l *Ledger) admit(ctx context.Context, op string, kind domain.RecordKind, payload map[string]any, author string) error {
	if l.Policy == nil {
		return nil
	}
	eval, err := l.Policy.Evaluate(ctx, domain.PolicyInput{
		Operation: op,
		Kind:      string(kind),
		Payload:   payload,
		Author:    author,
	})
	if err != nil {
		return fmt.Errorf("admission policy: %w", err)
	}
	if eval.Result.Allow {
		return nil
	}
	reasons := make([]string, 0, len(eval.Result.Deny))
	for _, d := range eval.Result.Deny {
		reasons = append(reasons, d.Code+": "+d.Message)
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "denied by policy")
	}
	return fmt.Errorf("%w: %s", domain.ErrValidationFailed, strings.Join(reasons, "; "))
}

func (l *Ledger) publish(eventType domain.EventType, rec domain.Record) {
	if l.Events == nil {
		return
	}
	l.Events.Publish(eventType, map[string]any{
		"id":          rec.ID,
		"kind":        string(rec.Kind),
		"version":     rec.Version,
		"contentHash": rec.ContentHash,
		"author":      rec.Author,
	})
}

func (l *Ledger) now() time.Time {
	if l.Clock != nil {
		return l.Clock().UTC()
	}
	return time.Now().UTC()
}

func validStatus(s domain.RecordStatus) bool {
	switch s {
	case domain.StatusDraft, domain.StatusActive, domain.StatusSuperseded, domain.StatusArchived:
		return true
	}
	return false
}

func reservedFieldsIn(payload map[string]any) []string {
	var hits []string
	for _, f := range reservedPayloadFields {
		if _, ok := payload[f]; ok {
			hits = append(hits, f)
		}
	}
	return hits
}
