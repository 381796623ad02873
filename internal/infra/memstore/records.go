// Package memstore provides mutex-guarded in-memory implementations of
// the repository interfaces, used when no POSTGRES_DSN is configured and
// as fixtures in tests. Semantics match the db repositories, including
// the compare-and-swap update discipline.
package memstore

import (
	"context"
	"sync"

	"tabula/internal/domain"
)

type RecordStore struct {
	mu       sync.RWMutex
	heads    map[string]domain.Record          // key: kind/id
	versions map[string][]domain.RecordVersion // key: kind/id, ascending
}

func NewRecordStore() *RecordStore {
	return &RecordStore{
		heads:    make(map[string]domain.Record),
		versions: make(map[string][]domain.RecordVersion),
	}
}

func recordKey(kind domain.RecordKind, id string) string {
	return string(kind) + "/" + id
}

func (s *RecordStore) Create(ctx context.Context, rec domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := recordKey(rec.Kind, rec.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.heads[key]; ok {
		return domain.ErrConflict
	}
	s.heads[key] = cloneRecord(rec)
	s.versions[key] = append(s.versions[key], versionOf(rec))
	return nil
}

func (s *RecordStore) Get(ctx context.Context, kind domain.RecordKind, id string) (domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.heads[recordKey(kind, id)]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// UpdateCAS swaps the head only when its version still matches
// expectedVersion, appending the new chain entry in the same critical
// section so no torn state is ever observable.
func (s *RecordStore) UpdateCAS(ctx context.Context, rec domain.Record, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := recordKey(rec.Kind, rec.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.heads[key]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrConflict
	}
	s.heads[key] = cloneRecord(rec)
	s.versions[key] = append(s.versions[key], versionOf(rec))
	return nil
}

// Delete removes the head row; the version history stays verifiable.
func (s *RecordStore) Delete(ctx context.Context, kind domain.RecordKind, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := recordKey(kind, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.heads[key]; !ok {
		return domain.ErrNotFound
	}
	delete(s.heads, key)
	return nil
}

func (s *RecordStore) Versions(ctx context.Context, kind domain.RecordKind, id string) ([]domain.RecordVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.versions[recordKey(kind, id)]
	if len(chain) == 0 {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.RecordVersion, 0, len(chain))
	for _, v := range chain {
		out = append(out, cloneVersion(v))
	}
	return out, nil
}

func versionOf(rec domain.Record) domain.RecordVersion {
	return domain.RecordVersion{
		RecordID:        rec.ID,
		Kind:            rec.Kind,
		Version:         rec.Version,
		Status:          rec.Status,
		Author:          rec.Author,
		AuthorSignature: rec.AuthorSignature,
		ContentHash:     rec.ContentHash,
		ParentHash:      rec.ParentHash,
		Payload:         clonePayload(rec.Payload),
		RecordCreatedAt: rec.CreatedAt,
		CreatedAt:       rec.UpdatedAt,
	}
}

func cloneRecord(rec domain.Record) domain.Record {
	out := rec
	out.Payload = clonePayload(rec.Payload)
	return out
}

func cloneVersion(v domain.RecordVersion) domain.RecordVersion {
	out := v
	out.Payload = clonePayload(v.Payload)
	return out
}

// clonePayload is a shallow copy: nested values are shared, which is
// safe because the ledger never mutates payloads in place.
func clonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}
