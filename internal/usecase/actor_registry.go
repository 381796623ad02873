package usecase

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"tabula/internal/domain"
	"tabula/internal/infra/crypto"
)

// ActorRegistry issues and resolves actor identities. Identities are
// immutable once registered; the private key lives only in the keyring
// and its seed is returned exactly once at registration.
type ActorRegistry struct {
	Actors ActorRepository
	Keys   Keyring
	Cache  IdentityCache
	Clock  func() time.Time
}

type RegisterActorRequest struct {
	Type        domain.ActorType
	DisplayName string
}

type RegisteredActor struct {
	Actor domain.ActorIdentity
	// SeedHex is the hex-encoded ed25519 seed. It is not retained
	// anywhere after this response.
	SeedHex string
}

func (r *ActorRegistry) Register(ctx context.Context, req RegisterActorRequest) (RegisteredActor, error) {
	if _, ok := domain.ParseActorType(string(req.Type)); !ok {
		return RegisteredActor{}, fmt.Errorf("%w: unknown actor type %q", domain.ErrValidationFailed, req.Type)
	}

	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		return RegisteredActor{}, fmt.Errorf("%w: %v", domain.ErrCryptoFailure, err)
	}
	actor := domain.ActorIdentity{
		ID:          domain.NewActorID(),
		Type:        req.Type,
		DisplayName: req.DisplayName,
		PublicKey:   base64.StdEncoding.EncodeToString(pub),
		CreatedAt:   r.now(),
	}
	if err := r.Actors.Create(ctx, actor); err != nil {
		return RegisteredActor{}, err
	}
	if err := r.Keys.Put(actor.ID, priv); err != nil {
		return RegisteredActor{}, fmt.Errorf("%w: %v", domain.ErrCryptoFailure, err)
	}
	if r.Cache != nil {
		r.Cache.Put(actor.ID, actor)
	}
	return RegisteredActor{Actor: actor, SeedHex: hex.EncodeToString(priv.Seed())}, nil
}

// Resolve returns the identity for id, going through the cache first.
// Cached entries cannot go stale because identities never change.
func (r *ActorRegistry) Resolve(ctx context.Context, id string) (domain.ActorIdentity, error) {
	if r.Cache != nil {
		if actor, ok := r.Cache.Get(id); ok {
			return actor, nil
		}
	}
	actor, err := r.Actors.Get(ctx, id)
	if err != nil {
		return domain.ActorIdentity{}, err
	}
	if r.Cache != nil {
		r.Cache.Put(id, actor)
	}
	return actor, nil
}

// EnsureSystemActor persists an identity row for a deployment-owned
// actor whose signing key was seeded from the environment, so its
// signatures can be verified like any other actor's. Safe to call on
// every boot.
func (r *ActorRegistry) EnsureSystemActor(ctx context.Context, id, displayName string) (domain.ActorIdentity, error) {
	actor, err := r.Actors.Get(ctx, id)
	if err == nil {
		if r.Cache != nil {
			r.Cache.Put(id, actor)
		}
		return actor, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.ActorIdentity{}, err
	}

	pub, err := r.Keys.PublicKey(id)
	if err != nil {
		return domain.ActorIdentity{}, fmt.Errorf("%w: system actor %s has no signing key: %v", domain.ErrCryptoFailure, id, err)
	}
	actor = domain.ActorIdentity{
		ID:          id,
		Type:        domain.ActorSystem,
		DisplayName: displayName,
		PublicKey:   base64.StdEncoding.EncodeToString(pub),
		CreatedAt:   r.now(),
	}
	if err := r.Actors.Create(ctx, actor); err != nil {
		// A concurrent boot may have won the insert.
		if errors.Is(err, domain.ErrConflict) {
			return r.Actors.Get(ctx, id)
		}
		return domain.ActorIdentity{}, err
	}
	if r.Cache != nil {
		r.Cache.Put(id, actor)
	}
	return actor, nil
}

func (r *ActorRegistry) now() time.Time {
	if r.Clock != nil {
		return r.Clock().UTC()
	}
	return time.Now().UTC()
}
