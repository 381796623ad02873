// Package keyring holds ed25519 signing keys for locally registered actors.
// Keys live for the life of the process; durable custody is out of scope.
package keyring

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"tabula/internal/config"
	"tabula/internal/infra/crypto"
)

var ErrKeyNotFound = errors.New("no signing key for actor")

type Keyring struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PrivateKey
}

func New() *Keyring {
	return &Keyring{keys: make(map[string]ed25519.PrivateKey)}
}

// NewFromConfig seeds the ring with the deployment's system actor key when
// one is configured, so records can be signed before any runtime
// registration happens.
func NewFromConfig(cfg config.Config) (*Keyring, error) {
	k := New()
	if cfg.SystemActorID == "" && cfg.SystemActorSeedHex == "" {
		return k, nil
	}
	if cfg.SystemActorID == "" || cfg.SystemActorSeedHex == "" {
		return nil, errors.New("system actor id and seed must be configured together")
	}
	priv, err := crypto.ParsePrivateKeyHex(cfg.SystemActorSeedHex)
	if err != nil {
		return nil, fmt.Errorf("parse system actor seed: %w", err)
	}
	if err := k.Put(cfg.SystemActorID, priv); err != nil {
		return nil, err
	}
	return k, nil
}

func (k *Keyring) Put(actorID string, priv ed25519.PrivateKey) error {
	if actorID == "" {
		return errors.New("actor id is required")
	}
	if len(priv) != ed25519.PrivateKeySize {
		return errors.New("invalid ed25519 private key length")
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[actorID] = append(ed25519.PrivateKey(nil), priv...)
	return nil
}

func (k *Keyring) Has(actorID string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	_, ok := k.keys[actorID]
	return ok
}

// PublicKey derives the verification key for a held signing key.
func (k *Keyring) PublicKey(actorID string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	priv, ok := k.keys[actorID]
	k.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, actorID)
	}
	return priv.Public().(ed25519.PublicKey), nil
}

// SignRecord produces the base64 record signature binding contentHash to
// actorID.
func (k *Keyring) SignRecord(actorID, contentHash string) (string, error) {
	k.mu.RLock()
	priv, ok := k.keys[actorID]
	k.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, actorID)
	}
	return crypto.Sign(priv, contentHash, actorID)
}
