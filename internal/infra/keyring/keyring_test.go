package keyring

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"testing"

	"tabula/internal/config"
	"tabula/internal/infra/crypto"
)

func TestSignRecord(t *testing.T) {
	k := New()
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	if err := k.Put("actor_abc", priv); err != nil {
		t.Fatalf("put: %v", err)
	}

	sig, err := k.SignRecord("actor_abc", "sha256:feed")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pub, err := k.PublicKey("actor_abc")
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if !crypto.Verify(pub, "sha256:feed", "actor_abc", sig) {
		t.Fatal("keyring signature did not verify")
	}
}

func TestSignRecord_UnknownActor(t *testing.T) {
	k := New()
	if _, err := k.SignRecord("actor_missing", "sha256:feed"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestPut_Validates(t *testing.T) {
	k := New()
	priv := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	if err := k.Put("", priv); err == nil {
		t.Fatal("expected error for empty actor id")
	}
	if err := k.Put("actor_abc", priv[:12]); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestNewFromConfig_SeedsSystemActor(t *testing.T) {
	seed := bytes.Repeat([]byte{9}, ed25519.SeedSize)
	cfg := config.Config{
		SystemActorID:      "actor_system00000000000000000000",
		SystemActorSeedHex: hex.EncodeToString(seed),
	}

	k, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("from config: %v", err)
	}
	if !k.Has(cfg.SystemActorID) {
		t.Fatal("system actor key not seeded")
	}

	want := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	got, err := k.PublicKey(cfg.SystemActorID)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if !got.Equal(want) {
		t.Fatal("seeded key mismatch")
	}
}

func TestNewFromConfig_RequiresBothValues(t *testing.T) {
	if _, err := NewFromConfig(config.Config{SystemActorID: "actor_x"}); err == nil {
		t.Fatal("expected error for seed without id pairing")
	}
	if _, err := NewFromConfig(config.Config{SystemActorSeedHex: "aa"}); err == nil {
		t.Fatal("expected error for id without seed pairing")
	}
}
