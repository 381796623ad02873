package domain

import "time"

type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorAgent  ActorType = "agent"
	ActorSystem ActorType = "system"
)

func ParseActorType(s string) (ActorType, bool) {
	switch t := ActorType(s); t {
	case ActorUser, ActorAgent, ActorSystem:
		return t, true
	}
	return "", false
}

// ActorIdentity is created once per actor and immutable thereafter.
// PublicKey is the base64 encoding of the ed25519 verification key.
type ActorIdentity struct {
	ID          string
	Type        ActorType
	DisplayName string
	PublicKey   string
	CreatedAt   time.Time
}
