package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const ActorIDPrefix = "actor"

// NewRecordID mints a type-prefixed record id: "<kind>_<32 lowercase hex>".
func NewRecordID(kind RecordKind) string {
	return string(kind) + "_" + uuidHex()
}

// NewActorID mints an actor id: "actor_<32 lowercase hex>".
func NewActorID() string {
	return ActorIDPrefix + "_" + uuidHex()
}

func uuidHex() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

var idSuffixPattern = regexp.MustCompile(`^[a-z0-9]{32}$`)

// ValidRecordID reports whether id carries the kind's prefix and a
// well-formed suffix.
func ValidRecordID(kind RecordKind, id string) bool {
	return validPrefixedID(string(kind), id)
}

func ValidActorID(id string) bool {
	return validPrefixedID(ActorIDPrefix, id)
}

func validPrefixedID(prefix, id string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"_")
	if !ok {
		return false
	}
	return idSuffixPattern.MatchString(rest)
}
