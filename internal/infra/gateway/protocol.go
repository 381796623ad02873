package gateway

import (
	"encoding/json"
	"fmt"
)

// clientMessage is the tagged union of frames a client may send. Events
// stays nil when the field is absent, which the subscribe and unsubscribe
// handlers treat differently from an explicit empty list.
type clientMessage struct {
	Type   string    `json:"type"`
	Events *[]string `json:"events,omitempty"`
}

const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgPing        = "ping"

	frameConnected = "connected"
	framePong      = "pong"
	frameError     = "error"
)

type serverFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId,omitempty"`
	Message      string `json:"message,omitempty"`
}

func parseClientMessage(raw []byte) (clientMessage, error) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return clientMessage{}, fmt.Errorf("invalid message: %w", err)
	}
	switch msg.Type {
	case msgSubscribe, msgUnsubscribe, msgPing:
		return msg, nil
	case "":
		return clientMessage{}, fmt.Errorf("missing message type")
	default:
		return clientMessage{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// subscriptionSet tracks what one connection wants to receive. A fresh set
// is in "all" mode; an explicit set replaces it the first time the client
// names event types.
type subscriptionSet struct {
	all   bool
	types map[string]struct{}
}

func newSubscriptionSet() *subscriptionSet {
	return &subscriptionSet{all: true}
}

func (s *subscriptionSet) subscribe(events *[]string) {
	if events == nil {
		s.all = true
		s.types = nil
		return
	}
	if s.all {
		s.all = false
		s.types = make(map[string]struct{}, len(*events))
	} else if s.types == nil {
		s.types = make(map[string]struct{}, len(*events))
	}
	for _, e := range *events {
		s.types[e] = struct{}{}
	}
}

func (s *subscriptionSet) unsubscribe(events *[]string) {
	if events == nil {
		s.all = false
		s.types = make(map[string]struct{})
		return
	}
	if s.all {
		// No explicit set to remove from.
		return
	}
	for _, e := range *events {
		delete(s.types, e)
	}
}

func (s *subscriptionSet) matches(eventType string) bool {
	if s.all {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}
