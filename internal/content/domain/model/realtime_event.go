package model

import "time"

// EventKind defines the type of change event.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
	EventDelete EventKind = "DELETE"
)

// ChangeEvent is one committed write to a collection, delivered to every live subscriber.
// For DELETE only Row.ID is meaningful.
type ChangeEvent struct {
	Kind       EventKind   `json:"kind"`
	Collection Collection  `json:"collection"`
	Row        ContentItem `json:"row"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Websocket actions sent by clients.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Websocket message types sent by the server.
const (
	MessageTypeSubscriptionConfirmed   = "subscription_confirmed"
	MessageTypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	MessageTypeChange                  = "change"
	MessageTypeError                   = "error"
)

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Action     string     `json:"action"`
	Collection Collection `json:"collection"`
}

// StreamMessage is every frame the server writes on the listen socket.
type StreamMessage struct {
	Type       string       `json:"type"`
	Collection Collection   `json:"collection,omitempty"`
	Event      *ChangeEvent `json:"event,omitempty"`
	Error      string       `json:"error,omitempty"`
}
