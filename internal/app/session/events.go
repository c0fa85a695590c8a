/*
Package session contains the core logic for pairing anonymous participants and relaying
messages, typing signals, edits, deletions, and encryption key material between them.

This file defines the wire-level event catalogue. Every frame exchanged with a client is
an Envelope carrying a named event and its JSON payload.
*/
package session

import "encoding/json"

// EventType names a discrete event exchanged over a connection's websocket.
type EventType string

// Inbound events (client to server).
const (
	EventJoinQueue     EventType = "join_queue"
	EventExchangeKeys  EventType = "exchange_keys"
	EventSendMessage   EventType = "send_message"
	EventTyping        EventType = "typing"
	EventStopTyping    EventType = "stop_typing"
	EventEditMessage   EventType = "edit_message"
	EventDeleteMessage EventType = "delete_message"
	EventSkip          EventType = "skip"
)

// Outbound events (server to client).
const (
	EventChatStart           EventType = "chat_start"
	EventReceiveMessage      EventType = "receive_message"
	EventPartnerPublicKey    EventType = "partner_public_key"
	EventMessageEdited       EventType = "message_edited"
	EventMessageDeleted      EventType = "message_deleted"
	EventPartnerDisconnected EventType = "partner_disconnected"
	EventRateLimitExceeded   EventType = "rate_limit_exceeded"
)

// Envelope is the frame format used in both directions: a named event plus its payload.
type Envelope struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data and wraps it with the given event name.
// A payload that fails to marshal degrades to an envelope without data.
func NewEnvelope(event EventType, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{Event: event}, err
	}

	return Envelope{Event: event, Data: raw}, nil
}

// JoinQueuePayload carries the participant's profile on a join_queue event.
type JoinQueuePayload struct {
	Username   string `json:"username"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// ExchangeKeysPayload carries a connection's published public key material.
// The payload is opaque to the server and is forwarded verbatim.
type ExchangeKeysPayload struct {
	PublicKey string `json:"publicKey"`
}

// ReplyRef references an earlier message that a new message replies to.
type ReplyRef struct {
	ID          string `json:"id"`
	Sender      string `json:"sender,omitempty"`
	Text        string `json:"text,omitempty"`
	FileContent string `json:"fileContent,omitempty"`
}

// Message type discriminators for MessagePayload.Type.
const (
	MessageTypeText = "text"
	MessageTypeFile = "file"
)

// MessagePayload is the body of send_message and receive_message events.
// The Encrypted field is an opaque end-to-end payload the server never inspects.
type MessagePayload struct {
	RoomID      string          `json:"roomId,omitempty"`
	ID          string          `json:"id"`
	Text        string          `json:"text,omitempty"`
	Sender      string          `json:"sender,omitempty"`
	Type        string          `json:"type"`
	FileContent string          `json:"fileContent,omitempty"`
	FileType    string          `json:"fileType,omitempty"`
	ReplyTo     *ReplyRef       `json:"replyTo,omitempty"`
	Encrypted   json.RawMessage `json:"encrypted,omitempty"`
}

// TypingPayload is the body of typing and stop_typing events.
type TypingPayload struct {
	RoomID string `json:"roomId,omitempty"`
}

// EditMessagePayload is the body of an edit_message event.
type EditMessagePayload struct {
	RoomID string `json:"roomId,omitempty"`
	ID     string `json:"id"`
	Text   string `json:"text"`
}

// DeleteMessagePayload is the body of a delete_message event.
type DeleteMessagePayload struct {
	RoomID string `json:"roomId,omitempty"`
	ID     string `json:"id"`
}

// ChatStartPayload notifies both sides of a new pairing.
type ChatStartPayload struct {
	RoomID            string `json:"roomId"`
	PartnerName       string `json:"partnerName"`
	PartnerProfilePic string `json:"partnerProfilePic,omitempty"`
}

// PartnerPublicKeyPayload forwards a partner's published key material.
type PartnerPublicKeyPayload struct {
	PublicKey string `json:"publicKey"`
}

// MessageEditedPayload tells the partner to apply an edit by message identity.
type MessageEditedPayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// MessageDeletedPayload tells the partner to mark a message deleted.
type MessageDeletedPayload struct {
	ID string `json:"id"`
}

// RateLimitExceededPayload is reported to the offending sender only.
type RateLimitExceededPayload struct {
	Message string `json:"message"`
}
