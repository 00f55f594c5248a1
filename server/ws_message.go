package server

import (
	"time"

	"preview_engine/preview"
	"preview_engine/sandbox"
	"preview_engine/session"
)

// Message types sent over /ws.
const (
	// MessageTypeInitial carries the open sessions when a client connects.
	MessageTypeInitial = "initial"

	// MessageTypePreviewsChanged tells clients to re-read the listed keys.
	MessageTypePreviewsChanged = "previews_changed"

	// MessageTypeGeneration announces a new build generation for a session.
	MessageTypeGeneration = "generation"

	// MessageTypeSessionClosed announces that a session went away.
	MessageTypeSessionClosed = "session_closed"

	// MessageTypeError reports a server-side failure.
	MessageTypeError = "error"
)

// WSMessage is the envelope of every websocket message.
type WSMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewWSMessage creates a message stamped with the current time.
func NewWSMessage(msgType string, data any) WSMessage {
	return WSMessage{Type: msgType, Timestamp: time.Now(), Data: data}
}

// InitialData is the payload of MessageTypeInitial.
type InitialData struct {
	Sessions []session.Info `json:"sessions"`
}

// PreviewsChangedData is the payload of MessageTypePreviewsChanged.
type PreviewsChangedData struct {
	SessionID string   `json:"session_id"`
	KeyIDs    []string `json:"key_ids"`
}

// GenerationData is the payload of MessageTypeGeneration.
type GenerationData struct {
	SessionID  string             `json:"session_id"`
	Generation sandbox.Generation `json:"generation"`
}

// SessionClosedData is the payload of MessageTypeSessionClosed.
type SessionClosedData struct {
	SessionID string `json:"session_id"`
}

// ErrorData is the payload of MessageTypeError.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewPreviewsChangedMessage lists the IDs of keys whose state changed.
func NewPreviewsChangedMessage(sessionID string, keys []preview.Key) WSMessage {
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.ID()
	}
	return NewWSMessage(MessageTypePreviewsChanged, PreviewsChangedData{SessionID: sessionID, KeyIDs: ids})
}

func NewGenerationMessage(sessionID string, gen sandbox.Generation) WSMessage {
	return NewWSMessage(MessageTypeGeneration, GenerationData{SessionID: sessionID, Generation: gen})
}

func NewSessionClosedMessage(sessionID string) WSMessage {
	return NewWSMessage(MessageTypeSessionClosed, SessionClosedData{SessionID: sessionID})
}

func NewErrorMessage(code, message string) WSMessage {
	return NewWSMessage(MessageTypeError, ErrorData{Code: code, Message: message})
}
