// Package wire defines the JSON envelopes exchanged with library clients over
// the persistent WebSocket channel.
package wire

import "strings"

// Reply status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Payload carries the resource type and the operation data of a message.
type Payload struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Message is an inbound client request.
type Message struct {
	Action    string  `json:"action"`
	RequestID string  `json:"requestId"`
	LibraryID string  `json:"libraryId"`
	ClientID  string  `json:"clientId"`
	Payload   Payload `json:"payload"`
}

// Split resolves the resource type and verb of the message. Dotted actions
// ("file.create") carry both; a bare verb takes its resource from payload.type.
func (m *Message) Split() (resource, verb string) {
	if i := strings.IndexByte(m.Action, '.'); i >= 0 {
		return m.Action[:i], m.Action[i+1:]
	}
	return m.Payload.Type, m.Action
}

// Has reports whether key is present in the payload data, regardless of its value.
func (m *Message) Has(key string) bool {
	if m.Payload.Data == nil {
		return false
	}
	_, ok := m.Payload.Data[key]
	return ok
}

// Reply is the direct, correlated answer to a Message. RequestID is nil only
// when no request id could be salvaged from the inbound frame.
type Reply struct {
	RequestID *string `json:"requestId"`
	Status    string  `json:"status"`
	Data      any     `json:"data,omitempty"`
	Error     string  `json:"error,omitempty"`
	Code      string  `json:"code,omitempty"`
}

// OK builds a success reply for requestID.
func OK(requestID string, data any) Reply {
	return Reply{RequestID: &requestID, Status: StatusOK, Data: data}
}

// Failure builds an error reply. An empty requestID produces a null-correlated frame.
func Failure(requestID, code, msg string) Reply {
	r := Reply{Status: StatusError, Error: msg, Code: code}
	if requestID != "" {
		r.RequestID = &requestID
	}
	return r
}

// Event is a broadcast or notification frame. It is never a reply and carries
// no request id.
type Event struct {
	EventName string `json:"eventName"`
	LibraryID string `json:"libraryId,omitempty"`
	Data      any    `json:"data"`
}
