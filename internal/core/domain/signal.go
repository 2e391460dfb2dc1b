package domain

import (
	"encoding/json"
	"fmt"
)

// EventType tags one message on the signaling channel.
type EventType string

const (
	// Server -> client bootstrap: tells the socket its assigned connection id.
	EventConnected EventType = "connected"

	// Client -> server room membership.
	EventJoinRoom  EventType = "join-room"
	EventLeaveRoom EventType = "leave-room"

	// Server -> client membership notifications.
	EventRoomState     EventType = "room-state"
	EventExistingUsers EventType = "existing-users"
	EventUserJoined    EventType = "user-joined"
	EventUserLeft      EventType = "user-left"
	EventRoomFull      EventType = "room-full"

	// Server -> chosen member: begin negotiation.
	EventInitiateOffer EventType = "initiate-offer"

	// Relayed peer-to-peer negotiation traffic.
	EventOffer        EventType = "offer"
	EventAnswer       EventType = "answer"
	EventICECandidate EventType = "ice-candidate"

	// Relayed editor traffic.
	EventCodeChange EventType = "code-change"

	// Session termination.
	EventEndInterview   EventType = "end-interview"
	EventInterviewEnded EventType = "interview-ended"

	// Server -> client diagnostics.
	EventError EventType = "error"
)

// Envelope is the wire frame for every signaling message. The relay
// validates the envelope and routes on Type; payload contents are only
// decoded far enough to stamp the sender id.
type Envelope struct {
	Type    EventType       `json:"type"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionDescription mirrors an SDP description on the wire without tying
// the wire format to a WebRTC implementation.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors a trickled candidate on the wire.
type ICECandidate struct {
	Candidate        string  `json:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

type ExistingUsersPayload struct {
	RoomSize        int      `json:"roomSize"`
	ExistingUserIDs []string `json:"existingUserIds"`
}

type UserJoinedPayload struct {
	UserID   string `json:"userId"`
	RoomSize int    `json:"roomSize"`
}

type UserLeftPayload struct {
	UserID string `json:"userId"`
}

type InitiateOfferPayload struct {
	RoomID string `json:"roomId"`
}

type DescriptionPayload struct {
	Description SessionDescription `json:"description"`
	SenderID    string             `json:"senderId,omitempty"`
}

type CandidatePayload struct {
	Candidate ICECandidate `json:"candidate"`
	SenderID  string       `json:"senderId,omitempty"`
}

type CodeChangePayload struct {
	Change   string `json:"change"`
	SenderID string `json:"senderId,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Rejection codes carried in ErrorPayload.Code so clients can react
// without parsing the human-readable message.
const (
	ErrCodeUnknownSession = "unknown-session"
	ErrCodeWindowNotOpen  = "window-not-open"
	ErrCodeWindowClosed   = "window-closed"
	ErrCodeGateError      = "gate-error"
)

// clientEvents is the closed set of types the relay accepts from sockets.
var clientEvents = map[EventType]bool{
	EventJoinRoom:     true,
	EventLeaveRoom:    true,
	EventOffer:        true,
	EventAnswer:       true,
	EventICECandidate: true,
	EventCodeChange:   true,
	EventEndInterview: true,
}

// ValidateInbound checks an envelope arriving at the relay boundary.
func (e *Envelope) ValidateInbound() error {
	if e.Type == "" {
		return fmt.Errorf("%w: empty type", ErrUnknownEvent)
	}
	if !clientEvents[e.Type] {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, e.Type)
	}
	if e.RoomID == "" {
		return fmt.Errorf("event %q requires roomId", e.Type)
	}
	switch e.Type {
	case EventOffer, EventAnswer:
		var p DescriptionPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("invalid %s payload: %w", e.Type, err)
		}
		if p.Description.SDP == "" {
			return fmt.Errorf("%s payload missing sdp", e.Type)
		}
	case EventICECandidate:
		var p CandidatePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("invalid ice-candidate payload: %w", err)
		}
		if p.Candidate.Candidate == "" {
			return fmt.Errorf("ice-candidate payload missing candidate")
		}
	case EventCodeChange:
		var p CodeChangePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return fmt.Errorf("invalid code-change payload: %w", err)
		}
	}
	return nil
}

// NewEnvelope marshals payload into a routed envelope. It panics only on
// unmarshalable payloads, which would be a programming error.
func NewEnvelope(t EventType, roomID string, payload interface{}) *Envelope {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("marshal %s payload: %v", t, err))
		}
		raw = b
	}
	return &Envelope{Type: t, RoomID: roomID, Payload: raw}
}
