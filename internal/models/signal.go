package models

import "encoding/json"

// EventType discriminates the signaling event union. The direct-call and
// room dialects use disjoint inbound types; the relay dispatches on this
// tag with an exhaustive switch per dialect.
type EventType string

// Inbound events.
const (
	EventDeclareIdentity EventType = "declareIdentity"
	EventJoinRoom        EventType = "joinRoom"
	EventLeaveRoom       EventType = "leaveRoom"
	EventCall            EventType = "call"
	EventAcceptCall      EventType = "acceptCall"
	EventRelayIce        EventType = "relayIce"
	EventEndCall         EventType = "endCall"
	EventNegotiate       EventType = "negotiate"
	EventNegotiateAck    EventType = "negotiateAck"
)

// Outbound events.
const (
	EventPeerJoined      EventType = "peerJoined"
	EventPeerLeft        EventType = "peerLeft"
	EventIncomingCall    EventType = "incomingCall"
	EventCallAccepted    EventType = "callAccepted"
	EventIceCandidate    EventType = "iceCandidate"
	EventCallEnded       EventType = "callEnded"
	EventPeerUnavailable EventType = "peerUnavailable"
	EventNegotiateFinal  EventType = "negotiateFinal"
	EventNewMessage      EventType = "newMessage"
	EventError           EventType = "error"
)

// Envelope frames every inbound event on the wire. The payload stays raw
// until the dispatcher knows the type.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is an outbound envelope with a typed payload.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// NewEvent builds an outbound event.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Payload: payload}
}

// DeclareIdentityPayload binds the connection to an identity.
type DeclareIdentityPayload struct {
	Identity string `json:"identity"`
}

// JoinRoomPayload enters a signaling room and announces the peer.
type JoinRoomPayload struct {
	RoomTag  string `json:"roomTag"`
	Identity string `json:"identity,omitempty"`
}

// LeaveRoomPayload exits a signaling room.
type LeaveRoomPayload struct {
	RoomTag string `json:"roomTag"`
}

// CallPayload carries a direct-call offer.
type CallPayload struct {
	ToIdentity string          `json:"toIdentity"`
	Offer      json.RawMessage `json:"offer"`
}

// AcceptCallPayload carries the callee's answer back to the caller.
type AcceptCallPayload struct {
	ToIdentity string          `json:"toIdentity"`
	Answer     json.RawMessage `json:"answer"`
}

// RelayIcePayload forwards an ICE candidate, best-effort.
type RelayIcePayload struct {
	ToIdentity string          `json:"toIdentity"`
	Candidate  json.RawMessage `json:"candidate"`
}

// EndCallPayload terminates a direct call (ToIdentity) or announces the
// end of a room call (RoomTag). Exactly one of the two is set.
type EndCallPayload struct {
	ToIdentity string `json:"toIdentity,omitempty"`
	RoomTag    string `json:"roomTag,omitempty"`
}

// NegotiatePayload is a room-dialect offer addressed to a peer handle
// learned from the peerJoined broadcast.
type NegotiatePayload struct {
	ToHandle string          `json:"toHandle"`
	Offer    json.RawMessage `json:"offer"`
}

// NegotiateAckPayload is the room-dialect answer to a negotiate offer.
type NegotiateAckPayload struct {
	ToHandle string          `json:"toHandle"`
	Answer   json.RawMessage `json:"answer"`
}

// PeerJoinedPayload announces a new room member to existing members.
type PeerJoinedPayload struct {
	Identity string `json:"identity,omitempty"`
	Handle   string `json:"handle"`
	RoomTag  string `json:"roomTag"`
}

// PeerLeftPayload announces a departed room member.
type PeerLeftPayload struct {
	Handle  string `json:"handle"`
	RoomTag string `json:"roomTag"`
}

// IncomingCallPayload delivers a direct-call offer to the callee.
type IncomingCallPayload struct {
	FromIdentity string          `json:"fromIdentity"`
	Offer        json.RawMessage `json:"offer"`
}

// CallAcceptedPayload delivers the answer to the caller.
type CallAcceptedPayload struct {
	FromIdentity string          `json:"fromIdentity"`
	Answer       json.RawMessage `json:"answer"`
}

// IceCandidatePayload delivers a forwarded ICE candidate.
type IceCandidatePayload struct {
	FromIdentity string          `json:"fromIdentity"`
	Candidate    json.RawMessage `json:"candidate"`
}

// CallEndedPayload tells a peer the call is over.
type CallEndedPayload struct {
	FromIdentity string `json:"fromIdentity,omitempty"`
	RoomTag      string `json:"roomTag,omitempty"`
}

// PeerUnavailablePayload tells the caller the target has no live connection.
type PeerUnavailablePayload struct {
	ToIdentity string `json:"toIdentity"`
}

// NegotiateOfferPayload delivers a room-dialect offer, stamped with the
// sender's handle so the answer can be addressed back.
type NegotiateOfferPayload struct {
	FromHandle string          `json:"fromHandle"`
	Offer      json.RawMessage `json:"offer"`
}

// NegotiateFinalPayload delivers a room-dialect answer.
type NegotiateFinalPayload struct {
	FromHandle string          `json:"fromHandle"`
	Answer     json.RawMessage `json:"answer"`
}

// ErrorPayload reports a rejected or unrecognized event to the sender.
type ErrorPayload struct {
	Message string `json:"message"`
}
