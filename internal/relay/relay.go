// Package relay routes call-signaling events between live connections.
// Two dialects share the transport: direct user-to-user calls addressed
// by identity, and room-based calls addressed by peer handle. The relay
// never touches media, only handshake metadata.
package relay

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mindhaven/peerlink/internal/models"
	"github.com/mindhaven/peerlink/internal/registry"
)

// Relay dispatches inbound signaling frames. It owns no connection state
// beyond the active direct-call pairing needed to notify a counterpart
// when the other side disconnects.
type Relay struct {
	reg *registry.Registry
	log zerolog.Logger

	mu sync.Mutex
	// handle -> identity of the active direct-call counterpart. Both
	// sides are linked when an offer is delivered and unlinked on
	// endCall or disconnect.
	counterparts map[string]string
}

// New creates a relay over the given registry.
func New(reg *registry.Registry, log zerolog.Logger) *Relay {
	return &Relay{
		reg:          reg,
		log:          log.With().Str("component", "relay").Logger(),
		counterparts: make(map[string]string),
	}
}

// Dispatch handles one inbound frame from a connection. Events of one
// dialect can never be delivered through the other: the type tag decides
// the dialect and each dialect's switch is exhaustive.
func (r *Relay) Dispatch(p registry.Peer, raw []byte) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.log.Debug().Err(err).Str("handle", p.Handle()).Msg("unparseable frame")
		r.sendError(p, "malformed event")
		return
	}

	switch env.Type {
	case models.EventDeclareIdentity:
		r.declareIdentity(p, env.Payload)
	case models.EventJoinRoom, models.EventLeaveRoom, models.EventNegotiate, models.EventNegotiateAck:
		r.dispatchRoom(p, env)
	case models.EventCall, models.EventAcceptCall, models.EventRelayIce, models.EventEndCall:
		r.dispatchDirect(p, env)
	default:
		r.log.Debug().Str("type", string(env.Type)).Str("handle", p.Handle()).Msg("unknown event type")
		r.sendError(p, "unknown event type")
	}
}

// HandleDisconnect runs the full departure sequence for a closed
// connection: registry cleanup, peerLeft to every room the handle was
// in, and callEnded to an active direct-call counterpart.
func (r *Relay) HandleDisconnect(p registry.Peer) {
	dep := r.reg.Unregister(p)

	for roomTag, remaining := range dep.Rooms {
		evt := models.NewEvent(models.EventPeerLeft, models.PeerLeftPayload{
			Handle:  p.Handle(),
			RoomTag: roomTag,
		})
		for _, member := range remaining {
			member.Send(evt)
		}
	}

	counterpart := r.unlink(p.Handle())
	if counterpart == "" {
		return
	}
	if target, ok := r.reg.Lookup(counterpart); ok {
		target.Send(models.NewEvent(models.EventCallEnded, models.CallEndedPayload{
			FromIdentity: dep.Identity,
		}))
		r.unlink(target.Handle())
	}
}

// NotifyNewMessage pushes a persisted chat message to an identity's
// live connection. Best-effort: an offline identity is a silent no-op.
func (r *Relay) NotifyNewMessage(identity string, msg models.MessageView) {
	target, ok := r.reg.Lookup(identity)
	if !ok {
		return
	}
	target.Send(models.NewEvent(models.EventNewMessage, msg))
}

func (r *Relay) declareIdentity(p registry.Peer, raw json.RawMessage) {
	var pl models.DeclareIdentityPayload
	if err := json.Unmarshal(raw, &pl); err != nil || pl.Identity == "" {
		r.sendError(p, "identity is required")
		return
	}
	r.reg.Register(pl.Identity, p)
	r.log.Debug().Str("identity", pl.Identity).Str("handle", p.Handle()).Msg("identity declared")
}

func (r *Relay) dispatchRoom(p registry.Peer, env models.Envelope) {
	switch env.Type {
	case models.EventJoinRoom:
		var pl models.JoinRoomPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil || pl.RoomTag == "" {
			r.sendError(p, "roomTag is required")
			return
		}
		r.joinRoom(p, pl)
	case models.EventLeaveRoom:
		var pl models.LeaveRoomPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil || pl.RoomTag == "" {
			r.sendError(p, "roomTag is required")
			return
		}
		r.leaveRoom(p, pl.RoomTag)
	case models.EventNegotiate:
		var pl models.NegotiatePayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil || pl.ToHandle == "" {
			r.sendError(p, "toHandle is required")
			return
		}
		r.forwardToHandle(p, pl.ToHandle, models.EventNegotiate, models.NegotiateOfferPayload{
			FromHandle: p.Handle(),
			Offer:      pl.Offer,
		})
	case models.EventNegotiateAck:
		var pl models.NegotiateAckPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil || pl.ToHandle == "" {
			r.sendError(p, "toHandle is required")
			return
		}
		r.forwardToHandle(p, pl.ToHandle, models.EventNegotiateFinal, models.NegotiateFinalPayload{
			FromHandle: p.Handle(),
			Answer:     pl.Answer,
		})
	}
}

func (r *Relay) joinRoom(p registry.Peer, pl models.JoinRoomPayload) {
	if pl.Identity != "" {
		r.reg.Register(pl.Identity, p)
	}
	prior := r.reg.JoinRoom(pl.RoomTag, p)

	evt := models.NewEvent(models.EventPeerJoined, models.PeerJoinedPayload{
		Identity: pl.Identity,
		Handle:   p.Handle(),
		RoomTag:  pl.RoomTag,
	})
	for _, member := range prior {
		member.Send(evt)
	}
	r.log.Debug().Str("handle", p.Handle()).Str("room", pl.RoomTag).Int("peers", len(prior)).Msg("joined room")
}

func (r *Relay) leaveRoom(p registry.Peer, roomTag string) {
	remaining := r.reg.LeaveRoom(roomTag, p.Handle())
	evt := models.NewEvent(models.EventPeerLeft, models.PeerLeftPayload{
		Handle:  p.Handle(),
		RoomTag: roomTag,
	})
	for _, member := range remaining {
		member.Send(evt)
	}
}

// forwardToHandle delivers a room-dialect control message to a specific
// peer. Best-effort: a vanished handle drops the message.
func (r *Relay) forwardToHandle(p registry.Peer, toHandle string, t models.EventType, payload any) {
	target, ok := r.reg.PeerByHandle(toHandle)
	if !ok {
		r.log.Debug().Str("toHandle", toHandle).Str("type", string(t)).Msg("target handle gone, dropping")
		return
	}
	target.Send(models.NewEvent(t, payload))
}

func (r *Relay) dispatchDirect(p registry.Peer, env models.Envelope) {
	fromIdentity, ok := r.reg.IdentityOf(p.Handle())
	if !ok {
		r.sendError(p, "declare an identity before call signaling")
		return
	}

	switch env.Type {
	case models.EventCall:
		var pl models.CallPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil || pl.ToIdentity == "" {
			r.sendError(p, "toIdentity is required")
			return
		}
		r.call(p, fromIdentity, pl)
	case models.EventAcceptCall:
		var pl models.AcceptCallPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil || pl.ToIdentity == "" {
			r.sendError(p, "toIdentity is required")
			return
		}
		r.acceptCall(p, fromIdentity, pl)
	case models.EventRelayIce:
		var pl models.RelayIcePayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil || pl.ToIdentity == "" {
			return // candidates are best-effort, drop silently
		}
		r.relayIce(p, fromIdentity, pl)
	case models.EventEndCall:
		var pl models.EndCallPayload
		if err := json.Unmarshal(env.Payload, &pl); err != nil || (pl.ToIdentity == "" && pl.RoomTag == "") {
			r.sendError(p, "toIdentity or roomTag is required")
			return
		}
		r.endCall(p, fromIdentity, pl)
	}
}

// call forwards an offer. The caller always gets exactly one terminal
// signal: either the offer is delivered or a peerUnavailable comes back.
func (r *Relay) call(p registry.Peer, fromIdentity string, pl models.CallPayload) {
	target, ok := r.reg.Lookup(pl.ToIdentity)
	if !ok {
		p.Send(models.NewEvent(models.EventPeerUnavailable, models.PeerUnavailablePayload{
			ToIdentity: pl.ToIdentity,
		}))
		return
	}
	target.Send(models.NewEvent(models.EventIncomingCall, models.IncomingCallPayload{
		FromIdentity: fromIdentity,
		Offer:        pl.Offer,
	}))
	r.link(p.Handle(), pl.ToIdentity, target.Handle(), fromIdentity)
	r.log.Debug().Str("from", fromIdentity).Str("to", pl.ToIdentity).Msg("call forwarded")
}

func (r *Relay) acceptCall(p registry.Peer, fromIdentity string, pl models.AcceptCallPayload) {
	target, ok := r.reg.Lookup(pl.ToIdentity)
	if !ok {
		p.Send(models.NewEvent(models.EventPeerUnavailable, models.PeerUnavailablePayload{
			ToIdentity: pl.ToIdentity,
		}))
		return
	}
	target.Send(models.NewEvent(models.EventCallAccepted, models.CallAcceptedPayload{
		FromIdentity: fromIdentity,
		Answer:       pl.Answer,
	}))
	r.link(p.Handle(), pl.ToIdentity, target.Handle(), fromIdentity)
}

func (r *Relay) relayIce(p registry.Peer, fromIdentity string, pl models.RelayIcePayload) {
	if !r.linked(p.Handle(), pl.ToIdentity) {
		return // call over or never started; discard
	}
	target, ok := r.reg.Lookup(pl.ToIdentity)
	if !ok {
		return
	}
	target.Send(models.NewEvent(models.EventIceCandidate, models.IceCandidatePayload{
		FromIdentity: fromIdentity,
		Candidate:    pl.Candidate,
	}))
}

func (r *Relay) endCall(p registry.Peer, fromIdentity string, pl models.EndCallPayload) {
	if pl.RoomTag != "" {
		evt := models.NewEvent(models.EventCallEnded, models.CallEndedPayload{
			FromIdentity: fromIdentity,
			RoomTag:      pl.RoomTag,
		})
		for _, member := range r.reg.Members(pl.RoomTag, p.Handle()) {
			member.Send(evt)
		}
		return
	}

	r.unlink(p.Handle())
	target, ok := r.reg.Lookup(pl.ToIdentity)
	if !ok {
		return
	}
	r.unlink(target.Handle())
	target.Send(models.NewEvent(models.EventCallEnded, models.CallEndedPayload{
		FromIdentity: fromIdentity,
	}))
}

func (r *Relay) sendError(p registry.Peer, msg string) {
	p.Send(models.NewEvent(models.EventError, models.ErrorPayload{Message: msg}))
}

func (r *Relay) link(callerHandle, calleeIdentity, calleeHandle, callerIdentity string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counterparts[callerHandle] = calleeIdentity
	r.counterparts[calleeHandle] = callerIdentity
}

func (r *Relay) linked(handle, toIdentity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counterparts[handle] == toIdentity
}

func (r *Relay) unlink(handle string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	counterpart := r.counterparts[handle]
	delete(r.counterparts, handle)
	return counterpart
}
