// Package signaling relays WebRTC negotiation traffic between the members of
// a room.
//
// Each browser connects to GET /ws/{code}. Text frames (offers, answers, ICE
// candidates, file metadata) and binary frames (file chunks) from one member
// are forwarded verbatim to every other member of the same room; the relay
// never interprets SDP or candidates. Whenever membership changes the
// remaining members receive {"type":"peers","count":N}.
//
// A connection that stays silent for the idle timeout is sent
// {"type":"ping"} plus a WebSocket ping. If nothing (no frame and no pong)
// arrives during the next idle window the session is closed.
package signaling
