package signaling

import (
	"encoding/json"
	"strconv"
)

// Control messages originated by the relay. Everything else on the wire is
// client traffic that is forwarded untouched.
const (
	MessageTypePeers = "peers"
	MessageTypePing  = "ping"
)

// PeerCountMessage is sent to every member after a join or leave.
type PeerCountMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// EncodePeerCount returns the wire form of {"type":"peers","count":n}.
func EncodePeerCount(n int) []byte {
	return []byte(`{"type":"` + MessageTypePeers + `","count":` + strconv.Itoa(n) + `}`)
}

// pingMessage is the liveness probe body.
var pingMessage = []byte(`{"type":"` + MessageTypePing + `"}`)

// PingMessage returns a copy of the liveness probe body.
func PingMessage() []byte {
	return append([]byte(nil), pingMessage...)
}

// messageType extracts the "type" field of a JSON object for logging. It
// reports false for non-JSON text, non-objects and non-string types.
func messageType(data []byte) (string, bool) {
	var envelope struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == nil {
		return "", false
	}
	return *envelope.Type, true
}
