package httpserver

import (
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-room-signal/internal/metrics"
)

type iceResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

// handleICE returns the ICE servers both peers of a room should use. With TURN
// REST enabled, every TURN entry gets a freshly minted credential.
func (s *Server) handleICE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	if err := s.iceError(); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}

	servers := s.cfg.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}

	if s.turn != nil && hasTURNServer(servers) {
		creds, err := s.turn.Random()
		if err != nil {
			s.log.Error("turn rest credential generation failed", "err", err)
			WriteJSON(w, http.StatusInternalServerError, map[string]any{"error": "turn credential generation failed"})
			return
		}
		servers = withTURNRESTCredentials(servers, creds.Username, creds.Credential)
		s.metrics.Inc(metrics.TURNRESTCredentialIssued)
	}

	WriteJSON(w, http.StatusOK, iceResponse{ICEServers: servers})
}

func hasTURNServer(servers []webrtc.ICEServer) bool {
	for _, server := range servers {
		if iceServerHasTURNURL(server) {
			return true
		}
	}
	return false
}

func withTURNRESTCredentials(servers []webrtc.ICEServer, username, credential string) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, len(servers))
	for i, server := range servers {
		out[i] = server
		if iceServerHasTURNURL(server) {
			out[i].Username = username
			out[i].Credential = credential
		}
	}
	return out
}

func iceServerHasTURNURL(server webrtc.ICEServer) bool {
	for _, raw := range server.URLs {
		scheme, _, _ := strings.Cut(strings.TrimSpace(raw), ":")
		switch strings.ToLower(scheme) {
		case "turn", "turns":
			return true
		}
	}
	return false
}
