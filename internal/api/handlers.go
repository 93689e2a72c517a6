package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/gochat-relay/internal/server"
	"github.com/npezzotti/gochat-relay/internal/types"
)

type HistoryResponse struct {
	Room    string          `json:"room"`
	History []types.Message `json:"history"`
}

type UsersResponse struct {
	Users []types.Member `json:"users"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *GoChatApp) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) listRooms(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, s.cs.Rooms())
}

func (s *GoChatApp) roomHistory(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if room == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, HistoryResponse{
		Room:    room,
		History: s.cs.History(room),
	})
}

func (s *GoChatApp) roomUsers(w http.ResponseWriter, r *http.Request) {
	room := r.PathValue("room")
	if room == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, UsersResponse{Users: s.cs.Members(room)})
}

// checkOrigin allows requests without an Origin header. With no configured
// origins only same-host requests pass; "*" allows any origin.
func (s *GoChatApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}

	return slices.Contains(s.allowedOrigins, "*") || slices.Contains(s.allowedOrigins, origin)
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.cs, s.log, s.clientOpts)
	if err := client.Start(); err != nil {
		s.log.Printf("start client: %v", err)
		return
	}
	s.log.Printf("session %q opened from %s", client.Id(), r.RemoteAddr)
}
