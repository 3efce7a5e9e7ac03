package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"nanogov/governor/pkg/decisionlog"
	"nanogov/governor/pkg/stream"
)

// EventEntry is the stream event type of a backlog entry replayed on
// connect.
const EventEntry = "entry"

const streamWriteTimeout = 5 * time.Second

// DecisionsResponse is the body of GET /v1/decisions.
type DecisionsResponse struct {
	Cursor   uint64              `json:"cursor"`
	Capacity int                 `json:"capacity"`
	Entries  []decisionlog.Entry `json:"entries"`
}

// handleDecisions returns the retained log entries, optionally only those
// after ?since=<seq>.
func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	since, ok := parseSince(w, r)
	if !ok {
		return
	}
	entries := s.deps.Log.Since(since)
	if entries == nil {
		entries = []decisionlog.Entry{}
	}
	writeJSON(w, http.StatusOK, DecisionsResponse{
		Cursor:   s.deps.Log.Cursor(),
		Capacity: s.deps.Log.Capacity(),
		Entries:  entries,
	})
}

// handleStream upgrades to a websocket and sends a ready event, then the
// retained entries after ?since= when given, then live decision and
// admission events until either side goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "stream unavailable", "")
		return
	}
	since, ok := parseSince(w, r)
	if !ok {
		return
	}
	backlog := r.URL.Query().Has("since")

	// Streams outlive the server's read and write timeouts.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Subscribe before reading the backlog so no entry falls in between.
	sub := s.deps.Hub.Subscribe(s.config.Server.StreamBuffer)
	defer s.deps.Hub.Unsubscribe(sub)

	ctx := conn.CloseRead(r.Context())
	write := func(evt stream.Event) bool {
		writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
		defer cancel()
		return wsjson.Write(writeCtx, conn, evt) == nil
	}

	if !write(stream.NewEvent(stream.EventReady, map[string]uint64{"cursor": s.deps.Log.Cursor()})) {
		return
	}
	if backlog {
		for _, e := range s.deps.Log.Since(since) {
			if !write(stream.NewEvent(EventEntry, e)) {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			if !write(evt) {
				_ = conn.Close(websocket.StatusPolicyViolation, "write failed")
				return
			}
		}
	}
}

func parseSince(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0, true
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "since must be a sequence number", "")
		return 0, false
	}
	return seq, true
}
