package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"crowdchain/core"
	"crowdchain/observability"
)

const (
	wsWriteTimeout = 10 * time.Second
)

type eventPayload struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor"`
	Timestamp  int64             `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func eventPayloadFrom(rec core.EventRecord) eventPayload {
	payload := eventPayload{Sequence: rec.Sequence, Cursor: rec.Cursor, Timestamp: rec.Timestamp}
	if rec.Event != nil {
		payload.Type = rec.Event.Type
		payload.Attributes = rec.Event.Attributes
	}
	return payload
}

// handleEventsWS streams committed ledger events. The optional cursor query
// parameter replays retained history after that position and the optional
// campaign parameter filters to a single campaign.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	if !s.limiter.allow(s.clientSource(r)) {
		observability.RPC().RecordThrottle("ws_rate_limit")
		http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	campaign := strings.TrimSpace(r.URL.Query().Get("campaign"))
	if campaign != "" {
		if _, err := strconv.ParseUint(campaign, 10, 64); err != nil {
			http.Error(w, "campaign must be an unsigned integer", http.StatusBadRequest)
			return
		}
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, cursor, campaign); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor, campaign string) error {
	ctx = conn.CloseRead(ctx)
	updates, cancel, backlog := s.node.SubscribeEvents(ctx, cursor)
	defer cancel()

	for _, rec := range backlog {
		if !matchesCampaign(rec, campaign) {
			continue
		}
		if err := writeEvent(ctx, conn, rec); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-updates:
			if !ok {
				return nil
			}
			if !matchesCampaign(rec, campaign) {
				continue
			}
			if err := writeEvent(ctx, conn, rec); err != nil {
				return err
			}
		}
	}
}

func matchesCampaign(rec core.EventRecord, campaign string) bool {
	if campaign == "" {
		return true
	}
	return rec.Event != nil && rec.Event.Attributes["campaign"] == campaign
}

func writeEvent(ctx context.Context, conn *websocket.Conn, rec core.EventRecord) error {
	data, err := json.Marshal(eventPayloadFrom(rec))
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
