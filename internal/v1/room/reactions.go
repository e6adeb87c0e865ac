package room

import (
	"context"

	"github.com/winfantasy/draft-proxy-server/internal/v1/logging"
	"go.uber.org/zap"
)

// onUpstreamOpen implements the onOpen reaction in spec.md §4.2: reset the
// reconnect counter, send the join frame, start the heartbeat ticker, and
// tell every current Session the upstream is connected.
func (r *Room) onUpstreamOpen() {
	ctx := context.Background()

	r.mu.Lock()
	r.reconnectAttempts = 0
	r.hasSentJoin = false
	frame := r.composeJoinFrameLocked()
	link := r.upstreamLink
	var sendErr error
	if link != nil {
		sendErr = link.Send([]byte(frame))
	}
	if sendErr == nil {
		r.hasSentJoin = true
	}
	r.startHeartbeatLocked()
	r.mu.Unlock()

	if sendErr != nil {
		logging.Error(ctx, "failed to send join frame",
			zap.String("league_id", string(r.leagueID)), zap.Error(sendErr))
	}

	r.broadcast(yahooConnectedFrame{
		Type:    "yahoo_connected",
		Message: "Connected to Yahoo WebSocket",
	})
}

// onUpstreamMessage implements the onMessage reaction: fan the inbound
// frame out to every Session, preserving arrival order. The Upstream
// Link's read pump calls this synchronously and serially, so arrival
// order is preserved without extra locking here.
func (r *Room) onUpstreamMessage(data []byte) {
	r.broadcast(yahooMessageFrame{
		Type: "yahoo_message",
		Data: string(data),
	})
}

// onUpstreamClose implements the spontaneous onClose reaction: stop the
// heartbeat, drop the link reference, and tell every Session. This does
// NOT run for Room-initiated closes (forced re-init, reconnect,
// retirement) — those detach the callback before closing, per
// dropLinkLocked.
func (r *Room) onUpstreamClose(code int, reason string) {
	r.mu.Lock()
	r.stopHeartbeatLocked()
	r.hasSentJoin = false
	r.upstreamLink = nil
	r.mu.Unlock()

	r.broadcast(yahooDisconnectedFrame{
		Type:   "yahoo_disconnected",
		Code:   code,
		Reason: reason,
	})
}

// onUpstreamError implements the onError reaction. The Link contract
// guarantees onClose always follows, so no state transition happens here.
func (r *Room) onUpstreamError(err error) {
	r.broadcast(yahooErrorFrame{
		Type:  "yahoo_error",
		Error: err.Error(),
	})
}

func (r *Room) broadcast(msg any) {
	r.mu.Lock()
	clients := r.snapshotClientsLocked()
	r.mu.Unlock()

	for _, c := range clients {
		c.SendJSON(msg)
	}
}

type yahooConnectedFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type yahooMessageFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type yahooDisconnectedFrame struct {
	Type   string `json:"type"`
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

type yahooErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}
