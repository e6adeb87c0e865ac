// Package session implements the Client Session: the wrapper around one
// downstream WebSocket that parses control frames and routes payloads to
// its Room.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/winfantasy/draft-proxy-server/internal/v1/logging"
	"github.com/winfantasy/draft-proxy-server/internal/v1/metrics"
	"github.com/winfantasy/draft-proxy-server/internal/v1/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 64
)

// wsConnection is the subset of *websocket.Conn the Session depends on, so
// tests can substitute a fake.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Session wraps one downstream WebSocket connection. It implements
// types.SessionInterface.
type Session struct {
	conn wsConnection
	room types.RoomInterface
	id   types.SessionIdType

	mu            sync.RWMutex
	draftPosition types.DraftPositionType

	send      chan []byte
	closeOnce sync.Once
}

// New constructs a Session bound to conn and room, and starts its read and
// write pumps.
func New(id types.SessionIdType, conn wsConnection, room types.RoomInterface, draftPosition types.DraftPositionType) *Session {
	s := &Session{
		conn:          conn,
		room:          room,
		id:            id,
		draftPosition: draftPosition,
		send:          make(chan []byte, sendBufferSize),
	}

	metrics.IncDownstreamConnection()
	go s.writePump()
	go s.readPump()

	return s
}

func (s *Session) GetID() types.SessionIdType { return s.id }

func (s *Session) GetDraftPosition() types.DraftPositionType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draftPosition
}

func (s *Session) SetDraftPosition(p types.DraftPositionType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draftPosition = p
}

// SendJSON marshals v and enqueues it for delivery. A full send buffer
// closes the session rather than blocking the Room.
func (s *Session) SendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal downstream frame",
			zap.String("session_id", string(s.id)), zap.Error(err))
		return
	}

	select {
	case s.send <- data:
	default:
		logging.Warn(context.Background(), "downstream send buffer full, closing slow session",
			zap.String("session_id", string(s.id)))
		s.Disconnect(1011, "slow consumer")
	}
}

// Disconnect closes the downstream connection with the given close code and
// reason. Safe to call more than once.
func (s *Session) Disconnect(code int, reason string) {
	s.closeOnce.Do(func() {
		deadline := time.Now().Add(writeWait)
		_ = s.conn.SetWriteDeadline(deadline)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
		_ = s.conn.Close()
		close(s.send)
	})
}

type yahooMessagePayload struct {
	LeagueID      string `json:"leagueId"`
	DraftPosition int    `json:"draftPosition"`
}

type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type yahooErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// readPump implements spec.md §4.4's frame interpretation order.
func (s *Session) readPump() {
	ctx := context.Background()
	defer func() {
		s.room.RemoveClient(s)
		s.Disconnect(1000, "")
		metrics.DecDownstreamConnection()
	}()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		s.handleInbound(ctx, data)
	}
}

func (s *Session) handleInbound(ctx context.Context, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		s.room.SendToUpstream(data)
		return
	}

	switch frame.Type {
	case "yahoo_message":
		var payload string
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			logging.Debug(ctx, "malformed yahoo_message frame",
				zap.String("session_id", string(s.id)))
			return
		}
		s.room.SendToUpstream([]byte(payload))

	case "yahoo_reconnect":
		var req yahooMessagePayload
		if err := json.Unmarshal(frame.Data, &req); err != nil {
			s.SendJSON(yahooErrorFrame{Type: "yahoo_error", Error: "Failed to reconnect to Yahoo"})
			return
		}
		if err := s.room.HandleClientReconnect(types.LeagueIdType(req.LeagueID), types.DraftPositionType(req.DraftPosition)); err != nil {
			logging.Warn(ctx, "client reconnect failed",
				zap.String("session_id", string(s.id)), zap.Error(err))
			s.SendJSON(yahooErrorFrame{Type: "yahoo_error", Error: "Failed to reconnect to Yahoo"})
			return
		}
		s.SetDraftPosition(types.DraftPositionType(req.DraftPosition))

	default:
		logging.Debug(ctx, "ignoring unknown control frame type",
			zap.String("session_id", string(s.id)), zap.String("type", frame.Type))
	}
}

func (s *Session) writePump() {
	defer s.conn.Close()

	for message := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Warn(context.Background(), "error writing downstream frame",
				zap.String("session_id", string(s.id)), zap.Error(err))
			return
		}
	}
}
