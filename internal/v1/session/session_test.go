package session

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/winfantasy/draft-proxy-server/internal/v1/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn implements wsConnection in-memory: messages written by the
// Session land in outbound; messages pushed onto inbound are what the
// Session's readPump will see.
type fakeConn struct {
	mu       sync.Mutex
	outbound [][]byte
	inbound  chan []byte
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.inbound
	if !ok {
		return 0, nil, websocket.ErrCloseSent
	}
	return websocket.TextMessage, data, nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.outbound = append(f.outbound, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbound)
	}
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeConn) pushInbound(data string) {
	f.inbound <- []byte(data)
}

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.outbound))
	copy(out, f.outbound)
	return out
}

// fakeRoom implements types.RoomInterface for testing Session routing.
type fakeRoom struct {
	mu                sync.Mutex
	upstreamSent      [][]byte
	removed           bool
	reconnectErr      error
	reconnectRequests []struct {
		leagueID      types.LeagueIdType
		draftPosition types.DraftPositionType
	}
}

func (f *fakeRoom) GetLeagueID() types.LeagueIdType { return "12345" }
func (f *fakeRoom) GetUpstreamURL() string          { return "ws://unused" }
func (f *fakeRoom) AddClient(types.SessionInterface, types.DraftPositionType) {}
func (f *fakeRoom) RemoveClient(types.SessionInterface) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = true
}
func (f *fakeRoom) SendToUpstream(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.upstreamSent = append(f.upstreamSent, cp)
}
func (f *fakeRoom) HandleClientReconnect(leagueID types.LeagueIdType, draftPosition types.DraftPositionType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnectRequests = append(f.reconnectRequests, struct {
		leagueID      types.LeagueIdType
		draftPosition types.DraftPositionType
	}{leagueID, draftPosition})
	return f.reconnectErr
}
func (f *fakeRoom) Status() types.RoomStatus       { return types.RoomStatus{} }
func (f *fakeRoom) Shutdown(code int, reason string) {}

func (f *fakeRoom) sentToUpstream() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.upstreamSent))
	copy(out, f.upstreamSent)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSession_YahooMessage_ForwardsDataToRoom(t *testing.T) {
	conn := newFakeConn()
	room := &fakeRoom{}
	New("sess-1", conn, room, 1)

	conn.pushInbound(`{"type":"yahoo_message","data":"raw upstream payload"}`)

	waitFor(t, time.Second, func() bool { return len(room.sentToUpstream()) > 0 })
	assert.Equal(t, "raw upstream payload", string(room.sentToUpstream()[0]))
}

func TestSession_NonJSONFrame_ForwardedVerbatim(t *testing.T) {
	conn := newFakeConn()
	room := &fakeRoom{}
	New("sess-1", conn, room, 1)

	conn.pushInbound("not json at all")

	waitFor(t, time.Second, func() bool { return len(room.sentToUpstream()) > 0 })
	assert.Equal(t, "not json at all", string(room.sentToUpstream()[0]))
}

func TestSession_YahooReconnect_Success(t *testing.T) {
	conn := newFakeConn()
	room := &fakeRoom{}
	s := New("sess-1", conn, room, 1)

	conn.pushInbound(`{"type":"yahoo_reconnect","data":{"leagueId":"12345","draftPosition":5}}`)

	waitFor(t, time.Second, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		return len(room.reconnectRequests) > 0
	})
	assert.Equal(t, types.DraftPositionType(5), s.GetDraftPosition())
}

func TestSession_YahooReconnect_FailureSendsErrorFrame(t *testing.T) {
	conn := newFakeConn()
	room := &fakeRoom{reconnectErr: assert.AnError}
	New("sess-1", conn, room, 1)

	conn.pushInbound(`{"type":"yahoo_reconnect","data":{"leagueId":"99999","draftPosition":5}}`)

	waitFor(t, time.Second, func() bool { return len(conn.written()) > 0 })
	var frame yahooErrorFrame
	require.NoError(t, json.Unmarshal(conn.written()[0], &frame))
	assert.Equal(t, "yahoo_error", frame.Type)
	assert.Equal(t, "Failed to reconnect to Yahoo", frame.Error)
}

func TestSession_UnknownType_Ignored(t *testing.T) {
	conn := newFakeConn()
	room := &fakeRoom{}
	New("sess-1", conn, room, 1)

	conn.pushInbound(`{"type":"something_else"}`)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, room.sentToUpstream())
	assert.Empty(t, conn.written())
}

func TestSession_SendJSON_DeliversOverConnection(t *testing.T) {
	conn := newFakeConn()
	room := &fakeRoom{}
	s := New("sess-1", conn, room, 1)

	s.SendJSON(map[string]string{"type": "yahoo_connected"})

	waitFor(t, time.Second, func() bool { return len(conn.written()) > 0 })
	assert.Contains(t, string(conn.written()[0]), "yahoo_connected")
}

func TestSession_ConnectionClose_RemovesFromRoom(t *testing.T) {
	conn := newFakeConn()
	room := &fakeRoom{}
	New("sess-1", conn, room, 1)

	conn.Close()

	waitFor(t, time.Second, func() bool {
		room.mu.Lock()
		defer room.mu.Unlock()
		return room.removed
	})
}

func TestSession_Disconnect_IsIdempotent(t *testing.T) {
	conn := newFakeConn()
	room := &fakeRoom{}
	s := New("sess-1", conn, room, 1)

	s.Disconnect(1001, "Server shutdown")
	require.NotPanics(t, func() { s.Disconnect(1001, "Server shutdown") })
}
