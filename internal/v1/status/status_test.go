package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/winfantasy/draft-proxy-server/internal/v1/registry"
	"github.com/winfantasy/draft-proxy-server/internal/v1/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeUpstream(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(httpURL string) string {
	u, _ := url.Parse(httpURL)
	u.Scheme = "ws"
	return u.String()
}

type mockSession struct{ id types.SessionIdType }

func (m *mockSession) GetID() types.SessionIdType                 { return m.id }
func (m *mockSession) GetDraftPosition() types.DraftPositionType  { return 1 }
func (m *mockSession) SetDraftPosition(types.DraftPositionType)   {}
func (m *mockSession) SendJSON(v any)                             {}
func (m *mockSession) Disconnect(code int, reason string)         {}

func newTestServer(t *testing.T) (*gin.Engine, *registry.Registry) {
	gin.SetMode(gin.TestMode)
	reg := registry.New(30*time.Second, 2*time.Second)
	surface := New(reg)
	r := gin.New()
	surface.RegisterRoutes(r)
	return r, reg
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, target any) int {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if target != nil && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target))
	}
	return rec.Code
}

func TestHealth_NoRooms(t *testing.T) {
	r, _ := newTestServer(t)

	var resp healthResponse
	code := doJSON(t, r, http.MethodGet, "/health", &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.ActiveRooms)
	assert.Empty(t, resp.Rooms)
}

func TestHealth_ReflectsRoomsAndClients(t *testing.T) {
	r, reg := newTestServer(t)
	fu := newFakeUpstream(t)
	defer fu.Close()

	room, _ := reg.GetOrCreate("12345", registry.NewRoomArgs{UpstreamURL: wsURL(fu.URL), PlatformUserId: "user-a", DraftPosition: 1})
	room.AddClient(&mockSession{id: "sess-1"}, 1)

	var resp healthResponse
	doJSON(t, r, http.MethodGet, "/health", &resp)
	assert.Equal(t, 1, resp.ActiveRooms)
	assert.Equal(t, 1, resp.TotalClients)
	assert.Contains(t, resp.Rooms, "12345")
}

func TestListRooms_ReturnsStatusesPerRoom(t *testing.T) {
	r, reg := newTestServer(t)
	fu := newFakeUpstream(t)
	defer fu.Close()
	reg.GetOrCreate("12345", registry.NewRoomArgs{UpstreamURL: wsURL(fu.URL), PlatformUserId: "user-a", DraftPosition: 1})

	var resp roomListResponse
	code := doJSON(t, r, http.MethodGet, "/rooms", &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, resp.TotalRooms)
	require.Len(t, resp.Rooms, 1)
	assert.Equal(t, "12345", resp.Rooms[0].LeagueID)
}

func TestRoomStatus_ReturnsSingleRoom(t *testing.T) {
	r, reg := newTestServer(t)
	fu := newFakeUpstream(t)
	defer fu.Close()
	reg.GetOrCreate("12345", registry.NewRoomArgs{UpstreamURL: wsURL(fu.URL), PlatformUserId: "user-a", DraftPosition: 1})

	var resp types.RoomStatus
	code := doJSON(t, r, http.MethodGet, "/rooms/12345/status", &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "12345", resp.LeagueID)
}

func TestRoomStatus_404WhenAbsent(t *testing.T) {
	r, _ := newTestServer(t)
	code := doJSON(t, r, http.MethodGet, "/rooms/missing/status", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestForceRetire_RemovesRoom(t *testing.T) {
	r, reg := newTestServer(t)
	fu := newFakeUpstream(t)
	defer fu.Close()
	reg.GetOrCreate("12345", registry.NewRoomArgs{UpstreamURL: wsURL(fu.URL), PlatformUserId: "user-a", DraftPosition: 1})

	code := doJSON(t, r, http.MethodDelete, "/rooms/12345", nil)
	assert.Equal(t, http.StatusOK, code)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, ok := reg.Get("12345"); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("room was not removed after force retire")
}

func TestForceRetire_404WhenAbsent(t *testing.T) {
	r, _ := newTestServer(t)
	code := doJSON(t, r, http.MethodDelete, "/rooms/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}
