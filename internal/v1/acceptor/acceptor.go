// Package acceptor implements the Connection Acceptor: the HTTP→WebSocket
// boundary that validates incoming draft connections and wires them into a
// Room.
package acceptor

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/winfantasy/draft-proxy-server/internal/v1/logging"
	"github.com/winfantasy/draft-proxy-server/internal/v1/ratelimit"
	"github.com/winfantasy/draft-proxy-server/internal/v1/registry"
	"github.com/winfantasy/draft-proxy-server/internal/v1/roomerr"
	"github.com/winfantasy/draft-proxy-server/internal/v1/session"
	"github.com/winfantasy/draft-proxy-server/internal/v1/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Path is the fixed downstream WebSocket path.
const Path = "/yahoo/websocket/connection"

const missingParamsReason = "Missing required parameters: leagueId, draftPosition, websocketUrl"

// Acceptor upgrades validated downstream connections and hands them to the
// Registry.
type Acceptor struct {
	registry  *registry.Registry
	rateLimit *ratelimit.RateLimiter
	upgrader  websocket.Upgrader
}

// New constructs an Acceptor backed by reg and rl.
func New(reg *registry.Registry, rl *ratelimit.RateLimiter) *Acceptor {
	return &Acceptor{
		registry:  reg,
		rateLimit: rl,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
			WriteBufferPool: &sync.Pool{
				New: func() any { return make([]byte, 4096) },
			},
		},
	}
}

type connectParams struct {
	leagueID       string
	draftPosition  int
	websocketURL   string
	platformUserId string
}

func parseConnectParams(c *gin.Context) (connectParams, bool) {
	leagueID := c.Query("leagueId")
	websocketURL := c.Query("websocketUrl")
	draftPositionStr := c.Query("draftPosition")
	platformUserId := c.DefaultQuery("platformUserId", "unknown")

	if leagueID == "" || websocketURL == "" || draftPositionStr == "" {
		return connectParams{}, false
	}

	draftPosition, err := strconv.Atoi(draftPositionStr)
	if err != nil || draftPosition < 1 {
		return connectParams{}, false
	}

	return connectParams{
		leagueID:       leagueID,
		draftPosition:  draftPosition,
		websocketURL:   websocketURL,
		platformUserId: platformUserId,
	}, true
}

// HandleConnect implements spec.md §4.5. It is registered as the gin
// handler for Path.
func (a *Acceptor) HandleConnect(c *gin.Context) {
	if !a.rateLimit.CheckWebSocket(c) {
		return
	}

	params, ok := parseConnectParams(c)

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "failed to upgrade downstream connection", zap.Error(err))
		return
	}

	if !ok {
		logging.Warn(c.Request.Context(), "rejected handshake", zap.Error(roomerr.ErrInvalidHandshake))
		closeWithReason(conn, 1008, missingParamsReason)
		return
	}

	leagueID := types.LeagueIdType(params.leagueID)
	sessionID := types.SessionIdType(uuid.NewString())

	a.registry.SwapIfUrlChanged(leagueID, params.websocketURL)
	room, created := a.registry.GetOrCreate(leagueID, registry.NewRoomArgs{
		UpstreamURL:    params.websocketURL,
		PlatformUserId: params.platformUserId,
		DraftPosition:  types.DraftPositionType(params.draftPosition),
	})

	logging.Info(context.Background(), "accepted downstream connection",
		zap.String("session_id", string(sessionID)),
		zap.String("league_id", params.leagueID),
		zap.Bool("room_created", created))

	sess := session.New(sessionID, conn, room, types.DraftPositionType(params.draftPosition))
	room.AddClient(sess, types.DraftPositionType(params.draftPosition))
}

func closeWithReason(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}
