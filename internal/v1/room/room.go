// Package room implements the Room: the entity that composes one Upstream
// Link with the set of downstream Client Sessions sharing a league, and
// enforces the lifecycle rules that make multi-tenant fan-out correct.
package room

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/winfantasy/draft-proxy-server/internal/v1/logging"
	"github.com/winfantasy/draft-proxy-server/internal/v1/metrics"
	"github.com/winfantasy/draft-proxy-server/internal/v1/roomerr"
	"github.com/winfantasy/draft-proxy-server/internal/v1/types"
	"github.com/winfantasy/draft-proxy-server/internal/v1/upstream"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

const retirementGracePeriod = 2 * time.Second

// Room owns one Upstream Link and the downstream Client Sessions sharing
// a league. All public methods serialize through mu so that addClient,
// removeClient, reconnect requests, upstream events and the retirement
// timer never interleave.
type Room struct {
	leagueID       types.LeagueIdType
	upstreamURL    string
	platformUserID string

	heartbeatInterval time.Duration
	connectionTimeout time.Duration

	onRetire func(types.LeagueIdType)

	mu                    sync.Mutex
	primaryDraftPosition  types.DraftPositionType
	upstreamLink          *upstream.Link
	clients               map[types.SessionIdType]*list.Element
	order                 *list.List
	clientSet             set.Set[types.SessionIdType]
	hasSentJoin           bool
	lastHeartbeatAt       *time.Time
	reconnectAttempts     int
	intentionalDisconnect bool
	pendingRetireTimer    *time.Timer
	heartbeatStop         chan struct{}
}

// NewRoom constructs a Room for leagueID. onRetire is invoked when the
// retirement grace period elapses with no clients, and immediately by
// Shutdown, so the caller (the Registry) can drop its own reference; it
// may therefore be invoked more than once.
func NewRoom(
	leagueID types.LeagueIdType,
	upstreamURL, platformUserID string,
	primaryDraftPosition types.DraftPositionType,
	onRetire func(types.LeagueIdType),
	heartbeatInterval, connectionTimeout time.Duration,
) *Room {
	return &Room{
		leagueID:             leagueID,
		upstreamURL:          upstreamURL,
		platformUserID:       platformUserID,
		primaryDraftPosition: primaryDraftPosition,
		heartbeatInterval:    heartbeatInterval,
		connectionTimeout:    connectionTimeout,
		onRetire:             onRetire,
		clients:              make(map[types.SessionIdType]*list.Element),
		order:                list.New(),
		clientSet:            set.New[types.SessionIdType](),
	}
}

// GetLeagueID returns the Room's league identifier.
func (r *Room) GetLeagueID() types.LeagueIdType {
	return r.leagueID
}

// GetUpstreamURL returns the upstream URL this Room currently dials.
func (r *Room) GetUpstreamURL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.upstreamURL
}

// AddClient implements spec.md §4.2 addClient.
func (r *Room) AddClient(session types.SessionInterface, draftPosition types.DraftPositionType) {
	ctx := context.Background()

	r.mu.Lock()
	r.cancelRetireTimerLocked()

	hadClients := r.order.Len() > 0
	linkActive := r.upstreamLink != nil &&
		(r.upstreamLink.State() == upstream.StateOpen || r.upstreamLink.State() == upstream.StateConnecting)

	if hadClients || linkActive {
		logging.Info(ctx, "forcing upstream re-init for new client",
			zap.String("league_id", string(r.leagueID)))
		r.dropLinkLocked(1000, "new client joined — forcing reconnection")
		r.intentionalDisconnect = false
		metrics.UpstreamForcedReinits.Inc()
	}

	r.insertClientLocked(session, draftPosition)
	r.startNewLinkLocked()

	clientsCount := r.order.Len()
	leagueID := r.leagueID
	r.mu.Unlock()

	session.SendJSON(roomJoinedFrame{
		Type:           "room_joined",
		RoomID:         string(leagueID),
		YahooConnected: false,
		ClientsCount:   clientsCount,
		DraftPosition:  int(draftPosition),
	})
}

// RemoveClient implements spec.md §4.2 removeClient.
func (r *Room) RemoveClient(session types.SessionInterface) {
	r.mu.Lock()
	r.removeClientLocked(session)
	empty := r.order.Len() == 0
	if empty {
		r.startRetireTimerLocked()
	}
	r.mu.Unlock()
}

// SendToUpstream implements spec.md §4.2 sendToUpstream.
func (r *Room) SendToUpstream(data []byte) {
	r.mu.Lock()
	link := r.upstreamLink
	r.mu.Unlock()

	ctx := context.Background()
	if link == nil || link.State() != upstream.StateOpen {
		logging.Warn(ctx, "dropping downstream frame: upstream not open",
			zap.String("league_id", string(r.leagueID)))
		return
	}

	if err := link.Send(data); err != nil {
		logging.Warn(ctx, "failed to forward frame to upstream",
			zap.String("league_id", string(r.leagueID)), zap.Error(err))
	}
}

// HandleClientReconnect implements spec.md §4.2 handleClientReconnect.
func (r *Room) HandleClientReconnect(leagueID types.LeagueIdType, draftPosition types.DraftPositionType) error {
	r.mu.Lock()

	if leagueID != r.leagueID {
		r.mu.Unlock()
		return &roomerr.LeagueMismatchError{Expected: string(r.leagueID), Got: string(leagueID)}
	}

	if draftPosition != r.primaryDraftPosition {
		r.primaryDraftPosition = draftPosition
	}

	r.dropLinkLocked(1000, "client-initiated reconnection")
	r.intentionalDisconnect = false
	r.startNewLinkLocked()
	r.mu.Unlock()

	return nil
}

// Shutdown force-retires the Room: every Session is disconnected, the
// upstream link is closed, and the retirement callback fires immediately
// without waiting out the grace period. Used by process shutdown and the
// Status Surface's force-retire operation.
func (r *Room) Shutdown(code int, reason string) {
	r.mu.Lock()
	r.cancelRetireTimerLocked()
	clients := r.snapshotClientsLocked()
	r.intentionalDisconnect = true
	r.dropLinkLocked(code, reason)
	leagueID := r.leagueID
	r.mu.Unlock()

	logging.Info(context.Background(), "room shutting down",
		zap.String("league_id", string(leagueID)), zap.Error(roomerr.ErrShutdownInitiated))

	for _, c := range clients {
		c.Disconnect(code, reason)
	}

	if r.onRetire != nil {
		r.onRetire(leagueID)
	}
}

func (r *Room) insertClientLocked(session types.SessionInterface, draftPosition types.DraftPositionType) {
	session.SetDraftPosition(draftPosition)
	elem := r.order.PushBack(session)
	r.clients[session.GetID()] = elem
	r.clientSet.Insert(session.GetID())
	metrics.RoomClients.WithLabelValues(string(r.leagueID)).Set(float64(r.order.Len()))
}

func (r *Room) removeClientLocked(session types.SessionInterface) {
	id := session.GetID()
	if elem, ok := r.clients[id]; ok {
		r.order.Remove(elem)
		delete(r.clients, id)
		r.clientSet.Delete(id)
	}
	metrics.RoomClients.WithLabelValues(string(r.leagueID)).Set(float64(r.order.Len()))
}

func (r *Room) snapshotClientsLocked() []types.SessionInterface {
	out := make([]types.SessionInterface, 0, r.order.Len())
	for e := r.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(types.SessionInterface))
	}
	return out
}

// startNewLinkLocked dials a fresh Upstream Link if none is currently
// owned. Must be called with mu held; the dial itself runs on its own
// goroutine so the Room is never blocked on I/O.
func (r *Room) startNewLinkLocked() {
	if r.upstreamLink != nil {
		return
	}

	link := upstream.NewLink(string(r.leagueID), r.upstreamURL, r.connectionTimeout)
	link.OnOpen = r.onUpstreamOpen
	link.OnMessage = r.onUpstreamMessage
	link.OnClose = r.onUpstreamClose
	link.OnError = r.onUpstreamError
	r.upstreamLink = link

	go link.Connect(context.Background())
}

// dropLinkLocked detaches the current link's callbacks (so its close
// does not trigger the generic onClose reaction — the caller is already
// handling the transition explicitly) and closes it asynchronously. Must
// be called with mu held.
func (r *Room) dropLinkLocked(code int, reason string) {
	r.stopHeartbeatLocked()
	r.hasSentJoin = false

	if r.upstreamLink == nil {
		return
	}

	old := r.upstreamLink
	old.OnOpen = nil
	old.OnMessage = nil
	old.OnClose = nil
	old.OnError = nil
	r.upstreamLink = nil

	go old.Close(code, reason, true)
}

func (r *Room) cancelRetireTimerLocked() {
	if r.pendingRetireTimer == nil {
		return
	}
	r.pendingRetireTimer.Stop()
	r.pendingRetireTimer = nil
	logging.Info(context.Background(), "cancelled pending room retirement",
		zap.String("league_id", string(r.leagueID)))
}

func (r *Room) startRetireTimerLocked() {
	r.cancelRetireTimerLocked()
	r.pendingRetireTimer = time.AfterFunc(retirementGracePeriod, r.onRetireTimerFired)
}

func (r *Room) onRetireTimerFired() {
	r.mu.Lock()
	if r.order.Len() != 0 {
		r.mu.Unlock()
		return
	}

	r.intentionalDisconnect = true
	r.dropLinkLocked(1000, "room retired")
	r.pendingRetireTimer = nil
	leagueID := r.leagueID
	r.mu.Unlock()

	metrics.RoomRetirements.Inc()
	logging.Info(context.Background(), "room retired after grace period",
		zap.String("league_id", string(leagueID)))

	if r.onRetire != nil {
		r.onRetire(leagueID)
	}
}

type roomJoinedFrame struct {
	Type           string `json:"type"`
	RoomID         string `json:"roomId"`
	YahooConnected bool   `json:"yahooConnected"`
	ClientsCount   int    `json:"clientsCount"`
	DraftPosition  int    `json:"draftPosition"`
}
