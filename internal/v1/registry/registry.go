// Package registry implements the Room Registry: the process-wide mapping
// from league identifier to Room.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/winfantasy/draft-proxy-server/internal/v1/logging"
	"github.com/winfantasy/draft-proxy-server/internal/v1/metrics"
	"github.com/winfantasy/draft-proxy-server/internal/v1/room"
	"github.com/winfantasy/draft-proxy-server/internal/v1/types"
	"go.uber.org/zap"
)

// NewRoomArgs carries the fields needed to instantiate a Room. Registry
// doesn't interpret them beyond passing them to room.NewRoom.
type NewRoomArgs struct {
	UpstreamURL    string
	PlatformUserId string
	DraftPosition  types.DraftPositionType
}

// Registry serializes creation and retirement of Rooms. It is intended to
// be constructed once per process and injected into the Acceptor and the
// Status Surface, never reached into as a global.
type Registry struct {
	mu                sync.Mutex
	rooms             map[types.LeagueIdType]types.RoomInterface
	heartbeatInterval time.Duration
	connectionTimeout time.Duration
}

// New constructs an empty Registry. heartbeatInterval and connectionTimeout
// are applied to every Room it creates.
func New(heartbeatInterval, connectionTimeout time.Duration) *Registry {
	return &Registry{
		rooms:             make(map[types.LeagueIdType]types.RoomInterface),
		heartbeatInterval: heartbeatInterval,
		connectionTimeout: connectionTimeout,
	}
}

// GetOrCreate implements spec.md §4.3 getOrCreate.
func (reg *Registry) GetOrCreate(leagueID types.LeagueIdType, args NewRoomArgs) (types.RoomInterface, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[leagueID]; ok {
		return r, false
	}

	r := reg.newRoomLocked(leagueID, args)
	return r, true
}

// SwapIfUrlChanged implements spec.md §4.3 swapIfUrlChanged. If a Room
// already exists for leagueID under a different upstream URL, it is torn
// down (idempotent via Room.Shutdown) before the caller's subsequent
// GetOrCreate call creates the replacement.
func (reg *Registry) SwapIfUrlChanged(leagueID types.LeagueIdType, incomingURL string) {
	reg.mu.Lock()
	existing, ok := reg.rooms[leagueID]
	if !ok || existing.GetUpstreamURL() == incomingURL {
		reg.mu.Unlock()
		return
	}
	delete(reg.rooms, leagueID)
	metrics.ActiveRooms.Dec()
	reg.mu.Unlock()

	logging.Info(context.Background(), "upstream url changed, replacing room",
		zap.String("league_id", string(leagueID)))
	existing.Shutdown(1000, "upstream url changed")
}

// Remove is called by a Room on retirement. It is safe to call more than
// once for the same leagueID.
func (reg *Registry) Remove(leagueID types.LeagueIdType) {
	reg.mu.Lock()
	_, ok := reg.rooms[leagueID]
	if ok {
		delete(reg.rooms, leagueID)
	}
	reg.mu.Unlock()

	if ok {
		metrics.ActiveRooms.Dec()
		logging.Info(context.Background(), "room removed from registry",
			zap.String("league_id", string(leagueID)))
	}
}

// Get returns the Room for leagueID, if any.
func (reg *Registry) Get(leagueID types.LeagueIdType) (types.RoomInterface, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[leagueID]
	return r, ok
}

// List returns a snapshot of every active Room, for the Status Surface.
func (reg *Registry) List() []types.RoomInterface {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]types.RoomInterface, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// Shutdown force-retires every Room, used by process shutdown.
func (reg *Registry) Shutdown(code int, reason string) {
	for _, r := range reg.List() {
		r.Shutdown(code, reason)
	}
}

func (reg *Registry) newRoomLocked(leagueID types.LeagueIdType, args NewRoomArgs) types.RoomInterface {
	r := room.NewRoom(
		leagueID,
		args.UpstreamURL,
		args.PlatformUserId,
		args.DraftPosition,
		reg.Remove,
		reg.heartbeatInterval,
		reg.connectionTimeout,
	)
	reg.rooms[leagueID] = r
	metrics.ActiveRooms.Inc()
	logging.Info(context.Background(), "room created",
		zap.String("league_id", string(leagueID)))
	return r
}
