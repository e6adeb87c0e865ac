package room

import (
	"github.com/winfantasy/draft-proxy-server/internal/v1/types"
	"github.com/winfantasy/draft-proxy-server/internal/v1/upstream"
)

// Status implements the status snapshot described in spec.md §4.2.
func (r *Room) Status() types.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	positions := make([]int, 0, r.order.Len())
	for e := r.order.Front(); e != nil; e = e.Next() {
		s := e.Value.(types.SessionInterface)
		positions = append(positions, int(s.GetDraftPosition()))
	}

	var lastHeartbeat *int64
	if r.lastHeartbeatAt != nil {
		ms := r.lastHeartbeatAt.UnixMilli()
		lastHeartbeat = &ms
	}

	connected := r.upstreamLink != nil && r.upstreamLink.State() == upstream.StateOpen

	return types.RoomStatus{
		RoomID:                  string(r.leagueID),
		LeagueID:                string(r.leagueID),
		DraftPosition:           int(r.primaryDraftPosition),
		PlatformUserId:          r.platformUserID,
		ClientsCount:            r.order.Len(),
		ClientDraftPositions:    positions,
		YahooConnected:          connected,
		HasJoined:               r.hasSentJoin,
		LastHeartbeat:           lastHeartbeat,
		ReconnectAttempts:       r.reconnectAttempts,
		IsIntentionalDisconnect: r.intentionalDisconnect,
	}
}
