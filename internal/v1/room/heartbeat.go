package room

import (
	"context"
	"time"

	"github.com/winfantasy/draft-proxy-server/internal/v1/logging"
	"go.uber.org/zap"
)

const heartbeatByte = "c"

// startHeartbeatLocked starts the per-link heartbeat goroutine. Must be
// called with mu held; stopped by stopHeartbeatLocked on any non-open
// transition.
func (r *Room) startHeartbeatLocked() {
	stop := make(chan struct{})
	r.heartbeatStop = stop
	link := r.upstreamLink
	interval := r.heartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go r.runHeartbeat(link, interval, stop)
}

func (r *Room) runHeartbeat(link interface {
	Send([]byte) error
}, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if err := link.Send([]byte(heartbeatByte)); err != nil {
				logging.Warn(context.Background(), "heartbeat send failed",
					zap.String("league_id", string(r.leagueID)), zap.Error(err))
				return
			}
			r.mu.Lock()
			r.lastHeartbeatAt = &now
			r.mu.Unlock()
		}
	}
}

// stopHeartbeatLocked must be called with mu held.
func (r *Room) stopHeartbeatLocked() {
	if r.heartbeatStop == nil {
		return
	}
	close(r.heartbeatStop)
	r.heartbeatStop = nil
}
