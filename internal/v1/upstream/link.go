// Package upstream implements the Upstream Link: the proxy's single
// outbound WebSocket connection to the third-party draft service for one
// Room. It dials without an Origin header, relays frames to callbacks
// owned by the Room, and performs no reconnection of its own — that
// policy belongs to the Room.
package upstream

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/winfantasy/draft-proxy-server/internal/v1/logging"
	"github.com/winfantasy/draft-proxy-server/internal/v1/metrics"
	"github.com/winfantasy/draft-proxy-server/internal/v1/roomerr"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// State is one of the five states an Upstream Link instance moves through.
// Transitions are monotonic within a single instance; a fresh connect
// attempt always instantiates a new Link.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotOpen is returned by Send when the link is not in StateOpen.
var ErrNotOpen = roomerr.ErrNotOpen

// ErrSendBufferFull is returned by Send when the outbound queue to the
// writer goroutine is saturated.
var ErrSendBufferFull = errors.New("upstream: send buffer full")

const writeWait = 5 * time.Second

// wsConn is the subset of *websocket.Conn a Link depends on, so tests can
// substitute a fake connection.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Link owns one outbound WebSocket to the upstream draft service.
type Link struct {
	url      string
	leagueID string
	dialer   *websocket.Dialer
	breaker  *gobreaker.CircuitBreaker

	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func(code int, reason string)
	OnError   func(err error)

	mu            sync.Mutex
	state         State
	intentional   bool
	conn          wsConn
	send          chan []byte
	writerDone    chan struct{}
	closeOnce     sync.Once
	closeSendOnce sync.Once
}

// NewLink creates a Link for leagueID that, when connected, dials url.
// dialTimeout bounds the WebSocket handshake.
func NewLink(leagueID, url string, dialTimeout time.Duration) *Link {
	st := gobreaker.Settings{
		Name:        "upstream-dial:" + leagueID,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateClosed:
				v = 0
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(leagueID).Set(v)
		},
	}

	return &Link{
		url:      url,
		leagueID: leagueID,
		dialer: &websocket.Dialer{
			HandshakeTimeout: dialTimeout,
		},
		breaker:    gobreaker.NewCircuitBreaker(st),
		state:      StateIdle,
		send:       make(chan []byte, 64),
		writerDone: make(chan struct{}),
	}
}

// State returns the link's current state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connect is idempotent: a link already connecting or open is left alone.
// Dialing happens synchronously on the calling goroutine; callers that
// need non-blocking behavior should invoke Connect from their own
// goroutine (the Room does this).
func (l *Link) Connect(ctx context.Context) {
	l.mu.Lock()
	if l.state == StateConnecting || l.state == StateOpen {
		l.mu.Unlock()
		return
	}
	l.state = StateConnecting
	l.mu.Unlock()

	headers := http.Header{}
	headers.Set("User-Agent", "YahooFantasyProxy/1.0")
	headers.Set("Accept-Encoding", "gzip, deflate, br")
	headers.Set("Accept-Language", "en-US,en;q=0.9")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Pragma", "no-cache")

	result, err := l.breaker.Execute(func() (interface{}, error) {
		conn, _, dialErr := l.dialer.DialContext(ctx, l.url, headers)
		if dialErr != nil {
			return nil, dialErr
		}
		return conn, nil
	})

	if err != nil {
		metrics.UpstreamDials.WithLabelValues("failure").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) {
			metrics.CircuitBreakerRejections.WithLabelValues(l.leagueID).Inc()
		}
		logging.Warn(ctx, "upstream dial failed",
			zap.String("league_id", l.leagueID), zap.Error(err))
		l.transitionClosedAfterDialFailure()
		l.closeSendOnce.Do(func() { close(l.send) })
		if l.OnError != nil {
			l.OnError(&roomerr.UpstreamDialFailure{LeagueID: l.leagueID, Err: err})
		}
		l.emitClose(0, "dial failed")
		return
	}

	conn := result.(*websocket.Conn)

	l.mu.Lock()
	if l.state != StateConnecting {
		// Close ran while the dial was in flight and already drove the
		// terminal transition; discard the late connection.
		l.mu.Unlock()
		_ = conn.Close()
		return
	}
	l.conn = conn
	l.state = StateOpen
	l.mu.Unlock()

	metrics.UpstreamDials.WithLabelValues("success").Inc()
	logging.Info(ctx, "upstream link open", zap.String("league_id", l.leagueID))

	go l.readPump()
	go l.writePump()

	if l.OnOpen != nil {
		l.OnOpen()
	}
}

func (l *Link) transitionClosedAfterDialFailure() {
	l.mu.Lock()
	l.state = StateClosed
	l.mu.Unlock()
}

// Send enqueues bytes as a text frame. Returns ErrNotOpen if the link is
// not currently open, or ErrSendBufferFull if the writer goroutine isn't
// draining fast enough. Frames are written in submission order by a single
// writer goroutine per connection.
func (l *Link) Send(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateOpen {
		return ErrNotOpen
	}
	select {
	case l.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// writePump is the single goroutine that ever calls conn.WriteMessage for
// this link's data frames, draining l.send in submission order. It exits
// once l.send is closed or a write fails.
func (l *Link) writePump() {
	defer close(l.writerDone)
	for data := range l.send {
		l.mu.Lock()
		conn := l.conn
		l.mu.Unlock()
		if conn == nil {
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logging.Warn(context.Background(), "failed to write upstream frame",
				zap.String("league_id", l.leagueID), zap.Error(err))
			return
		}
	}
}

// Close transitions the link to closing then closed, emitting onClose
// exactly once. Set intentional to suppress any Room-side redial logic
// keyed off that flag.
func (l *Link) Close(code int, reason string, intentional bool) {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.intentional = intentional
	l.state = StateClosing
	conn := l.conn
	l.mu.Unlock()

	l.closeSendOnce.Do(func() { close(l.send) })

	if conn != nil {
		<-l.writerDone // wait for writePump to stop touching conn
		deadline := time.Now().Add(writeWait)
		_ = conn.SetWriteDeadline(deadline)
		closeMsg := websocket.FormatCloseMessage(code, reason)
		_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = conn.Close()
	}

	l.mu.Lock()
	l.state = StateClosed
	l.mu.Unlock()

	l.emitClose(code, reason)
}

// IsIntentional reports whether the most recent Close call was flagged
// intentional.
func (l *Link) IsIntentional() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intentional
}

func (l *Link) emitClose(code int, reason string) {
	l.closeOnce.Do(func() {
		if l.OnClose != nil {
			l.OnClose(code, reason)
		}
	})
}

func (l *Link) readPump() {
	for {
		l.mu.Lock()
		conn := l.conn
		state := l.state
		l.mu.Unlock()

		if state != StateOpen || conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			wasOpen := l.state == StateOpen
			l.state = StateClosed
			l.mu.Unlock()

			if !wasOpen {
				return // Close() already drove the terminal transition
			}

			l.closeSendOnce.Do(func() { close(l.send) })

			if closeErr, ok := err.(*websocket.CloseError); ok {
				l.emitClose(closeErr.Code, closeErr.Text)
			} else {
				if l.OnError != nil {
					l.OnError(&roomerr.UpstreamRuntimeError{LeagueID: l.leagueID, Err: err})
				}
				l.emitClose(0, "read error")
			}
			return
		}

		if l.OnMessage != nil {
			l.OnMessage(data)
		}
	}
}
