package room

import (
	"sync"

	"github.com/winfantasy/draft-proxy-server/internal/v1/types"
)

// mockSession implements types.SessionInterface for testing.
type mockSession struct {
	id            types.SessionIdType
	mu            sync.Mutex
	draftPosition types.DraftPositionType
	sent          []any
	disconnected  bool
	disconnectCode int
}

func newMockSession(id string) *mockSession {
	return &mockSession{id: types.SessionIdType(id)}
}

func (m *mockSession) GetID() types.SessionIdType { return m.id }

func (m *mockSession) GetDraftPosition() types.DraftPositionType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.draftPosition
}

func (m *mockSession) SetDraftPosition(p types.DraftPositionType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.draftPosition = p
}

func (m *mockSession) SendJSON(v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, v)
}

func (m *mockSession) Disconnect(code int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
	m.disconnectCode = code
}

func (m *mockSession) messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.sent))
	copy(out, m.sent)
	return out
}
