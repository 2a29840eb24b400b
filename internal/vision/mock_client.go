package vision

import (
	"context"
	"sync"
)

// MockClient is a deterministic, table-driven Client for tests. It mirrors
// the shape of an in-memory repository stand-in: the rest of the pipeline
// exercises it exactly as it would a real implementation, used both by
// this package's own tests and by every other component's tests that need
// a deterministic, idempotent vision backend.
type MockClient struct {
	mu sync.Mutex

	HandIDs      map[string]string         // imageRef -> hand ID
	Players      map[string]PlayersPayload // imageRef -> payload
	Errors       map[string]error          // imageRef -> forced error (either call)
	Calls        []string                  // imageRef log, ExtractHandID calls only
	PlayersCalls []string                  // imageRef log, ExtractPlayers calls only
}

// NewMockClient returns an empty MockClient ready for Set* configuration.
func NewMockClient() *MockClient {
	return &MockClient{
		HandIDs: make(map[string]string),
		Players: make(map[string]PlayersPayload),
		Errors:  make(map[string]error),
	}
}

func (m *MockClient) SetHandID(imageRef, handID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HandIDs[imageRef] = handID
}

func (m *MockClient) SetPlayers(imageRef string, payload PlayersPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Players[imageRef] = payload
}

func (m *MockClient) SetError(imageRef string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[imageRef] = err
}

func (m *MockClient) ExtractHandID(_ context.Context, imageRef string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, imageRef)
	if err, ok := m.Errors[imageRef]; ok {
		return "", err
	}
	return m.HandIDs[imageRef], nil
}

func (m *MockClient) ExtractPlayers(_ context.Context, imageRef string) (PlayersPayload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlayersCalls = append(m.PlayersCalls, imageRef)
	if err, ok := m.Errors[imageRef]; ok {
		return PlayersPayload{}, err
	}
	return m.Players[imageRef], nil
}
