package relay

import (
	"sync"

	"github.com/egregors/plantdash/internal/session"
	"github.com/egregors/plantdash/log"
)

// Mock is a relay board MOCK. It switches nothing and only remembers
// how many times each relay was driven, which is handy in tests.
type Mock struct {
	mu    sync.Mutex
	calls map[string]int
}

func NewMock() *Mock {
	return &Mock{calls: make(map[string]int)}
}

func (m *Mock) On(plant session.PlantID, relay session.RelayID) error {
	log.Info.Printf("plant %d relay %d ON (mock)", plant, relay)
	m.count(plant, relay, "on")

	return nil
}

func (m *Mock) Off(plant session.PlantID, relay session.RelayID) error {
	log.Info.Printf("plant %d relay %d OFF (mock)", plant, relay)
	m.count(plant, relay, "off")

	return nil
}

// Calls returns how many times a relay was driven to the given state ("on" or "off").
func (m *Mock) Calls(plant session.PlantID, relay session.RelayID, state string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[key(plant, relay, state)]
}

func (m *Mock) count(plant session.PlantID, relay session.RelayID, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[key(plant, relay, state)]++
}

func key(plant session.PlantID, relay session.RelayID, state string) string {
	return session.RelaySnapshot{Plant: plant, Relay: relay}.Key() + "_" + state
}
