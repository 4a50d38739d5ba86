package session

import (
	"fmt"
	"sync"
	"time"
)

type PlantID int

type RelayID int

const (
	Plants         = 2
	RelaysPerPlant = 2
	FirstID        = 1
)

func (p PlantID) Valid() bool { return p >= FirstID && int(p) <= Plants }

func (r RelayID) Valid() bool { return r >= FirstID && int(r) <= RelaysPerPlant }

// Image is the last camera capture of a session.
type Image struct {
	Data        []byte
	ContentType string
	CapturedAt  time.Time
}

// RelaySnapshot is a point-in-time copy of one relay flag.
type RelaySnapshot struct {
	Plant PlantID
	Relay RelayID
	On    bool
}

func (r RelaySnapshot) Key() string {
	return fmt.Sprintf("p%d_r%d", r.Plant, r.Relay)
}

// State holds everything a single browsing session owns:
// four relay flags, all OFF at start, and at most one captured image.
type State struct {
	mu sync.Mutex

	relays   [Plants][RelaysPerPlant]bool
	image    *Image
	lastSeen time.Time
}

func NewState() *State {
	return &State{lastSeen: time.Now()}
}

func (s *State) Relay(plant PlantID, relay RelayID) bool {
	if !plant.Valid() || !relay.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.relays[plant-FirstID][relay-FirstID]
}

// ToggleRelay flips one relay and returns its new value.
// Unknown ids are ignored and report false.
func (s *State) ToggleRelay(plant PlantID, relay RelayID) bool {
	if !plant.Valid() || !relay.Valid() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := !s.relays[plant-FirstID][relay-FirstID]
	s.relays[plant-FirstID][relay-FirstID] = v

	return v
}

// Relays returns all relay flags ordered by plant, then relay.
func (s *State) Relays() []RelaySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]RelaySnapshot, 0, Plants*RelaysPerPlant)
	for p := range s.relays {
		for r, on := range s.relays[p] {
			res = append(res, RelaySnapshot{
				Plant: PlantID(p + FirstID),
				Relay: RelayID(r + FirstID),
				On:    on,
			})
		}
	}

	return res
}

func (s *State) CapturedImage() (Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.image == nil {
		return Image{}, false
	}

	return *s.image, true
}

// SetCapturedImage replaces the previous capture, if any.
func (s *State) SetCapturedImage(img Image) {
	data := make([]byte, len(img.Data))
	copy(data, img.Data)
	img.Data = data

	s.mu.Lock()
	defer s.mu.Unlock()

	s.image = &img
}

func (s *State) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = now
}

func (s *State) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastSeen
}
