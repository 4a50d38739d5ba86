package events

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
)

// sessionNamespace seeds the public ids derived from session ids.
var sessionNamespace = uuid.MustParse("6f1c0f3e-5d0a-4c39-9a4e-2b7f3c8d1e55")

type Kind string

const (
	KindMoisture   Kind = "moisture"
	KindWaterproof Kind = "waterproof"
	KindRelay      Kind = "relay"
	KindCapture    Kind = "capture"
)

// Event is what gets published after a dashboard action.
type Event struct {
	Kind     Kind      `json:"kind"`
	Key      string    `json:"key"`
	Plant    int       `json:"plant,omitempty"`
	Relay    int       `json:"relay,omitempty"`
	On       *bool     `json:"on,omitempty"`
	Moisture *int      `json:"moisture,omitempty"`
	Level    string    `json:"level,omitempty"`
	Healthy  *bool     `json:"healthy,omitempty"`
	Bytes    int       `json:"bytes,omitempty"`
	At       time.Time `json:"at"`
}

type Noop struct{}

func (Noop) Publish(_ context.Context, _ string, _ Event) error { return nil }

func (Noop) Close() {}

// PublicID maps a session id to a stable id that is safe to show to
// third parties. The session id can't be recovered from it.
func PublicID(sessionID string) string {
	return uuid.NewSHA1(sessionNamespace, []byte(sessionID)).String()
}

// Topic is where events of one session go: <prefix>/sessions/<public id>/events.
func Topic(prefix, sessionID string) string {
	return path.Join(prefix, "sessions", PublicID(sessionID), "events")
}
