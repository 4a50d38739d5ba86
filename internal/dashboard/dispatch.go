package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/egregors/plantdash/internal/sensors"
	"github.com/egregors/plantdash/internal/session"
)

type Tone string

const (
	ToneSuccess Tone = "success"
	ToneInfo    Tone = "info"
	ToneWarning Tone = "warning"
	ToneError   Tone = "error"
)

type Message struct {
	Tone Tone
	Text string
}

// Result is what an action produced, ready to be shown.
type Result struct {
	Action   Action
	Moisture int
	Level    sensors.MoistureLevel
	Healthy  bool
	RelayOn  bool
	Messages []Message
}

type Sensors interface {
	Moisture() int
	SensorHealth() bool
}

type Dispatcher struct {
	sensors   Sensors
	readDelay time.Duration
}

// NewDispatcher makes a Dispatcher; readDelay imitates a slow sensor read.
func NewDispatcher(s Sensors, readDelay time.Duration) *Dispatcher {
	return &Dispatcher{sensors: s, readDelay: readDelay}
}

// Dispatch applies the action to st. Only sensor reads can fail, and only
// when ctx is done before the simulated read completes.
func (d *Dispatcher) Dispatch(ctx context.Context, st *session.State, a Action) (Result, error) {
	res := Result{Action: a}

	switch a.Kind {
	case KindMoisture:
		if err := d.wait(ctx); err != nil {
			return res, err
		}
		res.Moisture = d.sensors.Moisture()
		res.Level = sensors.Classify(res.Moisture)
		res.Messages = append(res.Messages, Message{ToneSuccess, fmt.Sprintf("Soil Moisture: %d%%", res.Moisture)})
		switch res.Level {
		case sensors.MoistureLow:
			res.Messages = append(res.Messages, Message{ToneWarning, "⚠️ " + res.Level.Advice()})
		default:
			res.Messages = append(res.Messages, Message{ToneInfo, "✓ " + res.Level.Advice()})
		}
	case KindWaterproof:
		if err := d.wait(ctx); err != nil {
			return res, err
		}
		res.Healthy = d.sensors.SensorHealth()
		if res.Healthy {
			res.Messages = append(res.Messages, Message{ToneSuccess, "✓ Waterproof sensor: OK"})
		} else {
			res.Messages = append(res.Messages, Message{ToneError, "✗ Waterproof sensor: Issue detected"})
		}
	case KindToggle:
		res.RelayOn = st.ToggleRelay(a.Plant, a.Relay)
		res.Messages = append(res.Messages, RelayMessage(a.Relay, res.RelayOn))
	default:
		return res, fmt.Errorf("%w: kind %d", ErrUnknownKey, a.Kind)
	}

	return res, nil
}

// RelayMessage is how a relay state is shown.
func RelayMessage(relay session.RelayID, on bool) Message {
	if on {
		return Message{ToneSuccess, fmt.Sprintf("Relay %d: ON 🟢", relay)}
	}

	return Message{ToneError, fmt.Sprintf("Relay %d: OFF 🔴", relay)}
}

func (d *Dispatcher) wait(ctx context.Context) error {
	if d.readDelay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d.readDelay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
