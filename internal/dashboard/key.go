package dashboard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/egregors/plantdash/internal/session"
)

var ErrUnknownKey = errors.New("unknown event key")

type Kind int

const (
	KindMoisture Kind = iota + 1
	KindWaterproof
	KindToggle
)

// Action is a parsed button press.
type Action struct {
	Kind  Kind
	Plant session.PlantID
	Relay session.RelayID
}

// Key is the stable event key of the action, e.g. "p1_r2_toggle".
func (a Action) Key() string {
	switch a.Kind {
	case KindMoisture:
		return fmt.Sprintf("p%d_moisture", a.Plant)
	case KindWaterproof:
		return fmt.Sprintf("p%d_waterproof", a.Plant)
	case KindToggle:
		return fmt.Sprintf("p%d_r%d_toggle", a.Plant, a.Relay)
	default:
		return ""
	}
}

// ParseKey understands p<plant>_moisture, p<plant>_waterproof
// and p<plant>_r<relay>_toggle.
func ParseKey(key string) (Action, error) {
	parts := strings.Split(key, "_")

	plant, ok := parseID(parts[0], "p")
	if !ok || !session.PlantID(plant).Valid() {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	a := Action{Plant: session.PlantID(plant)}
	switch {
	case len(parts) == 2 && parts[1] == "moisture":
		a.Kind = KindMoisture
	case len(parts) == 2 && parts[1] == "waterproof":
		a.Kind = KindWaterproof
	case len(parts) == 3 && parts[2] == "toggle":
		relay, ok := parseID(parts[1], "r")
		if !ok || !session.RelayID(relay).Valid() {
			return Action{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
		}
		a.Kind = KindToggle
		a.Relay = session.RelayID(relay)
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	return a, nil
}

func parseID(s, prefix string) (int, bool) {
	digits, ok := strings.CutPrefix(s, prefix)
	if !ok || digits == "" {
		return 0, false
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}

	// only the form Key produces, no "01" or "+1"
	if strconv.Itoa(n) != digits {
		return 0, false
	}

	return n, true
}
