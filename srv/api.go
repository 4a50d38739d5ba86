package srv

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/egregors/plantdash/internal/dashboard"
	"github.com/egregors/plantdash/log"
)

type relayJSON struct {
	Plant int    `json:"plant"`
	Relay int    `json:"relay"`
	On    bool   `json:"on"`
	Key   string `json:"key"`
}

type imageJSON struct {
	ContentType string    `json:"content_type"`
	Bytes       int       `json:"bytes"`
	CapturedAt  time.Time `json:"captured_at"`
}

type stateJSON struct {
	Session string      `json:"session"`
	Relays  []relayJSON `json:"relays"`
	Image   *imageJSON  `json:"image"`
}

type messageJSON struct {
	Tone string `json:"tone"`
	Text string `json:"text"`
}

type resultJSON struct {
	Key      string        `json:"key"`
	Moisture *int          `json:"moisture,omitempty"`
	Level    string        `json:"level,omitempty"`
	Healthy  *bool         `json:"healthy,omitempty"`
	RelayOn  *bool         `json:"relay_on,omitempty"`
	Messages []messageJSON `json:"messages"`
}

func (s *Server) handleAPIState(w http.ResponseWriter, r *http.Request) {
	sid, st := s.session(w, r)

	resp := stateJSON{Session: sid}
	for _, rs := range st.Relays() {
		resp.Relays = append(resp.Relays, relayJSON{
			Plant: int(rs.Plant),
			Relay: int(rs.Relay),
			On:    rs.On,
			Key:   dashboard.Action{Kind: dashboard.KindToggle, Plant: rs.Plant, Relay: rs.Relay}.Key(),
		})
	}

	if img, ok := st.CapturedImage(); ok {
		resp.Image = &imageJSON{
			ContentType: img.ContentType,
			Bytes:       len(img.Data),
			CapturedAt:  img.CapturedAt,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIEvent(w http.ResponseWriter, r *http.Request) {
	sid, st := s.session(w, r)

	res, ok := s.dispatch(w, r, sid, st)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, toResultJSON(res))
}

func toResultJSON(res dashboard.Result) resultJSON {
	out := resultJSON{Key: res.Action.Key()}

	switch res.Action.Kind {
	case dashboard.KindMoisture:
		moisture := res.Moisture
		out.Moisture, out.Level = &moisture, res.Level.String()
	case dashboard.KindWaterproof:
		healthy := res.Healthy
		out.Healthy = &healthy
	case dashboard.KindToggle:
		on := res.RelayOn
		out.RelayOn = &on
	}

	out.Messages = make([]messageJSON, 0, len(res.Messages))
	for _, m := range res.Messages {
		out.Messages = append(out.Messages, messageJSON{Tone: string(m.Tone), Text: m.Text})
	}

	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Erro.Printf("can't encode response: %s", err.Error())
	}
}
