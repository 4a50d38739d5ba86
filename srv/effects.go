package srv

import (
	"context"
	"fmt"
	"time"

	"github.com/egregors/plantdash/internal/dashboard"
	"github.com/egregors/plantdash/internal/events"
	"github.com/egregors/plantdash/internal/sensors"
	"github.com/egregors/plantdash/internal/session"
	"github.com/egregors/plantdash/log"
)

// afterDispatch fans a dispatched action out to the relay board, HomeKit,
// counters, the notifier and the event publisher. None of them can fail
// the user action; errors are only logged.
func (s *Server) afterDispatch(ctx context.Context, sessionID string, res dashboard.Result) {
	a := res.Action
	e := events.Event{
		Key:   a.Key(),
		Plant: int(a.Plant),
		At:    time.Now(),
	}

	var alert string

	switch a.Kind {
	case dashboard.KindToggle:
		s.driveRelay(a.Plant, a.Relay, res.RelayOn)
		s.counters.RelayToggled(int(a.Plant), int(a.Relay), res.RelayOn)

		on := res.RelayOn
		e.Kind, e.Relay, e.On = events.KindRelay, int(a.Relay), &on
	case dashboard.KindMoisture:
		s.hkSrv.SetMoisture(a.Plant, res.Moisture)
		s.counters.MoistureChecked(int(a.Plant), res.Level.String())
		if res.Level == sensors.MoistureLow {
			alert = fmt.Sprintf("Soil moisture is %d%%. %s", res.Moisture, res.Level.Advice())
		}

		moisture := res.Moisture
		e.Kind, e.Moisture, e.Level = events.KindMoisture, &moisture, res.Level.String()
	case dashboard.KindWaterproof:
		s.counters.WaterproofChecked(int(a.Plant), res.Healthy)
		if !res.Healthy {
			alert = "Waterproof sensor: Issue detected"
		}

		healthy := res.Healthy
		e.Kind, e.Healthy = events.KindWaterproof, &healthy
	}

	if alert != "" {
		title := fmt.Sprintf("🌱 Plant %d", a.Plant)
		s.background(ctx, func(ctx context.Context) {
			if err := s.notifier.Notify(ctx, title, alert); err != nil {
				log.Erro.Printf("can't notify: %s", err.Error())
			}
		})
	}

	s.publish(ctx, sessionID, e)
}

func (s *Server) afterCapture(ctx context.Context, sessionID string, img session.Image) {
	s.counters.ImageCaptured()
	s.publish(ctx, sessionID, events.Event{
		Kind:  events.KindCapture,
		Key:   cameraKey,
		Bytes: len(img.Data),
		At:    img.CapturedAt,
	})
}

func (s *Server) driveRelay(plant session.PlantID, relay session.RelayID, on bool) {
	var err error
	if on {
		err = s.relays.On(plant, relay)
	} else {
		err = s.relays.Off(plant, relay)
	}

	if err != nil {
		log.Erro.Printf("can't drive plant %d relay %d: %s", plant, relay, err.Error())
	}
}

func (s *Server) publish(ctx context.Context, sessionID string, e events.Event) {
	s.background(ctx, func(ctx context.Context) {
		if err := s.publisher.Publish(ctx, sessionID, e); err != nil {
			log.Erro.Printf("can't publish %s event: %s", e.Kind, err.Error())
		}
	})
}

// background runs fn detached from the request, so a closed browser tab
// does not cancel a notification half way.
func (s *Server) background(ctx context.Context, fn func(ctx context.Context)) {
	s.bgMu.Lock()
	if s.bgClosed {
		s.bgMu.Unlock()
		log.Debg.Println("server is shutting down, side effect dropped")

		return
	}
	s.bg.Add(1)
	s.bgMu.Unlock()

	go func() {
		defer s.bg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
		defer cancel()

		fn(ctx)
	}()
}

// stopBackground refuses new side effects and waits for the running ones.
func (s *Server) stopBackground() {
	s.bgMu.Lock()
	s.bgClosed = true
	s.bgMu.Unlock()

	s.bg.Wait()
}
