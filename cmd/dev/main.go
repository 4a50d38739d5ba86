package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/egregors/plantdash/internal/dashboard"
	"github.com/egregors/plantdash/internal/homekit"
	"github.com/egregors/plantdash/internal/metrics"
	"github.com/egregors/plantdash/internal/relay"
	"github.com/egregors/plantdash/internal/sensors"
	"github.com/egregors/plantdash/internal/session"
	"github.com/egregors/plantdash/log"
	"github.com/egregors/plantdash/srv"
)

const (
	addr             = ":8080"
	readDelay        = 300 * time.Millisecond
	sessionTTL       = 5 * time.Minute
	sweepPeriod      = 10 * time.Second
	metricsRetention = 2 * time.Hour
)

// dev runs the dashboard with everything mocked and nothing leaving the box.
func main() {
	log.Debg.On()

	m, dumpFn := metrics.New(metrics.WithRetention(metricsRetention))
	server := srv.New(srv.Opts{
		Addr:        addr,
		SweepPeriod: sweepPeriod,
		Store:       session.New(session.WithTTL(sessionTTL)),
		Dispatcher:  dashboard.NewDispatcher(sensors.NewMock(nil), readDelay),
		HapSrv:      homekit.NoopHap{},
		Relays:      relay.NewMock(),
		Metrics:     m,
		Counters:    metrics.NewProm(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := server.Run(ctx); err != nil {
		log.Erro.Printf("can't run server: %s", err.Error())
		_ = dumpFn()
		os.Exit(1)
	}

	_ = dumpFn()
	log.Info.Println("bye")
}
