package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brutella/hap"
	"github.com/brutella/hap/accessory"

	"github.com/egregors/plantdash/internal/config"
	"github.com/egregors/plantdash/internal/dashboard"
	"github.com/egregors/plantdash/internal/events"
	"github.com/egregors/plantdash/internal/homekit"
	"github.com/egregors/plantdash/internal/metrics"
	"github.com/egregors/plantdash/internal/notifier"
	"github.com/egregors/plantdash/internal/relay"
	"github.com/egregors/plantdash/internal/sensors"
	"github.com/egregors/plantdash/internal/session"
	"github.com/egregors/plantdash/log"
	"github.com/egregors/plantdash/srv"
)

const metricsAutosave = 60 * time.Minute

var revision = "HEAD"

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Erro.Printf("can't load config: %s", err.Error())
		os.Exit(1)
	}

	log.Debg.Enable(cfg.LogDebug)
	log.Info.Printf("🌱 revision: %s", revision)

	m, dumpFn := makeMetrics(cfg)
	publisher := makePublisher(cfg)

	server := srv.New(srv.Opts{
		Addr:         cfg.Addr(),
		SweepPeriod:  cfg.SweepPeriod,
		MaxImageSize: cfg.MaxImageSize,
		Store:        session.New(session.WithTTL(cfg.SessionTTL)),
		Dispatcher:   dashboard.NewDispatcher(sensors.NewMock(nil), cfg.ReadDelay),
		HapSrv:       makeHkSrv(cfg),
		Relays:       relay.NewMock(),
		Notifier:     makeNotifier(cfg),
		Publisher:    publisher,
		Metrics:      m,
		Counters:     metrics.NewProm(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = server.Run(ctx)

	log.Info.Println("server shutdown...")
	publisher.Close()

	log.Info.Println("try make a dump to restore it next time...")
	if dErr := dumpFn(); dErr != nil {
		log.Erro.Printf("can't make a metrics dump: %s", dErr.Error())
	}

	if err != nil {
		log.Erro.Printf("can't run server: %s", err.Error())
		os.Exit(1)
	}

	log.Info.Println("bye")
}

func makeMetrics(cfg *config.Config) (srv.Metrics, metrics.DumpFn) {
	opts := []metrics.Option{metrics.WithRetention(cfg.MetricsRetention)}
	if cfg.MetricsDump != "" {
		opts = append(opts, metrics.WithBackup(cfg.MetricsDump), metrics.WithAutosave(metricsAutosave))
	}

	return metrics.New(opts...)
}

type closingPublisher interface {
	srv.Publisher
	Close()
}

func makePublisher(cfg *config.Config) closingPublisher {
	if cfg.MQTTBroker == "" {
		log.Info.Println("MQTT_BROKER isn't set, events are not published")

		return events.Noop{}
	}

	p, err := events.NewMQTT(events.MQTTOptions{
		BrokerURL:   cfg.MQTTBroker,
		ClientID:    cfg.MQTTClientID,
		Username:    cfg.MQTTUsername,
		Password:    cfg.MQTTPassword,
		TopicPrefix: cfg.MQTTTopicPrefix,
	})
	if err != nil {
		log.Erro.Printf("can't connect to MQTT broker: %s", err.Error())
		os.Exit(1)
	}

	return p
}

func makeNotifier(cfg *config.Config) srv.Notifier {
	if cfg.NtfyURL == "" {
		return notifier.NewNoop()
	}

	return notifier.NewNtfy(cfg.NtfyURL)
}

func makeHkSrv(cfg *config.Config) srv.HapServer {
	if !cfg.HapEnabled {
		return homekit.NoopHap{}
	}

	hk, err := homekit.NewHapSrv(&homekit.HapSrvOpts{
		DB:  hap.NewFsStore(cfg.HapDBDir),
		Pin: cfg.HapPin,
		Bridge: accessory.NewBridge(accessory.Info{
			Name:         "plantdash",
			SerialNumber: "-",
			Manufacturer: "plantdash",
			Model:        "Plant Monitoring Dashboard",
			Firmware:     revision,
		}),
		Plants: homekit.NewPlantAccessories(session.Plants),
	})
	if err != nil {
		log.Erro.Printf("can't create HAP server: %s", err.Error())
		os.Exit(1)
	}

	return hk
}
