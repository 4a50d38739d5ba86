package srv

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/egregors/plantdash/internal/dashboard"
	"github.com/egregors/plantdash/internal/events"
	"github.com/egregors/plantdash/internal/homekit"
	"github.com/egregors/plantdash/internal/metrics"
	"github.com/egregors/plantdash/internal/notifier"
	"github.com/egregors/plantdash/internal/session"
	"github.com/egregors/plantdash/log"
)

const (
	activeSessionsKey = "active_sessions"

	defaultAddr         = ":8080"
	defaultSweepPeriod  = time.Minute
	defaultMaxImageSize = 10 << 20

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	sideEffectTimeout = 15 * time.Second
)

type HapServer interface {
	SetMoisture(plant session.PlantID, moisture int)

	ListenAndServe(ctx context.Context) error
}

type RelayCtrl interface {
	On(plant session.PlantID, relay session.RelayID) error
	Off(plant session.PlantID, relay session.RelayID) error
}

type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

type Publisher interface {
	Publish(ctx context.Context, sessionID string, e events.Event) error
}

type Metrics interface {
	Gauge(key string, val float64)
	Avg(key string, dur time.Duration) []metrics.Value
}

type Counters interface {
	RelayToggled(plant, relay int, on bool)
	MoistureChecked(plant int, level string)
	WaterproofChecked(plant int, healthy bool)
	ImageCaptured()
	ActiveSessions(n int)
	Handler() http.Handler
}

type Opts struct {
	Addr         string
	SweepPeriod  time.Duration
	MaxImageSize int64

	Store      *session.Store
	Dispatcher *dashboard.Dispatcher

	HapSrv    HapServer
	Relays    RelayCtrl
	Notifier  Notifier
	Publisher Publisher
	Metrics   Metrics
	Counters  Counters
}

type Server struct {
	webSrv *http.Server
	addr   string

	store      *session.Store
	dispatcher *dashboard.Dispatcher

	hkSrv     HapServer
	relays    RelayCtrl
	notifier  Notifier
	publisher Publisher
	metrics   Metrics
	counters  Counters

	sweepPeriod  time.Duration
	maxImageSize int64
	startTime    time.Time

	// side effects still running in the background
	bg       sync.WaitGroup
	bgMu     sync.Mutex
	bgClosed bool
}

// New makes a Server. Store, Dispatcher, Metrics and Counters are required;
// the other collaborators fall back to no-ops.
func New(opts Opts) *Server {
	s := &Server{
		addr:         opts.Addr,
		store:        opts.Store,
		dispatcher:   opts.Dispatcher,
		hkSrv:        opts.HapSrv,
		relays:       opts.Relays,
		notifier:     opts.Notifier,
		publisher:    opts.Publisher,
		metrics:      opts.Metrics,
		counters:     opts.Counters,
		sweepPeriod:  opts.SweepPeriod,
		maxImageSize: opts.MaxImageSize,
		startTime:    time.Now(),
	}

	if s.addr == "" {
		s.addr = defaultAddr
	}
	if s.sweepPeriod <= 0 {
		s.sweepPeriod = defaultSweepPeriod
	}
	if s.maxImageSize <= 0 {
		s.maxImageSize = defaultMaxImageSize
	}
	if s.hkSrv == nil {
		s.hkSrv = homekit.NoopHap{}
	}
	if s.relays == nil {
		s.relays = noopRelays{}
	}
	if s.notifier == nil {
		s.notifier = notifier.NewNoop()
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}

	return s
}

func (s *Server) Run(ctx context.Context) error {
	if s.webSrv != nil {
		return errors.New("web server already exist")
	}

	s.webSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)

	// go web server
	g.Go(func() error {
		log.Info.Printf("start web server on http://localhost%s", s.addr)
		if err := s.webSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info.Println("stop web server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return s.webSrv.Shutdown(shutdownCtx)
	})
	// go hap server
	g.Go(func() error {
		log.Info.Println("start HAP server")
		return s.hkSrv.ListenAndServe(ctx)
	})
	// go session sweeper
	g.Go(func() error {
		log.Info.Printf("start session sweeper every %v", s.sweepPeriod)
		s.sweepLoop(ctx)

		return nil
	})

	err := g.Wait()
	s.stopBackground()

	return err
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.sweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(now)
		}
	}
}

func (s *Server) sweep(now time.Time) {
	if removed := s.store.Sweep(now); removed > 0 {
		log.Debg.Printf("sweeper removed %d idle sessions", removed)
	}

	n := s.store.Len()
	s.metrics.Gauge(activeSessionsKey, float64(n))
	s.counters.ActiveSessions(n)
}

type noopRelays struct{}

func (noopRelays) On(session.PlantID, session.RelayID) error { return nil }

func (noopRelays) Off(session.PlantID, session.RelayID) error { return nil }
