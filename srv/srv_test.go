package srv

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egregors/plantdash/internal/dashboard"
	"github.com/egregors/plantdash/internal/events"
	"github.com/egregors/plantdash/internal/metrics"
	"github.com/egregors/plantdash/internal/relay"
	"github.com/egregors/plantdash/internal/sensors"
	"github.com/egregors/plantdash/internal/session"
)

var pngFrame = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR frame")

type notification struct {
	title, message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *fakeNotifier) Notify(_ context.Context, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, notification{title, message})

	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, e)

	return nil
}

type fakeHap struct {
	mu       sync.Mutex
	moisture map[session.PlantID]int
}

func (h *fakeHap) SetMoisture(plant session.PlantID, moisture int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.moisture[plant] = moisture
}

func (h *fakeHap) ListenAndServe(ctx context.Context) error {
	<-ctx.Done()

	return nil
}

type fixture struct {
	srv       *Server
	ts        *httptest.Server
	relays    *relay.Mock
	notifier  *fakeNotifier
	publisher *fakePublisher
	hap       *fakeHap
}

func newFixture(t *testing.T, draws ...int) *fixture {
	t.Helper()

	return newFixtureWith(t, nil, draws...)
}

// newFixtureWith lets a test tweak the server options before it starts.
func newFixtureWith(t *testing.T, tweak func(o *Opts), draws ...int) *fixture {
	t.Helper()

	m, dump := metrics.New()
	t.Cleanup(func() { _ = dump() })

	f := &fixture{
		relays:    relay.NewMock(),
		notifier:  &fakeNotifier{},
		publisher: &fakePublisher{},
		hap:       &fakeHap{moisture: make(map[session.PlantID]int)},
	}

	opts := Opts{
		Store:      session.New(),
		Dispatcher: dashboard.NewDispatcher(sensors.NewMock(sensors.NewSequence(draws...)), 0),
		HapSrv:     f.hap,
		Relays:     f.relays,
		Notifier:   f.notifier,
		Publisher:  f.publisher,
		Metrics:    m,
		Counters:   metrics.NewProm(),
	}
	if tweak != nil {
		tweak(&opts)
	}

	f.srv = New(opts)
	f.ts = httptest.NewServer(f.srv.Router())
	t.Cleanup(f.ts.Close)

	return f
}

func (f *fixture) client(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{Jar: jar, Timeout: 5 * time.Second}
}

func do(t *testing.T, c *http.Client, method, url string, body io.Reader, contentType string) (int, string) {
	t.Helper()

	req, err := http.NewRequest(method, url, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, string(b)
}

func state(t *testing.T, f *fixture, c *http.Client) stateJSON {
	t.Helper()

	code, body := do(t, c, http.MethodGet, f.ts.URL+"/api/state", nil, "")
	require.Equal(t, http.StatusOK, code)

	var st stateJSON
	require.NoError(t, json.Unmarshal([]byte(body), &st))

	return st
}

func upload(t *testing.T, f *fixture, c *http.Client, data []byte) (int, string) {
	t.Helper()

	buf := new(bytes.Buffer)
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile(imageField, "frame.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return do(t, c, http.MethodPost, f.ts.URL+"/camera", buf, mw.FormDataContentType())
}

func TestDashboardStartsSession(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	code, body := do(t, c, http.MethodGet, f.ts.URL+"/", nil, "")
	require.Equal(t, http.StatusOK, code)

	assert.Contains(t, body, "Plant Monitoring Dashboard")
	assert.Contains(t, body, "Check Soil Moisture - Plant 2")
	assert.Contains(t, body, `action="/events/p2_r1_toggle"`)
	assert.Equal(t, 4, bytes.Count([]byte(body), []byte("OFF")))
	assert.Contains(t, body, "Dashboard Last Updated:")
	assert.Equal(t, 1, f.srv.store.Len())

	// the cookie keeps the same session
	do(t, c, http.MethodGet, f.ts.URL+"/", nil, "")
	assert.Equal(t, 1, f.srv.store.Len())
}

func TestToggleRelayEvent(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	code, body := do(t, c, http.MethodPost, f.ts.URL+"/events/p1_r1_toggle", nil, "")
	require.Equal(t, http.StatusOK, code, "redirect leads back to the dashboard")
	assert.Contains(t, body, "Relay 1: ON 🟢")

	st := state(t, f, c)
	require.Len(t, st.Relays, 4)
	for _, r := range st.Relays {
		assert.Equal(t, r.Key == "p1_r1_toggle", r.On, r.Key)
	}
	assert.Equal(t, 1, f.relays.Calls(1, 1, "on"))

	do(t, c, http.MethodPost, f.ts.URL+"/events/p1_r1_toggle", nil, "")
	st = state(t, f, c)
	for _, r := range st.Relays {
		assert.False(t, r.On, r.Key)
	}
	assert.Equal(t, 1, f.relays.Calls(1, 1, "off"))

	f.srv.bg.Wait()
	f.publisher.mu.Lock()
	defer f.publisher.mu.Unlock()
	require.Len(t, f.publisher.events, 2)
	assert.Equal(t, events.KindRelay, f.publisher.events[0].Kind)
}

func TestSessionsAreIsolated(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.client(t), f.client(t)

	do(t, alice, http.MethodPost, f.ts.URL+"/events/p2_r2_toggle", nil, "")
	_, _ = upload(t, f, alice, pngFrame)

	a, b := state(t, f, alice), state(t, f, bob)
	assert.NotEqual(t, a.Session, b.Session)
	assert.True(t, a.Relays[3].On)
	assert.False(t, b.Relays[3].On)
	assert.NotNil(t, a.Image)
	assert.Nil(t, b.Image)
}

func TestMoistureEvent(t *testing.T) {
	// 9 + 30 = 39, just below the low boundary
	f := newFixture(t, 9)
	c := f.client(t)

	code, body := do(t, c, http.MethodPost, f.ts.URL+"/events/p2_moisture", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Soil Moisture: 39%")
	assert.Contains(t, body, "⚠️ Low moisture - Consider watering")

	f.srv.bg.Wait()
	f.hap.mu.Lock()
	assert.Equal(t, 39, f.hap.moisture[2])
	f.hap.mu.Unlock()

	f.notifier.mu.Lock()
	require.Len(t, f.notifier.sent, 1)
	assert.Contains(t, f.notifier.sent[0].title, "Plant 2")
	f.notifier.mu.Unlock()

	f.publisher.mu.Lock()
	require.Len(t, f.publisher.events, 1)
	require.NotNil(t, f.publisher.events[0].Moisture)
	assert.Equal(t, 39, *f.publisher.events[0].Moisture)
	assert.Equal(t, "low", f.publisher.events[0].Level)
	f.publisher.mu.Unlock()
}

func TestAPIEvents(t *testing.T) {
	// 40 + 30 = 70 is still good, 0 is an unhealthy sensor
	f := newFixture(t, 40, 0)
	c := f.client(t)

	code, body := do(t, c, http.MethodPost, f.ts.URL+"/api/events/p1_moisture", nil, "")
	require.Equal(t, http.StatusOK, code)

	var res resultJSON
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	require.NotNil(t, res.Moisture)
	assert.Equal(t, 70, *res.Moisture)
	assert.Equal(t, "good", res.Level)
	assert.Equal(t, []messageJSON{
		{Tone: "success", Text: "Soil Moisture: 70%"},
		{Tone: "info", Text: "✓ Good moisture level"},
	}, res.Messages)

	code, body = do(t, c, http.MethodPost, f.ts.URL+"/api/events/p1_waterproof", nil, "")
	require.Equal(t, http.StatusOK, code)

	res = resultJSON{}
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	require.NotNil(t, res.Healthy)
	assert.False(t, *res.Healthy)
	assert.Equal(t, "error", res.Messages[0].Tone)

	f.srv.bg.Wait()
	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.sent, 1, "good moisture does not notify")
	assert.Equal(t, "Waterproof sensor: Issue detected", f.notifier.sent[0].message)
}

func TestUnknownEventKey(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	for _, url := range []string{"/events/p3_moisture", "/api/events/camera", "/events/p1_r9_toggle"} {
		code, _ := do(t, c, http.MethodPost, f.ts.URL+url, nil, "")
		assert.Equal(t, http.StatusBadRequest, code, url)
	}
}

func TestCaptureImage(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	code, _ := do(t, c, http.MethodGet, f.ts.URL+"/camera/image", nil, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, body := upload(t, f, c, pngFrame)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "✓ Image captured successfully!")
	assert.Contains(t, body, "Captured at:")

	code, got := do(t, c, http.MethodGet, f.ts.URL+"/camera/image", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, string(pngFrame), got)

	second := append(append([]byte{}, pngFrame...), []byte(" second")...)
	code, _ = upload(t, f, c, second)
	require.Equal(t, http.StatusOK, code)

	_, got = do(t, c, http.MethodGet, f.ts.URL+"/camera/image", nil, "")
	assert.Equal(t, string(second), got)

	st := state(t, f, c)
	require.NotNil(t, st.Image)
	assert.Equal(t, "image/png", st.Image.ContentType)
	assert.Equal(t, len(second), st.Image.Bytes)
}

func TestCaptureTooLarge(t *testing.T) {
	f := newFixtureWith(t, func(o *Opts) { o.MaxImageSize = 1024 })
	c := f.client(t)

	big := append(append([]byte{}, pngFrame...), bytes.Repeat([]byte{0}, 8<<10)...)
	code, body := upload(t, f, c, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Contains(t, body, "1024")

	code, _ = upload(t, f, c, pngFrame)
	assert.Equal(t, http.StatusOK, code, "small images still fit")
}

func TestCaptureRejectsNonImage(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	code, _ := upload(t, f, c, []byte("just some text"))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, c, http.MethodPost, f.ts.URL+"/camera", nil, "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatsAndMetrics(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	do(t, c, http.MethodPost, f.ts.URL+"/events/p1_r2_toggle", nil, "")
	f.srv.sweep(time.Now())

	code, body := do(t, c, http.MethodGet, f.ts.URL+"/stats", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Active sessions: 1")
	assert.Contains(t, body, "Sessions")
	assert.Contains(t, body, "1.00")

	code, body = do(t, c, http.MethodGet, f.ts.URL+"/metrics", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `plantdash_relay_toggles_total{plant="1",relay="2",state="on"} 1`)
	assert.Contains(t, body, "plantdash_active_sessions 1")

	code, body = do(t, c, http.MethodGet, f.ts.URL+"/healthz", nil, "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	req, _ := http.NewRequest(http.MethodGet, f.ts.URL+"/healthz", nil)
	req.Header.Set(requestIDHeader, "given-id")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "given-id", resp.Header.Get(requestIDHeader))
}

func TestRunStopsWithContext(t *testing.T) {
	m, dump := metrics.New()
	defer func() { _ = dump() }()

	s := New(Opts{
		Addr:        "127.0.0.1:0",
		SweepPeriod: 10 * time.Millisecond,
		Store:       session.New(),
		Dispatcher:  dashboard.NewDispatcher(sensors.NewMock(nil), 0),
		Metrics:     m,
		Counters:    metrics.NewProm(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestBackgroundStopsAfterShutdown(t *testing.T) {
	f := newFixture(t)

	var (
		mu  sync.Mutex
		ran int
	)
	count := func(context.Context) {
		mu.Lock()
		ran++
		mu.Unlock()
	}

	// side effects racing with shutdown either finish before it returns or never start
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.srv.background(context.Background(), count)
		}()
	}

	f.srv.stopBackground()
	mu.Lock()
	atStop := ran
	mu.Unlock()

	wg.Wait()
	f.srv.background(context.Background(), count)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, atStop, ran)
}
