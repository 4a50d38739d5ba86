package srv

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/egregors/plantdash/internal/dashboard"
	"github.com/egregors/plantdash/internal/session"
	"github.com/egregors/plantdash/log"
)

const (
	sessionCookie   = "plantdash_session"
	requestIDHeader = "X-Request-Id"

	cameraKey   = "camera"
	imageField  = "image"
	statsWindow = 24 * time.Hour
)

var errNotAnImage = errors.New("uploaded file is not an image")

// Router builds the HTTP handler of the dashboard.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, requestLogger, middleware.Recoverer)

	r.Get("/", s.handleDashboard)
	r.Post("/events/{key}", s.handleEvent)
	r.Post("/camera", s.handleCapture)
	r.Get("/camera/image", s.handleImage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleAPIState)
		r.Post("/events/{key}", s.handleAPIEvent)
	})

	r.Get("/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", s.counters.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	return r
}

// session returns the caller's session, starting a new one and setting
// the cookie when the request carries none or an expired one.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (string, *session.State) {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}

	id, st, created := s.store.GetOrCreate(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	return id, st
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	_, st := s.session(w, r)
	s.renderDashboard(w, st, nil, nil)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	sid, st := s.session(w, r)

	res, ok := s.dispatch(w, r, sid, st)
	if !ok {
		return
	}

	if res.Action.Kind == dashboard.KindToggle {
		// relay state lives in the session, a plain reload shows it
		http.Redirect(w, r, fmt.Sprintf("/#plant-%d", res.Action.Plant), http.StatusSeeOther)

		return
	}

	s.renderDashboard(w, st, &res, nil)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, sid string, st *session.State) (dashboard.Result, bool) {
	key := chi.URLParam(r, "key")

	a, err := dashboard.ParseKey(key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return dashboard.Result{}, false
	}

	res, err := s.dispatcher.Dispatch(r.Context(), st, a)
	if err != nil {
		log.Debg.Printf("can't dispatch %s: %s", key, err.Error())
		http.Error(w, "sensor read interrupted", http.StatusServiceUnavailable)

		return dashboard.Result{}, false
	}

	s.afterDispatch(r.Context(), sid, res)

	return res, true
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	sid, st := s.session(w, r)

	img, err := s.readImage(w, r)
	if err != nil {
		log.Debg.Printf("can't read captured image: %s", err.Error())

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("image is larger than %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)

			return
		}

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	st.SetCapturedImage(img)
	s.afterCapture(r.Context(), sid, img)

	s.renderDashboard(w, st, nil, []dashboard.Message{
		{Tone: dashboard.ToneSuccess, Text: "✓ Image captured successfully!"},
	})
}

func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (session.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxImageSize)

	f, header, err := r.FormFile(imageField)
	if err != nil {
		return session.Image{}, fmt.Errorf("can't get %q form file: %w", imageField, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return session.Image{}, fmt.Errorf("can't read %q form file: %w", imageField, err)
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return session.Image{}, fmt.Errorf("%w: %s", errNotAnImage, contentType)
	}

	return session.Image{
		Data:        data,
		ContentType: contentType,
		CapturedAt:  time.Now(),
	}, nil
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	_, st := s.session(w, r)

	img, ok := st.CapturedImage()
	if !ok {
		http.NotFound(w, r)

		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(img.Data)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, s.renderStats(s.metrics.Avg(activeSessionsKey, statsWindow)))
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debg.Printf("%s %s %d %s [%s]",
			r.Method, r.URL.Path, ww.Status(), time.Since(start), w.Header().Get(requestIDHeader))
	})
}
