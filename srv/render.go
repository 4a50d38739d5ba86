package srv

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/egregors/plantdash/internal/dashboard"
	"github.com/egregors/plantdash/internal/metrics"
	"github.com/egregors/plantdash/internal/session"
	"github.com/egregors/plantdash/log"
	"github.com/egregors/plantdash/utils/bp"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	plotRows   = 4
)

//go:embed templates/dashboard.html
var dashboardHTML string

var dashboardTmpl = template.Must(template.New("dashboard").Parse(dashboardHTML))

type relayView struct {
	ID      int
	Key     string
	Message dashboard.Message
}

type plantView struct {
	ID            int
	MoistureKey   string
	WaterproofKey string
	Moisture      []dashboard.Message
	Waterproof    []dashboard.Message
	Relays        []relayView
}

type imageView struct {
	CapturedAt string
	Version    int64
}

type pageData struct {
	Camera    []dashboard.Message
	Image     *imageView
	Plants    []plantView
	UpdatedAt string
}

func (s *Server) renderDashboard(w http.ResponseWriter, st *session.State, res *dashboard.Result, camera []dashboard.Message) {
	data := buildPage(st, res, camera, time.Now())

	buf := new(bytes.Buffer)
	if err := dashboardTmpl.Execute(buf, data); err != nil {
		log.Erro.Printf("can't render dashboard: %s", err.Error())
		http.Error(w, "can't render dashboard", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func buildPage(st *session.State, res *dashboard.Result, camera []dashboard.Message, now time.Time) pageData {
	data := pageData{
		Camera:    camera,
		UpdatedAt: now.Format(timeLayout),
	}

	if img, ok := st.CapturedImage(); ok {
		data.Image = &imageView{
			CapturedAt: img.CapturedAt.Format(timeLayout),
			Version:    img.CapturedAt.UnixNano(),
		}
	}

	for p := session.PlantID(session.FirstID); int(p) <= session.Plants; p++ {
		data.Plants = append(data.Plants, plantView{
			ID:            int(p),
			MoistureKey:   dashboard.Action{Kind: dashboard.KindMoisture, Plant: p}.Key(),
			WaterproofKey: dashboard.Action{Kind: dashboard.KindWaterproof, Plant: p}.Key(),
		})
	}

	for _, rs := range st.Relays() {
		pv := &data.Plants[rs.Plant-session.FirstID]
		pv.Relays = append(pv.Relays, relayView{
			ID:      int(rs.Relay),
			Key:     dashboard.Action{Kind: dashboard.KindToggle, Plant: rs.Plant, Relay: rs.Relay}.Key(),
			Message: dashboard.RelayMessage(rs.Relay, rs.On),
		})
	}

	if res != nil {
		pv := &data.Plants[res.Action.Plant-session.FirstID]
		switch res.Action.Kind {
		case dashboard.KindMoisture:
			pv.Moisture = res.Messages
		case dashboard.KindWaterproof:
			pv.Waterproof = res.Messages
		}
	}

	return data
}

func (s *Server) renderStats(hourly []metrics.Value) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Active sessions: %d %s\n\n", s.store.Len(), s.formatUptime()))
	builder.WriteString(renderHourlyAvgTable(hourly))

	if len(hourly) > 0 {
		vals := make([]float64, 0, len(hourly))
		for _, v := range hourly {
			vals = append(vals, v.V)
		}
		builder.WriteString("\n")
		builder.WriteString(bp.SimplePlot(plotRows, vals))
		builder.WriteString("\n")
	}

	return builder.String()
}

// renderHourlyAvgTable expects hourly values sorted oldest first.
func renderHourlyAvgTable(hourly []metrics.Value) string {
	var builder strings.Builder
	builder.WriteString("+-----------------+----------------+\n")
	builder.WriteString("|  Hour           |    Sessions    |\n")
	builder.WriteString("+-----------------+----------------+\n")

	if len(hourly) == 0 {
		builder.WriteString("|  no data yet                     |\n")
	}

	up, down, same := "^", "v", "~"
	var prev float64
	if len(hourly) > 0 {
		prev = hourly[0].V
	}
	for _, v := range hourly {
		var progMark string
		switch {
		case v.V > prev:
			progMark = up
		case v.V < prev:
			progMark = down
		default:
			progMark = same
		}

		timeMark := v.T.Format("2006-01-02 15") + "h"
		builder.WriteString(fmt.Sprintf("| %-15s | %7s%7.2f |\n", timeMark, progMark, v.V))
		prev = v.V
	}

	builder.WriteString("+-----------------+----------------+\n")

	return builder.String()
}

func (s *Server) formatUptime() string {
	d := time.Since(s.startTime)

	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("(uptime: %dd %dh %dm)", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("(uptime: %dh %dm)", hours, minutes)
	default:
		return fmt.Sprintf("(uptime: %dm)", minutes)
	}
}
