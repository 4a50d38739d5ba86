package srv

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egregors/plantdash/internal/dashboard"
	"github.com/egregors/plantdash/internal/metrics"
	"github.com/egregors/plantdash/internal/session"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Minute, "(uptime: 30m)"},
		{65 * time.Minute, "(uptime: 1h 5m)"},
		{25*time.Hour + 30*time.Minute, "(uptime: 1d 1h 30m)"},
	}

	for _, tt := range tests {
		server := &Server{startTime: time.Now().Add(-tt.ago)}
		assert.Equal(t, tt.want, server.formatUptime())
	}
}

func TestRenderHourlyAvgTable(t *testing.T) {
	base := time.Date(2024, 11, 6, 15, 0, 0, 0, time.UTC)
	table := renderHourlyAvgTable([]metrics.Value{
		{T: base, V: 2},
		{T: base.Add(time.Hour), V: 3},
		{T: base.Add(2 * time.Hour), V: 1},
		{T: base.Add(3 * time.Hour), V: 1},
	})

	lines := strings.Split(strings.TrimSpace(table), "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "| 2024-11-06 15h  |       ~   2.00 |", lines[3])
	assert.Contains(t, lines[4], "^")
	assert.Contains(t, lines[5], "v")
	assert.Contains(t, lines[6], "~")

	for _, l := range lines {
		assert.Len(t, []rune(l), 36, l)
	}
}

func TestRenderHourlyAvgTableEmpty(t *testing.T) {
	assert.Contains(t, renderHourlyAvgTable(nil), "no data yet")
}

func TestBuildPage(t *testing.T) {
	st := session.NewState()
	st.ToggleRelay(2, 1)
	st.SetCapturedImage(session.Image{
		Data:       []byte("x"),
		CapturedAt: time.Date(2024, 11, 6, 15, 4, 5, 0, time.UTC),
	})

	res := &dashboard.Result{
		Action:   dashboard.Action{Kind: dashboard.KindWaterproof, Plant: 2},
		Messages: []dashboard.Message{{Tone: dashboard.ToneSuccess, Text: "Waterproof sensor: OK"}},
	}

	page := buildPage(st, res, nil, time.Date(2024, 11, 6, 16, 0, 0, 0, time.UTC))

	assert.Equal(t, "2024-11-06 16:00:00", page.UpdatedAt)
	require.NotNil(t, page.Image)
	assert.Equal(t, "2024-11-06 15:04:05", page.Image.CapturedAt)

	require.Len(t, page.Plants, 2)
	assert.Equal(t, "p1_moisture", page.Plants[0].MoistureKey)
	assert.Empty(t, page.Plants[0].Waterproof)
	assert.Equal(t, res.Messages, page.Plants[1].Waterproof)

	require.Len(t, page.Plants[1].Relays, 2)
	assert.Equal(t, "p2_r1_toggle", page.Plants[1].Relays[0].Key)
	assert.Equal(t, "Relay 1: ON 🟢", page.Plants[1].Relays[0].Message.Text)
	assert.Equal(t, "Relay 2: OFF 🔴", page.Plants[1].Relays[1].Message.Text)
}
