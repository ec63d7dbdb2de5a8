package monitor

import (
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

func TestNewModel(t *testing.T) {
	model := NewModel("http://localhost:8090", 5*time.Second)
	assert.Equal(t, "http://localhost:8090", model.serverURL)
	assert.Equal(t, 5*time.Second, model.interval)
	assert.False(t, model.quitting)
}

func TestModel_Init(t *testing.T) {
	model := NewModel("http://localhost:8090", 5*time.Second)
	assert.NotNil(t, model.Init())
}

func TestModel_Update_QuitKey(t *testing.T) {
	model := NewModel("http://localhost:8090", 5*time.Second)

	updatedModel, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})

	m := updatedModel.(Model)
	assert.True(t, m.quitting)
	assert.NotNil(t, cmd)
	assert.Empty(t, m.View())
}

func TestModel_Update_RefreshKey(t *testing.T) {
	model := NewModel("http://localhost:8090", 5*time.Second)

	updatedModel, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})

	m := updatedModel.(Model)
	assert.False(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_TickMsg(t *testing.T) {
	model := NewModel("http://localhost:8090", 5*time.Second)

	updatedModel, cmd := model.Update(tickMsg(time.Now()))

	m := updatedModel.(Model)
	assert.False(t, m.quitting)
	assert.NotNil(t, cmd)
}

func TestModel_Update_StatsMsgComputesRate(t *testing.T) {
	model := NewModel("http://localhost:8090", 5*time.Second)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	updated, cmd := model.Update(statsMsg{stats: qa.StatsSnapshot{Total: 10, LatencyP95Ms: 120}, at: t0})
	assert.Nil(t, cmd)
	m := updated.(Model)
	assert.Equal(t, 0.0, m.rate)
	assert.Equal(t, t0, m.lastUpdate)

	updated, _ = m.Update(statsMsg{stats: qa.StatsSnapshot{Total: 40, LatencyP95Ms: 80}, at: t0.Add(30 * time.Second)})
	m = updated.(Model)
	assert.InDelta(t, 60.0, m.rate, 1e-9)
	assert.Equal(t, []float64{0, 60}, m.rateHistory)
	assert.Equal(t, []float64{120, 80}, m.p95History)
}

func TestModel_Update_ErrMsg(t *testing.T) {
	model := NewModel("http://localhost:8090", 5*time.Second)

	updatedModel, cmd := model.Update(errMsg(fmt.Errorf("connection refused")))

	m := updatedModel.(Model)
	assert.NotNil(t, m.err)
	assert.Contains(t, m.err.Error(), "connection refused")
	assert.Nil(t, cmd)
}

func TestModel_View_WithStats(t *testing.T) {
	model := NewModel("http://localhost:8090", 5*time.Second)
	model.lastUpdate = time.Date(2024, 1, 1, 12, 34, 56, 0, time.UTC)
	model.rate = 12.5
	model.stats = qa.StatsSnapshot{
		Queries: map[qa.Status]int64{
			qa.StatusAnswered:   8,
			qa.StatusOutOfScope: 2,
		},
		Total:          10,
		LatencyP50Ms:   123.4,
		LatencyP95Ms:   2500,
		RecentMs:       []float64{100, 200, 150},
		IndexBuilt:     true,
		IndexChunks:    5120,
		EmbeddingModel: "sentence-transformers/all-MiniLM-L6-v2",
		LastRebuild:    time.Date(2024, 1, 1, 10, 4, 56, 0, time.UTC),
	}

	view := model.View()

	assert.Contains(t, view, "filingqa Monitor")
	assert.Contains(t, view, "READY")
	assert.Contains(t, view, "12:34:56")
	assert.Contains(t, view, "5120")
	assert.Contains(t, view, "all-MiniLM-L6-v2")
	assert.Contains(t, view, "2h 30m ago")
	assert.Contains(t, view, "12.5 q/min")
	assert.Contains(t, view, "out_of_scope")
	assert.Contains(t, view, "80.0%")
	assert.Contains(t, view, "123.4ms")
	assert.Contains(t, view, "2.5s")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_WithError(t *testing.T) {
	model := NewModel("http://localhost:8090", 5*time.Second)
	model.err = fmt.Errorf("connection refused")

	view := model.View()

	assert.Contains(t, view, "Cannot reach filingqa server")
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "http://localhost:8090")
	assert.Contains(t, view, "[q]")
	assert.Contains(t, view, "[r]")
}

func TestModel_View_NoData(t *testing.T) {
	model := NewModel("http://localhost:8090", 5*time.Second)

	view := model.View()

	assert.Contains(t, view, "filingqa Monitor")
	assert.Contains(t, view, "NOT INDEXED")
	assert.Contains(t, view, "never")
	assert.Contains(t, view, "[q]")
}

func TestGetStatusBadge(t *testing.T) {
	assert.Contains(t, getStatusBadge(qa.StatsSnapshot{}), "NOT INDEXED")
	assert.Contains(t, getStatusBadge(qa.StatsSnapshot{IndexBuilt: true}), "READY")
	assert.Contains(t, getStatusBadge(qa.StatsSnapshot{
		IndexBuilt: true,
		Total:      10,
		Queries:    map[qa.Status]int64{qa.StatusUnavailable: 5},
	}), "DEGRADED")
}

func TestAppendToHistory_Bounded(t *testing.T) {
	var h []float64
	for i := 0; i < historySize+5; i++ {
		h = appendToHistory(h, float64(i))
	}
	assert.Len(t, h, historySize)
	assert.Equal(t, 5.0, h[0])
}

func TestShare(t *testing.T) {
	s := qa.StatsSnapshot{
		Total: 8,
		Queries: map[qa.Status]int64{
			qa.StatusAnswered:   4,
			qa.StatusOutOfScope: 1,
			qa.StatusNoEvidence: 1,
		},
	}
	assert.Equal(t, 0.5, share(s, qa.StatusAnswered))
	assert.Equal(t, 0.25, share(s, qa.StatusOutOfScope, qa.StatusNoEvidence))
	assert.Equal(t, 0.0, share(qa.StatsSnapshot{}, qa.StatusAnswered))
}

func TestLatencyBadge(t *testing.T) {
	assert.Contains(t, latencyBadge(150), "✓")
	assert.Contains(t, latencyBadge(5000), "⚠")
	assert.Contains(t, latencyBadge(20000), "✗")
}
