// Package monitor is a terminal dashboard for a running filingqa server.
package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

// historySize bounds every trend series kept by the dashboard.
const historySize = 30

const fetchTimeout = 5 * time.Second

type (
	tickMsg  time.Time
	errMsg   error
	statsMsg struct {
		stats qa.StatsSnapshot
		at    time.Time
	}
)

// Model is the bubbletea state of the dashboard. It polls the stats
// endpoint and derives a question rate from successive totals.
type Model struct {
	serverURL string
	interval  time.Duration
	client    *StatsClient

	stats      qa.StatsSnapshot
	lastUpdate time.Time
	err        error
	quitting   bool

	rate        float64
	rateHistory []float64
	p95History  []float64

	answeredBar progress.Model
	refusedBar  progress.Model
}

// NewModel creates a dashboard polling serverURL every interval.
func NewModel(serverURL string, interval time.Duration) Model {
	return Model{
		serverURL:   serverURL,
		interval:    interval,
		client:      NewStatsClient(serverURL),
		answeredBar: progress.New(progress.WithGradient("#2ecc71", "#f1c40f"), progress.WithWidth(barWidth)),
		refusedBar:  progress.New(progress.WithGradient("#3498db", "#9b59b6"), progress.WithWidth(barWidth)),
		rateHistory: make([]float64, 0, historySize),
		p95History:  make([]float64, 0, historySize),
	}
}

// Init schedules the first poll and the refresh timer.
func (m Model) Init() tea.Cmd {
	return m.poll()
}

func (m Model) poll() tea.Cmd {
	return tea.Batch(
		tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) }),
		m.fetch(),
	)
}

func (m Model) fetch() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		snap, err := client.Stats(ctx)
		if err != nil {
			return errMsg(err)
		}
		return statsMsg{stats: snap, at: time.Now()}
	}
}

// Update applies a key press, timer tick or poll result.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}
	case tickMsg:
		return m, m.poll()
	case statsMsg:
		m.observe(msg)
	case errMsg:
		m.err = msg
	}
	return m, nil
}

// observe records a snapshot. The rate is questions per minute since the
// previous snapshot; counters that go backwards (server restart) read as 0.
func (m *Model) observe(msg statsMsg) {
	if !m.lastUpdate.IsZero() {
		if minutes := msg.at.Sub(m.lastUpdate).Minutes(); minutes > 0 {
			m.rate = max(0, float64(msg.stats.Total-m.stats.Total)/minutes)
		}
	}
	m.rateHistory = appendToHistory(m.rateHistory, m.rate)
	m.p95History = appendToHistory(m.p95History, msg.stats.LatencyP95Ms)
	m.stats = msg.stats
	m.lastUpdate = msg.at
	m.err = nil
}

func appendToHistory(history []float64, v float64) []float64 {
	history = append(history, v)
	if over := len(history) - historySize; over > 0 {
		history = history[over:]
	}
	return history
}

// Run starts the dashboard in the alternate screen until the user quits.
func Run(serverURL string, interval time.Duration) error {
	_, err := tea.NewProgram(NewModel(serverURL, interval), tea.WithAltScreen()).Run()
	return err
}
