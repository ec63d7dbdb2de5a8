package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/filingqa/internal/qa"
)

const (
	barWidth    = 40
	sparkWidth  = 30
	sparkHeight = 3

	// p95 thresholds for the latency badge, in milliseconds.
	latencyOK   = 2000
	latencySlow = 10000

	// Share of unavailable answers above which the server reads as degraded.
	degradedShare = 0.1
)

var (
	accent = lipgloss.Color("51")
	muted  = lipgloss.Color("245")

	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(accent).Bold(true).Padding(0, 1)
	sectionStyle = lipgloss.NewStyle().Foreground(accent).Bold(true).MarginTop(1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(muted)
	keyStyle     = lipgloss.NewStyle().Foreground(accent).Bold(true)
	sparkStyle   = lipgloss.NewStyle().Foreground(accent)
	frameStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(1, 2)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	badStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

// View renders the dashboard, or the connection error while the server is
// unreachable.
func (m Model) View() string {
	switch {
	case m.quitting:
		return ""
	case m.err != nil:
		return m.errorView()
	default:
		return m.statsView()
	}
}

func (m Model) errorView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("filingqa Monitor") + "\n\n")
	b.WriteString(badStyle.Render("⚠ Cannot reach filingqa server") + "\n\n")
	field(&b, "URL", m.serverURL)
	field(&b, "Error", badStyle.Render(m.err.Error()))
	b.WriteString("\n" + dimStyle.Render("Start the server with: filingqa serve") + "\n\n")
	b.WriteString(keys("q", "quit", "r", "retry"))
	return frameStyle.Render(b.String())
}

func (m Model) statsView() string {
	s := m.stats
	now := m.lastUpdate
	updated := "never polled"
	if now.IsZero() {
		now = time.Now()
	} else {
		updated = now.Format("3:04:05 PM")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(" filingqa Monitor ") + "\n")
	b.WriteString(getStatusBadge(s) + "   " + dimStyle.Render(updated) + "\n")

	section(&b, "Index")
	field(&b, "Chunks", fmt.Sprint(s.IndexChunks), "Model", orDash(s.EmbeddingModel))
	field(&b, "Rebuilt", FormatAge(s.LastRebuild, now))

	section(&b, "Questions")
	field(&b, "Rate", FormatRate(m.rate)+"   "+spark(m.rateHistory))
	field(&b, "Total", FormatCount(s.Total))
	for _, st := range qa.Statuses {
		fmt.Fprintf(&b, "    %s%s\n", dimStyle.Render(fmt.Sprintf("%-13s", st)), valueStyle.Render(FormatCount(s.Queries[st])))
	}
	answered := share(s, qa.StatusAnswered)
	refused := share(s, qa.StatusOutOfScope, qa.StatusNoEvidence)
	field(&b, "Answered", m.answeredBar.ViewAs(answered)+" "+dimStyle.Render(FormatPercentage(answered)))
	field(&b, "Refused ", m.refusedBar.ViewAs(refused)+" "+dimStyle.Render(FormatPercentage(refused)))

	section(&b, "Latency")
	field(&b, "p50", FormatLatency(s.LatencyP50Ms), "p95", FormatLatency(s.LatencyP95Ms)+" "+latencyBadge(s.LatencyP95Ms))
	field(&b, "Recent", spark(tail(s.RecentMs, historySize)))
	field(&b, "p95 trend", spark(m.p95History))

	b.WriteString("\n" + keys("q", "quit", "r", "refresh") + dimStyle.Render(fmt.Sprintf("Auto: %v", m.interval)))
	return frameStyle.Render(b.String())
}

func section(b *strings.Builder, title string) {
	b.WriteString("\n" + sectionStyle.Render("┃ "+title) + "\n")
}

// field writes label/value pairs on one indented line.
func field(b *strings.Builder, pairs ...string) {
	b.WriteString(" ")
	for i := 0; i+1 < len(pairs); i += 2 {
		b.WriteString(" " + labelStyle.Render(pairs[i]+": ") + valueStyle.Render(pairs[i+1]) + " ")
	}
	b.WriteString("\n")
}

func keys(pairs ...string) string {
	var out string
	for i := 0; i+1 < len(pairs); i += 2 {
		out += keyStyle.Render("["+pairs[i]+"]") + dimStyle.Render(" "+pairs[i+1]+"  ")
	}
	return out
}

func getStatusBadge(s qa.StatsSnapshot) string {
	switch {
	case !s.IndexBuilt:
		return badStyle.Render("✗ NOT INDEXED")
	case share(s, qa.StatusUnavailable) > degradedShare:
		return warnStyle.Render("⚠ DEGRADED")
	default:
		return okStyle.Render("✓ READY")
	}
}

func latencyBadge(ms float64) string {
	switch {
	case ms < latencyOK:
		return okStyle.Render("[✓]")
	case ms < latencySlow:
		return warnStyle.Render("[⚠]")
	default:
		return badStyle.Render("[✗]")
	}
}

// share is the fraction of all questions that ended in one of statuses.
func share(s qa.StatsSnapshot, statuses ...qa.Status) float64 {
	if s.Total == 0 {
		return 0
	}
	var n int64
	for _, st := range statuses {
		n += s.Queries[st]
	}
	return float64(n) / float64(s.Total)
}

func spark(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparkWidth, "no data"))
	}
	sl := sparkline.New(sparkWidth, sparkHeight)
	for _, v := range data {
		sl.Push(v)
	}
	sl.Draw()
	return sparkStyle.Render(sl.View())
}

func tail(v []float64, n int) []float64 {
	if len(v) <= n {
		return v
	}
	return v[len(v)-n:]
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
