// ABOUTME: Bubbletea model for the clock TUI
// ABOUTME: Renders projected remote time, sync status, and the alarm countdown
package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/checktime/checktime-go/internal/alarm"
	internalsync "github.com/checktime/checktime-go/internal/sync"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	clockStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 2)
	alertStyle  = clockStyle.Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	helpStyle   = dimStyle
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	eventStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	frameStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	qualityPens = map[internalsync.Quality]lipgloss.Style{
		internalsync.QualityExcellent: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		internalsync.QualityGood:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		internalsync.QualityFair:      lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		internalsync.QualityPoor:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

// Clock supplies the projected remote time; ok is false until synced
type Clock interface {
	Now() (time.Time, bool)
}

// Model represents the TUI state
type Model struct {
	clock    Clock
	zone     *time.Location
	refresh  time.Duration
	controls *Controls

	// Source
	source     string
	serverName string

	// Display
	now        time.Time
	synced     bool
	showMillis bool

	// Sync
	status  internalsync.Status
	network internalsync.NetworkStats
	noTime  bool
	syncErr string

	// Alarm
	alarm     alarm.State
	hasAlarm  bool
	lastEvent string
	alarmErr  string
	form      alarmForm

	// Dimensions
	width  int
	height int
}

type tickMsg time.Time

// SyncMsg reports the outcome of a resync cycle
type SyncMsg struct {
	Status internalsync.Status
	Stats  internalsync.NetworkStats
	Err    error
}

// AlarmMsg carries the latest countdown snapshot
type AlarmMsg struct {
	State  alarm.State
	Active bool
}

// EventMsg carries a pre-alert or completion event
type EventMsg alarm.Event

// AlarmErrorMsg reports that a submitted alarm was rejected
type AlarmErrorMsg struct {
	Err error
}

// ServerMsg reports the time source in use, e.g. after discovery
type ServerMsg struct {
	Name   string
	Source string
}

// Init starts the display tick
func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.readClock()
		return m, m.tick()
	case SyncMsg:
		m.applySync(msg)
	case AlarmMsg:
		m.alarm = msg.State
		m.hasAlarm = msg.Active
	case EventMsg:
		m.applyEvent(alarm.Event(msg))
	case AlarmErrorMsg:
		m.alarmErr = msg.Err.Error()
	case ServerMsg:
		if msg.Name != "" {
			m.serverName = msg.Name
		}
		if msg.Source != "" {
			m.source = msg.Source
		}
	}

	return m, nil
}

// readClock samples the projection; it never touches the network
func (m *Model) readClock() {
	if m.clock == nil {
		return
	}
	now, ok := m.clock.Now()
	m.synced = ok
	if ok {
		m.now = now.In(m.zone)
	}
}

// applySync updates sync status from a resync result
func (m *Model) applySync(msg SyncMsg) {
	m.status = msg.Status
	m.network = msg.Stats
	m.noTime = errors.Is(msg.Err, internalsync.ErrNoTimeInfo)
	m.syncErr = ""
	if msg.Err != nil && !m.noTime {
		m.syncErr = msg.Err.Error()
	}
}

// applyEvent records the latest alarm event for display
func (m *Model) applyEvent(ev alarm.Event) {
	switch ev.Kind {
	case alarm.EventPreAlert:
		m.lastEvent = fmt.Sprintf("%d seconds left", ev.Lead)
	case alarm.EventCompleted:
		m.lastEvent = "Time reached!"
	}
}

// View renders the TUI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderTime())
	b.WriteString("\n\n")
	b.WriteString(m.renderSync())
	b.WriteString("\n")

	if m.form.open {
		b.WriteString("\n")
		b.WriteString(m.form.view())
	} else {
		b.WriteString(m.renderAlarm())
		b.WriteString("\n")
		b.WriteString(m.renderHelp())
	}

	return frameStyle.Render(b.String()) + "\n"
}

// renderHeader renders the title and source
func (m Model) renderHeader() string {
	source := m.source
	if m.serverName != "" {
		source = fmt.Sprintf("%s (%s)", m.serverName, m.source)
	}
	if source == "" {
		source = "no source"
	}
	return titleStyle.Render("Check Time") + "  " + dimStyle.Render(source)
}

// renderTime renders the date line and the clock
func (m Model) renderTime() string {
	if !m.synced {
		placeholder := "--:--:--"
		if m.showMillis {
			placeholder += ".---"
		}
		return dimStyle.Render(m.zone.String()) + "\n" + clockStyle.Render(placeholder)
	}

	style := clockStyle
	if m.highlighted() {
		style = alertStyle
	}

	date := m.now.Format("2006-01-02 (Mon) MST")
	return dimStyle.Render(date) + "\n" + style.Render(renderClock(m.now, m.showMillis))
}

// renderClock formats the time of day, with milliseconds only when asked
func renderClock(t time.Time, showMillis bool) string {
	if showMillis {
		return t.Format("15:04:05.000")
	}
	return t.Format("15:04:05")
}

// highlighted reports whether the clock is drawn red: the alarm asked for it
// and at least one threshold has been crossed
func (m Model) highlighted() bool {
	if !m.hasAlarm || !m.alarm.Spec.Options.Highlight {
		return false
	}
	if m.alarm.Done() {
		return true
	}
	for _, lead := range m.alarm.Spec.PreAlerts {
		if m.alarm.Fired(lead) {
			return true
		}
	}
	return false
}

// renderSync renders offset, round trip, and network statistics
func (m Model) renderSync() string {
	var line string
	switch {
	case !m.status.Synced && m.noTime:
		line = errorStyle.Render("no time information")
	case !m.status.Synced && m.syncErr != "":
		line = errorStyle.Render("sync failed: " + m.syncErr)
	case !m.status.Synced:
		line = dimStyle.Render("syncing...")
	default:
		o := m.status.Offset
		pen := qualityPens[o.Quality]
		line = fmt.Sprintf("Offset %+dms  RTT %dms  %s",
			o.Millis(), o.RoundTripMillis(), pen.Render(o.Quality.String()))
		if m.status.Stale {
			line += errorStyle.Render(fmt.Sprintf("  stale (%s)", m.status.Age.Truncate(time.Second)))
		}
		if m.noTime {
			line += errorStyle.Render("  no time information")
		}
	}

	if m.network.Samples == 0 {
		return line
	}

	n := m.network
	stats := fmt.Sprintf("Network avg %dms  min %dms  max %dms  loss %.1f%%  %s",
		n.Average.Milliseconds(), n.Min.Milliseconds(), n.Max.Milliseconds(),
		n.PacketLossRate, qualityPens[n.Condition].Render(n.Condition.String()))
	return line + "\n" + dimStyle.Render(stats)
}

// renderAlarm renders the countdown or the idle prompt
func (m Model) renderAlarm() string {
	var b strings.Builder

	switch {
	case !m.hasAlarm:
		b.WriteString(dimStyle.Render("No alarm set"))
	case m.alarm.Done():
		b.WriteString(eventStyle.Render(fmt.Sprintf("Alarm %s reached", m.alarm.Spec.Target)))
	default:
		b.WriteString(fmt.Sprintf("Alarm %s in %s", m.alarm.Spec.Target, formatRemaining(m.alarm.Remaining)))
		if leads := m.pendingLeads(); leads != "" {
			b.WriteString(dimStyle.Render("  alerts " + leads))
		}
	}
	b.WriteString("\n")

	if m.lastEvent != "" && m.hasAlarm {
		b.WriteString(eventStyle.Render(m.lastEvent))
		b.WriteString("\n")
	}
	if m.alarmErr != "" {
		b.WriteString(errorStyle.Render(m.alarmErr))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) pendingLeads() string {
	var parts []string
	for _, lead := range m.alarm.Spec.PreAlerts {
		if !m.alarm.Fired(lead) {
			parts = append(parts, fmt.Sprintf("%ds", lead))
		}
	}
	return strings.Join(parts, " ")
}

// formatRemaining renders whole seconds as HH:MM:SS
func formatRemaining(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, sec/60%60, sec%60)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return helpStyle.Render("a:Alarm  c:Cancel  m:Millis  r:Resync  q:Quit")
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.controls.quit()
		return m, tea.Quit
	}

	if m.form.open {
		form, spec := m.form.update(msg)
		m.form = form
		if spec != nil {
			m.alarmErr = ""
			m.lastEvent = ""
			m.controls.setAlarm(*spec)
		}
		return m, nil
	}

	switch msg.String() {
	case "q":
		m.controls.quit()
		return m, tea.Quit
	case "m":
		m.showMillis = !m.showMillis
	case "a":
		m.form.open = true
		m.form.err = ""
		m.form.focus = fieldHour
	case "c":
		if m.hasAlarm {
			m.controls.cancel()
		}
	case "r":
		m.controls.resync()
	}

	return m, nil
}
