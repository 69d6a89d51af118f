// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels back to the application
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/checktime/checktime-go/internal/alarm"
)

// Controls holds channels for requests from the TUI to the application
type Controls struct {
	Alarms chan alarm.Spec
	Cancel chan struct{}
	Resync chan struct{}
	Quit   chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Alarms: make(chan alarm.Spec, 1),
		Cancel: make(chan struct{}, 1),
		Resync: make(chan struct{}, 1),
		Quit:   make(chan struct{}, 1),
	}
}

// Sends never block the UI; a request already pending is enough.

func (c *Controls) setAlarm(spec alarm.Spec) {
	if c == nil {
		return
	}
	select {
	case c.Alarms <- spec:
	default:
	}
}

func (c *Controls) cancel() {
	if c == nil {
		return
	}
	select {
	case c.Cancel <- struct{}{}:
	default:
	}
}

func (c *Controls) resync() {
	if c == nil {
		return
	}
	select {
	case c.Resync <- struct{}{}:
	default:
	}
}

func (c *Controls) quit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// Config holds TUI settings
type Config struct {
	Clock      Clock
	Zone       *time.Location
	Refresh    time.Duration
	ShowMillis bool
	Source     string
	Controls   *Controls
}

// NewModel creates a new TUI model
func NewModel(config Config) Model {
	if config.Refresh <= 0 {
		config.Refresh = 33 * time.Millisecond
	}
	if config.Zone == nil {
		config.Zone = time.Local
	}

	return Model{
		clock:      config.Clock,
		zone:       config.Zone,
		refresh:    config.Refresh,
		controls:   config.Controls,
		source:     config.Source,
		showMillis: config.ShowMillis,
		form:       newAlarmForm(),
	}
}

// Run creates the TUI program
func Run(config Config) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(config), tea.WithAltScreen())
	return p, nil
}
