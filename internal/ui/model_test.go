// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests clock rendering, sync status, alarm form, and highlight state
package ui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/checktime/checktime-go/internal/alarm"
	internalsync "github.com/checktime/checktime-go/internal/sync"
)

type stubClock struct {
	t  time.Time
	ok bool
}

func (c stubClock) Now() (time.Time, bool) { return c.t, c.ok }

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...tea.KeyMsg) Model {
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(Model)
	}
	return m
}

func TestRenderClock(t *testing.T) {
	ts := time.Date(2026, 10, 18, 9, 5, 7, 123_000_000, time.UTC)

	if got := renderClock(ts, true); got != "09:05:07.123" {
		t.Errorf("expected 09:05:07.123, got %s", got)
	}
	if got := renderClock(ts, false); got != "09:05:07" {
		t.Errorf("expected 09:05:07, got %s", got)
	}
}

func TestNewModelDefaults(t *testing.T) {
	m := NewModel(Config{})

	if m.refresh != 33*time.Millisecond {
		t.Errorf("expected 33ms refresh, got %v", m.refresh)
	}
	if m.zone == nil {
		t.Error("expected a zone")
	}
	if m.form.open {
		t.Error("expected form closed initially")
	}
	if !m.form.pre[0] || !m.form.pre[1] || !m.form.pre[2] {
		t.Error("expected all pre-alerts enabled by default")
	}
}

func TestTickReadsProjection(t *testing.T) {
	zone := time.FixedZone("KST", 9*3600)
	remote := time.Date(2026, 10, 18, 3, 0, 0, 500_000_000, time.UTC)

	m := NewModel(Config{Clock: stubClock{t: remote, ok: true}, Zone: zone, ShowMillis: true})
	next, cmd := m.Update(tickMsg(time.Now()))
	m = next.(Model)

	if cmd == nil {
		t.Error("expected the tick to reschedule itself")
	}
	if !m.synced {
		t.Fatal("expected synced after reading the projection")
	}
	if !strings.Contains(m.View(), "12:00:00.500") {
		t.Errorf("expected KST time in view, got:\n%s", m.View())
	}
}

func TestUnsyncedShowsPlaceholder(t *testing.T) {
	m := NewModel(Config{Clock: stubClock{}, Zone: time.UTC})
	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(Model)

	if m.synced {
		t.Error("expected unsynced")
	}
	if !strings.Contains(m.View(), "--:--:--") {
		t.Error("expected placeholder clock while unsynced")
	}
}

func TestMillisToggle(t *testing.T) {
	remote := time.Date(2026, 10, 18, 3, 0, 0, 250_000_000, time.UTC)
	m := NewModel(Config{Clock: stubClock{t: remote, ok: true}, Zone: time.UTC, ShowMillis: true})
	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(Model)

	m = press(m, runes("m"))
	if m.showMillis {
		t.Fatal("expected millis hidden after toggle")
	}
	if strings.Contains(m.View(), "03:00:00.250") {
		t.Error("expected no milliseconds in view")
	}

	m = press(m, runes("m"))
	if !strings.Contains(m.View(), "03:00:00.250") {
		t.Error("expected milliseconds after second toggle")
	}
}

func TestSyncStatusNoTimeInfo(t *testing.T) {
	m := NewModel(Config{Zone: time.UTC})
	next, _ := m.Update(SyncMsg{Err: internalsync.ErrNoTimeInfo})
	m = next.(Model)

	if !m.noTime {
		t.Error("expected no-time condition")
	}
	if !strings.Contains(m.View(), "no time information") {
		t.Error("expected no time information message")
	}
}

func TestSyncStatusSynced(t *testing.T) {
	m := NewModel(Config{Zone: time.UTC})
	next, _ := m.Update(SyncMsg{
		Status: internalsync.Status{
			Synced: true,
			Offset: internalsync.Offset{
				Value:     10 * time.Millisecond,
				RoundTrip: 100 * time.Millisecond,
				Quality:   internalsync.QualityGood,
			},
		},
		Stats: internalsync.NetworkStats{Samples: 4, Average: 100 * time.Millisecond, Condition: internalsync.QualityGood},
	})
	m = next.(Model)

	view := m.View()
	if !strings.Contains(view, "Offset +10ms") {
		t.Errorf("expected offset in view, got:\n%s", view)
	}
	if !strings.Contains(view, "RTT 100ms") {
		t.Error("expected round trip in view")
	}
	if !strings.Contains(view, "avg 100ms") {
		t.Error("expected network stats in view")
	}
}

func TestAlarmFormSubmit(t *testing.T) {
	controls := NewControls()
	m := NewModel(Config{Zone: time.UTC, Controls: controls})

	tab := tea.KeyMsg{Type: tea.KeyTab}
	m = press(m, runes("a"))
	if !m.form.open {
		t.Fatal("expected form to open")
	}

	m = press(m,
		runes("1"), runes("2"), tab,
		runes("3"), runes("0"), tab,
		runes("0"), runes("5"), tab,
		// Disable the 60s pre-alert
		tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}},
		tea.KeyMsg{Type: tea.KeyEnter},
	)

	if m.form.open {
		t.Errorf("expected form to close, error: %s", m.form.err)
	}

	select {
	case spec := <-controls.Alarms:
		if spec.Target != (alarm.TimeOfDay{Hour: 12, Minute: 30, Second: 5}) {
			t.Errorf("unexpected target %v", spec.Target)
		}
		if len(spec.PreAlerts) != 2 || spec.PreAlerts[0] != 30 || spec.PreAlerts[1] != 10 {
			t.Errorf("expected [30 10], got %v", spec.PreAlerts)
		}
		if !spec.Options.Sound || !spec.Options.Highlight {
			t.Errorf("expected default options on, got %+v", spec.Options)
		}
	default:
		t.Fatal("expected alarm request")
	}
}

func TestAlarmFormRejectsIncompleteInput(t *testing.T) {
	controls := NewControls()
	m := NewModel(Config{Zone: time.UTC, Controls: controls})

	m = press(m, runes("a"), runes("9"), tea.KeyMsg{Type: tea.KeyEnter})

	if !m.form.open {
		t.Error("expected form to stay open")
	}
	if m.form.err == "" {
		t.Error("expected validation message")
	}
	select {
	case <-controls.Alarms:
		t.Error("expected no alarm request")
	default:
	}

	m = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.form.open || m.form.err != "" {
		t.Error("expected esc to close and clear the form")
	}
}

func TestFormBackspace(t *testing.T) {
	m := NewModel(Config{Zone: time.UTC})
	m = press(m, runes("a"), runes("1"), runes("2"), runes("3"), tea.KeyMsg{Type: tea.KeyBackspace})

	if m.form.text[0] != "1" {
		t.Errorf("expected two-digit limit then backspace to leave 1, got %q", m.form.text[0])
	}
}

func TestHighlightAfterPreAlert(t *testing.T) {
	now := time.Date(2026, 10, 18, 11, 59, 30, 0, time.UTC)
	spec, err := alarm.NewSpec(alarm.TimeOfDay{Hour: 12}, []int{60}, alarm.Options{Highlight: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, err := alarm.Schedule(spec, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m := NewModel(Config{Zone: time.UTC})
	next, _ := m.Update(AlarmMsg{State: st, Active: true})
	m = next.(Model)
	if m.highlighted() {
		t.Error("expected no highlight before any threshold")
	}

	st, events := alarm.Tick(st, now)
	if len(events) != 1 {
		t.Fatalf("expected one pre-alert, got %d", len(events))
	}
	next, _ = m.Update(AlarmMsg{State: st, Active: true})
	m = next.(Model)
	next, _ = m.Update(EventMsg(events[0]))
	m = next.(Model)

	if !m.highlighted() {
		t.Error("expected highlight after pre-alert")
	}
	if !strings.Contains(m.View(), "60 seconds left") {
		t.Error("expected pre-alert message")
	}
}

func TestCancelAndQuitKeys(t *testing.T) {
	controls := NewControls()
	m := NewModel(Config{Zone: time.UTC, Controls: controls})

	// Cancel without an alarm is ignored
	m = press(m, runes("c"))
	select {
	case <-controls.Cancel:
		t.Error("expected no cancel without an alarm")
	default:
	}

	m.hasAlarm = true
	m = press(m, runes("c"), runes("r"))
	if len(controls.Cancel) != 1 || len(controls.Resync) != 1 {
		t.Error("expected cancel and resync requests")
	}

	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Error("expected quit command")
	}
	if len(controls.Quit) != 1 {
		t.Error("expected quit request")
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := map[int]string{
		0:    "00:00:00",
		-5:   "00:00:00",
		65:   "00:01:05",
		3725: "01:02:05",
	}
	for sec, want := range tests {
		if got := formatRemaining(sec); got != want {
			t.Errorf("formatRemaining(%d) = %s, want %s", sec, got, want)
		}
	}
}
