// ABOUTME: Alarm entry form for the TUI
// ABOUTME: Collects hour/minute/second text, pre-alert toggles, and sound/highlight options
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/checktime/checktime-go/internal/alarm"
)

const (
	fieldHour = iota
	fieldMinute
	fieldSecond
	fieldPre60
	fieldPre30
	fieldPre10
	fieldSound
	fieldHighlight
	fieldCount
)

// alarmForm is the modal shown while the user sets an alarm
type alarmForm struct {
	open   bool
	focus  int
	text   [3]string // hour, minute, second
	pre    [3]bool   // 60, 30, 10
	sound  bool
	bright bool
	err    string
}

func newAlarmForm() alarmForm {
	return alarmForm{pre: [3]bool{true, true, true}, sound: true, bright: true}
}

// update handles a key while the form is open. It returns a spec when the
// user submits valid input.
func (f alarmForm) update(msg tea.KeyMsg) (alarmForm, *alarm.Spec) {
	switch msg.String() {
	case "esc":
		f.open = false
		f.err = ""
		return f, nil
	case "tab", "down":
		f.focus = (f.focus + 1) % fieldCount
	case "shift+tab", "up":
		f.focus = (f.focus + fieldCount - 1) % fieldCount
	case "backspace":
		if f.focus <= fieldSecond {
			s := f.text[f.focus]
			if len(s) > 0 {
				f.text[f.focus] = s[:len(s)-1]
			}
		}
	case " ", "x":
		f.toggle()
	case "enter":
		spec, err := f.spec()
		if err != nil {
			f.err = err.Error()
			return f, nil
		}
		f.open = false
		f.err = ""
		return f, &spec
	default:
		if f.focus <= fieldSecond && msg.Type == tea.KeyRunes {
			// Two digits per field, like the original number inputs
			for _, r := range msg.Runes {
				if len(f.text[f.focus]) < 2 {
					f.text[f.focus] += string(r)
				}
			}
		}
	}
	return f, nil
}

func (f *alarmForm) toggle() {
	switch f.focus {
	case fieldPre60, fieldPre30, fieldPre10:
		i := f.focus - fieldPre60
		f.pre[i] = !f.pre[i]
	case fieldSound:
		f.sound = !f.sound
	case fieldHighlight:
		f.bright = !f.bright
	}
}

// spec validates the form into an alarm spec
func (f alarmForm) spec() (alarm.Spec, error) {
	tod, err := alarm.ParseTimeOfDay(f.text[0], f.text[1], f.text[2])
	if err != nil {
		return alarm.Spec{}, err
	}

	var leads []int
	for i, lead := range []int{60, 30, 10} {
		if f.pre[i] {
			leads = append(leads, lead)
		}
	}

	return alarm.NewSpec(tod, leads, alarm.Options{Sound: f.sound, Highlight: f.bright})
}

func (f alarmForm) view() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Set alarm"))
	b.WriteString("\n\n")

	labels := []string{"Hour", "Minute", "Second"}
	for i, label := range labels {
		value := f.text[i]
		if value == "" {
			value = "--"
		}
		b.WriteString(f.line(i, fmt.Sprintf("%-7s %s", label+":", value)))
	}

	b.WriteString("\n")
	for i, lead := range []int{60, 30, 10} {
		b.WriteString(f.line(fieldPre60+i, fmt.Sprintf("%s %ds before", checkbox(f.pre[i]), lead)))
	}
	b.WriteString(f.line(fieldSound, fmt.Sprintf("%s Sound", checkbox(f.sound))))
	b.WriteString(f.line(fieldHighlight, fmt.Sprintf("%s Red highlight", checkbox(f.bright))))

	if f.err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(f.err))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab:Next  space:Toggle  enter:Set  esc:Cancel"))
	return b.String()
}

func (f alarmForm) line(field int, text string) string {
	if f.focus == field {
		return focusStyle.Render("> "+text) + "\n"
	}
	return "  " + text + "\n"
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}
