// ABOUTME: High-level Check Time library API
// ABOUTME: Provides a synchronized Clock and server-time Alarms for most use cases
// Package checktime projects a remote server's clock onto the local clock and
// runs alarms against it.
//
// This is the main entry point for library users, providing:
//   - Clock: keep a round-trip corrected offset to a server and read its time
//   - Alarm: count down to a time of day on that clock with pre-alerts
//
// Example:
//
//	clock, err := checktime.NewClock(checktime.ClockConfig{URL: "example.com"})
//	clock.Start()
//	defer clock.Stop()
//
//	alarm, err := clock.NewAlarm("09:00:00", []int{60, 30, 10})
//	for ev := range alarm.Events() {
//	    fmt.Println(ev.Kind, ev.Remaining)
//	}
package checktime
