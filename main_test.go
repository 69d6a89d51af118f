// ABOUTME: Tests for command line helpers
// ABOUTME: Tests alarm flag parsing and comparison output
package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/checktime/checktime-go/internal/alarm"
	"github.com/checktime/checktime-go/internal/protocol"
)

func TestBuildAlarm(t *testing.T) {
	spec, err := buildAlarm("09:30:00", "10,60", alarm.Options{Sound: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Target != (alarm.TimeOfDay{Hour: 9, Minute: 30}) {
		t.Errorf("unexpected target %v", spec.Target)
	}
	if len(spec.PreAlerts) != 2 || spec.PreAlerts[0] != 60 {
		t.Errorf("expected leads sorted descending, got %v", spec.PreAlerts)
	}

	if _, err := buildAlarm("25:00:00", "60", alarm.Options{}); !errors.Is(err, alarm.ErrMalformedTime) {
		t.Errorf("expected ErrMalformedTime, got %v", err)
	}
	if _, err := buildAlarm("10:00:00", "60,x", alarm.Options{}); !errors.Is(err, alarm.ErrInvalidLead) {
		t.Errorf("expected ErrInvalidLead, got %v", err)
	}
}

func TestPrintComparison(t *testing.T) {
	var buf bytes.Buffer
	printComparison(&buf, &protocol.Comparison{
		TimeComparison: protocol.TimeComparison{
			TimeDifference:          1500,
			TimeDifferenceFormatted: "1.50s",
			Direction:               "ahead",
		},
		NetworkInfo: protocol.NetworkInfo{RTT: 40, NetworkDelay: 20, Reliability: "excellent"},
		Analysis:    protocol.Analysis{Accuracy: "high", TrustLevel: 95, Recommendation: "ok"},
		Metadata:    protocol.Metadata{Source: "https://example.com"},
	})

	out := buf.String()
	for _, want := range []string{"https://example.com", "1.50s", "target is ahead", "server is fast", "rtt 40.00ms", "trust 95%"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
