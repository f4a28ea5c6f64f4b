package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/riskdesk/internal/observability"
)

type alertsMock struct {
	evaluateFn func() ([]observability.Alert, error)
}

func (m *alertsMock) Evaluate() ([]observability.Alert, error) {
	return m.evaluateFn()
}

type notifierMock struct {
	notifyFn func(alerts []observability.Alert) error
}

func (m *notifierMock) Notify(alerts []observability.Alert) error {
	return m.notifyFn(alerts)
}

// captureOutput points cmd output at a buffer for the duration of the test.
func captureOutput(t *testing.T, setOut func(w *bytes.Buffer)) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	setOut(&buf)
	t.Cleanup(func() { setOut(nil) })
	return &buf
}

func TestAlertsCmd_NilEngine(t *testing.T) {
	orig := AlertEngine
	defer func() { AlertEngine = orig }()
	AlertEngine = nil

	err := alertsCmd.RunE(alertsCmd, []string{})
	if err == nil {
		t.Fatal("expected error when AlertEngine is nil")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAlertsCmd_NoAlerts(t *testing.T) {
	orig := AlertEngine
	defer func() { AlertEngine = orig }()
	out := captureOutput(t, func(w *bytes.Buffer) { setCmdOut(alertsCmd, w) })

	AlertEngine = &alertsMock{
		evaluateFn: func() ([]observability.Alert, error) {
			return nil, nil
		},
	}

	if err := alertsCmd.RunE(alertsCmd, []string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "No active alerts.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestAlertsCmd_WithAlerts(t *testing.T) {
	orig := AlertEngine
	defer func() { AlertEngine = orig }()
	out := captureOutput(t, func(w *bytes.Buffer) { setCmdOut(alertsCmd, w) })

	AlertEngine = &alertsMock{
		evaluateFn: func() ([]observability.Alert, error) {
			return []observability.Alert{
				{Severity: observability.SeverityHigh, Message: "backend unreachable 5 times", TriggeredAt: time.Now().UTC()},
				{Severity: observability.SeverityLow, Message: "delete rolled back", TriggeredAt: time.Now().UTC()},
			}, nil
		},
	}

	if err := alertsCmd.RunE(alertsCmd, []string{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"2 active alert(s)", "[HIGH] backend unreachable 5 times", "[LOW] delete rolled back"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output should contain %q, got %q", want, out.String())
		}
	}
}

func TestAlertsCmd_EvaluateError(t *testing.T) {
	orig := AlertEngine
	defer func() { AlertEngine = orig }()

	AlertEngine = &alertsMock{
		evaluateFn: func() ([]observability.Alert, error) {
			return nil, errors.New("read failed")
		},
	}

	err := alertsCmd.RunE(alertsCmd, []string{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "evaluating alerts") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAlertsCmd_Notify(t *testing.T) {
	origEngine, origNotifier, origFlag := AlertEngine, Notifier, alertsNotify
	defer func() {
		AlertEngine = origEngine
		Notifier = origNotifier
		alertsNotify = origFlag
	}()
	out := captureOutput(t, func(w *bytes.Buffer) { setCmdOut(alertsCmd, w) })

	AlertEngine = &alertsMock{
		evaluateFn: func() ([]observability.Alert, error) {
			return []observability.Alert{{Severity: observability.SeverityMedium, Message: "stuck polling"}}, nil
		},
	}
	alertsNotify = true

	t.Run("no notifier", func(t *testing.T) {
		Notifier = nil
		err := alertsCmd.RunE(alertsCmd, []string{})
		if err == nil || !strings.Contains(err.Error(), "no notifier configured") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("sent", func(t *testing.T) {
		var sent []observability.Alert
		Notifier = &notifierMock{notifyFn: func(alerts []observability.Alert) error {
			sent = alerts
			return nil
		}}
		if err := alertsCmd.RunE(alertsCmd, []string{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(sent) != 1 {
			t.Fatalf("sent %d alerts, want 1", len(sent))
		}
		if !strings.Contains(out.String(), "Alerts sent.") {
			t.Errorf("output = %q", out.String())
		}
	})

	t.Run("notifier error", func(t *testing.T) {
		Notifier = &notifierMock{notifyFn: func([]observability.Alert) error {
			return errors.New("webhook returned 500")
		}}
		err := alertsCmd.RunE(alertsCmd, []string{})
		if err == nil || !strings.Contains(err.Error(), "sending alerts") {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
