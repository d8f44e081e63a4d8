package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"moex-panic-scanner/internal/detector"
)

func redSignal() *detector.PanicSignal {
	return &detector.PanicSignal{
		Instrument:     "SBER",
		DetectedAt:     time.Date(2026, 4, 15, 12, 30, 0, 0, time.UTC),
		SignalType:     detector.SignalPanic,
		RSI14:          24,
		VolumeRatio:    2.3,
		FinalLevel:     detector.LevelRed,
		Price:          310.5,
		RiskScore:      42,
		Interpretation: "Heavy panic selling",
		Recommendation: "Strong contrarian buy setup",
		ClusterSummary: "1 volume zone(s): 305.00 (100.0%, support)",
	}
}

func TestFormatSignal(t *testing.T) {
	body := FormatSignal(redSignal())

	for _, want := range []string{"PANIC SBER", "310.50", "RSI14 24.0", "×2.3", "risk 42", "Zones:"} {
		if !strings.Contains(body, want) {
			t.Errorf("formatted signal missing %q:\n%s", want, body)
		}
	}
}

func TestSignalTitleByType(t *testing.T) {
	s := redSignal()
	if title := signalTitle(s); !strings.Contains(title, "Panic") || !strings.Contains(title, "SBER") {
		t.Errorf("panic title = %q", title)
	}
	s.SignalType = detector.SignalGreed
	if title := signalTitle(s); !strings.Contains(title, "Greed") {
		t.Errorf("greed title = %q", title)
	}
}

type recordingNotifier struct {
	sent []string
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(_ context.Context, title, message string) error {
	r.sent = append(r.sent, title)
	return nil
}

func TestManagerDisabledSendsNothing(t *testing.T) {
	rec := &recordingNotifier{}
	m := &Manager{notifiers: []Notifier{rec}, enabled: false}

	m.NotifySignal(context.Background(), redSignal())
	if len(rec.sent) != 0 {
		t.Errorf("disabled manager delivered %d messages", len(rec.sent))
	}
}

func TestManagerFansOut(t *testing.T) {
	a, b := &recordingNotifier{}, &recordingNotifier{}
	m := &Manager{notifiers: []Notifier{a, b}, enabled: true}

	m.NotifySignal(context.Background(), redSignal())
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("expected one delivery per channel, got %d and %d", len(a.sent), len(b.sent))
	}
}

func TestManagerWithoutChannelsIsDisabled(t *testing.T) {
	m := NewManager(Config{Enabled: true})
	if m.Enabled() {
		t.Error("manager with no channels should report disabled")
	}
}
