package worker

import (
	"testing"
	"time"
)

func TestHeartbeatIntervalFor(t *testing.T) {
	tests := []struct {
		name       string
		jobTimeout time.Duration
		want       time.Duration
	}{
		{"long timeout capped at default", 10 * time.Minute, 30 * time.Second},
		{"short timeout divided down", 15 * time.Second, 5 * time.Second},
		{"very short timeout floored", 2 * time.Second, time.Second},
		{"zero timeout falls back to default", 0, 30 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HeartbeatIntervalFor(tt.jobTimeout); got != tt.want {
				t.Errorf("HeartbeatIntervalFor(%s) = %s, want %s", tt.jobTimeout, got, tt.want)
			}
		})
	}
}

func TestNewWorkerDefaultsHeartbeat(t *testing.T) {
	converters := map[string]Converter{"office": NewOfficeConverter("soffice")}

	w, err := NewWorker(nil, []string{"office"}, converters, time.Second, 0, t.TempDir())
	if err != nil {
		t.Fatalf("NewWorker failed: %v", err)
	}
	if w.heartbeat != defaultHeartbeatInterval {
		t.Errorf("heartbeat = %s, want the default %s", w.heartbeat, defaultHeartbeatInterval)
	}

	w, err = NewWorker(nil, []string{"office"}, converters, time.Second, 5*time.Second, t.TempDir())
	if err != nil {
		t.Fatalf("NewWorker failed: %v", err)
	}
	if w.heartbeat != 5*time.Second {
		t.Errorf("heartbeat = %s, want the configured 5s", w.heartbeat)
	}
}

func TestNewWorkerRejectsQueueWithoutConverter(t *testing.T) {
	_, err := NewWorker(nil, []string{"email"}, map[string]Converter{}, time.Second, 0, t.TempDir())
	if err == nil {
		t.Error("NewWorker accepted a queue with no converter, want error")
	}
}
