package cron

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sahilchouksey/exam-harvester/services"
)

type fakeHarvester struct {
	mu   sync.Mutex
	runs []services.RunOptions
}

func (f *fakeHarvester) Run(_ context.Context, opts services.RunOptions) (services.StatsSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, opts)
	return services.StatsSnapshot{RunID: "test"}, nil
}

func (f *fakeHarvester) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func TestScheduleHarvestRuns(t *testing.T) {
	h := &fakeHarvester{}
	m := NewCronManager(h)

	if err := m.ScheduleHarvest("@every 1s", []string{"https://example.com/cat"}, 5); err != nil {
		t.Fatalf("ScheduleHarvest() error = %v", err)
	}
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for h.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if h.count() == 0 {
		t.Fatal("harvest never ran")
	}

	h.mu.Lock()
	got := h.runs[0]
	h.mu.Unlock()
	if got.Trigger != "cron" || got.Limit != 5 || len(got.CategoryURLs) != 1 {
		t.Errorf("run options = %+v", got)
	}
}

func TestScheduleHarvestRejectsBadSpec(t *testing.T) {
	m := NewCronManager(&fakeHarvester{})
	if err := m.ScheduleHarvest("not a schedule", nil, 0); err == nil {
		t.Error("expected an error for an invalid spec")
	}
}
