package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/powa-team/pgtop/internal/logger"
	"github.com/powa-team/pgtop/internal/model"
)

type staticStatus model.Status

func (s staticStatus) Status() model.Status { return model.Status(s) }

// mockNotifier records the reports it was handed.
type mockNotifier struct {
	mu      sync.Mutex
	reports []*model.Report
	err     error

	// block, when set, holds Send until it is closed.
	block   chan struct{}
	started chan struct{}
}

func (m *mockNotifier) Send(ctx context.Context, report *model.Report) error {
	if m.block != nil {
		close(m.started)
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return m.err
}

func (m *mockNotifier) Name() string {
	return "mock"
}

func (m *mockNotifier) sent() []*model.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.Report(nil), m.reports...)
}

func testStatus() staticStatus {
	host := model.Host{HostRef: model.HostRef{Address: "10.0.0.1", Port: 5432}, Primary: true, MaxConnections: 50}
	return staticStatus{
		Connected: true,
		Cycles:    3,
		Hosts:     []model.HostStatus{{Host: host, Sessions: 45}},
		Records: []model.ProcessRecord{
			{Host: host.HostRef, Current: model.SnapshotRow{PID: 1}},
			{Host: host.HostRef, Current: model.SnapshotRow{PID: 2}},
		},
		Alerts: []model.AlertEvent{{Kind: model.AlertLock, Identity: model.Identity{HostID: host.ID(), PID: 2}, Value: 1}},
	}
}

func newTestScheduler(n *mockNotifier, log logger.Logger) *Scheduler {
	return New(Options{
		Status:      testStatus(),
		Notifier:    n,
		Logger:      log,
		WarnPercent: 80,
		TopN:        1,
		Now:         func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) },
	})
}

func TestScheduler_RunNow(t *testing.T) {
	n := &mockNotifier{}
	sched := newTestScheduler(n, logger.Noop())

	sched.RunNow()

	reports := n.sent()
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if len(r.Hosts) != 1 || !r.Hosts[0].Warning {
		t.Errorf("host at 90%% of its budget should be flagged: %+v", r.Hosts)
	}
	if r.BlockedCount != 1 {
		t.Errorf("BlockedCount = %d, want 1", r.BlockedCount)
	}
	if len(r.TopSessions) != 1 || r.TopSessions[0].Current.PID != 1 {
		t.Errorf("TopSessions = %+v, want only pid 1", r.TopSessions)
	}
}

func TestScheduler_SendFailureIsLogged(t *testing.T) {
	n := &mockNotifier{err: errors.New("webhook down")}
	buf := logger.NewBufferLogger()
	sched := newTestScheduler(n, buf)

	sched.RunNow()

	if !buf.HasLevel("error") {
		t.Error("failed delivery should be logged as an error")
	}
	if sched.IsReporting() {
		t.Error("reporting flag should be cleared after a failed run")
	}
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	n := &mockNotifier{block: make(chan struct{}), started: make(chan struct{})}
	buf := logger.NewBufferLogger()
	sched := newTestScheduler(n, buf)

	done := make(chan struct{})
	go func() {
		sched.RunNow()
		close(done)
	}()
	<-n.started

	if !sched.IsReporting() {
		t.Error("scheduler should report an in-flight run")
	}
	sched.RunNow()
	if !buf.HasLevel("warn") {
		t.Error("overlapping run should be skipped with a warning")
	}

	close(n.block)
	<-done

	if got := len(n.sent()); got != 1 {
		t.Errorf("expected 1 report, got %d", got)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	sched := newTestScheduler(&mockNotifier{}, logger.Noop())

	if sched.IsRunning() {
		t.Error("Scheduler should not be running initially")
	}

	sched.Start()
	if !sched.IsRunning() {
		t.Error("Scheduler should be running after Start()")
	}

	// Start again should be no-op
	sched.Start()
	if !sched.IsRunning() {
		t.Error("Scheduler should still be running")
	}

	ctx := sched.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("Stop context should be done")
	}

	if sched.IsRunning() {
		t.Error("Scheduler should not be running after Stop()")
	}
}

func TestScheduler_Schedule(t *testing.T) {
	sched := newTestScheduler(&mockNotifier{}, logger.Noop())

	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 * * * * *", false},
		{"*/30 * * * * *", false},
		{"0 * * * *", true}, // five fields: seconds are required
		{"not a cron", true},
	}
	for _, tt := range tests {
		err := sched.Schedule(tt.expr)
		if (err != nil) != tt.wantErr {
			t.Errorf("Schedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
		}
	}
}

func TestScheduler_TimeoutConfig(t *testing.T) {
	sched := newTestScheduler(&mockNotifier{}, logger.Noop())

	if sched.reportTimeout != DefaultReportTimeout {
		t.Errorf("Default timeout = %v, want %v", sched.reportTimeout, DefaultReportTimeout)
	}

	sched.SetReportTimeout(10 * time.Second)
	if sched.reportTimeout != 10*time.Second {
		t.Errorf("Timeout = %v, want %v", sched.reportTimeout, 10*time.Second)
	}
}
