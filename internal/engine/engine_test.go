package engine

import (
	"regexp"
	"testing"
	"time"

	"gopkg.in/guregu/null.v3"

	"github.com/powa-team/pgtop/internal/config"
	"github.com/powa-team/pgtop/internal/model"
)

var hostA = model.HostRef{Address: "10.0.0.1", Port: 5432}

func testRules() Rules {
	return Rules{
		StatementAgeThreshold: 1000,
		ReservedUser:          "postgres",
		BulkCopy:              regexp.MustCompile(`(?i)^\s*COPY\s+`),
	}
}

func record(pid int64, mutate func(*model.ProcessRecord)) *model.ProcessRecord {
	rec := &model.ProcessRecord{
		Host:    hostA,
		Current: model.SnapshotRow{PID: pid, UserName: null.StringFrom("app"), Query: null.StringFrom("SELECT 1")},
	}
	if mutate != nil {
		mutate(rec)
	}
	return rec
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*model.ProcessRecord)
		wantHighlight model.Highlight
		wantAlerts    []string
	}{
		{
			name:          "default",
			wantHighlight: model.ColorWhite,
		},
		{
			name:          "blocked",
			mutate:        func(r *model.ProcessRecord) { r.Current.BlockingPID = null.IntFrom(42) },
			wantHighlight: model.ColorRed,
			wantAlerts:    []string{"lock=10_42"},
		},
		{
			name:          "just below threshold",
			mutate:        func(r *model.ProcessRecord) { r.Current.StatementAge = null.IntFrom(999) },
			wantHighlight: model.ColorWhite,
		},
		{
			name:          "at threshold",
			mutate:        func(r *model.ProcessRecord) { r.Current.StatementAge = null.IntFrom(1000) },
			wantHighlight: model.ColorWhite | model.ModeBold,
			wantAlerts:    []string{"slow_statement=10_1000"},
		},
		{
			name: "reserved user is bold but silent",
			mutate: func(r *model.ProcessRecord) {
				r.Current.StatementAge = null.IntFrom(5000)
				r.Current.UserName = null.StringFrom("POSTGRES")
			},
			wantHighlight: model.ColorWhite | model.ModeBold,
		},
		{
			name: "bulk copy is bold but silent",
			mutate: func(r *model.ProcessRecord) {
				r.Current.StatementAge = null.IntFrom(5000)
				r.Current.Query = null.StringFrom("  copy orders FROM stdin")
			},
			wantHighlight: model.ColorWhite | model.ModeBold,
		},
		{
			name: "blocked and slow stack",
			mutate: func(r *model.ProcessRecord) {
				r.Current.BlockingPID = null.IntFrom(7)
				r.Current.StatementAge = null.IntFrom(2000)
			},
			wantHighlight: model.ColorRed | model.ModeBold,
			wantAlerts:    []string{"lock=10_7", "slow_statement=10_2000"},
		},
		{
			name: "absent statement age",
			mutate: func(r *model.ProcessRecord) {
				r.Current.StatementAge = null.Int{}
				r.Current.ProcessAge = 99999
			},
			wantHighlight: model.ColorWhite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			highlight, alerts := Classify(record(10, tt.mutate), testRules())

			if highlight != tt.wantHighlight {
				t.Errorf("highlight = %08b, want %08b", highlight, tt.wantHighlight)
			}
			if len(alerts) != len(tt.wantAlerts) {
				t.Fatalf("got %d alerts %v, want %v", len(alerts), alerts, tt.wantAlerts)
			}
			for i, a := range alerts {
				if a.String() != tt.wantAlerts[i] {
					t.Errorf("alert %d = %q, want %q", i, a.String(), tt.wantAlerts[i])
				}
			}
		})
	}
}

func TestClassify_BlockedOverridesColor(t *testing.T) {
	rec := record(1, func(r *model.ProcessRecord) { r.Current.BlockingPID = null.IntFrom(42) })
	highlight, _ := Classify(rec, testRules())

	if highlight.Color() != BlockedColor {
		t.Errorf("color = %d, want %d", highlight.Color(), BlockedColor)
	}
	if highlight.Has(model.ModeBold) {
		t.Error("blocked alone must not set bold")
	}
}

func TestRank(t *testing.T) {
	withCPU := func(cpu float64) func(*model.ProcessRecord) {
		return func(r *model.ProcessRecord) { r.Stats.CPUUser = cpu }
	}

	tests := []struct {
		name    string
		records []*model.ProcessRecord
		want    []int64
	}{
		{
			name: "cpu wins over everything else",
			records: []*model.ProcessRecord{
				record(1, func(r *model.ProcessRecord) {
					r.Stats.CPUUser = 0.1
					r.Current.BlockingPID = null.IntFrom(99)
					r.Current.StatementAge = null.IntFrom(100000)
					r.Stats.IORead = 1e9
					r.Current.ProcessAge = 1e6
				}),
				record(2, withCPU(0.2)),
			},
			want: []int64{2, 1},
		},
		{
			name: "user and system cpu combine",
			records: []*model.ProcessRecord{
				record(1, func(r *model.ProcessRecord) { r.Stats.CPUUser = 0.3 }),
				record(2, func(r *model.ProcessRecord) { r.Stats.CPUUser, r.Stats.CPUSystem = 0.2, 0.2 }),
			},
			want: []int64{2, 1},
		},
		{
			name: "blocking breaks cpu ties",
			records: []*model.ProcessRecord{
				record(1, func(r *model.ProcessRecord) { r.Current.StatementAge = null.IntFrom(500) }),
				record(2, func(r *model.ProcessRecord) { r.Current.BlockingPID = null.IntFrom(1) }),
			},
			want: []int64{2, 1},
		},
		{
			name: "statement age breaks blocking ties",
			records: []*model.ProcessRecord{
				record(1, func(r *model.ProcessRecord) { r.Stats.IOWrite = 4096 }),
				record(2, func(r *model.ProcessRecord) { r.Current.StatementAge = null.IntFrom(3) }),
			},
			want: []int64{2, 1},
		},
		{
			name: "io breaks statement age ties",
			records: []*model.ProcessRecord{
				record(1, func(r *model.ProcessRecord) { r.Current.ProcessAge = 100 }),
				record(2, func(r *model.ProcessRecord) { r.Stats.IORead = 1 }),
			},
			want: []int64{2, 1},
		},
		{
			name: "process age breaks io ties",
			records: []*model.ProcessRecord{
				record(1, func(r *model.ProcessRecord) { r.Current.ProcessAge = 5 }),
				record(2, func(r *model.ProcessRecord) { r.Current.ProcessAge = 50 }),
			},
			want: []int64{2, 1},
		},
		{
			name: "negative values count as zero",
			records: []*model.ProcessRecord{
				record(1, func(r *model.ProcessRecord) { r.Current.ProcessAge = -50 }),
				record(2, func(r *model.ProcessRecord) { r.Current.ProcessAge = 0 }),
			},
			want: []int64{1, 2},
		},
		{
			name: "identity makes the order total",
			records: []*model.ProcessRecord{
				record(3, nil),
				record(1, nil),
				record(2, nil),
			},
			want: []int64{1, 2, 3},
		},
		{
			name: "large values",
			records: []*model.ProcessRecord{
				record(1, withCPU(123456789.5)),
				record(2, withCPU(123456789.25)),
			},
			want: []int64{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Rank(tt.records)

			for i, rec := range tt.records {
				if rec.Current.PID != tt.want[i] {
					t.Errorf("position %d = pid %d, want %d", i, rec.Current.PID, tt.want[i])
				}
			}
		})
	}
}

func TestRank_HostTieBreak(t *testing.T) {
	hostB := model.HostRef{Address: "10.0.0.2", Port: 5432}
	a := record(7, nil)
	b := record(7, func(r *model.ProcessRecord) { r.Host = hostB })

	records := []*model.ProcessRecord{b, a}
	Rank(records)

	if records[0] != a || records[1] != b {
		t.Errorf("equal records must order by host id")
	}
}

func TestEngine_Analyze(t *testing.T) {
	rules, err := RulesFromConfig(&config.Default().Monitor)
	if err != nil {
		t.Fatalf("RulesFromConfig() error = %v", err)
	}
	e := New(rules)

	records := []*model.ProcessRecord{
		record(1, nil),
		record(2, func(r *model.ProcessRecord) { r.Current.BlockingPID = null.IntFrom(1) }),
		record(3, func(r *model.ProcessRecord) { r.Stats.CPUUser = 0.9 }),
	}

	alerts := e.Analyze(records)

	if len(alerts) != 1 || alerts[0].Kind != model.AlertLock {
		t.Errorf("alerts = %v, want one lock alert", alerts)
	}
	if records[0].Current.PID != 3 || records[1].Current.PID != 2 || records[2].Current.PID != 1 {
		t.Errorf("unexpected order: %d %d %d", records[0].Current.PID, records[1].Current.PID, records[2].Current.PID)
	}
	if records[1].Highlight.Color() != model.ColorRed {
		t.Errorf("blocked record highlight = %d", records[1].Highlight)
	}
}

func TestRulesFromConfig_InvalidPattern(t *testing.T) {
	cfg := config.Default().Monitor
	cfg.BulkCopyPattern = "(COPY"
	if _, err := RulesFromConfig(&cfg); err == nil {
		t.Error("RulesFromConfig() expected error for invalid pattern")
	}
}

func TestRulesFromConfig_SuppressionDisabled(t *testing.T) {
	cfg := config.Default().Monitor
	cfg.ReservedUser = ""
	cfg.BulkCopyPattern = ""

	rules, err := RulesFromConfig(&cfg)
	if err != nil {
		t.Fatalf("RulesFromConfig() error = %v", err)
	}
	if rules.BulkCopy != nil {
		t.Errorf("BulkCopy = %v, want nil", rules.BulkCopy)
	}

	for _, rec := range []*model.ProcessRecord{
		record(1, func(r *model.ProcessRecord) {
			r.Current.UserName = null.StringFrom("postgres")
			r.Current.StatementAge = null.IntFrom(5000)
		}),
		record(2, func(r *model.ProcessRecord) {
			r.Current.Query = null.StringFrom("COPY orders FROM stdin")
			r.Current.StatementAge = null.IntFrom(5000)
		}),
	} {
		_, events := Classify(rec, rules)
		if len(events) != 1 || events[0].Kind != model.AlertSlowStatement {
			t.Errorf("pid %d: events = %v, want one slow statement alert", rec.Current.PID, events)
		}
	}
}

func TestBuildReport(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	status := &model.Status{
		Connected: true,
		UpdatedAt: now.Add(-time.Second),
		Hosts: []model.HostStatus{
			{Host: model.Host{HostRef: hostA, Primary: true, MaxConnections: 100}, Sessions: 80},
			{Host: model.Host{HostRef: model.HostRef{Address: "10.0.0.2", Port: 5432}, MaxConnections: 100}, Sessions: 79},
			{Host: model.Host{HostRef: model.HostRef{Address: "10.0.0.3", Port: 5432}}, Sessions: 3},
		},
		Records: []model.ProcessRecord{*record(1, nil), *record(2, nil), *record(3, nil)},
		Alerts: []model.AlertEvent{
			{Kind: model.AlertLock}, {Kind: model.AlertLock}, {Kind: model.AlertSlowStatement},
		},
	}

	report := BuildReport(status, 80, 2, now)

	if !report.Connected || !report.GeneratedAt.Equal(now) {
		t.Errorf("unexpected header: %+v", report)
	}
	if len(report.Hosts) != 3 {
		t.Fatalf("got %d hosts, want 3", len(report.Hosts))
	}
	if !report.Hosts[0].Warning || report.Hosts[0].UsagePercent != 80 {
		t.Errorf("host 0 = %+v, want warning at 80%%", report.Hosts[0])
	}
	if report.Hosts[1].Warning {
		t.Errorf("host 1 = %+v, want no warning", report.Hosts[1])
	}
	if report.Hosts[2].Warning || report.Hosts[2].UsagePercent != 0 {
		t.Errorf("host without budget = %+v", report.Hosts[2])
	}
	if !report.HasWarnings() {
		t.Error("HasWarnings() = false")
	}
	if report.BlockedCount != 2 || report.SlowCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", report.BlockedCount, report.SlowCount)
	}
	if len(report.TopSessions) != 2 || report.TopSessions[0].Current.PID != 1 {
		t.Errorf("TopSessions = %+v", report.TopSessions)
	}
}
