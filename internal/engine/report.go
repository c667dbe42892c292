package engine

import (
	"time"

	"github.com/powa-team/pgtop/internal/model"
)

// BuildReport summarises a status for the capacity report.
func BuildReport(status *model.Status, warnPercent float64, topN int, now time.Time) *model.Report {
	report := &model.Report{
		GeneratedAt:  now,
		CycleAt:      status.UpdatedAt,
		Connected:    status.Connected,
		BlockedCount: status.CountAlerts(model.AlertLock),
		SlowCount:    status.CountAlerts(model.AlertSlowStatement),
	}

	for _, h := range status.Hosts {
		usage := model.HostUsage{
			Host:           h.Host.HostRef,
			Sessions:       h.Sessions,
			MaxConnections: h.Host.MaxConnections,
		}
		if h.Host.MaxConnections > 0 {
			usage.UsagePercent = float64(h.Sessions) * 100 / float64(h.Host.MaxConnections)
			usage.Warning = usage.UsagePercent >= warnPercent
		}
		report.Hosts = append(report.Hosts, usage)
	}

	n := min(topN, len(status.Records))
	if n > 0 {
		report.TopSessions = append([]model.ProcessRecord(nil), status.Records[:n]...)
	}

	return report
}
