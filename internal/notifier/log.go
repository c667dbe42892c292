package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/powa-team/pgtop/internal/logger"
	"github.com/powa-team/pgtop/internal/model"
)

// LogNotifier writes reports to the log file.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a log notifier.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.Noop()
	}
	return &LogNotifier{log: log}
}

// Name returns the notifier name.
func (l *LogNotifier) Name() string {
	return "log"
}

// Send logs one line per host, at warning level when a host is over its limit.
func (l *LogNotifier) Send(ctx context.Context, report *model.Report) error {
	if !report.Connected {
		l.log.Warn("capacity report: not connected")
		return nil
	}

	for _, h := range report.Hosts {
		line := fmt.Sprintf("capacity %s: %d/%d sessions (%.1f%%)",
			h.Host.ID(), h.Sessions, h.MaxConnections, h.UsagePercent)
		if h.Warning {
			l.log.Warn("%s over limit", line)
		} else {
			l.log.Info("%s", line)
		}
	}

	l.log.Info("capacity report: %d blocked, %d slow statements", report.BlockedCount, report.SlowCount)
	for i, rec := range report.TopSessions {
		l.log.Info("  %d. %s cpu=%.1f%% io=%.0fB/s %s",
			i+1, rec.Identity(), 100*rec.Stats.CPU(), rec.Stats.IO(),
			previewSQL(rec.Current.Query.String, 60))
	}
	return nil
}

// previewSQL collapses whitespace and cuts the text to n runes.
func previewSQL(query string, n int) string {
	query = strings.Join(strings.Fields(query), " ")
	runes := []rune(query)
	if len(runes) <= n {
		return query
	}
	return string(runes[:n-3]) + "..."
}
