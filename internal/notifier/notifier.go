// Package notifier delivers capacity reports to external channels.
package notifier

import (
	"context"
	"fmt"

	"github.com/powa-team/pgtop/internal/config"
	"github.com/powa-team/pgtop/internal/logger"
	"github.com/powa-team/pgtop/internal/model"
)

// Notifier is the interface for sending reports to external channels.
type Notifier interface {
	// Send delivers the report to the notification channel.
	Send(ctx context.Context, report *model.Report) error

	// Name returns the name of the notifier.
	Name() string
}

// New builds the notifier selected by cfg.Type.
func New(cfg *config.NotifierConfig, log logger.Logger) (Notifier, error) {
	switch cfg.Type {
	case "log", "":
		return NewLogNotifier(log), nil
	case "wecom":
		return NewWeComNotifier(cfg)
	default:
		return nil, fmt.Errorf("unknown notifier type %q", cfg.Type)
	}
}
