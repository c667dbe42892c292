package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/powa-team/pgtop/internal/config"
	"github.com/powa-team/pgtop/internal/model"
)

// WeComNotifier sends reports to WeCom (WeChat Work) via webhook.
type WeComNotifier struct {
	webhookURL string
	retries    int
	retryDelay time.Duration
	client     *http.Client
}

// wecomMessage represents the WeCom webhook message format.
type wecomMessage struct {
	MsgType  string           `json:"msgtype"`
	Markdown *markdownContent `json:"markdown,omitempty"`
}

type markdownContent struct {
	Content string `json:"content"`
}

// wecomResponse represents the WeCom API response.
type wecomResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// NewWeComNotifier creates a new WeCom notifier.
func NewWeComNotifier(cfg *config.NotifierConfig) (*WeComNotifier, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("wecom notifier requires a webhook_url")
	}
	retryDelay, err := cfg.RetryDelayParsed()
	if err != nil {
		retryDelay = time.Second
	}

	return &WeComNotifier{
		webhookURL: cfg.WebhookURL,
		retries:    cfg.Retries,
		retryDelay: retryDelay,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns the notifier name.
func (w *WeComNotifier) Name() string {
	return "wecom"
}

// Send posts the report as a markdown message.
func (w *WeComNotifier) Send(ctx context.Context, report *model.Report) error {
	msg := wecomMessage{
		MsgType: "markdown",
		Markdown: &markdownContent{
			Content: formatMarkdown(report),
		},
	}
	return w.sendWithRetry(ctx, msg)
}

// formatMarkdown renders a report in the WeCom markdown dialect.
func formatMarkdown(report *model.Report) string {
	var sb strings.Builder

	icon := "✅"
	switch {
	case !report.Connected:
		icon = "🔴"
	case report.HasWarnings():
		icon = "⚠️"
	}
	sb.WriteString(fmt.Sprintf("## %s pgtop capacity report\n\n", icon))

	if !report.Connected {
		sb.WriteString("> Not connected to the cluster\n\n")
	} else {
		sb.WriteString(fmt.Sprintf("> **Last cycle**: %s\n", report.CycleAt.Format("2006-01-02 15:04:05")))
		sb.WriteString(fmt.Sprintf("> **Blocked sessions**: %d\n", report.BlockedCount))
		sb.WriteString(fmt.Sprintf("> **Slow statements**: %d\n\n", report.SlowCount))
	}

	if len(report.Hosts) > 0 {
		sb.WriteString("### Hosts\n")
		for _, h := range report.Hosts {
			mark := ""
			if h.Warning {
				mark = " 🟠"
			}
			sb.WriteString(fmt.Sprintf("- `%s`: %d/%d sessions (**%.1f%%**)%s\n",
				h.Host.ID(), h.Sessions, h.MaxConnections, h.UsagePercent, mark))
		}
		sb.WriteString("\n")
	}

	if len(report.TopSessions) > 0 {
		sb.WriteString("### Top sessions\n")
		for i, rec := range report.TopSessions {
			sb.WriteString(fmt.Sprintf("**%d. %s** %s@%s\n",
				i+1, rec.Identity(), rec.Current.UserName.String, rec.Current.DatabaseName.String))
			sb.WriteString(fmt.Sprintf("   - CPU: %.1f%% | I/O: %.0f B/s\n", 100*rec.Stats.CPU(), rec.Stats.IO()))
			if rec.Current.Query.Valid {
				sb.WriteString(fmt.Sprintf("   - `%s`\n", previewSQL(rec.Current.Query.String, 80)))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("---\n")
	sb.WriteString(fmt.Sprintf("*Generated at %s*\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	return sb.String()
}

// sendWithRetry sends the message with exponential backoff retry.
func (w *WeComNotifier) sendWithRetry(ctx context.Context, msg wecomMessage) error {
	var lastErr error
	delay := w.retryDelay

	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}

		err := w.send(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("failed after %d retries: %w", w.retries, lastErr)
}

// send performs the actual HTTP request to WeCom.
func (w *WeComNotifier) send(ctx context.Context, msg wecomMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result wecomResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if result.ErrCode != 0 {
		return fmt.Errorf("wecom error: %d - %s", result.ErrCode, result.ErrMsg)
	}

	return nil
}
