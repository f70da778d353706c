package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"segue/internal/config"
)

const userAgent = "segue"

// Event identifies a notification-worthy moment in an update session.
type Event string

const (
	EventUpdateAvailable   Event = "update_available"
	EventDownloadCompleted Event = "download_completed"
	EventUpdateInstalled   Event = "update_installed"
	EventUpdateFailed      Event = "update_failed"
	EventRolledBack        Event = "update_rolled_back"
	EventTest              Event = "test"
)

// Payload carries event-specific values for message formatting.
type Payload map[string]any

// Service publishes update events to the operator.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
	Enabled() bool
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	server := strings.TrimRight(strings.TrimSpace(cfg.Notifications.NtfyServer), "/")
	if server == "" {
		server = config.DefaultNtfyServer
	}

	return &ntfyService{
		endpoint: server + "/" + topic,
		client:   &http.Client{Timeout: timeout},
		appName:  strings.TrimSpace(cfg.App.Name),
		enabled: map[Event]bool{
			EventUpdateAvailable:   cfg.Notifications.Available,
			EventDownloadCompleted: cfg.Notifications.Downloaded,
			EventUpdateInstalled:   cfg.Notifications.Installed,
			EventUpdateFailed:      cfg.Notifications.Failures,
			EventRolledBack:        cfg.Notifications.Failures,
			EventTest:              true,
		},
	}
}

type note struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	appName  string
	enabled  map[Event]bool
}

func (n *ntfyService) Enabled() bool {
	return true
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	data, ok := n.render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) render(event Event, payload Payload) (note, bool) {
	app := n.appName
	if app == "" {
		app = "application"
	}
	version := payload.text("version")
	switch event {
	case EventUpdateAvailable:
		message := fmt.Sprintf("🆕 Update available: %s %s", app, version)
		if current := payload.text("current"); current != "" {
			message = fmt.Sprintf("%s (current %s)", message, current)
		}
		if notes := payload.text("notes_url"); notes != "" {
			message = fmt.Sprintf("%s\nNotes: %s", message, notes)
		}
		return note{
			title:   "Segue - Update Available",
			message: message,
			tags:    []string{"segue", "update", "available"},
		}, true
	case EventDownloadCompleted:
		return note{
			title:   "Segue - Downloaded",
			message: fmt.Sprintf("📦 Downloaded and verified: %s %s", app, version),
			tags:    []string{"segue", "download", "completed"},
		}, true
	case EventUpdateInstalled:
		return note{
			title:    "Segue - Update Installed",
			message:  fmt.Sprintf("✅ Installed: %s %s (restart pending)", app, version),
			tags:     []string{"segue", "install", "completed"},
			priority: "high",
		}, true
	case EventUpdateFailed:
		var builder strings.Builder
		builder.WriteString("❌ Update failed")
		if contextLabel := payload.text("context"); contextLabel != "" {
			builder.WriteString(" during ")
			builder.WriteString(contextLabel)
		}
		builder.WriteString(": ")
		if detail := payload.text("error"); detail != "" {
			builder.WriteString(detail)
		} else {
			builder.WriteString("unknown")
		}
		return note{
			title:    "Segue - Update Failed",
			message:  builder.String(),
			tags:     []string{"segue", "error", "alert"},
			priority: "high",
		}, true
	case EventRolledBack:
		return note{
			title:    "Segue - Rolled Back",
			message:  fmt.Sprintf("↩️ Install of %s %s failed; previous version restored", app, version),
			tags:     []string{"segue", "rollback", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return note{
			title:    "Segue - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"segue", "test"},
			priority: "low",
		}, true
	default:
		return note{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data note) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// text renders a payload value for message interpolation. Errors render via
// Error(), everything else through fmt.
func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	if err, ok := value.(error); ok {
		return strings.TrimSpace(err.Error())
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func (noopService) Enabled() bool { return false }
