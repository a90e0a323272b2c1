package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vigil/internal/config"
)

const userAgent = "Vigil-Go/0.1.0"

// Service defines the notification surface exposed to sync components.
type Service interface {
	NotifyPermanentFailure(ctx context.Context, itemID, sessionID, reason string) error
	NotifySessionSynced(ctx context.Context, sessionID string, delivered int) error
	NotifyStorageError(ctx context.Context, err error) error
	NotifyOfflineBacklog(ctx context.Context, pending int, offlineFor time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
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

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:     topic,
		client:       client,
		sendErrors:   cfg.Notifications.Errors,
		sendSessions: cfg.Notifications.Sessions,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	sendErrors   bool
	sendSessions bool
}

func (n *ntfyService) NotifyPermanentFailure(ctx context.Context, itemID, sessionID, reason string) error {
	if !n.sendErrors {
		return nil
	}
	data := payload{
		title:    "Vigil - Delivery Failed",
		message:  fmt.Sprintf("Artifact %s (session %s) exhausted its retries: %s", itemID, sessionID, strings.TrimSpace(reason)),
		tags:     []string{"vigil", "delivery", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifySessionSynced(ctx context.Context, sessionID string, delivered int) error {
	if !n.sendSessions {
		return nil
	}
	data := payload{
		title:   "Vigil - Session Synced",
		message: fmt.Sprintf("Session %s fully synced: %d artifacts delivered", sessionID, delivered),
		tags:    []string{"vigil", "session", "synced"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStorageError(ctx context.Context, err error) error {
	if !n.sendErrors {
		return nil
	}
	message := "Local queue storage failed"
	if err != nil {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(err.Error()))
	}
	data := payload{
		title:    "Vigil - Storage Error",
		message:  message,
		tags:     []string{"vigil", "storage", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyOfflineBacklog(ctx context.Context, pending int, offlineFor time.Duration) error {
	if !n.sendErrors {
		return nil
	}
	offlineFor = offlineFor.Round(time.Second)
	data := payload{
		title:   "Vigil - Offline Backlog",
		message: fmt.Sprintf("%d artifacts waiting; offline for %s", pending, offlineFor),
		tags:    []string{"vigil", "offline", "backlog"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.sendErrors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Vigil - Error",
		message:  builder.String(),
		tags:     []string{"vigil", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Vigil - Test",
		message:  "Notification system test",
		tags:     []string{"vigil", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
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

type noopService struct{}

func (noopService) NotifyPermanentFailure(context.Context, string, string, string) error { return nil }
func (noopService) NotifySessionSynced(context.Context, string, int) error               { return nil }
func (noopService) NotifyStorageError(context.Context, error) error                      { return nil }
func (noopService) NotifyOfflineBacklog(context.Context, int, time.Duration) error       { return nil }
func (noopService) NotifyError(context.Context, error, string) error                     { return nil }
func (noopService) TestNotification(context.Context) error                               { return nil }
