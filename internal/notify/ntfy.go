package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// NtfyPush pushes notifications to an ntfy.sh (or self-hosted ntfy) topic.
// Topic may be a bare topic name, expanded against the default ntfy.sh
// host, or a full URL for a self-hosted server.
type NtfyPush struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewNtfyPush builds a push sink for topic, optionally authenticated with
// token for reserved topics.
func NewNtfyPush(topic, token string, logger *slog.Logger) *NtfyPush {
	url := topic
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		url = "https://ntfy.sh/" + topic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NtfyPush{url: url, token: token, client: http.DefaultClient, logger: logger}
}

// Notify posts title/body to the configured topic. Per the Sink contract
// it never blocks its caller — the send happens on its own goroutine and
// failures are only logged.
func (n *NtfyPush) Notify(title, body string) {
	go n.post(title, body)
}

func (n *NtfyPush) post(title, body string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewBufferString(body))
	if err != nil {
		n.logger.Warn("ntfy: build request failed", "error", err)
		return
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", "default")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("ntfy: post failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		n.logger.Warn("ntfy: rejected", "status", fmt.Sprintf("%d", resp.StatusCode))
	}
}
