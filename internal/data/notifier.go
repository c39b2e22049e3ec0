package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/biz/repo"
)

var _ repo.Notifier = (*SideChannelNotifier)(nil)

// SideChannelNotifier posts best-effort notifications to the external
// automated-reply process. Non-2xx responses are reported as errors so the
// caller can log them, but nothing is ever retried or rolled back.
type SideChannelNotifier struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewSideChannelNotifier creates the side-channel client. An empty baseURL
// disables it: every call becomes a logged no-op.
func NewSideChannelNotifier(baseURL string, log zerolog.Logger) *SideChannelNotifier {
	return &SideChannelNotifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log.With().Str("component", "side-channel").Logger(),
	}
}

// NotifyTyping posts the operator-typing signal
func (n *SideChannelNotifier) NotifyTyping(ctx context.Context, typing bool) error {
	return n.post(ctx, "/admin/typing", map[string]any{
		"typing": typing,
	})
}

// NotifyTakeover posts a takeover or release notification
func (n *SideChannelNotifier) NotifyTakeover(ctx context.Context, userID string, takeover bool, admin string) error {
	return n.post(ctx, "/admin/takeover", map[string]any{
		"userId":   userID,
		"takeover": takeover,
		"admin":    admin,
	})
}

func (n *SideChannelNotifier) post(ctx context.Context, path string, payload map[string]any) error {
	if n.baseURL == "" {
		n.log.Debug().Str("path", path).Msg("side channel disabled, dropping notification")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("side channel request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("side channel returned status %d", resp.StatusCode)
	}
	return nil
}
