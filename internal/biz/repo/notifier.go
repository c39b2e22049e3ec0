package repo

import "context"

// Notifier is the best-effort side channel to the external automated-reply
// process. Callers fire and forget; errors are logged, never acted on.
type Notifier interface {
	NotifyTyping(ctx context.Context, typing bool) error
	NotifyTakeover(ctx context.Context, userID string, takeover bool, admin string) error
}
