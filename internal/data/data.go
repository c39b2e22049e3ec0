package data

import (
	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/biz/repo"
)

// Repositories contains all repositories
type Repositories struct {
	Conversation repo.ConversationRepo
	Message      repo.MessageRepo
	Notifier     repo.Notifier

	store *Store
}

// NewRepositories creates all repositories over one store
func NewRepositories(dbPath, sideChannelURL string, log zerolog.Logger) (*Repositories, error) {
	store, err := NewStore(dbPath, log)
	if err != nil {
		return nil, err
	}

	return &Repositories{
		Conversation: store,
		Message:      store,
		Notifier:     NewSideChannelNotifier(sideChannelURL, log),
		store:        store,
	}, nil
}

// Close closes the underlying store
func (r *Repositories) Close() error {
	return r.store.Close()
}
