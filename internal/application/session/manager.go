package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"tableside/internal/domain/repository"
)

// Manager owns the stable anonymous session identity that scopes every
// cart and order lookup. The id is generated once and persisted for the
// lifetime of the local store; it is never regenerated while present.
type Manager struct {
	store repository.BlobStore

	mu     sync.Mutex
	cached string
}

func NewManager(store repository.BlobStore) *Manager {
	return &Manager{store: store}
}

// SessionID returns the persisted identity, creating one on first use.
func (m *Manager) SessionID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != "" {
		return m.cached, nil
	}

	saved, err := m.store.Get(ctx, repository.KeySessionID)
	if err != nil {
		return "", fmt.Errorf("load session id: %w", err)
	}
	if len(saved) > 0 {
		m.cached = string(saved)
		return m.cached, nil
	}

	id := uuid.NewString()
	if err := m.store.Set(ctx, repository.KeySessionID, []byte(id)); err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	m.cached = id
	return id, nil
}
