package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableside/internal/domain/repository"
)

type fakeStore struct {
	mu     sync.Mutex
	data   map[string][]byte
	sets   int
	getErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (s *fakeStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.data[key], nil
}

func (s *fakeStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	s.data[key] = value
	return nil
}

func (s *fakeStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func TestSessionID_GeneratedOnceAndPersisted(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(store)
	ctx := context.Background()

	first, err := manager.SessionID(ctx)
	require.NoError(t, err)
	require.NoError(t, uuid.Validate(first))

	second, err := manager.SessionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.sets, "identity is written exactly once")
	assert.Equal(t, first, string(store.data[repository.KeySessionID]))
}

func TestSessionID_ReusesPersistedIdentity(t *testing.T) {
	store := newFakeStore()
	store.data[repository.KeySessionID] = []byte("existing-id")
	manager := NewManager(store)

	got, err := manager.SessionID(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "existing-id", got)
	assert.Zero(t, store.sets, "a persisted identity is never regenerated")
}

func TestSessionID_StoreFailureSurfaces(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("store offline")
	manager := NewManager(store)

	_, err := manager.SessionID(context.Background())

	assert.Error(t, err)
}

func TestSessionID_ConcurrentCallersShareOneIdentity(t *testing.T) {
	store := newFakeStore()
	manager := NewManager(store)

	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := manager.SessionID(context.Background())
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, store.sets)
}
