package payment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableside/internal/config"
	domain "tableside/internal/domain/payment"
	"tableside/internal/domain/repository"
	"tableside/pkg/logger"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

/* ================= test doubles ================= */

// stubRemote scripts the storefront payment endpoints with plain funcs.
type stubRemote struct {
	generate func(ctx context.Context, family domain.Family, req domain.GenerateRequest) (*domain.Record, error)
	check    func(ctx context.Context, family domain.Family, token string) (*domain.Status, error)
	manual   func(ctx context.Context, req domain.ManualRequest) (*domain.ManualResult, error)

	checks atomic.Int64
}

func (s *stubRemote) GenerateCode(ctx context.Context, family domain.Family, req domain.GenerateRequest) (*domain.Record, error) {
	if s.generate == nil {
		return &domain.Record{PaymentID: 1, Token: "tok-1", Amount: 2500, Currency: "THB"}, nil
	}
	return s.generate(ctx, family, req)
}

func (s *stubRemote) CheckStatus(ctx context.Context, family domain.Family, token string) (*domain.Status, error) {
	s.checks.Add(1)
	if s.check == nil {
		return &domain.Status{Status: domain.StatusPending}, nil
	}
	return s.check(ctx, family, token)
}

func (s *stubRemote) SubmitManual(ctx context.Context, req domain.ManualRequest) (*domain.ManualResult, error) {
	if s.manual == nil {
		return &domain.ManualResult{}, nil
	}
	return s.manual(ctx, req)
}

// pendingThenConfirmed answers pending n times, then confirmed.
func pendingThenConfirmed(n int) func(context.Context, domain.Family, string) (*domain.Status, error) {
	var calls atomic.Int64
	return func(context.Context, domain.Family, string) (*domain.Status, error) {
		if calls.Add(1) <= int64(n) {
			return &domain.Status{Status: domain.StatusPending}, nil
		}
		return &domain.Status{Status: domain.StatusConfirmed}, nil
	}
}

// failingThenConfirmed errors n times, then confirms.
func failingThenConfirmed(n int) func(context.Context, domain.Family, string) (*domain.Status, error) {
	var calls atomic.Int64
	return func(context.Context, domain.Family, string) (*domain.Status, error) {
		if calls.Add(1) <= int64(n) {
			return nil, errors.New("gateway timeout")
		}
		return &domain.Status{Status: domain.StatusConfirmed}, nil
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *memStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	return ok
}

type stubCarts struct {
	invalidated atomic.Int64
}

func (c *stubCarts) Invalidate(ctx context.Context) error {
	c.invalidated.Add(1)
	return nil
}

// waitRecorder captures every scheduled delay and returns instantly, so
// cadence tests assert the schedule instead of sleeping through it.
type waitRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (w *waitRecorder) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	return nil
}

func (w *waitRecorder) recorded() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]time.Duration, len(w.delays))
	copy(out, w.delays)
	return out
}

func testConfig() config.PaymentConfig {
	return config.PaymentConfig{
		SteadyInterval: 3 * time.Second,
		BackoffInitial: 2 * time.Second,
		BackoffMax:     15 * time.Second,
		MaxPollWindow:  30 * time.Minute,
	}
}

func newTestMachine(remote *stubRemote, store *memStore, carts *stubCarts) (*Machine, *waitRecorder) {
	m := NewMachine(remote, store, carts, testConfig(), logger.Nop())
	rec := &waitRecorder{}
	m.wait = rec.wait
	m.now = func() time.Time { return time.Unix(1700000000, 0) }
	return m, rec
}

func generate(t *testing.T, m *Machine) *domain.Record {
	t.Helper()
	rec, err := m.GenerateCode(context.Background(), domain.FamilyWallet, domain.GenerateRequest{
		CartID: 7, LocationID: 3, Amount: 2500,
	})
	require.NoError(t, err)
	return rec
}

/* ================= tests ================= */

func TestGenerateCode_RequiresCartContext(t *testing.T) {
	m, _ := newTestMachine(&stubRemote{}, newMemStore(), &stubCarts{})
	defer m.Close()

	_, err := m.GenerateCode(context.Background(), domain.FamilyWallet, domain.GenerateRequest{})

	assert.ErrorIs(t, err, domain.ErrMissingCartContext)
	assert.Equal(t, domain.StateIdle, m.State())
}

func TestGenerateCode_FailureEndsInFailed(t *testing.T) {
	remote := &stubRemote{
		generate: func(context.Context, domain.Family, domain.GenerateRequest) (*domain.Record, error) {
			return nil, errors.New("gateway unavailable")
		},
	}
	m, _ := newTestMachine(remote, newMemStore(), &stubCarts{})
	defer m.Close()

	_, err := m.GenerateCode(context.Background(), domain.FamilyWallet, domain.GenerateRequest{CartID: 7, LocationID: 3})

	assert.Error(t, err)
	assert.Equal(t, domain.StateFailed, m.State())
	assert.Nil(t, m.Record())
}

func TestGenerateCode_PersistsRecordAndStartsPolling(t *testing.T) {
	remote := &stubRemote{check: pendingThenConfirmed(1000)}
	store := newMemStore()
	m, _ := newTestMachine(remote, store, &stubCarts{})

	rec := generate(t, m)

	assert.Equal(t, domain.FamilyWallet, rec.Family)
	assert.Equal(t, domain.StatePolling, m.State())
	assert.True(t, store.has(repository.KeyPaymentRecord))

	var persisted domain.Record
	blob, _ := store.Get(context.Background(), repository.KeyPaymentRecord)
	require.NoError(t, json.Unmarshal(blob, &persisted))
	assert.Equal(t, "tok-1", persisted.Token)
	assert.Equal(t, domain.FamilyWallet, persisted.Family)

	m.Close()
}

func TestPolling_SteadyCadence(t *testing.T) {
	remote := &stubRemote{check: pendingThenConfirmed(3)}
	store := newMemStore()
	carts := &stubCarts{}
	m, waits := newTestMachine(remote, store, carts)
	defer m.Close()

	generate(t, m)

	assert.Eventually(t, func() bool {
		return m.State() == domain.StateConfirmed
	}, waitFor, tick)

	// Immediate first check, then the steady interval between the rest.
	assert.Equal(t, []time.Duration{
		0,
		3 * time.Second,
		3 * time.Second,
		3 * time.Second,
	}, waits.recorded())
	assert.Equal(t, int64(4), remote.checks.Load())

	// Confirmation is terminal: record gone everywhere, cart invalidated.
	assert.Nil(t, m.Record())
	assert.True(t, m.OrderPlaced())
	assert.False(t, store.has(repository.KeyPaymentRecord))
	assert.Equal(t, int64(1), carts.invalidated.Load())
}

func TestPolling_BackoffGrowthAndCap(t *testing.T) {
	remote := &stubRemote{check: failingThenConfirmed(7)}
	m, waits := newTestMachine(remote, newMemStore(), &stubCarts{})
	defer m.Close()

	generate(t, m)

	assert.Eventually(t, func() bool {
		return m.State() == domain.StateConfirmed
	}, waitFor, tick)

	// 2s after the first error, then x1.5 per consecutive error, capped.
	assert.Equal(t, []time.Duration{
		0,
		2 * time.Second,
		3 * time.Second,
		4500 * time.Millisecond,
		6750 * time.Millisecond,
		10125 * time.Millisecond,
		15 * time.Second,
		15 * time.Second,
	}, waits.recorded())
}

func TestPolling_SuccessResetsBackoff(t *testing.T) {
	// err, err, pending, err: the error after a success restarts at the
	// initial backoff instead of continuing the previous run.
	var calls atomic.Int64
	remote := &stubRemote{
		check: func(context.Context, domain.Family, string) (*domain.Status, error) {
			switch calls.Add(1) {
			case 1, 2, 4:
				return nil, errors.New("gateway timeout")
			case 3:
				return &domain.Status{Status: domain.StatusPending}, nil
			default:
				return &domain.Status{Status: domain.StatusConfirmed}, nil
			}
		},
	}
	m, waits := newTestMachine(remote, newMemStore(), &stubCarts{})
	defer m.Close()

	generate(t, m)

	assert.Eventually(t, func() bool {
		return m.State() == domain.StateConfirmed
	}, waitFor, tick)

	assert.Equal(t, []time.Duration{
		0,
		2 * time.Second,
		3 * time.Second,
		3 * time.Second,
		2 * time.Second,
	}, waits.recorded())
}

func TestPolling_SurvivesCallerContextCancellation(t *testing.T) {
	remote := &stubRemote{check: pendingThenConfirmed(3)}
	carts := &stubCarts{}
	m, _ := newTestMachine(remote, newMemStore(), carts)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.GenerateCode(ctx, domain.FamilyWallet, domain.GenerateRequest{
		CartID: 7, LocationID: 3, Amount: 2500,
	})
	require.NoError(t, err)

	// The generating request is over; the chain must keep checking.
	cancel()

	assert.Eventually(t, func() bool {
		return m.State() == domain.StateConfirmed
	}, waitFor, tick)
	assert.Equal(t, int64(4), remote.checks.Load())
	assert.Equal(t, int64(1), carts.invalidated.Load())
}

func TestGenerateCode_FailureSupersedesActivePayment(t *testing.T) {
	var genCalls atomic.Int64
	remote := &stubRemote{
		generate: func(context.Context, domain.Family, domain.GenerateRequest) (*domain.Record, error) {
			if genCalls.Add(1) == 1 {
				return &domain.Record{PaymentID: 1, Token: "tok-1", Amount: 2500, Currency: "THB"}, nil
			}
			return nil, errors.New("gateway unavailable")
		},
		check: pendingThenConfirmed(1000),
	}
	store := newMemStore()
	m := NewMachine(remote, store, &stubCarts{}, testConfig(), logger.Nop())
	m.now = func() time.Time { return time.Unix(1700000000, 0) }
	defer m.Close()

	waiting := make(chan struct{}, 1)
	m.wait = func(ctx context.Context, d time.Duration) error {
		if d == 0 {
			return nil
		}
		waiting <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	generate(t, m)
	<-waiting
	before := remote.checks.Load()

	_, err := m.GenerateCode(context.Background(), domain.FamilyWallet, domain.GenerateRequest{CartID: 7, LocationID: 3})

	assert.Error(t, err)
	assert.Equal(t, domain.StateFailed, m.State())
	assert.Nil(t, m.Record())
	assert.False(t, store.has(repository.KeyPaymentRecord), "superseded record is cleared")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, remote.checks.Load(), "old chain stops polling")
}

func TestClose_StopsScheduledChecks(t *testing.T) {
	remote := &stubRemote{check: pendingThenConfirmed(1000)}
	store := newMemStore()
	m := NewMachine(remote, store, &stubCarts{}, testConfig(), logger.Nop())
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	// Gate the chain inside its first armed wait.
	waiting := make(chan struct{}, 1)
	m.wait = func(ctx context.Context, d time.Duration) error {
		if d == 0 {
			return nil
		}
		waiting <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	generate(t, m)
	<-waiting
	before := remote.checks.Load()

	m.Close()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, remote.checks.Load(), "no check runs after teardown")
}

func TestResume_ContinuesPersistedPayment(t *testing.T) {
	store := newMemStore()
	blob, _ := json.Marshal(domain.Record{
		PaymentID: 1, Token: "tok-resume", Amount: 2500, Currency: "THB",
		Family: domain.FamilyWallet, CreatedAt: time.Unix(1700000000, 0),
	})
	require.NoError(t, store.Set(context.Background(), repository.KeyPaymentRecord, blob))

	generated := false
	remote := &stubRemote{
		generate: func(context.Context, domain.Family, domain.GenerateRequest) (*domain.Record, error) {
			generated = true
			return nil, errors.New("must not be called")
		},
		check: pendingThenConfirmed(1),
	}
	carts := &stubCarts{}
	m, _ := newTestMachine(remote, store, carts)
	defer m.Close()

	require.NoError(t, m.Resume(context.Background()))

	assert.Equal(t, domain.StatePolling, m.State())
	assert.Eventually(t, func() bool {
		return m.State() == domain.StateConfirmed
	}, waitFor, tick)
	assert.False(t, generated, "resume never re-issues code generation")
	assert.False(t, store.has(repository.KeyPaymentRecord))
}

func TestResume_CorruptRecordIsDiscarded(t *testing.T) {
	store := newMemStore()
	require.NoError(t, store.Set(context.Background(), repository.KeyPaymentRecord, []byte("{not json")))

	m, _ := newTestMachine(&stubRemote{}, store, &stubCarts{})
	defer m.Close()

	require.NoError(t, m.Resume(context.Background()))

	assert.Equal(t, domain.StateIdle, m.State())
	assert.False(t, store.has(repository.KeyPaymentRecord))
}

func TestCancel_ClearsRecordAndStopsChain(t *testing.T) {
	remote := &stubRemote{check: pendingThenConfirmed(1000)}
	store := newMemStore()
	m := NewMachine(remote, store, &stubCarts{}, testConfig(), logger.Nop())
	m.now = func() time.Time { return time.Unix(1700000000, 0) }

	waiting := make(chan struct{}, 1)
	m.wait = func(ctx context.Context, d time.Duration) error {
		if d == 0 {
			return nil
		}
		waiting <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	generate(t, m)
	<-waiting
	before := remote.checks.Load()

	require.NoError(t, m.Cancel(context.Background()))

	assert.Equal(t, domain.StateCancelled, m.State())
	assert.Nil(t, m.Record())
	assert.False(t, store.has(repository.KeyPaymentRecord))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, remote.checks.Load())
	assert.False(t, m.OrderPlaced())
}

func TestPolling_WindowExceededFails(t *testing.T) {
	remote := &stubRemote{check: pendingThenConfirmed(1000)}
	store := newMemStore()
	m, _ := newTestMachine(remote, store, &stubCarts{})
	defer m.Close()

	// Advance the clock past the window after the record is stamped.
	base := time.Unix(1700000000, 0)
	var stamped atomic.Bool
	m.now = func() time.Time {
		if stamped.Swap(true) {
			return base.Add(31 * time.Minute)
		}
		return base
	}

	generate(t, m)

	assert.Eventually(t, func() bool {
		return m.State() == domain.StateFailed
	}, waitFor, tick)
	assert.Equal(t, int64(0), remote.checks.Load(), "expired window short-circuits before any check")
	assert.True(t, store.has(repository.KeyPaymentRecord), "record survives for a manual re-check")
}

func TestPolling_WindowExceededRetiresChainContext(t *testing.T) {
	remote := &stubRemote{check: pendingThenConfirmed(1000)}
	m, _ := newTestMachine(remote, newMemStore(), &stubCarts{})
	defer m.Close()

	base := time.Unix(1700000000, 0)
	var stamped atomic.Bool
	m.now = func() time.Time {
		if stamped.Swap(true) {
			return base.Add(31 * time.Minute)
		}
		return base
	}
	var chainCtx atomic.Value
	m.wait = func(ctx context.Context, d time.Duration) error {
		chainCtx.Store(ctx)
		return nil
	}

	generate(t, m)

	assert.Eventually(t, func() bool {
		return m.State() == domain.StateFailed
	}, waitFor, tick)
	// Giving up must also release the chain's context, not just drop it.
	assert.Eventually(t, func() bool {
		ctx, ok := chainCtx.Load().(context.Context)
		return ok && ctx.Err() != nil
	}, waitFor, tick)
}

func TestCheckNow_NoActivePayment(t *testing.T) {
	m, _ := newTestMachine(&stubRemote{}, newMemStore(), &stubCarts{})
	defer m.Close()

	_, err := m.CheckNow(context.Background())

	assert.ErrorIs(t, err, domain.ErrNoActivePayment)
}

func TestCheckNow_PendingTakesNoTransition(t *testing.T) {
	remote := &stubRemote{}
	m, _ := newTestMachine(remote, newMemStore(), &stubCarts{})
	defer m.Close()
	m.rec = &domain.Record{Token: "tok-1", Family: domain.FamilyWallet}
	m.state = domain.StatePolling

	status, err := m.CheckNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, status)
	assert.Equal(t, domain.StatePolling, m.State())
	assert.NotNil(t, m.Record())
}

func TestCheckNow_ConfirmedIsTerminal(t *testing.T) {
	remote := &stubRemote{
		check: func(context.Context, domain.Family, string) (*domain.Status, error) {
			return &domain.Status{Status: domain.StatusConfirmed}, nil
		},
	}
	store := newMemStore()
	carts := &stubCarts{}
	m, _ := newTestMachine(remote, store, carts)
	defer m.Close()
	m.rec = &domain.Record{Token: "tok-1", Family: domain.FamilyWallet}
	m.state = domain.StatePolling

	status, err := m.CheckNow(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, status)
	assert.Equal(t, domain.StateConfirmed, m.State())
	assert.Nil(t, m.Record())
	assert.True(t, m.OrderPlaced())
	assert.Equal(t, int64(1), carts.invalidated.Load())
}

func TestSubmitManual_PersistsTokenAndInvalidatesCart(t *testing.T) {
	remote := &stubRemote{
		manual: func(ctx context.Context, req domain.ManualRequest) (*domain.ManualResult, error) {
			return &domain.ManualResult{PaymentID: 9, OrderToken: "ord-1"}, nil
		},
	}
	store := newMemStore()
	carts := &stubCarts{}
	m, _ := newTestMachine(remote, store, carts)
	defer m.Close()

	res, err := m.SubmitManual(context.Background(), domain.ManualRequest{
		CartID: 7, LocationID: 3, MethodID: 9999, Amount: 2500,
	})

	require.NoError(t, err)
	assert.Equal(t, "ord-1", res.OrderToken)
	assert.True(t, m.OrderPlaced())
	assert.Equal(t, int64(1), carts.invalidated.Load())

	token, _ := store.Get(context.Background(), repository.KeyActiveOrderToken)
	assert.Equal(t, "ord-1", string(token))
}

func TestCheckActiveOrder(t *testing.T) {
	t.Run("no tracked order", func(t *testing.T) {
		m, _ := newTestMachine(&stubRemote{}, newMemStore(), &stubCarts{})
		defer m.Close()

		_, err := m.CheckActiveOrder(context.Background())
		assert.ErrorIs(t, err, domain.ErrNoActivePayment)
	})

	t.Run("pending keeps the token", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Set(context.Background(), repository.KeyActiveOrderToken, []byte("ord-1")))
		m, _ := newTestMachine(&stubRemote{}, store, &stubCarts{})
		defer m.Close()

		status, err := m.CheckActiveOrder(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, status)
		assert.True(t, store.has(repository.KeyActiveOrderToken))
	})

	t.Run("confirmed clears the token", func(t *testing.T) {
		store := newMemStore()
		require.NoError(t, store.Set(context.Background(), repository.KeyActiveOrderToken, []byte("ord-1")))
		remote := &stubRemote{
			check: func(ctx context.Context, family domain.Family, token string) (*domain.Status, error) {
				assert.Equal(t, domain.FamilyCounter, family)
				assert.Equal(t, "ord-1", token)
				return &domain.Status{Status: domain.StatusConfirmed}, nil
			},
		}
		m, _ := newTestMachine(remote, store, &stubCarts{})
		defer m.Close()

		status, err := m.CheckActiveOrder(context.Background())

		require.NoError(t, err)
		assert.Equal(t, domain.StatusConfirmed, status)
		assert.False(t, store.has(repository.KeyActiveOrderToken))
	})
}

func TestGenerateCode_SupersedesPreviousChain(t *testing.T) {
	remote := &stubRemote{check: pendingThenConfirmed(1000)}
	store := newMemStore()
	m, _ := newTestMachine(remote, store, &stubCarts{})
	defer m.Close()

	first := generate(t, m)
	second := generate(t, m)

	assert.Equal(t, first.Token, second.Token)
	got := m.Record()
	require.NotNil(t, got)
	assert.Equal(t, "tok-1", got.Token)
	assert.Equal(t, domain.StatePolling, m.State())
}
