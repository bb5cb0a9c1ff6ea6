package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tableside/internal/config"
	domain "tableside/internal/domain/payment"
	"tableside/internal/domain/repository"
	"tableside/pkg/logger"
)

// backoffFactor grows the delay between checks after consecutive errors.
const backoffFactor = 1.5

// StatusClient abstracts the storefront payment endpoints.
type StatusClient interface {
	GenerateCode(ctx context.Context, family domain.Family, req domain.GenerateRequest) (*domain.Record, error)
	CheckStatus(ctx context.Context, family domain.Family, token string) (*domain.Status, error)
	SubmitManual(ctx context.Context, req domain.ManualRequest) (*domain.ManualResult, error)
}

// Carts is the hook that invalidates the cart once an order is placed.
type Carts interface {
	Invalidate(ctx context.Context) error
}

// Machine drives a code payment from generation to confirmation. While a
// record exists it runs a single polling chain: the first check fires
// immediately, pending answers re-arm the steady interval, transport
// errors back off multiplicatively up to a ceiling, and one successful
// answer resets the cadence. Cancellation is cooperative: clearing the
// record makes the chain's liveness guard stop it; an in-flight check is
// not aborted, its result is simply discarded.
type Machine struct {
	remote StatusClient
	store  repository.BlobStore
	carts  Carts
	cfg    config.PaymentConfig
	log    logger.Logger

	// wait and now are injection points for the timing tests.
	wait func(ctx context.Context, d time.Duration) error
	now  func() time.Time

	// baseCtx parents every polling chain. Chains must outlive the
	// request that started them; they end on confirmation, cancellation,
	// supersession or Close, never because the caller's context did.
	baseCtx context.Context
	stop    context.CancelFunc

	mu          sync.Mutex
	rec         *domain.Record
	state       domain.State
	orderPlaced bool
	closed      bool
	pollCancel  context.CancelFunc
	pollGen     uint64
}

func NewMachine(remote StatusClient, store repository.BlobStore, carts Carts, cfg config.PaymentConfig, log logger.Logger) *Machine {
	baseCtx, stop := context.WithCancel(context.Background())
	return &Machine{
		remote:  remote,
		store:   store,
		carts:   carts,
		cfg:     cfg,
		log:     log,
		wait:    sleepCtx,
		now:     time.Now,
		baseCtx: baseCtx,
		stop:    stop,
		state:   domain.StateIdle,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Resume restores a persisted in-flight payment and continues polling
// without re-issuing code generation. Called once on activation.
func (m *Machine) Resume(ctx context.Context) error {
	blob, err := m.store.Get(ctx, repository.KeyPaymentRecord)
	if err != nil {
		return fmt.Errorf("load payment record: %w", err)
	}
	if len(blob) == 0 {
		return nil
	}

	var rec domain.Record
	if err := json.Unmarshal(blob, &rec); err != nil {
		m.log.Warn("persisted payment record is corrupt, discarding", logger.Error(err))
		return m.store.Remove(ctx, repository.KeyPaymentRecord)
	}

	m.mu.Lock()
	m.rec = &rec
	m.state = domain.StatePolling
	m.startPollingLocked()
	m.mu.Unlock()

	m.log.Info("resumed payment polling",
		logger.String("token", rec.Token),
		logger.String("family", string(rec.Family)))
	return nil
}

// GenerateCode requests a scannable code for the chosen method family and
// starts the confirmation poll. Requires an active cart and location. Any
// previous payment is superseded before the attempt, so a failure here
// never leaves a half-retired record still being polled. ctx scopes only
// the synchronous generation call; the poll outlives it.
func (m *Machine) GenerateCode(ctx context.Context, family domain.Family, req domain.GenerateRequest) (*domain.Record, error) {
	if req.CartID == 0 || req.LocationID == 0 {
		return nil, domain.ErrMissingCartContext
	}
	if req.OrderType == "" {
		req.OrderType = "dine_in"
	}

	m.mu.Lock()
	superseded := m.rec != nil
	m.rec = nil
	m.state = domain.StateCodeRequested
	cancel := m.pollCancel
	m.pollCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if superseded {
		if err := m.store.Remove(ctx, repository.KeyPaymentRecord); err != nil {
			m.log.Warn("clear superseded payment record failed", logger.Error(err))
		}
	}

	rec, err := m.remote.GenerateCode(ctx, family, req)
	if err != nil {
		m.setState(domain.StateFailed)
		return nil, fmt.Errorf("generate payment code: %w", err)
	}
	rec.Family = family
	rec.CreatedAt = m.now()

	m.mu.Lock()
	m.rec = rec
	m.orderPlaced = false
	m.state = domain.StatePolling
	m.persistLocked(ctx)
	m.startPollingLocked()
	m.mu.Unlock()

	return rec, nil
}

// startPollingLocked supersedes any previous polling chain and launches a
// new one for the current record. The chain is parented on baseCtx, not a
// request context. Callers hold m.mu.
func (m *Machine) startPollingLocked() {
	if m.closed || m.rec == nil {
		return
	}
	if m.pollCancel != nil {
		m.pollCancel()
	}
	pollCtx, cancel := context.WithCancel(m.baseCtx)
	m.pollCancel = cancel
	m.pollGen++
	go m.poll(pollCtx, m.pollGen, *m.rec)
}

func (m *Machine) poll(ctx context.Context, gen uint64, rec domain.Record) {
	delay := time.Duration(0) // first check fires immediately
	inBackoff := false

	for {
		if err := m.wait(ctx, delay); err != nil {
			return
		}
		if !m.live(gen, rec.Token) {
			return
		}
		if m.cfg.MaxPollWindow > 0 && m.now().Sub(rec.CreatedAt) > m.cfg.MaxPollWindow {
			m.failWindowExceeded(rec.Token)
			return
		}

		status, err := m.remote.CheckStatus(ctx, rec.Family, rec.Token)
		if err != nil {
			// Polling errors are never surfaced; they only stretch the
			// cadence until a check gets through.
			if !inBackoff {
				delay = m.cfg.BackoffInitial
				inBackoff = true
			} else {
				delay = time.Duration(float64(delay) * backoffFactor)
				if delay > m.cfg.BackoffMax {
					delay = m.cfg.BackoffMax
				}
			}
			m.log.Debug("payment status check failed",
				logger.String("token", rec.Token), logger.Error(err))
			continue
		}

		if status.Status == domain.StatusConfirmed {
			m.confirm(rec.Token)
			return
		}

		delay = m.cfg.SteadyInterval
		inBackoff = false
	}
}

// live reports whether this chain is still the machine's current one. A
// new record, a cancellation or a teardown all retire the chain.
func (m *Machine) live(gen uint64, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.pollGen == gen && m.rec != nil && m.rec.Token == token
}

// confirm performs the terminal transition: clear the record everywhere,
// stop the chain, invalidate the cart.
func (m *Machine) confirm(token string) {
	m.mu.Lock()
	if m.closed || m.rec == nil || m.rec.Token != token {
		m.mu.Unlock()
		return
	}
	m.rec = nil
	m.state = domain.StateConfirmed
	m.orderPlaced = true
	cancel := m.pollCancel
	m.pollCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Cleanup runs detached: the polling context may be the one just
	// cancelled above.
	ctx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := m.store.Remove(ctx, repository.KeyPaymentRecord); err != nil {
		m.log.Warn("clear payment record failed", logger.Error(err))
	}
	if m.carts != nil {
		if err := m.carts.Invalidate(ctx); err != nil {
			m.log.Warn("invalidate cart failed", logger.Error(err))
		}
	}
	m.log.Info("payment confirmed", logger.String("token", token))
}

func (m *Machine) failWindowExceeded(token string) {
	m.mu.Lock()
	if m.rec == nil || m.rec.Token != token {
		m.mu.Unlock()
		return
	}
	// The persisted record survives so a reload can still check manually.
	m.state = domain.StateFailed
	cancel := m.pollCancel
	m.pollCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.log.Warn("payment polling gave up",
		logger.String("token", token), logger.Error(domain.ErrPollWindowExceeded))
}

// CheckNow is the user-triggered single status check, independent of the
// chain's schedule. A pending answer takes no transition; a confirmed one
// is terminal exactly like the loop's.
func (m *Machine) CheckNow(ctx context.Context) (domain.StatusValue, error) {
	m.mu.Lock()
	rec := m.rec
	m.mu.Unlock()
	if rec == nil {
		return "", domain.ErrNoActivePayment
	}

	status, err := m.remote.CheckStatus(ctx, rec.Family, rec.Token)
	if err != nil {
		return "", fmt.Errorf("check payment status: %w", err)
	}
	if status.Status == domain.StatusConfirmed {
		m.confirm(rec.Token)
	}
	return status.Status, nil
}

// Cancel clears the record locally and from the store. The chain stops via
// its liveness guard; an in-flight check's result is discarded on return.
func (m *Machine) Cancel(ctx context.Context) error {
	m.mu.Lock()
	if m.rec == nil {
		m.mu.Unlock()
		return nil
	}
	m.rec = nil
	m.state = domain.StateCancelled
	cancel := m.pollCancel
	m.pollCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := m.store.Remove(ctx, repository.KeyPaymentRecord); err != nil {
		return fmt.Errorf("clear payment record: %w", err)
	}
	return nil
}

// SubmitManual sends a staff-verified payment with its proof image. A
// returned tracking token is persisted so order tracking survives reloads.
func (m *Machine) SubmitManual(ctx context.Context, req domain.ManualRequest) (*domain.ManualResult, error) {
	res, err := m.remote.SubmitManual(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit manual payment: %w", err)
	}

	if res.OrderToken != "" {
		if err := m.store.Set(ctx, repository.KeyActiveOrderToken, []byte(res.OrderToken)); err != nil {
			m.log.Warn("persist order token failed", logger.Error(err))
		}
	}

	m.mu.Lock()
	m.orderPlaced = true
	m.mu.Unlock()

	if m.carts != nil {
		if err := m.carts.Invalidate(ctx); err != nil {
			m.log.Warn("invalidate cart failed", logger.Error(err))
		}
	}
	return res, nil
}

// CheckActiveOrder polls the staff-verified order once and clears the
// tracking token on confirmation.
func (m *Machine) CheckActiveOrder(ctx context.Context) (domain.StatusValue, error) {
	token, err := m.store.Get(ctx, repository.KeyActiveOrderToken)
	if err != nil {
		return "", fmt.Errorf("load order token: %w", err)
	}
	if len(token) == 0 {
		return "", domain.ErrNoActivePayment
	}

	status, err := m.remote.CheckStatus(ctx, domain.FamilyCounter, string(token))
	if err != nil {
		return "", fmt.Errorf("check order status: %w", err)
	}
	if status.Status == domain.StatusConfirmed {
		if err := m.store.Remove(ctx, repository.KeyActiveOrderToken); err != nil {
			m.log.Warn("clear order token failed", logger.Error(err))
		}
	}
	return status.Status, nil
}

// State returns the machine's current position.
func (m *Machine) State() domain.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Record returns a copy of the in-flight payment, or nil.
func (m *Machine) Record() *domain.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil
	}
	rec := *m.rec
	return &rec
}

// OrderPlaced reports whether a payment completed during this process
// lifetime.
func (m *Machine) OrderPlaced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderPlaced
}

// Close tears the machine down. No check runs or is scheduled afterwards,
// even if a timer was already armed.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	cancel := m.pollCancel
	m.pollCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.stop()
}

func (m *Machine) setState(s domain.State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// persistLocked writes the current record through to the store. Callers
// hold m.mu.
func (m *Machine) persistLocked(ctx context.Context) {
	if m.rec == nil {
		return
	}
	blob, err := json.Marshal(m.rec)
	if err != nil {
		m.log.Warn("encode payment record failed", logger.Error(err))
		return
	}
	if err := m.store.Set(ctx, repository.KeyPaymentRecord, blob); err != nil {
		m.log.Warn("persist payment record failed", logger.Error(err))
	}
}
