package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	domain "tableside/internal/domain/cart"
	"tableside/internal/domain/money"
	"tableside/internal/domain/repository"
	"tableside/pkg/logger"
)

// Remote abstracts the storefront cart endpoints so the engine is testable
// without a network.
type Remote interface {
	CreateCart(ctx context.Context, sessionID string, tableSessionID *int64) (*domain.Cart, error)
	FetchCart(ctx context.Context, sessionID string) (*domain.Cart, error)
	AddItem(ctx context.Context, req domain.AddItemRequest) (*domain.Cart, error)
	UpdateItem(ctx context.Context, sessionID string, itemID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, sessionID string, itemID int64) (*domain.Cart, error)
}

// Sessions provides the stable session identity scoping every call.
type Sessions interface {
	SessionID(ctx context.Context) (string, error)
}

// Engine owns the authoritative in-memory cart. Every server response is
// reconciled through domain.Merge so enrichment survives minimal mutation
// echoes, and every committed transition is written through to the local
// store. There is no offline queue: a failed call commits nothing.
type Engine struct {
	remote   Remote
	sessions Sessions
	store    repository.BlobStore
	log      logger.Logger

	mu      sync.Mutex
	cur     *domain.Cart
	pending map[int64]int
	seq     map[int64]uint64
	loadErr error
}

func NewEngine(remote Remote, sessions Sessions, store repository.BlobStore, log logger.Logger) *Engine {
	return &Engine{
		remote:   remote,
		sessions: sessions,
		store:    store,
		log:      log,
		pending:  make(map[int64]int),
		seq:      make(map[int64]uint64),
	}
}

// Activate surfaces the cached cart immediately when one exists and kicks
// off a background authoritative refresh; without a cache it blocks on the
// first fetch and surfaces its error.
func (e *Engine) Activate(ctx context.Context) (*domain.Cart, error) {
	cached := e.loadCache(ctx)
	if cached != nil {
		e.mu.Lock()
		e.cur = cached
		e.mu.Unlock()

		go func() {
			if err := e.Refresh(ctx); err != nil {
				e.log.Warn("background cart refresh failed", logger.Error(err))
			}
		}()
		return cached.Clone(), nil
	}

	if err := e.Refresh(ctx); err != nil {
		return nil, err
	}
	return e.Snapshot(), nil
}

func (e *Engine) loadCache(ctx context.Context) *domain.Cart {
	blob, err := e.store.Get(ctx, repository.KeyCartCache)
	if err != nil {
		e.log.Warn("read cart cache failed", logger.Error(err))
		return nil
	}
	if len(blob) == 0 {
		return nil
	}
	var cached domain.Cart
	if err := json.Unmarshal(blob, &cached); err != nil {
		e.log.Warn("cached cart is corrupt, discarding", logger.Error(err))
		return nil
	}
	return &cached
}

// Refresh fetches the authoritative cart and merges it into state.
func (e *Engine) Refresh(ctx context.Context) error {
	sessionID, err := e.sessions.SessionID(ctx)
	if err != nil {
		return err
	}

	fetched, err := e.remote.FetchCart(ctx, sessionID)
	if err != nil {
		e.mu.Lock()
		if e.cur == nil {
			e.loadErr = err
		}
		e.mu.Unlock()
		return fmt.Errorf("fetch cart: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cur = domain.Merge(e.cur, fetched)
	e.loadErr = nil
	e.persistLocked(ctx)
	return nil
}

// Create asks the server for a fresh cart, superseding any previous one.
func (e *Engine) Create(ctx context.Context, tableSessionID *int64) (*domain.Cart, error) {
	sessionID, err := e.sessions.SessionID(ctx)
	if err != nil {
		return nil, err
	}

	created, err := e.remote.CreateCart(ctx, sessionID, tableSessionID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cur = created.Clone()
	e.loadErr = nil
	e.persistLocked(ctx)
	return created.Clone(), nil
}

// Add validates the product descriptor, issues the remote add and merges
// the response. Add failures are surfaced to the caller; there is no
// pre-existing item id to flag as pending.
func (e *Engine) Add(ctx context.Context, req domain.AddItemRequest) (*domain.Cart, error) {
	if req.ProductID == 0 && req.VariantID == 0 {
		return nil, domain.ErrMissingProductID
	}
	if req.UnitID == 0 {
		req.UnitID = 1
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	sessionID, err := e.sessions.SessionID(ctx)
	if err != nil {
		return nil, err
	}
	req.SessionID = sessionID

	updated, err := e.remote.AddItem(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cur = domain.Merge(e.cur, updated)
	e.persistLocked(ctx)
	return e.cur.Clone(), nil
}

// UpdateQuantity changes an item's quantity. Values below 1 are a silent
// no-op; removal goes through Remove. The item is flagged pending for the
// duration of the round trip and failures are logged, not surfaced.
func (e *Engine) UpdateQuantity(ctx context.Context, itemID int64, quantity int) error {
	if quantity < 1 {
		return nil
	}
	return e.mutateItem(ctx, itemID, "update item", func(sessionID string) (*domain.Cart, error) {
		return e.remote.UpdateItem(ctx, sessionID, itemID, quantity)
	})
}

// Remove deletes an item. Callers are expected to gate this behind an
// explicit user confirmation. Pending tracking and failure policy match
// UpdateQuantity.
func (e *Engine) Remove(ctx context.Context, itemID int64) error {
	return e.mutateItem(ctx, itemID, "remove item", func(sessionID string) (*domain.Cart, error) {
		return e.remote.RemoveItem(ctx, sessionID, itemID)
	})
}

// mutateItem runs one per-item round trip against the loaded cart; without
// one it returns ErrNoCart. Each mutation captures a fresh
// sequence number for its item; a response is only merged while its number
// is still current, so overlapping mutations on the same item can never
// apply out of order: the last-issued one wins.
func (e *Engine) mutateItem(ctx context.Context, itemID int64, op string, call func(sessionID string) (*domain.Cart, error)) error {
	sessionID, err := e.sessions.SessionID(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.cur == nil {
		e.mu.Unlock()
		return domain.ErrNoCart
	}
	e.seq[itemID]++
	token := e.seq[itemID]
	e.pending[itemID]++
	e.mu.Unlock()

	updated, err := call(sessionID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[itemID]--
	if e.pending[itemID] <= 0 {
		delete(e.pending, itemID)
	}

	if err != nil {
		// Best effort: a transient sync failure must not block browsing.
		e.log.Warn(op+" failed", logger.Int64("item_id", itemID), logger.Error(err))
		return nil
	}
	if e.seq[itemID] != token {
		e.log.Debug("discarding stale "+op+" response", logger.Int64("item_id", itemID))
		return nil
	}

	e.cur = domain.Merge(e.cur, updated)
	e.persistLocked(ctx)
	return nil
}

// Invalidate drops the cart after an order is placed; the next visit
// creates a new one.
func (e *Engine) Invalidate(ctx context.Context) error {
	e.mu.Lock()
	e.cur = nil
	e.loadErr = nil
	e.mu.Unlock()

	if err := e.store.Remove(ctx, repository.KeyCartCache); err != nil {
		return fmt.Errorf("clear cart cache: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the current cart, or nil.
func (e *Engine) Snapshot() *domain.Cart {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur.Clone()
}

// Total is the running total in minor units.
func (e *Engine) Total() money.Amount {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur.Total()
}

// PendingItems lists item ids with a mutation round trip in flight. The UI
// uses membership as a per-row loading indicator and disables conflicting
// actions on those rows.
func (e *Engine) PendingItems() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int64, 0, len(e.pending))
	for id := range e.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LoadError reports the blocking initial-load failure, if any. It is only
// set when no cached cart could be surfaced.
func (e *Engine) LoadError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

// persistLocked writes the current cart through to the local store.
// Callers hold e.mu.
func (e *Engine) persistLocked(ctx context.Context) {
	if e.cur == nil {
		return
	}
	blob, err := json.Marshal(e.cur)
	if err != nil {
		e.log.Warn("encode cart cache failed", logger.Error(err))
		return
	}
	if err := e.store.Set(ctx, repository.KeyCartCache, blob); err != nil {
		e.log.Warn("write cart cache failed", logger.Error(err))
	}
}
