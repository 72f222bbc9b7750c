package signals

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"quant-trader/internal/interfaces"
	"quant-trader/internal/types"
)

// signalTTL is how long a pending signal stays approvable.
const signalTTL = 60 * time.Second

var (
	ErrNotFound        = errors.New("signal not found")
	ErrAlreadyResolved = errors.New("signal already resolved")
	ErrExpired         = errors.New("signal expired")
)

// Sizer is the slice of the risk ledger used to suggest order quantities.
type Sizer interface {
	CalculateQuantity(price float64) int
	Position(symbol string) (types.Position, bool)
}

// FillFunc applies an accepted order to the ledger and returns the resulting
// trade record. It runs outside the registry mutex.
type FillFunc func(ctx context.Context, sig types.PendingSignal) (types.TradeRecord, error)

// GateFunc re-checks the trading rules for a claimed signal just before the
// order goes out. A non-nil error fails the signal without reaching the
// executor. It runs outside the registry mutex.
type GateFunc func(ctx context.Context, sig types.PendingSignal) error

type entry struct {
	sig       types.PendingSignal
	resolving bool
}

// Registry is the pending-signal state machine. A signal is created by the
// ingestion loop, then approved or rejected by a human before its TTL runs
// out; approval hands the order to the executor exactly once.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	sizer    Sizer
	executor interfaces.OrderExecutor
	gate     GateFunc
	fill     FillFunc
	notify   func(types.Envelope)
	now      func() time.Time
}

func NewRegistry(sizer Sizer, executor interfaces.OrderExecutor, gate GateFunc, fill FillFunc, notify func(types.Envelope)) *Registry {
	if notify == nil {
		notify = func(types.Envelope) {}
	}
	return &Registry{
		entries:  make(map[string]*entry),
		sizer:    sizer,
		executor: executor,
		gate:     gate,
		fill:     fill,
		notify:   notify,
		now:      time.Now,
	}
}

// Create registers a new pending signal. Terminal and expired leftovers are
// swept first, and a still-pending signal for the same (symbol, direction) is
// silently replaced. Callers synchronize sizer access themselves.
func (r *Registry) Create(symbol string, direction types.Direction, price float64, reason string) types.PendingSignal {
	r.mu.Lock()
	now := r.now()
	for id, e := range r.entries {
		if e.sig.Status.Terminal() || now.After(e.sig.ExpiresAt) {
			delete(r.entries, id)
		}
	}
	for id, e := range r.entries {
		if e.sig.Symbol == symbol && e.sig.Direction == direction && !e.resolving {
			delete(r.entries, id)
		}
	}

	qty := 0
	switch direction {
	case types.Buy:
		qty = r.sizer.CalculateQuantity(price)
	case types.Sell:
		if pos, ok := r.sizer.Position(symbol); ok {
			qty = pos.Quantity
		}
	}

	sig := types.PendingSignal{
		ID:                uuid.NewString(),
		Symbol:            symbol,
		Direction:         direction,
		Price:             price,
		SuggestedQuantity: qty,
		Reason:            reason,
		Status:            types.StatusPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(signalTTL),
	}
	r.entries[sig.ID] = &entry{sig: sig}
	r.mu.Unlock()

	r.notify(types.Envelope{Type: types.EnvSignalPending, Data: sig})
	return sig
}

// Approve resolves a pending signal through the order executor. The executor
// and fill run outside the mutex; the entry is claimed first so resolution
// happens exactly once per id.
func (r *Registry) Approve(ctx context.Context, id string) (types.PendingSignal, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return types.PendingSignal{}, ErrNotFound
	}
	if e.resolving || e.sig.Status.Terminal() {
		r.mu.Unlock()
		return e.sig, ErrAlreadyResolved
	}
	if r.now().After(e.sig.ExpiresAt) {
		e.sig.Status = types.StatusExpired
		sig := e.sig
		delete(r.entries, id)
		r.mu.Unlock()
		r.notify(types.Envelope{Type: types.EnvSignalResolved, Data: sig})
		return sig, ErrExpired
	}
	e.resolving = true
	sig := e.sig
	r.mu.Unlock()

	// The trading rules are re-checked against the current ledger before the
	// order goes anywhere near the broker.
	if r.gate != nil {
		if gateErr := r.gate(ctx, sig); gateErr != nil {
			r.mu.Lock()
			sig.Status = types.StatusFailed
			delete(r.entries, id)
			r.mu.Unlock()
			r.notify(types.Envelope{Type: types.EnvSignalResolved, Data: sig})
			return sig, gateErr
		}
	}

	status := types.StatusApproved
	accepted, err := r.executor.Execute(ctx, sig.Direction, sig.Symbol, sig.Price)
	if err != nil || !accepted {
		status = types.StatusFailed
	} else if r.fill != nil {
		if _, fillErr := r.fill(ctx, sig); fillErr != nil {
			status = types.StatusFailed
			err = fillErr
		}
	}

	r.mu.Lock()
	sig.Status = status
	delete(r.entries, id)
	r.mu.Unlock()

	r.notify(types.Envelope{Type: types.EnvSignalResolved, Data: sig})
	if status == types.StatusFailed {
		if err == nil {
			err = errors.New("order rejected by broker")
		}
		return sig, err
	}
	return sig, nil
}

// Reject is a pending-only transition to rejected.
func (r *Registry) Reject(id string) (types.PendingSignal, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return types.PendingSignal{}, ErrNotFound
	}
	if e.resolving || e.sig.Status.Terminal() {
		r.mu.Unlock()
		return e.sig, ErrAlreadyResolved
	}
	if r.now().After(e.sig.ExpiresAt) {
		e.sig.Status = types.StatusExpired
	} else {
		e.sig.Status = types.StatusRejected
	}
	sig := e.sig
	delete(r.entries, id)
	r.mu.Unlock()

	r.notify(types.Envelope{Type: types.EnvSignalResolved, Data: sig})
	if sig.Status == types.StatusExpired {
		return sig, ErrExpired
	}
	return sig, nil
}

// ListPending returns unexpired pending signals, newest first. Stale entries
// may linger in the table until the next Create sweeps them; they are only
// filtered here.
func (r *Registry) ListPending() []types.PendingSignal {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]types.PendingSignal, 0, len(r.entries))
	for _, e := range r.entries {
		if e.sig.Status == types.StatusPending && !e.resolving && !now.After(e.sig.ExpiresAt) {
			out = append(out, e.sig)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Clear drops every entry without resolution notifications. Used on stop.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*entry)
}
