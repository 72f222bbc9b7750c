package signals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quant-trader/internal/types"
)

type fakeSizer struct {
	qty       int
	positions map[string]types.Position
}

func (f *fakeSizer) CalculateQuantity(price float64) int { return f.qty }

func (f *fakeSizer) Position(symbol string) (types.Position, bool) {
	pos, ok := f.positions[symbol]
	return pos, ok
}

type fakeExecutor struct {
	mu       sync.Mutex
	calls    int
	accepted bool
	err      error
}

func (f *fakeExecutor) Execute(ctx context.Context, direction types.Direction, symbol string, price float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.accepted, f.err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	registry  *Registry
	executor  *fakeExecutor
	gateErr   error
	envelopes []types.Envelope
	fills     []types.PendingSignal
	clock     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		executor: &fakeExecutor{accepted: true},
		clock:    time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC),
	}
	sizer := &fakeSizer{qty: 10, positions: map[string]types.Position{
		"000660": {Symbol: "000660", Quantity: 7, BuyPrice: 190000},
	}}
	gate := func(ctx context.Context, sig types.PendingSignal) error {
		return h.gateErr
	}
	fill := func(ctx context.Context, sig types.PendingSignal) (types.TradeRecord, error) {
		h.fills = append(h.fills, sig)
		return types.TradeRecord{Symbol: sig.Symbol, Direction: sig.Direction}, nil
	}
	h.registry = NewRegistry(sizer, h.executor, gate, fill, func(env types.Envelope) {
		h.envelopes = append(h.envelopes, env)
	})
	h.registry.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) advance(d time.Duration) {
	h.clock = h.clock.Add(d)
}

func TestCreateSuggestsQuantity(t *testing.T) {
	h := newHarness(t)

	buy := h.registry.Create("005930", types.Buy, 70000, "golden_cross")
	assert.Equal(t, 10, buy.SuggestedQuantity)
	assert.Equal(t, types.StatusPending, buy.Status)
	assert.Equal(t, h.clock.Add(60*time.Second), buy.ExpiresAt)

	sell := h.registry.Create("000660", types.Sell, 195000, "death_cross")
	assert.Equal(t, 7, sell.SuggestedQuantity)

	orphan := h.registry.Create("035720", types.Sell, 50000, "death_cross")
	assert.Equal(t, 0, orphan.SuggestedQuantity)
}

func TestCreateReplacesSamePairSilently(t *testing.T) {
	h := newHarness(t)

	first := h.registry.Create("005930", types.Buy, 70000, "golden_cross")
	h.advance(time.Second)
	second := h.registry.Create("005930", types.Buy, 70500, "golden_cross")

	pending := h.registry.ListPending()
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.NotEqual(t, first.ID, second.ID)

	// The superseded signal emits no resolution, only the two creations.
	require.Len(t, h.envelopes, 2)
	assert.Equal(t, types.EnvSignalPending, h.envelopes[0].Type)
	assert.Equal(t, types.EnvSignalPending, h.envelopes[1].Type)

	// Opposite direction for the same symbol is a different slot.
	h.registry.Create("005930", types.Sell, 70500, "death_cross")
	assert.Len(t, h.registry.ListPending(), 2)
}

func TestCreateSweepsExpiredEntries(t *testing.T) {
	h := newHarness(t)

	h.registry.Create("005930", types.Buy, 70000, "golden_cross")
	h.advance(61 * time.Second)

	assert.Empty(t, h.registry.ListPending())

	h.registry.Create("000660", types.Sell, 195000, "death_cross")
	h.registry.mu.Lock()
	assert.Len(t, h.registry.entries, 1)
	h.registry.mu.Unlock()
}

func TestApproveExecutesAndFills(t *testing.T) {
	h := newHarness(t)
	sig := h.registry.Create("005930", types.Buy, 70000, "golden_cross")

	resolved, err := h.registry.Approve(context.Background(), sig.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, resolved.Status)
	assert.Equal(t, 1, h.executor.callCount())
	require.Len(t, h.fills, 1)
	assert.Equal(t, sig.ID, h.fills[0].ID)

	// Resolved entries leave the table immediately.
	_, err = h.registry.Approve(context.Background(), sig.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, h.executor.callCount())
}

func TestApproveGateRejectionNeverCallsExecutor(t *testing.T) {
	h := newHarness(t)
	h.gateErr = errors.New("daily trade limit reached (5)")
	sig := h.registry.Create("005930", types.Buy, 70000, "golden_cross")

	resolved, err := h.registry.Approve(context.Background(), sig.ID)
	assert.EqualError(t, err, "daily trade limit reached (5)")
	assert.Equal(t, types.StatusFailed, resolved.Status)
	assert.Equal(t, 0, h.executor.callCount())
	assert.Empty(t, h.fills)

	// The entry is gone: no second chance without a fresh signal.
	_, err = h.registry.Approve(context.Background(), sig.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApproveExpiredNeverCallsExecutor(t *testing.T) {
	h := newHarness(t)
	sig := h.registry.Create("005930", types.Buy, 70000, "golden_cross")
	h.advance(61 * time.Second)

	resolved, err := h.registry.Approve(context.Background(), sig.ID)
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, types.StatusExpired, resolved.Status)
	assert.Equal(t, 0, h.executor.callCount())
	assert.Empty(t, h.fills)
}

func TestApproveExecutorRejection(t *testing.T) {
	h := newHarness(t)
	h.executor.accepted = false
	sig := h.registry.Create("005930", types.Buy, 70000, "golden_cross")

	resolved, err := h.registry.Approve(context.Background(), sig.ID)
	require.Error(t, err)
	assert.Equal(t, types.StatusFailed, resolved.Status)
	assert.Empty(t, h.fills)
}

func TestApproveExecutorTransportError(t *testing.T) {
	h := newHarness(t)
	h.executor.accepted = false
	h.executor.err = errors.New("connection reset")
	sig := h.registry.Create("005930", types.Buy, 70000, "golden_cross")

	resolved, err := h.registry.Approve(context.Background(), sig.ID)
	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, types.StatusFailed, resolved.Status)

	// No automatic retry: the id is gone.
	_, err = h.registry.Approve(context.Background(), sig.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, h.executor.callCount())
}

func TestApproveUnknownID(t *testing.T) {
	h := newHarness(t)
	_, err := h.registry.Approve(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, h.executor.callCount())
}

func TestRejectPendingOnly(t *testing.T) {
	h := newHarness(t)
	sig := h.registry.Create("005930", types.Buy, 70000, "golden_cross")

	resolved, err := h.registry.Reject(sig.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRejected, resolved.Status)
	assert.Equal(t, 0, h.executor.callCount())

	_, err = h.registry.Reject(sig.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPendingOrder(t *testing.T) {
	h := newHarness(t)

	h.registry.Create("005930", types.Buy, 70000, "golden_cross")
	h.advance(time.Second)
	h.registry.Create("000660", types.Sell, 195000, "death_cross")
	h.advance(time.Second)
	h.registry.Create("035720", types.Buy, 50000, "golden_cross")

	pending := h.registry.ListPending()
	require.Len(t, pending, 3)
	assert.Equal(t, "035720", pending[0].Symbol)
	assert.Equal(t, "000660", pending[1].Symbol)
	assert.Equal(t, "005930", pending[2].Symbol)
}

func TestClearDropsEverythingSilently(t *testing.T) {
	h := newHarness(t)
	h.registry.Create("005930", types.Buy, 70000, "golden_cross")
	h.registry.Create("000660", types.Sell, 195000, "death_cross")
	created := len(h.envelopes)

	h.registry.Clear()
	assert.Empty(t, h.registry.ListPending())
	assert.Len(t, h.envelopes, created)
}
