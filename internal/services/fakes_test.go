package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"reconciler/internal/models"
	"reconciler/internal/notify"
	"reconciler/internal/reconcile"
	"reconciler/internal/store"
	"reconciler/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

// memStore is an in-memory stand-in for the three transaction stores. It
// enforces the same one-match-per-transaction contract as the database.
type memStore struct {
	mu      sync.Mutex
	trades  map[string]models.P2PTransaction
	payouts map[string]models.GateTransaction
	matches []models.TransactionMatch

	// completedOnce mirrors the sticky completed_once column.
	completedOnce map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		trades:        make(map[string]models.P2PTransaction),
		payouts:       make(map[string]models.GateTransaction),
		completedOnce: make(map[string]bool),
	}
}

func (m *memStore) addTrade(trade models.P2PTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[trade.ID] = trade
	if trade.Status == models.P2PStatusCompleted {
		m.completedOnce[trade.ID] = true
	}
}

func (m *memStore) addPayout(payout models.GateTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts[payout.ID] = payout
}

func (m *memStore) matchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matches)
}

func (m *memStore) snapshot() []models.TransactionMatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TransactionMatch(nil), m.matches...)
}

func (m *memStore) matchedLocked(side reconcile.Side, id string) bool {
	for _, match := range m.matches {
		if side == reconcile.SideP2P && match.P2PTransactionID == id {
			return true
		}
		if side == reconcile.SideGate && match.GateTransactionID == id {
			return true
		}
	}
	return false
}

type memP2P struct{ *memStore }

func (s memP2P) GetByID(_ context.Context, id string) (models.P2PTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trade, ok := s.trades[id]
	if !ok {
		return models.P2PTransaction{}, reconcile.NotFound(reconcile.SideP2P, id)
	}
	return trade, nil
}

func (s memP2P) List(_ context.Context, filter store.TransactionFilter) ([]models.P2PTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.P2PTransaction
	for _, trade := range s.trades {
		if filter.UserID != "" && trade.UserID != filter.UserID {
			continue
		}
		if !inRange(trade.CompletedAt, filter.From, filter.To) {
			continue
		}
		if filter.CompletedOnly && trade.Status != models.P2PStatusCompleted {
			continue
		}
		if filter.UnmatchedOnly && s.matchedLocked(reconcile.SideP2P, trade.ID) {
			continue
		}
		out = append(out, trade)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memP2P) Count(ctx context.Context, filter store.TransactionFilter) (int, error) {
	rows, err := s.List(ctx, filter)
	return len(rows), err
}

func (s memP2P) Upsert(_ context.Context, _ store.Execer, trade models.P2PTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.trades[trade.ID]
	if ok && existing.UserID != trade.UserID {
		return false, nil
	}
	if ok && (s.completedOnce[trade.ID] || s.matchedLocked(reconcile.SideP2P, trade.ID)) {
		existing.Status = trade.Status
		trade = existing
	}
	if trade.Status == models.P2PStatusCompleted {
		s.completedOnce[trade.ID] = true
	}
	s.trades[trade.ID] = trade
	return true, nil
}

type memGate struct{ *memStore }

func (s memGate) GetByID(_ context.Context, id string) (models.GateTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payout, ok := s.payouts[id]
	if !ok {
		return models.GateTransaction{}, reconcile.NotFound(reconcile.SideGate, id)
	}
	return payout, nil
}

func (s memGate) List(_ context.Context, filter store.TransactionFilter) ([]models.GateTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.GateTransaction
	for _, payout := range s.payouts {
		if filter.UserID != "" && payout.UserID != filter.UserID {
			continue
		}
		if !inRange(reconcile.GateTimestamp(payout), filter.From, filter.To) {
			continue
		}
		if filter.ApprovedOnly && payout.ApprovedAt == nil {
			continue
		}
		if filter.UnmatchedOnly && s.matchedLocked(reconcile.SideGate, payout.ID) {
			continue
		}
		out = append(out, payout)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memGate) Count(ctx context.Context, filter store.TransactionFilter) (int, error) {
	rows, err := s.List(ctx, filter)
	return len(rows), err
}

func (s memGate) Upsert(_ context.Context, _ store.Execer, payout models.GateTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.payouts[payout.ID]; ok && existing.UserID != payout.UserID {
		return false, nil
	}
	s.payouts[payout.ID] = payout
	return true, nil
}

type memMatches struct{ *memStore }

func (s memMatches) Create(_ context.Context, _ store.Tx, input store.MatchInput) (models.TransactionMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[input.P2PTransactionID]; !ok {
		return models.TransactionMatch{}, reconcile.NotFound(reconcile.SideP2P, input.P2PTransactionID)
	}
	if _, ok := s.payouts[input.GateTransactionID]; !ok {
		return models.TransactionMatch{}, reconcile.NotFound(reconcile.SideGate, input.GateTransactionID)
	}
	if s.matchedLocked(reconcile.SideP2P, input.P2PTransactionID) {
		return models.TransactionMatch{}, reconcile.AlreadyMatched(reconcile.SideP2P, input.P2PTransactionID)
	}
	if s.matchedLocked(reconcile.SideGate, input.GateTransactionID) {
		return models.TransactionMatch{}, reconcile.AlreadyMatched(reconcile.SideGate, input.GateTransactionID)
	}
	match := models.TransactionMatch{
		ID:                input.ID,
		UserID:            input.UserID,
		P2PTransactionID:  input.P2PTransactionID,
		GateTransactionID: input.GateTransactionID,
		IsAutoMatched:     input.IsAutoMatched,
		TimeDifference:    input.TimeDifference,
		CreatedAt:         time.Now(),
	}
	s.matches = append(s.matches, match)
	return match, nil
}

func (s memMatches) List(_ context.Context, filter store.MatchFilter) ([]models.MatchDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MatchDetail
	for _, match := range s.matches {
		if filter.UserID != "" && match.UserID != filter.UserID {
			continue
		}
		trade := s.trades[match.P2PTransactionID]
		payout := s.payouts[match.GateTransactionID]
		if (filter.From != nil || filter.To != nil) &&
			!inRange(trade.CompletedAt, filter.From, filter.To) &&
			!inRange(reconcile.GateTimestamp(payout), filter.From, filter.To) {
			continue
		}
		out = append(out, models.MatchDetail{TransactionMatch: match, P2P: trade, Gate: payout})
	}
	return out, nil
}

func (s memMatches) IsMatched(_ context.Context, side reconcile.Side, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matchedLocked(side, id), nil
}

func inRange(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && at.After(*to) {
		return false
	}
	return true
}

type stubOperatorStore struct {
	getByIDFn func(ctx context.Context, id string) (models.Operator, error)
	isAdminFn func(ctx context.Context, id string) (bool, error)
}

func (s stubOperatorStore) GetByID(ctx context.Context, id string) (models.Operator, error) {
	if s.getByIDFn == nil {
		return models.Operator{ID: id}, nil
	}
	return s.getByIDFn(ctx, id)
}

func (s stubOperatorStore) IsAdmin(ctx context.Context, id string) (bool, error) {
	if s.isAdminFn == nil {
		return false, nil
	}
	return s.isAdminFn(ctx, id)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

type recordingHub struct {
	mu     sync.Mutex
	events map[string][]websocket.MatchEvent
}

func (h *recordingHub) BroadcastMatch(operatorID string, event websocket.MatchEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.events == nil {
		h.events = make(map[string][]websocket.MatchEvent)
	}
	h.events[operatorID] = append(h.events[operatorID], event)
}

type recordingMetrics struct {
	mu        sync.Mutex
	created   map[string]int
	conflicts map[string]int
	runs      int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{created: map[string]int{}, conflicts: map[string]int{}}
}

func (r *recordingMetrics) MatchCreated(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created[kind]++
}

func (r *recordingMetrics) MatchConflict(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts[kind]++
}

func (r *recordingMetrics) AutoMatchCompleted(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
}

type stubNotifier struct {
	mu        sync.Mutex
	summaries []notify.Summary
	err       error
}

func (n *stubNotifier) AutoMatchCompleted(_ context.Context, summary notify.Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, summary)
	return n.err
}

type testEnv struct {
	mem      *memStore
	hub      *recordingHub
	metrics  *recordingMetrics
	notifier *stubNotifier
	service  *ReconciliationService
}

func newTestEnv(operators stubOperatorStore, settings reconcile.Settings) *testEnv {
	env := &testEnv{
		mem:      newMemStore(),
		hub:      &recordingHub{},
		metrics:  newRecordingMetrics(),
		notifier: &stubNotifier{},
	}
	stores := Stores{
		P2P:       memP2P{env.mem},
		Gate:      memGate{env.mem},
		Matches:   memMatches{env.mem},
		Operators: operators,
		Audit:     stubAuditStore{},
	}
	env.service = NewReconciliationService(fakeTxRunner{}, stores, env.hub, env.metrics, env.notifier, settings, discardLogger())
	return env
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(offset time.Duration) time.Time {
	return base.Add(offset)
}

func dec(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func completedTrade(id, owner string, completedAt time.Time) models.P2PTransaction {
	return models.P2PTransaction{
		ID:          id,
		UserID:      owner,
		Amount:      dec("100"),
		TotalRub:    dec("9200"),
		Price:       dec("92"),
		CompletedAt: completedAt,
		Status:      models.P2PStatusCompleted,
	}
}

func approvedPayout(id, owner string, approvedAt time.Time) models.GateTransaction {
	approved := approvedAt
	return models.GateTransaction{
		ID:         id,
		UserID:     owner,
		AmountUsdt: dec("100"),
		TotalRub:   dec("9200"),
		TotalUsdt:  dec("101"),
		Course:     dec("91"),
		ApprovedAt: &approved,
		CreatedAt:  approvedAt.Add(-time.Minute),
	}
}
