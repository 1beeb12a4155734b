package service

import (
	"context"
	"io"
	"maps"
	"sync"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/repository"
	"handlit_backend/internal/events"
	"handlit_backend/platform/apperr"
	"handlit_backend/platform/config"
	"handlit_backend/platform/idempotency"
	"handlit_backend/platform/logger"

	"github.com/google/uuid"
)

type revisionKey struct {
	quoteID  uuid.UUID
	revision int
}

type memState struct {
	accounts  map[uuid.UUID]repository.Account
	contacts  map[uuid.UUID]repository.Contact
	quotes    map[uuid.UUID]repository.Quote
	revisions map[revisionKey]repository.QuoteRevision
	deals     map[uuid.UUID]repository.Deal
	events    []repository.DealEvent
}

func (s *memState) clone() *memState {
	return &memState{
		accounts:  maps.Clone(s.accounts),
		contacts:  maps.Clone(s.contacts),
		quotes:    maps.Clone(s.quotes),
		revisions: maps.Clone(s.revisions),
		deals:     maps.Clone(s.deals),
		events:    append([]repository.DealEvent(nil), s.events...),
	}
}

// memStore is an in-memory Store. InTx serializes transactions and commits
// the working copy only when fn succeeds.
type memStore struct {
	mu        sync.Mutex
	state     *memState
	conflicts int
	txCount   int
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		accounts:  map[uuid.UUID]repository.Account{},
		contacts:  map[uuid.UUID]repository.Contact{},
		quotes:    map[uuid.UUID]repository.Quote{},
		revisions: map[revisionKey]repository.QuoteRevision{},
		deals:     map[uuid.UUID]repository.Deal{},
	}}
}

func (s *memStore) InTx(_ context.Context, fn func(tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++
	work := s.state.clone()
	if err := fn(&memTx{st: work, store: s}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *memStore) GetQuote(_ context.Context, id uuid.UUID) (repository.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{st: s.state}).getQuote(id)
}

func (s *memStore) GetDeal(_ context.Context, id uuid.UUID) (repository.Deal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&memTx{st: s.state}).getDeal(id)
}

func (s *memStore) ListEvents(_ context.Context, dealID uuid.UUID) ([]repository.DealEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.DealEvent
	for _, e := range s.state.events {
		if e.DealID == dealID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memStore) deal(id uuid.UUID) repository.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.deals[id]
}

func (s *memStore) dealCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.deals)
}

func (s *memStore) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.events)
}

func (s *memStore) eventTypes(dealID uuid.UUID) []domain.EventType {
	evs, _ := s.ListEvents(context.Background(), dealID)
	out := make([]domain.EventType, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.EventType)
	}
	return out
}

func (s *memStore) putDeal(d repository.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.deals[d.ID] = d
}

func (s *memStore) putQuote(q repository.Quote, revs ...repository.QuoteRevision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.quotes[q.ID] = q
	for _, r := range revs {
		s.state.revisions[revisionKey{r.QuoteID, r.RevisionNumber}] = r
	}
}

func (s *memStore) putRevision(r repository.QuoteRevision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.revisions[revisionKey{r.QuoteID, r.RevisionNumber}] = r
}

type memTx struct {
	st    *memState
	store *memStore
}

func (tx *memTx) LockAccount(context.Context, uuid.UUID) error { return nil }

func (tx *memTx) GetQuote(_ context.Context, id uuid.UUID) (repository.Quote, error) {
	return tx.getQuote(id)
}

func (tx *memTx) getQuote(id uuid.UUID) (repository.Quote, error) {
	q, ok := tx.st.quotes[id]
	if !ok {
		return repository.Quote{}, apperr.NotFound("quote not found")
	}
	return q, nil
}

func (tx *memTx) GetRevision(_ context.Context, quoteID uuid.UUID, revisionNumber int) (repository.QuoteRevision, error) {
	r, ok := tx.st.revisions[revisionKey{quoteID, revisionNumber}]
	if !ok {
		return repository.QuoteRevision{}, apperr.NotFound("quote revision not found")
	}
	return r, nil
}

func (tx *memTx) LinkQuoteDeal(_ context.Context, quoteID, dealID uuid.UUID) error {
	q, ok := tx.st.quotes[quoteID]
	if !ok {
		return apperr.NotFound("quote not found")
	}
	q.DealID = &dealID
	tx.st.quotes[quoteID] = q
	return nil
}

func (tx *memTx) GetAccount(_ context.Context, id uuid.UUID) (repository.Account, error) {
	a, ok := tx.st.accounts[id]
	if !ok {
		return repository.Account{}, apperr.NotFound("account not found")
	}
	return a, nil
}

func (tx *memTx) GetContact(_ context.Context, id uuid.UUID) (repository.Contact, error) {
	c, ok := tx.st.contacts[id]
	if !ok {
		return repository.Contact{}, apperr.NotFound("contact not found")
	}
	return c, nil
}

func (tx *memTx) GetDeal(_ context.Context, id uuid.UUID) (repository.Deal, error) {
	return tx.getDeal(id)
}

func (tx *memTx) getDeal(id uuid.UUID) (repository.Deal, error) {
	d, ok := tx.st.deals[id]
	if !ok {
		return repository.Deal{}, apperr.NotFound("deal not found")
	}
	return d, nil
}

// FindOpenDeals returns candidates in map order so the matcher's own
// tie-break decides.
func (tx *memTx) FindOpenDeals(_ context.Context, accountID uuid.UUID, contactID *uuid.UUID, createdAfter *time.Time) ([]repository.Deal, error) {
	var candidates []repository.Deal
	for _, d := range tx.st.deals {
		if d.AccountID != accountID || d.IsClosed {
			continue
		}
		if contactID != nil && (d.PrimaryContactID == nil || *d.PrimaryContactID != *contactID) {
			continue
		}
		if createdAfter != nil && d.CreatedAt.Before(*createdAfter) {
			continue
		}
		candidates = append(candidates, d)
	}
	return candidates, nil
}

func (tx *memTx) CreateDeal(_ context.Context, d repository.Deal) error {
	tx.st.deals[d.ID] = d
	return nil
}

func (tx *memTx) UpdateDeal(_ context.Context, d repository.Deal, expectedVersion int64) error {
	if tx.store != nil && tx.store.conflicts > 0 {
		tx.store.conflicts--
		return apperr.Conflict("deal was modified concurrently")
	}
	cur, ok := tx.st.deals[d.ID]
	if !ok || cur.Version != expectedVersion {
		return apperr.Conflict("deal was modified concurrently")
	}
	d.Version = expectedVersion + 1
	tx.st.deals[d.ID] = d
	return nil
}

func (tx *memTx) AppendEvents(_ context.Context, evs []repository.DealEvent) error {
	tx.st.events = append(tx.st.events, evs...)
	return nil
}

var _ repository.Tx = (*memTx)(nil)
var _ Store = (*memStore)(nil)

// memClaimer is a mutex-guarded claim map with a controllable clock.
type memClaimer struct {
	mu      sync.Mutex
	keys    map[string]time.Time
	now     func() time.Time
	lastTTL time.Duration
}

func newMemClaimer(now func() time.Time) *memClaimer {
	return &memClaimer{keys: map[string]time.Time{}, now: now}
}

func (c *memClaimer) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTTL = ttl
	if exp, ok := c.keys[key]; ok && exp.After(c.now()) {
		return false, nil
	}
	c.keys[key] = c.now().Add(ttl)
	return true, nil
}

var _ idempotency.Claimer = (*memClaimer)(nil)

// recordingBus captures published event names.
type recordingBus struct {
	mu    sync.Mutex
	names []string
	evts  []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.names = append(b.names, e.EventName())
	b.evts = append(b.evts, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.names...)
}

func (b *recordingBus) events() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.evts...)
}

// fixture wires an engine on top of the in-memory fakes.
type fixture struct {
	store   *memStore
	claimer *memClaimer
	bus     *recordingBus
	engine  *Engine
	clock   time.Time

	accountID uuid.UUID
	contactID uuid.UUID
}

func testConfig() *config.Config {
	return &config.Config{
		StateChangeTTL:     24 * time.Hour,
		ViewedTTL:          time.Hour,
		DedupeWindowDays:   30,
		FollowUpHorizon:    24 * time.Hour,
		MaxConflictRetries: 3,
	}
}

func newFixture() *fixture {
	f := &fixture{
		store:     newMemStore(),
		bus:       &recordingBus{},
		clock:     time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		accountID: uuid.New(),
		contactID: uuid.New(),
	}
	now := func() time.Time { return f.clock }
	f.claimer = newMemClaimer(now)

	cfg := testConfig()
	log := logger.NewWithWriter("production", io.Discard)
	f.engine = New(f.store, NewGuard(f.claimer, cfg), domain.DefaultStageMapper(), f.bus, cfg, log)
	f.engine.now = now

	f.store.state.accounts[f.accountID] = repository.Account{ID: f.accountID, Name: "Account X"}
	f.store.state.contacts[f.contactID] = repository.Contact{ID: f.contactID, AccountID: f.accountID, FullName: "Contact Y"}
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

// newQuote stores a quote for the fixture account and contact.
func (f *fixture) newQuote(category string) uuid.UUID {
	contact := f.contactID
	q := repository.Quote{
		ID:               uuid.New(),
		AccountID:        f.accountID,
		PrimaryContactID: &contact,
		Currency:         "EUR",
		Category:         category,
		CreatedAt:        f.clock,
		UpdatedAt:        f.clock,
	}
	f.store.putQuote(q)
	return q.ID
}

func (f *fixture) bindingRevision(quoteID uuid.UUID, number int, revisionType string, total int64) {
	f.store.putRevision(repository.QuoteRevision{
		QuoteID: quoteID, RevisionNumber: number, RevisionType: revisionType,
		Total: &total, IsBinding: true, CreatedAt: f.clock,
	})
}

func (f *fixture) rangeRevision(quoteID uuid.UUID, number int, revisionType string, low, high int64) {
	f.store.putRevision(repository.QuoteRevision{
		QuoteID: quoteID, RevisionNumber: number, RevisionType: revisionType,
		RangeLow: &low, RangeHigh: &high, CreatedAt: f.clock,
	})
}

