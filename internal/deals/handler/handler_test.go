package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/repository"
	"handlit_backend/internal/deals/service"
	"handlit_backend/internal/deals/transport"
	"handlit_backend/platform/apperr"
	"handlit_backend/platform/validator"

	"github.com/gin-gonic/gin"
	playground "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	dispatched []service.LifecycleEvent
	result     service.Result
	err        error
	deal       repository.Deal
	events     []repository.DealEvent
}

func (f *fakeEngine) Dispatch(_ context.Context, ev service.LifecycleEvent) (service.Result, error) {
	f.dispatched = append(f.dispatched, ev)
	return f.result, f.err
}

func (f *fakeEngine) GetDeal(_ context.Context, id uuid.UUID) (repository.Deal, error) {
	if f.err != nil {
		return repository.Deal{}, f.err
	}
	d := f.deal
	d.ID = id
	return d, nil
}

func (f *fakeEngine) ListEvents(context.Context, uuid.UUID) ([]repository.DealEvent, error) {
	return f.events, f.err
}

func (f *fakeEngine) GetDealForQuote(context.Context, uuid.UUID) (repository.Deal, error) {
	return f.deal, f.err
}

type fakeEnqueuer struct {
	got []service.LifecycleEvent
	err error
}

func (f *fakeEnqueuer) EnqueueLifecycleEvent(_ context.Context, ev service.LifecycleEvent) (string, string, error) {
	f.got = append(f.got, ev)
	return "task-1", "deals", f.err
}

func newTestRouter(engine DealEngine, enqueuer LifecycleEnqueuer) *gin.Engine {
	h, err := New(engine, validator.New())
	if err != nil {
		panic(err)
	}
	if enqueuer != nil {
		h.SetEnqueuer(enqueuer)
	}
	r := gin.New()
	h.RegisterRoutes(r.Group("/deals"))
	h.RegisterQuoteRoutes(r.Group("/quotes"))
	return r
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestIngestLifecycleEventCreatesDeal(t *testing.T) {
	dealID := uuid.New()
	engine := &fakeEngine{result: service.Result{DealID: &dealID, Created: true}}
	r := newTestRouter(engine, nil)
	quoteID := uuid.New()

	rec := do(r, http.MethodPost, "/deals/lifecycle-events", map[string]any{
		"kind":           "accepted",
		"quoteId":        quoteID,
		"revisionNumber": 2,
		"signer":         "A. de Vries",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp transport.LifecycleEventResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DealID == nil || *resp.DealID != dealID || !resp.Created {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(engine.dispatched) != 1 {
		t.Fatalf("dispatched %d events", len(engine.dispatched))
	}
	ev := engine.dispatched[0]
	if ev.Kind != domain.KindAccepted || ev.QuoteID != quoteID || ev.RevisionNumber != 2 || ev.Signer == nil {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestIngestLifecycleEventReplayIsOK(t *testing.T) {
	dealID := uuid.New()
	r := newTestRouter(&fakeEngine{result: service.Result{DealID: &dealID, AlreadyProcessed: true}}, nil)

	rec := do(r, http.MethodPost, "/deals/lifecycle-events", map[string]any{
		"kind": "viewed", "quoteId": uuid.New(), "revisionNumber": 1,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"alreadyProcessed":true`)) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestIngestLifecycleEventValidation(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"unknown kind", map[string]any{"kind": "signed", "quoteId": uuid.New(), "revisionNumber": 1}, "kind"},
		{"missing quote", map[string]any{"kind": "accepted", "revisionNumber": 1}, "quoteId"},
		{"zero revision", map[string]any{"kind": "accepted", "quoteId": uuid.New(), "revisionNumber": 0}, "revisionNumber"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			rec := do(newTestRouter(engine, nil), http.MethodPost, "/deals/lifecycle-events", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if !bytes.Contains(rec.Body.Bytes(), []byte(`"`+tt.field+`"`)) {
				t.Fatalf("expected field %q in %s", tt.field, rec.Body.String())
			}
			if !bytes.Contains(rec.Body.Bytes(), []byte(`"error":"validation failed"`)) {
				t.Fatalf("expected validation message in %s", rec.Body.String())
			}
			if len(engine.dispatched) != 0 {
				t.Fatal("invalid request reached the engine")
			}
		})
	}
}

func TestIngestLifecycleEventMalformedJSON(t *testing.T) {
	r := newTestRouter(&fakeEngine{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/deals/lifecycle-events", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestIngestLifecycleEventMapsEngineErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", apperr.NotFound("quote revision not found"), http.StatusNotFound},
		{"conflict", apperr.Conflict("deal was modified concurrently"), http.StatusConflict},
		{"unavailable", apperr.Unavailable("idempotency store unavailable", errors.New("timeout")), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(newTestRouter(&fakeEngine{err: tt.err}, nil), http.MethodPost, "/deals/lifecycle-events", map[string]any{
				"kind": "revision_sent", "quoteId": uuid.New(), "revisionNumber": 1,
			})
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestEnqueueLifecycleEvent(t *testing.T) {
	enq := &fakeEnqueuer{}
	engine := &fakeEngine{}
	r := newTestRouter(engine, enq)

	rec := do(r, http.MethodPost, "/deals/lifecycle-events/async", map[string]any{
		"kind": "declined", "quoteId": uuid.New(), "revisionNumber": 1, "reason": "too expensive",
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(enq.got) != 1 || enq.got[0].Reason == nil {
		t.Fatalf("unexpected enqueued events %+v", enq.got)
	}
	if len(engine.dispatched) != 0 {
		t.Fatal("async ingestion must not dispatch inline")
	}
}

func TestEnqueueLifecycleEventWithoutQueue(t *testing.T) {
	rec := do(newTestRouter(&fakeEngine{}, nil), http.MethodPost, "/deals/lifecycle-events/async", map[string]any{
		"kind": "declined", "quoteId": uuid.New(), "revisionNumber": 1,
	})

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestGetDealByID(t *testing.T) {
	value := int64(125000)
	engine := &fakeEngine{deal: repository.Deal{
		Stage:          domain.StageProposal,
		DealValue:      &value,
		ValueType:      domain.ValueTypeBinding,
		Currency:       "EUR",
		LastActivityAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}}
	id := uuid.New()

	rec := do(newTestRouter(engine, nil), http.MethodGet, "/deals/"+id.String(), nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp transport.DealResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID != id || resp.Stage != "proposal" || resp.DealValueCents == nil || *resp.DealValueCents != value {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestGetDealRejectsBadID(t *testing.T) {
	rec := do(newTestRouter(&fakeEngine{}, nil), http.MethodGet, "/deals/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListEventsReturnsEmptyMetadataObject(t *testing.T) {
	engine := &fakeEngine{events: []repository.DealEvent{{
		ID:         uuid.New(),
		EventType:  domain.EventDealCreated,
		OccurredAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}}}

	rec := do(newTestRouter(engine, nil), http.MethodGet, "/deals/"+uuid.NewString()+"/events", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"metadata":{}`)) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestGetDealForUnlinkedQuote(t *testing.T) {
	engine := &fakeEngine{err: apperr.NotFound("quote is not linked to a deal")}
	rec := do(newTestRouter(engine, nil), http.MethodGet, "/quotes/"+uuid.NewString()+"/deal", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

type failingRegistry struct{ err error }

func (f failingRegistry) RegisterValidation(string, playground.Func) error { return f.err }

func TestRegisterRulesSurfacesRegistrationError(t *testing.T) {
	cause := errors.New("tag already taken")
	err := registerRules(failingRegistry{err: cause})
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped registration error, got %v", err)
	}
	if err := registerRules(validator.New()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
