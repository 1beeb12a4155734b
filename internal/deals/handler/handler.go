package handler

import (
	"context"
	"fmt"
	"net/http"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/repository"
	"handlit_backend/internal/deals/service"
	"handlit_backend/internal/deals/transport"
	"handlit_backend/platform/apperr"
	"handlit_backend/platform/httpkit"
	"handlit_backend/platform/validator"

	"github.com/gin-gonic/gin"
	playground "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
	msgAsyncDisabled    = "async ingestion is not configured"
)

// DealEngine is the part of the deal state engine the handler uses.
type DealEngine interface {
	Dispatch(ctx context.Context, ev service.LifecycleEvent) (service.Result, error)
	GetDeal(ctx context.Context, id uuid.UUID) (repository.Deal, error)
	ListEvents(ctx context.Context, dealID uuid.UUID) ([]repository.DealEvent, error)
	GetDealForQuote(ctx context.Context, quoteID uuid.UUID) (repository.Deal, error)
}

// LifecycleEnqueuer queues lifecycle events for the background worker.
type LifecycleEnqueuer interface {
	EnqueueLifecycleEvent(ctx context.Context, ev service.LifecycleEvent) (taskID, queue string, err error)
}

// Handler handles HTTP requests for deals
type Handler struct {
	engine   DealEngine
	val      *validator.Validator
	enqueuer LifecycleEnqueuer // optional; nil disables the async endpoint
}

// New creates a new deals handler and registers the lifecycle_kind rule.
func New(engine DealEngine, val *validator.Validator) (*Handler, error) {
	if err := registerRules(val); err != nil {
		return nil, err
	}
	return &Handler{engine: engine, val: val}, nil
}

type ruleRegistry interface {
	RegisterValidation(tag string, fn playground.Func) error
}

func registerRules(reg ruleRegistry) error {
	if err := reg.RegisterValidation("lifecycle_kind", validLifecycleKind); err != nil {
		return fmt.Errorf("register lifecycle_kind validation: %w", err)
	}
	return nil
}

func validLifecycleKind(fl playground.FieldLevel) bool {
	_, err := domain.ParseEventKind(fl.Field().String())
	return err == nil
}

// SetEnqueuer injects the task client used by the async endpoint.
func (h *Handler) SetEnqueuer(enqueuer LifecycleEnqueuer) {
	h.enqueuer = enqueuer
}

// RegisterRoutes registers the deal routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/lifecycle-events", h.IngestLifecycleEvent)
	rg.POST("/lifecycle-events/async", h.EnqueueLifecycleEvent)
	rg.GET("/:id", h.GetByID)
	rg.GET("/:id/events", h.ListEvents)
}

// RegisterQuoteRoutes registers the quote-scoped deal routes
func (h *Handler) RegisterQuoteRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/deal", h.GetByQuote)
}

// IngestLifecycleEvent applies a lifecycle event synchronously.
func (h *Handler) IngestLifecycleEvent(c *gin.Context) {
	ev, ok := h.bindLifecycleEvent(c)
	if !ok {
		return
	}

	result, err := h.engine.Dispatch(c.Request.Context(), ev)
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	httpkit.JSON(c, status, transport.LifecycleEventResponse{
		DealID:           result.DealID,
		AlreadyProcessed: result.AlreadyProcessed,
		Created:          result.Created,
	})
}

// EnqueueLifecycleEvent queues a lifecycle event for the worker.
func (h *Handler) EnqueueLifecycleEvent(c *gin.Context) {
	if h.enqueuer == nil {
		httpkit.HandleError(c, apperr.Unavailable(msgAsyncDisabled, nil))
		return
	}
	ev, ok := h.bindLifecycleEvent(c)
	if !ok {
		return
	}

	taskID, queue, err := h.enqueuer.EnqueueLifecycleEvent(c.Request.Context(), ev)
	if err != nil {
		httpkit.HandleError(c, apperr.Unavailable("failed to enqueue lifecycle event", err))
		return
	}
	httpkit.Accepted(c, transport.EnqueuedResponse{TaskID: taskID, Queue: queue})
}

// GetByID returns a deal.
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deal, err := h.engine.GetDeal(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toDealResponse(deal))
}

// ListEvents returns a deal's event log.
func (h *Handler) ListEvents(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	evs, err := h.engine.ListEvents(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]transport.DealEventResponse, 0, len(evs))
	for _, e := range evs {
		items = append(items, toDealEventResponse(e))
	}
	httpkit.OK(c, transport.DealEventListResponse{Items: items})
}

// GetByQuote returns the deal a quote is linked to.
func (h *Handler) GetByQuote(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	deal, err := h.engine.GetDealForQuote(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toDealResponse(deal))
}

func (h *Handler) bindLifecycleEvent(c *gin.Context) (service.LifecycleEvent, bool) {
	var req transport.LifecycleEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return service.LifecycleEvent{}, false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.HandleError(c, apperr.Validation(msgValidationFailed).WithDetails(validator.FieldErrors(err)))
		return service.LifecycleEvent{}, false
	}

	kind, _ := domain.ParseEventKind(req.Kind)
	return service.LifecycleEvent{
		Kind:           kind,
		QuoteID:        req.QuoteID,
		RevisionNumber: req.RevisionNumber,
		Signer:         req.Signer,
		Reason:         req.Reason,
		Actor:          req.Actor,
	}, true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, false
	}
	return id, true
}
