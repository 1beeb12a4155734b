// Package deals provides the quote-to-deal linking module.
package deals

import (
	"fmt"
	"os"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/handler"
	"handlit_backend/internal/deals/repository"
	"handlit_backend/internal/deals/service"
	apphttp "handlit_backend/internal/http"
	"handlit_backend/platform/config"
	"handlit_backend/platform/events"
	"handlit_backend/platform/idempotency"
	"handlit_backend/platform/logger"
	"handlit_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig combines the config interfaces the deals module reads.
type ModuleConfig interface {
	config.DealsConfig
	config.IdempotencyConfig
}

// Module represents the deals domain module
type Module struct {
	handler *handler.Handler
	engine  *service.Engine
	repo    *repository.Repository
}

// NewModule creates a new deals module with all dependencies wired
func NewModule(pool *pgxpool.Pool, claimer idempotency.Claimer, eventBus events.Bus, val *validator.Validator, cfg ModuleConfig, log *logger.Logger) (*Module, error) {
	mapper, err := loadStageMapper(cfg.GetStageMapFile())
	if err != nil {
		return nil, err
	}

	repo := repository.New(pool)
	guard := service.NewGuard(claimer, cfg)
	engine := service.New(repo, guard, mapper, eventBus, cfg, log)
	h, err := handler.New(engine, val)
	if err != nil {
		return nil, err
	}

	return &Module{
		handler: h,
		engine:  engine,
		repo:    repo,
	}, nil
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "deals"
}

// Engine returns the deal state engine for the background worker.
func (m *Module) Engine() *service.Engine {
	return m.engine
}

// Repository returns the repository for the event relay.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// SetEnqueuer enables the async ingestion endpoint.
func (m *Module) SetEnqueuer(enqueuer handler.LifecycleEnqueuer) {
	m.handler.SetEnqueuer(enqueuer)
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1.Group("/deals"))
	m.handler.RegisterQuoteRoutes(ctx.V1.Group("/quotes"))
}

func loadStageMapper(path string) (*domain.StageMapper, error) {
	if path == "" {
		return domain.DefaultStageMapper(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stage map: %w", err)
	}
	defer f.Close()

	mapper, err := domain.LoadStageMapper(f)
	if err != nil {
		return nil, fmt.Errorf("load stage map %s: %w", path, err)
	}
	return mapper, nil
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
