package controller

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"bsf-dashboard/internal/modules/readings/pipeline"
	"bsf-dashboard/internal/modules/readings/types"
	"bsf-dashboard/internal/modules/readings/variants"
)

// Poller is the part of *scheduler.Poller the handlers read from.
type Poller interface {
	Name() string
	Period() time.Duration
	Location() *time.Location
	View(sel types.Selection, now time.Time) (types.Snapshot, pipeline.View)
	Refresh(ctx context.Context) (types.Snapshot, error)
	Subscribe() <-chan struct{}
	Unsubscribe(ch <-chan struct{})
}

type ReadingsController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type readingsControllerImpl struct {
	registry *variants.Registry
	pollers  map[string]Poller
	logger   *slog.Logger
	now      func() time.Time
}

// NewReadingsController requires one poller per registered variant.
func NewReadingsController(registry *variants.Registry, pollers []Poller, logger *slog.Logger) (ReadingsController, error) {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]Poller, len(pollers))
	for _, p := range pollers {
		byName[p.Name()] = p
	}
	for _, v := range registry.All() {
		if _, ok := byName[v.Name]; !ok {
			return nil, fmt.Errorf("no poller for variant %q", v.Name)
		}
	}
	return &readingsControllerImpl{
		registry: registry,
		pollers:  byName,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (c *readingsControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleIndex)
	mux.HandleFunc("GET /v/{name}", c.handleDashboard)
	mux.HandleFunc("GET /v/{name}/partials/readings", c.handleReadingsPartial)
	mux.HandleFunc("GET /v/{name}/partials/grid", c.handleGridPartial)
	mux.HandleFunc("GET /v/{name}/chart.svg", c.handleChart)

	mux.HandleFunc("GET /api/v1/variants", c.handleVariants)
	mux.HandleFunc("GET /api/v1/variants/{name}/readings", c.handleReadings)
	mux.HandleFunc("POST /api/v1/variants/{name}/refresh", c.handleRefresh)

	mux.HandleFunc("GET /ws/v/{name}", c.handleWebSocket)
}

func (c *readingsControllerImpl) lookup(name string) (variants.Variant, Poller, error) {
	v, err := c.registry.Get(name)
	if err != nil {
		return variants.Variant{}, nil, err
	}
	return v, c.pollers[v.Name], nil
}
