package readings

import (
	"log/slog"
	"net/http"

	"bsf-dashboard/internal/modules/readings/controller"
	"bsf-dashboard/internal/modules/readings/variants"
)

// RegisterFeature mounts the dashboard pages and the readings API. Every
// variant in registry needs a running poller.
func RegisterFeature(mux *http.ServeMux, registry *variants.Registry, pollers []controller.Poller, logger *slog.Logger) error {
	readingsController, err := controller.NewReadingsController(registry, pollers, logger)
	if err != nil {
		return err
	}
	readingsController.RegisterRoutes(mux)
	return nil
}
