package controller

import (
	"bytes"
	"errors"
	"net/http"

	"bsf-dashboard/internal/modules/readings/repository"
	"bsf-dashboard/internal/modules/readings/scheduler"
	"bsf-dashboard/internal/modules/readings/types"
	"bsf-dashboard/internal/modules/readings/variants"
	"bsf-dashboard/internal/modules/readings/views"
	"bsf-dashboard/internal/utils"
)

func (c *readingsControllerImpl) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/v/"+c.registry.First().Name, http.StatusFound)
}

// htmlSelection falls back to the variant defaults on bad input.
func (c *readingsControllerImpl) htmlSelection(r *http.Request, v variants.Variant) types.Selection {
	sel, err := parseSelection(r, v)
	if err != nil {
		c.logger.Warn("invalid selection, using defaults",
			"variant", v.Name,
			"range", r.URL.Query().Get("range"),
			"metric", r.URL.Query().Get("metric"),
			"error", err,
		)
	}
	return sel
}

func (c *readingsControllerImpl) handleDashboard(w http.ResponseWriter, r *http.Request) {
	v, p, err := c.lookup(r.PathValue("name"))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	sel := c.htmlSelection(r, v)

	data := &views.DashboardData{
		Title:    v.Title,
		Nav:      c.navItems(v.Name),
		Variant:  v.Name,
		Windows:  windowOptions(v, sel.Window),
		Metrics:  metricOptions(v, sel.Metric),
		ShowGrid: v.ShowsGrid(),
		Readings: c.readingsData(v, p, sel),
	}
	var buf bytes.Buffer
	if err := views.RenderDashboard(&buf, data); err != nil {
		c.logger.Error("dashboard template render failed", "variant", v.Name, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *readingsControllerImpl) handleReadingsPartial(w http.ResponseWriter, r *http.Request) {
	v, p, err := c.lookup(r.PathValue("name"))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	data := c.readingsData(v, p, c.htmlSelection(r, v))

	var buf bytes.Buffer
	if err := views.RenderReadingsPartial(&buf, &data); err != nil {
		c.logger.Error("readings partial render failed", "variant", v.Name, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *readingsControllerImpl) handleGridPartial(w http.ResponseWriter, r *http.Request) {
	v, p, err := c.lookup(r.PathValue("name"))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if !v.ShowsGrid() {
		utils.WriteError(w, http.StatusNotFound, "variant has no data grid")
		return
	}
	sel := c.htmlSelection(r, v)
	_, view := p.View(sel, c.now())

	total := len(view.Readings)
	totalPages := (total + gridPageSize - 1) / gridPageSize
	if totalPages < 1 {
		totalPages = 1
	}
	page := min(parsePage(r), totalPages)
	start := (page - 1) * gridPageSize
	end := min(start+gridPageSize, total)

	data := &views.GridData{
		Variant:     v.Name,
		Query:       selectionQuery(sel),
		WindowLabel: sel.Window.Label(),
		Rows:        views.Rows(view.Readings[start:end], variants.GridLabelLayout, p.Location(), repository.AttrSensor),
		Total:       total,
		CurrentPage: page,
		TotalPages:  totalPages,
		HasPrev:     page > 1,
		HasNext:     page < totalPages,
		PrevPage:    page - 1,
		NextPage:    page + 1,
		PageItems:   buildPageItems(totalPages, page),
	}
	var buf bytes.Buffer
	if err := views.RenderGridPartial(&buf, data); err != nil {
		c.logger.Error("grid partial render failed", "variant", v.Name, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	utils.WriteHTML(w, http.StatusOK, buf.Bytes())
}

func (c *readingsControllerImpl) handleChart(w http.ResponseWriter, r *http.Request) {
	v, p, err := c.lookup(r.PathValue("name"))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	if !v.ShowsChart() {
		utils.WriteError(w, http.StatusNotFound, "variant has no chart")
		return
	}
	sel := c.htmlSelection(r, v)
	_, view := p.View(sel, c.now())

	var buf bytes.Buffer
	if err := views.RenderChart(&buf, view.Readings, sel.Metric); err != nil {
		c.logger.Error("chart render failed", "variant", v.Name, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf.Bytes()); err != nil {
		c.logger.Error("chart: write response failed", "error", err)
	}
}

func (c *readingsControllerImpl) handleVariants(w http.ResponseWriter, r *http.Request) {
	all := c.registry.All()
	out := make([]variantJSON, 0, len(all))
	for _, v := range all {
		out = append(out, variantJSON{Variant: v, PollPeriodSeconds: v.PollPeriod.Seconds()})
	}
	utils.WriteJSON(w, http.StatusOK, out)
}

func (c *readingsControllerImpl) handleReadings(w http.ResponseWriter, r *http.Request) {
	v, p, err := c.lookup(r.PathValue("name"))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	sel, err := parseSelection(r, v)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, view := p.View(sel, c.now())
	utils.WriteJSON(w, http.StatusOK, presentView(v.Name, snap, view))
}

func (c *readingsControllerImpl) handleRefresh(w http.ResponseWriter, r *http.Request) {
	v, p, err := c.lookup(r.PathValue("name"))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	sel, err := parseSelection(r, v)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := p.Refresh(r.Context()); err != nil {
		if errors.Is(err, scheduler.ErrNotPolling) {
			utils.WriteError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		c.logger.Warn("refresh abandoned", "variant", v.Name, "error", err)
		utils.WriteError(w, http.StatusGatewayTimeout, "refresh did not complete")
		return
	}
	snap, view := p.View(sel, c.now())
	utils.WriteJSON(w, http.StatusOK, presentView(v.Name, snap, view))
}
