package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rentview/internal/appointments"
	"rentview/internal/coordinator"
	"rentview/internal/export"
	"rentview/internal/metrics"
	"rentview/internal/models"
	"rentview/internal/registry"
)

var errListUnavailable = errors.New("appointments could not be loaded")

// DashboardResponse is one role's view of its appointments.
type DashboardResponse struct {
	Role      models.Role           `json:"role"`
	Viewer    string                `json:"viewer"`
	Rows      []registry.Row        `json:"rows"`
	Counts    map[models.Status]int `json:"counts"`
	FetchedAt time.Time             `json:"fetched_at"`
}

// ActionRequest is the body of POST .../appointments/{id}/actions.
type ActionRequest struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
}

// ActionResponse reports whether the action was sent and the refreshed view.
type ActionResponse struct {
	Dispatched bool               `json:"dispatched"`
	Dashboard  *DashboardResponse `json:"dashboard,omitempty"`
}

// loadDashboard builds a freshly fetched coordinator for the role and viewer
// in the path. The returned context carries the viewer as actor.
func (s *HTTPServer) loadDashboard(r *http.Request) (context.Context, *coordinator.Coordinator, error) {
	role, err := models.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		return nil, nil, err
	}
	filter, err := appointments.DecodeFilter(r.URL.Query())
	if err != nil {
		return nil, nil, badRequest(err.Error())
	}
	viewer := chi.URLParam(r, "viewer")
	ctx := appointments.WithActor(r.Context(), appointments.Actor{Ref: viewer, Role: role})

	reg := registry.New(s.svc, viewer, role, filter, s.log)
	if err := reg.Refresh(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errListUnavailable, err)
	}
	return ctx, coordinator.New(reg, s.svc, s.tracker, s.log), nil
}

func dashboardOf(r *http.Request, coord *coordinator.Coordinator) *DashboardResponse {
	rows := coord.Rows()
	if rows == nil {
		rows = []registry.Row{}
	}
	role, _ := models.ParseRole(chi.URLParam(r, "role"))
	return &DashboardResponse{
		Role:      role,
		Viewer:    chi.URLParam(r, "viewer"),
		Rows:      rows,
		Counts:    coord.Counts(),
		FetchedAt: coord.FetchedAt(),
	}
}

// handleDashboard lists the viewer's appointments with the actions each row offers.
// GET /api/v1/dashboard/{role}/{viewer}?status=&from=&to=
func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("dashboard")

	_, coord, err := s.loadDashboard(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardOf(r, coord))
}

// handleActionPrompt returns the confirmation to show before an action.
// GET /api/v1/dashboard/{role}/{viewer}/appointments/{id}/prompt?action=
func (s *HTTPServer) handleActionPrompt(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("action_prompt")

	action, err := models.ParseAction(r.URL.Query().Get("action"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	_, coord, err := s.loadDashboard(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	conf, err := coord.Prompt(chi.URLParam(r, "id"), action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

// handleAction runs a confirmed action. A duplicate of an action still in
// flight is answered with 202 and dispatched=false.
// POST /api/v1/dashboard/{role}/{viewer}/appointments/{id}/actions
func (s *HTTPServer) handleAction(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("action")

	var req ActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	action, err := models.ParseAction(req.Action)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	ctx, coord, err := s.loadDashboard(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	conf, err := coord.Prompt(chi.URLParam(r, "id"), action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dispatched, err := coord.Execute(ctx, conf, req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !dispatched {
		writeJSON(w, http.StatusAccepted, ActionResponse{Dispatched: false})
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{
		Dispatched: true,
		Dashboard:  dashboardOf(r, coord),
	})
}

// handleDashboardExport downloads the owner's rows as a workbook.
// GET /api/v1/dashboard/owner/{viewer}/export.xlsx
func (s *HTTPServer) handleDashboardExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("dashboard_export")

	if chi.URLParam(r, "role") != string(models.RoleOwner) {
		writeError(w, http.StatusForbidden, "export is available to owners only")
		return
	}
	_, coord, err := s.loadDashboard(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="viewings.xlsx"`)
	if err := export.OwnerWorkbook(w, coord.Rows(), coord.Counts(), coord.FetchedAt()); err != nil {
		s.log.Error().Err(err).Str("viewer", chi.URLParam(r, "viewer")).Msg("failed to write export")
	}
}
