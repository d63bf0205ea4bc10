package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/awarenow/phishsim/internal/campaign"
	"github.com/awarenow/phishsim/internal/models"
	"github.com/awarenow/phishsim/internal/template"
)

// CreateCampaignRequest is the request body for POST /api/v1/campaigns
type CreateCampaignRequest struct {
	Title         string     `json:"title"`
	Sender        string     `json:"sender"`
	TemplateID    string     `json:"template_id"`
	GroupID       string     `json:"group_id"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
}

// CreateTemplateRequest is the request body for template create/update
type CreateTemplateRequest struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Active  *bool  `json:"active,omitempty"`
}

// PreviewRequest is the request body for POST /api/v1/templates/{id}/preview
type PreviewRequest struct {
	Data map[string]any `json:"data,omitempty"`
}

// PreviewResponse is the rendered template preview
type PreviewResponse struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// CreateGroupRequest is the request body for POST /api/v1/groups
type CreateGroupRequest struct {
	Name string `json:"name"`
}

// AddMemberRequest is the request body for POST /api/v1/groups/{id}/members
type AddMemberRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// DispatchFailedResponse reports a dispatch run aborted by a transport
// failure, with the progress made before the abort.
type DispatchFailedResponse struct {
	Error  string                   `json:"error"`
	Result *campaign.DispatchResult `json:"result,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).String(),
	})
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title == "" {
		s.sendError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Sender == "" {
		s.sendError(w, http.StatusBadRequest, "sender is required")
		return
	}
	if _, err := mail.ParseAddress(req.Sender); err != nil {
		s.sendError(w, http.StatusBadRequest, "sender is not a valid address")
		return
	}

	c := &models.Campaign{
		Title:         req.Title,
		Sender:        req.Sender,
		TemplateID:    req.TemplateID,
		GroupID:       req.GroupID,
		ScheduledDate: req.ScheduledDate,
		EndsAt:        req.EndsAt,
	}
	if err := s.campaigns.Create(c); err != nil {
		s.logger.Error("failed to create campaign", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create campaign")
		return
	}

	s.sendJSON(w, http.StatusCreated, c)
}

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	filter := models.CampaignListFilter{
		Status: models.Status(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("search"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		s.sendError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	list, err := s.service.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list campaigns")
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sendCampaignError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleDeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.service.Get(id); err != nil {
		s.sendCampaignError(w, err)
		return
	}
	if err := s.campaigns.Delete(id); err != nil {
		s.logger.Error("failed to delete campaign", "campaign", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete campaign")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSendCampaign handles POST /api/v1/campaigns/{id}/send
func (s *Server) handleSendCampaign(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.PublishAndSend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		var verr *campaign.ValidationError
		var derr *campaign.DeliveryError
		switch {
		case errors.Is(err, campaign.ErrNotFound):
			s.sendError(w, http.StatusNotFound, "Campaign not found")
		case errors.As(err, &verr):
			s.sendJSON(w, http.StatusBadRequest, ErrorResponse{Error: verr.Reason, Field: verr.Field})
		case errors.As(err, &derr):
			s.sendJSON(w, http.StatusBadGateway, DispatchFailedResponse{Error: derr.Error(), Result: result})
		default:
			s.logger.Error("dispatch failed", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Dispatch failed")
		}
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// handleCampaignReport handles GET /api/v1/campaigns/{id}/report
func (s *Server) handleCampaignReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Report(chi.URLParam(r, "id"))
	if err != nil {
		s.sendCampaignError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, report)
}

// handleCampaignRecipients handles GET /api/v1/campaigns/{id}/recipients
func (s *Server) handleCampaignRecipients(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.service.Get(id); err != nil {
		s.sendCampaignError(w, err)
		return
	}
	recipients, err := s.recipients.ListByCampaign(id)
	if err != nil {
		s.logger.Error("failed to list recipients", "campaign", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list recipients")
		return
	}
	s.sendJSON(w, http.StatusOK, recipients)
}

// handleCampaignEvents handles GET /api/v1/campaigns/{id}/events
func (s *Server) handleCampaignEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.service.Get(id); err != nil {
		s.sendCampaignError(w, err)
		return
	}
	events, err := s.events.ListByCampaign(id)
	if err != nil {
		s.logger.Error("failed to list events", "campaign", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	s.sendJSON(w, http.StatusOK, events)
}

// handleCreateTemplate handles POST /api/v1/templates
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.HTML == "" {
		s.sendError(w, http.StatusBadRequest, "html is required")
		return
	}

	t := &models.Template{
		Name:    req.Name,
		Subject: req.Subject,
		HTML:    req.HTML,
		Active:  true,
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	if err := s.engine.Validate(t); err != nil {
		s.sendError(w, http.StatusBadRequest, "template does not parse: "+err.Error())
		return
	}

	if err := s.templates.Create(t); err != nil {
		s.logger.Error("failed to create template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}
	s.sendJSON(w, http.StatusCreated, t)
}

// handleListTemplates handles GET /api/v1/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := s.templates.List()
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

// handleGetTemplate handles GET /api/v1/templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}
	s.sendJSON(w, http.StatusOK, t)
}

// handleUpdateTemplate handles PUT /api/v1/templates/{id}
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	var req CreateTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Subject != "" {
		t.Subject = req.Subject
	}
	if req.HTML != "" {
		t.HTML = req.HTML
	}
	if err := s.engine.Validate(t); err != nil {
		s.sendError(w, http.StatusBadRequest, "template does not parse: "+err.Error())
		return
	}

	if err := s.templates.Update(t); err != nil {
		s.logger.Error("failed to update template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}
	if req.Active != nil && *req.Active != t.Active {
		if err := s.templates.SetActive(t.ID, *req.Active); err != nil {
			s.logger.Error("failed to toggle template", "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to update template")
			return
		}
		t.Active = *req.Active
	}
	s.sendJSON(w, http.StatusOK, t)
}

// handlePreviewTemplate handles POST /api/v1/templates/{id}/preview
func (s *Server) handlePreviewTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.templates.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Error("failed to get template", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}
	if t == nil {
		s.sendError(w, http.StatusNotFound, "Template not found")
		return
	}

	var req PreviewRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	data := template.PreviewData()
	for k, v := range req.Data {
		data[k] = v
	}

	subject, html, err := s.engine.Render(t, data)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "render failed: "+err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, PreviewResponse{Subject: subject, HTML: html})
}

// handleCreateGroup handles POST /api/v1/groups
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	g := &models.Group{Name: req.Name}
	if err := s.groups.Create(g); err != nil {
		s.logger.Error("failed to create group", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create group")
		return
	}
	s.sendJSON(w, http.StatusCreated, g)
}

// handleListGroups handles GET /api/v1/groups
func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	list, err := s.groups.List()
	if err != nil {
		s.logger.Error("failed to list groups", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list groups")
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

// handleGroupMembers handles GET /api/v1/groups/{id}/members
func (s *Server) handleGroupMembers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, err := s.groups.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get group", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get group")
		return
	}
	if g == nil {
		s.sendError(w, http.StatusNotFound, "Group not found")
		return
	}

	members, err := s.groups.Members(id)
	if err != nil {
		s.logger.Error("failed to list members", "group", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list members")
		return
	}
	s.sendJSON(w, http.StatusOK, members)
}

// handleAddGroupMember handles POST /api/v1/groups/{id}/members
func (s *Server) handleAddGroupMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	g, err := s.groups.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get group", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get group")
		return
	}
	if g == nil {
		s.sendError(w, http.StatusNotFound, "Group not found")
		return
	}

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.sendError(w, http.StatusBadRequest, "email is not a valid address")
		return
	}

	m := &models.Member{GroupID: id, Email: req.Email, Name: req.Name, Disabled: req.Disabled}
	if err := s.groups.AddMember(m); err != nil {
		s.logger.Error("failed to add member", "group", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to add member")
		return
	}
	s.sendJSON(w, http.StatusCreated, m)
}

// handleListFailures handles GET /api/v1/failures
func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	if s.failures == nil {
		s.sendError(w, http.StatusNotFound, "Failure spool is not configured")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.failures.List(limit)
	if err != nil {
		s.logger.Error("failed to list failures", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list failures")
		return
	}
	s.sendJSON(w, http.StatusOK, entries)
}

// handleDeleteFailure handles DELETE /api/v1/failures/{id}
func (s *Server) handleDeleteFailure(w http.ResponseWriter, r *http.Request) {
	if s.failures == nil {
		s.sendError(w, http.StatusNotFound, "Failure spool is not configured")
		return
	}
	if err := s.failures.Delete(chi.URLParam(r, "id")); err != nil {
		s.logger.Error("failed to delete failure", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete failure")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) sendCampaignError(w http.ResponseWriter, err error) {
	if errors.Is(err, campaign.ErrNotFound) {
		s.sendError(w, http.StatusNotFound, "Campaign not found")
		return
	}
	s.logger.Error("campaign lookup failed", "error", err)
	s.sendError(w, http.StatusInternalServerError, "Internal error")
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
