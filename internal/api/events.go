package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leaseline/export-engine/internal/domain"
	"github.com/leaseline/export-engine/internal/store"
)

// EventStore is the slice of the persistence layer the event handlers need.
type EventStore interface {
	CreateEvent(ctx context.Context, p store.CreateEventParams) (*domain.ExportEvent, error)
	GetEvent(ctx context.Context, orgID, eventID string) (*domain.ExportEvent, error)
	ListEvents(ctx context.Context, orgID string, f store.EventFilter) ([]domain.ExportEvent, error)
	RequeueEvent(ctx context.Context, orgID, eventID string) (*domain.ExportEvent, error)
}

type EventHandler struct {
	store EventStore
}

func NewEventHandler(s EventStore) *EventHandler {
	return &EventHandler{store: s}
}

type createEventRequest struct {
	EventID   string          `json:"event_id,omitempty"`
	OrgID     string          `json:"org_id"`
	LeadID    *string         `json:"lead_id,omitempty"`
	Mode      string          `json:"mode"`
	TargetURL string          `json:"target_url"`
	Payload   json.RawMessage `json:"payload"`
}

// Create is the intake endpoint: the HTTP form of the upstream-producer
// contract. The destination host is derived here, once, so downstream
// grouping never re-parses the URL.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.OrgID == "" {
		respondError(w, http.StatusBadRequest, "org_id is required")
		return
	}
	if !domain.ValidMode(req.Mode) {
		respondError(w, http.StatusBadRequest, "mode must be one of push, webhook, batch")
		return
	}
	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "payload is required")
		return
	}
	if !json.Valid(req.Payload) {
		respondError(w, http.StatusBadRequest, "payload must be valid JSON")
		return
	}

	target, err := url.Parse(req.TargetURL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		respondError(w, http.StatusBadRequest, "target_url must be an absolute http(s) URL")
		return
	}

	eventID := req.EventID
	if eventID == "" {
		eventID = uuid.New().String()
	}

	event, err := h.store.CreateEvent(r.Context(), store.CreateEventParams{
		EventID:       eventID,
		OrgID:         req.OrgID,
		LeadID:        req.LeadID,
		Mode:          domain.DeliveryMode(req.Mode),
		TargetURL:     req.TargetURL,
		TargetURLHost: target.Host,
		Payload:       req.Payload,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			respondError(w, http.StatusConflict, "event already exists")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	respondJSON(w, http.StatusCreated, newExportEventResponse(*event))
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		respondError(w, http.StatusBadRequest, "X-Org-ID header is required")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := h.store.ListEvents(r.Context(), org, store.EventFilter{
		Status: r.URL.Query().Get("status"),
		Mode:   r.URL.Query().Get("mode"),
		LeadID: r.URL.Query().Get("lead_id"),
		Limit:  limit,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, newExportEventResponses(events))
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		respondError(w, http.StatusBadRequest, "X-Org-ID header is required")
		return
	}

	event, err := h.store.GetEvent(r.Context(), org, chi.URLParam(r, "eventID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, newExportEventResponse(*event))
}

// Requeue is the explicit operator re-queue for abandoned events: a fresh
// attempt budget, scheduled immediately. Events that are not terminally
// failed are left untouched.
func (h *EventHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		respondError(w, http.StatusBadRequest, "X-Org-ID header is required")
		return
	}

	event, err := h.store.RequeueEvent(r.Context(), org, chi.URLParam(r, "eventID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to requeue event")
		return
	}
	if event == nil {
		respondError(w, http.StatusConflict, "event is not abandoned or does not exist")
		return
	}

	respondJSON(w, http.StatusOK, newExportEventResponse(*event))
}
