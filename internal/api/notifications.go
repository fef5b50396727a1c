package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

// handleSendNotification dispatches an intent. The response lists the jobs
// that were queued; delivery happens asynchronously.
func (s *Server) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	var intent notification.Intent
	if err := json.NewDecoder(r.Body).Decode(&intent); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}

	res, err := s.notificationSvc.Send(r.Context(), intent)
	if err != nil {
		s.writeServiceError(w, err, "failed to dispatch notification")
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// handleListDeliveries returns delivery history. Accepts optional
// ?notifiable_type, ?notifiable_id, ?template_id, ?channel, ?status and
// ?limit query parameters.
func (s *Server) handleListDeliveries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.DeliveryFilter{
		NotifiableType: q.Get("notifiable_type"),
		Channel:        q.Get("channel"),
		Status:         storage.DeliveryStatus(q.Get("status")),
	}

	for name, dst := range map[string]*int64{
		"notifiable_id": &filter.NotifiableID,
		"template_id":   &filter.TemplateID,
	} {
		if v := q.Get(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid "+name)
				return
			}
			*dst = n
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	recs, err := s.notificationSvc.ListDeliveries(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, err, "failed to list deliveries")
		return
	}
	if recs == nil {
		recs = []*storage.DeliveryRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := s.notificationSvc.GetDelivery(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to load delivery")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
