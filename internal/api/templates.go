package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaharia-lab/notifyd/internal/storage"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.notificationSvc.ListTemplates(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		s.writeServiceError(w, err, "failed to list templates")
		return
	}
	if templates == nil {
		templates = []*storage.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

// handleImportTemplates accepts a JSON array of templates.
func (s *Server) handleImportTemplates(w http.ResponseWriter, r *http.Request) {
	var templates []*storage.Template
	if err := json.NewDecoder(r.Body).Decode(&templates); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}
	if len(templates) == 0 {
		writeError(w, http.StatusBadRequest, "no templates in request")
		return
	}

	imported, err := s.notificationSvc.ImportTemplates(r.Context(), templates)
	if err != nil {
		s.writeServiceError(w, err, "failed to import templates")
		return
	}
	writeJSON(w, http.StatusCreated, imported)
}

func (s *Server) handleSetTemplateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req struct {
		Status storage.TemplateStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errInvalidJSONBody)
		return
	}
	if err := s.notificationSvc.SetTemplateStatus(r.Context(), id, req.Status); err != nil {
		s.writeServiceError(w, err, "failed to update template")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": req.Status})
}
