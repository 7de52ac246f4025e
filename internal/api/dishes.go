package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

func (s *Server) handleCreateDish(w http.ResponseWriter, r *http.Request) {
	var req CreateDishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}
	row, err := s.store.InsertDish(r.Context(), name)
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	logFor(r.Context()).Info("dish created", "dish", row.ID)
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleUpdateDish(w http.ResponseWriter, r *http.Request) {
	var req UpdateDishRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}
	row, err := s.store.UpdateDish(r.Context(), mux.Vars(r)["id"], name)
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleDeleteDish(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.DeleteDish(r.Context(), id); err != nil {
		writeBackendError(w, r, err)
		return
	}
	logFor(r.Context()).Info("dish deleted", "dish", id)
	w.WriteHeader(http.StatusNoContent)
}
