package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || req.DishID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "dish_id and name are required")
		return
	}
	row, err := s.store.InsertItem(r.Context(), req.DishID, name, req.Position)
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "name is required")
		return
	}
	row, err := s.store.UpdateItem(r.Context(), mux.Vars(r)["id"], name, req.Position)
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleMoveItem(w http.ResponseWriter, r *http.Request) {
	var req MoveItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DishID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "dish_id is required")
		return
	}
	row, err := s.store.MoveItem(r.Context(), mux.Vars(r)["id"], req.DishID, req.Position)
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteItem(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeBackendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetRecipe(w http.ResponseWriter, r *http.Request) {
	var req SetRecipeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	row, err := s.store.UpdateItemRecipe(r.Context(), mux.Vars(r)["id"], req.Recipe)
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
