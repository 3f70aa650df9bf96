package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"triage/internal"
)

// EmailLister is the slice of the document store the read API serves.
type EmailLister interface {
	ListEmails() ([]internal.EmailDocument, error)
}

// Handlers holds the read-API handlers and their dependencies.
type Handlers struct {
	store EmailLister
}

func New(store EmailLister) *Handlers {
	return &Handlers{store: store}
}

// Routes builds the router for the dashboard read API.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/emails", h.listEmails)
	return r
}

// listEmails returns all stored documents, newest first.
func (h *Handlers) listEmails(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")

	docs, err := h.store.ListEmails()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	if docs == nil {
		docs = []internal.EmailDocument{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"records": docs})
}
