package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sqlforge/sqlforge/internal/models"
	"github.com/sqlforge/sqlforge/internal/repository"
)

type ConnectionHandler struct {
	connections repository.ConnectionRepository
}

func NewConnectionHandler(connections repository.ConnectionRepository) *ConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

// Create handles POST /api/v1/connections.
func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		models.WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Alias == "" {
		models.WriteError(w, http.StatusBadRequest, "alias is required")
		return
	}

	switch req.Dialect {
	case "bigquery":
		if req.ProjectID == "" {
			models.WriteError(w, http.StatusBadRequest, "project_id is required for bigquery connections")
			return
		}
	default:
		if req.DSN == "" {
			models.WriteError(w, http.StatusBadRequest, "dsn is required")
			return
		}
	}

	conn := &models.DatabaseConnection{
		ID:              uuid.NewString(),
		Alias:           req.Alias,
		Dialect:         req.Dialect,
		Driver:          req.Driver,
		DSN:             req.DSN,
		ProjectID:       req.ProjectID,
		Dataset:         req.Dataset,
		CredentialsFile: req.CredentialsFile,
		Location:        req.Location,
		CreatedAt:       time.Now(),
	}
	if err := h.connections.Insert(r.Context(), conn); err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusCreated, conn)
}

// Get handles GET /api/v1/connections/{connection_id}.
func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connections.FindByID(r.Context(), chi.URLParam(r, "connection_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	models.WriteJSON(w, http.StatusOK, conn)
}
