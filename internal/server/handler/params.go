package handler

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/params"
)

// maxParamsBody caps the update request size.
const maxParamsBody = 64 << 10

// ParamsHandler reads and updates the live trader parameters.
type ParamsHandler struct {
	store  *params.Store
	secret string
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewParamsHandler creates a ParamsHandler. An empty secret rejects every
// update. audit may be nil.
func NewParamsHandler(store *params.Store, secret string, audit domain.AuditStore, logger *slog.Logger) *ParamsHandler {
	return &ParamsHandler{store: store, secret: secret, audit: audit, logger: logger.With(slog.String("handler", "params"))}
}

type updateRequest struct {
	Secret       *string                    `json:"secret"`
	UpdateParams map[string]json.RawMessage `json:"update_params"`
}

// Get returns the current parameters.
// GET /api/params
func (h *ParamsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot().Values())
}

// Update applies {"secret", "update_params"} and answers {"old", "new"}.
// POST /update_params
func (h *ParamsHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "received update command")

	var req updateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxParamsBody)).Decode(&req); err != nil || req.Secret == nil || req.UpdateParams == nil {
		writeText(w, http.StatusBadRequest, "Bad request")
		return
	}
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(*req.Secret), []byte(h.secret)) != 1 {
		h.logger.WarnContext(r.Context(), "rejected update with wrong secret", slog.String("remote_addr", r.RemoteAddr))
		writeText(w, http.StatusUnauthorized, "Incorrect secret.")
		return
	}

	old, updated, err := h.store.Update(req.UpdateParams)
	if err != nil {
		var unknown *params.UnknownParamError
		if errors.As(err, &unknown) {
			writeText(w, http.StatusUnprocessableEntity, unknown.Error())
			return
		}
		writeText(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	h.logger.InfoContext(r.Context(), "parameters updated", slog.Any("new", updated))
	if h.audit != nil {
		if err := h.audit.Log(r.Context(), "params_updated", map[string]any{"old": old, "new": updated}); err != nil {
			h.logger.WarnContext(r.Context(), "audit params update", slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"old": old, "new": updated})
}
