package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/omentrader/internal/domain"
	"github.com/alanyoungcy/omentrader/internal/settlement"
)

// ResultsHandler lists emitted workflow results.
type ResultsHandler struct {
	store  domain.ResultStore
	logger *slog.Logger
}

// NewResultsHandler creates a ResultsHandler.
func NewResultsHandler(store domain.ResultStore, logger *slog.Logger) *ResultsHandler {
	return &ResultsHandler{store: store, logger: logger.With(slog.String("handler", "results"))}
}

// List returns recent results, newest first.
// GET /api/results?limit=&offset=
func (h *ResultsHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	results, err := h.store.ListRecent(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list results", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	records := make([]settlement.Record, 0, len(results))
	for _, res := range results {
		records = append(records, settlement.NewRecord(res))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": records,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
