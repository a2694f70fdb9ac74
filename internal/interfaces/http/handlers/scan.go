package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/explain"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/export"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/view"
)

const maxBatchBytes = 16 << 20

// LatestScan returns the latest batch and its statistics
func (h *Handlers) LatestScan(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Latest(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// ScanStats returns the latest scan statistics
func (h *Handlers) ScanStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// IngestScan ingests the posted batch, or refreshes from upstream when the
// body is empty
func (h *Handlers) IngestScan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBatchBytes))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		snap, err := h.svc.Refresh(r.Context())
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, snap.Stats)
		return
	}

	var batch signal.Batch
	if err := json.Unmarshal(body, &batch); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_batch", err.Error())
		return
	}
	snap, err := h.svc.Ingest(r.Context(), batch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, snap.Stats)
}

// Signals returns the latest signals filtered and sorted by query parameters
// tier, bias, min_confidence, sort and dir
func (h *Handlers) Signals(w http.ResponseWriter, r *http.Request) {
	state, ok := h.viewFromQuery(w, r)
	if !ok {
		return
	}
	snap, rows, err := h.svc.Signals(r.Context(), state)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, SignalsResponse{
		ScanID:  snap.Batch.Metadata.ScanID,
		Count:   len(rows),
		Total:   len(snap.Batch.Signals),
		State:   state,
		Signals: rows,
	})
}

// ExportSignals streams the current view as CSV
func (h *Handlers) ExportSignals(w http.ResponseWriter, r *http.Request) {
	state, ok := h.viewFromQuery(w, r)
	if !ok {
		return
	}
	_, rows, err := h.svc.Signals(r.Context(), state)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="signals.csv"`)
	if err := export.SignalsCSV(w, rows); err != nil {
		log.Error().Err(err).Str("request_id", RequestID(r.Context())).Msg("CSV export failed")
	}
}

// Rejections explains every rejection of the latest scan. An optional
// severity parameter narrows the list.
func (h *Handlers) Rejections(w http.ResponseWriter, r *http.Request) {
	snap, all, err := h.svc.Rejections(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := all
	if sev := strings.ToLower(r.URL.Query().Get("severity")); sev != "" {
		out = make([]explain.Breakdown, 0, len(all))
		for _, b := range all {
			if string(b.Severity) == sev {
				out = append(out, b)
			}
		}
	}

	h.writeJSON(w, http.StatusOK, RejectionsResponse{
		ScanID:     snap.Batch.Metadata.ScanID,
		Count:      len(out),
		Rejections: out,
	})
}

// Explain returns the breakdowns for one symbol. Symbols containing a slash
// must be path-escaped (BTC%2FUSDT).
func (h *Handlers) Explain(w http.ResponseWriter, r *http.Request) {
	symbol, err := url.PathUnescape(mux.Vars(r)["symbol"])
	if err != nil || symbol == "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_symbol", "symbol must be a path-escaped pair")
		return
	}

	snap, breakdowns, err := h.svc.Explain(r.Context(), symbol)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ExplainResponse{
		Symbol:     symbol,
		ScanID:     snap.Batch.Metadata.ScanID,
		Breakdowns: breakdowns,
	})
}

// GetView returns a saved view state
func (h *Handlers) GetView(w http.ResponseWriter, r *http.Request) {
	state, err := h.svc.View(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// PutView saves a view state; unknown values are normalised to defaults
func (h *Handlers) PutView(w http.ResponseWriter, r *http.Request) {
	var state view.State
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&state); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_view", err.Error())
		return
	}
	saved, err := h.svc.SaveView(r.Context(), mux.Vars(r)["id"], state)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, saved)
}

func (h *Handlers) viewFromQuery(w http.ResponseWriter, r *http.Request) (view.State, bool) {
	q := r.URL.Query()
	state := view.DefaultState()

	state.Filters.Tier = view.ParseTierFilter(q.Get("tier"))
	state.Filters.Bias = view.ParseBiasFilter(q.Get("bias"))
	if v := q.Get("min_confidence"); v != "" {
		minConf, err := strconv.ParseFloat(v, 64)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", "min_confidence must be a number")
			return view.State{}, false
		}
		state.Filters.MinConfidence = minConf
	}
	if v := q.Get("sort"); v != "" {
		state.Sort.Field = view.ParseSortField(v)
	}
	if v := q.Get("dir"); v != "" {
		state.Sort.Direction = view.ParseDirection(v)
	}
	return state.Normalized(), true
}

// ToggleSort flips or switches the sort column of a saved view
func (h *Handlers) ToggleSort(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Query().Get("field")
	if field == "" {
		h.writeError(w, r, http.StatusBadRequest, "invalid_parameter", "field is required")
		return
	}
	state, err := h.svc.ToggleSort(r.Context(), mux.Vars(r)["id"], view.ParseSortField(field))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}
