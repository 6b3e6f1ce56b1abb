package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/comp-pricer/internal/pricing"
)

const maxBodyBytes = 1 << 20

type priceBody struct {
	pricing.PriceRequest
	// DeadlineMS bounds source retrieval in milliseconds.
	DeadlineMS int `json:"deadline_ms,omitempty"`
}

func (h *Handler) price(w http.ResponseWriter, r *http.Request) {
	var body priceBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, pricing.KindInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	req := body.PriceRequest
	if body.DeadlineMS > 0 {
		req.Deadline = time.Duration(body.DeadlineMS) * time.Millisecond
	}

	resp, err := h.svc.Price(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, pricing.KindInvalidRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, pricing.KindInvalidRequest, err.Error())
		return
	}

	results, err := h.svc.GetHistory(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, eris.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
