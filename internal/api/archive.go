package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/jx"

	"github.com/xenking/order-fulfillment/internal/domain/archive"
	"github.com/xenking/order-fulfillment/internal/domain/order"
)

type moveToHistoryRequest struct {
	IDs   []string `json:"ids"`
	Actor string   `json:"actor"`
}

// moveToHistory archives the given orders. Skipped and failed ids are part
// of the normal response body; the admin UI must never be told "all moved"
// when some were not.
func (h *Handler) moveToHistory(w http.ResponseWriter, r *http.Request) {
	var req moveToHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}

	result, err := h.archive.MoveToHistory(r.Context(), req.IDs, actorFor(r.Context(), req.Actor))
	if err != nil {
		mapDomainError(w, err)
		return
	}

	respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("movedCount")
		e.Int(result.MovedCount)
		e.FieldStart("movedIds")
		e.ArrStart()
		for _, id := range result.MovedIDs {
			e.Str(id)
		}
		e.ArrEnd()
		e.FieldStart("skipped")
		encodeSkips(e, result.Skipped)
		e.FieldStart("failed")
		encodeSkips(e, result.Failed)
		e.ObjEnd()
	})
}

func encodeSkips(e *jx.Encoder, skips []archive.Skip) {
	e.ArrStart()
	for _, s := range skips {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(s.ID)
		e.FieldStart("reason")
		e.StrEscape(string(s.Reason))
		e.ObjEnd()
	}
	e.ArrEnd()
}

// queryHistory filters archived orders by date range, free-text search and
// status. Results stream newest-archival first.
func (h *Handler) queryHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f archive.Filter
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		f.From = t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		f.To = t
	}
	f.Search = q.Get("q")
	if v := q.Get("status"); v != "" {
		s := order.Status(v)
		if !s.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		f.Status = s
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}

	records, err := h.archive.QueryHistory(r.Context(), f)
	if err != nil {
		mapDomainError(w, err)
		return
	}

	respond(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("records")
		e.ArrStart()
		for i := range records {
			encodeHistoryRecord(e, &records[i])
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}
