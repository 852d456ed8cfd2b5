package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"PickLedger/internal/ledger"
	"PickLedger/internal/model"
	"PickLedger/internal/performance"
	"PickLedger/internal/recorder"
	"PickLedger/internal/refresher"
	"PickLedger/internal/strategy"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 1 << 20

// writeJSON encodes v fully before any header is written.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("encode response")
		status = http.StatusInternalServerError
		body = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case model.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyClosed), errors.Is(err, refresher.ErrRefreshInProgress):
		status = http.StatusConflict
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", requestID(r)).Str("path", r.URL.Path).Msg("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, RequestID: requestID(r)})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return &model.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

func queryFilter(r *http.Request) (model.Window, performance.Filter, error) {
	q := r.URL.Query()
	var f performance.Filter
	w, err := model.ParseWindow(q.Get("period"))
	if err != nil {
		return "", f, err
	}
	if v := q.Get("status"); v != "" {
		if f.Status, err = model.ParseStatus(v); err != nil {
			return "", f, err
		}
	}
	if v := q.Get("category"); v != "" {
		if f.Category, err = model.ParseCategory(v); err != nil {
			return "", f, err
		}
	}
	return w, f, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &model.ValidationError{Field: name, Reason: "not an integer"}
	}
	return n, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": s.deps.Now().UTC()})
}

type recordRequest struct {
	Category        model.Category  `json:"category"`
	Recommendations []recorder.Item `json:"recommendations"`
}

func (s *Server) recordBatch(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	def := req.Category
	if v := r.URL.Query().Get("category"); v != "" {
		def = model.Category(v)
	}
	for i := range req.Recommendations {
		if req.Recommendations[i].Category == "" {
			req.Recommendations[i].Category = def
		}
	}
	res := s.deps.Recorder.RecordBatchDetailed(r.Context(), req.Recommendations, s.deps.Now())
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	win, f, err := queryFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	size, err := queryInt(r, "page_size", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := s.deps.Now()
	lf := ledger.Filter{Status: f.Status, Category: f.Category}
	if start, ok := win.Start(now, s.deps.Calculator.Loc); ok {
		lf.From = start
	}
	p, err := s.deps.Store.Query(r.Context(), lf, page, size)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := pageDTO{Records: make([]entryDTO, 0, len(p.Entries)), Total: p.Total, Page: p.Page, PageSize: p.PageSize}
	for i := range p.Entries {
		out.Records = append(out.Records, toEntryDTO(&p.Entries[i], now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	win, f, err := queryFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum, err := s.deps.Calculator.Summary(r.Context(), win, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(sum))
}

func (s *Server) performanceCurve(w http.ResponseWriter, r *http.Request) {
	win, err := model.ParseWindow(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	cv, err := s.deps.Calculator.Curve(r.Context(), win)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCurveDTO(cv))
}

func (s *Server) closePosition(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, r, &model.ValidationError{Field: "id", Reason: "not an integer"})
		return
	}
	var req closeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	reason, err := model.ParseCloseReason(req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.deps.Closer.Close(r.Context(), id, req.ClosePrice, reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e, s.deps.Now()))
}

func (s *Server) getStopConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Stops.Get())
}

func (s *Server) updateStopConfig(w http.ResponseWriter, r *http.Request) {
	var p strategy.Patch
	if err := decodeBody(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := s.deps.Stops.Update(p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) checkAutoClose(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.AutoCloser.Sweep(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Cycles.RunRefreshNow(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
