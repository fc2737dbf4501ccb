package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"histlink/config"
	"histlink/piweb"
	"histlink/poller"
)

// Managers provides access to the shared backends.
type Managers interface {
	GetConfig() *config.Config
	GetClient() *piweb.Client
	GetPoller() *poller.Manager
}

// TagResponse is the JSON response for a tag's last polled value.
type TagResponse struct {
	Tag       string      `json:"tag"`
	WebID     string      `json:"web_id,omitempty"`
	Value     interface{} `json:"value"`
	Timestamp string      `json:"timestamp,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// WriteRequest is the JSON request for writing a tag value.
// Exactly one of Tag or WebID must be set.
type WriteRequest struct {
	Tag          string      `json:"tag,omitempty"`
	WebID        string      `json:"web_id,omitempty"`
	Value        interface{} `json:"value"`
	Timestamp    string      `json:"timestamp,omitempty"`     // RFC3339, defaults to now
	UpdateOption string      `json:"update_option,omitempty"` // Defaults to Replace
	BufferOption string      `json:"buffer_option,omitempty"` // Defaults to BufferIfPossible
}

// WriteResponse is the JSON response after writing a tag value.
type WriteResponse struct {
	Tag       string      `json:"tag,omitempty"`
	WebID     string      `json:"web_id,omitempty"`
	Value     interface{} `json:"value"`
	Success   bool        `json:"success"`
	Location  string      `json:"location,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// HealthResponse is the JSON structure for gateway health.
type HealthResponse struct {
	Status    string `json:"status"`
	Historian string `json:"historian"`
	Tags      int    `json:"tags"`
	Timestamp string `json:"timestamp"`
}

// handlers holds the API handler functions.
type handlers struct {
	managers Managers
}

// NewRouter creates the REST API router.
func NewRouter(managers Managers) chi.Router {
	r := chi.NewRouter()
	h := &handlers{managers: managers}

	r.Get("/", h.handleRoot)
	r.Get("/health", h.handleHealth)

	r.Get("/query", h.handleQuery)

	r.Get("/tags", h.handleListTags)
	r.Get("/tags/{tag}", h.handleGetTag)
	r.Get("/tags/{tag}/interpolated", h.handleInterpolated)
	r.Get("/tags/{tag}/recorded", h.handleRecorded)
	r.Get("/tags/{tag}/summary", h.handleSummary)

	r.Post("/write", h.handleWrite)

	return r
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	cfg := h.managers.GetConfig()
	writeJSON(w, map[string]interface{}{
		"namespace":  cfg.Namespace,
		"historian":  cfg.Historian.Host,
		"dataserver": cfg.DataServer,
		"tags":       h.managers.GetPoller().TagNames(),
	})
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	p := h.managers.GetPoller()
	writeJSON(w, HealthResponse{
		Status:    p.GetStatus().String(),
		Historian: h.managers.GetConfig().Historian.Host,
		Tags:      len(p.TagNames()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleQuery fetches interpolated values for every tag matching a pattern,
// straight from the historian rather than the poller cache.
func (h *handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		writeError(w, http.StatusBadRequest, "pattern is required")
		return
	}
	cfg := h.managers.GetConfig()

	results, err := h.managers.GetClient().GetValues(r.Context(), cfg.DataServer, pattern)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, results)
}

func (h *handlers) handleListTags(w http.ResponseWriter, r *http.Request) {
	snaps := h.managers.GetPoller().Snapshots()
	resp := make([]TagResponse, 0, len(snaps))
	for _, s := range snaps {
		resp = append(resp, snapshotResponse(s))
	}
	writeJSON(w, resp)
}

func (h *handlers) handleGetTag(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tag")
	snap, ok := h.managers.GetPoller().GetTag(name)
	if !ok {
		writeError(w, http.StatusNotFound, "tag not managed: "+name)
		return
	}
	writeJSON(w, snapshotResponse(snap))
}

func (h *handlers) handleInterpolated(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tag")
	cfg := h.managers.GetConfig()

	samples, err := h.managers.GetClient().GetValue(r.Context(), cfg.DataServer, name)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, samples)
}

func (h *handlers) handleRecorded(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tag")
	cfg := h.managers.GetConfig()

	timeExpr := r.URL.Query().Get("time")
	if timeExpr == "" {
		timeExpr = "*"
	}
	modeParam := r.URL.Query().Get("mode")
	if modeParam == "" {
		modeParam = string(piweb.RetrievalAuto)
	}
	mode, err := piweb.ParseRetrievalMode(modeParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rv, err := h.managers.GetClient().GetRecordedValue(r.Context(), cfg.DataServer, name, timeExpr, mode)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	if mode == piweb.RetrievalExact {
		writeJSON(w, map[string]interface{}{"value": rv.Scalar})
		return
	}
	writeJSON(w, rv.Object)
}

func (h *handlers) handleSummary(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "tag")
	cfg := h.managers.GetConfig()

	summaryParam := r.URL.Query().Get("type")
	if summaryParam == "" {
		summaryParam = string(piweb.SummaryAverage)
	}
	summary, err := piweb.ParseSummaryType(summaryParam)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	samples, err := h.managers.GetClient().GetSummaryValue(r.Context(), cfg.DataServer, name, summary)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, samples)
}

func (h *handlers) handleWrite(w http.ResponseWriter, r *http.Request) {
	var req WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Tag == "" && req.WebID == "" {
		writeError(w, http.StatusBadRequest, "either tag or web_id is required")
		return
	}

	update := piweb.UpdateReplace
	if req.UpdateOption != "" {
		var err error
		update, err = piweb.ParseUpdateOption(req.UpdateOption)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	buffer := piweb.BufferIfPossible
	if req.BufferOption != "" {
		var err error
		buffer, err = piweb.ParseBufferOption(req.BufferOption)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	ts := time.Now()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid timestamp: "+err.Error())
			return
		}
		ts = parsed
	}

	cfg := h.managers.GetConfig()
	value := &piweb.Value{Timestamp: ts, Value: req.Value}
	target := piweb.WriteTarget{WebID: req.WebID, Tag: req.Tag}

	location, err := h.managers.GetClient().UpdateValue(r.Context(), cfg.DataServer, value, update, buffer, target)

	resp := WriteResponse{
		Tag:       req.Tag,
		WebID:     req.WebID,
		Value:     req.Value,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err != nil {
		resp.Error = err.Error()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusForError(err))
		json.NewEncoder(w).Encode(resp)
		return
	}
	resp.Success = true
	resp.Location = location
	writeJSON(w, resp)
}

func snapshotResponse(s poller.TagSnapshot) TagResponse {
	return TagResponse{
		Tag:       s.Name,
		WebID:     s.WebID,
		Value:     s.Value,
		Timestamp: s.Timestamp,
		Error:     s.Error,
	}
}

// statusForError maps client error conditions onto HTTP status codes.
func statusForError(err error) int {
	var ambiguous *piweb.AmbiguousTagError
	var notFound *piweb.NotFoundError
	var writeFailed *piweb.WriteFailedError
	var connection *piweb.ConnectionError

	switch {
	case errors.Is(err, piweb.ErrBothTargets):
		return http.StatusBadRequest
	case errors.Is(err, piweb.ErrEmptyResult):
		return http.StatusNotFound
	case errors.As(err, &ambiguous):
		return http.StatusConflict
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &writeFailed):
		return http.StatusBadGateway
	case errors.As(err, &connection):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
