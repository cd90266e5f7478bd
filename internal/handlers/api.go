package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"sales-insights/internal/errors"
	"sales-insights/internal/models"
	"sales-insights/internal/observability"
	"sales-insights/internal/services"
	"sales-insights/internal/store"
)

type APIHandlers struct {
	store         *store.Store
	engine        *services.Insights
	logger        *slog.Logger
	maxUploadSize int64
}

func NewAPIHandlers(st *store.Store, engine *services.Insights, logger *slog.Logger, maxUploadSize int64) *APIHandlers {
	return &APIHandlers{
		store:         st,
		engine:        engine,
		logger:        logger,
		maxUploadSize: maxUploadSize,
	}
}

// filterRequest is the wire shape of a FilterSpec: ISO calendar-day bounds
// plus multi-value dimension match sets. Absent fields impose no constraint.
type filterRequest struct {
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Region    []string `json:"region"`
	Category  []string `json:"category"`
	Channel   []string `json:"channel"`
	PromoFlag []string `json:"promo_flag"`
	Campaign  []string `json:"campaign"`
}

func (f filterRequest) toSpec() (models.FilterSpec, error) {
	spec := models.FilterSpec{
		Region:    f.Region,
		Category:  f.Category,
		Channel:   f.Channel,
		PromoFlag: f.PromoFlag,
		Campaign:  f.Campaign,
	}
	if f.Start != "" {
		t, err := time.Parse(time.DateOnly, f.Start)
		if err != nil {
			return spec, errors.BadRequestWrap(err, "start must be a YYYY-MM-DD date")
		}
		spec.Start = &t
	}
	if f.End != "" {
		t, err := time.Parse(time.DateOnly, f.End)
		if err != nil {
			return spec, errors.BadRequestWrap(err, "end must be a YYYY-MM-DD date")
		}
		spec.End = &t
	}
	return spec, nil
}

type chatRequest struct {
	filterRequest
	Question string `json:"question"`
}

// decodeBody unmarshals the request body into dst; an empty body is allowed
// and leaves dst at its zero value.
func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.BadRequestWrap(err, "cannot read request body")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.BadRequestWrap(err, "request body is not valid JSON")
	}
	return nil
}

func (h *APIHandlers) decodeSpec(r *http.Request) (models.FilterSpec, error) {
	var req filterRequest
	if err := decodeBody(r, &req); err != nil {
		return models.FilterSpec{}, err
	}
	return req.toSpec()
}

func (h *APIHandlers) HandleKPIs(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	spec, err := h.decodeSpec(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	errors.WriteSuccess(w, h.engine.KPIs(spec))
}

func (h *APIHandlers) HandleSeries(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	spec, err := h.decodeSpec(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	metric := queryDefault(r, "metric", "net_sales")
	freq := queryDefault(r, "freq", "M")

	points, err := h.engine.Series(metric, freq, spec)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	errors.WriteSuccess(w, points)
}

func (h *APIHandlers) HandleBreakdown(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	spec, err := h.decodeSpec(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	by := queryDefault(r, "by", "region")
	metric := queryDefault(r, "metric", "net_sales")

	rows, err := h.engine.Breakdown(by, metric, spec)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	errors.WriteSuccess(w, rows)
}

func (h *APIHandlers) HandleAnomalies(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	spec, err := h.decodeSpec(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	metric := queryDefault(r, "metric", "net_sales")
	window := 7
	if raw := r.URL.Query().Get("window"); raw != "" {
		window, err = strconv.Atoi(raw)
		if err != nil {
			errors.WriteError(w, h.logger, errors.BadRequest("window must be an integer"), requestID)
			return
		}
	}

	anomalies, err := h.engine.Anomalies(metric, window, spec)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	errors.WriteSuccess(w, anomalies)
}

func (h *APIHandlers) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	spec, err := h.decodeSpec(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			errors.WriteError(w, h.logger, errors.BadRequest("limit must be an integer"), requestID)
			return
		}
	}

	errors.WriteSuccess(w, h.engine.Recommendations(spec, limit))
}

func (h *APIHandlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	if req.Question == "" {
		errors.WriteError(w, h.logger, errors.Validation("question is required"), requestID)
		return
	}
	spec, err := req.toSpec()
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}

	errors.WriteSuccess(w, h.engine.NarrativeAnswer(req.Question, spec))
}

// HandleUpload ingests a multipart CSV into the canonical dataset and
// republishes the engine snapshot on success.
func (h *APIHandlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "expected a multipart upload"), requestID)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		errors.WriteError(w, h.logger, errors.BadRequestWrap(err, "upload must include a file field"), requestID)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize))
	if err != nil {
		errors.WriteError(w, h.logger, errors.InternalWrap(err, "cannot read uploaded file"), requestID)
		return
	}

	ds, added, err := h.store.AppendUpload(data, header.Filename)
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	h.engine.UpdateDataset(ds)

	errors.WriteSuccess(w, map[string]any{
		"rows_ingested": added,
		"total_rows":    len(ds.Rows),
		"message":       "upload merged into canonical dataset",
	})
}

func (h *APIHandlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	ds, err := h.store.Current()
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	errors.WriteSuccess(w, ds.FilterOptions())
}

// HandleRefresh re-runs the bootstrap load path and republishes the engine
// snapshot, picking up out-of-band warehouse changes.
func (h *APIHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	requestID := observability.GetRequestID(r.Context())

	ds, err := h.store.Refresh()
	if err != nil {
		errors.WriteError(w, h.logger, err, requestID)
		return
	}
	h.engine.UpdateDataset(ds)

	errors.WriteSuccess(w, map[string]any{"total_rows": len(ds.Rows)})
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	healthData := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   "1.0.0",
	}

	errors.WriteSuccess(w, healthData)
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.engine.Stats())
}

func queryDefault(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}
