package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/eltiempo/internal/middleware"
	"github.com/hitoshi/eltiempo/internal/model"
)

// maxSaveBodyBytes は保存リクエストボディの上限。
const maxSaveBodyBytes = 1 << 20

// StoreServiceInterface は保存エンドポイントのハンドラーが必要とするサービスインターフェース。
type StoreServiceInterface interface {
	Save(ctx context.Context, payload model.SaveRequestPayload) (*model.WeatherRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*model.WeatherRecord, error)
	Ping(ctx context.Context) error
}

// StoreHandler は保存エンドポイントのHTTPハンドラー。
type StoreHandler struct {
	service StoreServiceInterface
	logger  *slog.Logger
}

// NewStoreHandler はStoreHandlerを生成する。
func NewStoreHandler(service StoreServiceInterface, logger *slog.Logger) *StoreHandler {
	return &StoreHandler{
		service: service,
		logger:  logger,
	}
}

// SaveWeatherData は天気の要約を保存する。
// POST /saveWeatherData
func (h *StoreHandler) SaveWeatherData(w http.ResponseWriter, r *http.Request) {
	var payload model.SaveRequestPayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSaveBodyBytes)).Decode(&payload); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidJSONError())
		return
	}

	record, err := h.service.Save(r.Context(), payload)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, apiErr)
			return
		}
		h.logger.Error("failed to store weather record", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, record)
}

// ListWeatherData は保存済みの天気の要約を新しい順に返す。
// GET /saveWeatherData?limit=N
func (h *StoreHandler) ListWeatherData(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidLimitError())
			return
		}
		limit = n
	}

	records, err := h.service.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list weather records", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, records)
}

// Health はデータベースへの疎通を含めた死活確認に応答する。
// GET /health
func (h *StoreHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.service.Ping(ctx); err != nil {
		h.logger.Warn("database ping failed", slog.String("error", err.Error()))
		middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
