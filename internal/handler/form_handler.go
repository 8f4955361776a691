package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eltiempo/internal/middleware"
	"github.com/hitoshi/eltiempo/internal/model"
	"github.com/hitoshi/eltiempo/internal/search"
	"github.com/hitoshi/eltiempo/internal/view"
)

// FormController はフォームハンドラーが必要とする検索コントローラーのインターフェース。
type FormController interface {
	// Search は入力を置き換えて検索を実行する。
	Search(ctx context.Context, query string) error
	// Save は現在の検索結果を保存する。
	Save(ctx context.Context) error
	// State は現在の状態のスナップショットを返す。
	State() model.SearchState
}

// ControllerSource は訪問者（セッションID）ごとのFormControllerを返す。
// 訪問者同士で検索状態を共有しない。
type ControllerSource interface {
	ForSession(sessionID string) FormController
}

// FormHandler は検索フォームのHTTPハンドラー。
// セッションミドルウェアとCSRFミドルウェアの内側で使う。
type FormHandler struct {
	controllers ControllerSource
	renderer    *view.Renderer
	logger      *slog.Logger
}

// NewFormHandler はFormHandlerを生成する。
func NewFormHandler(controllers ControllerSource, renderer *view.Renderer, logger *slog.Logger) *FormHandler {
	return &FormHandler{
		controllers: controllers,
		renderer:    renderer,
		logger:      logger,
	}
}

// Index はフォームページを表示する。
// GET /
func (h *FormHandler) Index(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controllerFor(w, r)
	if !ok {
		return
	}
	h.renderPage(w, r, controller, http.StatusOK)
}

// Search は入力された都市名で検索し、フォームページへリダイレクトする。
// 検索の実行中は受け付けず、409で現在のページを返す。
// POST /search
func (h *FormHandler) Search(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	controller, ok := h.controllerFor(w, r)
	if !ok {
		return
	}

	err := controller.Search(r.Context(), r.PostFormValue("city"))
	switch {
	case errors.Is(err, search.ErrSearchInFlight):
		h.renderPage(w, r, controller, http.StatusConflict)
		return
	case errors.Is(err, search.ErrControllerClosed):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	// 検索の失敗は状態のエラー欄に反映済み
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Save は現在の検索結果を保存し、フォームページへリダイレクトする。
// 保存の失敗はログにのみ記録され、ページのエラー欄には表示しない。
// POST /save
func (h *FormHandler) Save(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controllerFor(w, r)
	if !ok {
		return
	}

	if err := controller.Save(r.Context()); errors.Is(err, search.ErrControllerClosed) {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// State は現在の状態をJSONで返す。
// GET /api/state
func (h *FormHandler) State(w http.ResponseWriter, r *http.Request) {
	controller, ok := h.controllerFor(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, h.renderer.BuildState(controller.State()))
}

// controllerFor はリクエストの訪問者に対応するコントローラーを返す。
func (h *FormHandler) controllerFor(w http.ResponseWriter, r *http.Request) (FormController, bool) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		h.logger.Error("session ID missing from request context", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return h.controllers.ForSession(sessionID), true
}

func (h *FormHandler) renderPage(w http.ResponseWriter, r *http.Request, controller FormController, status int) {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, controller.State(), middleware.CSRFTokenFromContext(r.Context())); err != nil {
		h.logger.Error("failed to render form page", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// Health はフォームサーバーの死活確認に応答する。
// GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
