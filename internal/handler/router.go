// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/eltiempo/internal/metrics"
	"github.com/hitoshi/eltiempo/internal/middleware"
	"github.com/hitoshi/eltiempo/internal/view"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Controllers ControllerSource
	Renderer    *view.Renderer
	Logger      *slog.Logger

	// Cookie はセッションとCSRFトークンのCookie属性。
	Cookie middleware.CookieConfig

	// MetricsGatherer がnilの場合は /metrics を公開しない。
	MetricsGatherer prometheus.Gatherer
}

// NewRouter はフォームサーバーのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders
//	  フォームのルートのみ: → Session → CSRF
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	formHandler := NewFormHandler(deps.Controllers, deps.Renderer, deps.Logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Cookie))
		r.Use(middleware.NewCSRFMiddleware(deps.Cookie, deps.Logger))

		r.Get("/", formHandler.Index)
		r.Post("/search", formHandler.Search)
		r.Post("/save", formHandler.Save)
		r.Get("/api/state", formHandler.State)
	})

	r.Get("/health", Health)

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	return r
}

// StoreRouterDeps はNewStoreRouterに必要な依存関係をまとめた構造体。
type StoreRouterDeps struct {
	Service           StoreServiceInterface
	Logger            *slog.Logger
	CORSAllowedOrigin string
}

// NewStoreRouter は保存エンドポイントのルーティングを構成したchi.Routerを返す。
// CORSミドルウェアを最上位に適用し、フォームのオリジンからの送信を許可する。
func NewStoreRouter(deps *StoreRouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	storeHandler := NewStoreHandler(deps.Service, deps.Logger)

	r.Route("/saveWeatherData", func(r chi.Router) {
		r.Post("/", storeHandler.SaveWeatherData)
		r.Get("/", storeHandler.ListWeatherData)
	})
	r.Get("/health", storeHandler.Health)

	return r
}
