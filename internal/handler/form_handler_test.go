package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/eltiempo/internal/metrics"
	"github.com/hitoshi/eltiempo/internal/model"
	"github.com/hitoshi/eltiempo/internal/search"
	"github.com/hitoshi/eltiempo/internal/security"
	"github.com/hitoshi/eltiempo/internal/view"
)

// --- モック定義 ---

type mockFetcher struct {
	calls   atomic.Int32
	fetchFn func(ctx context.Context, city string) (*model.WeatherSummary, error)
}

func (m *mockFetcher) FetchCurrentWeather(ctx context.Context, city string) (*model.WeatherSummary, error) {
	m.calls.Add(1)
	return m.fetchFn(ctx, city)
}

type mockSaver struct {
	saveFn func(ctx context.Context, summary *model.WeatherSummary) error
}

func (m *mockSaver) SaveSummary(ctx context.Context, summary *model.WeatherSummary) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, summary)
	}
	return nil
}

// mockFormController はFormControllerのモック実装。
type mockFormController struct {
	searchFn func(ctx context.Context, query string) error
	saveFn   func(ctx context.Context) error
	state    model.SearchState
}

func (m *mockFormController) Search(ctx context.Context, query string) error {
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return nil
}

func (m *mockFormController) Save(ctx context.Context) error {
	if m.saveFn != nil {
		return m.saveFn(ctx)
	}
	return nil
}

func (m *mockFormController) State() model.SearchState {
	return m.state
}

// --- テストヘルパー ---

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func newTestRenderer(t *testing.T) *view.Renderer {
	t.Helper()
	r, err := view.NewRenderer(security.NewTextSanitizer())
	if err != nil {
		t.Fatalf("NewRenderer がエラーを返した: %v", err)
	}
	return r
}

func quitoSummary() *model.WeatherSummary {
	return &model.WeatherSummary{
		City:          "Quito",
		Country:       "Ecuador",
		TemperatureC:  12.8,
		ConditionCode: 1183,
		ConditionText: "Lluvia ligera",
		IconURL:       "//cdn.weatherapi.com/weather/64x64/day/296.png",
	}
}

// fixedSource はどの訪問者にも同じコントローラーを返すControllerSource。
type fixedSource struct {
	controller FormController
}

func (s fixedSource) ForSession(string) FormController {
	return s.controller
}

func newFormRouter(t *testing.T, controller FormController, buf *bytes.Buffer) http.Handler {
	t.Helper()
	return newFormRouterWithSource(t, fixedSource{controller: controller}, buf)
}

func newFormRouterWithSource(t *testing.T, source ControllerSource, buf *bytes.Buffer) http.Handler {
	t.Helper()
	return NewRouter(&RouterDeps{
		Controllers: source,
		Renderer:    newTestRenderer(t),
		Logger:      newTestLogger(buf),
	})
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// visitor はCookieを保持してフォームを操作するブラウザ1台分のテストクライアント。
type visitor struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]*http.Cookie
}

// newVisitor はGET / でセッションとCSRFトークンのCookieを受け取った訪問者を返す。
func newVisitor(t *testing.T, router http.Handler) *visitor {
	t.Helper()
	v := &visitor{t: t, router: router, cookies: map[string]*http.Cookie{}}
	if w := v.get("/"); w.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", w.Code)
	}
	if v.cookies["session_id"] == nil || v.cookies["csrf_token"] == nil {
		t.Fatalf("session_id と csrf_token のCookieが発行されるべき: %v", v.cookies)
	}
	return v
}

func (v *visitor) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range v.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	v.router.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		v.cookies[c.Name] = c
	}
	return w
}

func (v *visitor) get(path string) *httptest.ResponseRecorder {
	return v.do(httptest.NewRequest(http.MethodGet, path, nil))
}

// post はページに埋め込まれたCSRFトークンを付けてフォームを送信する。
func (v *visitor) post(path string, values url.Values) *httptest.ResponseRecorder {
	if values == nil {
		values = url.Values{}
	}
	values.Set("csrf_token", v.cookies["csrf_token"].Value)
	return v.do(postForm(path, values))
}

// --- テスト ---

func TestFormHandler_Index_RendersForm(t *testing.T) {
	var buf bytes.Buffer
	router := newFormRouter(t, &mockFormController{state: model.SearchState{Phase: model.PhaseIdle}}, &buf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{"El Tiempo", "Ciudad", "Buscar", "Guardar en Base de Datos", "Powered by:"} {
		if !strings.Contains(body, want) {
			t.Errorf("ページに %q が含まれるべき", want)
		}
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("セキュリティヘッダーが付与されるべき")
	}
}

func TestFormHandler_Index_EmbedsCSRFTokenFromCookie(t *testing.T) {
	var buf bytes.Buffer
	router := newFormRouter(t, &mockFormController{state: model.SearchState{Phase: model.PhaseIdle}}, &buf)

	v := newVisitor(t, router)
	w := v.get("/")

	token := v.cookies["csrf_token"].Value
	if !strings.Contains(w.Body.String(), `name="csrf_token" value="`+token+`"`) {
		t.Errorf("CookieのCSRFトークンがフォームに埋め込まれるべき: %s", w.Body.String())
	}
}

func TestFormHandler_Search_RedirectsAndStoresResult(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, city string) (*model.WeatherSummary, error) {
			if city != "Quito" {
				t.Errorf("city = %q, want Quito", city)
			}
			return quitoSummary(), nil
		},
	}
	controller := search.NewController(fetcher, &mockSaver{}, newTestLogger(&buf))
	v := newVisitor(t, newFormRouter(t, controller, &buf))

	w := v.post("/search", url.Values{"city": {"Quito"}})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/" {
		t.Errorf("Location = %q, want /", loc)
	}

	body := v.get("/").Body.String()
	if !strings.Contains(body, "Quito, Ecuador") {
		t.Errorf("検索結果が表示されるべき: %s", body)
	}
	if !strings.Contains(body, "12.8 °C") {
		t.Errorf("気温が表示されるべき: %s", body)
	}
}

func TestFormHandler_Search_EmptyCity_ShowsValidationError(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, city string) (*model.WeatherSummary, error) {
			return quitoSummary(), nil
		},
	}
	controller := search.NewController(fetcher, &mockSaver{}, newTestLogger(&buf))
	v := newVisitor(t, newFormRouter(t, controller, &buf))

	w := v.post("/search", url.Values{"city": {"   "}})

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	if fetcher.calls.Load() != 0 {
		t.Error("空の入力で天気APIを呼んではならない")
	}

	if body := v.get("/").Body.String(); !strings.Contains(body, "El campo ciudad es obligatorio") {
		t.Errorf("検証エラーが表示されるべき: %s", body)
	}
}

func TestFormHandler_Search_InFlight_Returns409(t *testing.T) {
	var buf bytes.Buffer
	controller := &mockFormController{
		searchFn: func(ctx context.Context, query string) error {
			return search.ErrSearchInFlight
		},
		state: model.SearchState{Query: "Quito", Phase: model.PhaseLoading},
	}
	v := newVisitor(t, newFormRouter(t, controller, &buf))

	w := v.post("/search", url.Values{"city": {"Lima"}})

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Buscando...") {
		t.Errorf("検索中の表示を返すべき: %s", body)
	}
	if !strings.Contains(body, v.cookies["csrf_token"].Value) {
		t.Error("409のページにもCSRFトークンを埋め込むべき")
	}
}

func TestFormHandler_Search_ClosedController_Returns503(t *testing.T) {
	var buf bytes.Buffer
	controller := &mockFormController{
		searchFn: func(ctx context.Context, query string) error {
			return search.ErrControllerClosed
		},
	}
	v := newVisitor(t, newFormRouter(t, controller, &buf))

	w := v.post("/search", url.Values{"city": {"Lima"}})

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestFormHandler_PostWithoutCSRFToken_Returns403(t *testing.T) {
	for _, path := range []string{"/search", "/save"} {
		t.Run(path, func(t *testing.T) {
			var buf bytes.Buffer
			var called atomic.Bool
			controller := &mockFormController{
				searchFn: func(ctx context.Context, query string) error {
					called.Store(true)
					return nil
				},
				saveFn: func(ctx context.Context) error {
					called.Store(true)
					return nil
				},
			}
			router := newFormRouter(t, controller, &buf)

			// 別サイトからのフォーム送信: Cookieは付くがトークンは持たない
			v := newVisitor(t, router)
			w := v.do(postForm(path, url.Values{"city": {"Lima"}}))

			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403", w.Code)
			}
			if called.Load() {
				t.Error("トークンなしの送信でコントローラーを呼んではならない")
			}

			// Cookieもない送信
			w = httptest.NewRecorder()
			router.ServeHTTP(w, postForm(path, url.Values{"city": {"Lima"}}))
			if w.Code != http.StatusForbidden {
				t.Errorf("Cookieなし: status = %d, want 403", w.Code)
			}
		})
	}
}

func TestFormHandler_Save_ErrorDoesNotReachPage(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, city string) (*model.WeatherSummary, error) {
			return quitoSummary(), nil
		},
	}
	saver := &mockSaver{
		saveFn: func(ctx context.Context, summary *model.WeatherSummary) error {
			return model.NewSaveRejectedError(errors.New("status 500"))
		},
	}
	controller := search.NewController(fetcher, saver, newTestLogger(&buf))
	v := newVisitor(t, newFormRouter(t, controller, &buf))

	v.post("/search", url.Values{"city": {"Quito"}})

	w := v.post("/save", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}

	if strings.Contains(v.get("/").Body.String(), model.MsgSaveRejected) {
		t.Error("保存エラーをページに表示してはならない")
	}
	if !strings.Contains(buf.String(), "failed to save weather data") {
		t.Errorf("保存エラーはログに記録されるべき: %s", buf.String())
	}
}

func TestFormHandler_State_ReturnsJSONSnapshot(t *testing.T) {
	var buf bytes.Buffer
	controller := &mockFormController{
		state: model.SearchState{Query: "Quito", Phase: model.PhaseIdle, Result: quitoSummary()},
	}
	router := newFormRouter(t, controller, &buf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got view.StateResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if got.City != "Quito" || got.Loading {
		t.Errorf("City = %q Loading = %v", got.City, got.Loading)
	}
	if got.Weather == nil || got.Weather.Category != "rainy" {
		t.Errorf("Weather = %+v, want category rainy", got.Weather)
	}
}

// TestFormHandler_VisitorsHaveSeparateState はCookieの異なる訪問者が状態を共有しないことを検証する。
func TestFormHandler_VisitorsHaveSeparateState(t *testing.T) {
	var buf bytes.Buffer
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	fetcher := &mockFetcher{
		fetchFn: func(ctx context.Context, city string) (*model.WeatherSummary, error) {
			if city == "Lento" {
				started <- struct{}{}
				<-release
			}
			s := quitoSummary()
			s.City = city
			return s, nil
		},
	}
	registry := search.NewRegistry(fetcher, &mockSaver{}, newTestLogger(&buf), 0)
	defer registry.Close()
	router := newFormRouterWithSource(t, NewRegistrySource(registry), &buf)

	a := newVisitor(t, router)
	b := newVisitor(t, router)
	if a.cookies["session_id"].Value == b.cookies["session_id"].Value {
		t.Fatal("訪問者ごとに異なるセッションIDが発行されるべき")
	}

	if w := a.post("/search", url.Values{"city": {"Lima"}}); w.Code != http.StatusSeeOther {
		t.Fatalf("A: status = %d, want 303", w.Code)
	}
	if !strings.Contains(a.get("/").Body.String(), "Lima, Ecuador") {
		t.Error("Aには自分の検索結果が表示されるべき")
	}
	if strings.Contains(b.get("/").Body.String(), "Lima, Ecuador") {
		t.Error("Bに他の訪問者の検索結果が表示されてはならない")
	}

	// Aの検索が実行中でもBは検索できる
	done := make(chan int, 1)
	go func() { done <- a.post("/search", url.Values{"city": {"Lento"}}).Code }()
	<-started

	if w := b.post("/search", url.Values{"city": {"Cusco"}}); w.Code != http.StatusSeeOther {
		t.Errorf("B: status = %d, want 303 while A is searching", w.Code)
	}
	if !strings.Contains(b.get("/").Body.String(), "Cusco, Ecuador") {
		t.Error("Bには自分の検索結果が表示されるべき")
	}

	close(release)
	if code := <-done; code != http.StatusSeeOther {
		t.Errorf("A: status = %d, want 303", code)
	}
	if registry.Len() != 2 {
		t.Errorf("registry.Len() = %d, want 2", registry.Len())
	}
}

func TestFormHandler_ClosedRegistry_Returns503(t *testing.T) {
	var buf bytes.Buffer
	registry := search.NewRegistry(&mockFetcher{
		fetchFn: func(ctx context.Context, city string) (*model.WeatherSummary, error) {
			return quitoSummary(), nil
		},
	}, &mockSaver{}, newTestLogger(&buf), 0)
	router := newFormRouterWithSource(t, NewRegistrySource(registry), &buf)

	v := newVisitor(t, router)
	registry.Close()

	if w := v.post("/search", url.Values{"city": {"Lima"}}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("search: status = %d, want 503", w.Code)
	}
	if w := v.post("/save", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("save: status = %d, want 503", w.Code)
	}
}

func TestFormHandler_WithoutSessionMiddleware_Returns500(t *testing.T) {
	var buf bytes.Buffer
	h := NewFormHandler(fixedSource{controller: &mockFormController{}}, newTestRenderer(t), newTestLogger(&buf))

	w := httptest.NewRecorder()
	h.Index(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRouter_Health(t *testing.T) {
	var buf bytes.Buffer
	router := newFormRouter(t, &mockFormController{}, &buf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("/health ではCookieを発行しない")
	}
}

func TestRouter_Metrics(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	collector.RecordFetchSuccess()

	router := NewRouter(&RouterDeps{
		Controllers:     fixedSource{controller: &mockFormController{}},
		Renderer:        newTestRenderer(t),
		Logger:          newTestLogger(&buf),
		MetricsGatherer: reg,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "eltiempo_fetch_success_total 1") {
		t.Errorf("メトリクスが公開されるべき: %s", w.Body.String())
	}
}

func TestRouter_NoMetricsWithoutGatherer(t *testing.T) {
	var buf bytes.Buffer
	router := newFormRouter(t, &mockFormController{}, &buf)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
