package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/eltiempo/internal/config"
	"github.com/hitoshi/eltiempo/internal/database"
	"github.com/hitoshi/eltiempo/internal/handler"
	"github.com/hitoshi/eltiempo/internal/logger"
	"github.com/hitoshi/eltiempo/internal/metrics"
	"github.com/hitoshi/eltiempo/internal/middleware"
	"github.com/hitoshi/eltiempo/internal/persistence"
	"github.com/hitoshi/eltiempo/internal/repository"
	"github.com/hitoshi/eltiempo/internal/search"
	"github.com/hitoshi/eltiempo/internal/security"
	"github.com/hitoshi/eltiempo/internal/store"
	"github.com/hitoshi/eltiempo/internal/view"
	"github.com/hitoshi/eltiempo/internal/weather"
)

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envの読み込み。ファイルがなければ環境変数のみを使う
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたレベルでロガーを作り直す
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckPort(args))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("log_level", cfg.LogLevel),
	)

	if cmd.RequiresDatabase() {
		if err := cfg.ValidateStore(); err != nil {
			return err
		}
	}

	switch cmd {
	case CommandStore:
		return runStore(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はフォームUIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	router, registry, err := newServeHandler(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer registry.Close()

	server := newHTTPServer(cfg.ServerPort, router)
	return listenUntilSignal(server, "form server")
}

// newServeHandler はフォームUIサーバーの依存関係をワイヤリングし、ルーターを返す。
// 戻り値のRegistryはシャットダウン時にCloseすること。
func newServeHandler(cfg *config.Config, log *slog.Logger) (http.Handler, *search.Registry, error) {
	// 1. プロバイダーURLの検証
	if err := security.ValidateProviderURL(cfg.WeatherBaseURL); err != nil {
		return nil, nil, fmt.Errorf("invalid WEATHER_BASE_URL: %w", err)
	}

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 3. 外部クライアントの初期化
	weatherClient := weather.NewClient(
		security.NewProviderClient(cfg.HTTPClientTimeout),
		log,
		weather.ClientConfig{
			BaseURL: cfg.WeatherBaseURL,
			APIKey:  cfg.WeatherAPIKey,
			Metrics: collector,
		},
	)

	// 保存先は同一ホストのlocalhostを想定するため、SSRFガードを通さない
	persistenceClient := persistence.NewClient(
		&http.Client{Timeout: cfg.HTTPClientTimeout},
		log,
		cfg.SaveEndpoint,
		collector,
	)

	// 4. ビューと訪問者ごとのコントローラー
	renderer, err := view.NewRenderer(security.NewTextSanitizer())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build renderer: %w", err)
	}

	registry := search.NewRegistry(weatherClient, persistenceClient, log, cfg.SessionIdleTimeout)

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Controllers: handler.NewRegistrySource(registry),
		Renderer:    renderer,
		Logger:      log,
		Cookie: middleware.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
		},
		MetricsGatherer: reg,
	})

	log.Info("form server wired",
		slog.String("weather_base_url", cfg.WeatherBaseURL),
		slog.String("save_endpoint", cfg.SaveEndpoint),
		slog.Duration("http_client_timeout", cfg.HTTPClientTimeout),
		slog.Duration("session_idle_timeout", cfg.SessionIdleTimeout),
	)

	return router, registry, nil
}

// runStore は保存エンドポイントモードで起動する。
// DB接続を開き、リポジトリとサービスをワイヤリングしてHTTPサーバーを起動する。
func runStore(cfg *config.Config) error {
	// 1. DB接続
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	// 2. リポジトリとサービス
	repo := repository.NewPostgresWeatherRecordRepo(db)
	service := store.NewService(repo, slog.Default())

	// 3. ルーターの構築
	router := handler.NewStoreRouter(&handler.StoreRouterDeps{
		Service:           service,
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
	})

	server := newHTTPServer(cfg.StorePort, router)
	return listenUntilSignal(server, "store server")
}

func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// listenUntilSignal はサーバーを起動し、SIGINT/SIGTERMでグレースフルシャットダウンする。
// 起動に失敗した場合はシグナルを待たずにエラーを返す。
func listenUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	listenErr := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
		close(listenErr)
	}()

	select {
	case err, ok := <-listenErr:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-stop:
	}

	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// healthcheckPort はヘルスチェック対象のポートを環境変数から決める。
func healthcheckPort(args []string) string {
	key, def := healthcheckTarget(args)
	if port := os.Getenv(key); port != "" {
		return port
	}
	return def
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
