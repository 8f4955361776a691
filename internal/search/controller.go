// Package search は天気検索フォームの状態遷移を管理する。
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/hitoshi/eltiempo/internal/model"
)

var (
	// ErrSearchInFlight は検索の実行中に次の検索が要求されたことを表す。
	ErrSearchInFlight = errors.New("検索を実行中です")
	// ErrControllerClosed は破棄済みのコントローラーが呼ばれたことを表す。
	ErrControllerClosed = errors.New("コントローラーは破棄されています")
)

// WeatherFetcher は都市名で現在の天気を取得するインターフェース。
type WeatherFetcher interface {
	FetchCurrentWeather(ctx context.Context, city string) (*model.WeatherSummary, error)
}

// SummarySaver は天気の要約を保存するインターフェース。
type SummarySaver interface {
	SaveSummary(ctx context.Context, summary *model.WeatherSummary) error
}

// Controller は検索フォームの状態を保持し、検索と保存を仲介する。
// 検索は常に高々1件しか実行されない。保存は検索と並行して実行できる。
type Controller struct {
	fetcher WeatherFetcher
	saver   SummarySaver
	logger  *slog.Logger

	mu     sync.Mutex
	state  model.SearchState
	closed bool
}

// NewController は空の状態でControllerを生成する。
func NewController(fetcher WeatherFetcher, saver SummarySaver, logger *slog.Logger) *Controller {
	return &Controller{
		fetcher: fetcher,
		saver:   saver,
		logger:  logger,
		state:   model.SearchState{Phase: model.PhaseIdle},
	}
}

// SetQuery は入力中の都市名を更新する。
func (c *Controller) SetQuery(query string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Query = query
}

// Submit は現在の入力で検索を実行し、完了まで待つ。
//
// 実行中の検索がある場合は状態を変えずに ErrSearchInFlight を返す。
// 入力が空白のみの場合は天気APIを呼ばずに検証エラーを状態に設定する。
// 取得に失敗した場合は直前の検索結果を残したままエラーメッセージを設定する。
// 返すエラーはログ用で、フォームへの表示内容は State で参照する。
func (c *Controller) Submit(ctx context.Context) error {
	return c.submit(ctx, nil)
}

// Search は入力を query に置き換えてから Submit と同じ手順で検索する。
// 実行中の検索がある場合は入力も含めて状態を変えない。
func (c *Controller) Search(ctx context.Context, query string) error {
	return c.submit(ctx, &query)
}

func (c *Controller) submit(ctx context.Context, newQuery *string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	if c.state.Loading() {
		c.mu.Unlock()
		return ErrSearchInFlight
	}
	if newQuery != nil {
		c.state.Query = *newQuery
	}

	query := c.state.Query
	if strings.TrimSpace(query) == "" {
		verr := model.NewValidationError()
		c.state.Err = model.SearchError{Present: true, Message: verr.Message}
		c.state.Phase = model.PhaseIdle
		c.mu.Unlock()
		return verr
	}

	c.state.Err = model.SearchError{}
	c.state.Phase = model.PhaseLoading
	c.mu.Unlock()

	// 呼び出し元のリクエストが終わっても検索は完了まで実行する
	summary, err := c.fetcher.FetchCurrentWeather(context.WithoutCancel(ctx), query)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.logger.Debug("discarding search result after close", slog.String("city", query))
		return err
	}

	c.state.Phase = model.PhaseIdle
	if err != nil {
		c.state.Err = model.SearchError{Present: true, Message: errorMessage(err)}
		c.logger.Warn("weather search failed",
			slog.String("city", query),
			slog.String("error", err.Error()),
		)
		return err
	}

	c.state.Result = summary
	c.state.Err = model.SearchError{}
	return nil
}

// Save は現在の検索結果を保存する。検索フェーズには依存しない。
// 失敗はログに記録して返すが、フォームのエラー表示には反映しない。
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrControllerClosed
	}
	result := c.state.Result
	c.mu.Unlock()

	if err := c.saver.SaveSummary(context.WithoutCancel(ctx), result); err != nil {
		c.logger.Error("failed to save weather data",
			slog.String("error", err.Error()),
		)
		return err
	}

	attrs := []any{}
	if result != nil {
		attrs = append(attrs, slog.String("city", result.City), slog.String("country", result.Country))
	}
	c.logger.Info("weather data saved", attrs...)
	return nil
}

// State は現在の状態のスナップショットを返す。
func (c *Controller) State() model.SearchState {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	return s
}

// Close はコントローラーを破棄する。以降に届いた検索結果は状態に反映しない。
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// errorMessage はフォームに表示するメッセージを取り出す。
func errorMessage(err error) string {
	var werr *model.WeatherError
	if errors.As(err, &werr) && werr.Message != "" {
		return werr.Message
	}
	return model.MsgFetchFailed
}
