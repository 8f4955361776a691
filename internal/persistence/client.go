// Package persistence は天気の要約を保存エンドポイントへ送信するクライアントを提供する。
package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/eltiempo/internal/metrics"
	"github.com/hitoshi/eltiempo/internal/model"
)

// DefaultEndpoint はローカルの保存エンドポイント。
const DefaultEndpoint = "http://localhost:5000/saveWeatherData"

// Client は保存エンドポイントのクライアント。
// 1回の呼び出しにつきPOSTを1回だけ送信し、リトライもキューイングも行わない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
	metrics    metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
// endpointが空の場合はDefaultEndpointを使用する。mがnilの場合はメトリクスを記録しない。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint string, m metrics.MetricsCollector) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
		metrics:    m,
	}
}

// SaveSummary は天気の要約 {city, country, temperature} を保存エンドポイントへPOSTする。
// summaryがnilの場合は通信せずに SaveKindNoData のエラーを返す。
// 2xx以外のステータスまたは通信失敗は SaveKindRejected のエラーを返す。
func (c *Client) SaveSummary(ctx context.Context, summary *model.WeatherSummary) error {
	err := c.save(ctx, summary)
	if err != nil {
		var serr *model.SaveError
		if errors.As(err, &serr) {
			c.metrics.RecordSaveFailure(serr.Kind.String())
		}
		return err
	}
	c.metrics.RecordSaveSuccess()
	return nil
}

func (c *Client) save(ctx context.Context, summary *model.WeatherSummary) error {
	if summary == nil {
		return model.NewNoDataError()
	}

	body, err := json.Marshal(model.NewSaveRequestPayload(summary))
	if err != nil {
		return model.NewSaveRejectedError(fmt.Errorf("ペイロードのエンコードに失敗しました: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.NewSaveRejectedError(fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("save endpoint request failed",
			slog.String("error", err.Error()),
			slog.String("endpoint", c.endpoint),
		)
		return model.NewSaveRejectedError(err)
	}
	defer resp.Body.Close()
	// レスポンスボディは使わないが、コネクション再利用のため読み捨てる
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("save endpoint returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("endpoint", c.endpoint),
		)
		return model.NewSaveRejectedError(fmt.Errorf("保存エンドポイントがステータス %d を返しました", resp.StatusCode))
	}

	return nil
}
