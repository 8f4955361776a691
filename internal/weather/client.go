// Package weather はWeatherAPI.comの現在の天気APIクライアントを提供する。
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/eltiempo/internal/metrics"
	"github.com/hitoshi/eltiempo/internal/model"
)

const (
	// DefaultBaseURL はWeatherAPI.comのAPIベースURL。
	DefaultBaseURL = "http://api.weatherapi.com/v1"
	// responseLang はレスポンスの表示言語。固定。
	responseLang = "es"
	// currentPath は現在の天気エンドポイントのパス。
	currentPath = "/current.json"
	// maxBodySize はレスポンスボディの読み取り上限（1MB）。
	// current.jsonは数KBなので、超えた分は切り捨ててパースエラーになる。
	maxBodySize = 1 << 20
)

// ClientConfig はClientの設定。
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Metrics metrics.MetricsCollector
}

// Client はWeatherAPI.comのクライアント。
// 1回の呼び出しにつきGETリクエストを1回だけ送信し、リトライは行わない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	apiKey     string
	metrics    metrics.MetricsCollector
}

// NewClient はClientの新しいインスタンスを生成する。
// BaseURLが空の場合はDefaultBaseURLを使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		metrics:    m,
	}
}

// currentResponse はcurrent.jsonのレスポンス。
// 必須フィールドの欠落を検出するためポインタで受ける。
type currentResponse struct {
	Location *locationPayload `json:"location"`
	Current  *currentPayload  `json:"current"`
	Error    *errorPayload    `json:"error"`
}

type locationPayload struct {
	Name    *string `json:"name"`
	Country *string `json:"country"`
}

type currentPayload struct {
	TempC     *float64          `json:"temp_c"`
	Condition *conditionPayload `json:"condition"`
}

type conditionPayload struct {
	Code *int    `json:"code"`
	Text *string `json:"text"`
	Icon *string `json:"icon"`
}

type errorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RequestURL は都市名に対するリクエストURLを組み立てる。
// 都市名は検証せず、そのままエスケープしてクエリに渡す。
func (c *Client) RequestURL(city string) (string, error) {
	reqURL, err := url.Parse(c.baseURL + currentPath)
	if err != nil {
		return "", fmt.Errorf("ベースURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("key", c.apiKey)
	q.Set("lang", responseLang)
	q.Set("q", city)
	reqURL.RawQuery = q.Encode()

	return reqURL.String(), nil
}

// FetchCurrentWeather は都市名で現在の天気を取得する。
// 失敗時は *model.WeatherError を返す（種別: transport, domain, parse）。
func (c *Client) FetchCurrentWeather(ctx context.Context, city string) (*model.WeatherSummary, error) {
	summary, err := c.fetch(ctx, city)
	if err != nil {
		var werr *model.WeatherError
		if errors.As(err, &werr) {
			c.metrics.RecordFetchFailure(werr.Kind.String())
		}
		return nil, err
	}
	c.metrics.RecordFetchSuccess()
	return summary, nil
}

func (c *Client) fetch(ctx context.Context, city string) (*model.WeatherSummary, error) {
	reqURL, err := c.RequestURL(city)
	if err != nil {
		return nil, model.NewTransportError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, model.NewTransportError(fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordFetchLatency(time.Since(start))
	if err != nil {
		c.logger.Error("weather provider request failed",
			slog.String("error", err.Error()),
			slog.String("city", city),
		)
		return nil, model.NewTransportError(err)
	}
	defer resp.Body.Close()

	c.metrics.RecordProviderStatus(resp.StatusCode)

	// 2xx以外はボディに関係なく通信エラーとして扱う
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("weather provider returned error status",
			slog.Int("http_status", resp.StatusCode),
			slog.String("city", city),
		)
		return nil, model.NewTransportError(fmt.Errorf("天気APIがステータス %d を返しました", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		c.logger.Error("failed to read weather provider response",
			slog.String("error", err.Error()),
		)
		return nil, model.NewTransportError(fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err))
	}

	var payload currentResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		c.logger.Error("failed to parse weather provider response",
			slog.String("error", err.Error()),
		)
		return nil, model.NewParseError(fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err))
	}

	if payload.Error != nil {
		c.logger.Warn("weather provider reported an error",
			slog.Int("provider_code", payload.Error.Code),
			slog.String("provider_message", payload.Error.Message),
			slog.String("city", city),
		)
		// メッセージが空の場合も種別はdomainのまま。表示文言はコントローラーが補う
		return nil, model.NewDomainError(payload.Error.Message)
	}

	summary, err := payload.toSummary()
	if err != nil {
		c.logger.Error("weather provider response is missing fields",
			slog.String("error", err.Error()),
			slog.String("city", city),
		)
		return nil, model.NewParseError(err)
	}

	c.logger.Debug("weather fetched",
		slog.String("city", summary.City),
		slog.String("country", summary.Country),
		slog.Int("condition", summary.ConditionCode),
	)

	return summary, nil
}

// toSummary はレスポンスをWeatherSummaryに変換する。値は変換せずそのまま写す。
func (r *currentResponse) toSummary() (*model.WeatherSummary, error) {
	var missing []string
	if r.Location == nil {
		missing = append(missing, "location")
	} else {
		if r.Location.Name == nil {
			missing = append(missing, "location.name")
		}
		if r.Location.Country == nil {
			missing = append(missing, "location.country")
		}
	}
	if r.Current == nil {
		missing = append(missing, "current")
	} else {
		if r.Current.TempC == nil {
			missing = append(missing, "current.temp_c")
		}
		if r.Current.Condition == nil {
			missing = append(missing, "current.condition")
		} else {
			if r.Current.Condition.Code == nil {
				missing = append(missing, "current.condition.code")
			}
			if r.Current.Condition.Text == nil {
				missing = append(missing, "current.condition.text")
			}
			if r.Current.Condition.Icon == nil {
				missing = append(missing, "current.condition.icon")
			}
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("必須フィールドがありません: %s", strings.Join(missing, ", "))
	}

	return &model.WeatherSummary{
		City:          *r.Location.Name,
		Country:       *r.Location.Country,
		TemperatureC:  *r.Current.TempC,
		ConditionCode: *r.Current.Condition.Code,
		ConditionText: *r.Current.Condition.Text,
		IconURL:       *r.Current.Condition.Icon,
	}, nil
}
