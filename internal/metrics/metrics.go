// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 天気クライアントと保存クライアントから利用する。
type MetricsCollector interface {
	RecordFetchSuccess()
	RecordFetchFailure(kind string)
	RecordFetchLatency(duration time.Duration)
	RecordProviderStatus(statusCode int)
	RecordSaveSuccess()
	RecordSaveFailure(kind string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	fetchSuccess   prometheus.Counter
	fetchFail      *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	providerStatus *prometheus.CounterVec
	saveSuccess    prometheus.Counter
	saveFail       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eltiempo_fetch_success_total",
			Help: "天気取得成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eltiempo_fetch_fail_total",
			Help: "エラー種別ごとの天気取得失敗数",
		}, []string{"kind"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eltiempo_fetch_latency_seconds",
			Help:    "天気プロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		providerStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eltiempo_provider_http_status_total",
			Help: "天気プロバイダーのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		saveSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eltiempo_save_success_total",
			Help: "天気データ保存成功の合計数",
		}),
		saveFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eltiempo_save_fail_total",
			Help: "エラー種別ごとの天気データ保存失敗数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.fetchLatency,
		c.providerStatus,
		c.saveSuccess,
		c.saveFail,
	)

	return c
}

// RecordFetchSuccess は天気取得成功を記録する。
func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure は天気取得失敗をエラー種別ごとに記録する。
func (c *Collector) RecordFetchFailure(kind string) {
	c.fetchFail.WithLabelValues(kind).Inc()
}

// RecordFetchLatency はプロバイダー呼び出しのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordProviderStatus はプロバイダーのHTTPステータスコードを記録する。
func (c *Collector) RecordProviderStatus(statusCode int) {
	c.providerStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSaveSuccess は保存成功を記録する。
func (c *Collector) RecordSaveSuccess() {
	c.saveSuccess.Inc()
}

// RecordSaveFailure は保存失敗をエラー種別ごとに記録する。
func (c *Collector) RecordSaveFailure(kind string) {
	c.saveFail.WithLabelValues(kind).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordFetchSuccess() {}
func (Nop) RecordFetchFailure(string) {}
func (Nop) RecordFetchLatency(time.Duration) {}
func (Nop) RecordProviderStatus(int) {}
func (Nop) RecordSaveSuccess() {}
func (Nop) RecordSaveFailure(string) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
