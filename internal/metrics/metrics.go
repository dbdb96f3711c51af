// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder はメトリクス記録のインターフェース。
// ミドルウェア、認可ゲート、サービス層、ワーカーから利用する。
type Recorder interface {
	RecordRequest(method, route string, status int, duration time.Duration)
	RecordAuthzDenial(reason string)
	RecordRateLimitRejection(limit string)
	RecordUpstreamCall(provider string, ok bool, duration time.Duration)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集するRecorderの実装。
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authzDenials    *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpad_http_requests_total",
			Help: "HTTPリクエスト数（メソッド、ルート、ステータス別）",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "launchpad_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		authzDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpad_authz_denials_total",
			Help: "認可ゲートで拒否されたリクエスト数（理由別）",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpad_ratelimit_rejections_total",
			Help: "レート制限で拒否されたリクエスト数（制限種別）",
		}, []string{"limit"}),
		upstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "launchpad_upstream_calls_total",
			Help: "外部プロバイダー呼び出し数（プロバイダー、結果別）",
		}, []string{"provider", "result"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "launchpad_upstream_latency_seconds",
			Help:    "外部プロバイダー呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "launchpad_sessions_cleaned_total",
			Help: "クリーンアップジョブで削除された期限切れセッション数",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestDuration,
		c.authzDenials,
		c.rateLimited,
		c.upstreamCalls,
		c.upstreamLatency,
		c.sessionsCleaned,
	)

	return c
}

// RecordRequest はHTTPリクエストを記録する。routeはchiのルートパターンを渡す。
func (c *Collector) RecordRequest(method, route string, status int, duration time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordAuthzDenial は認可拒否を記録する。
func (c *Collector) RecordAuthzDenial(reason string) {
	c.authzDenials.WithLabelValues(reason).Inc()
}

// RecordRateLimitRejection はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimitRejection(limit string) {
	c.rateLimited.WithLabelValues(limit).Inc()
}

// RecordUpstreamCall は外部プロバイダー呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordUpstreamCall(provider string, ok bool, duration time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.upstreamCalls.WithLabelValues(provider, result).Inc()
	c.upstreamLatency.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordSessionsCleaned は削除されたセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないRecorder。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}
func (Nop) RecordAuthzDenial(string) {}
func (Nop) RecordRateLimitRejection(string) {}
func (Nop) RecordUpstreamCall(string, bool, time.Duration) {}
func (Nop) RecordSessionsCleaned(int64) {}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
