// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/inventory/internal/model"
	"github.com/hitoshi/inventory/internal/repository"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、ミドルウェア、ワーカーから利用する。
type MetricsCollector interface {
	ObserveRequest(method string, statusCode int, duration time.Duration)
	RecordSaveResult(resource model.Resource, status model.SaveStatus)
	RecordPurged(resource string, count int64)
	OnEvent(ctx context.Context, ev repository.Event)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	saveResults     *prometheus.CounterVec
	purged          *prometheus.CounterVec
	events          *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_http_requests_total",
			Help: "メソッドとステータスコード別のHTTPリクエスト数",
		}, []string{"method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inventory_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		saveResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_save_results_total",
			Help: "リソース別の書き込み操作の結果数",
		}, []string{"resource", "status"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_purged_records_total",
			Help: "物理削除された論理削除済みレコードの合計数",
		}, []string{"resource"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_repository_events_total",
			Help: "リポジトリで発生した変更イベント数",
		}, []string{"resource", "event"}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.requestDuration,
		c.saveResults,
		c.purged,
		c.events,
	)

	return c
}

// ObserveRequest はHTTPリクエストの処理結果を記録する。
func (c *Collector) ObserveRequest(method string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordSaveResult は書き込み操作の結果を記録する。
func (c *Collector) RecordSaveResult(resource model.Resource, status model.SaveStatus) {
	c.saveResults.WithLabelValues(string(resource), string(status)).Inc()
}

// RecordPurged は物理削除されたレコード数を記録する。
func (c *Collector) RecordPurged(resource string, count int64) {
	c.purged.WithLabelValues(resource).Add(float64(count))
}

// OnEvent はリポジトリの変更イベントを記録する。
func (c *Collector) OnEvent(_ context.Context, ev repository.Event) {
	c.events.WithLabelValues(string(ev.Resource), string(ev.Type)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
