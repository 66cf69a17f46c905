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
// 認証サービス、認可ゲート、HTTPミドルウェア、セッション掃除ワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(outcome string)
	RecordTokenRejected(reason string)
	RecordHashLatency(op string, d time.Duration)
	RecordAuthDecision(guard, outcome string)
	RecordHTTPStatus(statusCode int)
	RecordSessionsSwept(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins        *prometheus.CounterVec
	tokenRejected *prometheus.CounterVec
	hashLatency   *prometheus.HistogramVec
	authDecisions *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	sessionsSwept prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogapp_login_total",
			Help: "ログイン試行の結果別の合計数",
		}, []string{"outcome"}),
		tokenRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogapp_token_rejected_total",
			Help: "検証に失敗したトークンの理由別の合計数",
		}, []string{"reason"}),
		hashLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "blogapp_password_hash_seconds",
			Help: "パスワードのハッシュ化・照合にかかった時間（秒）",
			// bcryptはコスト12で数百ミリ秒かかる
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2, 5},
		}, []string{"op"}),
		authDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogapp_auth_decision_total",
			Help: "認可ゲートの判定結果別の合計数",
		}, []string{"guard", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blogapp_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogapp_sessions_swept_total",
			Help: "期限切れとして削除されたセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.tokenRejected,
		c.hashLatency,
		c.authDecisions,
		c.httpStatus,
		c.sessionsSwept,
	)

	return c
}

// RecordLogin はログイン試行の結果（success, rejected, error）を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordTokenRejected はトークン検証失敗の理由を記録する。
func (c *Collector) RecordTokenRejected(reason string) {
	c.tokenRejected.WithLabelValues(reason).Inc()
}

// RecordHashLatency はパスワードのハッシュ化（hash）・照合（verify）の所要時間を記録する。
func (c *Collector) RecordHashLatency(op string, d time.Duration) {
	c.hashLatency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordAuthDecision は認可ゲートの判定結果を記録する。
func (c *Collector) RecordAuthDecision(guard, outcome string) {
	c.authDecisions.WithLabelValues(guard, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsSwept は削除された期限切れセッション数を記録する。
func (c *Collector) RecordSessionsSwept(count int64) {
	c.sessionsSwept.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
