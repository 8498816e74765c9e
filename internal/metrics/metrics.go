package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "visitor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"method", "route"},
	)

	// Membership list metrics
	listTogglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_list_toggles_total",
			Help: "Total number of list toggles by path, kind and result",
		},
		[]string{"path", "kind", "result"},
	)

	listClearsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_list_clears_total",
			Help: "Total number of list soft-clears",
		},
		[]string{"path", "kind"},
	)

	listMergedItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_list_merged_items_total",
			Help: "Items activated on an account by guest merges",
		},
		[]string{"kind"},
	)

	// Engagement metrics
	engagementsFinalizedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visitor_engagements_finalized_total",
			Help: "Total number of engagements finalized with a duration",
		},
	)

	engagementDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "visitor_engagement_duration_seconds",
			Help:    "Finalized view durations",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 900, 3600},
		},
	)

	engagementErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_engagement_errors_total",
			Help: "Best-effort engagement operations that failed",
		},
		[]string{"op"},
	)

	// Notification metrics
	notificationsClaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "visitor_notifications_claimed_total",
			Help: "Abandoned-cart pairs returned by a pending scan",
		},
	)

	notificationsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visitor_notifications_published_total",
			Help: "Abandoned-cart notifications handed to the broker",
		},
		[]string{"result"},
	)
)

func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func RecordToggle(path, kind string, active bool, err error) {
	result := "removed"
	switch {
	case err != nil:
		result = "error"
	case active:
		result = "active"
	}
	listTogglesTotal.WithLabelValues(path, kind, result).Inc()
}

func RecordClear(path, kind string) {
	listClearsTotal.WithLabelValues(path, kind).Inc()
}

func RecordMerge(kind string, items int) {
	listMergedItemsTotal.WithLabelValues(kind).Add(float64(items))
}

func RecordEngagementFinalized(seconds int64) {
	engagementsFinalizedTotal.Inc()
	engagementDuration.Observe(float64(seconds))
}

func RecordEngagementError(op string) {
	engagementErrorsTotal.WithLabelValues(op).Inc()
}

func RecordNotificationsClaimed(n int) {
	notificationsClaimedTotal.Add(float64(n))
}

func RecordNotificationPublished(err error) {
	if err != nil {
		notificationsPublishedTotal.WithLabelValues("error").Inc()
		return
	}
	notificationsPublishedTotal.WithLabelValues("ok").Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
