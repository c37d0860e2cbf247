package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PasteCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepaste_paste_created_total",
		Help: "no. of pastes created",
	})
	PasteRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepaste_paste_retrieved_total",
		Help: "no. of pastes retrieved",
	})
	PasteUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepaste_paste_updated_total",
		Help: "no. of paste updates (HTTP and websocket)",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepaste_cache_hits_total",
		Help: "no. of cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepaste_cache_misses_total",
		Help: "no. of cache misses",
	})
	HistoryAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepaste_history_appends_total",
		Help: "no. of history entries appended",
	})
	HistoryPrunes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepaste_history_prunes_total",
		Help: "no. of history retention prunes",
	})
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "livepaste_ws_connections",
		Help: "currently open websocket connections",
	})
	WSMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepaste_ws_messages_total",
		Help: "no. of inbound websocket text frames",
	})
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livepaste_broadcast_failures_total",
		Help: "no. of failed broadcast sends",
	})
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livepaste_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
)

func Init() {
}
