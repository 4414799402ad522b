package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    // Client side.
    LeaderCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "kvrouter",
        Subsystem: "client",
        Name:      "cache_lookups_total",
        Help:      "Leader cache lookups by result (hit|miss)",
    }, []string{"result"})

    LeaderDiscoveries = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "kvrouter",
        Subsystem: "client",
        Name:      "discoveries_total",
        Help:      "Leader discovery calls issued by result (ok|error)",
    }, []string{"result"})

    Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "kvrouter",
        Subsystem: "client",
        Name:      "requests_total",
        Help:      "Routed operations by op and result (ok|error|rejected)",
    }, []string{"op", "result"})

    RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
        Namespace: "kvrouter",
        Subsystem: "client",
        Name:      "request_duration_seconds",
        Help:      "Latency of routed operations",
        Buckets:   prometheus.DefBuckets,
    }, []string{"op"})

    // Dev gateway side.
    GatewayRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "kvrouter",
        Subsystem: "gateway",
        Name:      "requests_total",
        Help:      "Requests served by the dev gateway by route and status code",
    }, []string{"route", "code"})

    GatewayWriteRejections = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "kvrouter",
        Subsystem: "gateway",
        Name:      "write_rejections_total",
        Help:      "Writes rejected because the targeted node is not the leader",
    })

    GatewayLeaderChanges = prometheus.NewCounter(prometheus.CounterOpts{
        Namespace: "kvrouter",
        Subsystem: "gateway",
        Name:      "leader_changes_total",
        Help:      "Leader elections performed on the dev cluster",
    })
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(LeaderCacheLookups)
        prometheus.MustRegister(LeaderDiscoveries)
        prometheus.MustRegister(Requests)
        prometheus.MustRegister(RequestDuration)
        prometheus.MustRegister(GatewayRequests)
        prometheus.MustRegister(GatewayWriteRejections)
        prometheus.MustRegister(GatewayLeaderChanges)
    })
}
