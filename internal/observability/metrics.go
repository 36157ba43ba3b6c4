// Package observability provides metrics and tracing setup.
package observability

import (
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RedisErrors counts Redis command failures by command name. Wired into the
// go-redis client as a hook in internal/cache.
var RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tidepool_redis_errors_total",
	Help: "Total number of Redis command errors",
}, []string{"command"})

// SessionResolutions counts session token resolutions by outcome
// ("ok", "miss", "stale_user").
var SessionResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "tidepool_session_resolutions_total",
	Help: "Total number of session token resolutions by outcome",
}, []string{"outcome"})

// InitMetrics creates the Prometheus HTTP middleware for the Fiber app.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	return fiberprometheus.New(serviceName)
}
