// Package metrics holds the Prometheus collectors for login and token cache activity.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes recorded by TokenRefreshes.
const (
	OutcomeRefreshed = "refreshed"
	OutcomeReused    = "reused"
	OutcomeRescued   = "rescued"
	OutcomeFailed    = "failed"
)

var (
	Logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauthkit_logins_total",
		Help: "Total number of interactive logins grouped by result",
	}, []string{"result"})
	// Code sources are "callback" or "manual".
	LoginCodeSource = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauthkit_login_code_source_total",
		Help: "Authorization codes obtained per input source",
	}, []string{"source"})
	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauthkit_token_refreshes_total",
		Help: "Token refresh attempts grouped by outcome",
	}, []string{"outcome"})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauthkit_token_cache_hits_total",
		Help: "Token requests served from the cache without locking",
	})
	CacheImports = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauthkit_token_cache_imports_total",
		Help: "Cache files restored from an importer or mirror",
	}, []string{"source"})
	MirrorErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauthkit_mirror_errors_total",
		Help: "Failed mirror operations grouped by backend and operation",
	}, []string{"mirror", "op"})
)

func init() {
	prometheus.MustRegister(
		Logins,
		LoginCodeSource,
		TokenRefreshes,
		CacheHits,
		CacheImports,
		MirrorErrors,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
