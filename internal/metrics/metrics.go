package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// AnalysisServed counts analyses returned to callers by source (cache, service, fallback).
	AnalysisServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_served_total",
			Help: "Analyses returned to callers, by source",
		},
		[]string{"source"},
	)
	// CacheState counts snapshot classifications made by the analysis cache.
	CacheState = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_cache_state_total",
			Help: "Analysis cache classifications, by state",
		},
		[]string{"state"},
	)
	// ExportBuilds counts export builds by result (ok, alternate, degraded, error).
	ExportBuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "export_builds_total",
			Help: "Consolidated export builds, by result",
		},
		[]string{"result"},
	)
	// Mutations counts transaction mutations by action.
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transaction_mutations_total",
			Help: "Transaction mutations, by action",
		},
		[]string{"action"},
	)
	RLRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_requests_total",
			Help: "Total requests seen by the rate limiter",
		},
		[]string{"endpoint"},
	)
	RLBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_blocked_total",
			Help: "Total requests blocked by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(AnalysisServed)
	prometheus.MustRegister(CacheState)
	prometheus.MustRegister(ExportBuilds)
	prometheus.MustRegister(Mutations)
	prometheus.MustRegister(RLRequests)
	prometheus.MustRegister(RLBlocked)
}
