package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gis_requests_total",
		Help: "Total number of routed requests",
	}, []string{"route"})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gis_tile_cache_hits_total",
		Help: "Total number of tile cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gis_tile_cache_misses_total",
		Help: "Total number of tile cache misses",
	})

	cacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gis_tile_cache_errors_total",
		Help: "Total number of failed tile cache operations",
	}, []string{"operation"})

	renderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gis_tile_render_duration_seconds",
		Help:    "Time spent rendering one tile",
		Buckets: prometheus.DefBuckets,
	})

	warmedTiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gis_warm_tiles_total",
		Help: "Total number of tiles rendered by cache warm-up",
	})

	openConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gis_open_connections",
		Help: "Number of connections being handled",
	})
)

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
