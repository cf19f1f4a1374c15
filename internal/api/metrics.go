package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	saveRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sia",
		Name:      "save_requests_total",
		Help:      "Total /save requests by outcome.",
	}, []string{"outcome"})

	saveImagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sia",
		Name:      "save_images_total",
		Help:      "Total images processed by a /save request, by result.",
	}, []string{"result"})

	saveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sia",
		Name:      "save_duration_seconds",
		Help:      "Wall-clock duration of a /save request.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
