package challenge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Issued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captchad_challenges_issued",
		Help: "The number of challenges issued",
	}, []string{"generator"})

	Validated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captchad_challenges_validated",
		Help: "The number of challenges answered correctly",
	}, []string{"generator"})

	Failed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "captchad_challenges_failed",
		Help: "The number of rejected verification attempts",
	}, []string{"reason"})

	GenerateTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "captchad_generate_seconds",
		Help:    "The time taken to generate a puzzle",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
	}, []string{"generator"})
)
