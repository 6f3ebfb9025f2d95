package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aliddns",
		Name:      "probe_total",
		Help:      "Address probes by result.",
	}, []string{"result"})

	updateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aliddns",
		Name:      "update_total",
		Help:      "DNS record updates by result.",
	}, []string{"result"})

	lastCheckTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aliddns",
		Name:      "last_check_timestamp_seconds",
		Help:      "Unix time of the last successful probe.",
	})

	lastUpdateTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "aliddns",
		Name:      "last_update_timestamp_seconds",
		Help:      "Unix time of the last DNS update cycle.",
	})
)
