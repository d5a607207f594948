package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_tokens_issued_total",
		Help: "QR tokens issued, by purpose or link kind.",
	}, []string{"purpose"})

	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qr_scans_total",
		Help: "QR scan attempts, by outcome.",
	}, []string{"outcome"})
)
